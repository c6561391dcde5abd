package main

import (
	"errors"
	"fmt"

	"github.com/go-kit/kit/log"
	"github.com/spf13/cobra"

	"github.com/laconorg/deployer/pkg/audit"
	"github.com/laconorg/deployer/pkg/deploy"
	deployerr "github.com/laconorg/deployer/pkg/errors"
)

type deployOpts struct {
	*rootOpts
	triggeredBy string
}

func newDeploy(parent *rootOpts) *deployOpts {
	return &deployOpts{rootOpts: parent}
}

func (opts *deployOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deploy <version> <compose-file> <version-file> <hostname> <audit-log>",
		Short: "deploy a version, rolling back to the one before if it does not come up healthy",
		Example: `  deployctl deploy 3f2a9c1e8b7d /srv/app/docker-compose.yml /srv/app/versions.env \
      app.example.com /var/log/deploy.log`,
		RunE: opts.RunE,
	}
	cmd.Flags().StringVar(&opts.triggeredBy, "triggered-by", "", "who or what asked for the deployment, for the logs")
	return cmd
}

func (opts *deployOpts) RunE(cmd *cobra.Command, args []string) error {
	if err := wantedArgs("version", "compose-file", "version-file", "hostname", "audit-log")(len(args)); err != nil {
		return err
	}
	target := deploy.Target{
		Version:     args[0],
		ComposeFile: args[1],
		VersionFile: args[2],
		Hostname:    args[3],
		AuditLog:    args[4],
		TriggeredBy: opts.triggeredBy,
	}
	// checked here as well as by the engine, so that a missing compose
	// file is reported as such rather than as unreadable YAML
	if err := target.Validate(); err != nil {
		return err
	}

	controller, err := opts.controller(target.ComposeFile, target.VersionFile)
	if err != nil {
		return err
	}
	engine := &deploy.Engine{
		State:         opts.versionStore(target.VersionFile),
		Controller:    controller,
		Prober:        opts.prober(),
		Audit:         &audit.FileLog{Path: target.AuditLog},
		Logger:        log.With(opts.Logger, "component", "deploy"),
		UpdateTimeout: opts.Config.UpdateTimeout,
		Lock:          true,
		LockTimeout:   opts.Config.LockTimeout,
	}

	outcome, err := engine.Deploy(opts.ctx, target)
	if outcome == "" {
		return err
	}
	switch {
	case deployerr.IsRollback(err):
		fmt.Fprintf(cmd.ErrOrStderr(), "Rollback failed; %s needs attention.\n\n", target.Hostname)
		var rollbackErr *deployerr.Error
		if errors.As(err, &rollbackErr) {
			fmt.Fprint(cmd.ErrOrStderr(), rollbackErr.Help)
		}
	case err != nil:
		fmt.Fprintln(cmd.ErrOrStderr(), "Warning:", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), outcome)
	if code := outcome.ExitCode(); code != exitOK {
		return &exitError{code: code}
	}
	return nil
}

