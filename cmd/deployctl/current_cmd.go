package main

import (
	"fmt"

	"github.com/spf13/cobra"

	deployerr "github.com/laconorg/deployer/pkg/errors"
	"github.com/laconorg/deployer/pkg/version"
)

type currentOpts struct {
	*rootOpts
}

func newCurrent(parent *rootOpts) *currentOpts {
	return &currentOpts{rootOpts: parent}
}

func (opts *currentOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "current <version-file>",
		Short: "print the version recorded as deployed",
		RunE:  opts.RunE,
	}
	return cmd
}

func (opts *currentOpts) RunE(cmd *cobra.Command, args []string) error {
	if err := wantedArgs("version-file")(len(args)); err != nil {
		return err
	}
	stored, err := opts.versionStore(args[0]).Current(opts.ctx)
	if err != nil {
		return deployerr.ConfigError(err, "The version file "+args[0]+" could not be read.")
	}
	if stored != "" {
		if err := version.Validate(stored); err != nil {
			return deployerr.ConfigError(err, "The version file "+args[0]+" holds something that is not a version.")
		}
		stored = version.Normalize(stored)
	}
	fmt.Fprintln(cmd.OutOrStdout(), version.Display(stored))
	return nil
}
