package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	deployerr "github.com/laconorg/deployer/pkg/errors"
	"github.com/laconorg/deployer/pkg/webhook"
)

type triggerOpts struct {
	*rootOpts
	payload webhook.Payload
	timeout time.Duration
}

func newTrigger(parent *rootOpts) *triggerOpts {
	return &triggerOpts{rootOpts: parent}
}

func (opts *triggerOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trigger <url> <secret> <hook-id> <sha>",
		Short: "ask a host to deploy a commit, by sending it a signed webhook",
		Example: `  deployctl trigger https://hooks.example.com/hooks/deploy "$WEBHOOK_SECRET" \
      deploy-app 3f2a9c1e8b7d --workflow-run-id "$GITHUB_RUN_ID"`,
		RunE: opts.RunE,
	}
	fs := cmd.Flags()
	fs.StringVar(&opts.payload.Ref, "ref", webhook.DefaultRef, "git ref the commit was built from")
	fs.StringVar(&opts.payload.Repository, "repository", webhook.DefaultRepository, "repository the commit belongs to")
	fs.StringVar(&opts.payload.Sender, "sender", webhook.DefaultSender, "who is sending the request")
	fs.StringVar(&opts.payload.TriggeredBy, "triggered-by", webhook.DefaultTriggeredBy, "what is triggering the deployment")
	fs.StringVar(&opts.payload.WorkflowRunID, "workflow-run-id", "", "CI run that built the commit")
	fs.DurationVar(&opts.timeout, "timeout", webhook.DefaultTimeout, "timeout for the request")
	return cmd
}

func (opts *triggerOpts) RunE(cmd *cobra.Command, args []string) error {
	if err := wantedArgs("url", "secret", "hook-id", "sha")(len(args)); err != nil {
		return err
	}
	url, secret := args[0], args[1]
	p := opts.payload
	p.HookID, p.SHA = args[2], args[3]
	if secret == "" {
		return deployerr.ConfigError(fmt.Errorf("empty secret"), "The webhook secret must not be empty.")
	}
	if err := p.Validate(); err != nil {
		return deployerr.ConfigError(err, "Give a hook ID and a commit SHA.")
	}

	body, err := webhook.Send(opts.ctx, &http.Client{Timeout: opts.timeout}, url, []byte(secret), p)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), body)
	return nil
}
