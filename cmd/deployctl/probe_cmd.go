package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

type probeOpts struct {
	*rootOpts
}

func newProbe(parent *rootOpts) *probeOpts {
	return &probeOpts{rootOpts: parent}
}

func (opts *probeOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "probe <hostname>",
		Short: "poll the health endpoint for a host, as a deployment would",
		RunE:  opts.RunE,
	}
	return cmd
}

func (opts *probeOpts) RunE(cmd *cobra.Command, args []string) error {
	if err := wantedArgs("hostname")(len(args)); err != nil {
		return err
	}
	if err := opts.prober().Probe(opts.ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "healthy")
	return nil
}
