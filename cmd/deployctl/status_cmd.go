package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/laconorg/deployer/pkg/version"
)

type statusOpts struct {
	*rootOpts
}

func newStatus(parent *rootOpts) *statusOpts {
	return &statusOpts{rootOpts: parent}
}

func (opts *statusOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <compose-file> <version-file>",
		Short: "show the version recorded, and the containers running",
		RunE:  opts.RunE,
	}
	return cmd
}

func (opts *statusOpts) RunE(cmd *cobra.Command, args []string) error {
	if err := wantedArgs("compose-file", "version-file")(len(args)); err != nil {
		return err
	}
	controller, err := opts.controller(args[0], args[1])
	if err != nil {
		return err
	}
	stored, err := opts.versionStore(args[1]).Current(opts.ctx)
	if err != nil {
		return err
	}
	containers, err := controller.Status(opts.ctx)
	if err != nil {
		return err
	}

	out := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
	fmt.Fprintf(out, "VERSION\t%s\n\n", version.Display(stored))
	fmt.Fprintln(out, "SERVICE\tCONTAINER\tSTATE\tHEALTH\tIMAGE")
	for _, c := range containers {
		health := c.Health
		if health == "" {
			health = "-"
		}
		fmt.Fprintf(out, "%s\t%s\t%s\t%s\t%s\n", c.Service, c.Name, c.State, health, c.Image)
	}
	return out.Flush()
}
