package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	deployerr "github.com/laconorg/deployer/pkg/errors"
)

const (
	exitOK     = 0
	exitFailed = 1
	exitConfig = 3
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRoot(ctx, stderr)
	rootCmd := root.Command()
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	cmd, err := rootCmd.ExecuteC()
	if err := root.writeMetrics(); err != nil {
		fmt.Fprintln(stderr, "Warning:", err)
	}
	if err == nil {
		return exitOK
	}

	// anything not making it to a subcommand, e.g., an unknown
	// command, is a usage problem
	if cmd == nil || cmd == rootCmd {
		switch err.(type) {
		case *deployerr.Error, usageError, *exitError:
		default:
			err = deployerr.CoverAllError(err)
		}
	}

	switch err := err.(type) {
	case *exitError:
		return err.code
	case usageError:
		fmt.Fprintln(stderr, "Error:", err)
		fmt.Fprintln(stderr, "")
		fmt.Fprintln(stderr, cmd.UsageString())
		return exitConfig
	case *deployerr.Error:
		fmt.Fprintln(stderr, "Error:", err)
		if err.Help != "" {
			fmt.Fprintln(stderr, "")
			fmt.Fprint(stderr, err.Help)
		}
	default:
		fmt.Fprintln(stderr, "Error:", err)
	}
	if deployerr.IsConfig(err) {
		return exitConfig
	}
	return exitFailed
}
