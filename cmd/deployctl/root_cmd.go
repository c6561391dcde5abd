package main

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/laconorg/deployer/pkg/cluster/compose"
	"github.com/laconorg/deployer/pkg/config"
	deployerr "github.com/laconorg/deployer/pkg/errors"
	"github.com/laconorg/deployer/pkg/health"
	"github.com/laconorg/deployer/pkg/state"
)

type rootOpts struct {
	ctx    context.Context
	stderr io.Writer

	v          *viper.Viper
	configFile string
	defineErr  error

	Config config.Config
	Logger log.Logger
}

func newRoot(ctx context.Context, stderr io.Writer) *rootOpts {
	return &rootOpts{
		ctx:    ctx,
		stderr: stderr,
		v:      viper.New(),
		Logger: log.NewNopLogger(),
	}
}

var rootLongHelp = strings.TrimSpace(`
deployctl moves a docker compose service to a new version, checks it
comes up healthy, and goes back to the version before if it does not.

Workflow:
  deployctl current versions.env                                    # What is deployed?
  deployctl deploy 3f2a9c1e8b7d docker-compose.yml versions.env \
      app.example.com /var/log/deploy.log                           # Deploy a commit.
  deployctl status docker-compose.yml versions.env                  # What is running?

Exit codes: 0 deployed; 1 failed and rolled back (or nothing to roll
back to); 2 failed and the rollback failed too; 3 bad arguments or
configuration, nothing was changed.
`)

func (opts *rootOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:               "deployctl",
		Long:              rootLongHelp,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: opts.PersistentPreRunE,
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})
	fs := cmd.PersistentFlags()
	fs.StringVar(&opts.configFile, "config", "", "YAML config file; flags given explicitly take precedence, then DEPLOYCTL_* environment variables, then the file")
	defineConfigFlags(fs, opts.v, func(err error) {
		if opts.defineErr == nil {
			opts.defineErr = err
		}
	})

	cmd.AddCommand(
		newDeploy(opts).Command(),
		newCurrent(opts).Command(),
		newProbe(opts).Command(),
		newStatus(opts).Command(),
		newTrigger(opts).Command(),
		newVersionCommand(),
	)
	return cmd
}

func (opts *rootOpts) PersistentPreRunE(cmd *cobra.Command, _ []string) error {
	if opts.defineErr != nil {
		return opts.defineErr
	}

	opts.v.SetEnvPrefix(config.EnvPrefix)
	opts.v.AutomaticEnv()
	if opts.configFile != "" {
		opts.v.SetConfigFile(opts.configFile)
		opts.v.SetConfigType(config.ConfigType)
		if err := opts.v.ReadInConfig(); err != nil {
			return deployerr.ConfigError(errors.Wrap(err, "reading config file"), "The config file given with --config could not be read.")
		}
	}
	if err := opts.v.Unmarshal(&opts.Config); err != nil {
		return deployerr.ConfigError(errors.Wrap(err, "interpreting configuration"), "Check the types of values in the config file and environment.")
	}
	if opts.configFile != "" {
		if err := opts.Config.IsValid(); err != nil {
			return deployerr.ConfigError(err, "Add `deployConfigVersion: "+config.DeployConfigVersion+"` to the config file.")
		}
	}
	if err := opts.Config.Check(); err != nil {
		return deployerr.ConfigError(err, "Check the flags, config file and DEPLOYCTL_* environment variables.")
	}

	opts.Logger = newLogger(opts.Config.LogFormat, opts.stderr)
	return nil
}

func newLogger(format string, w io.Writer) log.Logger {
	var logger log.Logger
	switch format {
	case config.LogFormatJSON:
		logger = log.NewJSONLogger(log.NewSyncWriter(w))
	default:
		logger = log.NewLogfmtLogger(log.NewSyncWriter(w))
	}
	logger = log.With(logger, "ts", log.DefaultTimestampUTC)
	logger = log.With(logger, "caller", log.DefaultCaller)
	return logger
}

// prober builds the health prober from the configuration.
func (opts *rootOpts) prober() *health.HTTPProber {
	return &health.HTTPProber{
		Endpoint: opts.Config.HealthEndpoint,
		Path:     opts.Config.HealthPath,
		Client:   &http.Client{Timeout: opts.Config.HealthTimeout},
		Policy:   opts.Config.HealthPolicy(),
		Readiness: health.Readiness{
			ChecksKey: opts.Config.HealthChecksKey,
		},
		Logger: log.With(opts.Logger, "component", "health"),
	}
}

// controller builds the compose controller for the files given.
func (opts *rootOpts) controller(composeFile, versionFile string) (*compose.Compose, error) {
	def, err := compose.LoadFile(composeFile)
	if err != nil {
		return nil, deployerr.ConfigError(err, "The compose file "+composeFile+" could not be read, or declares no services.")
	}
	return &compose.Compose{
		Command:    opts.Config.ComposeCommand(),
		Definition: def,
		EnvFile:    versionFile,
		VersionKey: opts.Config.VersionKey,
		Project:    opts.Config.ComposeProject,
		Selector:   opts.Config.Selector(),
		Verify:     opts.Config.ComposeVerify,
		Logger:     log.With(opts.Logger, "component", "compose"),
	}, nil
}

func (opts *rootOpts) versionStore(versionFile string) *state.EnvFile {
	return state.NewEnvFile(versionFile, opts.Config.VersionKey)
}

// writeMetrics saves everything gathered while running, if asked to.
func (opts *rootOpts) writeMetrics() error {
	if opts.Config.MetricsTextfile == "" {
		return nil
	}
	return errors.Wrap(
		stdprometheus.WriteToTextfile(opts.Config.MetricsTextfile, stdprometheus.DefaultGatherer),
		"writing metrics",
	)
}
