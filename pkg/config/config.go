// config is the package containing configuration for deployctl: the
// tunables that are the same from one deployment to the next, as
// opposed to the target, which is given each time.
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/laconorg/deployer/pkg/cluster"
	"github.com/laconorg/deployer/pkg/retry"
)

const (
	ConfigType          = "yaml"
	DeployConfigVersion = "v1"
	// Environment variables DEPLOYCTL_<FIELD> override the config
	// file, e.g., DEPLOYCTL_HEALTHENDPOINT.
	EnvPrefix = "DEPLOYCTL"

	LogFormatLogfmt = "logfmt"
	LogFormatJSON   = "json"
)

type Config struct {
	// This is expected to be present in a config file (and will not
	// correspond to a flag). The value determines how the config file
	// is interpreted: for now, if it is not equal to
	// DeployConfigVersion above, it is considered an invalid
	// configuration.
	ConfigVersion string `mapstructure:"deployConfigVersion"`

	LogFormat       string `mapstructure:"logFormat"`
	MetricsTextfile string `mapstructure:"metricsTextfile"`

	HealthEndpoint     string        `mapstructure:"healthEndpoint"`
	HealthPath         string        `mapstructure:"healthPath"`
	HealthChecksKey    string        `mapstructure:"healthChecksKey"`
	HealthTimeout      time.Duration `mapstructure:"healthTimeout"`
	HealthInitialDelay time.Duration `mapstructure:"healthInitialDelay"`
	HealthInterval     time.Duration `mapstructure:"healthInterval"`
	HealthMaxAttempts  int           `mapstructure:"healthMaxAttempts"`

	UpdateTimeout time.Duration `mapstructure:"updateTimeout"`
	LockTimeout   time.Duration `mapstructure:"lockTimeout"`
	VersionKey    string        `mapstructure:"versionKey"`

	Docker          string   `mapstructure:"docker"`
	ComposeProject  string   `mapstructure:"composeProject"`
	ComposeServices []string `mapstructure:"composeServices"`
	ComposeExclude  []string `mapstructure:"composeExclude"`
	ComposeVerify   bool     `mapstructure:"composeVerify"`
}

// IsValid checks a configuration read from a file is meant for us.
func (c Config) IsValid() error {
	if c.ConfigVersion != DeployConfigVersion {
		return fmt.Errorf("config file is expected to include `deployConfigVersion: %s` to mark it as a deployctl config", DeployConfigVersion)
	}
	return nil
}

// Check looks for values that cannot work, wherever they came from.
func (c Config) Check() error {
	switch c.LogFormat {
	case LogFormatLogfmt, LogFormatJSON:
	default:
		return fmt.Errorf("log format must be one of %s, %s; got %q", LogFormatLogfmt, LogFormatJSON, c.LogFormat)
	}
	if c.HealthMaxAttempts < 1 {
		return fmt.Errorf("health checks need at least one attempt; got %d", c.HealthMaxAttempts)
	}
	for name, d := range map[string]time.Duration{
		"health timeout":       c.HealthTimeout,
		"health initial delay": c.HealthInitialDelay,
		"health interval":      c.HealthInterval,
		"update timeout":       c.UpdateTimeout,
		"lock timeout":         c.LockTimeout,
	} {
		if d < 0 {
			return fmt.Errorf("%s must not be negative; got %s", name, d)
		}
	}
	if c.HealthTimeout <= 0 {
		return fmt.Errorf("health timeout must be more than zero; got %s", c.HealthTimeout)
	}
	if c.VersionKey == "" {
		return fmt.Errorf("version key must not be empty")
	}
	if c.Docker == "" {
		return fmt.Errorf("docker executable must not be empty")
	}
	return nil
}

func (c Config) HealthPolicy() retry.Policy {
	return retry.Policy{
		InitialDelay: c.HealthInitialDelay,
		Interval:     c.HealthInterval,
		MaxAttempts:  c.HealthMaxAttempts,
	}
}

func (c Config) Selector() cluster.ServiceSelector {
	return cluster.ServiceSelector{
		Include: c.ComposeServices,
		Exclude: c.ComposeExclude,
	}
}

// ComposeCommand is how to run compose: as a docker CLI plugin, unless
// the executable given is the standalone docker-compose.
func (c Config) ComposeCommand() []string {
	if filepath.Base(c.Docker) == "docker-compose" {
		return []string{c.Docker}
	}
	return []string{c.Docker, "compose"}
}
