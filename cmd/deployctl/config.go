package main

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/laconorg/deployer/pkg/config"
	"github.com/laconorg/deployer/pkg/deploy"
	"github.com/laconorg/deployer/pkg/health"
	"github.com/laconorg/deployer/pkg/state"
)

const defaultLockTimeout = 10 * time.Minute

// defineConfigFlags defines the flags that can also be set in a config
// file or the environment. These need special treatment, because some
// care must be taken to match them ("bind") with config file field
// names.
func defineConfigFlags(fs *pflag.FlagSet, v *viper.Viper, bail func(error)) {

	bind := func(fieldName, flagName string) error {
		configStruct := reflect.TypeOf(config.Config{})
		field, ok := configStruct.FieldByName(fieldName)
		if !ok {
			return fmt.Errorf("attempt to bind a flag to a field not present in config.Config, %q", fieldName)
		}
		// this parallels the logic in
		// github.com/mitchellh/mapstructure, except that we want to
		// bail if a field is mentioned that is marked ignore, like
		// this: `mapstructure:"-"`
		mappedName := field.Name
		mapstructureTagParts := strings.Split(field.Tag.Get("mapstructure"), ",")
		if namePart := mapstructureTagParts[0]; namePart != "" {
			if namePart == "-" {
				return fmt.Errorf(`attempt to bind a flag to a config field tagged as ignored, %q`, field.Name)
			}
			mappedName = namePart
		}
		return v.BindPFlag(mappedName, fs.Lookup(flagName))
	}

	bindOrBail := func(fieldName, flagName string) {
		if err := bind(fieldName, flagName); err != nil {
			bail(err)
		}
	}

	defineString := func(fieldName, flagName, def, desc string) {
		fs.String(flagName, def, desc)
		bindOrBail(fieldName, flagName)
	}

	defineStringSlice := func(fieldName, flagName string, def []string, desc string) {
		fs.StringSlice(flagName, def, desc)
		bindOrBail(fieldName, flagName)
	}

	defineBool := func(fieldName, flagName string, def bool, desc string) {
		fs.Bool(flagName, def, desc)
		bindOrBail(fieldName, flagName)
	}

	defineDuration := func(fieldName, flagName string, def time.Duration, desc string) {
		fs.Duration(flagName, def, desc)
		bindOrBail(fieldName, flagName)
	}

	defineInt := func(fieldName, flagName string, def int, desc string) {
		fs.Int(flagName, def, desc)
		bindOrBail(fieldName, flagName)
	}

	defineString("LogFormat", "log-format", config.LogFormatLogfmt, fmt.Sprintf("log format, one of {%s,%s}", config.LogFormatLogfmt, config.LogFormatJSON))
	defineString("MetricsTextfile", "metrics-textfile", "", "if set, write metrics to this file on exit, for the node exporter's textfile collector")

	// health probe
	defineString("HealthEndpoint", "health-endpoint", health.DefaultEndpoint, "base URL health requests are sent to; the Host header names the service")
	defineString("HealthPath", "health-path", health.DefaultPath, "path of the health endpoint")
	defineString("HealthChecksKey", "health-checks-key", health.DefaultChecksKey, "key (or dotted path) of the checks object in the health response")
	defineDuration("HealthTimeout", "health-timeout", health.DefaultRequestTimeout, "timeout for each health request")
	defineDuration("HealthInitialDelay", "health-initial-delay", health.DefaultPolicy.InitialDelay, "time to let the service settle before the first health request")
	defineDuration("HealthInterval", "health-interval", health.DefaultPolicy.Interval, "time between health requests")
	defineInt("HealthMaxAttempts", "health-max-attempts", health.DefaultPolicy.MaxAttempts, "health requests to make before giving up")

	// deployment
	defineDuration("UpdateTimeout", "update-timeout", deploy.DefaultUpdateTimeout, "maximum time pulling and starting a version may take")
	defineDuration("LockTimeout", "lock-timeout", defaultLockTimeout, "maximum time to wait for another deployment to the same target to finish")
	defineString("VersionKey", "version-key", state.DefaultKey, "variable in the version file holding the image tag")

	// compose
	defineString("Docker", "docker", "docker", "docker executable (or docker-compose, to use the standalone compose)")
	defineString("ComposeProject", "compose-project", "", "compose project name; by default compose picks one")
	defineStringSlice("ComposeServices", "compose-services", nil, "deploy only services matching these glob expressions; the default is all services")
	defineStringSlice("ComposeExclude", "compose-exclude", nil, "do not deploy services matching these glob expressions")
	defineBool("ComposeVerify", "compose-verify", true, "after starting, check each service has a running container, and that versioned services run the deployed tag")
}
