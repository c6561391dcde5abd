package deploy

import (
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"

	deployerr "github.com/laconorg/deployer/pkg/errors"
	"github.com/laconorg/deployer/pkg/version"
)

// Target is everything a deployment is told about where, and what, to
// deploy.
type Target struct {
	// Version is the full identifier of the version to deploy.
	Version string
	// ComposeFile defines the service.
	ComposeFile string
	// VersionFile is where the running version is recorded.
	VersionFile string
	// Hostname is what the service answers to; the health probe is
	// addressed to it.
	Hostname string
	// AuditLog is where the outcome is appended.
	AuditLog string
	// TriggeredBy optionally says who or what asked for the
	// deployment. It is only logged.
	TriggeredBy string
}

// Short is the short identifier of the version requested: the first
// few characters of it, as given.
func (t Target) Short() string {
	return version.Shorten(strings.TrimSpace(t.Version))
}

func missingArgError(name string) *deployerr.Error {
	return deployerr.ConfigError(
		fmt.Errorf("%s not given", name),
		fmt.Sprintf(`The deployment target has no %s.

All of version, compose file, version file, hostname and audit log
must be given. Nothing has been changed on the host.
`, name),
	)
}

// Validate checks the target is complete, names a usable version, and
// that the files it names exist. Any problem is a configuration
// error, and means nothing should be touched.
func (t Target) Validate() error {
	for _, field := range []struct {
		name, value string
	}{
		{"version", t.Version},
		{"compose file", t.ComposeFile},
		{"version file", t.VersionFile},
		{"hostname", t.Hostname},
		{"audit log", t.AuditLog},
	} {
		if strings.TrimSpace(field.value) == "" {
			return missingArgError(field.name)
		}
	}

	if err := version.Validate(t.Version); err != nil {
		return deployerr.ConfigError(err, fmt.Sprintf(`The version %q cannot be deployed.

A version must be made of letters, digits, '.', '_' and '-' only, as it
becomes part of an image tag. Nothing has been changed on the host.
`, t.Version))
	}

	if strings.HasPrefix(strings.TrimSpace(t.Version), version.TagPrefix+"-") {
		return deployerr.ConfigError(
			fmt.Errorf("version %q is an image tag, not a version", t.Version),
			fmt.Sprintf(`The version %q looks like an image tag.

Give the commit identifier itself; the image tag is derived from it.
Nothing has been changed on the host.
`, t.Version))
	}

	for _, file := range []struct {
		name, path string
	}{
		{"compose file", t.ComposeFile},
		{"version file", t.VersionFile},
	} {
		if _, err := os.Stat(file.path); err != nil {
			return deployerr.ConfigError(
				errors.Wrapf(err, "checking %s", file.name),
				fmt.Sprintf(`The %s %s could not be read.

Check the path given, and that it is readable by this user. Nothing
has been changed on the host.
`, file.name, file.path),
			)
		}
	}
	return nil
}
