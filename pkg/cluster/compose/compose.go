package compose

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"

	"github.com/laconorg/deployer/pkg/cluster"
	"github.com/laconorg/deployer/pkg/image"
	"github.com/laconorg/deployer/pkg/state"
	"github.com/laconorg/deployer/pkg/version"
)

// DefaultCommand is how the compose CLI is invoked unless told
// otherwise.
var DefaultCommand = []string{"docker", "compose"}

// Compose is a cluster.Controller for a service defined by a compose
// file, and run by the compose CLI on the local docker daemon.
type Compose struct {
	// Command is the executable and any leading arguments, e.g.,
	// `docker compose` or `docker-compose`.
	Command []string
	// Definition is the parsed compose file.
	Definition *File
	// EnvFile is the file compose reads interpolation variables
	// from; this is the version file.
	EnvFile string
	// VersionKey is the variable naming the version tag.
	VersionKey string
	Project    string
	Selector   cluster.ServiceSelector
	// Verify, if true, checks after starting that each selected
	// service has a running container, and that the versioned ones
	// run the image tag deployed.
	Verify bool
	Logger log.Logger
}

var _ cluster.Controller = &Compose{}

func (c *Compose) logger() log.Logger {
	if c.Logger == nil {
		return log.NewNopLogger()
	}
	return c.Logger
}

func (c *Compose) versionKey() string {
	if c.VersionKey == "" {
		return state.DefaultKey
	}
	return c.VersionKey
}

func (c *Compose) command() []string {
	if len(c.Command) == 0 {
		return DefaultCommand
	}
	return c.Command
}

func (c *Compose) baseArgs() []string {
	args := []string{"-f", c.Definition.Path}
	if c.EnvFile != "" {
		args = append(args, "--env-file", c.EnvFile)
	}
	if c.Project != "" {
		args = append(args, "-p", c.Project)
	}
	return args
}

// services gives the service names to put on the command line; nil
// means all of them.
func (c *Compose) services() []string {
	if c.Selector.All() {
		return nil
	}
	return c.Selector.Select(c.Definition.ServiceNames())
}

// Deploy pulls the images for the version and (re)creates the
// selected services. The version is given to compose explicitly as
// well as through the env file, so it is what runs even if the env
// file has been changed under our feet.
func (c *Compose) Deploy(ctx context.Context, short string) error {
	services := c.services()
	if !c.Selector.All() && len(services) == 0 {
		return errors.New("no services in the compose file are selected")
	}
	config := cmdConfig{
		env: []string{c.versionKey() + "=" + version.Tag(short)},
	}
	logger := log.With(c.logger(), "version", version.Tag(short))

	pull := append(append(c.baseArgs(), "pull", "--quiet"), services...)
	logger.Log("info", "pulling images", "services", strings.Join(services, ","))
	if err := execCompose(ctx, c.command(), pull, config); err != nil {
		return errors.Wrap(err, "pulling images")
	}

	up := append(append(c.baseArgs(), "up", "--detach", "--remove-orphans"), services...)
	logger.Log("info", "starting services")
	if err := execCompose(ctx, c.command(), up, config); err != nil {
		return errors.Wrap(err, "starting services")
	}

	if !c.Verify {
		return nil
	}
	containers, err := c.Status(ctx)
	if err != nil {
		return errors.Wrap(err, "checking started services")
	}
	return cluster.Verify(containers, c.expected(version.Tag(short)), image.TagOf)
}

// expected gives, for each selected service, the image tag it should
// be running; services not interpolating the version are only
// required to be running.
func (c *Compose) expected(tag string) map[string]string {
	names := c.Definition.ServiceNames()
	if !c.Selector.All() {
		names = c.services()
	}
	expected := map[string]string{}
	for _, name := range names {
		if c.Definition.Versioned(name, c.versionKey()) {
			expected[name] = tag
		} else {
			expected[name] = ""
		}
	}
	return expected
}

// psEntry is what `compose ps --format json` reports for each
// container. Only the fields used are listed.
type psEntry struct {
	Name    string `json:"Name"`
	Service string `json:"Service"`
	Image   string `json:"Image"`
	State   string `json:"State"`
	Health  string `json:"Health"`
}

// Status reports the containers of the selected services, including
// stopped ones.
func (c *Compose) Status(ctx context.Context) ([]cluster.Container, error) {
	out := &bytes.Buffer{}
	args := append(append(c.baseArgs(), "ps", "--all", "--format", "json"), c.services()...)
	if err := execCompose(ctx, c.command(), args, cmdConfig{out: out}); err != nil {
		return nil, errors.Wrap(err, "listing containers")
	}
	entries, err := parsePS(out.Bytes())
	if err != nil {
		return nil, err
	}
	containers := make([]cluster.Container, 0, len(entries))
	for _, e := range entries {
		if !c.Selector.Selected(e.Service) {
			continue
		}
		containers = append(containers, cluster.Container{
			Name:    e.Name,
			Service: e.Service,
			Image:   e.Image,
			State:   e.State,
			Health:  e.Health,
		})
	}
	return containers, nil
}

// parsePS accepts both output styles of `ps --format json`: older
// releases print a single array, newer ones an object per line.
func parsePS(out []byte) ([]psEntry, error) {
	trimmed := bytes.TrimSpace(out)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var entries []psEntry
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return nil, errors.Wrap(err, "parsing container list")
		}
		return entries, nil
	}
	var entries []psEntry
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	for {
		var e psEntry
		err := dec.Decode(&e)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "parsing container list")
		}
		entries = append(entries, e)
	}
	return entries, nil
}
