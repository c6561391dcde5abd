package cluster

import (
	"context"
	"strings"
)

// StateRunning is the container state, as reported by the container
// runtime, of a container that is up.
const StateRunning = "running"

// Controller is the narrow view of the container runtime the deployer
// needs: move the service to a version, and see what is running.
type Controller interface {
	// Deploy pulls the images for the version given and starts (or
	// updates) the service with them. It returns only when the
	// runtime has finished, failed, or the context is done.
	Deploy(ctx context.Context, short string) error
	// Status reports the containers currently belonging to the
	// service.
	Status(ctx context.Context) ([]Container, error)
}

// Container is one running (or not) container of the service.
type Container struct {
	Name    string
	Service string
	Image   string
	State   string
	Health  string
}

func (c Container) Running() bool {
	return strings.EqualFold(c.State, StateRunning)
}

// Unhealthy reports whether the runtime's own healthcheck, if the
// container has one, has failed.
func (c Container) Unhealthy() bool {
	return strings.EqualFold(c.Health, "unhealthy")
}
