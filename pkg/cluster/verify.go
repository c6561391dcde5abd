package cluster

import (
	"fmt"
	"sort"
	"strings"
)

// ContainerError says what is wrong with one container after a
// deployment.
type ContainerError struct {
	Container Container
	Problem   string
}

// VerifyError collects every container that did not come up as
// expected.
type VerifyError []ContainerError

func (err VerifyError) Error() string {
	var errs []string
	for _, e := range err {
		name := e.Container.Name
		if name == "" {
			name = e.Container.Service
		}
		errs = append(errs, name+": "+e.Problem)
	}
	return strings.Join(errs, "; ")
}

// Verify checks the containers of each service named in expected: the
// service must have at least one container, and all of them must be
// running and not failing their own healthcheck. Where expected gives
// a non-empty tag for the service, the containers must also be running
// an image with that tag, as found by tagOf. Containers of services
// not in expected are ignored.
func Verify(containers []Container, expected map[string]string, tagOf func(image string) (string, error)) error {
	var errs VerifyError
	seen := map[string]bool{}
	for _, c := range containers {
		tag, ok := expected[c.Service]
		if !ok {
			continue
		}
		seen[c.Service] = true
		switch {
		case !c.Running():
			errs = append(errs, ContainerError{c, fmt.Sprintf("state is %q", c.State)})
		case c.Unhealthy():
			errs = append(errs, ContainerError{c, "container healthcheck failing"})
		case tag != "" && tagOf != nil:
			got, err := tagOf(c.Image)
			if err != nil {
				errs = append(errs, ContainerError{c, err.Error()})
			} else if got != tag {
				errs = append(errs, ContainerError{c, fmt.Sprintf("running image %s, expected tag %s", c.Image, tag)})
			}
		}
	}

	var missing []string
	for s := range expected {
		if !seen[s] {
			missing = append(missing, s)
		}
	}
	sort.Strings(missing)
	for _, s := range missing {
		errs = append(errs, ContainerError{Container{Service: s}, "no container"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
