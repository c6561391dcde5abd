package mock

import (
	"context"
	"sync"

	"github.com/laconorg/deployer/pkg/cluster"
)

// Mock is a cluster.Controller whose behaviour is given by func
// fields. Calls to Deploy are recorded, in order.
type Mock struct {
	DeployFunc func(ctx context.Context, short string) error
	StatusFunc func(ctx context.Context) ([]cluster.Container, error)

	mu       sync.Mutex
	deployed []string
}

var _ cluster.Controller = &Mock{}

func (m *Mock) Deploy(ctx context.Context, short string) error {
	m.mu.Lock()
	m.deployed = append(m.deployed, short)
	m.mu.Unlock()
	if m.DeployFunc == nil {
		return nil
	}
	return m.DeployFunc(ctx, short)
}

func (m *Mock) Status(ctx context.Context) ([]cluster.Container, error) {
	if m.StatusFunc == nil {
		return nil, nil
	}
	return m.StatusFunc(ctx)
}

// Deployed returns the versions Deploy has been called with.
func (m *Mock) Deployed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deployed...)
}
