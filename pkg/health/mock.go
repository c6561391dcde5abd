package health

import (
	"context"
	"sync"
)

// Mock is a Prober whose verdicts are given by ProbeFunc; with no
// ProbeFunc everything is healthy. Probed hostnames are recorded.
type Mock struct {
	ProbeFunc func(ctx context.Context, hostname string) error

	mu     sync.Mutex
	probed []string
}

var _ Prober = &Mock{}

func (m *Mock) Probe(ctx context.Context, hostname string) error {
	m.mu.Lock()
	m.probed = append(m.probed, hostname)
	m.mu.Unlock()
	if m.ProbeFunc == nil {
		return nil
	}
	return m.ProbeFunc(ctx, hostname)
}

func (m *Mock) Probed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.probed...)
}
