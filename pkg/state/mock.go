package state

import (
	"context"
	"sync"

	"github.com/laconorg/deployer/pkg/version"
)

// Mock is an in-memory State that remembers everything recorded in
// it. Set CurrentErr or RecordErr to make the respective method fail.
type Mock struct {
	mu         sync.Mutex
	Value      string
	Recorded   []string
	CurrentErr error
	RecordErr  error
}

var _ State = &Mock{}

func (m *Mock) Current(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CurrentErr != nil {
		return "", m.CurrentErr
	}
	return m.Value, nil
}

func (m *Mock) Record(ctx context.Context, short string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.RecordErr != nil {
		return m.RecordErr
	}
	m.Value = version.Tag(short)
	m.Recorded = append(m.Recorded, short)
	return nil
}

func (m *Mock) String() string {
	return "in-memory"
}
