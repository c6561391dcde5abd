package audit

import "sync"

// Mock keeps entries in memory. Set Err to make Append fail (the entry
// is not kept in that case).
type Mock struct {
	Err error

	mu      sync.Mutex
	entries []Entry
}

var _ Writer = &Mock{}

func (m *Mock) Append(e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.entries = append(m.entries, e)
	return nil
}

func (m *Mock) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.entries...)
}
