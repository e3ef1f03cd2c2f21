package recordfile

import (
	"context"
	"sync"
)

// Table loads and saves the whole record table.
type Table interface {
	// Load returns the current snapshot. A table that does not exist yet is
	// created empty.
	Load(ctx context.Context) (Snapshot, error)
	// Save replaces the persisted table with s.
	Save(ctx context.Context, s Snapshot) error
	// Name is the base name the table is replicated under.
	Name() string
}

// Memory is a Table held in process memory. Snapshots go through the codec so
// it rejects the same inputs a file table would.
type Memory struct {
	mu      sync.Mutex
	name    string
	doc     []byte
	saves   int
	SaveErr error // when set, Save fails without touching the table
}

// NewMemory returns an empty in-memory table replicated under name.
func NewMemory(name string) *Memory {
	return &Memory{name: name}
}

func (m *Memory) Name() string { return m.name }

func (m *Memory) Load(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.doc == nil {
		return Snapshot{}, nil
	}
	return Decode(m.doc)
}

func (m *Memory) Save(ctx context.Context, s Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	b, err := Encode(s)
	if err != nil {
		return err
	}
	m.doc = b
	m.saves++
	return nil
}

// Saves reports how many times Save succeeded.
func (m *Memory) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// Document returns the last encoded table, or nil before the first save.
func (m *Memory) Document() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.doc...)
}
