// Package fixset tracks which records have been remediated. The set only
// grows: there is no way to unmark a record.
package fixset

import (
	"context"
	"sync"
)

// Set is the fixed-record set shared by single fixes and bulk runs.
type Set interface {
	// Mark adds id. Marking an already fixed id is a no-op.
	Mark(ctx context.Context, id string) error
	Has(ctx context.Context, id string) (bool, error)
	// List returns fixed ids in the order they were first marked.
	List(ctx context.Context) ([]string, error)
}

// Memory is an in-process Set.
type Memory struct {
	mu    sync.RWMutex
	ids   map[string]struct{}
	order []string
}

// NewMemory returns an empty in-memory set.
func NewMemory() *Memory {
	return &Memory{ids: make(map[string]struct{})}
}

func (m *Memory) Mark(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.ids[id]; ok {
		return nil
	}
	m.ids[id] = struct{}{}
	m.order = append(m.order, id)
	return nil
}

func (m *Memory) Has(_ context.Context, id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.ids[id]
	return ok, nil
}

func (m *Memory) List(context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.order...), nil
}
