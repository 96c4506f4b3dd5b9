package cache

import (
	"context"
	"sync"
)

// MemoryStore keeps the count for the lifetime of the process only.
type MemoryStore struct {
	mu    sync.Mutex
	value *string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) ReadCount(context.Context) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.value == nil {
		return "", false, nil
	}
	return *m.value, true, nil
}

func (m *MemoryStore) WriteCount(_ context.Context, value string) error {
	m.mu.Lock()
	m.value = &value
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}
