package credstore

import (
	"context"
	"sync"
)

var _ KV = (*MemoryKV)(nil)

// MemoryKV keeps values in process memory. Used by tests and throwaway sessions.
type MemoryKV struct {
	values map[string]string
	lock   sync.RWMutex
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{
		values: make(map[string]string),
	}
}

func (m *MemoryKV) Get(_ context.Context, key string) (string, bool, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryKV) SetMany(_ context.Context, values map[string]string) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	for k, v := range values {
		m.values[k] = v
	}
	return nil
}

func (m *MemoryKV) Delete(_ context.Context, keys ...string) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

// Len is the number of stored keys
func (m *MemoryKV) Len() int {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return len(m.values)
}
