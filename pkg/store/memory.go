package store

import (
	"context"
	"sync"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is a process-local Store for tests and dry runs.
type MemoryStore struct {
	mu       sync.RWMutex
	data     map[string]string
	watchers map[chan struct{}]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data:     make(map[string]string),
		watchers: make(map[chan struct{}]struct{}),
	}
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok
}

func (m *MemoryStore) Set(ctx context.Context, key, value string) error {
	return m.SetMany(ctx, map[string]string{key: value})
}

func (m *MemoryStore) SetMany(_ context.Context, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range fields {
		m.data[k] = v
	}
	for ch := range m.watchers {
		signal(ch)
	}
	return nil
}

// Delete removes a key. Used to simulate a cleared store.
func (m *MemoryStore) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
}

func (m *MemoryStore) Watch(ctx context.Context) (<-chan struct{}, error) {
	in := make(chan struct{}, 1)
	m.mu.Lock()
	m.watchers[in] = struct{}{}
	m.mu.Unlock()

	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		defer func() {
			m.mu.Lock()
			delete(m.watchers, in)
			m.mu.Unlock()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case <-in:
				signal(out)
			}
		}
	}()
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }
