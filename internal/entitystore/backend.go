package entitystore

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Batch is one commit worth of record writes.
type Batch struct {
	Puts    map[string][]byte
	Deletes []string
}

func (b Batch) empty() bool { return len(b.Puts) == 0 && len(b.Deletes) == 0 }

// Backend stores committed records.
//
// Get returns ErrNotFound for absent keys. Apply must make the whole batch
// visible, or none of it if it returns an error.
type Backend interface {
	Get(key string) ([]byte, error)
	Keys(prefix string) ([]string, error)
	Apply(ctx context.Context, batch Batch) error
	Close() error
}

// MemoryBackend keeps records in a map. It is the backend used by tests and by
// the "memory" store configuration.
type MemoryBackend struct {
	mu      sync.RWMutex
	records map[string][]byte
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{records: make(map[string][]byte)}
}

func (m *MemoryBackend) Get(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.records[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (m *MemoryBackend) Keys(prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0)
	for k := range m.records {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MemoryBackend) Apply(ctx context.Context, batch Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range batch.Puts {
		cp := make([]byte, len(v))
		copy(cp, v)
		m.records[k] = cp
	}
	for _, k := range batch.Deletes {
		delete(m.records, k)
	}
	return nil
}

func (m *MemoryBackend) Close() error { return nil }
