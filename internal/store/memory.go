package store

import (
	"bytes"
	"context"
	"sort"
	"sync"
)

type entry struct {
	value   []byte
	version int64
}

// MemoryKV is an in-process KV
type MemoryKV struct {
	mu   sync.Mutex
	data map[string]entry
}

// NewMemoryKV creates an empty in-memory store
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string]entry)}
}

func (m *MemoryKV) Get(ctx context.Context, key string) ([]byte, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.data[key]
	if !ok {
		return nil, 0, ErrNotFound
	}
	return bytes.Clone(e.value), e.version, nil
}

func (m *MemoryKV) CompareAndSwap(ctx context.Context, key string, version int64, value []byte) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.data[key]
	if e.version != version {
		return false, nil
	}
	m.data[key] = entry{value: bytes.Clone(value), version: version + 1}
	return true, nil
}

func (m *MemoryKV) Keys(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MemoryKV) Close() error { return nil }
