package mocks

import (
	"context"
	"sync"

	"github.com/caterbase/caterpos/internal/ports"
)

// MockKeyValue is a mock implementation of KeyValue
type MockKeyValue struct {
	GetFunc    func(ctx context.Context, key string) ([]byte, error)
	SetFunc    func(ctx context.Context, key string, value []byte) error
	DeleteFunc func(ctx context.Context, key string) error
	CloseFunc  func() error
}

func (m *MockKeyValue) Get(ctx context.Context, key string) ([]byte, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, key)
	}
	return nil, ports.ErrKeyNotFound
}

func (m *MockKeyValue) Set(ctx context.Context, key string, value []byte) error {
	if m.SetFunc != nil {
		return m.SetFunc(ctx, key, value)
	}
	return nil
}

func (m *MockKeyValue) Delete(ctx context.Context, key string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, key)
	}
	return nil
}

func (m *MockKeyValue) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// MemoryKeyValue is a map-backed KeyValue for tests that need real
// read-back semantics rather than canned responses.
type MemoryKeyValue struct {
	mu   sync.Mutex
	data map[string][]byte
}

func NewMemoryKeyValue() *MemoryKeyValue {
	return &MemoryKeyValue{data: make(map[string][]byte)}
}

func (m *MemoryKeyValue) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.data[key]
	if !ok {
		return nil, ports.ErrKeyNotFound
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (m *MemoryKeyValue) Set(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := make([]byte, len(value))
	copy(stored, value)
	m.data[key] = stored
	return nil
}

func (m *MemoryKeyValue) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *MemoryKeyValue) Close() error { return nil }
