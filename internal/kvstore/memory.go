package kvstore

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryBackend emula el storage del navegador: sincronico y con cuota en bytes.
type MemoryBackend struct {
	mu    sync.Mutex
	items map[string][]byte
	used  int
	quota int
}

// NewMemoryBackend crea un backend en memoria. quota <= 0 desactiva el limite.
func NewMemoryBackend(quota int) *MemoryBackend {
	return &MemoryBackend{
		items: make(map[string][]byte),
		quota: quota,
	}
}

func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.items[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (m *MemoryBackend) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	used := m.used
	if old, ok := m.items[key]; ok {
		used -= len(key) + len(old)
	}
	used += len(key) + len(value)
	if m.quota > 0 && used > m.quota {
		return ErrQuotaExceeded
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	m.items[key] = stored
	m.used = used
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		if old, ok := m.items[k]; ok {
			m.used -= len(k) + len(old)
			delete(m.items, k)
		}
	}
	return nil
}

func (m *MemoryBackend) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.items))
	for k := range m.items {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Used devuelve los bytes ocupados (claves + valores).
func (m *MemoryBackend) Used() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.used
}
