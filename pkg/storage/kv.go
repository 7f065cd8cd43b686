package storage

import (
	"sort"
	"sync"
)

// Storage keys of the persisted aggregates
const (
	NotesKey     = "temp_notes_v2"
	NotebooksKey = "temp_notes_notebooks"
)

// KV is a string key-value persistence backend
type KV interface {
	// Get returns the value for key and whether it exists
	Get(key string) (string, bool, error)
	Set(key, value string) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(key string) error
	Keys() ([]string, error)
}

// MemoryKV is an in-process KV, used for tests and ephemeral sessions
type MemoryKV struct {
	mutex sync.RWMutex
	data  map[string]string
}

// NewMemoryKV creates an empty in-memory KV
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string]string)}
}

// Get returns the value stored under key
func (m *MemoryKV) Get(key string) (string, bool, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

// Set stores value under key
func (m *MemoryKV) Set(key, value string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.data[key] = value
	return nil
}

// Delete removes key
func (m *MemoryKV) Delete(key string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.data, key)
	return nil
}

// Keys returns all keys in sorted order
func (m *MemoryKV) Keys() ([]string, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}
