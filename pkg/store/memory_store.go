package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Validate that MemoryStore implements the Store interface.
var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory Store used by tests.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string]map[string]json.RawMessage // type -> namespace -> name
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]map[string]map[string]json.RawMessage),
	}
}

// Open is a no-op for the memory store.
func (m *MemoryStore) Open(path string) error { return nil }

// Close is a no-op for the memory store.
func (m *MemoryStore) Close() error { return nil }

// Create stores a new resource.
func (m *MemoryStore) Create(ctx context.Context, resourceType, namespace, name string, resource interface{}) error {
	data, err := json.Marshal(resource)
	if err != nil {
		return fmt.Errorf("failed to serialize resource: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	nsMap := m.data[resourceType]
	if nsMap == nil {
		nsMap = make(map[string]map[string]json.RawMessage)
		m.data[resourceType] = nsMap
	}
	objMap := nsMap[namespace]
	if objMap == nil {
		objMap = make(map[string]json.RawMessage)
		nsMap[namespace] = objMap
	}
	if _, exists := objMap[name]; exists {
		return fmt.Errorf("%s/%s/%s: %w", resourceType, namespace, name, ErrAlreadyExists)
	}
	objMap[name] = data
	return nil
}

// Get loads a resource into the given value.
func (m *MemoryStore) Get(ctx context.Context, resourceType, namespace, name string, resource interface{}) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.data[resourceType][namespace][name]
	if !ok {
		return fmt.Errorf("%s/%s/%s: %w", resourceType, namespace, name, ErrNotFound)
	}
	return json.Unmarshal(data, resource)
}

// List loads all resources of a type in a namespace into a slice pointer.
func (m *MemoryStore) List(ctx context.Context, resourceType, namespace string, into interface{}) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var items []json.RawMessage
	for _, data := range m.data[resourceType][namespace] {
		items = append(items, data)
	}
	return unmarshalList(items, into)
}

// Update replaces an existing resource.
func (m *MemoryStore) Update(ctx context.Context, resourceType, namespace, name string, resource interface{}) error {
	data, err := json.Marshal(resource)
	if err != nil {
		return fmt.Errorf("failed to serialize resource: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.data[resourceType][namespace][name]; !ok {
		return fmt.Errorf("%s/%s/%s: %w", resourceType, namespace, name, ErrNotFound)
	}
	m.data[resourceType][namespace][name] = data
	return nil
}

// Delete removes a resource.
func (m *MemoryStore) Delete(ctx context.Context, resourceType, namespace, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.data[resourceType][namespace][name]; !ok {
		return fmt.Errorf("%s/%s/%s: %w", resourceType, namespace, name, ErrNotFound)
	}
	delete(m.data[resourceType][namespace], name)
	return nil
}
