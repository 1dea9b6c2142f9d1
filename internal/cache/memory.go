package cache

import (
	"sort"
	"sync"
)

// Memory is an in-memory KV used in tests and as a fallback when no durable
// store is available. Same contract as Store, nothing persisted.
type Memory struct {
	mu         sync.RWMutex
	namespaces map[string]map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{namespaces: make(map[string]map[string][]byte)}
}

func (m *Memory) Get(namespace, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ns, ok := m.namespaces[namespace]
	if !ok {
		return nil, ErrNoNamespace
	}
	v, ok := ns[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *Memory) Put(namespace, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ns, ok := m.namespaces[namespace]
	if !ok {
		ns = make(map[string][]byte)
		m.namespaces[namespace] = ns
	}
	ns[key] = append([]byte(nil), value...)
	return nil
}

func (m *Memory) Delete(namespace, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ns, ok := m.namespaces[namespace]; ok {
		delete(ns, key)
	}
	return nil
}

func (m *Memory) Match(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.namespaces))
	for name := range m.namespaces {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if v, ok := m.namespaces[name][key]; ok {
			return append([]byte(nil), v...), nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) Namespaces() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.namespaces))
	for name := range m.namespaces {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *Memory) EnsureNamespace(namespace string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.namespaces[namespace]; !ok {
		m.namespaces[namespace] = make(map[string][]byte)
	}
	return nil
}

func (m *Memory) DropNamespace(namespace string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.namespaces, namespace)
	return nil
}
