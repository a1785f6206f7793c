// Package cache implements the local cache: a durable, synchronous key-value
// store holding each tenant's snapshot of every entity collection plus the
// active sessions.
package cache

import (
	"fmt"
	"sync"

	"abhyasika/internal/config"
)

// Cache is the local cache contract. Get reports found=false for absent keys.
type Cache interface {
	Get(key string) (value string, found bool, err error)
	Set(key, value string) error
	Remove(key string) error
}

// Open builds the configured backend, fronted by an in-process L1 when
// cfg.L1MaxBytes is positive.
func Open(cfg config.Cache) (Cache, func() error, error) {
	var (
		backend Cache
		closer  func() error
	)
	switch cfg.Backend {
	case "sqlite":
		s, err := OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		backend, closer = s, s.Close
	case "redis":
		r := NewRedis(cfg)
		backend, closer = r, r.Close
	case "memory":
		backend, closer = NewMemory(), func() error { return nil }
	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}

	if cfg.L1MaxBytes <= 0 || cfg.Backend == "memory" {
		return backend, closer, nil
	}
	tiered, err := NewTiered(backend, cfg.L1MaxBytes)
	if err != nil {
		_ = closer()
		return nil, nil, err
	}
	return tiered, func() error {
		tiered.Close()
		return closer()
	}, nil
}

// Memory is a process-local Cache used for the memory backend and in tests.
type Memory struct {
	mu   sync.RWMutex
	data map[string]string
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

func (m *Memory) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *Memory) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *Memory) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Len returns the number of stored keys.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
