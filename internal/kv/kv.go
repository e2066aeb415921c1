// Package kv defines the key-value persistence contract the discipline core
// is written against, plus an in-memory implementation.
package kv

import (
	"context"
	"errors"
	"sync"
)

// ErrNotLoaded is returned when a store is used before Init or Load.
var ErrNotLoaded = errors.New("storage not loaded")

// Store is the persistence collaborator: single-key string blobs.
// Set and Remove must be durable before they return.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// Provider is a Store with a lifecycle, mirroring how backends are opened
// by the CLI.
type Provider interface {
	Store

	// Init creates the backing storage (schema, directories) if needed.
	Init() error
	// Load opens already-initialized storage.
	Load() error
	Close() error
	// Location returns a non-sensitive description of where data lives.
	Location() string
}

// Memory is a process-local Provider used by tests and ephemeral sessions.
type Memory struct {
	mu   sync.RWMutex
	data map[string]string
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

func (m *Memory) Init() error  { return nil }
func (m *Memory) Load() error  { return nil }
func (m *Memory) Close() error { return nil }

func (m *Memory) Location() string { return ":memory:" }

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *Memory) Remove(_ context.Context, key string) error {
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
