package keystore

import (
	"sync"

	"github.com/TheMichaelB/walletseal/internal/events"
)

// MemoryStore keeps entries for the lifetime of the process.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	closed  bool
	logger  *events.Logger
}

// NewMemoryStore creates an in-process key store.
func NewMemoryStore(logger *events.Logger) *MemoryStore {
	if logger == nil {
		logger = events.NewNopLogger()
	}
	return &MemoryStore{
		entries: make(map[string]*Entry),
		logger:  logger.WithField("component", "memory_key_store"),
	}
}

// Generate creates a new entry.
func (m *MemoryStore) Generate(alias string, spec KeySpec) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrStoreClosed
	}
	if _, ok := m.entries[alias]; ok {
		return nil, ErrEntryExists
	}

	entry, err := newEntry(alias, spec)
	if err != nil {
		return nil, err
	}
	m.entries[alias] = entry

	m.logger.WithField("alias", alias).Debug("Generated key entry")
	return entry, nil
}

// Load returns the entry for alias.
func (m *MemoryStore) Load(alias string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}
	entry, ok := m.entries[alias]
	if !ok {
		return nil, ErrEntryNotFound
	}
	return entry, nil
}

// Delete removes alias.
func (m *MemoryStore) Delete(alias string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	delete(m.entries, alias)
	return nil
}

// Close drops all entries.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = make(map[string]*Entry)
	m.closed = true
	return nil
}
