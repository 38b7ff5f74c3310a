// Package store implements the Store component: the authoritative,
// versioned recordID->Record mapping. The default backend is an
// in-memory map; internal/store/redisstore provides an optional
// persisted backend behind the same interface.
package store

import (
	"sync"

	"replistore/internal/record"
)

// Backend is the minimal persistence contract a Store implementation
// must satisfy. The in-memory default and internal/store/redisstore both
// implement it.
type Backend interface {
	Get(recordID string) (record.Record, bool, error)
	Put(r record.Record) error
	// Range calls fn for every record currently in the backend, in
	// unspecified order. fn returning false stops iteration early.
	Range(fn func(record.Record) bool) error
	Len() (int, error)
}

// Store wraps a Backend with the concurrency discipline the rest of the
// package expects: the core replication engine is single-threaded per
// spec, but the optional debug HTTP surface reads concurrently with a
// node's own goroutine, so access is still guarded by a mutex.
type Store struct {
	mu      sync.RWMutex
	backend Backend
}

// New returns a Store backed by an in-memory map.
func New() *Store {
	return &Store{backend: newMemBackend()}
}

// NewWithBackend returns a Store backed by the given Backend, e.g. a
// redisstore.Store for a persisted node.
func NewWithBackend(b Backend) *Store {
	return &Store{backend: b}
}

// Get returns the record for recordID, if present.
func (s *Store) Get(recordID string) (record.Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.backend.Get(recordID)
}

// Put installs or overwrites the record for r.RecordID.
func (s *Store) Put(r record.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend.Put(r)
}

// Range calls fn for every record currently in the store. fn must not
// call back into the Store.
func (s *Store) Range(fn func(record.Record) bool) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.backend.Range(fn)
}

// Len returns the number of records in the store.
func (s *Store) Len() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.backend.Len()
}

// memBackend is the default in-memory Backend.
type memBackend struct {
	records map[string]record.Record
}

func newMemBackend() *memBackend {
	return &memBackend{records: make(map[string]record.Record)}
}

func (m *memBackend) Get(recordID string) (record.Record, bool, error) {
	r, ok := m.records[recordID]
	return r, ok, nil
}

func (m *memBackend) Put(r record.Record) error {
	m.records[r.RecordID] = r
	return nil
}

func (m *memBackend) Range(fn func(record.Record) bool) error {
	for _, r := range m.records {
		if !fn(r) {
			break
		}
	}
	return nil
}

func (m *memBackend) Len() (int, error) {
	return len(m.records), nil
}
