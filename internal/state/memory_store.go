package state

import (
	"context"
	"sync"

	"heimdall/internal/domain"
)

// MemoryStore keeps the ledger snapshot in process memory.
// Params: optional revision tracking for CAS semantics.
// Returns: in-memory state store for tests and ephemeral runs.
type MemoryStore struct {
	mu       sync.Mutex
	snapshot domain.LedgerSnapshot
	revision uint64
	loaded   uint64
	saves    int
}

// NewMemoryStore creates an empty memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snapshot: domain.NewLedgerSnapshot()}
}

// Load returns a deep copy of the stored snapshot and remembers its revision.
// Params: ctx is unused.
// Returns: snapshot copy.
func (s *MemoryStore) Load(_ context.Context) (domain.LedgerSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loaded = s.revision
	return s.snapshot.Clone(), nil
}

// Save stores a deep copy of snapshot.
// Params: ctx is unused; snapshot to persist.
// Returns: ErrConflict when Seed replaced the document after the last Load/Save.
func (s *MemoryStore) Save(_ context.Context, snapshot domain.LedgerSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded != s.revision {
		return ErrConflict
	}
	s.snapshot = normalize(snapshot).Clone()
	s.revision++
	s.loaded = s.revision
	s.saves++
	return nil
}

// Seed replaces the stored snapshot as if written by another process.
// Params: snapshot to store.
// Returns: none.
func (s *MemoryStore) Seed(snapshot domain.LedgerSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = normalize(snapshot).Clone()
	s.revision++
}

// Saves returns the number of successful Save calls.
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// Close is a no-op for memory storage.
func (s *MemoryStore) Close() error {
	return nil
}
