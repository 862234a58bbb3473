package state

import (
	"context"
	"errors"

	"heimdall/internal/domain"
)

var (
	// ErrNotFound indicates that no snapshot has been persisted yet.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates that another writer replaced the snapshot since it was loaded.
	ErrConflict = errors.New("revision conflict")
)

// Store persists the alert ledger as one snapshot document.
// Params: Load/Save round-trip both partitions atomically.
// Returns: backend persistence behavior.
type Store interface {
	Load(ctx context.Context) (domain.LedgerSnapshot, error)
	Save(ctx context.Context, snapshot domain.LedgerSnapshot) error
	Close() error
}

// normalize guarantees allocated partitions after decoding.
func normalize(snapshot domain.LedgerSnapshot) domain.LedgerSnapshot {
	if snapshot.Active == nil {
		snapshot.Active = map[domain.Fingerprint]domain.AlertRecord{}
	}
	if snapshot.Resolved == nil {
		snapshot.Resolved = map[domain.Fingerprint]domain.AlertRecord{}
	}
	return snapshot
}
