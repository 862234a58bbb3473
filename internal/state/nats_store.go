package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"heimdall/internal/config"
	"heimdall/internal/domain"

	"github.com/nats-io/nats.go"
)

// NATSStore persists the ledger snapshot as one key in a JetStream KV bucket.
// Params: NATS connection, KV bucket handle, and snapshot key.
// Returns: KV-backed state store with revision-checked writes.
type NATSStore struct {
	nc       *nats.Conn
	kv       nats.KeyValue
	key      string
	mu       sync.Mutex
	revision uint64
}

// NewNATSStore connects to NATS and opens (or creates) the ledger bucket.
// Params: NATS ledger settings from config.
// Returns: initialized NATS store or setup error.
func NewNATSStore(settings config.NATSLedgerConfig) (*NATSStore, error) {
	nc, err := nats.Connect(strings.Join(settings.URL, ","), nats.Name("heimdall-ledger"))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	kv, err := js.KeyValue(settings.Bucket)
	if err != nil {
		if !settings.AllowCreateBucket {
			nc.Close()
			return nil, fmt.Errorf("open ledger bucket %q: %w", settings.Bucket, err)
		}
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket:      settings.Bucket,
			Description: "heimdall alert ledger",
			History:     1,
		})
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("create ledger bucket %q: %w", settings.Bucket, err)
		}
	}

	return &NATSStore{nc: nc, kv: kv, key: settings.Key}, nil
}

// Load reads the snapshot key and remembers its revision.
// Params: ctx is unused by the legacy KV API.
// Returns: snapshot, empty partitions when the key is absent, or decode error.
func (s *NATSStore) Load(_ context.Context) (domain.LedgerSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.kv.Get(s.key)
	if err != nil {
		if errors.Is(err, nats.ErrKeyNotFound) {
			s.revision = 0
			return domain.NewLedgerSnapshot(), nil
		}
		return domain.LedgerSnapshot{}, fmt.Errorf("get snapshot: %w", err)
	}

	var snapshot domain.LedgerSnapshot
	if err := json.Unmarshal(entry.Value(), &snapshot); err != nil {
		return domain.LedgerSnapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	s.revision = entry.Revision()
	return normalize(snapshot), nil
}

// Save writes the snapshot with compare-and-set on the last seen revision.
// Params: ctx is unused; snapshot to persist.
// Returns: ErrConflict when another process wrote the key in between.
func (s *NATSStore) Save(_ context.Context, snapshot domain.LedgerSnapshot) error {
	body, err := json.Marshal(normalize(snapshot))
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var rev uint64
	if s.revision == 0 {
		rev, err = s.kv.Create(s.key, body)
	} else {
		rev, err = s.kv.Update(s.key, body, s.revision)
	}
	if err != nil {
		if errors.Is(err, nats.ErrKeyExists) || strings.Contains(strings.ToLower(err.Error()), "wrong last sequence") {
			return ErrConflict
		}
		return fmt.Errorf("put snapshot: %w", err)
	}
	s.revision = rev
	return nil
}

// Close closes underlying NATS connection.
func (s *NATSStore) Close() error {
	s.nc.Close()
	return nil
}
