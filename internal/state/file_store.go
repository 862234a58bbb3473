package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"heimdall/internal/domain"
)

// FileStore keeps the ledger snapshot in one JSON document on local disk.
// Params: document path; writes go through a temp file and rename.
// Returns: file-backed state store.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a file store and its parent directory.
// Params: snapshot path.
// Returns: store or directory creation error.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("state file path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create state dir %q: %w", dir, err)
		}
	}
	return &FileStore{path: path}, nil
}

// Path returns the snapshot location.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the snapshot; a missing file yields empty partitions.
// Params: ctx is unused.
// Returns: decoded snapshot or read/decode error.
func (s *FileStore) Load(_ context.Context) (domain.LedgerSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	body, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.NewLedgerSnapshot(), nil
		}
		return domain.LedgerSnapshot{}, fmt.Errorf("read state file %q: %w", s.path, err)
	}
	if len(body) == 0 {
		return domain.NewLedgerSnapshot(), nil
	}
	var snapshot domain.LedgerSnapshot
	if err := json.Unmarshal(body, &snapshot); err != nil {
		return domain.LedgerSnapshot{}, fmt.Errorf("decode state file %q: %w", s.path, err)
	}
	return normalize(snapshot), nil
}

// Save replaces the snapshot atomically.
// Params: ctx is unused; snapshot to persist.
// Returns: encode/write/rename error.
func (s *FileStore) Save(_ context.Context, snapshot domain.LedgerSnapshot) error {
	body, err := json.MarshalIndent(normalize(snapshot), "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(body); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return fmt.Errorf("replace state file %q: %w", s.path, err)
	}
	return nil
}

// Close is a no-op for file storage.
func (s *FileStore) Close() error {
	return nil
}
