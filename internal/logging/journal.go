package logging

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"heimdall/internal/config"
)

const journalTimeLayout = "2006-01-02 15:04:05"

// Journal appends one human-readable line per breach observation.
// Params: rotating writer guarded by a mutex.
// Returns: alert journal used by the manager.
type Journal struct {
	mu sync.Mutex
	w  io.WriteCloser
}

// OpenJournal creates the journal writer for the configured path.
// Params: journal settings; a disabled journal returns nil without error.
// Returns: journal or directory creation error.
func OpenJournal(cfg config.JournalConfig) (*Journal, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	writer, err := newRotatingWriter(cfg.Path, cfg.MaxSizeMB, cfg.MaxBackups, 0, false)
	if err != nil {
		return nil, fmt.Errorf("open alert journal: %w", err)
	}
	return &Journal{w: writer}, nil
}

// NewJournal wraps an arbitrary writer, mainly for tests.
func NewJournal(w io.WriteCloser) *Journal {
	return &Journal{w: w}
}

// Record writes "[YYYY-MM-DD HH:MM:SS] nickname (hostname): message".
// Params: timestamp, server nickname, hostname, and message.
// Returns: write error. A nil journal ignores the call.
func (j *Journal) Record(at time.Time, nickname, hostname, message string) error {
	if j == nil {
		return nil
	}
	line := fmt.Sprintf("[%s] %s (%s): %s\n", at.Format(journalTimeLayout), nickname, hostname, strings.ReplaceAll(message, "\n", " "))
	j.mu.Lock()
	defer j.mu.Unlock()
	_, err := io.WriteString(j.w, line)
	return err
}

// Close closes the underlying writer.
func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.w.Close()
}
