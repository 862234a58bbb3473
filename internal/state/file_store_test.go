package state

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestFileStoreMissingFileLoadsEmpty(t *testing.T) {
	t.Parallel()

	store, err := NewFileStore(filepath.Join(t.TempDir(), "nested", "alert_status.json"))
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	snapshot, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if snapshot.Active == nil || snapshot.Resolved == nil {
		t.Fatalf("expected allocated partitions")
	}
	if len(snapshot.Active)+len(snapshot.Resolved) != 0 {
		t.Fatalf("expected empty snapshot, got %+v", snapshot)
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "alert_status.json")
	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	if err := store.Save(context.Background(), sampleSnapshot(now)); err != nil {
		t.Fatalf("save: %v", err)
	}

	body, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	for _, key := range []string{`"active_alerts"`, `"resolved_alerts"`, `"first_detected"`, `"resolved_time"`} {
		if !strings.Contains(string(body), key) {
			t.Fatalf("expected %s in persisted document:\n%s", key, body)
		}
	}

	reopened, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	loaded, err := reopened.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := loaded.Active["aaa"]; got.Server != "web1" || !got.FirstDetected.Equal(now) {
		t.Fatalf("unexpected active record: %+v", got)
	}
	if got := loaded.Resolved["bbb"]; got.ResolvedTime == nil || !got.ResolvedTime.Equal(now.Add(time.Hour)) {
		t.Fatalf("unexpected resolved record: %+v", got)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected temp files to be cleaned up, found %d entries", len(entries))
	}
}

func TestFileStoreCorruptDocumentFails(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "alert_status.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	if _, err := store.Load(context.Background()); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestFileStoreSaveIntoMissingDirectoryFails(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := NewFileStore(filepath.Join(dir, "sub", "state.json"))
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	if err := os.RemoveAll(filepath.Join(dir, "sub")); err != nil {
		t.Fatalf("remove dir: %v", err)
	}
	if err := store.Save(context.Background(), sampleSnapshot(time.Now().UTC())); err == nil {
		t.Fatalf("expected save error when directory vanished")
	}
}
