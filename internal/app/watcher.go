package app

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"heimdall/internal/logging"

	"github.com/fsnotify/fsnotify"
)

// Watcher reports changes to a fixed set of files.
// Params: absolute file paths, change callback, and logger.
// Returns: fsnotify-backed watcher; parent directories are watched so atomic renames are seen.
type Watcher struct {
	watcher  *fsnotify.Watcher
	files    map[string]struct{}
	onChange func(path string)
	logger   *slog.Logger
	once     sync.Once
}

// NewWatcher starts watching the directories of paths.
// Params: files to track and callback invoked once per relevant event.
// Returns: watcher or fsnotify setup error.
func NewWatcher(paths []string, onChange func(path string), logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	w := &Watcher{
		watcher:  fsw,
		files:    make(map[string]struct{}, len(paths)),
		onChange: onChange,
		logger:   logger,
	}
	dirs := make(map[string]struct{}, len(paths))
	for _, path := range paths {
		abs, err := filepath.Abs(path)
		if err != nil {
			_ = fsw.Close()
			return nil, fmt.Errorf("resolve %q: %w", path, err)
		}
		w.files[abs] = struct{}{}
		dirs[filepath.Dir(abs)] = struct{}{}
	}
	for dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			_ = fsw.Close()
			return nil, fmt.Errorf("watch %q: %w", dir, err)
		}
	}
	return w, nil
}

// Run forwards events until ctx ends or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}
			abs, err := filepath.Abs(event.Name)
			if err != nil {
				continue
			}
			if _, tracked := w.files[abs]; !tracked {
				continue
			}
			w.logger.Debug("watched file changed", "path", abs, "op", event.Op.String())
			w.onChange(abs)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", "error", err.Error())
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		err = w.watcher.Close()
	})
	return err
}
