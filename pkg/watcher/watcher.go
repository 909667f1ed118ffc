package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"depsentry/pkg/logging"
)

// ChangeEvent represents a batch of watched-file changes
type ChangeEvent struct {
	Paths     []string
	Timestamp time.Time
}

// FileWatcher watches the audit's input files (resolved metadata and policy)
// for changes. The parent directories are watched rather than the files
// themselves because editors typically replace files on save.
type FileWatcher struct {
	watcher *fsnotify.Watcher
	paths   map[string]bool // cleaned file paths to react to
	events  chan ChangeEvent
}

// NewFileWatcher creates a watcher for the given files
func NewFileWatcher(paths ...string) (*FileWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	fw := &FileWatcher{
		watcher: w,
		paths:   make(map[string]bool),
		events:  make(chan ChangeEvent, 100),
	}

	dirs := make(map[string]bool)
	for _, p := range paths {
		if p == "" {
			continue
		}
		clean := filepath.Clean(p)
		fw.paths[clean] = true
		dirs[filepath.Dir(clean)] = true
	}

	for dir := range dirs {
		if err := w.Add(dir); err != nil {
			w.Close()
			return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}

	return fw, nil
}

// Start begins watching for file changes
func (fw *FileWatcher) Start(ctx context.Context) {
	logging.Info("watching input files", "count", len(fw.paths))
	go fw.processEvents(ctx)
}

// processEvents filters raw fsnotify events down to the watched files and
// batches bursts before emitting
func (fw *FileWatcher) processEvents(ctx context.Context) {
	var pending []string

	flushTimer := time.NewTimer(100 * time.Millisecond)
	flushTimer.Stop()

	flush := func() {
		if len(pending) > 0 {
			fw.events <- ChangeEvent{Paths: pending, Timestamp: time.Now()}
			pending = nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			fw.watcher.Close()
			close(fw.events)
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}

			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if !fw.paths[filepath.Clean(event.Name)] {
				continue
			}

			pending = append(pending, event.Name)
			flushTimer.Reset(100 * time.Millisecond)

		case <-flushTimer.C:
			flush()

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			logging.Error("watcher error", "error", err)
		}
	}
}

// Events returns the channel of change events
func (fw *FileWatcher) Events() <-chan ChangeEvent {
	return fw.events
}

// Stop stops the file watcher
func (fw *FileWatcher) Stop() error {
	return fw.watcher.Close()
}
