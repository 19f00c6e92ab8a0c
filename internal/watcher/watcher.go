// Package watcher observes a vault directory tree and emits normalized
// change events for note files. It is a pure producer: classifying an
// event and acting on it (parsing, indexing) is the consumer's job.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Kind classifies a change event.
type Kind string

const (
	Created  Kind = "created"
	Modified Kind = "modified"
	Deleted  Kind = "deleted"
)

// Event is one observed mutation of a note file. Path is relative to the
// vault root. Events are delivered at least once and may be duplicated
// under bursty edits; events for the same path arrive in observed order.
type Event struct {
	Path string
	Kind Kind
	At   time.Time
}

// Watcher turns raw fsnotify events into Events on a bounded channel.
//
// When the channel is full the oldest queued event is dropped rather than
// blocking the producer; the reconciliation sweep picks up anything lost
// that way. Dropped reports how many events were discarded.
type Watcher struct {
	root    string
	logger  *slog.Logger
	events  chan Event
	dropped atomic.Uint64
}

// New creates a Watcher for the vault rooted at root. queueSize bounds the
// event channel; values < 1 fall back to 1.
func New(root string, queueSize int, logger *slog.Logger) *Watcher {
	if queueSize < 1 {
		queueSize = 1
	}
	return &Watcher{
		root:   root,
		logger: logger,
		events: make(chan Event, queueSize),
	}
}

// Events returns the channel Run delivers on. It is closed when Run
// returns, so consumers may range over it.
func (w *Watcher) Events() <-chan Event { return w.events }

// Dropped returns the number of events discarded due to a full queue.
func (w *Watcher) Dropped() uint64 { return w.dropped.Load() }

// Run watches the vault tree until ctx is cancelled. New directories
// created at runtime are added to the watch list, and note files already
// inside them are announced as created (editors that move a staging
// directory into place would otherwise be missed).
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()
	defer close(w.events)

	if err := addDirsRecursive(fw, w.root); err != nil {
		return err
	}

	w.logger.Info("watcher: started", slog.String("root", w.root))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watcher: stopped")
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handle(fw, ev)

		case watchErr, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func (w *Watcher) handle(fw *fsnotify.Watcher, ev fsnotify.Event) {
	absPath := ev.Name

	// New directories: add to the watch list and announce their contents.
	if ev.Op&fsnotify.Create != 0 {
		if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
			if addErr := addDirsRecursive(fw, absPath); addErr != nil {
				w.logger.Warn("watcher: add new dir failed",
					slog.String("path", absPath),
					slog.String("error", addErr.Error()))
			} else {
				w.logger.Debug("watcher: watching new dir", slog.String("path", absPath))
			}
			w.announceDir(absPath)
			return
		}
	}

	if !strings.HasSuffix(absPath, ".md") {
		return
	}

	rel, relErr := filepath.Rel(w.root, absPath)
	if relErr != nil {
		return
	}

	switch {
	case ev.Op&fsnotify.Create != 0:
		w.enqueue(Event{Path: rel, Kind: Created, At: time.Now()})

	case ev.Op&fsnotify.Write != 0:
		w.enqueue(Event{Path: rel, Kind: Modified, At: time.Now()})

	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		// fsnotify fires Rename on the OLD path only; the new path
		// arrives as a separate Create if it lands in a watched dir.
		w.enqueue(Event{Path: rel, Kind: Deleted, At: time.Now()})
	}
}

// announceDir emits a created event for every note file under dirPath.
func (w *Watcher) announceDir(dirPath string) {
	_ = filepath.WalkDir(dirPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".md") {
			return nil
		}
		rel, relErr := filepath.Rel(w.root, path)
		if relErr != nil {
			return nil
		}
		w.enqueue(Event{Path: rel, Kind: Created, At: time.Now()})
		return nil
	})
}

// enqueue delivers ev, evicting the oldest queued event when full.
func (w *Watcher) enqueue(ev Event) {
	for {
		select {
		case w.events <- ev:
			return
		default:
		}
		select {
		case old := <-w.events:
			w.dropped.Add(1)
			w.logger.Warn("watcher: queue full, dropping oldest",
				slog.String("path", old.Path))
		default:
		}
	}
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fw.Add(path)
		}
		return nil
	})
}
