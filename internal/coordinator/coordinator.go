// Package coordinator drives the reindex pipeline: it consumes watcher
// events, debounces bursts per path, and applies parse+commit passes to
// the index one at a time.
package coordinator

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/commonplace/internal/checksum"
	"github.com/starford/commonplace/internal/index"
	"github.com/starford/commonplace/internal/links"
	"github.com/starford/commonplace/internal/noteid"
	"github.com/starford/commonplace/internal/parser"
	"github.com/starford/commonplace/internal/storage"
	"github.com/starford/commonplace/internal/watcher"
)

// Hook is called after the coordinator settles a path.
// kind is one of "indexed", "removed", "failed".
type Hook func(kind string, path string)

// Options tune the coordinator. Zero values pick the defaults noted below.
type Options struct {
	Debounce      time.Duration // coalescing window per path, default 250ms
	SweepInterval time.Duration // periodic reconcile, 0 disables
	MaxRetries    int           // store-error retries per change, default 5
	Hook          Hook
}

const (
	defaultDebounce   = 250 * time.Millisecond
	defaultMaxRetries = 5
)

// Coordinator owns the write path to the index: every commit and remove
// goes through its Run loop (or a Reconcile call made before Run starts),
// so the store only ever sees one logical writer.
type Coordinator struct {
	idx    index.NoteIndex
	files  storage.Provider
	parse  *parser.Parser
	logger *slog.Logger

	debounce   time.Duration
	sweepEvery time.Duration
	maxRetries int
	hook       Hook

	mu      sync.Mutex
	pending map[string]*change
	gen     uint64

	due  chan string
	done chan struct{}
}

// change tracks one path between the event that announced it and the
// reindex pass that settles it.
type change struct {
	kind     watcher.Kind
	timer    *time.Timer
	gen      uint64
	attempts int
}

// New creates a Coordinator. It does not start any goroutines; call Run.
func New(idx index.NoteIndex, files storage.Provider, parse *parser.Parser, logger *slog.Logger, opts Options) *Coordinator {
	if opts.Debounce <= 0 {
		opts.Debounce = defaultDebounce
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	return &Coordinator{
		idx:        idx,
		files:      files,
		parse:      parse,
		logger:     logger,
		debounce:   opts.Debounce,
		sweepEvery: opts.SweepInterval,
		maxRetries: opts.MaxRetries,
		hook:       opts.Hook,
		pending:    make(map[string]*change),
		due:        make(chan string),
		done:       make(chan struct{}),
	}
}

// Run consumes events until ctx is cancelled or events closes. Paths are
// debounced: rapid successive events for one path collapse into a single
// reindex pass over the final on-disk content. A newer event arriving
// while a pass for the same path is in flight supersedes that pass.
func (c *Coordinator) Run(ctx context.Context, events <-chan watcher.Event) error {
	defer c.stop()

	var sweep <-chan time.Time
	if c.sweepEvery > 0 {
		t := time.NewTicker(c.sweepEvery)
		defer t.Stop()
		sweep = t.C
	}

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("coordinator: stopped")
			return nil

		case ev, ok := <-events:
			if !ok {
				c.logger.Info("coordinator: event channel closed")
				return nil
			}
			c.schedule(ev)

		case path := <-c.due:
			c.settle(ctx, path)

		case <-sweep:
			if err := c.Reconcile(ctx); err != nil {
				c.logger.Warn("coordinator: sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}

// schedule records ev and arms (or re-arms) the debounce timer for its path.
func (c *Coordinator) schedule(ev watcher.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
	p, ok := c.pending[ev.Path]
	if !ok {
		p = &change{}
		c.pending[ev.Path] = p
		p.timer = c.fireAfter(c.debounce, ev.Path)
	} else {
		p.timer.Reset(c.debounce)
	}
	p.kind = ev.Kind
	p.gen = c.gen
	p.attempts = 0
}

// fireAfter arms a timer that delivers path to the Run loop.
func (c *Coordinator) fireAfter(d time.Duration, path string) *time.Timer {
	return time.AfterFunc(d, func() {
		select {
		case c.due <- path:
		case <-c.done:
		}
	})
}

// settle performs the reindex pass for path. It releases the coordinator
// lock around the file read, parse, and store commit; if a newer event
// for the same path lands meanwhile, the result of this pass is discarded
// and the newer timer decides what happens next.
func (c *Coordinator) settle(ctx context.Context, path string) {
	c.mu.Lock()
	p, ok := c.pending[path]
	if !ok {
		c.mu.Unlock()
		return
	}
	kind := p.kind
	gen := p.gen
	c.mu.Unlock()

	var err error
	if kind == watcher.Deleted {
		err = c.removePath(ctx, path)
	} else {
		err = c.reindex(ctx, path)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	cur, ok := c.pending[path]
	if !ok || cur.gen != gen {
		// Superseded while we worked; the newer event owns the path now.
		return
	}
	if err == nil {
		delete(c.pending, path)
		return
	}

	cur.attempts++
	if cur.attempts > c.maxRetries {
		delete(c.pending, path)
		c.logger.Error("coordinator: giving up",
			slog.String("path", path),
			slog.Int("attempts", cur.attempts),
			slog.String("error", err.Error()))
		c.notify("failed", path)
		return
	}

	delay := c.debounce << cur.attempts
	cur.timer = c.fireAfter(delay, path)
	c.logger.Warn("coordinator: retrying",
		slog.String("path", path),
		slog.Int("attempt", cur.attempts),
		slog.Duration("in", delay),
		slog.String("error", err.Error()))
}

// reindex reads, parses, and commits one note file. A nil return means the
// path is settled; an error means the store failed and the change should
// be retried. Parse and link errors settle the path without touching the
// previously indexed version: a broken edit never evicts a good entry.
func (c *Coordinator) reindex(ctx context.Context, path string) error {
	data, err := c.files.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// Deleted between the event and now.
			return c.removePath(ctx, path)
		}
		return err
	}

	sum := checksum.Sum(data)
	prior, err := c.idx.ChecksumByPath(ctx, path)
	if err != nil {
		return err
	}
	if prior == sum {
		c.logger.Debug("coordinator: unchanged", slog.String("path", path))
		return nil
	}

	note, err := c.parse.Parse(data, path)
	if err != nil {
		c.logger.Warn("coordinator: parse failed",
			slog.String("path", path), slog.String("error", err.Error()))
		c.notify("failed", path)
		return nil
	}
	note.Checksum = sum

	outgoing, err := links.Extract(note)
	if err != nil {
		c.logger.Warn("coordinator: malformed link",
			slog.String("path", path), slog.String("error", err.Error()))
		c.notify("failed", path)
		return nil
	}

	if note.ID == "" {
		id, idErr := c.adoptID(ctx, path, sum, note.Module)
		if idErr != nil {
			return idErr
		}
		note.ID = id
		for i := range outgoing {
			outgoing[i].SourceID = id
		}
	}

	if err := c.idx.Commit(ctx, note, outgoing); err != nil {
		return err
	}
	c.logger.Debug("coordinator: indexed",
		slog.String("path", path), slog.String("id", note.ID))
	c.notify("indexed", path)
	return nil
}

// adoptID picks a stable identity for a note file that declares none:
// the ID already indexed at this path (plain edit), else the ID of an
// indexed note with identical content (rename moved the file), else a
// fresh one.
func (c *Coordinator) adoptID(ctx context.Context, path, sum, module string) (string, error) {
	id, err := c.idx.PathID(ctx, path)
	if err != nil {
		return "", err
	}
	if id != "" {
		return id, nil
	}
	id, err = c.idx.IDByChecksum(ctx, sum)
	if err != nil {
		return "", err
	}
	if id != "" {
		return id, nil
	}
	return noteid.New(module)
}

// removePath drops the note indexed at path, if any.
func (c *Coordinator) removePath(ctx context.Context, path string) error {
	id, err := c.idx.PathID(ctx, path)
	if err != nil {
		return err
	}
	if id == "" {
		// Never indexed; nothing to do.
		return nil
	}
	if err := c.idx.Remove(ctx, id); err != nil {
		return err
	}
	c.logger.Debug("coordinator: removed",
		slog.String("path", path), slog.String("id", id))
	c.notify("removed", path)
	return nil
}

// Reconcile walks the vault and brings the index up to date: new or
// changed files are reindexed, index entries whose files are gone are
// removed. It is called once at startup before live events are trusted,
// and periodically when SweepInterval is set.
func (c *Coordinator) Reconcile(ctx context.Context) error {
	metas, err := c.files.List("")
	if err != nil {
		return err
	}
	checksums, err := c.idx.AllChecksums(ctx)
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}
		if checksums[m.Path] == m.Checksum {
			continue
		}
		if err := c.reindex(ctx, m.Path); err != nil {
			c.logger.Warn("reconcile: index failed",
				slog.String("path", m.Path), slog.String("error", err.Error()))
		}
	}

	for p := range checksums {
		if _, ok := disk[p]; ok {
			continue
		}
		if err := c.removePath(ctx, p); err != nil {
			c.logger.Warn("reconcile: remove failed",
				slog.String("path", p), slog.String("error", err.Error()))
		}
	}
	return nil
}

func (c *Coordinator) notify(kind, path string) {
	if c.hook != nil {
		c.hook(kind, path)
	}
}

// stop cancels pending timers and releases any timer goroutine blocked on due.
func (c *Coordinator) stop() {
	close(c.done)
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.pending {
		p.timer.Stop()
	}
	c.pending = make(map[string]*change)
}
