package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/starford/commonplace/internal/apperr"
	"github.com/starford/commonplace/internal/index"
	"github.com/starford/commonplace/internal/models"
	"github.com/starford/commonplace/internal/noteid"
	"github.com/starford/commonplace/internal/parser"
	"github.com/starford/commonplace/internal/storage"
	"github.com/starford/commonplace/internal/testutil"
	"github.com/starford/commonplace/internal/watcher"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

type env struct {
	t     *testing.T
	vault string
	files storage.Provider
	db    *index.DB
	parse *parser.Parser

	mu    sync.Mutex
	hooks []string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	vault, files := testutil.TestVault(t)
	return &env{
		t:     t,
		vault: vault,
		files: files,
		db:    testutil.TestDB(t),
		parse: parser.New(testutil.TestRegistry(t, testutil.TasksModule())),
	}
}

// coordinator builds a Coordinator over the env, recording every hook call.
// idx defaults to the env database when nil.
func (e *env) coordinator(idx index.NoteIndex, opts Options) *Coordinator {
	if idx == nil {
		idx = e.db
	}
	opts.Hook = func(kind, path string) {
		e.mu.Lock()
		e.hooks = append(e.hooks, kind+":"+path)
		e.mu.Unlock()
	}
	return New(idx, e.files, e.parse, testLogger(), opts)
}

// start runs c in the background and returns the channel to feed it.
func (e *env) start(c *Coordinator) chan<- watcher.Event {
	events := make(chan watcher.Event, 16)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = c.Run(ctx, events)
		close(done)
	}()
	e.t.Cleanup(func() {
		cancel()
		<-done
	})
	return events
}

func (e *env) saw(entry string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, h := range e.hooks {
		if h == entry {
			return true
		}
	}
	return false
}

func (e *env) count(entry string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, h := range e.hooks {
		if h == entry {
			n++
		}
	}
	return n
}

func (e *env) write(path, content string) {
	e.t.Helper()
	if err := e.files.Write(path, []byte(content)); err != nil {
		e.t.Fatalf("write %s: %v", path, err)
	}
}

func (e *env) pathID(path string) string {
	e.t.Helper()
	id, err := e.db.PathID(context.Background(), path)
	if err != nil {
		e.t.Fatalf("path id %s: %v", path, err)
	}
	return id
}

func TestReconcile_IndexesVault(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.write("plain.md", "# Plain Note\nBody.\n")
	e.write("tasks/ship.md", "---\nid: tasks-27Q4\nmodule: tasks\nstatus: todo\n---\n# Ship\n")

	c := e.coordinator(nil, Options{})
	if err := c.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	// The declared id survives; the bare file gets a minted one.
	if got := e.pathID("tasks/ship.md"); got != "tasks-27Q4" {
		t.Errorf("declared id = %q", got)
	}
	minted := e.pathID("plain.md")
	if !noteid.Valid(minted) {
		t.Errorf("minted id = %q, want valid", minted)
	}
	if !e.saw("indexed:plain.md") || !e.saw("indexed:tasks/ship.md") {
		t.Errorf("hooks = %v", e.hooks)
	}
}

func TestReconcile_SecondPassIsQuiet(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.write("a.md", "# A\n")
	c := e.coordinator(nil, Options{})
	if err := c.Reconcile(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.Reconcile(ctx); err != nil {
		t.Fatal(err)
	}
	if got := e.count("indexed:a.md"); got != 1 {
		t.Errorf("indexed %d times, want 1 (checksum unchanged)", got)
	}
}

func TestReconcile_RemovesMissing(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.write("gone.md", "# Gone\n")
	c := e.coordinator(nil, Options{})
	if err := c.Reconcile(ctx); err != nil {
		t.Fatal(err)
	}
	if e.pathID("gone.md") == "" {
		t.Fatal("precondition: note should be indexed")
	}

	if err := e.files.Delete("gone.md"); err != nil {
		t.Fatal(err)
	}
	if err := c.Reconcile(ctx); err != nil {
		t.Fatal(err)
	}
	if id := e.pathID("gone.md"); id != "" {
		t.Errorf("stale entry survives, id = %q", id)
	}
	if !e.saw("removed:gone.md") {
		t.Errorf("hooks = %v", e.hooks)
	}
}

func TestReconcile_RenameKeepsIdentity(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.write("old.md", "# Stable Identity\n")
	c := e.coordinator(nil, Options{})
	if err := c.Reconcile(ctx); err != nil {
		t.Fatal(err)
	}
	id := e.pathID("old.md")
	if id == "" {
		t.Fatal("precondition: note should be indexed")
	}

	if err := e.files.Move("old.md", "renamed.md"); err != nil {
		t.Fatal(err)
	}
	if err := c.Reconcile(ctx); err != nil {
		t.Fatal(err)
	}

	// Identical content at a new path adopts the old id; the old path is gone.
	if got := e.pathID("renamed.md"); got != id {
		t.Errorf("renamed id = %q, want %q", got, id)
	}
	if got := e.pathID("old.md"); got != "" {
		t.Errorf("old path still indexed as %q", got)
	}
}

func TestRun_IndexesOnEvent(t *testing.T) {
	e := newEnv(t)
	c := e.coordinator(nil, Options{Debounce: 20 * time.Millisecond})
	events := e.start(c)

	e.write("live.md", "# Live\n")
	events <- watcher.Event{Path: "live.md", Kind: watcher.Created, At: time.Now()}

	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return e.saw("indexed:live.md")
	}, "created event should index the note")
	if e.pathID("live.md") == "" {
		t.Error("note missing from index")
	}
}

func TestRun_DebounceCollapsesBursts(t *testing.T) {
	e := newEnv(t)
	c := e.coordinator(nil, Options{Debounce: 50 * time.Millisecond})
	events := e.start(c)

	e.write("burst.md", "# Burst\n")
	for i := 0; i < 5; i++ {
		events <- watcher.Event{Path: "burst.md", Kind: watcher.Modified, At: time.Now()}
	}

	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return e.saw("indexed:burst.md")
	}, "burst should settle into one indexed pass")

	time.Sleep(200 * time.Millisecond)
	if got := e.count("indexed:burst.md"); got != 1 {
		t.Errorf("indexed %d times, want 1", got)
	}
}

func TestRun_DeleteRemoves(t *testing.T) {
	e := newEnv(t)
	c := e.coordinator(nil, Options{Debounce: 20 * time.Millisecond})
	events := e.start(c)

	e.write("del.md", "# Delete Me\n")
	events <- watcher.Event{Path: "del.md", Kind: watcher.Created, At: time.Now()}
	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return e.saw("indexed:del.md")
	}, "precondition: note should be indexed")

	if err := e.files.Delete("del.md"); err != nil {
		t.Fatal(err)
	}
	events <- watcher.Event{Path: "del.md", Kind: watcher.Deleted, At: time.Now()}
	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return e.saw("removed:del.md")
	}, "deleted event should drop the note")
	if id := e.pathID("del.md"); id != "" {
		t.Errorf("note still indexed as %q", id)
	}
}

func TestRun_ParseFailureKeepsPriorVersion(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	c := e.coordinator(nil, Options{Debounce: 20 * time.Millisecond})
	events := e.start(c)

	e.write("tasks/t.md", "---\nmodule: tasks\nstatus: todo\n---\n# Good\n")
	events <- watcher.Event{Path: "tasks/t.md", Kind: watcher.Created, At: time.Now()}
	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return e.saw("indexed:tasks/t.md")
	}, "precondition: good version should index")
	id := e.pathID("tasks/t.md")

	// A broken edit settles as failed and leaves the good entry alone.
	e.write("tasks/t.md", "---\nmodule: tasks\nstatus: bogus\n---\n# Bad\n")
	events <- watcher.Event{Path: "tasks/t.md", Kind: watcher.Modified, At: time.Now()}
	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return e.saw("failed:tasks/t.md")
	}, "broken edit should report failed")

	got, err := e.db.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("prior version evicted: %v", err)
	}
	if got.Title != "Good" {
		t.Errorf("title = %q, want prior version intact", got.Title)
	}
}

func TestRun_UnchangedContentShortCircuits(t *testing.T) {
	e := newEnv(t)
	c := e.coordinator(nil, Options{Debounce: 20 * time.Millisecond})
	events := e.start(c)

	e.write("same.md", "# Same\n")
	events <- watcher.Event{Path: "same.md", Kind: watcher.Created, At: time.Now()}
	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return e.saw("indexed:same.md")
	}, "precondition: note should be indexed")

	// Touch without a content change: the checksum short-circuit skips the
	// commit and no hook fires.
	events <- watcher.Event{Path: "same.md", Kind: watcher.Modified, At: time.Now()}
	time.Sleep(200 * time.Millisecond)
	if got := e.count("indexed:same.md"); got != 1 {
		t.Errorf("indexed %d times, want 1", got)
	}
}

func TestRun_EditKeepsMintedID(t *testing.T) {
	e := newEnv(t)
	c := e.coordinator(nil, Options{Debounce: 20 * time.Millisecond})
	events := e.start(c)

	e.write("evolving.md", "# First Draft\n")
	events <- watcher.Event{Path: "evolving.md", Kind: watcher.Created, At: time.Now()}
	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return e.pathID("evolving.md") != ""
	}, "precondition: note should be indexed")
	id := e.pathID("evolving.md")

	e.write("evolving.md", "# Second Draft\nNew text.\n")
	events <- watcher.Event{Path: "evolving.md", Kind: watcher.Modified, At: time.Now()}
	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return e.count("indexed:evolving.md") == 2
	}, "edit should reindex")

	if got := e.pathID("evolving.md"); got != id {
		t.Errorf("id changed across edit: %q -> %q", id, got)
	}
}

// flakyIndex fails the first n Commit calls, then delegates.
type flakyIndex struct {
	index.NoteIndex
	mu    sync.Mutex
	fails int
	calls int
}

func (f *flakyIndex) Commit(ctx context.Context, n models.Note, outgoing []models.Link) error {
	f.mu.Lock()
	f.calls++
	failing := f.calls <= f.fails
	f.mu.Unlock()
	if failing {
		return &apperr.StoreIOError{Op: "commit", Err: errors.New("disk full")}
	}
	return f.NoteIndex.Commit(ctx, n, outgoing)
}

func (f *flakyIndex) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestRun_RetriesStoreErrors(t *testing.T) {
	e := newEnv(t)
	flaky := &flakyIndex{NoteIndex: e.db, fails: 2}
	c := e.coordinator(flaky, Options{Debounce: 20 * time.Millisecond, MaxRetries: 5})
	events := e.start(c)

	e.write("retry.md", "# Retry\n")
	events <- watcher.Event{Path: "retry.md", Kind: watcher.Created, At: time.Now()}

	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return e.saw("indexed:retry.md")
	}, "store errors should be retried until the commit lands")
	if got := flaky.callCount(); got != 3 {
		t.Errorf("commit calls = %d, want 3", got)
	}
	if e.pathID("retry.md") == "" {
		t.Error("note missing after retries")
	}
}

func TestRun_GivesUpAfterMaxRetries(t *testing.T) {
	e := newEnv(t)
	flaky := &flakyIndex{NoteIndex: e.db, fails: 100}
	c := e.coordinator(flaky, Options{Debounce: 20 * time.Millisecond, MaxRetries: 2})
	events := e.start(c)

	e.write("doomed.md", "# Doomed\n")
	events <- watcher.Event{Path: "doomed.md", Kind: watcher.Created, At: time.Now()}

	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return e.saw("failed:doomed.md")
	}, "exhausted retries should settle as failed")
	if got := flaky.callCount(); got != 3 {
		t.Errorf("commit calls = %d, want initial pass plus two retries", got)
	}
}

func TestRun_StopsWhenEventsClose(t *testing.T) {
	e := newEnv(t)
	c := e.coordinator(nil, Options{})

	events := make(chan watcher.Event)
	done := make(chan error, 1)
	go func() {
		done <- c.Run(context.Background(), events)
	}()
	close(events)

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after events closed")
	}
}

func TestRun_SweepReconciles(t *testing.T) {
	e := newEnv(t)
	c := e.coordinator(nil, Options{Debounce: 20 * time.Millisecond, SweepInterval: 100 * time.Millisecond})
	_ = e.start(c)

	// No watcher event for this file; only the sweep can find it.
	e.write("swept.md", "# Swept\n")

	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return e.saw("indexed:swept.md")
	}, "periodic sweep should pick up unannounced files")
}
