// Package watch notices files changed outside the process, such as blobs
// edited by hand or synced from another machine, and hands them on once
// they have settled.
package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rcliao/margin/internal/model"
	"go.uber.org/zap"
)

// ErrStopped is returned by Start on a watcher that has been stopped.
// A Watcher cannot be restarted; create a new one.
var ErrStopped = errors.New("watcher stopped")

// DefaultDebounce is how long a path must be quiet before it is handled.
const DefaultDebounce = 300 * time.Millisecond

// Handler is called once per settled path.
type Handler func(ctx context.Context, path string)

// Options configures a Watcher.
type Options struct {
	// Dirs are watched non-recursively and created if missing.
	Dirs []string
	// Match filters paths; nil accepts everything.
	Match    func(path string) bool
	Handle   Handler
	Debounce time.Duration
	Logger   *zap.Logger
}

// Stats counts watcher activity.
type Stats struct {
	Events  int
	Handled int
	Errors  int
}

// Watcher debounces filesystem events per path.
type Watcher struct {
	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	dirs     []string
	match    func(string) bool
	handle   Handler
	pending  map[string]time.Time
	debounce time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
	running  bool
	looping  bool
	stopped  bool
	stats    Stats
	log      *zap.Logger
}

// New creates a stopped watcher.
func New(opts Options) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	d := opts.Debounce
	if d <= 0 {
		d = DefaultDebounce
	}
	return &Watcher{
		watcher:  fw,
		dirs:     opts.Dirs,
		match:    opts.Match,
		handle:   opts.Handle,
		pending:  make(map[string]time.Time),
		debounce: d,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		log:      log.Named("watch"),
	}, nil
}

// Start watches the configured directories in a background goroutine.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return ErrStopped
	}
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	for _, dir := range w.dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			w.log.Warn("create watched dir", zap.String("dir", dir), zap.Error(err))
		}
		if err := w.watcher.Add(dir); err != nil {
			w.Stop()
			return err
		}
		w.log.Debug("watching", zap.String("dir", dir))
	}

	w.mu.Lock()
	w.looping = true
	w.mu.Unlock()
	go w.run(ctx)
	return nil
}

// Stop ends the event loop and waits for it.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.stopped = true
	looping := w.looping
	w.mu.Unlock()

	close(w.stopCh)
	if looping {
		<-w.doneCh
	}
	if err := w.watcher.Close(); err != nil {
		w.log.Error("close watcher", zap.Error(err))
	}
}

// Stats returns a snapshot of the counters.
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	tick := w.debounce / 4
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.record(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error("watch error", zap.Error(err))
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()
		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

func (w *Watcher) record(ev fsnotify.Event) {
	if !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Write) &&
		!ev.Op.Has(fsnotify.Remove) && !ev.Op.Has(fsnotify.Rename) {
		return
	}
	if w.match != nil && !w.match(ev.Name) {
		return
	}
	w.log.Debug("event", zap.String("path", ev.Name), zap.Stringer("op", ev.Op))
	w.mu.Lock()
	w.stats.Events++
	w.pending[ev.Name] = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) flush(ctx context.Context) {
	w.mu.Lock()
	now := time.Now()
	var settled []string
	for p, at := range w.pending {
		if now.Sub(at) >= w.debounce {
			settled = append(settled, p)
			delete(w.pending, p)
		}
	}
	w.stats.Handled += len(settled)
	w.mu.Unlock()

	for _, p := range settled {
		if w.handle != nil {
			w.handle(ctx, p)
		}
	}
}

// BlobReloader is the part of the session coordinator the watcher drives.
type BlobReloader interface {
	DocumentForBlob(blobPath string) (string, bool)
	Reload(ctx context.Context, doc string) ([]model.Annotation, error)
}

// ReloadBlobs returns a handler that maps an absolute blob path under root
// to its open document and reloads that document. Blobs of documents that
// are not open are ignored; they are read fresh on open anyway.
func ReloadBlobs(r BlobReloader, root string, log *zap.Logger) Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return func(ctx context.Context, path string) {
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return
		}
		doc, ok := r.DocumentForBlob(filepath.ToSlash(rel))
		if !ok {
			return
		}
		if _, err := r.Reload(ctx, doc); err != nil {
			log.Warn("reload after blob change", zap.String("doc", doc), zap.Error(err))
			return
		}
		log.Info("reloaded annotations", zap.String("doc", doc))
	}
}
