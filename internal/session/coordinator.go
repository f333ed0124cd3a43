package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rcliao/margin/internal/anchor"
	"github.com/rcliao/margin/internal/capture"
	"github.com/rcliao/margin/internal/model"
	"github.com/rcliao/margin/internal/store"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// Options configures a Coordinator. Store is required.
type Options struct {
	Store       store.Store
	Engine      *anchor.Engine
	Style       anchor.Style
	ActiveStyle anchor.Style
	Listener    Listener
	Notifier    Notifier
	Navigator   Navigator
	Logger      *zap.Logger
}

// Coordinator is the only writer of the cache. Mutations of one document
// run one at a time; different documents proceed concurrently. The cache
// changes only after the store reports a successful write.
type Coordinator struct {
	store    store.Store
	engine   *anchor.Engine
	style    anchor.Style
	active   anchor.Style
	listener Listener
	notifier Notifier
	nav      Navigator
	log      *zap.Logger

	cache *Cache
	locks keyedMutex
	table map[Kind]handler

	viewMu  sync.Mutex
	views   map[string]*html.Node
	focused map[string]string
}

// New creates a coordinator with an empty cache.
func New(opts Options) *Coordinator {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	engine := opts.Engine
	if engine == nil {
		engine = anchor.New(anchor.Options{Logger: log})
	}
	active := opts.ActiveStyle
	active.Active = true

	c := &Coordinator{
		store:    opts.Store,
		engine:   engine,
		style:    opts.Style,
		active:   active,
		listener: opts.Listener,
		notifier: opts.Notifier,
		nav:      opts.Navigator,
		log:      log.Named("session"),
		cache:    NewCache(),
		views:    make(map[string]*html.Node),
		focused:  make(map[string]string),
	}
	c.table = c.handlers()
	return c
}

// Cache exposes the coordinator's cache for read-only consumers.
func (c *Coordinator) Cache() *Cache { return c.cache }

// Records returns the cached records of doc.
func (c *Coordinator) Records(doc string) ([]model.Annotation, bool) {
	return c.cache.Get(doc)
}

// Open loads doc into the cache if it is not there yet, marks its records in
// the current view and tells the listener.
func (c *Coordinator) Open(ctx context.Context, doc string) ([]model.Annotation, error) {
	mu := c.locks.lock(doc)
	recs, err := c.ensureLoaded(ctx, doc)
	mu.Unlock()
	if err != nil {
		return nil, c.fail("open", doc, err)
	}

	c.markAll(doc, recs)
	c.changed(doc, recs)
	return recs, nil
}

// ensureLoaded must be called with doc's lock held.
func (c *Coordinator) ensureLoaded(ctx context.Context, doc string) ([]model.Annotation, error) {
	if recs, ok := c.cache.Get(doc); ok {
		return recs, nil
	}
	recs, err := c.store.Load(ctx, doc)
	if err != nil {
		return nil, err
	}
	c.cache.Set(doc, recs)
	c.log.Debug("document loaded", zap.String("doc", doc), zap.Int("records", len(recs)))
	return recs, nil
}

// Rendered installs root as doc's current view and marks every cached
// record in it. It reads only the cache, so it may interleave with a
// pending mutation.
func (c *Coordinator) Rendered(doc string, root *html.Node) anchor.Stats {
	c.viewMu.Lock()
	if root == nil {
		delete(c.views, doc)
	} else {
		c.views[doc] = root
	}
	c.viewMu.Unlock()

	recs, _ := c.cache.Get(doc)
	return c.markAll(doc, recs)
}

// View returns doc's current rendered tree.
func (c *Coordinator) View(doc string) *html.Node {
	c.viewMu.Lock()
	defer c.viewMu.Unlock()
	return c.views[doc]
}

func (c *Coordinator) markAll(doc string, recs []model.Annotation) anchor.Stats {
	c.viewMu.Lock()
	defer c.viewMu.Unlock()
	root := c.views[doc]
	if root == nil {
		return anchor.Stats{}
	}
	st := c.engine.BulkMark(root, recs, c.style)
	if id := c.focused[doc]; id != "" {
		c.engine.UpdateStyle(root, id, c.active)
	}
	return st
}

// Create persists a new annotation for a captured selection. Empty content
// cancels creation and returns nil without touching the store.
func (c *Coordinator) Create(ctx context.Context, res capture.Result, content string) (*model.Annotation, error) {
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}
	doc := res.Doc
	rec, err := model.New(doc, res.Text, res.Position, content)
	if err != nil {
		return nil, c.fail("create", doc, err)
	}

	mu := c.locks.lock(doc)
	if err := ctx.Err(); err != nil {
		mu.Unlock()
		return nil, err
	}
	list, err := c.store.Add(ctx, *rec)
	if err != nil {
		mu.Unlock()
		return nil, c.fail("create", doc, err)
	}
	c.cache.Set(doc, list)
	mu.Unlock()
	if i := model.IndexOf(list, rec.ID); i >= 0 {
		stored := list[i]
		rec = &stored
	}

	c.viewMu.Lock()
	if root := c.views[doc]; root != nil {
		if out := c.engine.Mark(root, *rec, c.style); out != anchor.Marked {
			c.log.Debug("new annotation not marked", zap.String("id", rec.ID), zap.Stringer("outcome", out))
		}
	}
	c.viewMu.Unlock()

	c.log.Info("annotation created", zap.String("doc", doc), zap.String("id", rec.ID))
	c.changed(doc, list)
	return rec, nil
}

// Edit replaces the content of record id. Empty content cancels the edit:
// the store is not called and the original content is kept.
func (c *Coordinator) Edit(ctx context.Context, doc, id, content string) (*model.Annotation, error) {
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}

	mu := c.locks.lock(doc)
	if err := ctx.Err(); err != nil {
		mu.Unlock()
		return nil, err
	}
	recs, err := c.ensureLoaded(ctx, doc)
	if err != nil {
		mu.Unlock()
		return nil, c.fail("edit", doc, err)
	}
	i := model.IndexOf(recs, id)
	if i < 0 {
		mu.Unlock()
		return nil, c.fail("edit", doc, fmt.Errorf("edit %s/%s: %w", doc, id, model.ErrNotFound))
	}
	if err := ctx.Err(); err != nil {
		mu.Unlock()
		return nil, err
	}
	next := recs[i]
	next.Content = content
	list, err := c.store.Update(ctx, next)
	if err != nil {
		mu.Unlock()
		return nil, c.fail("edit", doc, err)
	}
	c.cache.Set(doc, list)
	mu.Unlock()

	updated := list[model.IndexOf(list, id)]
	c.restyle(doc, id)
	c.log.Info("annotation edited", zap.String("doc", doc), zap.String("id", id))
	c.changed(doc, list)
	return &updated, nil
}

// Delete removes record id and its marker.
func (c *Coordinator) Delete(ctx context.Context, doc, id string) error {
	mu := c.locks.lock(doc)
	if err := ctx.Err(); err != nil {
		mu.Unlock()
		return err
	}
	list, err := c.store.Delete(ctx, doc, id)
	if err != nil {
		mu.Unlock()
		return c.fail("delete", doc, err)
	}
	c.cache.Set(doc, list)
	mu.Unlock()

	c.viewMu.Lock()
	if root := c.views[doc]; root != nil {
		c.engine.Unmark(root, id)
	}
	if c.focused[doc] == id {
		delete(c.focused, doc)
	}
	c.viewMu.Unlock()

	c.log.Info("annotation deleted", zap.String("doc", doc), zap.String("id", id))
	c.changed(doc, list)
	return nil
}

// Close evicts doc. The store stays the source of truth, so this is always
// safe.
func (c *Coordinator) Close(doc string) {
	c.cache.Drop(doc)
	c.viewMu.Lock()
	delete(c.views, doc)
	delete(c.focused, doc)
	c.viewMu.Unlock()
	c.log.Debug("document closed", zap.String("doc", doc))
}

// Reload drops doc's cache entry, loads it again and re-marks the current
// view from scratch. Used when the blob changed outside the coordinator.
func (c *Coordinator) Reload(ctx context.Context, doc string) ([]model.Annotation, error) {
	mu := c.locks.lock(doc)
	c.cache.Drop(doc)
	recs, err := c.ensureLoaded(ctx, doc)
	mu.Unlock()
	if err != nil {
		c.log.Error("reload failed", zap.String("doc", doc), zap.Error(err))
		return nil, err
	}

	c.viewMu.Lock()
	if root := c.views[doc]; root != nil {
		for _, id := range anchor.Markers(root) {
			c.engine.Unmark(root, id)
		}
		if model.IndexOf(recs, c.focused[doc]) < 0 {
			delete(c.focused, doc)
		}
	}
	c.viewMu.Unlock()

	c.markAll(doc, recs)
	c.changed(doc, recs)
	return recs, nil
}

// Focus gives record id the active style and every other marker of doc the
// normal style.
func (c *Coordinator) Focus(doc, id string) error {
	recs, ok := c.cache.Get(doc)
	if !ok || model.IndexOf(recs, id) < 0 {
		return fmt.Errorf("focus %s/%s: %w", doc, id, model.ErrNotFound)
	}

	c.viewMu.Lock()
	defer c.viewMu.Unlock()
	c.focused[doc] = id
	root := c.views[doc]
	if root == nil {
		return nil
	}
	for _, m := range anchor.Markers(root) {
		if m != id {
			c.engine.UpdateStyle(root, m, c.style)
		}
	}
	c.engine.UpdateStyle(root, id, c.active)
	return nil
}

// Focused returns the focused record of doc, if any.
func (c *Coordinator) Focused(doc string) string {
	c.viewMu.Lock()
	defer c.viewMu.Unlock()
	return c.focused[doc]
}

// JumpToSource asks the navigator to reveal record id's captured position.
func (c *Coordinator) JumpToSource(ctx context.Context, doc, id string) error {
	if c.nav == nil {
		return errors.New("jump to source: no navigator")
	}
	mu := c.locks.lock(doc)
	recs, err := c.ensureLoaded(ctx, doc)
	mu.Unlock()
	if err != nil {
		return c.fail("jump", doc, err)
	}
	i := model.IndexOf(recs, id)
	if i < 0 {
		return c.fail("jump", doc, fmt.Errorf("jump %s/%s: %w", doc, id, model.ErrNotFound))
	}
	if err := c.nav.Reveal(doc, recs[i].Position); err != nil {
		return c.fail("jump", doc, err)
	}
	return nil
}

// DocumentForBlob maps a blob path back to a cached document.
func (c *Coordinator) DocumentForBlob(blobPath string) (string, bool) {
	for _, doc := range c.cache.Docs() {
		if c.store.BlobPath(doc) == blobPath {
			return doc, true
		}
	}
	return "", false
}

func (c *Coordinator) restyle(doc, id string) {
	c.viewMu.Lock()
	defer c.viewMu.Unlock()
	root := c.views[doc]
	if root == nil {
		return
	}
	style := c.style
	if c.focused[doc] == id {
		style = c.active
	}
	c.engine.UpdateStyle(root, id, style)
}

func (c *Coordinator) changed(doc string, recs []model.Annotation) {
	if c.listener != nil {
		c.listener.RecordsChanged(doc, clone(recs))
	}
}

// fail logs err and sends exactly one notice for it.
func (c *Coordinator) fail(op, doc string, err error) error {
	c.log.Error(op+" failed", zap.String("doc", doc), zap.Error(err))
	if c.notifier != nil {
		c.notifier.Notify(message(op, err))
	}
	return err
}

func message(op string, err error) string {
	switch {
	case errors.Is(err, model.ErrCaptureFailed):
		return "Select some text before adding an annotation."
	case errors.Is(err, model.ErrEmptySelection):
		return "The selection is empty."
	case errors.Is(err, model.ErrNotFound):
		return "Annotation not found."
	case errors.Is(err, model.ErrDecodeMalformed):
		return "The annotation file could not be read."
	case errors.Is(err, model.ErrStorageWrite):
		return fmt.Sprintf("Could not save annotation (%s).", op)
	default:
		return fmt.Sprintf("Annotation %s failed: %v", op, err)
	}
}

// keyedMutex hands out one mutex per document.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) *sync.Mutex {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()
	m.Lock()
	return m
}
