// Package session keeps the loaded annotation list of every open document
// and coordinates store writes, tree marking and UI notifications.
package session

import (
	"sort"
	"sync"

	"github.com/rcliao/margin/internal/model"
)

// Cache maps a document to its last known-good record list. Entries are
// created lazily and never expire; any entry can be dropped and rebuilt
// from the store.
type Cache struct {
	mu      sync.RWMutex
	entries map[string][]model.Annotation
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string][]model.Annotation)}
}

// Get returns a copy of doc's records and whether doc is cached.
func (c *Cache) Get(doc string) ([]model.Annotation, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	recs, ok := c.entries[doc]
	if !ok {
		return nil, false
	}
	return clone(recs), true
}

// Set replaces doc's entry with a copy of recs.
func (c *Cache) Set(doc string, recs []model.Annotation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[doc] = clone(recs)
}

// Drop evicts doc.
func (c *Cache) Drop(doc string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, doc)
}

// Docs returns the cached documents, sorted.
func (c *Cache) Docs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	docs := make([]string, 0, len(c.entries))
	for d := range c.entries {
		docs = append(docs, d)
	}
	sort.Strings(docs)
	return docs
}

func clone(recs []model.Annotation) []model.Annotation {
	out := make([]model.Annotation, len(recs))
	copy(out, recs)
	return out
}
