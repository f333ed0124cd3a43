package vault

import (
	"context"
	"fmt"
	"path"
	"sort"
	"sync"
)

// Memory is an in-process Vault. It is safe for concurrent use.
type Memory struct {
	mu      sync.RWMutex
	blobs   map[string]string
	folders map[string]bool
	writes  int
}

// NewMemory returns an empty in-memory vault.
func NewMemory() *Memory {
	return &Memory{blobs: map[string]string{}, folders: map[string]bool{}}
}

func (m *Memory) Read(ctx context.Context, p string) (string, error) {
	c, err := Clean(p)
	if err != nil {
		return "", err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.blobs[c]
	if !ok {
		return "", fmt.Errorf("%s: %w", p, ErrNotExist)
	}
	return data, nil
}

func (m *Memory) Write(ctx context.Context, p, data string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c, err := Clean(p)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[c] = data
	m.writes++
	return nil
}

func (m *Memory) Delete(ctx context.Context, p string) error {
	c, err := Clean(p)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blobs[c]; !ok {
		return fmt.Errorf("%s: %w", p, ErrNotExist)
	}
	delete(m.blobs, c)
	return nil
}

func (m *Memory) MkdirAll(ctx context.Context, p string) error {
	c, err := Clean(p)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for dir := c; dir != "."; dir = path.Dir(dir) {
		m.folders[dir] = true
	}
	return nil
}

func (m *Memory) List(ctx context.Context, folder string) ([]string, error) {
	c, err := Clean(folder)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for p := range m.blobs {
		if path.Dir(p) == c {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out, nil
}

// HasFolder reports whether MkdirAll created folder.
func (m *Memory) HasFolder(folder string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.folders[folder]
}

// Writes returns the number of successful writes.
func (m *Memory) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}
