package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rcliao/margin/internal/model"
	"go.uber.org/goleak"
)

func TestWatcherHandlesSettledMatchingFiles(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := filepath.Join(t.TempDir(), "annotations")
	got := make(chan string, 8)
	w, err := New(Options{
		Dirs:     []string{dir},
		Match:    func(p string) bool { return strings.HasSuffix(p, ".annotations.md") },
		Handle:   func(ctx context.Context, p string) { got <- p },
		Debounce: 150 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	blob := filepath.Join(dir, "A.annotations.md")
	for i := 0; i < 3; i++ {
		if err := os.WriteFile(blob, []byte(strings.Repeat("x", i+1)), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	select {
	case p := <-got:
		if p != blob {
			t.Errorf("expected %s, got %s", blob, p)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for blob change")
	}

	// Rapid writes collapse into one handled event.
	select {
	case p := <-got:
		t.Errorf("unexpected second event for %s", p)
	case <-time.After(400 * time.Millisecond):
	}
	if st := w.Stats(); st.Handled != 1 {
		t.Errorf("expected 1 handled path, got %+v", st)
	}
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)

	w, err := New(Options{Dirs: []string{t.TempDir()}})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	w.Stop()
	w.Stop()
}

func TestWatcherRefusesRestart(t *testing.T) {
	defer goleak.VerifyNone(t)

	w, err := New(Options{Dirs: []string{t.TempDir()}})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	w.Stop()
	if err := w.Start(context.Background()); !errors.Is(err, ErrStopped) {
		t.Errorf("expected ErrStopped, got %v", err)
	}
	w.Stop()
}

type fakeReloader struct {
	mu       sync.Mutex
	docs     map[string]string
	reloaded []string
}

func (f *fakeReloader) DocumentForBlob(p string) (string, bool) {
	d, ok := f.docs[p]
	return d, ok
}

func (f *fakeReloader) Reload(ctx context.Context, doc string) ([]model.Annotation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reloaded = append(f.reloaded, doc)
	return nil, nil
}

func TestReloadBlobs(t *testing.T) {
	root := t.TempDir()
	r := &fakeReloader{docs: map[string]string{"annotations/notes__A.md.annotations.md": "notes/A.md"}}
	h := ReloadBlobs(r, root, nil)

	h(context.Background(), filepath.Join(root, "annotations", "notes__A.md.annotations.md"))
	h(context.Background(), filepath.Join(root, "annotations", "closed.annotations.md"))

	if len(r.reloaded) != 1 || r.reloaded[0] != "notes/A.md" {
		t.Errorf("unexpected reloads %v", r.reloaded)
	}
}
