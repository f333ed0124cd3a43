package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rcliao/margin/internal/codec"
	"github.com/rcliao/margin/internal/model"
	"github.com/rcliao/margin/internal/vault"
)

func newTestStore(t *testing.T) (*BlobStore, *vault.Memory) {
	t.Helper()
	v := vault.NewMemory()
	s, err := NewBlobStore(v, "annotations", nil)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	return s, v
}

func mustNew(t *testing.T, doc, text, content string) model.Annotation {
	t.Helper()
	a, err := model.New(doc, text, model.Position{Start: 4, End: 4 + len(text), Block: 0}, content)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return *a
}

func TestBlobPath(t *testing.T) {
	s, _ := newTestStore(t)
	tests := map[string]string{
		"A.md":             "annotations/A.md.annotations.md",
		"notes/A.md":       "annotations/notes__A.md.annotations.md",
		"./notes/deep/B":   "annotations/notes__deep__B.annotations.md",
		"notes\\win\\C.md": "annotations/notes__win__C.md.annotations.md",
		"notes__A.md":      "annotations/notes_u_uA.md.annotations.md",
		"my_doc.md":        "annotations/my_udoc.md.annotations.md",
	}
	for doc, want := range tests {
		if got := s.BlobPath(doc); got != want {
			t.Errorf("BlobPath(%q) = %q, want %q", doc, got, want)
		}
	}
}

func TestBlobPathDistinctDocuments(t *testing.T) {
	s, _ := newTestStore(t)
	pairs := [][2]string{
		{"A.md", "A.txt"},
		{"A.md", "A"},
		{"notes/A.md", "notes__A.md"},
		{"a_/b.md", "a/_b.md"},
		{"a_u.md", "a__.md"},
	}
	for _, p := range pairs {
		if s.BlobPath(p[0]) == s.BlobPath(p[1]) {
			t.Errorf("%q and %q share blob %s", p[0], p[1], s.BlobPath(p[0]))
		}
	}
	if s.BlobPath("./notes/A.md") != s.BlobPath("notes/A.md") {
		t.Error("equivalent paths of one document must share a blob")
	}
}

func TestDocumentsWithSimilarNamesStaySeparate(t *testing.T) {
	for _, pair := range [][2]string{{"A.md", "A.txt"}, {"notes/A.md", "notes__A.md"}} {
		t.Run(pair[0]+" vs "+pair[1], func(t *testing.T) {
			ctx := context.Background()
			s, v := newTestStore(t)
			a := mustNew(t, pair[0], "fox", "on first")
			b := mustNew(t, pair[1], "dog", "on second")
			s.Add(ctx, a)
			s.Add(ctx, b)

			got, _ := s.Load(ctx, pair[1])
			if len(got) != 1 || got[0].ID != b.ID {
				t.Fatalf("expected only %s's record, got %+v", pair[1], got)
			}
			if _, err := s.Delete(ctx, pair[1], a.ID); !errors.Is(err, model.ErrNotFound) {
				t.Errorf("deleting through the wrong document: expected ErrNotFound, got %v", err)
			}
			s.Delete(ctx, pair[1], b.ID)
			if _, err := v.Read(ctx, s.BlobPath(pair[1])); !errors.Is(err, vault.ErrNotExist) {
				t.Errorf("expected %s's blob removed, got %v", pair[1], err)
			}
			got, _ = s.Load(ctx, pair[0])
			if len(got) != 1 || got[0].ID != a.ID {
				t.Errorf("expected %s untouched, got %+v", pair[0], got)
			}
		})
	}
}

func TestForeignRecordsInBlobArePreserved(t *testing.T) {
	ctx := context.Background()
	s, v := newTestStore(t)
	mine := mustNew(t, "A.md", "fox", "mine")
	other := mustNew(t, "B.md", "dog", "copied in by hand")
	v.Write(ctx, s.BlobPath("A.md"), codec.EncodeDocument("A.md", []model.Annotation{mine, other}))

	got, err := s.Load(ctx, "A.md")
	if err != nil || len(got) != 1 || got[0].ID != mine.ID {
		t.Fatalf("expected only A.md's record, got %+v, %v", got, err)
	}

	left, err := s.Delete(ctx, "A.md", mine.ID)
	if err != nil || len(left) != 0 {
		t.Fatalf("delete: %+v, %v", left, err)
	}
	blob, err := v.Read(ctx, s.BlobPath("A.md"))
	if err != nil {
		t.Fatalf("blob with a remaining record must stay: %v", err)
	}
	recs, _ := codec.Decode(blob)
	if len(recs) != 1 || recs[0].ID != other.ID {
		t.Errorf("expected the foreign record kept, got %+v", recs)
	}
}

func TestAddReturnsWhatTheBlobHolds(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	rec := mustNew(t, "A.md", "fox", "x")
	rec.Content = "  line one\r\nline two\r\n"
	rec.SelectedText = "quick\nfox"

	returned, err := s.Add(ctx, rec)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	loaded, _ := s.Load(ctx, "A.md")
	if diff := cmp.Diff(loaded, returned); diff != "" {
		t.Errorf("returned list differs from blob (-loaded +returned):\n%s", diff)
	}
	if loaded[0].Content != "line one\nline two" || loaded[0].SelectedText != "quick fox" {
		t.Errorf("unexpected stored record %+v", loaded[0])
	}
}

func TestLoadMissingBlob(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	got, err := s.Load(ctx, "A.md")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil list, got %#v", got)
	}
}

func TestCreateEditDeleteScenario(t *testing.T) {
	ctx := context.Background()
	s, v := newTestStore(t)

	rec := mustNew(t, "A.md", "the quick fox", "nice!")
	if _, err := s.Add(ctx, rec); err != nil {
		t.Fatalf("add: %v", err)
	}
	if !v.HasFolder("annotations") {
		t.Error("expected annotation folder to be created")
	}

	got, err := s.Load(ctx, "A.md")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 record, got %d", len(got))
	}
	if got[0].SelectedText != "the quick fox" || got[0].Content != "nice!" {
		t.Errorf("unexpected record %+v", got[0])
	}
	if !got[0].CreatedAt.Equal(got[0].UpdatedAt) {
		t.Error("expected createdAt == updatedAt after create")
	}

	edited, err := model.Update(got[0], "nice indeed!")
	if err != nil {
		t.Fatalf("model update: %v", err)
	}
	if _, err := s.Update(ctx, edited); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ = s.Load(ctx, "A.md")
	if len(got) != 1 || got[0].Content != "nice indeed!" {
		t.Fatalf("expected edited content, got %+v", got)
	}
	if !got[0].UpdatedAt.After(got[0].CreatedAt) {
		t.Errorf("expected updatedAt > createdAt, got %v / %v", got[0].UpdatedAt, got[0].CreatedAt)
	}

	if _, err := s.Delete(ctx, "A.md", rec.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, _ = s.Load(ctx, "A.md")
	if len(got) != 0 {
		t.Errorf("expected empty list after delete, got %d", len(got))
	}
	if _, err := v.Read(ctx, s.BlobPath("A.md")); !errors.Is(err, vault.ErrNotExist) {
		t.Errorf("expected blob removed with its last record, got %v", err)
	}
}

func TestMutationsReturnPersistedList(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	a := mustNew(t, "A.md", "fox", "one")
	b := mustNew(t, "A.md", "dog", "two")
	s.Add(ctx, a)
	returned, err := s.Add(ctx, b)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	loaded, _ := s.Load(ctx, "A.md")
	if diff := cmp.Diff(loaded, returned); diff != "" {
		t.Errorf("returned list differs from blob (-loaded +returned):\n%s", diff)
	}

	returned, _ = s.Delete(ctx, "A.md", a.ID)
	loaded, _ = s.Load(ctx, "A.md")
	if diff := cmp.Diff(loaded, returned); diff != "" {
		t.Errorf("returned list differs from blob after delete:\n%s", diff)
	}
}

func TestUpdateNotFound(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	ghost := mustNew(t, "A.md", "fox", "x")
	if _, err := s.Update(ctx, ghost); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound without blob, got %v", err)
	}
	s.Add(ctx, mustNew(t, "A.md", "dog", "y"))
	if _, err := s.Update(ctx, ghost); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound with blob, got %v", err)
	}
}

func TestDeleteMissing(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	got, err := s.Delete(ctx, "A.md", "nope")
	if err != nil {
		t.Fatalf("delete without blob should be a no-op, got %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty list, got %v", got)
	}

	s.Add(ctx, mustNew(t, "A.md", "dog", "y"))
	if _, err := s.Delete(ctx, "A.md", "nope"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown id, got %v", err)
	}
}

func TestAddDuplicateID(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	a := mustNew(t, "A.md", "fox", "x")
	s.Add(ctx, a)
	if _, err := s.Add(ctx, a); err == nil {
		t.Error("expected error for duplicate id")
	}
}

func TestLoadRecoversFromMalformedBlob(t *testing.T) {
	ctx := context.Background()
	s, v := newTestStore(t)

	good := mustNew(t, "A.md", "fox", "kept")
	s.Add(ctx, good)
	blob, _ := v.Read(ctx, s.BlobPath("A.md"))
	v.Write(ctx, s.BlobPath("A.md"), blob+"---\nid: broken\nsourceFile: A.md\n---\n\nno selection\n")

	got, err := s.Load(ctx, "A.md")
	if err != nil {
		t.Fatalf("expected partial recovery, got %v", err)
	}
	if len(got) != 1 || got[0].ID != good.ID {
		t.Errorf("expected the good record, got %+v", got)
	}
}

func TestLoadFailsWhenNothingRecovered(t *testing.T) {
	ctx := context.Background()
	s, v := newTestStore(t)
	v.Write(ctx, s.BlobPath("A.md"), "---\nid: broken\n---\n\nbody\n")

	if _, err := s.Load(ctx, "A.md"); !errors.Is(err, model.ErrDecodeMalformed) {
		t.Fatalf("expected ErrDecodeMalformed, got %v", err)
	}
	if _, err := s.Add(ctx, mustNew(t, "A.md", "fox", "x")); err == nil {
		t.Error("add must not overwrite an unreadable blob")
	}
}

type failingVault struct {
	*vault.Memory
}

func (f failingVault) Write(ctx context.Context, p, data string) error {
	return errors.New("disk full")
}

func TestStorageWriteFailure(t *testing.T) {
	ctx := context.Background()
	s, err := NewBlobStore(failingVault{vault.NewMemory()}, "annotations", nil)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	if _, err := s.Add(ctx, mustNew(t, "A.md", "fox", "x")); !errors.Is(err, model.ErrStorageWrite) {
		t.Errorf("expected ErrStorageWrite, got %v", err)
	}
}

func TestBlobStoreOnDir(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	d, _ := vault.NewDir(root)
	s, _ := NewBlobStore(d, "annotations", nil)

	s.Add(ctx, mustNew(t, "notes/A.md", "fox", "on disk"))
	got, err := s.Load(ctx, "notes/A.md")
	if err != nil || len(got) != 1 {
		t.Fatalf("load: %v %v", got, err)
	}
	abs, _ := d.Abs(s.BlobPath("notes/A.md"))
	if filepath.Base(abs) != "notes__A.md.annotations.md" {
		t.Errorf("unexpected blob file %s", abs)
	}
}

func TestNewBlobStoreRejectsBadFolder(t *testing.T) {
	if _, err := NewBlobStore(vault.NewMemory(), "../outside", nil); err == nil {
		t.Error("expected error for escaping folder")
	}
}
