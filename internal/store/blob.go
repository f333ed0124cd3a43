package store

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/rcliao/margin/internal/codec"
	"github.com/rcliao/margin/internal/model"
	"github.com/rcliao/margin/internal/vault"
	"go.uber.org/zap"
)

// BlobSuffix is appended to every blob name.
const BlobSuffix = ".annotations.md"

// BlobStore implements Store with one codec blob per document inside a
// folder of a Vault. It does no locking: concurrent mutations of the same
// document are last-writer-wins, and callers serialise them.
type BlobStore struct {
	vault  vault.Vault
	folder string
	log    *zap.Logger
}

// NewBlobStore creates a store keeping blobs under folder in v.
func NewBlobStore(v vault.Vault, folder string, log *zap.Logger) (*BlobStore, error) {
	f, err := vault.Clean(folder)
	if err != nil {
		return nil, fmt.Errorf("annotation folder %q: %w", folder, err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &BlobStore{vault: v, folder: f, log: log.Named("store")}, nil
}

// Folder returns the folder holding the blobs.
func (s *BlobStore) Folder() string { return s.folder }

// BlobPath maps a document path to its blob. "_" is escaped as "_u" before
// directory separators become "__", so no two documents share a blob:
// "notes/A.md" -> "<folder>/notes__A.md.annotations.md".
func (s *BlobStore) BlobPath(doc string) string {
	d := strings.ReplaceAll(docKey(doc), "_", "_u")
	d = strings.ReplaceAll(d, "/", "__")
	return path.Join(s.folder, d+BlobSuffix)
}

// docKey is the canonical form of a document path.
func docKey(doc string) string {
	d := path.Clean(strings.ReplaceAll(strings.TrimSpace(doc), "\\", "/"))
	return strings.TrimLeft(d, "/")
}

func (s *BlobStore) Load(ctx context.Context, doc string) ([]model.Annotation, error) {
	own, _, err := s.read(ctx, doc)
	return own, err
}

// read returns doc's records and, separately, records of other documents
// found in the same blob. The latter only come from hand-edited blobs and
// are written back untouched.
func (s *BlobStore) read(ctx context.Context, doc string) (own, foreign []model.Annotation, err error) {
	p := s.BlobPath(doc)
	all, err := s.load(ctx, doc, p)
	if err != nil {
		return nil, nil, err
	}
	own, foreign = split(doc, all)
	if len(foreign) > 0 {
		s.log.Debug("blob holds records of other documents",
			zap.String("doc", doc), zap.String("blob", p), zap.Int("foreign", len(foreign)))
	}
	return own, foreign, nil
}

func split(doc string, all []model.Annotation) (own, foreign []model.Annotation) {
	key := docKey(doc)
	own = []model.Annotation{}
	for _, r := range all {
		if docKey(r.SourceFile) == key {
			own = append(own, r)
		} else {
			foreign = append(foreign, r)
		}
	}
	return own, foreign
}

// load decodes the blob at p without filtering.
func (s *BlobStore) load(ctx context.Context, doc, p string) ([]model.Annotation, error) {
	data, err := s.vault.Read(ctx, p)
	if errors.Is(err, vault.ErrNotExist) {
		return []model.Annotation{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", doc, err)
	}

	recs, derr := codec.Decode(data)
	if derr != nil {
		s.log.Warn("skipped malformed annotation blocks",
			zap.String("doc", doc), zap.String("blob", p),
			zap.Int("recovered", len(recs)), zap.Error(derr))
		if len(recs) == 0 {
			return nil, fmt.Errorf("load %s: %w", doc, derr)
		}
	}
	return recs, nil
}

func (s *BlobStore) Add(ctx context.Context, rec model.Annotation) ([]model.Annotation, error) {
	rec = model.Normalize(rec)
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	doc := rec.SourceFile
	own, foreign, err := s.read(ctx, doc)
	if err != nil {
		return nil, err
	}
	if model.IndexOf(own, rec.ID) >= 0 || model.IndexOf(foreign, rec.ID) >= 0 {
		return nil, fmt.Errorf("add %s: duplicate id %s", doc, rec.ID)
	}

	list, err := s.persist(ctx, doc, append(own, rec), foreign)
	if err != nil {
		return nil, err
	}
	s.log.Debug("annotation added", zap.String("doc", doc), zap.String("id", rec.ID), zap.Int("count", len(list)))
	return list, nil
}

func (s *BlobStore) Update(ctx context.Context, rec model.Annotation) ([]model.Annotation, error) {
	doc := rec.SourceFile
	own, foreign, err := s.read(ctx, doc)
	if err != nil {
		return nil, err
	}
	i := model.IndexOf(own, rec.ID)
	if i < 0 {
		return nil, fmt.Errorf("update %s/%s: %w", doc, rec.ID, model.ErrNotFound)
	}

	updated := own[i]
	updated.Content = model.NormalizeContent(rec.Content)
	if updated.Content == "" {
		return nil, fmt.Errorf("update %s/%s: %w", doc, rec.ID, model.ErrEmptyContent)
	}
	if rec.UpdatedAt.After(updated.UpdatedAt) {
		updated.UpdatedAt = rec.UpdatedAt.Truncate(time.Millisecond)
	} else {
		updated = model.Touch(updated)
	}

	next := make([]model.Annotation, len(own))
	copy(next, own)
	next[i] = updated
	return s.persist(ctx, doc, next, foreign)
}

func (s *BlobStore) Delete(ctx context.Context, doc, id string) ([]model.Annotation, error) {
	own, foreign, err := s.read(ctx, doc)
	if err != nil {
		return nil, err
	}
	i := model.IndexOf(own, id)
	if i < 0 {
		if len(own) == 0 {
			return own, nil
		}
		return nil, fmt.Errorf("delete %s/%s: %w", doc, id, model.ErrNotFound)
	}

	next := make([]model.Annotation, 0, len(own)-1)
	next = append(next, own[:i]...)
	next = append(next, own[i+1:]...)
	return s.persist(ctx, doc, next, foreign)
}

// persist writes own followed by foreign as doc's blob and returns doc's
// records decoded from the exact text written. A blob left with no records
// is removed so that blob existence always means "at least one annotation".
func (s *BlobStore) persist(ctx context.Context, doc string, own, foreign []model.Annotation) ([]model.Annotation, error) {
	p := s.BlobPath(doc)
	all := make([]model.Annotation, 0, len(own)+len(foreign))
	all = append(append(all, own...), foreign...)
	if len(all) == 0 {
		err := s.vault.Delete(ctx, p)
		if err != nil && !errors.Is(err, vault.ErrNotExist) {
			return nil, fmt.Errorf("delete blob %s: %w: %w", p, model.ErrStorageWrite, err)
		}
		s.log.Debug("blob removed", zap.String("doc", doc), zap.String("blob", p))
		return []model.Annotation{}, nil
	}

	data := codec.EncodeDocument(docKey(doc), all)
	if err := s.vault.MkdirAll(ctx, s.folder); err != nil {
		return nil, fmt.Errorf("create folder %s: %w: %w", s.folder, model.ErrStorageWrite, err)
	}
	if err := s.vault.Write(ctx, p, data); err != nil {
		return nil, fmt.Errorf("write blob %s: %w: %w", p, model.ErrStorageWrite, err)
	}

	written, err := codec.Decode(data)
	if err != nil {
		s.log.Warn("written blob does not decode cleanly", zap.String("blob", p), zap.Error(err))
	}
	mine, _ := split(doc, written)
	return mine, nil
}
