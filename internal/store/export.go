package store

import (
	"context"
	"sort"

	"github.com/rcliao/margin/internal/model"
	"go.uber.org/zap"
)

// ExportAll returns all annotations, optionally restricted to one document,
// ordered by document then creation time.
func (s *BlobStore) ExportAll(ctx context.Context, doc string) ([]model.Annotation, error) {
	if doc != "" {
		return s.Load(ctx, doc)
	}

	blobs, err := s.scan(ctx)
	if err != nil {
		return nil, err
	}
	out := []model.Annotation{}
	for _, b := range blobs {
		if b.err != nil {
			s.log.Warn("export skipped blob", zap.String("blob", b.path), zap.Error(b.err))
			continue
		}
		out = append(out, b.records...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SourceFile != out[j].SourceFile {
			return out[i].SourceFile < out[j].SourceFile
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Import stores annotations from an export. Records whose id already exists
// anywhere in the store, or earlier in records, are skipped. Returns the
// number imported.
func (s *BlobStore) Import(ctx context.Context, records []model.Annotation) (int, error) {
	blobs, err := s.scan(ctx)
	if err != nil {
		return 0, err
	}
	seen := map[string]bool{}
	for _, b := range blobs {
		if b.err != nil {
			s.log.Warn("import could not read blob", zap.String("blob", b.path), zap.Error(b.err))
			continue
		}
		for _, r := range b.records {
			seen[r.ID] = true
		}
	}

	imported := 0
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return imported, err
		}
		if seen[r.ID] {
			continue
		}
		if _, err := s.Add(ctx, r); err != nil {
			return imported, err
		}
		seen[r.ID] = true
		imported++
	}
	return imported, nil
}
