package store

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/rcliao/margin/internal/model"
	"go.uber.org/zap"
)

// blob is one decoded blob found in the annotation folder.
type blob struct {
	path    string
	records []model.Annotation
	err     error
}

// scan decodes every blob in the folder. Unreadable blobs are reported in
// blob.err rather than aborting the scan.
func (s *BlobStore) scan(ctx context.Context) ([]blob, error) {
	paths, err := s.vault.List(ctx, s.folder)
	if err != nil {
		return nil, err
	}
	var out []blob
	for _, p := range paths {
		if !strings.HasSuffix(p, BlobSuffix) {
			continue
		}
		recs, err := s.load(ctx, p, p)
		out = append(out, blob{path: p, records: recs, err: err})
	}
	return out, nil
}

// Documents returns the source documents that have at least one annotation.
func (s *BlobStore) Documents(ctx context.Context) ([]string, error) {
	blobs, err := s.scan(ctx)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	docs := []string{}
	for _, b := range blobs {
		for _, r := range b.records {
			if !seen[r.SourceFile] {
				seen[r.SourceFile] = true
				docs = append(docs, r.SourceFile)
			}
		}
	}
	sort.Strings(docs)
	return docs, nil
}

// Search finds annotations whose selected text or note content contains the
// query, case-insensitively. Newest first.
func (s *BlobStore) Search(ctx context.Context, p SearchParams) ([]SearchResult, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}
	q := strings.ToLower(strings.TrimSpace(p.Query))
	if q == "" {
		return nil, errors.New("search: empty query")
	}

	var candidates []model.Annotation
	if p.Doc != "" {
		recs, err := s.Load(ctx, p.Doc)
		if err != nil {
			return nil, err
		}
		candidates = recs
	} else {
		blobs, err := s.scan(ctx)
		if err != nil {
			return nil, err
		}
		for _, b := range blobs {
			if b.err != nil {
				s.log.Warn("search skipped blob", zap.String("blob", b.path), zap.Error(b.err))
				continue
			}
			candidates = append(candidates, b.records...)
		}
	}

	var results []SearchResult
	for _, r := range candidates {
		inSel := strings.Contains(strings.ToLower(r.SelectedText), q)
		inContent := strings.Contains(strings.ToLower(r.Content), q)
		if inSel || inContent {
			results = append(results, SearchResult{Annotation: r, InSelection: inSel, InContent: inContent})
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}
