package store

import (
	"context"
	"sort"
	"time"
)

// Stats holds annotation folder statistics.
type Stats struct {
	Folder           string          `json:"folder"`
	Blobs            int             `json:"blobs"`
	UnreadableBlobs  int             `json:"unreadable_blobs"`
	TotalAnnotations int             `json:"total_annotations"`
	Documents        []DocumentStats `json:"documents"`
}

// DocumentStats holds per-document counts.
type DocumentStats struct {
	Doc         string    `json:"doc"`
	Count       int       `json:"count"`
	LastUpdated time.Time `json:"last_updated"`
}

// Stats returns statistics over every blob in the folder.
func (s *BlobStore) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{Folder: s.folder}

	blobs, err := s.scan(ctx)
	if err != nil {
		return st, err
	}

	byDoc := map[string]*DocumentStats{}
	for _, b := range blobs {
		st.Blobs++
		if b.err != nil {
			st.UnreadableBlobs++
			continue
		}
		for _, r := range b.records {
			st.TotalAnnotations++
			ds, ok := byDoc[r.SourceFile]
			if !ok {
				ds = &DocumentStats{Doc: r.SourceFile}
				byDoc[r.SourceFile] = ds
			}
			ds.Count++
			if r.UpdatedAt.After(ds.LastUpdated) {
				ds.LastUpdated = r.UpdatedAt
			}
		}
	}

	for _, ds := range byDoc {
		st.Documents = append(st.Documents, *ds)
	}
	sort.Slice(st.Documents, func(i, j int) bool {
		if st.Documents[i].Count != st.Documents[j].Count {
			return st.Documents[i].Count > st.Documents[j].Count
		}
		return st.Documents[i].Doc < st.Documents[j].Doc
	})
	return st, nil
}
