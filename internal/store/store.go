// Package store persists the annotations of each document in one text blob.
package store

import (
	"context"

	"github.com/rcliao/margin/internal/model"
)

// Store owns the backing blob of every annotated document. Each mutating
// method returns the document's records decoded from the blob text it just
// wrote, so callers can mirror the blob without reading it back.
type Store interface {
	// Load returns the records of doc, or an empty list if it has no blob.
	Load(ctx context.Context, doc string) ([]model.Annotation, error)

	// Add appends rec to the blob of rec.SourceFile.
	Add(ctx context.Context, rec model.Annotation) ([]model.Annotation, error)

	// Update replaces the record with rec.ID and bumps its UpdatedAt.
	// Returns model.ErrNotFound if the record does not exist.
	Update(ctx context.Context, rec model.Annotation) ([]model.Annotation, error)

	// Delete removes the record with id from doc. Removing the last record
	// deletes the blob. Deleting from a document without a blob is a no-op.
	Delete(ctx context.Context, doc, id string) ([]model.Annotation, error)

	// BlobPath returns the vault path of doc's blob.
	BlobPath(doc string) string
}

// SearchParams holds parameters for searching annotations across documents.
type SearchParams struct {
	Query string
	Doc   string // optional: restrict to one document
	Limit int
}

// SearchResult is one matching annotation.
type SearchResult struct {
	model.Annotation
	InSelection bool `json:"in_selection"`
	InContent   bool `json:"in_content"`
}
