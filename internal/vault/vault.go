// Package vault provides the named text-blob storage primitives the
// annotation store is built on: read, write, delete, create folder, list.
package vault

import (
	"context"
	"errors"
	"path"
	"strings"
)

var (
	// ErrNotExist is returned when a blob is absent.
	ErrNotExist = errors.New("blob does not exist")
	// ErrPathInvalid is returned for paths that escape the vault root.
	ErrPathInvalid = errors.New("path invalid")
)

// Vault stores text blobs addressed by slash-separated relative paths.
type Vault interface {
	// Read returns the blob at p. Absent blobs yield an error matching ErrNotExist.
	Read(ctx context.Context, p string) (string, error)

	// Write creates or replaces the blob at p.
	Write(ctx context.Context, p, data string) error

	// Delete removes the blob at p. Absent blobs yield ErrNotExist.
	Delete(ctx context.Context, p string) error

	// MkdirAll creates a folder and its parents. Existing folders are not an error.
	MkdirAll(ctx context.Context, p string) error

	// List returns the paths of blobs directly inside folder, sorted.
	List(ctx context.Context, folder string) ([]string, error)
}

// Clean normalises p and rejects absolute or escaping paths.
func Clean(p string) (string, error) {
	p = strings.ReplaceAll(p, "\\", "/")
	if strings.HasPrefix(p, "/") {
		return "", ErrPathInvalid
	}
	c := path.Clean(p)
	if c == "." || c == "" || c == ".." || strings.HasPrefix(c, "../") {
		return "", ErrPathInvalid
	}
	return c, nil
}
