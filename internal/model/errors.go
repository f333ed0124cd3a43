package model

import "errors"

var (
	// ErrCaptureFailed: no usable selection or position at creation time.
	ErrCaptureFailed = errors.New("capture failed")
	// ErrNotFound: record or backing blob missing.
	ErrNotFound = errors.New("annotation not found")
	// ErrDecodeMalformed: blob content does not match the delimited format.
	ErrDecodeMalformed = errors.New("malformed annotation blob")
	// ErrStorageWrite: the storage primitive failed to persist a blob.
	ErrStorageWrite = errors.New("storage write failed")
	// ErrEmptySelection: selected text is empty or whitespace only.
	ErrEmptySelection = errors.New("empty selection")
	// ErrEmptyContent: note content is empty or whitespace only.
	ErrEmptyContent = errors.New("empty note content")
)
