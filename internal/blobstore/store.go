// Package blobstore stores small named blobs: embedding files and archived
// face samples. Names are slash separated and relative to the store root.
package blobstore

import (
	"context"
	"os"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations should return an error that satisfies `errors.Is(err, ErrNotFound)`.
var ErrNotFound = os.ErrNotExist

// Store reads and writes whole blobs.
type Store interface {
	Get(ctx context.Context, name string) ([]byte, error)
	// Put replaces the blob atomically: readers see the old or the new content.
	Put(ctx context.Context, name string, data []byte) error
	// Delete removes the blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error
	// List returns the sorted names under prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}
