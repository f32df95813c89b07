// Package storage keeps finished clips. It defines the Storage port used for
// scratch files and published results, with local disk and S3
// implementations, and the Archiver that copies generated clips into it.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrInvalidKey is returned when a publish key escapes the archive.
var ErrInvalidKey = errors.New("storage: invalid key")

// Storage defines scratch and published file storage.
type Storage interface {
	// LoadTemp reads a temporary file and returns a reader.
	// The caller is responsible for closing the returned ReadCloser.
	LoadTemp(ctx context.Context, path string) (io.ReadCloser, error)

	// CleanupTemp removes the specified temporary files.
	// It continues cleanup even if some files fail to delete.
	CleanupTemp(ctx context.Context, paths []string) error

	// Publish stores data durably under key and returns its URL.
	Publish(ctx context.Context, key string, data io.Reader) (url string, err error)
}
