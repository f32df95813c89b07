package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Compile-time check that LocalStorage implements Storage.
var _ Storage = (*LocalStorage)(nil)

const defaultBaseURL = "/files"

// LocalStorage implements Storage on local disk. Published files live in
// the archive directory and are addressed below baseURL, which the HTTP
// server maps onto that directory.
type LocalStorage struct {
	tempDir    string
	archiveDir string
	baseURL    string
}

// LocalOption configures a LocalStorage.
type LocalOption func(*LocalStorage)

// WithBaseURL sets the URL prefix of published files.
func WithBaseURL(u string) LocalOption {
	return func(s *LocalStorage) {
		if u != "" {
			s.baseURL = strings.TrimSuffix(u, "/")
		}
	}
}

// NewLocalStorage creates a new LocalStorage instance.
// If tempDir is empty, a promptstudio directory under os.TempDir() is used.
// The temp and archive directories are created if they don't exist.
func NewLocalStorage(tempDir string, opts ...LocalOption) (*LocalStorage, error) {
	if tempDir == "" {
		tempDir = filepath.Join(os.TempDir(), "promptstudio")
	}
	s := &LocalStorage{
		tempDir:    tempDir,
		archiveDir: filepath.Join(tempDir, "archive"),
		baseURL:    defaultBaseURL,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(s.archiveDir, 0750); err != nil {
		return nil, fmt.Errorf("create storage directories: %w", err)
	}
	return s, nil
}

// TempDir returns the temporary directory path.
func (s *LocalStorage) TempDir() string {
	return s.tempDir
}

// ArchiveDir returns the directory holding published files.
func (s *LocalStorage) ArchiveDir() string {
	return s.archiveDir
}

// LoadTemp reads a temporary file and returns a reader.
// The caller is responsible for closing the returned ReadCloser.
func (s *LocalStorage) LoadTemp(ctx context.Context, p string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}

	f, err := os.Open(p) // #nosec G304 - path is provided by trusted caller
	if err != nil {
		return nil, fmt.Errorf("open temp file: %w", err)
	}

	return f, nil
}

// CleanupTemp removes the specified temporary files.
// It continues cleanup even if some files fail to delete,
// returning the first error encountered.
func (s *LocalStorage) CleanupTemp(ctx context.Context, paths []string) error {
	var firstErr error
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("context cancelled: %w", err)
		}

		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			if firstErr == nil {
				firstErr = fmt.Errorf("remove temp file %s: %w", p, err)
			}
		}
	}
	return firstErr
}

// Publish copies data into the archive directory.
func (s *LocalStorage) Publish(ctx context.Context, key string, data io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("context cancelled: %w", err)
	}
	clean, err := cleanKey(key)
	if err != nil {
		return "", err
	}

	dest := filepath.Join(s.archiveDir, filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(dest), 0750); err != nil {
		return "", fmt.Errorf("create archive directory: %w", err)
	}

	f, err := os.Create(dest) // #nosec G304 - key is cleaned above
	if err != nil {
		return "", fmt.Errorf("create archive file: %w", err)
	}
	if _, err := io.Copy(f, data); err != nil {
		_ = f.Close()
		_ = os.Remove(dest)
		return "", fmt.Errorf("write archive file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close archive file: %w", err)
	}

	return s.baseURL + "/" + clean, nil
}

// cleanKey rejects keys that would leave the archive directory.
func cleanKey(key string) (string, error) {
	clean := path.Clean("/" + strings.TrimSpace(key))[1:]
	if clean == "" || clean == "." || strings.Contains(key, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return clean, nil
}
