// Package storage abstracts where generated artifacts (page images, cover
// images, assembled books) live. The pipeline and the recovery sweeper only
// see locators, never paths.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Storage defines the interface for persisting generated artifacts.
type Storage interface {
	// Upload stores data under the given name and returns a locator that
	// can later be passed to Delete.
	Upload(ctx context.Context, data []byte, name string) (string, error)

	// Delete removes the artifact behind the locator. Deleting a missing
	// artifact is not an error: the recovery sweeper re-runs over books
	// whose files may already be gone.
	Delete(ctx context.Context, locator string) error
}

// FileStore implements Storage on the local filesystem under a fixed root
// directory. Locators are paths relative to that root.
type FileStore struct {
	root   string
	logger *slog.Logger
}

// NewFileStore creates a FileStore rooted at dir, creating it if needed.
// If logger is nil, a default logger will be used.
func NewFileStore(dir string, logger *slog.Logger) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("storage directory cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory %s: %w", dir, err)
	}

	return &FileStore{
		root:   dir,
		logger: logger.With(slog.String("component", "file_store")),
	}, nil
}

// Ensure FileStore implements Storage
var _ Storage = (*FileStore)(nil)

// Upload stores data under a sanitized version of name and returns the
// relative locator.
func (s *FileStore) Upload(ctx context.Context, data []byte, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	locator := sanitizeName(name)
	if locator == "" {
		return "", fmt.Errorf("invalid artifact name %q", name)
	}

	path := filepath.Join(s.root, locator)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create artifact directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write artifact %s: %w", locator, err)
	}

	s.logger.Debug("artifact uploaded",
		slog.String("locator", locator),
		slog.Int("bytes", len(data)))
	return locator, nil
}

// Delete removes the artifact behind the locator. A missing file is a no-op.
func (s *FileStore) Delete(ctx context.Context, locator string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	clean := sanitizeName(locator)
	if clean == "" {
		return fmt.Errorf("invalid artifact locator %q", locator)
	}

	err := os.Remove(filepath.Join(s.root, clean))
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Debug("artifact already gone", slog.String("locator", clean))
			return nil
		}
		return fmt.Errorf("failed to delete artifact %s: %w", clean, err)
	}

	s.logger.Debug("artifact deleted", slog.String("locator", clean))
	return nil
}

// sanitizeName normalizes an artifact name into a safe relative path.
// Path traversal segments and absolute prefixes are stripped.
func sanitizeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	clean := filepath.Clean("/" + name)
	clean = strings.TrimPrefix(clean, "/")
	if clean == "" || clean == "." {
		return ""
	}
	return clean
}
