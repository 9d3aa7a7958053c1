// Package blob stores downloaded document bytes on the local
// filesystem, keyed by an opaque file id.
package blob

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

type Store struct {
	dir string
}

func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("data dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Save writes data under a fresh file id and returns the id.
func (s *Store) Save(data []byte, contentType string) (string, error) {
	fileID := uuid.NewString() + extensionFor(contentType)
	if err := os.WriteFile(filepath.Join(s.dir, fileID), data, 0o644); err != nil {
		return "", fmt.Errorf("writing document: %w", err)
	}
	return fileID, nil
}

// Path resolves a file id to its on-disk path. Ids containing path
// separators are rejected.
func (s *Store) Path(fileID string) (string, error) {
	if fileID == "" || strings.ContainsAny(fileID, `/\`) || strings.Contains(fileID, "..") {
		return "", fmt.Errorf("invalid file id %q", fileID)
	}
	path := filepath.Join(s.dir, fileID)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("document %s: %w", fileID, err)
	}
	return path, nil
}

func extensionFor(contentType string) string {
	if strings.Contains(contentType, "pdf") {
		return ".pdf"
	}
	return ".bin"
}
