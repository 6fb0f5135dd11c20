package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidKey is returned for keys that are absolute or escape the archive directory.
var ErrInvalidKey = errors.New("invalid archive key")

// Archive keeps uploaded files on local disk under a base directory.
// Keys are slash-separated paths relative to that directory.
type Archive struct {
	baseDir string
}

// NewArchive ensures the base directory exists and returns a handle.
func NewArchive(baseDir string) (*Archive, error) {
	if baseDir == "" {
		baseDir = "./uploads"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}
	return &Archive{baseDir: baseDir}, nil
}

// Save writes data under key, replacing any previous content, and returns the key.
func (a *Archive) Save(key string, data []byte) (string, error) {
	path, err := a.resolve(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("prepare upload directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write upload: %w", err)
	}
	return key, nil
}

// Open returns a reader for key together with its size.
func (a *Archive) Open(key string) (io.ReadCloser, int64, error) {
	path, err := a.resolve(key)
	if err != nil {
		return nil, 0, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open upload: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, 0, fmt.Errorf("stat upload: %w", err)
	}
	return file, info.Size(), nil
}

// Delete removes key if present.
func (a *Archive) Delete(key string) error {
	path, err := a.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete upload: %w", err)
	}
	return nil
}

func (a *Archive) resolve(key string) (string, error) {
	if key == "" || filepath.IsAbs(key) || strings.HasPrefix(key, "/") {
		return "", ErrInvalidKey
	}
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", ErrInvalidKey
	}
	return filepath.Join(a.baseDir, clean), nil
}
