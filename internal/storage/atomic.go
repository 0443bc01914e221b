package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ConflictStrategy decides what WriteFile does when the target exists.
type ConflictStrategy int

const (
	ConflictOverwrite ConflictStrategy = iota
	ConflictError
)

// ErrFileExists is returned under ConflictError when the target exists.
var ErrFileExists = errors.New("file already exists")

// WriteFile saves data atomically: readers see either the old file or the
// complete new one, never a torn blob.
func WriteFile(path string, data []byte, mode os.FileMode, strategy ConflictStrategy) error {
	if path == "" {
		return errors.New("empty path")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create parent directory: %w", err)
	}

	if strategy == ConflictError {
		if _, err := os.Lstat(path); err == nil {
			return fmt.Errorf("%w: %s", ErrFileExists, path)
		}
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tempPath := tmp.Name()

	cleanup := func() {
		tmp.Close()
		_ = os.Remove(tempPath)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(mode); err != nil {
		cleanup()
		return fmt.Errorf("chmod temp file: %w", err)
	}

	// Sync to disk
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	// Rename atomically
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("rename temp file: %w", err)
	}

	return nil
}
