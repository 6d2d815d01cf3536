package fs

import (
	"bytes"
	"fmt"
	iofs "io/fs"
	"os"

	"github.com/natefinch/atomic"
)

// Real is the production [FS] backed by the os package.
type Real struct{}

// NewReal returns the production filesystem.
func NewReal() *Real {
	return &Real{}
}

// ReadFile reads the named file.
func (*Real) ReadFile(path string) ([]byte, error) {
	content, err := os.ReadFile(path) //nolint:gosec // paths come from the model directory
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	return content, nil
}

// WriteFileAtomic writes data via temp file + rename.
func (*Real) WriteFileAtomic(path string, data []byte) error {
	writeErr := atomic.WriteFile(path, bytes.NewReader(data))
	if writeErr != nil {
		return fmt.Errorf("writing %s: %w", path, writeErr)
	}

	// atomic.WriteFile doesn't set permissions for new files.
	chmodErr := os.Chmod(path, FilePerms)
	if chmodErr != nil {
		return fmt.Errorf("setting permissions on %s: %w", path, chmodErr)
	}

	return nil
}

// MkdirAll creates a directory and parents.
func (*Real) MkdirAll(path string) error {
	err := os.MkdirAll(path, DirPerms)
	if err != nil {
		return fmt.Errorf("creating directory %s: %w", path, err)
	}

	return nil
}

// Remove deletes the named file.
func (*Real) Remove(path string) error {
	err := os.Remove(path)
	if err != nil {
		return fmt.Errorf("removing %s: %w", path, err)
	}

	return nil
}

// ReadDir lists a directory.
func (*Real) ReadDir(path string) ([]iofs.DirEntry, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("reading directory %s: %w", path, err)
	}

	return entries, nil
}

// Stat returns file info.
func (*Real) Stat(path string) (os.FileInfo, error) {
	return os.Stat(path)
}
