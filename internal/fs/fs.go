// Package fs provides the filesystem seam used by model and changeset
// persistence.
//
// The main types are:
//   - [FS]: interface for the operations persistence needs
//   - [Real]: production implementation (atomic temp+rename writes)
//   - [Injected]: testing implementation that fails selected writes
//
// Every durable document write goes through [FS.WriteFileAtomic] so a
// crashed or failed write never leaves a half-written document behind.
package fs

import (
	"io/fs"
	"os"
)

// Permissions for created directories and files.
const (
	DirPerms  = 0o750
	FilePerms = 0o600
)

// FS defines the filesystem operations used by persistence code.
type FS interface {
	// ReadFile reads the named file. See [os.ReadFile].
	ReadFile(path string) ([]byte, error)

	// WriteFileAtomic writes data to path via temp file + rename and
	// applies [FilePerms]. Existing content is never partially replaced.
	WriteFileAtomic(path string, data []byte) error

	// MkdirAll creates a directory and parents with [DirPerms].
	MkdirAll(path string) error

	// Remove deletes the named file. Removing a missing file is an error.
	Remove(path string) error

	// ReadDir lists a directory. See [os.ReadDir].
	ReadDir(path string) ([]fs.DirEntry, error)

	// Stat returns file info. See [os.Stat].
	Stat(path string) (os.FileInfo, error)
}
