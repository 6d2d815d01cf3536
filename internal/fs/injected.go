package fs

import (
	"errors"
	iofs "io/fs"
	"os"
)

// InjectedError marks an error as intentionally injected by [Injected].
// It wraps the underlying error so errors.Is/As continue to work.
type InjectedError struct {
	Err error
}

// Error returns the underlying error's message.
func (e *InjectedError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *InjectedError) Unwrap() error {
	return e.Err
}

// IsInjected reports whether err (or any wrapped error) was injected.
func IsInjected(err error) bool {
	var injected *InjectedError

	return errors.As(err, &injected)
}

// Injected wraps an [FS] and fails the Nth atomic write. It exists to
// prove that a persistence failure partway through a multi-file commit
// leaves the in-memory model and the on-disk documents untouched.
//
// FailWriteAt counts from 1. Zero disables injection.
type Injected struct {
	inner FS

	// FailWriteAt is the 1-based index of the WriteFileAtomic call to fail.
	FailWriteAt int

	// Writes counts WriteFileAtomic calls seen so far, including the
	// failed one.
	Writes int
}

// NewInjected wraps inner with write fault injection.
func NewInjected(inner FS) *Injected {
	return &Injected{inner: inner}
}

// errInjectedWrite is the error surfaced by an injected write failure.
var errInjectedWrite = errors.New("injected write failure")

// ReadFile delegates to the wrapped FS.
func (f *Injected) ReadFile(path string) ([]byte, error) {
	return f.inner.ReadFile(path)
}

// WriteFileAtomic fails with an [InjectedError] on the configured call,
// otherwise delegates.
func (f *Injected) WriteFileAtomic(path string, data []byte) error {
	f.Writes++
	if f.FailWriteAt > 0 && f.Writes == f.FailWriteAt {
		return &InjectedError{Err: errInjectedWrite}
	}

	return f.inner.WriteFileAtomic(path, data)
}

// MkdirAll delegates to the wrapped FS.
func (f *Injected) MkdirAll(path string) error {
	return f.inner.MkdirAll(path)
}

// Remove delegates to the wrapped FS.
func (f *Injected) Remove(path string) error {
	return f.inner.Remove(path)
}

// ReadDir delegates to the wrapped FS.
func (f *Injected) ReadDir(path string) ([]iofs.DirEntry, error) {
	return f.inner.ReadDir(path)
}

// Stat delegates to the wrapped FS.
func (f *Injected) Stat(path string) (os.FileInfo, error) {
	return f.inner.Stat(path)
}
