// Package fsadapter is the host-supplied filesystem abstraction
// consumed by the transaction store, configuration registry, and
// smart-charging profile persistence.
package fsadapter

import (
	"io"
)

// File is a handle returned by Open, supporting read/write/seek/close.
type File interface {
	io.ReadWriteCloser
	io.Seeker
}

// OpenMode selects the access mode for Open.
type OpenMode int

const (
	// ModeRead opens an existing file for reading only.
	ModeRead OpenMode = iota
	// ModeWrite truncates (or creates) a file for writing.
	ModeWrite
	// ModeAppend opens (or creates) a file for append-only writing.
	ModeAppend
)

// VisitFunc is invoked by Ftw for each path matching the enumeration
// prefix. Returning an error aborts the walk.
type VisitFunc func(path string, size int64) error

// FS is the filesystem contract the core depends on. Every path is
// relative to the adapter's configured path_prefix; implementations
// prepend it themselves so core code never constructs host paths.
type FS interface {
	// Stat returns the size of path, or ok=false if it doesn't exist.
	Stat(path string) (size int64, ok bool)
	// Open opens path in the given mode.
	Open(path string, mode OpenMode) (File, error)
	// Remove deletes path. Returns false if the path didn't exist or
	// deletion failed.
	Remove(path string) bool
	// Ftw enumerates every path with the given prefix, depth-first,
	// invoking visit for each regular file found.
	Ftw(prefix string, visit VisitFunc) error
}

// ReadAll is a convenience that opens path for reading and returns its
// full contents, mirroring the common open+read+close sequence used by
// the transaction store and configuration registry on every load.
func ReadAll(fs FS, path string) ([]byte, error) {
	f, err := fs.Open(path, ModeRead)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// WriteAll is the write-side convenience: open for write, write the
// full buffer, close. Implementations are expected to make this atomic
// with respect to a concurrent Stat/Open/Ftw from the same adapter.
func WriteAll(fs FS, path string, data []byte) error {
	f, err := fs.Open(path, ModeWrite)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
