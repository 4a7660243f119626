// Package fileref provides addressable byte sources: local files, files
// relative to a base directory or zip archive, and remote URLs.
//
// References are constructed with a location only. The stream is opened on
// the first Open call and cached; Close releases it. Most formats cannot
// rewind, so reading again means building a new reference.
package fileref

import (
	"io"
	"strings"
)

// Reference is one addressable byte source.
type Reference interface {
	// Open returns the underlying stream, opening it on first use.
	Open() (io.Reader, error)
	// Locator returns an absolute path or URL for messages and logs.
	Locator() string
	// Name returns a short display name, usually the last path segment.
	Name() string
	// Close releases the stream. Calling Close on an unopened reference is a no-op.
	Close() error
}

var (
	_ Reference = (*LocalFile)(nil)
	_ Reference = (*Relative)(nil)
	_ Reference = (*URL)(nil)
)

// IsArchive reports whether base names a zip archive (by suffix, any case).
func IsArchive(base string) bool {
	return strings.HasSuffix(strings.ToLower(base), ".zip")
}
