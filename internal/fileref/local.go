package fileref

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/starford/tablekit/internal/apperr"
	"github.com/starford/tablekit/internal/securepath"
)

// LocalFile points directly at one file; its base is the parent directory.
type LocalFile struct {
	path string
	f    *os.File
}

// NewLocalFile creates a reference to the file at p. No I/O happens here.
func NewLocalFile(p string) *LocalFile {
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	return &LocalFile{path: p}
}

// Base returns the directory containing the file.
func (l *LocalFile) Base() string { return filepath.Dir(l.path) }

func (l *LocalFile) Open() (io.Reader, error) {
	if l.f != nil {
		return l.f, nil
	}
	f, err := os.Open(l.path)
	if err != nil {
		return nil, &apperr.IOError{Op: "open", Locator: l.path, Err: err}
	}
	l.f = f
	return f, nil
}

func (l *LocalFile) Locator() string { return l.path }

func (l *LocalFile) Name() string { return filepath.Base(l.path) }

func (l *LocalFile) Close() error {
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}

// Relative is a file addressed relative to a base. When the base is a zip
// archive the relative path names an archive entry; otherwise it is resolved
// against the base directory through securepath.
type Relative struct {
	base      string
	rel       string
	inArchive bool

	rc io.ReadCloser
}

// NewRelative creates a reference to rel under base. No I/O happens here.
func NewRelative(base, rel string) *Relative {
	if abs, err := filepath.Abs(base); err == nil {
		base = abs
	}
	return &Relative{base: base, rel: rel, inArchive: IsArchive(base)}
}

// Base returns the base directory or archive path.
func (r *Relative) Base() string { return r.base }

// InArchive reports whether the reference addresses a zip archive entry.
func (r *Relative) InArchive() bool { return r.inArchive }

func (r *Relative) Open() (io.Reader, error) {
	if r.rc != nil {
		return r.rc, nil
	}

	if r.inArchive {
		data, err := readArchiveEntry(r.base, r.rel)
		if err != nil {
			return nil, err
		}
		r.rc = io.NopCloser(bytes.NewReader(data))
		return r.rc, nil
	}

	resolved, err := securepath.Resolve(r.rel, r.base)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(resolved)
	if err != nil {
		return nil, &apperr.IOError{Op: "open", Locator: r.Locator(), Err: err}
	}
	r.rc = f
	return f, nil
}

// Locator joins base and relative path. For archive entries the archive path
// is followed by the entry name.
func (r *Relative) Locator() string {
	if r.inArchive {
		return r.base + "/" + strings.TrimPrefix(filepath.ToSlash(r.rel), "/")
	}
	return filepath.Join(r.base, filepath.FromSlash(strings.ReplaceAll(r.rel, `\`, "/")))
}

func (r *Relative) Name() string {
	return path.Base(strings.ReplaceAll(r.rel, `\`, "/"))
}

func (r *Relative) Close() error {
	if r.rc == nil {
		return nil
	}
	err := r.rc.Close()
	r.rc = nil
	if err != nil {
		return fmt.Errorf("fileref: close %s: %w", r.Locator(), err)
	}
	return nil
}
