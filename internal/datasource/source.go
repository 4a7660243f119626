// Package datasource reads and writes tabular data behind one abstraction,
// whatever the physical form: delimited text, a file (optionally inside a
// zip archive), a URL, or a JSON array of objects.
//
// A Source never keeps a cursor. Every Iterator call re-opens the backing
// data and parses it from the start, since the underlying parsers are
// strictly one-pass. Sources are meant for a single goroutine.
package datasource

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"strings"

	"github.com/starford/tablekit/internal/apperr"
	"github.com/starford/tablekit/internal/fileref"
)

// Source is a tabular data source over exactly one backing variant.
type Source struct {
	backing backing
	format  Format
	client  *http.Client
}

// Option configures a Source.
type Option func(*Source)

// WithFormat sets the dialect used to parse the backing text. Materialized
// JSON input is always read in the default dialect.
func WithFormat(f Format) Option {
	return func(s *Source) { s.format = f }
}

// WithHTTPClient sets the client used for URL sources.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Source) { s.client = c }
}

// File marks a string as a file path for New.
type File struct {
	Path string
}

func build(b func(*Source) (backing, error), opts []Option) (*Source, error) {
	s := &Source{format: DefaultFormat()}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.format.Validate(); err != nil {
		return nil, fmt.Errorf("datasource: invalid format: %w", err)
	}
	bk, err := b(s)
	if err != nil {
		return nil, err
	}
	s.backing = bk
	return s, nil
}

// FromText creates a source over raw delimited text.
func FromText(text string, opts ...Option) (*Source, error) {
	return build(func(*Source) (backing, error) {
		return textBacking{text: text}, nil
	}, opts)
}

// FromFile creates a source over path resolved inside workDir. workDir may
// be a directory or a .zip archive; an empty workDir reads path directly.
func FromFile(path, workDir string, opts ...Option) (*Source, error) {
	return build(func(*Source) (backing, error) {
		if path == "" {
			return nil, fmt.Errorf("datasource: empty file path")
		}
		return fileBacking{path: path, workDir: workDir}, nil
	}, opts)
}

// FromURL creates a source fetched from rawURL on every read.
func FromURL(rawURL string, opts ...Option) (*Source, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("datasource: parse url %q: %w", rawURL, err)
	}
	return fromURL(u, opts)
}

func fromURL(u *url.URL, opts []Option) (*Source, error) {
	return build(func(s *Source) (backing, error) {
		if u.Scheme != "http" && u.Scheme != "https" {
			return nil, fmt.Errorf("datasource: unsupported url scheme %q", u.Scheme)
		}
		return urlBacking{u: u, client: s.client}, nil
	}, opts)
}

// FromJSON reads r to the end, normalizes its JSON array of objects to CSV
// and returns a source over the result. r is not retained.
func FromJSON(r io.Reader, opts ...Option) (*Source, error) {
	return fromJSON(r, "stream", opts)
}

// FromJSONText is FromJSON over a string.
func FromJSONText(text string, opts ...Option) (*Source, error) {
	return fromJSON(strings.NewReader(text), "text", opts)
}

// FromJSONFile is FromJSON over a file resolved like FromFile.
func FromJSONFile(path, workDir string, opts ...Option) (*Source, error) {
	fb := fileBacking{path: path, workDir: workDir}
	rc, err := fb.open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return fromJSON(rc, fb.locator(), opts)
}

// FromJSONURL is FromJSON over the body fetched from rawURL.
func FromJSONURL(rawURL string, opts ...Option) (*Source, error) {
	probe := &Source{}
	for _, opt := range opts {
		opt(probe)
	}
	ref, err := fileref.ParseURL(rawURL, probe.client)
	if err != nil {
		return nil, err
	}
	rc, err := openReference(ref)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return fromJSON(rc, ref.Locator(), opts)
}

func fromJSON(r io.Reader, origin string, opts []Option) (*Source, error) {
	text, err := normalizeJSON(r, origin, defaultJSONConfig)
	if err != nil {
		return nil, err
	}
	return build(func(*Source) (backing, error) {
		return materializedBacking{text: text, origin: origin, normalized: true}, nil
	}, opts)
}

// New builds a source from a dynamically typed value:
//   - string: JSON text when it starts with '[' and parses as an array of
//     objects, delimited text otherwise
//   - File: a file path resolved against workDir
//   - *url.URL: a remote source
//   - fileref.Reference: read to the end and materialized
//   - io.Reader: a stream holding a JSON array of objects
//
// Anything else fails with an *apperr.TypeError.
func New(value any, workDir string, opts ...Option) (*Source, error) {
	switch v := value.(type) {
	case string:
		if strings.HasPrefix(strings.TrimSpace(v), "[") {
			src, err := FromJSONText(v, opts...)
			if !errors.Is(err, apperr.ErrParse) {
				return src, err
			}
		}
		return FromText(v, opts...)
	case File:
		return FromFile(v.Path, workDir, opts...)
	case *url.URL:
		return fromURL(v, opts)
	case fileref.Reference:
		return fromReference(v, opts)
	case io.Reader:
		return FromJSON(v, opts...)
	default:
		return nil, &apperr.TypeError{Value: value}
	}
}

func fromReference(ref fileref.Reference, opts []Option) (*Source, error) {
	defer ref.Close()
	rd, err := ref.Open()
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(rd)
	if err != nil {
		return nil, &apperr.IOError{Op: "read", Locator: ref.Locator(), Err: err}
	}
	return build(func(*Source) (backing, error) {
		return materializedBacking{text: string(data), origin: ref.Locator()}, nil
	}, opts)
}

// Kind reports the backing variant.
func (s *Source) Kind() Kind { return s.backing.kind() }

// Locator describes where the data comes from.
func (s *Source) Locator() string { return s.backing.locator() }

// Format returns the dialect the source is parsed with.
func (s *Source) Format() Format { return s.readFormat() }

func (s *Source) readFormat() Format {
	if mb, ok := s.backing.(materializedBacking); ok && mb.normalized {
		return DefaultFormat()
	}
	return s.format
}

// Headers returns the header row, or nil when the format has none.
func (s *Source) Headers() ([]string, error) {
	it, err := s.Iterator()
	if err != nil {
		return nil, err
	}
	defer it.Close()
	return it.Headers(), nil
}

// Rows returns every data row. The header row is never included.
func (s *Source) Rows() ([][]string, error) {
	it, err := s.Iterator()
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var out [][]string
	for it.Next() {
		out = append(out, it.Row())
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// All iterates the data rows of a fresh parse. A failure is yielded once
// with a nil row and ends the sequence.
func (s *Source) All() iter.Seq2[[]string, error] {
	return func(yield func([]string, error) bool) {
		it, err := s.Iterator()
		if err != nil {
			yield(nil, err)
			return
		}
		defer it.Close()
		for it.Next() {
			if !yield(it.Row(), nil) {
				return
			}
		}
		if err := it.Err(); err != nil {
			yield(nil, err)
		}
	}
}

// WriteDelimited writes the header (when the source has one and f asks for
// it) followed by every data row to w. A nil f means DefaultFormat.
func (s *Source) WriteDelimited(w io.Writer, f *Format) error {
	out := DefaultFormat()
	if f != nil {
		out = *f
	}
	if err := out.Validate(); err != nil {
		return fmt.Errorf("datasource: invalid output format: %w", err)
	}

	it, err := s.Iterator()
	if err != nil {
		return err
	}
	defer it.Close()

	cw := out.writer(w)
	if out.HasHeader && it.Headers() != nil {
		if err := cw.Write(it.Headers()); err != nil {
			return fmt.Errorf("datasource: write header: %w", err)
		}
	}
	for it.Next() {
		if err := cw.Write(it.Row()); err != nil {
			return fmt.Errorf("datasource: write row: %w", err)
		}
	}
	if err := it.Err(); err != nil {
		return err
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("datasource: flush: %w", err)
	}
	return nil
}
