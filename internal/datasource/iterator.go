package datasource

import (
	"encoding/csv"
	"errors"
	"io"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/starford/tablekit/internal/apperr"
)

// Iterator is a forward-only pass over one fresh parse of a Source.
// It is released automatically at the end of input or on error; Close
// must still be called on early exit.
type Iterator struct {
	rc      io.ReadCloser
	cr      *csv.Reader
	source  string
	headers []string
	row     []string
	err     error
	done    bool
}

// Iterator re-opens the backing data and starts a new parse. Iterators
// obtained earlier are unaffected and never resumed.
func (s *Source) Iterator() (*Iterator, error) {
	rc, err := s.backing.open()
	if err != nil {
		return nil, err
	}

	f := s.readFormat()
	it := &Iterator{
		rc:     rc,
		cr:     f.reader(stripBOM(rc)),
		source: s.backing.locator(),
	}

	if f.HasHeader {
		rec, err := it.cr.Read()
		switch {
		case errors.Is(err, io.EOF):
			it.finish()
		case err != nil:
			it.Close()
			return nil, wrapReadErr(it.source, err)
		default:
			it.headers = rec
		}
	}
	return it, nil
}

// Headers returns the header row read when the iterator was created.
func (it *Iterator) Headers() []string { return it.headers }

// Next advances to the next data row.
func (it *Iterator) Next() bool {
	if it.done || it.err != nil {
		return false
	}
	rec, err := it.cr.Read()
	if errors.Is(err, io.EOF) {
		it.finish()
		return false
	}
	if err != nil {
		it.err = wrapReadErr(it.source, err)
		it.finish()
		return false
	}
	it.row = rec
	return true
}

// Row returns the current data row.
func (it *Iterator) Row() []string { return it.row }

// Err returns the first error met by Next.
func (it *Iterator) Err() error { return it.err }

// Close releases the underlying stream. It is safe to call more than once.
func (it *Iterator) Close() error {
	it.done = true
	if it.rc == nil {
		return nil
	}
	err := it.rc.Close()
	it.rc = nil
	return err
}

func (it *Iterator) finish() {
	_ = it.Close()
}

// stripBOM drops a UTF-8 byte order mark and decodes UTF-16 input that
// announces itself with one.
func stripBOM(r io.Reader) io.Reader {
	return transform.NewReader(r, unicode.BOMOverride(transform.Nop))
}

func wrapReadErr(source string, err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return &apperr.ParseError{Source: source, Line: pe.Line, Column: pe.Column, Err: pe.Err}
	}
	return &apperr.IOError{Op: "read", Locator: source, Err: err}
}
