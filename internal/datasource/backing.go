package datasource

import (
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/starford/tablekit/internal/fileref"
)

// Kind names the physical form a Source was built from.
type Kind int

const (
	KindText Kind = iota + 1
	KindFile
	KindURL
	KindMaterialized
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindFile:
		return "file"
	case KindURL:
		return "url"
	case KindMaterialized:
		return "materialized"
	default:
		return "unknown"
	}
}

// backing is the closed set of source variants. Every open call starts a
// new read of the underlying data; nothing is shared between calls.
type backing interface {
	kind() Kind
	locator() string
	open() (io.ReadCloser, error)
}

type textBacking struct {
	text string
}

func (b textBacking) kind() Kind      { return KindText }
func (b textBacking) locator() string { return "text" }
func (b textBacking) open() (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(b.text)), nil
}

type fileBacking struct {
	path    string
	workDir string
}

func (b fileBacking) kind() Kind      { return KindFile }
func (b fileBacking) locator() string { return b.reference().Locator() }

// reference builds a fresh reference per read. An empty workDir trusts the
// path as given; otherwise the path is confined to workDir (or, for a .zip
// workDir, looked up inside the archive).
func (b fileBacking) reference() fileref.Reference {
	if b.workDir == "" {
		return fileref.NewLocalFile(b.path)
	}
	return fileref.NewRelative(b.workDir, b.path)
}

func (b fileBacking) open() (io.ReadCloser, error) {
	return openReference(b.reference())
}

type urlBacking struct {
	u      *url.URL
	client *http.Client
}

func (b urlBacking) kind() Kind      { return KindURL }
func (b urlBacking) locator() string { return b.u.String() }
func (b urlBacking) open() (io.ReadCloser, error) {
	return openReference(fileref.NewURL(b.u, b.client))
}

// materializedBacking holds input read fully into memory. When normalized
// is set the text came from JSON and is always in the default dialect.
type materializedBacking struct {
	text       string
	origin     string
	normalized bool
}

func (b materializedBacking) kind() Kind      { return KindMaterialized }
func (b materializedBacking) locator() string { return b.origin }
func (b materializedBacking) open() (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(b.text)), nil
}

type refReadCloser struct {
	io.Reader
	ref fileref.Reference
}

func (r refReadCloser) Close() error { return r.ref.Close() }

func openReference(ref fileref.Reference) (io.ReadCloser, error) {
	rd, err := ref.Open()
	if err != nil {
		_ = ref.Close()
		return nil, err
	}
	return refReadCloser{Reader: rd, ref: ref}, nil
}
