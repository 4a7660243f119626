package fileref

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/starford/tablekit/internal/apperr"
)

// URL is a remote byte source fetched with an HTTP GET on first Open.
// There is no timeout beyond what the supplied client enforces.
type URL struct {
	u      *url.URL
	client *http.Client

	body io.ReadCloser
}

// NewURL creates a reference to u. A nil client means http.DefaultClient.
func NewURL(u *url.URL, client *http.Client) *URL {
	if client == nil {
		client = http.DefaultClient
	}
	return &URL{u: u, client: client}
}

// ParseURL parses raw and creates a reference to it.
func ParseURL(raw string, client *http.Client) (*URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("fileref: parse url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("fileref: unsupported url scheme %q", u.Scheme)
	}
	return NewURL(u, client), nil
}

func (r *URL) Open() (io.Reader, error) {
	if r.body != nil {
		return r.body, nil
	}
	resp, err := r.client.Get(r.u.String())
	if err != nil {
		return nil, &apperr.IOError{Op: "get", Locator: r.Locator(), Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, &apperr.IOError{Op: "get", Locator: r.Locator(), Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}
	r.body = resp.Body
	return r.body, nil
}

func (r *URL) Locator() string { return r.u.String() }

// Name is the final path segment, or the host when the path is empty.
func (r *URL) Name() string {
	p := strings.TrimSuffix(r.u.Path, "/")
	if p == "" {
		return r.u.Host
	}
	return path.Base(p)
}

func (r *URL) Close() error {
	if r.body == nil {
		return nil
	}
	err := r.body.Close()
	r.body = nil
	return err
}
