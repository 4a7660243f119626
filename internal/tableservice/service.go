// Package tableservice coordinates the workspace, the data sources and the
// catalog for the API and MCP surfaces.
package tableservice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"path"
	"strings"

	"github.com/starford/tablekit/internal/apperr"
	"github.com/starford/tablekit/internal/catalog"
	"github.com/starford/tablekit/internal/datasource"
	"github.com/starford/tablekit/internal/foreignkey"
	"github.com/starford/tablekit/internal/models"
	"github.com/starford/tablekit/internal/storage"
)

// RowPage is one page of a resource's data rows.
type RowPage struct {
	Name    string     `json:"name"`
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
	Total   int        `json:"total"`
	Limit   int        `json:"limit"`
	Offset  int        `json:"offset"`
}

// Preview is the head of a remote table.
type Preview struct {
	Locator string     `json:"locator"`
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// KeyReport is the structural verdict on one foreign key declaration.
type KeyReport struct {
	ForeignKey *foreignkey.ForeignKey `json:"foreign_key"`
	Valid      bool                   `json:"valid"`
	Errors     []string               `json:"errors"`
}

// KeyCheck lists the rows breaking one foreign key.
type KeyCheck struct {
	ForeignKey *foreignkey.ForeignKey `json:"foreign_key"`
	Violations []catalog.Violation    `json:"violations"`
}

// Service coordinates storage, data sources and the catalog.
type Service struct {
	store  storage.Provider
	db     *catalog.DB
	format datasource.Format
	client *http.Client
}

// NewService creates a new table service. format is the dialect of the
// workspace's delimited files; client is used for URL previews.
func NewService(store storage.Provider, db *catalog.DB, format datasource.Format, client *http.Client) *Service {
	if client == nil {
		client = http.DefaultClient
	}
	return &Service{store: store, db: db, format: format, client: client}
}

// Format returns the workspace dialect.
func (s *Service) Format() datasource.Format { return s.format }

// ListResources returns every cataloged resource.
func (s *Service) ListResources(_ context.Context) ([]models.Resource, error) {
	return s.db.ListResources()
}

// GetResource returns one cataloged resource.
func (s *Service) GetResource(_ context.Context, name string) (*models.Resource, error) {
	return s.db.GetResource(name)
}

// Rows returns a page of data rows from the catalog.
func (s *Service) Rows(_ context.Context, name string, limit, offset int) (*RowPage, error) {
	r, err := s.db.GetResource(name)
	if err != nil {
		return nil, err
	}
	rows, total, err := s.db.Rows(name, limit, offset)
	if err != nil {
		return nil, err
	}
	return &RowPage{
		Name:    r.Name,
		Headers: nonNilSlice(r.Headers),
		Rows:    rows,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
	}, nil
}

// Source opens a fresh data source over the resource's file. The file is
// resolved inside the workspace root.
func (s *Service) Source(ctx context.Context, name string) (*datasource.Source, error) {
	r, err := s.GetResource(ctx, name)
	if err != nil {
		return nil, err
	}
	if storage.IsJSON(r.Path) {
		src, err := datasource.FromJSONFile(r.Path, s.store.Root())
		return src, notFound(err)
	}
	return datasource.FromFile(r.Path, s.store.Root(), datasource.WithFormat(s.format))
}

// Export re-reads the resource file and writes it to w in out.
func (s *Service) Export(ctx context.Context, name string, w io.Writer, out datasource.Format) error {
	src, err := s.Source(ctx, name)
	if err != nil {
		return err
	}
	return notFound(src.WriteDelimited(w, &out))
}

// PutResource validates body by parsing it, stores it as <name>.csv in the
// workspace dialect and catalogs it. isJSON selects the JSON array of
// objects reader. ifMatch, when set, must equal the current checksum.
// created reports whether the resource is new.
func (s *Service) PutResource(_ context.Context, name string, body []byte, isJSON bool, ifMatch string) (res *models.Resource, created bool, err error) {
	name = strings.TrimSuffix(strings.Trim(name, "/"), ".csv")
	if name == "" || strings.HasPrefix(path.Base(name), ".") {
		return nil, false, fmt.Errorf("tableservice: invalid resource name %q: %w", name, apperr.ErrType)
	}
	target := name + ".csv"

	existing, err := s.db.GetResource(name)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		created = true
		if ifMatch != "" {
			return nil, false, apperr.ErrNotFound
		}
	case err != nil:
		return nil, false, err
	case existing.Path != target:
		return nil, false, fmt.Errorf("tableservice: %s is backed by %s: %w", name, existing.Path, apperr.ErrConflict)
	case ifMatch != "" && ifMatch != existing.Checksum:
		return nil, false, apperr.ErrConflict
	}

	var src *datasource.Source
	if isJSON {
		src, err = datasource.FromJSON(bytes.NewReader(body))
	} else {
		src, err = datasource.FromText(string(body), datasource.WithFormat(s.format))
	}
	if err != nil {
		return nil, false, err
	}

	var buf bytes.Buffer
	if err := src.WriteDelimited(&buf, &s.format); err != nil {
		return nil, false, err
	}
	if err := s.store.Write(target, buf.Bytes()); err != nil {
		return nil, false, err
	}
	res, err = catalog.IngestFile(s.db, s.store, target, s.format)
	if err != nil {
		return nil, false, err
	}
	return res, created, nil
}

// DeleteResource removes a resource file and its catalog entry.
func (s *Service) DeleteResource(_ context.Context, name string) error {
	r, err := s.db.GetResource(name)
	if err != nil {
		return err
	}
	if err := s.store.Delete(r.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return s.db.DeleteResource(name)
}

// PreviewURL fetches a remote table and returns its header and at most
// limit rows. URLs ending in .json are read as a JSON array of objects.
func (s *Service) PreviewURL(_ context.Context, rawURL string, limit int) (*Preview, error) {
	var (
		src *datasource.Source
		err error
	)
	opts := []datasource.Option{datasource.WithHTTPClient(s.client), datasource.WithFormat(s.format)}
	if storage.IsJSON(strings.SplitN(rawURL, "?", 2)[0]) {
		src, err = datasource.FromJSONURL(rawURL, opts...)
	} else {
		src, err = datasource.FromURL(rawURL, opts...)
	}
	if err != nil {
		return nil, err
	}

	it, err := src.Iterator()
	if err != nil {
		return nil, err
	}
	defer it.Close()

	p := &Preview{Locator: src.Locator(), Headers: nonNilSlice(it.Headers()), Rows: [][]string{}}
	for (limit <= 0 || len(p.Rows) < limit) && it.Next() {
		p.Rows = append(p.Rows, it.Row())
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return p, nil
}

// ValidateForeignKeys checks the shape of one declaration or an array of
// them. In strict mode the first invalid declaration is returned as an
// error; otherwise every declaration gets a report.
func (s *Service) ValidateForeignKeys(_ context.Context, doc []byte, strict bool) ([]KeyReport, error) {
	fks, err := foreignkey.ParseAll(doc, strict)
	if err != nil {
		return nil, err
	}
	out := make([]KeyReport, len(fks))
	for i, fk := range fks {
		msgs := []string{}
		for _, e := range fk.Errors() {
			msgs = append(msgs, e.Error())
		}
		out[i] = KeyReport{ForeignKey: fk, Valid: fk.Valid(), Errors: msgs}
	}
	return out, nil
}

// CheckForeignKeys validates the declarations strictly, then looks up the
// key tuples of resource in the referenced resources.
func (s *Service) CheckForeignKeys(_ context.Context, resource string, doc []byte) ([]KeyCheck, error) {
	fks, err := foreignkey.ParseAll(doc, true)
	if err != nil {
		return nil, err
	}
	out := make([]KeyCheck, len(fks))
	for i, fk := range fks {
		v, err := s.db.CheckForeignKey(resource, fk)
		if err != nil {
			return nil, err
		}
		out[i] = KeyCheck{ForeignKey: fk, Violations: v}
	}
	return out, nil
}

func notFound(err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %w", apperr.ErrNotFound, err)
	}
	return err
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
