package internal

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/goccy/go-json"

	"github.com/starford/tablekit/internal/datasource"
	"github.com/starford/tablekit/internal/foreignkey"
)

// openLocator opens an http(s) URL or a file resolved inside workDir.
// Locators ending in .json are read as a JSON array of objects.
func openLocator(cfg *Config, locator, workDir string) (*datasource.Source, error) {
	format, err := cfg.Data.Format.Dialect()
	if err != nil {
		return nil, fmt.Errorf("data format: %w", err)
	}
	client := &http.Client{Timeout: cfg.Remote.Timeout}
	opts := []datasource.Option{datasource.WithFormat(format), datasource.WithHTTPClient(client)}

	isJSON := strings.EqualFold(path.Ext(strings.SplitN(locator, "?", 2)[0]), ".json")
	if strings.HasPrefix(locator, "http://") || strings.HasPrefix(locator, "https://") {
		if isJSON {
			return datasource.FromJSONURL(locator, opts...)
		}
		return datasource.FromURL(locator, opts...)
	}
	if isJSON {
		return datasource.FromJSONFile(locator, workDir, opts...)
	}
	return datasource.FromFile(locator, workDir, opts...)
}

// PrintHeaders writes the header row of locator as a JSON array.
func PrintHeaders(_ context.Context, locator, workDir string, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	src, err := openLocator(app.config, locator, workDir)
	if err != nil {
		return err
	}
	headers, err := src.Headers()
	if err != nil {
		return err
	}
	if headers == nil {
		headers = []string{}
	}
	return json.NewEncoder(app.stdout).Encode(headers)
}

// PrintRows writes at most limit data rows of locator, one JSON array per
// line. A limit <= 0 prints every row.
func PrintRows(ctx context.Context, locator, workDir string, limit int, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	src, err := openLocator(app.config, locator, workDir)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(app.stdout)
	enc := json.NewEncoder(w)
	n := 0
	for row, err := range src.All() {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if limit > 0 && n == limit {
			break
		}
		if err := enc.Encode(row); err != nil {
			return err
		}
		n++
	}
	return w.Flush()
}

// Export re-renders locator as delimited text in out.
func Export(_ context.Context, locator, workDir string, out datasource.Format, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	if err := out.Validate(); err != nil {
		return fmt.Errorf("output format: %w", err)
	}
	src, err := openLocator(app.config, locator, workDir)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(app.stdout)
	if err := src.WriteDelimited(w, &out); err != nil {
		return err
	}
	return w.Flush()
}

// KeyReport is the verdict on one declaration printed by CheckDeclarations.
type KeyReport struct {
	ForeignKey *foreignkey.ForeignKey `json:"foreign_key"`
	Valid      bool                   `json:"valid"`
	Errors     []string               `json:"errors,omitempty"`
}

// CheckDeclarations validates the foreign key declarations in file. YAML
// files (.yaml, .yml) hold a single declaration; JSON files hold one or an
// array. Each verdict is printed as a JSON line. An error is returned when
// any declaration is invalid.
func CheckDeclarations(_ context.Context, file string, strict bool, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	doc, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read declarations: %w", err)
	}

	var fks []*foreignkey.ForeignKey
	switch strings.ToLower(path.Ext(file)) {
	case ".yaml", ".yml":
		fk, err := foreignkey.ParseYAML(doc, strict)
		if err != nil {
			return err
		}
		fks = []*foreignkey.ForeignKey{fk}
	default:
		if fks, err = foreignkey.ParseAll(doc, strict); err != nil {
			return err
		}
	}

	enc := json.NewEncoder(app.stdout)
	invalid := 0
	for _, fk := range fks {
		rep := KeyReport{ForeignKey: fk, Valid: fk.Valid()}
		for _, e := range fk.Errors() {
			rep.Errors = append(rep.Errors, e.Error())
		}
		if !rep.Valid {
			invalid++
		}
		if err := enc.Encode(rep); err != nil {
			return err
		}
	}
	if invalid > 0 {
		return fmt.Errorf("%d of %d foreign key declarations invalid", invalid, len(fks))
	}
	return nil
}
