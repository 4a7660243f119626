package catalog

import (
	"bytes"
	"fmt"
	"time"

	"github.com/starford/tablekit/internal/checksum"
	"github.com/starford/tablekit/internal/datasource"
	"github.com/starford/tablekit/internal/models"
	"github.com/starford/tablekit/internal/storage"
)

// IngestFile reads a workspace data file and stores its headers and rows.
// .json files are read as a JSON array of objects; anything else is parsed
// as delimited text in format.
func IngestFile(db *DB, store storage.Provider, path string, format datasource.Format) (*models.Resource, error) {
	data, err := store.Read(path)
	if err != nil {
		return nil, err
	}
	return ingest(db, path, data, format)
}

func ingest(db *DB, path string, data []byte, format datasource.Format) (*models.Resource, error) {
	src, err := OpenData(path, data, format)
	if err != nil {
		return nil, err
	}
	headers, err := src.Headers()
	if err != nil {
		return nil, err
	}
	rows, err := src.Rows()
	if err != nil {
		return nil, err
	}

	t := models.Table{
		Resource: models.Resource{
			Name:      storage.ResourceName(path),
			Path:      path,
			Checksum:  checksum.Sum(data),
			Headers:   headers,
			RowCount:  len(rows),
			UpdatedAt: time.Now().UTC(),
		},
		Rows: rows,
	}
	if err := db.UpsertResource(t); err != nil {
		return nil, err
	}
	return &t.Resource, nil
}

// OpenData builds a source over the raw bytes of a workspace data file.
func OpenData(path string, data []byte, format datasource.Format) (*datasource.Source, error) {
	if storage.IsJSON(path) {
		src, err := datasource.FromJSON(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("catalog: %s: %w", path, err)
		}
		return src, nil
	}
	return datasource.FromText(string(data), datasource.WithFormat(format))
}
