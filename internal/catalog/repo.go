package catalog

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/starford/tablekit/internal/apperr"
	"github.com/starford/tablekit/internal/models"
)

// UpsertResource inserts or replaces a resource and all of its rows within
// a transaction.
func (db *DB) UpsertResource(t models.Table) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("catalog: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	headers := t.Headers
	if headers == nil {
		headers = []string{}
	}
	headersJSON, err := json.Marshal(headers)
	if err != nil {
		return fmt.Errorf("catalog: encode headers: %w", err)
	}

	// A path may move to a new name; drop whatever it was stored as before.
	if _, err := tx.Exec(`DELETE FROM resources WHERE path = ? AND name <> ?`, t.Path, t.Name); err != nil {
		return fmt.Errorf("catalog: clear old name: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO resources (name, path, checksum, headers, row_count, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			path       = excluded.path,
			checksum   = excluded.checksum,
			headers    = excluded.headers,
			row_count  = excluded.row_count,
			updated_at = excluded.updated_at
	`, t.Name, t.Path, t.Checksum, string(headersJSON), len(t.Rows), t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("catalog: upsert resource: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM resource_rows WHERE resource = ?`, t.Name); err != nil {
		return fmt.Errorf("catalog: clear rows: %w", err)
	}
	if len(t.Rows) > 0 {
		stmt, err := tx.Prepare(`INSERT INTO resource_rows (resource, ordinal, cells) VALUES (?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("catalog: prepare row insert: %w", err)
		}
		defer stmt.Close()
		for i, row := range t.Rows {
			cells, err := json.Marshal(row)
			if err != nil {
				return fmt.Errorf("catalog: encode row %d: %w", i+1, err)
			}
			if _, err := stmt.Exec(t.Name, i+1, string(cells)); err != nil {
				return fmt.Errorf("catalog: insert row %d: %w", i+1, err)
			}
		}
	}

	return tx.Commit()
}

// DeleteResource removes a resource and its rows.
func (db *DB) DeleteResource(name string) error {
	res, err := db.conn.Exec(`DELETE FROM resources WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("catalog: delete resource: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("catalog: resource %q: %w", name, apperr.ErrNotFound)
	}
	return nil
}

// DeletePath removes the resource stored for a workspace path and returns
// its name. A path that was never cataloged is not an error; the returned
// name is then empty.
func (db *DB) DeletePath(path string) (string, error) {
	var name string
	err := db.conn.QueryRow(`SELECT name FROM resources WHERE path = ?`, path).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("catalog: lookup path: %w", err)
	}
	if _, err := db.conn.Exec(`DELETE FROM resources WHERE name = ?`, name); err != nil {
		return "", fmt.Errorf("catalog: delete path: %w", err)
	}
	return name, nil
}

const resourceColumns = `name, path, checksum, headers, row_count, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanResource(s scanner) (*models.Resource, error) {
	var (
		r       models.Resource
		headers string
	)
	if err := s.Scan(&r.Name, &r.Path, &r.Checksum, &headers, &r.RowCount, &r.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(headers), &r.Headers); err != nil {
		return nil, fmt.Errorf("catalog: decode headers of %s: %w", r.Name, err)
	}
	return &r, nil
}

// GetResource returns one resource or an error matching apperr.ErrNotFound.
func (db *DB) GetResource(name string) (*models.Resource, error) {
	row := db.conn.QueryRow(`SELECT `+resourceColumns+` FROM resources WHERE name = ?`, name)
	r, err := scanResource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("catalog: resource %q: %w", name, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: get resource: %w", err)
	}
	return r, nil
}

// ListResources returns every resource ordered by name.
func (db *DB) ListResources() ([]models.Resource, error) {
	rows, err := db.conn.Query(`SELECT ` + resourceColumns + ` FROM resources ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("catalog: list resources: %w", err)
	}
	defer rows.Close()

	out := []models.Resource{}
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// Rows returns a page of data rows in file order plus the total row count.
// A limit <= 0 returns every row from offset on.
func (db *DB) Rows(name string, limit, offset int) ([][]string, int, error) {
	r, err := db.GetResource(name)
	if err != nil {
		return nil, 0, err
	}
	if limit <= 0 {
		limit = -1
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := db.conn.Query(`
		SELECT cells FROM resource_rows
		WHERE resource = ?
		ORDER BY ordinal
		LIMIT ? OFFSET ?
	`, name, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("catalog: rows: %w", err)
	}
	defer rows.Close()

	out := [][]string{}
	for rows.Next() {
		var cells string
		if err := rows.Scan(&cells); err != nil {
			return nil, 0, err
		}
		var rec []string
		if err := json.Unmarshal([]byte(cells), &rec); err != nil {
			return nil, 0, fmt.Errorf("catalog: decode row: %w", err)
		}
		out = append(out, rec)
	}
	return out, r.RowCount, rows.Err()
}

// AllChecksums returns a map of workspace path to stored checksum.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM resources`)
	if err != nil {
		return nil, fmt.Errorf("catalog: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}
