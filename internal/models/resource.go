// Package models defines the domain types for tablekit.
package models

import "time"

// DataFile is a data file found in the workspace by a storage listing.
type DataFile struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Resource is a table known to the catalog. Its name is the data file path
// relative to the workspace root, slash-separated and without extension.
type Resource struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	Headers   []string  `json:"headers"`
	RowCount  int       `json:"row_count"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Table is a resource with its rows, as stored by the catalog.
type Table struct {
	Resource
	Rows [][]string `json:"-"`
}
