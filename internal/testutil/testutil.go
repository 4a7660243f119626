// Package testutil provides shared test helpers for setting up workspaces,
// catalogs and services.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/starford/tablekit/internal/catalog"
	"github.com/starford/tablekit/internal/datasource"
	"github.com/starford/tablekit/internal/storage"
	"github.com/starford/tablekit/internal/tableservice"
)

// TestDB creates a temporary SQLite catalog that is automatically closed.
func TestDB(t *testing.T) *catalog.DB {
	t.Helper()
	db, err := catalog.Open(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestWorkspace creates a temporary data directory with a storage.Provider.
func TestWorkspace(t *testing.T) (string, *storage.FS) {
	t.Helper()
	store, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return store.Root(), store
}

// TestService wires a fresh workspace and catalog into a table service
// using the default dialect.
func TestService(t *testing.T) (*tableservice.Service, *storage.FS, *catalog.DB) {
	t.Helper()
	_, store := TestWorkspace(t)
	db := TestDB(t)
	return tableservice.NewService(store, db, datasource.DefaultFormat(), nil), store, db
}
