package catalog

import (
	"github.com/starford/tablekit/internal/foreignkey"
	"github.com/starford/tablekit/internal/models"
)

// Catalog defines the catalog operations used by the service layer.
// Consumers should depend on this interface rather than the concrete *DB.
type Catalog interface {
	UpsertResource(t models.Table) error
	DeleteResource(name string) error
	DeletePath(path string) (string, error)
	GetResource(name string) (*models.Resource, error)
	ListResources() ([]models.Resource, error)
	Rows(name string, limit, offset int) ([][]string, int, error)
	AllChecksums() (map[string]string, error)
	CheckForeignKey(name string, fk *foreignkey.ForeignKey) ([]Violation, error)
	Close() error
}

// Verify *DB satisfies Catalog at compile time.
var _ Catalog = (*DB)(nil)
