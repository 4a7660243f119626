package api

import (
	"github.com/starford/tablekit/internal/models"
	"github.com/starford/tablekit/internal/tableservice"
)

// Resource is a cataloged table (aliased from the domain layer).
type Resource = models.Resource

// RowPage is a page of data rows (aliased from the domain layer).
type RowPage = tableservice.RowPage

// ResourceListResponse wraps the resource listing.
type ResourceListResponse struct {
	Resources []Resource `json:"resources" validate:"required"`
	Total     int        `json:"total" example:"3" validate:"required"`
}

// PreviewResponse is the head of a remote table.
type PreviewResponse = tableservice.Preview

// ValidateResponse lists the structural verdict per declaration.
type ValidateResponse struct {
	Valid   bool                     `json:"valid"`
	Reports []tableservice.KeyReport `json:"reports" validate:"required"`
}

// CheckResponse lists the violating rows per declaration.
type CheckResponse struct {
	Resource   string                  `json:"resource" example:"orders" validate:"required"`
	Violations int                     `json:"violations" example:"0"`
	Checks     []tableservice.KeyCheck `json:"checks" validate:"required"`
}
