// Package storage defines the data workspace file-system abstraction.
package storage

import "github.com/starford/tablekit/internal/models"

// Provider is the interface for workspace file operations. Every path is
// relative to the workspace root.
type Provider interface {
	// Root returns the absolute workspace directory.
	Root() string
	// List returns every .csv and .json file under dir.
	List(dir string) ([]models.DataFile, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
	// Delete removes the file at path.
	Delete(path string) error
}
