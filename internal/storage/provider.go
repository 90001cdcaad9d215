// Package storage defines the document store that backs the change feed.
//
// A store root holds one directory per collection; every YAML or JSON file
// in a collection directory is one document whose id is the file stem.
package storage

import "github.com/starford/aislemap/internal/models"

// Provider is the interface for collection document operations.
type Provider interface {
	// Dir returns the absolute directory of a collection, creating it if needed.
	Dir(collection string) (string, error)
	// List returns metadata for every document in collection, sorted by id.
	List(collection string) ([]models.DocumentMeta, error)
	// Read returns the raw bytes of a document.
	Read(collection, id string) ([]byte, error)
	// Write atomically writes a document, replacing any existing one.
	Write(collection, id string, content []byte) error
	// Delete removes a document. Missing documents yield apperr.ErrNotFound.
	Delete(collection, id string) error
}
