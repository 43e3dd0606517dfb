// Package vectorstore defines the interface the retrieval core consumes to
// persist and search chunk vectors. Implementations live in subpackages.
package vectorstore

import (
	"context"
	"errors"

	"evalrag/internal/model"
)

// ErrDuplicateID is returned by Add when one of the ids already exists in
// the collection.
var ErrDuplicateID = errors.New("duplicate chunk id")

// Metadata fields supported by equality filters.
const (
	FilterCategory = "category"
	FilterFilename = "filename"
)

// Filter restricts an operation to chunks whose metadata field equals the
// given value.
type Filter struct {
	Field string
	Value string
}

// QueryResult holds a nearest-neighbor answer as parallel arrays, ordered
// ascending by distance (nearest first).
type QueryResult struct {
	IDs       []string
	Documents []string
	Metadatas []model.ChunkMetadata
	Distances []float64
}

// GetResult holds an unordered listing as parallel arrays.
type GetResult struct {
	IDs       []string
	Documents []string
	Metadatas []model.ChunkMetadata
}

// Store persists chunk vectors plus metadata and answers nearest-neighbor
// queries. Safe for concurrent reads; writes carry no ordering guarantee
// relative to concurrent reads.
type Store interface {
	// Add appends chunks. Ids must be unique within the collection.
	Add(ctx context.Context, ids []string, documents []string, embeddings [][]float32, metadatas []model.ChunkMetadata) error

	// Query returns up to nResults nearest neighbors of the embedding,
	// optionally restricted by a metadata equality filter.
	Query(ctx context.Context, embedding []float32, nResults int, where *Filter) (*QueryResult, error)

	// GetAll lists stored chunks, optionally filtered. No ordering guarantee.
	GetAll(ctx context.Context, where *Filter) (*GetResult, error)

	// Delete removes chunks by id and reports how many were removed.
	Delete(ctx context.Context, ids []string) (int, error)

	// DeleteWhere removes chunks matching the filter and reports the count.
	DeleteWhere(ctx context.Context, where Filter) (int, error)

	// Reset drops every chunk in the collection.
	Reset(ctx context.Context) error

	// Count returns the number of stored chunks.
	Count(ctx context.Context) (int64, error)
}
