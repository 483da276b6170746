// Package vectorstore provides the embedding index for docqd.
package vectorstore

import (
	"context"
	"errors"
)

// Sentinel errors for index operations.
var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrMissingIndex is returned when no persisted index exists at the
	// configured path. Fatal at serving boot.
	ErrMissingIndex = errors.New("persisted index not found")

	// ErrDimensionMismatch is returned when an embedding's dimensionality
	// does not equal the index's configured dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("failed to generate embedding")

	// ErrEmptyText indicates empty text passed to Add.
	ErrEmptyText = errors.New("empty text")
)

// Embedder generates vector embeddings from text.
//
// The output dimension is fixed for the process lifetime and must match
// the index's configured dimension.
type Embedder interface {
	// EmbedDocuments generates embeddings for multiple texts.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Index is the interface for the page embedding index.
//
// Search is safe to run concurrently with Add and other Search calls, but
// Reset is exclusive with everything. Records are immutable once added;
// the only way to remove them is a full Reset.
type Index interface {
	// Add embeds text and appends it plus metadata to the index.
	Add(ctx context.Context, text string, meta PageMeta) error

	// AddWithEmbedding appends a precomputed embedding. Fails with
	// ErrDimensionMismatch if the vector length differs from the
	// configured dimension.
	AddWithEmbedding(ctx context.Context, text string, embedding []float32, meta PageMeta) error

	// Search embeds the query and returns up to k passages ordered by
	// ascending distance. An empty index yields an empty slice, not an
	// error; k larger than the record count returns everything.
	Search(ctx context.Context, query string, k int) ([]Passage, error)

	// Reset discards all records, returning the index to its initial
	// empty state.
	Reset(ctx context.Context) error

	// Count returns the number of indexed records.
	Count() int
}
