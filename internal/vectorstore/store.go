package vectorstore

import (
	"context"

	"insurekb/internal/document"
)

// Metadata is the per-chunk payload stored alongside text and vector.
type Metadata struct {
	DocID      string
	Title      string
	Section    string
	Page       int
	SourcePath string
	ChunkIndex int
}

// Store persists (text, vector, metadata) tuples and serves filtered
// nearest-neighbor search. Records are created by ingest, never mutated, and
// deleted only by dropping the whole collection.
type Store interface {
	// EnsureCollection creates the collection if absent. Idempotent.
	EnsureCollection(ctx context.Context, dimension int) error
	// Upsert stores one point per chunk. The three slices must have equal
	// length; a mismatch is a programming error and fails the whole batch.
	Upsert(ctx context.Context, texts []string, vectors [][]float32, metadata []Metadata) (int, error)
	// Search returns up to topK passages ranked by similarity. Recognized
	// filter keys: "product" (matches title) and "doc_id" (exact); others
	// are ignored.
	Search(ctx context.Context, vector []float32, topK int, filters map[string]string) ([]document.Passage, error)
	Count(ctx context.Context) (int, error)
	Drop(ctx context.Context) error
}
