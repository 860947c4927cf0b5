package embed

import "context"

// Embedder maps text to fixed-dimension vectors. EmbedBatch preserves input
// order and returns exactly one vector per input text; an empty input yields
// an empty output without a network call.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	EmbedOne(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}
