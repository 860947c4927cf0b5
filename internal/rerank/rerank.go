package rerank

import (
	"context"
	"log/slog"

	"insurekb/internal/config"
)

// Reranker scores (query, passage) pairs for relevance. Scores align with
// the passages slice by index.
type Reranker interface {
	Score(ctx context.Context, query string, passages []string) ([]float64, error)
}

// New selects a reranker from configuration: a TEI-style cross-encoder
// service, the Cohere rerank API, or the order-preserving no-op.
func New(cfg config.Config, log *slog.Logger) Reranker {
	switch cfg.RerankProvider {
	case "tei":
		log.Info("using TEI reranker", "url", cfg.RerankerURL)
		return NewTEIClient(cfg.RerankerURL)
	case "cohere":
		if cfg.CohereAPIKey != "" {
			log.Info("using Cohere reranker", "model", cfg.CohereModel)
			return NewCohereClient(cfg.CohereAPIKey, cfg.CohereModel)
		}
		log.Warn("COHERE_API_KEY not set, reranking disabled")
		return Noop{}
	default:
		return Noop{}
	}
}

// Noop assigns scores that preserve the incoming retrieval order, so a sort
// by score is a no-op.
type Noop struct{}

func (Noop) Score(ctx context.Context, query string, passages []string) ([]float64, error) {
	scores := make([]float64, len(passages))
	n := float64(len(passages))
	for i := range scores {
		scores[i] = (n - float64(i)) / n
	}
	return scores, nil
}
