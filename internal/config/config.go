package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port string

	// Optional bearer token for mutating endpoints. Empty disables auth.
	APIKey string

	// Qdrant connection
	QdrantURL        string
	QdrantAPIKey     string
	QdrantCollection string

	// Embeddings
	EmbeddingsBaseURL  string
	EmbeddingsAPIKey   string
	EmbeddingModel     string
	EmbeddingDimension int // 0 = derive from the model name

	// LLM generation
	LLMBaseURL     string
	LLMAPIKey      string
	LLMModel       string
	LLMTemperature float64
	LLMMaxTokens   int

	// Reranking
	RerankProvider string // "tei", "cohere" or "none"
	RerankerURL    string
	CohereAPIKey   string
	CohereModel    string

	// Retrieval pipeline
	TopK            int
	RerankTopK      int
	ChunkSize       int
	ChunkOverlap    int
	MaxContextChars int

	// Guardrails & rate limiting
	MaxQueryLength     int
	BlockedTerms       string // semicolon-delimited
	RateLimitPerMinute int

	// Data paths
	DataDir string
}

func Load() Config {
	return Config{
		Port: envOr("PORT", "8000"),

		APIKey: os.Getenv("API_KEY"),

		QdrantURL:        envOr("QDRANT_URL", "http://localhost:6333"),
		QdrantAPIKey:     os.Getenv("QDRANT_API_KEY"),
		QdrantCollection: envOr("QDRANT_COLLECTION", "insurance_products"),

		EmbeddingsBaseURL:  envOr("EMBEDDINGS_BASE_URL", "https://api.openai.com/v1"),
		EmbeddingsAPIKey:   os.Getenv("OPENAI_API_KEY"),
		EmbeddingModel:     envOr("EMBEDDING_MODEL", "text-embedding-3-large"),
		EmbeddingDimension: envInt("EMBEDDING_DIMENSION", 0),

		LLMBaseURL:     envOr("LLM_BASE_URL", "https://api.openai.com/v1"),
		LLMAPIKey:      os.Getenv("OPENAI_API_KEY"),
		LLMModel:       envOr("LLM_MODEL", "gpt-4o-mini"),
		LLMTemperature: envFloat("LLM_TEMPERATURE", 0.1),
		LLMMaxTokens:   envInt("LLM_MAX_TOKENS", 1500),

		RerankProvider: envOr("RERANK_PROVIDER", "none"),
		RerankerURL:    envOr("RERANKER_URL", "http://localhost:8080"),
		CohereAPIKey:   os.Getenv("COHERE_API_KEY"),
		CohereModel:    envOr("COHERE_RERANK_MODEL", "rerank-multilingual-v3.0"),

		TopK:            envInt("TOP_K", 6),
		RerankTopK:      envInt("RERANK_TOP_K", 3),
		ChunkSize:       envInt("CHUNK_SIZE", 800),
		ChunkOverlap:    envInt("CHUNK_OVERLAP", 150),
		MaxContextChars: envInt("MAX_CONTEXT_CHARS", 12000),

		MaxQueryLength:     envInt("MAX_QUERY_LENGTH", 500),
		BlockedTerms:       envOr("BLOCKED_TERMS", "segredo;credencial;senha;password;token;api_key;hack;inject"),
		RateLimitPerMinute: envInt("RATE_LIMIT_PER_MINUTE", 20),

		DataDir: envOr("DATA_DIR", "/data/pdfs"),
	}
}

func (c Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("CHUNK_SIZE must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 {
		return fmt.Errorf("CHUNK_OVERLAP must not be negative, got %d", c.ChunkOverlap)
	}
	if c.ChunkOverlap >= c.ChunkSize {
		// The splitter window would never advance.
		return fmt.Errorf("CHUNK_OVERLAP (%d) must be smaller than CHUNK_SIZE (%d)", c.ChunkOverlap, c.ChunkSize)
	}
	if c.TopK <= 0 {
		return fmt.Errorf("TOP_K must be positive, got %d", c.TopK)
	}
	if c.RerankTopK <= 0 {
		return fmt.Errorf("RERANK_TOP_K must be positive, got %d", c.RerankTopK)
	}
	if c.MaxQueryLength <= 0 {
		return fmt.Errorf("MAX_QUERY_LENGTH must be positive, got %d", c.MaxQueryLength)
	}
	if c.QdrantURL == "" {
		return fmt.Errorf("QDRANT_URL is required")
	}
	return nil
}

// BlockedTermsList splits the semicolon-delimited blocked terms, lower-cased
// and trimmed, with empty entries dropped.
func (c Config) BlockedTermsList() []string {
	var terms []string
	for _, term := range strings.Split(c.BlockedTerms, ";") {
		term = strings.ToLower(strings.TrimSpace(term))
		if term != "" {
			terms = append(terms, term)
		}
	}
	return terms
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
