// Package pipeline orchestrates the two RAG flows: document ingestion
// (extract, chunk, embed, index) and answering (sanitize, search, rerank,
// generate, cite).
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"insurekb/internal/chunker"
	"insurekb/internal/config"
	"insurekb/internal/document"
	"insurekb/internal/embed"
	"insurekb/internal/extractor"
	"insurekb/internal/guardrail"
	"insurekb/internal/rerank"
	"insurekb/internal/vectorstore"
)

// Query and ingest terminal statuses.
const (
	StatusSuccess   = "success"
	StatusBlocked   = "blocked"
	StatusNoResults = "no_results"
	StatusError     = "error"
)

// IngestResult reports the outcome of one ingestion run. Err is set for
// configuration-class failures (missing directory, nothing to ingest); the
// pipeline stays usable after returning one.
type IngestResult struct {
	FilesProcessed    int     `json:"files_processed"`
	ChunksCreated     int     `json:"chunks_created"`
	DocumentsUpserted int     `json:"documents_upserted"`
	ElapsedSeconds    float64 `json:"elapsed_seconds"`
	Status            string  `json:"status"`
	Err               string  `json:"error,omitempty"`
}

// Usage carries per-request latency and token accounting.
type Usage struct {
	TotalLatencyMS   int64  `json:"total_latency_ms"`
	RetrievalTimeMS  int64  `json:"retrieval_time_ms,omitempty"`
	RerankTimeMS     int64  `json:"rerank_time_ms,omitempty"`
	LLMTimeMS        int64  `json:"llm_time_ms,omitempty"`
	TokensPrompt     int    `json:"tokens_prompt,omitempty"`
	TokensCompletion int    `json:"tokens_completion,omitempty"`
	Model            string `json:"model,omitempty"`
	NumRetrieved     int    `json:"num_retrieved"`
	NumReranked      int    `json:"num_reranked,omitempty"`
	Error            string `json:"error,omitempty"`
}

// AnswerResult is the outcome of one query.
type AnswerResult struct {
	Answer    string              `json:"answer"`
	Citations []document.Citation `json:"citations"`
	Usage     Usage               `json:"usage"`
	Status    string              `json:"status"`
}

// Pipeline composes the extraction, chunking, guardrail and capability
// components. Each Ingest or Answer call is an independent unit of work; the
// pipeline holds no per-request state.
type Pipeline struct {
	embedder  embed.Embedder
	store     vectorstore.Store
	reranker  rerank.Reranker
	generator Generator
	sanitizer *guardrail.Sanitizer
	cfg       config.Config
	log       *slog.Logger

	// Overridable in tests to avoid real sleeps.
	backoff func(attempt int) time.Duration
}

// Generator mirrors llm.Generator; declared here so the pipeline depends on
// the capability, not a concrete provider package.
type Generator interface {
	Generate(ctx context.Context, prompt, systemPrompt string) (document.Generation, error)
}

func New(embedder embed.Embedder, store vectorstore.Store, reranker rerank.Reranker, generator Generator, cfg config.Config, log *slog.Logger) *Pipeline {
	return &Pipeline{
		embedder:  embedder,
		store:     store,
		reranker:  reranker,
		generator: generator,
		sanitizer: guardrail.New(cfg.MaxQueryLength, cfg.BlockedTermsList(), log),
		cfg:       cfg,
		log:       log,
		backoff:   Backoff,
	}
}

// Init establishes the collection with the embedder's declared dimension.
// Called once at startup; every stored vector afterwards has this dimension.
func (p *Pipeline) Init(ctx context.Context) error {
	return p.store.EnsureCollection(ctx, p.embedder.Dimension())
}

// Ingest extracts, chunks, embeds and indexes every supported file in dir
// (non-recursive). Per-file extraction failures are logged and skipped;
// capability failures abort the run.
func (p *Pipeline) Ingest(ctx context.Context, dir string) (IngestResult, error) {
	start := time.Now()
	if dir == "" {
		dir = p.cfg.DataDir
	}
	p.log.Info("starting document ingestion", "dir", dir)

	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return IngestResult{Status: StatusError, Err: "Directory not found: " + dir}, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return IngestResult{}, fmt.Errorf("read directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if !extractor.IsSupportedExtension(path) {
			p.log.Warn("unsupported file format, skipping", "file", entry.Name())
			continue
		}
		files = append(files, path)
	}

	if len(files) == 0 {
		return IngestResult{Status: StatusError, Err: "No documents found"}, nil
	}
	p.log.Info("found documents to ingest", "count", len(files))

	// chunkIndex runs across the whole batch so global chunk order survives
	// into the index.
	var chunks []document.Chunk
	chunkIndex := 0
	for _, path := range files {
		ex, err := extractor.ForFile(path)
		if err != nil {
			p.log.Warn("no extractor for file", "file", path, "error", err)
			continue
		}
		units, err := ex.Extract(path)
		if err != nil {
			// One unreadable file never aborts the batch.
			p.log.Error("extraction failed", "file", path, "error", err)
			continue
		}
		p.log.Info("extracted units", "file", filepath.Base(path), "units", len(units))

		for _, unit := range units {
			unitChunks := chunker.ChunkUnit(unit, path, chunker.Config{
				ChunkSize: p.cfg.ChunkSize,
				Overlap:   p.cfg.ChunkOverlap,
			}, chunkIndex)
			chunkIndex += len(unitChunks)
			chunks = append(chunks, unitChunks...)
		}
	}

	if len(chunks) == 0 {
		return IngestResult{
			FilesProcessed: len(files),
			Status:         StatusError,
			Err:            "No content extracted",
		}, nil
	}
	p.log.Info("created chunks", "count", len(chunks))

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return IngestResult{}, fmt.Errorf("embed chunks: %w", err)
	}

	metadata := make([]vectorstore.Metadata, len(chunks))
	for i, c := range chunks {
		metadata[i] = vectorstore.Metadata{
			DocID:      fmt.Sprintf("%s_%d", c.Title, c.Page),
			Title:      c.Title,
			Section:    c.Section,
			Page:       c.Page,
			SourcePath: c.SourcePath,
			ChunkIndex: c.Index,
		}
	}

	upserted, err := p.store.Upsert(ctx, texts, vectors, metadata)
	if err != nil {
		return IngestResult{}, fmt.Errorf("upsert documents: %w", err)
	}

	result := IngestResult{
		FilesProcessed:    len(files),
		ChunksCreated:     len(chunks),
		DocumentsUpserted: upserted,
		ElapsedSeconds:    math.Round(time.Since(start).Seconds()*100) / 100,
		Status:            StatusSuccess,
	}
	p.log.Info("ingestion complete",
		"files", result.FilesProcessed,
		"chunks", result.ChunksCreated,
		"upserted", result.DocumentsUpserted,
		"elapsed_seconds", result.ElapsedSeconds,
	)
	return result, nil
}

// Answer runs the full query flow: sanitize, embed, search, rerank, generate,
// cite. Blocked queries and empty retrievals short-circuit without touching
// the downstream capabilities.
func (p *Pipeline) Answer(ctx context.Context, query string, topK int, filters map[string]string) (AnswerResult, error) {
	start := time.Now()
	if topK <= 0 {
		topK = p.cfg.TopK
	}

	query, safe := p.sanitizer.Sanitize(query)
	if !safe {
		return AnswerResult{
			Answer:    refusalAnswer,
			Citations: []document.Citation{},
			Usage: Usage{
				TotalLatencyMS: time.Since(start).Milliseconds(),
				Error:          "blocked_content",
			},
			Status: StatusBlocked,
		}, nil
	}

	vector, err := p.embedder.EmbedOne(ctx, query)
	if err != nil {
		return AnswerResult{}, fmt.Errorf("embed query: %w", err)
	}

	retrievalStart := time.Now()
	retrieved, err := p.store.Search(ctx, vector, topK, filters)
	if err != nil {
		return AnswerResult{}, fmt.Errorf("search: %w", err)
	}
	retrievalMS := time.Since(retrievalStart).Milliseconds()

	if len(retrieved) == 0 {
		return AnswerResult{
			Answer:    noResultsAnswer,
			Citations: []document.Citation{},
			Usage: Usage{
				TotalLatencyMS:  time.Since(start).Milliseconds(),
				RetrievalTimeMS: retrievalMS,
				NumRetrieved:    0,
			},
			Status: StatusNoResults,
		}, nil
	}

	rerankStart := time.Now()
	reranked, scored := p.rerankPassages(ctx, query, retrieved)
	rerankMS := time.Since(rerankStart).Milliseconds()

	contextText := buildContext(reranked, p.cfg.MaxContextChars)
	prompt := buildPrompt(query, contextText)

	llmStart := time.Now()
	gen, err := p.generateWithRetry(ctx, prompt, systemPrompt)
	if err != nil {
		return AnswerResult{}, fmt.Errorf("generate answer: %w", err)
	}
	llmMS := time.Since(llmStart).Milliseconds()

	return AnswerResult{
		Answer:    gen.Answer,
		Citations: extractCitations(reranked, scored),
		Usage: Usage{
			TotalLatencyMS:   time.Since(start).Milliseconds(),
			RetrievalTimeMS:  retrievalMS,
			RerankTimeMS:     rerankMS,
			LLMTimeMS:        llmMS,
			TokensPrompt:     gen.TokensPrompt,
			TokensCompletion: gen.TokensCompletion,
			Model:            gen.Model,
			NumRetrieved:     len(retrieved),
			NumReranked:      len(reranked),
		},
		Status: StatusSuccess,
	}, nil
}

// rerankPassages scores and reorders the retrieval candidates, keeping at
// most RerankTopK. A single candidate is scored 1.0 without a capability
// call. On scoring failure the retrieval order is kept (degraded, not
// failed); the returned bool reports whether rerank scores are meaningful.
func (p *Pipeline) rerankPassages(ctx context.Context, query string, passages []document.Passage) ([]document.Passage, bool) {
	keep := p.cfg.RerankTopK
	if keep <= 0 || keep > len(passages) {
		keep = len(passages)
	}

	if len(passages) == 1 {
		passages[0].RerankScore = 1.0
		return passages, true
	}

	texts := make([]string, len(passages))
	for i, passage := range passages {
		texts[i] = passage.Text
	}

	scores, err := p.reranker.Score(ctx, query, texts)
	if err != nil || len(scores) != len(passages) {
		p.log.Warn("reranking failed, keeping retrieval order", "error", err)
		return passages[:keep], false
	}

	for i := range passages {
		passages[i].RerankScore = scores[i]
	}
	// Stable: candidates with equal scores keep their retrieval order.
	sort.SliceStable(passages, func(i, j int) bool {
		return passages[i].RerankScore > passages[j].RerankScore
	})
	return passages[:keep], true
}

// generateWithRetry retries transient generation failures with exponential
// backoff. Generation does not write to the index, so retries are safe.
func (p *Pipeline) generateWithRetry(ctx context.Context, prompt, system string) (document.Generation, error) {
	var lastErr error
	for attempt := 0; attempt < MaxRetries; attempt++ {
		gen, err := p.generator.Generate(ctx, prompt, system)
		if err == nil {
			return gen, nil
		}
		lastErr = err
		if !IsRetryable(err) {
			return document.Generation{}, err
		}
		p.log.Warn("generation failed, retrying", "attempt", attempt+1, "error", err)
		select {
		case <-ctx.Done():
			return document.Generation{}, ctx.Err()
		case <-time.After(p.backoff(attempt)):
		}
	}
	return document.Generation{}, fmt.Errorf("generation failed after %d attempts: %w", MaxRetries, lastErr)
}

// DocumentCount reports the number of indexed chunks.
func (p *Pipeline) DocumentCount(ctx context.Context) (int, error) {
	return p.store.Count(ctx)
}

// DropCollection deletes the whole collection, the only deletion the index
// supports.
func (p *Pipeline) DropCollection(ctx context.Context) error {
	return p.store.Drop(ctx)
}
