package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"insurekb/internal/config"
	"insurekb/internal/document"
	"insurekb/internal/llm"
	"insurekb/internal/vectorstore"
)

type fakeEmbedder struct{}

func (fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i := range vectors {
		vectors[i] = []float32{0.1, 0.2}
	}
	return vectors, nil
}

func (f fakeEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.2}, nil
}

func (fakeEmbedder) Dimension() int { return 2 }

type fakeStore struct {
	passages    []document.Passage
	searchCalls int
	lastFilters map[string]string
	upsertTexts []string
	upsertMeta  []vectorstore.Metadata
	count       int
}

func (s *fakeStore) EnsureCollection(ctx context.Context, dimension int) error { return nil }

func (s *fakeStore) Upsert(ctx context.Context, texts []string, vectors [][]float32, metadata []vectorstore.Metadata) (int, error) {
	s.upsertTexts = texts
	s.upsertMeta = metadata
	return len(texts), nil
}

func (s *fakeStore) Search(ctx context.Context, vector []float32, topK int, filters map[string]string) ([]document.Passage, error) {
	s.searchCalls++
	s.lastFilters = filters
	return s.passages, nil
}

func (s *fakeStore) Count(ctx context.Context) (int, error) { return s.count, nil }
func (s *fakeStore) Drop(ctx context.Context) error         { return nil }

type fakeReranker struct {
	scores []float64
	err    error
	calls  int
}

func (r *fakeReranker) Score(ctx context.Context, query string, passages []string) ([]float64, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return r.scores, nil
}

type fakeGenerator struct {
	calls      int
	failures   int
	lastPrompt string
}

func (g *fakeGenerator) Generate(ctx context.Context, prompt, systemPrompt string) (document.Generation, error) {
	g.calls++
	g.lastPrompt = prompt
	if g.calls <= g.failures {
		return document.Generation{}, &llm.RetryableError{StatusCode: 503, Message: "overloaded"}
	}
	return document.Generation{
		Answer:           "## Resposta\nA cobertura é de 10000 EUR.",
		Model:            "test-model",
		TokensPrompt:     100,
		TokensCompletion: 20,
	}, nil
}

func testConfig() config.Config {
	return config.Config{
		TopK:            6,
		RerankTopK:      3,
		ChunkSize:       800,
		ChunkOverlap:    150,
		MaxContextChars: 12000,
		MaxQueryLength:  500,
		BlockedTerms:    "segredo;credencial;senha;password;token;api_key;hack;inject",
	}
}

func newTestPipeline(cfg config.Config, store *fakeStore, reranker *fakeReranker, gen *fakeGenerator) *Pipeline {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := New(fakeEmbedder{}, store, reranker, gen, cfg, log)
	p.backoff = func(int) time.Duration { return 0 }
	return p
}

func passage(title string, page int, text string) document.Passage {
	return document.Passage{
		Text:  text,
		DocID: title + "_1",
		Title: title,
		Page:  page,
		Score: 0.5,
	}
}

func TestAnswer_BlockedQuerySkipsRetrieval(t *testing.T) {
	store := &fakeStore{}
	gen := &fakeGenerator{}
	p := newTestPipeline(testConfig(), store, &fakeReranker{}, gen)

	result, err := p.Answer(context.Background(), "Qual é a senha?", 0, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Status != StatusBlocked {
		t.Errorf("expected status %q, got %q", StatusBlocked, result.Status)
	}
	if result.Answer != refusalAnswer {
		t.Errorf("expected the fixed refusal answer, got %q", result.Answer)
	}
	if len(result.Citations) != 0 {
		t.Errorf("expected no citations, got %d", len(result.Citations))
	}
	if store.searchCalls != 0 {
		t.Errorf("expected no index search, got %d calls", store.searchCalls)
	}
	if gen.calls != 0 {
		t.Errorf("expected no generation call, got %d", gen.calls)
	}
	if result.Usage.Error != "blocked_content" {
		t.Errorf("expected usage error %q, got %q", "blocked_content", result.Usage.Error)
	}
}

func TestAnswer_NoResultsSkipsRerankAndGeneration(t *testing.T) {
	store := &fakeStore{}
	reranker := &fakeReranker{}
	gen := &fakeGenerator{}
	p := newTestPipeline(testConfig(), store, reranker, gen)

	result, err := p.Answer(context.Background(), "O que cobre a apólice auto?", 0, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Status != StatusNoResults {
		t.Errorf("expected status %q, got %q", StatusNoResults, result.Status)
	}
	if result.Answer != noResultsAnswer {
		t.Errorf("expected the fixed no-results answer, got %q", result.Answer)
	}
	if len(result.Citations) != 0 {
		t.Errorf("expected no citations, got %d", len(result.Citations))
	}
	if result.Usage.NumRetrieved != 0 {
		t.Errorf("expected num_retrieved 0, got %d", result.Usage.NumRetrieved)
	}
	if reranker.calls != 0 || gen.calls != 0 {
		t.Errorf("expected rerank/generation skipped, got %d/%d calls", reranker.calls, gen.calls)
	}
}

func TestAnswer_SinglePassageScoredWithoutReranker(t *testing.T) {
	store := &fakeStore{passages: []document.Passage{passage("produto_auto", 1, "Danos próprios até 10000 EUR.")}}
	reranker := &fakeReranker{}
	p := newTestPipeline(testConfig(), store, reranker, &fakeGenerator{})

	result, err := p.Answer(context.Background(), "O que cobre a apólice auto?", 0, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if reranker.calls != 0 {
		t.Errorf("expected no reranker call for a single passage, got %d", reranker.calls)
	}
	if len(result.Citations) != 1 {
		t.Fatalf("expected 1 citation, got %d", len(result.Citations))
	}
	if result.Citations[0].Score != 1.0 {
		t.Errorf("expected trivial rerank score 1.0, got %v", result.Citations[0].Score)
	}
}

func TestAnswer_RerankOrdersStablyAndTruncates(t *testing.T) {
	store := &fakeStore{passages: []document.Passage{
		passage("a", 1, "passagem a"),
		passage("b", 2, "passagem b"),
		passage("c", 3, "passagem c"),
		passage("d", 4, "passagem d"),
	}}
	// b and c tie; retrieval order between them must survive the sort.
	reranker := &fakeReranker{scores: []float64{0.2, 0.9, 0.9, 0.1}}
	p := newTestPipeline(testConfig(), store, reranker, &fakeGenerator{})

	result, err := p.Answer(context.Background(), "coberturas?", 0, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Usage.NumReranked != 3 {
		t.Errorf("expected 3 reranked passages, got %d", result.Usage.NumReranked)
	}
	want := []string{"b", "c", "a"}
	if len(result.Citations) != len(want) {
		t.Fatalf("expected %d citations, got %d", len(want), len(result.Citations))
	}
	for i, title := range want {
		if result.Citations[i].Title != title {
			t.Errorf("citation %d: expected title %q, got %q", i, title, result.Citations[i].Title)
		}
	}
}

func TestAnswer_RerankFailureFallsBackToRetrievalOrder(t *testing.T) {
	store := &fakeStore{passages: []document.Passage{
		passage("a", 1, "passagem a"),
		passage("b", 2, "passagem b"),
		passage("c", 3, "passagem c"),
		passage("d", 4, "passagem d"),
	}}
	reranker := &fakeReranker{err: errors.New("model unavailable")}
	p := newTestPipeline(testConfig(), store, reranker, &fakeGenerator{})

	result, err := p.Answer(context.Background(), "coberturas?", 0, nil)
	if err != nil {
		t.Fatalf("expected degraded success, got error: %v", err)
	}

	if result.Status != StatusSuccess {
		t.Errorf("expected status %q, got %q", StatusSuccess, result.Status)
	}
	want := []string{"a", "b", "c"}
	for i, title := range want {
		if result.Citations[i].Title != title {
			t.Errorf("citation %d: expected title %q, got %q", i, title, result.Citations[i].Title)
		}
	}
	// Without rerank scores the similarity score is cited.
	if result.Citations[0].Score != 0.5 {
		t.Errorf("expected similarity score 0.5, got %v", result.Citations[0].Score)
	}
}

func TestAnswer_CitationsDeduplicatedAndCapped(t *testing.T) {
	cfg := testConfig()
	cfg.RerankTopK = 6
	store := &fakeStore{passages: []document.Passage{
		passage("auto", 1, "um"),
		passage("auto", 1, "dois"),
		passage("vida", 2, "três"),
		passage("auto", 1, "quatro"),
		passage("casa", 3, "cinco"),
		passage("saude", 4, "seis"),
	}}
	reranker := &fakeReranker{scores: []float64{0.9, 0.8, 0.7, 0.6, 0.5, 0.4}}
	p := newTestPipeline(cfg, store, reranker, &fakeGenerator{})

	result, err := p.Answer(context.Background(), "coberturas?", 0, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.Citations) != 3 {
		t.Fatalf("expected 3 citations, got %d", len(result.Citations))
	}
	seen := map[string]bool{}
	for _, c := range result.Citations {
		key := fmt.Sprintf("%s|%d", c.Title, c.Page)
		if seen[key] {
			t.Errorf("duplicate citation for %s page %d", c.Title, c.Page)
		}
		seen[key] = true
	}
	if result.Citations[0].Title != "auto" || result.Citations[1].Title != "vida" || result.Citations[2].Title != "casa" {
		t.Errorf("unexpected citation order: %v %v %v",
			result.Citations[0].Title, result.Citations[1].Title, result.Citations[2].Title)
	}
}

func TestAnswer_ContextTruncationMarker(t *testing.T) {
	cfg := testConfig()
	cfg.MaxContextChars = 80
	store := &fakeStore{passages: []document.Passage{
		passage("auto", 1, strings.Repeat("texto longo ", 50)),
		passage("vida", 2, strings.Repeat("outro texto ", 50)),
	}}
	gen := &fakeGenerator{}
	p := newTestPipeline(cfg, store, &fakeReranker{scores: []float64{0.9, 0.8}}, gen)

	if _, err := p.Answer(context.Background(), "coberturas?", 0, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(gen.lastPrompt, "[... contexto truncado ...]") {
		t.Error("expected truncation marker in the generation prompt")
	}
}

func TestAnswer_GenerationRetriesTransientFailures(t *testing.T) {
	store := &fakeStore{passages: []document.Passage{passage("auto", 1, "texto")}}
	gen := &fakeGenerator{failures: 2}
	p := newTestPipeline(testConfig(), store, &fakeReranker{}, gen)

	result, err := p.Answer(context.Background(), "coberturas?", 0, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gen.calls != 3 {
		t.Errorf("expected 3 generation attempts, got %d", gen.calls)
	}
	if result.Status != StatusSuccess {
		t.Errorf("expected status %q, got %q", StatusSuccess, result.Status)
	}
}

func TestAnswer_GenerationExhaustionIsFatal(t *testing.T) {
	store := &fakeStore{passages: []document.Passage{passage("auto", 1, "texto")}}
	gen := &fakeGenerator{failures: 10}
	p := newTestPipeline(testConfig(), store, &fakeReranker{}, gen)

	if _, err := p.Answer(context.Background(), "coberturas?", 0, nil); err == nil {
		t.Fatal("expected error after retry exhaustion")
	}
	if gen.calls != MaxRetries {
		t.Errorf("expected %d attempts, got %d", MaxRetries, gen.calls)
	}
}

func TestAnswer_FiltersPassedThrough(t *testing.T) {
	store := &fakeStore{passages: []document.Passage{passage("auto", 1, "texto")}}
	p := newTestPipeline(testConfig(), store, &fakeReranker{}, &fakeGenerator{})

	filters := map[string]string{"product": "auto", "regiao": "norte"}
	if _, err := p.Answer(context.Background(), "coberturas?", 2, filters); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.lastFilters["product"] != "auto" {
		t.Errorf("expected product filter forwarded, got %v", store.lastFilters)
	}
}

func TestIngest_TxtEndToEnd(t *testing.T) {
	dir := t.TempDir()
	content := "Produto Auto\nCOBERTURAS:\nDanos próprios até 10000 EUR."
	if err := os.WriteFile(filepath.Join(dir, "produto_auto.txt"), []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	store := &fakeStore{}
	p := newTestPipeline(testConfig(), store, &fakeReranker{}, &fakeGenerator{})

	result, err := p.Ingest(context.Background(), dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Status != StatusSuccess {
		t.Fatalf("expected status %q, got %q (err=%q)", StatusSuccess, result.Status, result.Err)
	}
	if result.FilesProcessed != 1 {
		t.Errorf("expected 1 file processed, got %d", result.FilesProcessed)
	}
	if result.ChunksCreated != 2 {
		t.Errorf("expected 2 chunks, got %d", result.ChunksCreated)
	}
	if result.DocumentsUpserted != 2 {
		t.Errorf("expected 2 documents upserted, got %d", result.DocumentsUpserted)
	}

	if len(store.upsertMeta) != 2 {
		t.Fatalf("expected 2 metadata records, got %d", len(store.upsertMeta))
	}
	if store.upsertMeta[0].DocID != "produto_auto_1" {
		t.Errorf("expected doc_id %q, got %q", "produto_auto_1", store.upsertMeta[0].DocID)
	}
	if store.upsertMeta[1].Section != "COBERTURAS:" {
		t.Errorf("expected section %q, got %q", "COBERTURAS:", store.upsertMeta[1].Section)
	}
	for i, m := range store.upsertMeta {
		if m.ChunkIndex != i {
			t.Errorf("metadata %d: expected chunk index %d, got %d", i, i, m.ChunkIndex)
		}
	}
}

func TestIngest_GlobalChunkIndexAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.txt", "b.txt"} {
		content := "PRIMEIRA SECÇÃO:\nconteúdo do ficheiro " + name
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write fixture: %v", err)
		}
	}

	store := &fakeStore{}
	p := newTestPipeline(testConfig(), store, &fakeReranker{}, &fakeGenerator{})

	result, err := p.Ingest(context.Background(), dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ChunksCreated != 2 {
		t.Fatalf("expected 2 chunks, got %d", result.ChunksCreated)
	}
	for i, m := range store.upsertMeta {
		if m.ChunkIndex != i {
			t.Errorf("chunk %d: expected global index %d, got %d", i, i, m.ChunkIndex)
		}
	}
}

func TestIngest_MissingDirectory(t *testing.T) {
	p := newTestPipeline(testConfig(), &fakeStore{}, &fakeReranker{}, &fakeGenerator{})

	result, err := p.Ingest(context.Background(), "/nonexistent/path")
	if err != nil {
		t.Fatalf("expected structured result, got error: %v", err)
	}
	if !strings.HasPrefix(result.Err, "Directory not found") {
		t.Errorf("expected directory-not-found error, got %q", result.Err)
	}
	if result.FilesProcessed != 0 {
		t.Errorf("expected 0 files processed, got %d", result.FilesProcessed)
	}
}

func TestIngest_NoDocuments(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "dados.csv"), []byte("a,b\n"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	p := newTestPipeline(testConfig(), &fakeStore{}, &fakeReranker{}, &fakeGenerator{})

	result, err := p.Ingest(context.Background(), dir)
	if err != nil {
		t.Fatalf("expected structured result, got error: %v", err)
	}
	if result.Err != "No documents found" {
		t.Errorf("expected %q, got %q", "No documents found", result.Err)
	}
}

func TestIngest_NoContentExtracted(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "vazio.txt"), []byte("   \n"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	p := newTestPipeline(testConfig(), &fakeStore{}, &fakeReranker{}, &fakeGenerator{})

	result, err := p.Ingest(context.Background(), dir)
	if err != nil {
		t.Fatalf("expected structured result, got error: %v", err)
	}
	if result.Err != "No content extracted" {
		t.Errorf("expected %q, got %q", "No content extracted", result.Err)
	}
	if result.FilesProcessed != 1 {
		t.Errorf("expected 1 file processed, got %d", result.FilesProcessed)
	}
}
