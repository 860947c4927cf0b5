package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"insurekb/internal/document"
)

// Qdrant is a REST client for a single Qdrant collection, using cosine
// distance. Qdrant's upsert is atomic per point, so a search racing an
// ingest sees each point either fully or not at all.
type Qdrant struct {
	baseURL    string
	apiKey     string
	collection string
	httpClient *http.Client
	log        *slog.Logger
}

func NewQdrant(baseURL, apiKey, collection string, log *slog.Logger) *Qdrant {
	return &Qdrant{
		baseURL:    baseURL,
		apiKey:     apiKey,
		collection: collection,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log,
	}
}

func (q *Qdrant) EnsureCollection(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid vector dimension %d", dimension)
	}

	status, _, err := q.do(ctx, http.MethodGet, q.collectionURL(), nil)
	if err != nil {
		return fmt.Errorf("check collection: %w", err)
	}
	if status == http.StatusOK {
		q.log.Info("collection already exists", "collection", q.collection)
		return nil
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	status, respBody, err := q.do(ctx, http.MethodPut, q.collectionURL(), body)
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("create collection: status %d: %s", status, respBody)
	}
	q.log.Info("collection created", "collection", q.collection, "dimension", dimension)
	return nil
}

func (q *Qdrant) Upsert(ctx context.Context, texts []string, vectors [][]float32, metadata []Metadata) (int, error) {
	if len(texts) == 0 {
		return 0, nil
	}
	if len(texts) != len(vectors) || len(texts) != len(metadata) {
		return 0, fmt.Errorf("texts (%d), vectors (%d) and metadata (%d) must have equal length",
			len(texts), len(vectors), len(metadata))
	}

	points := make([]map[string]any, len(texts))
	for i := range texts {
		points[i] = map[string]any{
			"id":     uuid.NewString(),
			"vector": vectors[i],
			"payload": map[string]any{
				"text":        texts[i],
				"doc_id":      metadata[i].DocID,
				"title":       metadata[i].Title,
				"section":     metadata[i].Section,
				"page":        metadata[i].Page,
				"source_path": metadata[i].SourcePath,
				"chunk_index": metadata[i].ChunkIndex,
			},
		}
	}

	status, respBody, err := q.do(ctx, http.MethodPut, q.collectionURL()+"/points?wait=true", map[string]any{"points": points})
	if err != nil {
		return 0, fmt.Errorf("upsert points: %w", err)
	}
	if status != http.StatusOK {
		return 0, fmt.Errorf("upsert points: status %d: %s", status, respBody)
	}

	q.log.Info("upserted points", "count", len(points), "collection", q.collection)
	return len(points), nil
}

func (q *Qdrant) Search(ctx context.Context, vector []float32, topK int, filters map[string]string) ([]document.Passage, error) {
	if topK <= 0 {
		topK = 5
	}

	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	if f := buildFilter(filters); f != nil {
		req["filter"] = f
	}

	status, respBody, err := q.do(ctx, http.MethodPost, q.collectionURL()+"/points/search", req)
	if err != nil {
		return nil, fmt.Errorf("search points: %w", err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("search points: status %d: %s", status, respBody)
	}

	var resp struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	passages := make([]document.Passage, 0, len(resp.Result))
	for _, r := range resp.Result {
		p := document.Passage{
			ID:    fmt.Sprint(r.ID),
			Score: r.Score,
		}
		if v, ok := r.Payload["text"].(string); ok {
			p.Text = v
		}
		if v, ok := r.Payload["doc_id"].(string); ok {
			p.DocID = v
		}
		if v, ok := r.Payload["title"].(string); ok {
			p.Title = v
		}
		if v, ok := r.Payload["section"].(string); ok {
			p.Section = v
		}
		if v, ok := r.Payload["page"].(float64); ok {
			p.Page = int(v)
		}
		if v, ok := r.Payload["source_path"].(string); ok {
			p.SourcePath = v
		}
		if v, ok := r.Payload["chunk_index"].(float64); ok {
			p.ChunkIndex = int(v)
		}
		passages = append(passages, p)
	}
	return passages, nil
}

// buildFilter translates the recognized filter keys into Qdrant match
// conditions. "product" matches against the stored title; unknown keys are
// ignored rather than rejected.
func buildFilter(filters map[string]string) map[string]any {
	if len(filters) == 0 {
		return nil
	}
	var conditions []map[string]any
	if v := filters["product"]; v != "" {
		conditions = append(conditions, map[string]any{
			"key":   "title",
			"match": map[string]any{"value": v},
		})
	}
	if v := filters["doc_id"]; v != "" {
		conditions = append(conditions, map[string]any{
			"key":   "doc_id",
			"match": map[string]any{"value": v},
		})
	}
	if len(conditions) == 0 {
		return nil
	}
	return map[string]any{"must": conditions}
}

func (q *Qdrant) Count(ctx context.Context) (int, error) {
	status, respBody, err := q.do(ctx, http.MethodPost, q.collectionURL()+"/points/count", map[string]any{"exact": true})
	if err != nil {
		return 0, fmt.Errorf("count points: %w", err)
	}
	if status != http.StatusOK {
		return 0, fmt.Errorf("count points: status %d: %s", status, respBody)
	}

	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return 0, fmt.Errorf("decode count response: %w", err)
	}
	return resp.Result.Count, nil
}

func (q *Qdrant) Drop(ctx context.Context) error {
	status, respBody, err := q.do(ctx, http.MethodDelete, q.collectionURL(), nil)
	if err != nil {
		return fmt.Errorf("drop collection: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("drop collection: status %d: %s", status, respBody)
	}
	q.log.Info("collection dropped", "collection", q.collection)
	return nil
}

func (q *Qdrant) collectionURL() string {
	return q.baseURL + "/collections/" + q.collection
}

// do performs one JSON request and returns the status code and body. Non-2xx
// statuses are returned to the caller, not treated as transport errors.
func (q *Qdrant) do(ctx context.Context, method, url string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if q.apiKey != "" {
		httpReq.Header.Set("api-key", q.apiKey)
	}

	resp, err := q.httpClient.Do(httpReq)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return 0, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

// Close releases idle connections.
func (q *Qdrant) Close() {
	q.httpClient.CloseIdleConnections()
}
