package api

import (
	"encoding/json"
	"net/http"
	"time"
	"unicode/utf8"
)

type chatRequest struct {
	Query   string            `json:"query"`
	TopK    int               `json:"top_k"`
	Filters map[string]string `json:"filters"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Query == "" {
		jsonError(w, "query is required", http.StatusBadRequest)
		return
	}
	if utf8.RuneCountInString(req.Query) > s.cfg.MaxQueryLength {
		jsonError(w, "query too long", http.StatusBadRequest)
		return
	}
	if req.TopK < 0 || req.TopK > 20 {
		jsonError(w, "top_k must be between 1 and 20", http.StatusBadRequest)
		return
	}

	result, err := s.rag.Answer(r.Context(), req.Query, req.TopK, req.Filters)
	if err != nil {
		s.log.Error("chat failed", "error", err)
		jsonError(w, "chat failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

type ingestRequest struct {
	Directory string `json:"directory"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	// The body is optional; an empty or absent body ingests the configured
	// data directory.
	var req ingestRequest
	if r.Body != nil {
		_ = json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req)
	}

	result, err := s.rag.Ingest(r.Context(), req.Directory)
	if err != nil {
		s.log.Error("ingestion failed", "error", err)
		jsonError(w, "ingestion failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if result.Err != "" {
		jsonError(w, result.Err, http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	count, err := s.rag.DocumentCount(r.Context())
	if err != nil {
		s.log.Error("health check failed", "error", err)
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"timestamp":        time.Now().UTC().Format(time.RFC3339),
		"qdrant_documents": count,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	count, err := s.rag.DocumentCount(r.Context())
	if err != nil {
		s.log.Error("stats failed", "error", err)
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total_documents": count,
		"collection_name": s.cfg.QdrantCollection,
		"embedding_model": s.cfg.EmbeddingModel,
		"llm_model":       s.cfg.LLMModel,
		"reranker":        s.cfg.RerankProvider,
	})
}

func (s *Server) handleDropCollection(w http.ResponseWriter, r *http.Request) {
	if err := s.rag.DropCollection(r.Context()); err != nil {
		s.log.Error("drop collection failed", "error", err)
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "dropped"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, map[string]string{"error": msg})
}
