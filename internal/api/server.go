package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"insurekb/internal/config"
	"insurekb/internal/pipeline"
	"insurekb/internal/ratelimit"
)

// Server is the HTTP façade over the RAG pipeline.
type Server struct {
	router  chi.Router
	rag     *pipeline.Pipeline
	limiter *ratelimit.Limiter
	log     *slog.Logger
	cfg     config.Config
}

// NewServer creates and configures the HTTP server.
func NewServer(rag *pipeline.Pipeline, limiter *ratelimit.Limiter, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		rag:     rag,
		limiter: limiter,
		log:     log,
		cfg:     cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/stats", s.handleStats)

	r.Group(func(r chi.Router) {
		r.Use(RateLimit(s.limiter))
		r.Post("/chat", s.handleChat)
	})

	// Mutating endpoints require the API key when one is configured.
	r.Group(func(r chi.Router) {
		r.Use(RateLimit(s.limiter))
		if s.cfg.APIKey != "" {
			r.Use(AuthMiddleware(s.cfg.APIKey))
		}
		r.Post("/ingest", s.handleIngest)
		r.Delete("/collection", s.handleDropCollection)
	})

	s.router = r
}
