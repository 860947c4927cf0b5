package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"insurekb/internal/api"
	"insurekb/internal/config"
	"insurekb/internal/embed"
	"insurekb/internal/llm"
	"insurekb/internal/pipeline"
	"insurekb/internal/ratelimit"
	"insurekb/internal/rerank"
	"insurekb/internal/vectorstore"
)

func main() {
	_ = godotenv.Load()

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Capability clients.
	embedder := embed.NewClient(cfg.EmbeddingsBaseURL, cfg.EmbeddingsAPIKey, cfg.EmbeddingModel, cfg.EmbeddingDimension)
	store := vectorstore.NewQdrant(cfg.QdrantURL, cfg.QdrantAPIKey, cfg.QdrantCollection, log)
	reranker := rerank.New(cfg, log)

	var generator pipeline.Generator
	if cfg.LLMAPIKey != "" {
		generator = llm.NewOpenAIClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, cfg.LLMTemperature, cfg.LLMMaxTokens)
	} else {
		log.Warn("no LLM API key configured, using dummy provider")
		generator = llm.Dummy{}
	}

	rag := pipeline.New(embedder, store, reranker, generator, cfg, log)

	initCtx, initCancel := context.WithTimeout(ctx, 30*time.Second)
	defer initCancel()
	if err := rag.Init(initCtx); err != nil {
		log.Error("failed to initialize collection", "error", err)
		os.Exit(1)
	}
	log.Info("pipeline initialized", "collection", cfg.QdrantCollection, "dimension", embedder.Dimension())

	limiter := ratelimit.New(cfg.RateLimitPerMinute, time.Minute)
	srv := api.NewServer(rag, limiter, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 180 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	log.Info("starting server", "port", cfg.Port)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
