// Package main implements the product search API server.
package main

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/storelens/storelens/engine/catalog"
	"github.com/storelens/storelens/engine/ingest"
	"github.com/storelens/storelens/engine/search"
	"github.com/storelens/storelens/engine/semantic"
	"github.com/storelens/storelens/pkg/embed"
	"github.com/storelens/storelens/pkg/metrics"
	"github.com/storelens/storelens/pkg/mid"
	"github.com/storelens/storelens/pkg/resilience"
)

//go:embed index.html
var indexHTML []byte

// Config holds all environment-based configuration.
type Config struct {
	Port          string
	EmbedBackend  string // "ollama" or "openai"
	OllamaURL     string
	OllamaModel   string
	OpenAIBase    string
	OpenAIKey     string
	OpenAIModel   string
	VectorBackend string // "qdrant" or "memory"
	QdrantURL     string
	Collection    string
	CatalogPath   string
	NATSURL       string // empty disables the event bus
	CORSOrigin    string
	RateRPS       float64
	RateBurst     int
}

func loadConfig() Config {
	return Config{
		Port:          envOr("PORT", "8080"),
		EmbedBackend:  envOr("EMBEDDINGS_BACKEND", "ollama"),
		OllamaURL:     envOr("OLLAMA_URL", "http://localhost:11434"),
		OllamaModel:   envOr("OLLAMA_MODEL", "nomic-embed-text"),
		OpenAIBase:    envOr("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIKey:     os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:   envOr("OPENAI_EMBED_MODEL", "text-embedding-3-small"),
		VectorBackend: envOr("VECTOR_BACKEND", "qdrant"),
		QdrantURL:     envOr("QDRANT_URL", "localhost:6334"),
		Collection:    envOr("QDRANT_COLLECTION", "products"),
		CatalogPath:   envOr("CATALOG_PATH", "products.json"),
		NATSURL:       os.Getenv("NATS_URL"),
		CORSOrigin:    envOr("CORS_ORIGIN", "*"),
		RateRPS:       envFloat("RATE_LIMIT_RPS", 20),
		RateBurst:     envInt("RATE_LIMIT_BURST", 40),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
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

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func newEmbedder(cfg Config) (embed.Embedder, error) {
	var inner embed.Embedder
	switch cfg.EmbedBackend {
	case "openai":
		if cfg.OpenAIKey == "" {
			return nil, embed.ErrMissingAPIKey
		}
		inner = embed.NewOpenAIClient(cfg.OpenAIBase, cfg.OpenAIKey, cfg.OpenAIModel)
	case "ollama":
		inner = embed.NewOllamaClient(cfg.OllamaURL, cfg.OllamaModel)
	default:
		return nil, fmt.Errorf("unknown embeddings backend %q", cfg.EmbedBackend)
	}
	return embed.NewGuarded(inner, resilience.DefaultBreakerOpts), nil
}

func newStore(cfg Config) (semantic.Store, error) {
	switch cfg.VectorBackend {
	case "memory":
		return semantic.NewMemory(cfg.Collection), nil
	case "qdrant":
		return semantic.NewQdrant(cfg.QdrantURL, cfg.Collection)
	default:
		return nil, fmt.Errorf("unknown vector backend %q", cfg.VectorBackend)
	}
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := loadConfig()

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	embedder, err := newEmbedder(cfg)
	if err != nil {
		return fmt.Errorf("embedder: %w", err)
	}

	store, err := newStore(cfg)
	if err != nil {
		return fmt.Errorf("vector store: %w", err)
	}
	defer store.Close()

	reg := metrics.New()

	// --- Optional event bus ---
	var nc *nats.Conn
	if cfg.NATSURL != "" {
		nc, err = nats.Connect(cfg.NATSURL, nats.Name("storelens-api"))
		if err != nil {
			return fmt.Errorf("nats connect: %w", err)
		}
		defer nc.Drain()
	}

	reindexer := ingest.NewReindexer(ingest.Deps{
		Embedder:    embedder,
		Store:       store,
		CatalogPath: cfg.CatalogPath,
		NATS:        nc,
		Metrics:     reg,
		Logger:      logger,
	})

	// First boot against an empty collection seeds it from the catalog file.
	if summary, err := reindexer.SeedIfEmpty(ctx); err != nil {
		return fmt.Errorf("startup seed: %w", err)
	} else if summary.Seeded > 0 {
		logger.Info("startup seed complete", "seeded", summary.Seeded)
	}

	if nc != nil {
		sub, err := reindexer.StartConsumer(nc)
		if err != nil {
			return fmt.Errorf("reindex consumer: %w", err)
		}
		defer sub.Unsubscribe()
	}

	searchSvc := search.New(embedder, store, search.DefaultOptions(), reg, logger)

	// --- Build HTTP server ---
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", handleIndex)
	mux.HandleFunc("GET /search", handleSearch(searchSvc, logger))
	mux.HandleFunc("POST /reindex", handleReindex(reindexer, logger))
	mux.HandleFunc("GET /api/health", handleHealth(store))
	mux.Handle("GET /metrics", reg.Handler())

	handler := mid.Chain(mux,
		mid.Recover(logger),
		mid.Logger(logger),
		mid.OTel("storelens-api"),
		mid.CORS(cfg.CORSOrigin),
		mid.RateLimit(cfg.RateRPS, cfg.RateBurst),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// --- Graceful shutdown ---
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

// --- Handlers ---

func handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

func handleHealth(store semantic.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")
		if _, err := store.Count(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "degraded", "error": "vector store unreachable"})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

func handleSearch(svc *search.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		query := q.Get("q")
		if query == "" {
			http.Error(w, `{"error":"q is required"}`, http.StatusBadRequest)
			return
		}

		req := search.Request{Query: query, Category: q.Get("category")}
		if v := q.Get("top_k"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				http.Error(w, `{"error":"top_k must be a positive integer"}`, http.StatusBadRequest)
				return
			}
			req.TopK = n
		}
		if v := q.Get("score_threshold"); v != "" {
			f, err := strconv.ParseFloat(v, 32)
			if err != nil || f < 0 || f > 1 {
				http.Error(w, `{"error":"score_threshold must be between 0 and 1"}`, http.StatusBadRequest)
				return
			}
			threshold := float32(f)
			req.MinScore = &threshold
		}

		resp, err := svc.Search(r.Context(), req)
		if err != nil {
			logger.Error("search failed", "err", err)
			http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

// ReindexResponse is the JSON response for POST /reindex.
type ReindexResponse struct {
	OK     bool   `json:"ok"`
	Seeded int    `json:"seeded"`
	Note   string `json:"note,omitempty"`
}

func handleReindex(reindexer *ingest.Reindexer, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := reindexer.Run(r.Context())
		if err != nil {
			logger.Error("reindex failed", "err", err)
			// A bad catalog file is the caller's problem; embedder or
			// store failures are ours.
			if catalog.IsInvalid(err) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
				return
			}
			http.Error(w, `{"error":"reindex failed"}`, http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ReindexResponse{OK: true, Seeded: summary.Seeded, Note: summary.Note})
	}
}
