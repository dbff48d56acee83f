// Command reindex rebuilds the product vector collection from a catalog
// file, outside the API server. One-shot by default; -watch re-runs on an
// interval so a mounted catalog file can be kept in sync.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/storelens/storelens/engine/ingest"
	"github.com/storelens/storelens/engine/semantic"
	"github.com/storelens/storelens/pkg/embed"
	"github.com/storelens/storelens/pkg/metrics"
	"github.com/storelens/storelens/pkg/resilience"
)

var met = metrics.New()

func main() {
	var (
		catalogPath = flag.String("catalog", "products.json", "product catalog JSON file")
		ollamaURL   = flag.String("ollama", "http://localhost:11434", "Ollama base URL")
		ollamaModel = flag.String("model", "nomic-embed-text", "Ollama embedding model")
		qdrantAddr  = flag.String("qdrant", "localhost:6334", "Qdrant gRPC address")
		collection  = flag.String("collection", "products", "Qdrant collection name")
		natsURL     = flag.String("nats", "", "NATS URL for reindex events (empty disables)")
		watch       = flag.Duration("watch", 0, "re-run on this interval (0 = one-shot)")
		metricsPort = flag.Int("metrics-port", 9091, "Prometheus metrics port (watch mode only)")
	)
	flag.Parse()

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	vs, err := semantic.NewQdrant(*qdrantAddr, *collection)
	if err != nil {
		log.Error("qdrant connect failed", "error", err)
		os.Exit(1)
	}
	defer vs.Close()

	embedder := embed.NewGuarded(embed.NewOllamaClient(*ollamaURL, *ollamaModel), resilience.DefaultBreakerOpts)
	log.Info("using Ollama embeddings", "model", *ollamaModel, "dims", embedder.Dimensions())

	var nc *nats.Conn
	if *natsURL != "" {
		nc, err = nats.Connect(*natsURL, nats.Name("storelens-reindex"))
		if err != nil {
			log.Error("nats connect failed", "error", err)
			os.Exit(1)
		}
		defer nc.Drain()
	}

	reindexer := ingest.NewReindexer(ingest.Deps{
		Embedder:    embedder,
		Store:       vs,
		CatalogPath: *catalogPath,
		NATS:        nc,
		Metrics:     met,
		Logger:      log,
	})

	runOnce := func() bool {
		summary, err := reindexer.Run(ctx)
		if err != nil {
			log.Error("reindex failed", "error", err)
			return false
		}
		log.Info("reindex done", "seeded", summary.Seeded, "note", summary.Note)
		return true
	}

	if *watch <= 0 {
		if !runOnce() {
			os.Exit(1)
		}
		return
	}

	met.ServeAsync(*metricsPort)
	log.Info("watching catalog", "path", *catalogPath, "interval", *watch)

	runOnce()
	ticker := time.NewTicker(*watch)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down")
			return
		case <-ticker.C:
			runOnce()
		}
	}
}
