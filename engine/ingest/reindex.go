package ingest

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/storelens/storelens/engine/catalog"
	"github.com/storelens/storelens/engine/semantic"
	"github.com/storelens/storelens/pkg/embed"
	"github.com/storelens/storelens/pkg/fn"
	"github.com/storelens/storelens/pkg/metrics"
	"github.com/storelens/storelens/pkg/natsutil"
)

// Deps holds the external dependencies for the reindexer.
type Deps struct {
	Embedder    embed.Embedder
	Store       semantic.Store
	CatalogPath string
	NATS        *nats.Conn        // optional; reindex events are skipped when nil
	Metrics     *metrics.Registry // optional
	Logger      *slog.Logger
}

// Summary reports the outcome of a reindex run.
type Summary struct {
	Seeded int    `json:"seeded"`
	Note   string `json:"note,omitempty"`
}

// ReindexRequest is the payload on ReindexSubject. Empty for now; a future
// field could scope the reindex to a single category.
type ReindexRequest struct{}

// ReindexedEvent is published on ReindexedSubject after a successful run.
type ReindexedEvent struct {
	Seeded int       `json:"seeded"`
	Model  string    `json:"model"`
	At     time.Time `json:"at"`
}

// Reindexer runs the indexing pipeline against a catalog file.
type Reindexer struct {
	deps     Deps
	pipeline fn.Stage[[]catalog.Product, int]
	log      *slog.Logger
}

// NewReindexer wires the pipeline from its dependencies.
func NewReindexer(deps Deps) *Reindexer {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Reindexer{
		deps:     deps,
		pipeline: NewPipeline(deps.Embedder, deps.Store),
		log:      log,
	}
}

// Run loads the catalog file and indexes every product. A missing file is
// not an error: the run is skipped with a note, matching the case where a
// deployment has no catalog mounted yet. An empty or invalid catalog is an
// error and leaves the store untouched.
func (r *Reindexer) Run(ctx context.Context) (Summary, error) {
	start := time.Now()

	products, err := catalog.Load(r.deps.CatalogPath)
	if errors.Is(err, fs.ErrNotExist) {
		r.log.Warn("reindex: catalog file missing, skipping", "path", r.deps.CatalogPath)
		return Summary{Seeded: 0, Note: "catalog file not found; nothing indexed"}, nil
	}
	if err != nil {
		return Summary{}, err
	}

	if err := r.deps.Store.EnsureCollection(ctx, r.deps.Embedder.Dimensions()); err != nil {
		return Summary{}, err
	}

	seeded, err := r.pipeline(ctx, products).Unwrap()
	if err != nil {
		if r.deps.Metrics != nil {
			r.deps.Metrics.Counter("reindex_failures_total", "Failed reindex runs").Inc()
		}
		return Summary{}, err
	}

	r.log.Info("reindex: complete",
		"seeded", seeded,
		"model", r.deps.Embedder.Model(),
		"duration", time.Since(start),
	)
	if r.deps.Metrics != nil {
		r.deps.Metrics.Counter("reindex_total", "Completed reindex runs").Inc()
		r.deps.Metrics.Counter("products_indexed_total", "Products written to the vector store").Add(int64(seeded))
		r.deps.Metrics.Histogram("reindex_duration_seconds", "Reindex run duration",
			[]float64{0.5, 1, 2.5, 5, 10, 30, 60}).Since(start)
	}

	if r.deps.NATS != nil {
		event := ReindexedEvent{Seeded: seeded, Model: r.deps.Embedder.Model(), At: time.Now().UTC()}
		if err := natsutil.Publish(ctx, r.deps.NATS, ReindexedSubject, event); err != nil {
			r.log.Warn("reindex: event publish failed", "error", err)
		}
	}

	return Summary{Seeded: seeded}, nil
}

// SeedIfEmpty runs a reindex only when the collection has no points.
// Called once at startup so a fresh deployment serves results immediately.
func (r *Reindexer) SeedIfEmpty(ctx context.Context) (Summary, error) {
	if err := r.deps.Store.EnsureCollection(ctx, r.deps.Embedder.Dimensions()); err != nil {
		return Summary{}, err
	}
	n, err := r.deps.Store.Count(ctx)
	if err != nil {
		return Summary{}, err
	}
	if n > 0 {
		r.log.Info("reindex: collection already seeded", "points", n)
		return Summary{Seeded: 0, Note: "collection already seeded"}, nil
	}
	return r.Run(ctx)
}

// StartConsumer subscribes to ReindexSubject so a reindex can be triggered
// over the bus as well as over HTTP.
func (r *Reindexer) StartConsumer(nc *nats.Conn) (*nats.Subscription, error) {
	return natsutil.Subscribe(nc, ReindexSubject, func(ctx context.Context, _ ReindexRequest) {
		summary, err := r.Run(ctx)
		if err != nil {
			r.log.Error("reindex: triggered run failed", "error", err)
			return
		}
		r.log.Info("reindex: triggered run complete", "seeded", summary.Seeded, "note", summary.Note)
	})
}
