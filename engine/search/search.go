// Package search orchestrates the query pipeline. It accepts a free-text
// query, strips price phrasing into structured constraints, embeds what
// remains, and runs a filtered nearest-neighbour search over the product
// vectors.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/storelens/storelens/engine/semantic"
	"github.com/storelens/storelens/pkg/embed"
	"github.com/storelens/storelens/pkg/metrics"
	"github.com/storelens/storelens/pkg/pricenlp"
)

// Options configures the search pipeline behaviour.
type Options struct {
	// TopK is the default number of results when the caller doesn't ask.
	TopK int
	// MaxTopK caps what a caller may ask for.
	MaxTopK int
	// ScoreThreshold drops weak matches; similarity below it never surfaces.
	ScoreThreshold float32
	// CandidateFloor is the minimum candidate pool fetched from the store,
	// so a small top_k still ranks against a reasonable pool.
	CandidateFloor int
	// SearchTimeout bounds the vector store round trip.
	SearchTimeout time.Duration
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		TopK:           8,
		MaxTopK:        50,
		ScoreThreshold: 0.20,
		CandidateFloor: 12,
		SearchTimeout:  5 * time.Second,
	}
}

// Request is a parsed search request.
type Request struct {
	Query    string
	TopK     int      // 0 means Options.TopK
	Category string   // exact match, empty means no filter
	MinScore *float32 // nil means Options.ScoreThreshold; 0 disables the cut
}

// Response is what a search returns to the transport layer.
type Response struct {
	Query    string                  `json:"query"`
	Cleaned  string                  `json:"cleaned_query,omitempty"`
	MinPrice *float64                `json:"min_price,omitempty"`
	MaxPrice *float64                `json:"max_price,omitempty"`
	Results  []semantic.SearchResult `json:"results"`
}

// Service runs search queries against an embedder and a vector store.
type Service struct {
	embedder embed.Embedder
	store    semantic.Store
	opts     Options
	log      *slog.Logger
	searches *metrics.Counter
	latency  *metrics.Histogram
}

// New creates a search Service. Metrics may be nil.
func New(embedder embed.Embedder, store semantic.Store, opts Options, reg *metrics.Registry, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{embedder: embedder, store: store, opts: opts, log: logger}
	if reg != nil {
		s.searches = reg.Counter("searches_total", "Search requests served")
		s.latency = reg.Histogram("search_duration_seconds", "Search round trip duration",
			[]float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5})
	}
	return s
}

// Search runs the full query pipeline.
func (s *Service) Search(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	topK := req.TopK
	if topK <= 0 {
		topK = s.opts.TopK
	}
	if topK > s.opts.MaxTopK {
		topK = s.opts.MaxTopK
	}
	threshold := s.opts.ScoreThreshold
	if req.MinScore != nil {
		threshold = *req.MinScore
	}

	// Price phrases become filters; the remaining words carry the intent.
	cleaned, price := pricenlp.Extract(req.Query)

	vector, err := s.embedder.Embed(ctx, cleaned)
	if err != nil {
		return nil, fmt.Errorf("search: embed query: %w", err)
	}

	// Over-fetch so post-threshold and post-filter cuts still leave topK.
	limit := topK
	if limit < s.opts.CandidateFloor {
		limit = s.opts.CandidateFloor
	}

	searchCtx, cancel := context.WithTimeout(ctx, s.opts.SearchTimeout)
	defer cancel()

	hits, err := s.store.Search(searchCtx, semantic.Query{
		Vector:         vector,
		TopK:           limit,
		ScoreThreshold: threshold,
		Filter: semantic.Filter{
			MinPrice: price.Min,
			MaxPrice: price.Max,
			Category: req.Category,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("search: vector search: %w", err)
	}
	if len(hits) > topK {
		hits = hits[:topK]
	}

	s.log.Info("search: done",
		"query_len", len(req.Query),
		"results", len(hits),
		"duration", time.Since(start),
	)
	if s.searches != nil {
		s.searches.Inc()
		s.latency.Since(start)
	}

	resp := &Response{Query: req.Query, Results: hits}
	if !price.Empty() {
		resp.Cleaned = cleaned
		resp.MinPrice = price.Min
		resp.MaxPrice = price.Max
	}
	if resp.Results == nil {
		resp.Results = []semantic.SearchResult{}
	}
	return resp, nil
}
