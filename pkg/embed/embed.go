// Package embed provides text embedding backends for semantic search.
// The service treats embedding generation as a remote, pretrained black box;
// backends differ only in transport and vector dimensionality.
package embed

import (
	"context"
	"fmt"

	"github.com/storelens/storelens/pkg/resilience"
)

// Embedder maps text to fixed-length vectors.
type Embedder interface {
	// Embed returns the embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch returns embeddings for texts, in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Dimensions returns the vector length this backend produces.
	Dimensions() int
	// Model returns the backend's model identifier.
	Model() string
}

// modelDims maps known embedding models to their output dimensionality.
var modelDims = map[string]int{
	"nomic-embed-text":       768,
	"all-minilm":             384,
	"mxbai-embed-large":      1024,
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// dimsFor returns the dimensionality for a model, or fallback if unknown.
func dimsFor(model string, fallback int) int {
	if d, ok := modelDims[model]; ok {
		return d
	}
	return fallback
}

// Guarded wraps an Embedder with a circuit breaker so a dead embedding
// backend fails fast instead of stacking timeouts.
type Guarded struct {
	inner   Embedder
	breaker *resilience.Breaker
}

// NewGuarded creates a breaker-protected embedder.
func NewGuarded(inner Embedder, opts resilience.BreakerOpts) *Guarded {
	return &Guarded{inner: inner, breaker: resilience.NewBreaker(opts)}
}

func (g *Guarded) Embed(ctx context.Context, text string) ([]float32, error) {
	var out []float32
	err := g.breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		out, err = g.inner.Embed(ctx, text)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	return out, nil
}

func (g *Guarded) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var out [][]float32
	err := g.breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		out, err = g.inner.EmbedBatch(ctx, texts)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("embed batch: %w", err)
	}
	return out, nil
}

func (g *Guarded) Dimensions() int { return g.inner.Dimensions() }
func (g *Guarded) Model() string   { return g.inner.Model() }
