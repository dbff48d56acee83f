// Package ingest builds the catalog indexing pipeline: load the product
// file, validate it, embed every record, and upsert the vectors into the
// store. A full pipeline run is atomic in effect: all embeddings are
// computed before the first point is written.
package ingest

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/storelens/storelens/engine/catalog"
	"github.com/storelens/storelens/engine/semantic"
	"github.com/storelens/storelens/pkg/embed"
	"github.com/storelens/storelens/pkg/fn"
)

const (
	// ReindexSubject triggers a catalog reindex when a message arrives.
	ReindexSubject = "catalog.reindex"
	// ReindexedSubject carries a notification after a reindex completes.
	ReindexedSubject = "catalog.reindexed"
	// EmbedBatchSize is the max products per embedding request.
	EmbedBatchSize = 100
	// EmbedWorkers bounds how many embedding requests run at once.
	EmbedWorkers = 4
)

// PointID derives the stable vector point ID for a product. The same
// product ID always maps to the same point, so re-ingesting overwrites
// instead of duplicating.
func PointID(productID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("product:"+productID)).String()
}

// EmbeddedCatalog pairs products with their vectors, index-aligned.
type EmbeddedCatalog struct {
	Products   []catalog.Product
	Embeddings [][]float32
}

// --- Pipeline Stages ---

// Validate rejects an empty catalog and enforces per-record and
// id-uniqueness rules before anything is embedded.
var Validate fn.Stage[[]catalog.Product, []catalog.Product] = func(_ context.Context, products []catalog.Product) fn.Result[[]catalog.Product] {
	if len(products) == 0 {
		return fn.Err[[]catalog.Product](catalog.ErrEmptyCatalog)
	}
	if err := catalog.ValidateAll(products); err != nil {
		return fn.Err[[]catalog.Product](err)
	}
	return fn.Ok(products)
}

// NewEmbedStage creates the stage that turns products into vectors. The
// catalog is split into EmbedBatchSize groups embedded concurrently by at
// most EmbedWorkers workers; batch order is preserved, so embeddings stay
// index-aligned with products. Any batch failure aborts the whole run.
func NewEmbedStage(embedder embed.Embedder) fn.Stage[[]catalog.Product, EmbeddedCatalog] {
	embedBatch := func(ctx context.Context, batch []catalog.Product) fn.Result[[][]float32] {
		texts := fn.Map(batch, catalog.Product.EmbeddingText)
		vecs, err := embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fn.Err[[][]float32](fmt.Errorf("ingest: embed batch: %w", err))
		}
		if len(vecs) != len(batch) {
			return fn.Err[[][]float32](fmt.Errorf("ingest: embedder returned %d vectors for %d texts", len(vecs), len(batch)))
		}
		return fn.Ok(vecs)
	}
	batched := fn.BatchStage(EmbedWorkers, embedBatch)

	return func(ctx context.Context, products []catalog.Product) fn.Result[EmbeddedCatalog] {
		vecsPerBatch, err := batched(ctx, fn.Chunk(products, EmbedBatchSize)).Unwrap()
		if err != nil {
			return fn.Err[EmbeddedCatalog](err)
		}
		embeddings := make([][]float32, 0, len(products))
		for _, vecs := range vecsPerBatch {
			embeddings = append(embeddings, vecs...)
		}
		return fn.Ok(EmbeddedCatalog{Products: products, Embeddings: embeddings})
	}
}

// NewStoreStage creates the stage that upserts embedded products and
// returns how many were written.
func NewStoreStage(store semantic.Store) fn.Stage[EmbeddedCatalog, int] {
	return func(ctx context.Context, ec EmbeddedCatalog) fn.Result[int] {
		records := make([]semantic.VectorRecord, len(ec.Products))
		for i, p := range ec.Products {
			records[i] = semantic.VectorRecord{
				ID:        PointID(p.ID),
				Embedding: ec.Embeddings[i],
				Payload:   semantic.RecordPayload(p),
			}
		}
		if err := store.Upsert(ctx, records); err != nil {
			return fn.Err[int](fmt.Errorf("ingest: vector upsert: %w", err))
		}
		return fn.Ok(len(records))
	}
}

// EmbedRetry controls how embedding failures are retried.
var EmbedRetry = fn.DefaultRetry

// NewPipeline composes Validate, Embed, and Store with tracing. Embedding
// is retried on transient failure; validation and storage are not.
func NewPipeline(embedder embed.Embedder, store semantic.Store) fn.Stage[[]catalog.Product, int] {
	validated := fn.TracedStage("ingest.validate", Validate)
	embedded := fn.TracedStage("ingest.embed", fn.RetryStage(EmbedRetry, NewEmbedStage(embedder)))
	stored := fn.TracedStage("ingest.store", NewStoreStage(store))
	return fn.Then(fn.Then(validated, embedded), stored)
}
