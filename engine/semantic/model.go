// Package semantic owns all vector store operations. The Qdrant-backed
// Store is the production path; a chromem-go in-memory Store exists for
// dependency-free development and tests.
package semantic

import (
	"context"

	"github.com/storelens/storelens/engine/catalog"
)

// Store is the vector database surface the service depends on.
type Store interface {
	// EnsureCollection creates the collection if it doesn't exist.
	EnsureCollection(ctx context.Context, dims int) error
	// Count returns the number of stored points.
	Count(ctx context.Context) (uint64, error)
	// Upsert writes records; an existing point ID is overwritten.
	Upsert(ctx context.Context, records []VectorRecord) error
	// Search performs k-NN similarity search with optional filters.
	Search(ctx context.Context, q Query) ([]SearchResult, error)
	// Close releases the underlying connection.
	Close() error
}

// VectorRecord is a single vector to store, with its payload.
type VectorRecord struct {
	ID        string
	Embedding []float32
	Payload   map[string]any
}

// Filter narrows a similarity search by structured payload conditions.
type Filter struct {
	MinPrice *float64
	MaxPrice *float64
	Category string
}

// Empty reports whether the filter imposes no conditions.
func (f Filter) Empty() bool {
	return f.MinPrice == nil && f.MaxPrice == nil && f.Category == ""
}

// Query is a similarity search request.
type Query struct {
	Vector         []float32
	TopK           int
	ScoreThreshold float32
	Filter         Filter
}

// SearchResult is a single similarity hit: the stored product plus its score.
type SearchResult struct {
	ID      string          `json:"id"`
	Score   float32         `json:"score"`
	Product catalog.Product `json:"product"`
}

// Payload keys for product fields.
const (
	payloadProductID   = "product_id"
	payloadName        = "name"
	payloadDescription = "description"
	payloadPrice       = "price"
	payloadURL         = "url"
	payloadCategory    = "category"
)

// RecordPayload builds the payload map stored alongside a product's vector.
// The original id is preserved under product_id; the point ID itself is a
// deterministic UUID.
func RecordPayload(p catalog.Product) map[string]any {
	payload := map[string]any{
		payloadProductID:   p.ID,
		payloadName:        p.Name,
		payloadDescription: p.Description,
		payloadPrice:       p.Price,
		payloadURL:         p.URL,
	}
	if p.Category != "" {
		payload[payloadCategory] = p.Category
	}
	return payload
}
