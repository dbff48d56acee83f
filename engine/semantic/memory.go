package semantic

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/storelens/storelens/engine/catalog"
)

// MemoryStore implements Store on an embedded chromem-go database. It exists
// for development and tests where no Qdrant instance is available; data does
// not survive a restart.
type MemoryStore struct {
	mu         sync.Mutex
	db         *chromem.DB
	collection string
	dims       int
	col        *chromem.Collection
}

// NewMemory creates an empty in-memory store.
func NewMemory(collection string) *MemoryStore {
	return &MemoryStore{db: chromem.NewDB(), collection: collection}
}

// Vectors are always supplied by the caller; chromem must never compute one.
func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, errors.New("semantic: memory store does not embed")
}

// EnsureCollection creates the collection if it doesn't exist.
func (s *MemoryStore) EnsureCollection(_ context.Context, dims int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.col != nil {
		return nil
	}
	col, err := s.db.GetOrCreateCollection(s.collection, nil, noEmbedding)
	if err != nil {
		return fmt.Errorf("semantic: create collection %s: %w", s.collection, err)
	}
	s.col = col
	s.dims = dims
	return nil
}

func (s *MemoryStore) ready() (*chromem.Collection, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.col == nil {
		return nil, 0, fmt.Errorf("semantic: collection %s not initialized", s.collection)
	}
	return s.col, s.dims, nil
}

// Count returns the number of stored points.
func (s *MemoryStore) Count(context.Context) (uint64, error) {
	col, _, err := s.ready()
	if err != nil {
		return 0, err
	}
	return uint64(col.Count()), nil
}

// Upsert stores records. chromem keys documents by ID, so re-adding an ID
// overwrites.
func (s *MemoryStore) Upsert(ctx context.Context, records []VectorRecord) error {
	col, dims, err := s.ready()
	if err != nil {
		return err
	}
	for _, r := range records {
		if dims > 0 && len(r.Embedding) != dims {
			return fmt.Errorf("semantic: record %s has %d dims, collection expects %d", r.ID, len(r.Embedding), dims)
		}
		doc := chromem.Document{
			ID:        r.ID,
			Embedding: r.Embedding,
			Content:   stringValue(r.Payload, payloadName) + " - " + stringValue(r.Payload, payloadDescription),
			Metadata:  metadataFromPayload(r.Payload),
		}
		if err := col.AddDocument(ctx, doc); err != nil {
			return fmt.Errorf("semantic: add document %s: %w", r.ID, err)
		}
	}
	return nil
}

// Search performs similarity search. chromem has no numeric range filters,
// so price bounds are applied to the full candidate set after the
// similarity pass.
func (s *MemoryStore) Search(ctx context.Context, q Query) ([]SearchResult, error) {
	col, _, err := s.ready()
	if err != nil {
		return nil, err
	}

	total := col.Count()
	if total == 0 {
		return nil, nil
	}

	var where map[string]string
	if q.Filter.Category != "" {
		where = map[string]string{payloadCategory: q.Filter.Category}
	}

	// Query every document; filtering then cutting to TopK matches what the
	// Qdrant path does server-side.
	hits, err := col.QueryEmbedding(ctx, q.Vector, total, where, nil)
	if err != nil {
		return nil, fmt.Errorf("semantic: query: %w", err)
	}

	results := make([]SearchResult, 0, q.TopK)
	for _, h := range hits {
		if h.Similarity < q.ScoreThreshold {
			continue
		}
		p := productFromMetadata(h.Metadata)
		if q.Filter.MinPrice != nil && p.Price < *q.Filter.MinPrice {
			continue
		}
		if q.Filter.MaxPrice != nil && p.Price > *q.Filter.MaxPrice {
			continue
		}
		results = append(results, SearchResult{ID: h.ID, Score: h.Similarity, Product: p})
		if len(results) == q.TopK {
			break
		}
	}
	return results, nil
}

// Close is a no-op; the store is process-local.
func (s *MemoryStore) Close() error { return nil }

func metadataFromPayload(payload map[string]any) map[string]string {
	meta := make(map[string]string, len(payload))
	for k, v := range payload {
		switch tv := v.(type) {
		case string:
			meta[k] = tv
		case float64:
			meta[k] = strconv.FormatFloat(tv, 'f', -1, 64)
		default:
			meta[k] = fmt.Sprint(tv)
		}
	}
	return meta
}

func stringValue(payload map[string]any, key string) string {
	if v, ok := payload[key].(string); ok {
		return v
	}
	return ""
}

func productFromMetadata(meta map[string]string) catalog.Product {
	price, _ := strconv.ParseFloat(meta[payloadPrice], 64)
	return catalog.Product{
		ID:          meta[payloadProductID],
		Name:        meta[payloadName],
		Description: meta[payloadDescription],
		Price:       price,
		URL:         meta[payloadURL],
		Category:    meta[payloadCategory],
	}
}
