package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/storelens/storelens/engine/ingest"
	"github.com/storelens/storelens/engine/search"
	"github.com/storelens/storelens/engine/semantic"
	"github.com/storelens/storelens/pkg/fn"
)

// --- Fakes ---

type stubEmbedder struct{}

func (stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	v := make([]float32, 4)
	for i, r := range text {
		v[i%4] += float32(r)
	}
	return v, nil
}

func (s stubEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = s.Embed(context.Background(), t)
	}
	return out, nil
}

func (stubEmbedder) Dimensions() int { return 4 }
func (stubEmbedder) Model() string   { return "stub" }

type downStore struct{ semantic.Store }

func (downStore) Count(context.Context) (uint64, error) {
	return 0, errors.New("unreachable")
}

func testCatalog(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "products.json")
	data := `[
		{"id":"sku-1","name":"trail shoe","description":"grippy sole","price":80,"url":"https://shop/1","category":"footwear"},
		{"id":"sku-2","name":"water bottle","description":"steel","price":15,"url":"https://shop/2","category":"gear"}
	]`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	return path
}

func testReindexer(t *testing.T, store semantic.Store, catalogPath string) *ingest.Reindexer {
	t.Helper()
	return ingest.NewReindexer(ingest.Deps{
		Embedder:    stubEmbedder{},
		Store:       store,
		CatalogPath: catalogPath,
		Logger:      slog.New(slog.NewTextHandler(os.Stderr, nil)),
	})
}

// --- Config ---

func TestLoadConfig_Defaults(t *testing.T) {
	cfg := loadConfig()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.Collection != "products" {
		t.Fatalf("expected default collection products, got %s", cfg.Collection)
	}
	if cfg.VectorBackend != "qdrant" {
		t.Fatalf("expected default backend qdrant, got %s", cfg.VectorBackend)
	}
}

func TestEnvOr(t *testing.T) {
	t.Setenv("TEST_ENV_VAR_XYZ", "custom")
	if v := envOr("TEST_ENV_VAR_XYZ", "default"); v != "custom" {
		t.Fatalf("expected custom, got %s", v)
	}
	if v := envOr("NONEXISTENT_VAR_ABC", "fallback"); v != "fallback" {
		t.Fatalf("expected fallback, got %s", v)
	}
}

func TestEnvFloatAndInt(t *testing.T) {
	t.Setenv("TEST_RPS", "2.5")
	t.Setenv("TEST_BURST", "7")
	if v := envFloat("TEST_RPS", 1); v != 2.5 {
		t.Fatalf("expected 2.5, got %v", v)
	}
	if v := envInt("TEST_BURST", 1); v != 7 {
		t.Fatalf("expected 7, got %v", v)
	}
	if v := envFloat("TEST_RPS_MISSING", 9); v != 9 {
		t.Fatalf("expected fallback 9, got %v", v)
	}
}

func TestNewEmbedder_UnknownBackend(t *testing.T) {
	_, err := newEmbedder(Config{EmbedBackend: "word2vec"})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestNewEmbedder_OpenAIWithoutKey(t *testing.T) {
	_, err := newEmbedder(Config{EmbedBackend: "openai"})
	if err == nil {
		t.Fatal("expected error for missing api key")
	}
}

func TestNewStore_Memory(t *testing.T) {
	store, err := newStore(Config{VectorBackend: "memory", Collection: "products"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := store.(*semantic.MemoryStore); !ok {
		t.Fatalf("expected memory store, got %T", store)
	}
}

func TestNewStore_Unknown(t *testing.T) {
	if _, err := newStore(Config{VectorBackend: "sqlite"}); err == nil {
		t.Fatal("expected error")
	}
}

// --- Handlers ---

func TestIndexPage(t *testing.T) {
	rec := httptest.NewRecorder()
	handleIndex(rec, httptest.NewRequest("GET", "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("wrong content type: %s", ct)
	}
	if !strings.Contains(rec.Body.String(), "Storelens") {
		t.Fatal("page body missing title")
	}
}

func TestHealth_OK(t *testing.T) {
	store := semantic.NewMemory("products")
	if err := store.EnsureCollection(context.Background(), 4); err != nil {
		t.Fatalf("EnsureCollection: %v", err)
	}

	rec := httptest.NewRecorder()
	handleHealth(store)(rec, httptest.NewRequest("GET", "/api/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["status"] != "ok" {
		t.Fatalf("expected status ok, got %s", resp["status"])
	}
}

func TestHealth_Degraded(t *testing.T) {
	rec := httptest.NewRecorder()
	handleHealth(downStore{})(rec, httptest.NewRequest("GET", "/api/health", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestSearchEndpoint_MissingQuery(t *testing.T) {
	rec := httptest.NewRecorder()
	handleSearch(nil, slog.Default())(rec, httptest.NewRequest("GET", "/search", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSearchEndpoint_BadTopK(t *testing.T) {
	for _, v := range []string{"abc", "0", "-3"} {
		rec := httptest.NewRecorder()
		handleSearch(nil, slog.Default())(rec, httptest.NewRequest("GET", "/search?q=shoes&top_k="+v, nil))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("top_k=%s: expected 400, got %d", v, rec.Code)
		}
	}
}

func TestSearchEndpoint_BadScoreThreshold(t *testing.T) {
	rec := httptest.NewRecorder()
	handleSearch(nil, slog.Default())(rec, httptest.NewRequest("GET", "/search?q=shoes&score_threshold=2", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSearchEndpoint_EndToEnd(t *testing.T) {
	store := semantic.NewMemory("products")
	r := testReindexer(t, store, testCatalog(t))
	if _, err := r.Run(context.Background()); err != nil {
		t.Fatalf("seed: %v", err)
	}

	svc := search.New(stubEmbedder{}, store, search.Options{
		TopK:           8,
		MaxTopK:        50,
		CandidateFloor: 2,
		SearchTimeout:  search.DefaultOptions().SearchTimeout,
	}, nil, nil)

	rec := httptest.NewRecorder()
	handleSearch(svc, slog.Default())(rec, httptest.NewRequest("GET", "/search?q=trail+shoe", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp search.Response
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Results) == 0 {
		t.Fatal("expected results")
	}
	if resp.Results[0].Product.ID == "" {
		t.Fatalf("result missing product: %+v", resp.Results[0])
	}
}

func TestReindexEndpoint(t *testing.T) {
	store := semantic.NewMemory("products")
	r := testReindexer(t, store, testCatalog(t))

	rec := httptest.NewRecorder()
	handleReindex(r, slog.Default())(rec, httptest.NewRequest("POST", "/reindex", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp ReindexResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.OK || resp.Seeded != 2 {
		t.Fatalf("unexpected response: %+v", resp)
	}

	n, err := store.Count(context.Background())
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 points, got %d", n)
	}
}

func TestReindexEndpoint_BadCatalog(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"malformed json", `{not json`},
		{"not an array", `{"id":"sku-1"}`},
		{"empty array", `[]`},
		{"invalid record", `[{"id":"sku-1","name":"thing","price":-5}]`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "products.json")
			if err := os.WriteFile(path, []byte(tc.data), 0o644); err != nil {
				t.Fatalf("write catalog: %v", err)
			}
			r := testReindexer(t, semantic.NewMemory("products"), path)

			rec := httptest.NewRecorder()
			handleReindex(r, slog.Default())(rec, httptest.NewRequest("POST", "/reindex", nil))

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
			var resp map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp["error"] == "" {
				t.Fatal("expected an error message in the body")
			}
		})
	}
}

type failEmbedder struct{ stubEmbedder }

func (failEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("backend down")
}

func TestReindexEndpoint_EmbedderFailureIsServerError(t *testing.T) {
	prev := ingest.EmbedRetry
	ingest.EmbedRetry = fn.RetryOpts{MaxAttempts: 1}
	t.Cleanup(func() { ingest.EmbedRetry = prev })

	r := ingest.NewReindexer(ingest.Deps{
		Embedder:    failEmbedder{},
		Store:       semantic.NewMemory("products"),
		CatalogPath: testCatalog(t),
		Logger:      slog.New(slog.NewTextHandler(os.Stderr, nil)),
	})

	rec := httptest.NewRecorder()
	handleReindex(r, slog.Default())(rec, httptest.NewRequest("POST", "/reindex", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestReindexEndpoint_MissingCatalog(t *testing.T) {
	store := semantic.NewMemory("products")
	r := testReindexer(t, store, filepath.Join(t.TempDir(), "absent.json"))

	rec := httptest.NewRecorder()
	handleReindex(r, slog.Default())(rec, httptest.NewRequest("POST", "/reindex", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp ReindexResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.OK || resp.Seeded != 0 || resp.Note == "" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}
