package chi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	chirouter "github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/localmart/searchd/internal/domain"
	"github.com/localmart/searchd/internal/domain/search"
	healthuc "github.com/localmart/searchd/internal/usecase/health"
	ingestuc "github.com/localmart/searchd/internal/usecase/ingest"
	queryuc "github.com/localmart/searchd/internal/usecase/query"
	reconcileuc "github.com/localmart/searchd/internal/usecase/reconcile"
)

// --- Mocks ---

type stubIndex struct {
	searchIDs []string
	searchErr error
	ids       []string
	upsertErr error
	pingErr   error
}

func (s *stubIndex) Search(_ context.Context, _ []float32, _ search.Filter, _ int) ([]string, error) {
	return s.searchIDs, s.searchErr
}

func (s *stubIndex) UpsertBatch(_ context.Context, _ []domain.EmbeddingRecord) error {
	return s.upsertErr
}

func (s *stubIndex) Upsert(_ context.Context, _ domain.EmbeddingRecord) error { return s.upsertErr }
func (s *stubIndex) Delete(_ context.Context, _ string) error                 { return nil }
func (s *stubIndex) IDs(_ context.Context) ([]string, error)                  { return s.ids, nil }
func (s *stubIndex) Ping(_ context.Context) error                             { return s.pingErr }

type stubCatalog struct {
	items         []domain.Item
	fetchErr      error
	upsertErrByID map[string]error
	deleteErr     error
	pingErr       error
}

func (s *stubCatalog) FetchByIDs(_ context.Context, _ []string, _ bool, _ search.Sort, _ int) ([]domain.Item, error) {
	return s.items, s.fetchErr
}

func (s *stubCatalog) Upsert(_ context.Context, it *domain.Item) error {
	if err, ok := s.upsertErrByID[it.ID]; ok {
		return err
	}
	return nil
}

func (s *stubCatalog) Delete(_ context.Context, _ string) error { return s.deleteErr }

func (s *stubCatalog) ListIDs(_ context.Context) ([]string, error) {
	ids := make([]string, len(s.items))
	for i, it := range s.items {
		ids[i] = it.ID
	}
	return ids, nil
}

func (s *stubCatalog) Get(_ context.Context, id string) (domain.Item, error) {
	for _, it := range s.items {
		if it.ID == id {
			return it, nil
		}
	}
	return domain.Item{}, domain.ErrItemNotFound
}

func (s *stubCatalog) Ping(_ context.Context) error { return s.pingErr }

type stubEmbedder struct {
	err error
	dim int
}

func (s *stubEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	if s.err != nil {
		return domain.EmbeddingResult{}, s.err
	}
	return domain.EmbeddingResult{Embedding: make([]float32, s.dim)}, nil
}

func (s *stubEmbedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if s.err != nil {
		return domain.BatchEmbeddingResult{}, s.err
	}
	embeddings := make([][]float32, len(texts))
	for i := range embeddings {
		embeddings[i] = make([]float32, s.dim)
	}
	return domain.BatchEmbeddingResult{Embeddings: embeddings}, nil
}

func (s *stubEmbedder) HealthCheck(_ context.Context) error { return s.err }

// --- Helpers ---

func newTestRouter(index *stubIndex, catalog *stubCatalog, emb *stubEmbedder) chirouter.Router {
	logger := zap.NewNop()
	srv := NewServer(
		queryuc.New(index, catalog, emb, logger),
		ingestuc.New(index, catalog, emb, logger),
		reconcileuc.New(catalog, index, emb, logger),
		healthuc.New(index, catalog, emb),
		logger,
	)
	r := chirouter.NewRouter()
	srv.Register(r)
	return r
}

func doRequest(t *testing.T, r chirouter.Router, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func sampleItem(id string) domain.Item {
	return domain.Item{
		ID:          id,
		Name:        "Whole Milk",
		Description: "Fresh whole milk, one gallon",
		Price:       4.99,
		Category:    "dairy",
		Lat:         40.7128,
		Lon:         -74.0060,
		Rating:      4.5,
		Available:   true,
		CreatedAt:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

// --- Search ---

func TestSearch_Success(t *testing.T) {
	index := &stubIndex{searchIDs: []string{"a"}}
	catalog := &stubCatalog{items: []domain.Item{sampleItem("a")}}
	r := newTestRouter(index, catalog, &stubEmbedder{dim: 3})

	rr := doRequest(t, r, "POST", "/search", `{"query": "fresh milk", "max_results": 5}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("got %d, want %d: %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	var resp searchResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Total != 1 || len(resp.Items) != 1 {
		t.Fatalf("expected 1 item, got total=%d items=%d", resp.Total, len(resp.Items))
	}
	if resp.Items[0].ID != "a" || resp.Items[0].Name != "Whole Milk" {
		t.Errorf("unexpected item: %+v", resp.Items[0])
	}
}

func TestSearch_EmptyResult(t *testing.T) {
	r := newTestRouter(&stubIndex{}, &stubCatalog{}, &stubEmbedder{dim: 3})

	rr := doRequest(t, r, "POST", "/search", `{"query": "anything"}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("got %d, want %d", rr.Code, http.StatusOK)
	}

	var resp searchResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Total != 0 {
		t.Errorf("expected empty result, got %d", resp.Total)
	}
	if resp.Items == nil {
		t.Error("items must be an empty array, not null")
	}
}

func TestSearch_MalformedBody(t *testing.T) {
	r := newTestRouter(&stubIndex{}, &stubCatalog{}, &stubEmbedder{dim: 3})

	rr := doRequest(t, r, "POST", "/search", `{"query": `)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestSearch_EmptyQuery(t *testing.T) {
	r := newTestRouter(&stubIndex{}, &stubCatalog{}, &stubEmbedder{dim: 3})

	rr := doRequest(t, r, "POST", "/search", `{"query": ""}`)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestSearch_InvalidPriceFilter(t *testing.T) {
	r := newTestRouter(&stubIndex{}, &stubCatalog{}, &stubEmbedder{dim: 3})

	rr := doRequest(t, r, "POST", "/search", `{"query": "milk", "min_price": 10, "max_price": 1}`)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want %d", rr.Code, http.StatusBadRequest)
	}

	var resp errorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Code != "invalid_filter" {
		t.Errorf("error code: got %s, want invalid_filter", resp.Code)
	}
}

func TestSearch_IncompleteGeoFilter(t *testing.T) {
	r := newTestRouter(&stubIndex{}, &stubCatalog{}, &stubEmbedder{dim: 3})

	rr := doRequest(t, r, "POST", "/search", `{"query": "milk", "lat": 40.7}`)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("lat without lon/radius_km must be rejected, got %d", rr.Code)
	}
}

func TestSearch_EmbedderDown_502(t *testing.T) {
	emb := &stubEmbedder{err: domain.ErrEmbedderUnavailable}
	r := newTestRouter(&stubIndex{}, &stubCatalog{}, emb)

	rr := doRequest(t, r, "POST", "/search", `{"query": "milk"}`)

	if rr.Code != http.StatusBadGateway {
		t.Errorf("got %d, want %d", rr.Code, http.StatusBadGateway)
	}
}

func TestSearch_IndexDown_503(t *testing.T) {
	index := &stubIndex{searchErr: domain.ErrIndexUnavailable}
	r := newTestRouter(index, &stubCatalog{}, &stubEmbedder{dim: 3})

	rr := doRequest(t, r, "POST", "/search", `{"query": "milk"}`)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("got %d, want %d", rr.Code, http.StatusServiceUnavailable)
	}

	var resp errorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Code != "index_unavailable" {
		t.Errorf("error code: got %s, want index_unavailable", resp.Code)
	}
	if strings.Contains(resp.Message, "searchd") {
		t.Errorf("message must not leak internals: %q", resp.Message)
	}
}

func TestSearch_StoreDown_503(t *testing.T) {
	index := &stubIndex{searchIDs: []string{"a"}}
	catalog := &stubCatalog{fetchErr: domain.ErrStoreUnavailable}
	r := newTestRouter(index, catalog, &stubEmbedder{dim: 3})

	rr := doRequest(t, r, "POST", "/search", `{"query": "milk"}`)

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("got %d, want %d", rr.Code, http.StatusServiceUnavailable)
	}
}

// --- Ingest ---

func TestIngest_AllCommitted(t *testing.T) {
	r := newTestRouter(&stubIndex{}, &stubCatalog{}, &stubEmbedder{dim: 3})

	body := `{"items": [
		{"name": "Whole Milk", "description": "Fresh whole milk", "price": 4.99, "category": "dairy", "lat": 40.7, "lon": -74.0},
		{"name": "Rye Bread", "description": "Dark rye loaf", "price": 3.49, "category": "bakery", "lat": 40.7, "lon": -74.0}
	]}`
	rr := doRequest(t, r, "POST", "/items", body)

	if rr.Code != http.StatusOK {
		t.Fatalf("got %d, want %d: %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	var resp ingestResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Committed != 2 || resp.Failed != 0 {
		t.Errorf("expected 2 committed, got committed=%d failed=%d", resp.Committed, resp.Failed)
	}
	for _, it := range resp.Items {
		if it.ID == "" {
			t.Error("expected generated id for item without one")
		}
		if it.Status != "committed" {
			t.Errorf("expected committed status, got %s", it.Status)
		}
	}
}

func TestIngest_EmptyBatch(t *testing.T) {
	r := newTestRouter(&stubIndex{}, &stubCatalog{}, &stubEmbedder{dim: 3})

	rr := doRequest(t, r, "POST", "/items", `{"items": []}`)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestIngest_InvalidItem(t *testing.T) {
	r := newTestRouter(&stubIndex{}, &stubCatalog{}, &stubEmbedder{dim: 3})

	body := `{"items": [{"name": "", "description": "no name", "price": 1, "category": "misc", "lat": 0, "lon": 0}]}`
	rr := doRequest(t, r, "POST", "/items", body)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestIngest_PartialFailure_207(t *testing.T) {
	catalog := &stubCatalog{
		upsertErrByID: map[string]error{"b": domain.ErrStoreUnavailable},
	}
	r := newTestRouter(&stubIndex{}, catalog, &stubEmbedder{dim: 3})

	body := `{"items": [
		{"id": "a", "name": "Whole Milk", "description": "Fresh whole milk", "price": 4.99, "category": "dairy", "lat": 40.7, "lon": -74.0},
		{"id": "b", "name": "Rye Bread", "description": "Dark rye loaf", "price": 3.49, "category": "bakery", "lat": 40.7, "lon": -74.0}
	]}`
	rr := doRequest(t, r, "POST", "/items", body)

	if rr.Code != http.StatusMultiStatus {
		t.Fatalf("got %d, want %d: %s", rr.Code, http.StatusMultiStatus, rr.Body.String())
	}

	var resp ingestResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Committed != 1 || resp.Failed != 1 {
		t.Fatalf("expected 1/1 split, got committed=%d failed=%d", resp.Committed, resp.Failed)
	}
	for _, it := range resp.Items {
		switch it.ID {
		case "a":
			if it.Status != "committed" {
				t.Errorf("item a: got status %s, want committed", it.Status)
			}
		case "b":
			if it.Status != "failed" {
				t.Errorf("item b: got status %s, want failed", it.Status)
			}
			if it.Stage == "" {
				t.Error("item b: expected stage on failed item")
			}
		default:
			t.Errorf("unexpected item id %s", it.ID)
		}
	}
}

func TestIngest_EmbedderDown_502(t *testing.T) {
	emb := &stubEmbedder{err: domain.ErrEmbedderUnavailable}
	r := newTestRouter(&stubIndex{}, &stubCatalog{}, emb)

	body := `{"items": [{"name": "Whole Milk", "description": "Fresh whole milk", "price": 4.99, "category": "dairy", "lat": 40.7, "lon": -74.0}]}`
	rr := doRequest(t, r, "POST", "/items", body)

	if rr.Code != http.StatusBadGateway {
		t.Errorf("got %d, want %d", rr.Code, http.StatusBadGateway)
	}
}

// --- Delete ---

func TestDeleteItem_Success(t *testing.T) {
	r := newTestRouter(&stubIndex{}, &stubCatalog{}, &stubEmbedder{dim: 3})

	rr := doRequest(t, r, "DELETE", "/items/a", "")

	if rr.Code != http.StatusNoContent {
		t.Errorf("got %d, want %d", rr.Code, http.StatusNoContent)
	}
}

func TestDeleteItem_NotFound(t *testing.T) {
	catalog := &stubCatalog{deleteErr: domain.ErrItemNotFound}
	r := newTestRouter(&stubIndex{}, catalog, &stubEmbedder{dim: 3})

	rr := doRequest(t, r, "DELETE", "/items/ghost", "")

	if rr.Code != http.StatusNotFound {
		t.Errorf("got %d, want %d", rr.Code, http.StatusNotFound)
	}
}

// --- Reconcile ---

func TestReconcile_ReportsDivergence(t *testing.T) {
	// Item "a" exists in both stores, "b" only in the record store,
	// "ghost" only in the index.
	index := &stubIndex{ids: []string{"a", "ghost"}}
	catalog := &stubCatalog{items: []domain.Item{sampleItem("a"), sampleItem("b")}}
	r := newTestRouter(index, catalog, &stubEmbedder{dim: 3})

	rr := doRequest(t, r, "POST", "/admin/reconcile", "")

	if rr.Code != http.StatusOK {
		t.Fatalf("got %d, want %d: %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	var resp reconcileResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Divergent {
		t.Error("expected divergent report")
	}
	if len(resp.Missing) != 1 || resp.Missing[0] != "b" {
		t.Errorf("expected missing [b], got %v", resp.Missing)
	}
	if len(resp.Orphaned) != 1 || resp.Orphaned[0] != "ghost" {
		t.Errorf("expected orphaned [ghost], got %v", resp.Orphaned)
	}
}

func TestReconcile_Converged(t *testing.T) {
	index := &stubIndex{ids: []string{"a"}}
	catalog := &stubCatalog{items: []domain.Item{sampleItem("a")}}
	r := newTestRouter(index, catalog, &stubEmbedder{dim: 3})

	rr := doRequest(t, r, "POST", "/admin/reconcile", "")

	if rr.Code != http.StatusOK {
		t.Fatalf("got %d, want %d", rr.Code, http.StatusOK)
	}

	var resp reconcileResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Divergent {
		t.Error("expected converged report")
	}
	if resp.Missing == nil || resp.Orphaned == nil {
		t.Error("report lists must be empty arrays, not null")
	}
}

// --- Health ---

func TestHealth_AllHealthy(t *testing.T) {
	r := newTestRouter(&stubIndex{}, &stubCatalog{}, &stubEmbedder{})

	rr := doRequest(t, r, "GET", "/health", "")

	if rr.Code != http.StatusOK {
		t.Fatalf("got %d, want %d", rr.Code, http.StatusOK)
	}

	var resp healthResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("status: got %s, want ok", resp.Status)
	}
	if resp.Checks["vector_index"] != "ok" || resp.Checks["record_store"] != "ok" {
		t.Errorf("unexpected checks: %v", resp.Checks)
	}
}

func TestHealth_Degraded_503(t *testing.T) {
	index := &stubIndex{pingErr: domain.ErrIndexUnavailable}
	r := newTestRouter(index, &stubCatalog{}, &stubEmbedder{})

	rr := doRequest(t, r, "GET", "/health", "")

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("got %d, want %d", rr.Code, http.StatusServiceUnavailable)
	}

	var resp healthResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "degraded" {
		t.Errorf("status: got %s, want degraded", resp.Status)
	}
	if resp.Checks["vector_index"] != "error" {
		t.Errorf("vector_index check: got %s, want error", resp.Checks["vector_index"])
	}
}
