// Package chi is the HTTP transport: routing, request decoding, and the
// mapping from domain sentinel errors to status codes.
package chi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/localmart/searchd/internal/domain"
	domingest "github.com/localmart/searchd/internal/domain/ingest"
	logpkg "github.com/localmart/searchd/internal/logger"
	healthuc "github.com/localmart/searchd/internal/usecase/health"
	ingestuc "github.com/localmart/searchd/internal/usecase/ingest"
	queryuc "github.com/localmart/searchd/internal/usecase/query"
	reconcileuc "github.com/localmart/searchd/internal/usecase/reconcile"
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server exposes the search, ingest, reconcile and health use cases over HTTP.
type Server struct {
	query         *queryuc.Service
	ingest        *ingestuc.Service
	reconcile     *reconcileuc.Service
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	query *queryuc.Service,
	ingest *ingestuc.Service,
	reconcile *reconcileuc.Service,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	s := &Server{
		query:     query,
		ingest:    ingest,
		reconcile: reconcile,
		health:    health,
		logger:    logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrInvalidFilter, http.StatusBadRequest, "invalid_filter"),
		sentinelHandler(domain.ErrInvalidItem, http.StatusBadRequest, "invalid_item"),
		sentinelHandler(domain.ErrDimensionMismatch, http.StatusBadRequest, "dimension_mismatch"),
		sentinelHandler(domain.ErrItemNotFound, http.StatusNotFound, "item_not_found"),
		sentinelHandler(domain.ErrDuplicateID, http.StatusConflict, "duplicate_id"),
		sentinelHandler(domain.ErrEmbedderUnavailable, http.StatusBadGateway, "embedder_unavailable"),
		sentinelHandler(domain.ErrIndexUnavailable, http.StatusServiceUnavailable, "index_unavailable"),
		sentinelHandler(domain.ErrStoreUnavailable, http.StatusServiceUnavailable, "store_unavailable"),
		sentinelHandler(domain.ErrConsistencyFault, http.StatusInternalServerError, "consistency_fault"),
	}
	return s
}

// Register mounts all routes on the given router.
func (s *Server) Register(r chi.Router) {
	r.Post("/search", s.Search)
	r.Post("/items", s.Ingest)
	r.Delete("/items/{id}", s.DeleteItem)
	r.Post("/admin/reconcile", s.Reconcile)
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

// Search handles POST /search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}

	searchReq, err := searchRequestFromDTO(req)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	items, err := s.query.Search(r.Context(), &searchReq)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	out := make([]itemResponse, len(items))
	for i, item := range items {
		out[i] = itemToDTO(item)
	}

	writeJSON(w, http.StatusOK, searchResponse{
		Items: out,
		Total: len(out),
	})
}

// Ingest handles POST /items.
func (s *Server) Ingest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}

	if len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_item", "items must not be empty")
		return
	}

	items := make([]domain.Item, len(req.Items))
	for i, in := range req.Items {
		items[i] = itemFromDTO(in)
	}

	results, err := s.ingest.IngestBatch(r.Context(), items)

	var partial *domain.PartialIngestError
	if err != nil && !errors.As(err, &partial) {
		s.handleDomainError(w, r, err)
		return
	}

	committed, failed := 0, 0
	out := make([]ingestItemResult, len(results))
	for i, res := range results {
		out[i] = ingestResultToDTO(res)
		if res.Status() == domingest.StatusCommitted {
			committed++
		} else {
			failed++
		}
	}

	status := http.StatusOK
	if failed > 0 {
		status = http.StatusMultiStatus
		s.logger.Warn("partial ingest",
			zap.Int("committed", committed),
			zap.Int("failed", failed),
		)
	}

	writeJSON(w, status, ingestResponse{
		Committed: committed,
		Failed:    failed,
		Items:     out,
	})
}

// DeleteItem handles DELETE /items/{id}.
func (s *Server) DeleteItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "item id is required")
		return
	}

	if err := s.ingest.Delete(r.Context(), id); err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Reconcile handles POST /admin/reconcile.
func (s *Server) Reconcile(w http.ResponseWriter, r *http.Request) {
	report, err := s.reconcile.Sweep(r.Context())
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, reconcileResponse{
		StoreItems:   report.StoreItems,
		IndexEntries: report.IndexEntries,
		Missing:      emptyIfNil(report.Missing),
		Orphaned:     emptyIfNil(report.Orphaned),
		RepairFailed: emptyIfNil(report.RepairFailed),
		Divergent:    report.Divergent(),
	})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	writeJSON(w, httpStatus, healthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrInvalidFilter,
		domain.ErrInvalidItem,
		domain.ErrDimensionMismatch,
		domain.ErrItemNotFound,
		domain.ErrDuplicateID,
		domain.ErrEmbedderUnavailable,
		domain.ErrIndexUnavailable,
		domain.ErrStoreUnavailable,
		domain.ErrConsistencyFault,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logpkg.FromContext(r.Context())
	log.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
}
