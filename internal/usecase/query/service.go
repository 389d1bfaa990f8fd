// Package query is the core entry point for search requests: it sequences
// embedding, filtered vector search, record reconciliation, ranking, and
// truncation, and defines degradation behavior across the pipeline.
package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/localmart/searchd/internal/domain"
	"github.com/localmart/searchd/internal/domain/search"
	"github.com/localmart/searchd/internal/metrics"
)

// DefaultOverfetchFactor multiplies max_results when querying the vector
// index, leaving headroom for candidates the record store filters out.
const DefaultOverfetchFactor = 2

// Service orchestrates the query pipeline. It holds no mutable state, so
// concurrent requests execute in parallel without coordination.
type Service struct {
	index     VectorSearcher
	catalog   ItemFetcher
	embed     Embedder
	overfetch int
	retries   uint64
	retryBase time.Duration
	logger    *zap.Logger
}

// New creates a query service.
func New(index VectorSearcher, catalog ItemFetcher, embed Embedder, logger *zap.Logger) *Service {
	return &Service{
		index:     index,
		catalog:   catalog,
		embed:     embed,
		overfetch: DefaultOverfetchFactor,
		retryBase: 100 * time.Millisecond,
		logger:    logger,
	}
}

// WithOverfetchFactor configures the overfetch multiplier (minimum 1).
func (s *Service) WithOverfetchFactor(factor int) *Service {
	if factor >= 1 {
		s.overfetch = factor
	}
	return s
}

// WithRetries configures how many times transient backend unavailability on
// the read path is retried with backoff. Retry policy lives here and only
// here: adapters never retry internally.
func (s *Service) WithRetries(n uint64, base time.Duration) *Service {
	s.retries = n
	if base > 0 {
		s.retryBase = base
	}
	return s
}

// Search answers a natural-language product query under structured
// predicates and returns ranked items.
//
// An empty candidate set is success, not an error: callers can rely on the
// distinction between "no matches" and a surfaced ErrIndexUnavailable /
// ErrStoreUnavailable. If fewer than max_results candidates survive
// reconciliation, the smaller set is returned rather than re-querying;
// callers needing deeper pagination must raise the overfetch factor.
func (s *Service) Search(ctx context.Context, req *search.Request) ([]domain.Item, error) {
	start := time.Now()

	items, err := s.search(ctx, req)

	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.SearchRequestsTotal.WithLabelValues(status).Inc()
	metrics.SearchDuration.Observe(time.Since(start).Seconds())

	return items, err
}

func (s *Service) search(ctx context.Context, req *search.Request) ([]domain.Item, error) {
	embRes, err := s.embed.Embed(ctx, req.Query())
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	k := req.MaxResults() * s.overfetch

	var ids []string
	err = s.withRetry(ctx, domain.ErrIndexUnavailable, func(ctx context.Context) error {
		var serr error
		ids, serr = s.index.Search(ctx, embRes.Embedding, req.Filter(), k)
		return serr
	})
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	metrics.SearchCandidates.Observe(float64(len(ids)))

	if len(ids) == 0 {
		return []domain.Item{}, nil
	}

	var items []domain.Item
	err = s.withRetry(ctx, domain.ErrStoreUnavailable, func(ctx context.Context) error {
		var ferr error
		items, ferr = s.catalog.FetchByIDs(ctx, ids, req.Filter().AvailableOnly(), req.Sort(), req.MaxResults())
		return ferr
	})
	if err != nil {
		return nil, fmt.Errorf("fetch items: %w", err)
	}

	if len(items) < len(ids) {
		s.logger.Debug("candidates dropped during reconciliation",
			zap.Int("candidates", len(ids)),
			zap.Int("returned", len(items)),
		)
	}

	return items, nil
}

// withRetry runs fn, retrying with Fibonacci backoff only when the error
// matches the given transient sentinel. Context cancellation always wins.
func (s *Service) withRetry(ctx context.Context, transient error, fn func(ctx context.Context) error) error {
	if s.retries == 0 {
		return fn(ctx)
	}

	b := retry.NewFibonacci(s.retryBase)
	return retry.Do(ctx, retry.WithMaxRetries(s.retries, b), func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, transient) &&
			!errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			return retry.RetryableError(err)
		}
		return err
	})
}
