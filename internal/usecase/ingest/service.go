// Package ingest coordinates the dual write behind item ingestion. There is
// no transaction spanning the record store and the vector index, so each
// batch moves through an explicit state machine
// (Pending -> Embedded -> Written -> Committed, Failed from any state)
// with compensating deletes instead of a pretended atomic commit.
//
// The vector index is written before the record store commit on purpose: a
// commit failure after the vector write leaves an orphaned embedding that
// never surfaces (reconciliation sweeps it up), whereas the reverse order
// would leave a committed item that is permanently unsearchable.
//
// Concurrent ingestion of the same id is serialized by contract, not by
// locks: Upsert is idempotent at both stores, so last-write-wins is safe.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/localmart/searchd/internal/domain"
	domingest "github.com/localmart/searchd/internal/domain/ingest"
	"github.com/localmart/searchd/internal/metrics"
)

// DefaultMaxBatchSize bounds the number of items per ingestion batch.
const DefaultMaxBatchSize = 100

// Service is the ingestion coordinator: the only component permitted to
// mutate both stores in one logical operation.
type Service struct {
	index    VectorWriter
	catalog  ItemWriter
	embed    BatchEmbedder
	maxBatch int
	now      func() time.Time
	logger   *zap.Logger
}

// New creates an ingestion coordinator.
func New(index VectorWriter, catalog ItemWriter, embed BatchEmbedder, logger *zap.Logger) *Service {
	return &Service{
		index:    index,
		catalog:  catalog,
		embed:    embed,
		maxBatch: DefaultMaxBatchSize,
		now:      time.Now,
		logger:   logger,
	}
}

// WithMaxBatchSize configures the maximum batch size.
func (s *Service) WithMaxBatchSize(size int) *Service {
	if size > 0 {
		s.maxBatch = size
	}
	return s
}

// WithClock overrides the timestamp source. Test hook.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// IngestBatch validates, embeds, and dual-writes a batch of items. Items
// without an id are assigned one. On success every item is committed; on
// partial progress the returned error is a *domain.PartialIngestError
// naming which ids succeeded, which failed, and at which stage — items are
// never silently dropped.
//
// Validation and embedding failures reject the whole batch before any side
// effect, so those paths return a plain error and no per-item results.
func (s *Service) IngestBatch(ctx context.Context, items []domain.Item) ([]domingest.Result, error) {
	if len(items) == 0 {
		return nil, nil
	}
	if len(items) > s.maxBatch {
		return nil, fmt.Errorf("%w: batch size %d exceeds %d", domain.ErrInvalidItem, len(items), s.maxBatch)
	}

	// Pending: validate everything before any side effect.
	now := s.now().UTC()
	for i := range items {
		if items[i].ID == "" {
			items[i].ID = uuid.NewString()
		}
		if items[i].CreatedAt.IsZero() {
			items[i].CreatedAt = now
		}
		if err := items[i].Validate(); err != nil {
			return nil, fmt.Errorf("item %s: %w", items[i].ID, err)
		}
	}

	// Embedded: batch-encode descriptions. A provider failure aborts the
	// whole batch; nothing has been written yet.
	texts := make([]string, len(items))
	for i := range items {
		texts[i] = items[i].Description
	}
	embRes, err := s.embed.BatchEmbed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed batch: %w", err)
	}
	if len(embRes.Embeddings) != len(items) {
		return nil, fmt.Errorf("embed batch: %w: got %d vectors for %d items",
			domain.ErrEmbedderUnavailable, len(embRes.Embeddings), len(items))
	}

	// Written: vectors and payloads go into the index first.
	recs := make([]domain.EmbeddingRecord, len(items))
	for i := range items {
		recs[i] = domain.EmbeddingRecord{
			ID:      items[i].ID,
			Vector:  embRes.Embeddings[i],
			Payload: domain.PayloadOf(&items[i]),
		}
	}
	if err := s.index.UpsertBatch(ctx, recs); err != nil {
		// The batch write may have partially applied; compensate all ids.
		s.compensate(ctx, idsOf(items))
		results := make([]domingest.Result, len(items))
		failures := make([]domain.ItemFailure, len(items))
		for i := range items {
			werr := fmt.Errorf("write vectors: %w", err)
			results[i] = domingest.NewFailed(items[i].ID, domain.StageEmbedded, werr)
			failures[i] = domain.ItemFailure{ID: items[i].ID, Stage: domain.StageEmbedded, Err: werr}
		}
		metrics.IngestItemsTotal.WithLabelValues("failed").Add(float64(len(items)))
		return results, &domain.PartialIngestError{Failed: failures}
	}

	// Committed: persist items to the record store, per item so a single
	// bad row cannot sink the batch.
	results := make([]domingest.Result, len(items))
	var committed []string
	var failures []domain.ItemFailure
	for i := range items {
		if err := s.catalog.Upsert(ctx, &items[i]); err != nil {
			cerr := fmt.Errorf("commit item: %w", err)
			s.compensate(ctx, []string{items[i].ID})
			results[i] = domingest.NewFailed(items[i].ID, domain.StageWritten, cerr)
			failures = append(failures, domain.ItemFailure{ID: items[i].ID, Stage: domain.StageWritten, Err: cerr})
			continue
		}
		results[i] = domingest.NewCommitted(items[i].ID)
		committed = append(committed, items[i].ID)
	}

	metrics.IngestItemsTotal.WithLabelValues("committed").Add(float64(len(committed)))
	metrics.IngestItemsTotal.WithLabelValues("failed").Add(float64(len(failures)))

	if len(failures) > 0 {
		return results, &domain.PartialIngestError{Committed: committed, Failed: failures}
	}
	return results, nil
}

// Delete removes an item from both stores: record store first, so a failure
// between the two leaves an orphaned vector (harmless, swept later) rather
// than a searchable id with no record.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.catalog.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	if err := s.index.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete vector: %w", err)
	}
	return nil
}

// compensate best-effort deletes vectors written earlier in a failed batch.
// Compensation failures are logged and skipped: the reconciliation sweep is
// the backstop for anything left behind.
func (s *Service) compensate(ctx context.Context, ids []string) {
	for _, id := range ids {
		if err := s.index.Delete(ctx, id); err != nil {
			s.logger.Warn("compensating vector delete failed",
				zap.String("id", id),
				zap.Error(err),
			)
		}
	}
}

func idsOf(items []domain.Item) []string {
	ids := make([]string, len(items))
	for i := range items {
		ids[i] = items[i].ID
	}
	return ids
}
