// Package reconcile repairs divergence between the authoritative record
// store and the vector index: items with no embedding are re-embedded and
// upserted, embeddings with no item are deleted.
package reconcile

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/localmart/searchd/internal/domain"
)

// ItemReader exposes the record store primitives the sweep needs.
type ItemReader interface {
	ListIDs(ctx context.Context) ([]string, error)
	Get(ctx context.Context, id string) (domain.Item, error)
}

// VectorIndex exposes the index primitives the sweep needs.
type VectorIndex interface {
	IDs(ctx context.Context) ([]string, error)
	Upsert(ctx context.Context, rec domain.EmbeddingRecord) error
	Delete(ctx context.Context, id string) error
}

// Embedder vectorizes descriptions of items whose embedding went missing.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// Report summarizes one sweep: the divergence found and what was repaired.
type Report struct {
	StoreItems    int
	IndexEntries  int
	Missing       []string // items without an embedding, re-embedded
	Orphaned      []string // embeddings without an item, deleted
	RepairFailed  []string
}

// Divergent reports whether the sweep found any consistency fault.
func (r Report) Divergent() bool {
	return len(r.Missing) > 0 || len(r.Orphaned) > 0
}

// Service runs reconciliation sweeps on demand.
type Service struct {
	catalog ItemReader
	index   VectorIndex
	embed   Embedder
	logger  *zap.Logger
}

// New creates a reconciliation service.
func New(catalog ItemReader, index VectorIndex, embed Embedder, logger *zap.Logger) *Service {
	return &Service{catalog: catalog, index: index, embed: embed, logger: logger}
}

// Sweep compares the id sets of both stores and repairs any divergence.
// Individual repair failures are recorded and do not abort the sweep.
func (s *Service) Sweep(ctx context.Context) (Report, error) {
	var storeIDs, indexIDs []string

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		storeIDs, err = s.catalog.ListIDs(gctx)
		if err != nil {
			return fmt.Errorf("list store ids: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		indexIDs, err = s.index.IDs(gctx)
		if err != nil {
			return fmt.Errorf("list index ids: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	inStore := toSet(storeIDs)
	inIndex := toSet(indexIDs)

	report := Report{StoreItems: len(inStore), IndexEntries: len(inIndex)}

	for id := range inStore {
		if !inIndex[id] {
			report.Missing = append(report.Missing, id)
		}
	}
	for id := range inIndex {
		if !inStore[id] {
			report.Orphaned = append(report.Orphaned, id)
		}
	}

	if report.Divergent() {
		s.logger.Warn("consistency fault detected",
			zap.Int("missing_embeddings", len(report.Missing)),
			zap.Int("orphaned_embeddings", len(report.Orphaned)),
		)
	}

	for _, id := range report.Missing {
		if err := s.reembed(ctx, id); err != nil {
			s.logger.Error("repair failed", zap.String("id", id), zap.Error(err))
			report.RepairFailed = append(report.RepairFailed, id)
		}
	}

	for _, id := range report.Orphaned {
		if err := s.index.Delete(ctx, id); err != nil {
			s.logger.Error("orphan delete failed", zap.String("id", id), zap.Error(err))
			report.RepairFailed = append(report.RepairFailed, id)
		}
	}

	return report, nil
}

func (s *Service) reembed(ctx context.Context, id string) error {
	it, err := s.catalog.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("%w: fetch %s: %w", domain.ErrConsistencyFault, id, err)
	}
	res, err := s.embed.Embed(ctx, it.Description)
	if err != nil {
		return fmt.Errorf("%w: embed %s: %w", domain.ErrConsistencyFault, id, err)
	}
	rec := domain.EmbeddingRecord{ID: id, Vector: res.Embedding, Payload: domain.PayloadOf(&it)}
	if err := s.index.Upsert(ctx, rec); err != nil {
		return fmt.Errorf("%w: upsert %s: %w", domain.ErrConsistencyFault, id, err)
	}
	return nil
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
