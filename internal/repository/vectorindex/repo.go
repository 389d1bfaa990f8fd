// Package vectorindex adapts the vector backend boundary to the domain:
// it owns the EmbeddingRecord lifecycle and translates backend failures
// into the domain error taxonomy.
package vectorindex

import (
	"context"
	"errors"
	"fmt"

	"github.com/localmart/searchd/internal/db"
	"github.com/localmart/searchd/internal/domain"
	"github.com/localmart/searchd/internal/domain/search"
)

// store is the consumer interface over the vector backend (ISP).
type store interface {
	Upsert(ctx context.Context, item db.UpsertItem) error
	UpsertBatch(ctx context.Context, items []db.UpsertItem) error
	Search(ctx context.Context, q *db.KNNQuery) ([]db.Candidate, error)
	Delete(ctx context.Context, id string) error
	IDs(ctx context.Context) ([]string, error)
}

// Repo implements the vector index adapter contract.
type Repo struct {
	store store
	dim   int
}

// New creates a vector index adapter with a fixed embedding dimension.
func New(s store, dim int) *Repo {
	return &Repo{store: s, dim: dim}
}

// Dim returns the index's fixed embedding dimension.
func (r *Repo) Dim() int { return r.dim }

// Upsert inserts or replaces the embedding record for rec.ID. Idempotent.
// Vectors of the wrong length are rejected, never padded or truncated.
func (r *Repo) Upsert(ctx context.Context, rec domain.EmbeddingRecord) error {
	if len(rec.Vector) != r.dim {
		return fmt.Errorf("%w: got %d, want %d", domain.ErrDimensionMismatch, len(rec.Vector), r.dim)
	}
	if err := r.store.Upsert(ctx, db.UpsertItem{ID: rec.ID, Vector: rec.Vector, Payload: rec.Payload}); err != nil {
		return indexErr("upsert", err)
	}
	return nil
}

// UpsertBatch inserts or replaces multiple embedding records.
func (r *Repo) UpsertBatch(ctx context.Context, recs []domain.EmbeddingRecord) error {
	items := make([]db.UpsertItem, len(recs))
	for i, rec := range recs {
		if len(rec.Vector) != r.dim {
			return fmt.Errorf("%w: id %s: got %d, want %d",
				domain.ErrDimensionMismatch, rec.ID, len(rec.Vector), r.dim)
		}
		items[i] = db.UpsertItem{ID: rec.ID, Vector: rec.Vector, Payload: rec.Payload}
	}
	if err := r.store.UpsertBatch(ctx, items); err != nil {
		return indexErr("upsert batch", err)
	}
	return nil
}

// Search returns up to k candidate ids ordered by descending similarity,
// restricted to entries whose payload satisfies the filter. An empty
// sequence means "no matches", never "backend down": backend failures are
// surfaced as ErrIndexUnavailable.
func (r *Repo) Search(ctx context.Context, vector []float32, f search.Filter, k int) ([]string, error) {
	if len(vector) != r.dim {
		return nil, fmt.Errorf("%w: got %d, want %d", domain.ErrDimensionMismatch, len(vector), r.dim)
	}

	candidates, err := r.store.Search(ctx, &db.KNNQuery{Vector: vector, Filter: f, K: k})
	if err != nil {
		return nil, indexErr("search", err)
	}

	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ID
	}
	return ids, nil
}

// Delete removes the embedding record for id. Idempotent.
func (r *Repo) Delete(ctx context.Context, id string) error {
	if err := r.store.Delete(ctx, id); err != nil {
		return indexErr("delete", err)
	}
	return nil
}

// IDs returns every id present in the index.
func (r *Repo) IDs(ctx context.Context) ([]string, error) {
	ids, err := r.store.IDs(ctx)
	if err != nil {
		return nil, indexErr("ids", err)
	}
	return ids, nil
}

// indexErr maps backend errors to the domain taxonomy. Dimension faults
// keep their identity; everything else is backend unavailability.
func indexErr(op string, err error) error {
	if errors.Is(err, db.ErrBadDimension) {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrDimensionMismatch, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrIndexUnavailable, err)
}
