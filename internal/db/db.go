package db

import (
	"context"
	"time"

	"github.com/localmart/searchd/internal/domain"
	"github.com/localmart/searchd/internal/domain/search"
)

// KNNQuery is the input for a filtered vector similarity search. The filter
// is applied before the top-K cut: a backend must never truncate an
// unfiltered candidate list and filter afterwards.
type KNNQuery struct {
	Vector []float32
	Filter search.Filter
	K      int
}

// Candidate is a single hit from a vector search, ordered by descending
// similarity.
type Candidate struct {
	ID    string
	Score float64
}

// UpsertItem pairs an id with its vector and denormalized filter payload.
type UpsertItem struct {
	ID      string
	Vector  []float32
	Payload domain.Payload
}

// VectorStore is the vector backend boundary. Implementations key entries
// by the caller-chosen id; a backend whose native identifier space is
// sequence-number-only must maintain and persist its own id mapping.
type VectorStore interface {
	// EnsureIndex creates the backing index if it does not exist.
	EnsureIndex(ctx context.Context) error
	// Upsert inserts or replaces the entry for item.ID. Idempotent.
	Upsert(ctx context.Context, item UpsertItem) error
	// UpsertBatch inserts or replaces multiple entries in one round-trip.
	UpsertBatch(ctx context.Context, items []UpsertItem) error
	// Search returns up to q.K candidates satisfying q.Filter, ordered by
	// descending similarity. An empty result is not an error.
	Search(ctx context.Context, q *KNNQuery) ([]Candidate, error)
	// Delete removes the entry for id. Deleting a missing id is not an error.
	Delete(ctx context.Context, id string) error
	// IDs returns every id present in the index (reconciliation sweep input).
	IDs(ctx context.Context) ([]string, error)

	Ping(ctx context.Context) error
	WaitForReady(ctx context.Context, timeout time.Duration) error
	Close()
}
