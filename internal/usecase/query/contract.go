package query

import (
	"context"

	"github.com/localmart/searchd/internal/domain"
	"github.com/localmart/searchd/internal/domain/search"
)

// VectorSearcher runs filtered nearest-neighbor searches.
type VectorSearcher interface {
	Search(ctx context.Context, vector []float32, f search.Filter, k int) ([]string, error)
}

// ItemFetcher reconciles candidate ids against the authoritative store.
type ItemFetcher interface {
	FetchByIDs(ctx context.Context, ids []string, availableOnly bool, sort search.Sort, limit int) ([]domain.Item, error)
}

// Embedder vectorizes query text.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
