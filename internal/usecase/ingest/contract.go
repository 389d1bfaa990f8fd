package ingest

import (
	"context"

	"github.com/localmart/searchd/internal/domain"
)

// VectorWriter owns the embedding record side of the dual write.
type VectorWriter interface {
	UpsertBatch(ctx context.Context, recs []domain.EmbeddingRecord) error
	Delete(ctx context.Context, id string) error
}

// ItemWriter owns the authoritative record side of the dual write.
type ItemWriter interface {
	Upsert(ctx context.Context, it *domain.Item) error
	Delete(ctx context.Context, id string) error
}

// BatchEmbedder vectorizes item descriptions.
type BatchEmbedder interface {
	BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error)
}
