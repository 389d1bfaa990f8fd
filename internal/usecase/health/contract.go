package health

import "context"

// IndexPinger checks vector backend availability.
type IndexPinger interface {
	Ping(ctx context.Context) error
}

// StorePinger checks record store availability.
type StorePinger interface {
	Ping(ctx context.Context) error
}

// EmbeddingChecker checks embedding provider availability.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}
