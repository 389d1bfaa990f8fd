package redis

import (
	"context"
	"strconv"

	"github.com/localmart/searchd/internal/db"
)

// EnsureIndex creates the FT index for item entries if it does not exist.
// Schema: one FLOAT32 vector field plus the denormalized filter payload
// (price, rating, created_at as NUMERIC; category, available as TAG;
// location as GEO).
func (s *Store) EnsureIndex(ctx context.Context) error {
	exists, err := s.indexExists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	args := []string{
		s.indexName(),
		"ON", "HASH",
		"PREFIX", "1", s.prefix,
		"SCHEMA",
		"price", "NUMERIC",
		"rating", "NUMERIC",
		"created_at", "NUMERIC",
		"category", "TAG",
		"available", "TAG",
		"location", "GEO",
	}
	args = append(args, vectorFieldArgs(s.dim, s.hnswM, s.hnswEF)...)

	cmd := s.b().Arbitrary("FT.CREATE").Args(args...).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		if isRedisErr(err, "index already exists") {
			return nil
		}
		return &db.Error{Op: db.OpCreateIndex, Err: err}
	}
	return nil
}

// indexExists probes index existence via FT.INFO; "unknown index name" means absent.
func (s *Store) indexExists(ctx context.Context) (bool, error) {
	cmd := s.b().Arbitrary("FT.INFO").Args(s.indexName()).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		if isRedisErr(err, "unknown index name") {
			return false, nil
		}
		return false, &db.Error{Op: db.OpIndexInfo, Err: err}
	}
	return true, nil
}

func vectorFieldArgs(dim, m, efConstruct int) []string {
	attrs := []string{
		"TYPE", "FLOAT32",
		"DIM", strconv.Itoa(dim),
		"DISTANCE_METRIC", "COSINE",
	}
	if m > 0 {
		attrs = append(attrs, "M", strconv.Itoa(m))
	}
	if efConstruct > 0 {
		attrs = append(attrs, "EF_CONSTRUCTION", strconv.Itoa(efConstruct))
	}

	args := make([]string, 0, 3+len(attrs))
	args = append(args, "__vector", "VECTOR", "HNSW", strconv.Itoa(len(attrs)))
	args = append(args, attrs...)
	return args
}
