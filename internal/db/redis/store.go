package redis

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"

	"github.com/redis/rueidis"

	"github.com/localmart/searchd/internal/db"
)

// Upsert inserts or replaces the entry for item.ID via HSET. Replaying the
// same call is a no-op in effect.
func (s *Store) Upsert(ctx context.Context, item db.UpsertItem) error {
	if len(item.Vector) != s.dim {
		return fmt.Errorf("%w: got %d, index dimension is %d", db.ErrBadDimension, len(item.Vector), s.dim)
	}

	cmd := s.b().Hset().Key(s.key(item.ID)).FieldValue()
	for k, v := range hashFields(item) {
		cmd = cmd.FieldValue(k, v)
	}
	if err := s.do(ctx, cmd.Build()).Error(); err != nil {
		return &db.Error{Op: db.OpUpsert, Err: err}
	}
	return nil
}

// UpsertBatch stores multiple entries in a single DoMulti round-trip.
func (s *Store) UpsertBatch(ctx context.Context, items []db.UpsertItem) error {
	if len(items) == 0 {
		return nil
	}
	for _, item := range items {
		if len(item.Vector) != s.dim {
			return fmt.Errorf("%w: id %s: got %d, index dimension is %d",
				db.ErrBadDimension, item.ID, len(item.Vector), s.dim)
		}
	}

	cmds := make([]rueidis.Completed, len(items))
	for i, item := range items {
		cmd := s.b().Hset().Key(s.key(item.ID)).FieldValue()
		for k, v := range hashFields(item) {
			cmd = cmd.FieldValue(k, v)
		}
		cmds[i] = cmd.Build()
	}

	results := s.client.DoMulti(ctx, cmds...)
	for i, res := range results {
		if err := res.Error(); err != nil {
			return &db.Error{Op: db.OpUpsert, Err: fmt.Errorf("id %s: %w", items[i].ID, err)}
		}
	}
	return nil
}

// Delete removes the entry for id. Deleting a missing id is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	cmd := s.b().Del().Key(s.key(id)).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		return &db.Error{Op: db.OpDelete, Err: err}
	}
	return nil
}

// IDs returns every item id present in the index via SCAN.
func (s *Store) IDs(ctx context.Context) ([]string, error) {
	var ids []string
	var cursor uint64

	for {
		cmd := s.b().Scan().Cursor(cursor).Match(s.prefix + "*").Count(100).Build()
		res, err := s.do(ctx, cmd).AsScanEntry()
		if err != nil {
			return nil, &db.Error{Op: db.OpScan, Err: err}
		}
		for _, key := range res.Elements {
			if key == s.indexName() {
				continue
			}
			ids = append(ids, s.id(key))
		}
		cursor = res.Cursor
		if cursor == 0 {
			break
		}
	}

	return ids, nil
}

// hashFields flattens an upsert item into HSET fields. The GEO field format
// is "lon,lat" as RediSearch expects.
func hashFields(item db.UpsertItem) map[string]string {
	p := item.Payload
	return map[string]string{
		"__vector":   vectorToBytes(item.Vector),
		"price":      strconv.FormatFloat(p.Price, 'f', -1, 64),
		"rating":     strconv.FormatFloat(p.Rating, 'f', -1, 64),
		"created_at": strconv.FormatInt(p.CreatedAt, 10),
		"category":   p.Category,
		"available":  boolTag(p.Available),
		"location":   fmt.Sprintf("%f,%f", p.Lon, p.Lat),
	}
}

func boolTag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// vectorToBytes serializes []float32 to a binary string (4 bytes per float, little-endian).
func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}
