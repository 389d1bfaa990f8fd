// Package flat is the in-process vector backend: a brute-force cosine
// similarity scan over an in-memory working set, persisted in SQLite.
//
// The underlying approach mirrors a bare nearest-neighbor library, which
// offers neither caller-chosen keys nor native filtering. Both gaps are
// closed here: the id column in SQLite is the persisted id mapping, and
// filter predicates are evaluated per entry before the top-k cut so a tight
// filter can never be starved by an unfiltered truncation.
package flat

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/localmart/searchd/internal/db"
	"github.com/localmart/searchd/internal/domain"
)

// Compile-time check: Store implements db.VectorStore.
var _ db.VectorStore = (*Store)(nil)

type entry struct {
	vector  []float32
	payload domain.Payload
}

// Store implements db.VectorStore without an external service.
type Store struct {
	mu      sync.RWMutex
	sdb     *sql.DB
	dim     int
	entries map[string]entry
}

// NewStore opens (or creates) the index file and loads all entries into
// memory. Use path ":memory:" for an ephemeral index.
func NewStore(path string, dim int) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("index path is required")
	}
	if dim <= 0 {
		return nil, fmt.Errorf("dim must be positive")
	}

	sdb, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open index db: %w", err)
	}

	s := &Store{sdb: sdb, dim: dim, entries: make(map[string]entry)}
	if err := s.init(context.Background()); err != nil {
		sdb.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init(ctx context.Context) error {
	const schema = `CREATE TABLE IF NOT EXISTS vectors (
		id         TEXT PRIMARY KEY,
		vector     BLOB NOT NULL,
		price      REAL NOT NULL,
		category   TEXT NOT NULL,
		lat        REAL NOT NULL,
		lon        REAL NOT NULL,
		rating     REAL NOT NULL,
		available  INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	)`
	if _, err := s.sdb.ExecContext(ctx, schema); err != nil {
		return &db.Error{Op: db.OpCreateIndex, Err: err}
	}
	return s.load(ctx)
}

// load hydrates the in-memory working set from SQLite.
func (s *Store) load(ctx context.Context) error {
	rows, err := s.sdb.QueryContext(ctx,
		`SELECT id, vector, price, category, lat, lon, rating, available, created_at FROM vectors`)
	if err != nil {
		return &db.Error{Op: db.OpScan, Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var blob []byte
		var p domain.Payload
		var avail int
		if err := rows.Scan(&id, &blob, &p.Price, &p.Category, &p.Lat, &p.Lon,
			&p.Rating, &avail, &p.CreatedAt); err != nil {
			return &db.Error{Op: db.OpScan, Err: err}
		}
		p.Available = avail == 1
		s.entries[id] = entry{vector: bytesToVector(blob), payload: p}
	}
	if err := rows.Err(); err != nil {
		return &db.Error{Op: db.OpScan, Err: err}
	}
	return nil
}

// EnsureIndex is a no-op: the table is created at open time.
func (s *Store) EnsureIndex(_ context.Context) error { return nil }

// Upsert inserts or replaces the entry for item.ID, durably and in memory.
func (s *Store) Upsert(ctx context.Context, item db.UpsertItem) error {
	if len(item.Vector) != s.dim {
		return fmt.Errorf("%w: got %d, index dimension is %d", db.ErrBadDimension, len(item.Vector), s.dim)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p := item.Payload
	_, err := s.sdb.ExecContext(ctx,
		`INSERT OR REPLACE INTO vectors (id, vector, price, category, lat, lon, rating, available, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, vectorToBytes(item.Vector), p.Price, p.Category, p.Lat, p.Lon,
		p.Rating, boolInt(p.Available), p.CreatedAt)
	if err != nil {
		return &db.Error{Op: db.OpUpsert, Err: err}
	}

	vec := make([]float32, len(item.Vector))
	copy(vec, item.Vector)
	s.entries[item.ID] = entry{vector: vec, payload: p}
	return nil
}

// UpsertBatch stores multiple entries in one transaction.
func (s *Store) UpsertBatch(ctx context.Context, items []db.UpsertItem) error {
	for _, item := range items {
		if err := s.Upsert(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

// Search scans every entry satisfying the filter and keeps the top q.K by
// cosine similarity. The filter runs before the cut.
func (s *Store) Search(ctx context.Context, q *db.KNNQuery) ([]db.Candidate, error) {
	if len(q.Vector) != s.dim {
		return nil, fmt.Errorf("%w: got %d, index dimension is %d", db.ErrBadDimension, len(q.Vector), s.dim)
	}
	if q.K <= 0 {
		return nil, fmt.Errorf("k must be positive")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	candidates := make([]db.Candidate, 0, q.K)
	for id, e := range s.entries {
		if !q.Filter.Matches(e.payload) {
			continue
		}
		candidates = append(candidates, db.Candidate{
			ID:    id,
			Score: cosineSimilarity(q.Vector, e.vector),
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].ID < candidates[j].ID
	})

	if len(candidates) > q.K {
		candidates = candidates[:q.K]
	}
	return candidates, nil
}

// Delete removes the entry for id. Deleting a missing id is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.sdb.ExecContext(ctx, `DELETE FROM vectors WHERE id = ?`, id); err != nil {
		return &db.Error{Op: db.OpDelete, Err: err}
	}
	delete(s.entries, id)
	return nil
}

// IDs returns every id present in the index.
func (s *Store) IDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Ping checks that the backing file is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.sdb.PingContext(ctx); err != nil {
		return &db.Error{Op: db.OpPing, Err: err}
	}
	return nil
}

// WaitForReady succeeds as soon as Ping does; there is no remote service.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.Ping(ctx)
}

// Close releases the backing file.
func (s *Store) Close() {
	_ = s.sdb.Close()
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func vectorToBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToVector(b []byte) []float32 {
	if len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
