// Package catalog is the authoritative record store adapter. Items live in
// SQLite; every field here is the source of truth for the projection kept
// in the vector index.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/localmart/searchd/internal/domain"
	domsearch "github.com/localmart/searchd/internal/domain/search"
)

// Repo implements the record store contract on SQLite.
type Repo struct {
	sdb *sql.DB
}

// Open opens (or creates) the catalog database and ensures the schema.
func Open(ctx context.Context, path string) (*Repo, error) {
	if path == "" {
		return nil, fmt.Errorf("catalog path is required")
	}

	sdb, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open catalog db: %w", err)
	}

	r := &Repo{sdb: sdb}
	if err := r.init(ctx); err != nil {
		sdb.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repo) init(ctx context.Context) error {
	const schema = `CREATE TABLE IF NOT EXISTS items (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		description TEXT NOT NULL,
		price       REAL NOT NULL,
		category    TEXT NOT NULL,
		lat         REAL NOT NULL,
		lon         REAL NOT NULL,
		rating      REAL NOT NULL DEFAULT 0,
		available   INTEGER NOT NULL DEFAULT 1,
		created_at  INTEGER NOT NULL
	)`
	if _, err := r.sdb.ExecContext(ctx, schema); err != nil {
		return storeErr("init schema", err)
	}
	return nil
}

// Create inserts a new item. Fails with domain.ErrDuplicateID if the id is
// already assigned.
func (r *Repo) Create(ctx context.Context, it *domain.Item) error {
	_, err := r.sdb.ExecContext(ctx,
		`INSERT INTO items (id, name, description, price, category, lat, lon, rating, available, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		it.ID, it.Name, it.Description, it.Price, it.Category, it.Lat, it.Lon,
		it.Rating, boolInt(it.Available), it.CreatedAt.Unix())
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateID, it.ID)
		}
		return storeErr("create item", err)
	}
	return nil
}

// Upsert inserts or replaces an item. Idempotent: replaying the same call
// leaves exactly one row. Ingestion uses this so per-id retries are safe
// without locking.
func (r *Repo) Upsert(ctx context.Context, it *domain.Item) error {
	_, err := r.sdb.ExecContext(ctx,
		`INSERT INTO items (id, name, description, price, category, lat, lon, rating, available, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   name = excluded.name, description = excluded.description,
		   price = excluded.price, category = excluded.category,
		   lat = excluded.lat, lon = excluded.lon,
		   rating = excluded.rating, available = excluded.available`,
		it.ID, it.Name, it.Description, it.Price, it.Category, it.Lat, it.Lon,
		it.Rating, boolInt(it.Available), it.CreatedAt.Unix())
	if err != nil {
		return storeErr("upsert item", err)
	}
	return nil
}

// Update replaces the mutable fields of an existing item.
func (r *Repo) Update(ctx context.Context, it *domain.Item) error {
	res, err := r.sdb.ExecContext(ctx,
		`UPDATE items SET name = ?, description = ?, price = ?, category = ?,
		 lat = ?, lon = ?, rating = ?, available = ? WHERE id = ?`,
		it.Name, it.Description, it.Price, it.Category, it.Lat, it.Lon,
		it.Rating, boolInt(it.Available), it.ID)
	if err != nil {
		return storeErr("update item", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr("update item", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrItemNotFound, it.ID)
	}
	return nil
}

// Delete removes an item.
func (r *Repo) Delete(ctx context.Context, id string) error {
	res, err := r.sdb.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
	if err != nil {
		return storeErr("delete item", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr("delete item", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrItemNotFound, id)
	}
	return nil
}

// Get returns a single item by id.
func (r *Repo) Get(ctx context.Context, id string) (domain.Item, error) {
	row := r.sdb.QueryRowContext(ctx,
		`SELECT id, name, description, price, category, lat, lon, rating, available, created_at
		 FROM items WHERE id = ?`, id)
	it, err := scanItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Item{}, fmt.Errorf("%w: %s", domain.ErrItemNotFound, id)
		}
		return domain.Item{}, storeErr("get item", err)
	}
	return it, nil
}

// FetchByIDs returns items whose id is in ids, applies the residual
// availability predicate, sorts and truncates.
//
// SortRelevance preserves the incoming candidate order: the vector search
// already ranked the ids, and this layer must not re-sort them. All other
// sort keys are applied entirely here, since the vector backend has no
// notion of price/rating/recency ordering.
func (r *Repo) FetchByIDs(
	ctx context.Context, ids []string, availableOnly bool, sortKey domsearch.Sort, limit int,
) ([]domain.Item, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(
		`SELECT id, name, description, price, category, lat, lon, rating, available, created_at
		 FROM items WHERE id IN (%s)`, placeholders(len(ids)))
	if availableOnly {
		query += ` AND available = 1`
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := r.sdb.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("fetch by ids", err)
	}
	defer rows.Close()

	byID := make(map[string]domain.Item, len(ids))
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, storeErr("fetch by ids", err)
		}
		byID[it.ID] = it
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("fetch by ids", err)
	}

	// Re-order fetched rows to the input id sequence. SQL IN gives no
	// ordering guarantee, and relevance order lives in ids.
	items := make([]domain.Item, 0, len(byID))
	for _, id := range ids {
		if it, ok := byID[id]; ok {
			items = append(items, it)
		}
	}

	sortItems(items, sortKey)

	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// ListIDs returns every item id (reconciliation sweep input).
func (r *Repo) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := r.sdb.QueryContext(ctx, `SELECT id FROM items ORDER BY id`)
	if err != nil {
		return nil, storeErr("list ids", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, storeErr("list ids", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list ids", err)
	}
	return ids, nil
}

// Ping checks connectivity.
func (r *Repo) Ping(ctx context.Context) error {
	if err := r.sdb.PingContext(ctx); err != nil {
		return storeErr("ping", err)
	}
	return nil
}

// Close releases the database handle.
func (r *Repo) Close() {
	_ = r.sdb.Close()
}

func sortItems(items []domain.Item, key domsearch.Sort) {
	switch key {
	case domsearch.SortRelevance:
		// candidate order is already the ranking
	case domsearch.SortPriceAsc:
		sort.SliceStable(items, func(i, j int) bool { return items[i].Price < items[j].Price })
	case domsearch.SortPriceDesc:
		sort.SliceStable(items, func(i, j int) bool { return items[i].Price > items[j].Price })
	case domsearch.SortNewest:
		sort.SliceStable(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	case domsearch.SortRating:
		sort.SliceStable(items, func(i, j int) bool { return items[i].Rating > items[j].Rating })
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (domain.Item, error) {
	var it domain.Item
	var avail int
	var createdAt int64
	err := row.Scan(&it.ID, &it.Name, &it.Description, &it.Price, &it.Category,
		&it.Lat, &it.Lon, &it.Rating, &avail, &createdAt)
	if err != nil {
		return domain.Item{}, err
	}
	it.Available = avail == 1
	it.CreatedAt = time.Unix(createdAt, 0).UTC()
	return it, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreUnavailable, err)
}
