package reconcile

import (
	"context"
	"errors"
	"sort"
	"testing"

	"go.uber.org/zap"

	"github.com/localmart/searchd/internal/domain"
)

// --- Mocks ---

type mockCatalog struct {
	ids     []string
	listErr error
	items   map[string]domain.Item
	getErr  error
}

func (m *mockCatalog) ListIDs(_ context.Context) ([]string, error) {
	return m.ids, m.listErr
}

func (m *mockCatalog) Get(_ context.Context, id string) (domain.Item, error) {
	if m.getErr != nil {
		return domain.Item{}, m.getErr
	}
	it, ok := m.items[id]
	if !ok {
		return domain.Item{}, domain.ErrItemNotFound
	}
	return it, nil
}

type mockIndex struct {
	ids       []string
	idsErr    error
	upsertErr error
	deleteErr error
	upserted  []string
	deleted   []string
}

func (m *mockIndex) IDs(_ context.Context) ([]string, error) {
	return m.ids, m.idsErr
}

func (m *mockIndex) Upsert(_ context.Context, rec domain.EmbeddingRecord) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.upserted = append(m.upserted, rec.ID)
	return nil
}

func (m *mockIndex) Delete(_ context.Context, id string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.deleted = append(m.deleted, id)
	return nil
}

type mockEmbedder struct {
	err error
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Embedding: []float32{0.1, 0.2}}, nil
}

func catalogWith(ids ...string) *mockCatalog {
	items := make(map[string]domain.Item, len(ids))
	for _, id := range ids {
		items[id] = domain.Item{
			ID:          id,
			Name:        "n",
			Description: "d",
			Category:    "c",
			Available:   true,
		}
	}
	return &mockCatalog{ids: ids, items: items}
}

// --- Tests ---

func TestSweep_NoDivergence(t *testing.T) {
	catalog := catalogWith("a", "b")
	index := &mockIndex{ids: []string{"a", "b"}}
	svc := New(catalog, index, &mockEmbedder{}, zap.NewNop())

	report, err := svc.Sweep(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Divergent() {
		t.Error("matching id sets must not be divergent")
	}
	if report.StoreItems != 2 || report.IndexEntries != 2 {
		t.Errorf("unexpected counts: %+v", report)
	}
	if len(index.upserted) != 0 || len(index.deleted) != 0 {
		t.Error("no repairs expected")
	}
}

func TestSweep_ReembedsMissing(t *testing.T) {
	catalog := catalogWith("a", "b", "c")
	index := &mockIndex{ids: []string{"a"}}
	svc := New(catalog, index, &mockEmbedder{}, zap.NewNop())

	report, err := svc.Sweep(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.Divergent() {
		t.Fatal("expected divergence")
	}
	sort.Strings(report.Missing)
	if len(report.Missing) != 2 || report.Missing[0] != "b" || report.Missing[1] != "c" {
		t.Errorf("expected b and c missing, got %v", report.Missing)
	}
	sort.Strings(index.upserted)
	if len(index.upserted) != 2 || index.upserted[0] != "b" || index.upserted[1] != "c" {
		t.Errorf("expected b and c re-embedded, got %v", index.upserted)
	}
}

func TestSweep_DeletesOrphans(t *testing.T) {
	catalog := catalogWith("a")
	index := &mockIndex{ids: []string{"a", "ghost"}}
	svc := New(catalog, index, &mockEmbedder{}, zap.NewNop())

	report, err := svc.Sweep(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.Orphaned) != 1 || report.Orphaned[0] != "ghost" {
		t.Errorf("expected ghost orphaned, got %v", report.Orphaned)
	}
	if len(index.deleted) != 1 || index.deleted[0] != "ghost" {
		t.Errorf("expected ghost deleted, got %v", index.deleted)
	}
}

func TestSweep_RepairFailureDoesNotAbort(t *testing.T) {
	catalog := catalogWith("a", "b")
	index := &mockIndex{ids: []string{}, upsertErr: domain.ErrIndexUnavailable}
	svc := New(catalog, index, &mockEmbedder{}, zap.NewNop())

	report, err := svc.Sweep(context.Background())
	if err != nil {
		t.Fatalf("repair failures must not abort the sweep: %v", err)
	}
	if len(report.RepairFailed) != 2 {
		t.Errorf("expected 2 failed repairs, got %v", report.RepairFailed)
	}
}

func TestSweep_EmbedFailureRecorded(t *testing.T) {
	catalog := catalogWith("a")
	index := &mockIndex{ids: []string{}}
	svc := New(catalog, index, &mockEmbedder{err: domain.ErrEmbedderUnavailable}, zap.NewNop())

	report, err := svc.Sweep(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.RepairFailed) != 1 || report.RepairFailed[0] != "a" {
		t.Errorf("expected repair of a to fail, got %v", report.RepairFailed)
	}
	if len(index.upserted) != 0 {
		t.Error("nothing may be upserted when embedding fails")
	}
}

func TestSweep_ListFailureAborts(t *testing.T) {
	catalog := &mockCatalog{listErr: domain.ErrStoreUnavailable}
	index := &mockIndex{}
	svc := New(catalog, index, &mockEmbedder{}, zap.NewNop())

	_, err := svc.Sweep(context.Background())
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable, got %v", err)
	}
}
