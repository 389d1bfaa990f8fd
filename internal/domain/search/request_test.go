package search

import (
	"errors"
	"strings"
	"testing"

	"github.com/localmart/searchd/internal/domain"
)

func TestNewRequest_Defaults(t *testing.T) {
	r, err := NewRequest("fresh milk", Filter{}, 0, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.MaxResults() != DefaultMaxResults {
		t.Errorf("expected default max_results %d, got %d", DefaultMaxResults, r.MaxResults())
	}
	if r.Sort() != SortRelevance {
		t.Errorf("expected relevance sort, got %q", r.Sort())
	}
}

func TestNewRequest_ClampsMaxResults(t *testing.T) {
	r, err := NewRequest("fresh milk", Filter{}, 1000, SortPriceAsc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.MaxResults() != MaxMaxResults {
		t.Errorf("expected clamp to %d, got %d", MaxMaxResults, r.MaxResults())
	}
}

func TestNewRequest_Invalid(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		maxResults int
		sort       Sort
	}{
		{name: "empty query", query: ""},
		{name: "query too long", query: strings.Repeat("a", MaxQueryLength+1)},
		{name: "negative max_results", query: "milk", maxResults: -1},
		{name: "unknown sort", query: "milk", sort: "popularity"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRequest(tt.query, Filter{}, tt.maxResults, tt.sort)
			if !errors.Is(err, domain.ErrInvalidFilter) {
				t.Errorf("expected ErrInvalidFilter, got %v", err)
			}
		})
	}
}

func TestSort_IsValid(t *testing.T) {
	for _, s := range []Sort{SortRelevance, SortPriceAsc, SortPriceDesc, SortNewest, SortRating} {
		if !s.IsValid() {
			t.Errorf("%q should be valid", s)
		}
	}
	if Sort("cheapest").IsValid() {
		t.Error("unknown sort key should be invalid")
	}
}
