package search

import (
	"fmt"

	"github.com/localmart/searchd/internal/domain"
)

// Search parameter limits.
const (
	MaxQueryLength    = 4096
	DefaultMaxResults = 10
	MaxMaxResults     = 100
)

// Request is a validated search query.
type Request struct {
	query      string
	filter     Filter
	maxResults int
	sort       Sort
}

// NewRequest validates and normalizes search parameters.
// Defaults: max_results=10, sort=relevance.
func NewRequest(query string, f Filter, maxResults int, sort Sort) (Request, error) {
	if query == "" {
		return Request{}, fmt.Errorf("%w: query is required", domain.ErrInvalidFilter)
	}
	if len(query) > MaxQueryLength {
		return Request{}, fmt.Errorf("%w: query too long (max %d chars)", domain.ErrInvalidFilter, MaxQueryLength)
	}
	if maxResults == 0 {
		maxResults = DefaultMaxResults
	}
	if maxResults < 0 {
		return Request{}, fmt.Errorf("%w: max_results must be positive", domain.ErrInvalidFilter)
	}
	if maxResults > MaxMaxResults {
		maxResults = MaxMaxResults
	}
	if sort == "" {
		sort = SortRelevance
	}
	if !sort.IsValid() {
		return Request{}, fmt.Errorf("%w: unknown sort key %q", domain.ErrInvalidFilter, sort)
	}

	return Request{query: query, filter: f, maxResults: maxResults, sort: sort}, nil
}

// Query returns the search query text.
func (r *Request) Query() string { return r.query }

// Filter returns the structured predicates.
func (r *Request) Filter() Filter { return r.filter }

// MaxResults returns the result-count bound.
func (r *Request) MaxResults() int { return r.maxResults }

// Sort returns the result ordering key.
func (r *Request) Sort() Sort { return r.sort }
