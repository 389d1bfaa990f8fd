package search

// Sort is the result ordering key.
type Sort string

// Supported sort keys.
const (
	// SortRelevance preserves the vector-search candidate order.
	SortRelevance Sort = "relevance"
	SortPriceAsc  Sort = "price_asc"
	SortPriceDesc Sort = "price_desc"
	SortNewest    Sort = "newest"
	SortRating    Sort = "rating"
)

// IsValid reports whether the sort key is one of the supported values.
func (s Sort) IsValid() bool {
	switch s {
	case SortRelevance, SortPriceAsc, SortPriceDesc, SortNewest, SortRating:
		return true
	}
	return false
}
