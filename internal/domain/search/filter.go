package search

import (
	"fmt"

	"github.com/localmart/searchd/internal/domain"
	"github.com/localmart/searchd/internal/domain/geo"
)

// MaxCategories bounds the size of the category OR-set in a single filter.
const MaxCategories = 32

// Circle is a geographic filter region: great-circle distance from the
// center must not exceed RadiusKm.
type Circle struct {
	Lat      float64
	Lon      float64
	RadiusKm float64
}

// Filter is a validated set of structured predicates. A nil/absent member
// means "unconstrained".
type Filter struct {
	minPrice      *float64
	maxPrice      *float64
	categories    []string
	circle        *Circle
	availableOnly bool
}

// NewFilter validates and creates a Filter. All violations are wrapped
// with domain.ErrInvalidFilter.
func NewFilter(minPrice, maxPrice *float64, categories []string, circle *Circle, availableOnly bool) (Filter, error) {
	if minPrice != nil && *minPrice < 0 {
		return Filter{}, fmt.Errorf("%w: min_price must be non-negative", domain.ErrInvalidFilter)
	}
	if maxPrice != nil && *maxPrice < 0 {
		return Filter{}, fmt.Errorf("%w: max_price must be non-negative", domain.ErrInvalidFilter)
	}
	if minPrice != nil && maxPrice != nil && *minPrice > *maxPrice {
		return Filter{}, fmt.Errorf("%w: min_price %g exceeds max_price %g",
			domain.ErrInvalidFilter, *minPrice, *maxPrice)
	}
	if len(categories) > MaxCategories {
		return Filter{}, fmt.Errorf("%w: too many categories (max %d)", domain.ErrInvalidFilter, MaxCategories)
	}
	for _, c := range categories {
		if c == "" {
			return Filter{}, fmt.Errorf("%w: empty category", domain.ErrInvalidFilter)
		}
	}
	if circle != nil {
		if circle.RadiusKm < 0 {
			return Filter{}, fmt.Errorf("%w: radius_km must be non-negative", domain.ErrInvalidFilter)
		}
		if !geo.ValidCoordinates(circle.Lat, circle.Lon) {
			return Filter{}, fmt.Errorf("%w: center coordinates out of range (%g, %g)",
				domain.ErrInvalidFilter, circle.Lat, circle.Lon)
		}
	}

	return Filter{
		minPrice:      minPrice,
		maxPrice:      maxPrice,
		categories:    categories,
		circle:        circle,
		availableOnly: availableOnly,
	}, nil
}

// MinPrice returns the inclusive lower price bound, nil if unconstrained.
func (f Filter) MinPrice() *float64 { return f.minPrice }

// MaxPrice returns the inclusive upper price bound, nil if unconstrained.
func (f Filter) MaxPrice() *float64 { return f.maxPrice }

// Categories returns the OR-matched category set.
func (f Filter) Categories() []string { return f.categories }

// Circle returns the geographic filter region, nil if unconstrained.
func (f Filter) Circle() *Circle { return f.circle }

// AvailableOnly reports whether only available items match.
func (f Filter) AvailableOnly() bool { return f.availableOnly }

// IsEmpty reports whether the filter has no predicates at all.
func (f Filter) IsEmpty() bool {
	return f.minPrice == nil && f.maxPrice == nil &&
		len(f.categories) == 0 && f.circle == nil && !f.availableOnly
}

// Matches evaluates the filter against a denormalized payload using
// great-circle distance for the geo predicate. Backends without native
// predicate support use this for post-hoc filtering.
func (f Filter) Matches(p domain.Payload) bool {
	if f.minPrice != nil && p.Price < *f.minPrice {
		return false
	}
	if f.maxPrice != nil && p.Price > *f.maxPrice {
		return false
	}
	if len(f.categories) > 0 {
		found := false
		for _, c := range f.categories {
			if c == p.Category {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.circle != nil {
		if geo.Haversine(f.circle.Lat, f.circle.Lon, p.Lat, p.Lon) > f.circle.RadiusKm {
			return false
		}
	}
	if f.availableOnly && !p.Available {
		return false
	}
	return true
}
