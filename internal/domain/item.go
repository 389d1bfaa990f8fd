package domain

import (
	"fmt"
	"time"

	"github.com/localmart/searchd/internal/domain/geo"
)

// Item is an entity in the catalog. The record store is the source of truth
// for every field; the vector index only carries a derived projection.
type Item struct {
	ID          string
	Name        string
	Description string
	Price       float64
	Category    string
	Lat         float64
	Lon         float64
	Rating      float64
	Available   bool
	CreatedAt   time.Time
}

// MaxRating is the upper bound of the item rating scale.
const MaxRating = 5.0

// Validate checks the invariants an item must satisfy before ingestion.
// All violations are wrapped with ErrInvalidItem.
func (it *Item) Validate() error {
	if it.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidItem)
	}
	if it.Description == "" {
		return fmt.Errorf("%w: description is required", ErrInvalidItem)
	}
	if it.Price < 0 {
		return fmt.Errorf("%w: price must be non-negative, got %g", ErrInvalidItem, it.Price)
	}
	if it.Category == "" {
		return fmt.Errorf("%w: category is required", ErrInvalidItem)
	}
	if !geo.ValidCoordinates(it.Lat, it.Lon) {
		return fmt.Errorf("%w: coordinates out of range (%g, %g)", ErrInvalidItem, it.Lat, it.Lon)
	}
	if it.Rating < 0 || it.Rating > MaxRating {
		return fmt.Errorf("%w: rating must be in [0, %g], got %g", ErrInvalidItem, MaxRating, it.Rating)
	}
	return nil
}

// Payload is the denormalized filter projection attached to the item's
// vector entry. Derived from the Item, never authoritative.
type Payload struct {
	Price     float64
	Category  string
	Lat       float64
	Lon       float64
	Rating    float64
	Available bool
	CreatedAt int64 // unix seconds
}

// PayloadOf projects the filterable fields of an item.
func PayloadOf(it *Item) Payload {
	return Payload{
		Price:     it.Price,
		Category:  it.Category,
		Lat:       it.Lat,
		Lon:       it.Lon,
		Rating:    it.Rating,
		Available: it.Available,
		CreatedAt: it.CreatedAt.Unix(),
	}
}

// EmbeddingRecord pairs an item id with its vector and filter payload.
type EmbeddingRecord struct {
	ID      string
	Vector  []float32
	Payload Payload
}
