package chi

import (
	"fmt"
	"time"

	"github.com/localmart/searchd/internal/domain"
	"github.com/localmart/searchd/internal/domain/ingest"
	"github.com/localmart/searchd/internal/domain/search"
)

// errorResponse is the uniform error body.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// searchRequest is the POST /search body.
type searchRequest struct {
	Query             string   `json:"query"`
	MinPrice          *float64 `json:"min_price,omitempty"`
	MaxPrice          *float64 `json:"max_price,omitempty"`
	Categories        []string `json:"categories,omitempty"`
	Lat               *float64 `json:"lat,omitempty"`
	Lon               *float64 `json:"lon,omitempty"`
	RadiusKm          *float64 `json:"radius_km,omitempty"`
	MaxResults        int      `json:"max_results,omitempty"`
	SortBy            string   `json:"sort_by,omitempty"`
	ShowOnlyAvailable bool     `json:"show_only_available,omitempty"`
}

type searchResponse struct {
	Items []itemResponse `json:"items"`
	Total int            `json:"total"`
}

type itemResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       float64   `json:"price"`
	Category    string    `json:"category"`
	Lat         float64   `json:"lat"`
	Lon         float64   `json:"lon"`
	Rating      float64   `json:"rating"`
	Available   bool      `json:"available"`
	CreatedAt   time.Time `json:"created_at"`
}

// ingestRequest is the POST /items body.
type ingestRequest struct {
	Items []ingestItem `json:"items"`
}

type ingestItem struct {
	ID          string     `json:"id,omitempty"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Price       float64    `json:"price"`
	Category    string     `json:"category"`
	Lat         float64    `json:"lat"`
	Lon         float64    `json:"lon"`
	Rating      float64    `json:"rating,omitempty"`
	Available   *bool      `json:"available,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
}

type ingestResponse struct {
	Committed int                `json:"committed"`
	Failed    int                `json:"failed"`
	Items     []ingestItemResult `json:"items"`
}

type ingestItemResult struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Stage  string `json:"stage,omitempty"`
	Error  string `json:"error,omitempty"`
}

type reconcileResponse struct {
	StoreItems   int      `json:"store_items"`
	IndexEntries int      `json:"index_entries"`
	Missing      []string `json:"missing"`
	Orphaned     []string `json:"orphaned"`
	RepairFailed []string `json:"repair_failed"`
	Divergent    bool     `json:"divergent"`
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func searchRequestFromDTO(req searchRequest) (search.Request, error) {
	var circle *search.Circle
	if req.Lat != nil || req.Lon != nil || req.RadiusKm != nil {
		if req.Lat == nil || req.Lon == nil || req.RadiusKm == nil {
			return search.Request{}, fmt.Errorf(
				"%w: lat, lon and radius_km must be provided together", domain.ErrInvalidFilter)
		}
		circle = &search.Circle{Lat: *req.Lat, Lon: *req.Lon, RadiusKm: *req.RadiusKm}
	}

	f, err := search.NewFilter(req.MinPrice, req.MaxPrice, req.Categories, circle, req.ShowOnlyAvailable)
	if err != nil {
		return search.Request{}, err
	}

	return search.NewRequest(req.Query, f, req.MaxResults, search.Sort(req.SortBy))
}

func itemFromDTO(in ingestItem) domain.Item {
	item := domain.Item{
		ID:          in.ID,
		Name:        in.Name,
		Description: in.Description,
		Price:       in.Price,
		Category:    in.Category,
		Lat:         in.Lat,
		Lon:         in.Lon,
		Rating:      in.Rating,
		Available:   true,
	}
	if in.Available != nil {
		item.Available = *in.Available
	}
	if in.CreatedAt != nil {
		item.CreatedAt = in.CreatedAt.UTC()
	}
	return item
}

func itemToDTO(item domain.Item) itemResponse {
	return itemResponse{
		ID:          item.ID,
		Name:        item.Name,
		Description: item.Description,
		Price:       item.Price,
		Category:    item.Category,
		Lat:         item.Lat,
		Lon:         item.Lon,
		Rating:      item.Rating,
		Available:   item.Available,
		CreatedAt:   item.CreatedAt,
	}
}

func ingestResultToDTO(res ingest.Result) ingestItemResult {
	out := ingestItemResult{
		ID:     res.ID(),
		Status: string(res.Status()),
	}
	if res.Status() == ingest.StatusFailed {
		out.Stage = string(res.Stage())
		if res.Err() != nil {
			out.Error = safeDomainMessage(res.Err())
		}
	}
	return out
}
