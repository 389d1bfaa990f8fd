// Package qdrant is the managed vector backend: filtered similarity search
// delegated to a Qdrant instance over gRPC. Qdrant keys points by
// caller-chosen UUIDs and evaluates geo_radius with great-circle distance,
// so the adapter contract maps onto it directly.
package qdrant

import (
	"context"
	"fmt"
	"time"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/localmart/searchd/internal/db"
	"github.com/localmart/searchd/internal/domain"
	"github.com/localmart/searchd/internal/domain/search"
)

// Compile-time check: Store implements db.VectorStore.
var _ db.VectorStore = (*Store)(nil)

// Config holds connection and collection parameters.
type Config struct {
	Addr       string // host:port of the Qdrant gRPC endpoint
	Collection string
	Dim        int
}

// Store implements db.VectorStore on Qdrant.
type Store struct {
	conn        *grpc.ClientConn
	collections pb.CollectionsClient
	points      pb.PointsClient
	qdrant      pb.QdrantClient
	collection  string
	dim         int
}

// NewStore dials the Qdrant gRPC endpoint.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("addr is required")
	}
	if cfg.Dim <= 0 {
		return nil, fmt.Errorf("dim must be positive")
	}
	collection := cfg.Collection
	if collection == "" {
		collection = "items"
	}

	conn, err := grpc.NewClient(cfg.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial qdrant: %w", err)
	}

	return &Store{
		conn:        conn,
		collections: pb.NewCollectionsClient(conn),
		points:      pb.NewPointsClient(conn),
		qdrant:      pb.NewQdrantClient(conn),
		collection:  collection,
		dim:         cfg.Dim,
	}, nil
}

// EnsureIndex creates the collection with cosine distance if absent.
func (s *Store) EnsureIndex(ctx context.Context) error {
	list, err := s.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return &db.Error{Op: db.OpIndexInfo, Err: err}
	}
	for _, col := range list.GetCollections() {
		if col.GetName() == s.collection {
			return nil
		}
	}

	_, err = s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(s.dim),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return &db.Error{Op: db.OpCreateIndex, Err: err}
	}
	return nil
}

// Upsert inserts or replaces the point for item.ID.
func (s *Store) Upsert(ctx context.Context, item db.UpsertItem) error {
	return s.UpsertBatch(ctx, []db.UpsertItem{item})
}

// UpsertBatch inserts or replaces multiple points in one request.
func (s *Store) UpsertBatch(ctx context.Context, items []db.UpsertItem) error {
	if len(items) == 0 {
		return nil
	}

	points := make([]*pb.PointStruct, 0, len(items))
	for _, item := range items {
		if len(item.Vector) != s.dim {
			return fmt.Errorf("%w: id %s: got %d, index dimension is %d",
				db.ErrBadDimension, item.ID, len(item.Vector), s.dim)
		}
		points = append(points, &pb.PointStruct{
			Id:      pointID(item.ID),
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: item.Vector}}},
			Payload: payloadValues(item.Payload),
		})
	}

	_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: s.collection,
		Points:         points,
	})
	if err != nil {
		return &db.Error{Op: db.OpUpsert, Err: err}
	}
	return nil
}

// Search runs a filtered similarity search. The filter is part of the
// search request, so Qdrant restricts candidates before the top-k cut.
func (s *Store) Search(ctx context.Context, q *db.KNNQuery) ([]db.Candidate, error) {
	if len(q.Vector) != s.dim {
		return nil, fmt.Errorf("%w: got %d, index dimension is %d", db.ErrBadDimension, len(q.Vector), s.dim)
	}
	if q.K <= 0 {
		return nil, fmt.Errorf("k must be positive")
	}

	resp, err := s.points.Search(ctx, &pb.SearchPoints{
		CollectionName: s.collection,
		Vector:         q.Vector,
		Limit:          uint64(q.K),
		Filter:         buildFilter(q.Filter),
	})
	if err != nil {
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}

	result := resp.GetResult()
	candidates := make([]db.Candidate, 0, len(result))
	for _, p := range result {
		candidates = append(candidates, db.Candidate{
			ID:    p.GetId().GetUuid(),
			Score: float64(p.GetScore()),
		})
	}
	return candidates, nil
}

// Delete removes the point for id. Deleting a missing id is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: s.collection,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{Ids: []*pb.PointId{pointID(id)}},
			},
		},
	})
	if err != nil {
		return &db.Error{Op: db.OpDelete, Err: err}
	}
	return nil
}

// IDs pages through the collection via Scroll.
func (s *Store) IDs(ctx context.Context) ([]string, error) {
	var ids []string
	var offset *pb.PointId
	limit := uint32(256)

	for {
		resp, err := s.points.Scroll(ctx, &pb.ScrollPoints{
			CollectionName: s.collection,
			Limit:          &limit,
			Offset:         offset,
		})
		if err != nil {
			return nil, &db.Error{Op: db.OpScan, Err: err}
		}
		for _, p := range resp.GetResult() {
			ids = append(ids, p.GetId().GetUuid())
		}
		offset = resp.GetNextPageOffset()
		if offset == nil {
			break
		}
	}

	return ids, nil
}

// Ping checks backend health.
func (s *Store) Ping(ctx context.Context) error {
	if _, err := s.qdrant.HealthCheck(ctx, &pb.HealthCheckRequest{}); err != nil {
		return &db.Error{Op: db.OpPing, Err: err}
	}
	return nil
}

// WaitForReady polls Ping until the backend responds or timeout expires.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for vector backend: %w", ctx.Err())
		case <-ticker.C:
			if err := s.Ping(ctx); err == nil {
				return nil
			}
		}
	}
}

// Close releases the gRPC connection.
func (s *Store) Close() {
	_ = s.conn.Close()
}

func pointID(id string) *pb.PointId {
	return &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: id}}
}

// payloadValues flattens the denormalized filter payload into Qdrant
// payload values. Location uses the native geo point shape so geo_radius
// conditions apply to it.
func payloadValues(p domain.Payload) map[string]*pb.Value {
	return map[string]*pb.Value{
		"price":      {Kind: &pb.Value_DoubleValue{DoubleValue: p.Price}},
		"rating":     {Kind: &pb.Value_DoubleValue{DoubleValue: p.Rating}},
		"category":   {Kind: &pb.Value_StringValue{StringValue: p.Category}},
		"available":  {Kind: &pb.Value_BoolValue{BoolValue: p.Available}},
		"created_at": {Kind: &pb.Value_IntegerValue{IntegerValue: p.CreatedAt}},
		"location": {Kind: &pb.Value_StructValue{StructValue: &pb.Struct{
			Fields: map[string]*pb.Value{
				"lat": {Kind: &pb.Value_DoubleValue{DoubleValue: p.Lat}},
				"lon": {Kind: &pb.Value_DoubleValue{DoubleValue: p.Lon}},
			},
		}}},
	}
}

// buildFilter translates the domain filter into Qdrant must-conditions.
func buildFilter(f search.Filter) *pb.Filter {
	if f.IsEmpty() {
		return nil
	}

	var must []*pb.Condition

	if f.MinPrice() != nil || f.MaxPrice() != nil {
		must = append(must, fieldCondition(&pb.FieldCondition{
			Key:   "price",
			Range: &pb.Range{Gte: f.MinPrice(), Lte: f.MaxPrice()},
		}))
	}

	if cats := f.Categories(); len(cats) > 0 {
		must = append(must, fieldCondition(&pb.FieldCondition{
			Key: "category",
			Match: &pb.Match{MatchValue: &pb.Match_Keywords{
				Keywords: &pb.RepeatedStrings{Strings: cats},
			}},
		}))
	}

	if c := f.Circle(); c != nil {
		must = append(must, fieldCondition(&pb.FieldCondition{
			Key: "location",
			GeoRadius: &pb.GeoRadius{
				Center: &pb.GeoPoint{Lat: c.Lat, Lon: c.Lon},
				Radius: float32(c.RadiusKm * 1000), // qdrant radius is meters
			},
		}))
	}

	if f.AvailableOnly() {
		must = append(must, fieldCondition(&pb.FieldCondition{
			Key:   "available",
			Match: &pb.Match{MatchValue: &pb.Match_Boolean{Boolean: true}},
		}))
	}

	return &pb.Filter{Must: must}
}

func fieldCondition(fc *pb.FieldCondition) *pb.Condition {
	return &pb.Condition{ConditionOneOf: &pb.Condition_Field{Field: fc}}
}
