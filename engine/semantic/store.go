// Package semantic is the sole owner of all Qdrant operations: collection
// lifecycle, listing point upserts, filtered k-NN search, and deletes.
package semantic

import (
	"context"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/homeseek/homeseek/engine/domain"
	"github.com/homeseek/homeseek/engine/filter"
	"github.com/homeseek/homeseek/engine/search"
	"github.com/homeseek/homeseek/pkg/fn"
)

// UpsertBatchSize is the max points per upsert request.
const UpsertBatchSize = 128

// Index stores listing vectors in Qdrant and serves prefiltered similarity
// search. It implements search.VectorIndex.
type Index struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
	dims        int
}

// New creates an Index connected to Qdrant at the given gRPC address.
// dims is the embedding dimension enforced on every write; zero disables
// the check.
func New(addr, collection string, dims int) (*Index, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", addr, err)
	}
	return &Index{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
		dims:        dims,
	}, nil
}

// Close closes the underlying gRPC connection.
func (x *Index) Close() error {
	return x.conn.Close()
}

// EnsureCollection creates the collection if it doesn't exist.
func (x *Index) EnsureCollection(ctx context.Context) error {
	list, err := x.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return unavailable("list collections", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == x.collection {
			return nil
		}
	}

	_, err = x.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: x.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(x.dims),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return unavailable(fmt.Sprintf("create collection %s", x.collection), err)
	}
	return nil
}

// Upsert writes listing vectors and their filterable payload. The listing id
// doubles as the point id, so re-importing a listing replaces its point.
func (x *Index) Upsert(ctx context.Context, listings []domain.Listing) error {
	if len(listings) == 0 {
		return nil
	}

	points := make([]*pb.PointStruct, 0, len(listings))
	for _, l := range listings {
		if x.dims > 0 && len(l.Vector) != x.dims {
			return fmt.Errorf("semantic: listing %d vector has %d dims, want %d: %w",
				l.ID, len(l.Vector), x.dims, domain.ErrDimensionMismatch)
		}
		points = append(points, &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Num{Num: uint64(l.ID)},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: l.Vector},
				},
			},
			Payload: listingPayload(l),
		})
	}

	wait := true
	for _, batch := range fn.Chunk(points, UpsertBatchSize) {
		_, err := x.points.Upsert(ctx, &pb.UpsertPoints{
			CollectionName: x.collection,
			Wait:           &wait,
			Points:         batch,
		})
		if err != nil {
			return unavailable(fmt.Sprintf("upsert %d points", len(batch)), err)
		}
	}
	return nil
}

// Delete removes one listing's point.
func (x *Index) Delete(ctx context.Context, id int64) error {
	wait := true
	_, err := x.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: x.collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{
					Ids: []*pb.PointId{{PointIdOptions: &pb.PointId_Num{Num: uint64(id)}}},
				},
			},
		},
	})
	if err != nil {
		return unavailable(fmt.Sprintf("delete point %d", id), err)
	}
	return nil
}

// Search performs k-NN similarity search with the prefilter pushed down as
// Qdrant payload conditions.
func (x *Index) Search(ctx context.Context, vector []float32, topK int, pre *search.Prefilter) ([]search.Scored, error) {
	if x.dims > 0 && len(vector) != x.dims {
		return nil, fmt.Errorf("semantic: query vector has %d dims, want %d: %w",
			len(vector), x.dims, domain.ErrDimensionMismatch)
	}

	req := &pb.SearchPoints{
		CollectionName: x.collection,
		Vector:         vector,
		Limit:          uint64(topK),
	}
	if f := buildFilter(pre); f != nil {
		req.Filter = f
	}

	resp, err := x.points.Search(ctx, req)
	if err != nil {
		return nil, unavailable("search", err)
	}

	out := make([]search.Scored, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		out[i] = search.Scored{
			ID:         int64(r.GetId().GetNum()),
			Similarity: r.GetScore(),
		}
	}
	return out, nil
}

// buildFilter translates a prefilter into Qdrant must-conditions. The
// bounding box becomes numeric ranges on the lon/lat payload fields; exact
// radius containment is re-checked by the planner.
func buildFilter(pre *search.Prefilter) *pb.Filter {
	if pre == nil {
		return nil
	}

	var must []*pb.Condition
	if b := pre.Box; b != nil {
		must = append(must,
			rangeCondition("lon", &b.MinLon, &b.MaxLon),
			rangeCondition("lat", &b.MinLat, &b.MaxLat),
		)
	}
	for _, c := range pre.Conditions {
		if cond := condition(c); cond != nil {
			must = append(must, cond)
		}
	}
	if len(must) == 0 {
		return nil
	}
	return &pb.Filter{Must: must}
}

func condition(c filter.Condition) *pb.Condition {
	switch c.Op {
	case filter.OpEquals:
		if numericField(c.Field) {
			// Qdrant matches numbers by degenerate range.
			if v, err := parseNumber(c.Equals); err == nil {
				return rangeCondition(c.Field, &v, &v)
			}
			return nil
		}
		return fieldMatch(c.Field, c.Equals)

	case filter.OpRange:
		return rangeCondition(c.Field, c.Min, c.Max)

	case filter.OpSetMember:
		return &pb.Condition{
			ConditionOneOf: &pb.Condition_Field{
				Field: &pb.FieldCondition{
					Key: c.Field,
					Match: &pb.Match{
						MatchValue: &pb.Match_Keywords{
							Keywords: &pb.RepeatedStrings{Strings: c.Set},
						},
					},
				},
			},
		}

	default:
		return nil
	}
}

func fieldMatch(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: key,
				Match: &pb.Match{
					MatchValue: &pb.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}

func rangeCondition(key string, gte, lte *float64) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key:   key,
				Range: &pb.Range{Gte: gte, Lte: lte},
			},
		},
	}
}

func numericField(name string) bool {
	switch name {
	case filter.FieldPriceTotal, filter.FieldPriceUnit, filter.FieldAreaSqm:
		return true
	}
	return false
}

func parseNumber(s string) (float64, error) {
	var v float64
	_, err := fmt.Sscanf(s, "%g", &v)
	return v, err
}

// listingPayload flattens the filterable attributes into Qdrant payload
// values. Absent optional fields are omitted entirely so that range and
// match conditions never see them.
func listingPayload(l domain.Listing) map[string]*pb.Value {
	p := make(map[string]*pb.Value)

	setStr := func(k, v string) {
		if v != "" {
			p[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: v}}
		}
	}
	setNum := func(k string, v *float64) {
		if v != nil {
			p[k] = &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: *v}}
		}
	}

	setNum("lon", l.Lon)
	setNum("lat", l.Lat)
	setNum(filter.FieldPriceTotal, l.PriceTotal)
	setNum(filter.FieldPriceUnit, l.PriceUnit)
	setNum(filter.FieldAreaSqm, l.AreaSqm)
	setStr(filter.FieldDistrict, l.District)
	setStr(filter.FieldLayout, l.Layout)
	setStr(filter.FieldOrientation, l.Orientation)
	setStr(filter.FieldRenovation, l.Renovation)
	setStr(filter.FieldElevator, l.Elevator)
	setStr(filter.FieldParking, l.Parking)
	setStr(filter.FieldFloor, l.Floor)
	setStr(filter.FieldName, l.Name)

	return p
}

func unavailable(op string, err error) error {
	return fmt.Errorf("semantic: %s: %s: %w", op, err, domain.ErrIndexUnavailable)
}
