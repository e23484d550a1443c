// Package semantic owns all Qdrant operations: collection lifecycle, chunk
// upserts from ingestion, and the nearest-neighbor queries the retriever
// issues. The collection uses cosine distance; Qdrant reports a similarity
// score, which this package converts to distance = 1 - score so results
// always come back in ascending-distance order.
package semantic

import (
	"context"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/retriva/retriva/engine/domain"
)

// VectorStore is the sole owner of the Qdrant connection.
type VectorStore struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
	dims        int
}

// New connects to Qdrant at the given gRPC address. dims is the embedding
// dimension of the collection; every query vector must match it.
func New(addr, collection string, dims int) (*VectorStore, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("semantic: dims must be positive, got %d", dims)
	}
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", addr, err)
	}
	return &VectorStore{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
		dims:        dims,
	}, nil
}

// Close closes the underlying gRPC connection.
func (v *VectorStore) Close() error {
	return v.conn.Close()
}

// Dims returns the collection's embedding dimension.
func (v *VectorStore) Dims() int { return v.dims }

// EnsureCollection creates the cosine-distance collection if it doesn't exist.
func (v *VectorStore) EnsureCollection(ctx context.Context) error {
	list, err := v.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("semantic: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == v.collection {
			return nil
		}
	}

	_, err = v.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: v.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(v.dims),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: create collection %s: %w", v.collection, err)
	}
	return nil
}

// Upsert stores embedded chunks. Called by engine/ingest; never by the
// query path, which is strictly read-only.
func (v *VectorStore) Upsert(ctx context.Context, records []VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]*pb.PointStruct, len(records))
	for i, r := range records {
		if len(r.Embedding) != v.dims {
			return fmt.Errorf("semantic: record %s has %d dims, collection has %d: %w",
				r.ID, len(r.Embedding), v.dims, domain.ErrDimensionMismatch)
		}
		points[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: r.ID},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: r.Embedding},
				},
			},
			Payload: payloadValues(r.Payload),
		}
	}

	wait := true
	_, err := v.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: v.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("semantic: upsert %d points: %w", len(records), err)
	}
	return nil
}

// DeleteByDocID removes all chunks of a document. Used for re-ingestion.
func (v *VectorStore) DeleteByDocID(ctx context.Context, docID string) error {
	wait := true
	_, err := v.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: v.collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{
				Filter: &pb.Filter{
					Must: []*pb.Condition{
						fieldMatch("doc_id", docID),
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: delete by doc_id %s: %w", docID, err)
	}
	return nil
}

// Nearest runs a k-NN query and returns matches in ascending distance order,
// at most k of them. An empty collection yields an empty slice. A vector of
// the wrong dimension fails with domain.ErrDimensionMismatch before any
// network call.
func (v *VectorStore) Nearest(ctx context.Context, vector []float32, k int) ([]domain.ScoredMatch, error) {
	if len(vector) != v.dims {
		return nil, fmt.Errorf("semantic: query has %d dims, collection has %d: %w",
			len(vector), v.dims, domain.ErrDimensionMismatch)
	}

	resp, err := v.points.Search(ctx, &pb.SearchPoints{
		CollectionName: v.collection,
		Vector:         vector,
		Limit:          uint64(k),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("semantic: search: %w", err)
	}

	matches := make([]domain.ScoredMatch, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		matches[i] = matchFromPoint(r)
	}
	return matches, nil
}

// matchFromPoint converts a Qdrant scored point to a domain match.
// Qdrant returns cosine similarity (higher = closer); the pipeline speaks
// distance (lower = closer), so order is preserved by the 1-score flip.
func matchFromPoint(p *pb.ScoredPoint) domain.ScoredMatch {
	doc := domain.Document{ID: p.GetId().GetUuid()}
	for k, val := range p.GetPayload() {
		s := val.GetStringValue()
		switch k {
		case "title":
			doc.Title = s
		case "body":
			doc.Body = s
		case "doc_id":
			if s != "" {
				doc.ID = s
			}
		}
	}
	return domain.ScoredMatch{Document: doc, Distance: 1 - p.GetScore()}
}

// payloadValues converts a generic payload map to Qdrant values.
func payloadValues(payload map[string]any) map[string]*pb.Value {
	out := make(map[string]*pb.Value, len(payload))
	for k, val := range payload {
		switch tv := val.(type) {
		case string:
			out[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: tv}}
		case int:
			out[k] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(tv)}}
		case int64:
			out[k] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: tv}}
		case float64:
			out[k] = &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: tv}}
		case bool:
			out[k] = &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: tv}}
		default:
			out[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: fmt.Sprint(tv)}}
		}
	}
	return out
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
