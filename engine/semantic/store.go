// Package semantic is the sole owner of all Qdrant operations. Collections
// are partitioned per document: one collection per document_id, created
// lazily with cosine distance and the embedding model's dimensionality.
package semantic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/clauseai/clause-engine/engine/domain"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
)

const (
	// DefaultTimeout bounds every store call. Qdrant can be slow on large
	// upserts, so this is deliberately generous.
	DefaultTimeout = 5 * time.Minute

	// scrollPageSize is the page size used by Scroll full dumps.
	scrollPageSize = 100
)

// PointsAPI is the subset of pb.PointsClient the store uses.
type PointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
	Scroll(ctx context.Context, in *pb.ScrollPoints, opts ...grpc.CallOption) (*pb.ScrollResponse, error)
}

// CollectionsAPI is the subset of pb.CollectionsClient the store uses.
type CollectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
	Get(ctx context.Context, in *pb.GetCollectionInfoRequest, opts ...grpc.CallOption) (*pb.GetCollectionInfoResponse, error)
}

// VectorStore wraps the Qdrant gRPC clients. Safe for concurrent use across
// independent collections; it holds no mutable state beyond the connection.
type VectorStore struct {
	conn        *grpc.ClientConn
	points      PointsAPI
	collections CollectionsAPI
	timeout     time.Duration
}

// New creates a VectorStore connected to Qdrant at the given gRPC address.
// A timeout of zero selects DefaultTimeout.
func New(addr string, timeout time.Duration) (*VectorStore, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", addr, err)
	}
	return &VectorStore{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		timeout:     normalizeTimeout(timeout),
	}, nil
}

// NewWithClients creates a VectorStore from pre-built clients. Used by tests.
func NewWithClients(points PointsAPI, collections CollectionsAPI, timeout time.Duration) *VectorStore {
	return &VectorStore{
		points:      points,
		collections: collections,
		timeout:     normalizeTimeout(timeout),
	}
}

func normalizeTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultTimeout
	}
	return d
}

// Close closes the underlying gRPC connection.
func (v *VectorStore) Close() error {
	if v.conn == nil {
		return nil
	}
	return v.conn.Close()
}

func (v *VectorStore) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, v.timeout)
}

// EnsureCollection creates the named collection (cosine distance, dims-sized
// vectors) if it doesn't exist. Creating an existing collection is a no-op.
func (v *VectorStore) EnsureCollection(ctx context.Context, name string, dims int) error {
	ctx, cancel := v.opCtx(ctx)
	defer cancel()

	exists, err := v.hasCollection(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	_, err = v.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: name,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dims),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		// Lost a creation race; the collection is there, which is all we want.
		if status.Code(err) == codes.AlreadyExists {
			return nil
		}
		return classify(fmt.Sprintf("create collection %s", name), err)
	}
	return nil
}

// HasCollection reports whether the named collection exists.
func (v *VectorStore) HasCollection(ctx context.Context, name string) (bool, error) {
	ctx, cancel := v.opCtx(ctx)
	defer cancel()
	return v.hasCollection(ctx, name)
}

func (v *VectorStore) hasCollection(ctx context.Context, name string) (bool, error) {
	list, err := v.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return false, classify("list collections", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == name {
			return true, nil
		}
	}
	return false, nil
}

// ListCollections returns the names of all collections, one per processed
// document.
func (v *VectorStore) ListCollections(ctx context.Context) ([]string, error) {
	ctx, cancel := v.opCtx(ctx)
	defer cancel()

	list, err := v.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return nil, classify("list collections", err)
	}
	names := make([]string, 0, len(list.GetCollections()))
	for _, c := range list.GetCollections() {
		names = append(names, c.GetName())
	}
	return names, nil
}

// Upsert stores records into the named collection, creating it first when
// absent. Every record's vector must match the collection's configured
// dimension; on mismatch nothing is written and ErrDimensionMismatch is
// returned.
func (v *VectorStore) Upsert(ctx context.Context, name string, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	ctx, cancel := v.opCtx(ctx)
	defer cancel()

	dims, err := v.collectionDims(ctx, name)
	if err != nil {
		return err
	}
	if dims == 0 {
		dims = len(records[0].Vector)
		if err := v.EnsureCollection(ctx, name, dims); err != nil {
			return err
		}
	}

	for i, r := range records {
		if len(r.Vector) != dims {
			return fmt.Errorf("semantic: upsert %s point %d: %w: vector has %d dimensions, collection expects %d",
				name, i, domain.ErrDimensionMismatch, len(r.Vector), dims)
		}
	}

	points := make([]*pb.PointStruct, len(records))
	for i, r := range records {
		payload := make(map[string]*pb.Value, len(r.Payload))
		for k, val := range r.Payload {
			payload[k] = payloadValue(val)
		}
		points[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: r.ID},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: r.Vector},
				},
			},
			Payload: payload,
		}
	}

	_, err = v.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: name,
		Wait:           proto.Bool(true),
		Points:         points,
	})
	if err != nil {
		return classify(fmt.Sprintf("upsert %d points into %s", len(points), name), err)
	}
	return nil
}

// collectionDims returns the configured vector size of a collection, or zero
// when the collection does not exist.
func (v *VectorStore) collectionDims(ctx context.Context, name string) (int, error) {
	info, err := v.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: name})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return 0, nil
		}
		return 0, classify(fmt.Sprintf("get collection %s", name), err)
	}
	size := info.GetResult().GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()
	return int(size), nil
}

// Search performs k-NN similarity search over one collection. Results come
// back ordered by descending score, truncated to limit, with hits below
// scoreThreshold excluded by the backend. A missing collection yields an
// empty result, not an error; callers that need to distinguish use
// HasCollection.
func (v *VectorStore) Search(ctx context.Context, name string, vector []float32, limit int, scoreThreshold float32) ([]SearchResult, error) {
	ctx, cancel := v.opCtx(ctx)
	defer cancel()

	req := &pb.SearchPoints{
		CollectionName: name,
		Vector:         vector,
		Limit:          uint64(limit),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	}
	if scoreThreshold > 0 {
		req.ScoreThreshold = proto.Float32(scoreThreshold)
	}

	resp, err := v.points.Search(ctx, req)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, classify(fmt.Sprintf("search %s", name), err)
	}

	results := make([]SearchResult, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		sr := SearchResult{
			ID:    r.GetId().GetUuid(),
			Score: r.GetScore(),
		}
		for k, val := range r.GetPayload() {
			switch k {
			case "text":
				sr.Text = val.GetStringValue()
			case "chunk_index":
				sr.ChunkIndex = val.GetIntegerValue()
			}
		}
		results[i] = sr
	}
	return results, nil
}

// Scroll pages through the whole collection (page size 100) and returns every
// stored (vector, text) pair. Audit/debug path, not the query hot path; it
// terminates when the backend reports no further page offset.
func (v *VectorStore) Scroll(ctx context.Context, name string) ([]DumpEntry, error) {
	ctx, cancel := v.opCtx(ctx)
	defer cancel()

	var (
		entries []DumpEntry
		offset  *pb.PointId
	)
	for {
		resp, err := v.points.Scroll(ctx, &pb.ScrollPoints{
			CollectionName: name,
			Limit:          proto.Uint32(scrollPageSize),
			Offset:         offset,
			WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
			WithVectors:    &pb.WithVectorsSelector{SelectorOptions: &pb.WithVectorsSelector_Enable{Enable: true}},
		})
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return nil, nil
			}
			return nil, classify(fmt.Sprintf("scroll %s", name), err)
		}

		for _, p := range resp.GetResult() {
			entry := DumpEntry{
				Vector: p.GetVectors().GetVector().GetData(),
			}
			if val, ok := p.GetPayload()["text"]; ok {
				entry.Text = val.GetStringValue()
			}
			entries = append(entries, entry)
		}

		offset = resp.GetNextPageOffset()
		if offset == nil || len(resp.GetResult()) == 0 {
			return entries, nil
		}
	}
}

func payloadValue(val any) *pb.Value {
	switch tv := val.(type) {
	case string:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: tv}}
	case int:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(tv)}}
	case int64:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: tv}}
	case float64:
		return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: tv}}
	case bool:
		return &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: tv}}
	default:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: fmt.Sprint(tv)}}
	}
}

// classify maps gRPC transport failures onto the engine's upstream sentinels.
func classify(op string, err error) error {
	switch status.Code(err) {
	case codes.DeadlineExceeded:
		return fmt.Errorf("semantic: %s: %w: %s", op, domain.ErrUpstreamTimeout, err)
	case codes.Unavailable:
		return fmt.Errorf("semantic: %s: %w: %s", op, domain.ErrUpstreamUnavailable, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("semantic: %s: %w: %s", op, domain.ErrUpstreamTimeout, err)
	}
	return fmt.Errorf("semantic: %s: %w", op, err)
}
