package semantic

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/clauseai/clause-engine/engine/domain"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// --- Mocks ---

type mockPoints struct {
	upsertResp *pb.PointsOperationResponse
	upsertErr  error
	upserts    []*pb.UpsertPoints

	searchResp *pb.SearchResponse
	searchErr  error
	searches   []*pb.SearchPoints

	scrollPages []*pb.ScrollResponse
	scrollErr   error
	scrolls     []*pb.ScrollPoints
}

func (m *mockPoints) Upsert(_ context.Context, in *pb.UpsertPoints, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	m.upserts = append(m.upserts, in)
	return m.upsertResp, m.upsertErr
}

func (m *mockPoints) Search(_ context.Context, in *pb.SearchPoints, _ ...grpc.CallOption) (*pb.SearchResponse, error) {
	m.searches = append(m.searches, in)
	return m.searchResp, m.searchErr
}

func (m *mockPoints) Scroll(_ context.Context, in *pb.ScrollPoints, _ ...grpc.CallOption) (*pb.ScrollResponse, error) {
	m.scrolls = append(m.scrolls, in)
	if m.scrollErr != nil {
		return nil, m.scrollErr
	}
	page := m.scrollPages[0]
	if len(m.scrollPages) > 1 {
		m.scrollPages = m.scrollPages[1:]
	}
	return page, nil
}

type mockCollections struct {
	listResp   *pb.ListCollectionsResponse
	listErr    error
	createResp *pb.CollectionOperationResponse
	createErr  error
	creates    []*pb.CreateCollection
	getResp    *pb.GetCollectionInfoResponse
	getErr     error
}

func (m *mockCollections) List(_ context.Context, _ *pb.ListCollectionsRequest, _ ...grpc.CallOption) (*pb.ListCollectionsResponse, error) {
	return m.listResp, m.listErr
}

func (m *mockCollections) Create(_ context.Context, in *pb.CreateCollection, _ ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	m.creates = append(m.creates, in)
	return m.createResp, m.createErr
}

func (m *mockCollections) Get(_ context.Context, _ *pb.GetCollectionInfoRequest, _ ...grpc.CallOption) (*pb.GetCollectionInfoResponse, error) {
	return m.getResp, m.getErr
}

func collectionList(names ...string) *pb.ListCollectionsResponse {
	descs := make([]*pb.CollectionDescription, len(names))
	for i, n := range names {
		descs[i] = &pb.CollectionDescription{Name: n}
	}
	return &pb.ListCollectionsResponse{Collections: descs}
}

func collectionInfo(dims uint64) *pb.GetCollectionInfoResponse {
	return &pb.GetCollectionInfoResponse{
		Result: &pb.CollectionInfo{
			Config: &pb.CollectionConfig{
				Params: &pb.CollectionParams{
					VectorsConfig: &pb.VectorsConfig{
						Config: &pb.VectorsConfig_Params{
							Params: &pb.VectorParams{Size: dims, Distance: pb.Distance_Cosine},
						},
					},
				},
			},
		},
	}
}

// --- EnsureCollection ---

func TestEnsureCollection_AlreadyExists(t *testing.T) {
	cols := &mockCollections{listResp: collectionList("doc1")}
	vs := NewWithClients(&mockPoints{}, cols, time.Second)
	if err := vs.EnsureCollection(context.Background(), "doc1", 4); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cols.creates) != 0 {
		t.Fatalf("existing collection must not be re-created, got %d creates", len(cols.creates))
	}
}

func TestEnsureCollection_Idempotent(t *testing.T) {
	cols := &mockCollections{
		listResp:   collectionList(),
		createResp: &pb.CollectionOperationResponse{Result: true},
	}
	vs := NewWithClients(&mockPoints{}, cols, time.Second)
	if err := vs.EnsureCollection(context.Background(), "doc1", 128); err != nil {
		t.Fatalf("first ensure: %v", err)
	}
	cols.listResp = collectionList("doc1")
	if err := vs.EnsureCollection(context.Background(), "doc1", 128); err != nil {
		t.Fatalf("second ensure must be a no-op, got: %v", err)
	}
	if len(cols.creates) != 1 {
		t.Fatalf("expected exactly one create, got %d", len(cols.creates))
	}
	params := cols.creates[0].GetVectorsConfig().GetParams()
	if params.GetSize() != 128 || params.GetDistance() != pb.Distance_Cosine {
		t.Errorf("collection created with wrong config: %v", params)
	}
}

func TestEnsureCollection_CreationRace(t *testing.T) {
	cols := &mockCollections{
		listResp:  collectionList(),
		createErr: status.Error(codes.AlreadyExists, "already exists"),
	}
	vs := NewWithClients(&mockPoints{}, cols, time.Second)
	if err := vs.EnsureCollection(context.Background(), "doc1", 8); err != nil {
		t.Fatalf("lost creation race must not error: %v", err)
	}
}

// --- Upsert ---

func TestUpsert_DimensionMismatch(t *testing.T) {
	points := &mockPoints{}
	cols := &mockCollections{getResp: collectionInfo(3)}
	vs := NewWithClients(points, cols, time.Second)

	err := vs.Upsert(context.Background(), "doc1", []Record{
		{ID: "a", Vector: []float32{1, 2, 3}, Payload: map[string]any{"text": "ok"}},
		{ID: "b", Vector: []float32{1, 2, 3, 4}, Payload: map[string]any{"text": "bad"}},
	})
	if !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Fatalf("got %v, want ErrDimensionMismatch", err)
	}
	if len(points.upserts) != 0 {
		t.Fatal("no point may be written on dimension mismatch")
	}
}

func TestUpsert_CreatesMissingCollection(t *testing.T) {
	points := &mockPoints{upsertResp: &pb.PointsOperationResponse{}}
	cols := &mockCollections{
		getErr:     status.Error(codes.NotFound, "no collection"),
		listResp:   collectionList(),
		createResp: &pb.CollectionOperationResponse{Result: true},
	}
	vs := NewWithClients(points, cols, time.Second)

	err := vs.Upsert(context.Background(), "doc1", []Record{
		{ID: "a", Vector: []float32{0.1, 0.2}, Payload: map[string]any{"text": "hello", "chunk_index": 0}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cols.creates) != 1 {
		t.Fatalf("expected collection create, got %d", len(cols.creates))
	}
	if got := cols.creates[0].GetVectorsConfig().GetParams().GetSize(); got != 2 {
		t.Errorf("dimension taken from records: got %d, want 2", got)
	}
	if len(points.upserts) != 1 || len(points.upserts[0].GetPoints()) != 1 {
		t.Fatalf("expected one upsert with one point")
	}
	if w := points.upserts[0].GetWait(); !w {
		t.Error("upserts must wait for durability")
	}
}

func TestUpsert_Empty(t *testing.T) {
	points := &mockPoints{}
	vs := NewWithClients(points, &mockCollections{}, time.Second)
	if err := vs.Upsert(context.Background(), "doc1", nil); err != nil {
		t.Fatalf("empty upsert: %v", err)
	}
	if len(points.upserts) != 0 {
		t.Fatal("no call expected")
	}
}

// --- Search ---

func TestSearch_OrderingAndThreshold(t *testing.T) {
	points := &mockPoints{
		searchResp: &pb.SearchResponse{
			Result: []*pb.ScoredPoint{
				{
					Id:    &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: "p1"}},
					Score: 0.92,
					Payload: map[string]*pb.Value{
						"text":        {Kind: &pb.Value_StringValue{StringValue: "first"}},
						"chunk_index": {Kind: &pb.Value_IntegerValue{IntegerValue: 4}},
					},
				},
				{
					Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: "p2"}},
					Score:   0.55,
					Payload: map[string]*pb.Value{"text": {Kind: &pb.Value_StringValue{StringValue: "second"}}},
				},
			},
		},
	}
	vs := NewWithClients(points, &mockCollections{}, time.Second)

	results, err := vs.Search(context.Background(), "doc1", []float32{1, 0}, 5, 0.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 || results[0].Score < results[1].Score {
		t.Fatalf("results must keep descending order: %+v", results)
	}
	if results[0].Text != "first" || results[0].ChunkIndex != 4 {
		t.Errorf("payload mapping wrong: %+v", results[0])
	}

	req := points.searches[0]
	if req.GetLimit() != 5 {
		t.Errorf("limit not forwarded: %d", req.GetLimit())
	}
	if req.ScoreThreshold == nil || *req.ScoreThreshold != 0.5 {
		t.Errorf("score threshold not forwarded: %v", req.ScoreThreshold)
	}
}

func TestSearch_NoThreshold(t *testing.T) {
	points := &mockPoints{searchResp: &pb.SearchResponse{}}
	vs := NewWithClients(points, &mockCollections{}, time.Second)
	if _, err := vs.Search(context.Background(), "doc1", []float32{1}, 10, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if points.searches[0].ScoreThreshold != nil {
		t.Error("zero threshold must not be forwarded")
	}
}

func TestSearch_MissingCollection(t *testing.T) {
	points := &mockPoints{searchErr: status.Error(codes.NotFound, "collection doesn't exist")}
	vs := NewWithClients(points, &mockCollections{}, time.Second)
	results, err := vs.Search(context.Background(), "ghost", []float32{1}, 10, 0.1)
	if err != nil {
		t.Fatalf("missing collection must not error: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected empty result, got %d", len(results))
	}
}

func TestSearch_UpstreamUnavailable(t *testing.T) {
	points := &mockPoints{searchErr: status.Error(codes.Unavailable, "connection refused")}
	vs := NewWithClients(points, &mockCollections{}, time.Second)
	_, err := vs.Search(context.Background(), "doc1", []float32{1}, 10, 0)
	if !errors.Is(err, domain.ErrUpstreamUnavailable) {
		t.Fatalf("got %v, want ErrUpstreamUnavailable", err)
	}
}

func TestSearch_UpstreamTimeout(t *testing.T) {
	points := &mockPoints{searchErr: status.Error(codes.DeadlineExceeded, "deadline exceeded")}
	vs := NewWithClients(points, &mockCollections{}, time.Second)
	_, err := vs.Search(context.Background(), "doc1", []float32{1}, 10, 0)
	if !errors.Is(err, domain.ErrUpstreamTimeout) {
		t.Fatalf("got %v, want ErrUpstreamTimeout", err)
	}
}

// --- Scroll ---

func TestScroll_Paginates(t *testing.T) {
	page1 := &pb.ScrollResponse{
		Result: []*pb.RetrievedPoint{
			{Payload: map[string]*pb.Value{"text": {Kind: &pb.Value_StringValue{StringValue: "a"}}}},
			{Payload: map[string]*pb.Value{"text": {Kind: &pb.Value_StringValue{StringValue: "b"}}}},
		},
		NextPageOffset: &pb.PointId{PointIdOptions: &pb.PointId_Num{Num: 2}},
	}
	page2 := &pb.ScrollResponse{
		Result: []*pb.RetrievedPoint{
			{Payload: map[string]*pb.Value{"text": {Kind: &pb.Value_StringValue{StringValue: "c"}}}},
		},
		// No next offset: final page.
	}
	points := &mockPoints{scrollPages: []*pb.ScrollResponse{page1, page2}}
	vs := NewWithClients(points, &mockCollections{}, time.Second)

	entries, err := vs.Scroll(context.Background(), "doc1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[2].Text != "c" {
		t.Errorf("entries out of order: %+v", entries)
	}
	if len(points.scrolls) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(points.scrolls))
	}
	if points.scrolls[1].GetOffset() == nil {
		t.Error("second page must carry the cursor")
	}
}

func TestScroll_MissingCollection(t *testing.T) {
	points := &mockPoints{scrollErr: status.Error(codes.NotFound, "collection doesn't exist")}
	vs := NewWithClients(points, &mockCollections{}, time.Second)
	entries, err := vs.Scroll(context.Background(), "ghost")
	if err != nil || entries != nil {
		t.Fatalf("missing collection: got %v, %v", entries, err)
	}
}

// --- Collections ---

func TestListCollections(t *testing.T) {
	cols := &mockCollections{listResp: collectionList("doc1", "doc2")}
	vs := NewWithClients(&mockPoints{}, cols, time.Second)
	names, err := vs.ListCollections(context.Background())
	if err != nil || len(names) != 2 {
		t.Fatalf("got %v, %v", names, err)
	}
}

func TestHasCollection(t *testing.T) {
	cols := &mockCollections{listResp: collectionList("doc1")}
	vs := NewWithClients(&mockPoints{}, cols, time.Second)
	ok, err := vs.HasCollection(context.Background(), "doc1")
	if err != nil || !ok {
		t.Fatalf("doc1 should exist: %v %v", ok, err)
	}
	ok, err = vs.HasCollection(context.Background(), "doc2")
	if err != nil || ok {
		t.Fatalf("doc2 should not exist: %v %v", ok, err)
	}
}
