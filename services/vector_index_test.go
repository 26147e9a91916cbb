package services

import (
	"context"
	"fmt"
	"testing"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"

	"financial-qa-platform/models"
)

type fakeEmbedder struct {
	batchCalls int
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.batchCalls++
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(len(texts[i])), 1, 0}
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

type fakePoints struct {
	upserts []*pb.UpsertPoints
	search  *pb.SearchResponse
}

func (f *fakePoints) Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	f.upserts = append(f.upserts, in)
	return &pb.PointsOperationResponse{}, nil
}

func (f *fakePoints) Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error) {
	if f.search != nil {
		return f.search, nil
	}
	return &pb.SearchResponse{}, nil
}

type fakeCollections struct{}

func (f *fakeCollections) List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error) {
	return &pb.ListCollectionsResponse{}, nil
}

func (f *fakeCollections) Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	return &pb.CollectionOperationResponse{}, nil
}

func (f *fakeCollections) Delete(ctx context.Context, in *pb.DeleteCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	return &pb.CollectionOperationResponse{}, nil
}

func testIndex(batchSize int, points *fakePoints, embedder *fakeEmbedder) *VectorIndex {
	return &VectorIndex{
		points:      points,
		collections: &fakeCollections{},
		collection:  "test_collection",
		dims:        3,
		batchSize:   batchSize,
		embedder:    embedder,
	}
}

func makeDocs(n int) []models.ChunkDocument {
	docs := make([]models.ChunkDocument, n)
	for i := range docs {
		docs[i] = models.ChunkDocument{
			DocID:      fmt.Sprintf("doc_page_1_chunk_%d", i),
			Content:    fmt.Sprintf("chunk %d", i),
			PageNumber: 1,
			DocName:    "doc",
			ThreadID:   3,
		}
	}
	return docs
}

func TestAddBatchesFixedSize(t *testing.T) {
	points := &fakePoints{}
	embedder := &fakeEmbedder{}
	v := testIndex(50, points, embedder)

	written, err := v.Add(context.Background(), makeDocs(120))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if written != 120 {
		t.Errorf("written = %d, want 120", written)
	}
	if len(points.upserts) != 3 {
		t.Fatalf("expected 3 upsert calls, got %d", len(points.upserts))
	}

	sizes := []int{50, 50, 20}
	for i, up := range points.upserts {
		if len(up.Points) != sizes[i] {
			t.Errorf("batch %d size = %d, want %d", i, len(up.Points), sizes[i])
		}
	}
	if embedder.batchCalls != 3 {
		t.Errorf("embedder called %d times, want 3", embedder.batchCalls)
	}
}

func TestAddEmptyInputMakesNoCalls(t *testing.T) {
	points := &fakePoints{}
	v := testIndex(50, points, &fakeEmbedder{})

	written, err := v.Add(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if written != 0 || len(points.upserts) != 0 {
		t.Errorf("expected no writes, got written=%d calls=%d", written, len(points.upserts))
	}
}

func TestAddPointIDsDeterministic(t *testing.T) {
	points := &fakePoints{}
	v := testIndex(50, points, &fakeEmbedder{})

	docs := makeDocs(2)
	if _, err := v.Add(context.Background(), docs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := v.Add(context.Background(), docs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	first := points.upserts[0].Points[0].Id.GetUuid()
	second := points.upserts[1].Points[0].Id.GetUuid()
	if first != second {
		t.Errorf("point ids differ across re-ingestion: %s vs %s", first, second)
	}
	if first != PointID(docs[0].DocID) {
		t.Errorf("point id not derived from doc id")
	}
}

func TestUpsertPayloadCarriesMetadata(t *testing.T) {
	points := &fakePoints{}
	v := testIndex(50, points, &fakeEmbedder{})

	docs := []models.ChunkDocument{{
		DocID:      "report_page_2_table_0",
		Content:    models.TableMarker + "\na  b",
		PageNumber: 2,
		DocName:    "report",
		ThreadID:   9,
		IsTable:    true,
	}}
	if _, err := v.Add(context.Background(), docs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	payload := points.upserts[0].Points[0].Payload
	if payload["doc_id"].GetStringValue() != "report_page_2_table_0" {
		t.Errorf("bad doc_id payload")
	}
	if payload["page_number"].GetIntegerValue() != 2 {
		t.Errorf("bad page_number payload")
	}
	if payload["thread_id"].GetIntegerValue() != 9 {
		t.Errorf("bad thread_id payload")
	}
	if !payload["is_table"].GetBoolValue() {
		t.Errorf("bad is_table payload")
	}
}

func TestBuildThreadFilterScoped(t *testing.T) {
	f := buildThreadFilter(5, false)
	if len(f.Must) != 1 || len(f.Should) != 0 {
		t.Fatalf("expected single must condition, got must=%d should=%d", len(f.Must), len(f.Should))
	}
	if f.Must[0].GetField().GetMatch().GetInteger() != 5 {
		t.Errorf("filter does not match thread 5")
	}
}

func TestBuildThreadFilterWidened(t *testing.T) {
	f := buildThreadFilter(5, true)
	if len(f.Should) != 2 {
		t.Fatalf("expected two should conditions, got %d", len(f.Should))
	}
	got := []int64{
		f.Should[0].GetField().GetMatch().GetInteger(),
		f.Should[1].GetField().GetMatch().GetInteger(),
	}
	if got[0] != 5 || got[1] != models.SharedThreadID {
		t.Errorf("widened filter matches %v, want [5 0]", got)
	}
}

func TestBuildThreadFilterSharedPoolNotWidened(t *testing.T) {
	// Searching the shared pool itself never produces a should clause.
	f := buildThreadFilter(models.SharedThreadID, true)
	if len(f.Must) != 1 || len(f.Should) != 0 {
		t.Fatalf("expected single must condition, got must=%d should=%d", len(f.Must), len(f.Should))
	}
}

func TestSearchParsesPayload(t *testing.T) {
	points := &fakePoints{
		search: &pb.SearchResponse{
			Result: []*pb.ScoredPoint{{
				Score: 0.87,
				Payload: map[string]*pb.Value{
					"doc_id":      {Kind: &pb.Value_StringValue{StringValue: "doc_page_1_chunk_0"}},
					"content":     {Kind: &pb.Value_StringValue{StringValue: "the content"}},
					"doc_name":    {Kind: &pb.Value_StringValue{StringValue: "doc"}},
					"page_number": {Kind: &pb.Value_IntegerValue{IntegerValue: 1}},
					"thread_id":   {Kind: &pb.Value_IntegerValue{IntegerValue: 3}},
				},
			}},
		},
	}
	v := testIndex(50, points, &fakeEmbedder{})

	results, err := v.Search(context.Background(), "what was revenue", 5, 3, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	r := results[0]
	if r.DocID != "doc_page_1_chunk_0" || r.Content != "the content" ||
		r.PageNumber != 1 || r.ThreadID != 3 || r.Score != 0.87 {
		t.Errorf("parsed result mismatch: %+v", r)
	}
}
