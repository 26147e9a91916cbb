package services

import (
	"context"
	"fmt"

	"financial-qa-platform/internal/ai"
	"financial-qa-platform/internal/config"
	"financial-qa-platform/internal/logger"
	"financial-qa-platform/models"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// pointsAPI is the slice of the Qdrant points client the index uses.
// Narrow so tests can fake it.
type pointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
}

type collectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeleteCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// VectorIndex owns all Qdrant operations: one collection of chunk
// embeddings with thread-scoped payloads.
type VectorIndex struct {
	conn        *grpc.ClientConn
	points      pointsAPI
	collections collectionsAPI
	collection  string
	dims        int
	batchSize   int
	embedder    ai.Embedder
}

func NewVectorIndex(cfg *config.Config, embedder ai.Embedder) (*VectorIndex, error) {
	conn, err := grpc.NewClient(cfg.QdrantAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial qdrant %s: %w", cfg.QdrantAddr, err)
	}
	return &VectorIndex{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  cfg.QdrantCollection,
		dims:        cfg.VectorDimensions,
		batchSize:   cfg.InsertBatchSize,
		embedder:    embedder,
	}, nil
}

func (v *VectorIndex) Close() error {
	return v.conn.Close()
}

// EnsureCollection creates the collection if it doesn't exist.
func (v *VectorIndex) EnsureCollection(ctx context.Context) error {
	list, err := v.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("list collections: %w", err)
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
		return fmt.Errorf("create collection %s: %w", v.collection, err)
	}
	return nil
}

// Add embeds and upserts documents in fixed-size batches. Batches
// already committed stay committed when a later batch fails. Returns
// the number of documents written.
func (v *VectorIndex) Add(ctx context.Context, docs []models.ChunkDocument) (int, error) {
	written := 0

	for start := 0; start < len(docs); start += v.batchSize {
		end := min(start+v.batchSize, len(docs))
		batch := docs[start:end]
		if len(batch) == 0 {
			continue
		}

		texts := make([]string, len(batch))
		for i, d := range batch {
			texts[i] = d.Content
		}

		vectors, err := v.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return written, fmt.Errorf("embed batch at %d: %w", start, err)
		}

		points := make([]*pb.PointStruct, len(batch))
		for i, d := range batch {
			points[i] = &pb.PointStruct{
				Id: &pb.PointId{
					// Derived from the doc id so re-ingestion overwrites.
					PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(d.DocID)},
				},
				Vectors: &pb.Vectors{
					VectorsOptions: &pb.Vectors_Vector{
						Vector: &pb.Vector{Data: vectors[i]},
					},
				},
				Payload: chunkPayload(d),
			}
		}

		wait := true
		_, err = v.points.Upsert(ctx, &pb.UpsertPoints{
			CollectionName: v.collection,
			Wait:           &wait,
			Points:         points,
		})
		if err != nil {
			return written, fmt.Errorf("upsert %d points at %d: %w", len(points), start, err)
		}
		written += len(batch)
	}

	return written, nil
}

// Search embeds the query and runs filtered kNN over the thread scope.
func (v *VectorIndex) Search(ctx context.Context, query string, k int, threadID int64, includeShared bool) ([]models.RetrievedChunk, error) {
	embedding, err := v.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	resp, err := v.points.Search(ctx, &pb.SearchPoints{
		CollectionName: v.collection,
		Vector:         embedding,
		Limit:          uint64(k),
		Filter:         buildThreadFilter(threadID, includeShared),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	results := make([]models.RetrievedChunk, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		chunk := models.RetrievedChunk{Score: r.GetScore()}
		for key, val := range r.GetPayload() {
			switch key {
			case "doc_id":
				chunk.DocID = val.GetStringValue()
			case "content":
				chunk.Content = val.GetStringValue()
			case "doc_name":
				chunk.DocName = val.GetStringValue()
			case "page_number":
				chunk.PageNumber = int(val.GetIntegerValue())
			case "thread_id":
				chunk.ThreadID = val.GetIntegerValue()
			}
		}
		results[i] = chunk
	}
	return results, nil
}

// DeleteAll drops and recreates the collection.
func (v *VectorIndex) DeleteAll(ctx context.Context) error {
	_, err := v.collections.Delete(ctx, &pb.DeleteCollection{
		CollectionName: v.collection,
	})
	if err != nil {
		return fmt.Errorf("delete collection %s: %w", v.collection, err)
	}

	logger.Info("Vector collection dropped, recreating", "collection", v.collection)
	return v.EnsureCollection(ctx)
}

// PointID derives the stable Qdrant point UUID for a doc id.
func PointID(docID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(docID)).String()
}

func chunkPayload(d models.ChunkDocument) map[string]*pb.Value {
	return map[string]*pb.Value{
		"doc_id":      {Kind: &pb.Value_StringValue{StringValue: d.DocID}},
		"content":     {Kind: &pb.Value_StringValue{StringValue: d.Content}},
		"page_number": {Kind: &pb.Value_IntegerValue{IntegerValue: int64(d.PageNumber)}},
		"doc_name":    {Kind: &pb.Value_StringValue{StringValue: d.DocName}},
		"thread_id":   {Kind: &pb.Value_IntegerValue{IntegerValue: d.ThreadID}},
		"is_table":    {Kind: &pb.Value_BoolValue{BoolValue: d.IsTable}},
	}
}

// buildThreadFilter scopes search to one thread. When the caller asks
// to widen, chunks in the shared pool (thread 0) also qualify.
func buildThreadFilter(threadID int64, includeShared bool) *pb.Filter {
	if includeShared && threadID != models.SharedThreadID {
		return &pb.Filter{
			Should: []*pb.Condition{
				threadMatch(threadID),
				threadMatch(models.SharedThreadID),
			},
		}
	}
	return &pb.Filter{
		Must: []*pb.Condition{threadMatch(threadID)},
	}
}

func threadMatch(threadID int64) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: "thread_id",
				Match: &pb.Match{
					MatchValue: &pb.Match_Integer{Integer: threadID},
				},
			},
		},
	}
}
