package services

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"financial-qa-platform/models"
	"financial-qa-platform/utils"
)

// DocumentStore is a key-value mirror of indexed chunks, keyed by doc
// id. MGet preserves key order; a nil entry marks a missing key.
type DocumentStore interface {
	MSet(ctx context.Context, docs []models.ChunkDocument) error
	MGet(ctx context.Context, keys []string) ([]*string, error)
	MDelete(ctx context.Context, keys []string) error
	YieldKeys(ctx context.Context) ([]string, error)
	DeleteAll(ctx context.Context) error
}

type storedChunk struct {
	ID          string    `bson:"_id"`
	Content     []byte    `bson:"content"`
	Compression string    `bson:"compression"`
	PageNumber  int       `bson:"page_number"`
	DocName     string    `bson:"doc_name"`
	ThreadID    int64     `bson:"thread_id"`
	IsTable     bool      `bson:"is_table"`
	UpdatedAt   time.Time `bson:"updated_at"`
}

// MongoDocStore backs DocumentStore with a Mongo collection.
type MongoDocStore struct {
	col *mongo.Collection
}

func NewMongoDocStore(db *mongo.Database) *MongoDocStore {
	return &MongoDocStore{col: db.Collection("docstore")}
}

// MSet upserts all documents; re-running an ingestion overwrites the
// same keys.
func (s *MongoDocStore) MSet(ctx context.Context, docs []models.ChunkDocument) error {
	if len(docs) == 0 {
		return nil
	}

	writes := make([]mongo.WriteModel, 0, len(docs))
	for _, d := range docs {
		compressed, algorithm, err := utils.CompressText(d.Content)
		if err != nil {
			return fmt.Errorf("compress %s: %w", d.DocID, err)
		}

		chunk := storedChunk{
			ID:          d.DocID,
			Content:     compressed,
			Compression: string(algorithm),
			PageNumber:  d.PageNumber,
			DocName:     d.DocName,
			ThreadID:    d.ThreadID,
			IsTable:     d.IsTable,
			UpdatedAt:   time.Now(),
		}

		writes = append(writes, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": d.DocID}).
			SetReplacement(chunk).
			SetUpsert(true))
	}

	_, err := s.col.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return fmt.Errorf("docstore mset: %w", err)
	}
	return nil
}

// MGet fetches values for keys, in key order. Missing keys come back
// as nil entries rather than errors.
func (s *MongoDocStore) MGet(ctx context.Context, keys []string) ([]*string, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	cursor, err := s.col.Find(ctx, bson.M{"_id": bson.M{"$in": keys}})
	if err != nil {
		return nil, fmt.Errorf("docstore mget: %w", err)
	}
	defer cursor.Close(ctx)

	found := make(map[string]string)
	for cursor.Next(ctx) {
		var chunk storedChunk
		if err := cursor.Decode(&chunk); err != nil {
			return nil, fmt.Errorf("docstore decode: %w", err)
		}
		text, err := utils.DecompressText(chunk.Content, utils.CompressionAlgorithm(chunk.Compression))
		if err != nil {
			return nil, fmt.Errorf("decompress %s: %w", chunk.ID, err)
		}
		found[chunk.ID] = text
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("docstore cursor: %w", err)
	}

	return orderValues(keys, found), nil
}

// orderValues aligns fetched values with the requested key order.
func orderValues(keys []string, found map[string]string) []*string {
	out := make([]*string, len(keys))
	for i, key := range keys {
		if text, ok := found[key]; ok {
			v := text
			out[i] = &v
		}
	}
	return out
}

func (s *MongoDocStore) MDelete(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := s.col.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": keys}})
	if err != nil {
		return fmt.Errorf("docstore mdelete: %w", err)
	}
	return nil
}

// YieldKeys lists every stored doc id.
func (s *MongoDocStore) YieldKeys(ctx context.Context) ([]string, error) {
	cursor, err := s.col.Find(ctx, bson.M{}, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, fmt.Errorf("docstore yield keys: %w", err)
	}
	defer cursor.Close(ctx)

	var keys []string
	for cursor.Next(ctx) {
		var row struct {
			ID string `bson:"_id"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, fmt.Errorf("docstore decode key: %w", err)
		}
		keys = append(keys, row.ID)
	}
	return keys, cursor.Err()
}

// TableChunksByThread returns the decompressed table chunks stored for
// one thread, ordered by document and page. Feeds the XLSX export.
func (s *MongoDocStore) TableChunksByThread(ctx context.Context, threadID int64) ([]models.ChunkDocument, error) {
	cursor, err := s.col.Find(ctx,
		bson.M{"thread_id": threadID, "is_table": true},
		options.Find().SetSort(bson.D{{Key: "doc_name", Value: 1}, {Key: "page_number", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("docstore table chunks: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []models.ChunkDocument
	for cursor.Next(ctx) {
		var chunk storedChunk
		if err := cursor.Decode(&chunk); err != nil {
			return nil, fmt.Errorf("docstore decode: %w", err)
		}
		text, err := utils.DecompressText(chunk.Content, utils.CompressionAlgorithm(chunk.Compression))
		if err != nil {
			return nil, fmt.Errorf("decompress %s: %w", chunk.ID, err)
		}
		docs = append(docs, models.ChunkDocument{
			DocID:      chunk.ID,
			Content:    text,
			PageNumber: chunk.PageNumber,
			DocName:    chunk.DocName,
			ThreadID:   chunk.ThreadID,
			IsTable:    chunk.IsTable,
		})
	}
	return docs, cursor.Err()
}

func (s *MongoDocStore) DeleteAll(ctx context.Context) error {
	_, err := s.col.DeleteMany(ctx, bson.M{})
	if err != nil {
		return fmt.Errorf("docstore delete all: %w", err)
	}
	return nil
}
