package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/hibiken/asynq"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"financial-qa-platform/models"
)

const TaskIngestPDF = "pdf:ingest"

type PDFIngestPayload struct {
	UploadID string `json:"upload_id"`
	ThreadID int64  `json:"thread_id"`
	DocName  string `json:"doc_name"`
	FilePath string `json:"file_path"`
}

func NewPDFIngestTask(uploadID string, threadID int64, docName, filePath string) (*asynq.Task, error) {
	payload, err := json.Marshal(PDFIngestPayload{
		UploadID: uploadID,
		ThreadID: threadID,
		DocName:  docName,
		FilePath: filePath,
	})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskIngestPDF,
		payload,
		asynq.MaxRetry(3),
		asynq.Timeout(10*time.Minute),
		asynq.Queue("critical"),
	), nil
}

// Ingestor runs the full PDF pipeline for one document. Implemented by
// services.Retriever; declared here so the worker does not import the
// services package at task-definition time in both directions.
type Ingestor interface {
	Ingest(ctx context.Context, filePath, docName string, threadID int64) (*models.IngestResult, error)
}

type TaskProcessor struct {
	ingestor Ingestor
	db       *mongo.Database
}

func NewTaskProcessor(ingestor Ingestor, db *mongo.Database) *TaskProcessor {
	return &TaskProcessor{ingestor: ingestor, db: db}
}

func (p *TaskProcessor) ProcessPDFIngest(ctx context.Context, t *asynq.Task) error {
	var payload PDFIngestPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}

	log.Printf("Ingesting PDF: upload=%s doc=%s thread=%d", payload.UploadID, payload.DocName, payload.ThreadID)

	p.updateStatus(ctx, payload.UploadID, models.StatusProcessing, nil)

	result, err := p.ingestor.Ingest(ctx, payload.FilePath, payload.DocName, payload.ThreadID)
	if err != nil {
		p.updateStatus(ctx, payload.UploadID, models.StatusFailed, nil)
		return err
	}

	p.updateStatus(ctx, payload.UploadID, models.StatusCompleted, result)

	// The upload handler staged the file in a temp dir.
	if err := os.Remove(payload.FilePath); err != nil && !os.IsNotExist(err) {
		log.Printf("Failed to remove staged file %s: %v", payload.FilePath, err)
	}

	log.Printf("PDF ingested: upload=%s chunks=%d tables=%d", payload.UploadID, result.ChunkCount, result.TableCount)
	return nil
}

func (p *TaskProcessor) updateStatus(ctx context.Context, uploadID, status string, result *models.IngestResult) {
	oid, err := primitive.ObjectIDFromHex(uploadID)
	if err != nil {
		log.Printf("Invalid upload id %s: %v", uploadID, err)
		return
	}

	set := bson.M{
		"status":     status,
		"updated_at": time.Now(),
	}
	if status == models.StatusCompleted {
		set["processed_at"] = time.Now()
	}
	if result != nil {
		set["metadata.pages"] = result.Pages
		set["metadata.chunk_count"] = result.ChunkCount
		set["metadata.table_count"] = result.TableCount
		set["metadata.parser_used"] = result.ParserUsed
		set["page_images"] = result.PageImages
	}

	_, err = p.db.Collection("pdfs").UpdateOne(
		ctx,
		bson.M{"_id": oid},
		bson.M{"$set": set},
	)
	if err != nil {
		log.Printf("Failed to update upload %s status to %s: %v", uploadID, status, err)
	}
}
