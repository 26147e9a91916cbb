package models

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TableMarker prefixes the content of every table chunk so downstream
// consumers can tell tabular data apart from prose.
const TableMarker = "---TABLE---"

// SharedThreadID is the thread scope of documents visible to every
// conversation. Uploads without an explicit thread land here.
const SharedThreadID int64 = 0

// ChunkDocument is the atomic retrievable unit: a bounded span of page
// text or one rendered table, plus the metadata the vector index filters on.
type ChunkDocument struct {
	DocID      string `bson:"doc_id" json:"doc_id"`
	Content    string `bson:"content" json:"content"`
	PageNumber int    `bson:"page_number" json:"page_number"`
	DocName    string `bson:"doc_name" json:"doc_name"`
	ThreadID   int64  `bson:"thread_id" json:"thread_id"`
	IsTable    bool   `bson:"is_table" json:"is_table"`
}

// TextChunkID builds the identifier for the j-th text chunk of a page.
// j is 0-based within the page.
func TextChunkID(docName string, page, j int) string {
	return fmt.Sprintf("%s_page_%d_chunk_%d", docName, page, j)
}

// TableChunkID builds the identifier for the k-th table of a page.
func TableChunkID(docName string, page, k int) string {
	return fmt.Sprintf("%s_page_%d_table_%d", docName, page, k)
}

// RetrievedChunk is one ranked similarity-search hit. Ephemeral, never
// persisted.
type RetrievedChunk struct {
	DocID      string  `json:"doc_id"`
	Content    string  `json:"content"`
	PageNumber int     `json:"page_number"`
	DocName    string  `json:"doc_name"`
	ThreadID   int64   `json:"thread_id"`
	Score      float32 `json:"score"`
}

// PDF is the Mongo record for an uploaded report.
type PDF struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	DocName      string             `bson:"doc_name" json:"doc_name"`
	OriginalName string             `bson:"original_name" json:"original_name"`
	FilePath     string             `bson:"file_path" json:"file_path"`
	FileHash     string             `bson:"file_hash" json:"file_hash"`
	ThreadID     int64              `bson:"thread_id" json:"thread_id"`
	OwnerID      primitive.ObjectID `bson:"owner_id,omitempty" json:"owner_id,omitempty"`
	Status       string             `bson:"status" json:"status"`
	ErrorMessage string             `bson:"error_message,omitempty" json:"error_message,omitempty"`
	UploadedAt   time.Time          `bson:"uploaded_at" json:"uploaded_at"`
	ProcessedAt  *time.Time         `bson:"processed_at,omitempty" json:"processed_at,omitempty"`
	Metadata     PDFMetadata        `bson:"metadata" json:"metadata"`
	// Page rasterizations, base64 JPEG keyed by 1-based page number.
	// Auxiliary metadata only; never indexed for retrieval.
	PageImages map[string]string `bson:"page_images,omitempty" json:"-"`
}

// PDFMetadata carries ingestion statistics for a processed report.
type PDFMetadata struct {
	Size           int64         `bson:"size" json:"size"`
	Pages          int           `bson:"pages" json:"pages"`
	ChunkCount     int           `bson:"chunk_count" json:"chunk_count"`
	TableCount     int           `bson:"table_count" json:"table_count"`
	ProcessingTime time.Duration `bson:"processing_time" json:"processing_time"`
	ParserUsed     string        `bson:"parser_used" json:"parser_used"`
}

// IngestResult summarizes one ingestion run of a single document.
type IngestResult struct {
	DocName    string            `json:"doc_name"`
	Pages      int               `json:"pages"`
	ChunkCount int               `json:"chunk_count"`
	TableCount int               `json:"table_count"`
	ParserUsed string            `json:"parser_used"`
	PageImages map[string]string `json:"-"`
}

// Processing status constants.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// UploadResponse is returned after a successful upload.
type UploadResponse struct {
	ID         string `json:"id"`
	DocName    string `json:"doc_name"`
	Status     string `json:"status"`
	ChunkCount int    `json:"chunk_count,omitempty"`
	TaskID     string `json:"task_id,omitempty"`
	Message    string `json:"message"`
}
