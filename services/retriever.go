package services

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"financial-qa-platform/internal/logger"
	"financial-qa-platform/internal/telemetry"
	"financial-qa-platform/models"
)

// Retriever coordinates the ingestion pipeline and similarity search.
// Built once at startup with its dependencies; safe for concurrent use.
type Retriever struct {
	reader    *PDFReader
	tables    *TableExtractor
	images    *ImageExtractor
	chunker   *Chunker
	index     *VectorIndex
	docstore  DocumentStore
	metrics   *telemetry.Metrics
	topK      int
	onceInit  sync.Once
	onceErr   error
}

func NewRetriever(reader *PDFReader, tables *TableExtractor, images *ImageExtractor, chunker *Chunker, index *VectorIndex, docstore DocumentStore, metrics *telemetry.Metrics, topK int) *Retriever {
	return &Retriever{
		reader:   reader,
		tables:   tables,
		images:   images,
		chunker:  chunker,
		index:    index,
		docstore: docstore,
		metrics:  metrics,
		topK:     topK,
	}
}

func (r *Retriever) ensureCollection(ctx context.Context) error {
	r.onceInit.Do(func() {
		r.onceErr = r.index.EnsureCollection(ctx)
	})
	return r.onceErr
}

// Ingest runs the full pipeline for one PDF: parse, detect tables,
// rasterize pages, chunk, index, mirror into the docstore. Table and
// image extraction are best effort; indexing failures are fatal.
func (r *Retriever) Ingest(ctx context.Context, filePath, docName string, threadID int64) (*models.IngestResult, error) {
	start := time.Now()

	if docName == "" {
		docName = DocNameFromPath(filePath)
	}

	if err := r.ensureCollection(ctx); err != nil {
		return nil, fmt.Errorf("ensure collection: %w", err)
	}

	parsed, err := r.reader.Read(ctx, filePath)
	if err != nil {
		r.recordIngestion(start, "failed", 0, 0)
		return nil, fmt.Errorf("read pdf: %w", err)
	}

	tables := r.tables.ExtractTables(parsed)
	images := r.images.ExtractImages(ctx, filePath, parsed.PageCount)

	docs := r.chunker.BuildDocuments(docName, threadID, parsed.Pages, tables)
	if len(docs) == 0 {
		r.recordIngestion(start, "empty", 0, 0)
		return nil, fmt.Errorf("no indexable content in %s", docName)
	}

	written, err := r.index.Add(ctx, docs)
	if err != nil {
		r.recordIngestion(start, "failed", int64(written), 0)
		return nil, fmt.Errorf("index %s after %d chunks: %w", docName, written, err)
	}

	if err := r.docstore.MSet(ctx, docs); err != nil {
		// The index is the source of truth for retrieval; a stale
		// mirror is tolerable and logged.
		logger.Error("Docstore mirror failed", "doc", docName, "error", err)
	}

	tableCount := 0
	for _, d := range docs {
		if d.IsTable {
			tableCount++
		}
	}

	r.recordIngestion(start, "completed", int64(len(docs)), int64(tableCount))
	logger.Info("Document ingested",
		"doc", docName,
		"thread", threadID,
		"pages", parsed.PageCount,
		"chunks", len(docs),
		"tables", tableCount,
		"parser", parsed.ParserUsed,
	)

	return &models.IngestResult{
		DocName:    docName,
		Pages:      parsed.PageCount,
		ChunkCount: len(docs),
		TableCount: tableCount,
		ParserUsed: parsed.ParserUsed,
		PageImages: images,
	}, nil
}

// Retrieve returns the top-k chunks for a query within the thread
// scope. k <= 0 falls back to the configured default.
func (r *Retriever) Retrieve(ctx context.Context, query string, threadID int64, k int, includeShared bool) ([]models.RetrievedChunk, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("empty query")
	}
	if k <= 0 {
		k = r.topK
	}

	start := time.Now()
	results, err := r.index.Search(ctx, query, k, threadID, includeShared)
	if err != nil {
		return nil, err
	}

	if r.metrics != nil {
		r.metrics.RecordRetrieval(time.Since(start).Seconds(), len(results))
	}
	return results, nil
}

// DeleteAllVectors wipes the index and the docstore mirror.
func (r *Retriever) DeleteAllVectors(ctx context.Context) error {
	if err := r.index.DeleteAll(ctx); err != nil {
		return err
	}
	return r.docstore.DeleteAll(ctx)
}

func (r *Retriever) recordIngestion(start time.Time, status string, chunks, tables int64) {
	if r.metrics != nil {
		r.metrics.RecordIngestion(time.Since(start).Seconds(), status, chunks, tables)
	}
}

// DocNameFromPath derives the document name used in chunk ids from a
// file path, stripping the extension.
func DocNameFromPath(filePath string) string {
	base := filepath.Base(filePath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
