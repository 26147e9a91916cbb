package routes

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"financial-qa-platform/internal/config"
	"financial-qa-platform/internal/logger"
	"financial-qa-platform/internal/queue"
	"financial-qa-platform/middleware"
	"financial-qa-platform/models"
	"financial-qa-platform/services"
	"financial-qa-platform/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

func SetupUploadRoutes(router *gin.Engine, cfg *config.Config, db *mongo.Database, retriever *services.Retriever, taskClient *asynq.Client, authMw *middleware.AuthMiddleware) {
	pdfsCollection := db.Collection("pdfs")
	threadsCollection := db.Collection("threads")

	stagingDir := filepath.Join(cfg.FileStorageDir, "staging")
	if err := os.MkdirAll(stagingDir, 0o750); err != nil {
		logger.Error("Failed to create staging dir", "dir", stagingDir, "error", err)
	}

	router.POST("/upload", authMw.RequireAuth(), func(c *gin.Context) {
		fileHeader, err := c.FormFile("file")
		if err != nil {
			utils.RespondWithBadRequest(c, "A PDF file is required", nil)
			return
		}
		if fileHeader.Size > cfg.MaxFileSize {
			utils.RespondWithBadRequest(c, "File exceeds the maximum allowed size", gin.H{"max_bytes": cfg.MaxFileSize})
			return
		}
		if !strings.EqualFold(filepath.Ext(fileHeader.Filename), ".pdf") {
			utils.RespondWithBadRequest(c, "Only PDF files are accepted", nil)
			return
		}

		threadID := models.SharedThreadID
		if raw := c.PostForm("thread_id"); raw != "" {
			threadID, err = strconv.ParseInt(raw, 10, 64)
			if err != nil {
				utils.RespondWithBadRequest(c, "Invalid thread id", nil)
				return
			}
		}

		ctx := c.Request.Context()
		if threadID != models.SharedThreadID &&
			!ownsThread(ctx, threadsCollection, threadID, middleware.GetUserID(c)) {
			utils.RespondWithForbidden(c, "Thread does not belong to you")
			return
		}

		stagedPath := filepath.Join(stagingDir, uuid.NewString()+".pdf")
		if err := c.SaveUploadedFile(fileHeader, stagedPath); err != nil {
			utils.RespondWithInternalError(c, "Failed to store upload", nil)
			return
		}

		if !isPDFFile(stagedPath) {
			os.Remove(stagedPath)
			utils.RespondWithBadRequest(c, "File content is not a valid PDF", nil)
			return
		}

		fileHash, err := utils.FileMD5(stagedPath)
		if err != nil {
			os.Remove(stagedPath)
			utils.RespondWithInternalError(c, "Failed to hash upload", nil)
			return
		}

		// Same content in the same thread is a no-op.
		var dup models.PDF
		if err := pdfsCollection.FindOne(ctx, bson.M{"thread_id": threadID, "file_hash": fileHash}).Decode(&dup); err == nil {
			os.Remove(stagedPath)
			c.JSON(http.StatusOK, models.UploadResponse{
				ID:      dup.ID.Hex(),
				DocName: dup.DocName,
				Status:  dup.Status,
				Message: "Document already ingested for this thread",
			})
			return
		}

		docName := services.DocNameFromPath(fileHeader.Filename)
		ownerID, _ := primitive.ObjectIDFromHex(middleware.GetUserID(c))

		record := models.PDF{
			DocName:      docName,
			OriginalName: fileHeader.Filename,
			FilePath:     stagedPath,
			FileHash:     fileHash,
			ThreadID:     threadID,
			OwnerID:      ownerID,
			Status:       models.StatusPending,
			UploadedAt:   time.Now(),
			Metadata:     models.PDFMetadata{Size: fileHeader.Size},
		}

		insertRes, err := pdfsCollection.InsertOne(ctx, record)
		if err != nil {
			os.Remove(stagedPath)
			utils.RespondWithInternalError(c, "Failed to record upload", nil)
			return
		}
		uploadID := insertRes.InsertedID.(primitive.ObjectID).Hex()

		// Small files block the request; large ones go to the worker.
		if fileHeader.Size <= cfg.SyncProcessingLimit {
			result, err := retriever.Ingest(ctx, stagedPath, docName, threadID)
			if err != nil {
				markUpload(c, pdfsCollection, uploadID, models.StatusFailed, nil)
				os.Remove(stagedPath)
				utils.RespondWithInternalError(c, "Ingestion failed", gin.H{"error": err.Error()})
				return
			}
			markUpload(c, pdfsCollection, uploadID, models.StatusCompleted, result)
			os.Remove(stagedPath)

			c.JSON(http.StatusOK, models.UploadResponse{
				ID:         uploadID,
				DocName:    docName,
				Status:     models.StatusCompleted,
				ChunkCount: result.ChunkCount,
				Message:    "Document ingested",
			})
			return
		}

		task, err := queue.NewPDFIngestTask(uploadID, threadID, docName, stagedPath)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to build ingestion task", nil)
			return
		}
		info, err := taskClient.Enqueue(task)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to enqueue ingestion", nil)
			return
		}

		c.JSON(http.StatusAccepted, models.UploadResponse{
			ID:      uploadID,
			DocName: docName,
			Status:  models.StatusPending,
			TaskID:  info.ID,
			Message: "Document queued for ingestion",
		})
	})

	router.GET("/uploads/:id", authMw.RequireAuth(), func(c *gin.Context) {
		oid, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			utils.RespondWithBadRequest(c, "Invalid upload id", nil)
			return
		}

		var record models.PDF
		if err := pdfsCollection.FindOne(c.Request.Context(), bson.M{"_id": oid}).Decode(&record); err != nil {
			utils.RespondWithNotFound(c, "Upload not found")
			return
		}

		ownerID, _ := primitive.ObjectIDFromHex(middleware.GetUserID(c))
		if record.OwnerID != ownerID {
			utils.RespondWithForbidden(c, "Upload does not belong to you")
			return
		}

		c.JSON(http.StatusOK, record)
	})
}

// isPDFFile checks the magic bytes, not just the extension.
func isPDFFile(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	header := make([]byte, 5)
	if _, err := io.ReadFull(f, header); err != nil {
		return false
	}
	return string(header) == "%PDF-"
}

func markUpload(c *gin.Context, pdfs *mongo.Collection, uploadID, status string, result *models.IngestResult) {
	oid, err := primitive.ObjectIDFromHex(uploadID)
	if err != nil {
		return
	}

	set := bson.M{"status": status}
	if status == models.StatusCompleted && result != nil {
		now := time.Now()
		set["processed_at"] = now
		set["metadata.pages"] = result.Pages
		set["metadata.chunk_count"] = result.ChunkCount
		set["metadata.table_count"] = result.TableCount
		set["metadata.parser_used"] = result.ParserUsed
		set["page_images"] = result.PageImages
	}

	if _, err := pdfs.UpdateOne(c.Request.Context(), bson.M{"_id": oid}, bson.M{"$set": set}); err != nil {
		logger.Error("Failed to update upload status", "upload", uploadID, "status", status, "error", err)
	}
}
