package routes

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"financial-qa-platform/internal/ai"
	"financial-qa-platform/middleware"
	"financial-qa-platform/models"
	"financial-qa-platform/services"
	"financial-qa-platform/utils"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

const noContextAnswer = "No relevant data found in the documents for this thread. Try uploading the report you are asking about, or widen the search to shared documents."

func SetupQueryRoutes(router *gin.Engine, db *mongo.Database, retriever *services.Retriever, gemini *ai.GeminiClient, exporter *services.ExportService, authMw *middleware.AuthMiddleware) {
	threadsCollection := db.Collection("threads")
	chatsCollection := db.Collection("chats")

	router.POST("/query", authMw.RequireAuth(), func(c *gin.Context) {
		var req models.QueryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		ctx := c.Request.Context()
		if !ownsThread(ctx, threadsCollection, req.ThreadID, middleware.GetUserID(c)) {
			utils.RespondWithForbidden(c, "Thread does not belong to you")
			return
		}

		chunks, err := retriever.Retrieve(ctx, req.Query, req.ThreadID, req.K, req.IncludeShared)
		if err != nil {
			utils.RespondWithInternalError(c, "Retrieval failed", gin.H{"error": err.Error()})
			return
		}

		answer := noContextAnswer
		if len(chunks) > 0 {
			contexts := make([]string, len(chunks))
			for i, chunk := range chunks {
				contexts[i] = fmt.Sprintf("[%s, page %d]\n%s", chunk.DocName, chunk.PageNumber, chunk.Content)
			}

			answer, err = gemini.GenerateAnswer(ctx, req.Query, contexts)
			if err != nil {
				utils.RespondWithInternalError(c, "Answer generation failed", gin.H{"error": err.Error()})
				return
			}
		}

		now := time.Now()
		_, _ = chatsCollection.InsertOne(ctx, models.Chat{
			ThreadID: req.ThreadID,
			Sender:   middleware.GetUsername(c),
			Content:  req.Query,
			SentAt:   now,
		})

		botMsg := models.Chat{
			ThreadID: req.ThreadID,
			Sender:   "bot",
			Content:  answer,
			SentAt:   now.Add(time.Millisecond),
		}
		insertRes, err := chatsCollection.InsertOne(ctx, botMsg)
		messageID := ""
		if err == nil {
			if oid, ok := insertRes.InsertedID.(primitive.ObjectID); ok {
				messageID = oid.Hex()
			}
		}

		c.JSON(http.StatusOK, models.QueryResponse{
			Query:     req.Query,
			Response:  answer,
			Sources:   chunks,
			MessageID: messageID,
		})
	})

	router.GET("/threads/:thread_id/export", authMw.RequireAuth(), func(c *gin.Context) {
		threadID, err := strconv.ParseInt(c.Param("thread_id"), 10, 64)
		if err != nil {
			utils.RespondWithBadRequest(c, "Invalid thread id", nil)
			return
		}

		ctx := c.Request.Context()
		if !ownsThread(ctx, threadsCollection, threadID, middleware.GetUserID(c)) {
			utils.RespondWithForbidden(c, "Thread does not belong to you")
			return
		}

		buf, err := exporter.ExportThreadTables(ctx, threadID)
		if err != nil {
			utils.RespondWithNotFound(c, err.Error())
			return
		}

		filename := fmt.Sprintf("thread_%d_tables.xlsx", threadID)
		c.Header("Content-Disposition", "attachment; filename="+filename)
		c.Data(http.StatusOK,
			"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
			buf.Bytes())
	})
}
