package routes

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"financial-qa-platform/middleware"
	"financial-qa-platform/models"
	"financial-qa-platform/utils"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func SetupThreadRoutes(router *gin.Engine, db *mongo.Database, authMw *middleware.AuthMiddleware) {
	group := router.Group("/threads")
	group.Use(authMw.RequireAuth())

	threadsCollection := db.Collection("threads")
	chatsCollection := db.Collection("chats")

	group.POST("", func(c *gin.Context) {
		var req models.CreateThreadRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		ownerID, err := primitive.ObjectIDFromHex(middleware.GetUserID(c))
		if err != nil {
			utils.RespondWithUnauthorized(c, "Invalid user")
			return
		}

		ctx := c.Request.Context()
		threadID, err := nextThreadID(ctx, db)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to allocate thread id", nil)
			return
		}

		thread := models.Thread{
			ThreadID:   threadID,
			OwnerID:    ownerID,
			ThreadName: req.ThreadName,
			ThreadType: req.ThreadType,
			CreatedAt:  time.Now(),
		}

		if _, err := threadsCollection.InsertOne(ctx, thread); err != nil {
			utils.RespondWithInternalError(c, "Failed to create thread", nil)
			return
		}

		c.JSON(http.StatusCreated, thread)
	})

	group.GET("", func(c *gin.Context) {
		ownerID, err := primitive.ObjectIDFromHex(middleware.GetUserID(c))
		if err != nil {
			utils.RespondWithUnauthorized(c, "Invalid user")
			return
		}

		ctx := c.Request.Context()
		cursor, err := threadsCollection.Find(ctx,
			bson.M{"owner_id": ownerID},
			options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to list threads", nil)
			return
		}
		defer cursor.Close(ctx)

		threads := []models.Thread{}
		if err := cursor.All(ctx, &threads); err != nil {
			utils.RespondWithInternalError(c, "Failed to decode threads", nil)
			return
		}

		c.JSON(http.StatusOK, gin.H{"threads": threads})
	})

	group.GET("/:thread_id/chats", func(c *gin.Context) {
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

		cursor, err := chatsCollection.Find(ctx,
			bson.M{"thread_id": threadID},
			options.Find().SetSort(bson.D{{Key: "sent_at", Value: 1}}))
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to list chats", nil)
			return
		}
		defer cursor.Close(ctx)

		chats := []models.Chat{}
		if err := cursor.All(ctx, &chats); err != nil {
			utils.RespondWithInternalError(c, "Failed to decode chats", nil)
			return
		}

		c.JSON(http.StatusOK, gin.H{"thread_id": threadID, "chats": chats})
	})

	group.DELETE("/:thread_id", func(c *gin.Context) {
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

		if _, err := threadsCollection.DeleteOne(ctx, bson.M{"thread_id": threadID}); err != nil {
			utils.RespondWithInternalError(c, "Failed to delete thread", nil)
			return
		}
		// Chats go with the thread. Indexed documents stay; the thread
		// filter already makes them unreachable.
		_, _ = chatsCollection.DeleteMany(ctx, bson.M{"thread_id": threadID})

		c.JSON(http.StatusOK, gin.H{"message": "thread deleted", "thread_id": threadID})
	})
}

// nextThreadID allocates a monotonically increasing thread id from a
// counters document. Starts at 1; id 0 is the shared pool.
func nextThreadID(ctx context.Context, db *mongo.Database) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}

	err := db.Collection("counters").FindOneAndUpdate(ctx,
		bson.M{"_id": "thread_id"},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, err
	}
	return counter.Seq, nil
}

func ownsThread(ctx context.Context, threads *mongo.Collection, threadID int64, userID string) bool {
	ownerID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return false
	}
	err = threads.FindOne(ctx, bson.M{"thread_id": threadID, "owner_id": ownerID}).Err()
	return err == nil
}
