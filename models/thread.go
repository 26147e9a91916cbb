package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Thread is one conversation. Its numeric ThreadID doubles as the
// retrieval scope: documents uploaded to the thread are only visible to
// queries in that thread (plus the shared pool when the caller widens scope).
type Thread struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ThreadID   int64              `bson:"thread_id" json:"thread_id"`
	OwnerID    primitive.ObjectID `bson:"owner_id" json:"owner_id"`
	ThreadName string             `bson:"thread_name" json:"thread_name"`
	ThreadType string             `bson:"thread_type" json:"thread_type"`
	CreatedAt  time.Time          `bson:"created_at" json:"created_at"`
}

// Chat is one message inside a thread, from either the user or the bot.
type Chat struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ThreadID int64              `bson:"thread_id" json:"thread_id"`
	Sender   string             `bson:"sender" json:"sender"` // username or "bot"
	Content  string             `bson:"content" json:"content"`
	SentAt   time.Time          `bson:"sent_at" json:"sent_at"`
}

type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Username     string             `bson:"username" json:"username"`
	Email        string             `bson:"email,omitempty" json:"email,omitempty"`
	PasswordHash string             `bson:"password_hash" json:"-"`
	CreatedAt    time.Time          `bson:"created_at" json:"created_at"`
}

type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=50,alphanum"`
	Email    string `json:"email" binding:"omitempty,email"`
	Password string `json:"password" binding:"required,min=8,max=128"`
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type CreateThreadRequest struct {
	ThreadName string `json:"thread_name" binding:"required,min=1,max=200"`
	ThreadType string `json:"thread_type" binding:"required,oneof=chat analysis"`
}

// QueryRequest is the body of POST /query.
type QueryRequest struct {
	Query    string `json:"query" binding:"required,min=1"`
	ThreadID int64  `json:"thread_id" binding:"required"`
	// When true, the search also admits documents from the shared pool
	// (thread 0). Scope-widening is always the caller's decision.
	IncludeShared bool `json:"include_shared"`
	K             int  `json:"k"`
}

// QueryResponse mirrors the original API shape: the generated answer
// plus the retrieved context the agent grounded it on.
type QueryResponse struct {
	Query     string           `json:"query"`
	Response  string           `json:"response"`
	Sources   []RetrievedChunk `json:"sources"`
	MessageID string           `json:"message_id"`
}
