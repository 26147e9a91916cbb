package config

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func ConnectMongoDB(cfg *Config) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %v", err)
	}

	// Test connection
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %v", err)
	}

	if err := createIndexes(client, cfg.DBName); err != nil {
		return nil, fmt.Errorf("failed to create indexes: %v", err)
	}

	return client, nil
}

func createIndexes(client *mongo.Client, dbName string) error {
	db := client.Database(dbName)

	usersCollection := db.Collection("users")
	userIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}
	_, err := usersCollection.Indexes().CreateMany(context.Background(), userIndexes)
	if err != nil {
		return err
	}

	threadsCollection := db.Collection("threads")
	threadIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "thread_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "owner_id", Value: 1}},
		},
	}
	_, err = threadsCollection.Indexes().CreateMany(context.Background(), threadIndexes)
	if err != nil {
		return err
	}

	chatsCollection := db.Collection("chats")
	chatIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "thread_id", Value: 1}, {Key: "sent_at", Value: 1}},
		},
	}
	_, err = chatsCollection.Indexes().CreateMany(context.Background(), chatIndexes)
	if err != nil {
		return err
	}

	pdfsCollection := db.Collection("pdfs")
	pdfIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "thread_id", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "thread_id", Value: 1}, {Key: "file_hash", Value: 1}},
		},
	}
	_, err = pdfsCollection.Indexes().CreateMany(context.Background(), pdfIndexes)
	if err != nil {
		return err
	}

	// docstore keys by _id (doc_id) so no extra index is needed; the
	// collection just has to exist for yield_keys scans.
	return nil
}
