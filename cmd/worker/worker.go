package main

import (
	"context"
	"log"
	"time"

	"financial-qa-platform/internal/ai"
	"financial-qa-platform/internal/config"
	"financial-qa-platform/internal/logger"
	"financial-qa-platform/internal/queue"
	"financial-qa-platform/services"

	"github.com/hibiken/asynq"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)

	// Connect to MongoDB
	mongoClient, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mongoClient.Disconnect(ctx)
	}()
	db := mongoClient.Database(cfg.DBName)

	// Embedder + retrieval pipeline (no LLM needed for ingestion)
	ctx := context.Background()
	embedder, err := ai.NewGeminiEmbedder(ctx, cfg)
	if err != nil {
		log.Fatal("Failed to init embedder:", err)
	}
	defer embedder.Close()

	index, err := services.NewVectorIndex(cfg, embedder)
	if err != nil {
		log.Fatal("Failed to init vector index:", err)
	}
	defer index.Close()

	retriever := services.NewRetriever(
		services.NewPDFReader(),
		services.NewTableExtractor(),
		services.NewImageExtractor(),
		services.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap),
		index,
		services.NewMongoDocStore(db),
		nil,
		cfg.RetrieveK,
	)

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 4, // ingestion is CPU and API heavy
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			StrictPriority: true,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("Task failed", "type", task.Type(), "error", err)
			}),
		},
	)

	processor := queue.NewTaskProcessor(retriever, db)

	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskIngestPDF, processor.ProcessPDFIngest)

	logger.Info("Starting ingestion worker", "redis", redisOpt.Addr, "concurrency", 4)

	if err := server.Run(mux); err != nil {
		log.Fatal("Failed to start worker:", err)
	}
}
