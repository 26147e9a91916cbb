package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"financial-qa-platform/internal/ai"
	"financial-qa-platform/internal/auth"
	"financial-qa-platform/internal/config"
	"financial-qa-platform/internal/logger"
	"financial-qa-platform/internal/telemetry"
	"financial-qa-platform/middleware"
	"financial-qa-platform/routes"
	"financial-qa-platform/services"

	"github.com/gin-gonic/gin"
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

	// Redis: token revocation, rate limits, asynq broker
	rdb, err := config.NewRedisClient(cfg)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer rdb.Close()

	// Telemetry
	var metrics *telemetry.Metrics
	if cfg.TelemetryEnabled {
		shutdown, err := telemetry.InitTracer("financial-qa-platform", cfg.OTLPEndpoint)
		if err != nil {
			log.Fatal("Failed to init tracer:", err)
		}
		defer shutdown()

		metrics, err = telemetry.InitMetrics()
		if err != nil {
			log.Fatal("Failed to init metrics:", err)
		}
	}

	// AI clients
	ctx := context.Background()
	embedder, err := ai.NewGeminiEmbedder(ctx, cfg)
	if err != nil {
		log.Fatal("Failed to init embedder:", err)
	}
	defer embedder.Close()

	gemini, err := ai.NewGeminiClient(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiTier)
	if err != nil {
		log.Fatal("Failed to init Gemini client:", err)
	}
	defer gemini.Close()

	// Retrieval pipeline
	index, err := services.NewVectorIndex(cfg, embedder)
	if err != nil {
		log.Fatal("Failed to init vector index:", err)
	}
	defer index.Close()

	docstore := services.NewMongoDocStore(db)
	retriever := services.NewRetriever(
		services.NewPDFReader(),
		services.NewTableExtractor(),
		services.NewImageExtractor(),
		services.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap),
		index,
		docstore,
		metrics,
		cfg.RetrieveK,
	)
	exporter := services.NewExportService(docstore)

	// Auth
	tokens, err := auth.NewTokenManager(cfg.AccessSecret, cfg.RefreshSecret, rdb)
	if err != nil {
		log.Fatal("Failed to init token manager:", err)
	}

	// Asynq client for queued ingestion
	taskClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer taskClient.Close()

	// Background sweep of abandoned staged uploads
	cleanup := services.NewCleanupService(cfg.FileStorageDir + "/staging")
	go cleanup.Start()
	defer cleanup.Stop()

	// Router
	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.CORSMiddleware(cfg.CORSOrigins))
	router.Use(middleware.RateLimitMiddleware(rdb, cfg))
	if cfg.TelemetryEnabled {
		router.Use(middleware.TracingMiddleware())
		router.Use(middleware.EnrichTrace())
		router.Use(middleware.MetricsMiddleware(metrics))
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now()})
	})

	authMiddleware := middleware.NewAuthMiddleware(cfg, tokens)

	routes.SetupAuthRoutes(router, cfg, db, tokens)
	routes.SetupThreadRoutes(router, db, authMiddleware)
	routes.SetupQueryRoutes(router, db, retriever, gemini, exporter, authMiddleware)
	routes.SetupUploadRoutes(router, cfg, db, retriever, taskClient, authMiddleware)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("Server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	logger.Info("Server exited")
}
