package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"financial-qa-platform/internal/ai"
	"financial-qa-platform/internal/config"
	"financial-qa-platform/internal/logger"
	"financial-qa-platform/services"
)

// vectoradmin performs maintenance against the vector index. The only
// destructive command, delete-vectors, asks for confirmation on stdin
// unless -yes is passed.
func main() {
	yes := flag.Bool("yes", false, "skip the interactive confirmation")
	flag.Parse()

	command := flag.Arg(0)
	if command == "" {
		fmt.Fprintln(os.Stderr, "usage: vectoradmin [-yes] <list-keys|delete-vectors>")
		os.Exit(2)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger.InitLogger(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	mongoClient, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer mongoClient.Disconnect(ctx)
	docstore := services.NewMongoDocStore(mongoClient.Database(cfg.DBName))

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
		docstore,
		nil,
		cfg.RetrieveK,
	)

	switch command {
	case "list-keys":
		keys, err := docstore.YieldKeys(ctx)
		if err != nil {
			log.Fatal("Failed to list keys:", err)
		}
		for _, key := range keys {
			fmt.Println(key)
		}
		fmt.Fprintf(os.Stderr, "%d keys\n", len(keys))

	case "delete-vectors":
		if !*yes && !confirm(cfg.QdrantCollection) {
			fmt.Println("Aborted.")
			return
		}
		if err := retriever.DeleteAllVectors(ctx); err != nil {
			log.Fatal("Failed to delete vectors:", err)
		}
		fmt.Printf("Collection %q wiped and recreated; docstore cleared.\n", cfg.QdrantCollection)

	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", command)
		os.Exit(2)
	}
}

func confirm(collection string) bool {
	fmt.Printf("This deletes ALL vectors in collection %q and clears the docstore.\nType 'yes' to continue: ", collection)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	return strings.TrimSpace(line) == "yes"
}
