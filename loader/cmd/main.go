package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"regcheck/chunker"
	"regcheck/index"
	"regcheck/loader/internal"
	"regcheck/loader/service"
	"regcheck/model"
	"regcheck/pipeline"
	"regcheck/store"
	"regcheck/types"

	"github.com/joho/godotenv"
)

func init() {
	mustLoadEnvVariables()
}

func main() {
	ctx := context.Background()
	cfg := types.LoadConfig()

	port, _ := strconv.Atoi(os.Getenv("PG_PORT"))
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable", os.Getenv("PG_HOST"), port, os.Getenv("PG_USER"), os.Getenv("PG_PASS"), os.Getenv("PG_DB_NAME"))
	pool, err := store.NewPostgresStore(ctx, connStr)
	if err != nil {
		log.Fatal("error to connect to Postgres database", err)
		return
	}

	if err := pool.Init(ctx); err != nil {
		log.Fatal("error to create tables", err)
		return
	}

	dimension, _ := strconv.Atoi(os.Getenv("EMBED_DIMENSION"))
	if dimension == 0 {
		dimension = 1024
	}
	embedder := model.NewOllamaEmbedder(os.Getenv("EMBED_API_URL"), os.Getenv("EMBED_MODEL"), dimension)

	vectorIndex := index.NewPgVectorIndex(pool.Pool())
	if err := vectorIndex.EnsureCollection(ctx, index.CollectionRegulatory, dimension); err != nil {
		log.Fatal("error to prepare vector collection", err)
		return
	}

	monitoring, _ := strconv.Atoi(os.Getenv("LOADER_MONITORING_SEC"))
	watcher, err := internal.NewWatcher(internal.Config{
		SourceDir:      os.Getenv("LOADER_SOURCE_DIR"),
		ArchiveDir:     os.Getenv("LOADER_ARCHIVE_DIR"),
		BadDir:         os.Getenv("LOADER_BAD_DIR"),
		MonitoringTime: time.Duration(monitoring) * time.Second,
	})
	if err != nil {
		log.Fatal("error to prepare loader directories", err)
		return
	}

	ingestor := pipeline.NewIngestor(pool, vectorIndex, embedder, chunker.New(cfg.MinChunkLength))

	service.New(watcher, ingestor, os.Getenv("LOADER_CATEGORY")).Run()

	log.Println("Closing database connection pool...")
	pool.Close()
	log.Println("Database connection pool closed")
}

func mustLoadEnvVariables() {
	err := godotenv.Load()
	if err != nil {
		log.Fatal("Error loading .env file")
	}
}
