package server

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"

	"regcheck/app/api"
	"regcheck/app/middleware"
	"regcheck/chunker"
	"regcheck/index"
	"regcheck/model"
	"regcheck/pipeline"
	"regcheck/retriever"
	"regcheck/store"
	"regcheck/types"

	"github.com/gofiber/fiber/v2"
)

var config = fiber.Config{
	ErrorHandler: api.ErrorHandler,
}

type Server struct {
	listenAddr string
	logger     *slog.Logger
}

func NewServer(addr string) *Server {
	return &Server{
		listenAddr: addr,
		logger:     slog.Default(),
	}
}

func (s *Server) Stop() {
	s.logger.Info("server stopped")
}

func (s *Server) Run() {
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
	generator := model.NewOllamaClient(os.Getenv("LLM_API_URL"), os.Getenv("LLM_MODEL"))

	vectorIndex := index.NewPgVectorIndex(pool.Pool())
	if err := vectorIndex.EnsureCollection(ctx, index.CollectionRegulatory, dimension); err != nil {
		log.Fatal("error to prepare vector collection", err)
		return
	}

	ingestor := pipeline.NewIngestor(pool, vectorIndex, embedder, chunker.New(cfg.MinChunkLength))
	contextRetriever := retriever.New(embedder, vectorIndex, pool, cfg.MinRelevance)
	analyzer := pipeline.NewAnalyzer(contextRetriever, generator, cfg)
	runner := pipeline.NewRunner(pool, analyzer, cfg.Workers)

	var (
		app               = fiber.New(config)
		checkHandler      = api.NewCheckHandler()
		regulatoryHandler = api.NewRegulatoryHandler(ingestor)
		complianceHandler = api.NewComplianceHandler(runner, pool)
		check             = app.Group("/check")
		apiv1             = app.Group("/api/v1")
	)

	app.Use(middleware.RequestLogger())

	check.Get("/healthy", checkHandler.HandleHealthy)

	apiv1.Post("/regulatory", regulatoryHandler.HandleIngest)
	apiv1.Delete("/regulatory/:id", regulatoryHandler.HandleDelete)
	apiv1.Get("/regulatory/:id/reconcile", regulatoryHandler.HandleReconcile)

	apiv1.Post("/documents", complianceHandler.HandleSubmit)
	apiv1.Post("/documents/:id/check", complianceHandler.HandleRunCheck)
	apiv1.Get("/documents/:id/run", complianceHandler.HandleLatestRun)
	apiv1.Get("/documents/:id/report", complianceHandler.HandleReport)

	err = app.Listen(s.listenAddr)
	if err != nil {
		s.logger.Error("error to start server", "error", err.Error())
		return
	}
}
