package service

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"regcheck/loader/internal"
	"regcheck/pipeline"
	"regcheck/types"
)

// Service watches a directory for extracted regulatory texts and feeds them
// through the ingestion pipeline. Processed files go to the archive
// directory, failed ones to the bad directory.
type Service struct {
	logger   *slog.Logger
	watcher  *internal.Watcher
	ingestor *pipeline.Ingestor
	category string
}

func New(watcher *internal.Watcher, ingestor *pipeline.Ingestor, category string) *Service {
	return &Service{
		logger:   slog.Default(),
		watcher:  watcher,
		ingestor: ingestor,
		category: category,
	}
}

func (s *Service) Stop() {
	s.logger.Info("Loader Service stopped")
}

func (s *Service) Run() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fileChan := make(chan string, 10)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(fileChan)
		s.watcher.WatchFile(ctx, fileChan)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.ingestFiles(ctx, fileChan)
	}()

	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, os.Interrupt, syscall.SIGTERM)

	<-sigch
	log.Println("Received shutdown signal, shutting down gracefully...")

	cancel()
	signal.Stop(sigch)
	close(sigch)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("All goroutines stopped successfully")
	case <-shutdownCtx.Done():
		log.Println("Timeout waiting for goroutines to stop, forcing shutdown...")
	}

	s.Stop()
}

func (s *Service) ingestFiles(ctx context.Context, fileChan <-chan string) {
	defer fmt.Println("File processor stopped and cleaned up")

	for {
		select {
		case <-ctx.Done():
			fmt.Println("Stopping file processor (context cancelled)...")
			return
		case filePath, ok := <-fileChan:
			if !ok {
				fmt.Println("File channel closed, stopping processor...")
				return
			}

			fmt.Printf("Processing file: %s\n", filePath)
			err := s.ingestFile(ctx, filePath)

			if ctx.Err() != nil {
				// Interrupted mid-file: leave it in source for the next run.
				fmt.Printf("Ingestion interrupted: %s\n", filePath)
				s.watcher.Release(filePath)
				return
			}

			if err != nil {
				fmt.Printf("Error processing file %s: %v\n", filePath, err)
				s.watcher.MoveToArchive(filePath, true)
			} else {
				s.watcher.MoveToArchive(filePath, false)
			}
			s.watcher.Release(filePath)
		}
	}
}

func (s *Service) ingestFile(ctx context.Context, filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("error reading %s: %w", filepath.Base(filePath), err)
	}

	id := internal.DocumentID(filePath)
	params := types.IngestParams{
		Title:    internal.Title(filePath),
		Category: s.category,
		Text:     string(data),
	}

	status, err := s.ingestor.IngestRegulatoryDocument(ctx, id, params)
	if err != nil {
		return err
	}
	log.Printf("[LOADER] document %s (%s) ingested with status %s", id, params.Title, status)
	return nil
}
