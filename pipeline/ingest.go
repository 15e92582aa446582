package pipeline

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"sync"
	"time"

	"regcheck/chunker"
	"regcheck/index"
	"regcheck/model"
	"regcheck/store"
	"regcheck/types"

	"github.com/google/uuid"
)

// codePattern extracts a normative code like "DBN B.2.6-31" or "EN 1992-1-1"
// from a document title.
var codePattern = regexp.MustCompile(`\b([A-Z]{2,5})\s?([A-Z]?\.?\d[\d.\-:]*)\b`)

// Ingestor indexes regulatory documents: chunk, embed, mirror, upsert.
type Ingestor struct {
	store       store.Storer
	vectorIndex index.VectorIndex
	embedder    model.Embedder
	chunker     *chunker.Chunker

	// mu guards inFlight: one writer per document id, concurrent ingestion
	// of different documents is fine.
	mu       sync.Mutex
	inFlight map[uuid.UUID]bool
}

func NewIngestor(storer store.Storer, vectorIndex index.VectorIndex, embedder model.Embedder, c *chunker.Chunker) *Ingestor {
	return &Ingestor{
		store:       storer,
		vectorIndex: vectorIndex,
		embedder:    embedder,
		chunker:     c,
		inFlight:    make(map[uuid.UUID]bool),
	}
}

// IngestRegulatoryDocument indexes one regulatory document. Re-ingestion of
// the same id is idempotent: chunk ids are derived from (id, position) and
// the old rows are dropped before the new set is written. The document's
// status field tracks progress so callers never depend on a detached task.
func (ing *Ingestor) IngestRegulatoryDocument(ctx context.Context, id uuid.UUID, params types.IngestParams) (types.ProcessingStatus, error) {
	if errs := types.Validate(&params); len(errs) > 0 {
		return types.StatusError, types.NewValidationError(errs)
	}

	if !ing.acquire(id) {
		return types.StatusProcessing, fmt.Errorf("ingestion already in progress for document %s", id)
	}
	defer ing.release(id)

	now := time.Now()
	doc := types.RegulatoryDocument{
		ID:        id,
		Title:     params.Title,
		Code:      ExtractCode(params.Title),
		Category:  params.Category,
		Status:    types.StatusProcessing,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := ing.store.SaveRegulatoryDocument(ctx, doc); err != nil {
		return types.StatusError, fmt.Errorf("error saving regulatory document: %w", err)
	}

	count, err := ing.reindex(ctx, doc, params.Text)
	status := types.StatusCompleted
	if err != nil {
		status = types.StatusError
	}
	if stErr := ing.store.SetRegulatoryStatus(ctx, id, status, count); stErr != nil {
		log.Printf("[INGEST] failed to update status for %s: %v", id, stErr)
	}
	return status, err
}

func (ing *Ingestor) reindex(ctx context.Context, doc types.RegulatoryDocument, text string) (int, error) {
	chunks := ing.chunker.Split(doc.ID, text)
	log.Printf("[INGEST] document %s split into %d chunks", doc.ID, len(chunks))

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	// Embed before touching either store, so a model outage leaves the
	// previous index intact.
	vectors, err := ing.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("error embedding chunks: %w", err)
	}

	if err := ing.vectorIndex.DeleteByDocument(ctx, index.CollectionRegulatory, doc.ID); err != nil {
		return 0, fmt.Errorf("error clearing vector index: %w", err)
	}
	if err := ing.store.DeleteChunksByDocID(ctx, doc.ID); err != nil {
		return 0, fmt.Errorf("error clearing chunk mirror: %w", err)
	}

	if err := ing.store.SaveChunks(ctx, chunks); err != nil {
		return 0, fmt.Errorf("error saving chunk mirror: %w", err)
	}

	points := make([]index.Point, len(chunks))
	for i, c := range chunks {
		points[i] = index.Point{
			ID:     index.PointID(doc.ID, c.ChunkID),
			Vector: vectors[i],
			Payload: index.Payload{
				DocID:    doc.ID.String(),
				ChunkID:  c.ChunkID,
				DocTitle: doc.Title,
				Code:     doc.Code,
				Category: doc.Category,
				Type:     string(c.Type),
				Section:  c.Section,
				Page:     c.Page,
				Content:  c.Content,
			},
		}
	}
	if err := ing.vectorIndex.Upsert(ctx, index.CollectionRegulatory, points); err != nil {
		return 0, fmt.Errorf("error upserting vectors: %w", err)
	}
	return len(chunks), nil
}

// DeleteRegulatoryDocument clears a document from the vector index and the
// relational mirror as one unit of work, then verifies both sides agree.
func (ing *Ingestor) DeleteRegulatoryDocument(ctx context.Context, id uuid.UUID) (bool, error) {
	if !ing.acquire(id) {
		return false, fmt.Errorf("ingestion in progress for document %s", id)
	}
	defer ing.release(id)

	if err := ing.vectorIndex.DeleteByDocument(ctx, index.CollectionRegulatory, id); err != nil {
		return false, fmt.Errorf("error deleting from vector index: %w", err)
	}
	if err := ing.store.DeleteChunksByDocID(ctx, id); err != nil {
		// Vector side already cleared: surface the split state instead of
		// papering over it.
		return false, fmt.Errorf("error deleting chunk mirror (vector side already cleared): %w", err)
	}

	found, err := ing.store.DeleteRegulatoryDocument(ctx, id)
	if err != nil {
		return false, err
	}

	if err := ing.Reconcile(ctx, id); err != nil {
		return found, err
	}
	return found, nil
}

// Reconcile compares chunk counts between the vector index and the
// relational mirror. Any discrepancy is an explicit inconsistency, never
// silently tolerated.
func (ing *Ingestor) Reconcile(ctx context.Context, id uuid.UUID) error {
	vecRows, err := ing.vectorIndex.CountByDocument(ctx, index.CollectionRegulatory, id)
	if err != nil {
		return fmt.Errorf("error counting vector rows: %w", err)
	}
	mirrorRows, err := ing.store.CountChunksByDocID(ctx, id)
	if err != nil {
		return fmt.Errorf("error counting mirror rows: %w", err)
	}

	if vecRows != mirrorRows {
		return types.IndexInconsistencyError{
			DocID:      id.String(),
			VectorRows: vecRows,
			MirrorRows: mirrorRows,
		}
	}
	return nil
}

func (ing *Ingestor) acquire(id uuid.UUID) bool {
	ing.mu.Lock()
	defer ing.mu.Unlock()
	if ing.inFlight[id] {
		return false
	}
	ing.inFlight[id] = true
	return true
}

func (ing *Ingestor) release(id uuid.UUID) {
	ing.mu.Lock()
	defer ing.mu.Unlock()
	delete(ing.inFlight, id)
}

// ExtractCode pulls the normative code out of a document title, e.g.
// "DBN B.2.6-31 Thermal insulation of buildings" -> "DBN B.2.6-31".
func ExtractCode(title string) string {
	if m := codePattern.FindString(title); m != "" {
		return m
	}
	return ""
}
