// Package index adapts Postgres/pgvector as a collection-oriented vector
// database: upsert, cosine search with payload filtering, delete by
// document.
package index

import (
	"context"
	"crypto/md5"
	"fmt"

	"github.com/google/uuid"
)

// CollectionRegulatory holds the indexed regulatory corpus.
const CollectionRegulatory = "vec_regulatory"

// Payload is the metadata carried alongside each vector so retrieval can
// return ranked chunks without a second lookup.
type Payload struct {
	DocID    string `json:"doc_id"`
	ChunkID  string `json:"chunk_id"`
	DocTitle string `json:"doc_title"`
	Code     string `json:"code"`
	Category string `json:"category"`
	Type     string `json:"type"`
	Section  string `json:"section"`
	Page     int    `json:"page"`
	Content  string `json:"content"`
}

type Point struct {
	ID      uuid.UUID
	Vector  []float32
	Payload Payload
}

type Hit struct {
	ID      uuid.UUID
	Score   float64
	Payload Payload
}

// Filter narrows a search to one document or category.
type Filter struct {
	DocID    string
	Category string
}

// VectorIndex is the vector database contract consumed by the pipeline.
type VectorIndex interface {
	EnsureCollection(ctx context.Context, collection string, dimension int) error
	Upsert(ctx context.Context, collection string, points []Point) error
	Search(ctx context.Context, collection string, vector []float32, k int, filter *Filter) ([]Hit, error)
	DeleteByDocument(ctx context.Context, collection string, docID uuid.UUID) error
	CountByDocument(ctx context.Context, collection string, docID uuid.UUID) (int, error)
}

// PointID derives the deterministic vector id from document and chunk
// identity, so re-ingestion upserts instead of duplicating.
func PointID(docID uuid.UUID, chunkID string) uuid.UUID {
	hash := md5.Sum([]byte(docID.String() + "|" + chunkID))
	id, _ := uuid.Parse(fmt.Sprintf("%x", hash))
	return id
}
