// Package retriever ranks regulatory context for a query by combining
// dense-vector similarity with a lexical signal.
package retriever

import (
	"context"
	"fmt"
	"log"
	"sort"

	"regcheck/index"
	"regcheck/model"
	"regcheck/store"
	"regcheck/types"

	"github.com/google/uuid"
)

const (
	// DefaultTopK is the result budget when the caller passes none.
	DefaultTopK = 8
	// DefaultMinRelevance drops candidates below this combined score.
	DefaultMinRelevance = 0.3
	// lexicalWeight keeps the keyword signal a tie-break, never dominant.
	lexicalWeight = 0.1
)

// LexicalSearcher is the keyword leg over the relational mirror.
type LexicalSearcher interface {
	LexicalSearch(ctx context.Context, query string, limit int) ([]store.LexicalHit, error)
}

type Retriever struct {
	embedder     model.Embedder
	vectorIndex  index.VectorIndex
	lexical      LexicalSearcher
	minRelevance float64
}

func New(embedder model.Embedder, vectorIndex index.VectorIndex, lexical LexicalSearcher, minRelevance float64) *Retriever {
	if minRelevance <= 0 {
		minRelevance = DefaultMinRelevance
	}
	return &Retriever{
		embedder:     embedder,
		vectorIndex:  vectorIndex,
		lexical:      lexical,
		minRelevance: minRelevance,
	}
}

// Retrieve returns up to k regulatory chunks relevant to the query, ranked
// by combined score. Fewer than k results, or none at all, is a valid
// outcome distinct from an error.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int, filter *index.Filter) ([]types.RetrievedChunk, error) {
	if k <= 0 {
		k = DefaultTopK
	}

	queryVec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error embedding query: %w", err)
	}

	hits, err := r.vectorIndex.Search(ctx, index.CollectionRegulatory, queryVec, 2*k, filter)
	if err != nil {
		return nil, fmt.Errorf("error searching vector index: %w", err)
	}

	candidates := make(map[string]*types.RetrievedChunk, len(hits))
	for _, hit := range hits {
		docID, err := uuid.Parse(hit.Payload.DocID)
		if err != nil {
			continue
		}
		candidates[hit.Payload.ChunkID] = &types.RetrievedChunk{
			ChunkID:  hit.Payload.ChunkID,
			DocID:    docID,
			DocTitle: hit.Payload.DocTitle,
			Code:     hit.Payload.Code,
			Section:  hit.Payload.Section,
			Page:     hit.Payload.Page,
			Content:  hit.Payload.Content,
			Score:    hit.Score,
		}
	}

	if r.lexical != nil {
		lexHits, err := r.lexical.LexicalSearch(ctx, query, 2*k)
		if err != nil {
			// The keyword leg is a secondary signal; a failure here must
			// not take down retrieval.
			log.Printf("[RETRIEVER] lexical search failed: %v", err)
		} else {
			mergeLexical(candidates, lexHits)
		}
	}

	results := make([]types.RetrievedChunk, 0, len(candidates))
	for _, c := range candidates {
		if c.Score < r.minRelevance {
			continue
		}
		results = append(results, *c)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// mergeLexical folds keyword ranks into the candidate set. Ranks are
// normalized against the best lexical hit so the boost stays bounded.
func mergeLexical(candidates map[string]*types.RetrievedChunk, lexHits []store.LexicalHit) {
	if len(lexHits) == 0 {
		return
	}
	maxRank := lexHits[0].Rank
	for _, h := range lexHits {
		if h.Rank > maxRank {
			maxRank = h.Rank
		}
	}
	if maxRank <= 0 {
		return
	}

	for _, h := range lexHits {
		boost := lexicalWeight * (h.Rank / maxRank)
		if c, ok := candidates[h.ChunkID]; ok {
			c.Score += boost
			continue
		}
		candidates[h.ChunkID] = &types.RetrievedChunk{
			ChunkID:  h.ChunkID,
			DocID:    h.DocID,
			DocTitle: h.DocTitle,
			Code:     h.Code,
			Section:  h.Section,
			Page:     h.Page,
			Content:  h.Content,
			Score:    boost,
		}
	}
}
