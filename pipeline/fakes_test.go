package pipeline

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"

	"regcheck/index"
	"regcheck/store"
	"regcheck/types"

	"github.com/google/uuid"
)

// memStore is an in-memory Storer mirroring the Postgres semantics the
// pipeline relies on: hash dedup, all-or-nothing run persistence, ordered
// finding queries.
type memStore struct {
	mu        sync.Mutex
	regDocs   map[uuid.UUID]types.RegulatoryDocument
	chunks    map[string]types.RegulatoryChunk
	subDocs   map[uuid.UUID]types.SubmittedDocument
	units     map[uuid.UUID][]types.DocumentUnit
	runs      []types.ComplianceRun
	findings  map[uuid.UUID][]types.Finding
	saveRunFn func(*types.ComplianceRun) error
}

func newMemStore() *memStore {
	return &memStore{
		regDocs:  make(map[uuid.UUID]types.RegulatoryDocument),
		chunks:   make(map[string]types.RegulatoryChunk),
		subDocs:  make(map[uuid.UUID]types.SubmittedDocument),
		units:    make(map[uuid.UUID][]types.DocumentUnit),
		findings: make(map[uuid.UUID][]types.Finding),
	}
}

var _ store.Storer = (*memStore)(nil)

func (m *memStore) SaveRegulatoryDocument(_ context.Context, doc types.RegulatoryDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.regDocs[doc.ID] = doc
	return nil
}

func (m *memStore) GetRegulatoryDocument(_ context.Context, id uuid.UUID) (*types.RegulatoryDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if doc, ok := m.regDocs[id]; ok {
		return &doc, nil
	}
	return nil, nil
}

func (m *memStore) SetRegulatoryStatus(_ context.Context, id uuid.UUID, status types.ProcessingStatus, chunkCount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if doc, ok := m.regDocs[id]; ok {
		doc.Status = status
		doc.ChunkCount = chunkCount
		m.regDocs[id] = doc
	}
	return nil
}

func (m *memStore) DeleteRegulatoryDocument(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.regDocs[id]
	delete(m.regDocs, id)
	return ok, nil
}

func (m *memStore) SaveChunks(_ context.Context, chunks []types.RegulatoryChunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range chunks {
		m.chunks[c.ChunkID] = c
	}
	return nil
}

func (m *memStore) DeleteChunksByDocID(_ context.Context, docID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, c := range m.chunks {
		if c.DocID == docID {
			delete(m.chunks, id)
		}
	}
	return nil
}

func (m *memStore) CountChunksByDocID(_ context.Context, docID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, c := range m.chunks {
		if c.DocID == docID {
			count++
		}
	}
	return count, nil
}

var wordPattern = regexp.MustCompile(`[a-z0-9]+`)

func (m *memStore) LexicalSearch(_ context.Context, query string, limit int) ([]store.LexicalHit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	words := wordPattern.FindAllString(strings.ToLower(query), -1)
	var hits []store.LexicalHit
	for _, c := range m.chunks {
		content := strings.ToLower(c.Content)
		rank := 0.0
		for _, w := range words {
			if strings.Contains(content, w) {
				rank++
			}
		}
		if rank > 0 {
			doc := m.regDocs[c.DocID]
			hits = append(hits, store.LexicalHit{
				ChunkID: c.ChunkID, DocID: c.DocID, DocTitle: doc.Title,
				Code: doc.Code, Section: c.Section, Page: c.Page,
				Content: c.Content, Rank: rank,
			})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Rank > hits[j].Rank })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (m *memStore) CreateSubmittedDocument(_ context.Context, doc types.SubmittedDocument, units []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.subDocs {
		if existing.ContentHash == doc.ContentHash &&
			(existing.Status == types.StatusProcessing || existing.Status == types.StatusCompleted) {
			return fmt.Errorf("%w: content hash %s", types.ErrDuplicateSubmission, doc.ContentHash)
		}
	}
	m.subDocs[doc.ID] = doc
	for i, content := range units {
		m.units[doc.ID] = append(m.units[doc.ID], types.DocumentUnit{
			ID: uuid.New(), DocID: doc.ID, Position: i, Content: content,
		})
	}
	return nil
}

func (m *memStore) GetSubmittedDocument(_ context.Context, id uuid.UUID) (*types.SubmittedDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if doc, ok := m.subDocs[id]; ok {
		return &doc, nil
	}
	return nil, nil
}

func (m *memStore) SetSubmittedStatus(_ context.Context, id uuid.UUID, status types.ProcessingStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if doc, ok := m.subDocs[id]; ok {
		doc.Status = status
		m.subDocs[id] = doc
	}
	return nil
}

func (m *memStore) GetUnits(_ context.Context, docID uuid.UUID) ([]types.DocumentUnit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.units[docID], nil
}

func (m *memStore) SaveRun(_ context.Context, run *types.ComplianceRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveRunFn != nil {
		if err := m.saveRunFn(run); err != nil {
			return err
		}
	}
	m.runs = append(m.runs, *run)
	for _, u := range run.Units {
		for _, f := range u.Findings {
			f.RunID = run.ID
			if f.ID == uuid.Nil {
				f.ID = uuid.New()
			}
			m.findings[run.ID] = append(m.findings[run.ID], f)
		}
	}
	return nil
}

func (m *memStore) GetLatestRun(_ context.Context, docID uuid.UUID) (*types.ComplianceRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *types.ComplianceRun
	for i := range m.runs {
		run := m.runs[i]
		if run.DocID != docID {
			continue
		}
		if latest == nil || run.StartedAt.After(latest.StartedAt) {
			latest = &run
		}
	}
	return latest, nil
}

func (m *memStore) GetFindings(_ context.Context, runID uuid.UUID) ([]types.Finding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	findings := append([]types.Finding(nil), m.findings[runID]...)
	sort.SliceStable(findings, func(i, j int) bool {
		if findings[i].Severity != findings[j].Severity {
			return findings[i].Severity > findings[j].Severity
		}
		return findings[i].UnitIndex < findings[j].UnitIndex
	})
	return findings, nil
}

// memIndex is an in-memory vector index with cosine scoring over
// unit-length vectors.
type memIndex struct {
	mu          sync.Mutex
	collections map[string]map[uuid.UUID]index.Point
	searchErr   error
}

func newMemIndex() *memIndex {
	return &memIndex{collections: make(map[string]map[uuid.UUID]index.Point)}
}

var _ index.VectorIndex = (*memIndex)(nil)

func (m *memIndex) EnsureCollection(_ context.Context, collection string, _ int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.collections[collection] == nil {
		m.collections[collection] = make(map[uuid.UUID]index.Point)
	}
	return nil
}

func (m *memIndex) Upsert(_ context.Context, collection string, points []index.Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.collections[collection] == nil {
		m.collections[collection] = make(map[uuid.UUID]index.Point)
	}
	for _, p := range points {
		m.collections[collection][p.ID] = p
	}
	return nil
}

func (m *memIndex) Search(_ context.Context, collection string, vector []float32, k int, filter *index.Filter) ([]index.Hit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.searchErr != nil {
		return nil, m.searchErr
	}

	var hits []index.Hit
	for _, p := range m.collections[collection] {
		if filter != nil {
			if filter.DocID != "" && p.Payload.DocID != filter.DocID {
				continue
			}
			if filter.Category != "" && p.Payload.Category != filter.Category {
				continue
			}
		}
		hits = append(hits, index.Hit{ID: p.ID, Score: cosine(vector, p.Vector), Payload: p.Payload})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (m *memIndex) DeleteByDocument(_ context.Context, collection string, docID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, p := range m.collections[collection] {
		if p.Payload.DocID == docID.String() {
			delete(m.collections[collection], id)
		}
	}
	return nil
}

func (m *memIndex) CountByDocument(_ context.Context, collection string, docID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, p := range m.collections[collection] {
		if p.Payload.DocID == docID.String() {
			count++
		}
	}
	return count, nil
}

func cosine(a, b []float32) float64 {
	var dot float64
	for i := range a {
		if i < len(b) {
			dot += float64(a[i]) * float64(b[i])
		}
	}
	return dot
}

// hashEmbedder maps each word to a dimension so related texts land close
// together. Deterministic and cheap, good enough to drive retrieval in
// tests.
type hashEmbedder struct {
	dim int
	err error
}

func newHashEmbedder() *hashEmbedder { return &hashEmbedder{dim: 64} }

func (h *hashEmbedder) Dimension() int { return h.dim }

func (h *hashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if h.err != nil {
		return nil, h.err
	}
	vec := make([]float32, h.dim)
	for _, w := range wordPattern.FindAllString(strings.ToLower(text), -1) {
		slot := 0
		for _, r := range w {
			slot = (slot*31 + int(r)) % h.dim
		}
		vec[slot]++
	}
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if norm := math.Sqrt(sum); norm > 0 {
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
	}
	return vec, nil
}

func (h *hashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := h.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// scriptedGenerator answers with the first response whose trigger substring
// appears in the prompt, falling back to a clean verdict.
type scriptedGenerator struct {
	responses map[string]string
	err       error
	calls     int
	mu        sync.Mutex
}

func (g *scriptedGenerator) Generate(_ context.Context, _, prompt string) (string, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	if g.err != nil {
		return "", g.err
	}
	for trigger, response := range g.responses {
		if strings.Contains(prompt, trigger) {
			return response, nil
		}
	}
	return `{"findings": []}`, nil
}
