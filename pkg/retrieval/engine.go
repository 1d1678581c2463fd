package retrieval

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/halwind/mnemo/internal/observability"
	"github.com/halwind/mnemo/pkg/embedding"
	"github.com/halwind/mnemo/pkg/store"
)

// Candidate source types
const (
	SourceDocument     = "document"
	SourceConversation = "conversation"
)

// Candidate is one retrieved unit of content, before reranking.
type Candidate struct {
	Content    string
	SourceType string
	SessionID  string
	Metadata   map[string]string
	Similarity float64
}

// ScoredCandidate is a candidate with its composite rerank score.
type ScoredCandidate struct {
	Candidate
	Score float64
}

// Result is the outcome of a dual-source search.
// Degraded is true when at least one source failed and was replaced
// by an empty result.
type Result struct {
	Candidates []ScoredCandidate
	Degraded   bool
}

// Storage is the subset of the store used by the engine.
type Storage interface {
	AnnSearchDocuments(ctx context.Context, queryVec []float32, limit int) ([]store.ChunkRow, error)
	ScanDocumentChunks(ctx context.Context) ([]store.ChunkRow, error)
	RangeFetchChunks(ctx context.Context, docID string, lo, hi int) ([]store.ChunkRow, error)
	AnnSearchLongTerm(ctx context.Context, queryVec []float32, limit int) ([]store.LongTermRow, error)
	ScanLongTerm(ctx context.Context, sessionID string) ([]store.LongTermRow, error)
}

// Config controls retrieval depth and selection thresholds.
type Config struct {
	DocTopK           int
	LongTopK          int
	DocANNMultiplier  int
	LongANNMultiplier int
	DocThreshold      float64
	LongThreshold     float64
	SurroundingChunks int
}

// Engine runs dual-source similarity search and reranking.
type Engine struct {
	st       Storage
	cfg      Config
	reranker *Reranker
	logger   zerolog.Logger
}

func NewEngine(st Storage, cfg Config, logger zerolog.Logger) *Engine {
	return &Engine{
		st:       st,
		cfg:      cfg,
		reranker: NewReranker(cfg, logger),
		logger:   logger.With().Str("component", "retrieval").Logger(),
	}
}

// Search runs document and conversation retrieval concurrently and
// reranks the merged candidates. A failure on one source degrades that
// source to an empty result; the other source still contributes.
func (e *Engine) Search(ctx context.Context, query string, queryVec []float32, sessionID string) Result {
	var (
		wg       sync.WaitGroup
		docs     []Candidate
		convs    []Candidate
		degraded bool
		mu       sync.Mutex
	)

	wg.Add(2)

	go func() {
		defer wg.Done()
		start := time.Now()
		found, err := e.SearchDocuments(ctx, queryVec)
		observability.RecordSearch(SourceDocument, time.Since(start), err == nil)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			e.logger.Warn().Err(err).Msg("Document search failed, continuing without document context")
			degraded = true
			return
		}
		docs = found
	}()

	go func() {
		defer wg.Done()
		start := time.Now()
		found, err := e.SearchLongTerm(ctx, queryVec, sessionID)
		observability.RecordSearch(SourceConversation, time.Since(start), err == nil)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			e.logger.Warn().Err(err).Str("session_id", sessionID).
				Msg("Long-term search failed, continuing without conversation context")
			degraded = true
			return
		}
		convs = found
	}()

	wg.Wait()

	return Result{
		Candidates: e.reranker.Select(query, docs, convs),
		Degraded:   degraded,
	}
}

// SearchDocuments retrieves the best-matching document chunks for the
// query vector. Similarity is recomputed locally from the stored
// embeddings, never taken from the index distance.
func (e *Engine) SearchDocuments(ctx context.Context, queryVec []float32) ([]Candidate, error) {
	if e.cfg.DocTopK <= 0 {
		return nil, nil
	}

	limit := max(e.cfg.DocTopK, e.cfg.DocTopK*e.cfg.DocANNMultiplier)
	rows, err := e.st.AnnSearchDocuments(ctx, queryVec, limit)
	if err != nil {
		return nil, err
	}

	// An empty index result is indistinguishable from index lag right
	// after ingestion, so fall back to scanning the base table.
	if len(rows) == 0 {
		observability.RecordFallbackScan(SourceDocument)
		e.logger.Debug().Msg("Empty document index result, falling back to exhaustive scan")
		rows, err = e.st.ScanDocumentChunks(ctx)
		if err != nil {
			return nil, err
		}
	}

	type scored struct {
		row store.ChunkRow
		sim float64
	}
	matches := make([]scored, 0, len(rows))
	for _, row := range rows {
		if len(row.Embedding) == 0 {
			continue
		}
		sim := embedding.Cosine(queryVec, row.Embedding)
		if sim < e.cfg.DocThreshold {
			continue
		}
		matches = append(matches, scored{row: row, sim: sim})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].sim > matches[j].sim
	})
	if len(matches) > e.cfg.DocTopK {
		matches = matches[:e.cfg.DocTopK]
	}

	candidates := make([]Candidate, len(matches))
	var wg sync.WaitGroup
	for i, m := range matches {
		md := make(map[string]string, len(m.row.Metadata)+2)
		for k, v := range m.row.Metadata {
			md[k] = v
		}
		md["doc_id"] = m.row.DocID
		md["chunk_ordinal"] = strconv.Itoa(m.row.Ordinal)

		candidates[i] = Candidate{
			Content:    m.row.Content,
			SourceType: SourceDocument,
			Metadata:   md,
			Similarity: m.sim,
		}

		if e.cfg.SurroundingChunks <= 0 {
			continue
		}
		wg.Add(1)
		go func(i int, row store.ChunkRow) {
			defer wg.Done()
			candidates[i].Content = e.expandChunk(ctx, row)
		}(i, m.row)
	}
	wg.Wait()

	return candidates, nil
}

// expandChunk widens a matched chunk with its neighbors from the same
// document, joined in ordinal order. On any failure the center chunk
// content is used as-is.
func (e *Engine) expandChunk(ctx context.Context, row store.ChunkRow) string {
	lo := max(0, row.Ordinal-e.cfg.SurroundingChunks)
	hi := row.Ordinal + e.cfg.SurroundingChunks

	neighbors, err := e.st.RangeFetchChunks(ctx, row.DocID, lo, hi)
	if err != nil || len(neighbors) == 0 {
		if err != nil {
			e.logger.Warn().Err(err).Str("doc_id", row.DocID).Int("ordinal", row.Ordinal).
				Msg("Surrounding chunk fetch failed, using matched chunk only")
		}
		return row.Content
	}

	parts := make([]string, len(neighbors))
	for i, n := range neighbors {
		parts[i] = n.Content
	}
	return strings.Join(parts, "\n\n")
}

// SearchLongTerm retrieves the best-matching long-term conversation
// records for the query vector, restricted to the given session. Rows
// from other sessions are discarded even if the index returns them.
func (e *Engine) SearchLongTerm(ctx context.Context, queryVec []float32, sessionID string) ([]Candidate, error) {
	if e.cfg.LongTopK <= 0 {
		return nil, nil
	}

	limit := max(e.cfg.LongTopK, e.cfg.LongTopK*e.cfg.LongANNMultiplier)
	rows, err := e.st.AnnSearchLongTerm(ctx, queryVec, limit)
	if err != nil {
		return nil, err
	}

	if len(rows) == 0 {
		observability.RecordFallbackScan(SourceConversation)
		e.logger.Debug().Str("session_id", sessionID).
			Msg("Empty long-term index result, falling back to exhaustive scan")
		rows, err = e.st.ScanLongTerm(ctx, sessionID)
		if err != nil {
			return nil, err
		}
	}

	type scored struct {
		row store.LongTermRow
		sim float64
	}
	matches := make([]scored, 0, len(rows))
	for _, row := range rows {
		if row.SessionID != sessionID {
			continue
		}
		if len(row.Embedding) == 0 {
			continue
		}
		sim := embedding.Cosine(queryVec, row.Embedding)
		if sim < e.cfg.LongThreshold {
			continue
		}
		matches = append(matches, scored{row: row, sim: sim})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].sim > matches[j].sim
	})
	if len(matches) > e.cfg.LongTopK {
		matches = matches[:e.cfg.LongTopK]
	}

	candidates := make([]Candidate, len(matches))
	for i, m := range matches {
		candidates[i] = Candidate{
			Content:    m.row.Content,
			SourceType: SourceConversation,
			SessionID:  m.row.SessionID,
			Metadata: map[string]string{
				"role":      m.row.Role,
				"record_id": strconv.FormatInt(m.row.RecordID, 10),
			},
			Similarity: m.sim,
		}
	}

	return candidates, nil
}
