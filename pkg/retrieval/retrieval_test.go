package retrieval

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halwind/mnemo/pkg/store"
)

// fakeStorage is an in-memory Storage with injectable rows and errors.
type fakeStorage struct {
	mu sync.Mutex

	annDocRows []store.ChunkRow
	annDocErr  error
	scanRows   []store.ChunkRow
	scanErr    error
	chunks     []store.ChunkRow
	rangeErr   error

	annLongRows []store.LongTermRow
	annLongErr  error
	scanLong    []store.LongTermRow
	scanLongErr error

	docScanCalled  bool
	longScanCalled bool
}

func (f *fakeStorage) AnnSearchDocuments(_ context.Context, _ []float32, _ int) ([]store.ChunkRow, error) {
	return f.annDocRows, f.annDocErr
}

func (f *fakeStorage) ScanDocumentChunks(_ context.Context) ([]store.ChunkRow, error) {
	f.mu.Lock()
	f.docScanCalled = true
	f.mu.Unlock()
	return f.scanRows, f.scanErr
}

func (f *fakeStorage) RangeFetchChunks(_ context.Context, docID string, lo, hi int) ([]store.ChunkRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rangeErr != nil {
		return nil, f.rangeErr
	}
	var out []store.ChunkRow
	for _, c := range f.chunks {
		if c.DocID == docID && c.Ordinal >= lo && c.Ordinal <= hi {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStorage) AnnSearchLongTerm(_ context.Context, _ []float32, _ int) ([]store.LongTermRow, error) {
	return f.annLongRows, f.annLongErr
}

func (f *fakeStorage) ScanLongTerm(_ context.Context, _ string) ([]store.LongTermRow, error) {
	f.mu.Lock()
	f.longScanCalled = true
	f.mu.Unlock()
	return f.scanLong, f.scanLongErr
}

func docRow(docID string, ordinal int, content string, emb []float32) store.ChunkRow {
	return store.ChunkRow{DocID: docID, Ordinal: ordinal, Content: content, Embedding: emb}
}

func longRow(sessionID string, id int64, content string, emb []float32) store.LongTermRow {
	return store.LongTermRow{SessionID: sessionID, RecordID: id, Role: "user", Content: content, Embedding: emb}
}

func testEngine(st Storage, cfg Config) *Engine {
	return NewEngine(st, cfg, zerolog.Nop())
}

func TestSearchDocumentsRecomputesSimilarity(t *testing.T) {
	query := []float32{1, 0, 0, 0}
	st := &fakeStorage{
		annDocRows: []store.ChunkRow{
			docRow("doc-1", 0, "orthogonal", []float32{0, 1, 0, 0}),
			docRow("doc-1", 1, "identical", []float32{1, 0, 0, 0}),
			docRow("doc-1", 2, "diagonal", []float32{1, 1, 0, 0}),
		},
	}
	eng := testEngine(st, Config{DocTopK: 3})

	got, err := eng.SearchDocuments(context.Background(), query)
	require.NoError(t, err)
	require.Len(t, got, 3)

	// Sorted by locally recomputed cosine, not index order.
	assert.Equal(t, "identical", got[0].Content)
	assert.InDelta(t, 1.0, got[0].Similarity, 1e-6)
	assert.Equal(t, "diagonal", got[1].Content)
	assert.InDelta(t, 0.7071, got[1].Similarity, 1e-3)
	assert.Equal(t, "orthogonal", got[2].Content)
	assert.InDelta(t, 0.0, got[2].Similarity, 1e-6)
}

func TestSearchDocumentsThresholdAndCap(t *testing.T) {
	query := []float32{1, 0, 0, 0}
	st := &fakeStorage{
		annDocRows: []store.ChunkRow{
			docRow("doc-1", 0, "a", []float32{1, 0, 0, 0}),
			docRow("doc-1", 1, "b", []float32{1, 0.2, 0, 0}),
			docRow("doc-1", 2, "c", []float32{1, 0.4, 0, 0}),
			docRow("doc-1", 3, "d", []float32{0, 1, 0, 0}),
		},
	}
	eng := testEngine(st, Config{DocTopK: 2, DocThreshold: 0.5})

	got, err := eng.SearchDocuments(context.Background(), query)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Content)
	assert.Equal(t, "b", got[1].Content)
	for _, c := range got {
		assert.GreaterOrEqual(t, c.Similarity, 0.5)
	}
}

func TestSearchDocumentsFallbackScan(t *testing.T) {
	query := []float32{1, 0, 0, 0}
	st := &fakeStorage{
		annDocRows: nil, // index has not caught up yet
		scanRows: []store.ChunkRow{
			docRow("doc-1", 0, "fresh chunk", []float32{1, 0, 0, 0}),
		},
	}
	eng := testEngine(st, Config{DocTopK: 4})

	got, err := eng.SearchDocuments(context.Background(), query)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, st.docScanCalled)
	assert.Equal(t, "fresh chunk", got[0].Content)
}

func TestSearchDocumentsSkipsEmptyEmbeddings(t *testing.T) {
	query := []float32{1, 0, 0, 0}
	st := &fakeStorage{
		annDocRows: []store.ChunkRow{
			docRow("doc-1", 0, "no vector", nil),
			docRow("doc-1", 1, "has vector", []float32{1, 0, 0, 0}),
		},
	}
	eng := testEngine(st, Config{DocTopK: 4})

	got, err := eng.SearchDocuments(context.Background(), query)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "has vector", got[0].Content)
}

func TestSearchDocumentsSurroundingExpansion(t *testing.T) {
	query := []float32{1, 0, 0, 0}
	chunks := []store.ChunkRow{
		docRow("doc-1", 0, "first", nil),
		docRow("doc-1", 1, "second", []float32{1, 0, 0, 0}),
		docRow("doc-1", 2, "third", nil),
		docRow("doc-1", 3, "fourth", nil),
	}
	st := &fakeStorage{
		annDocRows: []store.ChunkRow{chunks[1]},
		chunks:     chunks,
	}
	eng := testEngine(st, Config{DocTopK: 1, SurroundingChunks: 1})

	got, err := eng.SearchDocuments(context.Background(), query)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "first\n\nsecond\n\nthird", got[0].Content)
	assert.Equal(t, "doc-1", got[0].Metadata["doc_id"])
	assert.Equal(t, "1", got[0].Metadata["chunk_ordinal"])
}

func TestSearchDocumentsExpansionFailureFallsBackToCenter(t *testing.T) {
	query := []float32{1, 0, 0, 0}
	st := &fakeStorage{
		annDocRows: []store.ChunkRow{
			docRow("doc-1", 1, "center only", []float32{1, 0, 0, 0}),
		},
		rangeErr: errors.New("disk on fire"),
	}
	eng := testEngine(st, Config{DocTopK: 1, SurroundingChunks: 2})

	got, err := eng.SearchDocuments(context.Background(), query)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "center only", got[0].Content)
}

func TestSearchLongTermSessionIsolation(t *testing.T) {
	query := []float32{1, 0, 0, 0}
	st := &fakeStorage{
		annLongRows: []store.LongTermRow{
			longRow("session-a", 1, "mine", []float32{1, 0, 0, 0}),
			longRow("session-b", 2, "not mine", []float32{1, 0, 0, 0}),
		},
	}
	eng := testEngine(st, Config{LongTopK: 4})

	got, err := eng.SearchLongTerm(context.Background(), query, "session-a")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "mine", got[0].Content)
	assert.Equal(t, "session-a", got[0].SessionID)
}

func TestSearchLongTermFallbackScan(t *testing.T) {
	query := []float32{1, 0, 0, 0}
	st := &fakeStorage{
		annLongRows: nil,
		scanLong: []store.LongTermRow{
			longRow("session-a", 1, "scanned", []float32{1, 0, 0, 0}),
		},
	}
	eng := testEngine(st, Config{LongTopK: 4})

	got, err := eng.SearchLongTerm(context.Background(), query, "session-a")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, st.longScanCalled)
	assert.Equal(t, "scanned", got[0].Content)
}

func TestSearchLongTermThreshold(t *testing.T) {
	query := []float32{1, 0, 0, 0}
	st := &fakeStorage{
		annLongRows: []store.LongTermRow{
			longRow("session-a", 1, "close", []float32{1, 0.1, 0, 0}),
			longRow("session-a", 2, "far", []float32{0, 1, 0, 0}),
		},
	}
	eng := testEngine(st, Config{LongTopK: 4, LongThreshold: 0.3})

	got, err := eng.SearchLongTerm(context.Background(), query, "session-a")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "close", got[0].Content)
}

func TestSearchDegradesPerSource(t *testing.T) {
	query := []float32{1, 0, 0, 0}
	st := &fakeStorage{
		annDocErr: errors.New("index corrupted"),
		annLongRows: []store.LongTermRow{
			longRow("session-a", 1, "survivor", []float32{1, 0, 0, 0}),
		},
	}
	eng := testEngine(st, Config{DocTopK: 4, LongTopK: 4})

	res := eng.Search(context.Background(), "anything", query, "session-a")
	assert.True(t, res.Degraded)
	require.Len(t, res.Candidates, 1)
	assert.Equal(t, "survivor", res.Candidates[0].Content)
}

func TestRankExactQueryMatchDominates(t *testing.T) {
	r := NewReranker(Config{DocTopK: 4, LongTopK: 4}, zerolog.Nop())

	candidates := []Candidate{
		{Content: "vaguely related text", SourceType: SourceConversation, Similarity: 0.9},
		{Content: "the token is DOC_TOKEN_12345 for the record", SourceType: SourceConversation, Similarity: 0.4},
	}

	ranked := r.Rank("DOC_TOKEN_12345", candidates)
	require.Len(t, ranked, 2)
	// 0.4*100 + 10 + 100 = 150 beats 0.9*100 = 90.
	assert.Equal(t, "the token is DOC_TOKEN_12345 for the record", ranked[0].Content)
	assert.Greater(t, ranked[0].Score, ranked[1].Score)
}

func TestRankTermOverlapAndDocumentBonus(t *testing.T) {
	r := NewReranker(Config{DocTopK: 4, LongTopK: 4}, zerolog.Nop())

	candidates := []Candidate{
		{Content: "deploy the billing service", SourceType: SourceConversation, Similarity: 0.5},
		{Content: "deploy the billing service", SourceType: SourceDocument, Similarity: 0.5},
	}

	ranked := r.Rank("how do I deploy billing?", candidates)
	require.Len(t, ranked, 2)
	assert.Equal(t, SourceDocument, ranked[0].SourceType)
	assert.InDelta(t, documentBonus, ranked[0].Score-ranked[1].Score, 1e-6)
}

func TestRankStableOnTies(t *testing.T) {
	r := NewReranker(Config{DocTopK: 4, LongTopK: 4}, zerolog.Nop())

	candidates := []Candidate{
		{Content: "first", SourceType: SourceConversation, Similarity: 0.5},
		{Content: "second", SourceType: SourceConversation, Similarity: 0.5},
	}

	ranked := r.Rank("unrelated query", candidates)
	require.Len(t, ranked, 2)
	assert.Equal(t, "first", ranked[0].Content)
	assert.Equal(t, "second", ranked[1].Content)
}

func TestSelectCapsSourcesIndependently(t *testing.T) {
	r := NewReranker(Config{DocTopK: 1, LongTopK: 1}, zerolog.Nop())

	docs := []Candidate{
		{Content: "doc a", SourceType: SourceDocument, Similarity: 0.9},
		{Content: "doc b", SourceType: SourceDocument, Similarity: 0.8},
	}
	convs := []Candidate{
		{Content: "conv a", SourceType: SourceConversation, Similarity: 0.9},
		{Content: "conv b", SourceType: SourceConversation, Similarity: 0.8},
	}

	selected := r.Select("query", docs, convs)
	require.Len(t, selected, 2)
	assert.Equal(t, "doc a", selected[0].Content)
	assert.Equal(t, "conv a", selected[1].Content)
}

func TestSelectRechecksThresholds(t *testing.T) {
	r := NewReranker(Config{DocTopK: 4, LongTopK: 4, LongThreshold: 0.5}, zerolog.Nop())

	// Lexical overlap inflates the composite score but the semantic
	// similarity stays below the threshold.
	convs := []Candidate{
		{Content: "exact query words everywhere query words", SourceType: SourceConversation, Similarity: 0.1},
	}

	selected := r.Select("query words", nil, convs)
	assert.Empty(t, selected)
}

func TestQueryTermsDistinctAndStripped(t *testing.T) {
	terms := queryTerms("The cat, the CAT, and a dog!")
	assert.Equal(t, []string{"the", "cat", "and", "dog"}, terms)
}

func TestQueryTermsLengthFilterPrecedesTrim(t *testing.T) {
	// The raw word clears the length bar with its punctuation, so the
	// trimmed form survives even though it is short on its own.
	terms := queryTerms("is it? ok ...")
	assert.Equal(t, []string{"it"}, terms)
}
