package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDimension = 4

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mnemo.db")
	s, err := Open(path, testDimension, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenValidation(t *testing.T) {
	_, err := Open("", testDimension, zerolog.Nop())
	assert.Error(t, err)

	_, err = Open(filepath.Join(t.TempDir(), "x.db"), 0, zerolog.Nop())
	assert.Error(t, err)
}

func TestVectorKeyRoundTrip(t *testing.T) {
	key := vectorKey("doc-42", 7)
	owner, ordinal, err := splitVectorKey(key)
	require.NoError(t, err)
	assert.Equal(t, "doc-42", owner)
	assert.Equal(t, int64(7), ordinal)

	_, _, err = splitVectorKey("no-separator")
	assert.Error(t, err)
}

func TestDocumentLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := DocumentRow{ID: "doc-1", Name: "handbook.txt", Status: StatusProcessing}
	require.NoError(t, s.UpsertDocument(ctx, doc))

	docs, err := s.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "handbook.txt", docs[0].Name)
	assert.Equal(t, StatusProcessing, docs[0].Status)

	require.NoError(t, s.UpdateDocumentStatus(ctx, "doc-1", StatusCompleted, 3))

	docs, err = s.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, StatusCompleted, docs[0].Status)
	assert.Equal(t, 3, docs[0].TotalChunks)
}

func TestInsertChunkAndAnnSearch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertDocument(ctx, DocumentRow{ID: "doc-1", Name: "a.txt", Status: StatusProcessing}))

	chunks := []ChunkRow{
		{DocID: "doc-1", Ordinal: 0, Content: "north", Embedding: []float32{1, 0, 0, 0}},
		{DocID: "doc-1", Ordinal: 1, Content: "east", Embedding: []float32{0, 1, 0, 0}},
		{DocID: "doc-1", Ordinal: 2, Content: "northeast", Embedding: []float32{1, 1, 0, 0}},
	}
	for _, c := range chunks {
		require.NoError(t, s.InsertChunk(ctx, c))
	}

	got, err := s.AnnSearchDocuments(ctx, []float32{1, 0, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "north", got[0].Content)
	assert.Equal(t, "northeast", got[1].Content)
	assert.Equal(t, []float32{1, 0, 0, 0}, got[0].Embedding)
}

func TestScanAndRangeFetchChunks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertDocument(ctx, DocumentRow{ID: "doc-1", Name: "a.txt", Status: StatusProcessing}))
	for i := 0; i < 5; i++ {
		require.NoError(t, s.InsertChunk(ctx, ChunkRow{
			DocID:     "doc-1",
			Ordinal:   i,
			Content:   "chunk",
			Embedding: []float32{float32(i), 1, 0, 0},
		}))
	}

	all, err := s.ScanDocumentChunks(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	window, err := s.RangeFetchChunks(ctx, "doc-1", 1, 3)
	require.NoError(t, err)
	require.Len(t, window, 3)
	for i, c := range window {
		assert.Equal(t, i+1, c.Ordinal)
	}

	// Out-of-range bounds clamp to what exists.
	window, err = s.RangeFetchChunks(ctx, "doc-1", 3, 10)
	require.NoError(t, err)
	assert.Len(t, window, 2)
}

func TestDeleteDocumentRemovesChunks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertDocument(ctx, DocumentRow{ID: "doc-1", Name: "a.txt", Status: StatusProcessing}))
	require.NoError(t, s.InsertChunk(ctx, ChunkRow{
		DocID: "doc-1", Ordinal: 0, Content: "chunk", Embedding: []float32{1, 0, 0, 0},
	}))

	require.NoError(t, s.DeleteDocument(ctx, "doc-1"))

	docs, err := s.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Empty(t, docs)

	all, err := s.ScanDocumentChunks(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	got, err := s.AnnSearchDocuments(ctx, []float32{1, 0, 0, 0}, 4)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRecentTurnsOrderAndLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, content := range []string{"first", "second", "third"} {
		require.NoError(t, s.InsertTurn(ctx, "session-a", "user", content, time.Hour))
	}

	turns, err := s.RecentTurns(ctx, "session-a", 2)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "third", turns[0].Content)
	assert.Equal(t, "second", turns[1].Content)
}

func TestTurnExpiry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertTurn(ctx, "session-a", "user", "stale", -time.Minute))
	require.NoError(t, s.InsertTurn(ctx, "session-a", "user", "fresh", time.Hour))

	turns, err := s.RecentTurns(ctx, "session-a", 10)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "fresh", turns[0].Content)

	count, err := s.CountTurns(ctx, "session-a")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	purged, err := s.PurgeExpiredTurns(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, purged)
}

func TestDeleteTurnsLeavesLongTerm(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertTurn(ctx, "session-a", "user", "hello", time.Hour))
	require.NoError(t, s.InsertLongTerm(ctx, LongTermRow{
		SessionID: "session-a", RecordID: 1, Role: "user",
		Content: "hello", Embedding: []float32{1, 0, 0, 0},
	}))

	require.NoError(t, s.DeleteTurns(ctx, "session-a"))

	count, err := s.CountTurns(ctx, "session-a")
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	longCount, err := s.CountLongTerm(ctx, "session-a")
	require.NoError(t, err)
	assert.Equal(t, 1, longCount)
}

func TestLongTermSearchAndScan(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	recs := []LongTermRow{
		{SessionID: "session-a", RecordID: 1, Role: "user", Content: "mine", Embedding: []float32{1, 0, 0, 0}},
		{SessionID: "session-b", RecordID: 2, Role: "user", Content: "other", Embedding: []float32{1, 0, 0, 0}},
	}
	for _, r := range recs {
		require.NoError(t, s.InsertLongTerm(ctx, r))
	}

	// ANN search spans all sessions; scoping happens above the store.
	got, err := s.AnnSearchLongTerm(ctx, []float32{1, 0, 0, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	scanned, err := s.ScanLongTerm(ctx, "session-a")
	require.NoError(t, err)
	require.Len(t, scanned, 1)
	assert.Equal(t, "mine", scanned[0].Content)
	assert.Equal(t, []float32{1, 0, 0, 0}, scanned[0].Embedding)
}

func TestListSessionsAndRename(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertTurn(ctx, "session-a", "user", "one", time.Hour))
	require.NoError(t, s.InsertTurn(ctx, "session-a", "assistant", "two", time.Hour))
	require.NoError(t, s.InsertTurn(ctx, "session-b", "user", "three", time.Hour))

	require.NoError(t, s.RenameSession(ctx, "session-a", "Billing questions"))

	sessions, err := s.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	byID := make(map[string]SessionInfo, len(sessions))
	for _, info := range sessions {
		byID[info.SessionID] = info
	}
	assert.Equal(t, 2, byID["session-a"].MessageCount)
	assert.Equal(t, "Billing questions", byID["session-a"].DisplayName)
	assert.Equal(t, 1, byID["session-b"].MessageCount)
	assert.Equal(t, "", byID["session-b"].DisplayName)

	name, err := s.DisplayName(ctx, "session-a")
	require.NoError(t, err)
	assert.Equal(t, "Billing questions", name)

	name, err = s.DisplayName(ctx, "missing")
	require.NoError(t, err)
	assert.Equal(t, "", name)
}
