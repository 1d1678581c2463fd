package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/halwind/mnemo/internal/observability"
	"github.com/halwind/mnemo/internal/tracing"
	"github.com/halwind/mnemo/pkg/chunker"
	"github.com/halwind/mnemo/pkg/embedding"
	"github.com/halwind/mnemo/pkg/retrieval"
	"github.com/halwind/mnemo/pkg/store"
)

// Context types reported by AssembleContext
const (
	ContextNone      = "none"
	ContextShortTerm = "short-term"
	ContextLongTerm  = "long-term"
	ContextHybrid    = "hybrid"
)

// Message sources
const (
	sourceShortTerm = "short-term"
	sourceLongTerm  = "long-term"
)

// Grounding instructions appended after the assembled context.
const (
	instructionWithContext = "Instructions: Answer using information from the conversation history and [Context] snippets above. If the context doesn't contain enough information to answer, say 'I don't have information about that.' Keep answers to 2-3 sentences."
	instructionNoContext   = "Instructions: Answer using information from the conversation history above. If you cannot answer from the conversation, say 'I don't have information about that.' Keep answers to 2-3 sentences."
)

// Message is one entry of the assembled context window.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Source  string `json:"source,omitempty"`
}

// HybridContext is the assembled context for one conversation turn.
type HybridContext struct {
	Messages    []Message `json:"messages"`
	ContextType string    `json:"context_type"`
	Degraded    bool      `json:"degraded"`
}

// SessionStats counts what each tier holds for a session.
type SessionStats struct {
	SessionID         string `json:"session_id"`
	ShortTermMessages int    `json:"short_term_messages"`
	LongTermRecords   int    `json:"long_term_records"`
}

// IngestResult reports a completed document ingestion.
type IngestResult struct {
	DocID  string `json:"doc_id"`
	Name   string `json:"name"`
	Chunks int    `json:"chunks"`
}

// Store is the persistence surface the manager depends on.
type Store interface {
	Ping(ctx context.Context) error

	InsertTurn(ctx context.Context, sessionID, role, content string, ttl time.Duration) error
	RecentTurns(ctx context.Context, sessionID string, limit int) ([]store.TurnRow, error)
	DeleteTurns(ctx context.Context, sessionID string) error
	CountTurns(ctx context.Context, sessionID string) (int, error)
	PurgeExpiredTurns(ctx context.Context) (int, error)

	InsertLongTerm(ctx context.Context, rec store.LongTermRow) error
	CountLongTerm(ctx context.Context, sessionID string) (int, error)

	UpsertDocument(ctx context.Context, doc store.DocumentRow) error
	UpdateDocumentStatus(ctx context.Context, docID, status string, totalChunks int) error
	InsertChunk(ctx context.Context, chunk store.ChunkRow) error
	ListDocuments(ctx context.Context) ([]store.DocumentRow, error)
	DeleteDocument(ctx context.Context, docID string) error

	ListSessions(ctx context.Context) ([]store.SessionInfo, error)
	RenameSession(ctx context.Context, sessionID, displayName string) error
}

// Searcher runs the dual-source retrieval for a query.
type Searcher interface {
	Search(ctx context.Context, query string, queryVec []float32, sessionID string) retrieval.Result
}

// Config holds manager tunables.
type Config struct {
	ShortTermMaxMessages int
	ShortTermTTL         time.Duration
	ShortTermTimeout     time.Duration
	SearchTimeout        time.Duration
	CleanupInterval      time.Duration
}

// Manager coordinates the memory tiers.
type Manager struct {
	st       Store
	provider embedding.Provider
	searcher Searcher
	chunker  *chunker.Chunker
	cfg      Config
	logger   zerolog.Logger

	recordMu     sync.Mutex
	lastRecordID int64

	cleanupStop chan struct{}
	cleanupDone chan struct{}
}

// NewManager wires the memory tiers together. Zero config values fall
// back to defaults.
func NewManager(st Store, provider embedding.Provider, searcher Searcher, ch *chunker.Chunker, cfg Config, logger zerolog.Logger) *Manager {
	if cfg.ShortTermMaxMessages <= 0 {
		cfg.ShortTermMaxMessages = 5
	}
	if cfg.ShortTermTTL <= 0 {
		cfg.ShortTermTTL = time.Hour
	}
	if cfg.ShortTermTimeout <= 0 {
		cfg.ShortTermTimeout = 2 * time.Second
	}
	if cfg.SearchTimeout <= 0 {
		cfg.SearchTimeout = 10 * time.Second
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 5 * time.Minute
	}

	return &Manager{
		st:       st,
		provider: provider,
		searcher: searcher,
		chunker:  ch,
		cfg:      cfg,
		logger:   logger.With().Str("component", "memory").Logger(),
	}
}

// AssembleContext builds the bounded context window for one turn of a
// session: the recent short-term window in chronological order, then
// retrieved long-term and document context as system messages, then a
// grounding instruction. Storage-side retrieval failures degrade to
// less context; a query-embedding failure fails the call.
func (m *Manager) AssembleContext(ctx context.Context, sessionID, query string) (*HybridContext, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session id is required")
	}

	ctx, span := tracing.StartSpan(ctx, "memory", "assemble_context",
		attribute.String("session_id", sessionID))
	defer span.End()
	ctx = tracing.WithSessionKey(ctx, sessionID)
	log := tracing.LoggerFromContext(ctx, m.logger)

	start := time.Now()
	degraded := false

	shortCtx, cancel := context.WithTimeout(ctx, m.cfg.ShortTermTimeout)
	turns, err := m.st.RecentTurns(shortCtx, sessionID, m.cfg.ShortTermMaxMessages)
	cancel()
	if err != nil {
		m.logger.Warn().Err(err).Str("session_id", sessionID).
			Msg("Short-term fetch failed, continuing without recent turns")
		degraded = true
		turns = nil
	}

	// RecentTurns is newest-first; the context window is chronological.
	messages := make([]Message, 0, len(turns)+8)
	for i := len(turns) - 1; i >= 0; i-- {
		messages = append(messages, Message{
			Role:    turns[i].Role,
			Content: turns[i].Content,
			Source:  sourceShortTerm,
		})
	}
	shortCount := len(messages)

	candidates, searchDegraded, err := m.searchLongTerm(ctx, sessionID, query)
	if err != nil {
		return nil, err
	}
	degraded = degraded || searchDegraded

	for _, c := range candidates {
		messages = append(messages, Message{
			Role:    "system",
			Content: fmt.Sprintf("[Context from %s]: %s", c.SourceType, c.Content),
			Source:  sourceLongTerm,
		})
	}

	instruction := instructionNoContext
	if len(candidates) > 0 {
		instruction = instructionWithContext
	}
	messages = append(messages, Message{Role: "system", Content: instruction})

	contextType := ContextNone
	switch {
	case shortCount > 0 && len(candidates) > 0:
		contextType = ContextHybrid
	case shortCount > 0:
		contextType = ContextShortTerm
	case len(candidates) > 0:
		contextType = ContextLongTerm
	}

	observability.RecordAssemble(contextType, time.Since(start))
	log.Info().
		Str("context_type", contextType).
		Int("short_term", shortCount).
		Int("long_term", len(candidates)).
		Bool("degraded", degraded).
		Msg("Assembled context")

	return &HybridContext{
		Messages:    messages,
		ContextType: contextType,
		Degraded:    degraded,
	}, nil
}

// searchLongTerm embeds the query and runs the dual-source search.
// Embedding the query is a hard prerequisite: its failure is returned
// to the caller. A degraded search only shrinks the candidate list.
func (m *Manager) searchLongTerm(ctx context.Context, sessionID, query string) ([]retrieval.ScoredCandidate, bool, error) {
	embStart := time.Now()
	vec, err := m.provider.Embed(ctx, query)
	observability.RecordEmbed(m.provider.Name(), time.Since(embStart), err == nil)
	if err != nil {
		m.logger.Error().Err(err).Str("session_id", sessionID).
			Msg("Query embedding failed")
		return nil, false, fmt.Errorf("embed query: %w", err)
	}
	vec = embedding.Sanitize(vec, m.provider.Dimension(), m.logger)

	searchCtx, cancel := context.WithTimeout(ctx, m.cfg.SearchTimeout)
	defer cancel()
	res := m.searcher.Search(searchCtx, query, vec, sessionID)
	return res.Candidates, res.Degraded, nil
}

// StoreMessage writes one turn into both tiers. The short-term write is
// authoritative: its failure fails the call. The long-term write is
// best-effort: its failure is logged and swallowed so the conversation
// keeps flowing.
func (m *Manager) StoreMessage(ctx context.Context, sessionID, role, content string) error {
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}

	ctx, span := tracing.StartSpan(ctx, "memory", "store_message",
		attribute.String("session_id", sessionID),
		attribute.String("role", role))
	defer span.End()

	start := time.Now()
	err := m.st.InsertTurn(ctx, sessionID, role, content, m.cfg.ShortTermTTL)
	observability.RecordStoreWrite("short_term", time.Since(start), err == nil)
	if err != nil {
		observability.RecordMemoryAudit(ctx, "store_message", sessionID, "failure", nil)
		return fmt.Errorf("failed to store message: %w", err)
	}

	status := "success"
	if err := m.storeLongTerm(ctx, sessionID, role, content); err != nil {
		m.logger.Error().Err(err).Str("session_id", sessionID).
			Msg("Long-term write failed, message kept in short-term only")
		status = "degraded"
	}

	observability.RecordMemoryAudit(ctx, "store_message", sessionID, status, map[string]interface{}{
		"role": role,
	})
	return nil
}

func (m *Manager) storeLongTerm(ctx context.Context, sessionID, role, content string) error {
	embStart := time.Now()
	vec, err := m.provider.Embed(ctx, content)
	observability.RecordEmbed(m.provider.Name(), time.Since(embStart), err == nil)
	if err != nil {
		return err
	}
	vec = embedding.Sanitize(vec, m.provider.Dimension(), m.logger)

	start := time.Now()
	err = m.st.InsertLongTerm(ctx, store.LongTermRow{
		SessionID: sessionID,
		RecordID:  m.nextRecordID(),
		Role:      role,
		Content:   content,
		Embedding: vec,
	})
	observability.RecordStoreWrite("long_term", time.Since(start), err == nil)
	return err
}

// nextRecordID returns a millisecond-clock record id, bumped past the
// previous one so two writes in the same millisecond stay ordered.
func (m *Manager) nextRecordID() int64 {
	m.recordMu.Lock()
	defer m.recordMu.Unlock()

	id := time.Now().UnixMilli()
	if id <= m.lastRecordID {
		id = m.lastRecordID + 1
	}
	m.lastRecordID = id
	return id
}

// ClearSession empties the short-term window of a session. Long-term
// records are untouched: the session's history stays retrievable.
func (m *Manager) ClearSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}

	if err := m.st.DeleteTurns(ctx, sessionID); err != nil {
		observability.RecordSessionAudit(ctx, "clear_session", sessionID, "failure", nil)
		return fmt.Errorf("failed to clear session: %w", err)
	}

	observability.RecordSessionAudit(ctx, "clear_session", sessionID, "success", nil)
	m.logger.Info().Str("session_id", sessionID).Msg("Cleared session short-term memory")
	return nil
}

// SessionStats reports what each tier currently holds for a session.
func (m *Manager) SessionStats(ctx context.Context, sessionID string) (SessionStats, error) {
	stats := SessionStats{SessionID: sessionID}

	short, err := m.st.CountTurns(ctx, sessionID)
	if err != nil {
		return stats, fmt.Errorf("failed to count short-term messages: %w", err)
	}
	long, err := m.st.CountLongTerm(ctx, sessionID)
	if err != nil {
		return stats, fmt.Errorf("failed to count long-term records: %w", err)
	}

	stats.ShortTermMessages = short
	stats.LongTermRecords = long
	return stats, nil
}

// ListSessions returns the sessions with live short-term memory,
// most recently active first.
func (m *Manager) ListSessions(ctx context.Context) ([]store.SessionInfo, error) {
	sessions, err := m.st.ListSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	observability.SetActiveSessions(len(sessions))
	return sessions, nil
}

// RenameSession sets a human-readable display name for a session.
func (m *Manager) RenameSession(ctx context.Context, sessionID, displayName string) error {
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}
	if err := m.st.RenameSession(ctx, sessionID, displayName); err != nil {
		return fmt.Errorf("failed to rename session: %w", err)
	}
	observability.RecordSessionAudit(ctx, "rename_session", sessionID, "success", map[string]interface{}{
		"display_name": displayName,
	})
	return nil
}

// Health verifies the store and, when the provider exposes a health
// probe, the embedding backend.
func (m *Manager) Health(ctx context.Context) error {
	if err := m.st.Ping(ctx); err != nil {
		return fmt.Errorf("store unhealthy: %w", err)
	}
	if probe, ok := m.provider.(interface{ Health(context.Context) error }); ok {
		if err := probe.Health(ctx); err != nil {
			return fmt.Errorf("embedding provider unhealthy: %w", err)
		}
	}
	return nil
}
