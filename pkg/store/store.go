package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

func init() {
	// Auto-register sqlite-vec extension
	sqlite_vec.Auto()
}

// DocumentRow is the canonical row of the documents table
type DocumentRow struct {
	ID          string
	Name        string
	Status      string
	TotalChunks int
	CreatedAt   time.Time
}

// Document ingestion statuses
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// ChunkRow is the canonical row of the doc_chunks table
type ChunkRow struct {
	DocID      string
	Ordinal    int
	Content    string
	Metadata   map[string]string
	TokenCount int
	Embedding  []float32
}

// TurnRow is the canonical row of the turns table
type TurnRow struct {
	SessionID string
	Seq       int64
	Role      string
	Content   string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// LongTermRow is the canonical row of the long_term table
type LongTermRow struct {
	SessionID string
	RecordID  int64
	Role      string
	Content   string
	Embedding []float32
	CreatedAt time.Time
}

// SessionInfo summarizes one conversation session
type SessionInfo struct {
	SessionID     string
	DisplayName   string
	MessageCount  int
	LastMessageAt time.Time
}

// Store provides typed access to the SQLite database
type Store struct {
	db        *sql.DB
	dimension int
	logger    zerolog.Logger
}

// Open opens (or creates) the database at path and initializes the schema.
// dimension is the embedding dimension enforced by the vector tables.
func Open(path string, dimension int, logger zerolog.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive")
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{
		db:        db,
		dimension: dimension,
		logger:    logger,
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s.logger.Info().Str("path", path).Int("dimension", dimension).Msg("Store opened")
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			status TEXT NOT NULL,
			total_chunks INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS doc_chunks (
			doc_id TEXT NOT NULL,
			ordinal INTEGER NOT NULL,
			content TEXT NOT NULL,
			metadata TEXT NOT NULL DEFAULT '{}',
			token_count INTEGER NOT NULL DEFAULT 0,
			embedding TEXT NOT NULL,
			PRIMARY KEY (doc_id, ordinal)
		);
		CREATE INDEX IF NOT EXISTS idx_doc_chunks_doc ON doc_chunks(doc_id);

		CREATE TABLE IF NOT EXISTS turns (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			expires_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id, id);
		CREATE INDEX IF NOT EXISTS idx_turns_expiry ON turns(expires_at);

		CREATE TABLE IF NOT EXISTS long_term (
			session_id TEXT NOT NULL,
			record_id INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			embedding TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (session_id, record_id)
		);

		CREATE TABLE IF NOT EXISTS session_names (
			session_id TEXT PRIMARY KEY,
			display_name TEXT NOT NULL
		);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	vectorSchema := fmt.Sprintf(`
		CREATE VIRTUAL TABLE IF NOT EXISTS doc_vectors USING vec0(
			chunk_key TEXT PRIMARY KEY,
			embedding float[%d] distance_metric=cosine
		);
		CREATE VIRTUAL TABLE IF NOT EXISTS long_term_vectors USING vec0(
			record_key TEXT PRIMARY KEY,
			embedding float[%d] distance_metric=cosine
		);
	`, s.dimension, s.dimension)

	if _, err := s.db.Exec(vectorSchema); err != nil {
		return fmt.Errorf("failed to create vector tables: %w", err)
	}

	return nil
}

// Ping verifies the database connection is alive
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database
func (s *Store) Close() error {
	s.logger.Info().Msg("Closing store")
	return s.db.Close()
}

// vectorKey joins an owner id and an ordinal into the vec0 primary key.
func vectorKey(owner string, ordinal int64) string {
	return owner + "#" + strconv.FormatInt(ordinal, 10)
}

// splitVectorKey reverses vectorKey. Owner ids may themselves contain '#',
// so the split happens at the last separator.
func splitVectorKey(key string) (string, int64, error) {
	idx := strings.LastIndex(key, "#")
	if idx < 0 {
		return "", 0, fmt.Errorf("malformed vector key %q", key)
	}
	n, err := strconv.ParseInt(key[idx+1:], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("malformed vector key %q: %w", key, err)
	}
	return key[:idx], n, nil
}

func marshalVector(vec []float32) (string, error) {
	data, err := json.Marshal(vec)
	if err != nil {
		return "", fmt.Errorf("failed to marshal embedding: %w", err)
	}
	return string(data), nil
}

func unmarshalVector(data string) ([]float32, error) {
	var vec []float32
	if err := json.Unmarshal([]byte(data), &vec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal embedding: %w", err)
	}
	return vec, nil
}

func marshalMetadata(md map[string]string) (string, error) {
	if md == nil {
		return "{}", nil
	}
	data, err := json.Marshal(md)
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return string(data), nil
}

func unmarshalMetadata(data string) (map[string]string, error) {
	md := make(map[string]string)
	if data == "" {
		return md, nil
	}
	if err := json.Unmarshal([]byte(data), &md); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return md, nil
}
