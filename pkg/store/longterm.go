package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// InsertLongTerm stores a durable conversation record and its vector row
func (s *Store) InsertLongTerm(ctx context.Context, rec LongTermRow) error {
	if rec.SessionID == "" {
		return fmt.Errorf("session id is required")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	embJSON, err := marshalVector(rec.Embedding)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO long_term (session_id, record_id, role, content, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rec.SessionID, rec.RecordID, rec.Role, rec.Content, embJSON, rec.CreatedAt.Unix()); err != nil {
		return fmt.Errorf("failed to insert long-term record: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT OR REPLACE INTO long_term_vectors (record_key, embedding) VALUES (?, ?)",
		vectorKey(rec.SessionID, rec.RecordID), embJSON,
	); err != nil {
		return fmt.Errorf("failed to insert long-term vector row: %w", err)
	}

	return tx.Commit()
}

// AnnSearchLongTerm returns up to limit long-term rows nearest to the query
// vector, in ascending distance order. Results are NOT session-scoped; the
// retrieval engine filters by session on every row.
func (s *Store) AnnSearchLongTerm(ctx context.Context, queryVec []float32, limit int) ([]LongTermRow, error) {
	queryJSON, err := marshalVector(queryVec)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT record_key, vec_distance_cosine(embedding, ?) AS distance
		FROM long_term_vectors
		ORDER BY distance ASC
		LIMIT ?
	`, queryJSON, limit)
	if err != nil {
		return nil, fmt.Errorf("long-term ANN search failed: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		var distance float64
		if err := rows.Scan(&key, &distance); err != nil {
			return nil, fmt.Errorf("failed to scan ANN row: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	recs := make([]LongTermRow, 0, len(keys))
	for _, key := range keys {
		sessionID, recordID, err := splitVectorKey(key)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Skipping malformed vector key")
			continue
		}
		rec, err := s.fetchLongTerm(ctx, sessionID, recordID)
		if err != nil {
			s.logger.Warn().Err(err).Str("record_key", key).Msg("Failed to resolve ANN hit")
			continue
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func (s *Store) fetchLongTerm(ctx context.Context, sessionID string, recordID int64) (LongTermRow, error) {
	var (
		rec       LongTermRow
		embJSON   string
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT session_id, record_id, role, content, embedding, created_at
		FROM long_term WHERE session_id = ? AND record_id = ?
	`, sessionID, recordID).Scan(
		&rec.SessionID, &rec.RecordID, &rec.Role, &rec.Content, &embJSON, &createdAt,
	)
	if err != nil {
		return LongTermRow{}, fmt.Errorf("failed to fetch long-term record %s#%d: %w", sessionID, recordID, err)
	}

	if rec.Embedding, err = unmarshalVector(embJSON); err != nil {
		return LongTermRow{}, err
	}
	rec.CreatedAt = time.Unix(createdAt, 0)
	return rec, nil
}

// ScanLongTerm returns all long-term rows for a session in record order.
// Used as the session-scoped exhaustive fallback under index lag.
func (s *Store) ScanLongTerm(ctx context.Context, sessionID string) ([]LongTermRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, record_id, role, content, embedding, created_at
		FROM long_term
		WHERE session_id = ?
		ORDER BY record_id
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("long-term scan failed: %w", err)
	}
	defer rows.Close()

	return scanLongTermRows(rows)
}

func scanLongTermRows(rows *sql.Rows) ([]LongTermRow, error) {
	var recs []LongTermRow
	for rows.Next() {
		var (
			rec       LongTermRow
			embJSON   string
			createdAt int64
		)
		if err := rows.Scan(&rec.SessionID, &rec.RecordID, &rec.Role, &rec.Content, &embJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan long-term row: %w", err)
		}

		var err error
		if rec.Embedding, err = unmarshalVector(embJSON); err != nil {
			return nil, err
		}
		rec.CreatedAt = time.Unix(createdAt, 0)
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// CountLongTerm counts long-term records for a session
func (s *Store) CountLongTerm(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM long_term WHERE session_id = ?", sessionID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count long-term records: %w", err)
	}
	return count, nil
}
