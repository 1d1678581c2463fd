package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// InsertTurn appends a short-term conversation turn with the given TTL
func (s *Store) InsertTurn(ctx context.Context, sessionID, role, content string, ttl time.Duration) error {
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}

	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO turns (session_id, role, content, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
	`, sessionID, role, content, now.Unix(), now.Add(ttl).Unix())
	if err != nil {
		return fmt.Errorf("failed to insert turn: %w", err)
	}
	return nil
}

// RecentTurns returns up to limit unexpired turns for a session,
// most recent first.
func (s *Store) RecentTurns(ctx context.Context, sessionID string, limit int) ([]TurnRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, id, role, content, created_at, expires_at
		FROM turns
		WHERE session_id = ? AND expires_at > ?
		ORDER BY id DESC
		LIMIT ?
	`, sessionID, time.Now().Unix(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch recent turns: %w", err)
	}
	defer rows.Close()

	var turns []TurnRow
	for rows.Next() {
		var t TurnRow
		var createdAt, expiresAt int64
		if err := rows.Scan(&t.SessionID, &t.Seq, &t.Role, &t.Content, &createdAt, &expiresAt); err != nil {
			return nil, fmt.Errorf("failed to scan turn row: %w", err)
		}
		t.CreatedAt = time.Unix(createdAt, 0)
		t.ExpiresAt = time.Unix(expiresAt, 0)
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// DeleteTurns removes all short-term turns for a session
func (s *Store) DeleteTurns(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM turns WHERE session_id = ?", sessionID); err != nil {
		return fmt.Errorf("failed to delete turns: %w", err)
	}
	return nil
}

// CountTurns counts unexpired turns for a session
func (s *Store) CountTurns(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM turns WHERE session_id = ? AND expires_at > ?",
		sessionID, time.Now().Unix(),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count turns: %w", err)
	}
	return count, nil
}

// PurgeExpiredTurns deletes turns past their TTL and returns how many were
// removed. SQLite has no native row expiry, so a background loop drives this.
func (s *Store) PurgeExpiredTurns(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM turns WHERE expires_at <= ?", time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired turns: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// ListSessions summarizes sessions that still have unexpired turns,
// most recently active first.
func (s *Store) ListSessions(ctx context.Context) ([]SessionInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.session_id, COUNT(*), MAX(t.created_at), COALESCE(n.display_name, '')
		FROM turns t
		LEFT JOIN session_names n ON n.session_id = t.session_id
		WHERE t.expires_at > ?
		GROUP BY t.session_id
		ORDER BY MAX(t.created_at) DESC
	`, time.Now().Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []SessionInfo
	for rows.Next() {
		var info SessionInfo
		var lastAt int64
		if err := rows.Scan(&info.SessionID, &info.MessageCount, &lastAt, &info.DisplayName); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		info.LastMessageAt = time.Unix(lastAt, 0)
		sessions = append(sessions, info)
	}
	return sessions, rows.Err()
}

// RenameSession sets a display name for a session
func (s *Store) RenameSession(ctx context.Context, sessionID, displayName string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_names (session_id, display_name)
		VALUES (?, ?)
		ON CONFLICT (session_id) DO UPDATE SET display_name = excluded.display_name
	`, sessionID, displayName)
	if err != nil {
		return fmt.Errorf("failed to rename session: %w", err)
	}
	return nil
}

// DisplayName returns the display name for a session, or empty if unset
func (s *Store) DisplayName(ctx context.Context, sessionID string) (string, error) {
	var name string
	err := s.db.QueryRowContext(ctx,
		"SELECT display_name FROM session_names WHERE session_id = ?", sessionID,
	).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to fetch display name: %w", err)
	}
	return name, nil
}
