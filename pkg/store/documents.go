package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// UpsertDocument inserts or replaces a document row
func (s *Store) UpsertDocument(ctx context.Context, doc DocumentRow) error {
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, name, status, total_chunks, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			status = excluded.status,
			total_chunks = excluded.total_chunks
	`, doc.ID, doc.Name, doc.Status, doc.TotalChunks, doc.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}
	return nil
}

// UpdateDocumentStatus updates ingestion status and chunk count
func (s *Store) UpdateDocumentStatus(ctx context.Context, docID, status string, totalChunks int) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE documents SET status = ?, total_chunks = ? WHERE id = ?",
		status, totalChunks, docID,
	)
	if err != nil {
		return fmt.Errorf("failed to update document status: %w", err)
	}
	return nil
}

// ListDocuments returns all document rows, newest first
func (s *Store) ListDocuments(ctx context.Context) ([]DocumentRow, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, status, total_chunks, created_at FROM documents ORDER BY created_at DESC",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []DocumentRow
	for rows.Next() {
		var d DocumentRow
		var createdAt int64
		if err := rows.Scan(&d.ID, &d.Name, &d.Status, &d.TotalChunks, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan document row: %w", err)
		}
		d.CreatedAt = time.Unix(createdAt, 0)
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// DeleteDocument removes a document together with its chunks and vector rows
func (s *Store) DeleteDocument(ctx context.Context, docID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM doc_vectors WHERE chunk_key IN (SELECT doc_id || '#' || ordinal FROM doc_chunks WHERE doc_id = ?)",
		docID,
	); err != nil {
		return fmt.Errorf("failed to delete vector rows: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM doc_chunks WHERE doc_id = ?", docID); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", docID); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete: %w", err)
	}

	s.logger.Info().Str("doc_id", docID).Msg("Document deleted")
	return nil
}

// InsertChunk stores a chunk row and its vector row
func (s *Store) InsertChunk(ctx context.Context, chunk ChunkRow) error {
	embJSON, err := marshalVector(chunk.Embedding)
	if err != nil {
		return err
	}
	mdJSON, err := marshalMetadata(chunk.Metadata)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO doc_chunks (doc_id, ordinal, content, metadata, token_count, embedding)
		VALUES (?, ?, ?, ?, ?, ?)
	`, chunk.DocID, chunk.Ordinal, chunk.Content, mdJSON, chunk.TokenCount, embJSON); err != nil {
		return fmt.Errorf("failed to insert chunk: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT OR REPLACE INTO doc_vectors (chunk_key, embedding) VALUES (?, ?)",
		vectorKey(chunk.DocID, int64(chunk.Ordinal)), embJSON,
	); err != nil {
		return fmt.Errorf("failed to insert vector row: %w", err)
	}

	return tx.Commit()
}

// AnnSearchDocuments returns up to limit chunk rows nearest to the query
// vector, in ascending distance order. An empty result is not an error.
func (s *Store) AnnSearchDocuments(ctx context.Context, queryVec []float32, limit int) ([]ChunkRow, error) {
	queryJSON, err := marshalVector(queryVec)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT chunk_key, vec_distance_cosine(embedding, ?) AS distance
		FROM doc_vectors
		ORDER BY distance ASC
		LIMIT ?
	`, queryJSON, limit)
	if err != nil {
		return nil, fmt.Errorf("document ANN search failed: %w", err)
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

	return s.chunksByKeys(ctx, keys)
}

// chunksByKeys resolves vec0 keys to full chunk rows, preserving key order.
func (s *Store) chunksByKeys(ctx context.Context, keys []string) ([]ChunkRow, error) {
	chunks := make([]ChunkRow, 0, len(keys))
	for _, key := range keys {
		docID, ordinal, err := splitVectorKey(key)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Skipping malformed vector key")
			continue
		}

		chunk, err := s.fetchChunk(ctx, docID, int(ordinal))
		if err != nil {
			// Vector row outlived its chunk; skip rather than fail the search
			s.logger.Warn().Err(err).Str("chunk_key", key).Msg("Failed to resolve ANN hit")
			continue
		}
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

func (s *Store) fetchChunk(ctx context.Context, docID string, ordinal int) (ChunkRow, error) {
	var (
		chunk   ChunkRow
		mdJSON  string
		embJSON string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT doc_id, ordinal, content, metadata, token_count, embedding
		FROM doc_chunks WHERE doc_id = ? AND ordinal = ?
	`, docID, ordinal).Scan(
		&chunk.DocID, &chunk.Ordinal, &chunk.Content, &mdJSON, &chunk.TokenCount, &embJSON,
	)
	if err != nil {
		return ChunkRow{}, fmt.Errorf("failed to fetch chunk %s#%d: %w", docID, ordinal, err)
	}

	if chunk.Metadata, err = unmarshalMetadata(mdJSON); err != nil {
		return ChunkRow{}, err
	}
	if chunk.Embedding, err = unmarshalVector(embJSON); err != nil {
		return ChunkRow{}, err
	}
	return chunk, nil
}

// ScanDocumentChunks returns every chunk row. Used as the exhaustive fallback
// when ANN search comes back empty under index lag.
func (s *Store) ScanDocumentChunks(ctx context.Context) ([]ChunkRow, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT doc_id, ordinal, content, metadata, token_count, embedding FROM doc_chunks ORDER BY doc_id, ordinal",
	)
	if err != nil {
		return nil, fmt.Errorf("document scan failed: %w", err)
	}
	defer rows.Close()

	return scanChunkRows(rows)
}

// RangeFetchChunks returns chunks of a document with lo <= ordinal <= hi in
// ordinal order.
func (s *Store) RangeFetchChunks(ctx context.Context, docID string, lo, hi int) ([]ChunkRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT doc_id, ordinal, content, metadata, token_count, embedding
		FROM doc_chunks
		WHERE doc_id = ? AND ordinal >= ? AND ordinal <= ?
		ORDER BY ordinal
	`, docID, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("range fetch failed: %w", err)
	}
	defer rows.Close()

	return scanChunkRows(rows)
}

func scanChunkRows(rows *sql.Rows) ([]ChunkRow, error) {
	var chunks []ChunkRow
	for rows.Next() {
		var (
			chunk   ChunkRow
			mdJSON  string
			embJSON string
		)
		if err := rows.Scan(&chunk.DocID, &chunk.Ordinal, &chunk.Content, &mdJSON, &chunk.TokenCount, &embJSON); err != nil {
			return nil, fmt.Errorf("failed to scan chunk row: %w", err)
		}

		var err error
		if chunk.Metadata, err = unmarshalMetadata(mdJSON); err != nil {
			return nil, err
		}
		if chunk.Embedding, err = unmarshalVector(embJSON); err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}
