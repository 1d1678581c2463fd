package memory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/halwind/mnemo/internal/observability"
	"github.com/halwind/mnemo/internal/tracing"
	"github.com/halwind/mnemo/pkg/embedding"
	"github.com/halwind/mnemo/pkg/store"
)

// IngestDocument chunks and embeds a document into the shared index.
// The document row is visible with status "processing" while chunks are
// written, then flipped to "completed" or "failed".
func (m *Manager) IngestDocument(ctx context.Context, name, text string) (*IngestResult, error) {
	if name == "" {
		return nil, fmt.Errorf("document name is required")
	}

	ctx, span := tracing.StartSpan(ctx, "memory", "ingest_document",
		attribute.String("document", name))
	defer span.End()

	start := time.Now()
	docID := uuid.NewString()

	if err := m.st.UpsertDocument(ctx, store.DocumentRow{
		ID:     docID,
		Name:   name,
		Status: store.StatusProcessing,
	}); err != nil {
		observability.RecordIngest(time.Since(start), 0, false)
		return nil, fmt.Errorf("failed to register document: %w", err)
	}

	result, err := m.ingestChunks(ctx, docID, text)
	if err != nil {
		if stErr := m.st.UpdateDocumentStatus(ctx, docID, store.StatusFailed, 0); stErr != nil {
			m.logger.Error().Err(stErr).Str("doc_id", docID).Msg("Failed to mark document failed")
		}
		observability.RecordIngest(time.Since(start), 0, false)
		observability.RecordIngestAudit(ctx, docID, "failure", map[string]interface{}{"name": name})
		return nil, err
	}

	if err := m.st.UpdateDocumentStatus(ctx, docID, store.StatusCompleted, result); err != nil {
		observability.RecordIngest(time.Since(start), result, false)
		return nil, fmt.Errorf("failed to complete document: %w", err)
	}

	observability.RecordIngest(time.Since(start), result, true)
	observability.RecordIngestAudit(ctx, docID, "success", map[string]interface{}{
		"name":   name,
		"chunks": result,
	})
	m.logger.Info().
		Str("doc_id", docID).
		Str("name", name).
		Int("chunks", result).
		Dur("elapsed", time.Since(start)).
		Msg("Document ingested")

	return &IngestResult{DocID: docID, Name: name, Chunks: result}, nil
}

// ingestChunks splits, embeds and stores the document body, returning
// the number of chunks written.
func (m *Manager) ingestChunks(ctx context.Context, docID, text string) (int, error) {
	chunks := m.chunker.Chunk(text, docID)
	if len(chunks) == 0 {
		return 0, fmt.Errorf("document produced no chunks")
	}

	contents := make([]string, len(chunks))
	for i, c := range chunks {
		contents[i] = c.Content
	}

	embStart := time.Now()
	vecs, err := m.provider.EmbedBatch(ctx, contents)
	observability.RecordEmbed(m.provider.Name(), time.Since(embStart), err == nil)
	if err != nil {
		return 0, fmt.Errorf("failed to embed document chunks: %w", err)
	}
	if len(vecs) != len(chunks) {
		return 0, fmt.Errorf("embedding count mismatch: %d chunks, %d vectors", len(chunks), len(vecs))
	}

	for i, c := range chunks {
		vec := embedding.Sanitize(vecs[i], m.provider.Dimension(), m.logger)
		if err := m.st.InsertChunk(ctx, store.ChunkRow{
			DocID:      docID,
			Ordinal:    c.Ordinal,
			Content:    c.Content,
			Metadata:   c.Metadata,
			TokenCount: c.TokenCount,
			Embedding:  vec,
		}); err != nil {
			return 0, fmt.Errorf("failed to store chunk %d: %w", c.Ordinal, err)
		}
	}

	return len(chunks), nil
}

// IngestFile reads a document from disk and ingests it under its base
// file name.
func (m *Manager) IngestFile(ctx context.Context, path string) (*IngestResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	return m.IngestDocument(ctx, filepath.Base(path), string(data))
}

// ListDocuments returns all documents, newest first.
func (m *Manager) ListDocuments(ctx context.Context) ([]store.DocumentRow, error) {
	docs, err := m.st.ListDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return docs, nil
}

// DeleteDocument removes a document, its chunks and its vector rows.
func (m *Manager) DeleteDocument(ctx context.Context, docID string) error {
	if docID == "" {
		return fmt.Errorf("document id is required")
	}
	if err := m.st.DeleteDocument(ctx, docID); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	m.logger.Info().Str("doc_id", docID).Msg("Document deleted")
	return nil
}
