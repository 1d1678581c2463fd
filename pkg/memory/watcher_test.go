package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIngestable(t *testing.T) {
	assert.True(t, ingestable("notes.txt"))
	assert.True(t, ingestable("README.MD"))
	assert.False(t, ingestable("photo.png"))
	assert.False(t, ingestable("archive.tar.gz"))
}

func TestDocumentWatcherIngestsDroppedFile(t *testing.T) {
	st := newFakeStore()
	m := newTestManager(t, st, &fakeSearcher{})

	dw, err := NewDocumentWatcher(m, zerolog.Nop())
	require.NoError(t, err)
	defer dw.Stop()

	dir := t.TempDir()
	require.NoError(t, dw.Watch(dir))

	path := filepath.Join(dir, "dropped.txt")
	require.NoError(t, os.WriteFile(path, []byte("The quick brown fox jumps over the lazy dog."), 0644))

	require.Eventually(t, func() bool {
		docs, err := m.ListDocuments(context.Background())
		if err != nil {
			return false
		}
		for _, d := range docs {
			if d.Name == "dropped.txt" && d.Status == "completed" {
				return true
			}
		}
		return false
	}, 5*time.Second, 50*time.Millisecond, "dropped file should be ingested")
}

func TestDocumentWatcherSkipsUnsupportedFiles(t *testing.T) {
	st := newFakeStore()
	m := newTestManager(t, st, &fakeSearcher{})

	dw, err := NewDocumentWatcher(m, zerolog.Nop())
	require.NoError(t, err)
	defer dw.Stop()

	dir := t.TempDir()
	require.NoError(t, dw.Watch(dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "image.png"), []byte{0x89, 0x50}, 0644))

	time.Sleep(1 * time.Second)

	docs, err := m.ListDocuments(context.Background())
	require.NoError(t, err)
	assert.Empty(t, docs)
}
