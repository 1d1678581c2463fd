package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	loader := NewLoader(filepath.Join(t.TempDir(), "nope.json"))

	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, "ollama", cfg.Embedding.Provider)
	assert.Equal(t, 6, cfg.Retrieval.DocTopK)
	assert.NotEmpty(t, cfg.Database.Path)
	assert.NotEmpty(t, cfg.Logging.File)
}

func TestLoadReadsFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mnemo.json")
	body := `{
		"data_dir": "` + dir + `",
		"retrieval": {"doc_top_k": 9, "long_similarity_threshold": 0.5},
		"memory": {"short_term_max_messages": 8},
		"chunking": {"strategy": "fixed"}
	}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 9, cfg.Retrieval.DocTopK)
	assert.InDelta(t, 0.5, cfg.Retrieval.LongSimilarityThreshold, 1e-9)
	assert.Equal(t, 8, cfg.Memory.ShortTermMaxMessages)
	assert.Equal(t, "fixed", cfg.Chunking.Strategy)

	// Untouched fields keep their defaults.
	assert.Equal(t, 4, cfg.Retrieval.LongTopK)
	assert.Equal(t, 512, cfg.Chunking.ChunkSize)

	// Paths resolve under the configured data dir.
	assert.Equal(t, filepath.Join(dir, "mnemo.db"), cfg.Database.Path)
	assert.Equal(t, filepath.Join(dir, "mnemo.log"), cfg.Logging.File)
}

func TestLoadAPIKeyFromEnv(t *testing.T) {
	t.Setenv("MNEMO_EMBEDDING_API_KEY", "sk-from-env")

	cfg, err := NewLoader(filepath.Join(t.TempDir(), "nope.json")).Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-from-env", cfg.Embedding.APIKey)
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mnemo.json")
	loader := NewLoader(path)

	cfg := DefaultConfig()
	cfg.DataDir = dir
	cfg.Retrieval.DocTopK = 12
	cfg.Ingest.WatchEnabled = true
	cfg.Ingest.WatchDir = filepath.Join(dir, "drop")

	require.NoError(t, loader.Save(cfg))

	loaded, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, 12, loaded.Retrieval.DocTopK)
	assert.True(t, loaded.Ingest.WatchEnabled)
	assert.Equal(t, cfg.Ingest.WatchDir, loaded.Ingest.WatchDir)
}

func TestGetConfigPath(t *testing.T) {
	assert.Equal(t, "/tmp/x.json", NewLoader("/tmp/x.json").GetConfigPath())
	assert.Contains(t, NewLoader("").GetConfigPath(), ".mnemo")
}
