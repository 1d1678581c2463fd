package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halwind/mnemo/internal/config"
)

func TestPIDFilePath(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DataDir = "/data/mnemo"

	assert.Equal(t, "/data/mnemo/mnemo.pid", pidFilePath(cfg))
}

func TestReadPID(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		_, ok := readPID(filepath.Join(dir, "missing.pid"))
		assert.False(t, ok)
	})

	t.Run("valid pid", func(t *testing.T) {
		path := filepath.Join(dir, "valid.pid")
		require.NoError(t, os.WriteFile(path, []byte("1234"), 0644))

		pid, ok := readPID(path)
		assert.True(t, ok)
		assert.Equal(t, 1234, pid)
	})

	t.Run("garbage content", func(t *testing.T) {
		path := filepath.Join(dir, "garbage.pid")
		require.NoError(t, os.WriteFile(path, []byte("not-a-pid"), 0644))

		_, ok := readPID(path)
		assert.False(t, ok)
	})
}

func TestProcessExists(t *testing.T) {
	assert.True(t, processExists(os.Getpid()), "own process should exist")
}
