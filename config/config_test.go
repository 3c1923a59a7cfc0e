package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	require.Equal(t, 4096, cfg.Engine.PageSize)
	require.Equal(t, 64, cfg.Engine.PoolSize)
	require.Equal(t, 2, cfg.Engine.ReplacerK)
	require.False(t, cfg.Telemetry.Enabled)
}

func TestLoadLayersOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kurodb.yaml")
	doc := `
engine:
  pool_size: 128
  data_file: /tmp/custom.db
logger:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 128, cfg.Engine.PoolSize)
	require.Equal(t, "/tmp/custom.db", cfg.Engine.DataFile)
	require.Equal(t, "debug", cfg.Logger.Level)
	// Untouched keys keep their defaults.
	require.Equal(t, 4096, cfg.Engine.PageSize)
	require.Equal(t, 2, cfg.Engine.ReplacerK)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
