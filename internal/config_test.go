package internal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 5432, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.QueryTimeout())
	assert.Equal(t, 10*time.Second, cfg.ConnectionTimeout())
	assert.Equal(t, "./data", cfg.Storage.DataRoot)
	assert.Equal(t, 128, cfg.Buffer.Capacity)
	assert.Equal(t, 0.80, cfg.Buffer.EvictionThreshold)
	assert.Equal(t, 0.60, cfg.Buffer.TargetUtilization)
	assert.Equal(t, time.Second, cfg.EvictionInterval())
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
server:
  port: 6000
  query_timeout_ms: 5000
storage:
  data_root: /tmp/minipg-data
buffer:
  capacity: 16
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 6000, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.QueryTimeout())
	assert.Equal(t, "/tmp/minipg-data", cfg.Storage.DataRoot)
	assert.Equal(t, 16, cfg.Buffer.Capacity)
	// untouched keys keep their defaults
	assert.Equal(t, 10*time.Second, cfg.ConnectionTimeout())
	assert.Equal(t, 0.80, cfg.Buffer.EvictionThreshold)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
