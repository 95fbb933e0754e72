package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestApplyDefaults(t *testing.T) {
	cfg := &ServerConfig{HTTPTimeout: -1, Workers: 9}
	cfg.applyDefaults()

	require.Equal(t, 9, cfg.Workers)
	require.Equal(t, time.Duration(-1), cfg.HTTPTimeout, "negative timeouts are kept")
	require.Equal(t, DefaultWriteTimeout, cfg.WriteTimeout)
	require.Equal(t, DefaultCommandTimeout, cfg.CommandTimeout)
	require.Equal(t, DefaultHTTPChunkSize, cfg.HTTPChunkSize)
	require.Equal(t, DefaultCommandChunkSize, cfg.CommandChunkSize)
	require.Equal(t, DefaultHealthCheckInterval, cfg.HealthCheckInterval)
	require.NotNil(t, cfg.Logger)
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	t.Run("Full file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "httpd.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
service_addr: ":8080"
control_addr: ":8081"
root_dir: /srv/www
workers: 8
http_timeout: 3s
command_timeout: 1m
command_chunk_size: 256
health_check_interval: 500ms
metrics_addr: "127.0.0.1:9100"
debug: true
`), 0o644))

		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		require.Equal(t, ":8080", cfg.ServiceAddr)
		require.Equal(t, ":8081", cfg.ControlAddr)
		require.Equal(t, "/srv/www", cfg.RootDir)
		require.Equal(t, 8, cfg.Workers)
		require.Equal(t, 3*time.Second, cfg.HTTPTimeout)
		require.Equal(t, time.Minute, cfg.CommandTimeout)
		require.Equal(t, 256, cfg.CommandChunkSize)
		require.Equal(t, 500*time.Millisecond, cfg.HealthCheckInterval)
		require.Equal(t, "127.0.0.1:9100", cfg.MetricsAddr)
		require.True(t, cfg.Debug)
		require.Zero(t, cfg.WriteTimeout)
	})

	t.Run("Missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
		require.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("Bad YAML", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("workers: [1, 2"), 0o644))

		_, err := LoadConfig(path)
		require.Error(t, err)
	})

	t.Run("Bad duration", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("http_timeout: soon"), 0o644))

		_, err := LoadConfig(path)
		require.Error(t, err)
	})
}
