package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_NoConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "nonexistent.yaml"))
	require.NoError(t, err)
	require.Equal(t, "INFO", cfg.Logging.Level)
	require.Equal(t, "badger", cfg.Index.Backend)
	require.Equal(t, 1, cfg.Shards)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blockpack.yaml")
	content := `
volume:
  size: 16MiB
  codec: zstd
index_file_policy: lookup
index:
  backend: postgres
  postgres_dsn: "postgres://localhost/blockpack"
shards: 4
uploader:
  backend: s3
  workers: 8
  queue_size: 128
  stop_timeout: 1m
  s3:
    bucket: my-backups
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.EqualValues(t, 16*1024*1024, cfg.Volume.Size)
	require.Equal(t, "lookup", cfg.IndexFilePolicy)
	require.Equal(t, "postgres", cfg.Index.Backend)
	require.Equal(t, 4, cfg.Shards)
	require.Equal(t, "s3", cfg.Uploader.Backend)
	require.Equal(t, "my-backups", cfg.Uploader.S3.Bucket)
	require.Equal(t, time.Minute, cfg.Uploader.StopTimeout)
}

func TestValidate_RejectsMissingBackendTarget(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Index.Backend = "postgres"
	cfg.Index.PostgresDSN = ""
	require.Error(t, Validate(cfg))
}

func TestSaveAndReload_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blockpack.yaml")

	cfg := DefaultConfig()
	cfg.Shards = 3
	require.NoError(t, Save(cfg, path))

	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 3, reloaded.Shards)
}
