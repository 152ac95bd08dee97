package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
backend: zerocopy
data_dir: /var/lib/mediastore
batch_size: 500
max_file_size_gb: 2
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, BackendZeroCopy, cfg.Backend)
	assert.Equal(t, "/var/lib/mediastore", cfg.DataDir)
	assert.Equal(t, 500, cfg.BatchSize)
	assert.Equal(t, 2, cfg.MaxFileSizeGB)
	assert.Equal(t, 100000, cfg.IndexCacheSize, "unset fields keep defaults")
	assert.Equal(t, filepath.Join("/var/lib/mediastore", "media.bin"), cfg.StorePath())
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.Backend = "postgres" }},
		{"empty data dir", func(c *Config) { c.DataDir = "" }},
		{"batch size too small", func(c *Config) { c.BatchSize = 5 }},
		{"batch size too large", func(c *Config) { c.BatchSize = 2000000 }},
		{"index cache too small", func(c *Config) { c.IndexCacheSize = 10 }},
		{"initial exceeds max", func(c *Config) { c.InitialFileSizeMB = 4096; c.MaxFileSizeGB = 1 }},
		{"zero sync interval", func(c *Config) { c.SyncIntervalSeconds = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("MEDIASTORE_BACKEND", "sqlite")
	t.Setenv("MEDIASTORE_BATCH_SIZE", "250")
	t.Setenv("MEDIASTORE_DATA_DIR", "/srv/media")

	cfg := Default()
	cfg.FromEnv()
	assert.Equal(t, BackendSQLite, cfg.Backend)
	assert.Equal(t, 250, cfg.BatchSize)
	assert.Equal(t, "/srv/media", cfg.DataDir)
}

func TestDSNDefault(t *testing.T) {
	cfg := Default()
	cfg.DataDir = "/tmp/media"
	assert.Equal(t, filepath.Join("/tmp/media", "media.db"), cfg.DSN())
	cfg.SQLiteDSN = "file:custom.db?mode=memory"
	assert.Equal(t, "file:custom.db?mode=memory", cfg.DSN())
}
