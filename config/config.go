// Package config holds the storage configuration, loadable from YAML with
// environment overrides for container deployments.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Backend selects the storage implementation behind the Manager contract.
const (
	BackendZeroCopy = "zerocopy"
	BackendSQLite   = "sqlite"
)

// Config defines storage settings.
type Config struct {
	Backend             string `yaml:"backend"`
	DataDir             string `yaml:"data_dir"`
	SQLiteDSN           string `yaml:"sqlite_dsn,omitempty"`
	BatchSize           int    `yaml:"batch_size"`
	InitialFileSizeMB   int    `yaml:"initial_file_size_mb"`
	MaxFileSizeGB       int    `yaml:"max_file_size_gb"`
	IndexCacheSize      int    `yaml:"index_cache_size"`
	CacheMaxEntries     int    `yaml:"cache_max_entries"`
	CacheMaxMemoryMB    int    `yaml:"cache_max_memory_mb"`
	SyncIntervalSeconds int    `yaml:"sync_interval_seconds"`
	EnableCompression   bool   `yaml:"enable_compression"`
}

// Default returns a Config with production defaults.
func Default() *Config {
	return &Config{
		Backend:             BackendZeroCopy,
		DataDir:             "data",
		BatchSize:           1000,
		InitialFileSizeMB:   64,
		MaxFileSizeGB:       10,
		IndexCacheSize:      100000,
		CacheMaxEntries:     10000,
		CacheMaxMemoryMB:    64,
		SyncIntervalSeconds: 30,
	}
}

// Load reads a YAML config file, filling unset fields from defaults and
// applying environment overrides last.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.FromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv applies MEDIASTORE_* environment overrides in place.
func (c *Config) FromEnv() {
	if v := os.Getenv("MEDIASTORE_BACKEND"); v != "" {
		c.Backend = v
	}
	if v := os.Getenv("MEDIASTORE_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("MEDIASTORE_SQLITE_DSN"); v != "" {
		c.SQLiteDSN = v
	}
	overrideInt(&c.BatchSize, "MEDIASTORE_BATCH_SIZE")
	overrideInt(&c.InitialFileSizeMB, "MEDIASTORE_INITIAL_FILE_SIZE_MB")
	overrideInt(&c.MaxFileSizeGB, "MEDIASTORE_MAX_FILE_SIZE_GB")
	overrideInt(&c.IndexCacheSize, "MEDIASTORE_INDEX_CACHE_SIZE")
	overrideInt(&c.CacheMaxEntries, "MEDIASTORE_CACHE_MAX_ENTRIES")
	overrideInt(&c.CacheMaxMemoryMB, "MEDIASTORE_CACHE_MAX_MEMORY_MB")
	overrideInt(&c.SyncIntervalSeconds, "MEDIASTORE_SYNC_INTERVAL_SECONDS")
	if v := os.Getenv("MEDIASTORE_ENABLE_COMPRESSION"); v != "" {
		c.EnableCompression = strings.EqualFold(v, "true") || v == "1"
	}
}

func overrideInt(dst *int, name string) {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// Validate checks field ranges. Compression is accepted in the file for
// forward compatibility but no backend implements it yet.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendZeroCopy, BackendSQLite:
	default:
		return fmt.Errorf("config: unknown backend %q", c.Backend)
	}
	if c.DataDir == "" {
		return fmt.Errorf("config: data_dir is required")
	}
	if c.BatchSize < 10 || c.BatchSize > 1000000 {
		return fmt.Errorf("config: batch_size %d out of range [10, 1000000]", c.BatchSize)
	}
	if c.InitialFileSizeMB < 1 {
		return fmt.Errorf("config: initial_file_size_mb must be at least 1")
	}
	if c.MaxFileSizeGB < 1 {
		return fmt.Errorf("config: max_file_size_gb must be at least 1")
	}
	if int64(c.InitialFileSizeMB)<<20 > int64(c.MaxFileSizeGB)<<30 {
		return fmt.Errorf("config: initial_file_size_mb exceeds max_file_size_gb")
	}
	if c.IndexCacheSize < 100 || c.IndexCacheSize > 10000000 {
		return fmt.Errorf("config: index_cache_size %d out of range [100, 10000000]", c.IndexCacheSize)
	}
	if c.CacheMaxEntries < 1 {
		return fmt.Errorf("config: cache_max_entries must be positive")
	}
	if c.CacheMaxMemoryMB < 1 {
		return fmt.Errorf("config: cache_max_memory_mb must be positive")
	}
	if c.SyncIntervalSeconds < 1 {
		return fmt.Errorf("config: sync_interval_seconds must be positive")
	}
	return nil
}

// StorePath returns the backing file location inside DataDir.
func (c *Config) StorePath() string {
	return filepath.Join(c.DataDir, "media.bin")
}

// IndexPath returns the index snapshot location inside DataDir.
func (c *Config) IndexPath() string {
	return filepath.Join(c.DataDir, "media.idx")
}

// DSN returns the SQLite DSN, defaulting to a file inside DataDir.
func (c *Config) DSN() string {
	if c.SQLiteDSN != "" {
		return c.SQLiteDSN
	}
	return filepath.Join(c.DataDir, "media.db")
}
