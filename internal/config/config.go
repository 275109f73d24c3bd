// Package config provides unified configuration for the metatables service and CLI.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "METATABLES_"

// Config holds the unified configuration.
type Config struct {
	// DataDir is the base directory for the catalog database and local warehouse
	DataDir string `json:"data_dir" yaml:"data_dir"`

	Log LogConfig `json:"log" yaml:"log"`

	HTTP HTTPConfig `json:"http" yaml:"http"`

	Catalog CatalogConfig `json:"catalog" yaml:"catalog"`

	Storage StorageConfig `json:"storage" yaml:"storage"`

	Scan ScanConfig `json:"scan" yaml:"scan"`

	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
}

// LogConfig controls the go-kit logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error
	Level string `json:"level" yaml:"level"`

	// Format is logfmt or json
	Format string `json:"format" yaml:"format"`
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	// Addr is the listen address of the metadata-table API
	Addr string `json:"addr" yaml:"addr"`

	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
}

// CatalogConfig holds the SQLite catalog location.
type CatalogConfig struct {
	// Path is the SQLite database file. Defaults to <data_dir>/catalog.db
	Path string `json:"path" yaml:"path"`
}

// StorageConfig holds storage configuration.
type StorageConfig struct {
	// Type is the storage type: local, s3
	Type string `json:"type" yaml:"type"`

	// Path is the local warehouse root (for local type)
	Path string `json:"path" yaml:"path"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3"`

	// ManifestCacheBytes bounds the in-memory cache of manifest and manifest
	// list files. Zero disables the cache.
	ManifestCacheBytes int64 `json:"manifest_cache_bytes" yaml:"manifest_cache_bytes"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	Bucket string `json:"bucket" yaml:"bucket"`
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// UsePathStyle forces path-style addressing, required by most S3-compatible stores
	UsePathStyle bool `json:"use_path_style" yaml:"use_path_style"`
}

// ScanConfig holds the defaults applied to every metadata-table scan.
type ScanConfig struct {
	// WorkerPoolSize bounds concurrent manifest-list and manifest reads
	WorkerPoolSize int `json:"worker_pool_size" yaml:"worker_pool_size"`

	CaseSensitive   bool `json:"case_sensitive" yaml:"case_sensitive"`
	IgnoreResiduals bool `json:"ignore_residuals" yaml:"ignore_residuals"`
	ColumnStats     bool `json:"column_stats" yaml:"column_stats"`

	// MaxResultBytes bounds the rows one scan execution collects
	MaxResultBytes int64 `json:"max_result_bytes" yaml:"max_result_bytes"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"`
}

// DefaultConfig returns the default configuration for local development.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data/metatables",
		Log: LogConfig{
			Level:  "info",
			Format: "logfmt",
		},
		HTTP: HTTPConfig{
			Addr:         ":8181",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		Storage: StorageConfig{
			Type:               "local",
			ManifestCacheBytes: 64 * 1024 * 1024,
		},
		Scan: ScanConfig{
			WorkerPoolSize: runtime.NumCPU(),
			CaseSensitive:  true,
			MaxResultBytes: 256 * 1024 * 1024,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Resolve resolves relative paths and sets defaults based on DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/metatables"
	}
	if c.Catalog.Path == "" {
		c.Catalog.Path = filepath.Join(c.DataDir, "catalog.db")
	}
	if c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(c.DataDir, "warehouse")
	}
	if c.Scan.WorkerPoolSize <= 0 {
		c.Scan.WorkerPoolSize = runtime.NumCPU()
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	if c.Storage.Type != "local" && c.Storage.Type != "s3" {
		return fmt.Errorf("invalid storage type: %s (must be local or s3)", c.Storage.Type)
	}

	if c.Storage.Type == "s3" && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket is required when storage type is s3")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Log.Level)
	}

	if c.Log.Format != "logfmt" && c.Log.Format != "json" {
		return fmt.Errorf("invalid log format: %s (must be logfmt or json)", c.Log.Format)
	}

	if c.Storage.ManifestCacheBytes < 0 {
		return fmt.Errorf("storage.manifest_cache_bytes must not be negative")
	}

	if c.Scan.WorkerPoolSize < 1 || c.Scan.WorkerPoolSize > 1024 {
		return fmt.Errorf("scan.worker_pool_size must be between 1 and 1024, got %d", c.Scan.WorkerPoolSize)
	}

	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE pairs from a .env file into the process
// environment. Variables already set take precedence. A missing file is not
// an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// LoadFromEnv applies environment overrides. Variables use the METATABLES_ prefix.
func LoadFromEnv(cfg *Config) {
	if v := getenv("DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	if v := getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}

	if v := getenv("HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := getenv("HTTP_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.HTTP.ReadTimeout = d
		}
	}
	if v := getenv("HTTP_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.HTTP.WriteTimeout = d
		}
	}

	if v := getenv("CATALOG_PATH"); v != "" {
		cfg.Catalog.Path = v
	}

	if v := getenv("STORAGE_TYPE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := getenv("STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := getenv("S3_BUCKET"); v != "" {
		cfg.Storage.S3.Bucket = v
	}
	if v := getenv("S3_REGION"); v != "" {
		cfg.Storage.S3.Region = v
	}
	if v := getenv("S3_ENDPOINT"); v != "" {
		cfg.Storage.S3.Endpoint = v
	}
	if v := getenv("S3_USE_PATH_STYLE"); v != "" {
		cfg.Storage.S3.UsePathStyle = parseBool(v, cfg.Storage.S3.UsePathStyle)
	}

	if v := getenv("MANIFEST_CACHE_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Storage.ManifestCacheBytes = n
		}
	}

	if v := getenv("SCAN_WORKER_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Scan.WorkerPoolSize = n
		}
	}
	if v := getenv("SCAN_CASE_SENSITIVE"); v != "" {
		cfg.Scan.CaseSensitive = parseBool(v, cfg.Scan.CaseSensitive)
	}
	if v := getenv("SCAN_IGNORE_RESIDUALS"); v != "" {
		cfg.Scan.IgnoreResiduals = parseBool(v, cfg.Scan.IgnoreResiduals)
	}
	if v := getenv("SCAN_COLUMN_STATS"); v != "" {
		cfg.Scan.ColumnStats = parseBool(v, cfg.Scan.ColumnStats)
	}

	if v := getenv("SCAN_MAX_RESULT_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Scan.MaxResultBytes = n
		}
	}

	if v := getenv("METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v, cfg.Metrics.Enabled)
	}
}

func getenv(key string) string {
	return os.Getenv(EnvPrefix + key)
}

func parseBool(v string, fallback bool) bool {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.DataDir,
		filepath.Dir(c.Catalog.Path),
	}
	if c.Storage.Type == "local" {
		dirs = append(dirs, c.Storage.Path)
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
