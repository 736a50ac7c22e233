// Package config provides hierarchical configuration management.
// Priority: defaults < system < user < project < env < flags
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all lakeseed configuration.
type Config struct {
	Version int `yaml:"version"`

	Source    SourceConfig    `yaml:"source"`
	Cursor    CursorConfig    `yaml:"cursor"`
	Storage   StorageConfig   `yaml:"storage"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Lakehouse LakehouseConfig `yaml:"lakehouse"`
	Generate  GenerateConfig  `yaml:"generate"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// SourceConfig locates the input workbook.
type SourceConfig struct {
	Path            string `yaml:"path"`
	TimestampColumn string `yaml:"timestamp_column"`
	DataDir         string `yaml:"data_dir"`
	DownloadURL     string `yaml:"download_url"`
}

// CursorConfig selects and configures the cursor backend.
type CursorConfig struct {
	Backend string      `yaml:"backend"` // file | redis
	Path    string      `yaml:"path"`
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig for the redis cursor backend.
type RedisConfig struct {
	Address  string        `yaml:"address"`
	Password string        `yaml:"password"`
	Database int           `yaml:"database"`
	Key      string        `yaml:"key"`
	Timeout  time.Duration `yaml:"timeout"`
}

// StorageConfig holds the object store connection.
type StorageConfig struct {
	Endpoint        string        `yaml:"endpoint"`
	Region          string        `yaml:"region"`
	AccessKeyID     string        `yaml:"access_key_id"`
	SecretAccessKey string        `yaml:"secret_access_key"`
	UsePathStyle    bool          `yaml:"use_path_style"`
	UploadTimeout   time.Duration `yaml:"upload_timeout"`
}

// IngestConfig controls the incremental load.
type IngestConfig struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
}

// LakehouseConfig names the tier buckets.
type LakehouseConfig struct {
	BronzeBucket string `yaml:"bronze_bucket"`
	SilverBucket string `yaml:"silver_bucket"`
	GoldBucket   string `yaml:"gold_bucket"`
}

// GenerateConfig controls mock data generation.
type GenerateConfig struct {
	Seed   int64  `yaml:"seed"`
	Scale  string `yaml:"scale"`
	FxDays int    `yaml:"fx_days"`
}

// TelemetryConfig controls logging and optional tracing.
type TelemetryConfig struct {
	LogLevel      string `yaml:"log_level"`
	LogFile       string `yaml:"log_file"` // JSON mirror of the console log
	TraceEnabled  bool   `yaml:"trace_enabled"`
	TraceEndpoint string `yaml:"trace_endpoint"`
}

// Default returns the default configuration. Defaults match a local
// MinIO started with its stock credentials.
func Default() *Config {
	return &Config{
		Version: 1,
		Source: SourceConfig{
			Path:            filepath.Join("data", "online_retail_II.xlsx"),
			TimestampColumn: "InvoiceDate",
			DataDir:         "data",
		},
		Cursor: CursorConfig{
			Backend: "file",
			Path:    filepath.Join("data", "last_processed_date.txt"),
			Redis: RedisConfig{
				Address: "localhost:6379",
				Key:     "lakeseed:cursor",
				Timeout: 5 * time.Second,
			},
		},
		Storage: StorageConfig{
			Endpoint:        "http://localhost:9000",
			Region:          "us-east-1",
			AccessKeyID:     "minioadmin",
			SecretAccessKey: "minioadmin",
			UsePathStyle:    true,
			UploadTimeout:   5 * time.Minute,
		},
		Ingest: IngestConfig{
			Bucket: "bronze",
			Prefix: "online_retail_ii",
		},
		Lakehouse: LakehouseConfig{
			BronzeBucket: "bronze",
			SilverBucket: "silver",
			GoldBucket:   "gold",
		},
		Generate: GenerateConfig{
			Seed:   42,
			Scale:  "small",
			FxDays: 365,
		},
		Telemetry: TelemetryConfig{
			LogLevel: "info",
		},
	}
}

// Manager handles configuration loading and merging.
type Manager struct {
	mu     sync.RWMutex
	config *Config
	paths  []string
}

// NewManager creates a new configuration manager.
func NewManager() *Manager {
	return &Manager{config: Default()}
}

// Load loads configuration from all sources in priority order.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.config = Default()
	m.paths = nil

	for _, path := range m.getConfigPaths() {
		if err := m.loadFile(path); err != nil {
			if !os.IsNotExist(err) {
				return fmt.Errorf("failed to load %s: %w", path, err)
			}
			continue
		}
		m.paths = append(m.paths, path)
	}

	m.loadEnv()
	m.ensureDirs()
	return nil
}

// LoadFrom loads configuration from an explicit file, replacing the
// usual search chain. Environment variables still apply on top.
func (m *Manager) LoadFrom(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.config = Default()
	m.paths = nil

	if err := m.loadFile(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	m.paths = append(m.paths, path)

	m.loadEnv()
	m.ensureDirs()
	return nil
}

// getConfigPaths returns config file paths in priority order.
func (m *Manager) getConfigPaths() []string {
	var paths []string

	if runtime.GOOS != "windows" {
		paths = append(paths, "/etc/lakeseed/config.yaml")
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".lakeseed", "config.yaml"))
	}
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".lakeseed.yaml"))
	}
	return paths
}

// loadFile loads a single config file and merges it.
func (m *Manager) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var partial Config
	if err := yaml.Unmarshal(data, &partial); err != nil {
		return err
	}
	m.merge(&partial)
	return nil
}

// merge merges non-zero values from src into config.
func (m *Manager) merge(src *Config) {
	if src.Source.Path != "" {
		m.config.Source.Path = src.Source.Path
	}
	if src.Source.TimestampColumn != "" {
		m.config.Source.TimestampColumn = src.Source.TimestampColumn
	}
	if src.Source.DataDir != "" {
		m.config.Source.DataDir = src.Source.DataDir
	}
	if src.Source.DownloadURL != "" {
		m.config.Source.DownloadURL = src.Source.DownloadURL
	}

	if src.Cursor.Backend != "" {
		m.config.Cursor.Backend = src.Cursor.Backend
	}
	if src.Cursor.Path != "" {
		m.config.Cursor.Path = src.Cursor.Path
	}
	if src.Cursor.Redis.Address != "" {
		m.config.Cursor.Redis.Address = src.Cursor.Redis.Address
	}
	if src.Cursor.Redis.Password != "" {
		m.config.Cursor.Redis.Password = src.Cursor.Redis.Password
	}
	if src.Cursor.Redis.Database != 0 {
		m.config.Cursor.Redis.Database = src.Cursor.Redis.Database
	}
	if src.Cursor.Redis.Key != "" {
		m.config.Cursor.Redis.Key = src.Cursor.Redis.Key
	}
	if src.Cursor.Redis.Timeout != 0 {
		m.config.Cursor.Redis.Timeout = src.Cursor.Redis.Timeout
	}

	if src.Storage.Endpoint != "" {
		m.config.Storage.Endpoint = src.Storage.Endpoint
	}
	if src.Storage.Region != "" {
		m.config.Storage.Region = src.Storage.Region
	}
	if src.Storage.AccessKeyID != "" {
		m.config.Storage.AccessKeyID = src.Storage.AccessKeyID
	}
	if src.Storage.SecretAccessKey != "" {
		m.config.Storage.SecretAccessKey = src.Storage.SecretAccessKey
	}
	if src.Storage.UsePathStyle {
		m.config.Storage.UsePathStyle = true
	}
	if src.Storage.UploadTimeout != 0 {
		m.config.Storage.UploadTimeout = src.Storage.UploadTimeout
	}

	if src.Ingest.Bucket != "" {
		m.config.Ingest.Bucket = src.Ingest.Bucket
	}
	if src.Ingest.Prefix != "" {
		m.config.Ingest.Prefix = src.Ingest.Prefix
	}

	if src.Lakehouse.BronzeBucket != "" {
		m.config.Lakehouse.BronzeBucket = src.Lakehouse.BronzeBucket
	}
	if src.Lakehouse.SilverBucket != "" {
		m.config.Lakehouse.SilverBucket = src.Lakehouse.SilverBucket
	}
	if src.Lakehouse.GoldBucket != "" {
		m.config.Lakehouse.GoldBucket = src.Lakehouse.GoldBucket
	}

	if src.Generate.Seed != 0 {
		m.config.Generate.Seed = src.Generate.Seed
	}
	if src.Generate.Scale != "" {
		m.config.Generate.Scale = src.Generate.Scale
	}
	if src.Generate.FxDays != 0 {
		m.config.Generate.FxDays = src.Generate.FxDays
	}

	if src.Telemetry.LogLevel != "" {
		m.config.Telemetry.LogLevel = src.Telemetry.LogLevel
	}
	if src.Telemetry.LogFile != "" {
		m.config.Telemetry.LogFile = src.Telemetry.LogFile
	}
	if src.Telemetry.TraceEnabled {
		m.config.Telemetry.TraceEnabled = true
	}
	if src.Telemetry.TraceEndpoint != "" {
		m.config.Telemetry.TraceEndpoint = src.Telemetry.TraceEndpoint
	}
}

// loadEnv loads configuration from environment variables. The MINIO_*
// names are honored for parity with a docker-compose MinIO setup.
func (m *Manager) loadEnv() {
	if v := os.Getenv("LAKESEED_SOURCE"); v != "" {
		m.config.Source.Path = v
	}
	if v := os.Getenv("LAKESEED_CURSOR_PATH"); v != "" {
		m.config.Cursor.Path = v
	}
	if v := os.Getenv("LAKESEED_CURSOR_BACKEND"); v != "" {
		m.config.Cursor.Backend = v
	}
	if v := os.Getenv("LAKESEED_REDIS_ADDRESS"); v != "" {
		m.config.Cursor.Redis.Address = v
	}
	if v := os.Getenv("LAKESEED_BUCKET"); v != "" {
		m.config.Ingest.Bucket = v
	}
	if v := os.Getenv("LAKESEED_LOG_LEVEL"); v != "" {
		m.config.Telemetry.LogLevel = v
	}
	if v := os.Getenv("LAKESEED_LOG_FILE"); v != "" {
		m.config.Telemetry.LogFile = v
	}
	if v := os.Getenv("LAKESEED_SEED"); v != "" {
		if seed, err := strconv.ParseInt(v, 10, 64); err == nil {
			m.config.Generate.Seed = seed
		}
	}

	if v := os.Getenv("LAKESEED_ENDPOINT"); v != "" {
		m.config.Storage.Endpoint = v
	} else if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		m.config.Storage.Endpoint = v
	}
	if v := os.Getenv("LAKESEED_ACCESS_KEY"); v != "" {
		m.config.Storage.AccessKeyID = v
	} else if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		m.config.Storage.AccessKeyID = v
	}
	if v := os.Getenv("LAKESEED_SECRET_KEY"); v != "" {
		m.config.Storage.SecretAccessKey = v
	} else if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		m.config.Storage.SecretAccessKey = v
	}
}

// ensureDirs creates directories the defaults point into.
func (m *Manager) ensureDirs() {
	dirs := []string{
		m.config.Source.DataDir,
		filepath.Dir(m.config.Cursor.Path),
	}
	for _, dir := range dirs {
		if dir != "" && dir != "." {
			os.MkdirAll(dir, 0o755)
		}
	}
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// GetPaths returns the config files that were loaded.
func (m *Manager) GetPaths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paths
}

// Save writes the current config to the user config file.
func (m *Manager) Save() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}

	configDir := filepath.Join(home, ".lakeseed")
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return err
	}

	data, err := yaml.Marshal(m.config)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(configDir, "config.yaml"), data, 0o644)
}

// Global instance
var (
	globalManager *Manager
	globalOnce    sync.Once
)

// Global returns the global configuration manager.
func Global() *Manager {
	globalOnce.Do(func() {
		globalManager = NewManager()
		globalManager.Load()
	})
	return globalManager
}
