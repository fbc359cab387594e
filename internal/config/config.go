package config

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Backend types.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Object store types.
const (
	StoreMemory = "memory"
	StoreLocal  = "local"
	StoreS3     = "s3"
	StoreS3DDB  = "s3-ddb"
	StoreMinIO  = "minio"
	StoreGCS    = "gcs"
)

// Config is the configuration of the metastore binary.
type Config struct {
	Backend          BackendConfig `yaml:"backend" json:"backend"`
	Store            StoreConfig   `yaml:"store" json:"store"`
	Retry            RetryConfig   `yaml:"retry" json:"retry"`
	OperationTimeout time.Duration `yaml:"operation_timeout" json:"operation_timeout" validate:"gte=0"`
	GC               GCConfig      `yaml:"gc" json:"gc"`
	Server           ServerConfig  `yaml:"server" json:"server"`
}

// BackendConfig selects where manifests are kept.
type BackendConfig struct {
	// Type is "file" (one manifest blob per index in the object store) or
	// "sqlite".
	Type string `yaml:"type" json:"type" validate:"oneof=file sqlite"`

	// SQLitePath is the database file of the sqlite backend.
	SQLitePath string `yaml:"sqlite_path" json:"sqlite_path" validate:"required_if=Type sqlite"`

	// Prefix is the key prefix of manifest blobs in the file backend.
	Prefix string `yaml:"prefix" json:"prefix"`

	// Compression of manifest blobs: none, lz4 or zstd.
	Compression string `yaml:"compression" json:"compression" validate:"omitempty,oneof=none lz4 zstd"`

	// CacheSize is the number of decoded manifests kept in memory.
	CacheSize int `yaml:"cache_size" json:"cache_size" validate:"gte=0"`
}

// StoreConfig selects the object store holding split files and, for the
// file backend, manifests.
type StoreConfig struct {
	Type string `yaml:"type" json:"type" validate:"oneof=memory local s3 s3-ddb minio gcs"`

	// Root is the directory of the local store.
	Root string `yaml:"root" json:"root" validate:"required_if=Type local"`

	Bucket string `yaml:"bucket" json:"bucket"`
	Prefix string `yaml:"prefix" json:"prefix"`

	// S3 and MinIO.
	Region    string `yaml:"region" json:"region"`
	Endpoint  string `yaml:"endpoint" json:"endpoint" validate:"required_if=Type minio"`
	PathStyle bool   `yaml:"path_style" json:"path_style"`

	// DDBTable is the DynamoDB table of the s3-ddb commit store.
	DDBTable string `yaml:"ddb_table" json:"ddb_table" validate:"required_if=Type s3-ddb"`

	// MinIO credentials.
	AccessKey string `yaml:"access_key" json:"-"`
	SecretKey string `yaml:"secret_key" json:"-"`
	UseSSL    bool   `yaml:"use_ssl" json:"use_ssl"`

	// CredentialsFile is the GCS service account key file.
	CredentialsFile string `yaml:"credentials_file" json:"credentials_file"`
}

// RetryConfig tunes the optimistic concurrency retries.
type RetryConfig struct {
	MaxAttempts    int           `yaml:"max_attempts" json:"max_attempts" validate:"gte=1"`
	InitialBackoff time.Duration `yaml:"initial_backoff" json:"initial_backoff" validate:"gte=0"`
	MaxBackoff     time.Duration `yaml:"max_backoff" json:"max_backoff" validate:"gtefield=InitialBackoff"`
	Multiplier     float64       `yaml:"multiplier" json:"multiplier" validate:"gte=1"`
	Jitter         bool          `yaml:"jitter" json:"jitter"`
}

// GCConfig tunes the garbage collector.
type GCConfig struct {
	Enabled           bool          `yaml:"enabled" json:"enabled"`
	Interval          time.Duration `yaml:"interval" json:"interval" validate:"gt=0"`
	GracePeriod       time.Duration `yaml:"grace_period" json:"grace_period" validate:"gte=0"`
	StagedGracePeriod time.Duration `yaml:"staged_grace_period" json:"staged_grace_period" validate:"gte=0"`
	Concurrency       int           `yaml:"concurrency" json:"concurrency" validate:"gte=1"`
	DeletesPerSecond  float64       `yaml:"deletes_per_second" json:"deletes_per_second" validate:"gte=0"`
	DryRun            bool          `yaml:"dry_run" json:"dry_run"`
}

// ServerConfig configures the HTTP server and logging.
type ServerConfig struct {
	Addr      string `yaml:"addr" json:"addr" validate:"required"`
	LogLevel  string `yaml:"log_level" json:"log_level" validate:"oneof=debug info warn error"`
	LogFormat string `yaml:"log_format" json:"log_format" validate:"oneof=text json"`
}

// NewConfig returns the default configuration: a sqlite backend in the
// working directory and split files on the local disk.
func NewConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			Type:        BackendSQLite,
			SQLitePath:  "metastore.db",
			Prefix:      "indexes",
			Compression: "zstd",
			CacheSize:   128,
		},
		Store: StoreConfig{
			Type: StoreLocal,
			Root: "data",
		},
		Retry: RetryConfig{
			MaxAttempts:    8,
			InitialBackoff: 10 * time.Millisecond,
			MaxBackoff:     time.Second,
			Multiplier:     2,
			Jitter:         true,
		},
		OperationTimeout: 10 * time.Second,
		GC: GCConfig{
			Enabled:           true,
			Interval:          time.Minute,
			GracePeriod:       time.Hour,
			StagedGracePeriod: 24 * time.Hour,
			Concurrency:       8,
		},
		Server: ServerConfig{
			Addr:      ":7280",
			LogLevel:  "info",
			LogFormat: "text",
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// path is not empty) and METASTORE_* environment variables, in that order.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	if path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadYAML overlays the file at path on c. Keys absent from the file keep
// their current value.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() error {
	strs := map[string]*string{
		"METASTORE_BACKEND":              &c.Backend.Type,
		"METASTORE_SQLITE_PATH":          &c.Backend.SQLitePath,
		"METASTORE_MANIFEST_PREFIX":      &c.Backend.Prefix,
		"METASTORE_COMPRESSION":          &c.Backend.Compression,
		"METASTORE_STORE":                &c.Store.Type,
		"METASTORE_STORE_ROOT":           &c.Store.Root,
		"METASTORE_BUCKET":               &c.Store.Bucket,
		"METASTORE_PREFIX":               &c.Store.Prefix,
		"METASTORE_REGION":               &c.Store.Region,
		"METASTORE_ENDPOINT":             &c.Store.Endpoint,
		"METASTORE_DDB_TABLE":            &c.Store.DDBTable,
		"METASTORE_ACCESS_KEY":           &c.Store.AccessKey,
		"METASTORE_SECRET_KEY":           &c.Store.SecretKey,
		"METASTORE_GCS_CREDENTIALS_FILE": &c.Store.CredentialsFile,
		"METASTORE_ADDR":                 &c.Server.Addr,
		"METASTORE_LOG_LEVEL":            &c.Server.LogLevel,
		"METASTORE_LOG_FORMAT":           &c.Server.LogFormat,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"METASTORE_OPERATION_TIMEOUT":     &c.OperationTimeout,
		"METASTORE_GC_INTERVAL":           &c.GC.Interval,
		"METASTORE_GC_GRACE_PERIOD":       &c.GC.GracePeriod,
		"METASTORE_GC_STAGED_GRACE":       &c.GC.StagedGracePeriod,
		"METASTORE_RETRY_INITIAL_BACKOFF": &c.Retry.InitialBackoff,
		"METASTORE_RETRY_MAX_BACKOFF":     &c.Retry.MaxBackoff,
	}
	for key, dst := range durations {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = d
		}
	}

	if v := os.Getenv("METASTORE_RETRY_MAX_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("METASTORE_RETRY_MAX_ATTEMPTS: %w", err)
		}
		c.Retry.MaxAttempts = n
	}
	if v := os.Getenv("METASTORE_GC_ENABLED"); v != "" {
		c.GC.Enabled = strings.ToLower(v) == "true" || v == "1"
	}
	if v := os.Getenv("METASTORE_GC_DRY_RUN"); v != "" {
		c.GC.DryRun = strings.ToLower(v) == "true" || v == "1"
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	switch c.Store.Type {
	case StoreS3, StoreS3DDB, StoreMinIO, StoreGCS:
		if c.Store.Bucket == "" {
			return fmt.Errorf("store.bucket is required for store type %s", c.Store.Type)
		}
	}
	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
