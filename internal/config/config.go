// Package config handles loading and validating the application configuration
// from YAML files with environment variable substitution.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	domain "github.com/donaldgifford/property-price-tracker/pkg/types"
)

// Database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Feed types.
const (
	FeedNone = "none"
	FeedDir  = "dir"
	FeedS3   = "s3"
)

// Config is the top-level application configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Cache         CacheConfig         `yaml:"cache"`
	Feed          FeedConfig          `yaml:"feed"`
	Ingest        IngestConfig        `yaml:"ingest"`
	Schedule      ScheduleConfig      `yaml:"schedule"`
	Reconcile     ReconcileConfig     `yaml:"reconcile"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Tracing       TracingConfig       `yaml:"tracing"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// ServerConfig defines the Echo HTTP server settings.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DatabaseConfig defines the datastore. Postgres uses the connection fields;
// SQLite uses Path.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // postgres, sqlite
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
	PoolSize int    `yaml:"pool_size"`
	Path     string `yaml:"path"`
}

// DSN returns a PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		d.Host, d.Port, d.Name, d.User, d.Password, d.SSLMode,
	)
}

// CacheConfig defines the Redis statistics cache.
type CacheConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// FeedConfig defines where full snapshot sets are read from.
type FeedConfig struct {
	Type   string   `yaml:"type"` // none, dir, s3
	Dir    string   `yaml:"dir"`
	Strict bool     `yaml:"strict"` // reject unknown snapshot fields; default true
	S3     S3Config `yaml:"s3"`
}

// S3Config defines an S3 or S3-compatible feed bucket.
type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	PathStyle       bool   `yaml:"path_style"`
}

// IngestConfig defines ingestion behaviour.
type IngestConfig struct {
	Country      string          `yaml:"country"`
	Partitions   []string        `yaml:"partitions"`
	Concurrency  int             `yaml:"concurrency"`
	WriteTimeout time.Duration   `yaml:"write_timeout"`
	RateLimit    RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig throttles snapshot ingestion during feed cycles.
type RateLimitConfig struct {
	PerSecond float64 `yaml:"per_second"` // 0 disables
	Burst     int     `yaml:"burst"`
}

// ScheduleConfig defines cron intervals.
type ScheduleConfig struct {
	Enabled             bool          `yaml:"enabled"`
	IngestionInterval   time.Duration `yaml:"ingestion_interval"`
	MaintenanceInterval time.Duration `yaml:"maintenance_interval"`
}

// ReconcileConfig controls the sweep after each feed cycle.
type ReconcileConfig struct {
	Enabled bool `yaml:"enabled"`
}

// NotificationsConfig defines notification targets.
type NotificationsConfig struct {
	Discord DiscordConfig `yaml:"discord"`
}

// DiscordConfig defines Discord webhook settings.
type DiscordConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// TracingConfig defines the OTLP trace exporter.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	ServiceName string  `yaml:"service_name"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// PartitionList returns the configured partitions. Call after Load.
func (i *IngestConfig) PartitionList() []domain.Partition {
	out := make([]domain.Partition, 0, len(i.Partitions))
	for _, s := range i.Partitions {
		if p, err := domain.ParsePartition(s); err == nil {
			out = append(out, p)
		}
	}
	return out
}

// Load reads and parses a YAML config file, performing environment variable
// substitution and validation. A .env file next to the config is loaded
// first; variables already set in the environment win.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // config path from trusted CLI flag
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	envFile := filepath.Join(filepath.Dir(path), ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading %s: %w", envFile, err)
	}

	// Expand environment variables in the YAML content.
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{
		Feed:      FeedConfig{Strict: true},
		Schedule:  ScheduleConfig{Enabled: true},
		Reconcile: ReconcileConfig{Enabled: true},
	}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	applyServerDefaults(&cfg.Server)
	applyDatabaseDefaults(&cfg.Database)
	applyCacheDefaults(&cfg.Cache)
	applyFeedDefaults(&cfg.Feed)
	applyIngestDefaults(&cfg.Ingest)
	applyScheduleDefaults(&cfg.Schedule)
	applyTracingDefaults(&cfg.Tracing)
	applyLoggingDefaults(&cfg.Logging)
}

func applyServerDefaults(s *ServerConfig) {
	if s.Host == "" {
		s.Host = "0.0.0.0"
	}
	if s.Port == 0 {
		s.Port = 8080
	}
	if s.ReadTimeout == 0 {
		s.ReadTimeout = 30 * time.Second
	}
	if s.WriteTimeout == 0 {
		s.WriteTimeout = 30 * time.Second
	}
}

func applyDatabaseDefaults(d *DatabaseConfig) {
	if d.Driver == "" {
		d.Driver = DriverPostgres
	}
	if d.Port == 0 {
		d.Port = 5432
	}
	if d.SSLMode == "" {
		d.SSLMode = "disable"
	}
	if d.PoolSize == 0 {
		d.PoolSize = 10
	}
}

func applyCacheDefaults(c *CacheConfig) {
	if c.TTL == 0 {
		c.TTL = 15 * time.Minute
	}
}

func applyFeedDefaults(f *FeedConfig) {
	if f.Type == "" {
		f.Type = FeedNone
	}
	if f.S3.Region == "" {
		f.S3.Region = "us-east-1"
	}
}

func applyIngestDefaults(i *IngestConfig) {
	if i.Country == "" {
		i.Country = "Canada"
	}
	if len(i.Partitions) == 0 {
		for _, p := range domain.Partitions {
			i.Partitions = append(i.Partitions, string(p))
		}
	}
	if i.Concurrency == 0 {
		i.Concurrency = 4
	}
	if i.WriteTimeout == 0 {
		i.WriteTimeout = 30 * time.Second
	}
	if i.RateLimit.PerSecond > 0 && i.RateLimit.Burst == 0 {
		i.RateLimit.Burst = 10
	}
}

func applyScheduleDefaults(s *ScheduleConfig) {
	if s.IngestionInterval == 0 {
		s.IngestionInterval = 15 * time.Minute
	}
	if s.MaintenanceInterval == 0 {
		s.MaintenanceInterval = time.Hour
	}
}

func applyTracingDefaults(t *TracingConfig) {
	if t.ServiceName == "" {
		t.ServiceName = "property-price-tracker"
	}
	if t.SampleRatio == 0 {
		t.SampleRatio = 1
	}
}

func applyLoggingDefaults(l *LoggingConfig) {
	if l.Level == "" {
		l.Level = "info"
	}
	if l.Format == "" {
		l.Format = "text"
	}
}

func validate(cfg *Config) error {
	var errs []error

	switch cfg.Database.Driver {
	case DriverPostgres:
		if cfg.Database.Host == "" {
			errs = append(errs, fmt.Errorf("database.host is required"))
		}
		if cfg.Database.Name == "" {
			errs = append(errs, fmt.Errorf("database.name is required"))
		}
		if cfg.Database.User == "" {
			errs = append(errs, fmt.Errorf("database.user is required"))
		}
	case DriverSQLite:
		if cfg.Database.Path == "" {
			errs = append(errs, fmt.Errorf("database.path is required when driver is sqlite"))
		}
	default:
		errs = append(errs, fmt.Errorf(
			"database.driver must be one of: postgres, sqlite (got %q)", cfg.Database.Driver,
		))
	}

	if cfg.Cache.Enabled && cfg.Cache.Addr == "" {
		errs = append(errs, fmt.Errorf("cache.addr is required when cache is enabled"))
	}

	switch cfg.Feed.Type {
	case FeedNone:
	case FeedDir:
		if cfg.Feed.Dir == "" {
			errs = append(errs, fmt.Errorf("feed.dir is required when type is dir"))
		}
	case FeedS3:
		if cfg.Feed.S3.Bucket == "" {
			errs = append(errs, fmt.Errorf("feed.s3.bucket is required when type is s3"))
		}
	default:
		errs = append(errs, fmt.Errorf(
			"feed.type must be one of: none, dir, s3 (got %q)", cfg.Feed.Type,
		))
	}

	for _, p := range cfg.Ingest.Partitions {
		if _, err := domain.ParsePartition(p); err != nil {
			errs = append(errs, fmt.Errorf("ingest.partitions: %w", err))
		}
	}
	if cfg.Ingest.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("ingest.concurrency must not be negative"))
	}

	if cfg.Notifications.Discord.Enabled && cfg.Notifications.Discord.WebhookURL == "" {
		errs = append(errs, fmt.Errorf("notifications.discord.webhook_url is required when discord is enabled"))
	}

	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		errs = append(errs, fmt.Errorf("tracing.endpoint is required when tracing is enabled"))
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("tracing.sample_ratio must be between 0 and 1"))
	}

	return errors.Join(errs...)
}
