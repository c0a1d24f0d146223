package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/donaldgifford/property-price-tracker/pkg/types"
)

const minimalPostgres = `
database:
  host: localhost
  name: testdb
  user: testuser
`

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		yaml      string
		envVars   map[string]string
		wantErr   string
		checkFunc func(t *testing.T, cfg *Config)
	}{
		{
			name: "valid minimal config",
			yaml: minimalPostgres,
			checkFunc: func(t *testing.T, cfg *Config) {
				t.Helper()
				assert.Equal(t, DriverPostgres, cfg.Database.Driver)
				assert.Equal(t, "localhost", cfg.Database.Host)
				assert.Equal(t, "testdb", cfg.Database.Name)
				assert.Equal(t, "testuser", cfg.Database.User)
			},
		},
		{
			name: "defaults applied for optional fields",
			yaml: minimalPostgres,
			checkFunc: func(t *testing.T, cfg *Config) {
				t.Helper()
				assert.Equal(t, "0.0.0.0", cfg.Server.Host)
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
				assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
				assert.Equal(t, 5432, cfg.Database.Port)
				assert.Equal(t, "disable", cfg.Database.SSLMode)
				assert.Equal(t, 10, cfg.Database.PoolSize)
				assert.False(t, cfg.Cache.Enabled)
				assert.Equal(t, 15*time.Minute, cfg.Cache.TTL)
				assert.Equal(t, FeedNone, cfg.Feed.Type)
				assert.True(t, cfg.Feed.Strict)
				assert.Equal(t, "Canada", cfg.Ingest.Country)
				assert.Equal(t, []string{"residential", "commercial"}, cfg.Ingest.Partitions)
				assert.Equal(t, 4, cfg.Ingest.Concurrency)
				assert.Equal(t, 30*time.Second, cfg.Ingest.WriteTimeout)
				assert.Zero(t, cfg.Ingest.RateLimit.PerSecond)
				assert.True(t, cfg.Schedule.Enabled)
				assert.Equal(t, 15*time.Minute, cfg.Schedule.IngestionInterval)
				assert.Equal(t, time.Hour, cfg.Schedule.MaintenanceInterval)
				assert.True(t, cfg.Reconcile.Enabled)
				assert.False(t, cfg.Tracing.Enabled)
				assert.Equal(t, "property-price-tracker", cfg.Tracing.ServiceName)
				assert.Equal(t, "info", cfg.Logging.Level)
				assert.Equal(t, "text", cfg.Logging.Format)
			},
		},
		{
			name: "env var substitution",
			yaml: minimalPostgres + `  password: "${TEST_DB_PASSWORD}"
`,
			envVars: map[string]string{
				"TEST_DB_PASSWORD": "secret123",
			},
			checkFunc: func(t *testing.T, cfg *Config) {
				t.Helper()
				assert.Equal(t, "secret123", cfg.Database.Password)
			},
		},
		{
			name: "sqlite driver",
			yaml: `
database:
  driver: sqlite
  path: /var/lib/ppt/listings.db
`,
			checkFunc: func(t *testing.T, cfg *Config) {
				t.Helper()
				assert.Equal(t, DriverSQLite, cfg.Database.Driver)
				assert.Equal(t, "/var/lib/ppt/listings.db", cfg.Database.Path)
			},
		},
		{
			name: "missing required database fields",
			yaml: `
database:
  port: 5432
`,
			wantErr: "database.host is required",
		},
		{
			name: "sqlite missing path",
			yaml: `
database:
  driver: sqlite
`,
			wantErr: "database.path is required when driver is sqlite",
		},
		{
			name: "invalid database driver",
			yaml: `
database:
  driver: mysql
`,
			wantErr: `database.driver must be one of: postgres, sqlite (got "mysql")`,
		},
		{
			name:    "cache enabled without addr",
			yaml:    minimalPostgres + "cache:\n  enabled: true\n",
			wantErr: "cache.addr is required when cache is enabled",
		},
		{
			name: "lenient feed",
			yaml: minimalPostgres + "feed:\n  strict: false\n",
			checkFunc: func(t *testing.T, cfg *Config) {
				t.Helper()
				assert.False(t, cfg.Feed.Strict)
			},
		},
		{
			name:    "dir feed without dir",
			yaml:    minimalPostgres + "feed:\n  type: dir\n",
			wantErr: "feed.dir is required when type is dir",
		},
		{
			name:    "s3 feed without bucket",
			yaml:    minimalPostgres + "feed:\n  type: s3\n",
			wantErr: "feed.s3.bucket is required when type is s3",
		},
		{
			name:    "unknown feed type",
			yaml:    minimalPostgres + "feed:\n  type: ftp\n",
			wantErr: `feed.type must be one of: none, dir, s3 (got "ftp")`,
		},
		{
			name:    "unknown partition",
			yaml:    minimalPostgres + "ingest:\n  partitions: [residential, farm]\n",
			wantErr: `unknown partition "farm"`,
		},
		{
			name:    "discord without webhook",
			yaml:    minimalPostgres + "notifications:\n  discord:\n    enabled: true\n",
			wantErr: "notifications.discord.webhook_url is required",
		},
		{
			name:    "tracing without endpoint",
			yaml:    minimalPostgres + "tracing:\n  enabled: true\n",
			wantErr: "tracing.endpoint is required when tracing is enabled",
		},
		{
			name:    "invalid YAML",
			yaml:    `{{{not valid yaml`,
			wantErr: "parsing config YAML",
		},
		{
			name: "full config with overrides",
			yaml: `
server:
  host: "127.0.0.1"
  port: 9090
  read_timeout: 60s
  write_timeout: 60s
database:
  driver: postgres
  host: db.example.com
  port: 5433
  name: tracker_prod
  user: admin
  password: pass
  sslmode: require
  pool_size: 20
cache:
  enabled: true
  addr: redis:6379
  db: 2
  ttl: 1h
feed:
  type: s3
  strict: true
  s3:
    bucket: listings
    prefix: feeds/
    endpoint: http://minio:9000
    path_style: true
ingest:
  country: USA
  partitions: [commercial]
  concurrency: 8
  write_timeout: 5s
  rate_limit:
    per_second: 20
schedule:
  enabled: false
  ingestion_interval: 30m
  maintenance_interval: 6h
reconcile:
  enabled: false
notifications:
  discord:
    enabled: true
    webhook_url: https://discord.com/api/webhooks/123
tracing:
  enabled: true
  endpoint: otel-collector:4317
  insecure: true
  sample_ratio: 0.25
logging:
  level: debug
  format: json
`,
			checkFunc: func(t *testing.T, cfg *Config) {
				t.Helper()
				assert.Equal(t, "127.0.0.1", cfg.Server.Host)
				assert.Equal(t, 9090, cfg.Server.Port)
				assert.Equal(t, 60*time.Second, cfg.Server.ReadTimeout)
				assert.Equal(t, "db.example.com", cfg.Database.Host)
				assert.Equal(t, 5433, cfg.Database.Port)
				assert.Equal(t, "require", cfg.Database.SSLMode)
				assert.Equal(t, 20, cfg.Database.PoolSize)
				assert.True(t, cfg.Cache.Enabled)
				assert.Equal(t, "redis:6379", cfg.Cache.Addr)
				assert.Equal(t, 2, cfg.Cache.DB)
				assert.Equal(t, time.Hour, cfg.Cache.TTL)
				assert.Equal(t, FeedS3, cfg.Feed.Type)
				assert.True(t, cfg.Feed.Strict)
				assert.Equal(t, "listings", cfg.Feed.S3.Bucket)
				assert.Equal(t, "us-east-1", cfg.Feed.S3.Region)
				assert.True(t, cfg.Feed.S3.PathStyle)
				assert.Equal(t, "USA", cfg.Ingest.Country)
				assert.Equal(t, []domain.Partition{domain.PartitionCommercial}, cfg.Ingest.PartitionList())
				assert.Equal(t, 8, cfg.Ingest.Concurrency)
				assert.Equal(t, 5*time.Second, cfg.Ingest.WriteTimeout)
				assert.InDelta(t, 20.0, cfg.Ingest.RateLimit.PerSecond, 0)
				assert.Equal(t, 10, cfg.Ingest.RateLimit.Burst)
				assert.False(t, cfg.Schedule.Enabled)
				assert.Equal(t, 30*time.Minute, cfg.Schedule.IngestionInterval)
				assert.Equal(t, 6*time.Hour, cfg.Schedule.MaintenanceInterval)
				assert.False(t, cfg.Reconcile.Enabled)
				assert.True(t, cfg.Notifications.Discord.Enabled)
				assert.Equal(t, "https://discord.com/api/webhooks/123", cfg.Notifications.Discord.WebhookURL)
				assert.True(t, cfg.Tracing.Enabled)
				assert.InDelta(t, 0.25, cfg.Tracing.SampleRatio, 0)
				assert.Equal(t, "debug", cfg.Logging.Level)
				assert.Equal(t, "json", cfg.Logging.Format)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Only parallelize tests that don't modify env vars.
			if len(tt.envVars) == 0 {
				t.Parallel()
			}

			// Set env vars for this test.
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			// Write YAML to a temp file.
			dir := t.TempDir()
			path := filepath.Join(dir, "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0o644))

			cfg, err := Load(path)

			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, cfg)

			if tt.checkFunc != nil {
				tt.checkFunc(t, cfg)
			}
		})
	}
}

func TestLoad_DotEnv(t *testing.T) {
	// godotenv writes to the process environment; register cleanup first.
	t.Setenv("PPT_TEST_DOTENV_PASSWORD", "")
	require.NoError(t, os.Unsetenv("PPT_TEST_DOTENV_PASSWORD"))

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("PPT_TEST_DOTENV_PASSWORD=from-dotenv\n"), 0o600))
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path,
		[]byte(minimalPostgres+"  password: ${PPT_TEST_DOTENV_PASSWORD}\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Database.Password)
}

func TestLoad_FileNotFound(t *testing.T) {
	t.Parallel()

	_, err := Load("/nonexistent/path/config.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}

func TestDatabaseConfig_DSN(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  DatabaseConfig
		want string
	}{
		{
			name: "basic DSN",
			cfg: DatabaseConfig{
				Host:     "localhost",
				Port:     5432,
				Name:     "testdb",
				User:     "testuser",
				Password: "testpass",
				SSLMode:  "disable",
			},
			want: "host=localhost port=5432 dbname=testdb user=testuser password=testpass sslmode=disable",
		},
		{
			name: "production DSN",
			cfg: DatabaseConfig{
				Host:     "db.example.com",
				Port:     5433,
				Name:     "tracker",
				User:     "admin",
				Password: "s3cret",
				SSLMode:  "require",
			},
			want: "host=db.example.com port=5433 dbname=tracker user=admin password=s3cret sslmode=require",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.cfg.DSN())
		})
	}
}
