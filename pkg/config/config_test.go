package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "index_dir", cfg.Index.Dir)
	assert.Equal(t, CommitPerDocument, cfg.Index.CommitPolicy)
	assert.True(t, cfg.Index.StopWords)
	assert.Equal(t, "none", cfg.Index.Stemmer)
	assert.Equal(t, "content", cfg.Search.DefaultField)
	assert.Empty(t, cfg.Database.Driver)
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9000
index:
  dir: /var/lib/docsearch
  commitPolicy: batch
  lockWaitTimeout: 2s
  stemmer: english
database:
  driver: sqlite
  path: /tmp/app.db
kafka:
  enabled: true
  brokers: ["k1:9092", "k2:9092"]
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "/var/lib/docsearch", cfg.Index.Dir)
	assert.Equal(t, CommitBatch, cfg.Index.CommitPolicy)
	assert.Equal(t, 2*time.Second, cfg.Index.LockWaitTimeout)
	assert.Equal(t, "english", cfg.Index.Stemmer)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 10, cfg.Search.DefaultLimit, "unset values keep defaults")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DS_SERVER_PORT", "7070")
	t.Setenv("DS_INDEX_DIR", "/data/idx")
	t.Setenv("DS_INDEX_LOCK_WAIT_TIMEOUT", "250ms")
	t.Setenv("DS_REDIS_ENABLED", "true")
	t.Setenv("DS_KAFKA_BROKERS", "a:1,b:2")
	t.Setenv("DS_SERVER_INGEST_RATE_LIMIT", "30")
	t.Setenv("DS_SERVER_CORS_ORIGINS", "http://localhost:3000")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "/data/idx", cfg.Index.Dir)
	assert.Equal(t, 250*time.Millisecond, cfg.Index.LockWaitTimeout)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, []string{"a:1", "b:2"}, cfg.Kafka.Brokers)
	assert.Equal(t, 30, cfg.Server.IngestRateLimit)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.CORSOrigins)
}

func TestEnvOverrideInvalidNumber(t *testing.T) {
	t.Setenv("DS_SERVER_PORT", "eighty")
	_, err := Load("")
	assert.ErrorContains(t, err, "DS_SERVER_PORT")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"unknown commit policy", func(c *Config) { c.Index.CommitPolicy = "sometimes" }, "commitPolicy"},
		{"unknown stemmer", func(c *Config) { c.Index.Stemmer = "porter2" }, "stemmer"},
		{"sqlite without path", func(c *Config) { c.Database.Driver = "sqlite" }, "database.path"},
		{"unknown driver", func(c *Config) { c.Database.Driver = "oracle" }, "database.driver"},
		{"empty index dir", func(c *Config) { c.Index.Dir = "" }, "index.dir"},
		{"max below default", func(c *Config) { c.Search.MaxResults = 1 }, "maxResults"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.errMsg)
		})
	}
	assert.NoError(t, Default().Validate())
}

func TestPostgresDSN(t *testing.T) {
	dsn := Default().Postgres.DSN()
	assert.Contains(t, dsn, "host=localhost")
	assert.Contains(t, dsn, "dbname=docsearch")
	assert.Contains(t, dsn, "sslmode=disable")
}
