// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Index, Search, Ingest, Database, Postgres, Redis, Kafka,
// Logging, Metrics).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Commit policies for bulk ingestion.
const (
	CommitPerDocument = "per_document"
	CommitBatch       = "batch"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Index    IndexConfig    `yaml:"index"`
	Search   SearchConfig   `yaml:"search"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Database DatabaseConfig `yaml:"database"`
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	// IngestRateLimit caps write requests per client per minute; 0 disables.
	IngestRateLimit int      `yaml:"ingestRateLimit"`
	CORSOrigins     []string `yaml:"corsOrigins"`
}

// IndexConfig locates the index directory and controls segment sizing,
// merging, the write lock and the analyzer used when the index is created.
type IndexConfig struct {
	Dir                    string        `yaml:"dir"`
	SegmentMaxSize         int64         `yaml:"segmentMaxSize"`
	MaxSegmentsBeforeMerge int           `yaml:"maxSegmentsBeforeMerge"`
	CommitPolicy           string        `yaml:"commitPolicy"`
	LockWaitTimeout        time.Duration `yaml:"lockWaitTimeout"`
	StopWords              bool          `yaml:"stopWords"`
	Stemmer                string        `yaml:"stemmer"`
}

// SearchConfig controls query execution limits and the in-process cache.
type SearchConfig struct {
	DefaultField string        `yaml:"defaultField"`
	DefaultLimit int           `yaml:"defaultLimit"`
	MaxResults   int           `yaml:"maxResults"`
	Timeout      time.Duration `yaml:"timeout"`
	CacheSize    int           `yaml:"cacheSize"`
}

// IngestConfig bounds uploads and the folder walker.
type IngestConfig struct {
	Workers        int   `yaml:"workers"`
	MaxUploadBytes int64 `yaml:"maxUploadBytes"`
	MaxFileBytes   int64 `yaml:"maxFileBytes"`
}

// DatabaseConfig selects the source walked by /index_db. Driver "postgres"
// uses the Postgres section; "sqlite" opens Path. An empty driver disables
// database ingestion.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	Schema string `yaml:"schema"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	IndexComplete   string `yaml:"indexComplete"`
	AnalyticsEvents string `yaml:"analyticsEvents"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with defaults for any missing
// values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaultConfig()
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RequestTimeout:  55 * time.Second,
		},
		Index: IndexConfig{
			Dir:                    "index_dir",
			SegmentMaxSize:         64 << 20,
			MaxSegmentsBeforeMerge: 10,
			CommitPolicy:           CommitPerDocument,
			LockWaitTimeout:        5 * time.Second,
			StopWords:              true,
			Stemmer:                "none",
		},
		Search: SearchConfig{
			DefaultField: "content",
			DefaultLimit: 10,
			MaxResults:   100,
			Timeout:      5 * time.Second,
			CacheSize:    1024,
		},
		Ingest: IngestConfig{
			Workers:        4,
			MaxUploadBytes: 64 << 20,
			MaxFileBytes:   16 << 20,
		},
		Database: DatabaseConfig{
			Schema: "public",
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "docsearch",
			User:            "docsearch",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "docsearch",
			Topics: KafkaTopics{
				IndexComplete:   "index.complete",
				AnalyticsEvents: "analytics-events",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// Validate rejects values the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Index.Dir == "" {
		errs = append(errs, errors.New("index.dir must not be empty"))
	}
	switch c.Index.CommitPolicy {
	case CommitPerDocument, CommitBatch:
	default:
		errs = append(errs, fmt.Errorf("index.commitPolicy must be %q or %q, got %q", CommitPerDocument, CommitBatch, c.Index.CommitPolicy))
	}
	switch c.Index.Stemmer {
	case "", "none", "english":
	default:
		errs = append(errs, fmt.Errorf("index.stemmer must be none or english, got %q", c.Index.Stemmer))
	}
	switch c.Database.Driver {
	case "", "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver))
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required for the sqlite driver"))
	}
	if c.Search.DefaultLimit <= 0 {
		errs = append(errs, errors.New("search.defaultLimit must be positive"))
	}
	if c.Search.MaxResults < c.Search.DefaultLimit {
		errs = append(errs, errors.New("search.maxResults must be at least search.defaultLimit"))
	}
	if c.Server.IngestRateLimit < 0 {
		errs = append(errs, errors.New("server.ingestRateLimit must not be negative"))
	}
	if c.Ingest.Workers <= 0 {
		errs = append(errs, errors.New("ingest.workers must be positive"))
	}
	return errors.Join(errs...)
}

// applyEnvOverrides reads DS_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) error {
	var errs []error
	envInt("DS_SERVER_PORT", &cfg.Server.Port, &errs)
	envInt("DS_SERVER_INGEST_RATE_LIMIT", &cfg.Server.IngestRateLimit, &errs)
	if v := os.Getenv("DS_SERVER_CORS_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = strings.Split(v, ",")
	}
	envString("DS_INDEX_DIR", &cfg.Index.Dir)
	envInt64("DS_INDEX_SEGMENT_MAX_SIZE", &cfg.Index.SegmentMaxSize, &errs)
	envInt("DS_INDEX_MAX_SEGMENTS", &cfg.Index.MaxSegmentsBeforeMerge, &errs)
	envString("DS_INDEX_COMMIT_POLICY", &cfg.Index.CommitPolicy)
	envDuration("DS_INDEX_LOCK_WAIT_TIMEOUT", &cfg.Index.LockWaitTimeout, &errs)
	envBool("DS_INDEX_STOP_WORDS", &cfg.Index.StopWords, &errs)
	envString("DS_INDEX_STEMMER", &cfg.Index.Stemmer)
	envInt("DS_SEARCH_DEFAULT_LIMIT", &cfg.Search.DefaultLimit, &errs)
	envInt("DS_SEARCH_MAX_RESULTS", &cfg.Search.MaxResults, &errs)
	envInt("DS_INGEST_WORKERS", &cfg.Ingest.Workers, &errs)
	envString("DS_DATABASE_DRIVER", &cfg.Database.Driver)
	envString("DS_DATABASE_PATH", &cfg.Database.Path)
	envString("DS_DATABASE_SCHEMA", &cfg.Database.Schema)
	envString("DS_POSTGRES_HOST", &cfg.Postgres.Host)
	envInt("DS_POSTGRES_PORT", &cfg.Postgres.Port, &errs)
	envString("DS_POSTGRES_DATABASE", &cfg.Postgres.Database)
	envString("DS_POSTGRES_USER", &cfg.Postgres.User)
	envString("DS_POSTGRES_PASSWORD", &cfg.Postgres.Password)
	envString("DS_POSTGRES_SSLMODE", &cfg.Postgres.SSLMode)
	envBool("DS_REDIS_ENABLED", &cfg.Redis.Enabled, &errs)
	envString("DS_REDIS_ADDR", &cfg.Redis.Addr)
	envString("DS_REDIS_PASSWORD", &cfg.Redis.Password)
	envBool("DS_KAFKA_ENABLED", &cfg.Kafka.Enabled, &errs)
	if v := os.Getenv("DS_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	envString("DS_LOGGING_LEVEL", &cfg.Logging.Level)
	envString("DS_LOGGING_FORMAT", &cfg.Logging.Format)
	envBool("DS_METRICS_ENABLED", &cfg.Metrics.Enabled, &errs)
	envInt("DS_METRICS_PORT", &cfg.Metrics.Port, &errs)
	return errors.Join(errs...)
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = n
	}
}

func envInt64(key string, dst *int64, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = n
	}
}

func envBool(key string, dst *bool, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = b
	}
}

func envDuration(key string, dst *time.Duration, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = d
	}
}
