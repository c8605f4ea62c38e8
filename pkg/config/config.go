// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Embedding, Keywords, Index, Recommend, Kafka, Redis, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Keywords  KeywordsConfig  `yaml:"keywords"`
	Index     IndexConfig     `yaml:"index"`
	Recommend RecommendConfig `yaml:"recommend"`
	Source    SourceConfig    `yaml:"source"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
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

// KafkaConfig holds Kafka broker and topic settings. An empty broker list
// disables the posting feed and analytics publishing.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	PostingEvents   string `yaml:"postingEvents"`
	RecommendEvents string `yaml:"recommendEvents"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// EmbeddingConfig selects and tunes the embedding provider.
type EmbeddingConfig struct {
	Provider          string  `yaml:"provider"`
	Model             string  `yaml:"model"`
	Dimension         int     `yaml:"dimension"`
	APIKey            string  `yaml:"apiKey"`
	BaseURL           string  `yaml:"baseURL"`
	BatchSize         int     `yaml:"batchSize"`
	Workers           int     `yaml:"workers"`
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
	Cache             bool    `yaml:"cache"`
}

// KeywordsConfig tunes keyword extraction.
type KeywordsConfig struct {
	MaxKeywords   int     `yaml:"maxKeywords"`
	NgramMax      int     `yaml:"ngramMax"`
	Diversity     float64 `yaml:"diversity"`
	MaxCandidates int     `yaml:"maxCandidates"`
}

// IndexConfig controls approximate nearest-neighbour partitioning.
type IndexConfig struct {
	ANNThreshold     int   `yaml:"annThreshold"`
	Partitions       int   `yaml:"partitions"`
	NProbe           int   `yaml:"nprobe"`
	KMeansIterations int   `yaml:"kmeansIterations"`
	Seed             int64 `yaml:"seed"`
}

// RecommendConfig controls result limits and the per-request deadline.
type RecommendConfig struct {
	DefaultLimit int           `yaml:"defaultLimit"`
	MaxResults   int           `yaml:"maxResults"`
	Timeout      time.Duration `yaml:"timeout"`
}

// SourceConfig names where raw posting records are loaded from at startup.
type SourceConfig struct {
	Kind  string `yaml:"kind"`
	Path  string `yaml:"path"`
	Table string `yaml:"table"`
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
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Config with defaults suitable for local development.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "jobmatch",
			User:            "jobmatch",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			ConsumerGroup: "jobmatch-group",
			Topics: KafkaTopics{
				PostingEvents:   "posting-events",
				RecommendEvents: "recommend-events",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 24 * time.Hour,
		},
		Embedding: EmbeddingConfig{
			Provider:  "hash",
			Dimension: 384,
			BatchSize: 64,
			Workers:   4,
		},
		Keywords: KeywordsConfig{
			MaxKeywords:   5,
			NgramMax:      3,
			Diversity:     0.5,
			MaxCandidates: 200,
		},
		Index: IndexConfig{
			ANNThreshold:     5000,
			Partitions:       64,
			NProbe:           8,
			KMeansIterations: 15,
			Seed:             42,
		},
		Recommend: RecommendConfig{
			DefaultLimit: 10,
			MaxResults:   100,
			Timeout:      10 * time.Second,
		},
		Source: SourceConfig{
			Kind:  "none",
			Table: "postings",
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

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	switch c.Embedding.Provider {
	case "hash", "openai", "gemini":
	default:
		return fmt.Errorf("embedding.provider must be one of hash, openai, gemini; got %q", c.Embedding.Provider)
	}
	if c.Embedding.Provider == "hash" && c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding.dimension must be positive for the hash provider")
	}
	if c.Embedding.BatchSize <= 0 {
		return fmt.Errorf("embedding.batchSize must be positive")
	}
	if c.Keywords.MaxKeywords < 1 {
		return fmt.Errorf("keywords.maxKeywords must be at least 1")
	}
	if c.Keywords.NgramMax < 1 || c.Keywords.NgramMax > 3 {
		return fmt.Errorf("keywords.ngramMax must be between 1 and 3")
	}
	if c.Keywords.Diversity < 0 || c.Keywords.Diversity > 1 {
		return fmt.Errorf("keywords.diversity must be within [0, 1]")
	}
	if c.Index.Partitions < 1 || c.Index.NProbe < 1 {
		return fmt.Errorf("index.partitions and index.nprobe must be positive")
	}
	if c.Recommend.DefaultLimit < 1 || c.Recommend.MaxResults < c.Recommend.DefaultLimit {
		return fmt.Errorf("recommend.defaultLimit must be positive and not exceed recommend.maxResults")
	}
	switch c.Source.Kind {
	case "none", "file", "postgres":
	default:
		return fmt.Errorf("source.kind must be one of none, file, postgres; got %q", c.Source.Kind)
	}
	if c.Source.Kind == "file" && c.Source.Path == "" {
		return fmt.Errorf("source.path is required when source.kind is file")
	}
	return nil
}

// applyEnvOverrides reads JM_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("JM_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("JM_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("JM_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("JM_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("JM_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("JM_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("JM_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("JM_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("JM_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("JM_EMBEDDING_PROVIDER"); v != "" {
		cfg.Embedding.Provider = v
	}
	if v := os.Getenv("JM_EMBEDDING_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}
	if v := os.Getenv("JM_EMBEDDING_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}
	if v := os.Getenv("JM_EMBEDDING_BASE_URL"); v != "" {
		cfg.Embedding.BaseURL = v
	}
	if v := os.Getenv("JM_SOURCE_KIND"); v != "" {
		cfg.Source.Kind = v
	}
	if v := os.Getenv("JM_SOURCE_PATH"); v != "" {
		cfg.Source.Path = v
	}
	if v := os.Getenv("JM_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("JM_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
