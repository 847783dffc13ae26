// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Postgres, Kafka, Redis, Indexer, Search, Feedback, etc.).
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
	Server   ServerConfig   `yaml:"server"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Indexer  IndexerConfig  `yaml:"indexer"`
	Search   SearchConfig   `yaml:"search"`
	Feedback FeedbackConfig `yaml:"feedback"`
	Logging  LoggingConfig  `yaml:"logging"`
	Tracing  TracingConfig  `yaml:"tracing"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	// RateLimit is the per-client request budget per minute on the expand
	// endpoint. Zero disables limiting.
	RateLimit int `yaml:"rateLimit"`
}

// PostgresConfig holds PostgreSQL connection parameters for the run store.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
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

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	DocumentIngest  string `yaml:"documentIngest"`
	AnalyticsEvents string `yaml:"analyticsEvents"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// IndexerConfig controls the indexing engine's memory thresholds, flush
// interval and shard layout.
type IndexerConfig struct {
	DataDir        string        `yaml:"dataDir"`
	NumShards      int           `yaml:"numShards"`
	SegmentMaxSize int64         `yaml:"segmentMaxSize"`
	FlushInterval  time.Duration `yaml:"flushInterval"`
}

// SearchConfig controls query execution limits and the similarity function.
type SearchConfig struct {
	MaxResults   int              `yaml:"maxResults"`
	DefaultLimit int              `yaml:"defaultLimit"`
	Similarity   SimilarityConfig `yaml:"similarity"`
}

// SimilarityConfig selects the ranking function. Param1 and Param2 are
// interpreted per function: bm25 (k1, b), lm-dirichlet (mu),
// lm-jelinek-mercer (lambda).
type SimilarityConfig struct {
	Name   string  `yaml:"name"`
	Param1 float64 `yaml:"param1"`
	Param2 float64 `yaml:"param2"`
}

// Causal match modes for the second-stage reweighting.
const (
	CausalMatchLastWrite  = "last-write"
	CausalMatchFirstMatch = "first-match"
)

// FeedbackConfig holds the pseudo-relevance feedback parameters.
type FeedbackConfig struct {
	NumFeedbackDocs         int     `yaml:"numFeedbackDocs"`
	NumFeedbackTermsTopical int     `yaml:"numFeedbackTermsTopical"`
	NumFeedbackTermsCausal  int     `yaml:"numFeedbackTermsCausal"`
	MixingLambda            float64 `yaml:"mixingLambda"`
	QueryMix                float64 `yaml:"queryMix"`
	MaxClauseCount          int     `yaml:"maxClauseCount"`
	NumHits                 int     `yaml:"numHits"`
	FieldToSearch           string  `yaml:"fieldToSearch"`
	CausalMatch             string  `yaml:"causalMatch"`
	DeterministicTies       bool    `yaml:"deterministicTies"`
}

// RunName labels a batch run the way TREC run files are conventionally
// named: similarity, feedback depth, both term cutoffs, query mix and field.
func (f FeedbackConfig) RunName(similarity string) string {
	name := fmt.Sprintf("%s-D%d-T%d-C%d-queryMix-%s-%s",
		similarity,
		f.NumFeedbackDocs,
		f.NumFeedbackTermsTopical,
		f.NumFeedbackTermsCausal,
		strconv.FormatFloat(f.QueryMix, 'f', -1, 64),
		f.FieldToSearch,
	)
	return strings.NewReplacer(" ", "", "(", "", ")", "").Replace(name)
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig controls span logging.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	SampleRate float64 `yaml:"sampleRate"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. Missing values keep their defaults. The result is validated.
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
	applyEnvOverrides(cfg)
	cfg.resolveMixingLambda()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects feedback and search parameters outside their domains.
func (c *Config) Validate() error {
	f := c.Feedback
	switch {
	case f.NumFeedbackDocs <= 0:
		return fmt.Errorf("feedback.numFeedbackDocs must be positive, got %d", f.NumFeedbackDocs)
	case f.NumFeedbackTermsTopical <= 0:
		return fmt.Errorf("feedback.numFeedbackTermsTopical must be positive, got %d", f.NumFeedbackTermsTopical)
	case f.NumFeedbackTermsCausal <= 0:
		return fmt.Errorf("feedback.numFeedbackTermsCausal must be positive, got %d", f.NumFeedbackTermsCausal)
	case f.MixingLambda <= 0 || f.MixingLambda >= 1:
		return fmt.Errorf("feedback.mixingLambda must be in (0,1), got %v", f.MixingLambda)
	case f.QueryMix < 0 || f.QueryMix > 1:
		return fmt.Errorf("feedback.queryMix must be in [0,1], got %v", f.QueryMix)
	case f.MaxClauseCount <= 0:
		return fmt.Errorf("feedback.maxClauseCount must be positive, got %d", f.MaxClauseCount)
	case f.NumHits <= 0:
		return fmt.Errorf("feedback.numHits must be positive, got %d", f.NumHits)
	}
	if f.CausalMatch != CausalMatchLastWrite && f.CausalMatch != CausalMatchFirstMatch {
		return fmt.Errorf("feedback.causalMatch must be %q or %q, got %q",
			CausalMatchLastWrite, CausalMatchFirstMatch, f.CausalMatch)
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("server.rateLimit must not be negative, got %d", c.Server.RateLimit)
	}
	if c.Indexer.NumShards <= 0 {
		return fmt.Errorf("indexer.numShards must be positive, got %d", c.Indexer.NumShards)
	}
	return nil
}

// resolveMixingLambda derives the smoothing weight from the similarity's
// first parameter when it was not set explicitly.
func (c *Config) resolveMixingLambda() {
	if c.Feedback.MixingLambda > 0 {
		return
	}
	p := c.Search.Similarity.Param1
	if p > 0 && p <= 0.99 {
		c.Feedback.MixingLambda = p
		return
	}
	c.Feedback.MixingLambda = 0.8
}

// defaultConfig returns a Config with defaults for local development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RateLimit:       120,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "feedbacksearch",
			User:            "feedbacksearch",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "feedbacksearch-group",
			Topics: KafkaTopics{
				DocumentIngest:  "document-ingest",
				AnalyticsEvents: "analytics-events",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 5 * time.Minute,
		},
		Indexer: IndexerConfig{
			DataDir:        "data/index",
			NumShards:      4,
			SegmentMaxSize: 64 * 1024 * 1024,
			FlushInterval:  30 * time.Second,
		},
		Search: SearchConfig{
			MaxResults:   1000,
			DefaultLimit: 10,
			Similarity: SimilarityConfig{
				Name:   "bm25",
				Param1: 1.2,
				Param2: 0.75,
			},
		},
		Feedback: FeedbackConfig{
			NumFeedbackDocs:         10,
			NumFeedbackTermsTopical: 10,
			NumFeedbackTermsCausal:  10,
			QueryMix:                0.4,
			MaxClauseCount:          4096,
			NumHits:                 1000,
			FieldToSearch:           "content",
			CausalMatch:             CausalMatchLastWrite,
			DeterministicTies:       true,
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

// applyEnvOverrides reads SP_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setFloat := func(key string, dst *float64) {
		if v := os.Getenv(key); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = f
			}
		}
	}
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	setInt("SP_SERVER_PORT", &cfg.Server.Port)
	setInt("SP_SERVER_RATE_LIMIT", &cfg.Server.RateLimit)
	if v := os.Getenv("SP_POSTGRES_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Postgres.Enabled = b
		}
	}
	setString("SP_POSTGRES_HOST", &cfg.Postgres.Host)
	setInt("SP_POSTGRES_PORT", &cfg.Postgres.Port)
	setString("SP_POSTGRES_DATABASE", &cfg.Postgres.Database)
	setString("SP_POSTGRES_USER", &cfg.Postgres.User)
	setString("SP_POSTGRES_PASSWORD", &cfg.Postgres.Password)
	setString("SP_POSTGRES_SSLMODE", &cfg.Postgres.SSLMode)
	if v := os.Getenv("SP_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	setString("SP_REDIS_ADDR", &cfg.Redis.Addr)
	setString("SP_REDIS_PASSWORD", &cfg.Redis.Password)
	setString("SP_INDEXER_DATA_DIR", &cfg.Indexer.DataDir)
	setInt("SP_INDEXER_NUM_SHARDS", &cfg.Indexer.NumShards)
	setString("SP_SEARCH_SIMILARITY", &cfg.Search.Similarity.Name)
	setInt("SP_FEEDBACK_NUM_DOCS", &cfg.Feedback.NumFeedbackDocs)
	setInt("SP_FEEDBACK_NUM_TERMS_TOPICAL", &cfg.Feedback.NumFeedbackTermsTopical)
	setInt("SP_FEEDBACK_NUM_TERMS_CAUSAL", &cfg.Feedback.NumFeedbackTermsCausal)
	setFloat("SP_FEEDBACK_MIXING_LAMBDA", &cfg.Feedback.MixingLambda)
	setFloat("SP_FEEDBACK_QUERY_MIX", &cfg.Feedback.QueryMix)
	setInt("SP_FEEDBACK_MAX_CLAUSES", &cfg.Feedback.MaxClauseCount)
	setString("SP_FEEDBACK_CAUSAL_MATCH", &cfg.Feedback.CausalMatch)
	setString("SP_LOGGING_LEVEL", &cfg.Logging.Level)
	setString("SP_LOGGING_FORMAT", &cfg.Logging.Format)
}
