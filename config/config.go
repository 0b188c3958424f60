// Package config loads the service configuration from the environment, an
// optional .env file and an optional config file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/matching"
	"github.com/Ramsey-B/clover/pkg/redis"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

type Config struct {
	AppName                       string `mapstructure:"app_name"`
	Version                       string `mapstructure:"app_version"`
	Environment                   string `mapstructure:"environment"`
	Port                          int    `mapstructure:"port"`
	LogLevel                      string `mapstructure:"log_level"`
	PrettyLogs                    bool   `mapstructure:"pretty_logs"`
	HttpServerWriteTimeoutSeconds int    `mapstructure:"http_server_write_timeout_seconds"`
	HttpServerReadTimeoutSeconds  int    `mapstructure:"http_server_read_timeout_seconds"`
	HttpServerIdleTimeoutSeconds  int    `mapstructure:"http_server_idle_timeout_seconds"`
	StartupMaxAttempts            int    `mapstructure:"startup_max_attempts"`

	// PostgreSQL
	DatabaseHost                string        `mapstructure:"db_host"`
	DatabasePort                int           `mapstructure:"db_port"`
	DatabaseUserName            string        `mapstructure:"db_user_name"`
	DatabasePassword            string        `mapstructure:"db_password"`
	DatabaseName                string        `mapstructure:"db_name"`
	DatabaseSSLMode             string        `mapstructure:"db_ssl_mode"`
	DatabaseMaxOpenConns        int           `mapstructure:"db_max_open_conns"`
	DatabaseMaxIdleConns        int           `mapstructure:"db_max_idle_conns"`
	DatabaseConnMaxLifetime     time.Duration `mapstructure:"db_conn_max_lifetime"`
	DatabaseMigrationFolderPath string        `mapstructure:"db_migration_folder_path"`
	DatabaseMigrateOnStart      bool          `mapstructure:"db_migrate_on_start"`

	// Redis lock
	RedisEnabled      bool          `mapstructure:"redis_enabled"`
	RedisHost         string        `mapstructure:"redis_host"`
	RedisPort         int           `mapstructure:"redis_port"`
	RedisPassword     string        `mapstructure:"redis_password"`
	RedisDB           int           `mapstructure:"redis_db"`
	EmbeddingLockTTL  time.Duration `mapstructure:"embedding_lock_ttl"`
	EmbeddingLockWait time.Duration `mapstructure:"embedding_lock_wait"`

	// Kafka producer
	KafkaEnabled      bool     `mapstructure:"kafka_enabled"`
	KafkaBrokers      []string `mapstructure:"kafka_brokers"`
	KafkaTopic        string   `mapstructure:"kafka_topic"`
	KafkaBatchSize    int      `mapstructure:"kafka_batch_size"`
	KafkaBatchTimeout int      `mapstructure:"kafka_batch_timeout_ms"`
	KafkaRequiredAcks int      `mapstructure:"kafka_required_acks"`
	KafkaCompression  string   `mapstructure:"kafka_compression"`

	// Tracing
	TracingEnabled     bool    `mapstructure:"tracing_enabled"`
	TracingEndpoint    string  `mapstructure:"tracing_endpoint"`
	TracingProtocol    string  `mapstructure:"tracing_protocol"`
	TracingInsecure    bool    `mapstructure:"tracing_insecure"`
	TracingSampleRatio float64 `mapstructure:"tracing_sample_ratio"`

	// Embedding and matching
	FeatureMapPath      string        `mapstructure:"feature_map_path"`
	MatchStalePolicy    string        `mapstructure:"match_stale_policy"`
	MatchDefaultLimit   int           `mapstructure:"match_default_limit"`
	VectorSearchTimeout time.Duration `mapstructure:"vector_search_timeout"`
}

var defaults = map[string]any{
	"app_name":                          "clover-api",
	"app_version":                       "dev",
	"environment":                       "local",
	"port":                              3000,
	"log_level":                         "info",
	"pretty_logs":                       false,
	"http_server_write_timeout_seconds": 10,
	"http_server_read_timeout_seconds":  10,
	"http_server_idle_timeout_seconds":  60,
	"startup_max_attempts":              5,

	"db_host":                  "localhost",
	"db_port":                  5432,
	"db_user_name":             "",
	"db_password":              "",
	"db_name":                  "clover",
	"db_ssl_mode":              "disable",
	"db_max_open_conns":        25,
	"db_max_idle_conns":        10,
	"db_conn_max_lifetime":     "5m",
	"db_migration_folder_path": "db/pg",
	"db_migrate_on_start":      false,

	"redis_enabled":       false,
	"redis_host":          "localhost",
	"redis_port":          6379,
	"redis_password":      "",
	"redis_db":            0,
	"embedding_lock_ttl":  "30s",
	"embedding_lock_wait": "5s",

	"kafka_enabled":          false,
	"kafka_brokers":          "localhost:9092",
	"kafka_topic":            "clover-events",
	"kafka_batch_size":       100,
	"kafka_batch_timeout_ms": 100,
	"kafka_required_acks":    1,
	"kafka_compression":      "snappy",

	"tracing_enabled":      false,
	"tracing_endpoint":     "localhost:4317",
	"tracing_protocol":     "grpc",
	"tracing_insecure":     true,
	"tracing_sample_ratio": 1.0,

	"feature_map_path":      "config/feature_map.json",
	"match_stale_policy":    string(matching.StalePolicyRetain),
	"match_default_limit":   matching.DefaultLimit,
	"vector_search_timeout": "3s",
}

// Load reads configuration. Environment variables override the config file,
// which overrides the defaults. A missing .env file is not an error.
func Load(configFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings the service cannot start with
func (c *Config) Validate() error {
	if _, err := matching.ParseStalePolicy(c.MatchStalePolicy); err != nil {
		return err
	}
	if c.MatchDefaultLimit < 1 || c.MatchDefaultLimit > matching.MaxLimit {
		return fmt.Errorf("match_default_limit must be between 1 and %d", matching.MaxLimit)
	}
	if c.VectorSearchTimeout <= 0 {
		return errors.New("vector_search_timeout must be positive")
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		return errors.New("kafka_brokers is required when kafka is enabled")
	}
	return nil
}

func (c *Config) Database() database.Config {
	return database.Config{
		Host:            c.DatabaseHost,
		Port:            c.DatabasePort,
		User:            c.DatabaseUserName,
		Password:        c.DatabasePassword,
		Name:            c.DatabaseName,
		SSLMode:         c.DatabaseSSLMode,
		MaxOpenConns:    c.DatabaseMaxOpenConns,
		MaxIdleConns:    c.DatabaseMaxIdleConns,
		ConnMaxLifetime: c.DatabaseConnMaxLifetime,
	}
}

func (c *Config) Redis() redis.Config {
	return redis.Config{
		Host:     c.RedisHost,
		Port:     c.RedisPort,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}

func (c *Config) Kafka() kafka.ProducerConfig {
	return kafka.ProducerConfig{
		Brokers:      c.KafkaBrokers,
		Topic:        c.KafkaTopic,
		BatchSize:    c.KafkaBatchSize,
		BatchTimeout: time.Duration(c.KafkaBatchTimeout) * time.Millisecond,
		RequiredAcks: c.KafkaRequiredAcks,
		Compression:  c.KafkaCompression,
	}
}

func (c *Config) Tracing() tracing.Config {
	return tracing.Config{
		Enabled:     c.TracingEnabled,
		ServiceName: c.AppName,
		Environment: c.Environment,
		SampleRatio: c.TracingSampleRatio,
		Endpoint:    c.TracingEndpoint,
		Protocol:    c.TracingProtocol,
		Insecure:    c.TracingInsecure,
	}
}

func (c *Config) Matching() matching.Config {
	policy, _ := matching.ParseStalePolicy(c.MatchStalePolicy)
	return matching.Config{
		DefaultLimit: c.MatchDefaultLimit,
		StalePolicy:  policy,
	}
}
