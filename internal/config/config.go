package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Delivery modes for the open/click adapters.
const (
	DeliveryDirect = "direct"
	DeliveryQueued = "queued"
)

// Config holds all configuration for the tracking service and worker.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Tracking TrackingConfig `yaml:"tracking"`
	Geo      GeoConfig      `yaml:"geo"`
	Queue    QueueConfig    `yaml:"queue"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port                int    `yaml:"port"`
	Host                string `yaml:"host"`
	ReadTimeoutSeconds  int    `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `yaml:"write_timeout_seconds"`
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	return c.Host
}

// DatabaseConfig holds the relational store connection settings.
type DatabaseConfig struct {
	Driver          string `yaml:"driver"` // "postgres" (lib/pq) or "pgx"
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_seconds"`
}

// RedisConfig holds the geo cache connection. An empty Addr disables caching.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// TrackingConfig holds delivery adapter settings.
type TrackingConfig struct {
	FallbackURL      string   `yaml:"fallback_url"`
	RequestTimeoutMS int      `yaml:"request_timeout_ms"`
	DeliveryMode     string   `yaml:"delivery_mode"`
	AllowedOrigins   []string `yaml:"allowed_origins"`
}

// RequestTimeout is the overall deadline applied to one adapter request.
func (c TrackingConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMS) * time.Millisecond
}

// GeoConfig holds the geo lookup service settings. Endpoint is a URL
// template in which "{ip}" is replaced by the client address.
type GeoConfig struct {
	Endpoint        string `yaml:"endpoint"`
	TimeoutMS       int    `yaml:"timeout_ms"`
	CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
}

// Timeout bounds a single lookup.
func (c GeoConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// CacheTTL is how long a successful lookup is cached.
func (c GeoConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// QueueConfig holds the transport used by the queued delivery mode.
type QueueConfig struct {
	Driver       string   `yaml:"driver"` // "sqs" or "kafka"
	SQSQueueURL  string   `yaml:"sqs_queue_url"`
	KafkaBrokers []string `yaml:"kafka_brokers"`
	KafkaTopic   string   `yaml:"kafka_topic"`
	KafkaGroup   string   `yaml:"kafka_group"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// ShouldRedact reports whether PII redaction is enabled (default true).
func (c LoggingConfig) ShouldRedact() bool {
	return c.RedactPII == nil || *c.RedactPII
}

// MetricsConfig selects where pipeline metrics are exported.
type MetricsConfig struct {
	Exporter        string `yaml:"exporter"` // "none" or "stdout"
	IntervalSeconds int    `yaml:"interval_seconds"`
}

// Interval is the export period of the periodic reader.
func (c MetricsConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// Load loads configuration from a YAML file and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8081
	}
	if cfg.Server.ReadTimeoutSeconds == 0 {
		cfg.Server.ReadTimeoutSeconds = 5
	}
	if cfg.Server.WriteTimeoutSeconds == 0 {
		cfg.Server.WriteTimeoutSeconds = 10
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 50
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 10
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 300
	}
	if cfg.Tracking.FallbackURL == "" {
		cfg.Tracking.FallbackURL = "https://www.example.com/"
	}
	if cfg.Tracking.RequestTimeoutMS == 0 {
		cfg.Tracking.RequestTimeoutMS = 2000
	}
	if cfg.Tracking.DeliveryMode == "" {
		cfg.Tracking.DeliveryMode = DeliveryDirect
	}
	if cfg.Geo.Endpoint == "" {
		cfg.Geo.Endpoint = "http://ip-api.com/json/{ip}?fields=status,country,city"
	}
	if cfg.Geo.TimeoutMS == 0 {
		cfg.Geo.TimeoutMS = 1500
	}
	if cfg.Geo.CacheTTLSeconds == 0 {
		cfg.Geo.CacheTTLSeconds = 86400
	}
	if cfg.Queue.Driver == "" {
		cfg.Queue.Driver = "sqs"
	}
	if cfg.Queue.KafkaTopic == "" {
		cfg.Queue.KafkaTopic = "engagement.hits"
	}
	if cfg.Queue.KafkaGroup == "" {
		cfg.Queue.KafkaGroup = "engagement-tracker"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Metrics.Exporter == "" {
		cfg.Metrics.Exporter = "none"
	}
	if cfg.Metrics.IntervalSeconds == 0 {
		cfg.Metrics.IntervalSeconds = 60
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It loads a .env file (if present) before reading env vars, so secrets can
// live in .env locally and in real env vars on ECS. A missing config file
// is not an error: defaults plus environment are enough to run.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg = &Config{}
		cfg.applyDefaults()
	} else if err != nil {
		return nil, err
	}

	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("TRACKING_FALLBACK_URL"); v != "" {
		cfg.Tracking.FallbackURL = v
	}
	if v := os.Getenv("TRACKING_DELIVERY_MODE"); v != "" {
		cfg.Tracking.DeliveryMode = v
	}
	if v := os.Getenv("GEO_ENDPOINT"); v != "" {
		cfg.Geo.Endpoint = v
	}
	if v := os.Getenv("SQS_TRACKING_QUEUE_URL"); v != "" {
		cfg.Queue.SQSQueueURL = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Queue.KafkaBrokers = splitList(v)
		cfg.Queue.Driver = "kafka"
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("METRICS_EXPORTER"); v != "" {
		cfg.Metrics.Exporter = v
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
