// Package config loads settings from a .env file, an optional YAML file and
// the environment, in that order of increasing precedence.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration.
type Config struct {
	Port     int    `yaml:"port" validate:"min=1,max=65535"`
	LogLevel string `yaml:"log_level" validate:"oneof=debug info warn error"`

	DatabaseURL string `yaml:"database_url" validate:"omitempty,url"` // PostgreSQL; wins over DBPath
	DBPath      string `yaml:"db_path" validate:"required_without=DatabaseURL"`

	TFIBaseURL      string        `yaml:"tfi_base_url" validate:"required,url"`
	TFIAPIKey       string        `yaml:"tfi_api_key"`
	FeedPath        string        `yaml:"feed_path" validate:"required"`
	FeedTTL         time.Duration `yaml:"feed_ttl" validate:"min=1s"`
	UpstreamTimeout time.Duration `yaml:"upstream_timeout" validate:"min=100ms"`
	UpstreamRetries int           `yaml:"upstream_retries" validate:"min=0,max=10"`

	RedisURL  string `yaml:"redis_url" validate:"omitempty,url"`
	CacheSize int    `yaml:"cache_size" validate:"min=1"`

	NATSURL     string `yaml:"nats_url" validate:"omitempty,url"`
	NATSSubject string `yaml:"nats_subject" validate:"required"`

	GTFSURL string `yaml:"gtfs_url" validate:"required,url"`
	GTFSDir string `yaml:"gtfs_dir" validate:"required"`

	Metrics      bool `yaml:"metrics"`
	SearchLimit  int  `yaml:"search_limit" validate:"min=1,max=500"`
	FindLimit    int  `yaml:"find_limit" validate:"min=1,max=500"`
	NearMaxLimit int  `yaml:"near_max_limit" validate:"min=1,max=1000"`

	ImportGTFS bool `yaml:"-"` // CLI flag: force GTFS re-import
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	return &Config{
		Port:            5000,
		LogLevel:        "info",
		DBPath:          "./tfibus.db",
		TFIBaseURL:      "https://api.nationaltransport.ie/gtfsr/v2/",
		FeedPath:        "gtfs-realtime",
		FeedTTL:         30 * time.Second,
		UpstreamTimeout: 10 * time.Second,
		UpstreamRetries: 2,
		CacheSize:       64,
		NATSSubject:     "tfibus.feed.refreshed",
		GTFSURL:         "https://www.transportforireland.ie/transitData/google_transit_combined.zip",
		GTFSDir:         "./data/gtfs",
		Metrics:         true,
		SearchLimit:     10,
		FindLimit:       20,
		NearMaxLimit:    100,
	}
}

// Load reads .env (if present), the YAML file named by TFIBUS_CONFIG (if
// set), then environment variables, and validates the result.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Defaults()
	if path := os.Getenv("TFIBUS_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = envInt("TFIBUS_PORT", c.Port)
	c.LogLevel = strings.ToLower(envStr("TFIBUS_LOG_LEVEL", c.LogLevel))
	c.DatabaseURL = envStr("DATABASE_URL", c.DatabaseURL)
	c.DBPath = envStr("TFIBUS_DB_PATH", c.DBPath)
	c.TFIBaseURL = envStr("TFI_BASE_URL", c.TFIBaseURL)
	c.TFIAPIKey = envStr("TFI_API_KEY", c.TFIAPIKey)
	c.FeedPath = envStr("TFIBUS_FEED_PATH", c.FeedPath)
	c.FeedTTL = envDuration("TFIBUS_FEED_TTL", c.FeedTTL)
	c.UpstreamTimeout = envDuration("TFIBUS_UPSTREAM_TIMEOUT", c.UpstreamTimeout)
	c.UpstreamRetries = envInt("TFIBUS_UPSTREAM_RETRIES", c.UpstreamRetries)
	c.RedisURL = envStr("REDIS_URL", c.RedisURL)
	c.CacheSize = envInt("TFIBUS_CACHE_SIZE", c.CacheSize)
	c.NATSURL = envStr("NATS_URL", c.NATSURL)
	c.NATSSubject = envStr("TFIBUS_NATS_SUBJECT", c.NATSSubject)
	c.GTFSURL = envStr("TFIBUS_GTFS_URL", c.GTFSURL)
	c.GTFSDir = envStr("TFIBUS_GTFS_DIR", c.GTFSDir)
	c.Metrics = envBool("TFIBUS_METRICS", c.Metrics)
	c.SearchLimit = envInt("TFIBUS_SEARCH_LIMIT", c.SearchLimit)
	c.FindLimit = envInt("TFIBUS_FIND_LIMIT", c.FindLimit)
	c.NearMaxLimit = envInt("TFIBUS_NEAR_MAX_LIMIT", c.NearMaxLimit)
}

// Validate checks ranges and required fields.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// DSN returns the store DSN: DatabaseURL when set, else the SQLite path.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return c.DBPath
}

// SlogLevel maps LogLevel to a slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// envDuration accepts Go durations ("30s") or bare seconds ("30").
func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
