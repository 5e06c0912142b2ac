package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"`
	LogLevel    string `koanf:"log_level"`

	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Redis    RedisConfig    `koanf:"redis"`

	Auction      AuctionConfig      `koanf:"auction"`
	Notification NotificationConfig `koanf:"notification"`
	Closing      ClosingConfig      `koanf:"closing"`
	RateLimit    RateLimitConfig    `koanf:"rate_limit"`
}

type ServerConfig struct {
	Port            int           `koanf:"port"`
	MetricsPort     int           `koanf:"metrics_port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MinIdleConns    int           `koanf:"min_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`

	// LockTimeout bounds how long a transaction waits for the product row
	// lock before the attempt is surfaced as a retryable conflict.
	LockTimeout time.Duration `koanf:"lock_timeout"`
}

type RedisConfig struct {
	URL      string `koanf:"url"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

type AuctionConfig struct {
	// MinRatingPoint is the rating a bidder must strictly exceed.
	MinRatingPoint float64 `koanf:"min_rating_point"`

	// Fallback auto-extension windows, used when the system settings
	// table has no values.
	AutoExtendTrigger  time.Duration `koanf:"auto_extend_trigger"`
	AutoExtendDuration time.Duration `koanf:"auto_extend_duration"`

	// SettingsCacheTTL bounds how long system settings are served from
	// memory before being re-read.
	SettingsCacheTTL time.Duration `koanf:"settings_cache_ttl"`
}

type NotificationConfig struct {
	// QueueSize is the post-commit dispatch buffer; enqueueing never
	// blocks, overflow is dropped with a log line.
	QueueSize int    `koanf:"queue_size"`
	Channel   string `koanf:"channel"`
}

type ClosingConfig struct {
	// Schedule is a cron expression for the auction-end sweep.
	Schedule  string `koanf:"schedule"`
	BatchSize int    `koanf:"batch_size"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `koanf:"requests_per_second"`
	BurstSize         int `koanf:"burst_size"`
}

// Load reads configuration in order of increasing precedence: built-in
// defaults, an optional YAML file, then AUCTION_-prefixed environment
// variables.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := &Config{
		Version:     "dev",
		Environment: "development",
		LogLevel:    "info",
		Server: ServerConfig{
			Port:            8080,
			MetricsPort:     9090,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MinIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			LockTimeout:     5 * time.Second,
		},
		Auction: AuctionConfig{
			MinRatingPoint:     0.8,
			AutoExtendTrigger:  5 * time.Minute,
			AutoExtendDuration: 10 * time.Minute,
			SettingsCacheTTL:   30 * time.Second,
		},
		Notification: NotificationConfig{
			QueueSize: 1024,
			Channel:   "auction.events",
		},
		Closing: ClosingConfig{
			Schedule:  "@every 1m",
			BatchSize: 100,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			BurstSize:         200,
		},
	}

	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path == "" {
		path = "configs/config.yaml"
	}
	// The config file is optional; environment variables alone are enough.
	_ = k.Load(file.Provider(path), yaml.Parser())

	if err := k.Load(env.Provider("AUCTION_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "AUCTION_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}
