package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	RedisURL        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Upstream OpenDAP service.
	UpstreamBaseURL string
	UpstreamTimeout time.Duration

	// Fetch scheduling.
	FetchInterval time.Duration
	MaxHistory    int

	// Optional Kafka snapshot announcements.
	KafkaBrokers       []string
	KafkaAnnounceTopic string
	KafkaEnabled       bool
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}

	upstreamTimeout, err := parseDuration("UPSTREAM_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}

	fetchInterval, err := parseDuration("FETCH_INTERVAL", "5m")
	if err != nil {
		return nil, err
	}

	maxHistory, err := parseInt("MAX_HISTORY", 20)
	if err != nil {
		return nil, err
	}

	brokers := parseBrokers(os.Getenv("KAFKA_BROKERS"))
	kafkaEnabled := len(brokers) > 0
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		kafkaEnabled = v == "true"
	}

	cfg := &Config{
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		RedisURL:        envOrDefault("REDIS_URL", "redis://localhost:6379"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		UpstreamBaseURL: envOrDefault("UPSTREAM_BASE_URL", "https://nomads.ncep.noaa.gov/dods"),
		UpstreamTimeout: upstreamTimeout,

		FetchInterval: fetchInterval,
		MaxHistory:    maxHistory,

		KafkaBrokers:       brokers,
		KafkaAnnounceTopic: envOrDefault("KAFKA_ANNOUNCE_TOPIC", "forecast-snapshots"),
		KafkaEnabled:       kafkaEnabled,
	}

	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.UpstreamBaseURL == "" {
		return nil, errors.New("UPSTREAM_BASE_URL is required")
	}
	if cfg.MaxHistory <= 0 {
		return nil, errors.New("MAX_HISTORY must be positive")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is not set")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, fallback))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseInt(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}

func parseBrokers(s string) []string {
	var brokers []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
