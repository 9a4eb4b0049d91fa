// Package config loads service configuration from the environment,
// optionally layered under a YAML file named by FLEETWATCH_CONFIG.
package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port        string `yaml:"port"`
	DatabaseURL string `yaml:"database_url"`
	RedisURL    string `yaml:"redis_url"`

	// Upstream is the backend REST API the poller fetches raw events
	// from. Empty disables polling (push/ingest only).
	UpstreamBaseURL string        `yaml:"upstream_base_url"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	PageSize        int           `yaml:"page_size"`

	// RefetchPerSecond bounds push-triggered refetches; a push storm
	// must not turn into a fetch storm against the backend.
	RefetchPerSecond float64 `yaml:"refetch_per_second"`
	RefetchBurst     int     `yaml:"refetch_burst"`

	WebhookMaxAttempts int `yaml:"webhook_max_attempts"`
}

func Load() (Config, error) {
	cfg := Config{
		Port:               getenvDefault("PORT", "8080"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		RedisURL:           os.Getenv("REDIS_URL"),
		UpstreamBaseURL:    os.Getenv("FLEETWATCH_UPSTREAM_URL"),
		PollInterval:       getenvDurationDefault("FLEETWATCH_POLL_INTERVAL", 15*time.Second),
		PageSize:           getenvIntDefault("FLEETWATCH_PAGE_SIZE", 20),
		RefetchPerSecond:   1,
		RefetchBurst:       3,
		WebhookMaxAttempts: getenvIntDefault("WEBHOOK_MAX_ATTEMPTS", 10),
	}

	if path := os.Getenv("FLEETWATCH_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 15 * time.Second
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 20
	}
	if cfg.RefetchPerSecond <= 0 {
		cfg.RefetchPerSecond = 1
	}
	if cfg.RefetchBurst <= 0 {
		cfg.RefetchBurst = 1
	}
	return cfg, nil
}

func getenvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvIntDefault(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func getenvDurationDefault(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}
