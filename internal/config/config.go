package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"leadbook/internal/models"
)

type Config struct {
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	Feed struct {
		BaseURL        string  `yaml:"base_url"`
		APIKey         string  `yaml:"api_key"`
		TimeoutSeconds int     `yaml:"timeout_seconds"`
		RatePerSecond  float64 `yaml:"rate_per_second"`
		RateBurst      int     `yaml:"rate_burst"`
	} `yaml:"feed"`

	Redis struct {
		Address         string `yaml:"address"`
		Password        string `yaml:"password"`
		DB              int    `yaml:"db"`
		CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
	} `yaml:"redis"`

	Booking struct {
		DayStart           string `yaml:"day_start"`
		DayEnd             string `yaml:"day_end"`
		GranularityMinutes int    `yaml:"granularity_minutes"`
	} `yaml:"booking"`

	Audit struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
		Backup  struct {
			Enabled       bool   `yaml:"enabled"`
			Dir           string `yaml:"dir"`
			IntervalHours int    `yaml:"interval_hours"`
			RetentionDays int    `yaml:"retention_days"`
		} `yaml:"backup"`
	} `yaml:"audit"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Audit.Enabled && cfg.Audit.Path == "" {
		cfg.Audit.Path = "data/leadbook_audit.db"
	}
	if cfg.Audit.Backup.Enabled && cfg.Audit.Backup.Dir == "" {
		cfg.Audit.Backup.Dir = "data/backups"
	}
	return &cfg, nil
}

func (c *Config) BackupInterval() time.Duration {
	if c.Audit.Backup.IntervalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Audit.Backup.IntervalHours) * time.Hour
}

func (c *Config) Granularity() time.Duration {
	if c.Booking.GranularityMinutes <= 0 {
		return models.DefaultGranularity
	}
	return time.Duration(c.Booking.GranularityMinutes) * time.Minute
}

func (c *Config) FeedTimeout() time.Duration {
	if c.Feed.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Feed.TimeoutSeconds) * time.Second
}

func (c *Config) CacheTTL() time.Duration {
	if c.Redis.CacheTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(c.Redis.CacheTTLSeconds) * time.Second
}
