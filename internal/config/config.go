package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Feed struct {
		IntervalSeconds int `yaml:"interval_seconds"`
	} `yaml:"feed"`
	Analytics struct {
		RiskFreeRate   float64 `yaml:"risk_free_rate"`
		TrailingWindow int     `yaml:"trailing_window"`
	} `yaml:"analytics"`
	Schedule struct {
		CloseRolloverCron string `yaml:"close_rollover_cron"`
	} `yaml:"schedule"`
}

// TickInterval returns the feed interval as a duration.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Feed.IntervalSeconds) * time.Second
}

// Load reads config from a YAML file, then applies environment variable
// overrides, then defaults. A missing file is not an error; a malformed
// env override is.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	rateSet := false

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
		// Zero is a legitimate risk-free rate, so check whether the file
		// actually set it before falling back to the default.
		var presence struct {
			Analytics struct {
				RiskFreeRate *float64 `yaml:"risk_free_rate"`
			} `yaml:"analytics"`
		}
		if err := yaml.Unmarshal(data, &presence); err == nil && presence.Analytics.RiskFreeRate != nil {
			rateSet = true
		}
	}

	// Environment variable overrides
	if v := os.Getenv("ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("TICK_INTERVAL_SECONDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("parse TICK_INTERVAL_SECONDS: %w", err)
		}
		cfg.Feed.IntervalSeconds = n
	}
	if v := os.Getenv("RISK_FREE_RATE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("parse RISK_FREE_RATE: %w", err)
		}
		cfg.Analytics.RiskFreeRate = f
		rateSet = true
	}
	if v := os.Getenv("TRAILING_WINDOW"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("parse TRAILING_WINDOW: %w", err)
		}
		cfg.Analytics.TrailingWindow = n
	}
	if v := os.Getenv("CLOSE_ROLLOVER_CRON"); v != "" {
		cfg.Schedule.CloseRolloverCron = v
	}

	// Defaults
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./alphainsights.db"
	}
	if cfg.Feed.IntervalSeconds == 0 {
		cfg.Feed.IntervalSeconds = 3
	}
	if !rateSet {
		cfg.Analytics.RiskFreeRate = 0.02
	}
	if cfg.Analytics.TrailingWindow == 0 {
		cfg.Analytics.TrailingWindow = 30
	}
	if cfg.Schedule.CloseRolloverCron == "" {
		cfg.Schedule.CloseRolloverCron = "0 0 0 * * *"
	}

	return cfg, nil
}

// Validate checks that configured values are usable.
func (c *Config) Validate() error {
	if c.Feed.IntervalSeconds <= 0 {
		return fmt.Errorf("feed.interval_seconds must be positive")
	}
	if c.Analytics.TrailingWindow < 2 {
		return fmt.Errorf("analytics.trailing_window must be at least 2")
	}
	if c.Analytics.RiskFreeRate < 0 {
		return fmt.Errorf("analytics.risk_free_rate must not be negative")
	}
	return nil
}
