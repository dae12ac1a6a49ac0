package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration parses YAML strings like "30m" or "500ms".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds the full application configuration. Values come from an
// optional YAML file, then environment variables override, then
// defaults fill whatever is left.
type Config struct {
	Telegram Telegram `yaml:"telegram"`
	Database Database `yaml:"database"`
	Check    Check    `yaml:"check"`
	Fetch    Fetch    `yaml:"fetch"`

	// MetricsAddr enables the /metrics listener when non-empty,
	// e.g. ":9105".
	MetricsAddr string `yaml:"metrics_addr"`
}

type Telegram struct {
	Token  string `yaml:"token"`
	ChatID int64  `yaml:"chat_id"`
}

type Database struct {
	// Path selects the SQLite backend (default).
	Path string `yaml:"path"`
	// DSN selects the Postgres backend when non-empty.
	DSN string `yaml:"dsn"`
}

type Check struct {
	Interval     Duration `yaml:"interval"`
	Workers      int      `yaml:"workers"`
	DrainTimeout Duration `yaml:"drain_timeout"`
}

type Fetch struct {
	Timeout       Duration `yaml:"timeout"`
	MaxRetries    int      `yaml:"max_retries"`
	Backoff       Duration `yaml:"backoff"`
	MaxBackoff    Duration `yaml:"max_backoff"`
	RatePerSecond float64  `yaml:"rate_per_second"`
	JitterFrac    float64  `yaml:"jitter_frac"`
}

// Load reads the optional YAML file at path, applies environment
// overrides and defaults, and validates the result.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if cfg.Telegram.Token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN not configured")
	}
	if cfg.Telegram.ChatID == 0 {
		return nil, fmt.Errorf("TELEGRAM_CHAT_ID not configured, alerts have no destination")
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.Token = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		if chatID, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Telegram.ChatID = chatID
		}
	}
	if v := os.Getenv("CHECK_INTERVAL_MINUTES"); v != "" {
		if minutes, err := strconv.Atoi(v); err == nil && minutes > 0 {
			c.Check.Interval = Duration(time.Duration(minutes) * time.Minute)
		}
	}
	if v := os.Getenv("CHECK_WORKERS"); v != "" {
		if workers, err := strconv.Atoi(v); err == nil && workers > 0 {
			c.Check.Workers = workers
		}
	}
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		c.MetricsAddr = v
	}
}

func (c *Config) applyDefaults() {
	if c.Check.Interval <= 0 {
		c.Check.Interval = Duration(30 * time.Minute)
	}
	if c.Check.Workers <= 0 {
		c.Check.Workers = 10
	}
	if c.Check.DrainTimeout <= 0 {
		c.Check.DrainTimeout = Duration(30 * time.Second)
	}
	if c.Fetch.Timeout <= 0 {
		c.Fetch.Timeout = Duration(30 * time.Second)
	}
	if c.Fetch.MaxRetries <= 0 {
		c.Fetch.MaxRetries = 3
	}
	if c.Fetch.Backoff <= 0 {
		c.Fetch.Backoff = Duration(500 * time.Millisecond)
	}
	if c.Fetch.MaxBackoff <= 0 {
		c.Fetch.MaxBackoff = Duration(8 * time.Second)
	}
	if c.Fetch.RatePerSecond <= 0 {
		c.Fetch.RatePerSecond = 0.5
	}
	if c.Fetch.JitterFrac <= 0 {
		c.Fetch.JitterFrac = 0.2
	}
	if c.Database.Path == "" && c.Database.DSN == "" {
		c.Database.Path = "./products.db"
	}
}
