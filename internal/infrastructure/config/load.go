package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. PD_DATABASE_PASSWORD
const EnvPrefix = "PD"

// defaults registers every key, which also lets AutomaticEnv reach keys that
// are absent from config.toml when unmarshalling.
var defaults = map[string]any{
	"app.name": "pricedragon",
	"app.env":  "development",
	"app.port": "8080",

	"database.driver":             "postgres",
	"database.path":               "pricedragon.db",
	"database.host":               "localhost",
	"database.port":               5432,
	"database.user":               "postgres",
	"database.password":           "",
	"database.dbname":             "pricedragon",
	"database.sslmode":            "disable",
	"database.max_open_conns":     25,
	"database.max_idle_conns":     5,
	"database.conn_max_lifetime":  60,
	"database.conn_max_idle_time": 30,
	"database.auto_migrate":       false,

	"redis.host":     "",
	"redis.port":     6379,
	"redis.password": "",
	"redis.db":       0,

	"log.level":  "info",
	"log.format": "console",
	"log.output": "stdout",

	"http.read_timeout":       15 * time.Second,
	"http.write_timeout":      60 * time.Second,
	"http.idle_timeout":       60 * time.Second,
	"http.max_header_bytes":   1 << 20,
	"http.max_body_size":      int64(10 << 20),
	"http.trusted_proxies":    []string{},
	"http.allow_origins":      []string{},
	"http.ingest_rate_limit":  6,
	"http.ingest_rate_window": time.Minute,

	"ingestion.default_currency": "TWD",
	"ingestion.sync_matching":    false,
	"ingestion.run_lock_ttl":     30 * time.Minute,
	"ingestion.run_timeout":      20 * time.Minute,
	"ingestion.snippet_length":   40,
	"ingestion.max_error_ratio":  0.5,

	"matching.threshold":            0.6,
	"matching.exact_threshold":      0.9,
	"matching.variant_name_ceiling": 0.5,
	"matching.max_relative_gap":     0.3,

	"worker.workers":     2,
	"worker.queue_size":  1024,
	"worker.job_timeout": 30 * time.Second,
	"worker.max_retries": 2,
	"worker.retry_delay": 2 * time.Second,

	"scrapers.pchome_base_url":   "https://ecshweb.pchome.com.tw",
	"scrapers.momo_base_url":     "https://www.momoshop.com.tw",
	"scrapers.yahoo_base_url":    "https://tw.buy.yahoo.com",
	"scrapers.request_timeout":   30 * time.Second,
	"scrapers.max_pages":         3,
	"scrapers.chrome_remote_url": "",
	"scrapers.user_agent":        "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36",

	"telemetry.enabled":            false,
	"telemetry.collector_endpoint": "localhost:4317",
	"telemetry.service_name":       "pricedragon",
	"telemetry.insecure":           false,
	"telemetry.export_interval":    30 * time.Second,
}

// Load reads config.toml from the working directory or /app, then applies
// PD_ environment overrides on top of the built-in defaults.
func Load() (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	db := c.Database
	switch db.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", db.Driver)
	}
	switch {
	case db.MaxOpenConns <= 0:
		return errors.New("database.max_open_conns must be positive")
	case db.MaxIdleConns < 0:
		return errors.New("database.max_idle_conns cannot be negative")
	case db.MaxIdleConns > db.MaxOpenConns:
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			db.MaxIdleConns, db.MaxOpenConns)
	}
	if c.App.Env == "production" && db.Driver == "postgres" {
		if db.Password == "" {
			return errors.New("database.password is required in production")
		}
		if db.SSLMode == "disable" {
			return errors.New("database.sslmode cannot be 'disable' in production")
		}
	}

	if r := c.Ingestion.MaxErrorRatio; r < 0 || r > 1 {
		return fmt.Errorf("ingestion.max_error_ratio must be within [0,1], got %g", r)
	}
	in := c.Ingestion
	if in.RunLockTTL <= 0 {
		return errors.New("ingestion.run_lock_ttl must be positive")
	}
	if in.RunTimeout <= 0 || in.RunTimeout >= in.RunLockTTL {
		return fmt.Errorf("ingestion.run_timeout (%s) must be positive and below ingestion.run_lock_ttl (%s)",
			in.RunTimeout, in.RunLockTTL)
	}
	if c.Worker.Workers < 1 {
		return errors.New("worker.workers must be positive")
	}
	m := c.Matching
	if m.Threshold < 0 || m.Threshold > 1 {
		return fmt.Errorf("matching.threshold must be within [0,1], got %g", m.Threshold)
	}
	if m.ExactThreshold < m.Threshold || m.ExactThreshold > 1 {
		return fmt.Errorf("matching.exact_threshold must be within [matching.threshold,1], got %g", m.ExactThreshold)
	}
	if m.MaxRelativeGap <= 0 || m.MaxRelativeGap >= 1 {
		return fmt.Errorf("matching.max_relative_gap must be within (0,1), got %g", m.MaxRelativeGap)
	}
	return nil
}
