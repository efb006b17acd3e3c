// Package config loads settings from config.toml and PD_ environment
// variables with viper.
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/pricedragon/backend/internal/domain/matching"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Log       LogConfig       `mapstructure:"log"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Ingestion IngestionConfig `mapstructure:"ingestion"`
	Matching  MatchingConfig  `mapstructure:"matching"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Scrapers  ScrapersConfig  `mapstructure:"scrapers"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	Port string `mapstructure:"port"`
}

// LogConfig selects level (debug..error), format (json or console) and
// output (stdout, stderr or a file path)
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// DatabaseConfig holds connection settings. Driver is postgres or sqlite;
// Path is the sqlite file and may be ":memory:". Lifetimes are in minutes.
type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"`
	Path            string `mapstructure:"path"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime int    `mapstructure:"conn_max_idle_time"`
	AutoMigrate     bool   `mapstructure:"auto_migrate"`
}

// RedisConfig holds Redis connection settings.
// An empty Host disables Redis and run locks stay in process.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// HTTPConfig holds HTTP server settings. IngestRateLimit is the number of
// ingest or rebuild triggers a client may make per IngestRateWindow.
type HTTPConfig struct {
	ReadTimeout      time.Duration `mapstructure:"read_timeout"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
	IdleTimeout      time.Duration `mapstructure:"idle_timeout"`
	MaxHeaderBytes   int           `mapstructure:"max_header_bytes"`
	MaxBodySize      int64         `mapstructure:"max_body_size"`
	TrustedProxies   []string      `mapstructure:"trusted_proxies"`
	AllowOrigins     []string      `mapstructure:"allow_origins"`
	IngestRateLimit  int           `mapstructure:"ingest_rate_limit"`
	IngestRateWindow time.Duration `mapstructure:"ingest_rate_window"`
}

// IngestionConfig holds orchestrator settings
type IngestionConfig struct {
	DefaultCurrency string `mapstructure:"default_currency"`
	// SyncMatching refreshes match edges inside the run instead of on the worker pool
	SyncMatching bool `mapstructure:"sync_matching"`
	// RunLockTTL bounds how long a crashed run keeps its platform locked
	RunLockTTL time.Duration `mapstructure:"run_lock_ttl"`
	RunTimeout time.Duration `mapstructure:"run_timeout"`
	// SnippetLength caps the runes of a record name kept in error snippets
	SnippetLength int     `mapstructure:"snippet_length"`
	MaxErrorRatio float64 `mapstructure:"max_error_ratio"`
}

// MatchingConfig overrides the cross-platform matching policy
type MatchingConfig struct {
	Threshold          float64 `mapstructure:"threshold"`
	ExactThreshold     float64 `mapstructure:"exact_threshold"`
	VariantNameCeiling float64 `mapstructure:"variant_name_ceiling"`
	MaxRelativeGap     float64 `mapstructure:"max_relative_gap"`
}

// WorkerConfig sizes the background match-refresh pool
type WorkerConfig struct {
	Workers    int           `mapstructure:"workers"`
	QueueSize  int           `mapstructure:"queue_size"`
	JobTimeout time.Duration `mapstructure:"job_timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

// ScrapersConfig holds platform adapter settings. An empty ChromeRemoteURL
// launches a local headless browser for Momo.
type ScrapersConfig struct {
	PChomeBaseURL   string        `mapstructure:"pchome_base_url"`
	MomoBaseURL     string        `mapstructure:"momo_base_url"`
	YahooBaseURL    string        `mapstructure:"yahoo_base_url"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	MaxPages        int           `mapstructure:"max_pages"`
	ChromeRemoteURL string        `mapstructure:"chrome_remote_url"`
	UserAgent       string        `mapstructure:"user_agent"`
}

// TelemetryConfig controls OTLP metric export. Insecure drops TLS to the
// collector and is meant for local collectors.
type TelemetryConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	CollectorEndpoint string        `mapstructure:"collector_endpoint"`
	ServiceName       string        `mapstructure:"service_name"`
	Insecure          bool          `mapstructure:"insecure"`
	ExportInterval    time.Duration `mapstructure:"export_interval"`
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	if d.Driver == "sqlite" {
		return d.Path
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// Addr returns the Redis address, or "" when Redis is not configured
func (r *RedisConfig) Addr() string {
	if r.Host == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// Policy overlays the configured thresholds on the default matching policy.
// Zero values keep the default.
func (c MatchingConfig) Policy() matching.Config {
	policy := matching.DefaultConfig()
	if c.Threshold > 0 {
		policy.Threshold = c.Threshold
	}
	if c.ExactThreshold > 0 {
		policy.ExactThreshold = c.ExactThreshold
	}
	if c.VariantNameCeiling > 0 {
		policy.VariantNameCeiling = c.VariantNameCeiling
	}
	if c.MaxRelativeGap > 0 {
		policy.MaxRelativeGap = c.MaxRelativeGap
	}
	return policy
}
