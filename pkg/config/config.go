// Package config loads and validates the service configuration. The
// loaded value is passed into each component at construction; there is
// no process-wide mutable configuration state.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"

	// DefaultListen is the default API listen address.
	DefaultListen = ":8080"

	// DefaultRemotePort is the default SFTP port.
	DefaultRemotePort = 22

	// DefaultConnectTimeout bounds the SFTP dial and handshake.
	DefaultConnectTimeout = "30s"

	// DefaultScanInterval is the cadence of scan passes.
	DefaultScanInterval = "5m"

	// DefaultWarmupDelay is how long the scheduler waits after process
	// start before the first pass.
	DefaultWarmupDelay = "10s"

	// DefaultPassTimeout bounds one complete scan pass, including every
	// remote listing call. Kept below the scan interval so a hung remote
	// cannot make passes pile up behind each other.
	DefaultPassTimeout = "4m"

	// DefaultScanConcurrency bounds parallel remote folder listings.
	DefaultScanConcurrency = 4

	// DefaultSourceTimezone is the source site's zone, used for the
	// remote date-directory layout and filename timestamps.
	DefaultSourceTimezone = "Asia/Taipei"

	// DefaultDisplayTimezone is the zone all dashboard-facing
	// aggregation is expressed in.
	DefaultDisplayTimezone = "America/Los_Angeles"

	// DefaultSQLitePath is the default local database location.
	DefaultSQLitePath = "./l10dash.db"
)

// Config is the root configuration for l10dash.
type Config struct {
	LogLevel string         `yaml:"log_level"`
	Server   ServerConfig   `yaml:"server"`
	Remote   RemoteConfig   `yaml:"remote"`
	Scan     ScanConfig     `yaml:"scan"`
	Timezone TimezoneConfig `yaml:"timezone"`
	Database DatabaseConfig `yaml:"database"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Listen      string          `yaml:"listen"`
	CORSOrigins []string        `yaml:"cors_origins,omitempty"`
	RateLimit   RateLimitConfig `yaml:"rate_limit,omitempty"`

	// DevEndpoints enables mutation endpoints intended for local
	// development, such as sample-data seeding. Never enable in
	// production.
	DevEndpoints bool `yaml:"dev_endpoints,omitempty"`
}

// RateLimitConfig configures per-IP rate limiting on the query API.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute,omitempty"`
}

// RemoteConfig contains SFTP connection settings for the source site.
type RemoteConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port,omitempty"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	BasePath       string `yaml:"base_path"`
	ConnectTimeout string `yaml:"connect_timeout,omitempty"`
}

// ScanConfig contains scan scheduling settings.
type ScanConfig struct {
	Interval    string `yaml:"interval,omitempty"`
	WarmupDelay string `yaml:"warmup_delay,omitempty"`
	PassTimeout string `yaml:"pass_timeout,omitempty"`
	Concurrency int    `yaml:"concurrency,omitempty"`
}

// TimezoneConfig names the source-site and display zones.
type TimezoneConfig struct {
	Source  string `yaml:"source,omitempty"`
	Display string `yaml:"display,omitempty"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Driver   string         `yaml:"driver"`
	SQLite   SQLiteConfig   `yaml:"sqlite,omitempty"`
	Postgres PostgresConfig `yaml:"postgres,omitempty"`
}

// SQLiteConfig contains SQLite-specific settings.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
}

// Load reads and parses a configuration file from the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyEnvOverrides()
	cfg.applyDefaults()

	return &cfg, nil
}

// applyEnvOverrides lets credentials come from the environment so the
// config file on disk does not have to hold them.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("L10DASH_REMOTE_USERNAME"); v != "" {
		c.Remote.Username = v
	}

	if v := os.Getenv("L10DASH_REMOTE_PASSWORD"); v != "" {
		c.Remote.Password = v
	}

	if v := os.Getenv("L10DASH_DB_PASSWORD"); v != "" {
		c.Database.Postgres.Password = v
	}
}

// applyDefaults sets default values for unspecified configuration options.
func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}

	if c.Server.Listen == "" {
		c.Server.Listen = DefaultListen
	}

	if c.Remote.Port == 0 {
		c.Remote.Port = DefaultRemotePort
	}

	if c.Remote.ConnectTimeout == "" {
		c.Remote.ConnectTimeout = DefaultConnectTimeout
	}

	if c.Scan.Interval == "" {
		c.Scan.Interval = DefaultScanInterval
	}

	if c.Scan.WarmupDelay == "" {
		c.Scan.WarmupDelay = DefaultWarmupDelay
	}

	if c.Scan.PassTimeout == "" {
		c.Scan.PassTimeout = DefaultPassTimeout
	}

	if c.Scan.Concurrency <= 0 {
		c.Scan.Concurrency = DefaultScanConcurrency
	}

	if c.Timezone.Source == "" {
		c.Timezone.Source = DefaultSourceTimezone
	}

	if c.Timezone.Display == "" {
		c.Timezone.Display = DefaultDisplayTimezone
	}

	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}

	if c.Database.Driver == "sqlite" && c.Database.SQLite.Path == "" {
		c.Database.SQLite.Path = DefaultSQLitePath
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Remote.Host == "" {
		return fmt.Errorf("remote.host is required")
	}

	if c.Remote.Username == "" {
		return fmt.Errorf("remote.username is required")
	}

	if c.Remote.BasePath == "" {
		return fmt.Errorf("remote.base_path is required")
	}

	for name, value := range map[string]string{
		"remote.connect_timeout": c.Remote.ConnectTimeout,
		"scan.interval":          c.Scan.Interval,
		"scan.warmup_delay":      c.Scan.WarmupDelay,
		"scan.pass_timeout":      c.Scan.PassTimeout,
	} {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, value, err)
		}
	}

	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	return nil
}

// Timeout returns the parsed SFTP connect timeout.
func (c *RemoteConfig) Timeout() time.Duration {
	d, err := time.ParseDuration(c.ConnectTimeout)
	if err != nil {
		d, _ = time.ParseDuration(DefaultConnectTimeout)
	}

	return d
}

// IntervalDuration returns the parsed scan interval.
func (c *ScanConfig) IntervalDuration() time.Duration {
	d, err := time.ParseDuration(c.Interval)
	if err != nil {
		d, _ = time.ParseDuration(DefaultScanInterval)
	}

	return d
}

// WarmupDuration returns the parsed warm-up delay.
func (c *ScanConfig) WarmupDuration() time.Duration {
	d, err := time.ParseDuration(c.WarmupDelay)
	if err != nil {
		d, _ = time.ParseDuration(DefaultWarmupDelay)
	}

	return d
}

// PassTimeoutDuration returns the parsed per-pass timeout.
func (c *ScanConfig) PassTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.PassTimeout)
	if err != nil {
		d, _ = time.ParseDuration(DefaultPassTimeout)
	}

	return d
}
