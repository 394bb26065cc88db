// Package config provides configuration management for maintrack.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config is the root configuration structure for maintrack.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`
	Performance PerformanceConfig `mapstructure:"performance"`
	Catalog     CatalogConfig     `mapstructure:"catalog"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host to bind the server to
	Host string `mapstructure:"host"`

	// Port to listen on
	Port int `mapstructure:"port"`

	// Request timeouts
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`

	// Limit on manual job triggers per client
	TriggerRateLimit RateLimitRule `mapstructure:"trigger_rate_limit"`
}

// RateLimitRule allows Max requests per Window (Max 0 disables the limit).
type RateLimitRule struct {
	Max    int           `mapstructure:"max"`
	Window time.Duration `mapstructure:"window"`
}

// DatabaseConfig holds database settings.
type DatabaseConfig struct {
	// Path to SQLite database file
	Path string `mapstructure:"path"`

	// Enable WAL mode (recommended)
	WALMode bool `mapstructure:"wal_mode"`

	// Cache size in KB (negative for KB, positive for pages)
	CacheSize int `mapstructure:"cache_size"`

	// Busy timeout
	BusyTimeout time.Duration `mapstructure:"busy_timeout"`

	// Enable foreign keys
	ForeignKeys bool `mapstructure:"foreign_keys"`

	// Maximum open connections
	MaxOpenConns int `mapstructure:"max_open_conns"`

	// Maximum idle connections
	MaxIdleConns int `mapstructure:"max_idle_conns"`

	// Connection max lifetime
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Log level (debug, info, warn, error)
	Level string `mapstructure:"level"`

	// Log format (json, console)
	Format string `mapstructure:"format"`

	// Include caller info
	Caller bool `mapstructure:"caller"`

	// Include timestamp
	Timestamp bool `mapstructure:"timestamp"`
}

// SchedulerConfig controls the instance generator and the expiry engine.
type SchedulerConfig struct {
	// Run the periodic jobs inside `serve`
	Enabled bool `mapstructure:"enabled"`

	// Cron specs (robfig/cron syntax, descriptors allowed) for each job
	GenerateSpec    string `mapstructure:"generate_spec"`
	ExpireSpec      string `mapstructure:"expire_spec"`
	PerformanceSpec string `mapstructure:"performance_spec"`

	// How far ahead of the due date instances are pre-created
	Lookahead time.Duration `mapstructure:"lookahead"`

	// Expiry window applied when a template has no expiry_hours of its own
	DefaultExpiry time.Duration `mapstructure:"default_expiry"`

	// Roll stale due dates forward past missed occurrences
	RollForwardMissed bool `mapstructure:"roll_forward_missed"`

	// Treat instances without tasks as completion-eligible
	CompleteEmpty bool `mapstructure:"complete_empty"`

	// Maximum templates/instances processed per run (0 = unlimited)
	BatchLimit int `mapstructure:"batch_limit"`
}

// PerformanceConfig controls operator performance aggregation.
type PerformanceConfig struct {
	// Rolling window in days
	WindowDays int `mapstructure:"window_days"`

	// CEL expressions; the first one that evaluates true sets the status
	Rules PerformanceRules `mapstructure:"rules"`
}

// PerformanceRules holds the classification expressions.
type PerformanceRules struct {
	Inactive string `mapstructure:"inactive"`
	Critical string `mapstructure:"critical"`
	Warning  string `mapstructure:"warning"`
}

// CatalogConfig points at the declarative template definitions.
type CatalogConfig struct {
	// Glob of YAML files holding template definitions (empty disables)
	Path string `mapstructure:"path"`

	// Re-sync when a matching file changes
	Watch bool `mapstructure:"watch"`

	// Debounce window for file events
	Debounce time.Duration `mapstructure:"debounce"`
}

// MetricsConfig holds Prometheus exposition settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}
