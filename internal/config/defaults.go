package config

import "time"

// Default configuration values.
const (
	// Server defaults.
	DefaultHost          = "localhost"
	DefaultPort          = 8090
	DefaultReadTimeout   = 30 * time.Second
	DefaultWriteTimeout  = 30 * time.Second
	DefaultIdleTimeout   = 120 * time.Second
	DefaultTriggerMax    = 10
	DefaultTriggerWindow = time.Minute

	// Database defaults.
	DefaultDBPath       = "maintrack.db"
	DefaultCacheSize    = -64000 // 64MB
	DefaultBusyTimeout  = 5 * time.Second
	DefaultMaxOpenConns = 1 // SQLite works best with single writer
	DefaultMaxIdleConns = 1

	// Logging defaults.
	DefaultLogLevel  = "info"
	DefaultLogFormat = "console"

	// Scheduler defaults.
	DefaultGenerateSpec    = "@every 1m"
	DefaultExpireSpec      = "@every 1m"
	DefaultPerformanceSpec = "@every 1h"
	DefaultLookahead       = 4 * 24 * time.Hour
	DefaultExpiry          = 24 * time.Hour

	// Performance defaults.
	DefaultWindowDays   = 30
	DefaultInactiveRule = "results == 0 && completed == 0"
	DefaultCriticalRule = "completion_rate < 0.5 || penalty_points >= 100"
	DefaultWarningRule  = "completion_rate < 0.8 || pass_rate < 0.9"

	// Catalog and metrics defaults.
	DefaultCatalogDebounce = 250 * time.Millisecond
	DefaultMetricsPath     = "/metrics"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         DefaultHost,
			Port:         DefaultPort,
			ReadTimeout:  DefaultReadTimeout,
			WriteTimeout: DefaultWriteTimeout,
			IdleTimeout:  DefaultIdleTimeout,
			TriggerRateLimit: RateLimitRule{
				Max:    DefaultTriggerMax,
				Window: DefaultTriggerWindow,
			},
		},
		Database: DatabaseConfig{
			Path:            DefaultDBPath,
			WALMode:         true,
			CacheSize:       DefaultCacheSize,
			BusyTimeout:     DefaultBusyTimeout,
			ForeignKeys:     true,
			MaxOpenConns:    DefaultMaxOpenConns,
			MaxIdleConns:    DefaultMaxIdleConns,
			ConnMaxLifetime: 0, // No limit
		},
		Logging: LoggingConfig{
			Level:     DefaultLogLevel,
			Format:    DefaultLogFormat,
			Caller:    false,
			Timestamp: true,
		},
		Scheduler: SchedulerConfig{
			Enabled:           true,
			GenerateSpec:      DefaultGenerateSpec,
			ExpireSpec:        DefaultExpireSpec,
			PerformanceSpec:   DefaultPerformanceSpec,
			Lookahead:         DefaultLookahead,
			DefaultExpiry:     DefaultExpiry,
			RollForwardMissed: true,
			CompleteEmpty:     false,
			BatchLimit:        0,
		},
		Performance: PerformanceConfig{
			WindowDays: DefaultWindowDays,
			Rules: PerformanceRules{
				Inactive: DefaultInactiveRule,
				Critical: DefaultCriticalRule,
				Warning:  DefaultWarningRule,
			},
		},
		Catalog: CatalogConfig{
			Path:     "",
			Watch:    false,
			Debounce: DefaultCatalogDebounce,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    DefaultMetricsPath,
		},
	}
}
