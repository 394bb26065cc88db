package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("configuration validation failed:\n")
	for _, err := range e {
		sb.WriteString("  - ")
		sb.WriteString(err.Error())
		sb.WriteString("\n")
	}
	return sb.String()
}

// Has reports whether any error concerns the given field.
func (e ValidationErrors) Has(field string) bool {
	for _, err := range e {
		if err.Field == field {
			return true
		}
	}
	return false
}

func Validate(cfg *Config) error {
	var errs ValidationErrors

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateDatabase(&cfg.Database)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)
	errs = append(errs, validateScheduler(&cfg.Scheduler)...)
	errs = append(errs, validatePerformance(&cfg.Performance)...)
	errs = append(errs, validateMetrics(&cfg.Metrics)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateServer(cfg *ServerConfig) ValidationErrors {
	var errs ValidationErrors

	if cfg.Port < 1 || cfg.Port > 65535 {
		errs = append(errs, ValidationError{
			Field:   "server.port",
			Message: "must be between 1 and 65535",
		})
	}

	if cfg.ReadTimeout < 0 {
		errs = append(errs, ValidationError{
			Field:   "server.read_timeout",
			Message: "must be non-negative",
		})
	}

	if cfg.WriteTimeout < 0 {
		errs = append(errs, ValidationError{
			Field:   "server.write_timeout",
			Message: "must be non-negative",
		})
	}

	if cfg.TriggerRateLimit.Max < 0 {
		errs = append(errs, ValidationError{
			Field:   "server.trigger_rate_limit.max",
			Message: "must be non-negative",
		})
	}

	if cfg.TriggerRateLimit.Max > 0 && cfg.TriggerRateLimit.Window <= 0 {
		errs = append(errs, ValidationError{
			Field:   "server.trigger_rate_limit.window",
			Message: "must be positive when max is set",
		})
	}

	return errs
}

func validateDatabase(cfg *DatabaseConfig) ValidationErrors {
	var errs ValidationErrors

	if cfg.Path == "" {
		errs = append(errs, ValidationError{
			Field:   "database.path",
			Message: "required",
		})
	}

	if cfg.MaxOpenConns < 0 {
		errs = append(errs, ValidationError{
			Field:   "database.max_open_conns",
			Message: "must be non-negative",
		})
	}

	return errs
}

func validateLogging(cfg *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	validLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLevels[cfg.Level] {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: "must be one of: trace, debug, info, warn, error, fatal, panic",
		})
	}

	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[cfg.Format] {
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: "must be 'json' or 'console'",
		})
	}

	return errs
}

func validateScheduler(cfg *SchedulerConfig) ValidationErrors {
	var errs ValidationErrors

	parser := cron.NewParser(
		cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)
	specs := map[string]string{
		"scheduler.generate_spec":    cfg.GenerateSpec,
		"scheduler.expire_spec":      cfg.ExpireSpec,
		"scheduler.performance_spec": cfg.PerformanceSpec,
	}
	for field, spec := range specs {
		if spec == "" {
			errs = append(errs, ValidationError{Field: field, Message: "required"})
			continue
		}
		if _, err := parser.Parse(spec); err != nil {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: "invalid cron spec: " + err.Error(),
			})
		}
	}

	if cfg.Lookahead <= 0 {
		errs = append(errs, ValidationError{
			Field:   "scheduler.lookahead",
			Message: "must be positive",
		})
	}

	if cfg.DefaultExpiry < time.Minute {
		errs = append(errs, ValidationError{
			Field:   "scheduler.default_expiry",
			Message: "must be at least 1m",
		})
	}

	if cfg.BatchLimit < 0 {
		errs = append(errs, ValidationError{
			Field:   "scheduler.batch_limit",
			Message: "must be non-negative",
		})
	}

	return errs
}

func validatePerformance(cfg *PerformanceConfig) ValidationErrors {
	var errs ValidationErrors

	if cfg.WindowDays < 1 {
		errs = append(errs, ValidationError{
			Field:   "performance.window_days",
			Message: "must be at least 1",
		})
	}

	return errs
}

func validateMetrics(cfg *MetricsConfig) ValidationErrors {
	var errs ValidationErrors

	if cfg.Enabled && !strings.HasPrefix(cfg.Path, "/") {
		errs = append(errs, ValidationError{
			Field:   "metrics.path",
			Message: "must start with '/'",
		})
	}

	return errs
}
