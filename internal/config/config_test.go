package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Server.Port != DefaultPort {
		t.Errorf("expected port %d, got %d", DefaultPort, cfg.Server.Port)
	}

	if cfg.Database.Path != DefaultDBPath {
		t.Errorf("expected db path %s, got %s", DefaultDBPath, cfg.Database.Path)
	}

	if cfg.Scheduler.Lookahead != 96*time.Hour {
		t.Errorf("expected 4 day lookahead, got %s", cfg.Scheduler.Lookahead)
	}

	if !cfg.Scheduler.RollForwardMissed {
		t.Error("expected roll_forward_missed to default to true")
	}

	if cfg.Scheduler.CompleteEmpty {
		t.Error("expected complete_empty to default to false")
	}

	if err := Validate(cfg); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := Default()
	cfg.Server.Port = 0

	err := Validate(cfg)
	if err == nil {
		t.Error("expected validation error for port 0")
	}

	cfg.Server.Port = 70000
	err = Validate(cfg)
	if err == nil {
		t.Error("expected validation error for port 70000")
	}
}

func TestValidate_TriggerRateLimit(t *testing.T) {
	cfg := Default()
	cfg.Server.TriggerRateLimit.Window = 0

	if err := Validate(cfg); err == nil {
		t.Error("expected validation error for zero window with max set")
	}

	cfg.Server.TriggerRateLimit.Max = 0
	if err := Validate(cfg); err != nil {
		t.Errorf("disabled limit should not need a window: %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := Default()
	cfg.Logging.Level = "invalid"

	err := Validate(cfg)
	if err == nil {
		t.Error("expected validation error for invalid log level")
	}
}

func TestValidate_Scheduler(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*SchedulerConfig)
		field  string
	}{
		{"bad cron spec", func(s *SchedulerConfig) { s.GenerateSpec = "every minute" }, "scheduler.generate_spec"},
		{"empty spec", func(s *SchedulerConfig) { s.ExpireSpec = "" }, "scheduler.expire_spec"},
		{"zero lookahead", func(s *SchedulerConfig) { s.Lookahead = 0 }, "scheduler.lookahead"},
		{"short expiry", func(s *SchedulerConfig) { s.DefaultExpiry = time.Second }, "scheduler.default_expiry"},
		{"negative batch", func(s *SchedulerConfig) { s.BatchLimit = -1 }, "scheduler.batch_limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg.Scheduler)

			err := Validate(cfg)
			var verrs ValidationErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("expected ValidationErrors, got %v", err)
			}
			if !verrs.Has(tt.field) {
				t.Errorf("expected error on %s, got %v", tt.field, verrs)
			}
		})
	}
}

func TestValidate_CronDescriptorsAndStandardSpecs(t *testing.T) {
	cfg := Default()
	cfg.Scheduler.GenerateSpec = "*/5 * * * *"
	cfg.Scheduler.PerformanceSpec = "@daily"

	if err := Validate(cfg); err != nil {
		t.Errorf("expected valid specs, got %v", err)
	}
}

func TestValidate_PerformanceWindow(t *testing.T) {
	cfg := Default()
	cfg.Performance.WindowDays = 0

	if err := Validate(cfg); err == nil {
		t.Error("expected validation error for zero window")
	}
}

func TestValidate_MetricsPath(t *testing.T) {
	cfg := Default()
	cfg.Metrics.Path = "metrics"

	if err := Validate(cfg); err == nil {
		t.Error("expected validation error for relative metrics path")
	}

	cfg.Metrics.Enabled = false
	if err := Validate(cfg); err != nil {
		t.Errorf("disabled metrics should skip path check: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "maintrack.yaml")

	content := `
server:
  port: 9000
  host: "0.0.0.0"
database:
  path: "test.db"
logging:
  level: "debug"
scheduler:
  lookahead: 48h
  complete_empty: true
performance:
  window_days: 7
  rules:
    critical: "expired > 3"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("expected host 0.0.0.0, got %s", cfg.Server.Host)
	}

	if cfg.Database.Path != "test.db" {
		t.Errorf("expected db path test.db, got %s", cfg.Database.Path)
	}

	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.Logging.Level)
	}

	if cfg.Scheduler.Lookahead != 48*time.Hour {
		t.Errorf("expected lookahead 48h, got %s", cfg.Scheduler.Lookahead)
	}

	if !cfg.Scheduler.CompleteEmpty {
		t.Error("expected complete_empty from file")
	}

	if cfg.Performance.WindowDays != 7 {
		t.Errorf("expected window 7, got %d", cfg.Performance.WindowDays)
	}

	if cfg.Performance.Rules.Critical != "expired > 3" {
		t.Errorf("unexpected critical rule %q", cfg.Performance.Rules.Critical)
	}

	if cfg.Performance.Rules.Warning != DefaultWarningRule {
		t.Errorf("expected default warning rule, got %q", cfg.Performance.Rules.Warning)
	}
}

func TestLoadFromFile_Invalid(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "maintrack.yaml")

	if err := os.WriteFile(configPath, []byte("server:\n  port: 0\n"), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	_, err := LoadFromFile(configPath)
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestLoadWithEnvOverride(t *testing.T) {
	t.Setenv("MAINTRACK_SERVER_PORT", "7777")
	t.Setenv("MAINTRACK_DATABASE_PATH", "env-test.db")
	t.Setenv("MAINTRACK_SCHEDULER_EXPIRE_SPEC", "@every 30s")

	cfg, err := LoadWithDefaults()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Server.Port != 7777 {
		t.Errorf("expected port 7777 from env, got %d", cfg.Server.Port)
	}

	if cfg.Database.Path != "env-test.db" {
		t.Errorf("expected db path env-test.db from env, got %s", cfg.Database.Path)
	}

	if cfg.Scheduler.ExpireSpec != "@every 30s" {
		t.Errorf("expected expire spec from env, got %s", cfg.Scheduler.ExpireSpec)
	}
}

func TestConfigFilePath_Custom(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "custom.yaml")

	if _, err := ConfigFilePath(configPath); err == nil {
		t.Error("expected error for missing file")
	}

	if err := os.WriteFile(configPath, []byte("{}"), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	got, err := ConfigFilePath(configPath)
	if err != nil {
		t.Fatalf("ConfigFilePath() error = %v", err)
	}
	if got != configPath {
		t.Errorf("expected %s, got %s", configPath, got)
	}
}

func TestServerAddress(t *testing.T) {
	cfg := &ServerConfig{Host: "localhost", Port: 8090}
	if addr := cfg.Address(); addr != "localhost:8090" {
		t.Errorf("expected localhost:8090, got %s", addr)
	}
}
