package config

import (
	"testing"
	"time"
)

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error without DATABASE_URL")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/rcm")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8000" {
		t.Errorf("port = %s, want 8000", cfg.Port)
	}
	if !cfg.IsDev() {
		t.Error("default env must be development")
	}
	if cfg.SLADefaultHours != 48 {
		t.Errorf("sla hours = %d, want 48", cfg.SLADefaultHours)
	}
	if cfg.SLADefault() != 48*time.Hour {
		t.Errorf("sla default = %v, want 48h", cfg.SLADefault())
	}
	if cfg.AmountCeilingCents != 500000 {
		t.Errorf("amount ceiling = %d, want 500000", cfg.AmountCeilingCents)
	}
	if cfg.QASampleRate != 0.05 {
		t.Errorf("qa sample rate = %v, want 0.05", cfg.QASampleRate)
	}
	if cfg.BatchMaxSize != 100 {
		t.Errorf("batch max size = %d, want 100", cfg.BatchMaxSize)
	}
	if cfg.DBIdleTime() != 5*time.Minute {
		t.Errorf("db idle time = %v, want 5m", cfg.DBIdleTime())
	}
}

func TestLoadOverridesFromEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/rcm")
	t.Setenv("ENV", "production")
	t.Setenv("SLA_DEFAULT_HOURS", "24")
	t.Setenv("BATCH_MAX_SIZE", "50")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.IsProduction() {
		t.Error("env override ignored")
	}
	if cfg.SLADefault() != 24*time.Hour {
		t.Errorf("sla default = %v, want 24h", cfg.SLADefault())
	}
	if cfg.BatchMaxSize != 50 {
		t.Errorf("batch max size = %d, want 50", cfg.BatchMaxSize)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Env:                "production",
			AuthSecret:         "secret",
			QASampleRate:       0.05,
			BatchMaxSize:       100,
			AmountCeilingCents: 500000,
			SLADefaultHours:    48,
		}
	}

	if err := base().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	c := base()
	c.AuthSecret = ""
	if err := c.Validate(); err == nil {
		t.Error("production without AUTH_SECRET must fail")
	}

	c = base()
	c.Env = "development"
	c.AuthSecret = ""
	if err := c.Validate(); err != nil {
		t.Errorf("development without AUTH_SECRET should pass: %v", err)
	}

	c = base()
	c.QASampleRate = 1.5
	if err := c.Validate(); err == nil {
		t.Error("out-of-range QA_SAMPLE_RATE must fail")
	}

	c = base()
	c.BatchMaxSize = 0
	if err := c.Validate(); err == nil {
		t.Error("zero BATCH_MAX_SIZE must fail")
	}

	c = base()
	c.SLADefaultHours = 0
	if err := c.Validate(); err == nil {
		t.Error("zero SLA_DEFAULT_HOURS must fail")
	}

	c = base()
	c.SLATaskHours = "coding_review"
	if err := c.Validate(); err == nil {
		t.Error("malformed SLA_TASK_HOURS must fail")
	}
}

func TestSLATaskWindows(t *testing.T) {
	c := &Config{SLATaskHours: "coding_review:24, appeal:72"}
	windows, err := c.SLATaskWindows()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if windows["coding_review"] != 24*time.Hour || windows["appeal"] != 72*time.Hour {
		t.Errorf("windows = %v", windows)
	}

	c = &Config{}
	windows, err = c.SLATaskWindows()
	if err != nil || len(windows) != 0 {
		t.Errorf("empty setting should parse to no overrides, got %v, %v", windows, err)
	}

	c = &Config{SLATaskHours: "appeal:zero"}
	if _, err := c.SLATaskWindows(); err == nil {
		t.Error("non-numeric hours must fail")
	}
}
