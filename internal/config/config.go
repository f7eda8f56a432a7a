package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string `mapstructure:"PORT"`
	Env         string `mapstructure:"ENV"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`

	// Idle connections are reaped after this many minutes.
	DBIdleMinutes int `mapstructure:"DB_IDLE_MINUTES"`

	AuthSecret   string   `mapstructure:"AUTH_SECRET"`
	AuthIssuer   string   `mapstructure:"AUTH_ISSUER"`
	CORSOrigins  []string `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateBurst    int      `mapstructure:"RATE_LIMIT_BURST"`

	// Engine tuning.
	AmountCeilingCents int64   `mapstructure:"AMOUNT_CEILING_CENTS"`
	QASampleRate       float64 `mapstructure:"QA_SAMPLE_RATE"`
	QAHighValueCents   int64   `mapstructure:"QA_HIGH_VALUE_CENTS"`
	QAGracePeriodDays  int     `mapstructure:"QA_GRACE_PERIOD_DAYS"`
	BatchMaxSize       int     `mapstructure:"BATCH_MAX_SIZE"`
	SLADefaultHours    int     `mapstructure:"SLA_DEFAULT_HOURS"`

	// Per-task-type SLA overrides, e.g. "coding_review:24,appeal:72".
	SLATaskHours string `mapstructure:"SLA_TASK_HOURS"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("DB_IDLE_MINUTES", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("AMOUNT_CEILING_CENTS", 500000)
	v.SetDefault("QA_SAMPLE_RATE", 0.05)
	v.SetDefault("QA_HIGH_VALUE_CENTS", 1000000)
	v.SetDefault("QA_GRACE_PERIOD_DAYS", 14)
	v.SetDefault("BATCH_MAX_SIZE", 100)
	v.SetDefault("SLA_DEFAULT_HOURS", 48)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "DB_IDLE_MINUTES",
		"AUTH_SECRET", "AUTH_ISSUER", "CORS_ORIGINS",
		"RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
		"AMOUNT_CEILING_CENTS", "QA_SAMPLE_RATE", "QA_HIGH_VALUE_CENTS",
		"QA_GRACE_PERIOD_DAYS", "BATCH_MAX_SIZE", "SLA_DEFAULT_HOURS",
		"SLA_TASK_HOURS",
	} {
		v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: All requests are treated as admin. Do NOT use in production.")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// DBIdleTime returns the pool's idle reap threshold as a duration.
func (c *Config) DBIdleTime() time.Duration {
	return time.Duration(c.DBIdleMinutes) * time.Minute
}

// SLADefault returns the default SLA window as a duration.
func (c *Config) SLADefault() time.Duration {
	return time.Duration(c.SLADefaultHours) * time.Hour
}

// SLATaskWindows parses SLA_TASK_HOURS into per-task-type windows.
func (c *Config) SLATaskWindows() (map[string]time.Duration, error) {
	windows := make(map[string]time.Duration)
	if c.SLATaskHours == "" {
		return windows, nil
	}
	for _, pair := range strings.Split(c.SLATaskHours, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), ":", 2)
		if len(parts) != 2 || parts[0] == "" {
			return nil, fmt.Errorf("SLA_TASK_HOURS entry %q must be task:hours", pair)
		}
		var hours int
		if _, err := fmt.Sscanf(parts[1], "%d", &hours); err != nil || hours < 1 {
			return nil, fmt.Errorf("SLA_TASK_HOURS entry %q has invalid hours", pair)
		}
		windows[parts[0]] = time.Duration(hours) * time.Hour
	}
	return windows, nil
}

// Validate checks that the configuration is safe to run. In production the
// JWT signing secret must be set so real authentication is enforced, and the
// engine tuning knobs must be in range.
func (c *Config) Validate() error {
	if c.IsProduction() && c.AuthSecret == "" {
		return fmt.Errorf("AUTH_SECRET is required in production")
	}
	if c.QASampleRate < 0 || c.QASampleRate > 1 {
		return fmt.Errorf("QA_SAMPLE_RATE must be in [0,1], got %v", c.QASampleRate)
	}
	if c.BatchMaxSize < 1 {
		return fmt.Errorf("BATCH_MAX_SIZE must be at least 1, got %d", c.BatchMaxSize)
	}
	if c.AmountCeilingCents < 1 {
		return fmt.Errorf("AMOUNT_CEILING_CENTS must be positive, got %d", c.AmountCeilingCents)
	}
	if c.SLADefaultHours < 1 {
		return fmt.Errorf("SLA_DEFAULT_HOURS must be at least 1, got %d", c.SLADefaultHours)
	}
	if _, err := c.SLATaskWindows(); err != nil {
		return err
	}
	return nil
}
