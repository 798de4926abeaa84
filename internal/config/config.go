// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

type AppConfig struct {
	// Server
	HTTPAddr string `validate:"required"`

	// PostgreSQL
	PostgresDSN string `validate:"required"`

	// Redis
	RedisAddr string `validate:"required"`
	RedisPass string

	// Telegram
	BotToken      string `validate:"required"`
	WebhookURL    string
	WebhookSecret string

	// NLP collaborator
	NLPEndpoint      string `validate:"omitempty,url"`
	NLPAPIKey        string
	NLPModel         string
	NLPTimeout       time.Duration `validate:"gt=0"`
	NLPMinConfidence float64       `validate:"gte=0,lte=1"`

	// Reminder scheduler
	TickInterval        time.Duration `validate:"gt=0"`
	ReminderLeadTime    time.Duration `validate:"gt=0"`
	MaxDispatchAttempts int           `validate:"gte=1"`
	SchedulerWorkers    int           `validate:"gte=1"`

	// Defaults
	DefaultTimezone string `validate:"required"`

	// Operator alerting
	OperatorWSToken string
	AlertEmail      string `validate:"omitempty,email"`

	// SMTP (operator alert mail)
	SMTPHost     string
	SMTPPort     string
	SMTPUser     string
	SMTPPass     string
	SMTPFromName string
}

// Load reads environment variables into AppConfig and validates them. No
// network calls are made here; connectivity is probed by the callers that
// open the actual clients.
func Load() (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),

		PostgresDSN: getEnv("POSTGRES_DSN", ""),

		RedisAddr: getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPass: getEnv("REDIS_PASS", ""),

		BotToken:      getEnv("BOT_TOKEN", ""),
		WebhookURL:    getEnv("WEBHOOK_URL", ""),
		WebhookSecret: getEnv("WEBHOOK_SECRET", ""),

		NLPEndpoint:      getEnv("NLP_ENDPOINT", ""),
		NLPAPIKey:        getEnv("NLP_API_KEY", ""),
		NLPModel:         getEnv("NLP_MODEL", "GigaChat"),
		NLPTimeout:       getEnvDuration("NLP_TIMEOUT", 5*time.Second),
		NLPMinConfidence: getEnvFloat("NLP_MIN_CONFIDENCE", 0.6),

		TickInterval:        getEnvDuration("SCHEDULER_TICK_INTERVAL", 5*time.Minute),
		ReminderLeadTime:    getEnvDuration("REMINDER_LEAD_TIME", 72*time.Hour),
		MaxDispatchAttempts: getEnvInt("DISPATCH_MAX_ATTEMPTS", 5),
		SchedulerWorkers:    getEnvInt("SCHEDULER_WORKERS", 4),

		DefaultTimezone: getEnv("DEFAULT_TIMEZONE", "UTC"),

		OperatorWSToken: getEnv("OPERATOR_WS_TOKEN", ""),
		AlertEmail:      getEnv("ALERT_EMAIL", ""),

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnv("SMTP_PORT", "465"),
		SMTPUser:     getEnv("SMTP_USER", ""),
		SMTPPass:     getEnv("SMTP_PASS", ""),
		SMTPFromName: getEnv("SMTP_FROM_NAME", "SubWatch Bot"),
	}

	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// Validate checks field constraints plus the cross-field rules the tags
// cannot express.
func (c AppConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if _, err := time.LoadLocation(c.DefaultTimezone); err != nil {
		return fmt.Errorf("invalid DEFAULT_TIMEZONE %q: %w", c.DefaultTimezone, err)
	}
	if c.AlertEmail != "" && c.SMTPHost == "" {
		return fmt.Errorf("ALERT_EMAIL is set but SMTP_HOST is empty")
	}
	return nil
}

// --- Helper functions ---

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
