package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() AppConfig {
	return AppConfig{
		HTTPAddr:            ":8080",
		PostgresDSN:         "postgres://localhost:5432/subwatch",
		RedisAddr:           "localhost:6379",
		BotToken:            "123:abc",
		NLPTimeout:          5 * time.Second,
		NLPMinConfidence:    0.6,
		TickInterval:        5 * time.Minute,
		ReminderLeadTime:    72 * time.Hour,
		MaxDispatchAttempts: 5,
		SchedulerWorkers:    4,
		DefaultTimezone:     "UTC",
		SMTPPort:            "465",
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidateRejectsMissingBotToken(t *testing.T) {
	cfg := validConfig()
	cfg.BotToken = ""
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsBadTimezone(t *testing.T) {
	cfg := validConfig()
	cfg.DefaultTimezone = "Mars/Olympus_Mons"
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsConfidenceOutOfRange(t *testing.T) {
	cfg := validConfig()
	cfg.NLPMinConfidence = 1.5
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsAlertEmailWithoutSMTP(t *testing.T) {
	cfg := validConfig()
	cfg.AlertEmail = "ops@example.com"
	cfg.SMTPHost = ""
	assert.Error(t, cfg.Validate())
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://localhost:5432/subwatch")
	t.Setenv("BOT_TOKEN", "123:abc")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, cfg.TickInterval)
	assert.Equal(t, 72*time.Hour, cfg.ReminderLeadTime)
	assert.Equal(t, 5, cfg.MaxDispatchAttempts)
	assert.Equal(t, "UTC", cfg.DefaultTimezone)
}

func TestLoadParsesDurations(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://localhost:5432/subwatch")
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("SCHEDULER_TICK_INTERVAL", "90s")
	t.Setenv("REMINDER_LEAD_TIME", "24h")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, cfg.TickInterval)
	assert.Equal(t, 24*time.Hour, cfg.ReminderLeadTime)
}
