package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, key := range []string{"KYC_ADDR", "DATABASE_URL", "JWT_SIGNING_KEY", "ACCESS_TOKEN_TTL", "LOG_LEVEL", "KAFKA_BROKERS", "NOTIFY_TIMEOUT", "SMTP_PORT", "RATE_LIMIT_DISABLED", "RATE_LIMIT_AUTH"} {
		t.Setenv(key, "")
	}

	cfg := FromEnv()

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Empty(t, cfg.DatabaseURL)
	assert.True(t, cfg.UsesDevSigningKey())
	assert.Equal(t, 30*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, 5*time.Second, cfg.TxTimeout)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Nil(t, cfg.Notify.KafkaBrokers)
	assert.Equal(t, "kyc.decision", cfg.Notify.KafkaTopic)
	assert.Equal(t, 587, cfg.Notify.SMTPPort)
	assert.False(t, cfg.RateLimit.Disabled)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, 10, cfg.RateLimit.AuthPerWindow)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("KYC_ADDR", ":9090")
	t.Setenv("JWT_SIGNING_KEY", "prod-key")
	t.Setenv("ACCESS_TOKEN_TTL", "10m")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("SMTP_PORT", "not-a-number")
	t.Setenv("RATE_LIMIT_DISABLED", "true")
	t.Setenv("RATE_LIMIT_KYC", "5")

	cfg := FromEnv()

	assert.Equal(t, ":9090", cfg.Addr)
	assert.False(t, cfg.UsesDevSigningKey())
	assert.Equal(t, 10*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Notify.KafkaBrokers)
	assert.Equal(t, 587, cfg.Notify.SMTPPort, "invalid port falls back to default")
	assert.True(t, cfg.RateLimit.Disabled)
	assert.Equal(t, 5, cfg.RateLimit.KYCPerWindow)
}
