package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", testSecret)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8088", cfg.Server.Port)
	assert.Equal(t, 5*time.Minute, cfg.OTP.CodeTTL)
	assert.Equal(t, time.Minute, cfg.OTP.ResendCooldown)
	assert.Equal(t, 5, cfg.OTP.MaxAttempts)
	assert.Equal(t, 7*24*time.Hour, cfg.JWT.TokenExpiry)
	assert.Equal(t, "localhost:6379", cfg.Redis.Endpoint)
	assert.Equal(t, "ap-guangzhou", cfg.SMS.Region)
	assert.Equal(t, 60, cfg.RateLimit.RequestsPerMinute)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", testSecret)
	t.Setenv("CODE_TTL_SECONDS", "120")
	t.Setenv("CODE_RESEND_SECONDS", "30")
	t.Setenv("MAX_VERIFY_ATTEMPTS", "3")
	t.Setenv("JWT_TOKEN_EXPIRY", "24h")
	t.Setenv("PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 2*time.Minute, cfg.OTP.CodeTTL)
	assert.Equal(t, 30*time.Second, cfg.OTP.ResendCooldown)
	assert.Equal(t, 3, cfg.OTP.MaxAttempts)
	assert.Equal(t, 24*time.Hour, cfg.JWT.TokenExpiry)
}

func TestLoad_RequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "")

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_RejectsShortSecret(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "short")

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_RejectsNonPositiveTTL(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", testSecret)
	t.Setenv("CODE_TTL_SECONDS", "0")

	_, err := Load()
	require.Error(t, err)
}
