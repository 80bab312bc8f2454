package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("GO_ENV", "test")
	t.Setenv("AUTH_JWT_SECRET", "")
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 5*time.Second, cfg.WebhookTimeout)
	assert.True(t, cfg.WebhookBlockPrivate)
	assert.Equal(t, "noop", cfg.Email.Provider)
	assert.Equal(t, int64(5), cfg.Redis.Limit)
	assert.Equal(t, time.Minute, cfg.Redis.Window)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.Redis.Addr)
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, devJWTSecret, cfg.TokenSecret())
}

func TestLoad_NestedPrefixes(t *testing.T) {
	t.Setenv("GO_ENV", "test")
	t.Chdir(t.TempDir())
	t.Setenv("CORS_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("BILLING_QUOTA_FAIL_OPEN", "true")
	t.Setenv("BILLING_STRIPE_PRO_MONTHLY_PRICE", "price_pm")
	t.Setenv("EMAIL_PROVIDER", "ses")
	t.Setenv("EMAIL_FROM", "noreply@referrski.test")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REDIS_WINDOW", "30s")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.True(t, cfg.Billing.QuotaFailOpen)
	assert.Equal(t, "price_pm", cfg.StripePrices().ProMonthly)

	mc := cfg.Mailer()
	assert.Equal(t, "ses", mc.Provider)
	assert.Equal(t, "noreply@referrski.test", mc.FromAddress)

	rl := cfg.RateLimit()
	assert.Equal(t, "localhost:6379", rl.Addr)
	assert.Equal(t, 30*time.Second, rl.Window)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_InvalidDuration(t *testing.T) {
	t.Setenv("GO_ENV", "test")
	t.Chdir(t.TempDir())
	t.Setenv("WEBHOOK_TIMEOUT", "soon")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env")
}

func TestValidate_Production(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name: "development allows fail-open without secret",
			cfg:  Config{Environment: "development", Billing: BillingConfig{QuotaFailOpen: true}},
		},
		{
			name:    "production rejects fail-open",
			cfg:     Config{Environment: "production", JWTSecret: "s", Billing: BillingConfig{QuotaFailOpen: true}},
			wantErr: "BILLING_QUOTA_FAIL_OPEN",
		},
		{
			name:    "production requires jwt secret",
			cfg:     Config{Environment: "production"},
			wantErr: "AUTH_JWT_SECRET",
		},
		{
			name: "production ok",
			cfg:  Config{Environment: "production", JWTSecret: "s"},
		},
		{
			name: "production with unknown email provider still loads",
			cfg:  Config{Environment: "production", JWTSecret: "s", Email: EmailConfig{Provider: "smtp"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewLogger_FileRotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "referrski.log")
	cfg := &Config{Environment: "development", Log: LogConfig{Level: "info", File: path, MaxSizeMB: 1}}

	logger, err := NewLogger(cfg)
	require.NoError(t, err)
	logger.Info("hello", "app_id", "app-1")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "app_id=app-1")
}

func TestNewLogger_Handler(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, true, parseLevel("warn")).Info("dropped")
	assert.Empty(t, buf.String())

	newLogger(&buf, true, parseLevel("WARN")).Warn("kept", "k", "v")
	line := strings.TrimSpace(buf.String())
	assert.True(t, strings.HasPrefix(line, "{"))
	assert.Contains(t, line, `"k":"v"`)

	assert.Equal(t, slog.LevelInfo, parseLevel("verbose"))
}
