//go:build !integration

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
log:
  level: debug
database:
  url: postgres://from-file
redis:
  url: localhost:6379
auth:
  jwt_secret: file-secret
stripe:
  secret_key: sk_test_file
  webhook_secret: whsec_file
reconcile:
  workers: 8
otp:
  ttl: 5m
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoad_FileAndDefaults(t *testing.T) {
	cfg, err := Load(context.Background(), writeConfig(t, sampleYAML), false, envconfig.MapLookuper(nil))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 8, cfg.Reconcile.Workers)
	assert.Equal(t, "@every 10m", cfg.Reconcile.Schedule)
	assert.Equal(t, 5*time.Minute, cfg.OTP.TTL)
	assert.Equal(t, 5, cfg.OTP.MaxRequests)
	assert.Equal(t, 15*time.Minute, cfg.OTP.Window)
	assert.Equal(t, "usd", cfg.Stripe.Currency)
	assert.Equal(t, 72*time.Hour, cfg.Webhook.ReceiptTTL)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	env := envconfig.MapLookuper(map[string]string{
		"DATABASE_URL":      "postgres://from-env",
		"STRIPE_SECRET_KEY": "sk_test_env",
	})
	cfg, err := Load(context.Background(), writeConfig(t, sampleYAML), false, env)
	require.NoError(t, err)

	assert.Equal(t, "postgres://from-env", cfg.Database.URL)
	assert.Equal(t, "sk_test_env", cfg.Stripe.SecretKey)
	assert.Equal(t, "whsec_file", cfg.Stripe.WebhookSecret)
}

func TestLoad_EnvOnlyWithoutFile(t *testing.T) {
	env := envconfig.MapLookuper(map[string]string{
		"DATABASE_URL": "postgres://x",
		"REDIS_URL":    "redis://localhost:6379/0",
		"JWT_SECRET":   "s",
	})
	cfg, err := Load(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"), true, env)
	require.NoError(t, err)
	assert.True(t, cfg.Runtime.Dev)
	assert.Empty(t, cfg.Stripe.SecretKey, "dev mode runs without a gateway key")
}

func TestLoad_Validation(t *testing.T) {
	_, err := Load(context.Background(), writeConfig(t, "log:\n  level: info\n"), false, envconfig.MapLookuper(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.url")

	noStripe := "database:\n  url: x\nredis:\n  url: y\nauth:\n  jwt_secret: z\n"
	_, err = Load(context.Background(), writeConfig(t, noStripe), false, envconfig.MapLookuper(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stripe.secret_key")

	_, err = Load(context.Background(), writeConfig(t, "log: [broken"), false, envconfig.MapLookuper(nil))
	require.Error(t, err)
}
