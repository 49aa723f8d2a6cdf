package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("API_BASE_URL", "")
	t.Setenv("CART_TAX_RATE", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080/api/v1", cfg.API.BaseURL)
	assert.True(t, cfg.Cart.TaxRate.Equal(decimal.RequireFromString("0.08")))
	assert.Equal(t, 2, cfg.Cart.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.Cart.RetryBaseDelay)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, 5*time.Second, cfg.Redis.DialTimeout)
	assert.Equal(t, 3*time.Second, cfg.Redis.IOTimeout)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("API_BASE_URL", "https://api.example.com/v1/")
	t.Setenv("CART_TAX_RATE", "0.0625")
	t.Setenv("CART_RETRY_BASE_DELAY", "50ms")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("REDIS_IO_TIMEOUT", "750ms")
	t.Setenv("APP_ENV", "production")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com/v1", cfg.API.BaseURL)
	assert.Equal(t, "0.0625", cfg.Cart.TaxRate.String())
	assert.Equal(t, 50*time.Millisecond, cfg.Cart.RetryBaseDelay)
	assert.Equal(t, "cache:6380", cfg.GetRedisAddr())
	assert.Equal(t, 750*time.Millisecond, cfg.Redis.IOTimeout)
	assert.True(t, cfg.IsProduction())
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := &Config{
		API:  APIConfig{BaseURL: "http://localhost"},
		Cart: CartConfig{TaxRate: decimal.NewFromInt(-1)},
	}
	assert.ErrorContains(t, cfg.Validate(), "CART_TAX_RATE")

	cfg.Cart.TaxRate = decimal.Zero
	cfg.Redis = RedisConfig{Enabled: true}
	assert.ErrorContains(t, cfg.Validate(), "REDIS_HOST")

	cfg.Redis.Enabled = false
	cfg.API.BaseURL = ""
	assert.ErrorContains(t, cfg.Validate(), "API_BASE_URL")
}
