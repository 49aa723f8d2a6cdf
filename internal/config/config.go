// internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds all configuration for the storefront client
type Config struct {
	App      AppConfig
	API      APIConfig
	Cart     CartConfig
	Checkout CheckoutConfig
	Stripe   StripeConfig
	Breaker  BreakerConfig
	Redis    RedisConfig
	Logging  LoggingConfig
}

// AppConfig contains application-level configuration
type AppConfig struct {
	Name        string
	Version     string
	Environment string
}

// APIConfig describes the storefront REST backend
type APIConfig struct {
	BaseURL   string
	Timeout   time.Duration
	AuthToken string
}

// CartConfig contains cart store tuning
type CartConfig struct {
	TaxRate        decimal.Decimal
	RetryBaseDelay time.Duration
	MaxRetries     int
}

// CheckoutConfig contains checkout defaults
type CheckoutConfig struct {
	ReturnURL     string
	DefaultBranch string
}

// StripeConfig contains payment SDK overrides. The publishable key itself
// is always fetched from the backend.
type StripeConfig struct {
	APIBase string
}

// BreakerConfig tunes the backend circuit breaker
type BreakerConfig struct {
	MaxFailures uint32
	OpenTimeout time.Duration
}

// RedisConfig contains the optional cart snapshot cache configuration
type RedisConfig struct {
	Enabled      bool
	Host         string
	Port         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	CartTTL      time.Duration
	DialTimeout  time.Duration
	IOTimeout    time.Duration
	PoolTimeout  time.Duration
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using environment variables")
	}

	config := &Config{
		App: AppConfig{
			Name:        getEnv("APP_NAME", "Photo Print Storefront"),
			Version:     getEnv("APP_VERSION", "1.0.0"),
			Environment: getEnv("APP_ENV", "development"),
		},
		API: APIConfig{
			BaseURL:   strings.TrimRight(getEnv("API_BASE_URL", "http://localhost:8080/api/v1"), "/"),
			Timeout:   getEnvAsDuration("API_TIMEOUT", 15*time.Second),
			AuthToken: getEnv("API_AUTH_TOKEN", ""),
		},
		Cart: CartConfig{
			TaxRate:        getEnvAsDecimal("CART_TAX_RATE", decimal.RequireFromString("0.08")),
			RetryBaseDelay: getEnvAsDuration("CART_RETRY_BASE_DELAY", 500*time.Millisecond),
			MaxRetries:     getEnvAsInt("CART_MAX_RETRIES", 2),
		},
		Checkout: CheckoutConfig{
			ReturnURL:     getEnv("CHECKOUT_RETURN_URL", "http://localhost:3000/checkout/complete"),
			DefaultBranch: getEnv("CHECKOUT_DEFAULT_BRANCH", ""),
		},
		Stripe: StripeConfig{
			APIBase: getEnv("STRIPE_API_BASE", ""),
		},
		Breaker: BreakerConfig{
			MaxFailures: uint32(getEnvAsInt("BREAKER_MAX_FAILURES", 5)),
			OpenTimeout: getEnvAsDuration("BREAKER_OPEN_TIMEOUT", 30*time.Second),
		},
		Redis: RedisConfig{
			Enabled:      getEnvAsBool("REDIS_ENABLED", false),
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnv("REDIS_PORT", "6379"),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvAsInt("REDIS_DB", 0),
			PoolSize:     getEnvAsInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvAsInt("REDIS_MIN_IDLE_CONNS", 2),
			CartTTL:      getEnvAsDuration("REDIS_CART_TTL", 24*time.Hour),
			DialTimeout:  getEnvAsDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			IOTimeout:    getEnvAsDuration("REDIS_IO_TIMEOUT", 3*time.Second),
			PoolTimeout:  getEnvAsDuration("REDIS_POOL_TIMEOUT", 4*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("API_BASE_URL is required")
	}
	if _, err := url.ParseRequestURI(c.API.BaseURL); err != nil {
		return fmt.Errorf("API_BASE_URL is not a valid URL: %w", err)
	}

	if c.Cart.TaxRate.IsNegative() {
		return fmt.Errorf("CART_TAX_RATE must not be negative")
	}
	if c.Cart.MaxRetries < 0 {
		return fmt.Errorf("CART_MAX_RETRIES must not be negative")
	}

	if c.Redis.Enabled && c.Redis.Host == "" {
		return fmt.Errorf("REDIS_HOST is required when REDIS_ENABLED is set")
	}

	return nil
}

// IsDevelopment returns true if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsProduction returns true if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// GetRedisAddr returns the Redis address
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Redis.Host, c.Redis.Port)
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}
