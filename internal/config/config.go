// Package config provides configuration management for the token ledger service.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Payment   PaymentConfig
	Pricing   PricingConfig
	Cache     CacheConfig
	Sweep     SweepConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port string
	Host string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig
	Redis      RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// ClickHouseConfig holds ClickHouse configuration
type ClickHouseConfig struct {
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// PaymentConfig holds payment lifecycle configuration
type PaymentConfig struct {
	// ExpiryWindow is how long a created payment stays pending before it
	// is considered overdue.
	ExpiryWindow time.Duration
	// OperatorKey authorizes settlement calls. Empty disables the settle API.
	OperatorKey string
}

// PricingConfig holds custom-plan pricing constants.
// Rates are decimal strings (price per token); minimums are token quantities.
type PricingConfig struct {
	RatePass        string
	RateMerit       string
	RateDistinction string
	MinPass         int64
	MinMerit        int64
	MinDistinction  int64
}

// CacheConfig holds cache configuration
type CacheConfig struct {
	TTL time.Duration
}

// SweepConfig holds sweep worker configuration
type SweepConfig struct {
	Interval time.Duration
}

// RateLimitConfig holds API rate limiting configuration (requests per second)
type RateLimitConfig struct {
	FreeTier      int
	PaidTier      int
	UnlimitedTier int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// Load .env file (optional in production)
	if err := godotenv.Load(); err != nil {
		// .env file is optional - environment variables can be set directly
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "token_ledger"),
				User:           getEnv("POSTGRES_USER", "ledger"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 100),
			},
			ClickHouse: ClickHouseConfig{
				Host:     getEnv("CLICKHOUSE_HOST", "localhost"),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "token_ledger"),
				User:     getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 50),
			},
		},
		Payment: PaymentConfig{
			ExpiryWindow: getEnvAsDuration("PAYMENT_EXPIRY_WINDOW", 24*time.Hour),
			OperatorKey:  getEnv("PAYMENT_OPERATOR_KEY", ""),
		},
		Pricing: PricingConfig{
			RatePass:        getEnv("PRICING_RATE_PASS", "0.30"),
			RateMerit:       getEnv("PRICING_RATE_MERIT", "0.35"),
			RateDistinction: getEnv("PRICING_RATE_DISTINCTION", "0.45"),
			MinPass:         getEnvAsInt64("PRICING_MIN_PASS", 10000),
			MinMerit:        getEnvAsInt64("PRICING_MIN_MERIT", 10000),
			MinDistinction:  getEnvAsInt64("PRICING_MIN_DISTINCTION", 25000),
		},
		Cache: CacheConfig{
			TTL: getEnvAsDuration("CACHE_TTL", 20*time.Second),
		},
		Sweep: SweepConfig{
			Interval: getEnvAsDuration("SWEEP_INTERVAL", time.Minute),
		},
		RateLimit: RateLimitConfig{
			FreeTier:      getEnvAsInt("RATE_LIMIT_FREE_TIER", 10),
			PaidTier:      getEnvAsInt("RATE_LIMIT_PAID_TIER", 100),
			UnlimitedTier: getEnvAsInt("RATE_LIMIT_UNLIMITED_TIER", 1000),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	return config, nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsInt64 gets an environment variable as an int64 with a default value
func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
