// Package config provides configuration management for the screening
// orchestration service. It loads configuration from environment variables
// and .env files.
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
	Server   ServerConfig
	Database DatabaseConfig
	Provider ProviderConfig
	Dispatch DispatchConfig
	Sweep    SweepConfig
	Logging  LoggingConfig
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

// ClickHouseConfig holds ClickHouse configuration for the call event log
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

// ProviderConfig holds voice provider API configuration
type ProviderConfig struct {
	BaseURL           string
	APIKey            string
	RequestTimeout    time.Duration
	RequestsPerSecond float64
}

// DispatchConfig holds batch dispatcher tuning
type DispatchConfig struct {
	DefaultBatchSize int           // Screenings per chunk (default: 5)
	PacingDelay      time.Duration // Delay between individual dispatches (default: 2s)
	ChunkDelay       time.Duration // Delay between chunks when work remains (default: 5s)
}

// SweepConfig holds tuning for the scheduled-call and reconciliation sweeps
type SweepConfig struct {
	ScheduledInterval  time.Duration // Scheduled-call sweep interval (default: 1m)
	ScheduledPageSize  int           // Due scheduled calls per sweep (default: 10)
	ReconcileInterval  time.Duration // Stuck-screening sweep interval (default: 2m)
	ReconcilePageSize  int           // Stuck screenings per sweep (default: 10)
	StalenessThreshold time.Duration // Age before an in_progress screening is stuck (default: 5m)
	MaxRetries         int           // Scheduled-call retry budget (default: 3)
	RetryBaseDelay     time.Duration // First retry backoff step (default: 15m)
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
				Database:       getEnv("POSTGRES_DB", "screening"),
				User:           getEnv("POSTGRES_USER", "screening"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 50),
			},
			ClickHouse: ClickHouseConfig{
				Host:     getEnv("CLICKHOUSE_HOST", "localhost"),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "screening"),
				User:     getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 20),
			},
		},
		Provider: ProviderConfig{
			BaseURL:           getEnv("PROVIDER_BASE_URL", "https://api.voiceprovider.example.com"),
			APIKey:            getEnv("PROVIDER_API_KEY", ""),
			RequestTimeout:    getEnvAsDuration("PROVIDER_REQUEST_TIMEOUT", 30*time.Second),
			RequestsPerSecond: getEnvAsFloat("PROVIDER_REQUESTS_PER_SECOND", 2.0),
		},
		Dispatch: DispatchConfig{
			DefaultBatchSize: getEnvAsInt("DISPATCH_BATCH_SIZE", 5),
			PacingDelay:      getEnvAsDuration("DISPATCH_PACING_DELAY", 2*time.Second),
			ChunkDelay:       getEnvAsDuration("DISPATCH_CHUNK_DELAY", 5*time.Second),
		},
		Sweep: SweepConfig{
			ScheduledInterval:  getEnvAsDuration("SWEEP_SCHEDULED_INTERVAL", time.Minute),
			ScheduledPageSize:  getEnvAsInt("SWEEP_SCHEDULED_PAGE_SIZE", 10),
			ReconcileInterval:  getEnvAsDuration("SWEEP_RECONCILE_INTERVAL", 2*time.Minute),
			ReconcilePageSize:  getEnvAsInt("SWEEP_RECONCILE_PAGE_SIZE", 10),
			StalenessThreshold: getEnvAsDuration("SWEEP_STALENESS_THRESHOLD", 5*time.Minute),
			MaxRetries:         getEnvAsInt("SWEEP_MAX_RETRIES", 3),
			RetryBaseDelay:     getEnvAsDuration("SWEEP_RETRY_BASE_DELAY", 15*time.Minute),
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

// getEnvAsFloat gets an environment variable as a float with a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
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
