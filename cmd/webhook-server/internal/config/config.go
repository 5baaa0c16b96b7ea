// Package config provides configuration management for the webhook server.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the webhook server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Webhooks WebhooksConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string
	Port int
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	Database string
	Prefix   string
}

// WebhooksConfig holds delivery and retry worker configuration.
type WebhooksConfig struct {
	AttemptTimeout  time.Duration
	MaxConcurrent   int
	WorkerInterval  time.Duration
	WorkerBatchSize int
	StaleAfter      time.Duration
	Debug           bool
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnvInt("SERVER_PORT", 8080),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "mysql"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 3306),
			User:     getEnv("DB_USER", "root"),
			Password: os.Getenv("DB_PASSWORD"),
			Database: getEnv("DB_NAME", "webhooks"),
			Prefix:   getEnv("DB_TABLE_PREFIX", "webhooks_"),
		},
		Webhooks: WebhooksConfig{
			AttemptTimeout:  getEnvDuration("WEBHOOKS_ATTEMPT_TIMEOUT", 10*time.Second),
			MaxConcurrent:   getEnvInt("WEBHOOKS_MAX_CONCURRENT", 10),
			WorkerInterval:  getEnvDuration("WEBHOOKS_WORKER_INTERVAL", 30*time.Second),
			WorkerBatchSize: getEnvInt("WEBHOOKS_WORKER_BATCH_SIZE", 100),
			StaleAfter:      getEnvDuration("WEBHOOKS_STALE_AFTER", 5*time.Minute),
			Debug:           getEnvBool("WEBHOOKS_DEBUG", false),
		},
	}

	if cfg.Database.Driver != "sqlite3" && cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD environment variable is required")
	}

	if cfg.Webhooks.StaleAfter <= cfg.Webhooks.AttemptTimeout {
		return nil, fmt.Errorf("WEBHOOKS_STALE_AFTER (%s) must exceed WEBHOOKS_ATTEMPT_TIMEOUT (%s)",
			cfg.Webhooks.StaleAfter, cfg.Webhooks.AttemptTimeout)
	}

	return cfg, nil
}

// GetDSN returns the database connection string for the configured driver.
func (c *DatabaseConfig) GetDSN() string {
	switch c.Driver {
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
			c.User, c.Password, c.Host, c.Port, c.Database)
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			c.Host, c.Port, c.User, c.Password, c.Database)
	case "sqlite3":
		return c.Database
	default:
		return ""
	}
}

// GetServerAddr returns the address for the HTTP server to listen on.
func (c *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
