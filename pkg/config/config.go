// Package config loads the gateway configuration: server and Redis settings
// from environment variables, the providers tree from a YAML file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/gatehouse/pkg/provider"
	"github.com/platinummonkey/gatehouse/pkg/session"
)

const defaultConfValue = "ChangeMe"

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Redis     session.ClientConfig
	Admin     AdminConfig
	Identity  IdentityConfig
	Session   SessionConfig
	Providers map[string]provider.Entry
	LogLevel  string
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// AdminConfig is the platform admin account the local fallback binds to.
type AdminConfig struct {
	Email    string
	Password string
	Token    string
}

// IdentityConfig points at the identity service the gateway delegates
// credential checks and provisioning to.
type IdentityConfig struct {
	URL   string
	Token string
}

// SessionConfig holds session lifecycle settings.
type SessionConfig struct {
	TTL time.Duration
}

// LoadConfig loads configuration from environment variables and the
// providers file.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("GATEHOUSE_HOST", "0.0.0.0"),
			Port:            getEnv("GATEHOUSE_PORT", "8080"),
			ReadTimeout:     getEnvDuration("GATEHOUSE_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("GATEHOUSE_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("GATEHOUSE_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("GATEHOUSE_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Redis: session.ClientConfig{
			URL:        getEnv("GATEHOUSE_REDIS_URL", "redis://localhost:6379"),
			Password:   getEnv("GATEHOUSE_REDIS_PASSWORD", ""),
			DB:         getEnvInt("GATEHOUSE_REDIS_DB", 0),
			MaxRetries: getEnvInt("GATEHOUSE_REDIS_MAX_RETRIES", 3),
			PoolSize:   getEnvInt("GATEHOUSE_REDIS_POOL_SIZE", 10),
		},
		Admin: AdminConfig{
			Email:    getEnv("GATEHOUSE_ADMIN_EMAIL", ""),
			Password: getEnv("GATEHOUSE_ADMIN_PASSWORD", ""),
			Token:    getEnv("GATEHOUSE_ADMIN_TOKEN", ""),
		},
		Identity: IdentityConfig{
			URL:   getEnv("GATEHOUSE_IDENTITY_URL", "http://localhost:4010"),
			Token: getEnv("GATEHOUSE_IDENTITY_TOKEN", ""),
		},
		Session: SessionConfig{
			TTL: getEnvDuration("GATEHOUSE_SESSION_TTL", 24*time.Hour),
		},
		LogLevel: getEnv("GATEHOUSE_LOG_LEVEL", "info"),
	}

	if providersFile := getEnv("GATEHOUSE_PROVIDERS_FILE", ""); providersFile != "" {
		providers, err := LoadProviders(providersFile)
		if err != nil {
			return nil, err
		}
		cfg.Providers = providers
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadProviders parses the providers tree from a YAML file: one entry per
// provider id, each with a strategy kind and its snake_case config.
func LoadProviders(path string) (map[string]provider.Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read providers file: %w", err)
	}
	var doc struct {
		Providers map[string]provider.Entry `yaml:"providers"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse providers file: %w", err)
	}
	return doc.Providers, nil
}

// Validate checks if the configuration is valid. The admin account must be
// fully configured and off its defaults before the gateway boots.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Redis.URL == "" {
		return fmt.Errorf("redis URL is required")
	}
	if c.Identity.URL == "" {
		return fmt.Errorf("identity service URL is required")
	}
	if c.Admin.Email == "" || c.Admin.Password == "" || c.Admin.Token == "" {
		return fmt.Errorf("admin email, password and token must be configured")
	}
	if c.Admin.Password == defaultConfValue || c.Admin.Token == defaultConfValue {
		return fmt.Errorf("admin password and token must be changed from their defaults")
	}
	if !strings.Contains(c.Admin.Email, "@") {
		return fmt.Errorf("admin email must be a valid email address")
	}
	if _, err := uuid.Parse(c.Admin.Token); err != nil {
		return fmt.Errorf("admin token must be a valid UUID")
	}
	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
