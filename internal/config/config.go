package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	CORS      CORSConfig
	Plaid     PlaidConfig
	Vault     VaultConfig
	Auth      AuthConfig
	Sync      SyncConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port string
	Host string
	Addr string // Combined host:port for convenience
}

// DatabaseConfig holds database-specific configuration
type DatabaseConfig struct {
	Path string
}

// CORSConfig holds CORS-specific configuration
type CORSConfig struct {
	AllowedOrigins []string
}

// PlaidConfig holds aggregator API credentials and environment selection.
// Environment is "sandbox" or "production"; sandbox-only endpoints are
// refused under production.
type PlaidConfig struct {
	ClientID    string
	Secret      string
	Environment string
}

// VaultConfig holds the credential encryption keys. Keys is the parsed
// VAULT_KEYS list, one "version:key" entry per element.
type VaultConfig struct {
	Keys []string
}

// AuthConfig holds the secret used to verify bearer tokens.
type AuthConfig struct {
	JWTSecret string
}

// SyncConfig holds the scheduled refresh configuration. Schedule is a cron
// expression; the default refreshes every morning at 06:00 and setting
// SYNC_SCHEDULE to an empty string disables the job.
type SyncConfig struct {
	Schedule string
}

// RateLimitConfig bounds the request rate per client IP.
type RateLimitConfig struct {
	MaxRequests int
	Window      time.Duration
}

// Load reads configuration from environment variables and .env file.
// PLAID_CLIENT_ID, PLAID_SECRET, VAULT_KEYS, and JWT_SECRET are required;
// missing values are reported together in a single error.
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	config := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "5001"),
			Host: getEnv("SERVER_HOST", "localhost"),
		},
		Database: DatabaseConfig{
			Path: getEnv("DB_PATH", "./data/portfolio.db"),
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{
				"http://localhost:3000",
				"http://localhost",
			},
		},
		Plaid: PlaidConfig{
			ClientID:    os.Getenv("PLAID_CLIENT_ID"),
			Secret:      os.Getenv("PLAID_SECRET"),
			Environment: getEnv("PLAID_ENV", "sandbox"),
		},
		Vault: VaultConfig{
			Keys: splitList(os.Getenv("VAULT_KEYS")),
		},
		Auth: AuthConfig{
			JWTSecret: os.Getenv("JWT_SECRET"),
		},
		Sync: SyncConfig{
			Schedule: getEnvAllowEmpty("SYNC_SCHEDULE", "0 6 * * *"),
		},
		RateLimit: RateLimitConfig{
			MaxRequests: getEnvInt("RATE_LIMIT_MAX_REQUESTS", 100),
			Window:      time.Duration(getEnvInt("RATE_LIMIT_WINDOW_SECONDS", 60)) * time.Second,
		},
	}

	// Combine host and port
	config.Server.Addr = fmt.Sprintf("%s:%s", config.Server.Host, config.Server.Port)

	var missing []string
	if config.Plaid.ClientID == "" {
		missing = append(missing, "PLAID_CLIENT_ID")
	}
	if config.Plaid.Secret == "" {
		missing = append(missing, "PLAID_SECRET")
	}
	if len(config.Vault.Keys) == 0 {
		missing = append(missing, "VAULT_KEYS")
	}
	if config.Auth.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	return config, nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvInt gets an integer environment variable or returns a default value.
// Unparseable values fall back to the default.
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// getEnvAllowEmpty gets an environment variable, defaulting only when the
// variable is unset. An explicitly empty value stays empty, which is how the
// scheduled refresh is disabled.
func getEnvAllowEmpty(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}

// splitList splits a comma-separated variable into trimmed non-empty entries.
func splitList(value string) []string {
	var entries []string
	for _, entry := range strings.Split(value, ",") {
		if entry = strings.TrimSpace(entry); entry != "" {
			entries = append(entries, entry)
		}
	}
	return entries
}
