package config

import (
	"fmt"
	"net/url"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for persona-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8080"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:""` // Auto-derived from Port if empty
	Version  string `yaml:"-"`                                      // Set at load time, not from config

	// Authentication configuration
	Auth AuthConfig `yaml:"auth"`

	// Database configuration (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// Redis configuration for the filtered-view cache (optional)
	Redis RedisConfig `yaml:"redis"`

	// Privacy engine configuration
	Privacy PrivacyConfig `yaml:"privacy"`

	// Import pipeline configuration
	Import ImportConfig `yaml:"import"`
}

// AuthConfig holds authentication-related configuration.
// Token issuance happens elsewhere; persona-engine only verifies.
type AuthConfig struct {
	// EnableVerification controls whether JWT tokens are validated.
	// Set to false for local development without an identity provider.
	EnableVerification bool `yaml:"enable_verification" env:"AUTH_ENABLE_VERIFICATION" env-default:"true"`

	// JWKSURL is the identity provider's JWKS endpoint used to verify
	// bearer tokens.
	JWKSURL string `yaml:"jwks_url" env:"AUTH_JWKS_URL" env-default:""`

	// SessionKey authenticates owner browser session cookies.
	// Secret - environment only.
	SessionKey string `yaml:"-" env:"AUTH_SESSION_KEY"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"persona"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"persona_engine"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MigrationsPath string `yaml:"migrations_path" env:"PGMIGRATIONS_PATH" env-default:"migrations"`
}

// RedisConfig holds Redis connection settings. Leaving Host empty disables
// the filtered-view cache entirely.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// PrivacyConfig holds the privacy engine's configuration surface.
type PrivacyConfig struct {
	// RulesPath points at the YAML file backing the rule store. When empty
	// only the compiled-in seed rules are active.
	RulesPath string `yaml:"rules_path" env:"PRIVACY_RULES_PATH" env-default:""`

	// SingleUser switches the isolation gate into single-tenant mode: the
	// target username on requests is ignored and everything resolves to the
	// sole account. Must be set explicitly; it is never inferred from the
	// number of accounts that happen to exist.
	SingleUser bool `yaml:"single_user" env:"PRIVACY_SINGLE_USER" env-default:"false"`

	// UnlistedInAdminListings controls whether unlisted entries appear in
	// admin-facing listing views.
	UnlistedInAdminListings bool `yaml:"unlisted_in_admin_listings" env:"PRIVACY_UNLISTED_IN_ADMIN_LISTINGS" env-default:"true"`
}

// ImportConfig holds import pipeline settings.
type ImportConfig struct {
	// SourceDir is the fixed external location scanned for candidate files,
	// one subdirectory per namespace.
	SourceDir string `yaml:"source_dir" env:"IMPORT_SOURCE_DIR" env-default:"import-data"`
}

// Load reads configuration from config.yaml with environment variable
// overrides. When config.yaml is absent the configuration comes from the
// environment alone, so a zero-config start still works.
// The version parameter is injected at build time and set on the returned Config.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	if cfg.Auth.EnableVerification && cfg.Auth.JWKSURL == "" {
		return nil, fmt.Errorf("auth.jwks_url is required when verification is enabled")
	}

	// Auto-derive BaseURL from Port if not explicitly set
	if cfg.BaseURL == "" {
		cfg.BaseURL = (&url.URL{
			Scheme: "http",
			Host:   "localhost:" + cfg.Port,
		}).String()
	}

	return cfg, nil
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
