package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("AUTH_ENABLE_VERIFICATION", "false")

	cfg, err := Load("test")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "local", cfg.Env)
	assert.Equal(t, "test", cfg.Version)
	assert.Equal(t, "http://localhost:8080", cfg.BaseURL)
	assert.False(t, cfg.Privacy.SingleUser)
	assert.True(t, cfg.Privacy.UnlistedInAdminListings)
	assert.Equal(t, "import-data", cfg.Import.SourceDir)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("AUTH_ENABLE_VERIFICATION", "false")
	t.Setenv("PORT", "9999")
	t.Setenv("PRIVACY_SINGLE_USER", "true")
	t.Setenv("PRIVACY_RULES_PATH", "/etc/persona/rules.yaml")
	t.Setenv("IMPORT_SOURCE_DIR", "/srv/import")

	cfg, err := Load("test")
	require.NoError(t, err)

	assert.Equal(t, "9999", cfg.Port)
	assert.True(t, cfg.Privacy.SingleUser)
	assert.Equal(t, "/etc/persona/rules.yaml", cfg.Privacy.RulesPath)
	assert.Equal(t, "/srv/import", cfg.Import.SourceDir)
}

func TestLoad_RequiresJWKSWhenVerifying(t *testing.T) {
	t.Setenv("AUTH_ENABLE_VERIFICATION", "true")
	t.Setenv("AUTH_JWKS_URL", "")

	_, err := Load("test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwks_url")
}

func TestConnectionString(t *testing.T) {
	c := &DatabaseConfig{
		Host:     "db.internal",
		Port:     5433,
		User:     "persona",
		Password: "secret",
		Database: "persona_engine",
		SSLMode:  "require",
	}

	assert.Equal(t,
		"host=db.internal port=5433 user=persona password=secret dbname=persona_engine sslmode=require",
		c.ConnectionString())
}
