package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv(PathEnvVar, "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 15*time.Minute, cfg.Auth.AccessTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.Auth.RefreshTTL)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gatehouse.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  environment: production
  addr: ":9000"
auth:
  access_secret: from-file
  refresh_secret: refresh-from-file
  access_ttl: 5m
`), 0o600))

	t.Setenv(PathEnvVar, path)
	t.Setenv("GATEHOUSE_AUTH_ACCESS_SECRET", "from-env")
	t.Setenv("GATEHOUSE_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "from-env", cfg.Auth.AccessSecret)
	assert.Equal(t, "refresh-from-file", cfg.Auth.RefreshSecret)
	assert.Equal(t, 5*time.Minute, cfg.Auth.AccessTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Server.Environment = EnvProduction
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth.access_secret is required")
	assert.Contains(t, err.Error(), "auth.refresh_secret is required")

	cfg.Auth.AccessSecret = "same"
	cfg.Auth.RefreshSecret = "same"
	assert.ErrorContains(t, cfg.Validate(), "must differ")

	cfg.Auth.RefreshSecret = "other"
	assert.NoError(t, cfg.Validate())

	cfg.Auth.AccessTTL = 0
	assert.ErrorContains(t, cfg.Validate(), "access_ttl")
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "auth.access_secret", envKey("GATEHOUSE_AUTH_ACCESS_SECRET"))
	assert.Equal(t, "database.dsn", envKey("GATEHOUSE_DATABASE_DSN"))
	assert.Equal(t, "", envKey("GATEHOUSE_CONFIG"))
}
