package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvDefaults(t *testing.T) {
	for _, k := range []string{"MODE", "HTTP_ADDR", "DB_DRIVER", "TOKEN_TTL", "BULK_CONCURRENCY", "ADMIN_EMAIL", "LOG_FORMAT", "CORS_ORIGINS_OFFLINE", "CORS_ORIGINS_ONLINE"} {
		t.Setenv(k, "")
	}
	cfg := fromSources(fileConfig{})
	assert.Equal(t, ModeOffline, cfg.Mode)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, 8*time.Hour, cfg.TokenTTL)
	assert.Equal(t, 8, cfg.BulkConcurrency)
	assert.Equal(t, "pretty", cfg.LogFormat)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.CORSOrigins())
	assert.Empty(t, cfg.CORSOriginsOnline)
	assert.NoError(t, cfg.Validate())
}

func TestLoadYAMLOverlayWithEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "portal.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode: online
http_addr: ":9090"
auth_hmac_secret: file-secret
admin_email: Root@Example.com
token_ttl: 30m
cors_origins_online: ["https://a.example", "https://b.example"]
`), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("MODE", "")
	t.Setenv("ADMIN_EMAIL", "")
	t.Setenv("TOKEN_TTL", "")
	t.Setenv("CORS_ORIGINS_ONLINE", "")
	t.Setenv("AUTH_HMAC_SECRET", "")
	t.Setenv("HTTP_ADDR", ":7070")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ModeOnline, cfg.Mode)
	assert.Equal(t, ":7070", cfg.HTTPAddr, "env wins over file")
	assert.Equal(t, "file-secret", cfg.AuthHMACSecret)
	assert.Equal(t, "root@example.com", cfg.AdminEmail)
	assert.Equal(t, 30*time.Minute, cfg.TokenTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins())
}

func TestValidateRejectsDevSecretOnline(t *testing.T) {
	cfg := fromSources(fileConfig{})
	cfg.Mode = ModeOnline
	cfg.AuthHMACSecret = "supersecret-dev-key"
	assert.Error(t, cfg.Validate())

	cfg.AuthHMACSecret = "real"
	cfg.CORSOriginsOnline = nil
	assert.Error(t, cfg.Validate(), "online mode needs explicit origins")

	cfg.CORSOriginsOnline = []string{"https://portal.school.edu"}
	assert.NoError(t, cfg.Validate())

	cfg.Mode = "sideways"
	assert.Error(t, cfg.Validate())
}
