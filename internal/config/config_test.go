package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URI", "mongodb://account.example.com:10255")
	t.Setenv("DATABASE_KEY", "secret-key")
	t.Setenv("DATABASE_ID", "marketplace")
	t.Setenv("STORAGE_ACCOUNT_NAME", "coldstart")
	t.Setenv("STORAGE_ACCOUNT_KEY", "storage-key")
	t.Setenv("STORAGE_CONNECTION_STRING", "http://127.0.0.1:9000")
	t.Setenv("COLDSTART_ENV_FILE", "testdata/does-not-exist.env")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "/api/v1", cfg.APIVersion)
	assert.Equal(t, []string{"http://localhost:5173", "http://127.0.0.1:5173"}, cfg.CORSOrigins)
	assert.Equal(t, UploadPolicySync, cfg.ImageUploadPolicy)
	assert.Equal(t, UploadPolicySync, cfg.FileUploadPolicy)
	assert.Equal(t, DefaultRemoteTimeout, cfg.RemoteTimeout)
	assert.False(t, cfg.CredentialsLoaded)
}

func TestLoadFailsOnMissingDatabaseConfig(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DATABASE_KEY", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_KEY")
}

func TestLoadFailsOnMissingStorageConfig(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("STORAGE_CONNECTION_STRING", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STORAGE_CONNECTION_STRING")
}

func TestLoadOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("COLDSTART_ADDR", ":9999")
	t.Setenv("COLDSTART_API_VERSION", "api/v2/")
	t.Setenv("CORS_ORIGINS", "https://app.example.com, https://admin.example.com")
	t.Setenv("COLDSTART_UPLOAD_POLICY", "queued")
	t.Setenv("COLDSTART_FILE_UPLOAD_POLICY", "sync")
	t.Setenv("COLDSTART_REMOTE_TIMEOUT", "2s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Addr)
	assert.Equal(t, "/api/v2", cfg.APIVersion)
	assert.Equal(t, []string{"https://app.example.com", "https://admin.example.com"}, cfg.CORSOrigins)
	assert.Equal(t, UploadPolicyQueued, cfg.ImageUploadPolicy)
	assert.Equal(t, UploadPolicySync, cfg.FileUploadPolicy)
	assert.Equal(t, 2*time.Second, cfg.RemoteTimeout)
}

func TestLoadRejectsUnknownUploadPolicy(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("COLDSTART_IMAGE_UPLOAD_POLICY", "detached")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upload policy")
}
