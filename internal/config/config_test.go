package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnvDefaults(t *testing.T) {
	t.Setenv("MONGODB_URI", "mongodb://localhost:27017")

	cfg, err := ParseEnv()
	require.NoError(t, err)
	assert.Equal(t, "mongodb://localhost:27017", cfg.MongoURI)
	assert.Equal(t, "houseye", cfg.Database)
	assert.Equal(t, "images", cfg.ImageBucket)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.Transactions)
	assert.Zero(t, cfg.MessageRatePerMinute)
	assert.Equal(t, 5, cfg.MessageBurst)
}

func TestParseEnvOverrides(t *testing.T) {
	t.Setenv("MONGODB_URI", "mongodb://db:27017")
	t.Setenv("MONGODB_DATABASE", "house_test")
	t.Setenv("MONGODB_TRANSACTIONS", "true")
	t.Setenv("IMAGE_BUCKET", "faces")
	t.Setenv("MESSAGE_RATE_PER_MINUTE", "30")

	cfg, err := ParseEnv()
	require.NoError(t, err)
	assert.Equal(t, "house_test", cfg.Database)
	assert.True(t, cfg.Transactions)
	assert.Equal(t, "faces", cfg.ImageBucket)
	assert.Equal(t, 30, cfg.MessageRatePerMinute)
}

func TestParseEnvRequiresURI(t *testing.T) {
	t.Setenv("MONGODB_URI", "")
	os.Unsetenv("MONGODB_URI")

	_, err := ParseEnv()
	assert.Error(t, err)
}

func TestLoadCredentials(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "service-account.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"username":"houseye","password":"s3cret","auth_source":"admin"}`), 0o600))

	cfg := &Config{CredentialsFile: path}
	creds, err := cfg.LoadCredentials()
	require.NoError(t, err)
	assert.Equal(t, "houseye", creds.Username)
	assert.Equal(t, "s3cret", creds.Password)
	assert.Equal(t, "admin", creds.AuthSource)
}

func TestLoadCredentialsNone(t *testing.T) {
	creds, err := (&Config{}).LoadCredentials()
	require.NoError(t, err)
	assert.Nil(t, creds)
}

func TestLoadCredentialsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"password":"x"}`), 0o600))

	_, err := (&Config{CredentialsFile: path}).LoadCredentials()
	assert.Error(t, err)

	_, err = (&Config{CredentialsFile: filepath.Join(dir, "missing.json")}).LoadCredentials()
	assert.Error(t, err)
}
