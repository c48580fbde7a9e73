package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDefaults(t *testing.T) {
	values := Config{RunAddr: ":9999"}

	applyDefaults(&values, defaultConfig)

	assert.Equal(t, ":9999", values.RunAddr)
	assert.Equal(t, "http://localhost:8080", values.BaseURL)
	assert.Equal(t, 15*time.Second, values.ChangesHeartbeat)
	assert.Equal(t, []string{"openid", "email"}, values.OAuthScopes)
}

const testJSON = `{
	"server_address": ":3000",
	"base_url": "http://json-config.com/",
	"file_storage_path": "json_storage.json",
	"database_dsn": "json-dsn",
	"changes_heartbeat": "5s"
}`

const testYAML = `
server_address: ":3100"
log_level: debug
trusted_subnet: 10.0.0.0/8
redis_addr: localhost:6379
oauth_scopes: [openid, email, profile]
`

func writeTempConfig(t *testing.T, pattern, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), pattern)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestConfigPriorityJSONOnly(t *testing.T) {
	t.Setenv("CONFIG", writeTempConfig(t, "config.json", testJSON))

	cfg, err := New(WithDisableFlagsParsing(true))
	require.NoError(t, err)

	assert.Equal(t, ":3000", cfg.RunAddr)
	assert.Equal(t, "http://json-config.com", cfg.BaseURL)
	assert.Equal(t, "json_storage.json", cfg.DBFileName)
	assert.Equal(t, "json-dsn", cfg.DatabaseDSN)
	assert.Equal(t, 5*time.Second, cfg.ChangesHeartbeat)
}

func TestConfigYAMLFile(t *testing.T) {
	t.Setenv("CONFIG", writeTempConfig(t, "config.yaml", testYAML))

	cfg, err := New(WithDisableFlagsParsing(true))
	require.NoError(t, err)

	assert.Equal(t, ":3100", cfg.RunAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "10.0.0.0/8", cfg.TrustedSubnet)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, []string{"openid", "email", "profile"}, cfg.OAuthScopes)
}

func TestConfigPriorityJSONPlusEnv(t *testing.T) {
	t.Setenv("CONFIG", writeTempConfig(t, "config.json", testJSON))
	t.Setenv("SERVER_ADDRESS", ":4000")
	t.Setenv("BASE_URL", "http://env.com")

	cfg, err := New(WithDisableFlagsParsing(true))
	require.NoError(t, err)

	assert.Equal(t, ":4000", cfg.RunAddr) // env overrides json
	assert.Equal(t, "http://env.com", cfg.BaseURL)
	assert.Equal(t, "json-dsn", cfg.DatabaseDSN) // from JSON
}

func TestConfigPriorityAllSources(t *testing.T) {
	t.Setenv("CONFIG", writeTempConfig(t, "config.json", testJSON))
	t.Setenv("SERVER_ADDRESS", ":4000")
	t.Setenv("BASE_URL", "http://env.com")

	cfg, err := New(WithArgs([]string{
		"-a", ":6000",
		"-b", "http://cli.com",
	}))
	require.NoError(t, err)

	assert.Equal(t, ":6000", cfg.RunAddr) // CLI > ENV > JSON
	assert.Equal(t, "http://cli.com", cfg.BaseURL)
	assert.Equal(t, "json-dsn", cfg.DatabaseDSN) // from JSON
}

func TestConfigEnvOnly(t *testing.T) {
	t.Setenv("SERVER_ADDRESS", ":7000")
	t.Setenv("BASE_URL", "http://envonly.com")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("OAUTH_SCOPES", "openid,email")
	t.Setenv("SUBSCRIBER_BUFFER", "32")

	cfg, err := New(WithDisableFlagsParsing(true))
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.RunAddr)
	assert.Equal(t, "http://envonly.com", cfg.BaseURL)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 32, cfg.SubscriberBuffer)
}

func TestConfigRejectsInvalidValues(t *testing.T) {
	t.Setenv("LOG_LEVEL", "chatty")

	_, err := New(WithDisableFlagsParsing(true))
	assert.Error(t, err)
}

func TestConfigRejectsInvalidSubnet(t *testing.T) {
	_, err := New(WithArgs([]string{"-t", "not-a-subnet"}))
	assert.Error(t, err)
}

func TestConfigMissingFile(t *testing.T) {
	_, err := New(WithArgs([]string{"-c", filepath.Join(t.TempDir(), "absent.yaml")}))
	assert.Error(t, err)
}
