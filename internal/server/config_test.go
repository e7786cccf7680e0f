package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envOf(m map[string]string) func(string) string {
	return func(key string) string { return m[key] }
}

func missingPath(t *testing.T) string {
	return filepath.Join(t.TempDir(), "nope.json")
}

func TestLoadConfigDefaults(t *testing.T) {
	config, err := loadConfig(missingPath(t), envOf(map[string]string{
		"OPENAI_API_KEY": "sk-test",
		"SECRET_KEY":     "s3cret",
	}))
	require.NoError(t, err)

	assert.Equal(t, "sk-test", config.OpenAIToken)
	assert.Equal(t, defaultModel, config.Model)
	assert.Equal(t, defaultPort, config.Port)
	assert.Equal(t, defaultLogLevel, config.LogLevel)
	assert.Equal(t, defaultDomainCacheSize, config.domainCacheSize())
	assert.Equal(t, 24*time.Hour, config.sessionTTL)
	assert.Empty(t, config.admin().Username)
}

func TestLoadConfigRequiresAPIKey(t *testing.T) {
	_, err := loadConfig(missingPath(t), envOf(map[string]string{"SECRET_KEY": "s3cret"}))
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestLoadConfigRequiresSecret(t *testing.T) {
	_, err := loadConfig(missingPath(t), envOf(map[string]string{"OPENAI_API_KEY": "sk-test"}))
	assert.ErrorIs(t, err, ErrMissingSecret)
}

func TestLoadConfigFileAndOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "searchai.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"openaiToken": "sk-file",
		"secretKey": "file-secret",
		"adminUser": "admin",
		"adminPass": "from-file",
		"port": 9000,
		"sessionTTL": "2h",
		"domainCacheSize": 0
	}`), 0o600))

	config, err := loadConfig(path, envOf(map[string]string{
		"ADMIN_PASS": "from-env",
		"PORT":       "7000",
		"LOG_LEVEL":  "debug",
	}))
	require.NoError(t, err)

	assert.Equal(t, "sk-file", config.OpenAIToken)
	assert.Equal(t, "file-secret", config.SecretKey)
	assert.Equal(t, "admin", config.AdminUser)
	assert.Equal(t, "from-env", config.AdminPass)
	assert.Equal(t, 7000, config.Port)
	assert.Equal(t, "debug", config.LogLevel)
	assert.Equal(t, 2*time.Hour, config.sessionTTL)
	assert.Equal(t, 0, config.domainCacheSize())
}

func TestLoadConfigInvalidValues(t *testing.T) {
	base := map[string]string{"OPENAI_API_KEY": "sk-test", "SECRET_KEY": "s3cret"}

	tests := map[string][2]string{
		"port":       {"PORT", "eighty"},
		"cache size": {"DOMAIN_CACHE_SIZE", "lots"},
		"ttl":        {"SESSION_TTL", "forever"},
	}
	for name, kv := range tests {
		t.Run(name, func(t *testing.T) {
			env := map[string]string{}
			for k, v := range base {
				env[k] = v
			}
			env[kv[0]] = kv[1]

			_, err := loadConfig(missingPath(t), envOf(env))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "searchai.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o600))

	_, err := loadConfig(path, envOf(map[string]string{"OPENAI_API_KEY": "k", "SECRET_KEY": "s"}))
	assert.Error(t, err)
}

func TestConfigPathOverride(t *testing.T) {
	path, err := configPath(envOf(map[string]string{"SEARCHAI_CONFIG": "/etc/searchai.json"}))
	require.NoError(t, err)
	assert.Equal(t, "/etc/searchai.json", path)
}
