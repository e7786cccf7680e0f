package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/vasilisp/searchai/internal/auth"
)

const (
	defaultModel           = "gpt-4o"
	defaultPort            = 5000
	defaultLogLevel        = "info"
	defaultDomainCacheSize = 256
)

var (
	ErrMissingAPIKey = errors.New("missing upstream API key (OPENAI_API_KEY)")
	ErrMissingSecret = errors.New("missing session secret (SECRET_KEY)")
)

type config struct {
	OpenAIToken     string `json:"openaiToken"`
	Model           string `json:"model,omitempty"`
	AdminUser       string `json:"adminUser,omitempty"`
	AdminPass       string `json:"adminPass,omitempty"`
	SecretKey       string `json:"secretKey"`
	SessionTTL      string `json:"sessionTTL,omitempty"`
	Port            int    `json:"port,omitempty"`
	LogLevel        string `json:"logLevel,omitempty"`
	DomainCacheSize *int   `json:"domainCacheSize,omitempty"`

	sessionTTL time.Duration
}

func (c *config) admin() auth.Admin {
	return auth.Admin{Username: c.AdminUser, Password: c.AdminPass}
}

func (c *config) domainCacheSize() int {
	if c.DomainCacheSize == nil {
		return defaultDomainCacheSize
	}
	return *c.DomainCacheSize
}

// configPath returns the JSON config location; SEARCHAI_CONFIG wins over
// ~/.config/searchai.json.
func configPath(getenv func(string) string) (string, error) {
	if path := getenv("SEARCHAI_CONFIG"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "searchai.json"), nil
}

// loadConfig reads the optional config file at path and applies environment
// overrides from getenv. A missing file is not an error.
func loadConfig(path string, getenv func(string) string) (*config, error) {
	var config config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	overrides := []struct {
		env string
		dst *string
	}{
		{"OPENAI_API_KEY", &config.OpenAIToken},
		{"SEARCHAI_MODEL", &config.Model},
		{"ADMIN_USER", &config.AdminUser},
		{"ADMIN_PASS", &config.AdminPass},
		{"SECRET_KEY", &config.SecretKey},
		{"SESSION_TTL", &config.SessionTTL},
		{"LOG_LEVEL", &config.LogLevel},
	}
	for _, o := range overrides {
		if v := getenv(o.env); v != "" {
			*o.dst = v
		}
	}

	if v := getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		config.Port = port
	}

	if v := getenv("DOMAIN_CACHE_SIZE"); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid DOMAIN_CACHE_SIZE %q: %w", v, err)
		}
		config.DomainCacheSize = &size
	}

	if config.OpenAIToken == "" {
		return nil, ErrMissingAPIKey
	}
	if config.SecretKey == "" {
		return nil, ErrMissingSecret
	}

	if config.Model == "" {
		config.Model = defaultModel
	}
	if config.Port <= 0 {
		config.Port = defaultPort
	}
	if config.LogLevel == "" {
		config.LogLevel = defaultLogLevel
	}

	config.sessionTTL = auth.DefaultSessionTTL
	if config.SessionTTL != "" {
		ttl, err := time.ParseDuration(config.SessionTTL)
		if err != nil || ttl <= 0 {
			return nil, fmt.Errorf("invalid session TTL %q", config.SessionTTL)
		}
		config.sessionTTL = ttl
	}

	return &config, nil
}
