// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// minSessionKeyLen is the minimum accepted session key length in bytes.
// Anything shorter cannot key the authenticated cookie codec safely.
const minSessionKeyLen = 32

// Config holds all application configuration
type Config struct {
	Port string `env:"PORT" envDefault:"8080"`
	Env  string `env:"APP_ENV" envDefault:"production"`

	// SessionKey keys the encrypted session cookie. Minimum 32 bytes.
	SessionKey        string `env:"SESSION_KEY"`
	SessionCookieName string `env:"SESSION_COOKIE_NAME" envDefault:"hubview_session"`

	// AllowedOrigin is the browser origin permitted by CORS.
	AllowedOrigin string `env:"ALLOWED_ORIGIN" envDefault:"http://localhost:5173"`

	GitHub GitHubConfig `envPrefix:"GITHUB_"`
}

// GitHubConfig holds upstream API settings
type GitHubConfig struct {
	BaseURL string        `env:"API_BASE_URL" envDefault:"https://api.github.com"`
	Timeout time.Duration `env:"API_TIMEOUT" envDefault:"8s"`
}

// Load reads configuration from environment variables and validates it.
// It fails fast so a misconfigured process never serves a request.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate ensures the configuration is usable
func (c *Config) Validate() error {
	if len(c.SessionKey) < minSessionKeyLen {
		return fmt.Errorf("SESSION_KEY must be at least %d bytes, got %d", minSessionKeyLen, len(c.SessionKey))
	}
	if c.GitHub.BaseURL == "" {
		return fmt.Errorf("GITHUB_API_BASE_URL must not be empty")
	}
	if c.GitHub.Timeout <= 0 {
		return fmt.Errorf("GITHUB_API_TIMEOUT must be positive, got %s", c.GitHub.Timeout)
	}
	return nil
}

// IsDevelopment reports whether the process runs in a local/dev deployment.
// The Secure cookie flag is only relaxed in development.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}
