// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-certauth.
//
// go-certauth is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete server configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Storage   StorageConfig   `yaml:"storage"`
	CA        CAConfig        `yaml:"ca"`
	Auth      AuthConfig      `yaml:"auth"`
	OAuth2    OAuth2Config    `yaml:"oauth2"`
	Handshake HandshakeConfig `yaml:"handshake"`
	Agent     AgentConfig     `yaml:"agent"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig contains server-level settings
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// LoggingConfig controls logging behavior
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// StorageConfig controls the metadata and key material backend
type StorageConfig struct {
	Backend string `yaml:"backend"` // file, memory
	Path    string `yaml:"path"`
}

// CAConfig controls certificate authority behavior
type CAConfig struct {
	// KeyPassword encrypts CA private keys at rest when set.
	KeyPassword string `yaml:"key_password"`

	// DefaultValidityYears is applied to user certificates when the
	// issuance request does not specify a validity.
	DefaultValidityYears int `yaml:"default_validity_years"`

	// ModernPKCS12 selects AES-256 PKCS#12 encoding instead of the
	// legacy 3DES encoding older importers require.
	ModernPKCS12 bool `yaml:"modern_pkcs12"`
}

// AuthConfig controls the challenge-response login
type AuthConfig struct {
	ChallengeTTL time.Duration `yaml:"challenge_ttl"`
}

// OAuth2Config controls token issuance
type OAuth2Config struct {
	Issuer          string         `yaml:"issuer"`
	SigningSecret   string         `yaml:"signing_secret"`
	CodeTTL         time.Duration  `yaml:"code_ttl"`
	AccessTokenTTL  time.Duration  `yaml:"access_token_ttl"`
	RefreshTokenTTL time.Duration  `yaml:"refresh_token_ttl"`
	Clients         []ClientConfig `yaml:"clients"`
}

// ClientConfig registers one OAuth2 client
type ClientConfig struct {
	ID           string   `yaml:"id"`
	Secret       string   `yaml:"secret,omitempty"`
	RedirectURIs []string `yaml:"redirect_uris"`
	Public       bool     `yaml:"public"`
}

// HandshakeConfig controls the cross-window login protocol
type HandshakeConfig struct {
	// AllowedOrigins lists the web origins permitted to embed the
	// certificate login surface. Messages from any other origin are
	// discarded.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// AgentConfig locates the local signing Agent
type AgentConfig struct {
	Address string        `yaml:"address"`
	Timeout time.Duration `yaml:"timeout"`
}

// MetricsConfig controls metrics endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// DefaultConfig returns a configuration with sane defaults applied
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "localhost",
			Port:         8443,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Storage: StorageConfig{
			Backend: "file",
			Path:    "/var/lib/certauth",
		},
		CA: CAConfig{
			DefaultValidityYears: 1,
		},
		Auth: AuthConfig{
			ChallengeTTL: 90 * time.Second,
		},
		OAuth2: OAuth2Config{
			Issuer:          "https://localhost:8443",
			CodeTTL:         60 * time.Second,
			AccessTokenTTL:  15 * time.Minute,
			RefreshTokenTTL: 24 * time.Hour,
		},
		Agent: AgentConfig{
			Address: "http://127.0.0.1:16580",
			Timeout: 10 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Load reads configuration from a YAML file and applies environment variable overrides
func Load(path string) (*Config, error) {
	// #nosec G304 - Config file path is provided by admin/user
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration
func applyEnvOverrides(cfg *Config) {
	if host := os.Getenv("CERTAUTH_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if port := os.Getenv("CERTAUTH_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			log.Printf("Warning: invalid CERTAUTH_PORT value %q, using default %d: %v",
				port, cfg.Server.Port, err)
		} else if p < 1 || p > 65535 {
			log.Printf("Warning: invalid CERTAUTH_PORT value %q (out of range 1-65535), using default %d",
				port, cfg.Server.Port)
		} else {
			cfg.Server.Port = p
		}
	}

	// Logging
	if level := os.Getenv("CERTAUTH_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if format := os.Getenv("CERTAUTH_LOG_FORMAT"); format != "" {
		cfg.Logging.Format = format
	}

	// Storage
	if dataDir := os.Getenv("CERTAUTH_DATA_DIR"); dataDir != "" {
		cfg.Storage.Path = dataDir
	}

	// Secrets come from the environment in container deployments
	if pw := os.Getenv("CERTAUTH_CA_KEY_PASSWORD"); pw != "" {
		cfg.CA.KeyPassword = pw
	}
	if secret := os.Getenv("CERTAUTH_OAUTH2_SECRET"); secret != "" {
		cfg.OAuth2.SigningSecret = secret
	}

	if addr := os.Getenv("CERTAUTH_AGENT_ADDRESS"); addr != "" {
		cfg.Agent.Address = addr
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validFormats := map[string]bool{
		"json": true, "text": true,
	}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Logging.Format)
	}

	switch c.Storage.Backend {
	case "file":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage path must be specified for the file backend")
		}
	case "memory":
	default:
		return fmt.Errorf("invalid storage backend: %s (must be file or memory)", c.Storage.Backend)
	}

	if c.CA.DefaultValidityYears < 1 {
		return fmt.Errorf("invalid default_validity_years: %d", c.CA.DefaultValidityYears)
	}

	if c.OAuth2.Issuer == "" {
		return fmt.Errorf("oauth2 issuer must be specified")
	}
	if c.OAuth2.SigningSecret == "" {
		return fmt.Errorf("oauth2 signing_secret must be specified")
	}
	for i, client := range c.OAuth2.Clients {
		if client.ID == "" {
			return fmt.Errorf("oauth2 client %d: id must be specified", i)
		}
		if len(client.RedirectURIs) == 0 {
			return fmt.Errorf("oauth2 client %q: at least one redirect_uri is required", client.ID)
		}
		if !client.Public && client.Secret == "" {
			return fmt.Errorf("oauth2 client %q: confidential clients require a secret", client.ID)
		}
	}

	return nil
}
