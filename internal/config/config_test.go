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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 8443, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "file", cfg.Storage.Backend)
	assert.Equal(t, 1, cfg.CA.DefaultValidityYears)
	assert.Equal(t, 90*time.Second, cfg.Auth.ChallengeTTL)
	assert.Equal(t, 60*time.Second, cfg.OAuth2.CodeTTL)
	assert.Equal(t, 15*time.Minute, cfg.OAuth2.AccessTokenTTL)
	assert.Equal(t, 24*time.Hour, cfg.OAuth2.RefreshTokenTTL)
	assert.Equal(t, "http://127.0.0.1:16580", cfg.Agent.Address)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  host: 0.0.0.0
  port: 9443
logging:
  level: debug
  format: text
storage:
  backend: memory
ca:
  default_validity_years: 2
  modern_pkcs12: true
oauth2:
  issuer: https://auth.example.com
  signing_secret: super-secret
  clients:
    - id: webapp
      secret: webapp-secret
      redirect_uris:
        - https://app.example.com/callback
    - id: spa
      public: true
      redirect_uris:
        - https://spa.example.com/callback
handshake:
  allowed_origins:
    - https://app.example.com
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 9443, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, 2, cfg.CA.DefaultValidityYears)
	assert.True(t, cfg.CA.ModernPKCS12)
	assert.Equal(t, "https://auth.example.com", cfg.OAuth2.Issuer)
	require.Len(t, cfg.OAuth2.Clients, 2)
	assert.True(t, cfg.OAuth2.Clients[1].Public)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.Handshake.AllowedOrigins)

	// Unset fields keep their defaults.
	assert.Equal(t, 90*time.Second, cfg.Auth.ChallengeTTL)
	assert.Equal(t, "http://127.0.0.1:16580", cfg.Agent.Address)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadMalformedYAML(t *testing.T) {
	path := writeConfig(t, "server: [not a map")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
storage:
  backend: memory
oauth2:
  issuer: https://auth.example.com
  signing_secret: from-file
`)

	t.Setenv("CERTAUTH_HOST", "0.0.0.0")
	t.Setenv("CERTAUTH_PORT", "7443")
	t.Setenv("CERTAUTH_LOG_LEVEL", "warn")
	t.Setenv("CERTAUTH_DATA_DIR", "/tmp/certauth-test")
	t.Setenv("CERTAUTH_OAUTH2_SECRET", "from-env")
	t.Setenv("CERTAUTH_AGENT_ADDRESS", "http://127.0.0.1:26580")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 7443, cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "/tmp/certauth-test", cfg.Storage.Path)
	assert.Equal(t, "from-env", cfg.OAuth2.SigningSecret)
	assert.Equal(t, "http://127.0.0.1:26580", cfg.Agent.Address)
}

func TestEnvOverrideInvalidPort(t *testing.T) {
	path := writeConfig(t, `
storage:
  backend: memory
oauth2:
  issuer: https://auth.example.com
  signing_secret: s
`)

	t.Setenv("CERTAUTH_PORT", "not-a-port")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8443, cfg.Server.Port)

	t.Setenv("CERTAUTH_PORT", "70000")
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8443, cfg.Server.Port)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.Storage.Backend = "memory"
		cfg.OAuth2.SigningSecret = "secret"
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"bad backend", func(c *Config) { c.Storage.Backend = "etcd" }},
		{"file backend without path", func(c *Config) {
			c.Storage.Backend = "file"
			c.Storage.Path = ""
		}},
		{"zero validity", func(c *Config) { c.CA.DefaultValidityYears = 0 }},
		{"missing issuer", func(c *Config) { c.OAuth2.Issuer = "" }},
		{"missing signing secret", func(c *Config) { c.OAuth2.SigningSecret = "" }},
		{"client without id", func(c *Config) {
			c.OAuth2.Clients = []ClientConfig{{RedirectURIs: []string{"https://a/cb"}}}
		}},
		{"client without redirect", func(c *Config) {
			c.OAuth2.Clients = []ClientConfig{{ID: "webapp", Secret: "s"}}
		}},
		{"confidential client without secret", func(c *Config) {
			c.OAuth2.Clients = []ClientConfig{{ID: "webapp", RedirectURIs: []string{"https://a/cb"}}}
		}},
	}

	require.NoError(t, valid().Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
