package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/gatehouse/pkg/provider"
	"github.com/platinummonkey/gatehouse/pkg/session"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: "8080"},
		Redis:  session.ClientConfig{URL: "redis://localhost:6379"},
		Admin: AdminConfig{
			Email:    "admin@example.com",
			Password: "s3cret",
			Token:    "5c60ba80-21f2-4a83-a0a5-8d6b2b9b0f9b",
		},
		Identity: IdentityConfig{URL: "http://localhost:4010"},
		Session:  SessionConfig{TTL: time.Hour},
	}
}

func TestValidate_OK(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_Failures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing port", func(c *Config) { c.Server.Port = "" }},
		{"missing redis", func(c *Config) { c.Redis.URL = "" }},
		{"missing identity", func(c *Config) { c.Identity.URL = "" }},
		{"missing admin email", func(c *Config) { c.Admin.Email = "" }},
		{"missing admin password", func(c *Config) { c.Admin.Password = "" }},
		{"default admin password", func(c *Config) { c.Admin.Password = "ChangeMe" }},
		{"default admin token", func(c *Config) { c.Admin.Token = "ChangeMe" }},
		{"invalid admin email", func(c *Config) { c.Admin.Email = "not-an-email" }},
		{"non-uuid admin token", func(c *Config) { c.Admin.Token = "token123" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadProviders(t *testing.T) {
	path := filepath.Join(t.TempDir(), "providers.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
providers:
  corp_ldap:
    identifier: corp
    strategy: LdapStrategy
    config:
      url: ldaps://dir.example.com
      bind_dn: cn=service,dc=example,dc=com
      groups_management:
        groups_mapping:
          - "directory-admins:GROUP_ADMIN"
  oidc:
    strategy: OpenIDConnectStrategy
    config:
      issuer: https://idp.example.com
      client_id: gatehouse
`), 0o600))

	providers, err := LoadProviders(path)
	require.NoError(t, err)
	require.Len(t, providers, 2)

	ldapEntry := providers["corp_ldap"]
	assert.Equal(t, "corp", ldapEntry.Identifier)
	assert.Equal(t, provider.StrategyLDAP, ldapEntry.Strategy)
	assert.Equal(t, "ldaps://dir.example.com", ldapEntry.Config["url"])

	// Nested sections must arrive as generic maps for the remapper.
	section, ok := ldapEntry.Config["groups_management"].(map[string]any)
	require.True(t, ok)
	assert.NotEmpty(t, section["groups_mapping"])
}

func TestLoadProviders_MissingFile(t *testing.T) {
	_, err := LoadProviders("/nonexistent/providers.yaml")
	assert.Error(t, err)
}

func TestLoadConfig_FromEnvironment(t *testing.T) {
	t.Setenv("GATEHOUSE_PORT", "9090")
	t.Setenv("GATEHOUSE_REDIS_URL", "redis://redis.internal:6379")
	t.Setenv("GATEHOUSE_ADMIN_EMAIL", "admin@example.com")
	t.Setenv("GATEHOUSE_ADMIN_PASSWORD", "s3cret")
	t.Setenv("GATEHOUSE_ADMIN_TOKEN", "5c60ba80-21f2-4a83-a0a5-8d6b2b9b0f9b")
	t.Setenv("GATEHOUSE_SESSION_TTL", "2h")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "redis://redis.internal:6379", cfg.Redis.URL)
	assert.Equal(t, 2*time.Hour, cfg.Session.TTL)
}

func TestLoadConfig_RejectsDefaultAdminPassword(t *testing.T) {
	t.Setenv("GATEHOUSE_ADMIN_EMAIL", "admin@example.com")
	t.Setenv("GATEHOUSE_ADMIN_PASSWORD", "ChangeMe")
	t.Setenv("GATEHOUSE_ADMIN_TOKEN", "5c60ba80-21f2-4a83-a0a5-8d6b2b9b0f9b")

	_, err := LoadConfig()
	assert.Error(t, err)
}
