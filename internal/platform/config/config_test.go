package config

import (
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadWith(env.Options{Environment: map[string]string{}})
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "http://localhost:8080", cfg.Auth.Issuer)
	assert.Equal(t, time.Hour, cfg.Auth.AccessTokenTTL)
	assert.Equal(t, 10*time.Minute, cfg.Auth.AuthCodeTTL)
	assert.Equal(t, []string{"admin"}, cfg.Auth.PasswordLoginRoles)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, "sha256", cfg.Auth.PasswordDigest)

	caps := cfg.Capabilities()
	assert.True(t, caps.Password)
	assert.True(t, caps.MagicLink)
	assert.False(t, caps.GoogleLogin)
	assert.False(t, caps.GitHubLogin)
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := LoadWith(env.Options{Environment: map[string]string{
		"ENABLE_MAGIC_LINK":    "false",
		"GOOGLE_CLIENT_ID":     "gid",
		"GOOGLE_CLIENT_SECRET": "gsecret",
		"GITHUB_CLIENT_ID":     "only-id",
		"JWT_ISSUER":           "https://id.example",
		"KAFKA_BROKERS":        "k1:9092,k2:9092",
		"PASSWORD_LOGIN_ROLES": "admin,user",
	}})
	require.NoError(t, err)

	caps := cfg.Capabilities()
	assert.False(t, caps.MagicLink)
	assert.True(t, caps.GoogleLogin)
	assert.False(t, caps.GitHubLogin, "provider needs both id and secret")
	assert.Equal(t, "https://id.example", cfg.Auth.Issuer)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Audit.KafkaBrokers)
	assert.Equal(t, []string{"admin", "user"}, cfg.Auth.PasswordLoginRoles)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown driver", map[string]string{"DB_DRIVER": "mysql"}},
		{"redis code store without url", map[string]string{"CODE_STORE": "redis"}},
		{"unknown digest", map[string]string{"PASSWORD_DIGEST": "md5"}},
		{"empty signing key", map[string]string{"JWT_SIGNING_KEY": ""}},
		{"non-positive ttl", map[string]string{"AUTH_CODE_TTL": "0s"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadWith(env.Options{Environment: tt.env})
			require.Error(t, err)
		})
	}
}
