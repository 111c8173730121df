package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"PORT", "GIN_MODE", "CORS_ALLOWED_ORIGINS", "SESSION_SECRET", "SESSION_MAX_AGE_MINUTES",
	"SESSION_IDLE_MINUTES", "ACCOUNT_STORE_URL", "PASSWORD_HASHER", "PASSWORD_MIN_LENGTH",
	"QUEUE_REDIS_URL", "ACTIVITY_LIMIT", "ACTIVITY_RETENTION_DAYS", "LOG_LEVEL", "CONFIG_FILE",
}

// clearEnv はテスト中だけ関連する環境変数を空にし、.env.local の影響を避けます。
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
	}
	t.Chdir(t.TempDir())
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "memory://", cfg.AccountStoreURL)
	assert.Equal(t, "bcrypt", cfg.PasswordHasher)
	assert.Equal(t, 720, cfg.SessionMaxAgeMinutes)
	assert.Equal(t, 30, cfg.SessionIdleMinutes)
	assert.Equal(t, 8, cfg.PasswordMinLength)
	assert.Equal(t, devSessionSecret, cfg.SessionSecret)
	assert.False(t, cfg.IsRelease())
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("PASSWORD_HASHER", "Argon2id")
	t.Setenv("SESSION_IDLE_MINUTES", "5")
	t.Setenv("ACTIVITY_LIMIT", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "argon2id", cfg.PasswordHasher)
	assert.Equal(t, 5, cfg.SessionIdleMinutes)
	assert.Equal(t, 10, cfg.ActivityLimit)
}

func TestLoadConfigFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "hx-accounts.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
port = "7000"
account_store_url = "sqlite://accounts.db"
password_min_length = 12
log_level = "debug"
`), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "7000", cfg.Port)
	assert.Equal(t, "sqlite://accounts.db", cfg.AccountStoreURL)
	assert.Equal(t, 12, cfg.PasswordMinLength)
	// 環境変数がファイルより優先される
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, path, cfg.ConfigFile)
	// ファイルにない値は既定値のまま
	assert.Equal(t, 720, cfg.SessionMaxAgeMinutes)
}

func TestLoadConfigFileMissing(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.toml"))

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"unknown hasher", func(c *Config) { c.PasswordHasher = "md5" }, true},
		{"zero idle", func(c *Config) { c.SessionIdleMinutes = 0 }, true},
		{"release short secret", func(c *Config) {
			c.GinMode = "release"
			c.SessionSecret = "short"
			c.AccountStoreURL = "postgres://db/accounts"
		}, true},
		{"release memory store", func(c *Config) {
			c.GinMode = "release"
			c.SessionSecret = "0123456789abcdef0123456789abcdef"
		}, true},
		{"release ok", func(c *Config) {
			c.GinMode = "release"
			c.SessionSecret = "0123456789abcdef0123456789abcdef"
			c.AccountStoreURL = "postgres://db/accounts"
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAllowedOrigins(t *testing.T) {
	cfg := &Config{CORSAllowedOrigins: "http://a.example, ,http://b.example"}
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.AllowedOrigins())
}
