// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const (
	releaseMode = "release"

	// MinSecretLength は release モードで要求するセッション鍵の長さ（バイト）です。
	MinSecretLength = 32

	// 開発時に SESSION_SECRET が未設定の場合に使う鍵
	devSessionSecret = "hx-accounts-insecure-development-secret"
)

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// サーバー設定
	Port    string `toml:"port"`     // HTTPサーバーのポート番号
	GinMode string `toml:"gin_mode"` // Ginの実行モード (debug, release, test)

	// CORS設定
	CORSAllowedOrigins string `toml:"cors_allowed_origins"` // CORS許可オリジン（カンマ区切り）

	// セッション設定
	SessionSecret        string `toml:"session_secret"`          // セッション署名用の秘密鍵
	SessionMaxAgeMinutes int    `toml:"session_max_age_minutes"` // ログインからの最大有効期間（分）
	SessionIdleMinutes   int    `toml:"session_idle_minutes"`    // 無操作で失効するまでの時間（分）

	// アカウント設定
	AccountStoreURL   string `toml:"account_store_url"`   // memory://, sqlite://, postgres://, redis://
	PasswordHasher    string `toml:"password_hasher"`     // bcrypt または argon2id
	PasswordMinLength int    `toml:"password_min_length"` // パスワードの最小文字数

	// アクティビティ記録設定
	QueueRedisURL         string `toml:"queue_redis_url"`         // Asynq用Redis接続URL（空ならログ出力のみ）
	ActivityLimit         int    `toml:"activity_limit"`          // ホーム画面に表示する件数
	ActivityRetentionDays int    `toml:"activity_retention_days"` // アクティビティの保持日数

	// ログ設定
	LogLevel string `toml:"log_level"` // debug, info, warn, error

	// ConfigFile は読み込んだ TOML ファイルのパスです。
	ConfigFile string `toml:"-"`
}

// Defaults は既定値の設定を返します。
func Defaults() *Config {
	return &Config{
		Port:                  "8080",
		GinMode:               "debug",
		CORSAllowedOrigins:    "http://localhost:8080",
		SessionMaxAgeMinutes:  720,
		SessionIdleMinutes:    30,
		AccountStoreURL:       "memory://",
		PasswordHasher:        "bcrypt",
		PasswordMinLength:     8,
		ActivityLimit:         10,
		ActivityRetentionDays: 30,
		LogLevel:              "info",
	}
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
// CONFIG_FILE で TOML ファイルを指定すると、その値を既定値として使い、環境変数で上書きします。
func Load() (*Config, error) {
	// .env.local ファイルを読み込む（存在しない場合はスキップ）
	loadEnvFile()

	base := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if _, err := toml.DecodeFile(path, base); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		base.ConfigFile = path
	}

	config := &Config{
		// サーバー設定
		Port:    getEnv("PORT", base.Port),
		GinMode: getEnv("GIN_MODE", base.GinMode),

		// CORS設定
		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", base.CORSAllowedOrigins),

		// セッション設定
		SessionSecret:        getEnv("SESSION_SECRET", base.SessionSecret),
		SessionMaxAgeMinutes: getEnvAsInt("SESSION_MAX_AGE_MINUTES", base.SessionMaxAgeMinutes),
		SessionIdleMinutes:   getEnvAsInt("SESSION_IDLE_MINUTES", base.SessionIdleMinutes),

		// アカウント設定
		AccountStoreURL:   getEnv("ACCOUNT_STORE_URL", base.AccountStoreURL),
		PasswordHasher:    strings.ToLower(getEnv("PASSWORD_HASHER", base.PasswordHasher)),
		PasswordMinLength: getEnvAsInt("PASSWORD_MIN_LENGTH", base.PasswordMinLength),

		// アクティビティ記録設定
		QueueRedisURL:         getEnv("QUEUE_REDIS_URL", base.QueueRedisURL),
		ActivityLimit:         getEnvAsInt("ACTIVITY_LIMIT", base.ActivityLimit),
		ActivityRetentionDays: getEnvAsInt("ACTIVITY_RETENTION_DAYS", base.ActivityRetentionDays),

		// ログ設定
		LogLevel: getEnv("LOG_LEVEL", base.LogLevel),

		ConfigFile: base.ConfigFile,
	}

	// ローカル開発では鍵を省略できるようにする
	if config.SessionSecret == "" && config.GinMode != releaseMode {
		config.SessionSecret = devSessionSecret
	}

	// 必須設定のバリデーション
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	switch c.PasswordHasher {
	case "bcrypt", "argon2id":
	default:
		return fmt.Errorf("PASSWORD_HASHER must be bcrypt or argon2id, got %q", c.PasswordHasher)
	}
	if c.SessionMaxAgeMinutes <= 0 {
		return fmt.Errorf("SESSION_MAX_AGE_MINUTES must be positive")
	}
	if c.SessionIdleMinutes <= 0 {
		return fmt.Errorf("SESSION_IDLE_MINUTES must be positive")
	}
	if c.PasswordMinLength <= 0 {
		return fmt.Errorf("PASSWORD_MIN_LENGTH must be positive")
	}
	if c.ActivityLimit < 0 || c.ActivityRetentionDays <= 0 {
		return fmt.Errorf("ACTIVITY_LIMIT must not be negative and ACTIVITY_RETENTION_DAYS must be positive")
	}

	// 本番環境では厳格にチェックする
	if c.IsRelease() {
		if len(c.SessionSecret) < MinSecretLength {
			return fmt.Errorf("SESSION_SECRET must be at least %d bytes in release mode", MinSecretLength)
		}
		if c.AccountStoreURL == "" || strings.HasPrefix(c.AccountStoreURL, "memory:") {
			return fmt.Errorf("ACCOUNT_STORE_URL must point to a persistent store in release mode")
		}
	}

	return nil
}

// IsRelease は release モードかを返します。
func (c *Config) IsRelease() bool {
	return c.GinMode == releaseMode
}

// AllowedOrigins は CORS 許可オリジンを配列で返します。
func (c *Config) AllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
