// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	UserStoreMemory = "memory"
	UserStoreRedis  = "redis"

	// 本番環境で要求するセッション署名鍵の最小バイト数
	minProductionSecretLen = 32
)

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// 実行環境
	AppEnv string // development / production（production 以外は .env ファイルを読む）

	// セッション設定
	SessionSecret      string        // セッション署名用の秘密鍵
	SessionMaxLifetime time.Duration // ログインからの最大有効期間
	SessionIdleTimeout time.Duration // 無操作で失効するまでの時間

	// サーバー設定
	Port    string // APIサーバーのポート番号
	GinMode string // Ginの実行モード (debug, release, test)

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り）

	// パスワードハッシュ設定
	BcryptCost      int           // bcrypt のコスト
	HashTimeout     time.Duration // ハッシュ計算1回あたりの上限時間
	HashConcurrency int           // 同時に実行できるハッシュ計算の数

	// ユーザーストア設定
	UserStore         string // memory / redis
	UserStoreRedisURL string // redis ストア利用時の接続URL
	UniquenessPolicy  string // unspecified / username / username_email

	// 認証方式
	AuthStrategy string

	// ログ設定
	LogFormat string // json / text
}

// Load は環境変数から設定を読み込みます。
// APP_ENV が production 以外の場合は .env.local / .env ファイルから読み込みます。
func Load() (*Config, error) {
	appEnv := getEnv("APP_ENV", EnvDevelopment)
	if appEnv != EnvProduction {
		loadEnvFiles()
		// .env 側で APP_ENV が指定されていれば優先する
		appEnv = getEnv("APP_ENV", appEnv)
	}

	env := &envReader{}
	config := &Config{
		AppEnv: appEnv,

		// セッション設定
		SessionSecret:      getEnv("SESSION_SECRET", ""),
		SessionMaxLifetime: env.getEnvAsDuration("SESSION_MAX_LIFETIME", 12*time.Hour),
		SessionIdleTimeout: env.getEnvAsDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute),

		// サーバー設定
		Port:    getEnv("PORT", "3000"),
		GinMode: getEnv("GIN_MODE", "debug"),

		// CORS設定
		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),

		// パスワードハッシュ設定
		BcryptCost:      env.getEnvAsInt("BCRYPT_COST", 10),
		HashTimeout:     env.getEnvAsDuration("HASH_TIMEOUT", 5*time.Second),
		HashConcurrency: env.getEnvAsInt("HASH_CONCURRENCY", 4),

		// ユーザーストア設定
		UserStore:         getEnv("USER_STORE", UserStoreMemory),
		UserStoreRedisURL: getEnv("USER_STORE_REDIS_URL", "redis://127.0.0.1:6379/0"),
		UniquenessPolicy:  getEnv("UNIQUENESS_POLICY", "unspecified"),

		AuthStrategy: getEnv("AUTH_STRATEGY", "local"),
		LogFormat:    getEnv("LOG_FORMAT", "json"),
	}

	// 解釈できない値は既定値で黙って置き換えない
	if err := env.err(); err != nil {
		return nil, err
	}

	// 必須設定のバリデーション
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// IsProduction は本番環境で動作しているかを返します。
func (c *Config) IsProduction() bool {
	return c.AppEnv == EnvProduction
}

// AllowedOrigins は CORS 許可オリジンを配列で返します。
func (c *Config) AllowedOrigins() []string {
	var origins []string
	for _, origin := range strings.Split(c.CORSAllowedOrigins, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

// envFiles は読み込む順に並べています。godotenv は既存の値を上書きしないため先勝ちです。
var envFiles = []string{".env.local", ".env"}

func loadEnvFiles() {
	cwd, err := os.Getwd()
	if err != nil {
		return
	}
	if loadEnvFilesFrom(cwd) {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	loadEnvFilesFrom(parent)
}

func loadEnvFilesFrom(dir string) bool {
	loaded := false
	for _, name := range envFiles {
		if err := godotenv.Load(filepath.Join(dir, name)); err == nil {
			loaded = true
		}
	}
	return loaded
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	if c.AppEnv != EnvDevelopment && c.AppEnv != EnvProduction {
		return fmt.Errorf("APP_ENV must be %q or %q, got %q", EnvDevelopment, EnvProduction, c.AppEnv)
	}
	if c.SessionSecret == "" {
		return fmt.Errorf("SESSION_SECRET is required")
	}
	if c.IsProduction() && len(c.SessionSecret) < minProductionSecretLen {
		return fmt.Errorf("SESSION_SECRET must be at least %d bytes in production", minProductionSecretLen)
	}
	if c.SessionMaxLifetime <= 0 {
		return fmt.Errorf("SESSION_MAX_LIFETIME must be positive")
	}
	if c.SessionIdleTimeout <= 0 {
		return fmt.Errorf("SESSION_IDLE_TIMEOUT must be positive")
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("BCRYPT_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	if c.HashTimeout <= 0 {
		return fmt.Errorf("HASH_TIMEOUT must be positive")
	}
	if c.HashConcurrency <= 0 {
		return fmt.Errorf("HASH_CONCURRENCY must be positive")
	}

	switch c.UserStore {
	case UserStoreMemory:
	case UserStoreRedis:
		if c.UserStoreRedisURL == "" {
			return fmt.Errorf("USER_STORE_REDIS_URL is required when USER_STORE=redis")
		}
	default:
		return fmt.Errorf("USER_STORE must be %q or %q, got %q", UserStoreMemory, UserStoreRedis, c.UserStore)
	}

	switch c.UniquenessPolicy {
	case "unspecified", "username", "username_email":
	default:
		return fmt.Errorf("UNIQUENESS_POLICY must be unspecified, username or username_email, got %q", c.UniquenessPolicy)
	}

	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.LogFormat)
	}

	return nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// envReader は数値・期間の環境変数を読み、解釈できなかった値を記録します。
type envReader struct {
	errs []error
}

// getEnvAsInt は環境変数を整数として取得します。
func (r *envReader) getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s must be an integer, got %q", key, valueStr))
		return defaultValue
	}
	return value
}

// getEnvAsDuration は環境変数を time.Duration として取得します。
func (r *envReader) getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s must be a duration such as 5s or 30m, got %q", key, valueStr))
		return defaultValue
	}
	return value
}

// err は記録したエラーをまとめて返します。
func (r *envReader) err() error {
	return errors.Join(r.errs...)
}
