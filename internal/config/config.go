package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultDatabaseURL はDATABASE_URL未設定時に使うローカルSQLiteファイル。
const DefaultDatabaseURL = "sqlite://database/bookchat.db"

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string
	AutoMigrate bool

	// GitHub（リモートログ）
	GitHubToken     string
	GitHubRepo      string // "owner/name" または "name"
	GitHubAPIURL    string
	GitHubTimeout   time.Duration
	RemoteScanLimit int

	// Rate Limit（req/min/IP）
	RateLimitGeneral int
	RateLimitPost    int

	// Logging
	LogLevel string

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// Load はカレントディレクトリの .env を読み込んだ上で、環境変数からConfigを読み込む。
// .env が無い場合は環境変数のみを使う。既に設定されている環境変数は .env で上書きしない。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}
	return fromEnv()
}

// loadDotEnv は存在するファイルだけを読み込む。
func loadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

func fromEnv() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.GitHubToken = os.Getenv("GITHUB_TOKEN")
	if cfg.GitHubToken == "" {
		missing = append(missing, "GITHUB_TOKEN")
	}

	cfg.GitHubRepo = strings.Trim(os.Getenv("GITHUB_REPO"), "/ ")
	if cfg.GitHubRepo == "" {
		missing = append(missing, "GITHUB_REPO")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	if strings.Count(cfg.GitHubRepo, "/") > 1 {
		return nil, fmt.Errorf("GITHUB_REPO must be \"owner/name\" or \"name\": %q", cfg.GitHubRepo)
	}

	// Optional fields with defaults
	cfg.DatabaseURL = getEnvString("DATABASE_URL", DefaultDatabaseURL)
	cfg.AutoMigrate = getEnvBool("DB_AUTO_MIGRATE", true)
	cfg.GitHubAPIURL = getEnvString("GITHUB_API_URL", "")
	cfg.GitHubTimeout = getEnvDuration("GITHUB_TIMEOUT", 15*time.Second)
	cfg.RemoteScanLimit = getEnvInt("REMOTE_SCAN_LIMIT", 1000)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitPost = getEnvInt("RATE_LIMIT_POST", 30)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "*")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil || i <= 0 {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}
