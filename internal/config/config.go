package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config はサーバー全体の設定です。
type Config struct {
	AppEnv             string
	Port               string
	AllowedOrigins     []string
	TickRate           int // 1秒あたりのティック数
	MaxTables          int // 同時に遊べる卓の数 (観戦プレビューの枠数)
	HighScoreSyncTicks int
	LogLevel           string
	LogFormat          string
}

// Load は .env ファイルと環境変数から設定を読み込みます。
// APP_ENV が production のときは .env を読みません。
//
// Returns:
//
//	*Config: 読み込んだ設定
//	error  : 数値の環境変数が不正な場合
func Load() (*Config, error) {
	appEnv := os.Getenv("APP_ENV")
	if appEnv != "production" {
		// .env が無いのは本番以外でも普通なので無視する
		_ = godotenv.Load()
	}

	cfg := &Config{
		AppEnv:         appEnv,
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "text"),
	}

	var err error
	if cfg.TickRate, err = getPositiveInt("TICK_RATE", 60); err != nil {
		return nil, err
	}
	if cfg.MaxTables, err = getPositiveInt("MAX_TABLES", 8); err != nil {
		return nil, err
	}
	if cfg.HighScoreSyncTicks, err = getPositiveInt("HIGHSCORE_SYNC_TICKS", 60); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Addr は http.Server に渡す待ち受けアドレスです。
func (c *Config) Addr() string {
	return ":" + c.Port
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getPositiveInt(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s の値 %q を数値に変換できません: %w", key, raw, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s は1以上である必要があります: %d", key, n)
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
