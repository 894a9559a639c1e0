package config

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	for _, key := range []string{"PORT", "CORS_ALLOWED_ORIGINS", "TICK_RATE", "MAX_TABLES", "HIGHSCORE_SYNC_TICKS", "LOG_LEVEL", "LOG_FORMAT"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.AllowedOrigins)
	assert.Equal(t, 60, cfg.TickRate)
	assert.Equal(t, 8, cfg.MaxTables)
	assert.Equal(t, 60, cfg.HighScoreSyncTicks)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("PORT", "9000")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("TICK_RATE", "30")
	t.Setenv("MAX_TABLES", "2")
	t.Setenv("HIGHSCORE_SYNC_TICKS", "120")
	t.Setenv("LOG_FORMAT", "json")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Addr())
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 30, cfg.TickRate)
	assert.Equal(t, 2, cfg.MaxTables)
	assert.Equal(t, 120, cfg.HighScoreSyncTicks)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoad_InvalidNumber(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("TICK_RATE", "fast")

	_, err := Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, strconv.ErrSyntax)
	assert.Contains(t, err.Error(), "TICK_RATE")

	t.Setenv("TICK_RATE", "")
	t.Setenv("MAX_TABLES", "0")
	_, err = Load()
	assert.ErrorContains(t, err, "MAX_TABLES")
}
