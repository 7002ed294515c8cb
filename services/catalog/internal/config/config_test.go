package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"ENV", "PORT", "LOG_LEVEL", "GOOGLE_BOOKS_BASE_URL", "REQUEST_TIMEOUT", "CORS_ORIGINS", "CACHE_BACKEND", "REDIS_ADDR"} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "5000", cfg.Port)
	assert.Equal(t, "https://www.googleapis.com/books/v1", cfg.GoogleBooksBaseURL)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout())
	assert.Equal(t, []string{"http://localhost:5173", "http://127.0.0.1:5173"}, cfg.CORSOrigins)
	assert.Equal(t, CacheBackendMemory, cfg.CacheBackend)
	assert.Equal(t, 100, cfg.RateLimitPerHour)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENV", "prod")
	t.Setenv("GOOGLE_BOOKS_BASE_URL", "http://books.test/v1/")
	t.Setenv("REQUEST_TIMEOUT", "-3")
	t.Setenv("CORS_ORIGINS", " https://a.example , ,https://b.example")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "http://books.test/v1", cfg.GoogleBooksBaseURL)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout())
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.IsDev())
}

func TestLoadRedisBackendNeedsAddr(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cacheBackend: redis\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)

	t.Setenv("REDIS_ADDR", "127.0.0.1:6379")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, CacheBackendRedis, cfg.CacheBackend)
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cacheBackend: memcached\n"), 0o600))
	_, err := Load(path)
	require.Error(t, err)
}
