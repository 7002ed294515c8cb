package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("BOOKFINDER_FIREBASE_API_KEY", "key-from-env")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:5000", cfg.APIBaseURL)
	assert.Equal(t, "key-from-env", cfg.Firebase.APIKey)
	assert.Equal(t, 1, cfg.Query.Retries())
	assert.Equal(t, 60*time.Second, cfg.Query.StaleTime())
	assert.False(t, cfg.Query.RefetchOnWindowFocus)
	assert.Equal(t, 256, cfg.Query.Capacity)
}

func TestLoadReadsYAMLAndEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
port: "8088"
apiBaseURL: http://catalog.internal:5000
requestTimeout: 3s
dataDir: /tmp/bf
firebase:
  apiKey: yaml-key
  identityURL: http://127.0.0.1:9099/identitytoolkit.googleapis.com/v1
query:
  retryCount: 0
  staleTimeMs: 1000
  refetchOnWindowFocus: true
`)
	t.Setenv("BOOKFINDER_API_BASE_URL", "http://override:5000")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "8088", cfg.Port)
	assert.Equal(t, "http://override:5000", cfg.APIBaseURL)
	assert.Equal(t, "yaml-key", cfg.Firebase.APIKey)
	assert.Equal(t, 0, cfg.Query.Retries())
	assert.Equal(t, time.Second, cfg.Query.StaleTime())
	assert.True(t, cfg.Query.RefetchOnWindowFocus)

	timeout, err := ParseRequestTimeout(cfg.RequestTimeout)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, timeout)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	t.Setenv("BOOKFINDER_FIREBASE_API_KEY", "")
	t.Setenv("BOOKFINDER_API_BASE_URL", "")
	cases := map[string]string{
		"missing api key":  "apiBaseURL: http://localhost:5000\n",
		"relative base":    "apiBaseURL: /api\nfirebase:\n  apiKey: k\n",
		"bad timeout":      "requestTimeout: soon\nfirebase:\n  apiKey: k\n",
		"negative retries": "firebase:\n  apiKey: k\nquery:\n  retryCount: -1\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			require.Error(t, err)
		})
	}
}

func TestLoadRejectsMalformedQueryEnv(t *testing.T) {
	t.Setenv("BOOKFINDER_FIREBASE_API_KEY", "key")
	missing := filepath.Join(t.TempDir(), "missing.yaml")
	for name, value := range map[string]string{
		"BOOKFINDER_QUERY_RETRY_COUNT":      "once",
		"BOOKFINDER_QUERY_STALE_TIME_MS":    "60s",
		"BOOKFINDER_QUERY_REFETCH_ON_FOCUS": "sometimes",
	} {
		t.Run(name, func(t *testing.T) {
			t.Setenv(name, value)
			_, err := Load(missing)
			require.Error(t, err)
			assert.Contains(t, err.Error(), name)
		})
	}
}

func TestLoadReadsQueryEnv(t *testing.T) {
	t.Setenv("BOOKFINDER_FIREBASE_API_KEY", "key")
	t.Setenv("BOOKFINDER_QUERY_RETRY_COUNT", "0")
	t.Setenv("BOOKFINDER_QUERY_STALE_TIME_MS", " 1500 ")
	t.Setenv("BOOKFINDER_QUERY_REFETCH_ON_FOCUS", "1")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Query.Retries())
	assert.Equal(t, 1500*time.Millisecond, cfg.Query.StaleTime())
	assert.True(t, cfg.Query.RefetchOnWindowFocus)
}

func TestLoadEnvFileDoesNotOverrideEnvironment(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("BOOKFINDER_LOG_LEVEL=debug\n"), 0o600))
	t.Setenv("BOOKFINDER_LOG_LEVEL", "warn")

	require.NoError(t, LoadEnvFile(envPath))
	assert.Equal(t, "warn", os.Getenv("BOOKFINDER_LOG_LEVEL"))
	require.NoError(t, LoadEnvFile(filepath.Join(dir, "absent.env")))
}
