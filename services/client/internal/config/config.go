package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ConfigPath is the default location of the client config file.
const ConfigPath = "config.yaml"

// EnvFile is loaded before the config file when present.
const EnvFile = ".env"

// QueryConfig tunes the query cache.
type QueryConfig struct {
	RetryCount           *int  `yaml:"retryCount"`
	StaleTimeMs          int64 `yaml:"staleTimeMs"`
	RefetchOnWindowFocus bool  `yaml:"refetchOnWindowFocus"`
	Capacity             int   `yaml:"capacity"`
}

// FirebaseConfig points at the identity provider.
type FirebaseConfig struct {
	APIKey      string `yaml:"apiKey"`
	IdentityURL string `yaml:"identityURL"`
	TokenURL    string `yaml:"tokenURL"`
}

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port           string         `yaml:"port"`
	LogLevel       string         `yaml:"logLevel"`
	APIBaseURL     string         `yaml:"apiBaseURL"`
	RequestTimeout string         `yaml:"requestTimeout"`
	DataDir        string         `yaml:"dataDir"`
	Firebase       FirebaseConfig `yaml:"firebase"`
	Query          QueryConfig    `yaml:"query"`
}

// Load reads config from path (defaults to config.yaml). A missing file
// leaves the defaults in place; environment variables win over both.
func Load(path string) (FileConfig, error) {
	cfg := defaults()
	if path == "" {
		path = ConfigPath
	}
	if err := LoadEnvFile(EnvFile); err != nil {
		return cfg, err
	}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadEnvFile loads KEY=VALUE pairs without overriding variables already
// set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

func defaults() FileConfig {
	return FileConfig{
		Port:           "5173",
		LogLevel:       "info",
		APIBaseURL:     "http://localhost:5000",
		RequestTimeout: "10s",
		DataDir:        defaultDataDir(),
		Query: QueryConfig{
			StaleTimeMs: 60000,
			Capacity:    256,
		},
	}
}

func defaultDataDir() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return ".bookfinder"
	}
	return dir + string(os.PathSeparator) + "bookfinder"
}

// applyEnv overlays BOOKFINDER_* variables. Numeric and boolean values
// that do not parse are reported instead of being dropped.
func applyEnv(cfg *FileConfig) error {
	if v := os.Getenv("BOOKFINDER_PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("BOOKFINDER_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("BOOKFINDER_API_BASE_URL"); v != "" {
		cfg.APIBaseURL = v
	}
	if v := os.Getenv("BOOKFINDER_REQUEST_TIMEOUT"); v != "" {
		cfg.RequestTimeout = v
	}
	if v := os.Getenv("BOOKFINDER_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("BOOKFINDER_FIREBASE_API_KEY"); v != "" {
		cfg.Firebase.APIKey = v
	}
	if v := os.Getenv("BOOKFINDER_FIREBASE_IDENTITY_URL"); v != "" {
		cfg.Firebase.IdentityURL = v
	}
	if v := os.Getenv("BOOKFINDER_FIREBASE_TOKEN_URL"); v != "" {
		cfg.Firebase.TokenURL = v
	}
	if v := os.Getenv("BOOKFINDER_QUERY_RETRY_COUNT"); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("config: invalid BOOKFINDER_QUERY_RETRY_COUNT %q: %w", v, err)
		}
		cfg.Query.RetryCount = &n
	}
	if v := os.Getenv("BOOKFINDER_QUERY_STALE_TIME_MS"); v != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("config: invalid BOOKFINDER_QUERY_STALE_TIME_MS %q: %w", v, err)
		}
		cfg.Query.StaleTimeMs = n
	}
	if v := os.Getenv("BOOKFINDER_QUERY_REFETCH_ON_FOCUS"); v != "" {
		on, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("config: invalid BOOKFINDER_QUERY_REFETCH_ON_FOCUS %q: %w", v, err)
		}
		cfg.Query.RefetchOnWindowFocus = on
	}
	return nil
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml or BOOKFINDER_PORT)")
	}
	u, err := url.Parse(cfg.APIBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("config: apiBaseURL must be an absolute URL (set in config.yaml or BOOKFINDER_API_BASE_URL)")
	}
	if _, err := ParseRequestTimeout(cfg.RequestTimeout); err != nil {
		return err
	}
	if strings.TrimSpace(cfg.Firebase.APIKey) == "" {
		return errors.New("config: firebase.apiKey is required (set in config.yaml or BOOKFINDER_FIREBASE_API_KEY)")
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return errors.New("config: dataDir is required (set in config.yaml or BOOKFINDER_DATA_DIR)")
	}
	if cfg.Query.RetryCount != nil && *cfg.Query.RetryCount < 0 {
		return errors.New("config: query.retryCount must be >= 0")
	}
	if cfg.Query.StaleTimeMs < 0 {
		return errors.New("config: query.staleTimeMs must be >= 0")
	}
	if cfg.Query.Capacity < 0 {
		return errors.New("config: query.capacity must be >= 0")
	}
	return nil
}

// ParseRequestTimeout parses a duration string; empty means 10s.
func ParseRequestTimeout(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 10 * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("config: invalid requestTimeout: %w", err)
	}
	if d <= 0 {
		return 0, errors.New("config: requestTimeout must be > 0")
	}
	return d, nil
}

// Retries returns the configured retry count, defaulting to 1.
func (q QueryConfig) Retries() int {
	if q.RetryCount == nil {
		return 1
	}
	return *q.RetryCount
}

// StaleTime returns the staleness window.
func (q QueryConfig) StaleTime() time.Duration {
	return time.Duration(q.StaleTimeMs) * time.Millisecond
}
