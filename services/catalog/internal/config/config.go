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

// ConfigPath is the default location of the catalog config file.
const ConfigPath = "config.yaml"

const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
)

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Env                   string   `yaml:"env"`
	Port                  string   `yaml:"port"`
	LogLevel              string   `yaml:"logLevel"`
	GoogleBooksBaseURL    string   `yaml:"googleBooksBaseURL"`
	GoogleBooksAPIKey     string   `yaml:"googleBooksAPIKey"`
	RequestTimeoutSeconds int      `yaml:"requestTimeoutSeconds"`
	CORSOrigins           []string `yaml:"corsOrigins"`
	CacheBackend          string   `yaml:"cacheBackend"`
	RedisAddr             string   `yaml:"redisAddr"`
	RedisPassword         string   `yaml:"redisPassword"`
	RateLimitPerHour      int      `yaml:"rateLimitPerHour"`
	SearchRateLimitPerSec int      `yaml:"searchRateLimitPerSecond"`
	TrustedProxyCIDRs     []string `yaml:"trustedProxyCIDRs"`
}

// Load reads config from path (defaults to config.yaml). A missing file
// keeps the defaults; a .env file and environment variables override it.
func Load(path string) (FileConfig, error) {
	cfg := defaults()
	if path == "" {
		path = ConfigPath
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("load env file: %w", err)
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
	applyEnv(&cfg)
	normalize(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func defaults() FileConfig {
	return FileConfig{
		Env:                   "dev",
		Port:                  "5000",
		GoogleBooksBaseURL:    "https://www.googleapis.com/books/v1",
		RequestTimeoutSeconds: 10,
		CORSOrigins:           []string{"http://localhost:5173", "http://127.0.0.1:5173"},
		CacheBackend:          CacheBackendMemory,
		RateLimitPerHour:      100,
		SearchRateLimitPerSec: 5,
	}
}

func applyEnv(cfg *FileConfig) {
	if v := os.Getenv("ENV"); v != "" {
		cfg.Env = v
	}
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("GOOGLE_BOOKS_BASE_URL"); v != "" {
		cfg.GoogleBooksBaseURL = v
	}
	if v := os.Getenv("GOOGLE_BOOKS_API_KEY"); v != "" {
		cfg.GoogleBooksAPIKey = v
	}
	if v := os.Getenv("REQUEST_TIMEOUT"); v != "" {
		// Non-numeric or non-positive values fall back to the default.
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RequestTimeoutSeconds = n
		} else {
			cfg.RequestTimeoutSeconds = 10
		}
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.CORSOrigins = splitCSV(v)
	}
	if v := os.Getenv("CACHE_BACKEND"); v != "" {
		cfg.CacheBackend = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("RATE_LIMIT_PER_HOUR"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimitPerHour = n
		}
	}
	if v := os.Getenv("TRUSTED_PROXY_CIDRS"); v != "" {
		cfg.TrustedProxyCIDRs = splitCSV(v)
	}
}

func normalize(cfg *FileConfig) {
	cfg.GoogleBooksBaseURL = strings.TrimRight(strings.TrimSpace(cfg.GoogleBooksBaseURL), "/")
	cfg.CacheBackend = strings.ToLower(strings.TrimSpace(cfg.CacheBackend))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = CacheBackendMemory
	}
	if cfg.RequestTimeoutSeconds <= 0 {
		cfg.RequestTimeoutSeconds = 10
	}
	if strings.TrimSpace(cfg.LogLevel) == "" {
		// dev gets verbose logs unless a level was set explicitly.
		if cfg.IsDev() {
			cfg.LogLevel = "debug"
		} else {
			cfg.LogLevel = "info"
		}
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml or PORT)")
	}
	u, err := url.Parse(cfg.GoogleBooksBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("config: googleBooksBaseURL must be an absolute URL (set in config.yaml or GOOGLE_BOOKS_BASE_URL)")
	}
	switch cfg.CacheBackend {
	case CacheBackendMemory:
	case CacheBackendRedis:
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return errors.New("config: redisAddr is required when cacheBackend is redis (set in config.yaml or REDIS_ADDR)")
		}
	default:
		return fmt.Errorf("config: unknown cacheBackend %q", cfg.CacheBackend)
	}
	if cfg.RateLimitPerHour <= 0 {
		return errors.New("config: rateLimitPerHour must be > 0")
	}
	if cfg.SearchRateLimitPerSec <= 0 {
		return errors.New("config: searchRateLimitPerSecond must be > 0")
	}
	return nil
}

// IsDev reports whether the service runs in development mode.
func (c FileConfig) IsDev() bool {
	return strings.EqualFold(strings.TrimSpace(c.Env), "dev")
}

// RequestTimeout returns the upstream request timeout.
func (c FileConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
