package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"bookfinder/internal/ratelimit"
	"bookfinder/internal/util"
	"bookfinder/pkg/domain"
	"bookfinder/services/catalog/internal/app"
	"bookfinder/services/catalog/internal/cache"
	"bookfinder/services/catalog/internal/config"
	"bookfinder/services/catalog/internal/googlebooks"
	"bookfinder/services/catalog/internal/server"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.InitLogger(cfg.LogLevel)

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer redisClient.Close()
	}

	appCfg := app.Config{
		Upstream: googlebooks.NewClient(cfg.GoogleBooksBaseURL, cfg.GoogleBooksAPIKey, cfg.RequestTimeout()),
		Logger:   logger,
	}
	if cfg.CacheBackend == config.CacheBackendRedis {
		searches, err := cache.NewRedis[domain.SearchResult](redisClient, "bookfinder:search", app.SearchTTL)
		if err != nil {
			log.Fatalf("failed to init search cache: %v", err)
		}
		books, err := cache.NewRedis[domain.Book](redisClient, "bookfinder:book", app.BookTTL)
		if err != nil {
			log.Fatalf("failed to init book cache: %v", err)
		}
		appCfg.Searches, appCfg.Books = searches, books
	}
	appCore, err := app.New(appCfg)
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	globalLimiter, searchLimiter, err := newLimiters(cfg.RateLimitPerHour, cfg.SearchRateLimitPerSec, redisClient)
	if err != nil {
		log.Fatalf("failed to init rate limiter: %v", err)
	}
	trusted, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		log.Fatalf("failed to parse trusted proxies: %v", err)
	}

	httpServer, err := server.New(server.Config{
		App:            appCore,
		CORSOrigins:    cfg.CORSOrigins,
		GlobalLimiter:  globalLimiter,
		SearchLimiter:  searchLimiter,
		TrustedProxies: trusted,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	srv := &http.Server{
		Addr:         net.JoinHostPort("", cfg.Port),
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("catalog server listening", "addr", srv.Addr, "env", cfg.Env, "cache", cfg.CacheBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Error("server error", "err", err)
	}
}

// newLimiters shares quotas through Redis when it is configured and counts
// in memory otherwise.
func newLimiters(perHour, searchPerSecond int, client *redis.Client) (global, search *ratelimit.FixedWindowLimiter, err error) {
	if client != nil {
		global, err = ratelimit.NewRedisFixedWindowLimiter(client, "bookfinder:ratelimit:global", perHour, time.Hour)
		if err != nil {
			return nil, nil, err
		}
		search, err = ratelimit.NewRedisFixedWindowLimiter(client, "bookfinder:ratelimit:search", searchPerSecond, time.Second)
		return global, search, err
	}
	global, err = ratelimit.NewMemoryFixedWindowLimiter("global", perHour, time.Hour)
	if err != nil {
		return nil, nil, err
	}
	search, err = ratelimit.NewMemoryFixedWindowLimiter("search", searchPerSecond, time.Second)
	return global, search, err
}
