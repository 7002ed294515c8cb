package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"bookfinder/internal/util"
	"bookfinder/services/client/internal/app"
	"bookfinder/services/client/internal/config"
	"bookfinder/services/client/internal/identity"
	"bookfinder/services/client/internal/querycache"
)

const readyTimeout = 15 * time.Second

var configPath string

var rootCmd = &cobra.Command{
	Use:           "bookfinder",
	Short:         "Search the book catalog after signing in",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.ConfigPath, "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadApp builds and starts the client core and waits until the signed-in
// state is known.
func loadApp(ctx context.Context, logTo io.Writer) (*app.App, config.FileConfig, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, cfg, fmt.Errorf("load config: %w", err)
	}
	logger := util.InitLoggerTo(logTo, cfg.LogLevel)

	timeout, err := config.ParseRequestTimeout(cfg.RequestTimeout)
	if err != nil {
		return nil, cfg, err
	}
	store, err := identity.NewFileCredentialStore(filepath.Join(cfg.DataDir, "auth"))
	if err != nil {
		return nil, cfg, fmt.Errorf("init credential store: %w", err)
	}
	provider, err := identity.NewFirebaseProvider(identity.FirebaseConfig{
		APIKey:      cfg.Firebase.APIKey,
		IdentityURL: cfg.Firebase.IdentityURL,
		TokenURL:    cfg.Firebase.TokenURL,
		Store:       store,
		HTTPClient:  &http.Client{Timeout: timeout},
		Logger:      logger,
	})
	if err != nil {
		return nil, cfg, fmt.Errorf("init identity provider: %w", err)
	}

	queryOpts := querycache.DefaultOptions()
	queryOpts.MaxRetries = cfg.Query.Retries()
	queryOpts.StaleTime = cfg.Query.StaleTime()
	queryOpts.RefetchOnFocus = cfg.Query.RefetchOnWindowFocus
	if cfg.Query.Capacity > 0 {
		queryOpts.Capacity = cfg.Query.Capacity
	}
	core, err := app.New(app.Config{
		Provider:       provider,
		APIBaseURL:     cfg.APIBaseURL,
		RequestTimeout: timeout,
		Query:          queryOpts,
		Logger:         logger,
	})
	if err != nil {
		return nil, cfg, fmt.Errorf("init app: %w", err)
	}
	core.Start(ctx)

	waitCtx, cancel := context.WithTimeout(ctx, readyTimeout)
	defer cancel()
	if _, err := core.WaitReady(waitCtx); err != nil {
		core.Close()
		return nil, cfg, fmt.Errorf("wait for session: %w", err)
	}
	slog.Debug("session resolved", "present", core.Session().Session.IsPresent())
	return core, cfg, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
