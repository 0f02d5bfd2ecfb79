// Package cmd defines and implements the CLI commands for the scrapper executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/scrapekit/scrapper/internal/config"
	"github.com/scrapekit/scrapper/internal/logging"
	"github.com/scrapekit/scrapper/internal/registry"
	"github.com/scrapekit/scrapper/internal/results"
	"github.com/scrapekit/scrapper/internal/scrape"
)

var cfgFile string

// appKeyType is the key for storing the app in the command context.
type appKeyType string

const appKey appKeyType = "app"

// app bundles the services every subcommand needs. Heavier pipeline
// pieces (fetchers, queue, workers) are built per command.
type app struct {
	cfg      config.Config
	logger   *zap.Logger
	projects scrape.ProjectStore
	results  scrape.ResultStore
	closers  []func()
}

// Close shuts down services in reverse construction order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	_ = a.logger.Sync()
}

// newApp is the application factory. It is a variable so tests can
// substitute a fake.
var newApp = func(ctx context.Context) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &app{cfg: cfg, logger: logger}
	if err := a.initStores(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

// initStores picks Postgres-backed stores when a DSN is configured and
// falls back to in-memory stores otherwise.
func (a *app) initStores(ctx context.Context) error {
	if a.cfg.DB.DSN == "" {
		a.logger.Warn("no database configured, using in-memory stores")
		a.projects = registry.NewMemory()
		a.results = results.NewMemory()
		return nil
	}

	projectStore, err := registry.NewPostgres(ctx, registry.PostgresConfig{
		DSN:      a.cfg.DB.DSN,
		MaxConns: a.cfg.DB.MaxConns,
		MinConns: a.cfg.DB.MinConns,
	})
	if err != nil {
		return fmt.Errorf("init project store: %w", err)
	}
	a.closers = append(a.closers, projectStore.Close)

	resultStore, err := results.NewPostgres(ctx, results.PostgresConfig{
		DSN:      a.cfg.DB.DSN,
		MaxConns: a.cfg.DB.MaxConns,
		MinConns: a.cfg.DB.MinConns,
	})
	if err != nil {
		return fmt.Errorf("init result store: %w", err)
	}
	a.closers = append(a.closers, resultStore.Close)

	a.projects = projectStore
	a.results = resultStore
	return nil
}

func resolveApp(ctx context.Context) (*app, error) {
	a, ok := ctx.Value(appKey).(*app)
	if !ok || a == nil {
		return nil, errors.New("application services not initialized")
	}
	return a, nil
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scrapper",
		Short: "A scheduled web scraping service with per-project extraction rules.",
		Long: `scrapper registers scraping projects, fetches their target pages on a
schedule or on demand, extracts structured records with CSS selector
rules, and serves the results over an HTTP API.`,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return fmt.Errorf("initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, a))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if a, ok := cmd.Context().Value(appKey).(*app); ok && a != nil {
				a.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is built-in defaults plus SCRAPPER_* env vars)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newScrapeCmd())
	cmd.AddCommand(newExportCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
