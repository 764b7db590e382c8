// Package main provides the wishlist server and its admin commands.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Kerhoff/wishlist/internal/cache"
	"github.com/Kerhoff/wishlist/internal/catalog"
	"github.com/Kerhoff/wishlist/internal/config"
	"github.com/Kerhoff/wishlist/internal/notify"
	"github.com/Kerhoff/wishlist/internal/repository/memory"
	"github.com/Kerhoff/wishlist/internal/repository/postgres"
	"github.com/Kerhoff/wishlist/internal/service"
	"github.com/Kerhoff/wishlist/pkg/logger"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "wishlist",
	Short:         "Saved-items service for the shop",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(purgeGuestsCmd)
}

// app is the wired module shared by every command.
type app struct {
	cfg    *config.Config
	logger *logrus.Logger
	db     *config.Database
	svc    *service.Service
	// telegram is nil unless TELEGRAM_TOKEN is set.
	telegram *notify.Telegram
}

// newApp loads configuration and builds the service on the configured backend.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	l := logger.NewWithFormat(cfg.LogLevel, cfg.LogFormat, os.Stdout)

	a := &app{cfg: cfg, logger: l}
	deps := service.Dependencies{}

	switch cfg.StorageBackend {
	case config.BackendPostgres:
		db, err := config.NewDatabase(ctx, cfg.DatabaseURL, l)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		a.db = db
		deps.Items = postgres.NewWishlistRepository(db.DB)
		deps.Lists = postgres.NewListRepository(db.DB)
		deps.Conversions = postgres.NewConversionRepository(db.DB)
		deps.Preferences = postgres.NewPreferenceRepository(db.DB)
		deps.Schema = db
	default:
		l.Warn("No DATABASE_URL configured, wishlists are kept in memory only")
		store := memory.New()
		deps.Items = store
		deps.Lists = store
		deps.Conversions = store
		deps.Preferences = store
	}

	if cfg.CatalogFile != "" {
		products, err := catalog.LoadFile(cfg.CatalogFile)
		if err != nil {
			a.Close()
			return nil, err
		}
		l.WithField("products", products.Len()).Info("Product catalog loaded")
		deps.Catalog = products
	} else {
		l.Warn("No CATALOG_FILE configured, adding items will fail with catalog_unavailable")
	}

	if cfg.CacheEnabled {
		counts, err := cache.NewLRU(cfg.CacheSize)
		if err != nil {
			a.Close()
			return nil, err
		}
		deps.Cache = counts
	}

	if cfg.TelegramToken != "" {
		tg, err := notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID, l)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to create Telegram notifier: %w", err)
		}
		a.telegram = tg
		deps.Notifier = tg
	}

	a.svc = service.New(l, cfg.WishlistSettings(), deps)
	return a, nil
}

// Close releases the database pool, if any.
func (a *app) Close() {
	if a.db == nil {
		return
	}
	if err := a.db.Close(); err != nil {
		a.logger.WithError(err).Warn("Failed to close database")
	}
}
