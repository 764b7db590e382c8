package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/spf13/cobra"

	"github.com/Kerhoff/wishlist/internal/api"
	"github.com/Kerhoff/wishlist/internal/metrics"
	"github.com/Kerhoff/wishlist/internal/notify"
	"github.com/Kerhoff/wishlist/internal/session"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the wishlist HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

func serve(ctx context.Context) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	l := a.logger
	l.Info("Starting wishlist service...")

	if err := a.svc.Boot(ctx); err != nil {
		return err
	}

	sessions, err := a.sessionManager()
	if err != nil {
		return err
	}

	apiServer := api.NewServer(a.svc, sessions, api.Config{
		UserHeader:    a.cfg.UserHeader,
		WebhookSecret: a.cfg.WebhookSecret,
		AdminToken:    a.cfg.AdminToken,
		CSRF:          api.CSRFConfig{Secure: a.cfg.CookieSecure},
	}, l)

	httpServer := &http.Server{
		Addr:              ":" + a.cfg.Port,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	metricsServer := &http.Server{
		Addr:              ":" + a.cfg.PrometheusPort,
		Handler:           metricsMux(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		l.Infof("HTTP server listening on :%s", a.cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()
	go func() {
		l.Infof("Metrics server listening on :%s", a.cfg.PrometheusPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics server error: %w", err)
		}
	}()

	if a.telegram != nil && a.cfg.TelegramCommands {
		router := notify.NewRouter(a.svc.Tracker(), api.ParseRangeBound, l)
		go func() {
			if err := a.telegram.Listen(ctx, router); err != nil {
				l.WithError(err).Error("Telegram command listener stopped")
			}
		}()
	}

	l.Info("Wishlist service started successfully")

	var runErr error
	select {
	case <-ctx.Done():
		l.Info("Received shutdown signal...")
	case runErr = <-errCh:
		l.WithError(runErr).Error("Server stopped unexpectedly")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	l.Info("Shutting down HTTP servers...")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		l.WithError(err).Warn("HTTP server shutdown incomplete")
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		l.WithError(err).Warn("Metrics server shutdown incomplete")
	}

	l.Info("Wishlist service stopped")
	return runErr
}

func metricsMux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

// sessionManager builds the guest cookie codec. Without a configured hash key
// a random one is generated, so guest wishlists do not survive a restart.
func (a *app) sessionManager() (*session.Manager, error) {
	if !a.cfg.GuestsAllowed {
		return nil, nil
	}

	hashKey := a.cfg.CookieHashKey
	if len(hashKey) == 0 {
		a.logger.Warn("COOKIE_HASH_KEY not set, using a random key; guest sessions reset on restart")
		hashKey = securecookie.GenerateRandomKey(32)
		if hashKey == nil {
			return nil, errors.New("failed to generate cookie hash key")
		}
	}

	sessions, err := session.NewManager(session.Config{
		HashKey:  hashKey,
		BlockKey: a.cfg.CookieBlockKey,
		Secure:   a.cfg.CookieSecure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session manager: %w", err)
	}
	return sessions, nil
}
