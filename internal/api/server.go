package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/wishlist/internal/metrics"
	"github.com/Kerhoff/wishlist/internal/service"
	"github.com/Kerhoff/wishlist/internal/session"
)

const maxBodyBytes = 1 << 20

// Config holds the HTTP surface options.
type Config struct {
	// UserHeader carries the authenticated user id set by the upstream proxy.
	UserHeader string
	// WebhookSecret authenticates order events. Empty disables the webhook.
	WebhookSecret string
	// AdminToken guards the stats endpoints. Empty disables them.
	AdminToken string
	CSRF       CSRFConfig
}

// Server provides the wishlist HTTP API.
type Server struct {
	svc      *service.Service
	sessions *session.Manager
	cfg      Config
	logger   *logrus.Logger
	router   chi.Router
}

// NewServer creates a Server, registers all routes, and returns it.
// A nil session manager disables guest wishlists.
func NewServer(svc *service.Service, sessions *session.Manager, cfg Config, logger *logrus.Logger) *Server {
	if cfg.UserHeader == "" {
		cfg.UserHeader = "X-User-ID"
	}
	s := &Server{
		svc:      svc,
		sessions: sessions,
		cfg:      cfg,
		logger:   logger,
		router:   chi.NewRouter(),
	}
	s.routes()
	return s
}

// Handler returns the http.Handler that can be passed to http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(CSRF(s.cfg.CSRF, s.csrfRejected))

			r.Route("/wishlist", func(r chi.Router) {
				r.Get("/items", s.handleGetItems)
				r.Get("/count", s.handleGetCount)
				r.Post("/toggle", s.handleToggle)
				r.Post("/remove", s.handleRemove)
				r.Post("/note", s.handleUpdateNote)
				r.Get("/lists", s.handleGetLists)
				r.Post("/lists", s.handleCreateList)
				r.Put("/active-list", s.handleSetActiveList)
			})
			r.Post("/session/login", s.handleLogin)
		})

		r.With(s.requireWebhookSecret).Post("/orders/events", s.handleOrderEvent)

		r.Route("/stats", func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Get("/products", s.handleProductStats)
			r.Get("/summary", s.handleStatsSummary)
		})
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// accessLog logs and measures every request once the route is known.
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		elapsed := time.Since(start)
		metrics.ObserveRequest(r.Method, route, status, elapsed)

		entry := s.logger.WithFields(logrus.Fields{
			"method":     r.Method,
			"route":      route,
			"status":     status,
			"bytes":      ww.BytesWritten(),
			"elapsed_ms": elapsed.Milliseconds(),
			"request_id": middleware.GetReqID(r.Context()),
		})
		if status >= http.StatusInternalServerError {
			entry.Warn("HTTP request failed")
			return
		}
		entry.Debug("HTTP request served")
	})
}

// ---------------------------------------------------------------------------
// JSON helpers
// ---------------------------------------------------------------------------

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			s.logger.WithError(err).Error("failed to encode JSON response")
		}
	}
}

// decodeJSON reads a bounded request body into dst. An empty body leaves dst untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}
