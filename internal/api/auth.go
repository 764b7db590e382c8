package api

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"

	"github.com/Kerhoff/wishlist/internal/service"
)

const (
	webhookSecretHeader = "X-Webhook-Secret"
	adminTokenHeader    = "X-Admin-Token"
)

// actor reads the authenticated user id set by the upstream proxy. No header means a guest.
func (s *Server) actor(r *http.Request) (service.Actor, bool) {
	raw := strings.TrimSpace(r.Header.Get(s.cfg.UserHeader))
	if raw == "" {
		return service.Actor{}, true
	}
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || userID <= 0 {
		return service.Actor{}, false
	}
	return service.Actor{UserID: userID}, true
}

// identity returns the guest identity of the request, or nil when guest sessions are off.
func (s *Server) identity(w http.ResponseWriter, r *http.Request) service.GuestIdentity {
	if s.sessions == nil {
		return nil
	}
	return s.sessions.Provider(w, r)
}

// wishlist resolves the request-scoped wishlist, writing the error response on failure.
func (s *Server) wishlist(w http.ResponseWriter, r *http.Request) (*service.Wishlist, bool) {
	actor, ok := s.actor(r)
	if !ok {
		s.writeError(w, r, newError(service.CodeInvalidUser, "user header must carry a positive integer", http.StatusBadRequest))
		return nil, false
	}

	wl, err := s.svc.ForActor(actor, s.identity(w, r))
	if err != nil {
		s.respondServiceError(w, r, err)
		return nil, false
	}
	return wl, true
}

func (s *Server) requireWebhookSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.WebhookSecret == "" {
			s.writeError(w, r, newError("webhook_disabled", "order webhook is not configured", http.StatusServiceUnavailable))
			return
		}
		if !tokenMatches(r.Header.Get(webhookSecretHeader), s.cfg.WebhookSecret) {
			s.writeError(w, r, newError("invalid_secret", "missing or invalid webhook secret", http.StatusUnauthorized))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AdminToken == "" {
			s.writeError(w, r, newError("stats_disabled", "stats endpoints are not configured", http.StatusServiceUnavailable))
			return
		}
		if !tokenMatches(r.Header.Get(adminTokenHeader), s.cfg.AdminToken) {
			s.writeError(w, r, newError("invalid_token", "missing or invalid admin token", http.StatusUnauthorized))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func tokenMatches(submitted, expected string) bool {
	if submitted == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(submitted), []byte(expected)) == 1
}
