package api

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"io"
	"net/http"
	"time"
)

const (
	defaultCSRFCookie = "wishlist_csrf"
	defaultCSRFHeader = "X-CSRF-Token"
)

// CSRFConfig controls the double-submit cookie.
type CSRFConfig struct {
	CookieName string
	CookiePath string
	HeaderName string
	MaxAge     time.Duration
	Secure     bool
}

func (c CSRFConfig) withDefaults() CSRFConfig {
	if c.CookieName == "" {
		c.CookieName = defaultCSRFCookie
	}
	if c.HeaderName == "" {
		c.HeaderName = defaultCSRFHeader
	}
	if c.CookiePath == "" {
		c.CookiePath = "/"
	}
	if c.MaxAge == 0 {
		c.MaxAge = 24 * time.Hour
	}
	return c
}

// CSRF issues a token cookie on every request and requires unsafe methods to
// echo it in the header. The cookie is readable by scripts so the page can echo it.
func CSRF(cfg CSRFConfig, reject http.HandlerFunc) func(http.Handler) http.Handler {
	cfg = cfg.withDefaults()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := ensureCSRFToken(w, r, cfg)
			if err != nil {
				http.Error(w, "csrf token error", http.StatusInternalServerError)
				return
			}
			w.Header().Set(cfg.HeaderName, token)

			if isUnsafeMethod(r.Method) {
				submitted := r.Header.Get(cfg.HeaderName)
				if submitted == "" || subtle.ConstantTimeCompare([]byte(submitted), []byte(token)) != 1 {
					reject(w, r)
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func ensureCSRFToken(w http.ResponseWriter, r *http.Request, cfg CSRFConfig) (string, error) {
	if c, err := r.Cookie(cfg.CookieName); err == nil && c.Value != "" {
		return c.Value, nil
	}

	token, err := generateToken(32)
	if err != nil {
		return "", err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     cfg.CookieName,
		Value:    token,
		Path:     cfg.CookiePath,
		Secure:   cfg.Secure || r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(cfg.MaxAge.Seconds()),
	})
	return token, nil
}

func generateToken(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func isUnsafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return false
	default:
		return true
	}
}

func (s *Server) csrfRejected(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, r, newError("csrf_invalid", "missing or invalid anti-forgery token", http.StatusForbidden))
}
