// Package session issues and reads the long-lived guest identity cookie.
package session

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
)

const (
	defaultCookieName = "wishlist_guest"
	defaultCookiePath = "/"
	defaultLifetime   = 30 * 24 * time.Hour
)

// ErrInvalidConfig indicates the manager was initialised with missing or invalid options.
var ErrInvalidConfig = errors.New("session: invalid config")

// Config controls how the guest cookie is encoded and scoped.
type Config struct {
	CookieName string
	CookiePath string
	HashKey    []byte
	BlockKey   []byte
	Secure     bool
	Lifetime   time.Duration
}

// Manager signs guest keys into cookies. One Manager serves the whole process.
type Manager struct {
	cfg   Config
	codec *securecookie.SecureCookie
}

// NewManager constructs a Manager using the provided configuration.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.HashKey) == 0 {
		return nil, fmt.Errorf("%w: hash key is required", ErrInvalidConfig)
	}
	switch len(cfg.BlockKey) {
	case 0, 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: block key must be 16, 24 or 32 bytes", ErrInvalidConfig)
	}

	if cfg.CookieName == "" {
		cfg.CookieName = defaultCookieName
	}
	if cfg.CookiePath == "" {
		cfg.CookiePath = defaultCookiePath
	}
	if cfg.Lifetime <= 0 {
		cfg.Lifetime = defaultLifetime
	}

	var codec *securecookie.SecureCookie
	if len(cfg.BlockKey) > 0 {
		codec = securecookie.New(cfg.HashKey, cfg.BlockKey)
	} else {
		codec = securecookie.New(cfg.HashKey, nil)
	}
	codec.SetSerializer(securecookie.JSONEncoder{})
	codec.MaxAge(int(cfg.Lifetime.Seconds()))

	return &Manager{cfg: cfg, codec: codec}, nil
}

// Provider binds the manager to one request/response pair.
func (m *Manager) Provider(w http.ResponseWriter, r *http.Request) *Provider {
	return &Provider{manager: m, w: w, r: r}
}

type payload struct {
	Key string `json:"key"`
}

func (m *Manager) decode(r *http.Request) string {
	cookie, err := r.Cookie(m.cfg.CookieName)
	if err != nil || cookie.Value == "" {
		return ""
	}
	var p payload
	if err := m.codec.Decode(m.cfg.CookieName, cookie.Value, &p); err != nil {
		return ""
	}
	return strings.TrimSpace(p.Key)
}

func (m *Manager) write(w http.ResponseWriter, r *http.Request, key string) error {
	encoded, err := m.codec.Encode(m.cfg.CookieName, payload{Key: key})
	if err != nil {
		return fmt.Errorf("failed to encode guest cookie: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    encoded,
		Path:     m.cfg.CookiePath,
		Expires:  time.Now().Add(m.cfg.Lifetime),
		MaxAge:   int(m.cfg.Lifetime.Seconds()),
		HttpOnly: true,
		Secure:   m.cfg.Secure || r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})
	return nil
}

func (m *Manager) expire(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    "",
		Path:     m.cfg.CookiePath,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.cfg.Secure || r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})
}

// Provider resolves the guest identity of a single request.
type Provider struct {
	manager *Manager
	w       http.ResponseWriter
	r       *http.Request
	key     string
	cleared bool
}

// SessionKey returns the current guest key, minting and persisting one when
// the request carries none.
func (p *Provider) SessionKey() (string, error) {
	if p.key != "" {
		return p.key, nil
	}
	if !p.cleared {
		if key := p.manager.decode(p.r); key != "" {
			p.key = key
			return key, nil
		}
	}

	key := strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := p.manager.write(p.w, p.r, key); err != nil {
		return "", err
	}
	p.key = key
	p.cleared = false
	return key, nil
}

// Peek returns the guest key carried by the request without minting a new one.
func (p *Provider) Peek() string {
	if p.key != "" {
		return p.key
	}
	if p.cleared {
		return ""
	}
	return p.manager.decode(p.r)
}

// Clear expires the guest cookie.
func (p *Provider) Clear() {
	p.manager.expire(p.w, p.r)
	p.key = ""
	p.cleared = true
}
