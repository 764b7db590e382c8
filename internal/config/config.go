package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/Kerhoff/wishlist/internal/service"
)

// Storage backends.
const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Config holds all configuration for the application. It is loaded once and never mutated.
type Config struct {
	DatabaseURL    string
	StorageBackend string
	LogLevel       string
	LogFormat      string
	Port           string
	PrometheusPort string

	WishlistEnabled bool
	GuestsAllowed   bool
	CacheEnabled    bool
	CacheTTL        time.Duration
	CacheSize       int
	NoteMaxLength   int

	CookieHashKey  []byte
	CookieBlockKey []byte
	CookieSecure   bool

	UserHeader    string
	WebhookSecret string
	AdminToken    string
	CatalogFile   string

	TelegramToken    string
	TelegramChatID   int64
	TelegramCommands bool
}

// Load loads configuration from environment variables, after an optional .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &Config{
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		StorageBackend: strings.ToLower(os.Getenv("STORAGE_BACKEND")),
		LogLevel:       getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:      getEnvOrDefault("LOG_FORMAT", "text"),
		Port:           getEnvOrDefault("PORT", "8080"),
		PrometheusPort: getEnvOrDefault("PROMETHEUS_PORT", "9090"),
		CookieHashKey:  []byte(os.Getenv("COOKIE_HASH_KEY")),
		CookieBlockKey: []byte(os.Getenv("COOKIE_BLOCK_KEY")),
		UserHeader:     getEnvOrDefault("USER_HEADER", "X-User-ID"),
		WebhookSecret:  os.Getenv("ORDER_WEBHOOK_SECRET"),
		AdminToken:     os.Getenv("ADMIN_TOKEN"),
		CatalogFile:    os.Getenv("CATALOG_FILE"),
		TelegramToken:  os.Getenv("TELEGRAM_TOKEN"),
	}

	var err error
	if cfg.WishlistEnabled, err = getEnvBool("WISHLIST_ENABLED", true); err != nil {
		return nil, err
	}
	if cfg.GuestsAllowed, err = getEnvBool("GUESTS_ALLOWED", true); err != nil {
		return nil, err
	}
	if cfg.CacheEnabled, err = getEnvBool("CACHE_ENABLED", true); err != nil {
		return nil, err
	}
	if cfg.CookieSecure, err = getEnvBool("COOKIE_SECURE", true); err != nil {
		return nil, err
	}
	if cfg.TelegramCommands, err = getEnvBool("TELEGRAM_COMMANDS", false); err != nil {
		return nil, err
	}
	if cfg.CacheTTL, err = getEnvSeconds("CACHE_TTL", service.DefaultCacheTTL); err != nil {
		return nil, err
	}
	if cfg.CacheSize, err = getEnvInt("CACHE_SIZE", 10000); err != nil {
		return nil, err
	}
	if cfg.NoteMaxLength, err = getEnvInt("NOTE_MAX_LENGTH", service.DefaultNoteMaxLength); err != nil {
		return nil, err
	}
	if raw := os.Getenv("TELEGRAM_CHAT_ID"); raw != "" {
		if cfg.TelegramChatID, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return nil, fmt.Errorf("TELEGRAM_CHAT_ID must be an integer: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StorageBackend {
	case "":
		c.StorageBackend = BackendMemory
		if c.DatabaseURL != "" {
			c.StorageBackend = BackendPostgres
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL environment variable is required for the postgres backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("STORAGE_BACKEND must be %q or %q, got %q", BackendPostgres, BackendMemory, c.StorageBackend)
	}

	switch len(c.CookieBlockKey) {
	case 0, 16, 24, 32:
	default:
		return fmt.Errorf("COOKIE_BLOCK_KEY must be 16, 24 or 32 bytes, got %d", len(c.CookieBlockKey))
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("CACHE_SIZE must not be negative, got %d", c.CacheSize)
	}
	if c.TelegramToken != "" && c.TelegramChatID == 0 {
		return fmt.Errorf("TELEGRAM_CHAT_ID is required when TELEGRAM_TOKEN is set")
	}
	return nil
}

// WishlistSettings returns the feature settings handed to the wishlist service.
func (c *Config) WishlistSettings() service.Settings {
	return service.Settings{
		Enabled:       c.WishlistEnabled,
		GuestsAllowed: c.GuestsAllowed,
		CacheEnabled:  c.CacheEnabled,
		CacheTTL:      c.CacheTTL,
		NoteMaxLength: c.NoteMaxLength,
	}
}

// getEnvOrDefault returns environment variable value or default if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean, got %q", key, value)
	}
	return b, nil
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, value)
	}
	return i, nil
}

// getEnvSeconds accepts either a number of seconds or a Go duration string.
func getEnvSeconds(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be seconds or a duration, got %q", key, value)
	}
	return d, nil
}
