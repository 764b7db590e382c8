package service

import "time"

const (
	// DefaultCacheTTL applies when no positive TTL is configured.
	DefaultCacheTTL = 600 * time.Second
	// DefaultNoteMaxLength caps item notes, in runes.
	DefaultNoteMaxLength = 500
	// productStatsLimit caps the per-product report.
	productStatsLimit = 100
)

// Settings is the immutable feature configuration handed to the service.
type Settings struct {
	Enabled       bool
	GuestsAllowed bool
	CacheEnabled  bool
	// CacheTTL of zero or less falls back to DefaultCacheTTL.
	CacheTTL      time.Duration
	NoteMaxLength int
}

// DefaultSettings enables everything with default limits.
func DefaultSettings() Settings {
	return Settings{
		Enabled:       true,
		GuestsAllowed: true,
		CacheEnabled:  true,
		CacheTTL:      DefaultCacheTTL,
		NoteMaxLength: DefaultNoteMaxLength,
	}
}

func (s Settings) normalize() Settings {
	if s.CacheTTL <= 0 {
		s.CacheTTL = DefaultCacheTTL
	}
	if s.NoteMaxLength <= 0 {
		s.NoteMaxLength = DefaultNoteMaxLength
	}
	return s
}
