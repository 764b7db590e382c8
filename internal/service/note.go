package service

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

const noteKey = "note"

var notePolicy = bluemonday.StrictPolicy()

// sanitizeNote strips markup and returns plain text, trimmed and capped at maxRunes.
// StrictPolicy escapes the text it keeps, so the result is unescaped before capping.
func sanitizeNote(note string, maxRunes int) string {
	clean := strings.TrimSpace(html.UnescapeString(notePolicy.Sanitize(note)))
	if maxRunes > 0 {
		if r := []rune(clean); len(r) > maxRunes {
			clean = strings.TrimSpace(string(r[:maxRunes]))
		}
	}
	return clean
}

// sanitizeTitle applies the note rules to list titles.
func sanitizeTitle(title string) string {
	return sanitizeNote(title, maxTitleLength)
}
