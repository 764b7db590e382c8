package models

import (
	"strings"
	"time"
)

// DefaultListID is the list every scope falls back to.
const DefaultListID = "default"

const maxListIDLength = 64

// Visibility controls who may see a wishlist.
type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityShared  Visibility = "shared"
	VisibilityPublic  Visibility = "public"
)

// ParseVisibility maps unknown values to private.
func ParseVisibility(v string) Visibility {
	switch Visibility(strings.ToLower(strings.TrimSpace(v))) {
	case VisibilityShared:
		return VisibilityShared
	case VisibilityPublic:
		return VisibilityPublic
	default:
		return VisibilityPrivate
	}
}

// WishlistItem is a saved catalog item owned by one scope.
type WishlistItem struct {
	ID          int64          `json:"id" db:"id"`
	Owner       Owner          `json:"owner" db:"-"`
	ListID      string         `json:"list_id" db:"list_id"`
	ProductID   int64          `json:"product_id" db:"product_id"`
	VariationID int64          `json:"variation_id" db:"variation_id"`
	Quantity    int            `json:"quantity" db:"quantity"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at" db:"updated_at"`
	Metadata    map[string]any `json:"metadata,omitempty" db:"metadata"`
}

// Note returns the free-text note stored in the item metadata.
func (i *WishlistItem) Note() string {
	if i == nil || i.Metadata == nil {
		return ""
	}
	note, _ := i.Metadata["note"].(string)
	return note
}

// WishlistList is a named sub-collection of items. Items refer to it by Key.
type WishlistList struct {
	ID         int64      `json:"id" db:"id"`
	Owner      Owner      `json:"owner" db:"-"`
	Key        string     `json:"key" db:"list_key"`
	Title      string     `json:"title" db:"title"`
	Slug       string     `json:"slug" db:"slug"`
	Visibility Visibility `json:"visibility" db:"visibility"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
}

// NormalizeListID lower-cases a list id and strips anything outside [a-z0-9_-].
// An empty result means the default list.
func NormalizeListID(listID string) string {
	listID = strings.ToLower(strings.TrimSpace(listID))
	var b strings.Builder
	for _, r := range listID {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		}
		if b.Len() >= maxListIDLength {
			break
		}
	}
	if b.Len() == 0 {
		return DefaultListID
	}
	return b.String()
}

// CloneMetadata returns a shallow copy that never aliases the source map.
func CloneMetadata(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
