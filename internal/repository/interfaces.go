package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Kerhoff/wishlist/internal/models"
)

// ErrAlreadyExists is returned when an insert hits a uniqueness constraint.
// Callers treat it as "already there": retry as an update or with another key.
var ErrAlreadyExists = errors.New("record already exists")

// WishlistRepository defines the interface for saved item operations.
// Every upsert is atomic and backed by the (list, owner, product, variation) unique key.
type WishlistRepository interface {
	// UpsertItem inserts the item or, when the key exists, sets its quantity and updated_at.
	UpsertItem(ctx context.Context, item *models.WishlistItem) (created bool, err error)
	// MergeItem inserts the item or raises the existing quantity to max(existing, incoming, 1).
	MergeItem(ctx context.Context, item *models.WishlistItem) (created bool, err error)
	GetItem(ctx context.Context, owner models.Owner, listID string, productID, variationID int64) (*models.WishlistItem, error)
	GetItems(ctx context.Context, owner models.Owner, listID string) ([]*models.WishlistItem, error)
	GetOwnerItems(ctx context.Context, owner models.Owner) ([]*models.WishlistItem, error)
	CountItems(ctx context.Context, owner models.Owner, listID string) (int, error)
	UpdateItemMetadata(ctx context.Context, itemID int64, metadata map[string]any, updatedAt time.Time) error
	DeleteItem(ctx context.Context, owner models.Owner, listID string, productID, variationID int64) (bool, error)
	DeleteOwnerItems(ctx context.Context, owner models.Owner) (int64, error)
	// PurgeGuestItems removes guest rows not touched since before.
	PurgeGuestItems(ctx context.Context, before time.Time) (int64, error)
	// SavedProductIDs returns every distinct product a user saved, across all lists.
	SavedProductIDs(ctx context.Context, userID int64) ([]int64, error)
}

// ListRepository defines the interface for wishlist list operations.
type ListRepository interface {
	// EnsureList inserts the list unless the owner already has one with the same key.
	// A slug collision yields ErrAlreadyExists.
	EnsureList(ctx context.Context, list *models.WishlistList) (*models.WishlistList, error)
	// CreateList inserts a new list; key or slug collisions yield ErrAlreadyExists.
	CreateList(ctx context.Context, list *models.WishlistList) (*models.WishlistList, error)
	GetListByKey(ctx context.Context, owner models.Owner, key string) (*models.WishlistList, error)
	GetLists(ctx context.Context, owner models.Owner) ([]*models.WishlistList, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	// ReassignLists hands every list of from over to to. Lists whose key to already owns are removed.
	ReassignLists(ctx context.Context, from, to models.Owner, updatedAt time.Time) (int64, error)
}

// ConversionRepository defines the interface for conversion tracking and analytics.
type ConversionRepository interface {
	UpsertConversion(ctx context.Context, rec *models.ConversionRecord) error
	// ClaimOrder atomically flags the order as tracked; false means it already was.
	ClaimOrder(ctx context.Context, orderID int64, status models.OrderStatus, at time.Time) (bool, error)
	ReleaseOrder(ctx context.Context, orderID int64) error
	IsOrderTracked(ctx context.Context, orderID int64) (bool, error)
	GetOrderConversions(ctx context.Context, orderID int64) ([]*models.ConversionRecord, error)
	ProductStats(ctx context.Context, r models.StatsRange, limit int) ([]*models.ProductStat, error)
	// Summary fills every field except ConversionRate.
	Summary(ctx context.Context, r models.StatsRange) (*models.StatsSummary, error)
}

// PreferenceRepository stores per-user preferences.
type PreferenceRepository interface {
	// GetActiveList returns "" when the user never picked a list.
	GetActiveList(ctx context.Context, userID int64) (string, error)
	SetActiveList(ctx context.Context, userID int64, listID string) error
}
