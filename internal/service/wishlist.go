package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/wishlist/internal/cache"
	"github.com/Kerhoff/wishlist/internal/metrics"
	"github.com/Kerhoff/wishlist/internal/models"
	"github.com/Kerhoff/wishlist/internal/repository"
)

// GuestIdentity issues and clears the anonymous identity of a visitor.
type GuestIdentity interface {
	// SessionKey returns the guest key, minting one if the visitor has none.
	SessionKey() (string, error)
	// Peek returns the guest key carried by the visitor, or "".
	Peek() string
	// Clear invalidates the guest key.
	Clear()
}

// Result reports the outcome of an item mutation.
type Result struct {
	Success bool   `json:"success"`
	Added   bool   `json:"added"`
	Count   int    `json:"count"`
	ListID  string `json:"list_id"`
}

// Wishlist operates on the items and lists of one owner.
type Wishlist struct {
	svc      *Service
	owner    models.Owner
	identity GuestIdentity
	logger   *logrus.Entry
}

// Owner returns the scope the wishlist is bound to.
func (w *Wishlist) Owner() models.Owner {
	return w.owner
}

// ActiveListID returns the list used when a call names none.
func (w *Wishlist) ActiveListID(ctx context.Context) (string, error) {
	if !w.owner.IsUser() {
		return models.DefaultListID, nil
	}

	listID, err := w.svc.preferences.GetActiveList(ctx, w.owner.UserID())
	if err != nil {
		return "", fmt.Errorf("failed to resolve active list: %w", err)
	}
	if listID == "" {
		return models.DefaultListID, nil
	}
	return models.NormalizeListID(listID), nil
}

// SetActiveList normalizes and stores the active list. Guests always use the default list.
func (w *Wishlist) SetActiveList(ctx context.Context, listID string) (string, error) {
	listID = models.NormalizeListID(listID)
	if !w.owner.IsUser() {
		return listID, nil
	}
	if err := w.svc.preferences.SetActiveList(ctx, w.owner.UserID(), listID); err != nil {
		return "", fmt.Errorf("failed to set active list: %w", err)
	}
	return listID, nil
}

func (w *Wishlist) resolveList(ctx context.Context, listID string) (string, error) {
	if strings.TrimSpace(listID) == "" {
		return w.ActiveListID(ctx)
	}
	return models.NormalizeListID(listID), nil
}

// AddItem saves a product, or refreshes its quantity when already saved.
func (w *Wishlist) AddItem(ctx context.Context, productID, variationID int64, quantity int, listID string) (*Result, error) {
	if productID <= 0 || variationID < 0 {
		return nil, errInvalidProduct
	}
	if err := w.validateProduct(ctx, productID, variationID); err != nil {
		return nil, err
	}

	listID, err := w.resolveList(ctx, listID)
	if err != nil {
		return nil, err
	}
	if quantity < 1 {
		quantity = 1
	}

	now := w.svc.now().UTC()
	item := &models.WishlistItem{
		Owner:       w.owner,
		ListID:      listID,
		ProductID:   productID,
		VariationID: variationID,
		Quantity:    quantity,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	created, err := w.svc.items.UpsertItem(ctx, item)
	if errors.Is(err, repository.ErrAlreadyExists) {
		// A concurrent insert won; apply ours as the update.
		created, err = w.svc.items.UpsertItem(ctx, item)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to add product %d: %w", productID, err)
	}

	if _, err := w.svc.ensureList(ctx, w.owner, listID); err != nil {
		return nil, err
	}

	w.invalidate(ctx, listID)
	count, err := w.GetCount(ctx, listID, true)
	if err != nil {
		return nil, err
	}

	if created {
		metrics.ItemsAdded.Inc()
	}
	w.logger.WithFields(logrus.Fields{
		"product_id":   productID,
		"variation_id": variationID,
		"list_id":      listID,
		"created":      created,
	}).Debug("Wishlist item saved")

	return &Result{Success: true, Added: true, Count: count, ListID: listID}, nil
}

// validateProduct checks the product, or the variation when one is given, is sellable.
func (w *Wishlist) validateProduct(ctx context.Context, productID, variationID int64) error {
	if w.svc.catalog == nil {
		return errCatalogUnavailable(nil)
	}

	id := productID
	if variationID > 0 {
		id = variationID
	}

	product, err := w.svc.catalog.Resolve(ctx, id)
	if err != nil {
		return errCatalogUnavailable(err)
	}
	if !product.Sellable() {
		return errProductNotFound(id)
	}
	if variationID > 0 && product.ParentID != 0 && product.ParentID != productID {
		return errProductNotFound(variationID)
	}
	return nil
}

// RemoveItem deletes a saved product. Success is false when it was not saved.
func (w *Wishlist) RemoveItem(ctx context.Context, productID, variationID int64, listID string) (*Result, error) {
	if productID <= 0 || variationID < 0 {
		return nil, errInvalidProduct
	}

	listID, err := w.resolveList(ctx, listID)
	if err != nil {
		return nil, err
	}

	deleted, err := w.svc.items.DeleteItem(ctx, w.owner, listID, productID, variationID)
	if err != nil {
		return nil, fmt.Errorf("failed to remove product %d: %w", productID, err)
	}

	if !deleted {
		count, err := w.GetCount(ctx, listID, false)
		if err != nil {
			return nil, err
		}
		return &Result{Success: false, Count: count, ListID: listID}, nil
	}

	w.invalidate(ctx, listID)
	count, err := w.GetCount(ctx, listID, true)
	if err != nil {
		return nil, err
	}

	metrics.ItemsRemoved.Inc()
	w.logger.WithFields(logrus.Fields{
		"product_id":   productID,
		"variation_id": variationID,
		"list_id":      listID,
	}).Debug("Wishlist item removed")

	return &Result{Success: true, Count: count, ListID: listID}, nil
}

// ToggleItem removes the product when saved and adds it otherwise.
func (w *Wishlist) ToggleItem(ctx context.Context, productID, variationID int64, quantity int, listID string) (*Result, error) {
	listID, err := w.resolveList(ctx, listID)
	if err != nil {
		return nil, err
	}

	present, err := w.HasItem(ctx, productID, variationID, listID)
	if err != nil {
		return nil, err
	}
	if present {
		return w.RemoveItem(ctx, productID, variationID, listID)
	}
	return w.AddItem(ctx, productID, variationID, quantity, listID)
}

// HasItem reports whether the product is saved in the list.
func (w *Wishlist) HasItem(ctx context.Context, productID, variationID int64, listID string) (bool, error) {
	if productID <= 0 || variationID < 0 {
		return false, errInvalidProduct
	}

	listID, err := w.resolveList(ctx, listID)
	if err != nil {
		return false, err
	}

	item, err := w.svc.items.GetItem(ctx, w.owner, listID, productID, variationID)
	if err != nil {
		return false, fmt.Errorf("failed to look up product %d: %w", productID, err)
	}
	return item != nil, nil
}

// GetItems lists the saved items of a list, newest first.
func (w *Wishlist) GetItems(ctx context.Context, listID string) ([]*models.WishlistItem, error) {
	listID, err := w.resolveList(ctx, listID)
	if err != nil {
		return nil, err
	}

	items, err := w.svc.items.GetItems(ctx, w.owner, listID)
	if err != nil {
		return nil, fmt.Errorf("failed to get wishlist items: %w", err)
	}
	if items == nil {
		items = []*models.WishlistItem{}
	}
	return items, nil
}

// GetCount returns the number of items in a list, read through the count cache.
func (w *Wishlist) GetCount(ctx context.Context, listID string, forceRefresh bool) (int, error) {
	listID, err := w.resolveList(ctx, listID)
	if err != nil {
		return 0, err
	}

	useCache := w.svc.settings.CacheEnabled && w.svc.cache != nil
	key := cache.CountKey(w.owner, listID)

	if useCache && !forceRefresh {
		count, ok, err := w.svc.cache.Get(ctx, key)
		switch {
		case err != nil:
			w.logger.WithError(err).Warn("Count cache read failed")
		case ok:
			metrics.CountCacheLookups.WithLabelValues("hit").Inc()
			return count, nil
		default:
			metrics.CountCacheLookups.WithLabelValues("miss").Inc()
		}
	}

	count, err := w.svc.items.CountItems(ctx, w.owner, listID)
	if err != nil {
		return 0, fmt.Errorf("failed to count wishlist items: %w", err)
	}

	if useCache {
		if err := w.svc.cache.Set(ctx, key, count, w.svc.settings.CacheTTL); err != nil {
			w.logger.WithError(err).Warn("Count cache write failed")
		}
	}
	return count, nil
}

// UpdateItemNote stores a sanitized note on a saved item, keeping other metadata.
func (w *Wishlist) UpdateItemNote(ctx context.Context, productID, variationID int64, note, listID string) (bool, error) {
	if productID <= 0 || variationID < 0 {
		return false, errInvalidProduct
	}

	listID, err := w.resolveList(ctx, listID)
	if err != nil {
		return false, err
	}

	item, err := w.svc.items.GetItem(ctx, w.owner, listID, productID, variationID)
	if err != nil {
		return false, fmt.Errorf("failed to look up product %d: %w", productID, err)
	}
	if item == nil {
		return false, errItemNotFound(productID, variationID)
	}

	metadata := models.CloneMetadata(item.Metadata)
	metadata[noteKey] = sanitizeNote(note, w.svc.settings.NoteMaxLength)

	if err := w.svc.items.UpdateItemMetadata(ctx, item.ID, metadata, w.svc.now().UTC()); err != nil {
		return false, fmt.Errorf("failed to update note: %w", err)
	}
	return true, nil
}

// GetLists returns the owner's lists newest first, creating the default list when there is none.
func (w *Wishlist) GetLists(ctx context.Context) ([]*models.WishlistList, error) {
	lists, err := w.svc.lists.GetLists(ctx, w.owner)
	if err != nil {
		return nil, fmt.Errorf("failed to get wishlist lists: %w", err)
	}
	if len(lists) > 0 {
		return lists, nil
	}

	if _, err := w.svc.ensureList(ctx, w.owner, models.DefaultListID); err != nil {
		return nil, err
	}

	lists, err = w.svc.lists.GetLists(ctx, w.owner)
	if err != nil {
		return nil, fmt.Errorf("failed to get wishlist lists: %w", err)
	}
	return lists, nil
}

// CreateList creates a named list with a globally unique slug.
func (w *Wishlist) CreateList(ctx context.Context, title, visibility string) (*models.WishlistList, error) {
	return w.svc.createList(ctx, w.owner, title, models.ParseVisibility(visibility))
}

func (w *Wishlist) invalidate(ctx context.Context, listIDs ...string) {
	w.svc.invalidateCounts(ctx, w.owner, listIDs...)
}
