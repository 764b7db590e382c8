// Package memory keeps every wishlist table in process memory. It honours the
// same uniqueness rules as the Postgres schema and backs local runs and tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Kerhoff/wishlist/internal/models"
	"github.com/Kerhoff/wishlist/internal/repository"
)

var errOwnerRequired = errors.New("owner is required")

type itemKey struct {
	listID      string
	owner       models.Owner
	productID   int64
	variationID int64
}

type listKey struct {
	owner models.Owner
	key   string
}

type conversionKey struct {
	userID      int64
	productID   int64
	variationID int64
	orderID     int64
}

// Store implements every repository interface over maps guarded by one mutex.
type Store struct {
	mu sync.RWMutex

	nextItemID       int64
	nextListID       int64
	nextConversionID int64

	items       map[itemKey]*models.WishlistItem
	lists       map[listKey]*models.WishlistList
	slugs       map[string]listKey
	conversions map[conversionKey]*models.ConversionRecord
	tracked     map[int64]models.OrderStatus
	preferences map[int64]string
}

// New returns an empty store.
func New() *Store {
	return &Store{
		items:       make(map[itemKey]*models.WishlistItem),
		lists:       make(map[listKey]*models.WishlistList),
		slugs:       make(map[string]listKey),
		conversions: make(map[conversionKey]*models.ConversionRecord),
		tracked:     make(map[int64]models.OrderStatus),
		preferences: make(map[int64]string),
	}
}

var (
	_ repository.WishlistRepository   = (*Store)(nil)
	_ repository.ListRepository       = (*Store)(nil)
	_ repository.ConversionRepository = (*Store)(nil)
	_ repository.PreferenceRepository = (*Store)(nil)
)

func cloneItem(item *models.WishlistItem) *models.WishlistItem {
	out := *item
	out.Metadata = models.CloneMetadata(item.Metadata)
	return &out
}

func cloneList(list *models.WishlistList) *models.WishlistList {
	out := *list
	return &out
}

func keyOf(item *models.WishlistItem) itemKey {
	return itemKey{
		listID:      item.ListID,
		owner:       item.Owner,
		productID:   item.ProductID,
		variationID: item.VariationID,
	}
}

// UpsertItem inserts or updates quantity and updated_at.
func (s *Store) UpsertItem(_ context.Context, item *models.WishlistItem) (bool, error) {
	return s.upsert(item, func(existing, incoming *models.WishlistItem) {
		existing.Quantity = incoming.Quantity
	})
}

// MergeItem inserts or raises quantity to max(existing, incoming, 1).
func (s *Store) MergeItem(_ context.Context, item *models.WishlistItem) (bool, error) {
	return s.upsert(item, func(existing, incoming *models.WishlistItem) {
		existing.Quantity = max(existing.Quantity, incoming.Quantity, 1)
	})
}

func (s *Store) upsert(item *models.WishlistItem, onConflict func(existing, incoming *models.WishlistItem)) (bool, error) {
	if item.Owner.IsZero() {
		return false, fmt.Errorf("failed to upsert wishlist item: %w", errOwnerRequired)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := keyOf(item)
	if existing, ok := s.items[key]; ok {
		onConflict(existing, item)
		existing.UpdatedAt = item.UpdatedAt
		item.ID = existing.ID
		item.CreatedAt = existing.CreatedAt
		item.Metadata = models.CloneMetadata(existing.Metadata)
		return false, nil
	}

	s.nextItemID++
	item.ID = s.nextItemID
	if item.Metadata == nil {
		item.Metadata = map[string]any{}
	}
	s.items[key] = cloneItem(item)
	return true, nil
}

// GetItem returns nil, nil when the row is absent.
func (s *Store) GetItem(_ context.Context, owner models.Owner, listID string, productID, variationID int64) (*models.WishlistItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[itemKey{listID: listID, owner: owner, productID: productID, variationID: variationID}]
	if !ok {
		return nil, nil
	}
	return cloneItem(item), nil
}

// GetItems returns the owner's items in a list, newest first.
func (s *Store) GetItems(_ context.Context, owner models.Owner, listID string) ([]*models.WishlistItem, error) {
	items := s.filterItems(func(it *models.WishlistItem) bool {
		return it.Owner == owner && it.ListID == listID
	})
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID > items[j].ID
	})
	return items, nil
}

// GetOwnerItems returns the owner's items across lists, oldest first.
func (s *Store) GetOwnerItems(_ context.Context, owner models.Owner) ([]*models.WishlistItem, error) {
	items := s.filterItems(func(it *models.WishlistItem) bool { return it.Owner == owner })
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (s *Store) filterItems(keep func(*models.WishlistItem) bool) []*models.WishlistItem {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.WishlistItem
	for _, item := range s.items {
		if keep(item) {
			out = append(out, cloneItem(item))
		}
	}
	return out
}

// CountItems counts the owner's items in a list.
func (s *Store) CountItems(_ context.Context, owner models.Owner, listID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for key := range s.items {
		if key.owner == owner && key.listID == listID {
			count++
		}
	}
	return count, nil
}

// UpdateItemMetadata replaces the metadata blob of one item.
func (s *Store) UpdateItemMetadata(_ context.Context, itemID int64, metadata map[string]any, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, item := range s.items {
		if item.ID == itemID {
			item.Metadata = models.CloneMetadata(metadata)
			item.UpdatedAt = updatedAt
			return nil
		}
	}
	return fmt.Errorf("wishlist item with ID %d not found", itemID)
}

// DeleteItem removes one row and reports whether it existed.
func (s *Store) DeleteItem(_ context.Context, owner models.Owner, listID string, productID, variationID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := itemKey{listID: listID, owner: owner, productID: productID, variationID: variationID}
	if _, ok := s.items[key]; !ok {
		return false, nil
	}
	delete(s.items, key)
	return true, nil
}

// DeleteOwnerItems removes every row of an owner.
func (s *Store) DeleteOwnerItems(_ context.Context, owner models.Owner) (int64, error) {
	if owner.IsZero() {
		return 0, fmt.Errorf("failed to delete wishlist items: %w", errOwnerRequired)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for key := range s.items {
		if key.owner == owner {
			delete(s.items, key)
			n++
		}
	}
	return n, nil
}

// PurgeGuestItems removes guest rows last touched before the cutoff.
func (s *Store) PurgeGuestItems(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for key, item := range s.items {
		if key.owner.IsGuest() && item.UpdatedAt.Before(before) {
			delete(s.items, key)
			n++
		}
	}
	return n, nil
}

// SavedProductIDs lists distinct products a user saved across lists.
func (s *Store) SavedProductIDs(_ context.Context, userID int64) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[int64]struct{})
	var ids []int64
	for key := range s.items {
		if !key.owner.IsUser() || key.owner.UserID() != userID {
			continue
		}
		if _, ok := seen[key.productID]; ok {
			continue
		}
		seen[key.productID] = struct{}{}
		ids = append(ids, key.productID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// EnsureList inserts unless the owner already has the key.
func (s *Store) EnsureList(_ context.Context, list *models.WishlistList) (*models.WishlistList, error) {
	if list.Owner.IsZero() {
		return nil, fmt.Errorf("failed to ensure wishlist list: %w", errOwnerRequired)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.lists[listKey{owner: list.Owner, key: list.Key}]; ok {
		return cloneList(existing), nil
	}
	return s.insertList(list)
}

// CreateList inserts a new list; key or slug collisions return ErrAlreadyExists.
func (s *Store) CreateList(_ context.Context, list *models.WishlistList) (*models.WishlistList, error) {
	if list.Owner.IsZero() {
		return nil, fmt.Errorf("failed to create wishlist list: %w", errOwnerRequired)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.lists[listKey{owner: list.Owner, key: list.Key}]; ok {
		return nil, fmt.Errorf("failed to create wishlist list: %w", repository.ErrAlreadyExists)
	}
	return s.insertList(list)
}

func (s *Store) insertList(list *models.WishlistList) (*models.WishlistList, error) {
	if _, taken := s.slugs[list.Slug]; taken {
		return nil, fmt.Errorf("failed to create wishlist list: %w", repository.ErrAlreadyExists)
	}

	s.nextListID++
	stored := cloneList(list)
	stored.ID = s.nextListID
	key := listKey{owner: list.Owner, key: list.Key}
	s.lists[key] = stored
	s.slugs[stored.Slug] = key
	return cloneList(stored), nil
}

// GetListByKey returns nil, nil when the owner has no such list.
func (s *Store) GetListByKey(_ context.Context, owner models.Owner, key string) (*models.WishlistList, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list, ok := s.lists[listKey{owner: owner, key: key}]
	if !ok {
		return nil, nil
	}
	return cloneList(list), nil
}

// GetLists returns the owner's lists, newest first.
func (s *Store) GetLists(_ context.Context, owner models.Owner) ([]*models.WishlistList, error) {
	s.mu.RLock()
	var lists []*models.WishlistList
	for key, list := range s.lists {
		if key.owner == owner {
			lists = append(lists, cloneList(list))
		}
	}
	s.mu.RUnlock()

	sort.Slice(lists, func(i, j int) bool {
		if !lists[i].CreatedAt.Equal(lists[j].CreatedAt) {
			return lists[i].CreatedAt.After(lists[j].CreatedAt)
		}
		return lists[i].ID > lists[j].ID
	})
	return lists, nil
}

// SlugExists checks the global slug index.
func (s *Store) SlugExists(_ context.Context, slug string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.slugs[slug]
	return ok, nil
}

// ReassignLists moves lists between owners, dropping ones the destination already has.
func (s *Store) ReassignLists(_ context.Context, from, to models.Owner, updatedAt time.Time) (int64, error) {
	if from.IsZero() || to.IsZero() {
		return 0, fmt.Errorf("failed to reassign wishlist lists: %w", errOwnerRequired)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var moved int64
	for key, list := range s.lists {
		if key.owner != from {
			continue
		}
		delete(s.lists, key)
		dest := listKey{owner: to, key: key.key}
		if _, exists := s.lists[dest]; exists {
			delete(s.slugs, list.Slug)
			continue
		}
		list.Owner = to
		list.UpdatedAt = updatedAt
		s.lists[dest] = list
		s.slugs[list.Slug] = dest
		moved++
	}
	return moved, nil
}

// UpsertConversion replaces the record keyed by (user, product, variation, order).
func (s *Store) UpsertConversion(_ context.Context, rec *models.ConversionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := conversionKey{userID: rec.UserID, productID: rec.ProductID, variationID: rec.VariationID, orderID: rec.OrderID}
	if existing, ok := s.conversions[key]; ok {
		existing.Quantity = rec.Quantity
		existing.ItemTotal = rec.ItemTotal
		rec.ID = existing.ID
		rec.ConvertedAt = existing.ConvertedAt
		return nil
	}

	s.nextConversionID++
	rec.ID = s.nextConversionID
	stored := *rec
	s.conversions[key] = &stored
	return nil
}

// ClaimOrder flags the order as tracked unless it already is.
func (s *Store) ClaimOrder(_ context.Context, orderID int64, status models.OrderStatus, _ time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tracked[orderID]; ok {
		return false, nil
	}
	s.tracked[orderID] = status
	return true, nil
}

// ReleaseOrder drops the tracked flag.
func (s *Store) ReleaseOrder(_ context.Context, orderID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tracked, orderID)
	return nil
}

// IsOrderTracked reports whether the order was claimed.
func (s *Store) IsOrderTracked(_ context.Context, orderID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.tracked[orderID]
	return ok, nil
}

// GetOrderConversions lists records for one order by id.
func (s *Store) GetOrderConversions(_ context.Context, orderID int64) ([]*models.ConversionRecord, error) {
	s.mu.RLock()
	var records []*models.ConversionRecord
	for _, rec := range s.conversions {
		if rec.OrderID == orderID {
			copied := *rec
			records = append(records, &copied)
		}
	}
	s.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return records, nil
}

// ProductStats joins per-product adds with conversions inside the range.
func (s *Store) ProductStats(_ context.Context, rng models.StatsRange, limit int) ([]*models.ProductStat, error) {
	s.mu.RLock()
	byProduct := make(map[int64]*models.ProductStat)
	for _, item := range s.items {
		if !rng.Contains(item.CreatedAt) {
			continue
		}
		stat, ok := byProduct[item.ProductID]
		if !ok {
			stat = &models.ProductStat{ProductID: item.ProductID}
			byProduct[item.ProductID] = stat
		}
		stat.Adds++
	}
	for _, rec := range s.conversions {
		if !rng.Contains(rec.ConvertedAt) {
			continue
		}
		if stat, ok := byProduct[rec.ProductID]; ok {
			stat.Conversions++
			stat.Revenue += rec.ItemTotal
		}
	}
	s.mu.RUnlock()

	stats := make([]*models.ProductStat, 0, len(byProduct))
	for _, stat := range byProduct {
		stats = append(stats, stat)
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Adds != stats[j].Adds {
			return stats[i].Adds > stats[j].Adds
		}
		return stats[i].ProductID < stats[j].ProductID
	})
	if limit > 0 && len(stats) > limit {
		stats = stats[:limit]
	}
	return stats, nil
}

// Summary totals adds and conversions inside the range.
func (s *Store) Summary(_ context.Context, rng models.StatsRange) (*models.StatsSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := &models.StatsSummary{}
	for _, item := range s.items {
		if rng.Contains(item.CreatedAt) {
			summary.TotalAdds++
		}
	}
	users := make(map[int64]struct{})
	for _, rec := range s.conversions {
		if !rng.Contains(rec.ConvertedAt) {
			continue
		}
		summary.Conversions++
		summary.Revenue += rec.ItemTotal
		users[rec.UserID] = struct{}{}
	}
	summary.PurchasingUsers = len(users)
	return summary, nil
}

// GetActiveList returns "" when unset.
func (s *Store) GetActiveList(_ context.Context, userID int64) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.preferences[userID], nil
}

// SetActiveList stores the user's active list.
func (s *Store) SetActiveList(_ context.Context, userID int64, listID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.preferences[userID] = listID
	return nil
}
