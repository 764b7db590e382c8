package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Kerhoff/wishlist/internal/models"
	"github.com/Kerhoff/wishlist/internal/repository"
)

type wishlistRepository struct {
	db *sql.DB
}

// NewWishlistRepository creates a new saved item repository
func NewWishlistRepository(db *sql.DB) repository.WishlistRepository {
	return &wishlistRepository{db: db}
}

const itemColumns = `id, owner_user_id, owner_session_key, list_id, product_id, variation_id, quantity, created_at, updated_at, metadata`

func (r *wishlistRepository) UpsertItem(ctx context.Context, item *models.WishlistItem) (bool, error) {
	query := `
		INSERT INTO wishlist_items (owner_user_id, owner_session_key, list_id, product_id, variation_id, quantity, created_at, updated_at, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb)
		ON CONFLICT ON CONSTRAINT wishlist_items_unique_entry
		DO UPDATE SET quantity = EXCLUDED.quantity, updated_at = EXCLUDED.updated_at
		RETURNING id, created_at, metadata, (xmax = 0) AS inserted`

	return r.upsert(ctx, query, item, "upsert wishlist item")
}

func (r *wishlistRepository) MergeItem(ctx context.Context, item *models.WishlistItem) (bool, error) {
	query := `
		INSERT INTO wishlist_items (owner_user_id, owner_session_key, list_id, product_id, variation_id, quantity, created_at, updated_at, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb)
		ON CONFLICT ON CONSTRAINT wishlist_items_unique_entry
		DO UPDATE SET quantity = GREATEST(wishlist_items.quantity, EXCLUDED.quantity, 1), updated_at = EXCLUDED.updated_at
		RETURNING id, created_at, metadata, (xmax = 0) AS inserted`

	return r.upsert(ctx, query, item, "merge wishlist item")
}

func (r *wishlistRepository) upsert(ctx context.Context, query string, item *models.WishlistItem, action string) (bool, error) {
	userID, key, err := ownerArgs(item.Owner)
	if err != nil {
		return false, fmt.Errorf("failed to %s: %w", action, err)
	}
	metadata, err := encodeMetadata(item.Metadata)
	if err != nil {
		return false, err
	}

	var (
		rawMeta  []byte
		inserted bool
	)
	err = r.db.QueryRowContext(ctx, query,
		userID,
		key,
		item.ListID,
		item.ProductID,
		item.VariationID,
		item.Quantity,
		item.CreatedAt,
		item.UpdatedAt,
		metadata,
	).Scan(&item.ID, &item.CreatedAt, &rawMeta, &inserted)
	if err != nil {
		return false, translate(err, action)
	}

	if item.Metadata, err = decodeMetadata(rawMeta); err != nil {
		return false, err
	}
	return inserted, nil
}

func (r *wishlistRepository) GetItem(ctx context.Context, owner models.Owner, listID string, productID, variationID int64) (*models.WishlistItem, error) {
	userID, key, err := ownerArgs(owner)
	if err != nil {
		return nil, fmt.Errorf("failed to get wishlist item: %w", err)
	}

	query := `
		SELECT ` + itemColumns + `
		FROM wishlist_items
		WHERE owner_user_id = $1 AND owner_session_key = $2 AND list_id = $3
		  AND product_id = $4 AND variation_id = $5`

	item, err := scanItem(r.db.QueryRowContext(ctx, query, userID, key, listID, productID, variationID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get wishlist item: %w", err)
	}

	return item, nil
}

func (r *wishlistRepository) GetItems(ctx context.Context, owner models.Owner, listID string) ([]*models.WishlistItem, error) {
	userID, key, err := ownerArgs(owner)
	if err != nil {
		return nil, fmt.Errorf("failed to query wishlist items: %w", err)
	}

	query := `
		SELECT ` + itemColumns + `
		FROM wishlist_items
		WHERE owner_user_id = $1 AND owner_session_key = $2 AND list_id = $3
		ORDER BY created_at DESC, id DESC`

	return r.queryItems(ctx, query, userID, key, listID)
}

func (r *wishlistRepository) GetOwnerItems(ctx context.Context, owner models.Owner) ([]*models.WishlistItem, error) {
	userID, key, err := ownerArgs(owner)
	if err != nil {
		return nil, fmt.Errorf("failed to query wishlist items: %w", err)
	}

	query := `
		SELECT ` + itemColumns + `
		FROM wishlist_items
		WHERE owner_user_id = $1 AND owner_session_key = $2
		ORDER BY created_at ASC, id ASC`

	return r.queryItems(ctx, query, userID, key)
}

func (r *wishlistRepository) queryItems(ctx context.Context, query string, args ...any) ([]*models.WishlistItem, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query wishlist items: %w", err)
	}
	defer rows.Close()

	var items []*models.WishlistItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan wishlist item: %w", err)
		}
		items = append(items, item)
	}

	return items, rows.Err()
}

func (r *wishlistRepository) CountItems(ctx context.Context, owner models.Owner, listID string) (int, error) {
	userID, key, err := ownerArgs(owner)
	if err != nil {
		return 0, fmt.Errorf("failed to count wishlist items: %w", err)
	}

	query := `
		SELECT COUNT(*)
		FROM wishlist_items
		WHERE owner_user_id = $1 AND owner_session_key = $2 AND list_id = $3`

	var count int
	if err := r.db.QueryRowContext(ctx, query, userID, key, listID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count wishlist items: %w", err)
	}

	return count, nil
}

func (r *wishlistRepository) UpdateItemMetadata(ctx context.Context, itemID int64, metadata map[string]any, updatedAt time.Time) error {
	encoded, err := encodeMetadata(metadata)
	if err != nil {
		return err
	}

	query := `
		UPDATE wishlist_items
		SET metadata = $2::jsonb, updated_at = $3
		WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, itemID, encoded, updatedAt)
	if err != nil {
		return fmt.Errorf("failed to update wishlist item metadata: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("wishlist item with ID %d not found", itemID)
	}

	return nil
}

func (r *wishlistRepository) DeleteItem(ctx context.Context, owner models.Owner, listID string, productID, variationID int64) (bool, error) {
	userID, key, err := ownerArgs(owner)
	if err != nil {
		return false, fmt.Errorf("failed to delete wishlist item: %w", err)
	}

	query := `
		DELETE FROM wishlist_items
		WHERE owner_user_id = $1 AND owner_session_key = $2 AND list_id = $3
		  AND product_id = $4 AND variation_id = $5`

	result, err := r.db.ExecContext(ctx, query, userID, key, listID, productID, variationID)
	if err != nil {
		return false, fmt.Errorf("failed to delete wishlist item: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

func (r *wishlistRepository) DeleteOwnerItems(ctx context.Context, owner models.Owner) (int64, error) {
	userID, key, err := ownerArgs(owner)
	if err != nil {
		return 0, fmt.Errorf("failed to delete wishlist items: %w", err)
	}

	query := `DELETE FROM wishlist_items WHERE owner_user_id = $1 AND owner_session_key = $2`

	result, err := r.db.ExecContext(ctx, query, userID, key)
	if err != nil {
		return 0, fmt.Errorf("failed to delete wishlist items: %w", err)
	}

	return result.RowsAffected()
}

func (r *wishlistRepository) PurgeGuestItems(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM wishlist_items WHERE owner_user_id = 0 AND updated_at < $1`

	result, err := r.db.ExecContext(ctx, query, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge guest wishlist items: %w", err)
	}

	return result.RowsAffected()
}

func (r *wishlistRepository) SavedProductIDs(ctx context.Context, userID int64) ([]int64, error) {
	query := `
		SELECT DISTINCT product_id
		FROM wishlist_items
		WHERE owner_user_id = $1`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query saved products: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan saved product: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*models.WishlistItem, error) {
	var (
		item    models.WishlistItem
		userID  int64
		key     string
		rawMeta []byte
	)
	if err := row.Scan(
		&item.ID,
		&userID,
		&key,
		&item.ListID,
		&item.ProductID,
		&item.VariationID,
		&item.Quantity,
		&item.CreatedAt,
		&item.UpdatedAt,
		&rawMeta,
	); err != nil {
		return nil, err
	}

	item.Owner = models.OwnerFromColumns(userID, key)
	metadata, err := decodeMetadata(rawMeta)
	if err != nil {
		return nil, err
	}
	item.Metadata = metadata
	return &item, nil
}
