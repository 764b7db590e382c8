package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Kerhoff/wishlist/internal/models"
	"github.com/Kerhoff/wishlist/internal/repository"
)

type listRepository struct {
	db *sql.DB
}

// NewListRepository creates a new wishlist list repository
func NewListRepository(db *sql.DB) repository.ListRepository {
	return &listRepository{db: db}
}

const listColumns = `id, owner_user_id, owner_session_key, list_key, title, slug, visibility, created_at, updated_at`

func (r *listRepository) EnsureList(ctx context.Context, list *models.WishlistList) (*models.WishlistList, error) {
	userID, key, err := ownerArgs(list.Owner)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure wishlist list: %w", err)
	}

	query := `
		INSERT INTO wishlist_lists (owner_user_id, owner_session_key, list_key, title, slug, visibility, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT ON CONSTRAINT wishlist_lists_unique_key DO NOTHING
		RETURNING ` + listColumns

	created, err := scanList(r.db.QueryRowContext(ctx, query,
		userID,
		key,
		list.Key,
		list.Title,
		list.Slug,
		string(list.Visibility),
		list.CreatedAt,
		list.UpdatedAt,
	))
	if err == nil {
		return created, nil
	}
	if err != sql.ErrNoRows {
		return nil, translate(err, "ensure wishlist list")
	}

	// The owner already had a list under this key.
	existing, err := r.GetListByKey(ctx, list.Owner, list.Key)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("wishlist list %q vanished during ensure", list.Key)
	}
	return existing, nil
}

func (r *listRepository) CreateList(ctx context.Context, list *models.WishlistList) (*models.WishlistList, error) {
	userID, key, err := ownerArgs(list.Owner)
	if err != nil {
		return nil, fmt.Errorf("failed to create wishlist list: %w", err)
	}

	query := `
		INSERT INTO wishlist_lists (owner_user_id, owner_session_key, list_key, title, slug, visibility, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + listColumns

	created, err := scanList(r.db.QueryRowContext(ctx, query,
		userID,
		key,
		list.Key,
		list.Title,
		list.Slug,
		string(list.Visibility),
		list.CreatedAt,
		list.UpdatedAt,
	))
	if err != nil {
		return nil, translate(err, "create wishlist list")
	}

	return created, nil
}

func (r *listRepository) GetListByKey(ctx context.Context, owner models.Owner, key string) (*models.WishlistList, error) {
	userID, sessionKey, err := ownerArgs(owner)
	if err != nil {
		return nil, fmt.Errorf("failed to get wishlist list: %w", err)
	}

	query := `
		SELECT ` + listColumns + `
		FROM wishlist_lists
		WHERE owner_user_id = $1 AND owner_session_key = $2 AND list_key = $3`

	list, err := scanList(r.db.QueryRowContext(ctx, query, userID, sessionKey, key))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get wishlist list by key: %w", err)
	}

	return list, nil
}

func (r *listRepository) GetLists(ctx context.Context, owner models.Owner) ([]*models.WishlistList, error) {
	userID, sessionKey, err := ownerArgs(owner)
	if err != nil {
		return nil, fmt.Errorf("failed to query wishlist lists: %w", err)
	}

	query := `
		SELECT ` + listColumns + `
		FROM wishlist_lists
		WHERE owner_user_id = $1 AND owner_session_key = $2
		ORDER BY created_at DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, query, userID, sessionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to query wishlist lists: %w", err)
	}
	defer rows.Close()

	var lists []*models.WishlistList
	for rows.Next() {
		list, err := scanList(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan wishlist list: %w", err)
		}
		lists = append(lists, list)
	}

	return lists, rows.Err()
}

func (r *listRepository) SlugExists(ctx context.Context, slug string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM wishlist_lists WHERE slug = $1)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, slug).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check wishlist slug: %w", err)
	}

	return exists, nil
}

func (r *listRepository) ReassignLists(ctx context.Context, from, to models.Owner, updatedAt time.Time) (int64, error) {
	fromUser, fromKey, err := ownerArgs(from)
	if err != nil {
		return 0, fmt.Errorf("failed to reassign wishlist lists: %w", err)
	}
	toUser, toKey, err := ownerArgs(to)
	if err != nil {
		return 0, fmt.Errorf("failed to reassign wishlist lists: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Lists the destination already owns under the same key were folded into it.
	dropQuery := `
		DELETE FROM wishlist_lists src
		WHERE src.owner_user_id = $1 AND src.owner_session_key = $2
		  AND EXISTS (
			SELECT 1 FROM wishlist_lists dst
			WHERE dst.owner_user_id = $3 AND dst.owner_session_key = $4 AND dst.list_key = src.list_key
		  )`
	if _, err := tx.ExecContext(ctx, dropQuery, fromUser, fromKey, toUser, toKey); err != nil {
		return 0, fmt.Errorf("failed to drop duplicate wishlist lists: %w", err)
	}

	moveQuery := `
		UPDATE wishlist_lists
		SET owner_user_id = $3, owner_session_key = $4, updated_at = $5
		WHERE owner_user_id = $1 AND owner_session_key = $2`
	result, err := tx.ExecContext(ctx, moveQuery, fromUser, fromKey, toUser, toKey, updatedAt)
	if err != nil {
		return 0, translate(err, "reassign wishlist lists")
	}

	moved, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit list reassignment: %w", err)
	}

	return moved, nil
}

func scanList(row rowScanner) (*models.WishlistList, error) {
	var (
		list       models.WishlistList
		userID     int64
		sessionKey string
		visibility string
	)
	if err := row.Scan(
		&list.ID,
		&userID,
		&sessionKey,
		&list.Key,
		&list.Title,
		&list.Slug,
		&visibility,
		&list.CreatedAt,
		&list.UpdatedAt,
	); err != nil {
		return nil, err
	}

	list.Owner = models.OwnerFromColumns(userID, sessionKey)
	list.Visibility = models.ParseVisibility(visibility)
	return &list, nil
}
