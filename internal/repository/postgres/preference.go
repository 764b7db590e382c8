package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Kerhoff/wishlist/internal/repository"
)

type preferenceRepository struct {
	db *sql.DB
}

// NewPreferenceRepository creates a new user preference repository
func NewPreferenceRepository(db *sql.DB) repository.PreferenceRepository {
	return &preferenceRepository{db: db}
}

func (r *preferenceRepository) GetActiveList(ctx context.Context, userID int64) (string, error) {
	query := `SELECT active_list_id FROM wishlist_user_preferences WHERE user_id = $1`

	var listID string
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&listID)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("failed to get active list for user %d: %w", userID, err)
	}

	return listID, nil
}

func (r *preferenceRepository) SetActiveList(ctx context.Context, userID int64, listID string) error {
	query := `
		INSERT INTO wishlist_user_preferences (user_id, active_list_id, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET active_list_id = EXCLUDED.active_list_id, updated_at = EXCLUDED.updated_at`

	if _, err := r.db.ExecContext(ctx, query, userID, listID, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to set active list for user %d: %w", userID, err)
	}

	return nil
}
