package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Kerhoff/wishlist/internal/models"
	"github.com/Kerhoff/wishlist/internal/repository"
)

type conversionRepository struct {
	db *sql.DB
}

// NewConversionRepository creates a new conversion repository
func NewConversionRepository(db *sql.DB) repository.ConversionRepository {
	return &conversionRepository{db: db}
}

func (r *conversionRepository) UpsertConversion(ctx context.Context, rec *models.ConversionRecord) error {
	query := `
		INSERT INTO wishlist_conversions (user_id, product_id, variation_id, order_id, quantity, item_total, converted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT ON CONSTRAINT wishlist_conversions_unique_line
		DO UPDATE SET quantity = EXCLUDED.quantity, item_total = EXCLUDED.item_total
		RETURNING id, converted_at`

	err := r.db.QueryRowContext(ctx, query,
		rec.UserID,
		rec.ProductID,
		rec.VariationID,
		rec.OrderID,
		rec.Quantity,
		rec.ItemTotal,
		rec.ConvertedAt,
	).Scan(&rec.ID, &rec.ConvertedAt)
	if err != nil {
		return translate(err, "record conversion")
	}

	return nil
}

func (r *conversionRepository) ClaimOrder(ctx context.Context, orderID int64, status models.OrderStatus, at time.Time) (bool, error) {
	query := `
		INSERT INTO wishlist_tracked_orders (order_id, status, tracked_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (order_id) DO NOTHING`

	result, err := r.db.ExecContext(ctx, query, orderID, string(status), at)
	if err != nil {
		return false, fmt.Errorf("failed to claim order %d: %w", orderID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected == 1, nil
}

func (r *conversionRepository) ReleaseOrder(ctx context.Context, orderID int64) error {
	query := `DELETE FROM wishlist_tracked_orders WHERE order_id = $1`

	if _, err := r.db.ExecContext(ctx, query, orderID); err != nil {
		return fmt.Errorf("failed to release order %d: %w", orderID, err)
	}

	return nil
}

func (r *conversionRepository) IsOrderTracked(ctx context.Context, orderID int64) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM wishlist_tracked_orders WHERE order_id = $1)`

	var tracked bool
	if err := r.db.QueryRowContext(ctx, query, orderID).Scan(&tracked); err != nil {
		return false, fmt.Errorf("failed to check order %d: %w", orderID, err)
	}

	return tracked, nil
}

func (r *conversionRepository) GetOrderConversions(ctx context.Context, orderID int64) ([]*models.ConversionRecord, error) {
	query := `
		SELECT id, user_id, product_id, variation_id, order_id, quantity, item_total, converted_at
		FROM wishlist_conversions
		WHERE order_id = $1
		ORDER BY id ASC`

	rows, err := r.db.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query order conversions: %w", err)
	}
	defer rows.Close()

	var records []*models.ConversionRecord
	for rows.Next() {
		rec := &models.ConversionRecord{}
		if err := rows.Scan(
			&rec.ID,
			&rec.UserID,
			&rec.ProductID,
			&rec.VariationID,
			&rec.OrderID,
			&rec.Quantity,
			&rec.ItemTotal,
			&rec.ConvertedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan conversion: %w", err)
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

func (r *conversionRepository) ProductStats(ctx context.Context, rng models.StatsRange, limit int) ([]*models.ProductStat, error) {
	query := `
		WITH adds AS (
			SELECT product_id, COUNT(*) AS add_count
			FROM wishlist_items
			WHERE ($1::timestamptz IS NULL OR created_at >= $1)
			  AND ($2::timestamptz IS NULL OR created_at <= $2)
			GROUP BY product_id
		), conv AS (
			SELECT product_id, COUNT(*) AS conversions, COALESCE(SUM(item_total), 0) AS revenue
			FROM wishlist_conversions
			WHERE ($1::timestamptz IS NULL OR converted_at >= $1)
			  AND ($2::timestamptz IS NULL OR converted_at <= $2)
			GROUP BY product_id
		)
		SELECT a.product_id, a.add_count, COALESCE(c.conversions, 0), COALESCE(c.revenue, 0)
		FROM adds a
		LEFT JOIN conv c ON c.product_id = a.product_id
		ORDER BY a.add_count DESC, a.product_id ASC
		LIMIT $3`

	rows, err := r.db.QueryContext(ctx, query, nullTime(rng.From), nullTime(rng.To), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query product stats: %w", err)
	}
	defer rows.Close()

	var stats []*models.ProductStat
	for rows.Next() {
		stat := &models.ProductStat{}
		if err := rows.Scan(&stat.ProductID, &stat.Adds, &stat.Conversions, &stat.Revenue); err != nil {
			return nil, fmt.Errorf("failed to scan product stat: %w", err)
		}
		stats = append(stats, stat)
	}

	return stats, rows.Err()
}

func (r *conversionRepository) Summary(ctx context.Context, rng models.StatsRange) (*models.StatsSummary, error) {
	summary := &models.StatsSummary{}

	addsQuery := `
		SELECT COUNT(*)
		FROM wishlist_items
		WHERE ($1::timestamptz IS NULL OR created_at >= $1)
		  AND ($2::timestamptz IS NULL OR created_at <= $2)`
	if err := r.db.QueryRowContext(ctx, addsQuery, nullTime(rng.From), nullTime(rng.To)).Scan(&summary.TotalAdds); err != nil {
		return nil, fmt.Errorf("failed to count wishlist adds: %w", err)
	}

	convQuery := `
		SELECT COUNT(*), COALESCE(SUM(item_total), 0), COUNT(DISTINCT user_id)
		FROM wishlist_conversions
		WHERE ($1::timestamptz IS NULL OR converted_at >= $1)
		  AND ($2::timestamptz IS NULL OR converted_at <= $2)`
	err := r.db.QueryRowContext(ctx, convQuery, nullTime(rng.From), nullTime(rng.To)).Scan(
		&summary.Conversions,
		&summary.Revenue,
		&summary.PurchasingUsers,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to summarise conversions: %w", err)
	}

	return summary, nil
}
