package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/wishlist/internal/metrics"
	"github.com/Kerhoff/wishlist/internal/models"
	"github.com/Kerhoff/wishlist/internal/repository"
)

// ConversionNotifier receives a summary of every order that produced conversions.
type ConversionNotifier interface {
	NotifyConversions(ctx context.Context, notice models.ConversionNotice) error
}

// Tracker attributes purchases to earlier saves and serves conversion stats.
type Tracker struct {
	items       repository.WishlistRepository
	conversions repository.ConversionRepository
	notifier    ConversionNotifier
	logger      *logrus.Logger
	now         func() time.Time
}

// HandleOrderEvent records conversions for an order that reached processing
// or completed. Each order is tracked at most once.
func (t *Tracker) HandleOrderEvent(ctx context.Context, event models.OrderEvent) ([]*models.ConversionRecord, error) {
	status := models.ParseOrderStatus(string(event.Status))
	logger := t.logger.WithFields(logrus.Fields{
		"order_id": event.OrderID,
		"user_id":  event.UserID,
		"status":   status,
	})

	if !status.Trackable() {
		logger.Debug("Order status not tracked")
		return nil, nil
	}
	if event.OrderID <= 0 {
		return nil, validationError(CodeInvalidOrder, "a valid order id is required")
	}
	if event.UserID <= 0 {
		logger.Debug("Guest order, nothing to attribute")
		return nil, nil
	}

	claimed, err := t.conversions.ClaimOrder(ctx, event.OrderID, status, t.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to claim order %d: %w", event.OrderID, err)
	}
	if !claimed {
		logger.Debug("Order already tracked")
		return nil, nil
	}

	records, err := t.attribute(ctx, event)
	if err != nil {
		if releaseErr := t.conversions.ReleaseOrder(ctx, event.OrderID); releaseErr != nil {
			logger.WithError(releaseErr).Error("Failed to release order claim")
		}
		return nil, err
	}

	if len(records) > 0 {
		var revenue float64
		for _, rec := range records {
			revenue += rec.ItemTotal
		}
		metrics.Conversions.Add(float64(len(records)))
		metrics.ConversionRevenue.Add(revenue)
		logger.WithFields(logrus.Fields{
			"conversions": len(records),
			"revenue":     revenue,
		}).Info("Wishlist conversions recorded")

		t.notify(ctx, models.ConversionNotice{
			OrderID: event.OrderID,
			UserID:  event.UserID,
			Status:  status,
			Records: records,
		})
	}

	return records, nil
}

func (t *Tracker) attribute(ctx context.Context, event models.OrderEvent) ([]*models.ConversionRecord, error) {
	saved, err := t.items.SavedProductIDs(ctx, event.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load saved products for user %d: %w", event.UserID, err)
	}
	if len(saved) == 0 {
		return nil, nil
	}

	savedSet := make(map[int64]struct{}, len(saved))
	for _, id := range saved {
		savedSet[id] = struct{}{}
	}

	now := t.now().UTC()
	var records []*models.ConversionRecord
	for _, line := range event.Items {
		// Matching is by product id only; the purchased variation is recorded as bought.
		if _, ok := savedSet[line.ProductID]; !ok {
			continue
		}

		quantity := line.Quantity
		if quantity < 1 {
			quantity = 1
		}
		rec := &models.ConversionRecord{
			UserID:      event.UserID,
			ProductID:   line.ProductID,
			VariationID: line.VariationID,
			OrderID:     event.OrderID,
			Quantity:    quantity,
			ItemTotal:   line.LineTotal,
			ConvertedAt: now,
		}
		if err := t.conversions.UpsertConversion(ctx, rec); err != nil {
			return nil, fmt.Errorf("failed to record conversion for product %d: %w", line.ProductID, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func (t *Tracker) notify(ctx context.Context, notice models.ConversionNotice) {
	if t.notifier == nil {
		return
	}
	if err := t.notifier.NotifyConversions(ctx, notice); err != nil {
		t.logger.WithError(err).WithField("order_id", notice.OrderID).Warn("Failed to send conversion notice")
	}
}

// IsOrderTracked reports whether conversions were already attributed for the order.
func (t *Tracker) IsOrderTracked(ctx context.Context, orderID int64) (bool, error) {
	tracked, err := t.conversions.IsOrderTracked(ctx, orderID)
	if err != nil {
		return false, fmt.Errorf("failed to check order %d: %w", orderID, err)
	}
	return tracked, nil
}

// OrderConversions returns every conversion recorded for the order, across deliveries.
func (t *Tracker) OrderConversions(ctx context.Context, orderID int64) ([]*models.ConversionRecord, error) {
	records, err := t.conversions.GetOrderConversions(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversions for order %d: %w", orderID, err)
	}
	return records, nil
}

// ProductStats returns per-product adds, conversions and revenue, most saved first.
func (t *Tracker) ProductStats(ctx context.Context, rng models.StatsRange) ([]*models.ProductStat, error) {
	if err := validateRange(rng); err != nil {
		return nil, err
	}

	stats, err := t.conversions.ProductStats(ctx, rng, productStatsLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to get product stats: %w", err)
	}
	if stats == nil {
		stats = []*models.ProductStat{}
	}
	return stats, nil
}

// StatsSummary totals adds and conversions and derives the conversion rate in percent.
func (t *Tracker) StatsSummary(ctx context.Context, rng models.StatsRange) (*models.StatsSummary, error) {
	if err := validateRange(rng); err != nil {
		return nil, err
	}

	summary, err := t.conversions.Summary(ctx, rng)
	if err != nil {
		return nil, fmt.Errorf("failed to get stats summary: %w", err)
	}
	summary.ConversionRate = conversionRate(summary.Conversions, summary.TotalAdds)
	return summary, nil
}

func conversionRate(conversions, adds int) float64 {
	if adds <= 0 {
		return 0
	}
	return math.Round(float64(conversions)/float64(adds)*100*100) / 100
}

func validateRange(rng models.StatsRange) error {
	if rng.From != nil && rng.To != nil && rng.From.After(*rng.To) {
		return validationError(CodeInvalidRange, "date_from must not be after date_to")
	}
	return nil
}
