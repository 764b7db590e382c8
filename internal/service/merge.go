package service

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/wishlist/internal/metrics"
	"github.com/Kerhoff/wishlist/internal/models"
)

// MergeResult counts what happened to each guest item.
type MergeResult struct {
	// Merged items already existed for the user and had their quantity raised.
	Merged int `json:"merged"`
	// Inserted items were copied into the user's scope.
	Inserted int `json:"inserted"`
	// Skipped items carried no valid product and were dropped.
	Skipped int `json:"skipped"`
}

// MergeGuestItems moves every item and list of the guest session into the
// user's scope. Guest rows are deleted only after every item merged, so a
// failed run can be repeated. The guest identity is cleared last.
func (w *Wishlist) MergeGuestItems(ctx context.Context, userID int64, sessionKey string) (*MergeResult, error) {
	if userID <= 0 {
		return nil, errInvalidUser
	}
	result := &MergeResult{}

	guest := models.GuestOwner(sessionKey)
	if guest.IsZero() {
		return result, nil
	}
	user := models.UserOwner(userID)
	logger := w.logger.WithFields(logrus.Fields{
		"user_id": userID,
		"guest":   guest.String(),
	})

	items, err := w.svc.items.GetOwnerItems(ctx, guest)
	if err != nil {
		return nil, fmt.Errorf("failed to load guest items: %w", err)
	}

	now := w.svc.now().UTC()
	touched := []string{models.DefaultListID}
	var merr *multierror.Error
	for _, item := range items {
		if item.ProductID <= 0 {
			result.Skipped++
			continue
		}

		incoming := &models.WishlistItem{
			Owner:       user,
			ListID:      item.ListID,
			ProductID:   item.ProductID,
			VariationID: item.VariationID,
			Quantity:    item.Quantity,
			CreatedAt:   now,
			UpdatedAt:   now,
			Metadata:    models.CloneMetadata(item.Metadata),
		}
		created, err := w.svc.items.MergeItem(ctx, incoming)
		if err != nil {
			merr = multierror.Append(merr, fmt.Errorf("product %d in list %q: %w", item.ProductID, item.ListID, err))
			continue
		}
		if created {
			result.Inserted++
		} else {
			result.Merged++
		}
		touched = append(touched, item.ListID)
	}
	if err := merr.ErrorOrNil(); err != nil {
		metrics.GuestMerges.WithLabelValues("failed").Inc()
		logger.WithError(err).Error("Guest merge incomplete, guest rows kept")
		return result, fmt.Errorf("failed to merge guest items: %w", err)
	}

	if _, err := w.svc.lists.ReassignLists(ctx, guest, user, now); err != nil {
		return result, fmt.Errorf("failed to reassign guest lists: %w", err)
	}
	for _, listID := range touched[1:] {
		if _, err := w.svc.ensureList(ctx, user, listID); err != nil {
			return result, err
		}
	}

	if _, err := w.svc.items.DeleteOwnerItems(ctx, guest); err != nil {
		return result, fmt.Errorf("failed to delete guest items: %w", err)
	}

	w.svc.invalidateCounts(ctx, user, touched...)
	w.svc.invalidateCounts(ctx, guest, touched...)

	if w.identity != nil {
		w.identity.Clear()
	}

	metrics.GuestMerges.WithLabelValues("merged").Inc()
	logger.WithFields(logrus.Fields{
		"merged":   result.Merged,
		"inserted": result.Inserted,
		"skipped":  result.Skipped,
	}).Info("Guest wishlist merged")

	return result, nil
}
