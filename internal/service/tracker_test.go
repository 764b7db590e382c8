package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kerhoff/wishlist/internal/models"
	"github.com/Kerhoff/wishlist/internal/repository"
)

type recordingNotifier struct {
	notices []models.ConversionNotice
	err     error
}

func (r *recordingNotifier) NotifyConversions(_ context.Context, notice models.ConversionNotice) error {
	r.notices = append(r.notices, notice)
	return r.err
}

// brokenConversions fails every UpsertConversion.
type brokenConversions struct {
	repository.ConversionRepository
}

func (brokenConversions) UpsertConversion(context.Context, *models.ConversionRecord) error {
	return errors.New("disk full")
}

func order501(status models.OrderStatus) models.OrderEvent {
	return models.OrderEvent{
		OrderID: 501,
		UserID:  7,
		Status:  status,
		Items: []models.OrderLineItem{
			{ProductID: 42, Quantity: 1, LineTotal: 19.99},
		},
	}
}

func TestScenarioB_ProcessingThenCompleted(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, DefaultSettings())
	tracker := env.svc.Tracker()

	_, err := env.user(t, 7).AddItem(ctx, 42, 0, 1, "")
	require.NoError(t, err)

	records, err := tracker.HandleOrderEvent(ctx, order501(models.OrderStatusProcessing))
	require.NoError(t, err)
	require.Len(t, records, 1)

	stats, err := tracker.ProductStats(ctx, models.StatsRange{})
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, int64(42), stats[0].ProductID)
	assert.Equal(t, 1, stats[0].Conversions)
	assert.InDelta(t, 19.99, stats[0].Revenue, 0.0001)

	records, err = tracker.HandleOrderEvent(ctx, order501(models.OrderStatusCompleted))
	require.NoError(t, err)
	assert.Empty(t, records)

	again, err := tracker.ProductStats(ctx, models.StatsRange{})
	require.NoError(t, err)
	assert.Equal(t, stats, again)
}

func TestHandleOrderEvent_Attribution(t *testing.T) {
	ctx := context.Background()
	notifier := &recordingNotifier{}
	env := newTestEnv(t, DefaultSettings(), func(d *Dependencies) { d.Notifier = notifier })
	tracker := env.svc.Tracker()

	user := env.user(t, 7)
	_, err := user.AddItem(ctx, 42, 0, 1, "")
	require.NoError(t, err)
	_, err = user.AddItem(ctx, 100, 0, 1, "sneakers")
	require.NoError(t, err)
	_, err = env.user(t, 8).AddItem(ctx, 43, 0, 1, "")
	require.NoError(t, err)

	event := models.OrderEvent{
		OrderID: 900,
		UserID:  7,
		Status:  "wc-completed",
		Items: []models.OrderLineItem{
			{ProductID: 42, Quantity: 2, LineTotal: 39.98},
			{ProductID: 43, Quantity: 1, LineTotal: 12},
			{ProductID: 100, VariationID: 101, Quantity: 1, LineTotal: 80},
		},
	}

	records, err := tracker.HandleOrderEvent(ctx, event)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, int64(42), records[0].ProductID)
	assert.Equal(t, 2, records[0].Quantity)
	assert.Equal(t, int64(101), records[1].VariationID)

	tracked, err := tracker.IsOrderTracked(ctx, 900)
	require.NoError(t, err)
	assert.True(t, tracked)

	require.Len(t, notifier.notices, 1)
	assert.Equal(t, int64(900), notifier.notices[0].OrderID)
	assert.Equal(t, models.OrderStatusCompleted, notifier.notices[0].Status)
	assert.InDelta(t, 119.98, notifier.notices[0].Revenue(), 0.0001)
}

func TestHandleOrderEvent_Redelivery(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, DefaultSettings())
	tracker := env.svc.Tracker()

	_, err := env.user(t, 7).AddItem(ctx, 42, 0, 1, "")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := tracker.HandleOrderEvent(ctx, order501(models.OrderStatusCompleted))
		require.NoError(t, err)
	}

	stored, err := tracker.OrderConversions(ctx, 501)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, int64(42), stored[0].ProductID)

	none, err := tracker.OrderConversions(ctx, 502)
	require.NoError(t, err)
	assert.Empty(t, none)

	summary, err := tracker.StatsSummary(ctx, models.StatsRange{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Conversions)
	assert.InDelta(t, 19.99, summary.Revenue, 0.0001)
}

func TestHandleOrderEvent_Guards(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, DefaultSettings())
	tracker := env.svc.Tracker()

	_, err := env.user(t, 7).AddItem(ctx, 42, 0, 1, "")
	require.NoError(t, err)

	records, err := tracker.HandleOrderEvent(ctx, order501(models.OrderStatusPending))
	require.NoError(t, err)
	assert.Nil(t, records)

	guestOrder := order501(models.OrderStatusCompleted)
	guestOrder.UserID = 0
	records, err = tracker.HandleOrderEvent(ctx, guestOrder)
	require.NoError(t, err)
	assert.Nil(t, records)

	tracked, err := tracker.IsOrderTracked(ctx, 501)
	require.NoError(t, err)
	assert.False(t, tracked)

	bad := order501(models.OrderStatusCompleted)
	bad.OrderID = 0
	_, err = tracker.HandleOrderEvent(ctx, bad)
	requireCode(t, err, ErrValidation, CodeInvalidOrder)
}

func TestHandleOrderEvent_NoSavesStillTracks(t *testing.T) {
	ctx := context.Background()
	notifier := &recordingNotifier{}
	env := newTestEnv(t, DefaultSettings(), func(d *Dependencies) { d.Notifier = notifier })

	records, err := env.svc.Tracker().HandleOrderEvent(ctx, order501(models.OrderStatusProcessing))
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Empty(t, notifier.notices)

	tracked, err := env.svc.Tracker().IsOrderTracked(ctx, 501)
	require.NoError(t, err)
	assert.True(t, tracked)
}

func TestHandleOrderEvent_FailureReleasesClaim(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, DefaultSettings(), func(d *Dependencies) {
		d.Conversions = brokenConversions{ConversionRepository: d.Conversions}
	})
	tracker := env.svc.Tracker()

	_, err := env.user(t, 7).AddItem(ctx, 42, 0, 1, "")
	require.NoError(t, err)

	_, err = tracker.HandleOrderEvent(ctx, order501(models.OrderStatusCompleted))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	tracked, err := tracker.IsOrderTracked(ctx, 501)
	require.NoError(t, err)
	assert.False(t, tracked)
}

func TestHandleOrderEvent_NotifierErrorIgnored(t *testing.T) {
	ctx := context.Background()
	notifier := &recordingNotifier{err: errors.New("telegram down")}
	env := newTestEnv(t, DefaultSettings(), func(d *Dependencies) { d.Notifier = notifier })

	_, err := env.user(t, 7).AddItem(ctx, 42, 0, 1, "")
	require.NoError(t, err)

	records, err := env.svc.Tracker().HandleOrderEvent(ctx, order501(models.OrderStatusCompleted))
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Len(t, notifier.notices, 1)
}

func TestStatsSummary(t *testing.T) {
	ctx := context.Background()

	t.Run("zero adds", func(t *testing.T) {
		env := newTestEnv(t, DefaultSettings())
		summary, err := env.svc.Tracker().StatsSummary(ctx, models.StatsRange{})
		require.NoError(t, err)
		assert.Zero(t, summary.TotalAdds)
		assert.Zero(t, summary.ConversionRate)
	})

	t.Run("rate is rounded to two places", func(t *testing.T) {
		env := newTestEnv(t, DefaultSettings())
		tracker := env.svc.Tracker()
		user := env.user(t, 7)
		for _, id := range []int64{42, 43, 44} {
			_, err := user.AddItem(ctx, id, 0, 1, "")
			require.NoError(t, err)
		}
		_, err := tracker.HandleOrderEvent(ctx, order501(models.OrderStatusCompleted))
		require.NoError(t, err)

		summary, err := tracker.StatsSummary(ctx, models.StatsRange{})
		require.NoError(t, err)
		assert.Equal(t, 3, summary.TotalAdds)
		assert.Equal(t, 1, summary.Conversions)
		assert.Equal(t, 1, summary.PurchasingUsers)
		assert.Equal(t, 33.33, summary.ConversionRate)
	})

	t.Run("inverted range", func(t *testing.T) {
		env := newTestEnv(t, DefaultSettings())
		from := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
		to := from.Add(-time.Hour)
		_, err := env.svc.Tracker().StatsSummary(ctx, models.StatsRange{From: &from, To: &to})
		requireCode(t, err, ErrValidation, CodeInvalidRange)
		_, err = env.svc.Tracker().ProductStats(ctx, models.StatsRange{From: &from, To: &to})
		requireCode(t, err, ErrValidation, CodeInvalidRange)
	})
}

func TestProductStats_DateFilterAndOrder(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, DefaultSettings())
	tracker := env.svc.Tracker()

	_, err := env.user(t, 7).AddItem(ctx, 42, 0, 1, "")
	require.NoError(t, err)

	env.clock = env.clock.Add(24 * time.Hour)
	cutoff := env.clock

	for _, uid := range []int64{8, 9} {
		_, err := env.user(t, uid).AddItem(ctx, 43, 0, 1, "")
		require.NoError(t, err)
	}
	_, err = env.user(t, 8).AddItem(ctx, 42, 0, 1, "")
	require.NoError(t, err)

	all, err := tracker.ProductStats(ctx, models.StatsRange{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	// Ties on adds break by product id.
	assert.Equal(t, int64(42), all[0].ProductID)
	assert.Equal(t, 2, all[0].Adds)
	assert.Equal(t, int64(43), all[1].ProductID)

	recent, err := tracker.ProductStats(ctx, models.StatsRange{From: &cutoff})
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, int64(43), recent[0].ProductID)
	assert.Equal(t, 2, recent[0].Adds)
	assert.Equal(t, 1, recent[1].Adds)
}

func TestConversionRate(t *testing.T) {
	assert.Zero(t, conversionRate(5, 0))
	assert.Equal(t, 50.0, conversionRate(1, 2))
	assert.Equal(t, 66.67, conversionRate(2, 3))
}
