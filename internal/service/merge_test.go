package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kerhoff/wishlist/internal/cache"
	"github.com/Kerhoff/wishlist/internal/models"
	"github.com/Kerhoff/wishlist/internal/repository"
)

// flakyItems fails MergeItem for one product.
type flakyItems struct {
	repository.WishlistRepository
	failProduct int64
}

func (f *flakyItems) MergeItem(ctx context.Context, item *models.WishlistItem) (bool, error) {
	if item.ProductID == f.failProduct {
		return false, errors.New("connection reset")
	}
	return f.WishlistRepository.MergeItem(ctx, item)
}

func quantities(t *testing.T, items []*models.WishlistItem) map[int64]int {
	t.Helper()
	out := make(map[int64]int, len(items))
	for _, item := range items {
		_, dup := out[item.ProductID]
		require.False(t, dup, "product %d listed twice", item.ProductID)
		out[item.ProductID] = item.Quantity
	}
	return out
}

func TestMergeGuestItems_Correctness(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, DefaultSettings())

	guest := env.guest(t, "S1")
	_, err := guest.AddItem(ctx, 42, 0, 5, "")
	require.NoError(t, err)
	_, err = guest.AddItem(ctx, 43, 0, 1, "")
	require.NoError(t, err)
	_, err = guest.UpdateItemNote(ctx, 43, 0, "blue one", "")
	require.NoError(t, err)

	user := env.user(t, 7)
	_, err = user.AddItem(ctx, 42, 0, 2, "")
	require.NoError(t, err)

	identity := &fakeIdentity{key: "S1"}
	result, err := env.svc.OnLogin(ctx, 7, identity)
	require.NoError(t, err)
	assert.Equal(t, &MergeResult{Merged: 1, Inserted: 1}, result)

	items, err := user.GetItems(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, map[int64]int{42: 5, 43: 1}, quantities(t, items))
	for _, item := range items {
		if item.ProductID == 43 {
			assert.Equal(t, "blue one", item.Note())
		}
	}

	remaining, err := env.store.GetOwnerItems(ctx, models.GuestOwner("S1"))
	require.NoError(t, err)
	assert.Empty(t, remaining)
	assert.Equal(t, 1, identity.cleared)
	assert.Empty(t, identity.Peek())
}

func TestMergeGuestItems_KeepsLargerUserQuantity(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, DefaultSettings())

	_, err := env.guest(t, "S1").AddItem(ctx, 42, 0, 1, "")
	require.NoError(t, err)
	user := env.user(t, 7)
	_, err = user.AddItem(ctx, 42, 0, 2, "")
	require.NoError(t, err)

	_, err = env.svc.OnLogin(ctx, 7, &fakeIdentity{key: "S1"})
	require.NoError(t, err)

	items, err := user.GetItems(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, map[int64]int{42: 2}, quantities(t, items))
}

func TestScenarioA_GuestSavesThenLogsIn(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, DefaultSettings())
	identity := &fakeIdentity{key: "S1"}

	guest, err := env.svc.ForActor(Actor{}, identity)
	require.NoError(t, err)

	_, err = guest.AddItem(ctx, 42, 0, 1, "")
	require.NoError(t, err)
	count, err := guest.GetCount(ctx, models.DefaultListID, false)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = guest.AddItem(ctx, 42, 0, 1, "")
	require.NoError(t, err)
	count, err = guest.GetCount(ctx, models.DefaultListID, false)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = env.svc.OnLogin(ctx, 7, identity)
	require.NoError(t, err)

	user, err := env.svc.ForActor(Actor{UserID: 7}, identity)
	require.NoError(t, err)
	items, err := user.GetItems(ctx, models.DefaultListID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, int64(42), items[0].ProductID)

	leftover, err := env.store.GetOwnerItems(ctx, models.GuestOwner("S1"))
	require.NoError(t, err)
	assert.Empty(t, leftover)
}

func TestMergeGuestItems_ReassignsLists(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, DefaultSettings())

	guest := env.guest(t, "S1")
	wedding, err := guest.CreateList(ctx, "Wedding", "")
	require.NoError(t, err)
	_, err = guest.AddItem(ctx, 42, 0, 1, wedding.Key)
	require.NoError(t, err)
	_, err = guest.AddItem(ctx, 43, 0, 1, "")
	require.NoError(t, err)

	user := env.user(t, 7)
	_, err = user.AddItem(ctx, 44, 0, 1, "")
	require.NoError(t, err)
	userDefault, err := env.store.GetListByKey(ctx, user.Owner(), models.DefaultListID)
	require.NoError(t, err)
	require.NotNil(t, userDefault)

	_, err = env.svc.OnLogin(ctx, 7, &fakeIdentity{key: "S1"})
	require.NoError(t, err)

	lists, err := env.store.GetLists(ctx, user.Owner())
	require.NoError(t, err)
	keys := make(map[string]int64)
	for _, l := range lists {
		keys[l.Key] = l.ID
	}
	assert.Len(t, keys, 2)
	assert.Equal(t, wedding.ID, keys["wedding"])
	assert.Equal(t, userDefault.ID, keys[models.DefaultListID])

	guestLists, err := env.store.GetLists(ctx, models.GuestOwner("S1"))
	require.NoError(t, err)
	assert.Empty(t, guestLists)

	weddingItems, err := user.GetItems(ctx, "wedding")
	require.NoError(t, err)
	assert.Equal(t, map[int64]int{42: 1}, quantities(t, weddingItems))
}

func TestMergeGuestItems_InvalidatesCounts(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, DefaultSettings())

	_, err := env.guest(t, "S1").AddItem(ctx, 42, 0, 1, "gifts")
	require.NoError(t, err)

	user := env.user(t, 7)
	for _, listID := range []string{"", "gifts"} {
		count, err := user.GetCount(ctx, listID, false)
		require.NoError(t, err)
		require.Zero(t, count)
	}

	_, err = env.svc.OnLogin(ctx, 7, &fakeIdentity{key: "S1"})
	require.NoError(t, err)

	count, err := user.GetCount(ctx, "gifts", false)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, ok, err := env.cache.Get(ctx, cache.CountKey(user.Owner(), models.DefaultListID))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMergeGuestItems_Rerunnable(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, DefaultSettings())

	_, err := env.guest(t, "S1").AddItem(ctx, 42, 0, 1, "")
	require.NoError(t, err)

	user := env.user(t, 7)
	first, err := user.MergeGuestItems(ctx, 7, "S1")
	require.NoError(t, err)
	assert.Equal(t, 1, first.Inserted)

	second, err := user.MergeGuestItems(ctx, 7, "S1")
	require.NoError(t, err)
	assert.Equal(t, &MergeResult{}, second)

	items, err := user.GetItems(ctx, "")
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestMergeGuestItems_SkipsInvalidRows(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, DefaultSettings())

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := env.store.UpsertItem(ctx, &models.WishlistItem{
		Owner: models.GuestOwner("S1"), ListID: models.DefaultListID,
		ProductID: 0, Quantity: 1, CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)

	result, err := env.user(t, 7).MergeGuestItems(ctx, 7, "S1")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)

	leftover, err := env.store.GetOwnerItems(ctx, models.GuestOwner("S1"))
	require.NoError(t, err)
	assert.Empty(t, leftover)
}

func TestMergeGuestItems_FailureKeepsGuestRows(t *testing.T) {
	ctx := context.Background()
	var store repository.WishlistRepository
	env := newTestEnv(t, DefaultSettings(), func(d *Dependencies) {
		store = d.Items
		d.Items = &flakyItems{WishlistRepository: d.Items, failProduct: 43}
	})
	require.NotNil(t, store)

	guest := env.guest(t, "S1")
	_, err := guest.AddItem(ctx, 42, 0, 1, "")
	require.NoError(t, err)
	_, err = guest.AddItem(ctx, 43, 0, 1, "")
	require.NoError(t, err)

	identity := &fakeIdentity{key: "S1"}
	result, err := env.svc.OnLogin(ctx, 7, identity)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, 1, result.Inserted)
	assert.Zero(t, identity.cleared)

	remaining, err := store.GetOwnerItems(ctx, models.GuestOwner("S1"))
	require.NoError(t, err)
	assert.Len(t, remaining, 2)
}

func TestOnLogin_NoGuestKey(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, DefaultSettings())
	identity := &fakeIdentity{}

	result, err := env.svc.OnLogin(ctx, 7, identity)
	require.NoError(t, err)
	assert.Equal(t, &MergeResult{}, result)
	assert.Zero(t, identity.minted)
	assert.Zero(t, identity.cleared)

	_, err = env.svc.OnLogin(ctx, 0, identity)
	requireCode(t, err, ErrValidation, CodeInvalidUser)
}
