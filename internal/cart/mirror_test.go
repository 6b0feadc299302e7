package cart

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtroode/storefront-client/internal/mocks"
	"github.com/dtroode/storefront-client/internal/model"
	"github.com/dtroode/storefront-client/internal/storage/memory"
)

func TestMirrorStore_GuestRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMirrorStore(memory.NewStore())

	items, err := s.LoadGuest(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)

	want := []model.CartItem{{ProductID: 1, Title: "Mug", UnitPrice: decimal.RequireFromString("12.50"), Quantity: 2, KnownStock: intPtr(5)}}
	require.NoError(t, s.SaveGuest(ctx, want))

	got, err := s.LoadGuest(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].Quantity)
	assert.True(t, want[0].UnitPrice.Equal(got[0].UnitPrice))

	require.NoError(t, s.DiscardGuest(ctx))
	got, err = s.LoadGuest(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMirrorStore_ReadsLegacyGuestCart(t *testing.T) {
	ctx := context.Background()
	kv := memory.NewStore()
	legacy := `[
		{"productId":1,"title":"Mug","price":"12.50","qty":9,"stock":5},
		{"productId":1,"title":"Mug","price":"12.50","qty":1,"stock":5},
		{"productId":2,"title":"Tee","price":20,"qty":0},
		{"productId":0,"title":"broken","qty":1}
	]`
	require.NoError(t, kv.Put(ctx, GuestKey, []byte(legacy)))

	items, err := NewMirrorStore(kv).LoadGuest(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, 5, items[0].Quantity, "clamped to stock")
	assert.Equal(t, 1, items[1].Quantity, "raised to one")
}

func TestMirrorStore_UserKey(t *testing.T) {
	ctx := context.Background()
	kv := memory.NewStore()
	s := NewMirrorStore(kv)

	require.NoError(t, s.SaveUser(ctx, "42", []model.CartItem{{ProductID: 1, Quantity: 1}}))
	_, err := kv.Get(ctx, "cart:user:42")
	require.NoError(t, err)

	items, err := s.LoadUser(ctx, "42")
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestMirrorStore_BackendError(t *testing.T) {
	ctx := context.Background()
	kv := &mocks.KVStore{}
	kv.On("Get", ctx, GuestKey).Return(nil, assert.AnError).Once()

	_, err := NewMirrorStore(kv).LoadGuest(ctx)
	require.ErrorIs(t, err, assert.AnError)
	kv.AssertExpectations(t)
}
