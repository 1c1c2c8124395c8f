package reservation_test

import (
	"sync"
	"testing"

	"github.com/robertarktes/cinema-reservations/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdjustCartItem_IncrementThenDecrement(t *testing.T) {
	f := newFixture(t)
	o := f.order(customerX)

	require.NoError(t, f.svc.AdjustCartItem(f.ctx, customerX, o.ID, popcornItem, popcornSmall, true))
	assert.Equal(t, popcornStock-1, f.stock(popcornSmall))

	events := f.notes.take()
	require.Len(t, events, 3)
	assert.Equal(t, domain.ItemChanged{ReservationID: o.ID, ItemID: popcornItem}, events[0])
	assert.Equal(t, domain.CartQuantityChanged{ReservationID: o.ID, VariantID: popcornSmall, Quantity: 1}, events[1])
	assert.Equal(t, domain.StockChanged{CinemaID: cinemaID, VariantID: popcornSmall, Quantity: popcornStock - 1}, events[2])

	got, err := f.svc.Get(f.ctx, customerX, o.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.Equal(t, 1, got.Items[0].Quantity)

	require.NoError(t, f.svc.AdjustCartItem(f.ctx, customerX, o.ID, popcornItem, popcornSmall, false))
	assert.Equal(t, popcornStock, f.stock(popcornSmall))
	got, err = f.svc.Get(f.ctx, customerX, o.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Items)

	err = f.svc.AdjustCartItem(f.ctx, customerX, o.ID, popcornItem, popcornSmall, false)
	require.ErrorIs(t, err, domain.ErrNotInCart)
	assert.Equal(t, popcornStock, f.stock(popcornSmall))
}

func TestAdjustCartItem_AccumulatesPrice(t *testing.T) {
	f := newFixture(t)
	o := f.order(customerX)

	for i := 0; i < 2; i++ {
		require.NoError(t, f.svc.AdjustCartItem(f.ctx, customerX, o.ID, popcornItem, popcornSmall, true))
	}
	got, err := f.svc.Get(f.ctx, customerX, o.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.True(t, got.Items[0].Price.Equal(decimal.NewFromInt(13)))

	require.NoError(t, f.svc.AdjustCartItem(f.ctx, customerX, o.ID, popcornItem, popcornSmall, false))
	got, err = f.svc.Get(f.ctx, customerX, o.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Items[0].Quantity)
	assert.True(t, got.Items[0].Price.Equal(decimal.RequireFromString("6.5")))
}

func TestAdjustCartItem_Rejections(t *testing.T) {
	f := newFixture(t)
	o := f.order(customerX)

	for i := 0; i < 20; i++ {
		require.NoError(t, f.svc.AdjustCartItem(f.ctx, customerX, o.ID, popcornItem, popcornLarge, true))
	}
	err := f.svc.AdjustCartItem(f.ctx, customerX, o.ID, popcornItem, popcornLarge, true)
	assert.ErrorIs(t, err, domain.ErrCartFull)
	assert.Equal(t, popcornLStock-20, f.stock(popcornLarge))

	require.NoError(t, f.svc.AdjustCartItem(f.ctx, customerX, o.ID, popcornItem, popcornLarge, false))
	err = f.svc.AdjustCartItem(f.ctx, customerX, o.ID, sodaItem, sodaSoldOut, true)
	assert.ErrorIs(t, err, domain.ErrOutOfStock)
	assert.Equal(t, 0, f.stock(sodaSoldOut))

	f.notes.take()
	err = f.svc.AdjustCartItem(f.ctx, customerX, o.ID, sodaItem, popcornSmall, true)
	assert.ErrorIs(t, err, domain.ErrVariantNotFound)
	events := f.notes.take()
	require.Len(t, events, 1)
	refresh := events[0].(domain.RefreshRequested)
	assert.Equal(t, domain.ViewVariants, refresh.View)
	require.NotNil(t, refresh.ItemID)
	assert.Equal(t, sodaItem, *refresh.ItemID)

	err = f.svc.AdjustCartItem(f.ctx, customerX, o.ID, 999, popcornSmall, true)
	assert.ErrorIs(t, err, domain.ErrItemNotFound)

	err = f.svc.AdjustCartItem(f.ctx, customerY, o.ID, popcornItem, popcornSmall, true)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, popcornStock, f.stock(popcornSmall))
}

func TestAdjustCartItem_StockIsConservedUnderContention(t *testing.T) {
	f := newFixture(t)

	const shoppers = 8
	orders := make([]domain.Reservation, shoppers)
	principals := make([]domain.Principal, shoppers)
	for i := range orders {
		principals[i] = domain.Principal{AccountID: int64(200 + i), Role: domain.RoleCustomer}
		orders[i] = f.order(principals[i])
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ok      int
		soldOut int
	)
	for i := range orders {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := f.svc.AdjustCartItem(f.ctx, principals[i], orders[i].ID, popcornItem, popcornSmall, true)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
			} else if assert.ErrorIs(t, err, domain.ErrOutOfStock) {
				soldOut++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, popcornStock, ok)
	assert.Equal(t, shoppers-popcornStock, soldOut)
	assert.Equal(t, 0, f.stock(popcornSmall))

	held := 0
	for i, o := range orders {
		got, err := f.svc.Get(f.ctx, principals[i], o.ID)
		require.NoError(t, err)
		held += got.CartQuantity()
	}
	assert.Equal(t, popcornStock, f.stock(popcornSmall)+held)
}

func TestAdjustCartItem_RetriedTransactionAppliesOnce(t *testing.T) {
	f := newFixture(t)
	o := f.order(customerX)

	f.store.mu.Lock()
	f.store.conflicts = 2
	before := f.store.attempts
	f.store.mu.Unlock()

	require.NoError(t, f.svc.AdjustCartItem(f.ctx, customerX, o.ID, popcornItem, popcornSmall, true))
	assert.Equal(t, popcornStock-1, f.stock(popcornSmall))

	f.store.mu.Lock()
	assert.Equal(t, before+3, f.store.attempts)
	f.store.mu.Unlock()

	got, err := f.svc.Get(f.ctx, customerX, o.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.Equal(t, 1, got.Items[0].Quantity)
	assert.Len(t, f.notes.take(), 3)
}
