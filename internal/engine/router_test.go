package engine

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/abdoElHodaky/handlex/internal/db/models"
	"github.com/abdoElHodaky/handlex/pkg/errors"
)

func TestRouter_UnknownSymbolRejected(t *testing.T) {
	store := newMemStore()
	router := NewRouter(store, []string{"X"}, 16, zap.NewNop())

	err := router.Submit(context.Background(), uuid.New(), "UNKNOWN")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrSymbolNotFound))

	err = router.Cancel(context.Background(), uuid.New(), "UNKNOWN", models.CancelReasonUser)
	assert.True(t, errors.Is(err, errors.ErrSymbolNotFound))

	_, err = router.Book("UNKNOWN")
	assert.True(t, errors.Is(err, errors.ErrSymbolNotFound))
}

func TestRouter_StartRebuildsAndProcesses(t *testing.T) {
	store := newMemStore()

	b := newTrader()
	store.grantShares(b, "X", 10)
	p100 := int64(100)
	resting := store.addOrder(b, "X", models.SideSell, models.OrderTypeLimit, 10, &p100)

	router := NewRouter(store, []string{"X"}, 16, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, router.Start(ctx))

	// Rebuild picked up the resting order
	state, err := router.BookState("X")
	require.NoError(t, err)
	require.NotNil(t, state.BestAsk)
	assert.Equal(t, int64(100), *state.BestAsk)

	// A submitted market buy executes through the worker
	a := newTrader()
	store.fundCash(a, 1_000_000)
	market := store.addOrder(a, "X", models.SideBuy, models.OrderTypeMarket, 4, nil)
	require.NoError(t, router.Submit(ctx, market.OrderID, "X"))

	router.Shutdown()

	assert.Len(t, store.trades, 1)
	assert.Equal(t, int64(4), store.trades[0].Quantity)
	assert.Equal(t, models.OrderStatusPartial, store.order(resting.OrderID).Status)
}

func TestRouter_Symbols(t *testing.T) {
	router := NewRouter(newMemStore(), []string{"X", "Y"}, 16, zap.NewNop())
	assert.ElementsMatch(t, []string{"X", "Y"}, router.Symbols())
}
