package lifecycle

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aidin1998/triggerbook/internal/trading/bucket"
	"github.com/Aidin1998/triggerbook/internal/trading/custody"
	"github.com/Aidin1998/triggerbook/internal/trading/events"
	"github.com/Aidin1998/triggerbook/internal/trading/model"
	"github.com/Aidin1998/triggerbook/internal/trading/store"
	"github.com/Aidin1998/triggerbook/pkg/errors"
)

type testManager struct {
	*Manager
	store  *store.Store
	index  *bucket.Index
	ledger *custody.Ledger
	bus    *events.InMemoryEventBus
	got    []events.Event
}

func newTestManager(t *testing.T) *testManager {
	t.Helper()
	grid, err := bucket.NewGrid(decimal.NewFromInt(10))
	require.NoError(t, err)
	tm := &testManager{
		store:  store.New(),
		index:  bucket.NewIndex(),
		ledger: custody.NewLedger(nil),
		bus:    events.NewInMemoryEventBus(nil),
	}
	tm.bus.Subscribe(events.TopicOrder, func(ev events.Event) {
		tm.got = append(tm.got, ev)
	})
	tm.Manager = NewManager(Config{Pair: "ETH/USDC", BaseAsset: "ETH", QuoteAsset: "USDC"},
		grid, tm.store, tm.index, tm.ledger, tm.bus, nil)
	return tm
}

func (tm *testManager) fund(t *testing.T, owner uuid.UUID, asset string, amount int64) {
	t.Helper()
	require.NoError(t, tm.ledger.Credit(context.Background(), owner, asset, decimal.NewFromInt(amount)))
}

func (tm *testManager) balance(t *testing.T, owner uuid.UUID, asset string) decimal.Decimal {
	t.Helper()
	b, err := tm.ledger.Balance(context.Background(), owner, asset)
	require.NoError(t, err)
	return b
}

func sell(owner uuid.UUID, amountIn, trigger int64) CreateRequest {
	return CreateRequest{
		Owner:        owner,
		Direction:    model.ConvertAToB,
		AmountIn:     decimal.NewFromInt(amountIn),
		TriggerPrice: decimal.NewFromInt(trigger),
	}
}

func TestManager_CreateTakesCustodyAndIndexes(t *testing.T) {
	ctx := context.Background()
	tm := newTestManager(t)
	owner := uuid.New()
	tm.fund(t, owner, "ETH", 150)

	id, err := tm.Create(ctx, sell(owner, 100, 2005))
	require.NoError(t, err)

	assert.True(t, tm.balance(t, owner, "ETH").Equal(decimal.NewFromInt(50)))
	snap, err := tm.GetOrder(id)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusOpen, snap.Status)
	assert.Equal(t, int64(200), snap.Level)
	assert.Equal(t, []uint64{id}, tm.GetOrdersAtLevel(200))

	require.Len(t, tm.got, 1)
	assert.Equal(t, events.TypeOrderCreated, tm.got[0].Type)
	created := tm.got[0].Payload.(events.OrderCreated)
	assert.Equal(t, id, created.OrderID)
}

func TestManager_CreateBuyDebitsQuote(t *testing.T) {
	ctx := context.Background()
	tm := newTestManager(t)
	owner := uuid.New()
	tm.fund(t, owner, "USDC", 4000)

	_, err := tm.Create(ctx, CreateRequest{
		Owner:        owner,
		Direction:    model.ConvertBToA,
		AmountIn:     decimal.NewFromInt(3800),
		TriggerPrice: decimal.NewFromInt(1900),
	})
	require.NoError(t, err)
	assert.True(t, tm.balance(t, owner, "USDC").Equal(decimal.NewFromInt(200)))
}

func TestManager_CreateRejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	tm := newTestManager(t)
	owner := uuid.New()
	tm.fund(t, owner, "ETH", 100)

	cases := map[string]CreateRequest{
		"zero amount":   sell(owner, 0, 2000),
		"zero price":    sell(owner, 10, 0),
		"nil owner":     sell(uuid.Nil, 10, 2000),
		"bad direction": {Owner: owner, Direction: "SIDEWAYS", AmountIn: decimal.NewFromInt(1), TriggerPrice: decimal.NewFromInt(1)},
		"price off grid": {
			Owner:        owner,
			Direction:    model.ConvertBToA,
			AmountIn:     decimal.NewFromInt(1),
			TriggerPrice: decimal.RequireFromString("18446744073709553000000"),
		},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := tm.Create(ctx, req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.Validation))
		})
	}

	assert.Zero(t, tm.store.Len())
	assert.Zero(t, tm.index.Len())
	assert.True(t, tm.balance(t, owner, "ETH").Equal(decimal.NewFromInt(100)))
	assert.Empty(t, tm.got)
}

func TestManager_CreateWithoutFundsRecordsNothing(t *testing.T) {
	tm := newTestManager(t)
	owner := uuid.New()
	tm.fund(t, owner, "ETH", 10)

	_, err := tm.Create(context.Background(), sell(owner, 100, 2000))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.Custody))
	assert.Zero(t, tm.store.Len())
	assert.Zero(t, tm.index.Len())
	assert.True(t, tm.balance(t, owner, "ETH").Equal(decimal.NewFromInt(10)))
}

func TestManager_LimitsValidator(t *testing.T) {
	tm := newTestManager(t)
	tm.AddValidator(LimitsValidator{MinAmountIn: decimal.NewFromInt(5), MaxAmountIn: decimal.NewFromInt(50)})
	owner := uuid.New()
	tm.fund(t, owner, "ETH", 100)

	_, err := tm.Create(context.Background(), sell(owner, 1, 2000))
	assert.True(t, errors.Is(err, errors.Validation))
	_, err = tm.Create(context.Background(), sell(owner, 60, 2000))
	assert.True(t, errors.Is(err, errors.Validation))
	_, err = tm.Create(context.Background(), sell(owner, 20, 2000))
	assert.NoError(t, err)
}

func TestManager_CancelReturnsInputInFull(t *testing.T) {
	ctx := context.Background()
	tm := newTestManager(t)
	owner := uuid.New()
	tm.fund(t, owner, "ETH", 100)

	id, err := tm.Create(ctx, sell(owner, 100, 2000))
	require.NoError(t, err)
	require.True(t, tm.balance(t, owner, "ETH").IsZero())

	require.NoError(t, tm.Cancel(ctx, owner, id))
	assert.True(t, tm.balance(t, owner, "ETH").Equal(decimal.NewFromInt(100)))
	assert.False(t, tm.index.Contains(id))
	assert.Empty(t, tm.GetOrdersAtLevel(200))

	snap, err := tm.GetOrder(id)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusCancelled, snap.Status)

	err = tm.Cancel(ctx, owner, id)
	assert.True(t, errors.Is(err, errors.StateConflict))
	assert.True(t, tm.balance(t, owner, "ETH").Equal(decimal.NewFromInt(100)))

	require.Len(t, tm.got, 2)
	assert.Equal(t, events.TypeOrderCancelled, tm.got[1].Type)
}

func TestManager_CancelByNonOwner(t *testing.T) {
	ctx := context.Background()
	tm := newTestManager(t)
	owner := uuid.New()
	tm.fund(t, owner, "ETH", 100)
	id, err := tm.Create(ctx, sell(owner, 100, 2000))
	require.NoError(t, err)

	err = tm.Cancel(ctx, uuid.New(), id)
	assert.True(t, errors.Is(err, errors.Authorization))
	assert.True(t, tm.index.Contains(id))

	err = tm.Cancel(ctx, owner, id+100)
	assert.True(t, errors.Is(err, errors.NotFound))
}

type refusingCustody struct{ *custody.Ledger }

func (refusingCustody) Credit(context.Context, uuid.UUID, string, decimal.Decimal) error {
	return errors.Custody.Explain("custody offline")
}

func TestManager_CancelKeepsOrderWhenRefundFails(t *testing.T) {
	ctx := context.Background()
	tm := newTestManager(t)
	owner := uuid.New()
	tm.fund(t, owner, "ETH", 100)
	id, err := tm.Create(ctx, sell(owner, 100, 2000))
	require.NoError(t, err)

	tm.custody = refusingCustody{tm.ledger}
	err = tm.Cancel(ctx, owner, id)
	assert.True(t, errors.Is(err, errors.Custody))

	snap, err := tm.GetOrder(id)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusOpen, snap.Status)
	level, ok := tm.index.LevelOf(id)
	assert.True(t, ok)
	assert.Equal(t, int64(200), level)
}

func TestManager_GetOrdersAtLevelSkipsStaleEntries(t *testing.T) {
	ctx := context.Background()
	tm := newTestManager(t)
	owner := uuid.New()
	tm.fund(t, owner, "ETH", 100)
	a, err := tm.Create(ctx, sell(owner, 50, 2000))
	require.NoError(t, err)
	b, err := tm.Create(ctx, sell(owner, 50, 2001))
	require.NoError(t, err)

	// Terminal in the store but still indexed, as a scan would find it.
	require.NoError(t, tm.store.MarkCancelled(a, tm.now()))
	assert.Equal(t, []uint64{b}, tm.GetOrdersAtLevel(200))
	assert.Len(t, tm.OpenOrders(owner), 1)
}
