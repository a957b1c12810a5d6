package simvenue

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aidin1998/triggerbook/internal/trading/model"
	"github.com/Aidin1998/triggerbook/internal/trading/settlement"
)

type observerFunc func(ctx context.Context, ev model.PriceEvent) error

func (f observerFunc) OnPriceEvent(ctx context.Context, ev model.PriceEvent) error { return f(ctx, ev) }

func newVenue(t *testing.T, cfg Config) *Venue {
	t.Helper()
	if cfg.InitialPrice.IsZero() {
		cfg.InitialPrice = decimal.NewFromInt(2000)
	}
	v, err := New(cfg, nil)
	require.NoError(t, err)
	return v
}

func TestVenue_TradeNotifiesObservers(t *testing.T) {
	v := newVenue(t, Config{Pair: "ETH/USDC"})
	var seen []model.PriceEvent
	v.Subscribe(observerFunc(func(_ context.Context, ev model.PriceEvent) error {
		seen = append(seen, ev)
		return nil
	}))

	require.NoError(t, v.Trade(context.Background(), model.ConvertBToA, decimal.NewFromInt(2100)))
	require.Len(t, seen, 1)
	assert.True(t, seen[0].Price.Equal(decimal.NewFromInt(2100)))
	assert.Equal(t, model.ConvertBToA, seen[0].TradeDirection)
}

func TestVenue_ObserverErrorRollsBackTrade(t *testing.T) {
	v := newVenue(t, Config{Pair: "ETH/USDC"})
	boom := stderrors.New("boom")
	v.Subscribe(observerFunc(func(context.Context, model.PriceEvent) error { return boom }))

	err := v.Trade(context.Background(), model.ConvertAToB, decimal.NewFromInt(1500))
	assert.ErrorIs(t, err, boom)
	assert.True(t, v.Price().Equal(decimal.NewFromInt(2000)))
	assert.Equal(t, 0, v.Stats().Trades)
}

func TestVenue_ExchangeQuoteAndHaircut(t *testing.T) {
	v := newVenue(t, Config{Pair: "ETH/USDC", HaircutBps: 100})
	ex, err := v.BeginExchange(context.Background(), settlement.ExchangeRequest{
		Direction: model.ConvertAToB,
		AmountIn:  decimal.NewFromInt(10),
	})
	require.NoError(t, err)
	assert.True(t, ex.AmountOut().Equal(decimal.NewFromInt(19800)))

	require.NoError(t, ex.Rollback())
	assert.Error(t, ex.Commit())
	assert.Equal(t, Stats{RolledBack: 1}, v.Stats())
}

func TestVenue_CommitMovesPriceAndNotifies(t *testing.T) {
	v := newVenue(t, Config{Pair: "ETH/USDC", ImpactBps: 50})
	calls := 0
	v.Subscribe(observerFunc(func(context.Context, model.PriceEvent) error {
		calls++
		return nil
	}))

	ex, err := v.BeginExchange(context.Background(), settlement.ExchangeRequest{
		Direction: model.ConvertAToB,
		AmountIn:  decimal.NewFromInt(1),
	})
	require.NoError(t, err)
	require.NoError(t, ex.Commit())

	assert.True(t, v.Price().Equal(decimal.NewFromInt(1990)))
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, v.Stats().Committed)
}

func TestVenue_FailNextCommit(t *testing.T) {
	v := newVenue(t, Config{Pair: "ETH/USDC"})
	boom := stderrors.New("venue halted")
	v.FailNextCommit(boom)

	ex, err := v.BeginExchange(context.Background(), settlement.ExchangeRequest{
		Direction: model.ConvertBToA,
		AmountIn:  decimal.NewFromInt(2000),
	})
	require.NoError(t, err)
	assert.True(t, ex.AmountOut().Equal(decimal.NewFromInt(1)))
	assert.ErrorIs(t, ex.Commit(), boom)
	assert.Equal(t, 0, v.Stats().Committed)
}
