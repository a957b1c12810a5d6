package trigger

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/Aidin1998/triggerbook/internal/trading/model"
)

// After every price event an order is indexed exactly when it is Open, and
// with an ample budget no Open order inside the window is left eligible.
func TestEngine_IndexedIffOpen(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		f := newFixture(t, fixtureOpts{price: 250, window: 100, units: 1000})

		n := rapid.IntRange(1, 40).Draw(t, "orders")
		for i := 0; i < n; i++ {
			dir := rapid.SampledFrom([]model.Direction{model.ConvertAToB, model.ConvertBToA}).Draw(t, "direction")
			trigger := rapid.Int64Range(1, 500).Draw(t, "trigger")
			amount := rapid.Int64Range(1, 1000).Draw(t, "amount")
			f.place(t, dir, amount, trigger)
		}

		prices := rapid.SliceOfN(rapid.Int64Range(1, 500), 1, 10).Draw(t, "prices")
		for _, p := range prices {
			require.NoError(t, f.venue.Trade(context.Background(), "", decimal.NewFromInt(p)))
			rep, err := f.fire(p, "")
			require.NoError(t, err)
			require.False(t, rep.BudgetExhausted)

			price := decimal.NewFromInt(p)
			lo, hi := f.engine.Window(rep.Level)
			for id := uint64(1); id <= uint64(n); id++ {
				o, ok := f.store.Get(id)
				require.True(t, ok)
				require.Equal(t, o.IsOpen(), f.index.Contains(id), "order %d", id)
				if o.IsOpen() && o.Level >= lo && o.Level <= hi {
					require.False(t, o.Eligible(price), "order %d left eligible at %d", id, p)
				}
			}
		}
	})
}
