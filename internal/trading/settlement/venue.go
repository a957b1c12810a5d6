package settlement

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Aidin1998/triggerbook/internal/trading/model"
)

// ExchangeRequest asks the venue to convert exactly AmountIn of AssetIn.
type ExchangeRequest struct {
	OrderID   uint64
	Pair      string
	Direction model.Direction
	AssetIn   string
	AssetOut  string
	AmountIn  decimal.Decimal
}

// Exchange is a pending conversion on the venue. Nothing moves until Commit;
// Rollback discards it. Exactly one of the two must be called.
type Exchange interface {
	AmountOut() decimal.Decimal
	Commit() error
	Rollback() error
}

// Venue is the trading venue the engine settles against.
type Venue interface {
	BeginExchange(ctx context.Context, req ExchangeRequest) (Exchange, error)
}

// Custody moves assets in and out of participant accounts.
type Custody interface {
	Debit(ctx context.Context, account uuid.UUID, asset string, amount decimal.Decimal) error
	Credit(ctx context.Context, account uuid.UUID, asset string, amount decimal.Decimal) error
}
