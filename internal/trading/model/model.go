package model

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Direction is the conversion an order performs when it fires. Prices are
// always quoted as units of B per unit of A.
type Direction string

const (
	// ConvertAToB sells A for B; it fires when the price rises to the trigger.
	ConvertAToB Direction = "A_TO_B"
	// ConvertBToA buys A with B; it fires when the price falls to the trigger.
	ConvertBToA Direction = "B_TO_A"
)

// Valid reports whether d names one of the two conversion directions.
func (d Direction) Valid() bool {
	return d == ConvertAToB || d == ConvertBToA
}

// Opposite returns the other direction.
func (d Direction) Opposite() Direction {
	if d == ConvertAToB {
		return ConvertBToA
	}
	return ConvertAToB
}

// Assets returns the input and output asset symbols for a pair quoted as
// quote-per-base, where base is A and quote is B.
func (d Direction) Assets(base, quote string) (in, out string) {
	if d == ConvertAToB {
		return base, quote
	}
	return quote, base
}

func (d Direction) String() string { return string(d) }

// OrderStatus is the lifecycle state of an order. FILLED and CANCELLED are terminal.
type OrderStatus string

const (
	OrderStatusOpen      OrderStatus = "OPEN"
	OrderStatusFilled    OrderStatus = "FILLED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// Terminal reports whether no further transition may leave s.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusFilled || s == OrderStatusCancelled
}

func (s OrderStatus) String() string { return string(s) }

// Order represents a resting price-triggered conversion.
type Order struct {
	ID             uint64          `json:"id"`
	Owner          uuid.UUID       `json:"owner"`
	Pair           string          `json:"pair"`
	Direction      Direction       `json:"direction"`
	AmountIn       decimal.Decimal `json:"amount_in"`
	AmountOut      decimal.Decimal `json:"amount_out"`
	TriggerPrice   decimal.Decimal `json:"trigger_price"`
	ExecutionPrice decimal.Decimal `json:"execution_price,omitempty"`
	Status         OrderStatus     `json:"status"`
	Level          int64           `json:"level"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Eligible reports whether the order may execute at price. A sell of A needs
// the price at or above the trigger, a buy of A needs it at or below.
func (o *Order) Eligible(price decimal.Decimal) bool {
	switch o.Direction {
	case ConvertAToB:
		return price.GreaterThanOrEqual(o.TriggerPrice)
	case ConvertBToA:
		return price.LessThanOrEqual(o.TriggerPrice)
	default:
		return false
	}
}

// IsOpen is shorthand for Status == OrderStatusOpen.
func (o *Order) IsOpen() bool { return o.Status == OrderStatusOpen }

// Snapshot returns a detached copy of the order for read-only callers.
func (o *Order) Snapshot() OrderSnapshot {
	return OrderSnapshot(*o)
}

// OrderSnapshot is a read-only copy of an Order handed out by queries.
type OrderSnapshot Order

// PriceEvent is delivered by the venue after every price-changing trade.
type PriceEvent struct {
	Price decimal.Decimal `json:"price"`
	// TradeDirection is the direction of the trade that moved the price, or
	// empty when the venue does not report it.
	TradeDirection Direction `json:"trade_direction,omitempty"`
	At             time.Time `json:"at"`
}

// PriceObserver is implemented by anything the venue calls synchronously
// after a price-changing trade. A returned error fails the trade.
type PriceObserver interface {
	OnPriceEvent(ctx context.Context, ev PriceEvent) error
}
