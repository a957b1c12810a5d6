package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Aidin1998/triggerbook/internal/trading/model"
)

// Standard event topics
const (
	TopicOrder = "order"
)

// Event types published on TopicOrder
const (
	TypeOrderCreated   = "ORDER_CREATED"
	TypeOrderCancelled = "ORDER_CANCELLED"
	TypeOrderFilled    = "ORDER_FILLED"
)

// OrderCreated is published once an order is in custody and indexed.
type OrderCreated struct {
	OrderID      uint64          `json:"order_id"`
	Owner        uuid.UUID       `json:"owner"`
	Pair         string          `json:"pair"`
	Direction    model.Direction `json:"direction"`
	AmountIn     decimal.Decimal `json:"amount_in"`
	TriggerPrice decimal.Decimal `json:"trigger_price"`
	Level        int64           `json:"level"`
}

// OrderCancelled is published after the input has been returned to the owner.
type OrderCancelled struct {
	OrderID  uint64          `json:"order_id"`
	Owner    uuid.UUID       `json:"owner"`
	Pair     string          `json:"pair"`
	AmountIn decimal.Decimal `json:"amount_in"`
}

// OrderFilled is published for every trigger-driven execution.
type OrderFilled struct {
	OrderID        uint64          `json:"order_id"`
	Owner          uuid.UUID       `json:"owner"`
	Pair           string          `json:"pair"`
	AmountIn       decimal.Decimal `json:"amount_in"`
	AmountOut      decimal.Decimal `json:"amount_out"`
	ExecutionPrice decimal.Decimal `json:"execution_price"`
}

// NewOrderEvent wraps an order payload in an envelope.
func NewOrderEvent(eventType, pair string, payload interface{}) Event {
	return Event{
		ID:        uuid.New(),
		Topic:     TopicOrder,
		Type:      eventType,
		Pair:      pair,
		Timestamp: time.Now(),
		Payload:   payload,
	}
}
