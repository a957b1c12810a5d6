package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryEventBus_DeliversToTopic(t *testing.T) {
	bus := NewInMemoryEventBus(nil)
	var got []Event
	bus.Subscribe(TopicOrder, func(e Event) { got = append(got, e) })
	bus.Subscribe("other", func(Event) { t.Fatal("wrong topic") })

	bus.Publish(context.Background(), NewOrderEvent(TypeOrderCreated, "ETH/USDC", OrderCreated{OrderID: 1}))

	require.Len(t, got, 1)
	assert.Equal(t, TypeOrderCreated, got[0].Type)
	assert.Equal(t, EventBusMetrics{Published: 1, Delivered: 1}, bus.Metrics())
}

func TestInMemoryEventBus_RecoversHandlerPanic(t *testing.T) {
	bus := NewInMemoryEventBus(nil)
	delivered := false
	bus.Subscribe(TopicOrder, func(Event) { panic("indexer bug") })
	bus.Subscribe(TopicOrder, func(Event) { delivered = true })

	assert.NotPanics(t, func() {
		bus.Publish(context.Background(), NewOrderEvent(TypeOrderFilled, "ETH/USDC", OrderFilled{OrderID: 1}))
	})
	assert.True(t, delivered)
	assert.Equal(t, int64(1), bus.Metrics().Failed)
}

type recordingWriter struct {
	msgs   []kafka.Message
	closed bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaEventBus_EncodesEvent(t *testing.T) {
	w := &recordingWriter{}
	bus := newKafkaEventBus(w, nil)

	ev := NewOrderEvent(TypeOrderFilled, "ETH/USDC", OrderFilled{
		OrderID:        9,
		AmountIn:       decimal.NewFromInt(100),
		AmountOut:      decimal.NewFromInt(210000),
		ExecutionPrice: decimal.NewFromInt(2100),
	})
	bus.Publish(context.Background(), ev)
	require.NoError(t, bus.Close())

	require.Len(t, w.msgs, 1)
	assert.True(t, w.closed)
	assert.Equal(t, "ETH/USDC", string(w.msgs[0].Key))
	assert.Equal(t, "event_type", w.msgs[0].Headers[0].Key)
	assert.Equal(t, TypeOrderFilled, string(w.msgs[0].Headers[0].Value))

	var decoded struct {
		Type    string `json:"type"`
		Payload struct {
			OrderID   uint64          `json:"order_id"`
			AmountOut decimal.Decimal `json:"amount_out"`
		} `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &decoded))
	assert.Equal(t, TypeOrderFilled, decoded.Type)
	assert.Equal(t, uint64(9), decoded.Payload.OrderID)
	assert.True(t, decoded.Payload.AmountOut.Equal(decimal.NewFromInt(210000)))
}

func TestMultiPublisher(t *testing.T) {
	a, b := NewInMemoryEventBus(nil), NewInMemoryEventBus(nil)
	MultiPublisher{a, b, Nop{}}.Publish(context.Background(), NewOrderEvent(TypeOrderCancelled, "ETH/USDC", OrderCancelled{}))
	assert.Equal(t, int64(1), a.Metrics().Published)
	assert.Equal(t, int64(1), b.Metrics().Published)
}
