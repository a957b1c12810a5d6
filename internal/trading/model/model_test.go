package model

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestOrder_Eligible(t *testing.T) {
	sell := &Order{Direction: ConvertAToB, TriggerPrice: decimal.NewFromInt(2000)}
	buy := &Order{Direction: ConvertBToA, TriggerPrice: decimal.NewFromInt(1900)}

	assert.True(t, sell.Eligible(decimal.NewFromInt(2100)))
	assert.True(t, sell.Eligible(decimal.NewFromInt(2000)))
	assert.False(t, sell.Eligible(decimal.NewFromInt(1999)))

	assert.False(t, buy.Eligible(decimal.NewFromInt(1950)))
	assert.True(t, buy.Eligible(decimal.NewFromInt(1900)))
	assert.True(t, buy.Eligible(decimal.NewFromInt(1850)))

	assert.False(t, (&Order{TriggerPrice: decimal.NewFromInt(1)}).Eligible(decimal.NewFromInt(1)))
}

func TestDirection_Assets(t *testing.T) {
	in, out := ConvertAToB.Assets("ETH", "USDC")
	assert.Equal(t, "ETH", in)
	assert.Equal(t, "USDC", out)

	in, out = ConvertBToA.Assets("ETH", "USDC")
	assert.Equal(t, "USDC", in)
	assert.Equal(t, "ETH", out)

	assert.Equal(t, ConvertBToA, ConvertAToB.Opposite())
	assert.False(t, Direction("SIDEWAYS").Valid())
}

func TestOrderStatus_Terminal(t *testing.T) {
	assert.False(t, OrderStatusOpen.Terminal())
	assert.True(t, OrderStatusFilled.Terminal())
	assert.True(t, OrderStatusCancelled.Terminal())
}

func TestOrder_SnapshotIsDetached(t *testing.T) {
	o := &Order{ID: 1, Status: OrderStatusOpen}
	snap := o.Snapshot()
	o.Status = OrderStatusFilled
	assert.Equal(t, OrderStatusOpen, snap.Status)
}
