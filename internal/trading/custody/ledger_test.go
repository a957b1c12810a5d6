package custody

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aidin1998/triggerbook/pkg/errors"
)

func TestLedger_DebitCredit(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(nil)
	acct := uuid.New()

	require.NoError(t, l.Credit(ctx, acct, "ETH", decimal.NewFromInt(150)))
	require.NoError(t, l.Debit(ctx, acct, "ETH", decimal.NewFromInt(100)))

	bal, err := l.Balance(ctx, acct, "ETH")
	require.NoError(t, err)
	assert.True(t, bal.Equal(decimal.NewFromInt(50)))
}

func TestLedger_DebitInsufficient(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(nil)
	acct := uuid.New()

	err := l.Debit(ctx, acct, "ETH", decimal.NewFromInt(1))
	assert.True(t, errors.Is(err, errors.Custody))

	require.NoError(t, l.Credit(ctx, acct, "ETH", decimal.NewFromInt(1)))
	err = l.Debit(ctx, acct, "ETH", decimal.RequireFromString("1.0000001"))
	assert.True(t, errors.Is(err, errors.Custody))

	bal, _ := l.Balance(ctx, acct, "ETH")
	assert.True(t, bal.Equal(decimal.NewFromInt(1)), "failed debit leaves balance untouched")
}

func TestLedger_RejectsNonPositiveAmounts(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(nil)
	assert.True(t, errors.Is(l.Credit(ctx, uuid.New(), "ETH", decimal.Zero), errors.Validation))
	assert.True(t, errors.Is(l.Debit(ctx, uuid.New(), "ETH", decimal.NewFromInt(-3)), errors.Validation))
}
