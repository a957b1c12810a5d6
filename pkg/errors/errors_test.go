package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_IsMatchesKind(t *testing.T) {
	err := StateConflict.Explain("order %d is %s", 7, "FILLED")

	assert.True(t, Is(err, StateConflict))
	assert.False(t, Is(err, Authorization))
	assert.Equal(t, "[StateConflict] order 7 is FILLED", err.Error())
}

func TestError_WrapDoesNotMutateSentinel(t *testing.T) {
	cause := stderrors.New("redis down")
	err := Custody.Wrap(cause).Explain("debit failed")

	assert.Nil(t, Custody.Unwrap())
	assert.Empty(t, Custody.Message)
	assert.True(t, Is(err, Custody))
	assert.True(t, Is(err, cause))
	assert.Contains(t, err.Error(), "redis down")
}

func TestError_IsThroughFmtWrap(t *testing.T) {
	err := fmt.Errorf("create: %w", Validation.Explain("amount must be positive"))

	assert.True(t, Is(err, Validation))
	assert.Equal(t, KindValidation, KindOf(err))
	assert.Equal(t, "", KindOf(stderrors.New("plain")))
}

func TestError_WithField(t *testing.T) {
	base := Validation.Explain("invalid order")
	err := base.WithField("positive", "amount_in", "must be > 0").WithField("positive", "trigger_price", "must be > 0")

	require.Len(t, err.Fields, 2)
	assert.Empty(t, base.Fields)
	assert.Equal(t, "trigger_price", err.Fields[1].Field)
}
