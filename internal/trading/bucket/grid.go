package bucket

import (
	"github.com/shopspring/decimal"

	"github.com/Aidin1998/triggerbook/pkg/errors"
)

// Grid quantizes the continuous price axis into levels of width Step.
type Grid struct {
	step decimal.Decimal
}

// NewGrid returns a grid with the given price granularity.
func NewGrid(step decimal.Decimal) (Grid, error) {
	if !step.IsPositive() {
		return Grid{}, errors.Validation.Explain("price step must be positive, got %s", step)
	}
	return Grid{step: step}, nil
}

// Step returns the grid width.
func (g Grid) Step() decimal.Decimal { return g.step }

// Level returns floor(price / step). Prices whose level does not fit in an
// int64 are rejected with a Validation error.
func (g Grid) Level(price decimal.Decimal) (int64, error) {
	q, r := price.QuoRem(g.step, 0)
	if r.IsNegative() {
		q = q.Sub(decimal.NewFromInt(1))
	}
	if !q.BigInt().IsInt64() {
		return 0, errors.Validation.Explain("price %s is out of range for step %s", price, g.step)
	}
	return q.IntPart(), nil
}

// Price returns the lower bound of level.
func (g Grid) Price(level int64) decimal.Decimal {
	return g.step.Mul(decimal.NewFromInt(level))
}
