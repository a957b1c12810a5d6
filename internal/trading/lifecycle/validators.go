package lifecycle

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Aidin1998/triggerbook/internal/trading/model"
	"github.com/Aidin1998/triggerbook/pkg/errors"
)

// OrderValidator defines the interface for order validation
type OrderValidator interface {
	ValidateOrder(ctx context.Context, req *CreateRequest) error
	Name() string
}

// BasicOrderValidator enforces the invariants every order must satisfy
type BasicOrderValidator struct{}

// ValidateOrder validates basic order requirements
func (BasicOrderValidator) ValidateOrder(_ context.Context, req *CreateRequest) error {
	err := errors.Validation.Explain("invalid order")
	failed := false

	if req.Owner == uuid.Nil {
		err, failed = err.WithField("required", "owner", "owner is required"), true
	}
	if !req.Direction.Valid() {
		err, failed = err.WithField("oneof", "direction", "must be "+string(model.ConvertAToB)+" or "+string(model.ConvertBToA)), true
	}
	if !req.AmountIn.IsPositive() {
		err, failed = err.WithField("positive", "amount_in", "must be greater than zero"), true
	}
	if !req.TriggerPrice.IsPositive() {
		err, failed = err.WithField("positive", "trigger_price", "must be greater than zero"), true
	}

	if failed {
		return err
	}
	return nil
}

// Name returns the validator name
func (BasicOrderValidator) Name() string {
	return "BasicOrderValidator"
}

// LimitsValidator enforces per-pair size limits. A zero bound is unlimited.
type LimitsValidator struct {
	MinAmountIn decimal.Decimal
	MaxAmountIn decimal.Decimal
}

// ValidateOrder validates pair-specific order limits
func (v LimitsValidator) ValidateOrder(_ context.Context, req *CreateRequest) error {
	if v.MinAmountIn.IsPositive() && req.AmountIn.LessThan(v.MinAmountIn) {
		return errors.Validation.Explain("amount %s below pair minimum %s", req.AmountIn, v.MinAmountIn).
			WithField("min", "amount_in", v.MinAmountIn.String())
	}
	if v.MaxAmountIn.IsPositive() && req.AmountIn.GreaterThan(v.MaxAmountIn) {
		return errors.Validation.Explain("amount %s above pair maximum %s", req.AmountIn, v.MaxAmountIn).
			WithField("max", "amount_in", v.MaxAmountIn.String())
	}
	return nil
}

// Name returns the validator name
func (LimitsValidator) Name() string {
	return "LimitsValidator"
}
