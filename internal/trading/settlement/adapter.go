// Package settlement executes a triggered order against the venue as a single
// all-or-nothing unit with slippage protection.
package settlement

import (
	"context"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Aidin1998/triggerbook/internal/trading/model"
	"github.com/Aidin1998/triggerbook/pkg/errors"
	"github.com/Aidin1998/triggerbook/pkg/logger"
)

const bpsDenominator = 10_000

var bpsScale = decimal.NewFromInt(bpsDenominator)

// Config describes the pair an adapter settles for.
type Config struct {
	Pair           string
	BaseAsset      string
	QuoteAsset     string
	MaxSlippageBps int64
}

// Result is the outcome of a settlement attempt.
type Result struct {
	ExpectedOut    decimal.Decimal
	Floor          decimal.Decimal
	AmountOut      decimal.Decimal
	ExecutionPrice decimal.Decimal
}

// Adapter settles orders against a venue and credits the proceeds.
type Adapter struct {
	cfg      Config
	venue    Venue
	custody  Custody
	logger   *zap.Logger
	tracer   trace.Tracer
	attempts metric.Int64Counter
}

// NewAdapter creates a settlement adapter.
func NewAdapter(cfg Config, venue Venue, custody Custody, log *zap.Logger) (*Adapter, error) {
	if cfg.MaxSlippageBps < 0 || cfg.MaxSlippageBps > bpsDenominator {
		return nil, errors.Validation.Explain("max slippage must be within 0..%d bps, got %d", bpsDenominator, cfg.MaxSlippageBps)
	}
	if venue == nil || custody == nil {
		return nil, errors.Validation.Explain("settlement adapter needs a venue and a custody collaborator")
	}
	attempts, err := otel.Meter("triggerbook/settlement").Int64Counter("settlement.attempts",
		metric.WithDescription("Settlement attempts by outcome"))
	if err != nil {
		return nil, err
	}
	return &Adapter{
		cfg:      cfg,
		venue:    venue,
		custody:  custody,
		logger:   logger.OrNop(log).With(zap.String("pair", cfg.Pair)),
		tracer:   otel.Tracer("triggerbook/settlement"),
		attempts: attempts,
	}, nil
}

// ExpectedOut is amountIn converted at the order's own trigger price.
func ExpectedOut(o *model.Order) decimal.Decimal {
	if o.Direction == model.ConvertAToB {
		return o.AmountIn.Mul(o.TriggerPrice)
	}
	return o.AmountIn.Div(o.TriggerPrice)
}

// Floor is the minimum acceptable output for o under maxSlippageBps.
func Floor(o *model.Order, maxSlippageBps int64) decimal.Decimal {
	keep := decimal.NewFromInt(bpsDenominator - maxSlippageBps).Div(bpsScale)
	return ExpectedOut(o).Mul(keep)
}

// executionPrice expresses a realized conversion as B per A.
func executionPrice(o *model.Order, out decimal.Decimal) decimal.Decimal {
	if o.Direction == model.ConvertAToB {
		return out.Div(o.AmountIn)
	}
	return o.AmountIn.Div(out)
}

// Settle converts o.AmountIn on the venue and credits the realized output to
// o.Owner. When the output is below the slippage floor the exchange is rolled
// back and a SlippageViolation is returned; no assets move in that case.
// Settle never mutates o.
func (a *Adapter) Settle(ctx context.Context, o *model.Order) (res Result, err error) {
	ctx, span := a.tracer.Start(ctx, "settlement.Settle", trace.WithAttributes(
		attribute.String("pair", a.cfg.Pair),
		attribute.Int64("order_id", int64(o.ID)),
		attribute.String("direction", o.Direction.String()),
	))
	defer func() {
		outcome := "filled"
		if err != nil {
			outcome = errors.KindOf(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		}
		a.attempts.Add(ctx, 1, metric.WithAttributes(
			attribute.String("pair", a.cfg.Pair),
			attribute.String("outcome", outcome),
		))
		span.End()
	}()

	assetIn, assetOut := o.Direction.Assets(a.cfg.BaseAsset, a.cfg.QuoteAsset)
	res.ExpectedOut = ExpectedOut(o)
	res.Floor = Floor(o, a.cfg.MaxSlippageBps)

	ex, err := a.venue.BeginExchange(ctx, ExchangeRequest{
		OrderID:   o.ID,
		Pair:      a.cfg.Pair,
		Direction: o.Direction,
		AssetIn:   assetIn,
		AssetOut:  assetOut,
		AmountIn:  o.AmountIn,
	})
	if err != nil {
		return res, errors.Venue.Wrap(err).Explain("begin exchange for order %d", o.ID)
	}

	out := ex.AmountOut()
	if !out.IsPositive() || out.LessThan(res.Floor) {
		a.rollback(ex, o.ID)
		return res, errors.SlippageViolation.Explain("order %d realized %s below floor %s", o.ID, out, res.Floor)
	}

	if err := a.custody.Credit(ctx, o.Owner, assetOut, out); err != nil {
		a.rollback(ex, o.ID)
		return res, errors.Custody.Wrap(err).Explain("credit %s %s to owner of order %d", out, assetOut, o.ID)
	}

	if err := ex.Commit(); err != nil {
		// The venue kept its side; take back the credit.
		if derr := a.custody.Debit(ctx, o.Owner, assetOut, out); derr != nil {
			a.logger.Error("Failed to reverse credit after exchange commit failure",
				zap.Uint64("order_id", o.ID),
				zap.Stringer("amount", out),
				zap.String("asset", assetOut),
				zap.Error(derr))
			return res, errors.LedgerDivergence.Wrap(errors.Join(err, derr)).
				Explain("order %d: owner keeps %s %s credited for an exchange that did not commit", o.ID, out, assetOut)
		}
		return res, errors.Venue.Wrap(err).Explain("commit exchange for order %d", o.ID)
	}

	res.AmountOut = out
	res.ExecutionPrice = executionPrice(o, out)
	a.logger.Debug("Order settled",
		zap.Uint64("order_id", o.ID),
		zap.Stringer("amount_in", o.AmountIn),
		zap.Stringer("amount_out", out),
		zap.Stringer("floor", res.Floor))
	return res, nil
}

func (a *Adapter) rollback(ex Exchange, orderID uint64) {
	if err := ex.Rollback(); err != nil {
		a.logger.Error("Exchange rollback failed", zap.Uint64("order_id", orderID), zap.Error(err))
	}
}
