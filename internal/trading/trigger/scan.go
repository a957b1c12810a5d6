package trigger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Aidin1998/triggerbook/internal/trading/events"
	"github.com/Aidin1998/triggerbook/internal/trading/model"
	"github.com/Aidin1998/triggerbook/internal/trading/settlement"
	"github.com/Aidin1998/triggerbook/pkg/errors"
	"github.com/Aidin1998/triggerbook/pkg/metrics"
)

// Settler performs the all-or-nothing exchange for a triggered order.
type Settler interface {
	Settle(ctx context.Context, o *model.Order) (settlement.Result, error)
}

// Report describes what one price event did.
type Report struct {
	Price            decimal.Decimal
	Level            int64
	Filled           []uint64
	SlippageRejected []uint64
	Failed           []uint64
	StaleRemoved     int
	LevelsScanned    int
	BudgetUsed       int
	BudgetExhausted  bool
	// Reentrant is set when the call arrived while a scan was already
	// running and was ignored.
	Reentrant bool
}

// OnPriceEvent scans the window around ev.Price and executes every eligible
// order the budget allows. Levels are visited in ascending order; members of
// a level in their current index order.
//
// A nested call made while a scan is running (for example from the venue
// while a settlement commits) returns immediately with Report.Reentrant set.
// An IndexCorruption or LedgerDivergence error aborts the scan; the caller is
// expected to fail the triggering trade.
func (e *Engine) OnPriceEvent(ctx context.Context, ev model.PriceEvent) (rep Report, err error) {
	if !e.active.CompareAndSwap(false, true) {
		return e.Ignore(ev), nil
	}
	defer e.active.Store(false)

	if !ev.Price.IsPositive() {
		return rep, errors.Validation.Explain("price event must carry a positive price, got %s", ev.Price)
	}
	level, err := e.grid.Level(ev.Price)
	if err != nil {
		return rep, err
	}

	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "trigger.OnPriceEvent", trace.WithAttributes(
		attribute.String("pair", e.cfg.Pair),
		attribute.String("price", ev.Price.String()),
	))
	defer func() {
		span.SetAttributes(
			attribute.Int("filled", len(rep.Filled)),
			attribute.Int("budget_used", rep.BudgetUsed),
			attribute.Bool("budget_exhausted", rep.BudgetExhausted),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, errors.KindOf(err))
		}
		span.End()

		elapsed := time.Since(start)
		e.recordLatency(elapsed)
		e.eventsProcessed.Add(1)
		metrics.ScanLatency.WithLabelValues(e.cfg.Pair).Observe(elapsed.Seconds())
		metrics.OpenOrders.WithLabelValues(e.cfg.Pair).Set(float64(e.store.OpenCount()))
	}()

	rep.Price = ev.Price
	rep.Level = level
	err = e.scan(ctx, ev, &rep)
	if err != nil {
		e.logger.Error("Trigger scan aborted",
			zap.Stringer("price", ev.Price),
			zap.Int64("level", rep.Level),
			zap.Error(err))
	}
	return rep, err
}

// Ignore records ev as dropped because a scan was already running. It does
// not touch the store or the index.
func (e *Engine) Ignore(ev model.PriceEvent) Report {
	e.reentrantIgnored.Add(1)
	metrics.ReentrantCalls.WithLabelValues(e.cfg.Pair).Inc()
	return Report{Price: ev.Price, Reentrant: true}
}

func (e *Engine) scan(ctx context.Context, ev model.PriceEvent, rep *Report) error {
	remaining := e.cfg.Budget.Units
	cost := e.cfg.Budget.CostPerExecution
	lo, hi := e.Window(rep.Level)

	for _, level := range e.index.LevelsIn(lo, hi) {
		rep.LevelsScanned++
		for _, id := range e.index.MembersAt(level) {
			o, ok := e.store.Get(id)
			if !ok {
				return errors.IndexCorruption.Explain("level %d references unknown order %d", level, id)
			}

			if !o.IsOpen() {
				if err := e.index.Remove(id); err != nil {
					return err
				}
				rep.StaleRemoved++
				metrics.StaleRemoved.WithLabelValues(e.cfg.Pair).Inc()
				continue
			}

			if !o.Eligible(ev.Price) {
				continue
			}
			if e.cfg.GateSameDirection && ev.TradeDirection != "" && ev.TradeDirection == o.Direction {
				continue
			}

			if remaining < cost {
				rep.BudgetExhausted = true
				e.budgetExhaustions.Add(1)
				metrics.BudgetExhausted.WithLabelValues(e.cfg.Pair).Inc()
				e.logger.Debug("Trigger budget exhausted",
					zap.Stringer("price", ev.Price),
					zap.Int("filled", len(rep.Filled)))
				return nil
			}
			remaining -= cost
			rep.BudgetUsed += cost

			if err := e.execute(ctx, o, ev, rep); err != nil {
				return err
			}
		}
	}
	return nil
}

// execute settles one eligible order and records the outcome. Only an index,
// store or ledger inconsistency is returned as an error; failed settlements
// leave the order Open for a later event.
func (e *Engine) execute(ctx context.Context, o *model.Order, ev model.PriceEvent, rep *Report) error {
	res, err := e.settler.Settle(ctx, o)
	if err != nil {
		if errors.Is(err, errors.SlippageViolation) {
			rep.SlippageRejected = append(rep.SlippageRejected, o.ID)
			metrics.SlippageRejections.WithLabelValues(e.cfg.Pair).Inc()
			e.logger.Debug("Order skipped on slippage",
				zap.Uint64("order_id", o.ID),
				zap.Stringer("trigger_price", o.TriggerPrice),
				zap.Stringer("price", ev.Price))
			return nil
		}
		if errors.Is(err, errors.LedgerDivergence) {
			rep.Failed = append(rep.Failed, o.ID)
			metrics.SettlementFailures.WithLabelValues(e.cfg.Pair).Inc()
			return err
		}
		rep.Failed = append(rep.Failed, o.ID)
		metrics.SettlementFailures.WithLabelValues(e.cfg.Pair).Inc()
		e.logger.Warn("Order settlement failed",
			zap.Uint64("order_id", o.ID),
			zap.Stringer("price", ev.Price),
			zap.Error(err))
		return nil
	}

	if err := e.store.MarkFilled(o.ID, res.AmountOut, res.ExecutionPrice, e.now()); err != nil {
		return errors.IndexCorruption.Wrap(err).Explain("order %d settled but could not be marked filled", o.ID)
	}
	if err := e.index.Remove(o.ID); err != nil {
		return err
	}

	rep.Filled = append(rep.Filled, o.ID)
	e.ordersFilled.Add(1)
	metrics.OrdersFilled.WithLabelValues(e.cfg.Pair, o.Direction.String()).Inc()
	e.publisher.Publish(ctx, events.NewOrderEvent(events.TypeOrderFilled, e.cfg.Pair, events.OrderFilled{
		OrderID:        o.ID,
		Owner:          o.Owner,
		Pair:           e.cfg.Pair,
		AmountIn:       o.AmountIn,
		AmountOut:      res.AmountOut,
		ExecutionPrice: res.ExecutionPrice,
	}))
	e.logger.Info("Executing trigger",
		zap.Uint64("order_id", o.ID),
		zap.String("direction", o.Direction.String()),
		zap.Stringer("trigger_price", o.TriggerPrice),
		zap.Stringer("price", ev.Price),
		zap.Stringer("amount_out", res.AmountOut))
	return nil
}
