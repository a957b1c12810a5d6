// Package simvenue is an in-process, continuously quoted venue. Every trade
// that moves the price calls the registered observers synchronously before it
// completes, and an observer error rolls the trade back.
package simvenue

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Aidin1998/triggerbook/internal/trading/model"
	"github.com/Aidin1998/triggerbook/internal/trading/settlement"
	"github.com/Aidin1998/triggerbook/pkg/errors"
	"github.com/Aidin1998/triggerbook/pkg/logger"
)

var bps = decimal.NewFromInt(10_000)

// Config configures a simulated venue.
type Config struct {
	Pair         string
	InitialPrice decimal.Decimal
	// HaircutBps is subtracted from every exchange output, simulating fees
	// and depth. A large haircut makes settlements fail their slippage floor.
	HaircutBps int64
	// ImpactBps moves the price on every committed exchange: selling A
	// pushes it down, buying A pushes it up.
	ImpactBps int64
}

// Stats counts exchange outcomes.
type Stats struct {
	Trades     int
	Committed  int
	RolledBack int
}

// Venue is a single-pair simulated venue.
type Venue struct {
	mu         sync.Mutex
	cfg        Config
	price      decimal.Decimal
	observers  []model.PriceObserver
	stats      Stats
	failCommit error
	logger     *zap.Logger
}

var _ settlement.Venue = (*Venue)(nil)

// New creates a venue quoting cfg.InitialPrice.
func New(cfg Config, log *zap.Logger) (*Venue, error) {
	if !cfg.InitialPrice.IsPositive() {
		return nil, errors.Validation.Explain("initial price must be positive")
	}
	return &Venue{
		cfg:    cfg,
		price:  cfg.InitialPrice,
		logger: logger.OrNop(log).With(zap.String("venue", cfg.Pair)),
	}, nil
}

// Subscribe registers an observer called after every price change.
func (v *Venue) Subscribe(o model.PriceObserver) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.observers = append(v.observers, o)
}

// Price returns the current quote.
func (v *Venue) Price() decimal.Decimal {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.price
}

// Stats returns exchange counters.
func (v *Venue) Stats() Stats {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stats
}

// SetHaircut changes the output haircut for subsequent exchanges.
func (v *Venue) SetHaircut(haircutBps int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cfg.HaircutBps = haircutBps
}

// FailNextCommit makes the next Commit return err without moving anything.
func (v *Venue) FailNextCommit(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.failCommit = err
}

// Trade executes an external trade that moves the price to newPrice, then
// notifies every observer. If any observer fails the price is restored and
// the error returned.
func (v *Venue) Trade(ctx context.Context, direction model.Direction, newPrice decimal.Decimal) error {
	if !newPrice.IsPositive() {
		return errors.Validation.Explain("trade price must be positive")
	}
	v.mu.Lock()
	prev := v.price
	v.price = newPrice
	v.stats.Trades++
	v.mu.Unlock()

	if err := v.notify(ctx, direction, newPrice); err != nil {
		v.mu.Lock()
		v.price = prev
		v.stats.Trades--
		v.mu.Unlock()
		v.logger.Warn("Trade rolled back by observer", zap.Stringer("price", newPrice), zap.Error(err))
		return err
	}
	return nil
}

func (v *Venue) notify(ctx context.Context, direction model.Direction, price decimal.Decimal) error {
	v.mu.Lock()
	observers := append([]model.PriceObserver(nil), v.observers...)
	v.mu.Unlock()

	ev := model.PriceEvent{Price: price, TradeDirection: direction, At: time.Now()}
	for _, o := range observers {
		if err := o.OnPriceEvent(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

// BeginExchange quotes req at the current price less the haircut.
func (v *Venue) BeginExchange(ctx context.Context, req settlement.ExchangeRequest) (settlement.Exchange, error) {
	if !req.AmountIn.IsPositive() {
		return nil, errors.Validation.Explain("exchange amount must be positive")
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	keep := bps.Sub(decimal.NewFromInt(v.cfg.HaircutBps)).Div(bps)
	var out decimal.Decimal
	if req.Direction == model.ConvertAToB {
		out = req.AmountIn.Mul(v.price)
	} else {
		out = req.AmountIn.Div(v.price)
	}
	return &exchange{ctx: ctx, venue: v, req: req, out: out.Mul(keep)}, nil
}

type exchange struct {
	ctx   context.Context
	venue *Venue
	req   settlement.ExchangeRequest
	out   decimal.Decimal
	done  bool
}

func (e *exchange) AmountOut() decimal.Decimal { return e.out }

func (e *exchange) Commit() error {
	if e.done {
		return errors.Venue.Explain("exchange for order %d already finished", e.req.OrderID)
	}
	v := e.venue
	v.mu.Lock()
	if err := v.failCommit; err != nil {
		v.failCommit = nil
		v.mu.Unlock()
		return err
	}
	e.done = true
	v.stats.Committed++
	moved := false
	if v.cfg.ImpactBps > 0 {
		impact := decimal.NewFromInt(v.cfg.ImpactBps).Div(bps)
		if e.req.Direction == model.ConvertAToB {
			v.price = v.price.Mul(decimal.NewFromInt(1).Sub(impact))
		} else {
			v.price = v.price.Mul(decimal.NewFromInt(1).Add(impact))
		}
		moved = true
	}
	price := v.price
	v.mu.Unlock()

	if moved {
		// Our own fill is a price-changing trade too; observers see it
		// while the triggering scan is still running. The exchange is
		// already committed, so an observer failure cannot undo it.
		if err := v.notify(e.ctx, e.req.Direction, price); err != nil {
			v.logger.Warn("Observer failed after committed exchange",
				zap.Uint64("order_id", e.req.OrderID), zap.Error(err))
		}
	}
	return nil
}

func (e *exchange) Rollback() error {
	if e.done {
		return errors.Venue.Explain("exchange for order %d already finished", e.req.OrderID)
	}
	e.done = true
	e.venue.mu.Lock()
	e.venue.stats.RolledBack++
	e.venue.mu.Unlock()
	return nil
}
