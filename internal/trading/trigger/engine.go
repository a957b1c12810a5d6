// Package trigger executes resting orders when the venue price crosses their
// trigger. It runs synchronously inside the venue trade that moved the price,
// scans a bounded window of price buckets around the new price and stops as
// soon as its per-event execution budget is spent, so a backlog of resting
// orders can only defer fills, never stall the trade.
package trigger

import (
	"math"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Aidin1998/triggerbook/internal/trading/bucket"
	"github.com/Aidin1998/triggerbook/internal/trading/events"
	"github.com/Aidin1998/triggerbook/internal/trading/store"
	"github.com/Aidin1998/triggerbook/pkg/errors"
	"github.com/Aidin1998/triggerbook/pkg/logger"
)

// Budget bounds the execution work of one price event.
type Budget struct {
	// Units available per price event.
	Units int `mapstructure:"units"`
	// CostPerExecution is charged for every settlement attempt, successful
	// or not. Stale cleanup and eligibility checks are free.
	CostPerExecution int `mapstructure:"cost_per_execution"`
}

// Config configures the scan for one pair.
type Config struct {
	Pair string
	// ScanWindow is the number of grid levels scanned on each side of the
	// level holding the current price.
	ScanWindow int64
	Budget     Budget
	// GateSameDirection skips orders whose direction matches the trade that
	// moved the price, so they do not compete for the same liquidity.
	GateSameDirection bool
}

// Validate checks the scan configuration.
func (c Config) Validate() error {
	if c.ScanWindow < 0 {
		return errors.Validation.Explain("scan window must not be negative, got %d", c.ScanWindow)
	}
	if c.Budget.Units < 0 {
		return errors.Validation.Explain("budget units must not be negative, got %d", c.Budget.Units)
	}
	if c.Budget.CostPerExecution < 1 {
		return errors.Validation.Explain("cost per execution must be at least 1, got %d", c.Budget.CostPerExecution)
	}
	return nil
}

// Engine is the per-pair trigger engine.
type Engine struct {
	cfg       Config
	grid      bucket.Grid
	store     *store.Store
	index     *bucket.Index
	settler   Settler
	publisher events.Publisher
	logger    *zap.Logger
	tracer    trace.Tracer
	now       func() time.Time

	// active is the non-reentrant execution token held for the duration of
	// one OnPriceEvent call.
	active atomic.Bool

	eventsProcessed   atomic.Int64
	ordersFilled      atomic.Int64
	reentrantIgnored  atomic.Int64
	budgetExhaustions atomic.Int64
	maxLatencyNs      atomic.Int64
}

// New creates a trigger engine over the pair's store and index.
func New(cfg Config, grid bucket.Grid, st *store.Store, ix *bucket.Index, settler Settler, pub events.Publisher, log *zap.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if st == nil || ix == nil || settler == nil {
		return nil, errors.Validation.Explain("trigger engine needs a store, an index and a settler")
	}
	if pub == nil {
		pub = events.Nop{}
	}
	return &Engine{
		cfg:       cfg,
		grid:      grid,
		store:     st,
		index:     ix,
		settler:   settler,
		publisher: pub,
		logger:    logger.OrNop(log).With(zap.String("pair", cfg.Pair)),
		tracer:    otel.Tracer("triggerbook/trigger"),
		now:       time.Now,
	}, nil
}

// Active reports whether a scan is in progress.
func (e *Engine) Active() bool { return e.active.Load() }

// Window returns the inclusive level range scanned for price level center,
// clamped to the int64 range.
func (e *Engine) Window(center int64) (lo, hi int64) {
	w := e.cfg.ScanWindow
	lo, hi = center-w, center+w
	if center < math.MinInt64+w {
		lo = math.MinInt64
	}
	if center > math.MaxInt64-w {
		hi = math.MaxInt64
	}
	return lo, hi
}

// GetTriggerStats returns trigger engine statistics
func (e *Engine) GetTriggerStats() map[string]interface{} {
	return map[string]interface{}{
		"events_processed":   e.eventsProcessed.Load(),
		"orders_filled":      e.ordersFilled.Load(),
		"reentrant_ignored":  e.reentrantIgnored.Load(),
		"budget_exhaustions": e.budgetExhaustions.Load(),
		"max_latency_ns":     e.maxLatencyNs.Load(),
		"open_orders":        e.store.OpenCount(),
		"indexed_orders":     e.index.Len(),
		"scan_window":        e.cfg.ScanWindow,
		"budget_units":       e.cfg.Budget.Units,
	}
}

func (e *Engine) recordLatency(d time.Duration) {
	ns := d.Nanoseconds()
	for {
		cur := e.maxLatencyNs.Load()
		if ns <= cur || e.maxLatencyNs.CompareAndSwap(cur, ns) {
			return
		}
	}
}
