// Package engine composes the per-pair trigger book and routes calls to it by
// pair symbol.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Aidin1998/triggerbook/internal/trading/bucket"
	"github.com/Aidin1998/triggerbook/internal/trading/config"
	"github.com/Aidin1998/triggerbook/internal/trading/events"
	"github.com/Aidin1998/triggerbook/internal/trading/lifecycle"
	"github.com/Aidin1998/triggerbook/internal/trading/model"
	"github.com/Aidin1998/triggerbook/internal/trading/settlement"
	"github.com/Aidin1998/triggerbook/internal/trading/store"
	"github.com/Aidin1998/triggerbook/internal/trading/trigger"
	"github.com/Aidin1998/triggerbook/pkg/errors"
	"github.com/Aidin1998/triggerbook/pkg/logger"
)

// PairEngine owns the store, index and engines of one pair.
//
// Public calls are serialised by mu. A price event arriving while a scan is
// running is ignored without taking the lock: on the scanning goroutine it is
// the venue calling back from a settlement, and waiting would deadlock.
// Event handlers on the publisher must not call back into the engine.
type PairEngine struct {
	mu        sync.Mutex
	cfg       config.PairConfig
	grid      bucket.Grid
	store     *store.Store
	index     *bucket.Index
	trigger   *trigger.Engine
	lifecycle *lifecycle.Manager
	last      trigger.Report
	logger    *zap.Logger
}

var _ model.PriceObserver = (*PairEngine)(nil)

// NewPairEngine wires a pair engine against venue and custody.
func NewPairEngine(cfg config.PairConfig, venue settlement.Venue, custody settlement.Custody, pub events.Publisher, log *zap.Logger) (*PairEngine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log = logger.OrNop(log)

	grid, err := bucket.NewGrid(cfg.PriceStep)
	if err != nil {
		return nil, err
	}
	adapter, err := settlement.NewAdapter(settlement.Config{
		Pair:           cfg.Symbol,
		BaseAsset:      cfg.BaseAsset,
		QuoteAsset:     cfg.QuoteAsset,
		MaxSlippageBps: cfg.MaxSlippageBps,
	}, venue, custody, log)
	if err != nil {
		return nil, err
	}

	st := store.New()
	ix := bucket.NewIndex()
	te, err := trigger.New(cfg.TriggerConfig(), grid, st, ix, adapter, pub, log)
	if err != nil {
		return nil, err
	}
	lm := lifecycle.NewManager(lifecycle.Config{
		Pair:       cfg.Symbol,
		BaseAsset:  cfg.BaseAsset,
		QuoteAsset: cfg.QuoteAsset,
	}, grid, st, ix, custody, pub, log)
	if cfg.MinAmountIn.IsPositive() || cfg.MaxAmountIn.IsPositive() {
		lm.AddValidator(lifecycle.LimitsValidator{MinAmountIn: cfg.MinAmountIn, MaxAmountIn: cfg.MaxAmountIn})
	}

	return &PairEngine{
		cfg:       cfg,
		grid:      grid,
		store:     st,
		index:     ix,
		trigger:   te,
		lifecycle: lm,
		logger:    log.With(zap.String("pair", cfg.Symbol)),
	}, nil
}

// Pair returns the pair symbol.
func (p *PairEngine) Pair() string { return p.cfg.Symbol }

// Grid returns the price grid orders are bucketed on.
func (p *PairEngine) Grid() bucket.Grid { return p.grid }

// Create places a trigger order.
func (p *PairEngine) Create(ctx context.Context, req lifecycle.CreateRequest) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lifecycle.Create(ctx, req)
}

// Cancel cancels an Open order on behalf of caller.
func (p *PairEngine) Cancel(ctx context.Context, caller uuid.UUID, orderID uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lifecycle.Cancel(ctx, caller, orderID)
}

// GetOrder returns a snapshot of the order.
func (p *PairEngine) GetOrder(orderID uint64) (model.OrderSnapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lifecycle.GetOrder(orderID)
}

// GetOrdersAtLevel lists the Open orders bucketed at level.
func (p *PairEngine) GetOrdersAtLevel(level int64) []uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lifecycle.GetOrdersAtLevel(level)
}

// OpenOrders lists owner's Open orders.
func (p *PairEngine) OpenOrders(owner uuid.UUID) []model.OrderSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lifecycle.OpenOrders(owner)
}

// OnPriceEvent implements model.PriceObserver. The returned error is only
// ever an internal corruption, on which the venue must fail the trade.
func (p *PairEngine) OnPriceEvent(ctx context.Context, ev model.PriceEvent) error {
	if p.trigger.Active() {
		p.trigger.Ignore(ev)
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	rep, err := p.trigger.OnPriceEvent(ctx, ev)
	if !rep.Reentrant {
		p.last = rep
	}
	return err
}

// LastReport returns the report of the most recent completed scan.
func (p *PairEngine) LastReport() trigger.Report {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// Compact drops terminal orders last updated before cutoff. Compacted ids
// report NotFound afterwards.
func (p *PairEngine) Compact(cutoff time.Time) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := p.store.ReclaimBefore(cutoff)
	if n > 0 {
		p.logger.Info("Compacted terminal orders", zap.Int("reclaimed", n))
	}
	return n
}

// Stats returns trigger engine statistics.
func (p *PairEngine) Stats() map[string]interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.trigger.GetTriggerStats()
}

func unknownPair(pair string) error {
	return errors.NotFound.Explain("pair %s is not registered", pair)
}
