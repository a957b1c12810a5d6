package engine

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Aidin1998/triggerbook/internal/trading/config"
	"github.com/Aidin1998/triggerbook/internal/trading/events"
	"github.com/Aidin1998/triggerbook/internal/trading/lifecycle"
	"github.com/Aidin1998/triggerbook/internal/trading/model"
	"github.com/Aidin1998/triggerbook/internal/trading/settlement"
	"github.com/Aidin1998/triggerbook/pkg/errors"
	"github.com/Aidin1998/triggerbook/pkg/logger"
)

// Registry routes calls to the engine of each registered pair.
type Registry struct {
	mu        sync.RWMutex
	pairs     map[string]*PairEngine
	custody   settlement.Custody
	publisher events.Publisher
	base      *zap.Logger
	logger    *zap.Logger
}

// NewRegistry creates a registry whose pairs share custody and publisher.
func NewRegistry(custody settlement.Custody, pub events.Publisher, log *zap.Logger) *Registry {
	log = logger.OrNop(log)
	return &Registry{
		pairs:     make(map[string]*PairEngine),
		custody:   custody,
		publisher: pub,
		base:      log,
		logger:    log.Named("pair_registry"),
	}
}

// Register builds and registers the engine for cfg, settling against venue.
func (r *Registry) Register(cfg config.PairConfig, venue settlement.Venue) (*PairEngine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.pairs[cfg.Symbol]; exists {
		return nil, errors.StateConflict.Explain("pair %s is already registered", cfg.Symbol)
	}
	pe, err := NewPairEngine(cfg, venue, r.custody, r.publisher, r.base)
	if err != nil {
		return nil, err
	}
	r.pairs[cfg.Symbol] = pe

	r.logger.Info("Registered trading pair",
		zap.String("symbol", cfg.Symbol),
		zap.String("base_asset", cfg.BaseAsset),
		zap.String("quote_asset", cfg.QuoteAsset),
		zap.Stringer("price_step", cfg.PriceStep),
		zap.Int64("scan_window", cfg.ScanWindow),
		zap.Int("budget_units", cfg.Budget.Units))
	return pe, nil
}

// Unregister removes a pair. Its open orders stay with the removed engine.
func (r *Registry) Unregister(pair string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pairs[pair]; !ok {
		return unknownPair(pair)
	}
	delete(r.pairs, pair)
	r.logger.Info("Unregistered trading pair", zap.String("symbol", pair))
	return nil
}

// Engine looks up a pair's engine.
func (r *Registry) Engine(pair string) (*PairEngine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pe, ok := r.pairs[pair]
	if !ok {
		return nil, unknownPair(pair)
	}
	return pe, nil
}

// Pairs returns the registered symbols in order.
func (r *Registry) Pairs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.pairs))
	for p := range r.pairs {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Create places an order on the pair's book.
func (r *Registry) Create(ctx context.Context, pair string, req lifecycle.CreateRequest) (uint64, error) {
	pe, err := r.Engine(pair)
	if err != nil {
		return 0, err
	}
	return pe.Create(ctx, req)
}

// Cancel cancels caller's open order on pair.
func (r *Registry) Cancel(ctx context.Context, pair string, caller uuid.UUID, orderID uint64) error {
	pe, err := r.Engine(pair)
	if err != nil {
		return err
	}
	return pe.Cancel(ctx, caller, orderID)
}

// GetOrder returns a snapshot of an order on pair.
func (r *Registry) GetOrder(pair string, orderID uint64) (model.OrderSnapshot, error) {
	pe, err := r.Engine(pair)
	if err != nil {
		return model.OrderSnapshot{}, err
	}
	return pe.GetOrder(orderID)
}

// GetOrdersAtLevel lists the open order ids indexed at a grid level of pair.
func (r *Registry) GetOrdersAtLevel(pair string, level int64) ([]uint64, error) {
	pe, err := r.Engine(pair)
	if err != nil {
		return nil, err
	}
	return pe.GetOrdersAtLevel(level), nil
}

// OnPriceEvent forwards a price event to the pair's engine.
func (r *Registry) OnPriceEvent(ctx context.Context, pair string, ev model.PriceEvent) error {
	pe, err := r.Engine(pair)
	if err != nil {
		return err
	}
	return pe.OnPriceEvent(ctx, ev)
}
