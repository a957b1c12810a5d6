// Package lifecycle is the create/cancel surface of a pair's trigger book.
// It owns authorization, custody handoff and the Open -> Cancelled transition.
package lifecycle

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Aidin1998/triggerbook/internal/trading/bucket"
	"github.com/Aidin1998/triggerbook/internal/trading/events"
	"github.com/Aidin1998/triggerbook/internal/trading/model"
	"github.com/Aidin1998/triggerbook/internal/trading/settlement"
	"github.com/Aidin1998/triggerbook/internal/trading/store"
	"github.com/Aidin1998/triggerbook/pkg/errors"
	"github.com/Aidin1998/triggerbook/pkg/logger"
	"github.com/Aidin1998/triggerbook/pkg/metrics"
)

// Config names the pair and its assets.
type Config struct {
	Pair       string
	BaseAsset  string
	QuoteAsset string
}

// CreateRequest is the input to Create.
type CreateRequest struct {
	Owner        uuid.UUID
	Direction    model.Direction
	AmountIn     decimal.Decimal
	TriggerPrice decimal.Decimal
}

// Manager creates and cancels orders for one pair.
type Manager struct {
	cfg        Config
	grid       bucket.Grid
	store      *store.Store
	index      *bucket.Index
	custody    settlement.Custody
	publisher  events.Publisher
	validators []OrderValidator
	logger     *zap.Logger
	now        func() time.Time
}

// NewManager creates a lifecycle manager. BasicOrderValidator always runs first.
func NewManager(cfg Config, grid bucket.Grid, st *store.Store, ix *bucket.Index, custody settlement.Custody, pub events.Publisher, log *zap.Logger) *Manager {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Manager{
		cfg:        cfg,
		grid:       grid,
		store:      st,
		index:      ix,
		custody:    custody,
		publisher:  pub,
		validators: []OrderValidator{BasicOrderValidator{}},
		logger:     logger.OrNop(log).With(zap.String("pair", cfg.Pair)),
		now:        time.Now,
	}
}

// AddValidator adds an order validator
func (m *Manager) AddValidator(v OrderValidator) {
	m.validators = append(m.validators, v)
}

func (m *Manager) validate(ctx context.Context, req *CreateRequest) error {
	for _, v := range m.validators {
		if err := v.ValidateOrder(ctx, req); err != nil {
			m.logger.Debug("Order rejected", zap.String("validator", v.Name()), zap.Error(err))
			return err
		}
	}
	return nil
}

// Create takes custody of req.AmountIn from the owner, then records and
// indexes the order. Nothing is recorded when custody fails, and custody is
// refunded when recording fails.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (uint64, error) {
	if err := m.validate(ctx, &req); err != nil {
		return 0, err
	}
	level, err := m.grid.Level(req.TriggerPrice)
	if err != nil {
		return 0, errors.Validation.Wrap(err).Explain("invalid order").
			WithField("range", "trigger_price", "does not fit the price grid")
	}
	assetIn, _ := req.Direction.Assets(m.cfg.BaseAsset, m.cfg.QuoteAsset)

	if err := m.custody.Debit(ctx, req.Owner, assetIn, req.AmountIn); err != nil {
		return 0, custodyError(err, "take custody of %s %s", req.AmountIn, assetIn)
	}

	now := m.now()
	o := &model.Order{
		ID:           m.store.Next(),
		Owner:        req.Owner,
		Pair:         m.cfg.Pair,
		Direction:    req.Direction,
		AmountIn:     req.AmountIn,
		TriggerPrice: req.TriggerPrice,
		Status:       model.OrderStatusOpen,
		Level:        level,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := m.store.Put(o); err != nil {
		m.refund(ctx, o, assetIn)
		return 0, err
	}
	if err := m.index.Insert(o.ID, o.Level); err != nil {
		m.store.Discard(o.ID)
		m.refund(ctx, o, assetIn)
		return 0, err
	}

	metrics.OrdersCreated.WithLabelValues(m.cfg.Pair, o.Direction.String()).Inc()
	metrics.OpenOrders.WithLabelValues(m.cfg.Pair).Set(float64(m.store.OpenCount()))
	m.publisher.Publish(ctx, events.NewOrderEvent(events.TypeOrderCreated, m.cfg.Pair, events.OrderCreated{
		OrderID:      o.ID,
		Owner:        o.Owner,
		Pair:         m.cfg.Pair,
		Direction:    o.Direction,
		AmountIn:     o.AmountIn,
		TriggerPrice: o.TriggerPrice,
		Level:        o.Level,
	}))
	m.logger.Info("Order created",
		zap.Uint64("order_id", o.ID),
		zap.Stringer("owner", o.Owner),
		zap.String("direction", o.Direction.String()),
		zap.Stringer("amount_in", o.AmountIn),
		zap.Stringer("trigger_price", o.TriggerPrice),
		zap.Int64("level", o.Level))
	return o.ID, nil
}

func (m *Manager) refund(ctx context.Context, o *model.Order, asset string) {
	if err := m.custody.Credit(ctx, o.Owner, asset, o.AmountIn); err != nil {
		m.logger.Error("Failed to refund custody after aborted create",
			zap.Uint64("order_id", o.ID),
			zap.Stringer("owner", o.Owner),
			zap.Stringer("amount", o.AmountIn),
			zap.Error(err))
	}
}

// Cancel returns the full input of an Open order to its owner. Only the
// owner may cancel, and only while the order is Open.
func (m *Manager) Cancel(ctx context.Context, caller uuid.UUID, orderID uint64) error {
	o, ok := m.store.Get(orderID)
	if !ok {
		return errors.NotFound.Explain("order %d not found", orderID)
	}
	if o.Owner != caller {
		return errors.Authorization.Explain("caller %s does not own order %d", caller, orderID)
	}
	if !o.IsOpen() {
		return errors.StateConflict.Explain("order %d is %s", orderID, o.Status)
	}

	level, indexed := m.index.LevelOf(orderID)
	if indexed {
		if err := m.index.Remove(orderID); err != nil {
			return err
		}
	}

	assetIn, _ := o.Direction.Assets(m.cfg.BaseAsset, m.cfg.QuoteAsset)
	if err := m.custody.Credit(ctx, o.Owner, assetIn, o.AmountIn); err != nil {
		if indexed {
			if ierr := m.index.Insert(orderID, level); ierr != nil {
				m.logger.Error("Failed to restore index entry after refund failure", zap.Uint64("order_id", orderID), zap.Error(ierr))
			}
		}
		return custodyError(err, "refund %s %s for order %d", o.AmountIn, assetIn, orderID)
	}

	if err := m.store.MarkCancelled(orderID, m.now()); err != nil {
		return err
	}

	metrics.OrdersCancelled.WithLabelValues(m.cfg.Pair).Inc()
	metrics.OpenOrders.WithLabelValues(m.cfg.Pair).Set(float64(m.store.OpenCount()))
	m.publisher.Publish(ctx, events.NewOrderEvent(events.TypeOrderCancelled, m.cfg.Pair, events.OrderCancelled{
		OrderID:  orderID,
		Owner:    o.Owner,
		Pair:     m.cfg.Pair,
		AmountIn: o.AmountIn,
	}))
	m.logger.Info("Order cancelled", zap.Uint64("order_id", orderID), zap.Stringer("owner", o.Owner))
	return nil
}

// GetOrder returns a snapshot of the order.
func (m *Manager) GetOrder(orderID uint64) (model.OrderSnapshot, error) {
	return m.store.Snapshot(orderID)
}

// GetOrdersAtLevel lists the Open orders resting at level. Stale entries
// awaiting lazy cleanup are filtered out.
func (m *Manager) GetOrdersAtLevel(level int64) []uint64 {
	members := m.index.MembersAt(level)
	out := members[:0]
	for _, id := range members {
		if o, ok := m.store.Get(id); ok && o.IsOpen() {
			out = append(out, id)
		}
	}
	return out
}

// OpenOrders lists the owner's Open orders.
func (m *Manager) OpenOrders(owner uuid.UUID) []model.OrderSnapshot {
	return m.store.ByOwner(owner, true)
}

// custodyError keeps typed custody errors intact and wraps anything else.
func custodyError(err error, format string, args ...any) error {
	var typed *errors.Error
	if errors.As(err, &typed) {
		return err
	}
	return errors.Custody.Wrap(err).Explain(format, args...)
}
