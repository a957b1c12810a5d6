// Package store is the canonical record of every trigger order and the sole
// authority over its lifecycle status.
//
// A Store is not safe for concurrent use; the owning pair engine serialises
// every mutation.
package store

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Aidin1998/triggerbook/internal/trading/model"
	"github.com/Aidin1998/triggerbook/pkg/errors"
)

// Store holds orders keyed by their monotonically assigned id.
type Store struct {
	orders map[uint64]*model.Order
	seq    uint64
	open   int
}

// New creates an empty store. The first id handed out is 1.
func New() *Store {
	return &Store{orders: make(map[uint64]*model.Order)}
}

// Next reserves the next order id. Ids are never reused, even when the
// reservation is abandoned.
func (s *Store) Next() uint64 {
	s.seq++
	return s.seq
}

// Put records a new Open order.
func (s *Store) Put(o *model.Order) error {
	if o.ID == 0 || o.ID > s.seq {
		return errors.IndexCorruption.Explain("order id %d was not allocated by this store", o.ID)
	}
	if _, exists := s.orders[o.ID]; exists {
		return errors.IndexCorruption.Explain("order %d already stored", o.ID)
	}
	if o.Status != model.OrderStatusOpen {
		return errors.StateConflict.Explain("order %d must be stored OPEN, got %s", o.ID, o.Status)
	}
	s.orders[o.ID] = o
	s.open++
	return nil
}

// Get returns the live record. Callers outside the engine must use Snapshot.
func (s *Store) Get(id uint64) (*model.Order, bool) {
	o, ok := s.orders[id]
	return o, ok
}

// Snapshot returns a detached copy of the order.
func (s *Store) Snapshot(id uint64) (model.OrderSnapshot, error) {
	o, ok := s.orders[id]
	if !ok {
		return model.OrderSnapshot{}, errors.NotFound.Explain("order %d not found", id)
	}
	return o.Snapshot(), nil
}

// MarkFilled transitions an Open order to FILLED and records its output.
func (s *Store) MarkFilled(id uint64, amountOut, executionPrice decimal.Decimal, at time.Time) error {
	o, err := s.openOrder(id)
	if err != nil {
		return err
	}
	o.Status = model.OrderStatusFilled
	o.AmountOut = amountOut
	o.ExecutionPrice = executionPrice
	o.UpdatedAt = at
	s.open--
	return nil
}

// MarkCancelled transitions an Open order to CANCELLED.
func (s *Store) MarkCancelled(id uint64, at time.Time) error {
	o, err := s.openOrder(id)
	if err != nil {
		return err
	}
	o.Status = model.OrderStatusCancelled
	o.UpdatedAt = at
	s.open--
	return nil
}

func (s *Store) openOrder(id uint64) (*model.Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return nil, errors.NotFound.Explain("order %d not found", id)
	}
	if o.Status != model.OrderStatusOpen {
		return nil, errors.StateConflict.Explain("order %d is %s", id, o.Status)
	}
	return o, nil
}

// Discard drops an Open record that never became visible, e.g. when indexing
// failed during creation.
func (s *Store) Discard(id uint64) {
	if o, ok := s.orders[id]; ok {
		if o.IsOpen() {
			s.open--
		}
		delete(s.orders, id)
	}
}

// Reclaim frees a terminal record. Open orders cannot be reclaimed.
func (s *Store) Reclaim(id uint64) error {
	o, ok := s.orders[id]
	if !ok {
		return errors.NotFound.Explain("order %d not found", id)
	}
	if !o.Status.Terminal() {
		return errors.StateConflict.Explain("order %d is still %s", id, o.Status)
	}
	delete(s.orders, id)
	return nil
}

// ReclaimBefore frees every terminal record last updated before cutoff and
// returns how many were dropped.
func (s *Store) ReclaimBefore(cutoff time.Time) int {
	n := 0
	for id, o := range s.orders {
		if o.Status.Terminal() && o.UpdatedAt.Before(cutoff) {
			delete(s.orders, id)
			n++
		}
	}
	return n
}

// ByOwner lists the owner's orders in id order, optionally only Open ones.
func (s *Store) ByOwner(owner uuid.UUID, openOnly bool) []model.OrderSnapshot {
	var out []model.OrderSnapshot
	for _, o := range s.orders {
		if o.Owner != owner || (openOnly && !o.IsOpen()) {
			continue
		}
		out = append(out, o.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// OpenCount returns the number of Open orders.
func (s *Store) OpenCount() int { return s.open }

// Len returns the number of stored records, terminal ones included.
func (s *Store) Len() int { return len(s.orders) }
