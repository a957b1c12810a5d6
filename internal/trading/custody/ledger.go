// Package custody provides the asset custody collaborators the engine pulls
// order inputs from and credits fills and refunds to.
package custody

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Aidin1998/triggerbook/pkg/errors"
	"github.com/Aidin1998/triggerbook/pkg/logger"
)

// ErrInsufficientBalance is returned by Debit when the account cannot cover the amount.
var ErrInsufficientBalance = errors.Custody.Explain("insufficient balance")

// Ledger is an in-memory custody ledger.
type Ledger struct {
	mu       sync.RWMutex
	balances map[uuid.UUID]map[string]decimal.Decimal
	logger   *zap.Logger
}

// NewLedger creates an empty ledger.
func NewLedger(log *zap.Logger) *Ledger {
	return &Ledger{
		balances: make(map[uuid.UUID]map[string]decimal.Decimal),
		logger:   logger.OrNop(log),
	}
}

func checkAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return errors.Validation.Explain("custody amount must be positive, got %s", amount)
	}
	return nil
}

// Debit removes amount of asset from account.
func (l *Ledger) Debit(_ context.Context, account uuid.UUID, asset string, amount decimal.Decimal) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	cur := l.balances[account][asset]
	if cur.LessThan(amount) {
		return ErrInsufficientBalance.Explain("account %s holds %s %s, needs %s", account, cur, asset, amount)
	}
	l.balances[account][asset] = cur.Sub(amount)
	l.logger.Debug("Custody debit",
		zap.Stringer("account", account),
		zap.String("asset", asset),
		zap.Stringer("amount", amount))
	return nil
}

// Credit adds amount of asset to account.
func (l *Ledger) Credit(_ context.Context, account uuid.UUID, asset string, amount decimal.Decimal) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.balances[account] == nil {
		l.balances[account] = make(map[string]decimal.Decimal)
	}
	l.balances[account][asset] = l.balances[account][asset].Add(amount)
	l.logger.Debug("Custody credit",
		zap.Stringer("account", account),
		zap.String("asset", asset),
		zap.Stringer("amount", amount))
	return nil
}

// Balance returns the account's holding of asset.
func (l *Ledger) Balance(_ context.Context, account uuid.UUID, asset string) (decimal.Decimal, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[account][asset], nil
}
