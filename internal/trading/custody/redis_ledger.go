package custody

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Aidin1998/triggerbook/pkg/errors"
	"github.com/Aidin1998/triggerbook/pkg/logger"
)

const defaultMaxRetries = 16

// RedisLedger keeps balances in one Redis hash per account, field per asset.
// Amounts are stored as decimal strings and updated under WATCH so concurrent
// writers never lose an update.
type RedisLedger struct {
	client     redis.UniversalClient
	prefix     string
	maxRetries int
	logger     *zap.Logger
}

// NewRedisLedger creates a ledger over client. Keys are "<prefix>:<account>".
func NewRedisLedger(client redis.UniversalClient, prefix string, log *zap.Logger) *RedisLedger {
	if prefix == "" {
		prefix = "custody"
	}
	return &RedisLedger{
		client:     client,
		prefix:     prefix,
		maxRetries: defaultMaxRetries,
		logger:     logger.OrNop(log),
	}
}

func (l *RedisLedger) key(account uuid.UUID) string {
	return fmt.Sprintf("%s:%s", l.prefix, account)
}

func readBalance(ctx context.Context, c redis.Cmdable, key, asset string) (decimal.Decimal, error) {
	raw, err := c.HGet(ctx, key, asset).Result()
	if stderrors.Is(err, redis.Nil) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(raw)
}

// update applies fn to the current balance inside an optimistic transaction.
func (l *RedisLedger) update(ctx context.Context, account uuid.UUID, asset string, fn func(cur decimal.Decimal) (decimal.Decimal, error)) error {
	key := l.key(account)
	txf := func(tx *redis.Tx) error {
		cur, err := readBalance(ctx, tx, key, asset)
		if err != nil {
			return err
		}
		next, err := fn(cur)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, asset, next.String())
			return nil
		})
		return err
	}

	for i := 0; i < l.maxRetries; i++ {
		err := l.client.Watch(ctx, txf, key)
		if stderrors.Is(err, redis.TxFailedErr) {
			l.logger.Debug("Custody transaction contended, retrying", zap.String("key", key), zap.Int("attempt", i+1))
			continue
		}
		var typed *errors.Error
		if err != nil && !errors.As(err, &typed) {
			return errors.Custody.Wrap(err).Explain("redis update of %s/%s", key, asset)
		}
		return err
	}
	return errors.Custody.Explain("redis update of %s/%s still contended after %d attempts", key, asset, l.maxRetries)
}

// Debit removes amount of asset from account.
func (l *RedisLedger) Debit(ctx context.Context, account uuid.UUID, asset string, amount decimal.Decimal) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	return l.update(ctx, account, asset, func(cur decimal.Decimal) (decimal.Decimal, error) {
		if cur.LessThan(amount) {
			return cur, ErrInsufficientBalance.Explain("account %s holds %s %s, needs %s", account, cur, asset, amount)
		}
		return cur.Sub(amount), nil
	})
}

// Credit adds amount of asset to account.
func (l *RedisLedger) Credit(ctx context.Context, account uuid.UUID, asset string, amount decimal.Decimal) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	return l.update(ctx, account, asset, func(cur decimal.Decimal) (decimal.Decimal, error) {
		return cur.Add(amount), nil
	})
}

// Balance returns the account's holding of asset.
func (l *RedisLedger) Balance(ctx context.Context, account uuid.UUID, asset string) (decimal.Decimal, error) {
	bal, err := readBalance(ctx, l.client, l.key(account), asset)
	if err != nil {
		return decimal.Zero, errors.Custody.Wrap(err).Explain("redis read of %s/%s", l.key(account), asset)
	}
	return bal, nil
}
