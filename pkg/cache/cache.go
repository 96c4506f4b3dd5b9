package cache

import (
	"context"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// CountKey is the key under which the last observed transaction count is kept.
const CountKey = "transactionCount"

// CountStore is the durable key-value boundary of the transaction cache.
type CountStore interface {
	// ReadCount returns ok == false when nothing has been stored yet.
	ReadCount(ctx context.Context) (value string, ok bool, err error)
	WriteCount(ctx context.Context, value string) error
	Close() error
}

// TransactionCache holds the last observed ledger transaction count. It is a
// hint only and never a substitute for asking the ledger.
type TransactionCache struct {
	store CountStore
}

func NewTransactionCache(store CountStore) *TransactionCache {
	return &TransactionCache{store: store}
}

// Get returns the cached count. Read failures and unparsable values count as a miss.
func (c *TransactionCache) Get(ctx context.Context) (uint64, bool) {
	raw, ok, err := c.store.ReadCount(ctx)
	if err != nil {
		logrus.Warnf("transaction count cache read failed: %s", err)
		return 0, false
	}
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		logrus.Warnf("transaction count cache holds %q: %s", raw, err)
		return 0, false
	}
	return n, true
}

func (c *TransactionCache) Set(ctx context.Context, n uint64) error {
	if err := c.store.WriteCount(ctx, strconv.FormatUint(n, 10)); err != nil {
		return errors.Wrap(err, "write transaction count")
	}
	return nil
}

func (c *TransactionCache) Close() error {
	return c.store.Close()
}
