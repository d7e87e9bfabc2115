// Package ledger persists account state in Redis and runs batch updates as
// optimistic all-or-nothing transactions.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/0gfoundation/0g-emissions/internal/address"
)

// MaxRetries bounds how often an update is re-run after a WATCH conflict.
const MaxRetries = 8

// DefaultPrefix namespaces every ledger key.
const DefaultPrefix = "emissions:"

var (
	ErrNotFound     = errors.New("ledger: account not found")
	ErrSlotOccupied = errors.New("ledger: account already exists")
	ErrConflict     = errors.New("ledger: too many concurrent conflicts")
)

// Store maps addresses to opaque account data.
type Store struct {
	rdb        *redis.Client
	prefix     string
	maxRetries int
}

func NewStore(rdb *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{rdb: rdb, prefix: prefix, maxRetries: MaxRetries}
}

func (s *Store) key(a address.Address) string {
	return s.prefix + "acct:" + a.Hex()
}

// Get reads committed account data outside of a transaction.
func (s *Store) Get(ctx context.Context, a address.Address) ([]byte, error) {
	b, err := s.rdb.Get(ctx, s.key(a)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", a, err)
	}
	return b, nil
}

// GetJSON reads committed account data and decodes it into v.
func (s *Store) GetJSON(ctx context.Context, a address.Address, v any) error {
	b, err := s.Get(ctx, a)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode %s: %w", a, err)
	}
	return nil
}

// Update runs fn against a fresh Tx. Writes become visible only if fn
// returns nil and no key read by fn changed before commit. On a conflict fn
// is re-run from scratch, so it must not leak side effects between attempts.
func (s *Store) Update(ctx context.Context, fn func(tx *Tx) error) error {
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		err := s.rdb.Watch(ctx, func(rtx *redis.Tx) error {
			tx := newTx(ctx, rtx, s)
			if err := fn(tx); err != nil {
				return err
			}
			return tx.commit()
		})
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return ErrConflict
}
