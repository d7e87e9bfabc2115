package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/0gfoundation/0g-emissions/internal/address"
)

// Tx buffers writes until commit. Every key is WATCHed before its first
// read so a concurrent writer aborts the commit.
type Tx struct {
	ctx    context.Context
	rtx    *redis.Tx
	store  *Store
	writes map[address.Address][]byte
	order  []address.Address
}

func newTx(ctx context.Context, rtx *redis.Tx, s *Store) *Tx {
	return &Tx{
		ctx:    ctx,
		rtx:    rtx,
		store:  s,
		writes: make(map[address.Address][]byte),
	}
}

// Get returns the account data, including writes staged in this Tx.
func (tx *Tx) Get(a address.Address) ([]byte, error) {
	if v, ok := tx.writes[a]; ok {
		return append([]byte(nil), v...), nil
	}
	key := tx.store.key(a)
	if err := tx.rtx.Watch(tx.ctx, key).Err(); err != nil {
		return nil, fmt.Errorf("watch %s: %w", key, err)
	}
	b, err := tx.rtx.Get(tx.ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return b, nil
}

// Exists reports whether a holds data.
func (tx *Tx) Exists(a address.Address) (bool, error) {
	_, err := tx.Get(a)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Create stages data at a, failing with ErrSlotOccupied if a already exists.
func (tx *Tx) Create(a address.Address, data []byte) error {
	exists, err := tx.Exists(a)
	if err != nil {
		return err
	}
	if exists {
		return ErrSlotOccupied
	}
	tx.Put(a, data)
	return nil
}

// Put stages an unconditional write.
func (tx *Tx) Put(a address.Address, data []byte) {
	if _, ok := tx.writes[a]; !ok {
		tx.order = append(tx.order, a)
	}
	tx.writes[a] = append([]byte(nil), data...)
}

func (tx *Tx) GetJSON(a address.Address, v any) error {
	b, err := tx.Get(a)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode %s: %w", a, err)
	}
	return nil
}

func (tx *Tx) CreateJSON(a address.Address, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", a, err)
	}
	return tx.Create(a, b)
}

func (tx *Tx) PutJSON(a address.Address, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", a, err)
	}
	tx.Put(a, b)
	return nil
}

func (tx *Tx) commit() error {
	if len(tx.order) == 0 {
		return nil
	}
	_, err := tx.rtx.TxPipelined(tx.ctx, func(p redis.Pipeliner) error {
		for _, a := range tx.order {
			p.Set(tx.ctx, tx.store.key(a), tx.writes[a], 0)
		}
		return nil
	})
	return err
}
