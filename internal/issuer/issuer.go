// Package issuer hands out admin-signed redemption tickets.
package issuer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloudflare/circl/sign/ed25519"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/0gfoundation/0g-emissions/internal/address"
	"github.com/0gfoundation/0g-emissions/internal/ticket"
)

var ErrZeroAmount = errors.New("issuer: amount must be positive")

// NonceReader reports the highest nonce already redeemed by a beneficiary.
// It seeds the Redis counter when the key is missing, e.g. after a Redis
// restart, so fresh tickets never collide with redeemed ones.
type NonceReader interface {
	LastNonce(ctx context.Context, beneficiary address.Address) (uint64, error)
}

// Issuer signs tickets with the admin key.
type Issuer struct {
	key    ed25519.PrivateKey
	admin  address.Address
	rdb    *redis.Client
	ttl    time.Duration
	nonces NonceReader
	now    func() time.Time
	log    *zap.Logger
}

// New returns an Issuer. nonces may be nil, in which case counters start
// at 1.
func New(key ed25519.PrivateKey, rdb *redis.Client, ttl time.Duration, nonces NonceReader, log *zap.Logger) *Issuer {
	return &Issuer{
		key:    key,
		admin:  ticket.PublicKey(key),
		rdb:    rdb,
		ttl:    ttl,
		nonces: nonces,
		now:    time.Now,
		log:    log,
	}
}

// Admin is the public key tickets are signed with.
func (i *Issuer) Admin() address.Address { return i.admin }

// Issue allocates a nonce for beneficiary and returns a signed ticket
// expiring ttl from now.
func (i *Issuer) Issue(ctx context.Context, beneficiary address.Address, amount uint64) (*ticket.Ticket, error) {
	if amount == 0 {
		return nil, ErrZeroAmount
	}
	nonce, err := i.IncrNonce(ctx, beneficiary)
	if err != nil {
		return nil, err
	}
	t := &ticket.Ticket{
		Beneficiary: beneficiary,
		Amount:      amount,
		Nonce:       nonce,
		Expiry:      i.now().Add(i.ttl).Unix(),
	}
	ticket.Sign(t, i.key)

	i.log.Info("ticket issued",
		zap.String("beneficiary", beneficiary.Hex()),
		zap.Uint64("amount", amount),
		zap.Uint64("nonce", nonce),
		zap.Int64("expiry", t.Expiry),
	)
	return t, nil
}

// IncrNonce atomically increments and returns the nonce for beneficiary.
func (i *Issuer) IncrNonce(ctx context.Context, beneficiary address.Address) (uint64, error) {
	key := fmt.Sprintf(ticket.NonceKeyFmt, beneficiary.Hex())

	if i.nonces != nil {
		exists, err := i.rdb.Exists(ctx, key).Result()
		if err != nil {
			return 0, fmt.Errorf("check nonce key: %w", err)
		}
		if exists == 0 {
			last, err := i.nonces.LastNonce(ctx, beneficiary)
			if err != nil {
				i.log.Warn("read last nonce failed, seeding from 0",
					zap.String("beneficiary", beneficiary.Hex()),
					zap.Error(err),
				)
				last = 0
			}
			// SETNX so a concurrent seeder or incrementer wins
			if err := i.rdb.SetNX(ctx, key, last, 0).Err(); err != nil {
				return 0, fmt.Errorf("seed nonce: %w", err)
			}
		}
	}

	n, err := i.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("incr nonce: %w", err)
	}
	return uint64(n), nil
}
