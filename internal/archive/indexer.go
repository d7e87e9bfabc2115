package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/0gfoundation/0g-emissions/internal/emissions"
)

// DLQKey holds event payloads the indexer could not archive.
const DLQKey = "archive:dlq"

const maxAttempts = 3

var retryBackoff = 500 * time.Millisecond

// Sink is where indexed redemptions go. *Store implements it.
type Sink interface {
	Insert(ctx context.Context, r Redemption) (bool, error)
}

// Run is the indexer loop: read a redeemed event → insert → on failure
// retry, then park the raw payload in the DLQ. It returns when ctx is done
// or msgs is closed.
func Run(ctx context.Context, msgs <-chan []byte, sink Sink, rdb *redis.Client, log *zap.Logger) {
	log.Info("archive indexer started")
	for {
		select {
		case <-ctx.Done():
			log.Info("archive indexer stopped")
			return
		case raw, ok := <-msgs:
			if !ok {
				log.Info("archive indexer: subscription closed")
				return
			}
			if err := handle(ctx, raw, sink, log); err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Error("archive: event parked in DLQ", zap.Error(err))
				if err := rdb.RPush(ctx, DLQKey, string(raw)).Err(); err != nil {
					log.Error("archive: DLQ push failed", zap.String("raw", string(raw)), zap.Error(err))
				}
			}
		}
	}
}

func handle(ctx context.Context, raw []byte, sink Sink, log *zap.Logger) error {
	var ev emissions.TicketRedeemed
	if err := json.Unmarshal(raw, &ev); err != nil {
		return fmt.Errorf("unmarshal event: %w", err)
	}
	r := Redemption{
		Beneficiary: ev.Beneficiary,
		Nonce:       ev.Nonce,
		Amount:      ev.Amount,
		RedeemedAt:  ev.RedeemedAt,
		BatchID:     ev.BatchID,
	}

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		var inserted bool
		inserted, err = sink.Insert(ctx, r)
		if err == nil {
			if inserted {
				log.Info("redemption archived",
					zap.String("beneficiary", r.Beneficiary.Hex()),
					zap.Uint64("nonce", r.Nonce),
					zap.Uint64("amount", r.Amount),
				)
			} else {
				log.Debug("redemption already archived",
					zap.String("beneficiary", r.Beneficiary.Hex()),
					zap.Uint64("nonce", r.Nonce),
				)
			}
			return nil
		}
		log.Warn("archive insert failed", zap.Int("attempt", attempt), zap.Error(err))
		if attempt < maxAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryBackoff * time.Duration(attempt)):
			}
		}
	}
	return fmt.Errorf("insert after %d attempts: %w", maxAttempts, err)
}
