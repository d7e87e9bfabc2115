package archive

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/0gfoundation/0g-emissions/internal/emissions"
)

// ── helpers ───────────────────────────────────────────────────────────────────

func init() {
	retryBackoff = time.Millisecond
}

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

type fakeSink struct {
	mu       sync.Mutex
	rows     []Redemption
	failures int // fail this many calls before succeeding
	calls    int
}

func (f *fakeSink) Insert(_ context.Context, r Redemption) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return false, errors.New("db unavailable")
	}
	for _, existing := range f.rows {
		if existing.Beneficiary == r.Beneficiary && existing.Nonce == r.Nonce {
			return false, nil
		}
	}
	f.rows = append(f.rows, r)
	return true, nil
}

func (f *fakeSink) snapshot() ([]Redemption, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Redemption(nil), f.rows...), f.calls
}

func event(t *testing.T, nonce uint64) []byte {
	t.Helper()
	raw, err := json.Marshal(emissions.TicketRedeemed{
		BatchID:     "batch",
		Beneficiary: testBeneficiary,
		Nonce:       nonce,
		Amount:      1000,
		RedeemedAt:  1_700_000_000,
	})
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

// runUntilDrained feeds msgs to Run and waits for it to exit.
func runUntilDrained(t *testing.T, sink Sink, rdb *redis.Client, msgs ...[]byte) {
	t.Helper()
	ch := make(chan []byte, len(msgs))
	for _, m := range msgs {
		ch <- m
	}
	close(ch)

	done := make(chan struct{})
	go func() {
		Run(context.Background(), ch, sink, rdb, zap.NewNop())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("indexer did not exit after channel close")
	}
}

func dlqLen(t *testing.T, rdb *redis.Client) int64 {
	t.Helper()
	n, err := rdb.LLen(context.Background(), DLQKey).Result()
	if err != nil {
		t.Fatal(err)
	}
	return n
}

// ── Run ───────────────────────────────────────────────────────────────────────

func TestRun_ArchivesEvents(t *testing.T) {
	rdb := newTestRedis(t)
	sink := &fakeSink{}

	runUntilDrained(t, sink, rdb, event(t, 1), event(t, 2))

	rows, _ := sink.snapshot()
	if len(rows) != 2 {
		t.Fatalf("archived %d rows, want 2", len(rows))
	}
	want := Redemption{Beneficiary: testBeneficiary, Nonce: 1, Amount: 1000, RedeemedAt: 1_700_000_000, BatchID: "batch"}
	if rows[0] != want {
		t.Errorf("row: got %+v want %+v", rows[0], want)
	}
	if n := dlqLen(t, rdb); n != 0 {
		t.Errorf("DLQ: got %d want 0", n)
	}
}

func TestRun_DuplicateEventIsHarmless(t *testing.T) {
	rdb := newTestRedis(t)
	sink := &fakeSink{}

	runUntilDrained(t, sink, rdb, event(t, 1), event(t, 1))

	rows, _ := sink.snapshot()
	if len(rows) != 1 {
		t.Fatalf("archived %d rows, want 1", len(rows))
	}
	if n := dlqLen(t, rdb); n != 0 {
		t.Errorf("duplicates must not reach the DLQ: %d", n)
	}
}

func TestRun_UndecodableGoesToDLQ(t *testing.T) {
	rdb := newTestRedis(t)
	sink := &fakeSink{}

	runUntilDrained(t, sink, rdb, []byte("{not json"))

	if n := dlqLen(t, rdb); n != 1 {
		t.Fatalf("DLQ: got %d want 1", n)
	}
	got, _ := rdb.LIndex(context.Background(), DLQKey, 0).Result()
	if got != "{not json" {
		t.Errorf("DLQ payload: %q", got)
	}
}

func TestRun_RetriesTransientFailure(t *testing.T) {
	rdb := newTestRedis(t)
	sink := &fakeSink{failures: maxAttempts - 1}

	runUntilDrained(t, sink, rdb, event(t, 1))

	rows, calls := sink.snapshot()
	if len(rows) != 1 || calls != maxAttempts {
		t.Fatalf("rows=%d calls=%d", len(rows), calls)
	}
	if n := dlqLen(t, rdb); n != 0 {
		t.Errorf("DLQ: got %d want 0", n)
	}
}

func TestRun_PersistentFailureGoesToDLQ(t *testing.T) {
	rdb := newTestRedis(t)
	sink := &fakeSink{failures: maxAttempts}

	runUntilDrained(t, sink, rdb, event(t, 1))

	if n := dlqLen(t, rdb); n != 1 {
		t.Fatalf("DLQ: got %d want 1", n)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	rdb := newTestRedis(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		Run(ctx, make(chan []byte), &fakeSink{}, rdb, zap.NewNop())
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("indexer did not stop on cancel")
	}
}
