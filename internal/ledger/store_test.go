package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/0gfoundation/0g-emissions/internal/address"
)

// ── helpers ───────────────────────────────────────────────────────────────────

func newTestStore(t *testing.T) (*Store, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewStore(rdb, "test:"), rdb
}

var (
	acctA = address.Named("acct-a")
	acctB = address.Named("acct-b")
)

// ── Create-if-absent ──────────────────────────────────────────────────────────

func TestUpdate_CreateCommits(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	err := s.Update(ctx, func(tx *Tx) error {
		return tx.Create(acctA, []byte("hello"))
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, err := s.Get(ctx, acctA)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("got %q want %q", got, "hello")
	}
}

func TestUpdate_CreateTwiceFails(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	create := func(tx *Tx) error { return tx.Create(acctA, []byte("v")) }
	if err := s.Update(ctx, create); err != nil {
		t.Fatalf("first create: %v", err)
	}
	err := s.Update(ctx, create)
	if !errors.Is(err, ErrSlotOccupied) {
		t.Fatalf("second create: expected ErrSlotOccupied, got %v", err)
	}
}

func TestTx_CreateSeesStagedWrite(t *testing.T) {
	s, _ := newTestStore(t)

	err := s.Update(context.Background(), func(tx *Tx) error {
		tx.Put(acctA, []byte("staged"))
		return tx.Create(acctA, []byte("again"))
	})
	if !errors.Is(err, ErrSlotOccupied) {
		t.Fatalf("expected ErrSlotOccupied for staged key, got %v", err)
	}
}

// ── Atomicity ─────────────────────────────────────────────────────────────────

func TestUpdate_ErrorDiscardsWrites(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.Update(ctx, func(tx *Tx) error {
		if err := tx.Create(acctA, []byte("a")); err != nil {
			return err
		}
		tx.Put(acctB, []byte("b"))
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	for _, a := range []address.Address{acctA, acctB} {
		if _, err := s.Get(ctx, a); !errors.Is(err, ErrNotFound) {
			t.Errorf("%s: expected ErrNotFound after aborted update, got %v", a, err)
		}
	}
}

func TestTx_ReadYourWrites(t *testing.T) {
	s, _ := newTestStore(t)

	err := s.Update(context.Background(), func(tx *Tx) error {
		tx.Put(acctA, []byte("v1"))
		got, err := tx.Get(acctA)
		if err != nil {
			return err
		}
		if string(got) != "v1" {
			t.Errorf("got %q want v1", got)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

// ── Conflicts ─────────────────────────────────────────────────────────────────

// A concurrent write to a watched key aborts EXEC; the update is re-run and
// observes the competing record.
func TestUpdate_ConflictRetriesAgainstFreshState(t *testing.T) {
	s, rdb := newTestStore(t)
	ctx := context.Background()

	attempts := 0
	err := s.Update(ctx, func(tx *Tx) error {
		attempts++
		exists, err := tx.Exists(acctA)
		if err != nil {
			return err
		}
		if attempts == 1 {
			rdb.Set(ctx, s.key(acctA), "winner", 0) //nolint:errcheck
		}
		if exists {
			return ErrSlotOccupied
		}
		tx.Put(acctA, []byte("loser"))
		return nil
	})
	if !errors.Is(err, ErrSlotOccupied) {
		t.Fatalf("expected ErrSlotOccupied after retry, got %v", err)
	}
	if attempts != 2 {
		t.Errorf("attempts: got %d want 2", attempts)
	}
	got, _ := s.Get(ctx, acctA)
	if string(got) != "winner" {
		t.Errorf("value: got %q want winner", got)
	}
}

func TestUpdate_ConflictExhaustion(t *testing.T) {
	s, rdb := newTestStore(t)
	ctx := context.Background()

	err := s.Update(ctx, func(tx *Tx) error {
		if _, err := tx.Exists(acctA); err != nil {
			return err
		}
		rdb.Incr(ctx, s.key(acctA)) //nolint:errcheck
		tx.Put(acctA, []byte("x"))
		return nil
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

// ── JSON helpers ──────────────────────────────────────────────────────────────

func TestJSONHelpers(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	type rec struct {
		N uint64 `json:"n"`
	}
	err := s.Update(ctx, func(tx *Tx) error {
		return tx.CreateJSON(acctA, rec{N: 42})
	})
	if err != nil {
		t.Fatal(err)
	}
	var got rec
	if err := s.GetJSON(ctx, acctA, &got); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if got.N != 42 {
		t.Errorf("N: got %d want 42", got.N)
	}
}
