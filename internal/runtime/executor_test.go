package runtime

import (
	"context"
	"crypto/rand"
	"errors"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/cloudflare/circl/sign/ed25519"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/0gfoundation/0g-emissions/internal/address"
	"github.com/0gfoundation/0g-emissions/internal/ledger"
)

// ── helpers ───────────────────────────────────────────────────────────────────

var (
	writerID  = address.Named("test/writer")
	failID    = address.Named("test/fail")
	peekID    = address.Named("test/peek")
	errFailed = errors.New("program failed")
)

// writer stores its data at address.Named(data).
type writer struct{}

func (writer) Process(ic *InvocationContext, data []byte) error {
	ic.Emit("test.written", string(data))
	return ic.Tx().Create(address.Named(string(data)), data)
}

type failer struct{}

func (failer) Process(*InvocationContext, []byte) error { return errFailed }

// peeker records what introspection returns for the preceding instruction.
type peeker struct {
	index int
	prev  Instruction
	err   error
}

func (p *peeker) Process(ic *InvocationContext, _ []byte) error {
	p.index = ic.CurrentIndex()
	p.prev, p.err = ic.InstructionAt(ic.CurrentIndex() - 1)
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
}

func (r *recordingPublisher) Publish(_ context.Context, topic string, _ any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics = append(r.topics, topic)
	return nil
}

func (r *recordingPublisher) Close() error { return nil }

func newTestExecutor(t *testing.T, now int64) (*Executor, *ledger.Store, *recordingPublisher) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := ledger.NewStore(rdb, "test:")
	pub := &recordingPublisher{}
	exec := NewExecutor(store, ClockFunc(func() int64 { return now }), pub, zap.NewNop())
	exec.Register(writerID, writer{})
	exec.Register(failID, failer{})
	return exec, store, pub
}

func newKey(t *testing.T) ed25519.PrivateKey {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	return priv
}

// ── Batch signatures ──────────────────────────────────────────────────────────

func TestBatch_SignAndValidate(t *testing.T) {
	b := NewBatch(Instruction{ProgramID: writerID, Data: []byte("x")})
	key := newKey(t)
	b.Sign(key)

	if err := b.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	var signer address.Address
	copy(signer[:], key.Public().(ed25519.PublicKey))
	if !b.IsSigner(signer) {
		t.Error("signing key should be a signer")
	}
}

func TestBatch_TamperedDataFailsValidation(t *testing.T) {
	b := NewBatch(Instruction{ProgramID: writerID, Data: []byte("x")})
	b.Sign(newKey(t))
	b.Instructions[0].Data = []byte("y")

	if err := b.Validate(); !errors.Is(err, ErrBadBatchSignature) {
		t.Fatalf("expected ErrBadBatchSignature, got %v", err)
	}
}

func TestBatch_SignerCountMismatch(t *testing.T) {
	b := NewBatch(Instruction{ProgramID: writerID})
	b.Sign(newKey(t))
	b.Signatures = nil

	if err := b.Validate(); !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("expected ErrSignatureMismatch, got %v", err)
	}
}

func TestBatch_DuplicateSigner(t *testing.T) {
	key := newKey(t)
	b := NewBatch(Instruction{ProgramID: writerID})
	b.Sign(key, key)

	if err := b.Validate(); !errors.Is(err, ErrDuplicateSigner) {
		t.Fatalf("expected ErrDuplicateSigner, got %v", err)
	}
}

func TestBatch_ShapeLimits(t *testing.T) {
	if err := (&Batch{ID: uuid.New()}).Validate(); !errors.Is(err, ErrEmptyBatch) {
		t.Errorf("empty: got %v", err)
	}
	if err := (&Batch{Instructions: []Instruction{{}}}).Validate(); !errors.Is(err, ErrMissingBatchID) {
		t.Errorf("nil id: got %v", err)
	}
	big := NewBatch(make([]Instruction, MaxInstructions+1)...)
	if err := big.Validate(); !errors.Is(err, ErrBatchTooLarge) {
		t.Errorf("too large: got %v", err)
	}
}

func TestBatch_MessageCoversSigners(t *testing.T) {
	b := NewBatch(Instruction{ProgramID: writerID})
	m1 := b.Message()
	b.Signers = []address.Address{address.Named("someone")}
	if string(m1) == string(b.Message()) {
		t.Fatal("signer list must be part of the signed message")
	}
}

// ── Execution ─────────────────────────────────────────────────────────────────

func TestExecute_Commits(t *testing.T) {
	exec, store, pub := newTestExecutor(t, 1_700_000_000)

	b := NewBatch(
		Instruction{ProgramID: writerID, Data: []byte("a")},
		Instruction{ProgramID: writerID, Data: []byte("b")},
	)
	r, err := exec.Execute(context.Background(), b)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if r.ExecutedAt != 1_700_000_000 || r.Instructions != 2 || r.Events != 2 {
		t.Errorf("receipt: %+v", r)
	}
	for _, k := range []string{"a", "b"} {
		if _, err := store.Get(context.Background(), address.Named(k)); err != nil {
			t.Errorf("%s not written: %v", k, err)
		}
	}
	if len(pub.topics) != 2 {
		t.Errorf("published %d events, want 2", len(pub.topics))
	}
}

func TestExecute_FailureIsAtomic(t *testing.T) {
	exec, store, pub := newTestExecutor(t, 0)

	b := NewBatch(
		Instruction{ProgramID: writerID, Data: []byte("a")},
		Instruction{ProgramID: failID},
	)
	_, err := exec.Execute(context.Background(), b)

	var ixErr *InstructionError
	if !errors.As(err, &ixErr) {
		t.Fatalf("expected *InstructionError, got %v", err)
	}
	if ixErr.Index != 1 {
		t.Errorf("failing index: got %d want 1", ixErr.Index)
	}
	if !errors.Is(err, errFailed) {
		t.Errorf("expected wrapped errFailed, got %v", err)
	}
	if _, err := store.Get(context.Background(), address.Named("a")); !errors.Is(err, ledger.ErrNotFound) {
		t.Errorf("write from aborted batch is visible: %v", err)
	}
	if len(pub.topics) != 0 {
		t.Errorf("events published for aborted batch: %v", pub.topics)
	}
}

func TestExecute_UnknownProgram(t *testing.T) {
	exec, _, _ := newTestExecutor(t, 0)

	_, err := exec.Execute(context.Background(), NewBatch(Instruction{ProgramID: address.Named("nope")}))
	if !errors.Is(err, ErrUnknownProgram) {
		t.Fatalf("expected ErrUnknownProgram, got %v", err)
	}
}

func TestExecute_RejectsBadSignatureBeforeRunning(t *testing.T) {
	exec, store, _ := newTestExecutor(t, 0)

	b := NewBatch(Instruction{ProgramID: writerID, Data: []byte("a")})
	b.Sign(newKey(t))
	b.Signatures[0][0] ^= 0xFF

	if _, err := exec.Execute(context.Background(), b); !errors.Is(err, ErrBadBatchSignature) {
		t.Fatalf("expected ErrBadBatchSignature, got %v", err)
	}
	if _, err := store.Get(context.Background(), address.Named("a")); !errors.Is(err, ledger.ErrNotFound) {
		t.Error("instruction ran despite bad batch signature")
	}
}

// ── Introspection ─────────────────────────────────────────────────────────────

func TestInvocationContext_InstructionAt(t *testing.T) {
	exec, _, _ := newTestExecutor(t, 0)
	p := &peeker{}
	exec.Register(peekID, p)

	b := NewBatch(
		Instruction{ProgramID: writerID, Data: []byte("sibling")},
		Instruction{ProgramID: peekID},
	)
	if _, err := exec.Execute(context.Background(), b); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if p.index != 1 {
		t.Errorf("CurrentIndex: got %d want 1", p.index)
	}
	if p.err != nil {
		t.Fatalf("InstructionAt: %v", p.err)
	}
	if p.prev.ProgramID != writerID || string(p.prev.Data) != "sibling" {
		t.Errorf("previous instruction: %+v", p.prev)
	}
}

func TestInvocationContext_InstructionAtOutOfRange(t *testing.T) {
	exec, _, _ := newTestExecutor(t, 0)
	p := &peeker{}
	exec.Register(peekID, p)

	if _, err := exec.Execute(context.Background(), NewBatch(Instruction{ProgramID: peekID})); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !errors.Is(p.err, ErrInstructionIndex) {
		t.Fatalf("expected ErrInstructionIndex for index -1, got %v", p.err)
	}
}
