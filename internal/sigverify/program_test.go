package sigverify

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/cloudflare/circl/sign/ed25519"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/0gfoundation/0g-emissions/internal/address"
	"github.com/0gfoundation/0g-emissions/internal/ledger"
	"github.com/0gfoundation/0g-emissions/internal/runtime"
)

var dataID = address.Named("test/data")

type nop struct{}

func (nop) Process(*runtime.InvocationContext, []byte) error { return nil }

func newTestExecutor(t *testing.T) *runtime.Executor {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	exec := runtime.NewExecutor(ledger.NewStore(rdb, "test:"), runtime.SystemClock{}, nil, zap.NewNop())
	exec.Register(ProgramID, Program{})
	exec.Register(dataID, nop{})
	return exec
}

func run(t *testing.T, ixs ...runtime.Instruction) error {
	t.Helper()
	_, err := newTestExecutor(t).Execute(context.Background(), runtime.NewBatch(ixs...))
	return err
}

// ── Program ───────────────────────────────────────────────────────────────────

func TestProgram_ValidSignature(t *testing.T) {
	ix, err := SignInstruction(newKey(t), []byte("hello"))
	if err != nil {
		t.Fatal(err)
	}
	if err := run(t, ix); err != nil {
		t.Fatalf("valid proof rejected: %v", err)
	}
}

func TestProgram_BadSignatureAbortsBatch(t *testing.T) {
	ix, err := SignInstruction(newKey(t), []byte("hello"))
	if err != nil {
		t.Fatal(err)
	}
	ix.Data[len(ix.Data)-1] ^= 0x01 // flip a message bit

	if err := run(t, ix); !errors.Is(err, ErrVerifyFailed) {
		t.Fatalf("expected ErrVerifyFailed, got %v", err)
	}
}

func TestProgram_MultipleSignatures(t *testing.T) {
	k1, k2 := newKey(t), newKey(t)
	m1, m2 := []byte("one"), []byte("two")
	data, err := Encode(
		Proof{PublicKey: k1.Public().(ed25519.PublicKey), Signature: ed25519.Sign(k1, m1), Message: m1},
		Proof{PublicKey: k2.Public().(ed25519.PublicKey), Signature: ed25519.Sign(k2, m2), Message: m2},
	)
	if err != nil {
		t.Fatal(err)
	}
	if err := run(t, runtime.Instruction{ProgramID: ProgramID, Data: data}); err != nil {
		t.Fatalf("precompile should accept several valid proofs: %v", err)
	}

	// the consumer-side parser still accepts only one
	if _, err := Parse(data); !errors.Is(err, ErrProofCount) {
		t.Fatalf("Parse: expected ErrProofCount, got %v", err)
	}
}

func TestProgram_NoSignatures(t *testing.T) {
	if err := run(t, runtime.Instruction{ProgramID: ProgramID, Data: []byte{0, 0}}); !errors.Is(err, ErrNoSignatures) {
		t.Fatalf("expected ErrNoSignatures, got %v", err)
	}
}

func TestProgram_TruncatedDescriptorTable(t *testing.T) {
	if err := run(t, runtime.Instruction{ProgramID: ProgramID, Data: []byte{2, 0, 1, 2}}); !errors.Is(err, ErrPayloadTooShort) {
		t.Fatalf("expected ErrPayloadTooShort, got %v", err)
	}
}

func TestProgram_ReadsOtherInstruction(t *testing.T) {
	key := newKey(t)
	msg := []byte("message stored elsewhere")
	ix, err := NewInstruction(key.Public().(ed25519.PublicKey), nil, ed25519.Sign(key, msg))
	if err != nil {
		t.Fatal(err)
	}
	// point the message at instruction 0
	binary.LittleEndian.PutUint16(ix.Data[10:12], 0)
	binary.LittleEndian.PutUint16(ix.Data[12:14], uint16(len(msg)))
	binary.LittleEndian.PutUint16(ix.Data[14:16], 0)

	if err := run(t, runtime.Instruction{ProgramID: dataID, Data: msg}, ix); err != nil {
		t.Fatalf("cross-instruction message rejected: %v", err)
	}
}

func TestProgram_OtherInstructionOutOfRange(t *testing.T) {
	ix, err := SignInstruction(newKey(t), []byte("m"))
	if err != nil {
		t.Fatal(err)
	}
	binary.LittleEndian.PutUint16(ix.Data[4:6], 9)

	if err := run(t, ix); !errors.Is(err, runtime.ErrInstructionIndex) {
		t.Fatalf("expected ErrInstructionIndex, got %v", err)
	}
}

func TestProgram_OffsetOutOfBounds(t *testing.T) {
	ix, err := SignInstruction(newKey(t), []byte("m"))
	if err != nil {
		t.Fatal(err)
	}
	binary.LittleEndian.PutUint16(ix.Data[2:4], 0xFFFF)

	if err := run(t, ix); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}
