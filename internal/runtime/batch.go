package runtime

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cloudflare/circl/sign/ed25519"
	"github.com/google/uuid"

	"github.com/0gfoundation/0g-emissions/internal/address"
)

// MaxInstructions bounds the size of a single batch.
const MaxInstructions = 64

var (
	ErrEmptyBatch        = errors.New("runtime: batch has no instructions")
	ErrBatchTooLarge     = errors.New("runtime: batch has too many instructions")
	ErrMissingBatchID    = errors.New("runtime: batch id is required")
	ErrSignatureMismatch = errors.New("runtime: signers and signatures differ in length")
	ErrDuplicateSigner   = errors.New("runtime: duplicate signer")
	ErrBadBatchSignature = errors.New("runtime: batch signature verification failed")
)

// Instruction is one call inside a batch: the program to run and its raw
// input bytes.
type Instruction struct {
	ProgramID address.Address `json:"program_id"`
	Data      []byte          `json:"data"`
}

// Batch is the atomic unit of execution. Signers[i] produced Signatures[i]
// over Message().
type Batch struct {
	ID           uuid.UUID         `json:"id"`
	Instructions []Instruction     `json:"instructions"`
	Signers      []address.Address `json:"signers"`
	Signatures   [][]byte          `json:"signatures"`
}

// NewBatch returns an unsigned batch with a fresh id.
func NewBatch(ixs ...Instruction) *Batch {
	return &Batch{ID: uuid.New(), Instructions: ixs}
}

// Message returns the bytes every signer signs: id, instructions and the
// signer list, length-prefixed so no two batches share an encoding.
func (b *Batch) Message() []byte {
	size := 16 + 2 + 2 + len(b.Signers)*address.Size
	for _, ix := range b.Instructions {
		size += address.Size + 4 + len(ix.Data)
	}
	out := make([]byte, 0, size)
	out = append(out, b.ID[:]...)
	out = binary.LittleEndian.AppendUint16(out, uint16(len(b.Instructions)))
	for _, ix := range b.Instructions {
		out = append(out, ix.ProgramID[:]...)
		out = binary.LittleEndian.AppendUint32(out, uint32(len(ix.Data)))
		out = append(out, ix.Data...)
	}
	out = binary.LittleEndian.AppendUint16(out, uint16(len(b.Signers)))
	for _, s := range b.Signers {
		out = append(out, s[:]...)
	}
	return out
}

// Sign replaces the signer set with the public keys of keys and signs.
func (b *Batch) Sign(keys ...ed25519.PrivateKey) {
	b.Signers = make([]address.Address, len(keys))
	for i, k := range keys {
		copy(b.Signers[i][:], k.Public().(ed25519.PublicKey))
	}
	msg := b.Message()
	b.Signatures = make([][]byte, len(keys))
	for i, k := range keys {
		b.Signatures[i] = ed25519.Sign(k, msg)
	}
}

// Validate checks shape limits and every signer signature.
func (b *Batch) Validate() error {
	if b.ID == uuid.Nil {
		return ErrMissingBatchID
	}
	if len(b.Instructions) == 0 {
		return ErrEmptyBatch
	}
	if len(b.Instructions) > MaxInstructions {
		return fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(b.Instructions), MaxInstructions)
	}
	if len(b.Signers) != len(b.Signatures) {
		return ErrSignatureMismatch
	}
	seen := make(map[address.Address]struct{}, len(b.Signers))
	msg := b.Message()
	for i, s := range b.Signers {
		if _, dup := seen[s]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateSigner, s)
		}
		seen[s] = struct{}{}
		if len(b.Signatures[i]) != ed25519.SignatureSize ||
			!ed25519.Verify(ed25519.PublicKey(s[:]), msg, b.Signatures[i]) {
			return fmt.Errorf("%w: signer %s", ErrBadBatchSignature, s)
		}
	}
	return nil
}

// IsSigner reports whether a signed the batch.
func (b *Batch) IsSigner(a address.Address) bool {
	for _, s := range b.Signers {
		if s == a {
			return true
		}
	}
	return false
}
