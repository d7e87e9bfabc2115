package sigverify

import (
	"errors"
	"fmt"
	"math"

	"github.com/cloudflare/circl/sign/ed25519"

	"github.com/0gfoundation/0g-emissions/internal/runtime"
)

var (
	ErrNoSignatures    = errors.New("sigverify: payload carries no signatures")
	ErrVerifyFailed    = errors.New("sigverify: signature verification failed")
	ErrPayloadTooLarge = errors.New("sigverify: payload exceeds u16 offsets")
)

// Program is the precompile itself: it verifies every descriptor in its
// payload and fails the batch if any signature does not check out.
type Program struct{}

func (Program) Process(ic *runtime.InvocationContext, data []byte) error {
	if len(data) < HeaderSize {
		return fmt.Errorf("%w: %d bytes", ErrPayloadTooShort, len(data))
	}
	n := int(data[0])
	if n == 0 {
		return ErrNoSignatures
	}
	if len(data) < HeaderSize+n*DescriptorSize {
		return fmt.Errorf("%w: %d descriptors in %d bytes", ErrPayloadTooShort, n, len(data))
	}

	for i := 0; i < n; i++ {
		off := HeaderSize + i*DescriptorSize
		d := readDescriptor(data[off : off+DescriptorSize])

		sig, err := slice(ic, data, d.SignatureInstructionIndex, d.SignatureOffset, SignatureSize)
		if err != nil {
			return fmt.Errorf("signature %d: %w", i, err)
		}
		pk, err := slice(ic, data, d.PublicKeyInstructionIndex, d.PublicKeyOffset, PublicKeySize)
		if err != nil {
			return fmt.Errorf("public key %d: %w", i, err)
		}
		msg, err := slice(ic, data, d.MessageInstructionIndex, d.MessageOffset, int(d.MessageSize))
		if err != nil {
			return fmt.Errorf("message %d: %w", i, err)
		}
		if !ed25519.Verify(ed25519.PublicKey(pk), msg, sig) {
			return fmt.Errorf("%w: descriptor %d", ErrVerifyFailed, i)
		}
	}
	return nil
}

func slice(ic *runtime.InvocationContext, self []byte, ix, offset uint16, size int) ([]byte, error) {
	src := self
	if ix != ThisInstruction {
		other, err := ic.InstructionAt(int(ix))
		if err != nil {
			return nil, err
		}
		src = other.Data
	}
	start := int(offset)
	if start+size > len(src) {
		return nil, fmt.Errorf("%w: [%d:%d] of %d", ErrMalformed, start, start+size, len(src))
	}
	return src[start : start+size], nil
}

// Encode lays out a precompile payload carrying proofs, each proof's
// public key, signature and message following the descriptor table.
func Encode(proofs ...Proof) ([]byte, error) {
	if len(proofs) == 0 || len(proofs) > math.MaxUint8 {
		return nil, fmt.Errorf("%w: %d proofs", ErrMalformed, len(proofs))
	}
	size := HeaderSize + len(proofs)*DescriptorSize
	for _, p := range proofs {
		size += len(p.PublicKey) + len(p.Signature) + len(p.Message)
	}
	if size > math.MaxUint16 {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, size)
	}

	out := make([]byte, HeaderSize+len(proofs)*DescriptorSize, size)
	out[0] = byte(len(proofs))
	for i, p := range proofs {
		d := Descriptor{
			SignatureInstructionIndex: ThisInstruction,
			PublicKeyInstructionIndex: ThisInstruction,
			MessageInstructionIndex:   ThisInstruction,
		}
		d.PublicKeyOffset = uint16(len(out))
		out = append(out, p.PublicKey...)
		d.SignatureOffset = uint16(len(out))
		out = append(out, p.Signature...)
		d.MessageOffset = uint16(len(out))
		d.MessageSize = uint16(len(p.Message))
		out = append(out, p.Message...)

		off := HeaderSize + i*DescriptorSize
		d.put(out[off : off+DescriptorSize])
	}
	return out, nil
}

// NewInstruction builds the precompile instruction proving that sig is
// pub's signature over msg. It must be placed immediately before the
// instruction that consumes the proof.
func NewInstruction(pub, msg, sig []byte) (runtime.Instruction, error) {
	data, err := Encode(Proof{Signature: sig, PublicKey: pub, Message: msg})
	if err != nil {
		return runtime.Instruction{}, err
	}
	return runtime.Instruction{ProgramID: ProgramID, Data: data}, nil
}

// SignInstruction signs msg with key and wraps the result in a precompile
// instruction.
func SignInstruction(key ed25519.PrivateKey, msg []byte) (runtime.Instruction, error) {
	pub := key.Public().(ed25519.PublicKey)
	return NewInstruction(pub, msg, ed25519.Sign(key, msg))
}
