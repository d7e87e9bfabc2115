// Package sigverify implements the ed25519 signature-verification
// precompile and the parser for its instruction payload.
//
// Payload layout (little-endian):
//
//	byte 0      number of signatures
//	byte 1      padding
//	bytes 2..   one 14-byte descriptor per signature:
//	            sig offset, sig ix, pubkey offset, pubkey ix,
//	            msg offset, msg size, msg ix (all u16)
//
// An instruction index of ThisInstruction means the bytes live in the
// precompile's own payload.
package sigverify

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/0gfoundation/0g-emissions/internal/address"
)

const (
	HeaderSize     = 2
	DescriptorSize = 14
	SignatureSize  = 64
	PublicKeySize  = 32

	// ThisInstruction is the index value meaning "the payload itself".
	ThisInstruction = 0xFFFF
)

// ProgramID identifies the ed25519 precompile in a batch.
var ProgramID = address.Named("Ed25519SigVerify")

var (
	ErrMalformed       = errors.New("sigverify: malformed payload")
	ErrPayloadTooShort = fmt.Errorf("%w: payload too short", ErrMalformed)
	ErrProofCount      = fmt.Errorf("%w: expected exactly one signature", ErrMalformed)
	ErrSignatureBounds = fmt.Errorf("%w: signature out of bounds", ErrMalformed)
	ErrPublicKeyBounds = fmt.Errorf("%w: public key out of bounds", ErrMalformed)
	ErrMessageBounds   = fmt.Errorf("%w: message out of bounds", ErrMalformed)
	ErrForeignData     = fmt.Errorf("%w: proof data must live in the payload itself", ErrMalformed)
)

// Proof is one signature/public key/message triple. The slices alias the
// payload they were parsed from.
type Proof struct {
	Signature []byte
	PublicKey []byte
	Message   []byte
}

// Descriptor is the raw offsets block for one signature.
type Descriptor struct {
	SignatureOffset           uint16
	SignatureInstructionIndex uint16
	PublicKeyOffset           uint16
	PublicKeyInstructionIndex uint16
	MessageOffset             uint16
	MessageSize               uint16
	MessageInstructionIndex   uint16
}

func readDescriptor(b []byte) Descriptor {
	return Descriptor{
		SignatureOffset:           binary.LittleEndian.Uint16(b[0:2]),
		SignatureInstructionIndex: binary.LittleEndian.Uint16(b[2:4]),
		PublicKeyOffset:           binary.LittleEndian.Uint16(b[4:6]),
		PublicKeyInstructionIndex: binary.LittleEndian.Uint16(b[6:8]),
		MessageOffset:             binary.LittleEndian.Uint16(b[8:10]),
		MessageSize:               binary.LittleEndian.Uint16(b[10:12]),
		MessageInstructionIndex:   binary.LittleEndian.Uint16(b[12:14]),
	}
}

func (d Descriptor) put(b []byte) {
	binary.LittleEndian.PutUint16(b[0:2], d.SignatureOffset)
	binary.LittleEndian.PutUint16(b[2:4], d.SignatureInstructionIndex)
	binary.LittleEndian.PutUint16(b[4:6], d.PublicKeyOffset)
	binary.LittleEndian.PutUint16(b[6:8], d.PublicKeyInstructionIndex)
	binary.LittleEndian.PutUint16(b[8:10], d.MessageOffset)
	binary.LittleEndian.PutUint16(b[10:12], d.MessageSize)
	binary.LittleEndian.PutUint16(b[12:14], d.MessageInstructionIndex)
}

// Parse extracts the single proof carried by a precompile payload. Offsets
// are resolved against data itself, so every instruction index must be
// ThisInstruction; the precompile would otherwise have checked different
// bytes than the ones returned.
func Parse(data []byte) (*Proof, error) {
	if len(data) < HeaderSize+DescriptorSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooShort, len(data))
	}
	if data[0] != 1 {
		return nil, fmt.Errorf("%w: got %d", ErrProofCount, data[0])
	}
	d := readDescriptor(data[HeaderSize : HeaderSize+DescriptorSize])
	if d.SignatureInstructionIndex != ThisInstruction ||
		d.PublicKeyInstructionIndex != ThisInstruction ||
		d.MessageInstructionIndex != ThisInstruction {
		return nil, fmt.Errorf("%w: indexes sig=%#x pubkey=%#x msg=%#x", ErrForeignData,
			d.SignatureInstructionIndex, d.PublicKeyInstructionIndex, d.MessageInstructionIndex)
	}

	sig, pk, msg := int(d.SignatureOffset), int(d.PublicKeyOffset), int(d.MessageOffset)
	if sig+SignatureSize > len(data) {
		return nil, ErrSignatureBounds
	}
	if pk+PublicKeySize > len(data) {
		return nil, ErrPublicKeyBounds
	}
	if msg+int(d.MessageSize) > len(data) {
		return nil, ErrMessageBounds
	}
	return &Proof{
		Signature: data[sig : sig+SignatureSize],
		PublicKey: data[pk : pk+PublicKeySize],
		Message:   data[msg : msg+int(d.MessageSize)],
	}, nil
}
