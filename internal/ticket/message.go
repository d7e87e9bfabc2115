// Package ticket defines redemption tickets and the canonical bytes the
// admin key signs.
package ticket

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudflare/circl/sign/ed25519"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/0gfoundation/0g-emissions/internal/address"
)

// MessageSize is the length of the canonical message:
// beneficiary(32) || amount(8) || nonce(8) || expiry(8).
const MessageSize = address.Size + 8 + 8 + 8

var ErrBadSignature = errors.New("ticket: signature does not verify")

// Message builds the canonical message for a ticket. All integers are
// little-endian; there are no separators or length prefixes. The off-chain
// issuer signs exactly these bytes, so the layout must never change.
func Message(beneficiary address.Address, amount, nonce uint64, expiry int64) []byte {
	msg := make([]byte, 0, MessageSize)
	msg = append(msg, beneficiary[:]...)
	msg = binary.LittleEndian.AppendUint64(msg, amount)
	msg = binary.LittleEndian.AppendUint64(msg, nonce)
	msg = binary.LittleEndian.AppendUint64(msg, uint64(expiry))
	return msg
}

// Message returns the canonical message for t.
func (t *Ticket) Message() []byte {
	return Message(t.Beneficiary, t.Amount, t.Nonce, t.Expiry)
}

// Sign signs the ticket in-place with the admin key.
func Sign(t *Ticket, key ed25519.PrivateKey) {
	copy(t.Signature[:], ed25519.Sign(key, t.Message()))
}

// Verify checks t's signature against the admin public key.
// Useful for testing and off-chain pre-verification.
func Verify(t *Ticket, admin address.Address) error {
	if !ed25519.Verify(ed25519.PublicKey(admin[:]), t.Message(), t.Signature[:]) {
		return ErrBadSignature
	}
	return nil
}

// PublicKey returns key's public half as an Address.
func PublicKey(key ed25519.PrivateKey) address.Address {
	var a address.Address
	copy(a[:], key.Public().(ed25519.PublicKey))
	return a
}

// ParsePrivateKey decodes a hex ed25519 seed (32 bytes) or full private
// key (64 bytes).
func ParsePrivateKey(s string) (ed25519.PrivateKey, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") {
		s = "0x" + s
	}
	raw, err := hexutil.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	switch len(raw) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(raw), nil
	case ed25519.PrivateKeySize:
		return ed25519.NewKeyFromSeed(raw[:ed25519.SeedSize]), nil
	default:
		return nil, fmt.Errorf("decode key: expected %d or %d bytes, got %d",
			ed25519.SeedSize, ed25519.PrivateKeySize, len(raw))
	}
}
