package ticket

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/0gfoundation/0g-emissions/internal/address"
)

// SignatureSize is the byte length of an ed25519 ticket signature.
const SignatureSize = 64

// Signature is a detached ed25519 signature, hex-encoded in JSON.
type Signature [SignatureSize]byte

func (s Signature) MarshalText() ([]byte, error) {
	return []byte(hexutil.Encode(s[:])), nil
}

func (s *Signature) UnmarshalText(b []byte) error {
	raw, err := hexutil.Decode(string(b))
	if err != nil {
		return fmt.Errorf("ticket signature: %w", err)
	}
	if len(raw) != SignatureSize {
		return fmt.Errorf("ticket signature: expected %d bytes, got %d", SignatureSize, len(raw))
	}
	copy(s[:], raw)
	return nil
}

// Ticket is an admin-signed authorization to pay Amount to Beneficiary.
// It is never persisted by the program; only its redemption record is.
type Ticket struct {
	Beneficiary address.Address `json:"beneficiary"`
	Amount      uint64          `json:"amount"`
	Nonce       uint64          `json:"nonce"`
	Expiry      int64           `json:"expiry"`
	Signature   Signature       `json:"signature"`
}

// Redis key templates
const (
	NonceKeyFmt = "ticket:nonce:%s" // %s = beneficiary hex
)
