package auth

import (
	"errors"
	"fmt"

	"github.com/cloudflare/circl/sign/ed25519"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/0gfoundation/0g-emissions/internal/address"
)

var ErrInvalidSignature = errors.New("invalid signature")

// HashMessage constructs the prefixed request digest:
// keccak256("\x19Emissions Signed Request:\n" + len(msg) + msg)
func HashMessage(msg []byte) []byte {
	prefix := fmt.Sprintf("\x19Emissions Signed Request:\n%d", len(msg))
	return crypto.Keccak256([]byte(prefix), msg)
}

// SignMessage signs the request digest of msg with key.
func SignMessage(key ed25519.PrivateKey, msg []byte) []byte {
	return ed25519.Sign(key, HashMessage(msg))
}

// Verify checks that sig is identity's signature over msg's digest.
func Verify(identity address.Address, msg, sig []byte) error {
	if len(sig) != ed25519.SignatureSize {
		return fmt.Errorf("%w: length %d", ErrInvalidSignature, len(sig))
	}
	if !ed25519.Verify(ed25519.PublicKey(identity[:]), HashMessage(msg), sig) {
		return ErrInvalidSignature
	}
	return nil
}
