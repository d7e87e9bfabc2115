// Package address defines 32-byte account identities and deterministic
// program-derived addresses.
package address

import (
	"errors"
	"fmt"
	"strings"

	"filippo.io/edwards25519"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Size is the byte length of an Address.
const Size = 32

const (
	maxSeeds   = 16
	maxSeedLen = 32
	pdaMarker  = "ProgramDerivedAddress"
)

var (
	ErrInvalidSeeds = errors.New("address: invalid seeds")
	ErrOnCurve      = errors.New("address: derived address is on the ed25519 curve")
	ErrNoBump       = errors.New("address: no viable bump seed")
	ErrInvalidHex   = errors.New("address: invalid hex")
)

// Address is either an ed25519 public key or a program-derived address.
type Address [Size]byte

// Zero is the all-zero address.
var Zero Address

// FromBytes copies b into an Address. b must be exactly Size bytes.
func FromBytes(b []byte) (Address, error) {
	var a Address
	if len(b) != Size {
		return a, fmt.Errorf("address: expected %d bytes, got %d", Size, len(b))
	}
	copy(a[:], b)
	return a, nil
}

// ParseHex decodes a 0x-prefixed (or bare) 64-char hex string.
func ParseHex(s string) (Address, error) {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	b, err := hexutil.Decode(s)
	if err != nil {
		return Zero, fmt.Errorf("%w: %v", ErrInvalidHex, err)
	}
	return FromBytes(b)
}

// MustParseHex is ParseHex for constants; it panics on error.
func MustParseHex(s string) Address {
	a, err := ParseHex(s)
	if err != nil {
		panic(err)
	}
	return a
}

// Named derives a stable identity from a human-readable name (keccak256).
// Used for program ids.
func Named(name string) Address {
	var a Address
	copy(a[:], crypto.Keccak256([]byte(name)))
	return a
}

func (a Address) Bytes() []byte  { return a[:] }
func (a Address) Hex() string    { return hexutil.Encode(a[:]) }
func (a Address) String() string { return a.Hex() }
func (a Address) IsZero() bool   { return a == Zero }

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.Hex()), nil
}

func (a *Address) UnmarshalText(b []byte) error {
	parsed, err := ParseHex(string(b))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// CreateProgramAddress hashes seeds with the program id and rejects results
// that are valid curve points, so no private key exists for them.
func CreateProgramAddress(seeds [][]byte, program Address) (Address, error) {
	if len(seeds) > maxSeeds {
		return Zero, fmt.Errorf("%w: %d seeds (max %d)", ErrInvalidSeeds, len(seeds), maxSeeds)
	}
	parts := make([][]byte, 0, len(seeds)+2)
	for _, s := range seeds {
		if len(s) > maxSeedLen {
			return Zero, fmt.Errorf("%w: seed of %d bytes (max %d)", ErrInvalidSeeds, len(s), maxSeedLen)
		}
		parts = append(parts, s)
	}
	parts = append(parts, program[:], []byte(pdaMarker))

	var a Address
	copy(a[:], crypto.Keccak256(parts...))
	if OnCurve(a) {
		return Zero, ErrOnCurve
	}
	return a, nil
}

// FindProgramAddress searches bumps 255..0 and returns the first off-curve
// address together with the bump that produced it.
func FindProgramAddress(seeds [][]byte, program Address) (Address, uint8, error) {
	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)
	for bump := 255; bump >= 0; bump-- {
		withBump[len(seeds)] = []byte{byte(bump)}
		a, err := CreateProgramAddress(withBump, program)
		if err == nil {
			return a, uint8(bump), nil
		}
		if !errors.Is(err, ErrOnCurve) {
			return Zero, 0, err
		}
	}
	return Zero, 0, ErrNoBump
}

// OnCurve reports whether a decodes as an ed25519 point.
func OnCurve(a Address) bool {
	_, err := new(edwards25519.Point).SetBytes(a[:])
	return err == nil
}
