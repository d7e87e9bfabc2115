package emissions

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/0gfoundation/0g-emissions/internal/address"
	"github.com/0gfoundation/0g-emissions/internal/ledger"
)

// Derived-address seeds
const (
	ConfigSeed = "config"
	VaultSeed  = "vault"
	ClaimSeed  = "claim"
)

// Config is the program singleton. It is written once by InitializeConfig.
type Config struct {
	AdminPubkey    address.Address `json:"admin_pubkey"`
	TokenMint      address.Address `json:"token_mint"`
	VaultAuthority address.Address `json:"vault_authority"`
	VaultBump      uint8           `json:"vault_bump"`
}

// RedemptionRecord marks (Beneficiary, Nonce) as redeemed. It is never
// modified after creation.
type RedemptionRecord struct {
	Beneficiary address.Address `json:"beneficiary"`
	Nonce       uint64          `json:"nonce"`
	Amount      uint64          `json:"amount"`
	RedeemedAt  int64           `json:"redeemed_at"`
}

// ConfigAddress is where program's Config lives.
func ConfigAddress(program address.Address) (address.Address, error) {
	a, _, err := address.FindProgramAddress([][]byte{[]byte(ConfigSeed)}, program)
	if err != nil {
		return address.Zero, fmt.Errorf("config address: %w", err)
	}
	return a, nil
}

// VaultAuthority is the derived address that owns the payout account.
func VaultAuthority(program address.Address) (address.Address, uint8, error) {
	a, bump, err := address.FindProgramAddress([][]byte{[]byte(VaultSeed)}, program)
	if err != nil {
		return address.Zero, 0, fmt.Errorf("vault authority: %w", err)
	}
	return a, bump, nil
}

// RecordAddress is the slot for the (beneficiary, nonce) redemption record.
// It is a pure function of its inputs; that is what makes a second
// redemption of the same pair collide.
func RecordAddress(program, beneficiary address.Address, nonce uint64) (address.Address, error) {
	seeds := [][]byte{
		[]byte(ClaimSeed),
		beneficiary[:],
		binary.LittleEndian.AppendUint64(nil, nonce),
	}
	a, _, err := address.FindProgramAddress(seeds, program)
	if err != nil {
		return address.Zero, fmt.Errorf("record address: %w", err)
	}
	return a, nil
}

// LoadConfig reads the committed Config.
func LoadConfig(ctx context.Context, store *ledger.Store, program address.Address) (*Config, error) {
	at, err := ConfigAddress(program)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := store.GetJSON(ctx, at, &cfg); err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}
	return &cfg, nil
}

// LoadRecord reads a committed redemption record. It returns
// ledger.ErrNotFound if the pair has not been redeemed.
func LoadRecord(ctx context.Context, store *ledger.Store, program, beneficiary address.Address, nonce uint64) (*RedemptionRecord, error) {
	at, err := RecordAddress(program, beneficiary, nonce)
	if err != nil {
		return nil, err
	}
	var rec RedemptionRecord
	if err := store.GetJSON(ctx, at, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}
