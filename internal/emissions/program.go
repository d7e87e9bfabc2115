// Package emissions is the ticket redemption program. A ticket signed by
// the configured admin key pays out of the program vault exactly once per
// (beneficiary, nonce).
package emissions

import (
	"crypto/subtle"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/0gfoundation/0g-emissions/internal/address"
	"github.com/0gfoundation/0g-emissions/internal/events"
	"github.com/0gfoundation/0g-emissions/internal/ledger"
	"github.com/0gfoundation/0g-emissions/internal/runtime"
	"github.com/0gfoundation/0g-emissions/internal/sigverify"
	"github.com/0gfoundation/0g-emissions/internal/ticket"
	"github.com/0gfoundation/0g-emissions/internal/token"
)

// TicketRedeemed is published after a redemption commits.
type TicketRedeemed struct {
	BatchID     string          `json:"batch_id"`
	Beneficiary address.Address `json:"beneficiary"`
	Nonce       uint64          `json:"nonce"`
	Amount      uint64          `json:"amount"`
	RedeemedAt  int64           `json:"redeemed_at"`
}

// ConfigInitialized is published after InitializeConfig commits.
type ConfigInitialized struct {
	Config  address.Address `json:"config"`
	Admin   address.Address `json:"admin"`
	Mint    address.Address `json:"mint"`
	Vault   address.Address `json:"vault_authority"`
	BatchID string          `json:"batch_id"`
}

// Program is registered with the runtime under its id.
type Program struct {
	id  address.Address
	log *zap.Logger
}

func NewProgram(id address.Address, log *zap.Logger) *Program {
	return &Program{id: id, log: log}
}

func (p *Program) ID() address.Address { return p.id }

func (p *Program) Process(ic *runtime.InvocationContext, data []byte) error {
	if len(data) == 0 {
		return ErrInvalidInstruction
	}
	switch data[0] {
	case TagInitializeConfig:
		args, err := decodeInitializeConfig(data)
		if err != nil {
			return err
		}
		return p.initializeConfig(ic, args)
	case TagRedeem:
		t, err := decodeRedeem(data)
		if err != nil {
			return err
		}
		return p.redeem(ic, &t)
	default:
		return ErrInvalidInstruction
	}
}

func (p *Program) initializeConfig(ic *runtime.InvocationContext, args initializeConfigArgs) error {
	if !ic.IsSigner(args.Admin) {
		return ErrMissingSigner
	}
	vault, bump, err := VaultAuthority(p.id)
	if err != nil {
		return err
	}
	at, err := ConfigAddress(p.id)
	if err != nil {
		return err
	}
	cfg := Config{
		AdminPubkey:    args.Admin,
		TokenMint:      args.Mint,
		VaultAuthority: vault,
		VaultBump:      bump,
	}
	if err := ic.Tx().CreateJSON(at, cfg); err != nil {
		if errors.Is(err, ledger.ErrSlotOccupied) {
			return ErrConfigExists
		}
		return err
	}
	ic.Emit(events.TopicConfigInitialized, ConfigInitialized{
		Config:  at,
		Admin:   args.Admin,
		Mint:    args.Mint,
		Vault:   vault,
		BatchID: ic.BatchID(),
	})
	return nil
}

func (p *Program) loadConfig(tx *ledger.Tx) (*Config, error) {
	at, err := ConfigAddress(p.id)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := tx.GetJSON(at, &cfg); err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}
	return &cfg, nil
}

func (p *Program) redeem(ic *runtime.InvocationContext, t *ticket.Ticket) error {
	if !ic.IsSigner(t.Beneficiary) {
		return ErrMissingSigner
	}
	cfg, err := p.loadConfig(ic.Tx())
	if err != nil {
		return err
	}

	now := ic.Now()
	if now > t.Expiry {
		return ErrTicketExpired
	}

	msg := ticket.Message(t.Beneficiary, t.Amount, t.Nonce, t.Expiry)
	if err := p.verifyAdminSignature(ic, cfg.AdminPubkey, msg, t.Signature[:]); err != nil {
		return err
	}

	at, err := RecordAddress(p.id, t.Beneficiary, t.Nonce)
	if err != nil {
		return err
	}
	record := RedemptionRecord{
		Beneficiary: t.Beneficiary,
		Nonce:       t.Nonce,
		Amount:      t.Amount,
		RedeemedAt:  now,
	}
	if err := ic.Tx().CreateJSON(at, record); err != nil {
		if errors.Is(err, ledger.ErrSlotOccupied) {
			return ErrAlreadyClaimed
		}
		return err
	}

	transfer := token.TransferArgs{
		Mint:   cfg.TokenMint,
		From:   cfg.VaultAuthority,
		To:     t.Beneficiary,
		Amount: t.Amount,
	}
	if err := token.Transfer(ic, transfer, []byte(VaultSeed), []byte{cfg.VaultBump}); err != nil {
		return fmt.Errorf("payout: %w", err)
	}

	ic.Emit(events.TopicTicketRedeemed, TicketRedeemed{
		BatchID:     ic.BatchID(),
		Beneficiary: t.Beneficiary,
		Nonce:       t.Nonce,
		Amount:      t.Amount,
		RedeemedAt:  now,
	})
	return nil
}

// verifyAdminSignature checks that the instruction right before this one
// is a signature verification of exactly (admin, msg, sig). The precompile
// has already verified the signature by the time we run; what remains is
// to make sure it verified the right thing. Every failure is reported as
// ErrInvalidSignature.
func (p *Program) verifyAdminSignature(ic *runtime.InvocationContext, admin address.Address, msg, sig []byte) error {
	reject := func(reason string, fields ...zap.Field) error {
		p.log.Debug("signature check failed",
			append(fields, zap.String("batch", ic.BatchID()), zap.String("reason", reason))...)
		return ErrInvalidSignature
	}

	idx := ic.CurrentIndex()
	if idx == 0 {
		return reject("no preceding instruction")
	}
	ix, err := ic.InstructionAt(idx - 1)
	if err != nil {
		return reject("load preceding instruction", zap.Error(err))
	}
	if ix.ProgramID != sigverify.ProgramID {
		return reject("preceding instruction is not signature verification",
			zap.String("program", ix.ProgramID.Hex()))
	}
	proof, err := sigverify.Parse(ix.Data)
	if err != nil {
		return reject("parse proof", zap.Error(err))
	}

	ok := subtle.ConstantTimeCompare(proof.Signature, sig) &
		subtle.ConstantTimeCompare(proof.PublicKey, admin[:]) &
		subtle.ConstantTimeCompare(proof.Message, msg)
	if ok != 1 {
		return reject("proof does not match ticket")
	}
	return nil
}
