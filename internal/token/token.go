// Package token keeps fungible balances in the ledger. Each (mint, owner)
// pair has one account at a derived address.
package token

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/0gfoundation/0g-emissions/internal/address"
	"github.com/0gfoundation/0g-emissions/internal/ledger"
	"github.com/0gfoundation/0g-emissions/internal/runtime"
)

// ProgramID identifies the token program in a batch.
var ProgramID = address.Named("TokenProgram")

const accountSeed = "token"

var (
	ErrAccountNotFound   = errors.New("token: account not found")
	ErrInsufficientFunds = errors.New("token: insufficient funds")
	ErrOwnerMismatch     = errors.New("token: account owner mismatch")
	ErrMintMismatch      = errors.New("token: account mint mismatch")
	ErrUnauthorized      = errors.New("token: missing transfer authority")
	ErrOverflow          = errors.New("token: balance overflow")
)

// Account is a balance of one mint held by one owner.
type Account struct {
	Mint   address.Address `json:"mint"`
	Owner  address.Address `json:"owner"`
	Amount uint64          `json:"amount"`
}

// AccountAddress is where owner's balance of mint lives.
func AccountAddress(mint, owner address.Address) (address.Address, error) {
	a, _, err := address.FindProgramAddress([][]byte{[]byte(accountSeed), owner[:], mint[:]}, ProgramID)
	if err != nil {
		return address.Zero, fmt.Errorf("token account address: %w", err)
	}
	return a, nil
}

// TransferArgs moves Amount of Mint from From's account to To's account.
// From and To are owners, not account addresses.
type TransferArgs struct {
	Mint   address.Address
	From   address.Address
	To     address.Address
	Amount uint64
}

// Transfer moves tokens inside the caller's transaction. With no seeds
// From must have signed the batch. With seeds, From must be the address
// the calling program derives from them, which lets a program spend from
// accounts owned by its own derived addresses.
func Transfer(ic *runtime.InvocationContext, args TransferArgs, seeds ...[]byte) error {
	if len(seeds) == 0 {
		if !ic.IsSigner(args.From) {
			return fmt.Errorf("%w: %s did not sign", ErrUnauthorized, args.From)
		}
	} else {
		derived, err := address.CreateProgramAddress(seeds, ic.ProgramID())
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnauthorized, err)
		}
		if derived != args.From {
			return fmt.Errorf("%w: seeds derive %s, not %s", ErrUnauthorized, derived, args.From)
		}
	}
	return move(ic.Tx(), args)
}

func move(tx *ledger.Tx, args TransferArgs) error {
	srcAddr, err := AccountAddress(args.Mint, args.From)
	if err != nil {
		return err
	}
	src, err := load(tx, srcAddr, args.Mint, args.From)
	if errors.Is(err, ErrAccountNotFound) {
		return fmt.Errorf("%w: source %s", ErrAccountNotFound, args.From)
	}
	if err != nil {
		return err
	}
	if src.Amount < args.Amount {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientFunds, src.Amount, args.Amount)
	}
	if args.From == args.To {
		return nil
	}

	dstAddr, err := AccountAddress(args.Mint, args.To)
	if err != nil {
		return err
	}
	dst, err := load(tx, dstAddr, args.Mint, args.To)
	if errors.Is(err, ErrAccountNotFound) {
		dst = &Account{Mint: args.Mint, Owner: args.To}
	} else if err != nil {
		return err
	}
	if dst.Amount > math.MaxUint64-args.Amount {
		return ErrOverflow
	}

	src.Amount -= args.Amount
	dst.Amount += args.Amount
	if err := tx.PutJSON(srcAddr, src); err != nil {
		return err
	}
	return tx.PutJSON(dstAddr, dst)
}

func load(tx *ledger.Tx, at, mint, owner address.Address) (*Account, error) {
	var acct Account
	err := tx.GetJSON(at, &acct)
	if errors.Is(err, ledger.ErrNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	if acct.Mint != mint {
		return nil, fmt.Errorf("%w: account %s holds %s", ErrMintMismatch, at, acct.Mint)
	}
	if acct.Owner != owner {
		return nil, fmt.Errorf("%w: account %s owned by %s", ErrOwnerMismatch, at, acct.Owner)
	}
	return &acct, nil
}

// Credit adds amount to owner's account, creating it if needed, and
// returns the new balance. Used by operator tooling to fund accounts.
func Credit(tx *ledger.Tx, mint, owner address.Address, amount uint64) (uint64, error) {
	at, err := AccountAddress(mint, owner)
	if err != nil {
		return 0, err
	}
	acct, err := load(tx, at, mint, owner)
	if errors.Is(err, ErrAccountNotFound) {
		acct = &Account{Mint: mint, Owner: owner}
	} else if err != nil {
		return 0, err
	}
	if acct.Amount > math.MaxUint64-amount {
		return 0, ErrOverflow
	}
	acct.Amount += amount
	if err := tx.PutJSON(at, acct); err != nil {
		return 0, err
	}
	return acct.Amount, nil
}

// BalanceOf reads owner's committed balance. A missing account is 0.
func BalanceOf(ctx context.Context, store *ledger.Store, mint, owner address.Address) (uint64, error) {
	at, err := AccountAddress(mint, owner)
	if err != nil {
		return 0, err
	}
	var acct Account
	err = store.GetJSON(ctx, at, &acct)
	if errors.Is(err, ledger.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return acct.Amount, nil
}
