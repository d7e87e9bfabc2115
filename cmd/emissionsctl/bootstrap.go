package main

import (
	"context"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/0gfoundation/0g-emissions/internal/address"
	"github.com/0gfoundation/0g-emissions/internal/emissions"
	"github.com/0gfoundation/0g-emissions/internal/ledger"
	"github.com/0gfoundation/0g-emissions/internal/runtime"
	"github.com/0gfoundation/0g-emissions/internal/ticket"
	"github.com/0gfoundation/0g-emissions/internal/token"
)

// ── init ──────────────────────────────────────────────────────────────────────

var (
	initAdminKey string
	initMint     string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the one-time program config (admin key and payout mint)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := ticket.ParsePrivateKey(initAdminKey)
		if err != nil {
			return fmt.Errorf("--admin-key: %w", err)
		}
		mint, err := address.ParseHex(initMint)
		if err != nil {
			return fmt.Errorf("--mint: %w", err)
		}

		b := runtime.NewBatch(emissions.NewInitializeConfigInstruction(program(), ticket.PublicKey(key), mint))
		b.Sign(key)
		receipt, err := apiClient.Submit(cmd.Context(), b)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(receipt)
		}
		vault, _, err := emissions.VaultAuthority(program())
		if err != nil {
			return err
		}
		fmt.Printf("Config initialized in batch %s\n", receipt.BatchID)
		fmt.Printf("Admin:           %s\n", ticket.PublicKey(key).Hex())
		fmt.Printf("Mint:            %s\n", mint.Hex())
		fmt.Printf("Vault authority: %s\n", vault.Hex())
		return nil
	},
}

// ── fund ──────────────────────────────────────────────────────────────────────

var (
	fundRedisAddr     string
	fundRedisPassword string
	fundRedisPrefix   string
	fundOwner         string
	fundAmount        uint64
)

// fundAccount mints amount of the configured payout token to owner, or to
// the vault authority when owner is zero. It writes the ledger directly
// and is meant for development and test deployments.
func fundAccount(ctx context.Context, store *ledger.Store, program, owner address.Address, amount uint64) (address.Address, uint64, error) {
	cfg, err := emissions.LoadConfig(ctx, store, program)
	if err != nil {
		return address.Zero, 0, err
	}
	if owner.IsZero() {
		owner = cfg.VaultAuthority
	}
	var balance uint64
	err = store.Update(ctx, func(tx *ledger.Tx) error {
		balance, err = token.Credit(tx, cfg.TokenMint, owner, amount)
		return err
	})
	if err != nil {
		return address.Zero, 0, fmt.Errorf("credit %s: %w", owner, err)
	}
	return owner, balance, nil
}

var fundCmd = &cobra.Command{
	Use:   "fund",
	Short: "Mint payout tokens straight into the ledger (dev only)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if fundAmount == 0 {
			return fmt.Errorf("--amount must be positive")
		}
		var owner address.Address
		if fundOwner != "" {
			var err error
			if owner, err = address.ParseHex(fundOwner); err != nil {
				return fmt.Errorf("--owner: %w", err)
			}
		}

		rdb := redis.NewClient(&redis.Options{Addr: fundRedisAddr, Password: fundRedisPassword})
		defer rdb.Close()

		owner, balance, err := fundAccount(cmd.Context(), ledger.NewStore(rdb, fundRedisPrefix), program(), owner, fundAmount)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(map[string]any{"owner": owner, "balance": balance})
		}
		fmt.Printf("Funded %s; balance now %d\n", owner.Hex(), balance)
		return nil
	},
}

func init() {
	initCmd.Flags().StringVar(&initAdminKey, "admin-key", os.Getenv("ADMIN_SIGNING_KEY"), "admin ed25519 seed (hex)")
	initCmd.Flags().StringVar(&initMint, "mint", "", "payout token mint address (hex)")
	_ = initCmd.MarkFlagRequired("mint")

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	fundCmd.Flags().StringVar(&fundRedisAddr, "redis-addr", redisAddr, "Redis address backing the ledger")
	fundCmd.Flags().StringVar(&fundRedisPassword, "redis-password", os.Getenv("REDIS_PASSWORD"), "Redis password")
	fundCmd.Flags().StringVar(&fundRedisPrefix, "redis-prefix", ledger.DefaultPrefix, "ledger key prefix")
	fundCmd.Flags().StringVar(&fundOwner, "owner", "", "account owner to credit (default: vault authority)")
	fundCmd.Flags().Uint64Var(&fundAmount, "amount", 0, "amount to mint")
}
