package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/0gfoundation/0g-emissions/internal/address"
	"github.com/0gfoundation/0g-emissions/internal/emissions"
	"github.com/0gfoundation/0g-emissions/internal/ticket"
)

// ── issue ─────────────────────────────────────────────────────────────────────

var (
	issueAdminKey    string
	issueOperatorKey string
	issueBeneficiary string
	issueAmount      uint64
	issueNonce       uint64
	issueTTL         time.Duration
)

// signTicket builds and signs a ticket offline.
func signTicket(adminKey string, beneficiary address.Address, amount, nonce uint64, expiry int64) (*ticket.Ticket, error) {
	key, err := ticket.ParsePrivateKey(adminKey)
	if err != nil {
		return nil, fmt.Errorf("admin key: %w", err)
	}
	t := &ticket.Ticket{
		Beneficiary: beneficiary,
		Amount:      amount,
		Nonce:       nonce,
		Expiry:      expiry,
	}
	ticket.Sign(t, key)
	return t, nil
}

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue a signed ticket, offline with --admin-key or via the server with --operator-key",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		beneficiary, err := address.ParseHex(issueBeneficiary)
		if err != nil {
			return fmt.Errorf("--beneficiary: %w", err)
		}
		if issueAmount == 0 {
			return fmt.Errorf("--amount must be positive")
		}

		var t *ticket.Ticket
		switch {
		case issueOperatorKey != "":
			key, err := ticket.ParsePrivateKey(issueOperatorKey)
			if err != nil {
				return fmt.Errorf("--operator-key: %w", err)
			}
			t, err = apiClient.IssueTicket(cmd.Context(), key, beneficiary, issueAmount)
			if err != nil {
				return err
			}
		case issueAdminKey != "":
			if issueNonce == 0 {
				return fmt.Errorf("--nonce is required for offline issuance")
			}
			t, err = signTicket(issueAdminKey, beneficiary, issueAmount, issueNonce, time.Now().Add(issueTTL).Unix())
			if err != nil {
				return err
			}
		default:
			return fmt.Errorf("one of --admin-key or --operator-key is required")
		}
		return printJSON(t)
	},
}

// ── redeem ────────────────────────────────────────────────────────────────────

var (
	redeemTicketFile string
	redeemKey        string
)

func readTicket(path string) (*ticket.Ticket, error) {
	var (
		raw []byte
		err error
	)
	if path == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read ticket: %w", err)
	}
	var t ticket.Ticket
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("parse ticket: %w", err)
	}
	return &t, nil
}

var redeemCmd = &cobra.Command{
	Use:   "redeem",
	Short: "Redeem a ticket as its beneficiary",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := readTicket(redeemTicketFile)
		if err != nil {
			return err
		}
		key, err := ticket.ParsePrivateKey(redeemKey)
		if err != nil {
			return fmt.Errorf("--key: %w", err)
		}
		if ticket.PublicKey(key) != t.Beneficiary {
			return fmt.Errorf("--key is not the ticket beneficiary %s", t.Beneficiary)
		}

		cfg, err := apiClient.Config(cmd.Context())
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		b, err := emissions.NewRedeemBatch(program(), cfg.AdminPubkey, t)
		if err != nil {
			return err
		}
		b.Sign(key)

		receipt, err := apiClient.Submit(cmd.Context(), b)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(receipt)
		}
		fmt.Printf("Redeemed nonce %d for %d in batch %s\n", t.Nonce, t.Amount, receipt.BatchID)
		return nil
	},
}

// ── record ────────────────────────────────────────────────────────────────────

var (
	recordBeneficiary string
	recordNonce       uint64
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Show the redemption record for a beneficiary and nonce",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		beneficiary, err := address.ParseHex(recordBeneficiary)
		if err != nil {
			return fmt.Errorf("--beneficiary: %w", err)
		}
		rec, err := apiClient.Record(cmd.Context(), beneficiary, recordNonce)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(rec)
		}
		fmt.Printf("Beneficiary: %s\n", rec.Beneficiary.Hex())
		fmt.Printf("Nonce:       %d\n", rec.Nonce)
		fmt.Printf("Amount:      %d\n", rec.Amount)
		fmt.Printf("Redeemed at: %s\n", time.Unix(rec.RedeemedAt, 0).UTC().Format(time.RFC3339))
		return nil
	},
}

func init() {
	issueCmd.Flags().StringVar(&issueAdminKey, "admin-key", os.Getenv("ADMIN_SIGNING_KEY"), "admin ed25519 seed (hex) for offline issuance")
	issueCmd.Flags().StringVar(&issueOperatorKey, "operator-key", os.Getenv("OPERATOR_KEY"), "operator ed25519 seed (hex) for server issuance")
	issueCmd.Flags().StringVar(&issueBeneficiary, "beneficiary", "", "beneficiary public key (hex)")
	issueCmd.Flags().Uint64Var(&issueAmount, "amount", 0, "payout amount")
	issueCmd.Flags().Uint64Var(&issueNonce, "nonce", 0, "ticket nonce (offline only)")
	issueCmd.Flags().DurationVar(&issueTTL, "ttl", time.Hour, "ticket lifetime (offline only)")
	_ = issueCmd.MarkFlagRequired("beneficiary")
	_ = issueCmd.MarkFlagRequired("amount")

	redeemCmd.Flags().StringVar(&redeemTicketFile, "ticket", "-", "ticket JSON file, or - for stdin")
	redeemCmd.Flags().StringVar(&redeemKey, "key", "", "beneficiary ed25519 seed (hex)")
	_ = redeemCmd.MarkFlagRequired("key")

	recordCmd.Flags().StringVar(&recordBeneficiary, "beneficiary", "", "beneficiary public key (hex)")
	recordCmd.Flags().Uint64Var(&recordNonce, "nonce", 0, "ticket nonce")
	_ = recordCmd.MarkFlagRequired("beneficiary")
	_ = recordCmd.MarkFlagRequired("nonce")
}
