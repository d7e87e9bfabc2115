package main

import (
	"crypto/rand"
	"fmt"

	"github.com/cloudflare/circl/sign/ed25519"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/0gfoundation/0g-emissions/internal/ticket"
)

type keyPair struct {
	Seed      string `json:"seed"`
	PublicKey string `json:"public_key"`
}

func generateKey() (keyPair, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return keyPair{}, fmt.Errorf("generate key: %w", err)
	}
	return keyPair{
		Seed:      hexutil.Encode(priv.Seed()),
		PublicKey: ticket.PublicKey(priv).Hex(),
	}, nil
}

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate an ed25519 key pair (admin, operator or beneficiary)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		kp, err := generateKey()
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(kp)
		}
		fmt.Printf("Seed:       %s\n", kp.Seed)
		fmt.Printf("Public key: %s\n", kp.PublicKey)
		return nil
	},
}
