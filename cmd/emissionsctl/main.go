// Command emissionsctl is an operator CLI for the emissions service: key
// generation, config bootstrap, ticket issuance and redemption.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/0gfoundation/0g-emissions/internal/address"
)

var (
	serverURL  string
	programID  string
	jsonOutput bool

	apiClient *client
)

func defaultServerURL() string {
	if s := os.Getenv("EMISSIONS_URL"); s != "" {
		return s
	}
	return "http://localhost:8080"
}

func defaultProgramSeed() string {
	if s := os.Getenv("PROGRAM_ID_SEED"); s != "" {
		return s
	}
	return "ratio-emissions"
}

var rootCmd = &cobra.Command{
	Use:           "emissionsctl <command>",
	Short:         "Operator CLI for the emissions service",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		apiClient = newClient(serverURL)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultServerURL(), "emissions HTTP API base URL")
	rootCmd.PersistentFlags().StringVar(&programID, "program-seed", defaultProgramSeed(), "seed the program id is derived from")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	rootCmd.AddCommand(keygenCmd, initCmd, issueCmd, redeemCmd, fundCmd, recordCmd)
}

func program() address.Address {
	return address.Named(programID)
}

// printJSON writes v indented to stdout.
func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
