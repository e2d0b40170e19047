package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "payoutctl",
		Short:         "payoutctl - operator tooling for the payout ledger",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(policyCmd())
	rootCmd.AddCommand(apiKeyCmd())
	rootCmd.AddCommand(seedCmd())

	return rootCmd
}
