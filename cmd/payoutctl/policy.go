package main

import (
	"encoding/json"

	"github.com/smallbiznis/payoutd/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func policyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Inspect the risk policy",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective risk policy after file, env, and defaults",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			holder, err := config.NewRiskPolicyHolder(zap.NewNop())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(holder.Get())
		},
	})

	return cmd
}
