package main

import (
	"context"
	"fmt"

	"github.com/smallbiznis/payoutd/internal/apikey"
	apikeydomain "github.com/smallbiznis/payoutd/internal/apikey/domain"
	"github.com/smallbiznis/payoutd/internal/audit"
	"github.com/smallbiznis/payoutd/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func apiKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys",
	}
	cmd.AddCommand(apiKeyCreateCmd())
	cmd.AddCommand(apiKeyRevokeCmd())
	return cmd
}

func apiKeyCreateCmd() *cobra.Command {
	var (
		role   string
		scopes []string
	)

	cmd := &cobra.Command{
		Use:   "create [name]",
		Short: "Create an API key and print its secret once",
		Long: `Create an API key. The secret is printed once and cannot be recovered.

Examples:
  payoutctl apikey create booking-service --role system
  payoutctl apikey create finance --role payout_admin`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var svc apikeydomain.Service
			return runApp(cmd.Context(), config.Load(), func(ctx context.Context) error {
				resp, err := svc.Create(ctx, apikeydomain.CreateRequest{
					Name:   args[0],
					Role:   role,
					Scopes: scopes,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "key_id:  %s\nrole:    %s\napi_key: %s\n", resp.KeyID, resp.Role, resp.APIKey)
				return nil
			},
				audit.Module,
				apikey.Module,
				fx.Populate(&svc),
			)
		},
	}

	cmd.Flags().StringVar(&role, "role", apikeydomain.RoleSystem, "key role (system, payout_admin, payout_viewer)")
	cmd.Flags().StringSliceVar(&scopes, "scope", nil, "optional scopes recorded on the key")

	return cmd
}

func apiKeyRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke [key_id]",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var svc apikeydomain.Service
			return runApp(cmd.Context(), config.Load(), func(ctx context.Context) error {
				if err := svc.Revoke(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "revoked %s\n", args[0])
				return nil
			},
				audit.Module,
				apikey.Module,
				fx.Populate(&svc),
			)
		},
	}
}
