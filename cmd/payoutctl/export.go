package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/smallbiznis/payoutd/internal/config"
	"github.com/smallbiznis/payoutd/internal/export"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func exportCmd() *cobra.Command {
	var (
		status string
		method string
		from   string
		to     string
		label  string
		actor  string
		out    string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the payout ledger as xlsx",
		Long: `Export the filtered payout ledger to an xlsx workbook.

Examples:
  payoutctl export --from 2026-10-01 --to 2026-10-31 --label "october close"
  payoutctl export --status failed --out failed.xlsx`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fromAt, err := parseDateFlag(from, false)
			if err != nil {
				return fmt.Errorf("invalid --from: %w", err)
			}
			toAt, err := parseDateFlag(to, true)
			if err != nil {
				return fmt.Errorf("invalid --to: %w", err)
			}

			var svc *export.Service
			return runApp(cmd.Context(), config.Load(), func(ctx context.Context) error {
				file, err := svc.Ledger(ctx, export.LedgerRequest{
					Status: strings.TrimSpace(status),
					Method: strings.TrimSpace(method),
					From:   fromAt,
					To:     toAt,
					Label:  strings.TrimSpace(label),
					Actor:  strings.TrimSpace(actor),
				})
				if err != nil {
					return err
				}
				path := out
				if path == "" {
					path = file.Name
				}
				if err := os.WriteFile(path, file.Body, 0o600); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
				return nil
			},
				settlementModules(),
				export.Module,
				fx.Populate(&svc),
			)
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "filter by payout status")
	cmd.Flags().StringVar(&method, "method", "", "filter by method (payout, refund)")
	cmd.Flags().StringVar(&from, "from", "", "lower bound, RFC3339 or YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", "", "upper bound, RFC3339 or YYYY-MM-DD")
	cmd.Flags().StringVar(&label, "label", "", "label used in the file name")
	cmd.Flags().StringVar(&actor, "actor", os.Getenv("USER"), "operator recorded in the audit log")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output path (defaults to the generated file name)")

	return cmd
}

func parseDateFlag(value string, endOfDay bool) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	if parsed, err := time.Parse(time.RFC3339, value); err == nil {
		parsed = parsed.UTC()
		return &parsed, nil
	}
	parsed, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return nil, err
	}
	if endOfDay {
		parsed = parsed.Add(24*time.Hour - time.Nanosecond)
	}
	return &parsed, nil
}
