package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/smallbiznis/payoutd/internal/clock"
	"github.com/smallbiznis/payoutd/internal/config"
	"github.com/smallbiznis/payoutd/internal/seed"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert development accounts and bookings",
		Long: `Insert a small set of accounts and bookings for local testing.

Refused when ENVIRONMENT is production.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if cfg.IsProduction() {
				return errors.New("seed: refusing to seed a production database")
			}

			var (
				conn *gorm.DB
				clk  clock.Clock
			)
			return runApp(cmd.Context(), cfg, func(ctx context.Context) error {
				fixtures, err := seed.EnsureDevFixtures(ctx, conn, clk.Now())
				if err != nil {
					return err
				}
				for _, b := range fixtures.Bookings {
					fmt.Fprintf(cmd.OutOrStdout(), "booking %d owner=%d renter=%d status=%s total=%d\n",
						b.ID, b.OwnerID, b.RenterID, b.Status, b.TotalAmount)
				}
				return nil
			}, fx.Populate(&conn, &clk))
		},
	}
}
