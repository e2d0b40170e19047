package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallbiznis/payoutd/internal/config"
	"github.com/smallbiznis/payoutd/internal/migration"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func migrateCmd() *cobra.Command {
	var status bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending ledger migrations",
		Long: `Apply the embedded schema migrations to the configured postgres database.

With --status the applied version is printed and nothing is changed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if !strings.EqualFold(cfg.DBType, "postgres") {
				return fmt.Errorf("migrate: migrations target postgres, DATABASE_TYPE is %q", cfg.DBType)
			}

			var conn *gorm.DB
			return runApp(cmd.Context(), cfg, func(context.Context) error {
				sqlDB, err := conn.DB()
				if err != nil {
					return err
				}
				if status {
					version, dirty, err := migration.Version(sqlDB)
					if err != nil {
						return fmt.Errorf("migrate status: %w", err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "version=%d dirty=%t\n", version, dirty)
					return nil
				}
				if err := migration.RunMigrations(sqlDB); err != nil {
					return fmt.Errorf("migrate: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
				return nil
			}, fx.Populate(&conn))
		},
	}
	cmd.Flags().BoolVar(&status, "status", false, "print the applied schema version")
	return cmd
}
