package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/payoutd/internal/config"
	obsmetrics "github.com/smallbiznis/payoutd/internal/observability/metrics"
	"github.com/smallbiznis/payoutd/internal/scheduler"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func sweepCmd() *cobra.Command {
	var (
		once bool
		jobs []string
	)

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run the retry sweep",
		Long: `Run the payout retry sweep outside the long-running scheduler.

With --once the stale recovery and retry jobs run a single pass and the
sweep metrics are pushed to the configured metrics exporter before exit.

Examples:
  payoutctl sweep --once
  payoutctl sweep --once --job payout_retry`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !once {
				return errors.New("sweep: only --once is supported; run payoutd or apps/scheduler for the loop")
			}

			cfg := config.Load()
			cfg.Scheduler.Enabled = false
			if len(jobs) > 0 {
				cfg.Scheduler.EnabledJobs = jobs
			}

			// Registered before the graph starts so the singleton lands on
			// the registry that gets pushed.
			registry := prometheus.NewRegistry()
			obsmetrics.SweepWithRegisterer(registry, obsmetrics.Config{
				ServiceName: "payoutctl",
				Environment: cfg.Environment,
			})

			var (
				sched *scheduler.Scheduler
				log   *zap.Logger
			)
			return runApp(cmd.Context(), cfg, func(ctx context.Context) error {
				runErr := sched.RunOnce(ctx)
				if pusher := obsmetrics.NewPusher(cfg, log); pusher != nil {
					if err := pusher.Push(ctx, registry); err != nil {
						log.Warn("sweep metrics push failed", zap.Error(err))
					}
				}
				if runErr != nil {
					return fmt.Errorf("sweep: %w", runErr)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "sweep finished")
				return nil
			},
				settlementModules(),
				fx.Provide(scheduler.ProvideConfig),
				fx.Provide(scheduler.New),
				fx.Populate(&sched, &log),
			)
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "run a single sweep pass and exit")
	cmd.Flags().StringSliceVar(&jobs, "job", nil, "limit the pass to these jobs (payout_stale_recovery, payout_retry)")

	return cmd
}
