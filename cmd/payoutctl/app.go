package main

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payoutd/internal/account"
	"github.com/smallbiznis/payoutd/internal/audit"
	"github.com/smallbiznis/payoutd/internal/booking"
	"github.com/smallbiznis/payoutd/internal/clock"
	"github.com/smallbiznis/payoutd/internal/config"
	"github.com/smallbiznis/payoutd/internal/notification"
	"github.com/smallbiznis/payoutd/internal/observability"
	"github.com/smallbiznis/payoutd/internal/payout"
	"github.com/smallbiznis/payoutd/internal/ratelimit"
	"github.com/smallbiznis/payoutd/pkg/db"
	"go.uber.org/fx"
)

const startStopTimeout = 30 * time.Second

// runApp builds a short-lived fx graph, starts it, and runs work. Callers
// pull dependencies out of the graph with fx.Populate in opts.
func runApp(ctx context.Context, cfg config.Config, work func(context.Context) error, opts ...fx.Option) error {
	options := []fx.Option{
		fx.NopLogger,
		fx.Supply(cfg),
		fx.Provide(config.NewRiskPolicyHolder),
		observability.Module,
		fx.Provide(registerSnowflake),
		db.Module,
		clock.Module,
	}
	app := fx.New(append(options, opts...)...)
	if err := app.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(ctx, startStopTimeout)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}

	workErr := work(ctx)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), startStopTimeout)
	defer stopCancel()
	if err := app.Stop(stopCtx); err != nil && workErr == nil {
		return err
	}
	return workErr
}

// settlementModules wires everything the settlement services need, minus
// the HTTP surface.
func settlementModules() fx.Option {
	return fx.Options(
		audit.Module,
		account.Module,
		booking.Module,
		notification.Module,
		ratelimit.Module,
		payout.Module,
	)
}

func registerSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(9)
	if err != nil {
		panic(err)
	}
	return node
}
