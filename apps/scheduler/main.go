package main

import (
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
	"github.com/smallbiznis/payoutd/internal/scheduler"
	"github.com/smallbiznis/payoutd/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// Settlement dependencies of the sweep
		audit.Module,
		account.Module,
		booking.Module,
		notification.Module,
		ratelimit.Module,
		payout.Module,

		// No server module!
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(3)
	if err != nil {
		panic(err)
	}
	return node
}
