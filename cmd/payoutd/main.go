package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payoutd/internal/clock"
	"github.com/smallbiznis/payoutd/internal/config"
	"github.com/smallbiznis/payoutd/internal/migration"
	"github.com/smallbiznis/payoutd/internal/observability"
	"github.com/smallbiznis/payoutd/internal/scheduler"
	"github.com/smallbiznis/payoutd/internal/server"
	"github.com/smallbiznis/payoutd/pkg/db"
	"go.uber.org/fx"
)

// payoutd runs the settlement API and the retry sweep in one process.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		server.Module,
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
