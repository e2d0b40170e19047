package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payoutd/internal/clock"
	"github.com/smallbiznis/payoutd/internal/config"
	"github.com/smallbiznis/payoutd/internal/observability"
	"github.com/smallbiznis/payoutd/internal/server"
	"github.com/smallbiznis/payoutd/pkg/db"
	"go.uber.org/fx"
)

// api serves the settlement trigger and admin routes without the sweep.
// Migrations are left to payoutctl or the monolith.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(2)
	if err != nil {
		panic(err)
	}
	return node
}
