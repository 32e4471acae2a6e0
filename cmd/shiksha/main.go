package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/dev-orchid/shiksha-sub001/internal/apikey"
	"github.com/dev-orchid/shiksha-sub001/internal/audit"
	"github.com/dev-orchid/shiksha-sub001/internal/clock"
	"github.com/dev-orchid/shiksha-sub001/internal/config"
	"github.com/dev-orchid/shiksha-sub001/internal/gateway"
	"github.com/dev-orchid/shiksha-sub001/internal/invoice"
	"github.com/dev-orchid/shiksha-sub001/internal/migration"
	"github.com/dev-orchid/shiksha-sub001/internal/observability"
	"github.com/dev-orchid/shiksha-sub001/internal/payment"
	"github.com/dev-orchid/shiksha-sub001/internal/ratelimit"
	"github.com/dev-orchid/shiksha-sub001/internal/scheduler"
	"github.com/dev-orchid/shiksha-sub001/internal/school"
	"github.com/dev-orchid/shiksha-sub001/internal/server"
	"github.com/dev-orchid/shiksha-sub001/pkg/db"
	"go.uber.org/fx"
)

// Single-process deployment: HTTP API and the background scheduler together.
func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// Fee ledger
		school.Module,
		audit.Module,
		apikey.Module,
		invoice.Module,
		payment.Module,

		// Gateway and its supporting infrastructure
		gateway.Module,
		ratelimit.Module,

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
