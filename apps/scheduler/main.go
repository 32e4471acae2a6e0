package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/dev-orchid/shiksha-sub001/internal/audit"
	"github.com/dev-orchid/shiksha-sub001/internal/clock"
	"github.com/dev-orchid/shiksha-sub001/internal/config"
	"github.com/dev-orchid/shiksha-sub001/internal/gateway"
	"github.com/dev-orchid/shiksha-sub001/internal/invoice"
	"github.com/dev-orchid/shiksha-sub001/internal/observability"
	"github.com/dev-orchid/shiksha-sub001/internal/payment"
	"github.com/dev-orchid/shiksha-sub001/internal/ratelimit"
	"github.com/dev-orchid/shiksha-sub001/internal/scheduler"
	"github.com/dev-orchid/shiksha-sub001/internal/school"
	"github.com/dev-orchid/shiksha-sub001/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// the expiry job goes through the broker, which needs the ledger services
		school.Module,
		audit.Module,
		invoice.Module,
		payment.Module,
		gateway.Module,
		ratelimit.Module,

		// No server module!
		scheduler.Module,
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
