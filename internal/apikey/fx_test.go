package apikey

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	apikeydomain "github.com/dev-orchid/shiksha-sub001/internal/apikey/domain"
	"github.com/dev-orchid/shiksha-sub001/internal/clock"
	"github.com/dev-orchid/shiksha-sub001/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func supplyDeps(t *testing.T) fx.Option {
	t.Helper()
	conn, err := db.NewTest()
	require.NoError(t, err)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return fx.Options(
		fx.Supply(conn, zap.NewNop(), node),
		fx.Provide(func() clock.Clock { return clock.NewFakeClock(time.Unix(0, 0)) }),
		fx.NopLogger,
	)
}

func TestModuleProvidesService(t *testing.T) {
	var svc apikeydomain.Service
	app := fx.New(supplyDeps(t), Module, fx.Populate(&svc))
	require.NoError(t, app.Err())
	assert.NotNil(t, svc)
}

func TestModuleKeepsRepositoryPrivate(t *testing.T) {
	var repo apikeydomain.Repository
	app := fx.New(supplyDeps(t), Module, fx.Populate(&repo))
	assert.Error(t, app.Err())
}
