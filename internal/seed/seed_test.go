package seed_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	apikeydomain "github.com/dev-orchid/shiksha-sub001/internal/apikey/domain"
	apikeyrepo "github.com/dev-orchid/shiksha-sub001/internal/apikey/repository"
	apikeyservice "github.com/dev-orchid/shiksha-sub001/internal/apikey/service"
	"github.com/dev-orchid/shiksha-sub001/internal/clock"
	"github.com/dev-orchid/shiksha-sub001/internal/config"
	"github.com/dev-orchid/shiksha-sub001/internal/migration"
	schooldomain "github.com/dev-orchid/shiksha-sub001/internal/school/domain"
	schoolrepo "github.com/dev-orchid/shiksha-sub001/internal/school/repository"
	schoolservice "github.com/dev-orchid/shiksha-sub001/internal/school/service"
	"github.com/dev-orchid/shiksha-sub001/internal/seed"
	"github.com/dev-orchid/shiksha-sub001/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBootstrapSeedsSchoolAndKey(t *testing.T) {
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, migration.AutoMigrate(conn))
	node, err := snowflake.NewNode(4)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC))

	schools := schoolservice.NewService(schoolservice.Params{DB: conn, Log: zap.NewNop(), GenID: node, Repo: schoolrepo.Provide(), Clock: clk})
	keys := apikeyservice.New(apikeyservice.Params{DB: conn, Log: zap.NewNop(), GenID: node, Repo: apikeyrepo.Provide(), Clock: clk})

	cfg := config.BootstrapConfig{SchoolName: "Sunrise Academy", SchoolCurrency: "INR", APIKey: "sk_school_bootstrap_secret"}
	ctx := context.Background()
	require.NoError(t, seed.Bootstrap(ctx, cfg, schools, keys, zap.NewNop()))
	require.NoError(t, seed.Bootstrap(ctx, cfg, schools, keys, nil))

	principal, err := keys.Authenticate(ctx, cfg.APIKey)
	require.NoError(t, err)
	assert.True(t, principal.HasScope(apikeydomain.ScopePaymentsWrite))

	var count int64
	require.NoError(t, conn.Model(&schooldomain.School{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestBootstrapSkipsWithoutSchool(t *testing.T) {
	assert.NoError(t, seed.Bootstrap(context.Background(), config.BootstrapConfig{}, nil, nil, nil))
}
