package migration

import (
	"io/fs"
	"testing"

	"github.com/dev-orchid/shiksha-sub001/internal/config"
	"github.com/dev-orchid/shiksha-sub001/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	ups, err := fs.Glob(embeddedMigrations, "sql/*.up.sql")
	require.NoError(t, err)
	downs, err := fs.Glob(embeddedMigrations, "sql/*.down.sql")
	require.NoError(t, err)
	assert.NotEmpty(t, ups)
	assert.Len(t, downs, len(ups))
}

func TestAutoMigrateCreatesGatewayIndex(t *testing.T) {
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(conn))
	// idempotent
	require.NoError(t, AutoMigrate(conn))

	for _, table := range []string{"schools", "invoices", "payments", "gateway_orders", "gateway_events", "audit_logs", "school_api_keys"} {
		assert.True(t, conn.Migrator().HasTable(table), table)
	}

	var count int64
	require.NoError(t, conn.Raw(
		`SELECT count(*) FROM sqlite_master WHERE type = 'index' AND name = 'ux_payments_gateway_txn'`,
	).Scan(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestApplySchemaUsesAutoMigrateOffPostgres(t *testing.T) {
	conn, err := db.NewTest()
	require.NoError(t, err)

	require.NoError(t, applySchema(conn, config.Config{DBType: "sqlite"}))
	assert.True(t, conn.Migrator().HasTable("payments"))
}
