package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/dev-orchid/shiksha-sub001/internal/audit/domain"
	"github.com/dev-orchid/shiksha-sub001/internal/audit/repository"
	"github.com/dev-orchid/shiksha-sub001/internal/audit/service"
	"github.com/dev-orchid/shiksha-sub001/internal/clock"
	obscontext "github.com/dev-orchid/shiksha-sub001/internal/observability/context"
	"github.com/dev-orchid/shiksha-sub001/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newAuditService(t *testing.T) (auditdomain.Service, *clock.FakeClock) {
	t.Helper()
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&auditdomain.AuditLog{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))

	svc := service.NewService(service.Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repository.Provide(),
		Clock: fake,
	})
	return svc, fake
}

func TestAuditLogMasksSensitiveMetadataAndUsesContextActor(t *testing.T) {
	svc, _ := newAuditService(t)
	ctx := obscontext.WithActor(context.Background(), "api_key", "key_123")
	ctx = obscontext.WithClient(ctx, "10.0.0.1", "curl/8")

	err := svc.AuditLog(ctx, 7, auditdomain.Entry{
		Action:     auditdomain.ActionGatewaySignatureFail,
		TargetType: "gateway_order",
		TargetID:   "order_abc",
		Metadata:   map[string]any{"signature": "deadbeefcafe1234", "provider": "razorpay"},
	})
	require.NoError(t, err)

	resp, err := svc.List(context.Background(), 7, auditdomain.ListAuditLogRequest{})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 1)

	entry := resp.AuditLogs[0]
	assert.Equal(t, "api_key", entry.ActorType)
	require.NotNil(t, entry.ActorID)
	assert.Equal(t, "key_123", *entry.ActorID)
	require.NotNil(t, entry.IPAddress)
	assert.Equal(t, "10.0.0.1", *entry.IPAddress)
	assert.Equal(t, "****1234", entry.Metadata["signature"])
	assert.Equal(t, "razorpay", entry.Metadata["provider"])
}

func TestAuditLogRequiresSchoolAndAction(t *testing.T) {
	svc, _ := newAuditService(t)

	assert.ErrorIs(t, svc.AuditLog(context.Background(), 0, auditdomain.Entry{Action: "x"}), auditdomain.ErrInvalidSchool)
	assert.ErrorIs(t, svc.AuditLog(context.Background(), 1, auditdomain.Entry{}), auditdomain.ErrInvalidAction)
}

func TestListIsScopedPerSchoolAndPaginates(t *testing.T) {
	svc, fake := newAuditService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.AuditLog(ctx, 1, auditdomain.Entry{Action: auditdomain.ActionPaymentRecorded}))
		fake.Advance(time.Second)
	}
	require.NoError(t, svc.AuditLog(ctx, 2, auditdomain.Entry{Action: auditdomain.ActionPaymentRecorded}))

	first, err := svc.List(ctx, 1, auditdomain.ListAuditLogRequest{})
	require.NoError(t, err)
	assert.Len(t, first.AuditLogs, 3)

	req := auditdomain.ListAuditLogRequest{}
	req.PageSize = 2
	page, err := svc.List(ctx, 1, req)
	require.NoError(t, err)
	require.Len(t, page.AuditLogs, 2)
	require.True(t, page.HasMore)

	req.PageToken = page.NextPageToken
	rest, err := svc.List(ctx, 1, req)
	require.NoError(t, err)
	require.Len(t, rest.AuditLogs, 1)
	assert.False(t, rest.HasMore)
	assert.True(t, rest.AuditLogs[0].CreatedAt.Before(page.AuditLogs[1].CreatedAt))
}

func TestListRejectsBadPageToken(t *testing.T) {
	svc, _ := newAuditService(t)
	req := auditdomain.ListAuditLogRequest{}
	req.PageToken = "%%%"
	_, err := svc.List(context.Background(), 1, req)
	assert.ErrorIs(t, err, auditdomain.ErrInvalidPageToken)
}
