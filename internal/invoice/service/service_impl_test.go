package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/dev-orchid/shiksha-sub001/internal/audit/domain"
	auditrepo "github.com/dev-orchid/shiksha-sub001/internal/audit/repository"
	auditservice "github.com/dev-orchid/shiksha-sub001/internal/audit/service"
	"github.com/dev-orchid/shiksha-sub001/internal/clock"
	"github.com/dev-orchid/shiksha-sub001/internal/config"
	invoicedomain "github.com/dev-orchid/shiksha-sub001/internal/invoice/domain"
	"github.com/dev-orchid/shiksha-sub001/internal/invoice/repository"
	"github.com/dev-orchid/shiksha-sub001/internal/invoice/service"
	"github.com/dev-orchid/shiksha-sub001/internal/migration"
	schoolrepo "github.com/dev-orchid/shiksha-sub001/internal/school/repository"
	"github.com/dev-orchid/shiksha-sub001/pkg/db"
	"github.com/dev-orchid/shiksha-sub001/pkg/db/pagination"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const schoolID = snowflake.ID(100)

type fixture struct {
	db    *gorm.DB
	svc   invoicedomain.Service
	audit auditdomain.Service
	clock *clock.FakeClock
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, migration.AutoMigrate(conn))

	node, err := snowflake.NewNode(5)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC))
	audit := auditservice.NewService(auditservice.Params{DB: conn, Log: zap.NewNop(), GenID: node, Repo: auditrepo.Provide(), Clock: fake})

	svc := service.NewService(service.ServiceParam{
		DB:        conn,
		Log:       zap.NewNop(),
		GenID:     node,
		Clock:     fake,
		Repo:      repository.Provide(),
		Sequences: schoolrepo.ProvideSequences(),
		Policy:    config.NewStaticFeePolicyHolder(config.DefaultFeePolicy()),
		AuditSvc:  audit,
	})
	return fixture{db: conn, svc: svc, audit: audit, clock: fake}
}

func money(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func monthly(student snowflake.ID, amounts ...string) invoicedomain.CreateRequest {
	month, year := 4, 2026
	items := make([]invoicedomain.ItemRequest, 0, len(amounts))
	for _, a := range amounts {
		items = append(items, invoicedomain.ItemRequest{Description: "Tuition", Amount: money(a)})
	}
	return invoicedomain.CreateRequest{
		StudentID:   student,
		PeriodKind:  invoicedomain.PeriodMonthly,
		PeriodMonth: &month,
		PeriodYear:  &year,
		Items:       items,
		DueDate:     "2026-04-10",
	}
}

func TestCreateNumbersInvoicesSequentially(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := monthly(7, "4500", "500")
	req.DiscountAmount = money("250")
	first, err := f.svc.Create(ctx, schoolID, req)
	require.NoError(t, err)
	assert.Equal(t, "INV-202604-00001", first.InvoiceNumber)
	assert.True(t, first.TotalAmount.Equal(money("5000")))
	assert.True(t, first.NetAmount.Equal(money("4750")))
	assert.True(t, first.BalanceAmount.Equal(money("4750")))
	assert.Equal(t, invoicedomain.StatusPending, first.Status)
	assert.Equal(t, "2026-04-10", first.DueDate)
	assert.Len(t, first.Items, 2)

	second, err := f.svc.Create(ctx, schoolID, monthly(8, "3000"))
	require.NoError(t, err)
	assert.Equal(t, "INV-202604-00002", second.InvoiceNumber)

	// numbering restarts for another school
	other, err := f.svc.Create(ctx, schoolID+1, monthly(9, "3000"))
	require.NoError(t, err)
	assert.Equal(t, "INV-202604-00001", other.InvoiceNumber)

	logs, err := f.audit.List(ctx, schoolID, auditdomain.ListAuditLogRequest{})
	require.NoError(t, err)
	assert.Len(t, logs.AuditLogs, 2)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	noPeriod := monthly(7, "100")
	noPeriod.PeriodMonth = nil
	_, err := f.svc.Create(ctx, schoolID, noPeriod)
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidRequest)

	_, err = f.svc.Create(ctx, schoolID, monthly(7, "10.005"))
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidAmount)

	_, err = f.svc.Create(ctx, schoolID, monthly(7, "0"))
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidAmount)

	tooMuchDiscount := monthly(7, "100")
	tooMuchDiscount.DiscountAmount = money("100.01")
	_, err = f.svc.Create(ctx, schoolID, tooMuchDiscount)
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidAmount)

	badDate := monthly(7, "100")
	badDate.DueDate = "10/04/2026"
	_, err = f.svc.Create(ctx, schoolID, badDate)
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidRequest)
}

func TestGetIsScopedToSchool(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inv, err := f.svc.Create(ctx, schoolID, monthly(7, "100"))
	require.NoError(t, err)

	_, err = f.svc.Get(ctx, schoolID+1, inv.ID)
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceNotFound)

	got, err := f.svc.Get(ctx, schoolID, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, inv.InvoiceNumber, got.InvoiceNumber)
}

func TestStatusTurnsOverdueAfterDueDate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inv, err := f.svc.Create(ctx, schoolID, monthly(7, "100"))
	require.NoError(t, err)

	f.clock.Set(time.Date(2026, 4, 10, 18, 0, 0, 0, time.UTC))
	got, err := f.svc.Get(ctx, schoolID, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.StatusPending, got.Status)

	f.clock.Set(time.Date(2026, 4, 11, 0, 0, 0, 0, time.UTC))
	got, err = f.svc.Get(ctx, schoolID, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.StatusOverdue, got.Status)

	list, err := f.svc.List(ctx, schoolID, invoicedomain.ListRequest{Status: invoicedomain.StatusOverdue})
	require.NoError(t, err)
	require.Len(t, list.Invoices, 1)
	assert.Equal(t, inv.ID, list.Invoices[0].ID)

	list, err = f.svc.List(ctx, schoolID, invoicedomain.ListRequest{Status: invoicedomain.StatusPending})
	require.NoError(t, err)
	assert.Empty(t, list.Invoices)
}

func TestListPaginates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.svc.Create(ctx, schoolID, monthly(snowflake.ID(10+i), "100"))
		require.NoError(t, err)
		f.clock.Advance(time.Minute)
	}

	page, err := f.svc.List(ctx, schoolID, invoicedomain.ListRequest{Pagination: pagination.Pagination{PageSize: 2}})
	require.NoError(t, err)
	require.Len(t, page.Invoices, 2)
	assert.True(t, page.HasMore)
	assert.Equal(t, "INV-202604-00003", page.Invoices[0].InvoiceNumber)

	next, err := f.svc.List(ctx, schoolID, invoicedomain.ListRequest{Pagination: pagination.Pagination{PageSize: 2, PageToken: page.NextPageToken}})
	require.NoError(t, err)
	require.Len(t, next.Invoices, 1)
	assert.False(t, next.HasMore)
	assert.Equal(t, "INV-202604-00001", next.Invoices[0].InvoiceNumber)

	_, err = f.svc.List(ctx, schoolID, invoicedomain.ListRequest{Pagination: pagination.Pagination{PageToken: "garbage"}})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidPageToken)
	_, err = f.svc.List(ctx, schoolID, invoicedomain.ListRequest{Status: "settled"})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidStatus)
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inv, err := f.svc.Create(ctx, schoolID, monthly(7, "100"))
	require.NoError(t, err)

	cancelled, err := f.svc.Cancel(ctx, schoolID, inv.ID, "student withdrew")
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelReason)
	assert.Equal(t, "student withdrew", *cancelled.CancelReason)

	_, err = f.svc.Cancel(ctx, schoolID, inv.ID, "again")
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceCancelled)

	_, err = f.svc.AssessLateFee(ctx, schoolID, inv.ID, money("50"))
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceCancelled)
}

func TestCancelRejectsInvoiceWithPayments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inv, err := f.svc.Create(ctx, schoolID, monthly(7, "100"))
	require.NoError(t, err)
	require.NoError(t, f.db.Exec(
		`INSERT INTO payments (id, school_id, invoice_id, receipt_number, receipt_seq, amount, payment_mode,
			payment_date, status, kind, paid_before, balance_after, credited_amount, created_at)
		 VALUES (1, ?, ?, 'R-1', 1, 40, 'cash', ?, 'completed', 'payment', 0, 60, 0, ?)`,
		schoolID, inv.ID, f.clock.Now(), f.clock.Now(),
	).Error)

	_, err = f.svc.Cancel(ctx, schoolID, inv.ID, "")
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceHasPayments)
}

func TestAssessLateFeeRaisesNet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inv, err := f.svc.Create(ctx, schoolID, monthly(7, "1000"))
	require.NoError(t, err)

	_, err = f.svc.AssessLateFee(ctx, schoolID, inv.ID, money("-5"))
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidAmount)

	updated, err := f.svc.AssessLateFee(ctx, schoolID, inv.ID, money("75.50"))
	require.NoError(t, err)
	assert.True(t, updated.LateFee.Equal(money("75.50")))
	assert.True(t, updated.NetAmount.Equal(money("1075.50")))
	assert.True(t, updated.BalanceAmount.Equal(money("1075.50")))
}

func TestSaveApplicationDetectsStaleVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	view, err := f.svc.Create(ctx, schoolID, monthly(7, "1000"))
	require.NoError(t, err)

	err = f.db.Transaction(func(tx *gorm.DB) error {
		inv, err := f.svc.LoadForUpdate(ctx, tx, schoolID, view.ID)
		require.NoError(t, err)

		after := *inv
		after.PaidAmount = money("100")
		saved, err := f.svc.SaveApplication(ctx, tx, *inv, after)
		require.NoError(t, err)
		assert.Equal(t, inv.Version+1, saved.Version)

		// reusing the old snapshot must fail
		_, err = f.svc.SaveApplication(ctx, tx, *inv, after)
		assert.ErrorIs(t, err, invoicedomain.ErrStaleBalance)
		return nil
	})
	require.NoError(t, err)

	err = f.db.Transaction(func(tx *gorm.DB) error {
		_, err := f.svc.LoadForUpdate(ctx, tx, schoolID, 999)
		return err
	})
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceNotFound)
}
