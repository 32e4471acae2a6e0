// Package testenv wires the fee ledger services against an in-memory
// database for package tests.
package testenv

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	apikeydomain "github.com/dev-orchid/shiksha-sub001/internal/apikey/domain"
	apikeyrepo "github.com/dev-orchid/shiksha-sub001/internal/apikey/repository"
	apikeyservice "github.com/dev-orchid/shiksha-sub001/internal/apikey/service"
	auditdomain "github.com/dev-orchid/shiksha-sub001/internal/audit/domain"
	auditrepo "github.com/dev-orchid/shiksha-sub001/internal/audit/repository"
	auditservice "github.com/dev-orchid/shiksha-sub001/internal/audit/service"
	"github.com/dev-orchid/shiksha-sub001/internal/clock"
	"github.com/dev-orchid/shiksha-sub001/internal/config"
	invoicedomain "github.com/dev-orchid/shiksha-sub001/internal/invoice/domain"
	invoicerepo "github.com/dev-orchid/shiksha-sub001/internal/invoice/repository"
	invoiceservice "github.com/dev-orchid/shiksha-sub001/internal/invoice/service"
	"github.com/dev-orchid/shiksha-sub001/internal/migration"
	paymentdomain "github.com/dev-orchid/shiksha-sub001/internal/payment/domain"
	paymentrepo "github.com/dev-orchid/shiksha-sub001/internal/payment/repository"
	paymentservice "github.com/dev-orchid/shiksha-sub001/internal/payment/service"
	schooldomain "github.com/dev-orchid/shiksha-sub001/internal/school/domain"
	schoolrepo "github.com/dev-orchid/shiksha-sub001/internal/school/repository"
	schoolservice "github.com/dev-orchid/shiksha-sub001/internal/school/service"
	"github.com/dev-orchid/shiksha-sub001/pkg/db"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Start is the fake clock's initial instant.
var Start = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

type Env struct {
	DB     *gorm.DB
	Node   *snowflake.Node
	Clock  *clock.FakeClock
	Policy *config.FeePolicyHolder
	Log    *zap.Logger

	SchoolRepo  schooldomain.Repository
	Sequences   schooldomain.Sequences
	Schools     schooldomain.Service
	InvoiceRepo invoicedomain.Repository
	Invoices    invoicedomain.Service
	Payments    paymentdomain.Service
	Audit       auditdomain.Service
	APIKeys     apikeydomain.Service

	School *schooldomain.School
}

// New migrates a fresh database and creates one INR school.
func New(t testing.TB, policy config.FeePolicy) *Env {
	t.Helper()
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, migration.AutoMigrate(conn))

	node, err := snowflake.NewNode(9)
	require.NoError(t, err)

	e := &Env{
		DB:          conn,
		Node:        node,
		Clock:       clock.NewFakeClock(Start),
		Policy:      config.NewStaticFeePolicyHolder(policy),
		Log:         zap.NewNop(),
		SchoolRepo:  schoolrepo.Provide(),
		Sequences:   schoolrepo.ProvideSequences(),
		InvoiceRepo: invoicerepo.Provide(),
	}
	e.Audit = auditservice.NewService(auditservice.Params{
		DB: conn, Log: e.Log, GenID: node, Repo: auditrepo.Provide(), Clock: e.Clock,
	})
	e.APIKeys = apikeyservice.New(apikeyservice.Params{
		DB: conn, Log: e.Log, GenID: node, Repo: apikeyrepo.Provide(), Clock: e.Clock,
	})
	e.Schools = schoolservice.NewService(schoolservice.Params{
		DB: conn, Log: e.Log, GenID: node, Repo: e.SchoolRepo, Clock: e.Clock,
	})
	e.Invoices = invoiceservice.NewService(invoiceservice.ServiceParam{
		DB:        conn,
		Log:       e.Log,
		GenID:     node,
		Clock:     e.Clock,
		Repo:      e.InvoiceRepo,
		Sequences: e.Sequences,
		Policy:    e.Policy,
		AuditSvc:  e.Audit,
	})
	e.Payments = paymentservice.NewService(paymentservice.ServiceParam{
		DB:          conn,
		Log:         e.Log,
		GenID:       node,
		Clock:       e.Clock,
		Repo:        paymentrepo.Provide(),
		InvoiceSvc:  e.Invoices,
		InvoiceRepo: e.InvoiceRepo,
		SchoolRepo:  e.SchoolRepo,
		Sequences:   e.Sequences,
		Policy:      e.Policy,
		AuditSvc:    e.Audit,
	})

	e.School, err = e.Schools.Ensure(context.Background(), schooldomain.EnsureRequest{
		Name:     "Green Valley High",
		Currency: "INR",
	})
	require.NoError(t, err)
	return e
}

// Invoice creates an April 2026 tuition invoice for amount due on the 10th.
func (e *Env) Invoice(t testing.TB, amount string) invoicedomain.View {
	t.Helper()
	month, year := 4, 2026
	inv, err := e.Invoices.Create(context.Background(), e.School.ID, invoicedomain.CreateRequest{
		StudentID:   snowflake.ID(501),
		PeriodKind:  invoicedomain.PeriodMonthly,
		PeriodMonth: &month,
		PeriodYear:  &year,
		Items:       []invoicedomain.ItemRequest{{Description: "Tuition fee", Amount: Money(amount)}},
		DueDate:     Start.AddDate(0, 0, 9).Format(invoicedomain.DateLayout),
	})
	require.NoError(t, err)
	return inv
}

// Key issues an API key for the school with the given scopes and returns the secret.
func (e *Env) Key(t testing.TB, scopes ...string) string {
	t.Helper()
	secret, err := e.APIKeys.Create(context.Background(), e.School.ID, apikeydomain.CreateRequest{
		Name:   "test",
		Scopes: scopes,
	})
	require.NoError(t, err)
	return secret.APIKey
}

func Money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
