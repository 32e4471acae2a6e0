package domain

import (
	"testing"
	"time"

	invoicedomain "github.com/dev-orchid/shiksha-sub001/internal/invoice/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestGenerateReceiptIsPureAndUsesFrozenBalances(t *testing.T) {
	month, year := 4, 2026
	inv := invoicedomain.Invoice{
		ID:            10,
		StudentID:     77,
		InvoiceNumber: "INV-202604-00001",
		PeriodKind:    invoicedomain.PeriodMonthly,
		PeriodMonth:   &month,
		PeriodYear:    &year,
		NetAmount:     decimal.NewFromInt(1000),
		PaidAmount:    decimal.NewFromInt(1000),
	}
	p := Payment{
		ID:            20,
		InvoiceID:     10,
		ReceiptNumber: "GVH-2026-000002",
		Amount:        decimal.NewFromInt(500),
		PaymentMode:   ModeCash,
		PaymentDate:   time.Date(2026, 4, 3, 0, 0, 0, 0, time.UTC),
		Status:        StatusCompleted,
		Kind:          KindPayment,
		PaidBefore:    decimal.NewFromInt(400),
		BalanceAfter:  decimal.NewFromInt(100),
	}

	first := GenerateReceipt(p, inv)
	// later invoice changes must not alter a regenerated receipt
	inv.PaidAmount = decimal.Zero
	inv.NetAmount = decimal.NewFromInt(5000)
	second := GenerateReceipt(p, inv)

	assert.Equal(t, first, second)
	assert.Equal(t, "2026-04", first.Period)
	assert.True(t, first.Amount.Equal(decimal.NewFromInt(500)))
	assert.True(t, first.PreviouslyPaid.Equal(decimal.NewFromInt(400)))
	assert.True(t, first.BalanceAfter.Equal(decimal.NewFromInt(100)))
}

func TestPeriodOneTime(t *testing.T) {
	assert.Equal(t, "one_time", Period(invoicedomain.Invoice{PeriodKind: invoicedomain.PeriodOneTime}))
}

func TestModeValid(t *testing.T) {
	assert.True(t, ModeUPI.Valid())
	assert.False(t, Mode("crypto").Valid())
}
