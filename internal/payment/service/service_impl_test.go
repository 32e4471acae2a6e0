package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dev-orchid/shiksha-sub001/internal/config"
	invoicedomain "github.com/dev-orchid/shiksha-sub001/internal/invoice/domain"
	paymentdomain "github.com/dev-orchid/shiksha-sub001/internal/payment/domain"
	"github.com/dev-orchid/shiksha-sub001/internal/testenv"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var money = testenv.Money

func cash(invoice invoicedomain.View, amount string) paymentdomain.RecordRequest {
	return paymentdomain.RecordRequest{InvoiceID: invoice.ID, Amount: money(amount), Mode: paymentdomain.ModeCash, RecordedBy: "front-desk"}
}

// completedSum adds Amount over the completed rows of an invoice, reversals included.
func completedSum(t *testing.T, env *testenv.Env, invoice invoicedomain.View) decimal.Decimal {
	t.Helper()
	rows, err := env.Payments.ListPayments(context.Background(), env.School.ID, invoice.ID)
	require.NoError(t, err)
	sum := decimal.Zero
	for _, p := range rows {
		if p.Status == paymentdomain.StatusCompleted {
			sum = sum.Add(p.Amount)
		}
	}
	return sum
}

// assertPaidMatchesLedger checks paid_amount against the completed payment rows.
func assertPaidMatchesLedger(t *testing.T, env *testenv.Env, invoice invoicedomain.View) {
	t.Helper()
	got, err := env.Invoices.Get(context.Background(), env.School.ID, invoice.ID)
	require.NoError(t, err)
	sum := completedSum(t, env, invoice)
	assert.True(t, got.PaidAmount.Equal(sum), "paid_amount %s, completed rows %s", got.PaidAmount, sum)
	assert.True(t, sum.LessThanOrEqual(got.NetAmount), "completed rows %s exceed net %s", sum, got.NetAmount)
}

func TestPartialThenFullPayment(t *testing.T) {
	env := testenv.New(t, config.DefaultFeePolicy())
	ctx := context.Background()
	inv := env.Invoice(t, "5000")

	first, err := env.Payments.RecordPayment(ctx, env.School.ID, cash(inv, "2000"))
	require.NoError(t, err)
	assert.Equal(t, "GVH-2026-000001", first.Payment.ReceiptNumber)
	assert.Equal(t, invoicedomain.StatusPartial, first.Invoice.Status)
	assert.True(t, first.Invoice.BalanceAmount.Equal(money("3000")))
	assert.True(t, first.Receipt.PreviouslyPaid.IsZero())
	assert.True(t, first.Receipt.BalanceAfter.Equal(money("3000")))
	assert.Equal(t, "2026-04", first.Receipt.Period)

	second, err := env.Payments.RecordPayment(ctx, env.School.ID, paymentdomain.RecordRequest{
		InvoiceID:     inv.ID,
		Amount:        money("3000"),
		Mode:          paymentdomain.ModeUPI,
		TransactionID: "upi-77812",
	})
	require.NoError(t, err)
	assert.Equal(t, "GVH-2026-000002", second.Payment.ReceiptNumber)
	assert.Equal(t, invoicedomain.StatusPaid, second.Invoice.Status)
	assert.True(t, second.Receipt.PreviouslyPaid.Equal(money("2000")))
	assert.True(t, second.Invoice.BalanceAmount.IsZero())

	assert.True(t, completedSum(t, env, inv).Equal(money("5000")))

	// receipts regenerate from frozen values even after later payments
	receipt, err := env.Payments.GetReceipt(ctx, env.School.ID, first.Payment.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Receipt.ReceiptNumber, receipt.ReceiptNumber)
	assert.True(t, receipt.BalanceAfter.Equal(money("3000")))
}

func TestRecordPaymentValidation(t *testing.T) {
	env := testenv.New(t, config.DefaultFeePolicy())
	ctx := context.Background()
	inv := env.Invoice(t, "1000")

	_, err := env.Payments.RecordPayment(ctx, env.School.ID, paymentdomain.RecordRequest{InvoiceID: inv.ID, Amount: money("10"), Mode: "barter"})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidMode)

	_, err = env.Payments.RecordPayment(ctx, env.School.ID, cash(inv, "0"))
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidAmount)

	_, err = env.Payments.RecordPayment(ctx, env.School.ID, cash(inv, "1.001"))
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidAmount)

	_, err = env.Payments.RecordPayment(ctx, env.School.ID, paymentdomain.RecordRequest{InvoiceID: inv.ID, Amount: money("10"), Mode: paymentdomain.ModeOnlineGateway})
	assert.ErrorIs(t, err, paymentdomain.ErrMissingReference)

	missing := inv
	missing.ID = 1
	_, err = env.Payments.RecordPayment(ctx, env.School.ID, cash(missing, "10"))
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceNotFound)

	_, err = env.Payments.RecordPayment(ctx, env.School.ID+1, cash(inv, "10"))
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceNotFound)
}

func TestOverpaymentIsRejectedWithoutSideEffects(t *testing.T) {
	env := testenv.New(t, config.DefaultFeePolicy())
	ctx := context.Background()
	inv := env.Invoice(t, "1000")

	_, err := env.Payments.RecordPayment(ctx, env.School.ID, cash(inv, "1000.01"))
	assert.ErrorIs(t, err, invoicedomain.ErrOverpayment)

	got, err := env.Invoices.Get(ctx, env.School.ID, inv.ID)
	require.NoError(t, err)
	assert.True(t, got.PaidAmount.IsZero())

	rows, err := env.Payments.ListPayments(ctx, env.School.ID, inv.ID)
	require.NoError(t, err)
	assert.Empty(t, rows)

	// the failed attempt did not burn a receipt number
	ok, err := env.Payments.RecordPayment(ctx, env.School.ID, cash(inv, "1000"))
	require.NoError(t, err)
	assert.Equal(t, "GVH-2026-000001", ok.Payment.ReceiptNumber)
}

func TestCancelledInvoiceRejectsPayment(t *testing.T) {
	env := testenv.New(t, config.DefaultFeePolicy())
	ctx := context.Background()
	inv := env.Invoice(t, "1000")
	_, err := env.Invoices.Cancel(ctx, env.School.ID, inv.ID, "duplicate")
	require.NoError(t, err)

	_, err = env.Payments.RecordPayment(ctx, env.School.ID, cash(inv, "10"))
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceCancelled)
}

func TestCreditPolicyKeepsExcess(t *testing.T) {
	policy := config.DefaultFeePolicy()
	policy.AllowOverpayment = true
	env := testenv.New(t, policy)
	ctx := context.Background()
	inv := env.Invoice(t, "1000")

	res, err := env.Payments.RecordPayment(ctx, env.School.ID, cash(inv, "1200"))
	require.NoError(t, err)
	assert.True(t, res.Payment.Amount.Equal(money("1000")))
	assert.True(t, res.Payment.CreditedAmount.Equal(money("200")))
	assert.True(t, res.Payment.Received().Equal(money("1200")))
	assert.True(t, res.Receipt.Amount.Equal(money("1000")))
	assert.True(t, res.Receipt.AmountReceived.Equal(money("1200")))
	assert.True(t, res.Invoice.PaidAmount.Equal(money("1000")))
	assert.True(t, res.Invoice.CreditAmount.Equal(money("200")))
	assert.Equal(t, invoicedomain.StatusPaid, res.Invoice.Status)
	assertPaidMatchesLedger(t, env, inv)
}

func TestRefundWritesReversal(t *testing.T) {
	env := testenv.New(t, config.DefaultFeePolicy())
	ctx := context.Background()
	inv := env.Invoice(t, "5000")

	first, err := env.Payments.RecordPayment(ctx, env.School.ID, cash(inv, "2000"))
	require.NoError(t, err)
	_, err = env.Payments.RecordPayment(ctx, env.School.ID, cash(inv, "1000"))
	require.NoError(t, err)

	env.Clock.Advance(24 * time.Hour)
	refund, err := env.Payments.Refund(ctx, env.School.ID, first.Payment.ID, "cheque bounced")
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.StatusCompleted, refund.Original.Status)
	assert.Equal(t, paymentdomain.KindReversal, refund.Reversal.Kind)
	assert.True(t, refund.Reversal.Amount.Equal(money("-2000")))
	require.NotNil(t, refund.Reversal.ReversesPaymentID)
	assert.Equal(t, first.Payment.ID, *refund.Reversal.ReversesPaymentID)
	assert.Equal(t, "GVH-2026-000003", refund.Reversal.ReceiptNumber)
	assert.True(t, refund.Invoice.PaidAmount.Equal(money("1000")))
	assert.Equal(t, invoicedomain.StatusPartial, refund.Invoice.Status)

	assert.True(t, completedSum(t, env, inv).Equal(money("1000")))
	assertPaidMatchesLedger(t, env, inv)

	_, err = env.Payments.Refund(ctx, env.School.ID, first.Payment.ID, "again")
	assert.ErrorIs(t, err, paymentdomain.ErrAlreadyRefunded)

	_, err = env.Payments.Refund(ctx, env.School.ID, refund.Reversal.ID, "")
	assert.ErrorIs(t, err, paymentdomain.ErrNotRefundable)

	_, err = env.Payments.Refund(ctx, env.School.ID, 12345, "")
	assert.ErrorIs(t, err, paymentdomain.ErrPaymentNotFound)
}

func TestRefundReleasesCredit(t *testing.T) {
	policy := config.DefaultFeePolicy()
	policy.AllowOverpayment = true
	env := testenv.New(t, policy)
	ctx := context.Background()
	inv := env.Invoice(t, "1000")

	res, err := env.Payments.RecordPayment(ctx, env.School.ID, cash(inv, "1500"))
	require.NoError(t, err)

	refund, err := env.Payments.Refund(ctx, env.School.ID, res.Payment.ID, "")
	require.NoError(t, err)
	assert.True(t, refund.Invoice.PaidAmount.IsZero())
	assert.True(t, refund.Invoice.CreditAmount.IsZero())
	assert.True(t, refund.Reversal.Amount.Equal(money("-1000")))
	assert.True(t, refund.Reversal.CreditedAmount.Equal(money("-500")))
	assert.True(t, completedSum(t, env, inv).IsZero())
	assertPaidMatchesLedger(t, env, inv)
}

func TestLedgerMatchesPaidAmountThroughRefunds(t *testing.T) {
	env := testenv.New(t, config.DefaultFeePolicy())
	ctx := context.Background()
	inv := env.Invoice(t, "5000")

	first, err := env.Payments.RecordPayment(ctx, env.School.ID, cash(inv, "2000"))
	require.NoError(t, err)
	assertPaidMatchesLedger(t, env, inv)
	second, err := env.Payments.RecordPayment(ctx, env.School.ID, cash(inv, "1000"))
	require.NoError(t, err)
	assertPaidMatchesLedger(t, env, inv)

	_, err = env.Payments.Refund(ctx, env.School.ID, first.Payment.ID, "bounced")
	require.NoError(t, err)
	assertPaidMatchesLedger(t, env, inv)
	assert.True(t, completedSum(t, env, inv).Equal(money("1000")))

	_, err = env.Invoices.Cancel(ctx, env.School.ID, inv.ID, "withdrawn")
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceHasPayments)

	_, err = env.Payments.Refund(ctx, env.School.ID, second.Payment.ID, "withdrawn")
	require.NoError(t, err)
	assertPaidMatchesLedger(t, env, inv)
	assert.True(t, completedSum(t, env, inv).IsZero())

	cancelled, err := env.Invoices.Cancel(ctx, env.School.ID, inv.ID, "withdrawn")
	require.NoError(t, err, "fully reversed payments no longer block cancellation")
	assert.Equal(t, invoicedomain.StatusCancelled, cancelled.Status)
}

func TestConcurrentPaymentsCannotOverpay(t *testing.T) {
	env := testenv.New(t, config.DefaultFeePolicy())
	ctx := context.Background()
	inv := env.Invoice(t, "1000")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.Payments.RecordPayment(ctx, env.School.ID, cash(inv, "600"))
		}(i)
	}
	wg.Wait()

	var succeeded, rejected int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, invoicedomain.ErrOverpayment):
			rejected++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, rejected)

	got, err := env.Invoices.Get(ctx, env.School.ID, inv.ID)
	require.NoError(t, err)
	assert.True(t, got.PaidAmount.Equal(money("600")))
	assert.True(t, completedSum(t, env, inv).Equal(money("600")))
}

func TestGatewayTransactionIsUniquePerSchool(t *testing.T) {
	env := testenv.New(t, config.DefaultFeePolicy())
	ctx := context.Background()
	inv := env.Invoice(t, "1000")

	req := paymentdomain.RecordRequest{InvoiceID: inv.ID, Amount: money("100"), Mode: paymentdomain.ModeOnlineGateway, TransactionID: "pay_Abc123"}
	res, err := env.Payments.RecordPayment(ctx, env.School.ID, req)
	require.NoError(t, err)

	_, err = env.Payments.RecordPayment(ctx, env.School.ID, req)
	assert.ErrorIs(t, err, paymentdomain.ErrDuplicateTransfer)

	found, err := env.Payments.FindByTransaction(ctx, nil, env.School.ID, "pay_Abc123")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, res.Payment.ID, found.ID)

	none, err := env.Payments.FindByTransaction(ctx, nil, env.School.ID, "pay_missing")
	require.NoError(t, err)
	assert.Nil(t, none)

	// manual modes may repeat a bank reference
	bank := paymentdomain.RecordRequest{InvoiceID: inv.ID, Amount: money("50"), Mode: paymentdomain.ModeBankTransfer, TransactionID: "NEFT-1"}
	_, err = env.Payments.RecordPayment(ctx, env.School.ID, bank)
	require.NoError(t, err)
	_, err = env.Payments.RecordPayment(ctx, env.School.ID, bank)
	require.NoError(t, err)
}
