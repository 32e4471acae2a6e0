package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Policy controls how ApplyPayment treats an amount above the balance.
type Policy struct {
	// AllowOverpayment caps the applied amount at the balance and records the
	// excess as credit. When false such payments are rejected.
	AllowOverpayment bool
}

// Application is the outcome of applying one payment to an invoice.
type Application struct {
	Invoice      Invoice
	Applied      decimal.Decimal
	Credit       decimal.Decimal
	PaidBefore   decimal.Decimal
	BalanceAfter decimal.Decimal
}

// NetAmount is total minus discount plus late fee.
func NetAmount(total, discount, lateFee decimal.Decimal) decimal.Decimal {
	return total.Sub(discount).Add(lateFee)
}

// ComputeBalance returns net minus paid. It may be negative.
func ComputeBalance(inv Invoice) decimal.Decimal {
	return inv.NetAmount.Sub(inv.PaidAmount)
}

// DisplayBalance is ComputeBalance clamped at zero.
func DisplayBalance(inv Invoice) decimal.Decimal {
	balance := ComputeBalance(inv)
	if balance.IsNegative() {
		return decimal.Zero
	}
	return balance
}

// DeriveStatus evaluates the invoice status for the given day. Precedence is
// cancelled, paid, overdue, partial, pending.
func DeriveStatus(inv Invoice, today time.Time) Status {
	if inv.CancelledAt != nil {
		return StatusCancelled
	}
	balance := ComputeBalance(inv)
	if !balance.IsPositive() {
		return StatusPaid
	}
	if DateOf(today).After(DateOf(inv.DueDate)) {
		return StatusOverdue
	}
	if inv.PaidAmount.IsPositive() && inv.PaidAmount.LessThan(inv.NetAmount) {
		return StatusPartial
	}
	return StatusPending
}

// DateOf truncates t to midnight UTC.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ApplyPayment applies amount to inv and returns the updated copy. inv is not modified.
func ApplyPayment(inv Invoice, amount decimal.Decimal, policy Policy) (Application, error) {
	if !amount.IsPositive() {
		return Application{}, ErrInvalidAmount
	}
	if inv.CancelledAt != nil {
		return Application{}, ErrInvoiceCancelled
	}

	balance := ComputeBalance(inv)
	applied := amount
	credit := decimal.Zero
	if amount.GreaterThan(balance) {
		if !policy.AllowOverpayment {
			return Application{}, ErrOverpayment
		}
		applied = decimal.Max(balance, decimal.Zero)
		credit = amount.Sub(applied)
	}

	updated := inv
	updated.PaidAmount = inv.PaidAmount.Add(applied)
	updated.CreditAmount = inv.CreditAmount.Add(credit)

	return Application{
		Invoice:      updated,
		Applied:      applied,
		Credit:       credit,
		PaidBefore:   inv.PaidAmount,
		BalanceAfter: DisplayBalance(updated),
	}, nil
}

// ReversePayment undoes a previously applied amount and credit.
func ReversePayment(inv Invoice, applied, credit decimal.Decimal) (Invoice, error) {
	if applied.IsNegative() || credit.IsNegative() {
		return Invoice{}, ErrInvalidAmount
	}
	if applied.GreaterThan(inv.PaidAmount) {
		return Invoice{}, ErrStaleBalance
	}
	updated := inv
	updated.PaidAmount = inv.PaidAmount.Sub(applied)
	updated.CreditAmount = decimal.Max(inv.CreditAmount.Sub(credit), decimal.Zero)
	return updated, nil
}
