package domain

import (
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/dev-orchid/shiksha-sub001/internal/invoice/domain"
	"github.com/shopspring/decimal"
)

type Receipt struct {
	ReceiptNumber  string          `json:"receipt_number"`
	PaymentID      snowflake.ID    `json:"payment_id"`
	InvoiceID      snowflake.ID    `json:"invoice_id"`
	InvoiceNumber  string          `json:"invoice_number"`
	StudentID      snowflake.ID    `json:"student_id"`
	Period         string          `json:"period"`
	Amount         decimal.Decimal `json:"amount"`
	AmountReceived decimal.Decimal `json:"amount_received"`
	PreviouslyPaid decimal.Decimal `json:"previously_paid"`
	BalanceAfter   decimal.Decimal `json:"balance_after"`
	CreditedAmount decimal.Decimal `json:"credited_amount"`
	PaymentMode    Mode            `json:"payment_mode"`
	TransactionID  *string         `json:"transaction_id,omitempty"`
	PaymentDate    time.Time       `json:"payment_date"`
	Status         Status          `json:"status"`
	Kind           Kind            `json:"kind"`
}

// GenerateReceipt renders the receipt for p. It reads only values frozen on
// the payment row and stable invoice identity, so it can be regenerated at any
// time with the same result.
func GenerateReceipt(p Payment, inv invoicedomain.Invoice) Receipt {
	return Receipt{
		ReceiptNumber:  p.ReceiptNumber,
		PaymentID:      p.ID,
		InvoiceID:      inv.ID,
		InvoiceNumber:  inv.InvoiceNumber,
		StudentID:      inv.StudentID,
		Period:         Period(inv),
		Amount:         p.Amount,
		AmountReceived: p.Received(),
		PreviouslyPaid: p.PaidBefore,
		BalanceAfter:   p.BalanceAfter,
		CreditedAmount: p.CreditedAmount,
		PaymentMode:    p.PaymentMode,
		TransactionID:  p.TransactionID,
		PaymentDate:    p.PaymentDate,
		Status:         p.Status,
		Kind:           p.Kind,
	}
}

// Period renders "2026-04" for monthly invoices and the period kind otherwise.
func Period(inv invoicedomain.Invoice) string {
	if inv.PeriodKind == invoicedomain.PeriodMonthly && inv.PeriodMonth != nil && inv.PeriodYear != nil {
		return fmt.Sprintf("%04d-%02d", *inv.PeriodYear, *inv.PeriodMonth)
	}
	return string(inv.PeriodKind)
}
