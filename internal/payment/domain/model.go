package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Mode string

const (
	ModeCash          Mode = "cash"
	ModeCheque        Mode = "cheque"
	ModeUPI           Mode = "upi"
	ModeCard          Mode = "card"
	ModeBankTransfer  Mode = "bank_transfer"
	ModeOnlineGateway Mode = "online_gateway"
)

func (m Mode) Valid() bool {
	switch m {
	case ModeCash, ModeCheque, ModeUPI, ModeCard, ModeBankTransfer, ModeOnlineGateway:
		return true
	}
	return false
}

type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

type Kind string

const (
	KindPayment  Kind = "payment"
	KindReversal Kind = "reversal"
)

// Payment is one money movement against an invoice. Amount is the part applied
// to the invoice balance; any excess accepted as credit is in CreditedAmount.
// Reversal rows carry negated amounts and point at the payment they
// compensate, so the completed rows of an invoice sum to its paid_amount.
type Payment struct {
	ID                snowflake.ID    `json:"id" gorm:"primaryKey"`
	SchoolID          snowflake.ID    `json:"school_id" gorm:"not null;uniqueIndex:ux_payments_school_receipt,priority:1"`
	InvoiceID         snowflake.ID    `json:"invoice_id" gorm:"not null;index"`
	ReceiptNumber     string          `json:"receipt_number" gorm:"type:text;not null;uniqueIndex:ux_payments_school_receipt,priority:2"`
	ReceiptSeq        int64           `json:"receipt_seq" gorm:"not null"`
	Amount            decimal.Decimal `json:"amount" gorm:"type:numeric(14,2);not null"`
	PaymentMode       Mode            `json:"payment_mode" gorm:"type:text;not null"`
	PaymentDate       time.Time       `json:"payment_date" gorm:"not null"`
	TransactionID     *string         `json:"transaction_id,omitempty" gorm:"type:text"`
	Status            Status          `json:"status" gorm:"type:text;not null"`
	Kind              Kind            `json:"kind" gorm:"type:text;not null"`
	ReversesPaymentID *snowflake.ID   `json:"reverses_payment_id,omitempty" gorm:"uniqueIndex:ux_payments_reverses"`
	PaidBefore        decimal.Decimal `json:"paid_before" gorm:"type:numeric(14,2);not null"`
	BalanceAfter      decimal.Decimal `json:"balance_after" gorm:"type:numeric(14,2);not null"`
	CreditedAmount    decimal.Decimal `json:"credited_amount" gorm:"type:numeric(14,2);not null;default:0"`
	Notes             *string         `json:"notes,omitempty" gorm:"type:text"`
	RecordedBy        *string         `json:"recorded_by,omitempty" gorm:"type:text"`
	CreatedAt         time.Time       `json:"created_at" gorm:"not null"`
}

func (Payment) TableName() string { return "payments" }

// Applied is the amount that reduced the invoice balance.
func (p Payment) Applied() decimal.Decimal {
	return p.Amount
}

// Received is what the payer handed over, including any excess kept as credit.
func (p Payment) Received() decimal.Decimal {
	return p.Amount.Add(p.CreditedAmount)
}
