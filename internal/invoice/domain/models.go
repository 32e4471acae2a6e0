package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type PeriodKind string

const (
	PeriodMonthly PeriodKind = "monthly"
	PeriodOneTime PeriodKind = "one_time"
)

// Status is always derived from amounts, dates and cancellation. It is never stored.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPartial   Status = "partial"
	StatusPaid      Status = "paid"
	StatusOverdue   Status = "overdue"
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPartial, StatusPaid, StatusOverdue, StatusCancelled:
		return true
	}
	return false
}

type Invoice struct {
	ID             snowflake.ID    `json:"id" gorm:"primaryKey"`
	SchoolID       snowflake.ID    `json:"school_id" gorm:"not null;uniqueIndex:ux_invoices_school_number,priority:1;index:idx_invoices_school_student,priority:1"`
	StudentID      snowflake.ID    `json:"student_id" gorm:"not null;index:idx_invoices_school_student,priority:2"`
	InvoiceNumber  string          `json:"invoice_number" gorm:"type:text;not null;uniqueIndex:ux_invoices_school_number,priority:2"`
	PeriodKind     PeriodKind      `json:"period_kind" gorm:"type:text;not null"`
	PeriodMonth    *int            `json:"period_month,omitempty"`
	PeriodYear     *int            `json:"period_year,omitempty"`
	TotalAmount    decimal.Decimal `json:"total_amount" gorm:"type:numeric(14,2);not null;default:0"`
	DiscountAmount decimal.Decimal `json:"discount_amount" gorm:"type:numeric(14,2);not null;default:0"`
	LateFee        decimal.Decimal `json:"late_fee" gorm:"type:numeric(14,2);not null;default:0"`
	NetAmount      decimal.Decimal `json:"net_amount" gorm:"type:numeric(14,2);not null;default:0"`
	PaidAmount     decimal.Decimal `json:"paid_amount" gorm:"type:numeric(14,2);not null;default:0"`
	CreditAmount   decimal.Decimal `json:"credit_amount" gorm:"type:numeric(14,2);not null;default:0"`
	DueDate        time.Time       `json:"due_date" gorm:"not null"`
	CancelledAt    *time.Time      `json:"cancelled_at,omitempty"`
	CancelReason   *string         `json:"cancel_reason,omitempty" gorm:"type:text"`
	Version        int64           `json:"version" gorm:"not null;default:0"`
	CreatedAt      time.Time       `json:"created_at" gorm:"not null"`
	UpdatedAt      time.Time       `json:"updated_at" gorm:"not null"`
}

func (Invoice) TableName() string { return "invoices" }

type InvoiceItem struct {
	ID          snowflake.ID    `json:"id" gorm:"primaryKey"`
	SchoolID    snowflake.ID    `json:"school_id" gorm:"not null"`
	InvoiceID   snowflake.ID    `json:"invoice_id" gorm:"not null;index"`
	Description string          `json:"description" gorm:"type:text;not null"`
	Amount      decimal.Decimal `json:"amount" gorm:"type:numeric(14,2);not null"`
	CreatedAt   time.Time       `json:"created_at" gorm:"not null"`
}

func (InvoiceItem) TableName() string { return "invoice_items" }

// View is the read model returned to callers: amounts plus the derived status.
type View struct {
	ID             snowflake.ID    `json:"id"`
	SchoolID       snowflake.ID    `json:"school_id"`
	StudentID      snowflake.ID    `json:"student_id"`
	InvoiceNumber  string          `json:"invoice_number"`
	PeriodKind     PeriodKind      `json:"period_kind"`
	PeriodMonth    *int            `json:"period_month,omitempty"`
	PeriodYear     *int            `json:"period_year,omitempty"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	LateFee        decimal.Decimal `json:"late_fee"`
	NetAmount      decimal.Decimal `json:"net_amount"`
	PaidAmount     decimal.Decimal `json:"paid_amount"`
	BalanceAmount  decimal.Decimal `json:"balance_amount"`
	CreditAmount   decimal.Decimal `json:"credit_amount"`
	Status         Status          `json:"status"`
	DueDate        string          `json:"due_date"`
	CancelledAt    *time.Time      `json:"cancelled_at,omitempty"`
	CancelReason   *string         `json:"cancel_reason,omitempty"`
	Items          []InvoiceItem   `json:"items,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

const DateLayout = "2006-01-02"

// NewView builds the read model for inv as of today.
func NewView(inv Invoice, items []InvoiceItem, today time.Time) View {
	return View{
		ID:             inv.ID,
		SchoolID:       inv.SchoolID,
		StudentID:      inv.StudentID,
		InvoiceNumber:  inv.InvoiceNumber,
		PeriodKind:     inv.PeriodKind,
		PeriodMonth:    inv.PeriodMonth,
		PeriodYear:     inv.PeriodYear,
		TotalAmount:    inv.TotalAmount,
		DiscountAmount: inv.DiscountAmount,
		LateFee:        inv.LateFee,
		NetAmount:      inv.NetAmount,
		PaidAmount:     inv.PaidAmount,
		BalanceAmount:  DisplayBalance(inv),
		CreditAmount:   inv.CreditAmount,
		Status:         DeriveStatus(inv, today),
		DueDate:        inv.DueDate.UTC().Format(DateLayout),
		CancelledAt:    inv.CancelledAt,
		CancelReason:   inv.CancelReason,
		Items:          items,
		CreatedAt:      inv.CreatedAt,
		UpdatedAt:      inv.UpdatedAt,
	}
}
