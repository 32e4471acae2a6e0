package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/dev-orchid/shiksha-sub001/internal/invoice/domain"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type RecordRequest struct {
	InvoiceID     snowflake.ID    `json:"invoice_id"`
	Amount        decimal.Decimal `json:"amount"`
	Mode          Mode            `json:"payment_mode"`
	TransactionID string          `json:"transaction_id,omitempty"`
	PaymentDate   *time.Time      `json:"payment_date,omitempty"`
	Notes         string          `json:"notes,omitempty"`
	RecordedBy    string          `json:"recorded_by,omitempty"`
}

type RecordResult struct {
	Payment Payment            `json:"payment"`
	Invoice invoicedomain.View `json:"invoice"`
	Receipt Receipt            `json:"receipt"`
}

type RefundResult struct {
	Original Payment            `json:"original"`
	Reversal Payment            `json:"reversal"`
	Invoice  invoicedomain.View `json:"invoice"`
}

type Service interface {
	// RecordPayment applies a payment in its own transaction.
	RecordPayment(ctx context.Context, schoolID snowflake.ID, req RecordRequest) (*RecordResult, error)
	// RecordPaymentTx applies a payment inside a caller-owned transaction.
	RecordPaymentTx(ctx context.Context, tx *gorm.DB, schoolID snowflake.ID, req RecordRequest) (*RecordResult, error)
	GetReceipt(ctx context.Context, schoolID, paymentID snowflake.ID) (*Receipt, error)
	ListPayments(ctx context.Context, schoolID, invoiceID snowflake.ID) ([]Payment, error)
	FindByTransaction(ctx context.Context, db *gorm.DB, schoolID snowflake.ID, transactionID string) (*Payment, error)
	GetPayment(ctx context.Context, db *gorm.DB, schoolID, paymentID snowflake.ID) (*Payment, error)
	Refund(ctx context.Context, schoolID, paymentID snowflake.ID, reason string) (*RefundResult, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, payment *Payment) error
	FindByID(ctx context.Context, db *gorm.DB, schoolID, paymentID snowflake.ID) (*Payment, error)
	FindForUpdate(ctx context.Context, db *gorm.DB, schoolID, paymentID snowflake.ID) (*Payment, error)
	FindByTransaction(ctx context.Context, db *gorm.DB, schoolID snowflake.ID, transactionID string) (*Payment, error)
	ListByInvoice(ctx context.Context, db *gorm.DB, schoolID, invoiceID snowflake.ID) ([]Payment, error)
	// FindReversal returns the row compensating paymentID, or nil.
	FindReversal(ctx context.Context, db *gorm.DB, schoolID, paymentID snowflake.ID) (*Payment, error)
}

var (
	ErrPaymentNotFound   = errors.New("payment_not_found")
	ErrInvalidMode       = errors.New("invalid_payment_mode")
	ErrMissingReference  = errors.New("missing_transaction_id")
	ErrAlreadyRefunded   = errors.New("payment_already_refunded")
	ErrNotRefundable     = errors.New("payment_not_refundable")
	ErrDuplicateTransfer = errors.New("duplicate_transaction")
)
