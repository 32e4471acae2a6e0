package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/dev-orchid/shiksha-sub001/pkg/db/pagination"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ItemRequest struct {
	Description string          `json:"description" validate:"required,max=200"`
	Amount      decimal.Decimal `json:"amount"`
}

// CreateRequest is what the billing generator submits for one student and period.
type CreateRequest struct {
	StudentID      snowflake.ID    `json:"student_id" validate:"required"`
	PeriodKind     PeriodKind      `json:"period_kind" validate:"required,oneof=monthly one_time"`
	PeriodMonth    *int            `json:"period_month,omitempty" validate:"omitempty,min=1,max=12"`
	PeriodYear     *int            `json:"period_year,omitempty" validate:"omitempty,min=2000,max=2100"`
	Items          []ItemRequest   `json:"items" validate:"required,min=1,dive"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	DueDate        string          `json:"due_date" validate:"required,datetime=2006-01-02"`
}

type ListRequest struct {
	pagination.Pagination
	StudentID snowflake.ID
	Status    Status
}

type ListResponse struct {
	pagination.PageInfo
	Invoices []View `json:"invoices"`
}

type ListFilter struct {
	SchoolID  snowflake.ID
	StudentID snowflake.ID
	Status    Status
	Today     time.Time
	Cursor    *Cursor
	Limit     int
}

type Cursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type Service interface {
	Create(ctx context.Context, schoolID snowflake.ID, req CreateRequest) (View, error)
	Get(ctx context.Context, schoolID, invoiceID snowflake.ID) (View, error)
	List(ctx context.Context, schoolID snowflake.ID, req ListRequest) (ListResponse, error)
	Cancel(ctx context.Context, schoolID, invoiceID snowflake.ID, reason string) (View, error)
	AssessLateFee(ctx context.Context, schoolID, invoiceID snowflake.ID, amount decimal.Decimal) (View, error)

	// LoadForUpdate reads the invoice inside tx holding its row lock.
	LoadForUpdate(ctx context.Context, tx *gorm.DB, schoolID, invoiceID snowflake.ID) (*Invoice, error)
	// SaveApplication persists after using before.Version as the compare-and-set guard.
	SaveApplication(ctx context.Context, tx *gorm.DB, before, after Invoice) (*Invoice, error)
	// View renders inv with the status for the current day.
	View(inv Invoice) View
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, inv *Invoice, items []InvoiceItem) error
	FindByID(ctx context.Context, db *gorm.DB, schoolID, invoiceID snowflake.ID) (*Invoice, error)
	FindForUpdate(ctx context.Context, db *gorm.DB, schoolID, invoiceID snowflake.ID) (*Invoice, error)
	ListItems(ctx context.Context, db *gorm.DB, schoolID, invoiceID snowflake.ID) ([]InvoiceItem, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Invoice, error)
	// CompareAndSwap updates the monetary columns and cancellation when version
	// still equals expectedVersion. It reports whether a row was updated.
	CompareAndSwap(ctx context.Context, db *gorm.DB, inv *Invoice, expectedVersion int64) (bool, error)
	CountCompletedPayments(ctx context.Context, db *gorm.DB, schoolID, invoiceID snowflake.ID) (int64, error)
}
