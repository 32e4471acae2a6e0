package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// School is the tenant. Every fee record carries its id.
type School struct {
	ID            snowflake.ID `json:"id" gorm:"primaryKey"`
	Name          string       `json:"name" gorm:"type:text;not null"`
	Code          string       `json:"code" gorm:"type:text;not null;uniqueIndex:ux_schools_code"`
	Currency      string       `json:"currency" gorm:"type:text;not null"`
	ReceiptPrefix string       `json:"receipt_prefix" gorm:"type:text;not null"`
	CreatedAt     time.Time    `json:"created_at" gorm:"not null"`
}

func (School) TableName() string { return "schools" }

// SchoolCounter holds a per-school monotonically increasing sequence.
type SchoolCounter struct {
	SchoolID snowflake.ID `gorm:"primaryKey;autoIncrement:false"`
	Name     string       `gorm:"primaryKey;type:text"`
	Value    int64        `gorm:"not null;default:0"`
}

func (SchoolCounter) TableName() string { return "school_counters" }

const (
	CounterInvoice = "invoice"
	CounterReceipt = "receipt"
)

type EnsureRequest struct {
	Name     string `json:"name"`
	Code     string `json:"code"`
	Currency string `json:"currency"`
}

type Service interface {
	Ensure(ctx context.Context, req EnsureRequest) (*School, error)
	Get(ctx context.Context, id snowflake.ID) (*School, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, school *School) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*School, error)
	FindByCode(ctx context.Context, db *gorm.DB, code string) (*School, error)
}

// Sequences allocates per-school counters inside a caller transaction. The
// counter row stays locked until that transaction ends, so numbers are gap-free
// for committed rows and never reused.
type Sequences interface {
	Next(ctx context.Context, tx *gorm.DB, schoolID snowflake.ID, name string) (int64, error)
}

var (
	ErrSchoolNotFound  = errors.New("school_not_found")
	ErrInvalidName     = errors.New("invalid_school_name")
	ErrInvalidCurrency = errors.New("invalid_currency")
)
