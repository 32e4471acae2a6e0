package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/dev-orchid/shiksha-sub001/internal/invoice/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// balanceExpr is the unclamped balance used by status filters.
const balanceExpr = "(net_amount - paid_amount)"

type repo struct{}

func Provide() invoicedomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, inv *invoicedomain.Invoice, items []invoicedomain.InvoiceItem) error {
	if err := db.WithContext(ctx).Exec(
		`INSERT INTO invoices (
			id, school_id, student_id, invoice_number, period_kind, period_month, period_year,
			total_amount, discount_amount, late_fee, net_amount, paid_amount, credit_amount,
			due_date, version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID,
		inv.SchoolID,
		inv.StudentID,
		inv.InvoiceNumber,
		inv.PeriodKind,
		inv.PeriodMonth,
		inv.PeriodYear,
		inv.TotalAmount,
		inv.DiscountAmount,
		inv.LateFee,
		inv.NetAmount,
		inv.PaidAmount,
		inv.CreditAmount,
		inv.DueDate,
		inv.Version,
		inv.CreatedAt,
		inv.UpdatedAt,
	).Error; err != nil {
		return err
	}

	for _, item := range items {
		if err := db.WithContext(ctx).Exec(
			`INSERT INTO invoice_items (id, school_id, invoice_id, description, amount, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			item.ID,
			item.SchoolID,
			item.InvoiceID,
			item.Description,
			item.Amount,
			item.CreatedAt,
		).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, schoolID, invoiceID snowflake.ID) (*invoicedomain.Invoice, error) {
	return r.find(db.WithContext(ctx), schoolID, invoiceID)
}

func (r *repo) FindForUpdate(ctx context.Context, db *gorm.DB, schoolID, invoiceID snowflake.ID) (*invoicedomain.Invoice, error) {
	return r.find(db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), schoolID, invoiceID)
}

func (r *repo) find(db *gorm.DB, schoolID, invoiceID snowflake.ID) (*invoicedomain.Invoice, error) {
	var inv invoicedomain.Invoice
	err := db.Where("school_id = ? AND id = ?", schoolID, invoiceID).Take(&inv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *repo) ListItems(ctx context.Context, db *gorm.DB, schoolID, invoiceID snowflake.ID) ([]invoicedomain.InvoiceItem, error) {
	var items []invoicedomain.InvoiceItem
	err := db.WithContext(ctx).
		Where("school_id = ? AND invoice_id = ?", schoolID, invoiceID).
		Order("id asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter invoicedomain.ListFilter) ([]*invoicedomain.Invoice, error) {
	stmt := db.WithContext(ctx).Model(&invoicedomain.Invoice{}).
		Where("school_id = ?", filter.SchoolID)

	if filter.StudentID != 0 {
		stmt = stmt.Where("student_id = ?", filter.StudentID)
	}
	if filter.Status != "" {
		stmt = applyStatusFilter(stmt, filter.Status, filter.Today)
	}
	if filter.Cursor != nil {
		stmt = stmt.Where("(created_at < ? OR (created_at = ? AND id < ?))",
			filter.Cursor.CreatedAt,
			filter.Cursor.CreatedAt,
			filter.Cursor.ID,
		)
	}

	stmt = stmt.Order("created_at desc, id desc")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit + 1)
	}

	var invoices []*invoicedomain.Invoice
	if err := stmt.Find(&invoices).Error; err != nil {
		return nil, err
	}
	return invoices, nil
}

// applyStatusFilter mirrors DeriveStatus in SQL for the given day.
func applyStatusFilter(stmt *gorm.DB, status invoicedomain.Status, today interface{}) *gorm.DB {
	switch status {
	case invoicedomain.StatusCancelled:
		return stmt.Where("cancelled_at IS NOT NULL")
	case invoicedomain.StatusPaid:
		return stmt.Where("cancelled_at IS NULL AND " + balanceExpr + " <= 0")
	case invoicedomain.StatusOverdue:
		return stmt.Where("cancelled_at IS NULL AND "+balanceExpr+" > 0 AND due_date < ?", today)
	case invoicedomain.StatusPartial:
		return stmt.Where("cancelled_at IS NULL AND "+balanceExpr+" > 0 AND due_date >= ? AND paid_amount > 0", today)
	case invoicedomain.StatusPending:
		return stmt.Where("cancelled_at IS NULL AND "+balanceExpr+" > 0 AND due_date >= ? AND paid_amount <= 0", today)
	default:
		return stmt
	}
}

func (r *repo) CompareAndSwap(ctx context.Context, db *gorm.DB, inv *invoicedomain.Invoice, expectedVersion int64) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET late_fee = ?, net_amount = ?, paid_amount = ?, credit_amount = ?,
		     cancelled_at = ?, cancel_reason = ?, version = version + 1, updated_at = ?
		 WHERE school_id = ? AND id = ? AND version = ?`,
		inv.LateFee,
		inv.NetAmount,
		inv.PaidAmount,
		inv.CreditAmount,
		inv.CancelledAt,
		inv.CancelReason,
		inv.UpdatedAt,
		inv.SchoolID,
		inv.ID,
		expectedVersion,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// CountCompletedPayments counts payments that have not been reversed.
func (r *repo) CountCompletedPayments(ctx context.Context, db *gorm.DB, schoolID, invoiceID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM payments p
		 WHERE p.school_id = ? AND p.invoice_id = ? AND p.kind = 'payment' AND p.status = 'completed'
		   AND NOT EXISTS (
		     SELECT 1 FROM payments r
		     WHERE r.school_id = p.school_id AND r.reverses_payment_id = p.id AND r.kind = 'reversal'
		   )`,
		schoolID,
		invoiceID,
	).Scan(&count).Error
	return count, err
}
