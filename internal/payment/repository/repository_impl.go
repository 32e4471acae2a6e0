package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/dev-orchid/shiksha-sub001/internal/payment/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, p *domain.Payment) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payments (
			id, school_id, invoice_id, receipt_number, receipt_seq, amount, payment_mode,
			payment_date, transaction_id, status, kind, reverses_payment_id,
			paid_before, balance_after, credited_amount, notes, recorded_by, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID,
		p.SchoolID,
		p.InvoiceID,
		p.ReceiptNumber,
		p.ReceiptSeq,
		p.Amount,
		p.PaymentMode,
		p.PaymentDate,
		p.TransactionID,
		p.Status,
		p.Kind,
		p.ReversesPaymentID,
		p.PaidBefore,
		p.BalanceAfter,
		p.CreditedAmount,
		p.Notes,
		p.RecordedBy,
		p.CreatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, schoolID, paymentID snowflake.ID) (*domain.Payment, error) {
	return first(db.WithContext(ctx).Where("school_id = ? AND id = ?", schoolID, paymentID))
}

func (r *repo) FindForUpdate(ctx context.Context, db *gorm.DB, schoolID, paymentID snowflake.ID) (*domain.Payment, error) {
	return first(db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("school_id = ? AND id = ?", schoolID, paymentID))
}

func (r *repo) FindByTransaction(ctx context.Context, db *gorm.DB, schoolID snowflake.ID, transactionID string) (*domain.Payment, error) {
	return first(db.WithContext(ctx).Where(
		"school_id = ? AND transaction_id = ? AND payment_mode = ? AND kind = ?",
		schoolID, transactionID, domain.ModeOnlineGateway, domain.KindPayment,
	))
}

func (r *repo) ListByInvoice(ctx context.Context, db *gorm.DB, schoolID, invoiceID snowflake.ID) ([]domain.Payment, error) {
	var items []domain.Payment
	err := db.WithContext(ctx).
		Where("school_id = ? AND invoice_id = ?", schoolID, invoiceID).
		Order("receipt_seq asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) FindReversal(ctx context.Context, db *gorm.DB, schoolID, paymentID snowflake.ID) (*domain.Payment, error) {
	return first(db.WithContext(ctx).Where(
		"school_id = ? AND reverses_payment_id = ? AND kind = ?",
		schoolID, paymentID, domain.KindReversal,
	))
}

func first(stmt *gorm.DB) (*domain.Payment, error) {
	var p domain.Payment
	err := stmt.Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
