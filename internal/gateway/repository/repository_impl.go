package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	gatewaydomain "github.com/dev-orchid/shiksha-sub001/internal/gateway/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() gatewaydomain.Repository {
	return &repo{}
}

func (r *repo) InsertOrder(ctx context.Context, db *gorm.DB, o *gatewaydomain.GatewayOrder) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO gateway_orders (
			id, school_id, invoice_id, provider, provider_order_id, amount, amount_minor,
			currency, receipt, status, created_at, expires_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID,
		o.SchoolID,
		o.InvoiceID,
		o.Provider,
		o.ProviderOrderID,
		o.Amount,
		o.AmountMinor,
		o.Currency,
		o.Receipt,
		o.Status,
		o.CreatedAt,
		o.ExpiresAt,
		o.UpdatedAt,
	).Error
}

func (r *repo) FindOrder(ctx context.Context, db *gorm.DB, provider, providerOrderID string) (*gatewaydomain.GatewayOrder, error) {
	return firstOrder(db.WithContext(ctx).Where("provider = ? AND provider_order_id = ?", provider, providerOrderID))
}

func (r *repo) FindOrderForUpdate(ctx context.Context, db *gorm.DB, provider, providerOrderID string) (*gatewaydomain.GatewayOrder, error) {
	return firstOrder(db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("provider = ? AND provider_order_id = ?", provider, providerOrderID))
}

func (r *repo) FindOrderByProviderPayment(ctx context.Context, db *gorm.DB, provider, providerPaymentID string) (*gatewaydomain.GatewayOrder, error) {
	return firstOrder(db.WithContext(ctx).Where("provider = ? AND provider_payment_id = ?", provider, providerPaymentID))
}

func (r *repo) FindSchoolOrder(ctx context.Context, db *gorm.DB, schoolID snowflake.ID, providerOrderID string) (*gatewaydomain.GatewayOrder, error) {
	return firstOrder(db.WithContext(ctx).Where("school_id = ? AND provider_order_id = ?", schoolID, providerOrderID))
}

func (r *repo) MarkCaptured(ctx context.Context, db *gorm.DB, id snowflake.ID, providerPaymentID string, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE gateway_orders
		 SET status = ?, provider_payment_id = ?, captured_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		gatewaydomain.OrderStatusCaptured,
		providerPaymentID,
		at,
		at,
		id,
		gatewaydomain.OrderStatusCreated,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) MarkRecorded(ctx context.Context, db *gorm.DB, id, paymentID snowflake.ID, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE gateway_orders
		 SET status = ?, payment_id = ?, recorded_at = ?, failure_reason = NULL, updated_at = ?
		 WHERE id = ? AND status IN (?, ?)`,
		gatewaydomain.OrderStatusRecorded,
		paymentID,
		at,
		at,
		id,
		gatewaydomain.OrderStatusCreated,
		gatewaydomain.OrderStatusCaptured,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE gateway_orders
		 SET status = ?, failure_reason = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		gatewaydomain.OrderStatusFailed,
		reason,
		at,
		id,
		gatewaydomain.OrderStatusCreated,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) SetFailureReason(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE gateway_orders SET failure_reason = ?, updated_at = ? WHERE id = ?`,
		reason,
		at,
		id,
	).Error
}

// ExpireStale moves at most limit created orders past expires_at to expired.
func (r *repo) ExpireStale(ctx context.Context, db *gorm.DB, now time.Time, limit int) (int64, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).Model(&gatewaydomain.GatewayOrder{}).
		Where("status = ? AND expires_at < ?", gatewaydomain.OrderStatusCreated, now).
		Order("expires_at asc").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	res := db.WithContext(ctx).Exec(
		`UPDATE gateway_orders SET status = ?, updated_at = ?
		 WHERE id IN ? AND status = ? AND expires_at < ?`,
		gatewaydomain.OrderStatusExpired,
		now,
		ids,
		gatewaydomain.OrderStatusCreated,
		now,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// InsertEvent stores a delivery. It reports false when the provider already
// delivered an event with the same id.
func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, e *gatewaydomain.GatewayEvent) (bool, error) {
	res := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(e)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) UpdateEventStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status gatewaydomain.EventStatus, schoolID *snowflake.ID, errMsg *string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE gateway_events SET status = ?, school_id = COALESCE(?, school_id), error = ? WHERE id = ?`,
		status,
		schoolID,
		errMsg,
		id,
	).Error
}

func firstOrder(stmt *gorm.DB) (*gatewaydomain.GatewayOrder, error) {
	var order gatewaydomain.GatewayOrder
	err := stmt.Take(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}
