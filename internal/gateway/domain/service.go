package domain

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/dev-orchid/shiksha-sub001/internal/payment/domain"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type CreateOrderRequest struct {
	InvoiceID snowflake.ID    `json:"invoice_id"`
	Amount    decimal.Decimal `json:"amount"`
	Customer  Customer        `json:"customer"`
	Provider  string          `json:"provider,omitempty"`
}

// Checkout carries everything the browser needs to open the provider checkout.
type Checkout struct {
	Provider    string          `json:"provider"`
	OrderID     string          `json:"order_id"`
	Key         string          `json:"key"`
	Amount      decimal.Decimal `json:"amount"`
	AmountMinor int64           `json:"amount_minor"`
	Currency    string          `json:"currency"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Prefill     Customer        `json:"prefill"`
	RedirectURL string          `json:"redirect_url,omitempty"`
	Token       string          `json:"token,omitempty"`
	ExpiresAt   time.Time       `json:"expires_at"`
}

type OrderView struct {
	OrderID   string       `json:"order_id"`
	Provider  string       `json:"provider"`
	InvoiceID snowflake.ID `json:"invoice_id"`
	Status    OrderStatus  `json:"status"`
	// Display is "verifying" until the payment row is committed.
	Display   string        `json:"display"`
	PaymentID *snowflake.ID `json:"payment_id,omitempty"`
	Amount    string        `json:"amount"`
	Currency  string        `json:"currency"`
}

type VerifyResult struct {
	Order     GatewayOrder          `json:"order"`
	Payment   paymentdomain.Payment `json:"payment"`
	Duplicate bool                  `json:"duplicate"`
}

type Broker interface {
	CreateOrder(ctx context.Context, schoolID snowflake.ID, req CreateOrderRequest) (*Checkout, error)
	GetOrder(ctx context.Context, schoolID snowflake.ID, orderID string) (*OrderView, error)
	ExpireStale(ctx context.Context, now time.Time, limit int) (int, error)
}

type Verifier interface {
	VerifyCallback(ctx context.Context, schoolID snowflake.ID, provider string, cb Callback) (*VerifyResult, error)
	VerifyWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) (*VerifyResult, error)
}

type Repository interface {
	InsertOrder(ctx context.Context, db *gorm.DB, order *GatewayOrder) error
	FindOrder(ctx context.Context, db *gorm.DB, provider, providerOrderID string) (*GatewayOrder, error)
	FindOrderForUpdate(ctx context.Context, db *gorm.DB, provider, providerOrderID string) (*GatewayOrder, error)
	FindOrderByProviderPayment(ctx context.Context, db *gorm.DB, provider, providerPaymentID string) (*GatewayOrder, error)
	FindSchoolOrder(ctx context.Context, db *gorm.DB, schoolID snowflake.ID, providerOrderID string) (*GatewayOrder, error)
	MarkCaptured(ctx context.Context, db *gorm.DB, id snowflake.ID, providerPaymentID string, at time.Time) (bool, error)
	MarkRecorded(ctx context.Context, db *gorm.DB, id, paymentID snowflake.ID, at time.Time) (bool, error)
	MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string, at time.Time) (bool, error)
	SetFailureReason(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string, at time.Time) error
	ExpireStale(ctx context.Context, db *gorm.DB, now time.Time, limit int) (int64, error)

	InsertEvent(ctx context.Context, db *gorm.DB, event *GatewayEvent) (bool, error)
	UpdateEventStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status EventStatus, schoolID *snowflake.ID, errMsg *string) error
}
