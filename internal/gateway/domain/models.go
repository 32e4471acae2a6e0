package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type OrderStatus string

const (
	OrderStatusCreated  OrderStatus = "created"
	OrderStatusCaptured OrderStatus = "captured"
	OrderStatusRecorded OrderStatus = "recorded"
	OrderStatusFailed   OrderStatus = "failed"
	OrderStatusExpired  OrderStatus = "expired"
)

// Closed reports whether no capture may be applied in this state.
func (s OrderStatus) Closed() bool {
	return s == OrderStatusFailed || s == OrderStatusExpired
}

// GatewayOrder tracks one checkout attempt with a provider. It never moves
// money by itself; only a verified capture produces a payment.
type GatewayOrder struct {
	ID                snowflake.ID    `json:"id" gorm:"primaryKey"`
	SchoolID          snowflake.ID    `json:"school_id" gorm:"not null;index"`
	InvoiceID         snowflake.ID    `json:"invoice_id" gorm:"not null;index"`
	Provider          string          `json:"provider" gorm:"type:text;not null;uniqueIndex:ux_gateway_orders_provider_order,priority:1;uniqueIndex:ux_gateway_orders_provider_payment,priority:1"`
	ProviderOrderID   string          `json:"provider_order_id" gorm:"type:text;not null;uniqueIndex:ux_gateway_orders_provider_order,priority:2"`
	Amount            decimal.Decimal `json:"amount" gorm:"type:numeric(14,2);not null"`
	AmountMinor       int64           `json:"amount_minor" gorm:"not null"`
	Currency          string          `json:"currency" gorm:"type:text;not null"`
	Receipt           string          `json:"receipt" gorm:"type:text;not null"`
	Status            OrderStatus     `json:"status" gorm:"type:text;not null;index:idx_gateway_orders_status_expiry,priority:1"`
	ProviderPaymentID *string         `json:"provider_payment_id,omitempty" gorm:"type:text;uniqueIndex:ux_gateway_orders_provider_payment,priority:2"`
	PaymentID         *snowflake.ID   `json:"payment_id,omitempty" gorm:"uniqueIndex:ux_gateway_orders_payment"`
	FailureReason     *string         `json:"failure_reason,omitempty" gorm:"type:text"`
	CreatedAt         time.Time       `json:"created_at" gorm:"not null"`
	CapturedAt        *time.Time      `json:"captured_at,omitempty"`
	RecordedAt        *time.Time      `json:"recorded_at,omitempty"`
	ExpiresAt         time.Time       `json:"expires_at" gorm:"not null;index:idx_gateway_orders_status_expiry,priority:2"`
	UpdatedAt         time.Time       `json:"updated_at" gorm:"not null"`
}

func (GatewayOrder) TableName() string { return "gateway_orders" }

type EventStatus string

const (
	EventStatusReceived  EventStatus = "received"
	EventStatusApplied   EventStatus = "applied"
	EventStatusDuplicate EventStatus = "duplicate"
	EventStatusIgnored   EventStatus = "ignored"
	EventStatusRejected  EventStatus = "rejected"
	EventStatusFailed    EventStatus = "failed"
)

// GatewayEvent is the delivery log of provider webhooks, kept for operator
// reconciliation. Rejected deliveries are stored too.
type GatewayEvent struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider        string         `json:"provider" gorm:"type:text;not null;uniqueIndex:ux_gateway_events_provider_event,priority:1"`
	ProviderEventID *string        `json:"provider_event_id,omitempty" gorm:"type:text;uniqueIndex:ux_gateway_events_provider_event,priority:2"`
	EventType       string         `json:"event_type" gorm:"type:text;not null"`
	ProviderOrderID *string        `json:"provider_order_id,omitempty" gorm:"type:text;index"`
	SchoolID        *snowflake.ID  `json:"school_id,omitempty"`
	SignatureValid  bool           `json:"signature_valid" gorm:"not null"`
	Status          EventStatus    `json:"status" gorm:"type:text;not null"`
	Payload         datatypes.JSON `json:"payload,omitempty"`
	Error           *string        `json:"error,omitempty" gorm:"type:text"`
	ReceivedAt      time.Time      `json:"received_at" gorm:"not null"`
}

func (GatewayEvent) TableName() string { return "gateway_events" }
