package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type ActorType string

const (
	ActorTypeSystem  ActorType = "system"
	ActorTypeAPIKey  ActorType = "api_key"
	ActorTypeGateway ActorType = "gateway"
)

// Actions recorded by the fee services.
const (
	ActionInvoiceCreated       = "invoice.created"
	ActionInvoiceCancelled     = "invoice.cancelled"
	ActionInvoiceLateFee       = "invoice.late_fee_assessed"
	ActionPaymentRecorded      = "payment.recorded"
	ActionPaymentRefunded      = "payment.refunded"
	ActionGatewayOrderCreated  = "gateway.order_created"
	ActionGatewaySignatureFail = "gateway.signature_rejected"
	ActionGatewayOrderFailed   = "gateway.order_failed"
	ActionGatewayApplyFailed   = "gateway.apply_failed"
	ActionAPIKeyCreated        = "api_key.created"
	ActionAPIKeyRotated        = "api_key.rotated"
	ActionAPIKeyRevoked        = "api_key.revoked"
)

type AuditLog struct {
	ID         snowflake.ID      `json:"id" gorm:"primaryKey"`
	SchoolID   snowflake.ID      `json:"school_id" gorm:"not null;index:idx_audit_logs_school_created,priority:1"`
	ActorType  string            `json:"actor_type" gorm:"type:text;not null"`
	ActorID    *string           `json:"actor_id,omitempty" gorm:"type:text"`
	Action     string            `json:"action" gorm:"type:text;not null"`
	TargetType string            `json:"target_type" gorm:"type:text;not null"`
	TargetID   *string           `json:"target_id,omitempty" gorm:"type:text"`
	Metadata   datatypes.JSONMap `json:"metadata,omitempty"`
	IPAddress  *string           `json:"ip_address,omitempty" gorm:"type:text"`
	UserAgent  *string           `json:"user_agent,omitempty" gorm:"type:text"`
	CreatedAt  time.Time         `json:"created_at" gorm:"not null;index:idx_audit_logs_school_created,priority:2"`
}

func (AuditLog) TableName() string { return "audit_logs" }

type AuditCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type ListFilter struct {
	SchoolID   snowflake.ID
	Action     string
	TargetType string
	TargetID   string
	ActorType  string
	StartAt    *time.Time
	EndAt      *time.Time
	Cursor     *AuditCursor
	Limit      int
}
