package domain

import (
	"context"
	"net/http"
)

// Provider is one payment gateway integration.
type Provider interface {
	Name() string
	CreateOrder(ctx context.Context, req OrderRequest) (*ProviderOrder, error)
	// CheckoutKey is the public key handed to the browser checkout.
	CheckoutKey() string
	VerifyCallback(cb Callback) error
	VerifyWebhook(payload []byte, headers http.Header) error
	// ParseWebhook reads a verified delivery. Headers carry the event id for
	// providers that do not put one in the body.
	ParseWebhook(payload []byte, headers http.Header) (*WebhookEvent, error)
}

type OrderRequest struct {
	AmountMinor int64
	Currency    string
	Receipt     string
	Notes       map[string]string
	Customer    Customer
	Description string
}

type ProviderOrder struct {
	ID          string
	AmountMinor int64
	Currency    string
	Status      string
	Token       string
	RedirectURL string
}

// Callback is what the browser checkout posts back after the provider reports success.
type Callback struct {
	OrderID   string `json:"order_id" binding:"required"`
	PaymentID string `json:"payment_id" binding:"required"`
	Signature string `json:"signature" binding:"required"`
}

type WebhookEventType string

const (
	WebhookPaymentCaptured WebhookEventType = "payment.captured"
	WebhookPaymentFailed   WebhookEventType = "payment.failed"
	WebhookOther           WebhookEventType = "other"
)

type WebhookEvent struct {
	EventID         string
	RawType         string
	Type            WebhookEventType
	ProviderOrderID string
	PaymentID       string
	// AmountMinor is zero when the provider did not echo an amount.
	AmountMinor int64
	Currency    string
	Reason      string
}

type Customer struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Contact string `json:"contact"`
}
