package domain

import "errors"

var (
	ErrProviderNotFound    = errors.New("provider_not_found")
	ErrProviderUnavailable = errors.New("provider_unavailable")
	ErrInvalidConfig       = errors.New("invalid_provider_config")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrInvalidRequest      = errors.New("invalid_request")
	ErrOrderNotFound       = errors.New("order_not_found")
	ErrOrderClosed         = errors.New("order_closed")
	ErrInvalidSignature    = errors.New("invalid_signature")
	ErrInvalidPayload      = errors.New("invalid_payload")
	ErrEventIgnored        = errors.New("event_ignored")
	ErrAmountMismatch      = errors.New("amount_mismatch")
	ErrCallbackUnsupported = errors.New("callback_unsupported")
	ErrReconciliation      = errors.New("reconciliation_pending")
)
