package domain

import "errors"

var (
	ErrInvoiceNotFound    = errors.New("invoice_not_found")
	ErrInvalidAmount      = errors.New("invalid_amount")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrInvalidStatus      = errors.New("invalid_status")
	ErrInvalidPageToken   = errors.New("invalid_page_token")
	ErrOverpayment        = errors.New("overpayment")
	ErrInvoiceCancelled   = errors.New("invoice_cancelled")
	ErrInvoicePaid        = errors.New("invoice_already_paid")
	ErrInvoiceHasPayments = errors.New("invoice_has_payments")
	ErrStaleBalance       = errors.New("stale_balance")
)
