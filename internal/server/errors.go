package server

import (
	"errors"
	"net/http"
	"strings"

	apikeydomain "github.com/dev-orchid/shiksha-sub001/internal/apikey/domain"
	auditdomain "github.com/dev-orchid/shiksha-sub001/internal/audit/domain"
	gatewaydomain "github.com/dev-orchid/shiksha-sub001/internal/gateway/domain"
	invoicedomain "github.com/dev-orchid/shiksha-sub001/internal/invoice/domain"
	paymentdomain "github.com/dev-orchid/shiksha-sub001/internal/payment/domain"
	schooldomain "github.com/dev-orchid/shiksha-sub001/internal/school/domain"
	"github.com/dev-orchid/shiksha-sub001/pkg/db/pagination"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Code    string            `json:"code,omitempty"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
	ErrRateLimited    = errors.New("rate_limited")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if code, ok := validationCode(err); ok {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Code:    code,
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: err.Error(),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, apikeydomain.ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case errors.Is(err, gatewaydomain.ErrInvalidSignature):
		return http.StatusUnauthorized, errorPayload{
			Type:    "invalid_signature",
			Message: "verification failed",
		}
	case errors.Is(err, invoicedomain.ErrOverpayment),
		errors.Is(err, invoicedomain.ErrStaleBalance):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Code:    conflictCode(err),
			Message: "balance changed, please refresh and retry",
		}
	case isConflictError(err):
		code := conflictCode(err)
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Code:    code,
			Message: strings.ReplaceAll(code, "_", " "),
		}
	case errors.Is(err, gatewaydomain.ErrAmountMismatch):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "amount_mismatch",
			Message: "payment could not be applied",
		}
	case errors.Is(err, gatewaydomain.ErrReconciliation):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "reconciliation_pending",
			Message: "verifying payment, retry",
		}
	case errors.Is(err, gatewaydomain.ErrProviderUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "provider_unavailable",
			Message: "payment provider unavailable, retry",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog feeds the request logger the same type and code the client sees.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := payload.Code
	if code == "" {
		code = payload.Type
	}
	return payload.Type, code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

var validationSentinels = []error{
	ErrInvalidRequest,
	invoicedomain.ErrInvalidRequest,
	invoicedomain.ErrInvalidAmount,
	invoicedomain.ErrInvalidStatus,
	invoicedomain.ErrInvalidPageToken,
	paymentdomain.ErrInvalidMode,
	paymentdomain.ErrMissingReference,
	gatewaydomain.ErrInvalidRequest,
	gatewaydomain.ErrInvalidAmount,
	gatewaydomain.ErrInvalidPayload,
	gatewaydomain.ErrProviderNotFound,
	schooldomain.ErrInvalidName,
	schooldomain.ErrInvalidCurrency,
	apikeydomain.ErrInvalidName,
	apikeydomain.ErrInvalidKeyID,
	apikeydomain.ErrInvalidScope,
	apikeydomain.ErrInvalidSchool,
	auditdomain.ErrInvalidSchool,
	auditdomain.ErrInvalidPageToken,
	auditdomain.ErrInvalidTimeRange,
	auditdomain.ErrInvalidAction,
	pagination.ErrInvalidPageToken,
}

func validationCode(err error) (string, bool) {
	for _, sentinel := range validationSentinels {
		if errors.Is(err, sentinel) {
			return sentinel.Error(), true
		}
	}
	return "", false
}

var conflictSentinels = []error{
	invoicedomain.ErrOverpayment,
	invoicedomain.ErrStaleBalance,
	invoicedomain.ErrInvoiceCancelled,
	invoicedomain.ErrInvoicePaid,
	invoicedomain.ErrInvoiceHasPayments,
	paymentdomain.ErrAlreadyRefunded,
	paymentdomain.ErrNotRefundable,
	paymentdomain.ErrDuplicateTransfer,
	gatewaydomain.ErrOrderClosed,
}

func isConflictError(err error) bool {
	return conflictCode(err) != ""
}

func conflictCode(err error) string {
	for _, sentinel := range conflictSentinels {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return ""
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, invoicedomain.ErrInvoiceNotFound),
		errors.Is(err, paymentdomain.ErrPaymentNotFound),
		errors.Is(err, gatewaydomain.ErrOrderNotFound),
		errors.Is(err, schooldomain.ErrSchoolNotFound),
		errors.Is(err, apikeydomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request", "invalid_payload":
		return "request"
	case "invalid_payment_mode":
		return "payment_mode"
	case "missing_transaction_id":
		return "transaction_id"
	case "provider_not_found":
		return "provider"
	}
	return strings.TrimPrefix(code, "invalid_")
}
