package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/dev-orchid/shiksha-sub001/internal/audit/domain"
	"github.com/dev-orchid/shiksha-sub001/internal/clock"
	gatewaydomain "github.com/dev-orchid/shiksha-sub001/internal/gateway/domain"
	"github.com/dev-orchid/shiksha-sub001/internal/gateway/providers"
	obscontext "github.com/dev-orchid/shiksha-sub001/internal/observability/context"
	"github.com/dev-orchid/shiksha-sub001/internal/observability/metrics"
	paymentdomain "github.com/dev-orchid/shiksha-sub001/internal/payment/domain"
	"github.com/dev-orchid/shiksha-sub001/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	sourceCallback = "callback"
	sourceWebhook  = "webhook"

	defaultMaxAttempts = 3
	defaultBackoff     = 50 * time.Millisecond
)

// errContended marks a guarded transition that matched no row under lock.
var errContended = errors.New("gateway order transition contended")

type VerifierParams struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Registry   *providers.Registry
	Repo       gatewaydomain.Repository
	PaymentSvc paymentdomain.Service
	AuditSvc   auditdomain.Service
	Metrics    *metrics.Metrics `optional:"true"`
}

type Verifier struct {
	db  *gorm.DB
	log *zap.Logger

	genID      *snowflake.Node
	clock      clock.Clock
	registry   *providers.Registry
	repo       gatewaydomain.Repository
	paymentSvc paymentdomain.Service
	auditSvc   auditdomain.Service
	metrics    *metrics.Metrics

	maxAttempts int
	backoff     time.Duration
}

func NewVerifier(p VerifierParams) gatewaydomain.Verifier {
	return newVerifier(p)
}

func newVerifier(p VerifierParams) *Verifier {
	return &Verifier{
		db:          p.DB,
		log:         p.Log.Named("gateway.verifier"),
		genID:       p.GenID,
		clock:       p.Clock,
		registry:    p.Registry,
		repo:        p.Repo,
		paymentSvc:  p.PaymentSvc,
		auditSvc:    p.AuditSvc,
		metrics:     p.Metrics,
		maxAttempts: defaultMaxAttempts,
		backoff:     defaultBackoff,
	}
}

// capture is one provider report that money was taken for an order.
type capture struct {
	ProviderOrderID string
	PaymentID       string
	AmountMinor     int64
	// SchoolID scopes callbacks to the authenticated school. Webhooks leave it
	// nil and trust only the stored order row.
	SchoolID *snowflake.ID
}

func (v *Verifier) VerifyCallback(ctx context.Context, schoolID snowflake.ID, providerName string, cb gatewaydomain.Callback) (*gatewaydomain.VerifyResult, error) {
	provider, err := v.registry.Get(providerName)
	if err != nil {
		return nil, err
	}
	if err := provider.VerifyCallback(cb); err != nil {
		if errors.Is(err, gatewaydomain.ErrCallbackUnsupported) {
			return nil, err
		}
		v.rejectCallback(ctx, schoolID, provider.Name(), cb)
		return nil, gatewaydomain.ErrInvalidSignature
	}

	res, err := v.apply(ctx, provider.Name(), sourceCallback, capture{
		ProviderOrderID: strings.TrimSpace(cb.OrderID),
		PaymentID:       strings.TrimSpace(cb.PaymentID),
		SchoolID:        &schoolID,
	})
	v.metrics.RecordVerification(ctx, provider.Name(), sourceCallback, resultLabel(res, err))
	return res, err
}

func (v *Verifier) VerifyWebhook(ctx context.Context, providerName string, payload []byte, headers http.Header) (*gatewaydomain.VerifyResult, error) {
	provider, err := v.registry.Get(providerName)
	if err != nil {
		return nil, err
	}

	event := gatewaydomain.GatewayEvent{
		ID:         v.genID.Generate(),
		Provider:   provider.Name(),
		EventType:  "unknown",
		Status:     gatewaydomain.EventStatusReceived,
		ReceivedAt: v.clock.Now().UTC(),
	}
	if json.Valid(payload) {
		event.Payload = datatypes.JSON(payload)
	}

	if err := provider.VerifyWebhook(payload, headers); err != nil {
		event.Status = gatewaydomain.EventStatusRejected
		event.Error = ptr("signature verification failed")
		v.storeEvent(ctx, &event)
		ip, _ := obscontext.ClientFromContext(ctx)
		v.log.Warn("webhook signature rejected",
			zap.String("provider", provider.Name()),
			zap.String("event_id", event.ID.String()),
			zap.String("client_ip", ip),
			zap.Int("payload_bytes", len(payload)),
		)
		v.metrics.RecordVerification(ctx, provider.Name(), sourceWebhook, metrics.VerificationInvalidSignature)
		return nil, gatewaydomain.ErrInvalidSignature
	}
	event.SignatureValid = true

	parsed, err := provider.ParseWebhook(payload, headers)
	if err != nil {
		event.Status = gatewaydomain.EventStatusRejected
		event.Error = ptr(err.Error())
		v.storeEvent(ctx, &event)
		v.metrics.RecordVerification(ctx, provider.Name(), sourceWebhook, metrics.VerificationFailed)
		return nil, err
	}
	event.EventType = parsed.RawType
	if parsed.EventID != "" {
		event.ProviderEventID = ptr(parsed.EventID)
	}
	if parsed.ProviderOrderID != "" {
		event.ProviderOrderID = ptr(parsed.ProviderOrderID)
	}
	firstDelivery := v.storeEvent(ctx, &event)

	var (
		res       *gatewaydomain.VerifyResult
		verifyErr error
	)
	switch parsed.Type {
	case gatewaydomain.WebhookPaymentCaptured:
		res, verifyErr = v.apply(ctx, provider.Name(), sourceWebhook, capture{
			ProviderOrderID: parsed.ProviderOrderID,
			PaymentID:       parsed.PaymentID,
			AmountMinor:     parsed.AmountMinor,
		})
	case gatewaydomain.WebhookPaymentFailed:
		res, verifyErr = v.fail(ctx, provider.Name(), parsed)
	default:
		verifyErr = gatewaydomain.ErrEventIgnored
	}

	v.finishEvent(ctx, event, firstDelivery, res, verifyErr)
	v.metrics.RecordVerification(ctx, provider.Name(), sourceWebhook, resultLabel(res, verifyErr))
	return res, verifyErr
}

// apply runs the idempotent capture step, retrying transient contention.
func (v *Verifier) apply(ctx context.Context, providerName, source string, c capture) (*gatewaydomain.VerifyResult, error) {
	if c.ProviderOrderID == "" || c.PaymentID == "" {
		return nil, gatewaydomain.ErrInvalidPayload
	}
	logger := v.log.With(
		zap.String("provider", providerName),
		zap.String("source", source),
		zap.String("order_id", c.ProviderOrderID),
		zap.String("provider_payment_id", c.PaymentID),
	)

	var lastErr error
	for attempt := 1; attempt <= v.maxAttempts; attempt++ {
		res, err := v.applyOnce(ctx, providerName, c)
		if err == nil {
			if !res.Duplicate {
				logger.Info("gateway payment recorded",
					zap.String("school_id", res.Order.SchoolID.String()),
					zap.String("payment_id", res.Payment.ID.String()),
					zap.Int("attempt", attempt),
				)
			}
			return res, nil
		}

		switch {
		case errors.Is(err, paymentdomain.ErrDuplicateTransfer) || db.IsDuplicateKeyErr(err):
			// A concurrent delivery committed first.
			winner, readErr := v.readWinner(ctx, providerName, c)
			if readErr == nil && winner != nil {
				return winner, nil
			}
			lastErr = err
		case errors.Is(err, errContended) || db.IsRetryableErr(err):
			lastErr = err
		default:
			v.terminal(ctx, logger, providerName, c, err)
			return nil, err
		}

		if attempt < v.maxAttempts {
			logger.Warn("gateway apply contended, retrying", zap.Int("attempt", attempt), zap.Error(lastErr))
			if err := sleep(ctx, time.Duration(attempt)*v.backoff); err != nil {
				return nil, err
			}
		}
	}

	logger.Error("gateway apply gave up", zap.Int("attempts", v.maxAttempts), zap.Error(lastErr))
	return nil, fmt.Errorf("%w: %v", gatewaydomain.ErrReconciliation, lastErr)
}

func (v *Verifier) applyOnce(ctx context.Context, providerName string, c capture) (*gatewaydomain.VerifyResult, error) {
	var result *gatewaydomain.VerifyResult
	err := v.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := v.repo.FindOrderForUpdate(ctx, tx, providerName, c.ProviderOrderID)
		if err != nil {
			return fmt.Errorf("load gateway order: %w", err)
		}
		if order == nil || (c.SchoolID != nil && *c.SchoolID != order.SchoolID) {
			return gatewaydomain.ErrOrderNotFound
		}

		if order.PaymentID != nil {
			payment, err := v.paymentSvc.GetPayment(ctx, tx, order.SchoolID, *order.PaymentID)
			if err != nil {
				return err
			}
			if order.ProviderPaymentID != nil && *order.ProviderPaymentID != c.PaymentID {
				v.log.Error("second provider payment reported for a recorded order",
					zap.String("school_id", order.SchoolID.String()),
					zap.String("order_id", order.ProviderOrderID),
					zap.String("recorded_provider_payment_id", *order.ProviderPaymentID),
					zap.String("provider_payment_id", c.PaymentID),
				)
			}
			result = &gatewaydomain.VerifyResult{Order: *order, Payment: *payment, Duplicate: true}
			return nil
		}
		if order.Status.Closed() {
			return gatewaydomain.ErrOrderClosed
		}
		if c.AmountMinor != 0 && !gatewaydomain.FromMinor(c.AmountMinor, order.Currency).Equal(order.Amount) {
			return gatewaydomain.ErrAmountMismatch
		}

		now := v.clock.Now().UTC()
		if order.Status == gatewaydomain.OrderStatusCreated {
			ok, err := v.repo.MarkCaptured(ctx, tx, order.ID, c.PaymentID, now)
			if err != nil {
				return err
			}
			if !ok {
				return errContended
			}
			order.Status = gatewaydomain.OrderStatusCaptured
			order.ProviderPaymentID = ptr(c.PaymentID)
			order.CapturedAt = &now
		}

		payment, err := v.paymentSvc.FindByTransaction(ctx, tx, order.SchoolID, c.PaymentID)
		if err != nil {
			return err
		}
		duplicate := payment != nil
		if payment == nil {
			recorded, err := v.paymentSvc.RecordPaymentTx(ctx, tx, order.SchoolID, paymentdomain.RecordRequest{
				InvoiceID:     order.InvoiceID,
				Amount:        order.Amount,
				Mode:          paymentdomain.ModeOnlineGateway,
				TransactionID: c.PaymentID,
				Notes:         "gateway order " + order.ProviderOrderID,
				RecordedBy:    "gateway:" + providerName,
			})
			if err != nil {
				return err
			}
			payment = &recorded.Payment
		}

		ok, err := v.repo.MarkRecorded(ctx, tx, order.ID, payment.ID, now)
		if err != nil {
			return err
		}
		if !ok {
			return errContended
		}
		order.Status = gatewaydomain.OrderStatusRecorded
		order.PaymentID = &payment.ID
		order.RecordedAt = &now
		order.FailureReason = nil
		result = &gatewaydomain.VerifyResult{Order: *order, Payment: *payment, Duplicate: duplicate}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// readWinner returns the payment committed by a concurrent delivery, if any.
func (v *Verifier) readWinner(ctx context.Context, providerName string, c capture) (*gatewaydomain.VerifyResult, error) {
	order, err := v.repo.FindOrder(ctx, v.db, providerName, c.ProviderOrderID)
	if err != nil || order == nil {
		return nil, err
	}
	var payment *paymentdomain.Payment
	if order.PaymentID != nil {
		payment, err = v.paymentSvc.GetPayment(ctx, v.db, order.SchoolID, *order.PaymentID)
	} else {
		payment, err = v.paymentSvc.FindByTransaction(ctx, v.db, order.SchoolID, c.PaymentID)
	}
	if err != nil || payment == nil {
		return nil, err
	}
	return &gatewaydomain.VerifyResult{Order: *order, Payment: *payment, Duplicate: true}, nil
}

// terminal records a capture that will not be applied automatically. The order
// is left captured with a failure reason so an operator can refund it.
func (v *Verifier) terminal(ctx context.Context, logger *zap.Logger, providerName string, c capture, cause error) {
	if errors.Is(cause, gatewaydomain.ErrOrderNotFound) || errors.Is(cause, context.Canceled) {
		logger.Warn("gateway capture for unknown order", zap.Error(cause))
		return
	}

	order, err := v.repo.FindOrder(ctx, v.db, providerName, c.ProviderOrderID)
	if err != nil || order == nil {
		logger.Error("gateway capture not applied", zap.Error(cause))
		return
	}
	logger = logger.With(zap.String("school_id", order.SchoolID.String()), zap.String("invoice_id", order.InvoiceID.String()))

	now := v.clock.Now().UTC()
	reason := cause.Error()
	err = v.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if order.Status == gatewaydomain.OrderStatusCreated {
			if _, err := v.repo.MarkCaptured(ctx, tx, order.ID, c.PaymentID, now); err != nil {
				return err
			}
		}
		if err := v.repo.SetFailureReason(ctx, tx, order.ID, reason, now); err != nil {
			return err
		}
		return v.auditSvc.AuditLogTx(ctx, tx, order.SchoolID, auditdomain.Entry{
			ActorType:  string(auditdomain.ActorTypeGateway),
			ActorID:    providerName,
			Action:     auditdomain.ActionGatewayApplyFailed,
			TargetType: "gateway_order",
			TargetID:   order.ProviderOrderID,
			Metadata: map[string]any{
				"reason":         reason,
				"transaction_id": c.PaymentID,
				"order_status":   string(order.Status),
			},
		})
	})
	if err != nil {
		logger.Error("failed to record gateway failure reason", zap.Error(err))
	}
	logger.Error("gateway capture requires manual reconciliation", zap.String("order_status", string(order.Status)), zap.Error(cause))
}

// fail moves a created order to failed. Other states are left alone.
func (v *Verifier) fail(ctx context.Context, providerName string, evt *gatewaydomain.WebhookEvent) (*gatewaydomain.VerifyResult, error) {
	reason := evt.Reason
	if reason == "" {
		reason = evt.RawType
	}

	var result *gatewaydomain.VerifyResult
	err := v.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := v.repo.FindOrderForUpdate(ctx, tx, providerName, evt.ProviderOrderID)
		if err != nil {
			return err
		}
		if order == nil {
			return gatewaydomain.ErrOrderNotFound
		}
		now := v.clock.Now().UTC()
		ok, err := v.repo.MarkFailed(ctx, tx, order.ID, reason, now)
		if err != nil {
			return err
		}
		if ok {
			order.Status = gatewaydomain.OrderStatusFailed
			order.FailureReason = &reason
			if err := v.auditSvc.AuditLogTx(ctx, tx, order.SchoolID, auditdomain.Entry{
				ActorType:  string(auditdomain.ActorTypeGateway),
				ActorID:    providerName,
				Action:     auditdomain.ActionGatewayOrderFailed,
				TargetType: "gateway_order",
				TargetID:   order.ProviderOrderID,
				Metadata:   map[string]any{"reason": reason},
			}); err != nil {
				return err
			}
		}
		result = &gatewaydomain.VerifyResult{Order: *order}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (v *Verifier) rejectCallback(ctx context.Context, schoolID snowflake.ID, providerName string, cb gatewaydomain.Callback) {
	ip, userAgent := obscontext.ClientFromContext(ctx)
	v.log.Warn("callback signature rejected",
		zap.String("school_id", schoolID.String()),
		zap.String("provider", providerName),
		zap.String("order_id", cb.OrderID),
		zap.String("provider_payment_id", cb.PaymentID),
		zap.String("client_ip", ip),
		zap.String("user_agent", userAgent),
		zap.String("request_id", obscontext.RequestIDFromContext(ctx)),
	)
	if err := v.auditSvc.AuditLog(ctx, schoolID, auditdomain.Entry{
		Action:     auditdomain.ActionGatewaySignatureFail,
		TargetType: "gateway_order",
		TargetID:   cb.OrderID,
		Metadata: map[string]any{
			"provider":       providerName,
			"transaction_id": cb.PaymentID,
			"signature":      cb.Signature,
		},
	}); err != nil {
		v.log.Warn("audit write failed", zap.Error(err))
	}
	v.metrics.RecordVerification(ctx, providerName, sourceCallback, metrics.VerificationInvalidSignature)
}

// storeEvent logs a delivery and reports whether it was the first with its
// provider event id. Repeated ids are stored without one so every delivery
// stays visible.
func (v *Verifier) storeEvent(ctx context.Context, event *gatewaydomain.GatewayEvent) bool {
	inserted, err := v.repo.InsertEvent(ctx, v.db, event)
	if err != nil {
		v.log.Error("failed to store gateway event", zap.String("provider", event.Provider), zap.Error(err))
		return true
	}
	if inserted {
		return true
	}
	event.ProviderEventID = nil
	event.Status = gatewaydomain.EventStatusDuplicate
	if _, err := v.repo.InsertEvent(ctx, v.db, event); err != nil {
		v.log.Error("failed to store duplicate gateway event", zap.String("provider", event.Provider), zap.Error(err))
	}
	return false
}

func (v *Verifier) finishEvent(ctx context.Context, event gatewaydomain.GatewayEvent, firstDelivery bool, res *gatewaydomain.VerifyResult, verifyErr error) {
	status := gatewaydomain.EventStatusApplied
	var errMsg *string
	switch {
	case errors.Is(verifyErr, gatewaydomain.ErrEventIgnored):
		status = gatewaydomain.EventStatusIgnored
	case verifyErr != nil:
		status = gatewaydomain.EventStatusFailed
		errMsg = ptr(verifyErr.Error())
	case !firstDelivery || (res != nil && res.Duplicate):
		status = gatewaydomain.EventStatusDuplicate
	}

	var schoolID *snowflake.ID
	if res != nil {
		schoolID = &res.Order.SchoolID
	}
	if err := v.repo.UpdateEventStatus(ctx, v.db, event.ID, status, schoolID, errMsg); err != nil {
		v.log.Warn("failed to update gateway event", zap.String("event_id", event.ID.String()), zap.Error(err))
	}
}

func resultLabel(res *gatewaydomain.VerifyResult, err error) string {
	switch {
	case err == nil && res != nil && res.Duplicate:
		return metrics.VerificationDuplicate
	case err == nil:
		return metrics.VerificationRecorded
	case errors.Is(err, gatewaydomain.ErrInvalidSignature):
		return metrics.VerificationInvalidSignature
	case errors.Is(err, gatewaydomain.ErrAmountMismatch):
		return metrics.VerificationAmountMismatch
	case errors.Is(err, gatewaydomain.ErrOrderClosed):
		return metrics.VerificationOrderClosed
	case errors.Is(err, gatewaydomain.ErrReconciliation):
		return metrics.VerificationReconciliationErr
	case errors.Is(err, gatewaydomain.ErrEventIgnored):
		return metrics.VerificationIgnored
	default:
		return metrics.VerificationFailed
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func ptr(value string) *string {
	return &value
}
