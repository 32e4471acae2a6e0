package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/dev-orchid/shiksha-sub001/internal/audit/domain"
	"github.com/dev-orchid/shiksha-sub001/internal/clock"
	"github.com/dev-orchid/shiksha-sub001/internal/config"
	gatewaydomain "github.com/dev-orchid/shiksha-sub001/internal/gateway/domain"
	"github.com/dev-orchid/shiksha-sub001/internal/gateway/providers"
	invoicedomain "github.com/dev-orchid/shiksha-sub001/internal/invoice/domain"
	"github.com/dev-orchid/shiksha-sub001/internal/observability/metrics"
	schooldomain "github.com/dev-orchid/shiksha-sub001/internal/school/domain"
	"github.com/oklog/ulid/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	DisplayVerifying = "verifying"
	DisplayPaid      = "paid"
	DisplayFailed    = "failed"
	DisplayExpired   = "expired"
)

type BrokerParams struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Config      config.Config
	Policy      *config.FeePolicyHolder
	Registry    *providers.Registry
	Repo        gatewaydomain.Repository
	InvoiceRepo invoicedomain.Repository
	SchoolRepo  schooldomain.Repository
	AuditSvc    auditdomain.Service
	Metrics     *metrics.Metrics `optional:"true"`
}

type Broker struct {
	db  *gorm.DB
	log *zap.Logger

	genID       *snowflake.Node
	clock       clock.Clock
	currency    string
	policy      *config.FeePolicyHolder
	registry    *providers.Registry
	repo        gatewaydomain.Repository
	invoiceRepo invoicedomain.Repository
	schoolRepo  schooldomain.Repository
	auditSvc    auditdomain.Service
	metrics     *metrics.Metrics
}

func NewBroker(p BrokerParams) gatewaydomain.Broker {
	currency := strings.ToUpper(strings.TrimSpace(p.Config.Currency))
	if currency == "" {
		currency = "INR"
	}
	return &Broker{
		db:          p.DB,
		log:         p.Log.Named("gateway.broker"),
		genID:       p.GenID,
		clock:       p.Clock,
		currency:    currency,
		policy:      p.Policy,
		registry:    p.Registry,
		repo:        p.Repo,
		invoiceRepo: p.InvoiceRepo,
		schoolRepo:  p.SchoolRepo,
		auditSvc:    p.AuditSvc,
		metrics:     p.Metrics,
	}
}

func (b *Broker) CreateOrder(ctx context.Context, schoolID snowflake.ID, req gatewaydomain.CreateOrderRequest) (*gatewaydomain.Checkout, error) {
	provider, err := b.registry.Get(req.Provider)
	if err != nil {
		return nil, err
	}
	if !req.Amount.IsPositive() {
		return nil, invoicedomain.ErrInvalidAmount
	}

	// Advisory read; the recorder re-checks the balance under lock at capture time.
	inv, err := b.invoiceRepo.FindByID(ctx, b.db, schoolID, req.InvoiceID)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, invoicedomain.ErrInvoiceNotFound
	}
	if inv.CancelledAt != nil {
		return nil, invoicedomain.ErrInvoiceCancelled
	}
	balance := invoicedomain.ComputeBalance(*inv)
	if !balance.IsPositive() || req.Amount.GreaterThan(balance) {
		return nil, invoicedomain.ErrStaleBalance
	}

	currency, schoolName, err := b.schoolCurrency(ctx, schoolID)
	if err != nil {
		return nil, err
	}
	minor, err := gatewaydomain.ToMinor(req.Amount, currency)
	if err != nil {
		return nil, invoicedomain.ErrInvalidAmount
	}

	now := b.clock.Now().UTC()
	receipt := ulid.Make().String()
	description := "Fee invoice " + inv.InvoiceNumber
	providerOrder, err := provider.CreateOrder(ctx, gatewaydomain.OrderRequest{
		AmountMinor: minor,
		Currency:    currency,
		Receipt:     receipt,
		Notes: map[string]string{
			"invoice_id": inv.ID.String(),
			"school_id":  schoolID.String(),
		},
		Customer:    req.Customer,
		Description: description,
	})
	b.metrics.RecordGatewayOrder(ctx, provider.Name(), err)
	if err != nil {
		b.log.Warn("provider order creation failed",
			zap.String("school_id", schoolID.String()),
			zap.String("invoice_id", inv.ID.String()),
			zap.String("provider", provider.Name()),
			zap.Error(err),
		)
		if auditErr := b.auditSvc.AuditLog(ctx, schoolID, auditdomain.Entry{
			Action:     auditdomain.ActionGatewayOrderFailed,
			TargetType: "invoice",
			TargetID:   inv.ID.String(),
			Metadata:   map[string]any{"provider": provider.Name(), "error": err.Error()},
		}); auditErr != nil {
			b.log.Warn("audit write failed", zap.Error(auditErr))
		}
		return nil, fmt.Errorf("create provider order: %w", err)
	}
	if providerOrder.AmountMinor != 0 && providerOrder.AmountMinor != minor {
		return nil, gatewaydomain.ErrAmountMismatch
	}

	order := gatewaydomain.GatewayOrder{
		ID:              b.genID.Generate(),
		SchoolID:        schoolID,
		InvoiceID:       inv.ID,
		Provider:        provider.Name(),
		ProviderOrderID: providerOrder.ID,
		Amount:          req.Amount,
		AmountMinor:     minor,
		Currency:        currency,
		Receipt:         receipt,
		Status:          gatewaydomain.OrderStatusCreated,
		CreatedAt:       now,
		ExpiresAt:       now.Add(b.policy.For(schoolID.String()).OrderTTL),
		UpdatedAt:       now,
	}
	err = b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := b.repo.InsertOrder(ctx, tx, &order); err != nil {
			return fmt.Errorf("insert gateway order: %w", err)
		}
		return b.auditSvc.AuditLogTx(ctx, tx, schoolID, auditdomain.Entry{
			Action:     auditdomain.ActionGatewayOrderCreated,
			TargetType: "gateway_order",
			TargetID:   order.ProviderOrderID,
			Metadata: map[string]any{
				"provider":   order.Provider,
				"invoice_id": order.InvoiceID.String(),
				"amount":     order.Amount.StringFixed(2),
				"currency":   order.Currency,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	b.log.Info("gateway order created",
		zap.String("school_id", schoolID.String()),
		zap.String("invoice_id", inv.ID.String()),
		zap.String("provider", order.Provider),
		zap.String("order_id", order.ProviderOrderID),
		zap.Int64("amount_minor", minor),
	)
	return &gatewaydomain.Checkout{
		Provider:    order.Provider,
		OrderID:     order.ProviderOrderID,
		Key:         provider.CheckoutKey(),
		Amount:      order.Amount,
		AmountMinor: order.AmountMinor,
		Currency:    order.Currency,
		Name:        schoolName,
		Description: description,
		Prefill:     req.Customer,
		RedirectURL: providerOrder.RedirectURL,
		Token:       providerOrder.Token,
		ExpiresAt:   order.ExpiresAt,
	}, nil
}

func (b *Broker) GetOrder(ctx context.Context, schoolID snowflake.ID, orderID string) (*gatewaydomain.OrderView, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, gatewaydomain.ErrOrderNotFound
	}
	order, err := b.repo.FindSchoolOrder(ctx, b.db, schoolID, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, gatewaydomain.ErrOrderNotFound
	}
	view := NewOrderView(*order)
	return &view, nil
}

func (b *Broker) ExpireStale(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	n, err := b.repo.ExpireStale(ctx, b.db, now.UTC(), limit)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		b.log.Info("expired stale gateway orders", zap.Int64("count", n))
	}
	return int(n), nil
}

func (b *Broker) schoolCurrency(ctx context.Context, schoolID snowflake.ID) (string, string, error) {
	school, err := b.schoolRepo.FindByID(ctx, b.db, schoolID)
	if err != nil {
		return "", "", err
	}
	if school == nil {
		return b.currency, "", nil
	}
	currency := strings.ToUpper(strings.TrimSpace(school.Currency))
	if currency == "" {
		currency = b.currency
	}
	return currency, school.Name, nil
}

// NewOrderView reports "paid" only once the payment row is linked.
func NewOrderView(order gatewaydomain.GatewayOrder) gatewaydomain.OrderView {
	display := DisplayVerifying
	switch order.Status {
	case gatewaydomain.OrderStatusRecorded:
		if order.PaymentID != nil {
			display = DisplayPaid
		}
	case gatewaydomain.OrderStatusFailed:
		display = DisplayFailed
	case gatewaydomain.OrderStatusExpired:
		display = DisplayExpired
	}
	return gatewaydomain.OrderView{
		OrderID:   order.ProviderOrderID,
		Provider:  order.Provider,
		InvoiceID: order.InvoiceID,
		Status:    order.Status,
		Display:   display,
		PaymentID: order.PaymentID,
		Amount:    order.Amount.StringFixed(2),
		Currency:  order.Currency,
	}
}
