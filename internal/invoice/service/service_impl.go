package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/dev-orchid/shiksha-sub001/internal/audit/domain"
	"github.com/dev-orchid/shiksha-sub001/internal/clock"
	"github.com/dev-orchid/shiksha-sub001/internal/config"
	invoicedomain "github.com/dev-orchid/shiksha-sub001/internal/invoice/domain"
	"github.com/dev-orchid/shiksha-sub001/internal/invoice/format"
	"github.com/dev-orchid/shiksha-sub001/internal/observability/metrics"
	schooldomain "github.com/dev-orchid/shiksha-sub001/internal/school/domain"
	"github.com/dev-orchid/shiksha-sub001/pkg/db/pagination"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      invoicedomain.Repository
	Sequences schooldomain.Sequences
	Policy    *config.FeePolicyHolder
	AuditSvc  auditdomain.Service
	Metrics   *metrics.Metrics `optional:"true"`
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID     *snowflake.Node
	clock     clock.Clock
	repo      invoicedomain.Repository
	sequences schooldomain.Sequences
	policy    *config.FeePolicyHolder
	auditSvc  auditdomain.Service
	metrics   *metrics.Metrics
	validate  *validator.Validate
}

func NewService(p ServiceParam) invoicedomain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("invoice.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		sequences: p.Sequences,
		policy:    p.Policy,
		auditSvc:  p.AuditSvc,
		metrics:   p.Metrics,
		validate:  validator.New(),
	}
}

func (s *Service) Create(ctx context.Context, schoolID snowflake.ID, req invoicedomain.CreateRequest) (invoicedomain.View, error) {
	if err := s.validate.Struct(req); err != nil {
		return invoicedomain.View{}, fmt.Errorf("%w: %s", invoicedomain.ErrInvalidRequest, err.Error())
	}
	if req.PeriodKind == invoicedomain.PeriodMonthly && (req.PeriodMonth == nil || req.PeriodYear == nil) {
		return invoicedomain.View{}, fmt.Errorf("%w: monthly invoices need period_month and period_year", invoicedomain.ErrInvalidRequest)
	}
	dueDate, err := time.ParseInLocation(invoicedomain.DateLayout, req.DueDate, time.UTC)
	if err != nil {
		return invoicedomain.View{}, fmt.Errorf("%w: due_date", invoicedomain.ErrInvalidRequest)
	}

	total := decimal.Zero
	for _, item := range req.Items {
		if !isMoney(item.Amount) || !item.Amount.IsPositive() {
			return invoicedomain.View{}, invoicedomain.ErrInvalidAmount
		}
		total = total.Add(item.Amount)
	}
	discount := req.DiscountAmount
	if !isMoney(discount) || discount.IsNegative() || discount.GreaterThan(total) {
		return invoicedomain.View{}, invoicedomain.ErrInvalidAmount
	}

	now := s.clock.Now().UTC()
	inv := invoicedomain.Invoice{
		ID:             s.genID.Generate(),
		SchoolID:       schoolID,
		StudentID:      req.StudentID,
		PeriodKind:     req.PeriodKind,
		PeriodMonth:    req.PeriodMonth,
		PeriodYear:     req.PeriodYear,
		TotalAmount:    total,
		DiscountAmount: discount,
		LateFee:        decimal.Zero,
		NetAmount:      invoicedomain.NetAmount(total, discount, decimal.Zero),
		PaidAmount:     decimal.Zero,
		CreditAmount:   decimal.Zero,
		DueDate:        dueDate,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	items := make([]invoicedomain.InvoiceItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, invoicedomain.InvoiceItem{
			ID:          s.genID.Generate(),
			SchoolID:    schoolID,
			InvoiceID:   inv.ID,
			Description: strings.TrimSpace(item.Description),
			Amount:      item.Amount,
			CreatedAt:   now,
		})
	}

	template := s.policy.For(schoolID.String()).InvoiceNumberTemplate
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seq, err := s.sequences.Next(ctx, tx, schoolID, schooldomain.CounterInvoice)
		if err != nil {
			return fmt.Errorf("allocate invoice number: %w", err)
		}
		number, err := format.FormatNumber(template, now, seq, nil)
		if err != nil {
			return err
		}
		inv.InvoiceNumber = number

		if err := s.repo.Insert(ctx, tx, &inv, items); err != nil {
			return fmt.Errorf("insert invoice: %w", err)
		}
		return s.auditSvc.AuditLogTx(ctx, tx, schoolID, auditdomain.Entry{
			Action:     auditdomain.ActionInvoiceCreated,
			TargetType: "invoice",
			TargetID:   inv.ID.String(),
			Metadata: map[string]any{
				"invoice_number": inv.InvoiceNumber,
				"student_id":     inv.StudentID.String(),
				"net_amount":     inv.NetAmount.StringFixed(2),
			},
		})
	})
	if err != nil {
		return invoicedomain.View{}, err
	}

	s.metrics.RecordInvoiceCreated(ctx)
	s.log.Info("invoice created",
		zap.String("school_id", schoolID.String()),
		zap.String("invoice_id", inv.ID.String()),
		zap.String("invoice_number", inv.InvoiceNumber),
	)
	return invoicedomain.NewView(inv, items, s.clock.Now()), nil
}

func (s *Service) Get(ctx context.Context, schoolID, invoiceID snowflake.ID) (invoicedomain.View, error) {
	inv, err := s.repo.FindByID(ctx, s.db, schoolID, invoiceID)
	if err != nil {
		return invoicedomain.View{}, err
	}
	if inv == nil {
		return invoicedomain.View{}, invoicedomain.ErrInvoiceNotFound
	}
	items, err := s.repo.ListItems(ctx, s.db, schoolID, invoiceID)
	if err != nil {
		return invoicedomain.View{}, err
	}
	return invoicedomain.NewView(*inv, items, s.clock.Now()), nil
}

func (s *Service) List(ctx context.Context, schoolID snowflake.ID, req invoicedomain.ListRequest) (invoicedomain.ListResponse, error) {
	if req.Status != "" && !req.Status.Valid() {
		return invoicedomain.ListResponse{}, invoicedomain.ErrInvalidStatus
	}

	var cursor *invoicedomain.Cursor
	if strings.TrimSpace(req.PageToken) != "" {
		decoded, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return invoicedomain.ListResponse{}, invoicedomain.ErrInvalidPageToken
		}
		createdAt, err := time.Parse(time.RFC3339Nano, decoded.CreatedAt)
		if err != nil {
			return invoicedomain.ListResponse{}, invoicedomain.ErrInvalidPageToken
		}
		id, err := snowflake.ParseString(decoded.ID)
		if err != nil || id == 0 {
			return invoicedomain.ListResponse{}, invoicedomain.ErrInvalidPageToken
		}
		cursor = &invoicedomain.Cursor{ID: id, CreatedAt: createdAt}
	}

	today := invoicedomain.DateOf(s.clock.Now())
	limit := req.Pagination.Limit()
	rows, err := s.repo.List(ctx, s.db, invoicedomain.ListFilter{
		SchoolID:  schoolID,
		StudentID: req.StudentID,
		Status:    req.Status,
		Today:     today,
		Cursor:    cursor,
		Limit:     limit,
	})
	if err != nil {
		return invoicedomain.ListResponse{}, err
	}

	rows, pageInfo := pagination.BuildCursorPageInfo(rows, limit, func(inv *invoicedomain.Invoice) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        inv.ID.String(),
			CreatedAt: inv.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})

	views := make([]invoicedomain.View, 0, len(rows))
	for _, inv := range rows {
		views = append(views, invoicedomain.NewView(*inv, nil, today))
	}
	return invoicedomain.ListResponse{PageInfo: *pageInfo, Invoices: views}, nil
}

func (s *Service) Cancel(ctx context.Context, schoolID, invoiceID snowflake.ID, reason string) (invoicedomain.View, error) {
	reason = strings.TrimSpace(reason)
	var saved *invoicedomain.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := s.LoadForUpdate(ctx, tx, schoolID, invoiceID)
		if err != nil {
			return err
		}
		if inv.CancelledAt != nil {
			return invoicedomain.ErrInvoiceCancelled
		}
		count, err := s.repo.CountCompletedPayments(ctx, tx, schoolID, invoiceID)
		if err != nil {
			return err
		}
		if count > 0 {
			return invoicedomain.ErrInvoiceHasPayments
		}

		after := *inv
		now := s.clock.Now().UTC()
		after.CancelledAt = &now
		if reason != "" {
			after.CancelReason = &reason
		}
		saved, err = s.SaveApplication(ctx, tx, *inv, after)
		if err != nil {
			return err
		}
		return s.auditSvc.AuditLogTx(ctx, tx, schoolID, auditdomain.Entry{
			Action:     auditdomain.ActionInvoiceCancelled,
			TargetType: "invoice",
			TargetID:   invoiceID.String(),
			Metadata:   map[string]any{"reason": reason},
		})
	})
	if err != nil {
		return invoicedomain.View{}, err
	}

	s.log.Info("invoice cancelled", zap.String("school_id", schoolID.String()), zap.String("invoice_id", invoiceID.String()))
	return s.View(*saved), nil
}

func (s *Service) AssessLateFee(ctx context.Context, schoolID, invoiceID snowflake.ID, amount decimal.Decimal) (invoicedomain.View, error) {
	if !isMoney(amount) || !amount.IsPositive() {
		return invoicedomain.View{}, invoicedomain.ErrInvalidAmount
	}

	var saved *invoicedomain.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := s.LoadForUpdate(ctx, tx, schoolID, invoiceID)
		if err != nil {
			return err
		}
		switch invoicedomain.DeriveStatus(*inv, s.clock.Now()) {
		case invoicedomain.StatusCancelled:
			return invoicedomain.ErrInvoiceCancelled
		case invoicedomain.StatusPaid:
			return invoicedomain.ErrInvoicePaid
		}

		after := *inv
		after.LateFee = inv.LateFee.Add(amount)
		saved, err = s.SaveApplication(ctx, tx, *inv, after)
		if err != nil {
			return err
		}
		return s.auditSvc.AuditLogTx(ctx, tx, schoolID, auditdomain.Entry{
			Action:     auditdomain.ActionInvoiceLateFee,
			TargetType: "invoice",
			TargetID:   invoiceID.String(),
			Metadata: map[string]any{
				"late_fee":   amount.StringFixed(2),
				"net_amount": saved.NetAmount.StringFixed(2),
			},
		})
	})
	if err != nil {
		return invoicedomain.View{}, err
	}
	return s.View(*saved), nil
}

func (s *Service) LoadForUpdate(ctx context.Context, tx *gorm.DB, schoolID, invoiceID snowflake.ID) (*invoicedomain.Invoice, error) {
	inv, err := s.repo.FindForUpdate(ctx, tx, schoolID, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("load invoice: %w", err)
	}
	if inv == nil {
		return nil, invoicedomain.ErrInvoiceNotFound
	}
	return inv, nil
}

func (s *Service) SaveApplication(ctx context.Context, tx *gorm.DB, before, after invoicedomain.Invoice) (*invoicedomain.Invoice, error) {
	if before.ID != after.ID || before.SchoolID != after.SchoolID {
		return nil, errors.New("save application: invoice identity changed")
	}
	after.NetAmount = invoicedomain.NetAmount(after.TotalAmount, after.DiscountAmount, after.LateFee)
	after.UpdatedAt = s.clock.Now().UTC()

	ok, err := s.repo.CompareAndSwap(ctx, tx, &after, before.Version)
	if err != nil {
		return nil, fmt.Errorf("update invoice: %w", err)
	}
	if !ok {
		return nil, invoicedomain.ErrStaleBalance
	}
	after.Version = before.Version + 1
	return &after, nil
}

func (s *Service) View(inv invoicedomain.Invoice) invoicedomain.View {
	return invoicedomain.NewView(inv, nil, s.clock.Now())
}

// isMoney reports whether d has at most two decimal places.
func isMoney(d decimal.Decimal) bool {
	return d.Equal(d.Round(2))
}
