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
	invoicedomain "github.com/dev-orchid/shiksha-sub001/internal/invoice/domain"
	"github.com/dev-orchid/shiksha-sub001/internal/invoice/format"
	"github.com/dev-orchid/shiksha-sub001/internal/observability/metrics"
	paymentdomain "github.com/dev-orchid/shiksha-sub001/internal/payment/domain"
	schooldomain "github.com/dev-orchid/shiksha-sub001/internal/school/domain"
	"github.com/dev-orchid/shiksha-sub001/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultReceiptPrefix = "RCT"

type ServiceParam struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        paymentdomain.Repository
	InvoiceSvc  invoicedomain.Service
	InvoiceRepo invoicedomain.Repository
	SchoolRepo  schooldomain.Repository
	Sequences   schooldomain.Sequences
	Policy      *config.FeePolicyHolder
	AuditSvc    auditdomain.Service
	Metrics     *metrics.Metrics `optional:"true"`
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID       *snowflake.Node
	clock       clock.Clock
	repo        paymentdomain.Repository
	invoiceSvc  invoicedomain.Service
	invoiceRepo invoicedomain.Repository
	schoolRepo  schooldomain.Repository
	sequences   schooldomain.Sequences
	policy      *config.FeePolicyHolder
	auditSvc    auditdomain.Service
	metrics     *metrics.Metrics
}

func NewService(p ServiceParam) paymentdomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("payment.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		invoiceSvc:  p.InvoiceSvc,
		invoiceRepo: p.InvoiceRepo,
		schoolRepo:  p.SchoolRepo,
		sequences:   p.Sequences,
		policy:      p.Policy,
		auditSvc:    p.AuditSvc,
		metrics:     p.Metrics,
	}
}

func (s *Service) RecordPayment(ctx context.Context, schoolID snowflake.ID, req paymentdomain.RecordRequest) (*paymentdomain.RecordResult, error) {
	var result *paymentdomain.RecordResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res, err := s.RecordPaymentTx(ctx, tx, schoolID, req)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordPaymentRecorded(ctx, string(result.Payment.PaymentMode))
	s.log.Info("payment recorded",
		zap.String("school_id", schoolID.String()),
		zap.String("invoice_id", result.Payment.InvoiceID.String()),
		zap.String("payment_id", result.Payment.ID.String()),
		zap.String("receipt_number", result.Payment.ReceiptNumber),
		zap.String("payment_mode", string(result.Payment.PaymentMode)),
	)
	return result, nil
}

func (s *Service) RecordPaymentTx(ctx context.Context, tx *gorm.DB, schoolID snowflake.ID, req paymentdomain.RecordRequest) (*paymentdomain.RecordResult, error) {
	if !req.Mode.Valid() {
		return nil, paymentdomain.ErrInvalidMode
	}
	if !req.Amount.IsPositive() || !req.Amount.Equal(req.Amount.Round(2)) {
		return nil, invoicedomain.ErrInvalidAmount
	}
	transactionID := strings.TrimSpace(req.TransactionID)
	if req.Mode == paymentdomain.ModeOnlineGateway && transactionID == "" {
		return nil, paymentdomain.ErrMissingReference
	}

	inv, err := s.invoiceSvc.LoadForUpdate(ctx, tx, schoolID, req.InvoiceID)
	if err != nil {
		return nil, err
	}
	policy := s.policy.For(schoolID.String())
	app, err := invoicedomain.ApplyPayment(*inv, req.Amount, invoicedomain.Policy{AllowOverpayment: policy.AllowOverpayment})
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	paymentDate := now
	if req.PaymentDate != nil && !req.PaymentDate.IsZero() {
		paymentDate = req.PaymentDate.UTC()
	}

	seq, number, err := s.nextReceipt(ctx, tx, schoolID, policy.ReceiptNumberTemplate, now)
	if err != nil {
		return nil, err
	}

	payment := paymentdomain.Payment{
		ID:             s.genID.Generate(),
		SchoolID:       schoolID,
		InvoiceID:      inv.ID,
		ReceiptNumber:  number,
		ReceiptSeq:     seq,
		Amount:         app.Applied,
		PaymentMode:    req.Mode,
		PaymentDate:    paymentDate,
		TransactionID:  optional(transactionID),
		Status:         paymentdomain.StatusCompleted,
		Kind:           paymentdomain.KindPayment,
		PaidBefore:     app.PaidBefore,
		BalanceAfter:   app.BalanceAfter,
		CreditedAmount: app.Credit,
		Notes:          optional(req.Notes),
		RecordedBy:     optional(req.RecordedBy),
		CreatedAt:      now,
	}
	if err := s.repo.Insert(ctx, tx, &payment); err != nil {
		if db.IsDuplicateKeyErr(err) && payment.TransactionID != nil {
			return nil, fmt.Errorf("%w: %w", paymentdomain.ErrDuplicateTransfer, err)
		}
		return nil, fmt.Errorf("insert payment: %w", err)
	}

	saved, err := s.invoiceSvc.SaveApplication(ctx, tx, *inv, app.Invoice)
	if err != nil {
		return nil, err
	}

	if err := s.auditSvc.AuditLogTx(ctx, tx, schoolID, auditdomain.Entry{
		Action:     auditdomain.ActionPaymentRecorded,
		TargetType: "payment",
		TargetID:   payment.ID.String(),
		Metadata: map[string]any{
			"invoice_id":      inv.ID.String(),
			"receipt_number":  payment.ReceiptNumber,
			"amount":          payment.Amount.StringFixed(2),
			"amount_received": req.Amount.StringFixed(2),
			"credited_amount": payment.CreditedAmount.StringFixed(2),
			"payment_mode":    string(payment.PaymentMode),
			"transaction_id":  transactionID,
		},
	}); err != nil {
		return nil, err
	}

	return &paymentdomain.RecordResult{
		Payment: payment,
		Invoice: s.invoiceSvc.View(*saved),
		Receipt: paymentdomain.GenerateReceipt(payment, *saved),
	}, nil
}

func (s *Service) GetReceipt(ctx context.Context, schoolID, paymentID snowflake.ID) (*paymentdomain.Receipt, error) {
	payment, err := s.GetPayment(ctx, s.db, schoolID, paymentID)
	if err != nil {
		return nil, err
	}
	inv, err := s.invoiceRepo.FindByID(ctx, s.db, schoolID, payment.InvoiceID)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, invoicedomain.ErrInvoiceNotFound
	}
	receipt := paymentdomain.GenerateReceipt(*payment, *inv)
	return &receipt, nil
}

func (s *Service) GetPayment(ctx context.Context, conn *gorm.DB, schoolID, paymentID snowflake.ID) (*paymentdomain.Payment, error) {
	if conn == nil {
		conn = s.db
	}
	payment, err := s.repo.FindByID(ctx, conn, schoolID, paymentID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, paymentdomain.ErrPaymentNotFound
	}
	return payment, nil
}

func (s *Service) ListPayments(ctx context.Context, schoolID, invoiceID snowflake.ID) ([]paymentdomain.Payment, error) {
	inv, err := s.invoiceRepo.FindByID(ctx, s.db, schoolID, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, invoicedomain.ErrInvoiceNotFound
	}
	return s.repo.ListByInvoice(ctx, s.db, schoolID, invoiceID)
}

// FindByTransaction returns nil when no gateway payment carries transactionID.
func (s *Service) FindByTransaction(ctx context.Context, conn *gorm.DB, schoolID snowflake.ID, transactionID string) (*paymentdomain.Payment, error) {
	if conn == nil {
		conn = s.db
	}
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return nil, nil
	}
	return s.repo.FindByTransaction(ctx, conn, schoolID, transactionID)
}

func (s *Service) Refund(ctx context.Context, schoolID, paymentID snowflake.ID, reason string) (*paymentdomain.RefundResult, error) {
	reason = strings.TrimSpace(reason)
	var result *paymentdomain.RefundResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		original, err := s.repo.FindForUpdate(ctx, tx, schoolID, paymentID)
		if err != nil {
			return fmt.Errorf("load payment: %w", err)
		}
		if original == nil {
			return paymentdomain.ErrPaymentNotFound
		}
		if original.Kind != paymentdomain.KindPayment || original.Status != paymentdomain.StatusCompleted {
			return paymentdomain.ErrNotRefundable
		}
		// The original stays completed; its reversal row is the refund marker.
		existing, err := s.repo.FindReversal(ctx, tx, schoolID, original.ID)
		if err != nil {
			return fmt.Errorf("load reversal: %w", err)
		}
		if existing != nil {
			return paymentdomain.ErrAlreadyRefunded
		}

		inv, err := s.invoiceSvc.LoadForUpdate(ctx, tx, schoolID, original.InvoiceID)
		if err != nil {
			return err
		}
		restored, err := invoicedomain.ReversePayment(*inv, original.Applied(), original.CreditedAmount)
		if err != nil {
			return err
		}

		now := s.clock.Now().UTC()
		seq, number, err := s.nextReceipt(ctx, tx, schoolID, s.policy.For(schoolID.String()).ReceiptNumberTemplate, now)
		if err != nil {
			return err
		}
		reversal := paymentdomain.Payment{
			ID:                s.genID.Generate(),
			SchoolID:          schoolID,
			InvoiceID:         original.InvoiceID,
			ReceiptNumber:     number,
			ReceiptSeq:        seq,
			Amount:            original.Amount.Neg(),
			PaymentMode:       original.PaymentMode,
			PaymentDate:       now,
			Status:            paymentdomain.StatusCompleted,
			Kind:              paymentdomain.KindReversal,
			ReversesPaymentID: &original.ID,
			PaidBefore:        inv.PaidAmount,
			BalanceAfter:      invoicedomain.DisplayBalance(restored),
			CreditedAmount:    original.CreditedAmount.Neg(),
			Notes:             optional(reason),
			CreatedAt:         now,
		}
		if err := s.repo.Insert(ctx, tx, &reversal); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return paymentdomain.ErrAlreadyRefunded
			}
			return fmt.Errorf("insert reversal: %w", err)
		}

		saved, err := s.invoiceSvc.SaveApplication(ctx, tx, *inv, restored)
		if err != nil {
			return err
		}
		if err := s.auditSvc.AuditLogTx(ctx, tx, schoolID, auditdomain.Entry{
			Action:     auditdomain.ActionPaymentRefunded,
			TargetType: "payment",
			TargetID:   original.ID.String(),
			Metadata: map[string]any{
				"reversal_id":    reversal.ID.String(),
				"receipt_number": reversal.ReceiptNumber,
				"amount":         original.Amount.StringFixed(2),
				"reason":         reason,
			},
		}); err != nil {
			return err
		}

		result = &paymentdomain.RefundResult{
			Original: *original,
			Reversal: reversal,
			Invoice:  s.invoiceSvc.View(*saved),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("payment refunded",
		zap.String("school_id", schoolID.String()),
		zap.String("payment_id", paymentID.String()),
		zap.String("reversal_id", result.Reversal.ID.String()),
	)
	return result, nil
}

// nextReceipt allocates the next receipt sequence and renders its number.
func (s *Service) nextReceipt(ctx context.Context, tx *gorm.DB, schoolID snowflake.ID, template string, now time.Time) (int64, string, error) {
	prefix := defaultReceiptPrefix
	school, err := s.schoolRepo.FindByID(ctx, tx, schoolID)
	if err != nil {
		return 0, "", fmt.Errorf("load school: %w", err)
	}
	if school != nil && school.ReceiptPrefix != "" {
		prefix = school.ReceiptPrefix
	}

	seq, err := s.sequences.Next(ctx, tx, schoolID, schooldomain.CounterReceipt)
	if err != nil {
		return 0, "", fmt.Errorf("allocate receipt number: %w", err)
	}
	if template == "" {
		template = format.DefaultReceiptNumberTemplate
	}
	number, err := format.FormatNumber(template, now, seq, map[string]string{"PREFIX": prefix})
	if err != nil {
		return 0, "", err
	}
	return seq, number, nil
}

func optional(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
