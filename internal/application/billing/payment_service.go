package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/clinic/ledger/internal/domain/billing"
	"github.com/clinic/ledger/internal/domain/shared"
	"github.com/clinic/ledger/internal/infrastructure/logger"
	"github.com/clinic/ledger/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PaymentService applies payments to invoices
type PaymentService struct {
	scope          TransactionScope
	payments       billing.PaymentRepository
	invoices       billing.InvoiceRepository
	idempotency    shared.IdempotencyStore
	idempotencyTTL time.Duration
	metrics        *telemetry.LedgerMetrics
	now            func() time.Time
}

// NewPaymentService creates a new PaymentService. idempotency may be nil, in
// which case Idempotency-Key values are ignored.
func NewPaymentService(
	scope TransactionScope,
	payments billing.PaymentRepository,
	invoices billing.InvoiceRepository,
	idempotency shared.IdempotencyStore,
	cfg Config,
) *PaymentService {
	cfg = cfg.withDefaults()
	return &PaymentService{
		scope:          scope,
		payments:       payments,
		invoices:       invoices,
		idempotency:    idempotency,
		idempotencyTTL: cfg.IdempotencyTTL,
		metrics:        cfg.Metrics,
		now:            time.Now,
	}
}

// Apply records a payment against an invoice.
//
// The invoice increment is a single conditional UPDATE that only matches while
// the invoice accepts payments and the new paid amount stays within the total;
// the payment row is inserted in the same transaction. When the UPDATE matches
// nothing (a concurrent payment or status change won), the invoice is re-read
// to report why.
func (s *PaymentService) Apply(ctx context.Context, req ApplyPaymentRequest) (_ *PaymentReceipt, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment", "apply")
	defer telemetry.End(span, &err)

	method, err := billing.ParsePaymentMethod(req.Method)
	if err != nil {
		return nil, err
	}
	if !req.Amount.IsPositive() {
		return nil, shared.NewInvalidArgumentError("payment amount must be greater than zero")
	}

	if req.IdempotencyKey != "" && s.idempotency != nil {
		key := "payment:" + req.IdempotencyKey
		fresh, markErr := s.idempotency.MarkProcessed(ctx, key, s.idempotencyTTL)
		if markErr != nil {
			return nil, fmt.Errorf("failed to reserve idempotency key: %w", markErr)
		}
		if !fresh {
			return nil, shared.NewDomainError(shared.CodeAlreadyExists,
				"a payment with idempotency key "+req.IdempotencyKey+" was already submitted")
		}
		defer func() {
			if err == nil {
				return
			}
			if relErr := s.idempotency.Release(context.WithoutCancel(ctx), key); relErr != nil {
				logger.L(ctx).Error("failed to release idempotency key", zap.String("key", key), zap.Error(relErr))
			}
		}()
	}

	var (
		payment *billing.Payment
		inv     *billing.Invoice
	)
	err = s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		current, err := repos.Invoices().FindByID(ctx, req.InvoiceID)
		if err != nil {
			return err
		}
		if err := current.CheckPayment(req.Amount); err != nil {
			return err
		}
		payment, err = billing.NewPayment(current, billing.PaymentInput{
			Amount:    req.Amount,
			Method:    method,
			Date:      req.PaymentDate,
			Reference: req.Reference,
			Notes:     req.Notes,
		})
		if err != nil {
			return err
		}

		applied, err := repos.Invoices().ApplyPayment(ctx, current.ID, req.Amount, method, s.now())
		if err != nil {
			return fmt.Errorf("failed to apply payment: %w", err)
		}
		if !applied {
			return s.explainRejection(ctx, repos.Invoices(), current.ID, req.Amount)
		}
		if err := repos.Payments().Create(ctx, payment); err != nil {
			return err
		}
		inv, err = repos.Invoices().FindByID(ctx, current.ID)
		return err
	})
	if err != nil {
		logger.L(ctx).Warn("payment rejected",
			zap.String("invoice_id", req.InvoiceID.String()),
			zap.String("amount", req.Amount.String()),
			zap.Error(err),
		)
		s.metrics.PaymentRejected(ctx, rejectionCode(err))
		return nil, err
	}

	s.metrics.PaymentApplied(ctx, method.String(), inv.Currency.String(), payment.Amount, inv.IsPaid)
	telemetry.SetAttributes(span,
		"invoice.code", inv.Code,
		"payment.amount", payment.Amount.String(),
		"invoice.settled", inv.IsPaid,
	)
	logger.L(ctx).Info("payment applied",
		zap.String("payment_id", payment.ID.String()),
		zap.String("invoice_code", inv.Code),
		zap.String("amount", payment.Amount.String()),
		zap.String("paid_amount", inv.PaidAmount.String()),
		zap.String("status", inv.Status.String()),
	)
	return &PaymentReceipt{
		Payment: ToPaymentResponse(payment),
		Invoice: ToInvoiceResponse(inv),
	}, nil
}

// rejectionCode is the domain error code of err, INTERNAL for anything else
func rejectionCode(err error) string {
	var de *shared.DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return "INTERNAL"
}

// explainRejection re-reads the invoice after the conditional update matched
// no row and turns its current state into the matching domain error. When the
// re-read shows no cause the payment is still reported as an overpayment
// against the amounts just read.
func (s *PaymentService) explainRejection(ctx context.Context, repo billing.InvoiceRepository, id uuid.UUID, amount decimal.Decimal) error {
	inv, err := repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := inv.CheckPayment(amount); err != nil {
		return err
	}
	return billing.OverpaymentError(inv.TotalAmount, inv.PaidAmount, amount)
}

// GetByID returns a payment
func (s *PaymentService) GetByID(ctx context.Context, id uuid.UUID) (*PaymentResponse, error) {
	p, err := s.payments.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := ToPaymentResponse(p)
	return &resp, nil
}

// ListForInvoice returns every payment of an invoice ordered by payment date
func (s *PaymentService) ListForInvoice(ctx context.Context, invoiceID uuid.UUID) ([]PaymentResponse, error) {
	if _, err := s.invoices.FindByID(ctx, invoiceID); err != nil {
		return nil, err
	}
	payments, err := s.payments.FindByInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	return ToPaymentResponses(payments), nil
}

// List returns one page of payments
func (s *PaymentService) List(ctx context.Context, filter billing.PaymentFilter) (shared.Paginated[PaymentResponse], error) {
	filter.Normalize()

	payments, err := s.payments.FindAll(ctx, filter)
	if err != nil {
		return shared.Paginated[PaymentResponse]{}, err
	}
	total, err := s.payments.Count(ctx, filter)
	if err != nil {
		return shared.Paginated[PaymentResponse]{}, err
	}
	return shared.NewPaginated(ToPaymentResponses(payments), total, filter.Page, filter.PageSize), nil
}
