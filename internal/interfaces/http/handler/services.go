package handler

import (
	"context"
	"iter"

	appbilling "github.com/clinic/ledger/internal/application/billing"
	"github.com/clinic/ledger/internal/domain/billing"
	"github.com/clinic/ledger/internal/domain/shared"
	"github.com/google/uuid"
)

// InvoiceService is the invoice use-case surface the handlers call
type InvoiceService interface {
	Create(ctx context.Context, req appbilling.CreateInvoiceRequest) (*appbilling.InvoiceResponse, error)
	Update(ctx context.Context, id uuid.UUID, req appbilling.UpdateInvoiceRequest) (*appbilling.InvoiceResponse, error)
	ChangeStatus(ctx context.Context, id uuid.UUID, req appbilling.ChangeInvoiceStatusRequest) (*appbilling.InvoiceResponse, error)
	GetByID(ctx context.Context, id uuid.UUID) (*appbilling.InvoiceResponse, error)
	List(ctx context.Context, filter billing.InvoiceFilter) (shared.Paginated[appbilling.InvoiceResponse], error)
}

// PaymentService is the payment use-case surface the handlers call
type PaymentService interface {
	Apply(ctx context.Context, req appbilling.ApplyPaymentRequest) (*appbilling.PaymentReceipt, error)
	GetByID(ctx context.Context, id uuid.UUID) (*appbilling.PaymentResponse, error)
	ListForInvoice(ctx context.Context, invoiceID uuid.UUID) ([]appbilling.PaymentResponse, error)
	List(ctx context.Context, filter billing.PaymentFilter) (shared.Paginated[appbilling.PaymentResponse], error)
}

// PaymentPlanService is the payment plan use-case surface the handlers call
type PaymentPlanService interface {
	Create(ctx context.Context, req appbilling.CreatePlanRequest) (*appbilling.PlanResponse, error)
	Update(ctx context.Context, id uuid.UUID, req appbilling.UpdatePlanRequest) (*appbilling.PlanResponse, error)
	Delete(ctx context.Context, id uuid.UUID) error
	MarkInstallmentPaid(ctx context.Context, planID, installmentID uuid.UUID, req appbilling.MarkInstallmentPaidRequest) (*appbilling.PlanResponse, error)
	GetByID(ctx context.Context, id uuid.UUID) (*appbilling.PlanResponse, error)
	GetByTreatment(ctx context.Context, treatmentID uuid.UUID) (*appbilling.PlanResponse, error)
	GetSummary(ctx context.Context, id uuid.UUID) (*billing.PlanSummary, error)
	List(ctx context.Context, filter billing.PaymentPlanFilter) (shared.Paginated[appbilling.PlanResponse], error)
}

// ReceivableService is the accounts receivable surface the handlers call
type ReceivableService interface {
	List(ctx context.Context, q appbilling.ReceivableQuery) (shared.Paginated[billing.ReceivableEntry], error)
	Summary(ctx context.Context, q appbilling.ReceivableQuery) (billing.ReceivableSummary, error)
	ForPatient(ctx context.Context, patientID uuid.UUID) (*billing.ReceivableEntry, error)
}

// ExportService streams CSV exports
type ExportService interface {
	ExportInvoices(ctx context.Context, filter billing.InvoiceFilter) iter.Seq2[string, error]
	ExportPayments(ctx context.Context, filter billing.PaymentFilter) iter.Seq2[string, error]
	ExportReceivables(ctx context.Context, q appbilling.ReceivableQuery) iter.Seq2[string, error]
}

var (
	_ InvoiceService     = (*appbilling.InvoiceService)(nil)
	_ PaymentService     = (*appbilling.PaymentService)(nil)
	_ PaymentPlanService = (*appbilling.PaymentPlanService)(nil)
	_ ReceivableService  = (*appbilling.ReceivableService)(nil)
	_ ExportService      = (*appbilling.ExportService)(nil)
)
