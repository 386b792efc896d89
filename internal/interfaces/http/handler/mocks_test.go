package handler

import (
	"context"
	"iter"

	appbilling "github.com/clinic/ledger/internal/application/billing"
	"github.com/clinic/ledger/internal/domain/billing"
	"github.com/clinic/ledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

type mockInvoiceService struct{ mock.Mock }

func (m *mockInvoiceService) Create(ctx context.Context, req appbilling.CreateInvoiceRequest) (*appbilling.InvoiceResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appbilling.InvoiceResponse), args.Error(1)
}

func (m *mockInvoiceService) Update(ctx context.Context, id uuid.UUID, req appbilling.UpdateInvoiceRequest) (*appbilling.InvoiceResponse, error) {
	args := m.Called(ctx, id, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appbilling.InvoiceResponse), args.Error(1)
}

func (m *mockInvoiceService) ChangeStatus(ctx context.Context, id uuid.UUID, req appbilling.ChangeInvoiceStatusRequest) (*appbilling.InvoiceResponse, error) {
	args := m.Called(ctx, id, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appbilling.InvoiceResponse), args.Error(1)
}

func (m *mockInvoiceService) GetByID(ctx context.Context, id uuid.UUID) (*appbilling.InvoiceResponse, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appbilling.InvoiceResponse), args.Error(1)
}

func (m *mockInvoiceService) List(ctx context.Context, filter billing.InvoiceFilter) (shared.Paginated[appbilling.InvoiceResponse], error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(shared.Paginated[appbilling.InvoiceResponse]), args.Error(1)
}

type mockPaymentService struct{ mock.Mock }

func (m *mockPaymentService) Apply(ctx context.Context, req appbilling.ApplyPaymentRequest) (*appbilling.PaymentReceipt, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appbilling.PaymentReceipt), args.Error(1)
}

func (m *mockPaymentService) GetByID(ctx context.Context, id uuid.UUID) (*appbilling.PaymentResponse, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appbilling.PaymentResponse), args.Error(1)
}

func (m *mockPaymentService) ListForInvoice(ctx context.Context, invoiceID uuid.UUID) ([]appbilling.PaymentResponse, error) {
	args := m.Called(ctx, invoiceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]appbilling.PaymentResponse), args.Error(1)
}

func (m *mockPaymentService) List(ctx context.Context, filter billing.PaymentFilter) (shared.Paginated[appbilling.PaymentResponse], error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(shared.Paginated[appbilling.PaymentResponse]), args.Error(1)
}

type mockPlanService struct{ mock.Mock }

func (m *mockPlanService) Create(ctx context.Context, req appbilling.CreatePlanRequest) (*appbilling.PlanResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appbilling.PlanResponse), args.Error(1)
}

func (m *mockPlanService) Update(ctx context.Context, id uuid.UUID, req appbilling.UpdatePlanRequest) (*appbilling.PlanResponse, error) {
	args := m.Called(ctx, id, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appbilling.PlanResponse), args.Error(1)
}

func (m *mockPlanService) Delete(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockPlanService) MarkInstallmentPaid(ctx context.Context, planID, installmentID uuid.UUID, req appbilling.MarkInstallmentPaidRequest) (*appbilling.PlanResponse, error) {
	args := m.Called(ctx, planID, installmentID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appbilling.PlanResponse), args.Error(1)
}

func (m *mockPlanService) GetByID(ctx context.Context, id uuid.UUID) (*appbilling.PlanResponse, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appbilling.PlanResponse), args.Error(1)
}

func (m *mockPlanService) GetByTreatment(ctx context.Context, treatmentID uuid.UUID) (*appbilling.PlanResponse, error) {
	args := m.Called(ctx, treatmentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appbilling.PlanResponse), args.Error(1)
}

func (m *mockPlanService) GetSummary(ctx context.Context, id uuid.UUID) (*billing.PlanSummary, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.PlanSummary), args.Error(1)
}

func (m *mockPlanService) List(ctx context.Context, filter billing.PaymentPlanFilter) (shared.Paginated[appbilling.PlanResponse], error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(shared.Paginated[appbilling.PlanResponse]), args.Error(1)
}

type mockReceivableService struct{ mock.Mock }

func (m *mockReceivableService) List(ctx context.Context, q appbilling.ReceivableQuery) (shared.Paginated[billing.ReceivableEntry], error) {
	args := m.Called(ctx, q)
	return args.Get(0).(shared.Paginated[billing.ReceivableEntry]), args.Error(1)
}

func (m *mockReceivableService) Summary(ctx context.Context, q appbilling.ReceivableQuery) (billing.ReceivableSummary, error) {
	args := m.Called(ctx, q)
	return args.Get(0).(billing.ReceivableSummary), args.Error(1)
}

func (m *mockReceivableService) ForPatient(ctx context.Context, patientID uuid.UUID) (*billing.ReceivableEntry, error) {
	args := m.Called(ctx, patientID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.ReceivableEntry), args.Error(1)
}

type mockExportService struct{ mock.Mock }

func (m *mockExportService) ExportInvoices(ctx context.Context, filter billing.InvoiceFilter) iter.Seq2[string, error] {
	return m.Called(ctx, filter).Get(0).(iter.Seq2[string, error])
}

func (m *mockExportService) ExportPayments(ctx context.Context, filter billing.PaymentFilter) iter.Seq2[string, error] {
	return m.Called(ctx, filter).Get(0).(iter.Seq2[string, error])
}

func (m *mockExportService) ExportReceivables(ctx context.Context, q appbilling.ReceivableQuery) iter.Seq2[string, error] {
	return m.Called(ctx, q).Get(0).(iter.Seq2[string, error])
}

// lines yields each entry, then err if non-nil
func lines(err error, entries ...string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, e := range entries {
			if !yield(e, nil) {
				return
			}
		}
		if err != nil {
			yield("", err)
		}
	}
}
