package billing

import (
	"context"
	"time"

	"github.com/clinic/ledger/internal/domain/billing"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// MockInvoiceRepository is a mock implementation of billing.InvoiceRepository
type MockInvoiceRepository struct {
	mock.Mock
}

func (m *MockInvoiceRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Invoice, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) FindByCode(ctx context.Context, code string) (*billing.Invoice, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) FindAll(ctx context.Context, filter billing.InvoiceFilter) ([]billing.Invoice, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]billing.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) Count(ctx context.Context, filter billing.InvoiceFilter) (int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockInvoiceRepository) FindBatch(ctx context.Context, filter billing.InvoiceFilter, after *billing.Cursor, limit int) ([]billing.Invoice, error) {
	args := m.Called(ctx, filter, after, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]billing.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) FindReceivableBatch(ctx context.Context, filter billing.ReceivableFilter, after *billing.Cursor, limit int) ([]billing.Invoice, error) {
	args := m.Called(ctx, filter, after, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]billing.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) Create(ctx context.Context, invoice *billing.Invoice) error {
	args := m.Called(ctx, invoice)
	return args.Error(0)
}

func (m *MockInvoiceRepository) Update(ctx context.Context, invoice *billing.Invoice) error {
	args := m.Called(ctx, invoice)
	return args.Error(0)
}

func (m *MockInvoiceRepository) ReplaceItems(ctx context.Context, invoiceID uuid.UUID, removed, added []billing.InvoiceItem) error {
	args := m.Called(ctx, invoiceID, removed, added)
	return args.Error(0)
}

func (m *MockInvoiceRepository) LatestCode(ctx context.Context, pattern string) (string, error) {
	args := m.Called(ctx, pattern)
	return args.String(0), args.Error(1)
}

func (m *MockInvoiceRepository) ExistsByCode(ctx context.Context, code string) (bool, error) {
	args := m.Called(ctx, code)
	return args.Bool(0), args.Error(1)
}

func (m *MockInvoiceRepository) ApplyPayment(ctx context.Context, invoiceID uuid.UUID, amount decimal.Decimal, method billing.PaymentMethod, at time.Time) (bool, error) {
	args := m.Called(ctx, invoiceID, amount, method, at)
	return args.Bool(0), args.Error(1)
}

// MockPaymentRepository is a mock implementation of billing.PaymentRepository
type MockPaymentRepository struct {
	mock.Mock
}

func (m *MockPaymentRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Payment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Payment), args.Error(1)
}

func (m *MockPaymentRepository) FindByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]billing.Payment, error) {
	args := m.Called(ctx, invoiceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]billing.Payment), args.Error(1)
}

func (m *MockPaymentRepository) FindAll(ctx context.Context, filter billing.PaymentFilter) ([]billing.Payment, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]billing.Payment), args.Error(1)
}

func (m *MockPaymentRepository) Count(ctx context.Context, filter billing.PaymentFilter) (int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockPaymentRepository) FindBatch(ctx context.Context, filter billing.PaymentFilter, after *billing.Cursor, limit int) ([]billing.Payment, error) {
	args := m.Called(ctx, filter, after, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]billing.Payment), args.Error(1)
}

func (m *MockPaymentRepository) SumByInvoice(ctx context.Context, invoiceID uuid.UUID) (decimal.Decimal, error) {
	args := m.Called(ctx, invoiceID)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockPaymentRepository) Create(ctx context.Context, payment *billing.Payment) error {
	args := m.Called(ctx, payment)
	return args.Error(0)
}

// MockPaymentPlanRepository is a mock implementation of billing.PaymentPlanRepository
type MockPaymentPlanRepository struct {
	mock.Mock
}

func (m *MockPaymentPlanRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.PaymentPlan, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.PaymentPlan), args.Error(1)
}

func (m *MockPaymentPlanRepository) FindByTreatment(ctx context.Context, treatmentID uuid.UUID) (*billing.PaymentPlan, error) {
	args := m.Called(ctx, treatmentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.PaymentPlan), args.Error(1)
}

func (m *MockPaymentPlanRepository) ExistsByTreatment(ctx context.Context, treatmentID uuid.UUID) (bool, error) {
	args := m.Called(ctx, treatmentID)
	return args.Bool(0), args.Error(1)
}

func (m *MockPaymentPlanRepository) FindAll(ctx context.Context, filter billing.PaymentPlanFilter) ([]billing.PaymentPlan, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]billing.PaymentPlan), args.Error(1)
}

func (m *MockPaymentPlanRepository) Count(ctx context.Context, filter billing.PaymentPlanFilter) (int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockPaymentPlanRepository) Create(ctx context.Context, plan *billing.PaymentPlan) error {
	args := m.Called(ctx, plan)
	return args.Error(0)
}

func (m *MockPaymentPlanRepository) Update(ctx context.Context, plan *billing.PaymentPlan) error {
	args := m.Called(ctx, plan)
	return args.Error(0)
}

func (m *MockPaymentPlanRepository) ReplaceInstallments(ctx context.Context, planID uuid.UUID, installments []billing.PaymentInstallment) error {
	args := m.Called(ctx, planID, installments)
	return args.Error(0)
}

func (m *MockPaymentPlanRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockPaymentPlanRepository) MarkInstallmentPaid(ctx context.Context, planID, installmentID uuid.UUID, method *billing.PaymentMethod, paidDate time.Time) (bool, error) {
	args := m.Called(ctx, planID, installmentID, method, paidDate)
	return args.Bool(0), args.Error(1)
}

// MockDirectory is a mock implementation of billing.Directory
type MockDirectory struct {
	mock.Mock
}

func (m *MockDirectory) FindPatient(ctx context.Context, id uuid.UUID) (*billing.Party, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Party), args.Error(1)
}

func (m *MockDirectory) FindDoctor(ctx context.Context, id uuid.UUID) (*billing.Party, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Party), args.Error(1)
}

func (m *MockDirectory) FindBranch(ctx context.Context, id uuid.UUID) (*billing.Party, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Party), args.Error(1)
}

// MockTreatmentCatalog is a mock implementation of billing.TreatmentCatalog
type MockTreatmentCatalog struct {
	mock.Mock
}

func (m *MockTreatmentCatalog) FindTreatment(ctx context.Context, id uuid.UUID) (*billing.Treatment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Treatment), args.Error(1)
}

func (m *MockTreatmentCatalog) FindTreatmentStep(ctx context.Context, id uuid.UUID) (*billing.TreatmentStep, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.TreatmentStep), args.Error(1)
}
