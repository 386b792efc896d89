package billing

import (
	"context"
	"time"

	"github.com/clinic/ledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Cursor marks a position in a (created_at, id) ordered scan
type Cursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

// InvoiceFilter defines filtering options for invoice queries
type InvoiceFilter struct {
	shared.Filter
	PatientID      *uuid.UUID
	DoctorID       *uuid.UUID
	BranchID       *uuid.UUID
	TreatmentID    *uuid.UUID
	Statuses       []InvoiceStatus
	IncludeDeleted bool
	CreatedFrom    *time.Time
	CreatedTo      *time.Time
	ExpiresFrom    *time.Time
	ExpiresTo      *time.Time
}

// ReceivableFilter restricts which invoices feed the receivable fold.
// Status and balance predicates are always applied by the repository.
type ReceivableFilter struct {
	PatientID       *uuid.UUID
	InvoiceDateFrom *time.Time
	InvoiceDateTo   *time.Time
	Search          string
}

// InvoiceRepository persists the Invoice aggregate
type InvoiceRepository interface {
	// FindByID loads an invoice with its active items
	FindByID(ctx context.Context, id uuid.UUID) (*Invoice, error)
	FindByCode(ctx context.Context, code string) (*Invoice, error)
	FindAll(ctx context.Context, filter InvoiceFilter) ([]Invoice, error)
	Count(ctx context.Context, filter InvoiceFilter) (int64, error)
	// FindBatch returns up to limit invoices after cursor ordered by (created_at, id), without items
	FindBatch(ctx context.Context, filter InvoiceFilter, after *Cursor, limit int) ([]Invoice, error)
	// FindReceivableBatch is FindBatch restricted to receivable statuses with a positive balance
	FindReceivableBatch(ctx context.Context, filter ReceivableFilter, after *Cursor, limit int) ([]Invoice, error)

	// Create inserts the invoice and its items
	Create(ctx context.Context, invoice *Invoice) error
	// Update writes header fields guarded by optimistic locking on Version
	Update(ctx context.Context, invoice *Invoice) error
	// ReplaceItems soft-deletes removed items and inserts added ones
	ReplaceItems(ctx context.Context, invoiceID uuid.UUID, removed, added []InvoiceItem) error

	// LatestCode returns the greatest code matching a LIKE pattern, "" if none
	LatestCode(ctx context.Context, pattern string) (string, error)
	ExistsByCode(ctx context.Context, code string) (bool, error)

	// ApplyPayment adds amount to paid_amount in one conditional statement that
	// only matches while the invoice accepts payments and the sum stays within
	// total_amount. It settles the invoice when the sum reaches the total.
	// Returns false when no row matched.
	ApplyPayment(ctx context.Context, invoiceID uuid.UUID, amount decimal.Decimal, method PaymentMethod, at time.Time) (bool, error)
}

// PaymentFilter defines filtering options for payment queries
type PaymentFilter struct {
	shared.Filter
	InvoiceID *uuid.UUID
	PatientID *uuid.UUID
	Method    *PaymentMethod
	Status    *PaymentStatus
	DateFrom  *time.Time
	DateTo    *time.Time
}

// PaymentRepository persists payments
type PaymentRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Payment, error)
	FindByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]Payment, error)
	FindAll(ctx context.Context, filter PaymentFilter) ([]Payment, error)
	Count(ctx context.Context, filter PaymentFilter) (int64, error)
	FindBatch(ctx context.Context, filter PaymentFilter, after *Cursor, limit int) ([]Payment, error)
	SumByInvoice(ctx context.Context, invoiceID uuid.UUID) (decimal.Decimal, error)
	Create(ctx context.Context, payment *Payment) error
}

// PaymentPlanFilter defines filtering options for plan queries
type PaymentPlanFilter struct {
	shared.Filter
	TreatmentID *uuid.UUID
	HasPending  *bool
}

// PaymentPlanRepository persists the PaymentPlan aggregate
type PaymentPlanRepository interface {
	// FindByID loads a plan with installments ordered by number
	FindByID(ctx context.Context, id uuid.UUID) (*PaymentPlan, error)
	FindByTreatment(ctx context.Context, treatmentID uuid.UUID) (*PaymentPlan, error)
	ExistsByTreatment(ctx context.Context, treatmentID uuid.UUID) (bool, error)
	FindAll(ctx context.Context, filter PaymentPlanFilter) ([]PaymentPlan, error)
	Count(ctx context.Context, filter PaymentPlanFilter) (int64, error)

	// Create inserts the plan and all of its installments
	Create(ctx context.Context, plan *PaymentPlan) error
	// Update writes plan fields guarded by optimistic locking on Version
	Update(ctx context.Context, plan *PaymentPlan) error
	// ReplaceInstallments removes every installment of the plan and inserts the given set
	ReplaceInstallments(ctx context.Context, planID uuid.UUID, installments []PaymentInstallment) error
	// Delete removes installments then the plan
	Delete(ctx context.Context, id uuid.UUID) error
	// MarkInstallmentPaid flips is_paid only while it is still false. Returns false when no row matched.
	MarkInstallmentPaid(ctx context.Context, planID, installmentID uuid.UUID, method *PaymentMethod, paidDate time.Time) (bool, error)
}
