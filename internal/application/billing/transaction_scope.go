package billing

import (
	"context"

	"github.com/clinic/ledger/internal/domain/billing"
)

// TransactionScope provides transactional access to the ledger repositories.
// Repositories obtained inside fn share one database transaction that is
// committed when fn returns nil and rolled back otherwise.
type TransactionScope interface {
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
	// ReadSnapshot runs fn in a read-only transaction at the configured
	// receivables isolation level, so a multi-batch scan sees one snapshot
	// where the database supports it.
	ReadSnapshot(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories provides access to the ledger repositories within a transaction.
//
// Aggregate boundaries:
//   - Invoices: the Invoice aggregate with its items. Payment application goes
//     through its conditional ApplyPayment, never through Update.
//   - Payments: append-only payment records.
//   - Plans: the PaymentPlan aggregate with its installments.
type TransactionalRepositories interface {
	Invoices() billing.InvoiceRepository
	Payments() billing.PaymentRepository
	Plans() billing.PaymentPlanRepository
}

// NoOpTransactionScope runs functions directly against the given repositories.
// Useful for tests and for stores without transactions.
type NoOpTransactionScope struct {
	invoices billing.InvoiceRepository
	payments billing.PaymentRepository
	plans    billing.PaymentPlanRepository
}

// NewNoOpTransactionScope creates a NoOpTransactionScope with the given repositories.
func NewNoOpTransactionScope(
	invoices billing.InvoiceRepository,
	payments billing.PaymentRepository,
	plans billing.PaymentPlanRepository,
) *NoOpTransactionScope {
	return &NoOpTransactionScope{invoices: invoices, payments: payments, plans: plans}
}

// Execute runs the function without a real transaction.
func (s *NoOpTransactionScope) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	return fn(s)
}

// ReadSnapshot runs the function without a real transaction.
func (s *NoOpTransactionScope) ReadSnapshot(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	return fn(s)
}

// Invoices returns the invoice repository.
func (s *NoOpTransactionScope) Invoices() billing.InvoiceRepository { return s.invoices }

// Payments returns the payment repository.
func (s *NoOpTransactionScope) Payments() billing.PaymentRepository { return s.payments }

// Plans returns the payment plan repository.
func (s *NoOpTransactionScope) Plans() billing.PaymentPlanRepository { return s.plans }

var (
	_ TransactionScope          = (*NoOpTransactionScope)(nil)
	_ TransactionalRepositories = (*NoOpTransactionScope)(nil)
)
