package persistence

import (
	"context"
	"database/sql"
	"strings"

	appbilling "github.com/clinic/ledger/internal/application/billing"
	"github.com/clinic/ledger/internal/domain/billing"
	"gorm.io/gorm"
)

// GormTransactionScope implements TransactionScope using GORM transactions.
type GormTransactionScope struct {
	db            *gorm.DB
	readIsolation sql.IsolationLevel
}

// NewGormTransactionScope creates a new GormTransactionScope.
// readIsolation is one of "", read_committed, repeatable_read, serializable.
func NewGormTransactionScope(db *gorm.DB, readIsolation string) *GormTransactionScope {
	return &GormTransactionScope{db: db, readIsolation: parseIsolation(readIsolation)}
}

// Execute runs fn within a database transaction.
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(repos appbilling.TransactionalRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTransactionalRepositories{tx: tx})
	})
}

// ReadSnapshot runs fn within a read-only transaction. Isolation options are
// only passed to PostgreSQL; sqlite transactions are serializable already.
func (s *GormTransactionScope) ReadSnapshot(ctx context.Context, fn func(repos appbilling.TransactionalRepositories) error) error {
	var opts []*sql.TxOptions
	if isPostgres(s.db) {
		opts = append(opts, &sql.TxOptions{Isolation: s.readIsolation, ReadOnly: true})
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTransactionalRepositories{tx: tx})
	}, opts...)
}

func parseIsolation(level string) sql.IsolationLevel {
	switch strings.ToLower(level) {
	case "read_committed":
		return sql.LevelReadCommitted
	case "repeatable_read":
		return sql.LevelRepeatableRead
	case "serializable":
		return sql.LevelSerializable
	}
	return sql.LevelDefault
}

// gormTransactionalRepositories builds repositories bound to the transaction.
type gormTransactionalRepositories struct {
	tx *gorm.DB
}

func (r *gormTransactionalRepositories) Invoices() billing.InvoiceRepository {
	return NewGormInvoiceRepository(r.tx)
}

func (r *gormTransactionalRepositories) Payments() billing.PaymentRepository {
	return NewGormPaymentRepository(r.tx)
}

func (r *gormTransactionalRepositories) Plans() billing.PaymentPlanRepository {
	return NewGormPaymentPlanRepository(r.tx)
}

var (
	_ appbilling.TransactionScope          = (*GormTransactionScope)(nil)
	_ appbilling.TransactionalRepositories = (*gormTransactionalRepositories)(nil)
)
