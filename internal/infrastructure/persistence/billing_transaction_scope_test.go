package persistence

import (
	"context"
	"database/sql"
	"testing"

	appbilling "github.com/clinic/ledger/internal/application/billing"
	"github.com/clinic/ledger/internal/domain/billing"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormTransactionScope_Execute(t *testing.T) {
	ctx := context.Background()

	t.Run("commits every write", func(t *testing.T) {
		database := newTestDatabase(t)
		scope := NewGormTransactionScope(database.DB, "")
		inv := newTestInvoice(t, "FAC-2026-00001", uuid.New(), "Ana", "100")

		err := scope.Execute(ctx, func(repos appbilling.TransactionalRepositories) error {
			if err := repos.Invoices().Create(ctx, inv); err != nil {
				return err
			}
			p, err := billing.NewPayment(inv, billing.PaymentInput{Amount: decimal.NewFromInt(10), Method: billing.PaymentMethodCash})
			if err != nil {
				return err
			}
			return repos.Payments().Create(ctx, p)
		})
		require.NoError(t, err)

		sum, err := NewGormPaymentRepository(database.DB).SumByInvoice(ctx, inv.ID)
		require.NoError(t, err)
		assert.True(t, sum.Equal(decimal.NewFromInt(10)))
	})

	t.Run("rolls back on error", func(t *testing.T) {
		database := newTestDatabase(t)
		scope := NewGormTransactionScope(database.DB, "")
		inv := newTestInvoice(t, "FAC-2026-00001", uuid.New(), "Ana", "100")

		err := scope.Execute(ctx, func(repos appbilling.TransactionalRepositories) error {
			if err := repos.Invoices().Create(ctx, inv); err != nil {
				return err
			}
			return assert.AnError
		})
		assert.ErrorIs(t, err, assert.AnError)

		exists, err := NewGormInvoiceRepository(database.DB).ExistsByCode(ctx, "FAC-2026-00001")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("read snapshot sees committed rows", func(t *testing.T) {
		database := newTestDatabase(t)
		createInvoices(t, NewGormInvoiceRepository(database.DB), newTestInvoice(t, "FAC-2026-00001", uuid.New(), "Ana", "100"))
		scope := NewGormTransactionScope(database.DB, "repeatable_read")

		var batch []billing.Invoice
		err := scope.ReadSnapshot(ctx, func(repos appbilling.TransactionalRepositories) error {
			var err error
			batch, err = repos.Invoices().FindReceivableBatch(ctx, billing.ReceivableFilter{}, nil, 20)
			return err
		})
		require.NoError(t, err)
		assert.Len(t, batch, 1)
	})
}

func TestParseIsolation(t *testing.T) {
	assert.Equal(t, sql.LevelDefault, parseIsolation(""))
	assert.Equal(t, sql.LevelReadCommitted, parseIsolation("read_committed"))
	assert.Equal(t, sql.LevelRepeatableRead, parseIsolation("REPEATABLE_READ"))
	assert.Equal(t, sql.LevelSerializable, parseIsolation("serializable"))
	assert.Equal(t, sql.LevelDefault, parseIsolation("chaos"))
}
