package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/clinic/ledger/internal/domain/billing"
	"github.com/clinic/ledger/internal/infrastructure/config"
	"github.com/clinic/ledger/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// newTestDatabase opens a private in-memory sqlite database with the full schema
func newTestDatabase(t *testing.T) *Database {
	t.Helper()
	database, err := NewDatabase(&config.DatabaseConfig{
		Driver:     config.DriverSQLite,
		SQLitePath: "file:" + uuid.NewString() + "?mode=memory&cache=shared",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	require.NoError(t, database.AutoMigrate(context.Background()))
	return database
}

func seedPatient(t *testing.T, db *gorm.DB, first, last string) uuid.UUID {
	t.Helper()
	p := models.PatientModel{ID: uuid.New(), FirstName: first, LastName: last}
	require.NoError(t, db.Create(&p).Error)
	return p.ID
}

// newTestInvoice builds a pending invoice with one item of the given total
func newTestInvoice(t *testing.T, code string, patientID uuid.UUID, patientName, total string) *billing.Invoice {
	t.Helper()
	inv, err := billing.NewInvoice(billing.NewInvoiceParams{
		Code:        code,
		PatientID:   patientID,
		PatientName: patientName,
		Items: []billing.ItemInput{
			{Name: "Consultation", UnitPrice: decimal.RequireFromString(total), Quantity: 1},
		},
	})
	require.NoError(t, err)
	return inv
}

// at returns a fixed UTC instant offset by minutes, for stable created_at ordering
func at(minutes int) time.Time {
	return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC).Add(time.Duration(minutes) * time.Minute)
}

func createInvoices(t *testing.T, repo *GormInvoiceRepository, invoices ...*billing.Invoice) {
	t.Helper()
	for _, inv := range invoices {
		require.NoError(t, repo.Create(context.Background(), inv))
	}
}
