package billing

import (
	"testing"
	"time"

	"github.com/clinic/ledger/internal/domain/billing"
	"github.com/clinic/ledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// testInvoice builds a PENDING invoice with a single item worth total
func testInvoice(t *testing.T, code string, patientID uuid.UUID, patientName, total string) *billing.Invoice {
	t.Helper()
	inv, err := billing.NewInvoice(billing.NewInvoiceParams{
		Code:        code,
		PatientID:   patientID,
		PatientName: patientName,
		Items:       []billing.ItemInput{{Name: "Consultation", UnitPrice: dec(total), Quantity: 1}},
	})
	require.NoError(t, err)
	return inv
}

// withPaid returns a copy of inv with paid already applied
func withPaid(inv *billing.Invoice, paid string) *billing.Invoice {
	cp := *inv
	cp.PaidAmount = dec(paid)
	return &cp
}

// withStatus returns a copy of inv in status
func withStatus(inv *billing.Invoice, status billing.InvoiceStatus) *billing.Invoice {
	cp := *inv
	cp.Status = status
	cp.IsPaid = status == billing.InvoiceStatusPaid
	return &cp
}

func assertDomainCode(t *testing.T, err error, target *shared.DomainError) {
	t.Helper()
	require.Error(t, err)
	require.ErrorIs(t, err, target, "got %v", err)
}
