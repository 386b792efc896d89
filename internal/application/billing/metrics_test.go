package billing

import (
	"context"
	"testing"

	"github.com/clinic/ledger/internal/domain/billing"
	"github.com/clinic/ledger/internal/domain/shared"
	"github.com/clinic/ledger/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// counterTotals collects every int64 counter, summed over all attribute sets
func counterTotals(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	totals := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					totals[m.Name] += dp.Value
				}
			}
		}
	}
	return totals
}

func TestPaymentService_RecordsMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	metrics, err := telemetry.NewLedgerMetrics(provider.Meter(telemetry.LedgerMeterName))
	require.NoError(t, err)

	f := newPaymentFixture(t)
	f.service.metrics = metrics

	settled := withStatus(withPaid(f.invoice, "100"), billing.InvoiceStatusPaid)
	settled.IsPaid = true
	f.invoices.On("FindByID", mock.Anything, f.invoice.ID).Return(f.invoice, nil).Once()
	f.invoices.On("ApplyPayment", mock.Anything, f.invoice.ID, amountIs("100"), billing.PaymentMethodCard, fixedNow).Return(true, nil)
	f.payments.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.invoices.On("FindByID", mock.Anything, f.invoice.ID).Return(settled, nil).Once()

	_, err = f.service.Apply(context.Background(), ApplyPaymentRequest{
		InvoiceID: f.invoice.ID, Amount: dec("100"), Method: "CARD",
	})
	require.NoError(t, err)

	f.invoices.On("FindByID", mock.Anything, f.invoice.ID).Return(settled, nil)
	_, err = f.service.Apply(context.Background(), ApplyPaymentRequest{
		InvoiceID: f.invoice.ID, Amount: dec("5"), Method: "CARD",
	})
	require.Error(t, err)

	totals := counterTotals(t, reader)
	assert.Equal(t, int64(1), totals["ledger_payments_applied_total"])
	assert.Equal(t, int64(1), totals["ledger_payments_rejected_total"])
}

func TestRejectionCode(t *testing.T) {
	assert.Equal(t, "INVALID_STATE", rejectionCode(shared.NewInvalidStateError("invoice is paid")))
	assert.Equal(t, "INTERNAL", rejectionCode(assert.AnError))
}
