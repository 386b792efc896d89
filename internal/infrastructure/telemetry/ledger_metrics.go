package telemetry

import (
	"context"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// LedgerMeterName is the instrumentation scope of the ledger counters
const LedgerMeterName = "clinic.ledger"

var (
	attrCurrency = attribute.Key("ledger.currency")
	attrMethod   = attribute.Key("payment.method")
	attrSettled  = attribute.Key("invoice.settled")
	attrReason   = attribute.Key("rejection.reason")
	attrKind     = attribute.Key("export.kind")
)

// LedgerMetrics counts ledger activity. All methods are safe on a nil
// receiver, which records nothing.
type LedgerMetrics struct {
	invoicesCreated  metric.Int64Counter
	paymentsApplied  metric.Int64Counter
	paymentVolume    metric.Float64Counter
	paymentsRejected metric.Int64Counter
	installmentsPaid metric.Int64Counter
	exportRows       metric.Int64Counter
}

// NewLedgerMetrics creates the ledger instruments on meter
func NewLedgerMetrics(meter metric.Meter) (*LedgerMetrics, error) {
	var (
		m   LedgerMetrics
		err error
	)
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
		unit string
	}{
		{&m.invoicesCreated, "ledger_invoices_created_total", "Invoices opened", "{invoice}"},
		{&m.paymentsApplied, "ledger_payments_applied_total", "Payments applied to invoices", "{payment}"},
		{&m.paymentsRejected, "ledger_payments_rejected_total", "Payments refused, by error code", "{payment}"},
		{&m.installmentsPaid, "ledger_installments_paid_total", "Plan installments marked paid", "{installment}"},
		{&m.exportRows, "ledger_export_rows_total", "Records written by CSV exports", "{row}"},
	}
	for _, c := range counters {
		if *c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit(c.unit)); err != nil {
			return nil, err
		}
	}
	m.paymentVolume, err = meter.Float64Counter("ledger_payment_amount_total",
		metric.WithDescription("Sum of applied payment amounts in invoice currency"))
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *LedgerMetrics) InvoiceCreated(ctx context.Context, currency string) {
	if m == nil {
		return
	}
	m.invoicesCreated.Add(ctx, 1, metric.WithAttributes(attrCurrency.String(currency)))
}

// PaymentApplied records one payment; settled marks the payment that completed its invoice
func (m *LedgerMetrics) PaymentApplied(ctx context.Context, method, currency string, amount decimal.Decimal, settled bool) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attrMethod.String(method), attrCurrency.String(currency), attrSettled.Bool(settled))
	m.paymentsApplied.Add(ctx, 1, attrs)
	m.paymentVolume.Add(ctx, amount.InexactFloat64(), metric.WithAttributes(attrCurrency.String(currency)))
}

func (m *LedgerMetrics) PaymentRejected(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.paymentsRejected.Add(ctx, 1, metric.WithAttributes(attrReason.String(reason)))
}

func (m *LedgerMetrics) InstallmentPaid(ctx context.Context) {
	if m == nil {
		return
	}
	m.installmentsPaid.Add(ctx, 1)
}

func (m *LedgerMetrics) ExportRows(ctx context.Context, kind string, rows int) {
	if m == nil || rows <= 0 {
		return
	}
	m.exportRows.Add(ctx, int64(rows), metric.WithAttributes(attrKind.String(kind)))
}
