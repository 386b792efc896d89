package billing

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"iter"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/clinic/ledger/internal/domain/billing"
	"github.com/clinic/ledger/internal/domain/shared"
	"github.com/clinic/ledger/internal/domain/shared/valueobject"
	"github.com/clinic/ledger/internal/infrastructure/logger"
	"github.com/clinic/ledger/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ErrExportConsumed is yielded when an export sequence is iterated a second time
var ErrExportConsumed = errors.New("export already consumed")

// ExportKind names an exportable data set
type ExportKind string

const (
	ExportInvoices    ExportKind = "invoices"
	ExportPayments    ExportKind = "payments"
	ExportReceivables ExportKind = "receivables"
)

// ExportService streams ledger data as CSV. Each value of a returned sequence
// is one record terminated by a newline; the header comes first. Rows are
// pulled from the store lazily in fixed batches while the consumer iterates.
type ExportService struct {
	invoices    billing.InvoiceRepository
	payments    billing.PaymentRepository
	receivables *ReceivableService
	batchSize   int
	headers     cases.Caser
	metrics     *telemetry.LedgerMetrics
}

// NewExportService creates a new ExportService
func NewExportService(
	invoices billing.InvoiceRepository,
	payments billing.PaymentRepository,
	receivables *ReceivableService,
	cfg Config,
) *ExportService {
	cfg = cfg.withDefaults()
	return &ExportService{
		invoices:    invoices,
		payments:    payments,
		receivables: receivables,
		batchSize:   cfg.ExportBatchSize,
		headers:     cases.Title(language.English),
		metrics:     cfg.Metrics,
	}
}

var (
	invoiceColumns = []string{
		"code", "patient_name", "status", "currency", "total_amount", "paid_amount",
		"balance", "created_at", "expires_at", "paid_at", "payment_method",
	}
	paymentColumns = []string{
		"invoice_code", "amount", "currency", "payment_method", "status", "payment_date", "reference",
	}
	receivableColumns = []string{
		"patient_name", "total_debt", "days_overdue", "priority", "invoice_count",
	}
)

// ExportInvoices streams invoices matching filter ordered by creation
func (s *ExportService) ExportInvoices(ctx context.Context, filter billing.InvoiceFilter) iter.Seq2[string, error] {
	return s.stream(ctx, ExportInvoices, invoiceColumns, func(yield func([]string) bool) error {
		var after *billing.Cursor
		for {
			batch, err := s.invoices.FindBatch(ctx, filter, after, s.batchSize)
			if err != nil {
				return err
			}
			for i := range batch {
				if !yield(invoiceRecord(&batch[i])) {
					return nil
				}
			}
			if len(batch) < s.batchSize {
				return nil
			}
			last := batch[len(batch)-1]
			after = &billing.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
		}
	})
}

// ExportPayments streams payments matching filter ordered by creation
func (s *ExportService) ExportPayments(ctx context.Context, filter billing.PaymentFilter) iter.Seq2[string, error] {
	return s.stream(ctx, ExportPayments, paymentColumns, func(yield func([]string) bool) error {
		var after *billing.Cursor
		for {
			batch, err := s.payments.FindBatch(ctx, filter, after, s.batchSize)
			if err != nil {
				return err
			}
			for i := range batch {
				if !yield(paymentRecord(&batch[i])) {
					return nil
				}
			}
			if len(batch) < s.batchSize {
				return nil
			}
			last := batch[len(batch)-1]
			after = &billing.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
		}
	})
}

// ExportReceivables streams the receivable entries matching q in sorted order.
// The fold itself runs when iteration starts.
func (s *ExportService) ExportReceivables(ctx context.Context, q ReceivableQuery) iter.Seq2[string, error] {
	return s.stream(ctx, ExportReceivables, receivableColumns, func(yield func([]string) bool) error {
		entries, err := s.receivables.Select(ctx, q)
		if err != nil {
			return err
		}
		for i := range entries {
			if !yield(receivableRecord(&entries[i])) {
				return nil
			}
		}
		return nil
	})
}

// ParseExportKind validates an export name
func ParseExportKind(value string) (ExportKind, error) {
	kind := ExportKind(strings.ToLower(strings.TrimSpace(value)))
	switch kind {
	case ExportInvoices, ExportPayments, ExportReceivables:
		return kind, nil
	}
	return "", shared.NewInvalidArgumentError("unknown export %q, expected invoices, payments or receivables", value)
}

// stream wraps a record producer into a single-use CSV line sequence. An
// error from the producer or a cancelled context is yielded once and ends
// the sequence.
func (s *ExportService) stream(ctx context.Context, kind ExportKind, columns []string, produce func(yield func([]string) bool) error) iter.Seq2[string, error] {
	var consumed atomic.Bool
	return func(yield func(string, error) bool) {
		if !consumed.CompareAndSwap(false, true) {
			yield("", ErrExportConsumed)
			return
		}

		var (
			buf  bytes.Buffer
			rows int
		)
		w := csv.NewWriter(&buf)
		line := func(record []string) (string, error) {
			buf.Reset()
			if err := w.Write(record); err != nil {
				return "", err
			}
			w.Flush()
			return buf.String(), w.Error()
		}

		header, err := line(s.headerLabels(columns))
		if !yield(header, err) || err != nil {
			return
		}

		stopped := false
		err = produce(func(record []string) bool {
			if err := ctx.Err(); err != nil {
				yield("", err)
				stopped = true
				return false
			}
			l, err := line(record)
			if !yield(l, err) || err != nil {
				stopped = true
				return false
			}
			rows++
			return true
		})
		if err != nil && !stopped {
			yield("", err)
		}
		s.metrics.ExportRows(ctx, string(kind), rows)
		logger.L(ctx).Info("export finished",
			zap.String("kind", string(kind)),
			zap.Int("rows", rows),
			zap.Bool("complete", err == nil && !stopped),
		)
	}
}

// headerLabels turns snake_case column keys into "Title Case" labels
func (s *ExportService) headerLabels(columns []string) []string {
	labels := make([]string, len(columns))
	for i, c := range columns {
		labels[i] = s.headers.String(strings.ReplaceAll(c, "_", " "))
	}
	return labels
}

func invoiceRecord(inv *billing.Invoice) []string {
	method := ""
	if inv.PaymentMethod != nil {
		method = inv.PaymentMethod.String()
	}
	return []string{
		inv.Code,
		inv.PatientName,
		inv.Status.String(),
		inv.Currency.String(),
		formatAmount(inv.TotalAmount),
		formatAmount(inv.PaidAmount),
		formatAmount(inv.Balance()),
		formatTime(&inv.CreatedAt),
		formatTime(inv.ExpiresAt),
		formatTime(inv.PaidAt),
		method,
	}
}

func paymentRecord(p *billing.Payment) []string {
	return []string{
		p.InvoiceCode,
		formatAmount(p.Amount),
		p.Currency.String(),
		p.Method.String(),
		string(p.Status),
		formatTime(&p.PaymentDate),
		p.Reference,
	}
}

func receivableRecord(e *billing.ReceivableEntry) []string {
	return []string{
		e.PatientName,
		formatAmount(e.TotalDebt),
		strconv.Itoa(e.DaysOverdue),
		string(e.Priority),
		strconv.Itoa(e.InvoiceCount),
	}
}

func formatAmount(d decimal.Decimal) string {
	return d.StringFixed(valueobject.AmountScale)
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
