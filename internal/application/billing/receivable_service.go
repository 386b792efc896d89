package billing

import (
	"context"
	"time"

	"github.com/clinic/ledger/internal/domain/billing"
	"github.com/clinic/ledger/internal/domain/shared"
	"github.com/clinic/ledger/internal/infrastructure/logger"
	"github.com/clinic/ledger/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ReceivableService derives accounts receivable from open invoices. Nothing is
// cached: every call folds the current invoices.
type ReceivableService struct {
	scope     TransactionScope
	directory billing.Directory
	batchSize int
	now       func() time.Time
}

// NewReceivableService creates a new ReceivableService
func NewReceivableService(scope TransactionScope, directory billing.Directory, cfg Config) *ReceivableService {
	cfg = cfg.withDefaults()
	return &ReceivableService{
		scope:     scope,
		directory: directory,
		batchSize: cfg.BatchSize,
		now:       time.Now,
	}
}

// List returns one page of per-patient receivables
func (s *ReceivableService) List(ctx context.Context, q ReceivableQuery) (shared.Paginated[billing.ReceivableEntry], error) {
	entries, err := s.Select(ctx, q)
	if err != nil {
		return shared.Paginated[billing.ReceivableEntry]{}, err
	}
	page := shared.Filter{Page: q.Page, PageSize: q.PageSize}
	page.Normalize()
	return shared.NewPaginated(
		shared.PaginateSlice(entries, page.Page, page.PageSize),
		int64(len(entries)), page.Page, page.PageSize,
	), nil
}

// Select returns every entry matching q, filtered and sorted, without paging
func (s *ReceivableService) Select(ctx context.Context, q ReceivableQuery) ([]billing.ReceivableEntry, error) {
	acc, err := s.fold(ctx, q.ReceivableFilter)
	if err != nil {
		return nil, err
	}
	return q.ReceivableCriteria.Select(acc.Entries()), nil
}

// Summary totals the receivables matching q
func (s *ReceivableService) Summary(ctx context.Context, q ReceivableQuery) (billing.ReceivableSummary, error) {
	entries, err := s.Select(ctx, q)
	if err != nil {
		return billing.ReceivableSummary{}, err
	}
	return billing.Summarize(entries), nil
}

// ForPatient returns the receivable of one patient. A patient without debt
// gets an entry with zero debt.
func (s *ReceivableService) ForPatient(ctx context.Context, patientID uuid.UUID) (*billing.ReceivableEntry, error) {
	patient, err := s.directory.FindPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	acc, err := s.fold(ctx, billing.ReceivableFilter{PatientID: &patientID})
	if err != nil {
		return nil, err
	}
	for _, e := range acc.Entries() {
		if e.PatientID == patientID {
			return &e, nil
		}
	}
	return &billing.ReceivableEntry{
		PatientID:   patient.ID,
		PatientName: patient.Name,
		TotalDebt:   decimal.Zero,
		Priority:    billing.PriorityLow,
		Invoices:    []billing.ReceivableInvoice{},
	}, nil
}

// fold streams matching invoices in keyset batches through the accumulator
// inside one read snapshot.
func (s *ReceivableService) fold(ctx context.Context, filter billing.ReceivableFilter) (_ *billing.ReceivableAccumulator, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "receivable", "fold")
	defer telemetry.End(span, &err)

	acc := billing.NewReceivableAccumulator(s.now())
	batches := 0
	err = s.scope.ReadSnapshot(ctx, func(repos TransactionalRepositories) error {
		var after *billing.Cursor
		for {
			if err := ctx.Err(); err != nil {
				return err
			}
			batch, err := repos.Invoices().FindReceivableBatch(ctx, filter, after, s.batchSize)
			if err != nil {
				return err
			}
			batches++
			acc.Add(batch...)
			if len(batch) < s.batchSize {
				return nil
			}
			last := batch[len(batch)-1]
			after = &billing.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
		}
	})
	if err != nil {
		return nil, err
	}

	telemetry.SetAttributes(span, "receivable.batches", batches, "receivable.patients", acc.Len())
	logger.L(ctx).Debug("receivables folded", zap.Int("batches", batches), zap.Int("patients", acc.Len()))
	return acc, nil
}
