package billing

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/clinic/ledger/internal/domain/billing"
	"github.com/clinic/ledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// sliceInvoiceRepository serves keyset batches from an in-memory slice.
// Methods it does not override panic through the nil embedded interface.
type sliceInvoiceRepository struct {
	billing.InvoiceRepository
	invoices []billing.Invoice
	batches  int
	failAt   int
}

func newSliceInvoiceRepository(invoices []billing.Invoice) *sliceInvoiceRepository {
	sorted := append([]billing.Invoice(nil), invoices...)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
		}
		return sorted[i].ID.String() < sorted[j].ID.String()
	})
	return &sliceInvoiceRepository{invoices: sorted}
}

func (r *sliceInvoiceRepository) page(match func(*billing.Invoice) bool, after *billing.Cursor, limit int) ([]billing.Invoice, error) {
	r.batches++
	if r.failAt > 0 && r.batches == r.failAt {
		return nil, fmt.Errorf("connection reset")
	}
	var out []billing.Invoice
	for i := range r.invoices {
		inv := &r.invoices[i]
		if after != nil {
			if inv.CreatedAt.Before(after.CreatedAt) ||
				(inv.CreatedAt.Equal(after.CreatedAt) && inv.ID.String() <= after.ID.String()) {
				continue
			}
		}
		if !match(inv) {
			continue
		}
		out = append(out, *inv)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *sliceInvoiceRepository) FindReceivableBatch(_ context.Context, filter billing.ReceivableFilter, after *billing.Cursor, limit int) ([]billing.Invoice, error) {
	return r.page(func(inv *billing.Invoice) bool {
		if !inv.Status.IsReceivable() || !inv.Balance().IsPositive() {
			return false
		}
		if filter.PatientID != nil && inv.PatientID != *filter.PatientID {
			return false
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(inv.PatientName), strings.ToLower(filter.Search)) {
			return false
		}
		return true
	}, after, limit)
}

func (r *sliceInvoiceRepository) FindBatch(_ context.Context, filter billing.InvoiceFilter, after *billing.Cursor, limit int) ([]billing.Invoice, error) {
	return r.page(func(inv *billing.Invoice) bool {
		return filter.IncludeDeleted || inv.Status != billing.InvoiceStatusDeleted
	}, after, limit)
}

type receivableBook struct {
	alice, bob, carol uuid.UUID
	invoices          []billing.Invoice
}

// newReceivableBook builds 25 open invoices over three patients plus noise
// that must never show up: a paid, a canceled and a deleted invoice.
func newReceivableBook(t *testing.T) receivableBook {
	b := receivableBook{alice: uuid.New(), bob: uuid.New(), carol: uuid.New()}
	add := func(patient uuid.UUID, name, total, paid string, status billing.InvoiceStatus, daysPastDue int) {
		inv := testInvoice(t, fmt.Sprintf("FAC-2026-%05d", len(b.invoices)+1), patient, name, total)
		inv.PaidAmount = dec(paid)
		inv.Status = status
		inv.CreatedAt = fixedNow.Add(-time.Duration(100-len(b.invoices)) * time.Hour)
		if daysPastDue >= 0 {
			due := fixedNow.Add(-time.Duration(daysPastDue)*24*time.Hour - time.Hour)
			inv.ExpiresAt = &due
		}
		b.invoices = append(b.invoices, *inv)
	}
	for i := 0; i < 10; i++ {
		add(b.alice, "Alice Martin", "100", "40", billing.InvoiceStatusPending, i)
	}
	for i := 0; i < 10; i++ {
		add(b.bob, "Bob Stone", "50", "0", billing.InvoiceStatusExpired, 20)
	}
	for i := 0; i < 5; i++ {
		add(b.carol, "Carol Diaz", "10", "0", billing.InvoiceStatusPending, -1)
	}
	add(b.alice, "Alice Martin", "500", "500", billing.InvoiceStatusPaid, 90)
	add(b.bob, "Bob Stone", "500", "0", billing.InvoiceStatusCanceled, 90)
	add(b.carol, "Carol Diaz", "500", "0", billing.InvoiceStatusDeleted, 90)
	return b
}

func newReceivableService(repo billing.InvoiceRepository, directory billing.Directory, batchSize int) *ReceivableService {
	cfg := DefaultConfig()
	cfg.BatchSize = batchSize
	s := NewReceivableService(NewNoOpTransactionScope(repo, nil, nil), directory, cfg)
	s.now = fixedClock
	return s
}

func TestReceivableService_BatchInvariance(t *testing.T) {
	book := newReceivableBook(t)
	var reference []billing.ReceivableEntry

	for _, size := range []int{1, 7, 20, 1000} {
		t.Run(fmt.Sprintf("batch size %d", size), func(t *testing.T) {
			repo := newSliceInvoiceRepository(book.invoices)
			svc := newReceivableService(repo, nil, size)

			entries, err := svc.Select(context.Background(), ReceivableQuery{})

			require.NoError(t, err)
			require.Len(t, entries, 3)
			if reference == nil {
				reference = entries
			}
			assert.Equal(t, len(reference), len(entries))
			for i := range entries {
				assert.Equal(t, reference[i].PatientID, entries[i].PatientID)
				assert.True(t, reference[i].TotalDebt.Equal(entries[i].TotalDebt))
				assert.Equal(t, reference[i].DaysOverdue, entries[i].DaysOverdue)
				assert.Equal(t, reference[i].InvoiceCount, entries[i].InvoiceCount)
			}
			if size == 1 {
				assert.Equal(t, 26, repo.batches, "25 single-row batches plus the empty tail")
			}
		})
	}
}

func TestReceivableService_Select(t *testing.T) {
	book := newReceivableBook(t)
	svc := newReceivableService(newSliceInvoiceRepository(book.invoices), nil, 7)

	t.Run("sorted by debt descending", func(t *testing.T) {
		entries, err := svc.Select(context.Background(), ReceivableQuery{
			ReceivableCriteria: billing.ReceivableCriteria{SortBy: billing.ReceivableSortTotalDebt, SortDesc: true},
		})
		require.NoError(t, err)
		require.Len(t, entries, 3)

		assert.Equal(t, book.alice, entries[0].PatientID)
		assert.True(t, dec("600").Equal(entries[0].TotalDebt))
		assert.Equal(t, 9, entries[0].DaysOverdue)
		assert.Equal(t, billing.PriorityLow, entries[0].Priority)

		assert.Equal(t, book.bob, entries[1].PatientID)
		assert.True(t, dec("500").Equal(entries[1].TotalDebt))
		assert.Equal(t, billing.PriorityMedium, entries[1].Priority)

		assert.Equal(t, book.carol, entries[2].PatientID)
		assert.Equal(t, 0, entries[2].DaysOverdue)
		assert.Equal(t, 5, entries[2].InvoiceCount)
	})

	t.Run("derived filters apply after aggregation", func(t *testing.T) {
		atLeast := 10
		entries, err := svc.Select(context.Background(), ReceivableQuery{
			ReceivableCriteria: billing.ReceivableCriteria{DaysOverdueMin: &atLeast},
		})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, book.bob, entries[0].PatientID)
	})

	t.Run("search narrows the scan", func(t *testing.T) {
		entries, err := svc.Select(context.Background(), ReceivableQuery{
			ReceivableFilter: billing.ReceivableFilter{Search: "carol"},
		})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "Carol Diaz", entries[0].PatientName)
	})
}

func TestReceivableService_ListAndSummary(t *testing.T) {
	book := newReceivableBook(t)
	svc := newReceivableService(newSliceInvoiceRepository(book.invoices), nil, 20)

	page, err := svc.List(context.Background(), ReceivableQuery{
		ReceivableCriteria: billing.ReceivableCriteria{SortBy: billing.ReceivableSortPatientName},
		Page:               2,
		PageSize:           2,
	})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Carol Diaz", page.Items[0].PatientName)
	assert.Equal(t, int64(3), page.Meta.Total)
	assert.Equal(t, 2, page.Meta.TotalPages)
	assert.True(t, page.Meta.HasPreviousPage)

	summary, err := svc.Summary(context.Background(), ReceivableQuery{})
	require.NoError(t, err)
	assert.True(t, dec("1150").Equal(summary.TotalOutstanding), "got %s", summary.TotalOutstanding)
	assert.Equal(t, 3, summary.PatientCount)
	assert.Equal(t, 25, summary.InvoiceCount)
	assert.Equal(t, 20, summary.MaxDaysOverdue)
	assert.Equal(t, 1, summary.ByPriority[billing.PriorityMedium])
	assert.Equal(t, 2, summary.ByPriority[billing.PriorityLow])
}

func TestReceivableService_ForPatient(t *testing.T) {
	book := newReceivableBook(t)
	directory := new(MockDirectory)
	svc := newReceivableService(newSliceInvoiceRepository(book.invoices), directory, 20)

	t.Run("patient with debt", func(t *testing.T) {
		directory.On("FindPatient", mock.Anything, book.bob).Return(&billing.Party{ID: book.bob, Name: "Bob Stone"}, nil)

		entry, err := svc.ForPatient(context.Background(), book.bob)

		require.NoError(t, err)
		assert.True(t, dec("500").Equal(entry.TotalDebt))
		assert.Len(t, entry.Invoices, 10)
	})

	t.Run("patient without debt", func(t *testing.T) {
		id := uuid.New()
		directory.On("FindPatient", mock.Anything, id).Return(&billing.Party{ID: id, Name: "Dan Webb"}, nil)

		entry, err := svc.ForPatient(context.Background(), id)

		require.NoError(t, err)
		assert.True(t, entry.TotalDebt.IsZero())
		assert.Equal(t, "Dan Webb", entry.PatientName)
		assert.Equal(t, billing.PriorityLow, entry.Priority)
	})

	t.Run("unknown patient", func(t *testing.T) {
		id := uuid.New()
		directory.On("FindPatient", mock.Anything, id).Return(nil, shared.NewNotFoundError("patient", id))

		_, err := svc.ForPatient(context.Background(), id)

		assertDomainCode(t, err, shared.ErrNotFound)
	})
}

func TestReceivableService_PropagatesStoreErrors(t *testing.T) {
	book := newReceivableBook(t)
	repo := newSliceInvoiceRepository(book.invoices)
	repo.failAt = 2
	svc := newReceivableService(repo, nil, 5)

	_, err := svc.Select(context.Background(), ReceivableQuery{})

	assert.EqualError(t, err, "connection reset")
}
