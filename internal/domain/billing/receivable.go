package billing

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/clinic/ledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Priority ranks how urgently a patient's debt should be collected
type Priority string

const (
	PriorityHigh   Priority = "HIGH"
	PriorityMedium Priority = "MEDIUM"
	PriorityLow    Priority = "LOW"
)

// Aging thresholds in days
const (
	HighPriorityAfterDays   = 30
	MediumPriorityAfterDays = 15
)

// IsValid checks if the priority is known
func (p Priority) IsValid() bool {
	return p == PriorityHigh || p == PriorityMedium || p == PriorityLow
}

func (p Priority) rank() int {
	switch p {
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 1
	}
	return 0
}

// ParsePriority validates a priority string
func ParsePriority(value string) (Priority, error) {
	p := Priority(strings.ToUpper(strings.TrimSpace(value)))
	if !p.IsValid() {
		return "", shared.NewInvalidArgumentError("unknown priority %q", value)
	}
	return p, nil
}

// PriorityFor maps days overdue to a priority
func PriorityFor(daysOverdue int) Priority {
	switch {
	case daysOverdue > HighPriorityAfterDays:
		return PriorityHigh
	case daysOverdue > MediumPriorityAfterDays:
		return PriorityMedium
	}
	return PriorityLow
}

// DaysOverdue is max(0, floor((now − expiresAt) / 24h)); no due date means 0
func DaysOverdue(expiresAt *time.Time, now time.Time) int {
	if expiresAt == nil {
		return 0
	}
	elapsed := now.Sub(*expiresAt)
	if elapsed <= 0 {
		return 0
	}
	return int(math.Floor(elapsed.Hours() / 24))
}

// ReceivableInvoice summarizes one outstanding invoice inside an entry
type ReceivableInvoice struct {
	InvoiceID   uuid.UUID       `json:"invoice_id"`
	Code        string          `json:"code"`
	CreatedAt   time.Time       `json:"created_at"`
	ExpiresAt   *time.Time      `json:"expires_at,omitempty"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	PaidAmount  decimal.Decimal `json:"paid_amount"`
	Balance     decimal.Decimal `json:"balance"`
	DaysOverdue int             `json:"days_overdue"`
}

// ReceivableEntry is the outstanding debt of one patient
type ReceivableEntry struct {
	PatientID    uuid.UUID           `json:"patient_id"`
	PatientName  string              `json:"patient_name"`
	TotalDebt    decimal.Decimal     `json:"total_debt"`
	DaysOverdue  int                 `json:"days_overdue"`
	Priority     Priority            `json:"priority"`
	InvoiceCount int                 `json:"invoice_count"`
	Invoices     []ReceivableInvoice `json:"invoices"`
}

// ReceivableAccumulator folds invoices into per-patient entries. Adding the
// same invoices in one call or across any number of batches gives the same
// entries; totals do not depend on batch boundaries or batch order.
type ReceivableAccumulator struct {
	now     time.Time
	entries map[uuid.UUID]*ReceivableEntry
	order   []uuid.UUID
}

// NewReceivableAccumulator starts an empty fold evaluated at now
func NewReceivableAccumulator(now time.Time) *ReceivableAccumulator {
	return &ReceivableAccumulator{
		now:     now,
		entries: make(map[uuid.UUID]*ReceivableEntry),
	}
}

// Add folds a batch of invoices. Non-receivable statuses and non-positive
// balances are skipped.
func (a *ReceivableAccumulator) Add(invoices ...Invoice) {
	for i := range invoices {
		a.add(&invoices[i])
	}
}

func (a *ReceivableAccumulator) add(inv *Invoice) {
	if !inv.Status.IsReceivable() {
		return
	}
	balance := inv.Balance()
	if !balance.IsPositive() {
		return
	}
	days := DaysOverdue(inv.ExpiresAt, a.now)

	entry, ok := a.entries[inv.PatientID]
	if !ok {
		entry = &ReceivableEntry{
			PatientID:   inv.PatientID,
			PatientName: inv.PatientName,
			TotalDebt:   decimal.Zero,
		}
		a.entries[inv.PatientID] = entry
		a.order = append(a.order, inv.PatientID)
	}
	if entry.PatientName == "" {
		entry.PatientName = inv.PatientName
	}
	entry.TotalDebt = entry.TotalDebt.Add(balance)
	if days > entry.DaysOverdue {
		entry.DaysOverdue = days
	}
	entry.Priority = PriorityFor(entry.DaysOverdue)
	entry.InvoiceCount++
	entry.Invoices = append(entry.Invoices, ReceivableInvoice{
		InvoiceID:   inv.ID,
		Code:        inv.Code,
		CreatedAt:   inv.CreatedAt,
		ExpiresAt:   inv.ExpiresAt,
		TotalAmount: inv.TotalAmount,
		PaidAmount:  inv.PaidAmount,
		Balance:     balance,
		DaysOverdue: days,
	})
}

// Merge folds another accumulator into this one, keeping this one's order first
func (a *ReceivableAccumulator) Merge(other *ReceivableAccumulator) {
	for _, id := range other.order {
		src := other.entries[id]
		dst, ok := a.entries[id]
		if !ok {
			cp := *src
			cp.Invoices = append([]ReceivableInvoice(nil), src.Invoices...)
			a.entries[id] = &cp
			a.order = append(a.order, id)
			continue
		}
		dst.TotalDebt = dst.TotalDebt.Add(src.TotalDebt)
		if src.DaysOverdue > dst.DaysOverdue {
			dst.DaysOverdue = src.DaysOverdue
		}
		dst.Priority = PriorityFor(dst.DaysOverdue)
		dst.InvoiceCount += src.InvoiceCount
		dst.Invoices = append(dst.Invoices, src.Invoices...)
	}
}

// Len returns the number of patients with positive debt
func (a *ReceivableAccumulator) Len() int {
	return len(a.order)
}

// Entries returns copies of the entries in first-seen order
func (a *ReceivableAccumulator) Entries() []ReceivableEntry {
	out := make([]ReceivableEntry, 0, len(a.order))
	for _, id := range a.order {
		e := *a.entries[id]
		e.Invoices = append([]ReceivableInvoice(nil), e.Invoices...)
		out = append(out, e)
	}
	return out
}

// ReceivableSortField names a sortable entry attribute
type ReceivableSortField string

const (
	ReceivableSortPatientName  ReceivableSortField = "patient_name"
	ReceivableSortTotalDebt    ReceivableSortField = "total_debt"
	ReceivableSortDaysOverdue  ReceivableSortField = "days_overdue"
	ReceivableSortPriority     ReceivableSortField = "priority"
	ReceivableSortInvoiceCount ReceivableSortField = "invoice_count"
)

var receivableComparators = map[ReceivableSortField]func(a, b *ReceivableEntry) int{
	ReceivableSortPatientName: func(a, b *ReceivableEntry) int {
		return strings.Compare(strings.ToLower(a.PatientName), strings.ToLower(b.PatientName))
	},
	ReceivableSortTotalDebt: func(a, b *ReceivableEntry) int {
		return a.TotalDebt.Cmp(b.TotalDebt)
	},
	ReceivableSortDaysOverdue: func(a, b *ReceivableEntry) int {
		return a.DaysOverdue - b.DaysOverdue
	},
	ReceivableSortPriority: func(a, b *ReceivableEntry) int {
		return a.Priority.rank() - b.Priority.rank()
	},
	ReceivableSortInvoiceCount: func(a, b *ReceivableEntry) int {
		return a.InvoiceCount - b.InvoiceCount
	},
}

// ParseReceivableSortField validates a sort field, defaulting to total_debt
func ParseReceivableSortField(value string) (ReceivableSortField, error) {
	if value == "" {
		return ReceivableSortTotalDebt, nil
	}
	f := ReceivableSortField(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := receivableComparators[f]; !ok {
		return "", shared.NewInvalidArgumentError("cannot sort receivables by %q", value)
	}
	return f, nil
}

// ReceivableCriteria are the filters evaluated on derived values, after aggregation
type ReceivableCriteria struct {
	DaysOverdueMin *int
	DaysOverdueMax *int
	Priority       *Priority
	SortBy         ReceivableSortField
	SortDesc       bool
}

// Matches reports whether an entry passes the derived-value filters
func (c ReceivableCriteria) Matches(e *ReceivableEntry) bool {
	if c.DaysOverdueMin != nil && e.DaysOverdue < *c.DaysOverdueMin {
		return false
	}
	if c.DaysOverdueMax != nil && e.DaysOverdue > *c.DaysOverdueMax {
		return false
	}
	if c.Priority != nil && e.Priority != *c.Priority {
		return false
	}
	return true
}

// Select filters and sorts entries. Ties keep their input order.
func (c ReceivableCriteria) Select(entries []ReceivableEntry) []ReceivableEntry {
	out := make([]ReceivableEntry, 0, len(entries))
	for i := range entries {
		if c.Matches(&entries[i]) {
			out = append(out, entries[i])
		}
	}
	field := c.SortBy
	if field == "" {
		field = ReceivableSortTotalDebt
	}
	cmp := receivableComparators[field]
	sort.SliceStable(out, func(i, j int) bool {
		r := cmp(&out[i], &out[j])
		if c.SortDesc {
			return r > 0
		}
		return r < 0
	})
	return out
}

// ReceivableSummary totals the receivable book
type ReceivableSummary struct {
	TotalOutstanding decimal.Decimal  `json:"total_outstanding"`
	PatientCount     int              `json:"patient_count"`
	InvoiceCount     int              `json:"invoice_count"`
	MaxDaysOverdue   int              `json:"max_days_overdue"`
	ByPriority       map[Priority]int `json:"by_priority"`
}

// Summarize totals a set of entries
func Summarize(entries []ReceivableEntry) ReceivableSummary {
	s := ReceivableSummary{
		TotalOutstanding: decimal.Zero,
		ByPriority: map[Priority]int{
			PriorityHigh:   0,
			PriorityMedium: 0,
			PriorityLow:    0,
		},
	}
	for _, e := range entries {
		s.TotalOutstanding = s.TotalOutstanding.Add(e.TotalDebt)
		s.PatientCount++
		s.InvoiceCount += e.InvoiceCount
		if e.DaysOverdue > s.MaxDaysOverdue {
			s.MaxDaysOverdue = e.DaysOverdue
		}
		s.ByPriority[e.Priority]++
	}
	return s
}
