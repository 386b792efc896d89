package persistence

import (
	"strings"
)

// sortSpec whitelists the columns a list query may order by. Anything else
// falls back to the default column, so user input never reaches ORDER BY.
type sortSpec struct {
	columns  map[string]struct{}
	fallback string
}

func newSortSpec(fallback string, columns ...string) sortSpec {
	s := sortSpec{columns: make(map[string]struct{}, len(columns)+2), fallback: fallback}
	for _, c := range append(columns, "id", fallback) {
		s.columns[c] = struct{}{}
	}
	return s
}

// column returns field when it is whitelisted and the fallback otherwise
func (s sortSpec) column(field string) string {
	field = strings.TrimSpace(field)
	if _, ok := s.columns[field]; ok {
		return field
	}
	return s.fallback
}

func (s sortSpec) allows(field string) bool {
	_, ok := s.columns[field]
	return ok
}

// order builds the ORDER BY clause. id is appended as a tiebreaker so offset
// pages stay stable between requests.
func (s sortSpec) order(field, dir string) string {
	col, d := s.column(field), sortDirection(dir)
	if col == "id" {
		return "id " + d
	}
	return col + " " + d + ", id " + d
}

// sortDirection accepts asc in any case; everything else sorts descending
func sortDirection(dir string) string {
	if strings.EqualFold(strings.TrimSpace(dir), "asc") {
		return "ASC"
	}
	return "DESC"
}

var (
	invoiceSort = newSortSpec("created_at",
		"updated_at", "code", "patient_name", "total_amount", "paid_amount", "expires_at", "status")

	paymentSort = newSortSpec("payment_date",
		"created_at", "amount", "method", "invoice_code", "status")

	paymentPlanSort = newSortSpec("created_at",
		"updated_at", "start_date", "number_of_installments", "installment_amount")
)
