// Package billing holds the clinic ledger: invoices and their line items,
// payments applied against them, treatment payment plans with their
// installment schedules, and the accounts-receivable fold derived from
// outstanding invoices.
//
// Invariants kept by this package:
//   - TotalAmount = Σ(unit price × quantity − item discount) − invoice discount, never negative
//   - 0 ≤ PaidAmount ≤ TotalAmount
//   - a PAID invoice is immutable
//   - a plan with a paid installment cannot be restructured or deleted
//
// Balances, aging, priority and plan summaries are computed on read and never stored.
package billing
