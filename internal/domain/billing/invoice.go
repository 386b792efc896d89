package billing

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/clinic/ledger/internal/domain/shared"
	"github.com/clinic/ledger/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceStatus is the lifecycle state of an invoice
type InvoiceStatus string

const (
	InvoiceStatusPending  InvoiceStatus = "PENDING"
	InvoiceStatusPaid     InvoiceStatus = "PAID"
	InvoiceStatusCanceled InvoiceStatus = "CANCELED"
	InvoiceStatusExpired  InvoiceStatus = "EXPIRED"
	InvoiceStatusDeleted  InvoiceStatus = "DELETED"
)

// AllInvoiceStatuses lists every status in display order
var AllInvoiceStatuses = []InvoiceStatus{
	InvoiceStatusPending,
	InvoiceStatusPaid,
	InvoiceStatusCanceled,
	InvoiceStatusExpired,
	InvoiceStatusDeleted,
}

// IsValid checks if the status is a known InvoiceStatus
func (s InvoiceStatus) IsValid() bool {
	switch s {
	case InvoiceStatusPending, InvoiceStatusPaid, InvoiceStatusCanceled,
		InvoiceStatusExpired, InvoiceStatusDeleted:
		return true
	}
	return false
}

// String returns the string representation of InvoiceStatus
func (s InvoiceStatus) String() string {
	return string(s)
}

// IsTerminal returns true for states that no longer accept edits
func (s InvoiceStatus) IsTerminal() bool {
	return s == InvoiceStatusPaid || s == InvoiceStatusCanceled || s == InvoiceStatusDeleted
}

// AcceptsPayments returns true if payments can still be applied
func (s InvoiceStatus) AcceptsPayments() bool {
	return s == InvoiceStatusPending || s == InvoiceStatusExpired
}

// IsReceivable reports whether invoices in this state count towards accounts receivable
func (s InvoiceStatus) IsReceivable() bool {
	return s != InvoiceStatusPaid && s != InvoiceStatusDeleted && s != InvoiceStatusCanceled
}

// PayableInvoiceStatuses are the states in which a payment may be applied
var PayableInvoiceStatuses = []InvoiceStatus{InvoiceStatusPending, InvoiceStatusExpired}

// ReceivableInvoiceStatuses are the states aggregated into accounts receivable
var ReceivableInvoiceStatuses = []InvoiceStatus{InvoiceStatusPending, InvoiceStatusExpired}

// invoiceTransitions holds explicit status changes. PAID is reached only
// through payment completion and never appears as a target here.
var invoiceTransitions = map[InvoiceStatus][]InvoiceStatus{
	InvoiceStatusPending:  {InvoiceStatusCanceled, InvoiceStatusExpired, InvoiceStatusDeleted},
	InvoiceStatusExpired:  {InvoiceStatusPending, InvoiceStatusCanceled, InvoiceStatusDeleted},
	InvoiceStatusCanceled: {InvoiceStatusDeleted},
}

// CanTransitionTo reports whether an explicit status change is allowed
func (s InvoiceStatus) CanTransitionTo(next InvoiceStatus) bool {
	for _, allowed := range invoiceTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ParseInvoiceStatus validates a status string
func ParseInvoiceStatus(value string) (InvoiceStatus, error) {
	s := InvoiceStatus(strings.ToUpper(strings.TrimSpace(value)))
	if !s.IsValid() {
		return "", shared.NewInvalidArgumentError("unknown invoice status %q", value)
	}
	return s, nil
}

// ItemInput describes a line item to be placed on an invoice
type ItemInput struct {
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int
	Discount  decimal.Decimal
}

// InvoiceItem is a line on an invoice. Replaced items are soft-deleted, never edited.
type InvoiceItem struct {
	ID        uuid.UUID
	InvoiceID uuid.UUID
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int
	Discount  decimal.Decimal
	IsDeleted bool
	DeletedAt *time.Time
	CreatedAt time.Time
}

// NewInvoiceItem validates input and creates an item bound to invoiceID
func NewInvoiceItem(invoiceID uuid.UUID, in ItemInput) (*InvoiceItem, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, shared.NewInvalidArgumentError("item name cannot be empty")
	}
	if len(name) > 200 {
		return nil, shared.NewInvalidArgumentError("item name cannot exceed 200 characters")
	}
	if in.UnitPrice.IsNegative() {
		return nil, shared.NewInvalidArgumentError("item %q unit price cannot be negative", name)
	}
	if in.Quantity < 1 {
		return nil, shared.NewInvalidArgumentError("item %q quantity must be at least 1", name)
	}
	if in.Discount.IsNegative() {
		return nil, shared.NewInvalidArgumentError("item %q discount cannot be negative", name)
	}
	return &InvoiceItem{
		ID:        uuid.New(),
		InvoiceID: invoiceID,
		Name:      name,
		UnitPrice: in.UnitPrice,
		Quantity:  in.Quantity,
		Discount:  in.Discount,
		CreatedAt: time.Now(),
	}, nil
}

// LineTotal is unit price × quantity − item discount
func (i InvoiceItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity))).Sub(i.Discount)
}

// ComputeTotal applies the invoice total formula to the active items.
// A negative result is rejected.
func ComputeTotal(items []InvoiceItem, discount decimal.Decimal) (decimal.Decimal, error) {
	if discount.IsNegative() {
		return decimal.Zero, shared.NewInvalidArgumentError("invoice discount cannot be negative")
	}
	subtotal := decimal.Zero
	for _, item := range items {
		if item.IsDeleted {
			continue
		}
		subtotal = subtotal.Add(item.LineTotal())
	}
	total := subtotal.Sub(discount)
	if total.IsNegative() {
		return decimal.Zero, shared.NewInvalidArgumentError(
			"invoice total cannot be negative: items %s, discount %s",
			subtotal.StringFixed(valueobject.AmountScale), discount.StringFixed(valueobject.AmountScale),
		).WithDetail("subtotal", subtotal.String()).WithDetail("discount", discount.String())
	}
	return total, nil
}

// References are the optional links from an invoice to other clinic records
type References struct {
	DoctorID        *uuid.UUID
	BranchID        *uuid.UUID
	TreatmentID     *uuid.UUID
	TreatmentStepID *uuid.UUID
}

// Invoice is the aggregate root of the ledger
type Invoice struct {
	shared.BaseAggregateRoot
	Code        string
	PatientID   uuid.UUID
	PatientName string
	References
	Items         []InvoiceItem
	Discount      decimal.Decimal
	Currency      valueobject.Currency
	TotalAmount   decimal.Decimal
	PaidAmount    decimal.Decimal
	Status        InvoiceStatus
	IsPaid        bool
	ExpiresAt     *time.Time
	PaidAt        *time.Time
	PaymentMethod *PaymentMethod
	Notes         string
}

// NewInvoiceParams carries everything needed to open an invoice
type NewInvoiceParams struct {
	Code        string
	PatientID   uuid.UUID
	PatientName string
	References  References
	Items       []ItemInput
	Discount    decimal.Decimal
	Currency    valueobject.Currency
	ExpiresAt   *time.Time
	Notes       string
}

// NewInvoice creates a PENDING invoice with its items and computed total
func NewInvoice(p NewInvoiceParams) (*Invoice, error) {
	if p.Code == "" {
		return nil, shared.NewInvalidArgumentError("invoice code cannot be empty")
	}
	if p.PatientID == uuid.Nil {
		return nil, shared.NewInvalidArgumentError("patient is required")
	}
	if len(p.Items) == 0 {
		return nil, shared.NewInvalidArgumentError("invoice must have at least one item")
	}
	currency := p.Currency
	if currency == "" {
		currency = valueobject.DefaultCurrency
	}

	inv := &Invoice{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Code:              p.Code,
		PatientID:         p.PatientID,
		PatientName:       p.PatientName,
		References:        p.References,
		Discount:          p.Discount,
		Currency:          currency,
		PaidAmount:        decimal.Zero,
		Status:            InvoiceStatusPending,
		ExpiresAt:         p.ExpiresAt,
		Notes:             p.Notes,
	}

	items, err := buildItems(inv.ID, p.Items)
	if err != nil {
		return nil, err
	}
	total, err := ComputeTotal(items, p.Discount)
	if err != nil {
		return nil, err
	}
	inv.Items = items
	inv.TotalAmount = total
	return inv, nil
}

func buildItems(invoiceID uuid.UUID, inputs []ItemInput) ([]InvoiceItem, error) {
	items := make([]InvoiceItem, 0, len(inputs))
	for _, in := range inputs {
		item, err := NewInvoiceItem(invoiceID, in)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, nil
}

// Balance is TotalAmount − PaidAmount
func (inv *Invoice) Balance() decimal.Decimal {
	return inv.TotalAmount.Sub(inv.PaidAmount)
}

// ActiveItems returns the items that have not been replaced
func (inv *Invoice) ActiveItems() []InvoiceItem {
	active := make([]InvoiceItem, 0, len(inv.Items))
	for _, item := range inv.Items {
		if !item.IsDeleted {
			active = append(active, item)
		}
	}
	return active
}

func (inv *Invoice) ensureEditable() error {
	if inv.Status.IsTerminal() {
		return shared.NewInvalidStateError("invoice %s is %s and can no longer be modified", inv.Code, inv.Status)
	}
	return nil
}

// InvoiceRevision is a partial update. Nil fields are left untouched.
type InvoiceRevision struct {
	Items           *[]ItemInput
	Discount        *decimal.Decimal
	DoctorID        *uuid.UUID
	BranchID        *uuid.UUID
	TreatmentID     *uuid.UUID
	TreatmentStepID *uuid.UUID
	ExpiresAt       *time.Time
	ClearExpiresAt  bool
	Notes           *string
}

// Revise applies a revision atomically: every check runs before any field
// changes, so a rejected revision leaves the invoice as it was. When items are
// replaced, the previous active items are returned marked deleted.
func (inv *Invoice) Revise(rev InvoiceRevision) ([]InvoiceItem, error) {
	if err := inv.ensureEditable(); err != nil {
		return nil, err
	}

	discount := inv.Discount
	if rev.Discount != nil {
		discount = *rev.Discount
	}

	items := inv.ActiveItems()
	var added []InvoiceItem
	if rev.Items != nil {
		if len(*rev.Items) == 0 {
			return nil, shared.NewInvalidArgumentError("invoice must have at least one item")
		}
		var err error
		added, err = buildItems(inv.ID, *rev.Items)
		if err != nil {
			return nil, err
		}
		items = added
	}

	total := inv.TotalAmount
	if rev.Items != nil || rev.Discount != nil {
		var err error
		total, err = ComputeTotal(items, discount)
		if err != nil {
			return nil, err
		}
		if total.LessThan(inv.PaidAmount) {
			return nil, shared.NewInvalidArgumentError(
				"new invoice total %s is below the amount already paid %s",
				total.StringFixed(valueobject.AmountScale), inv.PaidAmount.StringFixed(valueobject.AmountScale),
			)
		}
	}

	now := time.Now()
	var removed []InvoiceItem
	if rev.Items != nil {
		for _, item := range inv.ActiveItems() {
			item.IsDeleted = true
			item.DeletedAt = &now
			removed = append(removed, item)
		}
		inv.Items = added
	}
	inv.Discount = discount
	inv.TotalAmount = total

	if rev.DoctorID != nil {
		inv.DoctorID = rev.DoctorID
	}
	if rev.BranchID != nil {
		inv.BranchID = rev.BranchID
	}
	if rev.TreatmentID != nil {
		inv.TreatmentID = rev.TreatmentID
	}
	if rev.TreatmentStepID != nil {
		inv.TreatmentStepID = rev.TreatmentStepID
	}
	if rev.ClearExpiresAt {
		inv.ExpiresAt = nil
	} else if rev.ExpiresAt != nil {
		inv.ExpiresAt = rev.ExpiresAt
	}
	if rev.Notes != nil {
		inv.Notes = *rev.Notes
	}

	if inv.PaidAmount.IsPositive() && inv.PaidAmount.Equal(inv.TotalAmount) {
		inv.settle(now, inv.PaymentMethod)
	}

	inv.Touch(now)
	return removed, nil
}

// ChangeStatus performs an explicit status change. It reports whether anything changed.
func (inv *Invoice) ChangeStatus(next InvoiceStatus) (bool, error) {
	if !next.IsValid() {
		return false, shared.NewInvalidArgumentError("unknown invoice status %q", next)
	}
	if next == inv.Status {
		return false, nil
	}
	if inv.Status == InvoiceStatusPaid {
		return false, shared.NewInvalidStateError("invoice %s is PAID and its status cannot change", inv.Code)
	}
	if next == InvoiceStatusPaid {
		return false, shared.NewInvalidArgumentError("invoice %s becomes PAID only when payments cover its total", inv.Code)
	}
	if !inv.Status.CanTransitionTo(next) {
		return false, shared.NewInvalidStateError("invoice %s cannot move from %s to %s", inv.Code, inv.Status, next)
	}
	inv.Status = next
	inv.Touch(time.Now())
	return true, nil
}

// CheckPayment validates a prospective payment without applying it
func (inv *Invoice) CheckPayment(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return shared.NewInvalidArgumentError("payment amount must be greater than zero")
	}
	if !inv.Status.AcceptsPayments() {
		return shared.NewInvalidStateError("invoice %s is %s and does not accept payments", inv.Code, inv.Status)
	}
	if inv.PaidAmount.Add(amount).GreaterThan(inv.TotalAmount) {
		return OverpaymentError(inv.TotalAmount, inv.PaidAmount, amount)
	}
	return nil
}

// ApplyPayment adds amount to PaidAmount, settling the invoice when it is covered.
// Repositories perform the same transition as a single conditional update.
func (inv *Invoice) ApplyPayment(amount decimal.Decimal, method PaymentMethod, at time.Time) error {
	if err := inv.CheckPayment(amount); err != nil {
		return err
	}
	inv.PaidAmount = inv.PaidAmount.Add(amount)
	if inv.PaidAmount.GreaterThanOrEqual(inv.TotalAmount) {
		inv.settle(at, &method)
	}
	inv.Touch(at)
	return nil
}

func (inv *Invoice) settle(at time.Time, method *PaymentMethod) {
	inv.IsPaid = true
	inv.Status = InvoiceStatusPaid
	inv.PaidAt = &at
	if method != nil {
		inv.PaymentMethod = method
	}
}

// OverpaymentError reports a payment that would push PaidAmount above TotalAmount
func OverpaymentError(total, paid, attempted decimal.Decimal) *shared.DomainError {
	return shared.NewInvalidArgumentError(
		"payment exceeds invoice balance: total %s, already paid %s, attempted %s",
		total.StringFixed(valueobject.AmountScale),
		paid.StringFixed(valueobject.AmountScale),
		attempted.StringFixed(valueobject.AmountScale),
	).WithDetail("total", total.StringFixed(valueobject.AmountScale)).
		WithDetail("current", paid.StringFixed(valueobject.AmountScale)).
		WithDetail("attempted", attempted.StringFixed(valueobject.AmountScale))
}

// InvoiceCodePrefix is the default prefix of invoice codes
const InvoiceCodePrefix = "FAC"

// InvoiceCodes formats and parses <prefix>-<year>-<5 digit sequence> codes
type InvoiceCodes struct {
	Prefix string
}

// DefaultInvoiceCodes uses the FAC prefix
var DefaultInvoiceCodes = InvoiceCodes{Prefix: InvoiceCodePrefix}

// Format renders a sequenced code
func (c InvoiceCodes) Format(year, seq int) string {
	return fmt.Sprintf("%s-%d-%05d", c.Prefix, year, seq)
}

// Fallback is used when the sequenced code collides
func (c InvoiceCodes) Fallback(now time.Time) string {
	return fmt.Sprintf("%s-%d-%d", c.Prefix, now.Year(), now.UnixMilli())
}

// Pattern is a LIKE pattern matching only sequenced codes of a year
func (c InvoiceCodes) Pattern(year int) string {
	return fmt.Sprintf("%s-%d-_____", c.Prefix, year)
}

// Sequence extracts the sequence of a sequenced code.
// Fallback (timestamp) codes are reported as not sequenced.
func (c InvoiceCodes) Sequence(code string) (int, bool) {
	parts := strings.Split(code, "-")
	if len(parts) != 3 || parts[0] != c.Prefix || len(parts[2]) != 5 {
		return 0, false
	}
	seq, err := strconv.Atoi(parts[2])
	if err != nil || seq < 0 {
		return 0, false
	}
	return seq, true
}

// FormatInvoiceCode renders FAC-<year>-<seq>
func FormatInvoiceCode(year, seq int) string {
	return DefaultInvoiceCodes.Format(year, seq)
}

// FallbackInvoiceCode renders FAC-<year>-<unix millis>
func FallbackInvoiceCode(now time.Time) string {
	return DefaultInvoiceCodes.Fallback(now)
}

// InvoiceCodePattern matches sequenced FAC codes of a year
func InvoiceCodePattern(year int) string {
	return DefaultInvoiceCodes.Pattern(year)
}

// ParseInvoiceCodeSequence extracts the sequence of a FAC-<year>-<seq> code
func ParseInvoiceCodeSequence(code string) (int, bool) {
	return DefaultInvoiceCodes.Sequence(code)
}
