package billing

import (
	"strings"
	"time"

	"github.com/clinic/ledger/internal/domain/shared"
	"github.com/clinic/ledger/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentMethod is how a patient paid
type PaymentMethod string

const (
	PaymentMethodCash     PaymentMethod = "CASH"
	PaymentMethodCard     PaymentMethod = "CARD"
	PaymentMethodTransfer PaymentMethod = "TRANSFER"
	PaymentMethodCheck    PaymentMethod = "CHECK"
	PaymentMethodOther    PaymentMethod = "OTHER"
)

// IsValid checks if the method is known
func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodCard, PaymentMethodTransfer,
		PaymentMethodCheck, PaymentMethodOther:
		return true
	}
	return false
}

// String returns the string representation of PaymentMethod
func (m PaymentMethod) String() string {
	return string(m)
}

// ParsePaymentMethod validates a method string
func ParsePaymentMethod(value string) (PaymentMethod, error) {
	m := PaymentMethod(strings.ToUpper(strings.TrimSpace(value)))
	if !m.IsValid() {
		return "", shared.NewInvalidArgumentError("unknown payment method %q", value)
	}
	return m, nil
}

// PaymentStatus is the state of a payment record.
// Payments are recorded as PAID; there is no authorization step.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "PENDING"
	PaymentStatusPaid     PaymentStatus = "PAID"
	PaymentStatusCanceled PaymentStatus = "CANCELED"
)

// IsValid checks if the status is known
func (s PaymentStatus) IsValid() bool {
	return s == PaymentStatusPending || s == PaymentStatusPaid || s == PaymentStatusCanceled
}

// Payment is money received against one invoice
type Payment struct {
	shared.BaseEntity
	InvoiceID   uuid.UUID
	InvoiceCode string
	PatientID   uuid.UUID
	Amount      decimal.Decimal
	Currency    valueobject.Currency
	Method      PaymentMethod
	PaymentDate time.Time
	Reference   string
	Notes       string
	Status      PaymentStatus
}

// PaymentInput is the caller-supplied part of a payment
type PaymentInput struct {
	Amount    decimal.Decimal
	Method    PaymentMethod
	Date      *time.Time
	Reference string
	Notes     string
}

// NewPayment builds a payment record for inv. It does not touch the invoice.
func NewPayment(inv *Invoice, in PaymentInput) (*Payment, error) {
	if !in.Amount.IsPositive() {
		return nil, shared.NewInvalidArgumentError("payment amount must be greater than zero")
	}
	if !in.Amount.Equal(valueobject.RoundAmount(in.Amount)) {
		return nil, shared.NewInvalidArgumentError("payment amount cannot have more than %d decimal places", valueobject.AmountScale)
	}
	if !in.Method.IsValid() {
		return nil, shared.NewInvalidArgumentError("unknown payment method %q", in.Method)
	}
	if len(in.Reference) > 100 {
		return nil, shared.NewInvalidArgumentError("payment reference cannot exceed 100 characters")
	}

	p := &Payment{
		BaseEntity:  shared.NewBaseEntity(),
		InvoiceID:   inv.ID,
		InvoiceCode: inv.Code,
		PatientID:   inv.PatientID,
		Amount:      in.Amount,
		Currency:    inv.Currency,
		Method:      in.Method,
		PaymentDate: time.Now(),
		Reference:   strings.TrimSpace(in.Reference),
		Notes:       in.Notes,
		Status:      PaymentStatusPaid,
	}
	if in.Date != nil {
		p.PaymentDate = *in.Date
	}
	return p, nil
}
