package billing

import (
	"time"

	"github.com/clinic/ledger/internal/domain/billing"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ==================== Invoice DTOs ====================

// InvoiceItemInput is one line of a create or update request
type InvoiceItemInput struct {
	Name      string          `json:"name" binding:"required,min=1,max=200"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity" binding:"required,min=1"`
	Discount  decimal.Decimal `json:"discount"`
}

// CreateInvoiceRequest opens a new invoice
type CreateInvoiceRequest struct {
	PatientID       uuid.UUID          `json:"patient_id" binding:"required"`
	DoctorID        *uuid.UUID         `json:"doctor_id"`
	BranchID        *uuid.UUID         `json:"branch_id"`
	TreatmentID     *uuid.UUID         `json:"treatment_id"`
	TreatmentStepID *uuid.UUID         `json:"treatment_step_id"`
	Items           []InvoiceItemInput `json:"items" binding:"required,min=1,dive"`
	Discount        decimal.Decimal    `json:"discount"`
	Currency        string             `json:"currency" binding:"omitempty,len=3"`
	ExpiresAt       *time.Time         `json:"expires_at"`
	Notes           string             `json:"notes" binding:"max=2000"`
}

// UpdateInvoiceRequest revises an unpaid invoice. Omitted fields are left untouched.
type UpdateInvoiceRequest struct {
	Items           *[]InvoiceItemInput `json:"items"`
	Discount        *decimal.Decimal    `json:"discount"`
	DoctorID        *uuid.UUID          `json:"doctor_id"`
	BranchID        *uuid.UUID          `json:"branch_id"`
	TreatmentID     *uuid.UUID          `json:"treatment_id"`
	TreatmentStepID *uuid.UUID          `json:"treatment_step_id"`
	ExpiresAt       *time.Time          `json:"expires_at"`
	ClearExpiresAt  bool                `json:"clear_expires_at"`
	Notes           *string             `json:"notes" binding:"omitempty,max=2000"`
}

// ChangeInvoiceStatusRequest moves an invoice to another status
type ChangeInvoiceStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// InvoiceItemResponse is an active invoice line
type InvoiceItemResponse struct {
	ID        uuid.UUID       `json:"id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	Discount  decimal.Decimal `json:"discount"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// InvoiceResponse is an invoice in API responses
type InvoiceResponse struct {
	ID              uuid.UUID             `json:"id"`
	Code            string                `json:"code"`
	PatientID       uuid.UUID             `json:"patient_id"`
	PatientName     string                `json:"patient_name"`
	DoctorID        *uuid.UUID            `json:"doctor_id,omitempty"`
	BranchID        *uuid.UUID            `json:"branch_id,omitempty"`
	TreatmentID     *uuid.UUID            `json:"treatment_id,omitempty"`
	TreatmentStepID *uuid.UUID            `json:"treatment_step_id,omitempty"`
	Items           []InvoiceItemResponse `json:"items"`
	Discount        decimal.Decimal       `json:"discount"`
	Currency        string                `json:"currency"`
	TotalAmount     decimal.Decimal       `json:"total_amount"`
	PaidAmount      decimal.Decimal       `json:"paid_amount"`
	Balance         decimal.Decimal       `json:"balance"`
	Status          string                `json:"status"`
	IsPaid          bool                  `json:"is_paid"`
	ExpiresAt       *time.Time            `json:"expires_at,omitempty"`
	PaidAt          *time.Time            `json:"paid_at,omitempty"`
	PaymentMethod   *string               `json:"payment_method,omitempty"`
	Notes           string                `json:"notes,omitempty"`
	Version         int                   `json:"version"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

// ToInvoiceResponse converts the aggregate, listing active items only
func ToInvoiceResponse(inv *billing.Invoice) InvoiceResponse {
	items := make([]InvoiceItemResponse, 0, len(inv.Items))
	for _, item := range inv.ActiveItems() {
		items = append(items, InvoiceItemResponse{
			ID:        item.ID,
			Name:      item.Name,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
			Discount:  item.Discount,
			LineTotal: item.LineTotal(),
		})
	}
	var method *string
	if inv.PaymentMethod != nil {
		m := inv.PaymentMethod.String()
		method = &m
	}
	return InvoiceResponse{
		ID:              inv.ID,
		Code:            inv.Code,
		PatientID:       inv.PatientID,
		PatientName:     inv.PatientName,
		DoctorID:        inv.DoctorID,
		BranchID:        inv.BranchID,
		TreatmentID:     inv.TreatmentID,
		TreatmentStepID: inv.TreatmentStepID,
		Items:           items,
		Discount:        inv.Discount,
		Currency:        inv.Currency.String(),
		TotalAmount:     inv.TotalAmount,
		PaidAmount:      inv.PaidAmount,
		Balance:         inv.Balance(),
		Status:          inv.Status.String(),
		IsPaid:          inv.IsPaid,
		ExpiresAt:       inv.ExpiresAt,
		PaidAt:          inv.PaidAt,
		PaymentMethod:   method,
		Notes:           inv.Notes,
		Version:         inv.Version,
		CreatedAt:       inv.CreatedAt,
		UpdatedAt:       inv.UpdatedAt,
	}
}

// ToInvoiceResponses converts a list of invoices
func ToInvoiceResponses(invoices []billing.Invoice) []InvoiceResponse {
	out := make([]InvoiceResponse, len(invoices))
	for i := range invoices {
		out[i] = ToInvoiceResponse(&invoices[i])
	}
	return out
}

// ==================== Payment DTOs ====================

// ApplyPaymentRequest records money received against an invoice
type ApplyPaymentRequest struct {
	InvoiceID   uuid.UUID       `json:"invoice_id" binding:"required"`
	Amount      decimal.Decimal `json:"amount"`
	Method      string          `json:"payment_method" binding:"required"`
	PaymentDate *time.Time      `json:"payment_date"`
	Reference   string          `json:"reference" binding:"max=100"`
	Notes       string          `json:"notes" binding:"max=2000"`
	// IdempotencyKey comes from the Idempotency-Key header, not the body
	IdempotencyKey string `json:"-"`
}

// PaymentResponse is a payment in API responses
type PaymentResponse struct {
	ID          uuid.UUID       `json:"id"`
	InvoiceID   uuid.UUID       `json:"invoice_id"`
	InvoiceCode string          `json:"invoice_code"`
	PatientID   uuid.UUID       `json:"patient_id"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Method      string          `json:"payment_method"`
	PaymentDate time.Time       `json:"payment_date"`
	Reference   string          `json:"reference,omitempty"`
	Notes       string          `json:"notes,omitempty"`
	Status      string          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
}

// PaymentReceipt is the outcome of applying a payment
type PaymentReceipt struct {
	Payment PaymentResponse `json:"payment"`
	Invoice InvoiceResponse `json:"invoice"`
}

// ToPaymentResponse converts a payment
func ToPaymentResponse(p *billing.Payment) PaymentResponse {
	return PaymentResponse{
		ID:          p.ID,
		InvoiceID:   p.InvoiceID,
		InvoiceCode: p.InvoiceCode,
		PatientID:   p.PatientID,
		Amount:      p.Amount,
		Currency:    p.Currency.String(),
		Method:      p.Method.String(),
		PaymentDate: p.PaymentDate,
		Reference:   p.Reference,
		Notes:       p.Notes,
		Status:      string(p.Status),
		CreatedAt:   p.CreatedAt,
	}
}

// ToPaymentResponses converts a list of payments
func ToPaymentResponses(payments []billing.Payment) []PaymentResponse {
	out := make([]PaymentResponse, len(payments))
	for i := range payments {
		out[i] = ToPaymentResponse(&payments[i])
	}
	return out
}

// ==================== Payment plan DTOs ====================

// CreatePlanRequest sets up installments for a treatment
type CreatePlanRequest struct {
	TreatmentID          uuid.UUID       `json:"treatment_id" binding:"required"`
	NumberOfInstallments int             `json:"number_of_installments" binding:"required,min=1,max=120"`
	InstallmentAmount    decimal.Decimal `json:"installment_amount"`
	InitialPayment       decimal.Decimal `json:"initial_payment"`
	StartDate            time.Time       `json:"start_date"` // defaults to now
	Notes                string          `json:"notes" binding:"max=2000"`
}

// UpdatePlanRequest revises a plan that has no paid installments
type UpdatePlanRequest struct {
	NumberOfInstallments *int             `json:"number_of_installments" binding:"omitempty,min=1,max=120"`
	InstallmentAmount    *decimal.Decimal `json:"installment_amount"`
	InitialPayment       *decimal.Decimal `json:"initial_payment"`
	StartDate            *time.Time       `json:"start_date"`
	Notes                *string          `json:"notes" binding:"omitempty,max=2000"`
}

// MarkInstallmentPaidRequest records an installment as paid
type MarkInstallmentPaidRequest struct {
	PaymentMethod *string    `json:"payment_method"`
	PaidDate      *time.Time `json:"paid_date"`
}

// InstallmentResponse is one scheduled installment
type InstallmentResponse struct {
	ID                uuid.UUID       `json:"id"`
	InstallmentNumber int             `json:"installment_number"`
	Amount            decimal.Decimal `json:"amount"`
	DueDate           time.Time       `json:"due_date"`
	IsPaid            bool            `json:"is_paid"`
	IsOverdue         bool            `json:"is_overdue"`
	PaidDate          *time.Time      `json:"paid_date,omitempty"`
	PaymentMethod     *string         `json:"payment_method,omitempty"`
}

// PlanResponse is a payment plan with its schedule
type PlanResponse struct {
	ID                   uuid.UUID             `json:"id"`
	TreatmentID          uuid.UUID             `json:"treatment_id"`
	NumberOfInstallments int                   `json:"number_of_installments"`
	InstallmentAmount    decimal.Decimal       `json:"installment_amount"`
	InitialPayment       decimal.Decimal       `json:"initial_payment"`
	TotalAmount          decimal.Decimal       `json:"total_amount"`
	StartDate            time.Time             `json:"start_date"`
	Notes                string                `json:"notes,omitempty"`
	Installments         []InstallmentResponse `json:"installments"`
	Summary              billing.PlanSummary   `json:"summary"`
	Version              int                   `json:"version"`
	CreatedAt            time.Time             `json:"created_at"`
	UpdatedAt            time.Time             `json:"updated_at"`
}

// ToPlanResponse converts a plan, deriving overdue flags and the summary at now
func ToPlanResponse(p *billing.PaymentPlan, now time.Time) PlanResponse {
	installments := make([]InstallmentResponse, len(p.Installments))
	for i, inst := range p.Installments {
		var method *string
		if inst.PaymentMethod != nil {
			m := inst.PaymentMethod.String()
			method = &m
		}
		installments[i] = InstallmentResponse{
			ID:                inst.ID,
			InstallmentNumber: inst.InstallmentNumber,
			Amount:            inst.Amount,
			DueDate:           inst.DueDate,
			IsPaid:            inst.IsPaid,
			IsOverdue:         inst.IsOverdue(now),
			PaidDate:          inst.PaidDate,
			PaymentMethod:     method,
		}
	}
	return PlanResponse{
		ID:                   p.ID,
		TreatmentID:          p.TreatmentID,
		NumberOfInstallments: p.NumberOfInstallments,
		InstallmentAmount:    p.InstallmentAmount,
		InitialPayment:       p.InitialPayment,
		TotalAmount:          p.Total(),
		StartDate:            p.StartDate,
		Notes:                p.Notes,
		Installments:         installments,
		Summary:              p.Summary(now),
		Version:              p.Version,
		CreatedAt:            p.CreatedAt,
		UpdatedAt:            p.UpdatedAt,
	}
}

// ==================== Receivable DTOs ====================

// ReceivableQuery combines the repository filter with the derived-value criteria
type ReceivableQuery struct {
	billing.ReceivableFilter
	billing.ReceivableCriteria
	Page     int
	PageSize int
}
