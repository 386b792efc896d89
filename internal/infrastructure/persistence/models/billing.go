package models

import (
	"time"

	"github.com/clinic/ledger/internal/domain/billing"
	"github.com/clinic/ledger/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceModel is the persistence model for the Invoice aggregate root.
type InvoiceModel struct {
	VersionedRecord
	Code            string                `gorm:"type:varchar(50);not null;uniqueIndex"`
	PatientID       uuid.UUID             `gorm:"type:uuid;not null;index"`
	PatientName     string                `gorm:"type:varchar(200);not null;default:''"`
	DoctorID        *uuid.UUID            `gorm:"type:uuid;index"`
	BranchID        *uuid.UUID            `gorm:"type:uuid;index"`
	TreatmentID     *uuid.UUID            `gorm:"type:uuid;index"`
	TreatmentStepID *uuid.UUID            `gorm:"type:uuid"`
	Discount        decimal.Decimal       `gorm:"type:decimal(18,4);not null;default:0"`
	Currency        string                `gorm:"type:varchar(3);not null;default:'USD'"`
	TotalAmount     decimal.Decimal       `gorm:"type:decimal(18,4);not null"`
	PaidAmount      decimal.Decimal       `gorm:"type:decimal(18,4);not null;default:0"`
	Status          billing.InvoiceStatus `gorm:"type:varchar(20);not null;default:'PENDING';index"`
	IsPaid          bool                  `gorm:"not null;default:false"`
	ExpiresAt       *time.Time            `gorm:"index"`
	PaidAt          *time.Time
	PaymentMethod   *string            `gorm:"type:varchar(20)"`
	Notes           string             `gorm:"type:text"`
	Items           []InvoiceItemModel `gorm:"foreignKey:InvoiceID;references:ID"`
}

// TableName returns the table name for GORM
func (InvoiceModel) TableName() string {
	return "invoices"
}

// ToDomain converts the persistence model to a domain Invoice.
// Only loaded items are mapped; soft-deleted rows are expected to be filtered by the query.
func (m *InvoiceModel) ToDomain() *billing.Invoice {
	inv := &billing.Invoice{
		BaseAggregateRoot: m.aggregate(),
		Code:              m.Code,
		PatientID:         m.PatientID,
		PatientName:       m.PatientName,
		References: billing.References{
			DoctorID:        m.DoctorID,
			BranchID:        m.BranchID,
			TreatmentID:     m.TreatmentID,
			TreatmentStepID: m.TreatmentStepID,
		},
		Discount:    m.Discount,
		Currency:    valueobject.Currency(m.Currency),
		TotalAmount: m.TotalAmount,
		PaidAmount:  m.PaidAmount,
		Status:      m.Status,
		IsPaid:      m.IsPaid,
		ExpiresAt:   m.ExpiresAt,
		PaidAt:      m.PaidAt,
		Notes:       m.Notes,
	}
	if m.PaymentMethod != nil {
		method := billing.PaymentMethod(*m.PaymentMethod)
		inv.PaymentMethod = &method
	}
	if len(m.Items) > 0 {
		inv.Items = make([]billing.InvoiceItem, len(m.Items))
		for i := range m.Items {
			inv.Items[i] = m.Items[i].ToDomain()
		}
	}
	return inv
}

// FromDomain populates the header columns from a domain Invoice. Items are not copied.
func (m *InvoiceModel) FromDomain(inv *billing.Invoice) {
	m.VersionedRecord = versionedFrom(inv.BaseAggregateRoot)
	m.Code = inv.Code
	m.PatientID = inv.PatientID
	m.PatientName = inv.PatientName
	m.DoctorID = inv.DoctorID
	m.BranchID = inv.BranchID
	m.TreatmentID = inv.TreatmentID
	m.TreatmentStepID = inv.TreatmentStepID
	m.Discount = inv.Discount
	m.Currency = string(inv.Currency)
	m.TotalAmount = inv.TotalAmount
	m.PaidAmount = inv.PaidAmount
	m.Status = inv.Status
	m.IsPaid = inv.IsPaid
	m.ExpiresAt = inv.ExpiresAt
	m.PaidAt = inv.PaidAt
	m.Notes = inv.Notes
	m.PaymentMethod = nil
	if inv.PaymentMethod != nil {
		method := string(*inv.PaymentMethod)
		m.PaymentMethod = &method
	}
}

// InvoiceModelFromDomain creates a new persistence model from a domain Invoice.
func InvoiceModelFromDomain(inv *billing.Invoice) *InvoiceModel {
	m := &InvoiceModel{}
	m.FromDomain(inv)
	return m
}

// InvoiceItemModel is the persistence model for invoice line items.
type InvoiceItemModel struct {
	ID        uuid.UUID       `gorm:"type:uuid;primary_key"`
	InvoiceID uuid.UUID       `gorm:"type:uuid;not null;index"`
	Name      string          `gorm:"type:varchar(200);not null"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Quantity  int             `gorm:"not null"`
	Discount  decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	IsDeleted bool            `gorm:"not null;default:false;index"`
	DeletedAt *time.Time
	CreatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (InvoiceItemModel) TableName() string {
	return "invoice_items"
}

// ToDomain converts the persistence model to a domain InvoiceItem.
func (m *InvoiceItemModel) ToDomain() billing.InvoiceItem {
	return billing.InvoiceItem{
		ID:        m.ID,
		InvoiceID: m.InvoiceID,
		Name:      m.Name,
		UnitPrice: m.UnitPrice,
		Quantity:  m.Quantity,
		Discount:  m.Discount,
		IsDeleted: m.IsDeleted,
		DeletedAt: m.DeletedAt,
		CreatedAt: m.CreatedAt,
	}
}

// InvoiceItemModelFromDomain creates a new persistence model from a domain InvoiceItem.
func InvoiceItemModelFromDomain(item billing.InvoiceItem) InvoiceItemModel {
	return InvoiceItemModel{
		ID:        item.ID,
		InvoiceID: item.InvoiceID,
		Name:      item.Name,
		UnitPrice: item.UnitPrice,
		Quantity:  item.Quantity,
		Discount:  item.Discount,
		IsDeleted: item.IsDeleted,
		DeletedAt: item.DeletedAt,
		CreatedAt: item.CreatedAt,
	}
}

// PaymentModel is the persistence model for payments.
type PaymentModel struct {
	Record
	InvoiceID   uuid.UUID             `gorm:"type:uuid;not null;index"`
	InvoiceCode string                `gorm:"type:varchar(50);not null;default:''"`
	PatientID   uuid.UUID             `gorm:"type:uuid;not null;index"`
	Amount      decimal.Decimal       `gorm:"type:decimal(18,4);not null"`
	Currency    string                `gorm:"type:varchar(3);not null;default:'USD'"`
	Method      billing.PaymentMethod `gorm:"type:varchar(20);not null;index"`
	PaymentDate time.Time             `gorm:"not null;index"`
	Reference   string                `gorm:"type:varchar(100)"`
	Notes       string                `gorm:"type:text"`
	Status      billing.PaymentStatus `gorm:"type:varchar(20);not null;default:'PAID';index"`
}

// TableName returns the table name for GORM
func (PaymentModel) TableName() string {
	return "payments"
}

// ToDomain converts the persistence model to a domain Payment.
func (m *PaymentModel) ToDomain() *billing.Payment {
	return &billing.Payment{
		BaseEntity:  m.entity(),
		InvoiceID:   m.InvoiceID,
		InvoiceCode: m.InvoiceCode,
		PatientID:   m.PatientID,
		Amount:      m.Amount,
		Currency:    valueobject.Currency(m.Currency),
		Method:      m.Method,
		PaymentDate: m.PaymentDate,
		Reference:   m.Reference,
		Notes:       m.Notes,
		Status:      m.Status,
	}
}

// PaymentModelFromDomain creates a new persistence model from a domain Payment.
func PaymentModelFromDomain(p *billing.Payment) *PaymentModel {
	m := &PaymentModel{
		InvoiceID:   p.InvoiceID,
		InvoiceCode: p.InvoiceCode,
		PatientID:   p.PatientID,
		Amount:      p.Amount,
		Currency:    string(p.Currency),
		Method:      p.Method,
		PaymentDate: p.PaymentDate,
		Reference:   p.Reference,
		Notes:       p.Notes,
		Status:      p.Status,
	}
	m.Record = recordFrom(p.BaseEntity)
	return m
}

// PaymentPlanModel is the persistence model for the PaymentPlan aggregate root.
type PaymentPlanModel struct {
	VersionedRecord
	TreatmentID          uuid.UUID                 `gorm:"type:uuid;not null;uniqueIndex"`
	NumberOfInstallments int                       `gorm:"not null"`
	InstallmentAmount    decimal.Decimal           `gorm:"type:decimal(18,4);not null"`
	InitialPayment       decimal.Decimal           `gorm:"type:decimal(18,4);not null;default:0"`
	StartDate            time.Time                 `gorm:"not null"`
	Notes                string                    `gorm:"type:text"`
	Installments         []PaymentInstallmentModel `gorm:"foreignKey:PlanID;references:ID"`
}

// TableName returns the table name for GORM
func (PaymentPlanModel) TableName() string {
	return "payment_plans"
}

// ToDomain converts the persistence model to a domain PaymentPlan.
func (m *PaymentPlanModel) ToDomain() *billing.PaymentPlan {
	plan := &billing.PaymentPlan{
		BaseAggregateRoot: m.aggregate(),
		TreatmentID:       m.TreatmentID,
		PlanTerms: billing.PlanTerms{
			NumberOfInstallments: m.NumberOfInstallments,
			InstallmentAmount:    m.InstallmentAmount,
			InitialPayment:       m.InitialPayment,
			StartDate:            m.StartDate,
		},
		Notes: m.Notes,
	}
	plan.Installments = make([]billing.PaymentInstallment, len(m.Installments))
	for i := range m.Installments {
		plan.Installments[i] = m.Installments[i].ToDomain()
	}
	return plan
}

// FromDomain populates the plan columns. Installments are not copied.
func (m *PaymentPlanModel) FromDomain(p *billing.PaymentPlan) {
	m.VersionedRecord = versionedFrom(p.BaseAggregateRoot)
	m.TreatmentID = p.TreatmentID
	m.NumberOfInstallments = p.NumberOfInstallments
	m.InstallmentAmount = p.InstallmentAmount
	m.InitialPayment = p.InitialPayment
	m.StartDate = p.StartDate
	m.Notes = p.Notes
}

// PaymentPlanModelFromDomain creates a new persistence model from a domain PaymentPlan.
func PaymentPlanModelFromDomain(p *billing.PaymentPlan) *PaymentPlanModel {
	m := &PaymentPlanModel{}
	m.FromDomain(p)
	return m
}

// PaymentInstallmentModel is the persistence model for plan installments.
type PaymentInstallmentModel struct {
	Record
	PlanID            uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_installment_plan_number,priority:1"`
	InstallmentNumber int             `gorm:"not null;uniqueIndex:idx_installment_plan_number,priority:2"`
	Amount            decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	DueDate           time.Time       `gorm:"not null;index"`
	IsPaid            bool            `gorm:"not null;default:false"`
	PaidDate          *time.Time
	PaymentMethod     *string `gorm:"type:varchar(20)"`
}

// TableName returns the table name for GORM
func (PaymentInstallmentModel) TableName() string {
	return "payment_installments"
}

// ToDomain converts the persistence model to a domain PaymentInstallment.
func (m *PaymentInstallmentModel) ToDomain() billing.PaymentInstallment {
	inst := billing.PaymentInstallment{
		ID:                m.ID,
		PlanID:            m.PlanID,
		InstallmentNumber: m.InstallmentNumber,
		Amount:            m.Amount,
		DueDate:           m.DueDate,
		IsPaid:            m.IsPaid,
		PaidDate:          m.PaidDate,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
	if m.PaymentMethod != nil {
		method := billing.PaymentMethod(*m.PaymentMethod)
		inst.PaymentMethod = &method
	}
	return inst
}

// PaymentInstallmentModelFromDomain creates a new persistence model from a domain PaymentInstallment.
func PaymentInstallmentModelFromDomain(inst billing.PaymentInstallment) PaymentInstallmentModel {
	m := PaymentInstallmentModel{
		Record: Record{
			ID:        inst.ID,
			CreatedAt: inst.CreatedAt,
			UpdatedAt: inst.UpdatedAt,
		},
		PlanID:            inst.PlanID,
		InstallmentNumber: inst.InstallmentNumber,
		Amount:            inst.Amount,
		DueDate:           inst.DueDate,
		IsPaid:            inst.IsPaid,
		PaidDate:          inst.PaidDate,
	}
	if inst.PaymentMethod != nil {
		method := string(*inst.PaymentMethod)
		m.PaymentMethod = &method
	}
	return m
}

// BillingModels lists every model owned by the ledger, in dependency order
func BillingModels() []any {
	return []any{
		&InvoiceModel{},
		&InvoiceItemModel{},
		&PaymentModel{},
		&PaymentPlanModel{},
		&PaymentInstallmentModel{},
	}
}
