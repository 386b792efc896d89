package models

import (
	"time"

	"github.com/clinic/ledger/internal/domain/billing"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// The tables below belong to the patient, staff and treatment modules. The
// ledger only reads them; soft-deleted rows are invisible through gorm.DeletedAt.

// PatientModel is the read model of a patient
type PatientModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	FirstName string    `gorm:"type:varchar(100);not null"`
	LastName  string    `gorm:"type:varchar(100);not null;default:''"`
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

// TableName returns the table name for GORM
func (PatientModel) TableName() string {
	return "patients"
}

// ToParty converts the patient to a billing party
func (m *PatientModel) ToParty() *billing.Party {
	return &billing.Party{ID: m.ID, Name: fullName(m.FirstName, m.LastName)}
}

// DoctorModel is the read model of a doctor
type DoctorModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	FirstName string    `gorm:"type:varchar(100);not null"`
	LastName  string    `gorm:"type:varchar(100);not null;default:''"`
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

// TableName returns the table name for GORM
func (DoctorModel) TableName() string {
	return "doctors"
}

// ToParty converts the doctor to a billing party
func (m *DoctorModel) ToParty() *billing.Party {
	return &billing.Party{ID: m.ID, Name: fullName(m.FirstName, m.LastName)}
}

// BranchModel is the read model of a clinic branch
type BranchModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	Name      string    `gorm:"type:varchar(200);not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

// TableName returns the table name for GORM
func (BranchModel) TableName() string {
	return "branches"
}

// ToParty converts the branch to a billing party
func (m *BranchModel) ToParty() *billing.Party {
	return &billing.Party{ID: m.ID, Name: m.Name}
}

// TreatmentModel is the read model of a treatment
type TreatmentModel struct {
	ID        uuid.UUID       `gorm:"type:uuid;primary_key"`
	PatientID uuid.UUID       `gorm:"type:uuid;not null;index"`
	Name      string          `gorm:"type:varchar(200);not null"`
	Price     decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	Status    string          `gorm:"type:varchar(30);not null;default:'ACTIVE'"`
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

// TableName returns the table name for GORM
func (TreatmentModel) TableName() string {
	return "treatments"
}

// ToDomain converts the model to the billing view of a treatment
func (m *TreatmentModel) ToDomain() *billing.Treatment {
	return &billing.Treatment{
		ID:        m.ID,
		PatientID: m.PatientID,
		Name:      m.Name,
		Price:     m.Price,
		Status:    m.Status,
	}
}

// TreatmentStepModel is the read model of a treatment step
type TreatmentStepModel struct {
	ID          uuid.UUID `gorm:"type:uuid;primary_key"`
	TreatmentID uuid.UUID `gorm:"type:uuid;not null;index"`
	Name        string    `gorm:"type:varchar(200);not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   gorm.DeletedAt `gorm:"index"`
}

// TableName returns the table name for GORM
func (TreatmentStepModel) TableName() string {
	return "treatment_steps"
}

// ToDomain converts the model to the billing view of a treatment step
func (m *TreatmentStepModel) ToDomain() *billing.TreatmentStep {
	return &billing.TreatmentStep{ID: m.ID, TreatmentID: m.TreatmentID, Name: m.Name}
}

// DirectoryModels lists the collaborator tables
func DirectoryModels() []any {
	return []any{
		&PatientModel{},
		&DoctorModel{},
		&BranchModel{},
		&TreatmentModel{},
		&TreatmentStepModel{},
	}
}

func fullName(first, last string) string {
	if last == "" {
		return first
	}
	if first == "" {
		return last
	}
	return first + " " + last
}
