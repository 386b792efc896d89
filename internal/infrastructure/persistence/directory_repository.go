package persistence

import (
	"context"
	"errors"

	"github.com/clinic/ledger/internal/domain/billing"
	"github.com/clinic/ledger/internal/domain/shared"
	"github.com/clinic/ledger/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormDirectory resolves patients, doctors and branches from their tables.
// Soft-deleted rows are excluded by GORM's DeletedAt scope.
type GormDirectory struct {
	db *gorm.DB
}

// NewGormDirectory creates a new GormDirectory
func NewGormDirectory(db *gorm.DB) *GormDirectory {
	return &GormDirectory{db: db}
}

// FindPatient finds a patient by ID
func (d *GormDirectory) FindPatient(ctx context.Context, id uuid.UUID) (*billing.Party, error) {
	var model models.PatientModel
	if err := first(ctx, d.db, &model, "patient", id); err != nil {
		return nil, err
	}
	return model.ToParty(), nil
}

// FindDoctor finds a doctor by ID
func (d *GormDirectory) FindDoctor(ctx context.Context, id uuid.UUID) (*billing.Party, error) {
	var model models.DoctorModel
	if err := first(ctx, d.db, &model, "doctor", id); err != nil {
		return nil, err
	}
	return model.ToParty(), nil
}

// FindBranch finds a branch by ID
func (d *GormDirectory) FindBranch(ctx context.Context, id uuid.UUID) (*billing.Party, error) {
	var model models.BranchModel
	if err := first(ctx, d.db, &model, "branch", id); err != nil {
		return nil, err
	}
	return model.ToParty(), nil
}

// GormTreatmentCatalog reads treatment prices
type GormTreatmentCatalog struct {
	db *gorm.DB
}

// NewGormTreatmentCatalog creates a new GormTreatmentCatalog
func NewGormTreatmentCatalog(db *gorm.DB) *GormTreatmentCatalog {
	return &GormTreatmentCatalog{db: db}
}

// FindTreatment finds a treatment by ID
func (c *GormTreatmentCatalog) FindTreatment(ctx context.Context, id uuid.UUID) (*billing.Treatment, error) {
	var model models.TreatmentModel
	if err := first(ctx, c.db, &model, "treatment", id); err != nil {
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindTreatmentStep finds a treatment step by ID
func (c *GormTreatmentCatalog) FindTreatmentStep(ctx context.Context, id uuid.UUID) (*billing.TreatmentStep, error) {
	var model models.TreatmentStepModel
	if err := first(ctx, c.db, &model, "treatment step", id); err != nil {
		return nil, err
	}
	return model.ToDomain(), nil
}

func first(ctx context.Context, db *gorm.DB, dest any, resource string, id uuid.UUID) error {
	if err := db.WithContext(ctx).First(dest, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return shared.NewNotFoundError(resource, id)
		}
		return err
	}
	return nil
}

var (
	_ billing.Directory        = (*GormDirectory)(nil)
	_ billing.TreatmentCatalog = (*GormTreatmentCatalog)(nil)
)
