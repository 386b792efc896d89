package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/clinic/ledger/internal/domain/billing"
	"github.com/clinic/ledger/internal/domain/shared"
	"github.com/clinic/ledger/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormPaymentPlanRepository implements PaymentPlanRepository using GORM
type GormPaymentPlanRepository struct {
	db *gorm.DB
}

// NewGormPaymentPlanRepository creates a new GormPaymentPlanRepository
func NewGormPaymentPlanRepository(db *gorm.DB) *GormPaymentPlanRepository {
	return &GormPaymentPlanRepository{db: db}
}

func installmentsInOrder(db *gorm.DB) *gorm.DB {
	return db.Order("installment_number ASC")
}

// FindByID finds a plan with its installments
func (r *GormPaymentPlanRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.PaymentPlan, error) {
	var model models.PaymentPlanModel
	if err := r.db.WithContext(ctx).
		Preload("Installments", installmentsInOrder).
		First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("payment plan", id)
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByTreatment finds the plan of a treatment
func (r *GormPaymentPlanRepository) FindByTreatment(ctx context.Context, treatmentID uuid.UUID) (*billing.PaymentPlan, error) {
	var model models.PaymentPlanModel
	if err := r.db.WithContext(ctx).
		Preload("Installments", installmentsInOrder).
		Where("treatment_id = ?", treatmentID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewDomainError(shared.CodeNotFound, "no payment plan for treatment "+treatmentID.String())
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// ExistsByTreatment checks whether a treatment already has a plan
func (r *GormPaymentPlanRepository) ExistsByTreatment(ctx context.Context, treatmentID uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.PaymentPlanModel{}).
		Where("treatment_id = ?", treatmentID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// FindAll finds plans matching the filter, one page at a time
func (r *GormPaymentPlanRepository) FindAll(ctx context.Context, filter billing.PaymentPlanFilter) ([]billing.PaymentPlan, error) {
	filter.Normalize()
	var planModels []models.PaymentPlanModel
	query := r.applyFilter(r.db.WithContext(ctx).Model(&models.PaymentPlanModel{}), filter).
		Preload("Installments", installmentsInOrder).
		Order(paymentPlanSort.order(filter.OrderBy, filter.OrderDir)).
		Offset(filter.Offset()).
		Limit(filter.PageSize)
	if err := query.Find(&planModels).Error; err != nil {
		return nil, err
	}
	plans := make([]billing.PaymentPlan, len(planModels))
	for i := range planModels {
		plans[i] = *planModels[i].ToDomain()
	}
	return plans, nil
}

// Count counts plans matching the filter
func (r *GormPaymentPlanRepository) Count(ctx context.Context, filter billing.PaymentPlanFilter) (int64, error) {
	var count int64
	err := r.applyFilter(r.db.WithContext(ctx).Model(&models.PaymentPlanModel{}), filter).
		Count(&count).Error
	return count, err
}

// Create inserts the plan and its installments
func (r *GormPaymentPlanRepository) Create(ctx context.Context, plan *billing.PaymentPlan) error {
	db := r.db.WithContext(ctx)
	if err := db.Omit("Installments").Create(models.PaymentPlanModelFromDomain(plan)).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return shared.NewInvalidStateError("treatment %s already has a payment plan", plan.TreatmentID)
		}
		return err
	}
	return insertInstallments(db, plan.Installments)
}

// Update writes plan fields with optimistic locking
func (r *GormPaymentPlanRepository) Update(ctx context.Context, plan *billing.PaymentPlan) error {
	model := models.PaymentPlanModelFromDomain(plan)
	result := r.db.WithContext(ctx).
		Model(&models.PaymentPlanModel{}).
		Where("id = ? AND version = ?", plan.ID, plan.Version-1).
		Select("*").
		Omit("id", "created_at", "treatment_id", "Installments").
		Updates(model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.NewDomainError(shared.CodeConcurrencyConflict, "payment plan "+plan.ID.String()+" was modified by another request")
	}
	return nil
}

// ReplaceInstallments swaps the whole installment set of a plan.
// Refuses to drop paid installments.
func (r *GormPaymentPlanRepository) ReplaceInstallments(ctx context.Context, planID uuid.UUID, installments []billing.PaymentInstallment) error {
	db := r.db.WithContext(ctx)
	if err := lockPlan(db, planID); err != nil {
		return err
	}
	if err := r.ensureNoPaidInstallments(db, planID); err != nil {
		return err
	}
	if err := deleteUnpaidInstallments(db, planID); err != nil {
		return err
	}
	return insertInstallments(db, installments)
}

// Delete removes the installments and then the plan
func (r *GormPaymentPlanRepository) Delete(ctx context.Context, id uuid.UUID) error {
	db := r.db.WithContext(ctx)
	if err := lockPlan(db, id); err != nil {
		return err
	}
	if err := r.ensureNoPaidInstallments(db, id); err != nil {
		return err
	}
	if err := deleteUnpaidInstallments(db, id); err != nil {
		return err
	}
	result := db.Delete(&models.PaymentPlanModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.NewNotFoundError("payment plan", id)
	}
	return nil
}

// lockPlan holds the plan row until the surrounding transaction ends, so
// installment writes on the same plan run one after another. sqlite already
// serializes writers.
func lockPlan(db *gorm.DB, planID uuid.UUID) error {
	if !isPostgres(db) {
		return nil
	}
	err := db.Model(&models.PaymentPlanModel{}).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		Where("id = ?", planID).
		Take(&models.PaymentPlanModel{}).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return shared.NewNotFoundError("payment plan", planID)
	}
	return err
}

func deleteUnpaidInstallments(db *gorm.DB, planID uuid.UUID) error {
	return db.Where("plan_id = ? AND is_paid = ?", planID, false).
		Delete(&models.PaymentInstallmentModel{}).Error
}

func (r *GormPaymentPlanRepository) ensureNoPaidInstallments(db *gorm.DB, planID uuid.UUID) error {
	var paid int64
	if err := db.Model(&models.PaymentInstallmentModel{}).
		Where("plan_id = ? AND is_paid = ?", planID, true).
		Count(&paid).Error; err != nil {
		return err
	}
	if paid > 0 {
		return shared.NewInvalidStateError("payment plan %s has paid installments and can no longer be changed", planID)
	}
	return nil
}

// MarkInstallmentPaid flips is_paid while it is still false
func (r *GormPaymentPlanRepository) MarkInstallmentPaid(ctx context.Context, planID, installmentID uuid.UUID, method *billing.PaymentMethod, paidDate time.Time) (bool, error) {
	updates := map[string]any{
		"is_paid":    true,
		"paid_date":  paidDate,
		"updated_at": time.Now(),
	}
	if method != nil {
		updates["payment_method"] = string(*method)
	}
	db := r.db.WithContext(ctx)
	if err := lockPlan(db, planID); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	result := db.
		Model(&models.PaymentInstallmentModel{}).
		Where("id = ? AND plan_id = ? AND is_paid = ?", installmentID, planID, false).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *GormPaymentPlanRepository) applyFilter(query *gorm.DB, filter billing.PaymentPlanFilter) *gorm.DB {
	if filter.TreatmentID != nil {
		query = query.Where("treatment_id = ?", *filter.TreatmentID)
	}
	if filter.HasPending != nil {
		pending := "EXISTS (SELECT 1 FROM payment_installments pi WHERE pi.plan_id = payment_plans.id AND pi.is_paid = ?)"
		if *filter.HasPending {
			query = query.Where(pending, false)
		} else {
			query = query.Where("NOT "+pending, false)
		}
	}
	if filter.Search != "" {
		query = query.Where(searchCondition(r.db, "notes"), searchArgs(filter.Search, 1)...)
	}
	return query
}

func insertInstallments(db *gorm.DB, installments []billing.PaymentInstallment) error {
	if len(installments) == 0 {
		return nil
	}
	rows := make([]models.PaymentInstallmentModel, len(installments))
	for i, inst := range installments {
		rows[i] = models.PaymentInstallmentModelFromDomain(inst)
	}
	return db.Create(&rows).Error
}

// Ensure GormPaymentPlanRepository implements PaymentPlanRepository
var _ billing.PaymentPlanRepository = (*GormPaymentPlanRepository)(nil)
