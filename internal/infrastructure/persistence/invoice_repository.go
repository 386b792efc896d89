package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/clinic/ledger/internal/domain/billing"
	"github.com/clinic/ledger/internal/domain/shared"
	"github.com/clinic/ledger/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// applyPaymentSQL adds a payment to an invoice in one statement. The WHERE
// clause re-checks status and the overpayment bound against the row as it is
// at write time, so concurrent payments can never push paid_amount above
// total_amount. Right-hand references to paid_amount see the pre-update value.
const applyPaymentSQL = `UPDATE invoices SET
	paid_amount = paid_amount + ?,
	is_paid = CASE WHEN paid_amount + ? >= total_amount THEN ? ELSE is_paid END,
	status = CASE WHEN paid_amount + ? >= total_amount THEN ? ELSE status END,
	paid_at = CASE WHEN paid_amount + ? >= total_amount THEN ? ELSE paid_at END,
	payment_method = CASE WHEN paid_amount + ? >= total_amount THEN ? ELSE payment_method END,
	version = version + 1,
	updated_at = ?
WHERE id = ? AND status IN ? AND paid_amount + ? <= total_amount`

// GormInvoiceRepository implements InvoiceRepository using GORM
type GormInvoiceRepository struct {
	db *gorm.DB
}

// NewGormInvoiceRepository creates a new GormInvoiceRepository
func NewGormInvoiceRepository(db *gorm.DB) *GormInvoiceRepository {
	return &GormInvoiceRepository{db: db}
}

func activeItems(db *gorm.DB) *gorm.DB {
	return db.Where("is_deleted = ?", false).Order("created_at ASC, id ASC")
}

// FindByID finds an invoice by ID with its active items
func (r *GormInvoiceRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Invoice, error) {
	var model models.InvoiceModel
	if err := r.db.WithContext(ctx).
		Preload("Items", activeItems).
		First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("invoice", id)
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByCode finds an invoice by its code
func (r *GormInvoiceRepository) FindByCode(ctx context.Context, code string) (*billing.Invoice, error) {
	var model models.InvoiceModel
	if err := r.db.WithContext(ctx).
		Preload("Items", activeItems).
		Where("code = ?", code).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewDomainError(shared.CodeNotFound, "invoice "+code+" not found")
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAll finds invoices matching the filter, one page at a time
func (r *GormInvoiceRepository) FindAll(ctx context.Context, filter billing.InvoiceFilter) ([]billing.Invoice, error) {
	filter.Normalize()
	var invoiceModels []models.InvoiceModel
	query := r.applyFilter(r.db.WithContext(ctx).Model(&models.InvoiceModel{}), filter).
		Preload("Items", activeItems).
		Order(invoiceSort.order(filter.OrderBy, filter.OrderDir)).
		Offset(filter.Offset()).
		Limit(filter.PageSize)

	if err := query.Find(&invoiceModels).Error; err != nil {
		return nil, err
	}
	return invoicesToDomain(invoiceModels), nil
}

// Count counts invoices matching the filter
func (r *GormInvoiceRepository) Count(ctx context.Context, filter billing.InvoiceFilter) (int64, error) {
	var count int64
	err := r.applyFilter(r.db.WithContext(ctx).Model(&models.InvoiceModel{}), filter).
		Count(&count).Error
	return count, err
}

// FindBatch returns the next batch after cursor in (created_at, id) order
func (r *GormInvoiceRepository) FindBatch(ctx context.Context, filter billing.InvoiceFilter, after *billing.Cursor, limit int) ([]billing.Invoice, error) {
	var invoiceModels []models.InvoiceModel
	query := r.applyFilter(r.db.WithContext(ctx).Model(&models.InvoiceModel{}), filter)
	if err := keyset(query, after, limit).Find(&invoiceModels).Error; err != nil {
		return nil, err
	}
	return invoicesToDomain(invoiceModels), nil
}

// FindReceivableBatch returns the next batch of invoices that carry debt
func (r *GormInvoiceRepository) FindReceivableBatch(ctx context.Context, filter billing.ReceivableFilter, after *billing.Cursor, limit int) ([]billing.Invoice, error) {
	query := r.db.WithContext(ctx).Model(&models.InvoiceModel{}).
		Where("status IN ?", billing.ReceivableInvoiceStatuses).
		Where("paid_amount < total_amount")
	if filter.PatientID != nil {
		query = query.Where("patient_id = ?", *filter.PatientID)
	}
	if filter.InvoiceDateFrom != nil {
		query = query.Where("created_at >= ?", *filter.InvoiceDateFrom)
	}
	if filter.InvoiceDateTo != nil {
		query = query.Where("created_at <= ?", *filter.InvoiceDateTo)
	}
	if filter.Search != "" {
		query = query.Where(searchCondition(r.db, "patient_name", "code"), searchArgs(filter.Search, 2)...)
	}

	var invoiceModels []models.InvoiceModel
	if err := keyset(query, after, limit).Find(&invoiceModels).Error; err != nil {
		return nil, err
	}
	return invoicesToDomain(invoiceModels), nil
}

// Create inserts the invoice header and its items
func (r *GormInvoiceRepository) Create(ctx context.Context, invoice *billing.Invoice) error {
	model := models.InvoiceModelFromDomain(invoice)
	db := r.db.WithContext(ctx)
	if err := db.Omit("Items").Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return shared.NewDomainError(shared.CodeAlreadyExists, "invoice code "+invoice.Code+" already exists")
		}
		return err
	}
	return r.insertItems(db, invoice.Items)
}

// Update writes the invoice header with optimistic locking.
// The aggregate is expected to have bumped its version once since it was loaded.
func (r *GormInvoiceRepository) Update(ctx context.Context, invoice *billing.Invoice) error {
	model := models.InvoiceModelFromDomain(invoice)
	result := r.db.WithContext(ctx).
		Model(&models.InvoiceModel{}).
		Where("id = ? AND version = ?", invoice.ID, invoice.Version-1).
		Select("*").
		Omit("id", "created_at", "code", "Items").
		Updates(model)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.NewDomainError(shared.CodeConcurrencyConflict, "invoice "+invoice.ID.String()+" was modified by another request")
	}
	return nil
}

// ReplaceItems soft-deletes removed items and inserts the new ones
func (r *GormInvoiceRepository) ReplaceItems(ctx context.Context, invoiceID uuid.UUID, removed, added []billing.InvoiceItem) error {
	db := r.db.WithContext(ctx)
	if len(removed) > 0 {
		ids := make([]uuid.UUID, len(removed))
		for i, item := range removed {
			ids[i] = item.ID
		}
		now := time.Now()
		if err := db.Model(&models.InvoiceItemModel{}).
			Where("invoice_id = ? AND id IN ? AND is_deleted = ?", invoiceID, ids, false).
			Updates(map[string]any{"is_deleted": true, "deleted_at": now}).Error; err != nil {
			return err
		}
	}
	return r.insertItems(db, added)
}

func (r *GormInvoiceRepository) insertItems(db *gorm.DB, items []billing.InvoiceItem) error {
	if len(items) == 0 {
		return nil
	}
	itemModels := make([]models.InvoiceItemModel, len(items))
	for i, item := range items {
		itemModels[i] = models.InvoiceItemModelFromDomain(item)
	}
	return db.Create(&itemModels).Error
}

// LatestCode returns the greatest code matching pattern
func (r *GormInvoiceRepository) LatestCode(ctx context.Context, pattern string) (string, error) {
	var codes []string
	if err := r.db.WithContext(ctx).
		Model(&models.InvoiceModel{}).
		Where("code LIKE ?", pattern).
		Order("code DESC").
		Limit(1).
		Pluck("code", &codes).Error; err != nil {
		return "", err
	}
	if len(codes) == 0 {
		return "", nil
	}
	return codes[0], nil
}

// ExistsByCode checks whether a code is taken
func (r *GormInvoiceRepository) ExistsByCode(ctx context.Context, code string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.InvoiceModel{}).
		Where("code = ?", code).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ApplyPayment runs the conditional paid_amount increment
func (r *GormInvoiceRepository) ApplyPayment(ctx context.Context, invoiceID uuid.UUID, amount decimal.Decimal, method billing.PaymentMethod, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Exec(applyPaymentSQL,
		amount,
		amount, true,
		amount, string(billing.InvoiceStatusPaid),
		amount, at,
		amount, string(method),
		time.Now(),
		invoiceID, billing.PayableInvoiceStatuses, amount,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// applyFilter applies filtering to the query, without ordering or pagination
func (r *GormInvoiceRepository) applyFilter(query *gorm.DB, filter billing.InvoiceFilter) *gorm.DB {
	if filter.PatientID != nil {
		query = query.Where("patient_id = ?", *filter.PatientID)
	}
	if filter.DoctorID != nil {
		query = query.Where("doctor_id = ?", *filter.DoctorID)
	}
	if filter.BranchID != nil {
		query = query.Where("branch_id = ?", *filter.BranchID)
	}
	if filter.TreatmentID != nil {
		query = query.Where("treatment_id = ?", *filter.TreatmentID)
	}
	if len(filter.Statuses) > 0 {
		query = query.Where("status IN ?", filter.Statuses)
	} else if !filter.IncludeDeleted {
		query = query.Where("status <> ?", billing.InvoiceStatusDeleted)
	}
	if filter.CreatedFrom != nil {
		query = query.Where("created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		query = query.Where("created_at <= ?", *filter.CreatedTo)
	}
	if filter.ExpiresFrom != nil {
		query = query.Where("expires_at >= ?", *filter.ExpiresFrom)
	}
	if filter.ExpiresTo != nil {
		query = query.Where("expires_at <= ?", *filter.ExpiresTo)
	}
	if filter.Search != "" {
		query = query.Where(searchCondition(r.db, "code", "patient_name"), searchArgs(filter.Search, 2)...)
	}
	return query
}

func invoicesToDomain(invoiceModels []models.InvoiceModel) []billing.Invoice {
	invoices := make([]billing.Invoice, len(invoiceModels))
	for i := range invoiceModels {
		invoices[i] = *invoiceModels[i].ToDomain()
	}
	return invoices
}

// Ensure GormInvoiceRepository implements InvoiceRepository
var _ billing.InvoiceRepository = (*GormInvoiceRepository)(nil)
