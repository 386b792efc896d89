package billing

import (
	"context"
	"errors"
	"time"

	"github.com/clinic/ledger/internal/domain/billing"
	"github.com/clinic/ledger/internal/domain/shared"
	"github.com/clinic/ledger/internal/domain/shared/valueobject"
	"github.com/clinic/ledger/internal/infrastructure/logger"
	"github.com/clinic/ledger/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// InvoiceService handles invoice business operations
type InvoiceService struct {
	scope     TransactionScope
	invoices  billing.InvoiceRepository
	directory billing.Directory
	catalog   billing.TreatmentCatalog
	codes     billing.InvoiceCodes
	currency  valueobject.Currency
	metrics   *telemetry.LedgerMetrics
	now       func() time.Time
}

// NewInvoiceService creates a new InvoiceService
func NewInvoiceService(
	scope TransactionScope,
	invoices billing.InvoiceRepository,
	directory billing.Directory,
	catalog billing.TreatmentCatalog,
	cfg Config,
) *InvoiceService {
	cfg = cfg.withDefaults()
	return &InvoiceService{
		scope:     scope,
		invoices:  invoices,
		directory: directory,
		catalog:   catalog,
		codes:     billing.InvoiceCodes{Prefix: cfg.CodePrefix},
		currency:  cfg.Currency,
		metrics:   cfg.Metrics,
		now:       time.Now,
	}
}

// Create opens a PENDING invoice. Referenced records are checked first, then
// the code is generated and the invoice is stored with its items in one
// transaction. A code collision with a concurrent request retries once with
// the timestamp fallback code.
func (s *InvoiceService) Create(ctx context.Context, req CreateInvoiceRequest) (_ *InvoiceResponse, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "invoice", "create")
	defer telemetry.End(span, &err)

	patient, err := s.directory.FindPatient(ctx, req.PatientID)
	if err != nil {
		return nil, err
	}
	refs := billing.References{
		DoctorID:        req.DoctorID,
		BranchID:        req.BranchID,
		TreatmentID:     req.TreatmentID,
		TreatmentStepID: req.TreatmentStepID,
	}
	if err := s.checkReferences(ctx, req.PatientID, refs); err != nil {
		return nil, err
	}

	currency := s.currency
	if req.Currency != "" {
		if currency, err = valueobject.ParseCurrency(req.Currency); err != nil {
			return nil, shared.NewInvalidArgumentError("%v", err)
		}
	}
	params := billing.NewInvoiceParams{
		PatientID:   patient.ID,
		PatientName: patient.Name,
		References:  refs,
		Items:       toItemInputs(req.Items),
		Discount:    req.Discount,
		Currency:    currency,
		ExpiresAt:   req.ExpiresAt,
		Notes:       req.Notes,
	}

	inv, err := s.createWithCode(ctx, params, false)
	if errors.Is(err, shared.ErrAlreadyExists) {
		logger.L(ctx).Warn("invoice code collided, retrying with fallback code")
		inv, err = s.createWithCode(ctx, params, true)
	}
	if err != nil {
		return nil, err
	}

	telemetry.SetAttributes(span, "invoice.code", inv.Code, "invoice.total", inv.TotalAmount.String())
	s.metrics.InvoiceCreated(ctx, inv.Currency.String())
	logger.L(ctx).Info("invoice created",
		zap.String("invoice_id", inv.ID.String()),
		zap.String("code", inv.Code),
		zap.String("patient_id", inv.PatientID.String()),
		zap.String("total", inv.TotalAmount.String()),
	)
	resp := ToInvoiceResponse(inv)
	return &resp, nil
}

func (s *InvoiceService) createWithCode(ctx context.Context, params billing.NewInvoiceParams, fallback bool) (*billing.Invoice, error) {
	var inv *billing.Invoice
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		code, err := s.nextCode(ctx, repos.Invoices(), fallback)
		if err != nil {
			return err
		}
		params.Code = code
		inv, err = billing.NewInvoice(params)
		if err != nil {
			return err
		}
		return repos.Invoices().Create(ctx, inv)
	})
	return inv, err
}

// nextCode returns <prefix>-<year>-<seq+1> after the greatest sequenced code
// of the current year. An occupied candidate falls back to the timestamp form.
func (s *InvoiceService) nextCode(ctx context.Context, repo billing.InvoiceRepository, fallback bool) (string, error) {
	now := s.now()
	if fallback {
		return s.codes.Fallback(now), nil
	}
	latest, err := repo.LatestCode(ctx, s.codes.Pattern(now.Year()))
	if err != nil {
		return "", err
	}
	seq := 1
	if n, ok := s.codes.Sequence(latest); ok {
		seq = n + 1
	}
	code := s.codes.Format(now.Year(), seq)
	exists, err := repo.ExistsByCode(ctx, code)
	if err != nil {
		return "", err
	}
	if exists {
		return s.codes.Fallback(now), nil
	}
	return code, nil
}

// checkReferences resolves the optional links through the collaborators
func (s *InvoiceService) checkReferences(ctx context.Context, patientID uuid.UUID, refs billing.References) error {
	if refs.DoctorID != nil {
		if _, err := s.directory.FindDoctor(ctx, *refs.DoctorID); err != nil {
			return err
		}
	}
	if refs.BranchID != nil {
		if _, err := s.directory.FindBranch(ctx, *refs.BranchID); err != nil {
			return err
		}
	}
	if refs.TreatmentID != nil {
		treatment, err := activeTreatment(ctx, s.catalog, *refs.TreatmentID)
		if err != nil {
			return err
		}
		if treatment.PatientID != uuid.Nil && treatment.PatientID != patientID {
			return shared.NewInvalidArgumentError("treatment %s does not belong to patient %s", treatment.ID, patientID)
		}
	}
	if refs.TreatmentStepID != nil {
		step, err := s.catalog.FindTreatmentStep(ctx, *refs.TreatmentStepID)
		if err != nil {
			return err
		}
		if refs.TreatmentID != nil && step.TreatmentID != *refs.TreatmentID {
			return shared.NewInvalidArgumentError("treatment step %s does not belong to treatment %s", step.ID, *refs.TreatmentID)
		}
	}
	return nil
}

// Update revises an unpaid invoice. Replacing items soft-deletes the previous
// active set and inserts the new one in the same transaction as the header.
func (s *InvoiceService) Update(ctx context.Context, id uuid.UUID, req UpdateInvoiceRequest) (_ *InvoiceResponse, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "invoice", "update")
	defer telemetry.End(span, &err)

	rev := billing.InvoiceRevision{
		Discount:        req.Discount,
		DoctorID:        req.DoctorID,
		BranchID:        req.BranchID,
		TreatmentID:     req.TreatmentID,
		TreatmentStepID: req.TreatmentStepID,
		ExpiresAt:       req.ExpiresAt,
		ClearExpiresAt:  req.ClearExpiresAt,
		Notes:           req.Notes,
	}
	if req.Items != nil {
		items := toItemInputs(*req.Items)
		rev.Items = &items
	}

	var inv *billing.Invoice
	err = s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		inv, err = repos.Invoices().FindByID(ctx, id)
		if err != nil {
			return err
		}
		refs := inv.References
		if rev.DoctorID != nil {
			refs.DoctorID = rev.DoctorID
		}
		if rev.BranchID != nil {
			refs.BranchID = rev.BranchID
		}
		if rev.TreatmentID != nil {
			refs.TreatmentID = rev.TreatmentID
		}
		if rev.TreatmentStepID != nil {
			refs.TreatmentStepID = rev.TreatmentStepID
		}
		if err := s.checkReferences(ctx, inv.PatientID, changedReferences(inv.References, refs)); err != nil {
			return err
		}

		removed, err := inv.Revise(rev)
		if err != nil {
			return err
		}
		if err := repos.Invoices().Update(ctx, inv); err != nil {
			return err
		}
		if rev.Items != nil {
			return repos.Invoices().ReplaceItems(ctx, inv.ID, removed, inv.Items)
		}
		return nil
	})
	if err != nil {
		logger.L(ctx).Warn("invoice update rejected", zap.String("invoice_id", id.String()), zap.Error(err))
		return nil, err
	}

	logger.L(ctx).Info("invoice updated",
		zap.String("invoice_id", inv.ID.String()),
		zap.String("total", inv.TotalAmount.String()),
		zap.String("status", inv.Status.String()),
	)
	resp := ToInvoiceResponse(inv)
	return &resp, nil
}

// changedReferences keeps only the links that differ from the stored ones, so
// an unchanged link to a since-deleted record does not block other edits.
// A changed treatment re-validates the step against it.
func changedReferences(old, next billing.References) billing.References {
	var out billing.References
	if !sameID(old.DoctorID, next.DoctorID) {
		out.DoctorID = next.DoctorID
	}
	if !sameID(old.BranchID, next.BranchID) {
		out.BranchID = next.BranchID
	}
	if !sameID(old.TreatmentID, next.TreatmentID) {
		out.TreatmentID = next.TreatmentID
	}
	if !sameID(old.TreatmentStepID, next.TreatmentStepID) || out.TreatmentID != nil {
		out.TreatmentStepID = next.TreatmentStepID
		if out.TreatmentStepID != nil {
			out.TreatmentID = next.TreatmentID
		}
	}
	return out
}

func sameID(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// ChangeStatus performs an explicit status transition. Asking for the current
// status succeeds without writing.
func (s *InvoiceService) ChangeStatus(ctx context.Context, id uuid.UUID, req ChangeInvoiceStatusRequest) (_ *InvoiceResponse, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "invoice", "change_status")
	defer telemetry.End(span, &err)

	next, err := billing.ParseInvoiceStatus(req.Status)
	if err != nil {
		return nil, err
	}

	var (
		inv      *billing.Invoice
		previous billing.InvoiceStatus
		changed  bool
	)
	err = s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		inv, err = repos.Invoices().FindByID(ctx, id)
		if err != nil {
			return err
		}
		previous = inv.Status
		changed, err = inv.ChangeStatus(next)
		if err != nil || !changed {
			return err
		}
		return repos.Invoices().Update(ctx, inv)
	})
	if err != nil {
		logger.L(ctx).Warn("invoice status change rejected",
			zap.String("invoice_id", id.String()),
			zap.String("target", next.String()),
			zap.Error(err),
		)
		return nil, err
	}

	if changed {
		logger.L(ctx).Info("invoice status changed",
			zap.String("invoice_id", inv.ID.String()),
			zap.String("from", previous.String()),
			zap.String("to", inv.Status.String()),
		)
	}
	resp := ToInvoiceResponse(inv)
	return &resp, nil
}

// GetByID returns an invoice, including DELETED ones
func (s *InvoiceService) GetByID(ctx context.Context, id uuid.UUID) (*InvoiceResponse, error) {
	inv, err := s.invoices.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := ToInvoiceResponse(inv)
	return &resp, nil
}

// GetByCode returns an invoice by its code
func (s *InvoiceService) GetByCode(ctx context.Context, code string) (*InvoiceResponse, error) {
	inv, err := s.invoices.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	resp := ToInvoiceResponse(inv)
	return &resp, nil
}

// List returns one page of invoices. DELETED invoices are excluded unless
// requested by status.
func (s *InvoiceService) List(ctx context.Context, filter billing.InvoiceFilter) (shared.Paginated[InvoiceResponse], error) {
	filter.Normalize()

	invoices, err := s.invoices.FindAll(ctx, filter)
	if err != nil {
		return shared.Paginated[InvoiceResponse]{}, err
	}
	total, err := s.invoices.Count(ctx, filter)
	if err != nil {
		return shared.Paginated[InvoiceResponse]{}, err
	}
	return shared.NewPaginated(ToInvoiceResponses(invoices), total, filter.Page, filter.PageSize), nil
}

func toItemInputs(items []InvoiceItemInput) []billing.ItemInput {
	out := make([]billing.ItemInput, len(items))
	for i, item := range items {
		out[i] = billing.ItemInput{
			Name:      item.Name,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
			Discount:  item.Discount,
		}
	}
	return out
}
