package billing

import (
	"context"
	"time"

	"github.com/clinic/ledger/internal/domain/billing"
	"github.com/clinic/ledger/internal/domain/shared"
	"github.com/clinic/ledger/internal/infrastructure/logger"
	"github.com/clinic/ledger/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PaymentPlanService manages installment plans for treatments
type PaymentPlanService struct {
	scope     TransactionScope
	plans     billing.PaymentPlanRepository
	catalog   billing.TreatmentCatalog
	tolerance decimal.Decimal
	metrics   *telemetry.LedgerMetrics
	now       func() time.Time
}

// NewPaymentPlanService creates a new PaymentPlanService
func NewPaymentPlanService(
	scope TransactionScope,
	plans billing.PaymentPlanRepository,
	catalog billing.TreatmentCatalog,
	cfg Config,
) *PaymentPlanService {
	cfg = cfg.withDefaults()
	return &PaymentPlanService{
		scope:     scope,
		plans:     plans,
		catalog:   catalog,
		tolerance: cfg.PlanTolerance,
		metrics:   cfg.Metrics,
		now:       time.Now,
	}
}

// Create validates the terms against the treatment price and stores the plan
// with its full installment schedule. A treatment has at most one plan.
func (s *PaymentPlanService) Create(ctx context.Context, req CreatePlanRequest) (_ *PlanResponse, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment_plan", "create")
	defer telemetry.End(span, &err)

	treatment, err := activeTreatment(ctx, s.catalog, req.TreatmentID)
	if err != nil {
		return nil, err
	}
	startDate := req.StartDate
	if startDate.IsZero() {
		startDate = s.now().UTC()
	}
	terms := billing.PlanTerms{
		NumberOfInstallments: req.NumberOfInstallments,
		InstallmentAmount:    req.InstallmentAmount,
		InitialPayment:       req.InitialPayment,
		StartDate:            startDate,
	}

	var plan *billing.PaymentPlan
	err = s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		exists, err := repos.Plans().ExistsByTreatment(ctx, treatment.ID)
		if err != nil {
			return err
		}
		if exists {
			return shared.NewInvalidStateError("treatment %s already has a payment plan", treatment.ID)
		}
		plan, err = billing.NewPaymentPlan(treatment, terms, s.tolerance, req.Notes)
		if err != nil {
			return err
		}
		return repos.Plans().Create(ctx, plan)
	})
	if err != nil {
		logger.L(ctx).Warn("payment plan rejected", zap.String("treatment_id", req.TreatmentID.String()), zap.Error(err))
		return nil, err
	}

	logger.L(ctx).Info("payment plan created",
		zap.String("plan_id", plan.ID.String()),
		zap.String("treatment_id", plan.TreatmentID.String()),
		zap.Int("installments", plan.NumberOfInstallments),
		zap.String("total", plan.Total().String()),
	)
	resp := ToPlanResponse(plan, s.now())
	return &resp, nil
}

// Update revises a plan without paid installments. A change to any of the
// terms regenerates the whole schedule.
func (s *PaymentPlanService) Update(ctx context.Context, id uuid.UUID, req UpdatePlanRequest) (_ *PlanResponse, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment_plan", "update")
	defer telemetry.End(span, &err)

	var (
		plan        *billing.PaymentPlan
		regenerated bool
	)
	err = s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		plan, err = repos.Plans().FindByID(ctx, id)
		if err != nil {
			return err
		}
		treatment, err := activeTreatment(ctx, s.catalog, plan.TreatmentID)
		if err != nil {
			return err
		}
		regenerated, err = plan.Revise(billing.PlanRevision{
			NumberOfInstallments: req.NumberOfInstallments,
			InstallmentAmount:    req.InstallmentAmount,
			InitialPayment:       req.InitialPayment,
			StartDate:            req.StartDate,
			Notes:                req.Notes,
		}, treatment.Price, s.tolerance)
		if err != nil {
			return err
		}
		if err := repos.Plans().Update(ctx, plan); err != nil {
			return err
		}
		if regenerated {
			return repos.Plans().ReplaceInstallments(ctx, plan.ID, plan.Installments)
		}
		return nil
	})
	if err != nil {
		logger.L(ctx).Warn("payment plan update rejected", zap.String("plan_id", id.String()), zap.Error(err))
		return nil, err
	}

	logger.L(ctx).Info("payment plan updated",
		zap.String("plan_id", plan.ID.String()),
		zap.Bool("regenerated", regenerated),
	)
	resp := ToPlanResponse(plan, s.now())
	return &resp, nil
}

// Delete removes a plan and its installments unless one of them is paid
func (s *PaymentPlanService) Delete(ctx context.Context, id uuid.UUID) (err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment_plan", "delete")
	defer telemetry.End(span, &err)

	err = s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		plan, err := repos.Plans().FindByID(ctx, id)
		if err != nil {
			return err
		}
		if err := plan.EnsureDeletable(); err != nil {
			return err
		}
		return repos.Plans().Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	logger.L(ctx).Info("payment plan deleted", zap.String("plan_id", id.String()))
	return nil
}

// MarkInstallmentPaid flips one installment to paid. An installment is paid at
// most once: the write only matches while is_paid is still false.
func (s *PaymentPlanService) MarkInstallmentPaid(ctx context.Context, planID, installmentID uuid.UUID, req MarkInstallmentPaidRequest) (_ *PlanResponse, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment_plan", "mark_installment_paid")
	defer telemetry.End(span, &err)

	var method *billing.PaymentMethod
	if req.PaymentMethod != nil && *req.PaymentMethod != "" {
		m, err := billing.ParsePaymentMethod(*req.PaymentMethod)
		if err != nil {
			return nil, err
		}
		method = &m
	}

	var (
		plan *billing.PaymentPlan
		inst *billing.PaymentInstallment
	)
	err = s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		plan, err = repos.Plans().FindByID(ctx, planID)
		if err != nil {
			return err
		}
		date := req.PaidDate
		if date == nil {
			now := s.now()
			date = &now
		}
		inst, err = plan.MarkInstallmentPaid(installmentID, method, date)
		if err != nil {
			return err
		}
		marked, err := repos.Plans().MarkInstallmentPaid(ctx, planID, installmentID, method, *inst.PaidDate)
		if err != nil {
			return err
		}
		if !marked {
			return shared.NewInvalidStateError("installment %d of plan %s is already paid", inst.InstallmentNumber, planID)
		}
		return nil
	})
	if err != nil {
		logger.L(ctx).Warn("installment payment rejected",
			zap.String("plan_id", planID.String()),
			zap.String("installment_id", installmentID.String()),
			zap.Error(err),
		)
		return nil, err
	}

	s.metrics.InstallmentPaid(ctx)
	logger.L(ctx).Info("installment paid",
		zap.String("plan_id", planID.String()),
		zap.Int("installment_number", inst.InstallmentNumber),
		zap.String("amount", inst.Amount.String()),
	)
	resp := ToPlanResponse(plan, s.now())
	return &resp, nil
}

// GetByID returns a plan with its schedule
func (s *PaymentPlanService) GetByID(ctx context.Context, id uuid.UUID) (*PlanResponse, error) {
	plan, err := s.plans.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := ToPlanResponse(plan, s.now())
	return &resp, nil
}

// GetByTreatment returns the plan of a treatment
func (s *PaymentPlanService) GetByTreatment(ctx context.Context, treatmentID uuid.UUID) (*PlanResponse, error) {
	plan, err := s.plans.FindByTreatment(ctx, treatmentID)
	if err != nil {
		return nil, err
	}
	resp := ToPlanResponse(plan, s.now())
	return &resp, nil
}

// GetSummary returns the progress of a plan
func (s *PaymentPlanService) GetSummary(ctx context.Context, id uuid.UUID) (*billing.PlanSummary, error) {
	plan, err := s.plans.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	summary := plan.Summary(s.now())
	return &summary, nil
}

// List returns one page of plans
func (s *PaymentPlanService) List(ctx context.Context, filter billing.PaymentPlanFilter) (shared.Paginated[PlanResponse], error) {
	filter.Normalize()

	plans, err := s.plans.FindAll(ctx, filter)
	if err != nil {
		return shared.Paginated[PlanResponse]{}, err
	}
	total, err := s.plans.Count(ctx, filter)
	if err != nil {
		return shared.Paginated[PlanResponse]{}, err
	}
	now := s.now()
	out := make([]PlanResponse, len(plans))
	for i := range plans {
		out[i] = ToPlanResponse(&plans[i], now)
	}
	return shared.NewPaginated(out, total, filter.Page, filter.PageSize), nil
}

// activeTreatment loads a treatment and reports a deleted or canceled one as
// not found
func activeTreatment(ctx context.Context, catalog billing.TreatmentCatalog, id uuid.UUID) (*billing.Treatment, error) {
	treatment, err := catalog.FindTreatment(ctx, id)
	if err != nil {
		return nil, err
	}
	if treatment.IsRemoved() {
		return nil, shared.NewNotFoundError("treatment", id)
	}
	return treatment, nil
}
