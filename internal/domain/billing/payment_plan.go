package billing

import (
	"time"

	"github.com/clinic/ledger/internal/domain/shared"
	"github.com/clinic/ledger/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PlanTerms are the structural parameters of a payment plan
type PlanTerms struct {
	NumberOfInstallments int
	InstallmentAmount    decimal.Decimal
	InitialPayment       decimal.Decimal
	StartDate            time.Time
}

// Validate checks the terms in isolation
func (t PlanTerms) Validate() error {
	if t.NumberOfInstallments < 1 {
		return shared.NewInvalidArgumentError("number of installments must be at least 1")
	}
	if t.InstallmentAmount.IsNegative() {
		return shared.NewInvalidArgumentError("installment amount cannot be negative")
	}
	if t.InitialPayment.IsNegative() {
		return shared.NewInvalidArgumentError("initial payment cannot be negative")
	}
	if t.StartDate.IsZero() {
		return shared.NewInvalidArgumentError("start date is required")
	}
	return nil
}

// Total is initial payment + installment amount × number of installments
func (t PlanTerms) Total() decimal.Decimal {
	return t.InitialPayment.Add(t.InstallmentAmount.Mul(decimal.NewFromInt(int64(t.NumberOfInstallments))))
}

// CheckAgainstPrice rejects terms whose total misses price by more than tolerance
func (t PlanTerms) CheckAgainstPrice(price, tolerance decimal.Decimal) error {
	total := t.Total()
	if !valueobject.WithinTolerance(total, price, tolerance) {
		return shared.NewInvalidArgumentError(
			"plan total %s does not match treatment price %s (initial %s + %d x %s)",
			total.StringFixed(valueobject.AmountScale),
			price.StringFixed(valueobject.AmountScale),
			t.InitialPayment.StringFixed(valueobject.AmountScale),
			t.NumberOfInstallments,
			t.InstallmentAmount.StringFixed(valueobject.AmountScale),
		).WithDetail("plan_total", total.StringFixed(valueobject.AmountScale)).
			WithDetail("treatment_price", price.StringFixed(valueobject.AmountScale))
	}
	return nil
}

func (t PlanTerms) structurallyEqual(o PlanTerms) bool {
	return t.NumberOfInstallments == o.NumberOfInstallments &&
		t.InstallmentAmount.Equal(o.InstallmentAmount) &&
		t.InitialPayment.Equal(o.InitialPayment) &&
		t.StartDate.Equal(o.StartDate)
}

// AddMonths moves t forward by n calendar months, clamping the day to the
// end of shorter months (Jan 31 + 1 month = Feb 28/29).
func AddMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	firstOfTarget := time.Date(y, m+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	lastDay := firstOfTarget.AddDate(0, 1, -1).Day()
	if d > lastDay {
		d = lastDay
	}
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// PaymentInstallment is one scheduled partial payment of a plan
type PaymentInstallment struct {
	ID                uuid.UUID
	PlanID            uuid.UUID
	InstallmentNumber int
	Amount            decimal.Decimal
	DueDate           time.Time
	IsPaid            bool
	PaidDate          *time.Time
	PaymentMethod     *PaymentMethod
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// IsOverdue reports whether an unpaid installment is past due at now
func (i PaymentInstallment) IsOverdue(now time.Time) bool {
	return !i.IsPaid && now.After(i.DueDate)
}

// ScheduleInstallments generates installments 1..N due start+k months
func ScheduleInstallments(planID uuid.UUID, terms PlanTerms) []PaymentInstallment {
	now := time.Now()
	installments := make([]PaymentInstallment, terms.NumberOfInstallments)
	for k := 1; k <= terms.NumberOfInstallments; k++ {
		installments[k-1] = PaymentInstallment{
			ID:                uuid.New(),
			PlanID:            planID,
			InstallmentNumber: k,
			Amount:            terms.InstallmentAmount,
			DueDate:           AddMonths(terms.StartDate, k),
			CreatedAt:         now,
			UpdatedAt:         now,
		}
	}
	return installments
}

// PaymentPlan splits a treatment's price into an initial payment and dated installments
type PaymentPlan struct {
	shared.BaseAggregateRoot
	TreatmentID uuid.UUID
	PlanTerms
	Notes        string
	Installments []PaymentInstallment
}

// NewPaymentPlan validates terms against the treatment price and generates the schedule
func NewPaymentPlan(treatment *Treatment, terms PlanTerms, tolerance decimal.Decimal, notes string) (*PaymentPlan, error) {
	if treatment == nil || treatment.ID == uuid.Nil {
		return nil, shared.NewInvalidArgumentError("treatment is required")
	}
	if err := terms.Validate(); err != nil {
		return nil, err
	}
	if err := terms.CheckAgainstPrice(treatment.Price, tolerance); err != nil {
		return nil, err
	}

	plan := &PaymentPlan{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		TreatmentID:       treatment.ID,
		PlanTerms:         terms,
		Notes:             notes,
	}
	plan.Installments = ScheduleInstallments(plan.ID, terms)
	return plan, nil
}

// HasPaidInstallments reports whether any installment was paid
func (p *PaymentPlan) HasPaidInstallments() bool {
	for _, inst := range p.Installments {
		if inst.IsPaid {
			return true
		}
	}
	return false
}

func (p *PaymentPlan) ensureMutable() error {
	if p.HasPaidInstallments() {
		return shared.NewInvalidStateError("payment plan %s has paid installments and can no longer be changed", p.ID)
	}
	return nil
}

// PlanRevision is a partial plan update. Nil fields keep their current value.
type PlanRevision struct {
	NumberOfInstallments *int
	InstallmentAmount    *decimal.Decimal
	InitialPayment       *decimal.Decimal
	StartDate            *time.Time
	Notes                *string
}

// Revise applies a revision. When the terms change the whole schedule is
// regenerated, and the result reports true. price is the current treatment
// price used to re-check the new terms.
func (p *PaymentPlan) Revise(rev PlanRevision, price, tolerance decimal.Decimal) (bool, error) {
	if err := p.ensureMutable(); err != nil {
		return false, err
	}

	terms := p.PlanTerms
	if rev.NumberOfInstallments != nil {
		terms.NumberOfInstallments = *rev.NumberOfInstallments
	}
	if rev.InstallmentAmount != nil {
		terms.InstallmentAmount = *rev.InstallmentAmount
	}
	if rev.InitialPayment != nil {
		terms.InitialPayment = *rev.InitialPayment
	}
	if rev.StartDate != nil {
		terms.StartDate = *rev.StartDate
	}

	regenerate := !terms.structurallyEqual(p.PlanTerms)
	if regenerate {
		if err := terms.Validate(); err != nil {
			return false, err
		}
		if err := terms.CheckAgainstPrice(price, tolerance); err != nil {
			return false, err
		}
		p.PlanTerms = terms
		p.Installments = ScheduleInstallments(p.ID, terms)
	}
	if rev.Notes != nil {
		p.Notes = *rev.Notes
	}
	p.Touch(time.Now())
	return regenerate, nil
}

// EnsureDeletable rejects deleting a plan with paid installments
func (p *PaymentPlan) EnsureDeletable() error {
	return p.ensureMutable()
}

// MarkInstallmentPaid transitions one installment to paid. It never reverts.
func (p *PaymentPlan) MarkInstallmentPaid(installmentID uuid.UUID, method *PaymentMethod, date *time.Time) (*PaymentInstallment, error) {
	if method != nil && !method.IsValid() {
		return nil, shared.NewInvalidArgumentError("unknown payment method %q", *method)
	}
	for i := range p.Installments {
		inst := &p.Installments[i]
		if inst.ID != installmentID {
			continue
		}
		if inst.IsPaid {
			return nil, shared.NewInvalidStateError("installment %d of plan %s is already paid", inst.InstallmentNumber, p.ID)
		}
		paidDate := time.Now()
		if date != nil {
			paidDate = *date
		}
		inst.IsPaid = true
		inst.PaidDate = &paidDate
		inst.PaymentMethod = method
		inst.UpdatedAt = time.Now()
		return inst, nil
	}
	return nil, shared.NewNotFoundError("installment", installmentID).WithDetail("plan_id", p.ID.String())
}

// NextPendingInstallment returns the earliest unpaid installment, if any
func (p *PaymentPlan) NextPendingInstallment() *PaymentInstallment {
	var next *PaymentInstallment
	for i := range p.Installments {
		inst := &p.Installments[i]
		if inst.IsPaid {
			continue
		}
		if next == nil || inst.InstallmentNumber < next.InstallmentNumber {
			next = inst
		}
	}
	return next
}

// PlanSummary is the progress of a plan, derived on read
type PlanSummary struct {
	TotalInstallments   int             `json:"total_installments"`
	PaidInstallments    int             `json:"paid_installments"`
	PendingInstallments int             `json:"pending_installments"`
	OverdueInstallments int             `json:"overdue_installments"`
	TotalAmount         decimal.Decimal `json:"total_amount"`
	PaidAmount          decimal.Decimal `json:"paid_amount"`
	PendingAmount       decimal.Decimal `json:"pending_amount"`
	PaidPercentage      decimal.Decimal `json:"paid_percentage"`
	NextDueDate         *time.Time      `json:"next_due_date,omitempty"`
}

// Summary computes plan progress at now. The initial payment counts as paid.
func (p *PaymentPlan) Summary(now time.Time) PlanSummary {
	s := PlanSummary{
		TotalInstallments: len(p.Installments),
		TotalAmount:       p.InitialPayment,
		PaidAmount:        p.InitialPayment,
	}
	for _, inst := range p.Installments {
		s.TotalAmount = s.TotalAmount.Add(inst.Amount)
		if inst.IsPaid {
			s.PaidInstallments++
			s.PaidAmount = s.PaidAmount.Add(inst.Amount)
			continue
		}
		s.PendingInstallments++
		if inst.IsOverdue(now) {
			s.OverdueInstallments++
		}
	}
	s.PendingAmount = s.TotalAmount.Sub(s.PaidAmount)
	s.PaidPercentage = decimal.Zero
	if !s.TotalAmount.IsZero() {
		s.PaidPercentage = s.PaidAmount.Div(s.TotalAmount).Mul(decimal.NewFromInt(100)).Round(2)
	}
	if next := p.NextPendingInstallment(); next != nil {
		due := next.DueDate
		s.NextDueDate = &due
	}
	return s
}
