package handler

import (
	"errors"
	"io"

	appbilling "github.com/clinic/ledger/internal/application/billing"
	"github.com/gin-gonic/gin"
)

// PaymentPlanHandler handles payment plan endpoints
type PaymentPlanHandler struct {
	BaseHandler
	plans PaymentPlanService
}

// NewPaymentPlanHandler creates a new PaymentPlanHandler
func NewPaymentPlanHandler(plans PaymentPlanService) *PaymentPlanHandler {
	return &PaymentPlanHandler{plans: plans}
}

// Create godoc
// @ID           createPaymentPlan
// @Summary      Create a payment plan for a treatment
// @Description  initial_payment + installment_amount × number_of_installments must match the treatment price.
// @Tags         payment-plans
// @Accept       json
// @Produce      json
// @Param        request body appbilling.CreatePlanRequest true "Plan terms"
// @Success      201 {object} dto.Response
// @Failure      400 {object} dto.Response
// @Failure      409 {object} dto.Response
// @Router       /payment-plans [post]
func (h *PaymentPlanHandler) Create(c *gin.Context) {
	var req appbilling.CreatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	plan, err := h.plans.Create(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, plan)
}

// List returns plans, optionally for one treatment or only those with pending installments
func (h *PaymentPlanHandler) List(c *gin.Context) {
	filter, err := planFilter(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	page, err := h.plans.List(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	respondPage(c, page)
}

func (h *PaymentPlanHandler) Get(c *gin.Context) {
	id, err := pathUUID(c, "id")
	if err != nil {
		h.HandleError(c, err)
		return
	}

	plan, err := h.plans.GetByID(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, plan)
}

// GetByTreatment returns the plan of a treatment
func (h *PaymentPlanHandler) GetByTreatment(c *gin.Context) {
	id, err := pathUUID(c, "treatmentId")
	if err != nil {
		h.HandleError(c, err)
		return
	}

	plan, err := h.plans.GetByTreatment(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, plan)
}

// Update godoc
// @ID           updatePaymentPlan
// @Summary      Revise a payment plan
// @Description  Structural changes regenerate the schedule and are rejected once any installment is paid.
// @Tags         payment-plans
// @Accept       json
// @Produce      json
// @Param        id path string true "Plan ID" format(uuid)
// @Param        request body appbilling.UpdatePlanRequest true "Changed terms"
// @Success      200 {object} dto.Response
// @Failure      400 {object} dto.Response
// @Failure      409 {object} dto.Response
// @Router       /payment-plans/{id} [put]
func (h *PaymentPlanHandler) Update(c *gin.Context) {
	id, err := pathUUID(c, "id")
	if err != nil {
		h.HandleError(c, err)
		return
	}

	var req appbilling.UpdatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	plan, err := h.plans.Update(c.Request.Context(), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, plan)
}

func (h *PaymentPlanHandler) Delete(c *gin.Context) {
	id, err := pathUUID(c, "id")
	if err != nil {
		h.HandleError(c, err)
		return
	}

	if err := h.plans.Delete(c.Request.Context(), id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// MarkInstallmentPaid godoc
// @ID           payInstallment
// @Summary      Mark an installment as paid
// @Description  The body is optional; paid_date defaults to now.
// @Tags         payment-plans
// @Accept       json
// @Produce      json
// @Param        id path string true "Plan ID" format(uuid)
// @Param        installmentId path string true "Installment ID" format(uuid)
// @Param        request body appbilling.MarkInstallmentPaidRequest false "Method and date"
// @Success      200 {object} dto.Response
// @Failure      404 {object} dto.Response
// @Failure      409 {object} dto.Response
// @Router       /payment-plans/{id}/installments/{installmentId}/pay [post]
func (h *PaymentPlanHandler) MarkInstallmentPaid(c *gin.Context) {
	planID, err := pathUUID(c, "id")
	if err != nil {
		h.HandleError(c, err)
		return
	}
	installmentID, err := pathUUID(c, "installmentId")
	if err != nil {
		h.HandleError(c, err)
		return
	}

	var req appbilling.MarkInstallmentPaidRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		h.BindError(c, err)
		return
	}

	plan, err := h.plans.MarkInstallmentPaid(c.Request.Context(), planID, installmentID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, plan)
}

// Summary returns plan progress: paid, pending and overdue installments
func (h *PaymentPlanHandler) Summary(c *gin.Context) {
	id, err := pathUUID(c, "id")
	if err != nil {
		h.HandleError(c, err)
		return
	}

	summary, err := h.plans.GetSummary(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, summary)
}
