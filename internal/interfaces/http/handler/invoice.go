package handler

import (
	appbilling "github.com/clinic/ledger/internal/application/billing"
	"github.com/gin-gonic/gin"
)

// InvoiceHandler handles invoice endpoints
type InvoiceHandler struct {
	BaseHandler
	invoices InvoiceService
	payments PaymentService
}

// NewInvoiceHandler creates a new InvoiceHandler
func NewInvoiceHandler(invoices InvoiceService, payments PaymentService) *InvoiceHandler {
	return &InvoiceHandler{
		invoices: invoices,
		payments: payments,
	}
}

// Create godoc
// @ID           createInvoice
// @Summary      Create an invoice
// @Description  Opens a PENDING invoice. The code is generated and the total computed from the items.
// @Tags         invoices
// @Accept       json
// @Produce      json
// @Param        request body appbilling.CreateInvoiceRequest true "Invoice creation request"
// @Success      201 {object} dto.Response
// @Failure      400 {object} dto.Response
// @Failure      404 {object} dto.Response
// @Router       /invoices [post]
func (h *InvoiceHandler) Create(c *gin.Context) {
	var req appbilling.CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	invoice, err := h.invoices.Create(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, invoice)
}

// List godoc
// @ID           listInvoices
// @Summary      List invoices
// @Tags         invoices
// @Produce      json
// @Param        patient_id query string false "Patient ID" format(uuid)
// @Param        status query string false "Comma separated statuses"
// @Param        search query string false "Code or patient name"
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Page size" default(20)
// @Success      200 {object} dto.Response
// @Router       /invoices [get]
func (h *InvoiceHandler) List(c *gin.Context) {
	filter, err := invoiceFilter(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	page, err := h.invoices.List(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	respondPage(c, page)
}

// Get godoc
// @ID           getInvoice
// @Summary      Get an invoice by ID
// @Tags         invoices
// @Produce      json
// @Param        id path string true "Invoice ID" format(uuid)
// @Success      200 {object} dto.Response
// @Failure      404 {object} dto.Response
// @Router       /invoices/{id} [get]
func (h *InvoiceHandler) Get(c *gin.Context) {
	id, err := pathUUID(c, "id")
	if err != nil {
		h.HandleError(c, err)
		return
	}

	invoice, err := h.invoices.GetByID(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, invoice)
}

// Update godoc
// @ID           updateInvoice
// @Summary      Revise an unpaid invoice
// @Description  Replaces the items and/or discount, or patches references. Rejected once the invoice is PAID.
// @Tags         invoices
// @Accept       json
// @Produce      json
// @Param        id path string true "Invoice ID" format(uuid)
// @Param        request body appbilling.UpdateInvoiceRequest true "Invoice update request"
// @Success      200 {object} dto.Response
// @Failure      400 {object} dto.Response
// @Failure      404 {object} dto.Response
// @Failure      409 {object} dto.Response
// @Router       /invoices/{id} [put]
func (h *InvoiceHandler) Update(c *gin.Context) {
	id, err := pathUUID(c, "id")
	if err != nil {
		h.HandleError(c, err)
		return
	}

	var req appbilling.UpdateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	invoice, err := h.invoices.Update(c.Request.Context(), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, invoice)
}

// ChangeStatus godoc
// @ID           changeInvoiceStatus
// @Summary      Change the status of an invoice
// @Tags         invoices
// @Accept       json
// @Produce      json
// @Param        id path string true "Invoice ID" format(uuid)
// @Param        request body appbilling.ChangeInvoiceStatusRequest true "Target status"
// @Success      200 {object} dto.Response
// @Failure      409 {object} dto.Response
// @Router       /invoices/{id}/status [patch]
func (h *InvoiceHandler) ChangeStatus(c *gin.Context) {
	id, err := pathUUID(c, "id")
	if err != nil {
		h.HandleError(c, err)
		return
	}

	var req appbilling.ChangeInvoiceStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	invoice, err := h.invoices.ChangeStatus(c.Request.Context(), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, invoice)
}

// ListPayments returns every payment applied to the invoice, oldest first
func (h *InvoiceHandler) ListPayments(c *gin.Context) {
	id, err := pathUUID(c, "id")
	if err != nil {
		h.HandleError(c, err)
		return
	}

	payments, err := h.payments.ListForInvoice(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, payments)
}
