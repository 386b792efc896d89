package handler

import (
	"github.com/gin-gonic/gin"
)

// ReceivableHandler serves accounts receivable. Every request folds the
// current open invoices; nothing is cached.
type ReceivableHandler struct {
	BaseHandler
	receivables ReceivableService
}

// NewReceivableHandler creates a new ReceivableHandler
func NewReceivableHandler(receivables ReceivableService) *ReceivableHandler {
	return &ReceivableHandler{receivables: receivables}
}

// List godoc
// @ID           listReceivables
// @Summary      List outstanding debt per patient
// @Tags         receivables
// @Produce      json
// @Param        days_overdue_min query int false "Minimum days overdue"
// @Param        days_overdue_max query int false "Maximum days overdue"
// @Param        priority query string false "HIGH, MEDIUM or LOW"
// @Param        invoice_date_from query string false "Earliest invoice creation date"
// @Param        invoice_date_to query string false "Latest invoice creation date"
// @Param        search query string false "Patient name"
// @Param        sort_by query string false "patient_name, total_debt, days_overdue, priority or invoice_count" default(total_debt)
// @Param        sort_dir query string false "asc or desc" default(desc)
// @Success      200 {object} dto.Response
// @Router       /receivables [get]
func (h *ReceivableHandler) List(c *gin.Context) {
	q, err := receivableQuery(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	page, err := h.receivables.List(c.Request.Context(), q)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	respondPage(c, page)
}

// Summary totals the receivables matching the same filters as List
func (h *ReceivableHandler) Summary(c *gin.Context) {
	q, err := receivableQuery(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	summary, err := h.receivables.Summary(c.Request.Context(), q)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, summary)
}

// ForPatient returns one patient's receivable, with zero debt when nothing is owed
func (h *ReceivableHandler) ForPatient(c *gin.Context) {
	id, err := pathUUID(c, "patientId")
	if err != nil {
		h.HandleError(c, err)
		return
	}

	entry, err := h.receivables.ForPatient(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, entry)
}
