package handler

import (
	"strings"

	appbilling "github.com/clinic/ledger/internal/application/billing"
	"github.com/gin-gonic/gin"
)

// IdempotencyKeyHeader lets clients retry a payment without applying it twice
const IdempotencyKeyHeader = "Idempotency-Key"

// maxIdempotencyKeyLength bounds the header before it reaches the store
const maxIdempotencyKeyLength = 255

// PaymentHandler handles payment endpoints
type PaymentHandler struct {
	BaseHandler
	payments PaymentService
}

// NewPaymentHandler creates a new PaymentHandler
func NewPaymentHandler(payments PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

// Apply godoc
// @ID           applyPayment
// @Summary      Apply a payment to an invoice
// @Description  Records the payment and increments the invoice paid amount in one transaction.
// @Description  A repeated Idempotency-Key is rejected with 409.
// @Tags         payments
// @Accept       json
// @Produce      json
// @Param        Idempotency-Key header string false "Client supplied retry key"
// @Param        request body appbilling.ApplyPaymentRequest true "Payment"
// @Success      201 {object} dto.Response
// @Failure      400 {object} dto.Response
// @Failure      404 {object} dto.Response
// @Failure      409 {object} dto.Response
// @Router       /payments [post]
func (h *PaymentHandler) Apply(c *gin.Context) {
	var req appbilling.ApplyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	req.IdempotencyKey = strings.TrimSpace(c.GetHeader(IdempotencyKeyHeader))
	if len(req.IdempotencyKey) > maxIdempotencyKeyLength {
		h.BadRequest(c, "Idempotency-Key is too long")
		return
	}

	receipt, err := h.payments.Apply(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, receipt)
}

// Get returns one payment
func (h *PaymentHandler) Get(c *gin.Context) {
	id, err := pathUUID(c, "id")
	if err != nil {
		h.HandleError(c, err)
		return
	}

	payment, err := h.payments.GetByID(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, payment)
}

// List godoc
// @ID           listPayments
// @Summary      List payments
// @Tags         payments
// @Produce      json
// @Param        invoice_id query string false "Invoice ID" format(uuid)
// @Param        payment_method query string false "CASH, CARD, TRANSFER, CHECK or OTHER"
// @Param        date_from query string false "Earliest payment date"
// @Param        date_to query string false "Latest payment date"
// @Success      200 {object} dto.Response
// @Router       /payments [get]
func (h *PaymentHandler) List(c *gin.Context) {
	filter, err := paymentFilter(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	page, err := h.payments.List(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	respondPage(c, page)
}
