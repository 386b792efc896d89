package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	appbilling "github.com/clinic/ledger/internal/application/billing"
	"github.com/clinic/ledger/internal/domain/billing"
	"github.com/clinic/ledger/internal/domain/shared"
	"github.com/clinic/ledger/internal/interfaces/http/dto"
	"github.com/clinic/ledger/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
	middleware.SetupValidator()
}

func newTestEngine(routes func(r *gin.Engine)) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID())
	routes(r)
	return r
}

func perform(r *gin.Engine, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

func assertErrorCode(t *testing.T, w *httptest.ResponseRecorder, status int, code string) dto.Response {
	t.Helper()
	assert.Equal(t, status, w.Code, w.Body.String())
	resp := decode(t, w)
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, code, resp.Error.Code)
	return resp
}

func TestBaseHandler_HandleError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", shared.NewNotFoundError("invoice", uuid.New()), http.StatusNotFound, dto.ErrCodeNotFound},
		{"invalid argument", shared.NewInvalidArgumentError("amount must be positive"), http.StatusBadRequest, dto.ErrCodeInvalidInput},
		{"invalid state", shared.NewInvalidStateError("invoice is PAID"), http.StatusConflict, dto.ErrCodeInvalidState},
		{"already exists", shared.ErrAlreadyExists, http.StatusConflict, dto.ErrCodeAlreadyExists},
		{"concurrency", shared.ErrConcurrencyConflict, http.StatusConflict, dto.ErrCodeConcurrencyConflict},
		{"wrapped domain error", errors.Join(errors.New("context"), shared.ErrNotFound), http.StatusNotFound, dto.ErrCodeNotFound},
		{"infrastructure", errors.New("pq: connection refused"), http.StatusInternalServerError, dto.ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &BaseHandler{}
			r := newTestEngine(func(r *gin.Engine) {
				r.GET("/", func(c *gin.Context) { h.HandleError(c, tt.err) })
			})

			w := perform(r, http.MethodGet, "/", "", middleware.RequestIDHeader, "req-7")

			resp := assertErrorCode(t, w, tt.status, tt.code)
			assert.Equal(t, "req-7", resp.Error.RequestID)
			assert.NotContains(t, resp.Error.Message, "pq:")
		})
	}
}

func TestInvoiceHandler(t *testing.T) {
	invoiceID := uuid.New()
	patientID := uuid.New()
	sample := &appbilling.InvoiceResponse{
		ID:          invoiceID,
		Code:        "FAC-2026-00042",
		PatientID:   patientID,
		TotalAmount: decimal.RequireFromString("170"),
		Status:      "PENDING",
	}

	setup := func() (*mockInvoiceService, *mockPaymentService, *gin.Engine) {
		invoices := new(mockInvoiceService)
		payments := new(mockPaymentService)
		h := NewInvoiceHandler(invoices, payments)
		r := newTestEngine(func(r *gin.Engine) {
			r.POST("/invoices", h.Create)
			r.GET("/invoices", h.List)
			r.GET("/invoices/:id", h.Get)
			r.PUT("/invoices/:id", h.Update)
			r.PATCH("/invoices/:id/status", h.ChangeStatus)
			r.GET("/invoices/:id/payments", h.ListPayments)
		})
		return invoices, payments, r
	}

	t.Run("create", func(t *testing.T) {
		invoices, _, r := setup()
		invoices.On("Create", mock.Anything, mock.MatchedBy(func(req appbilling.CreateInvoiceRequest) bool {
			return req.PatientID == patientID &&
				len(req.Items) == 1 &&
				req.Items[0].UnitPrice.Equal(decimal.NewFromInt(100)) &&
				req.Items[0].Quantity == 2 &&
				req.Discount.Equal(decimal.NewFromInt(20))
		})).Return(sample, nil)

		body := `{"patient_id":"` + patientID.String() + `","items":[{"name":"Filling","unit_price":"100","quantity":2,"discount":"10"}],"discount":"20"}`
		w := perform(r, http.MethodPost, "/invoices", body)

		assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		resp := decode(t, w)
		assert.True(t, resp.Success)
		assert.Equal(t, "FAC-2026-00042", resp.Data.(map[string]any)["code"])
		invoices.AssertExpectations(t)
	})

	t.Run("create without items is a validation error", func(t *testing.T) {
		invoices, _, r := setup()

		w := perform(r, http.MethodPost, "/invoices", `{"patient_id":"`+patientID.String()+`"}`)

		resp := assertErrorCode(t, w, http.StatusBadRequest, dto.ErrCodeValidation)
		require.Len(t, resp.Error.Fields, 1)
		assert.Equal(t, "items", resp.Error.Fields[0].Field)
		invoices.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("get", func(t *testing.T) {
		invoices, _, r := setup()
		invoices.On("GetByID", mock.Anything, invoiceID).Return(sample, nil)

		w := perform(r, http.MethodGet, "/invoices/"+invoiceID.String(), "")

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("get with a malformed id", func(t *testing.T) {
		_, _, r := setup()

		w := perform(r, http.MethodGet, "/invoices/42", "")

		assertErrorCode(t, w, http.StatusBadRequest, dto.ErrCodeInvalidInput)
	})

	t.Run("get unknown", func(t *testing.T) {
		invoices, _, r := setup()
		invoices.On("GetByID", mock.Anything, invoiceID).Return(nil, shared.NewNotFoundError("invoice", invoiceID))

		w := perform(r, http.MethodGet, "/invoices/"+invoiceID.String(), "")

		assertErrorCode(t, w, http.StatusNotFound, dto.ErrCodeNotFound)
	})

	t.Run("update a paid invoice", func(t *testing.T) {
		invoices, _, r := setup()
		invoices.On("Update", mock.Anything, invoiceID, mock.MatchedBy(func(req appbilling.UpdateInvoiceRequest) bool {
			return req.Discount != nil && req.Discount.Equal(decimal.NewFromInt(5)) && req.Items == nil
		})).Return(nil, shared.NewInvalidStateError("invoice is PAID and cannot be modified"))

		w := perform(r, http.MethodPut, "/invoices/"+invoiceID.String(), `{"discount":"5"}`)

		assertErrorCode(t, w, http.StatusConflict, dto.ErrCodeInvalidState)
	})

	t.Run("change status", func(t *testing.T) {
		invoices, _, r := setup()
		canceled := *sample
		canceled.Status = "CANCELED"
		invoices.On("ChangeStatus", mock.Anything, invoiceID, appbilling.ChangeInvoiceStatusRequest{Status: "canceled"}).
			Return(&canceled, nil)

		w := perform(r, http.MethodPatch, "/invoices/"+invoiceID.String()+"/status", `{"status":"canceled"}`)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "CANCELED", decode(t, w).Data.(map[string]any)["status"])
	})

	t.Run("list parses filters", func(t *testing.T) {
		invoices, _, r := setup()
		page := shared.NewPaginated([]appbilling.InvoiceResponse{*sample}, 11, 2, 10)
		invoices.On("List", mock.Anything, mock.MatchedBy(func(f billing.InvoiceFilter) bool {
			return f.Page == 2 && f.PageSize == 10 &&
				f.PatientID != nil && *f.PatientID == patientID &&
				len(f.Statuses) == 2 && f.Statuses[0] == billing.InvoiceStatusPending && f.Statuses[1] == billing.InvoiceStatusExpired &&
				f.CreatedFrom != nil && f.CreatedFrom.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)) &&
				f.Search == "martin" && f.OrderBy == "total_amount" && f.OrderDir == "asc"
		})).Return(page, nil)

		w := perform(r, http.MethodGet, "/invoices?patient_id="+patientID.String()+
			"&status=pending,expired&created_from=2026-01-01&search=martin&order_by=total_amount&order_dir=asc&page=2&page_size=10", "")

		assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
		resp := decode(t, w)
		require.NotNil(t, resp.Meta)
		assert.Equal(t, int64(11), resp.Meta.Total)
		assert.Equal(t, 2, resp.Meta.TotalPages)
		assert.False(t, resp.Meta.HasNextPage)
		assert.True(t, resp.Meta.HasPreviousPage)
		invoices.AssertExpectations(t)
	})

	t.Run("list rejects an unknown status", func(t *testing.T) {
		_, _, r := setup()

		w := perform(r, http.MethodGet, "/invoices?status=LOST", "")

		assertErrorCode(t, w, http.StatusBadRequest, dto.ErrCodeInvalidInput)
	})

	t.Run("list rejects a malformed date", func(t *testing.T) {
		_, _, r := setup()

		w := perform(r, http.MethodGet, "/invoices?expires_to=31/01/2026", "")

		assertErrorCode(t, w, http.StatusBadRequest, dto.ErrCodeInvalidInput)
	})

	t.Run("payments of an invoice", func(t *testing.T) {
		_, payments, r := setup()
		payments.On("ListForInvoice", mock.Anything, invoiceID).Return([]appbilling.PaymentResponse{{InvoiceID: invoiceID}}, nil)

		w := perform(r, http.MethodGet, "/invoices/"+invoiceID.String()+"/payments", "")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, decode(t, w).Data, 1)
	})
}

func TestPaymentHandler(t *testing.T) {
	invoiceID := uuid.New()

	setup := func() (*mockPaymentService, *gin.Engine) {
		payments := new(mockPaymentService)
		h := NewPaymentHandler(payments)
		r := newTestEngine(func(r *gin.Engine) {
			r.POST("/payments", h.Apply)
			r.GET("/payments", h.List)
			r.GET("/payments/:id", h.Get)
		})
		return payments, r
	}
	body := `{"invoice_id":"` + invoiceID.String() + `","amount":"50.25","payment_method":"card","reference":"POS-1"}`

	t.Run("apply passes the idempotency key", func(t *testing.T) {
		payments, r := setup()
		payments.On("Apply", mock.Anything, mock.MatchedBy(func(req appbilling.ApplyPaymentRequest) bool {
			return req.InvoiceID == invoiceID &&
				req.Amount.Equal(decimal.RequireFromString("50.25")) &&
				req.Method == "card" &&
				req.IdempotencyKey == "retry-1"
		})).Return(&appbilling.PaymentReceipt{}, nil)

		w := perform(r, http.MethodPost, "/payments", body, IdempotencyKeyHeader, " retry-1 ")

		assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		payments.AssertExpectations(t)
	})

	t.Run("overpayment carries the amounts", func(t *testing.T) {
		payments, r := setup()
		overpaid := &shared.DomainError{
			Code:    shared.CodeInvalidInput,
			Message: "payment exceeds the invoice balance",
			Details: map[string]string{"total": "170.00", "current": "150.00", "attempted": "50.25"},
		}
		payments.On("Apply", mock.Anything, mock.Anything).Return(nil, overpaid)

		w := perform(r, http.MethodPost, "/payments", body)

		resp := assertErrorCode(t, w, http.StatusBadRequest, dto.ErrCodeInvalidInput)
		assert.Equal(t, "150.00", resp.Error.Details["current"])
	})

	t.Run("repeated key", func(t *testing.T) {
		payments, r := setup()
		payments.On("Apply", mock.Anything, mock.Anything).
			Return(nil, shared.NewDomainError(shared.CodeAlreadyExists, "idempotency key already used"))

		w := perform(r, http.MethodPost, "/payments", body, IdempotencyKeyHeader, "retry-1")

		assertErrorCode(t, w, http.StatusConflict, dto.ErrCodeAlreadyExists)
	})

	t.Run("oversized key", func(t *testing.T) {
		payments, r := setup()

		w := perform(r, http.MethodPost, "/payments", body, IdempotencyKeyHeader, strings.Repeat("k", 300))

		assertErrorCode(t, w, http.StatusBadRequest, dto.ErrCodeBadRequest)
		payments.AssertNotCalled(t, "Apply", mock.Anything, mock.Anything)
	})

	t.Run("list parses filters", func(t *testing.T) {
		payments, r := setup()
		payments.On("List", mock.Anything, mock.MatchedBy(func(f billing.PaymentFilter) bool {
			return f.InvoiceID != nil && *f.InvoiceID == invoiceID &&
				f.Method != nil && *f.Method == billing.PaymentMethodTransfer &&
				f.Status != nil && *f.Status == billing.PaymentStatusPaid &&
				f.DateTo != nil
		})).Return(shared.NewPaginated([]appbilling.PaymentResponse{}, 0, 1, 20), nil)

		w := perform(r, http.MethodGet, "/payments?invoice_id="+invoiceID.String()+
			"&payment_method=transfer&status=paid&date_to=2026-03-01T00:00:00Z", "")

		assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
		payments.AssertExpectations(t)
	})

	t.Run("list rejects an unknown method", func(t *testing.T) {
		_, r := setup()

		w := perform(r, http.MethodGet, "/payments?payment_method=bitcoin", "")

		assertErrorCode(t, w, http.StatusBadRequest, dto.ErrCodeInvalidInput)
	})
}

func TestPaymentPlanHandler(t *testing.T) {
	planID := uuid.New()
	installmentID := uuid.New()
	treatmentID := uuid.New()

	setup := func() (*mockPlanService, *gin.Engine) {
		plans := new(mockPlanService)
		h := NewPaymentPlanHandler(plans)
		r := newTestEngine(func(r *gin.Engine) {
			r.POST("/payment-plans", h.Create)
			r.GET("/payment-plans", h.List)
			r.GET("/payment-plans/:id", h.Get)
			r.PUT("/payment-plans/:id", h.Update)
			r.DELETE("/payment-plans/:id", h.Delete)
			r.GET("/payment-plans/:id/summary", h.Summary)
			r.POST("/payment-plans/:id/installments/:installmentId/pay", h.MarkInstallmentPaid)
			r.GET("/treatments/:treatmentId/payment-plan", h.GetByTreatment)
		})
		return plans, r
	}

	t.Run("create", func(t *testing.T) {
		plans, r := setup()
		plans.On("Create", mock.Anything, mock.MatchedBy(func(req appbilling.CreatePlanRequest) bool {
			return req.TreatmentID == treatmentID && req.NumberOfInstallments == 3 &&
				req.InstallmentAmount.Equal(decimal.NewFromInt(100)) &&
				req.StartDate.Equal(time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC))
		})).Return(&appbilling.PlanResponse{ID: planID}, nil)

		w := perform(r, http.MethodPost, "/payment-plans",
			`{"treatment_id":"`+treatmentID.String()+`","number_of_installments":3,"installment_amount":"100","start_date":"2026-01-31T00:00:00Z"}`)

		assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		plans.AssertExpectations(t)
	})

	t.Run("create with zero installments", func(t *testing.T) {
		plans, r := setup()

		w := perform(r, http.MethodPost, "/payment-plans",
			`{"treatment_id":"`+treatmentID.String()+`","number_of_installments":0,"installment_amount":"100","start_date":"2026-01-31T00:00:00Z"}`)

		assertErrorCode(t, w, http.StatusBadRequest, dto.ErrCodeValidation)
		plans.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("mark paid without a body", func(t *testing.T) {
		plans, r := setup()
		plans.On("MarkInstallmentPaid", mock.Anything, planID, installmentID, appbilling.MarkInstallmentPaidRequest{}).
			Return(&appbilling.PlanResponse{ID: planID}, nil)

		w := perform(r, http.MethodPost, "/payment-plans/"+planID.String()+"/installments/"+installmentID.String()+"/pay", "")

		assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
		plans.AssertExpectations(t)
	})

	t.Run("mark paid twice", func(t *testing.T) {
		plans, r := setup()
		plans.On("MarkInstallmentPaid", mock.Anything, planID, installmentID, mock.MatchedBy(func(req appbilling.MarkInstallmentPaidRequest) bool {
			return req.PaymentMethod != nil && *req.PaymentMethod == "CASH"
		})).Return(nil, shared.NewInvalidStateError("installment 1 is already paid"))

		w := perform(r, http.MethodPost, "/payment-plans/"+planID.String()+"/installments/"+installmentID.String()+"/pay",
			`{"payment_method":"CASH"}`)

		assertErrorCode(t, w, http.StatusConflict, dto.ErrCodeInvalidState)
	})

	t.Run("delete", func(t *testing.T) {
		plans, r := setup()
		plans.On("Delete", mock.Anything, planID).Return(nil)

		w := perform(r, http.MethodDelete, "/payment-plans/"+planID.String(), "")

		assert.Equal(t, http.StatusNoContent, w.Code)
	})

	t.Run("summary", func(t *testing.T) {
		plans, r := setup()
		plans.On("GetSummary", mock.Anything, planID).Return(&billing.PlanSummary{TotalInstallments: 3, PaidInstallments: 1}, nil)

		w := perform(r, http.MethodGet, "/payment-plans/"+planID.String()+"/summary", "")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.EqualValues(t, 1, decode(t, w).Data.(map[string]any)["paid_installments"])
	})

	t.Run("by treatment", func(t *testing.T) {
		plans, r := setup()
		plans.On("GetByTreatment", mock.Anything, treatmentID).Return(nil, shared.NewNotFoundError("payment plan for treatment", treatmentID))

		w := perform(r, http.MethodGet, "/treatments/"+treatmentID.String()+"/payment-plan", "")

		assertErrorCode(t, w, http.StatusNotFound, dto.ErrCodeNotFound)
	})

	t.Run("list with pending only", func(t *testing.T) {
		plans, r := setup()
		plans.On("List", mock.Anything, mock.MatchedBy(func(f billing.PaymentPlanFilter) bool {
			return f.HasPending != nil && *f.HasPending && f.TreatmentID == nil
		})).Return(shared.NewPaginated([]appbilling.PlanResponse{}, 0, 1, 20), nil)

		w := perform(r, http.MethodGet, "/payment-plans?has_pending=true", "")

		assert.Equal(t, http.StatusOK, w.Code)
		plans.AssertExpectations(t)
	})
}

func TestReceivableHandler(t *testing.T) {
	setup := func() (*mockReceivableService, *gin.Engine) {
		receivables := new(mockReceivableService)
		h := NewReceivableHandler(receivables)
		r := newTestEngine(func(r *gin.Engine) {
			r.GET("/receivables", h.List)
			r.GET("/receivables/summary", h.Summary)
			r.GET("/receivables/:patientId", h.ForPatient)
		})
		return receivables, r
	}

	t.Run("list parses derived filters", func(t *testing.T) {
		receivables, r := setup()
		receivables.On("List", mock.Anything, mock.MatchedBy(func(q appbilling.ReceivableQuery) bool {
			return q.DaysOverdueMin != nil && *q.DaysOverdueMin == 15 &&
				q.Priority != nil && *q.Priority == billing.PriorityHigh &&
				q.SortBy == billing.ReceivableSortDaysOverdue && !q.SortDesc &&
				q.Search == "doe" && q.Page == 1 && q.PageSize == 5
		})).Return(shared.NewPaginated([]billing.ReceivableEntry{}, 0, 1, 5), nil)

		w := perform(r, http.MethodGet, "/receivables?days_overdue_min=15&priority=high&sort_by=days_overdue&sort_dir=asc&search=doe&page_size=5", "")

		assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
		receivables.AssertExpectations(t)
	})

	t.Run("defaults to debt descending", func(t *testing.T) {
		receivables, r := setup()
		receivables.On("List", mock.Anything, mock.MatchedBy(func(q appbilling.ReceivableQuery) bool {
			return q.SortBy == billing.ReceivableSortTotalDebt && q.SortDesc
		})).Return(shared.NewPaginated([]billing.ReceivableEntry{}, 0, 1, 20), nil)

		w := perform(r, http.MethodGet, "/receivables", "")

		assert.Equal(t, http.StatusOK, w.Code)
		receivables.AssertExpectations(t)
	})

	t.Run("rejects an unknown sort field", func(t *testing.T) {
		_, r := setup()

		w := perform(r, http.MethodGet, "/receivables?sort_by=balance", "")

		assertErrorCode(t, w, http.StatusBadRequest, dto.ErrCodeInvalidInput)
	})

	t.Run("summary", func(t *testing.T) {
		receivables, r := setup()
		receivables.On("Summary", mock.Anything, mock.Anything).Return(billing.ReceivableSummary{PatientCount: 3}, nil)

		w := perform(r, http.MethodGet, "/receivables/summary", "")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.EqualValues(t, 3, decode(t, w).Data.(map[string]any)["patient_count"])
	})

	t.Run("for patient", func(t *testing.T) {
		receivables, r := setup()
		patientID := uuid.New()
		receivables.On("ForPatient", mock.Anything, patientID).
			Return(&billing.ReceivableEntry{PatientID: patientID, TotalDebt: decimal.Zero, Priority: billing.PriorityLow}, nil)

		w := perform(r, http.MethodGet, "/receivables/"+patientID.String(), "")

		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestExportHandler(t *testing.T) {
	setup := func() (*mockExportService, *gin.Engine) {
		exports := new(mockExportService)
		h := NewExportHandler(exports)
		h.now = func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }
		r := newTestEngine(func(r *gin.Engine) {
			r.GET("/exports/:kind", h.Export)
		})
		return exports, r
	}

	t.Run("streams csv", func(t *testing.T) {
		exports, r := setup()
		exports.On("ExportInvoices", mock.Anything, mock.MatchedBy(func(f billing.InvoiceFilter) bool {
			return len(f.Statuses) == 1 && f.Statuses[0] == billing.InvoiceStatusPending
		})).Return(lines(nil, "Code,Patient Name\n", "FAC-2026-00001,\"Doe, Jane\"\n"))

		w := perform(r, http.MethodGet, "/exports/invoices?status=PENDING", "")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "text/csv; charset=utf-8", w.Header().Get("Content-Type"))
		assert.Equal(t, `attachment; filename="invoices-20260301-090000.csv"`, w.Header().Get("Content-Disposition"))
		assert.Equal(t, "Code,Patient Name\nFAC-2026-00001,\"Doe, Jane\"\n", w.Body.String())
	})

	t.Run("error before the first line is a json error", func(t *testing.T) {
		exports, r := setup()
		exports.On("ExportPayments", mock.Anything, mock.Anything).Return(lines(errors.New("pq: relation does not exist")))

		w := perform(r, http.MethodGet, "/exports/payments", "")

		assertErrorCode(t, w, http.StatusInternalServerError, dto.ErrCodeInternal)
	})

	t.Run("error mid-stream truncates the body", func(t *testing.T) {
		exports, r := setup()
		exports.On("ExportReceivables", mock.Anything, mock.Anything).
			Return(lines(errors.New("connection reset"), "Patient Name\n", "Alice\n"))

		w := perform(r, http.MethodGet, "/exports/receivables", "")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "Patient Name\nAlice\n", w.Body.String())
	})

	t.Run("unknown kind", func(t *testing.T) {
		exports, r := setup()

		w := perform(r, http.MethodGet, "/exports/plans", "")

		assertErrorCode(t, w, http.StatusBadRequest, dto.ErrCodeInvalidInput)
		exports.AssertNotCalled(t, "ExportInvoices", mock.Anything, mock.Anything)
	})

	t.Run("bad filter", func(t *testing.T) {
		_, r := setup()

		w := perform(r, http.MethodGet, "/exports/receivables?days_overdue_min=many", "")

		assertErrorCode(t, w, http.StatusBadRequest, dto.ErrCodeInvalidInput)
	})
}

func TestHealthHandler(t *testing.T) {
	t.Run("all checks pass", func(t *testing.T) {
		h := NewHealthHandler("1.0.0", map[string]HealthCheck{
			"database": func(context.Context) error { return nil },
		})
		r := newTestEngine(func(r *gin.Engine) { r.GET("/health", h.Health) })

		w := perform(r, http.MethodGet, "/health", "")

		assert.Equal(t, http.StatusOK, w.Code)
		var resp HealthResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "ok", resp.Status)
		assert.Equal(t, "ok", resp.Checks["database"])
	})

	t.Run("failing check degrades", func(t *testing.T) {
		h := NewHealthHandler("1.0.0", map[string]HealthCheck{
			"database": func(context.Context) error { return nil },
			"redis":    func(context.Context) error { return errors.New("dial tcp: connection refused") },
		})
		r := newTestEngine(func(r *gin.Engine) { r.GET("/health", h.Health) })

		w := perform(r, http.MethodGet, "/health", "")

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		var resp HealthResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "degraded", resp.Status)
		assert.Equal(t, "dial tcp: connection refused", resp.Checks["redis"])
	})
}
