package handler

import (
	"strings"

	appbilling "github.com/clinic/ledger/internal/application/billing"
	"github.com/clinic/ledger/internal/domain/billing"
	"github.com/clinic/ledger/internal/domain/shared"
	"github.com/gin-gonic/gin"
)

// invoiceFilter reads the invoice list query. status takes a comma separated list.
func invoiceFilter(c *gin.Context) (billing.InvoiceFilter, error) {
	var (
		f   billing.InvoiceFilter
		err error
	)
	if f.Filter, err = listFilter(c); err != nil {
		return f, err
	}
	if f.PatientID, err = queryUUID(c, "patient_id"); err != nil {
		return f, err
	}
	if f.DoctorID, err = queryUUID(c, "doctor_id"); err != nil {
		return f, err
	}
	if f.BranchID, err = queryUUID(c, "branch_id"); err != nil {
		return f, err
	}
	if f.TreatmentID, err = queryUUID(c, "treatment_id"); err != nil {
		return f, err
	}
	if raw := c.Query("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			status, err := billing.ParseInvoiceStatus(part)
			if err != nil {
				return f, err
			}
			f.Statuses = append(f.Statuses, status)
		}
	}
	includeDeleted, err := queryBool(c, "include_deleted")
	if err != nil {
		return f, err
	}
	f.IncludeDeleted = includeDeleted != nil && *includeDeleted
	if f.CreatedFrom, err = queryTime(c, "created_from"); err != nil {
		return f, err
	}
	if f.CreatedTo, err = queryTime(c, "created_to"); err != nil {
		return f, err
	}
	if f.ExpiresFrom, err = queryTime(c, "expires_from"); err != nil {
		return f, err
	}
	if f.ExpiresTo, err = queryTime(c, "expires_to"); err != nil {
		return f, err
	}
	return f, nil
}

func paymentFilter(c *gin.Context) (billing.PaymentFilter, error) {
	var (
		f   billing.PaymentFilter
		err error
	)
	if f.Filter, err = listFilter(c); err != nil {
		return f, err
	}
	if f.InvoiceID, err = queryUUID(c, "invoice_id"); err != nil {
		return f, err
	}
	if f.PatientID, err = queryUUID(c, "patient_id"); err != nil {
		return f, err
	}
	if raw := c.Query("payment_method"); raw != "" {
		method, err := billing.ParsePaymentMethod(raw)
		if err != nil {
			return f, err
		}
		f.Method = &method
	}
	if raw := c.Query("status"); raw != "" {
		status := billing.PaymentStatus(strings.ToUpper(strings.TrimSpace(raw)))
		if !status.IsValid() {
			return f, shared.NewInvalidArgumentError("unknown payment status %q", raw)
		}
		f.Status = &status
	}
	if f.DateFrom, err = queryTime(c, "date_from"); err != nil {
		return f, err
	}
	if f.DateTo, err = queryTime(c, "date_to"); err != nil {
		return f, err
	}
	return f, nil
}

func planFilter(c *gin.Context) (billing.PaymentPlanFilter, error) {
	var (
		f   billing.PaymentPlanFilter
		err error
	)
	if f.Filter, err = listFilter(c); err != nil {
		return f, err
	}
	if f.TreatmentID, err = queryUUID(c, "treatment_id"); err != nil {
		return f, err
	}
	if f.HasPending, err = queryBool(c, "has_pending"); err != nil {
		return f, err
	}
	return f, nil
}

// receivableQuery reads the receivables query. sort_dir defaults to desc.
func receivableQuery(c *gin.Context) (appbilling.ReceivableQuery, error) {
	var (
		q   appbilling.ReceivableQuery
		err error
	)
	page, err := listFilter(c)
	if err != nil {
		return q, err
	}
	q.Page, q.PageSize = page.Page, page.PageSize
	q.Search = page.Search

	if q.PatientID, err = queryUUID(c, "patient_id"); err != nil {
		return q, err
	}
	if q.InvoiceDateFrom, err = queryTime(c, "invoice_date_from"); err != nil {
		return q, err
	}
	if q.InvoiceDateTo, err = queryTime(c, "invoice_date_to"); err != nil {
		return q, err
	}
	if q.DaysOverdueMin, err = queryInt(c, "days_overdue_min"); err != nil {
		return q, err
	}
	if q.DaysOverdueMax, err = queryInt(c, "days_overdue_max"); err != nil {
		return q, err
	}
	if raw := c.Query("priority"); raw != "" {
		p, err := billing.ParsePriority(raw)
		if err != nil {
			return q, err
		}
		q.Priority = &p
	}
	if q.SortBy, err = billing.ParseReceivableSortField(c.Query("sort_by")); err != nil {
		return q, err
	}
	switch dir := strings.ToLower(c.DefaultQuery("sort_dir", "desc")); dir {
	case "asc":
		q.SortDesc = false
	case "desc":
		q.SortDesc = true
	default:
		return q, shared.NewInvalidArgumentError("sort_dir must be asc or desc")
	}
	return q, nil
}
