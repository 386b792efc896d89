package handler

import (
	"fmt"
	"iter"
	"net/http"
	"time"

	appbilling "github.com/clinic/ledger/internal/application/billing"
	"github.com/clinic/ledger/internal/infrastructure/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ExportHandler streams CSV exports
type ExportHandler struct {
	BaseHandler
	exports ExportService
	now     func() time.Time
}

// NewExportHandler creates a new ExportHandler
func NewExportHandler(exports ExportService) *ExportHandler {
	return &ExportHandler{exports: exports, now: time.Now}
}

// Export godoc
// @ID           exportLedger
// @Summary      Stream a CSV export
// @Description  kind is invoices, payments or receivables. Accepts the same filters as the matching list endpoint.
// @Tags         exports
// @Produce      text/csv
// @Param        kind path string true "Export kind"
// @Success      200 {string} string "CSV"
// @Failure      400 {object} dto.Response
// @Router       /exports/{kind} [get]
func (h *ExportHandler) Export(c *gin.Context) {
	kind, err := appbilling.ParseExportKind(c.Param("kind"))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	seq, err := h.sequence(c, kind)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.stream(c, kind, seq)
}

func (h *ExportHandler) sequence(c *gin.Context, kind appbilling.ExportKind) (iter.Seq2[string, error], error) {
	ctx := c.Request.Context()
	switch kind {
	case appbilling.ExportInvoices:
		filter, err := invoiceFilter(c)
		if err != nil {
			return nil, err
		}
		return h.exports.ExportInvoices(ctx, filter), nil
	case appbilling.ExportPayments:
		filter, err := paymentFilter(c)
		if err != nil {
			return nil, err
		}
		return h.exports.ExportPayments(ctx, filter), nil
	default:
		q, err := receivableQuery(c)
		if err != nil {
			return nil, err
		}
		return h.exports.ExportReceivables(ctx, q), nil
	}
}

// stream writes lines as they are produced. An error before the first line
// is a normal error response; after that the status is already sent, so the
// body is cut short and the error logged.
func (h *ExportHandler) stream(c *gin.Context, kind appbilling.ExportKind, seq iter.Seq2[string, error]) {
	started := false
	for line, err := range seq {
		if err != nil {
			if !started {
				h.HandleError(c, err)
				return
			}
			logger.L(c.Request.Context()).Error("export aborted",
				zap.String("kind", string(kind)),
				zap.Error(err),
			)
			_ = c.Error(err)
			return
		}
		if !started {
			started = true
			filename := fmt.Sprintf("%s-%s.csv", kind, h.now().UTC().Format("20060102-150405"))
			c.Header("Content-Type", "text/csv; charset=utf-8")
			c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
			c.Header("Cache-Control", "no-store")
			c.Status(http.StatusOK)
		}
		if _, err := c.Writer.WriteString(line); err != nil {
			// client went away
			return
		}
		c.Writer.Flush()
	}
}
