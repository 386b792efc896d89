package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"strings"
	"time"

	appbilling "github.com/clinic/ledger/internal/application/billing"
	"github.com/clinic/ledger/internal/domain/billing"
	"github.com/clinic/ledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type exportOptions struct {
	out       string
	archive   bool
	patientID string
	statuses  []string
	method    string
	search    string
	from      string
	to        string
	daysMin   int
	daysMax   int
	priority  string
	sortBy    string
	asc       bool
}

func newExportCmd(open func(ctx context.Context) (*session, error)) *cobra.Command {
	var opts exportOptions

	cmd := &cobra.Command{
		Use:   "export <invoices|payments|receivables>",
		Short: "Stream a CSV export to a file or stdout",
		Long: `Stream a CSV export. Rows are fetched in batches, so large ledgers are
written without loading them into memory.

--from/--to bound the creation date for invoices, the payment date for
payments and the invoice date for receivables.

--archive uploads the finished file to the archive bucket. Without --out
the CSV goes to a temporary file instead of stdout and only the object
location and a download link are printed.`,
		Example: `  # Pending and expired invoices of one patient
  ledgerctl export invoices --status pending,expired --patient-id 6f1c...

  # Receivables more than 30 days overdue, oldest first
  ledgerctl export receivables --days-overdue-min 31 --sort-by days_overdue --out aging.csv

  # Card payments in March
  ledgerctl export payments --method card --from 2026-03-01 --to 2026-03-31

  # Keep a copy in the configured bucket and print a download link
  ledgerctl export invoices --archive`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(appbilling.ExportInvoices), string(appbilling.ExportPayments), string(appbilling.ExportReceivables)},
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := appbilling.ParseExportKind(args[0])
			if err != nil {
				return err
			}
			// validate everything before touching the database
			if _, err := opts.sequence(cmd, kind, nil); err != nil {
				return err
			}

			s, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.close()
			if opts.archive && s.archive == nil {
				return errors.New("--archive needs archive.bucket in the configuration")
			}

			seq, err := opts.sequence(cmd, kind, s.exports)
			if err != nil {
				return err
			}

			target := opts.out
			if opts.archive && target == "" {
				tmp, err := os.CreateTemp("", "ledgerctl-*.csv")
				if err != nil {
					return err
				}
				target = tmp.Name()
				_ = tmp.Close()
				defer os.Remove(target)
			}

			start := time.Now()
			rows, err := opts.write(cmd.OutOrStdout(), target, seq)
			if err != nil {
				s.log.Error("export failed",
					zap.String("kind", string(kind)),
					zap.Int("rows", rows),
					zap.Error(err),
				)
				return err
			}
			s.log.Info("export finished",
				zap.String("kind", string(kind)),
				zap.Int("rows", rows),
				zap.String("out", destination(target)),
				zap.Duration("took", time.Since(start)),
			)
			if !opts.archive {
				return nil
			}
			return upload(cmd, s.archive, kind, target)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.out, "out", "o", "", "Output file (default stdout)")
	f.BoolVar(&opts.archive, "archive", false, "Upload the export to the archive bucket")
	f.StringVar(&opts.patientID, "patient-id", "", "Only rows of this patient")
	f.StringSliceVar(&opts.statuses, "status", nil, "Invoice status (invoices) or payment status (payments); comma separated for invoices")
	f.StringVar(&opts.method, "method", "", "Payment method (payments)")
	f.StringVar(&opts.search, "search", "", "Free text search")
	f.StringVar(&opts.from, "from", "", "Lower date bound, RFC3339 or YYYY-MM-DD")
	f.StringVar(&opts.to, "to", "", "Upper date bound, RFC3339 or YYYY-MM-DD")
	f.IntVar(&opts.daysMin, "days-overdue-min", 0, "Minimum days overdue (receivables)")
	f.IntVar(&opts.daysMax, "days-overdue-max", 0, "Maximum days overdue (receivables)")
	f.StringVar(&opts.priority, "priority", "", "HIGH, MEDIUM or LOW (receivables)")
	f.StringVar(&opts.sortBy, "sort-by", "", "Receivables sort field (default total_debt)")
	f.BoolVar(&opts.asc, "asc", false, "Sort receivables ascending")
	return cmd
}

// sequence builds the filter for kind. With a nil exporter it only validates.
func (o *exportOptions) sequence(cmd *cobra.Command, kind appbilling.ExportKind, exports exporter) (iter.Seq2[string, error], error) {
	ctx := cmd.Context()
	patientID, err := parseOptionalUUID("patient-id", o.patientID)
	if err != nil {
		return nil, err
	}
	from, err := parseOptionalTime("from", o.from)
	if err != nil {
		return nil, err
	}
	to, err := parseOptionalTime("to", o.to)
	if err != nil {
		return nil, err
	}

	switch kind {
	case appbilling.ExportInvoices:
		filter := billing.InvoiceFilter{
			Filter:      shared.Filter{Search: o.search},
			PatientID:   patientID,
			CreatedFrom: from,
			CreatedTo:   to,
		}
		for _, raw := range o.statuses {
			status, err := billing.ParseInvoiceStatus(raw)
			if err != nil {
				return nil, err
			}
			filter.Statuses = append(filter.Statuses, status)
		}
		if exports == nil {
			return nil, nil
		}
		return exports.ExportInvoices(ctx, filter), nil

	case appbilling.ExportPayments:
		filter := billing.PaymentFilter{
			Filter:    shared.Filter{Search: o.search},
			PatientID: patientID,
			DateFrom:  from,
			DateTo:    to,
		}
		if o.method != "" {
			method, err := billing.ParsePaymentMethod(o.method)
			if err != nil {
				return nil, err
			}
			filter.Method = &method
		}
		switch len(o.statuses) {
		case 0:
		case 1:
			status := billing.PaymentStatus(strings.ToUpper(strings.TrimSpace(o.statuses[0])))
			if !status.IsValid() {
				return nil, shared.NewInvalidArgumentError("unknown payment status %q", o.statuses[0])
			}
			filter.Status = &status
		default:
			return nil, shared.NewInvalidArgumentError("payments accept a single --status")
		}
		if exports == nil {
			return nil, nil
		}
		return exports.ExportPayments(ctx, filter), nil

	default:
		var q appbilling.ReceivableQuery
		q.PatientID = patientID
		q.Search = o.search
		q.InvoiceDateFrom, q.InvoiceDateTo = from, to
		if cmd.Flags().Changed("days-overdue-min") {
			q.DaysOverdueMin = &o.daysMin
		}
		if cmd.Flags().Changed("days-overdue-max") {
			q.DaysOverdueMax = &o.daysMax
		}
		if o.priority != "" {
			p, err := billing.ParsePriority(o.priority)
			if err != nil {
				return nil, err
			}
			q.Priority = &p
		}
		if q.SortBy, err = billing.ParseReceivableSortField(o.sortBy); err != nil {
			return nil, err
		}
		q.SortDesc = !o.asc
		if exports == nil {
			return nil, nil
		}
		return exports.ExportReceivables(ctx, q), nil
	}
}

// write drains seq into the file at target, or stdout when target is empty,
// and returns the number of data rows. A failed export removes the partial file.
func (o *exportOptions) write(stdout io.Writer, target string, seq iter.Seq2[string, error]) (rows int, err error) {
	dst := stdout
	if target != "" {
		f, createErr := os.Create(target)
		if createErr != nil {
			return 0, createErr
		}
		defer func() {
			if closeErr := f.Close(); err == nil {
				err = closeErr
			}
			if err != nil {
				_ = os.Remove(target)
			}
		}()
		dst = f
	}

	w := bufio.NewWriter(dst)
	lines := 0
	// the first line is the header
	count := func() int { return max(lines-1, 0) }
	for line, lineErr := range seq {
		if lineErr != nil {
			return count(), lineErr
		}
		if _, werr := w.WriteString(line); werr != nil {
			return count(), werr
		}
		lines++
	}
	return count(), w.Flush()
}

func destination(target string) string {
	if target == "" {
		return "stdout"
	}
	return target
}

// upload sends the finished export at path to the archive and reports where
// it went on stderr.
func upload(cmd *cobra.Command, a archiver, kind appbilling.ExportKind, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	key := a.Key(string(kind), time.Now())
	if err := a.Put(ctx, key, f, info.Size()); err != nil {
		return err
	}
	link, expires, err := a.DownloadURL(ctx, key)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "archived %s\ndownload (until %s): %s\n",
		a.Location(key), expires.Format(time.RFC3339), link)
	return nil
}

func parseOptionalUUID(name, raw string) (*uuid.UUID, error) {
	if raw = strings.TrimSpace(raw); raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("--%s: %w", name, err)
	}
	return &id, nil
}

func parseOptionalTime(name, raw string) (*time.Time, error) {
	if raw = strings.TrimSpace(raw); raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("--%s: expected RFC3339 or YYYY-MM-DD, got %q", name, raw)
}
