package main

import (
	"context"
	"io"
	"iter"
	"time"

	appbilling "github.com/clinic/ledger/internal/application/billing"
	"github.com/clinic/ledger/internal/domain/billing"
	"github.com/clinic/ledger/internal/infrastructure/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// exporter is the part of the export service the CLI drives
type exporter interface {
	ExportInvoices(ctx context.Context, filter billing.InvoiceFilter) iter.Seq2[string, error]
	ExportPayments(ctx context.Context, filter billing.PaymentFilter) iter.Seq2[string, error]
	ExportReceivables(ctx context.Context, q appbilling.ReceivableQuery) iter.Seq2[string, error]
}

var _ exporter = (*appbilling.ExportService)(nil)

// archiver stores finished export files
type archiver interface {
	Key(kind string, at time.Time) string
	Location(key string) string
	Put(ctx context.Context, key string, body io.ReadSeeker, size int64) error
	DownloadURL(ctx context.Context, key string) (string, time.Time, error)
}

var _ archiver = (*storage.S3Archive)(nil)

// session is an open connection to the ledger. archive is nil unless
// archive.bucket is configured.
type session struct {
	exports exporter
	archive archiver
	log     *zap.Logger
	close   func() error
}

type openFunc func(ctx context.Context, logLevel string) (*session, error)

func newRootCmd(open openFunc) *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Clinic billing ledger command-line tool",
		Long: `ledgerctl works directly against the ledger database using the same
configuration as the server (config.toml, .env and LEDGER_* variables).`,
		Version:       version,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); defaults to the configured level")

	root.AddCommand(newExportCmd(func(ctx context.Context) (*session, error) {
		return open(ctx, logLevel)
	}))
	return root
}
