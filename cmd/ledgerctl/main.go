// Command ledgerctl runs ledger operations from the shell.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/clinic/ledger/internal/bootstrap"
	"github.com/clinic/ledger/internal/infrastructure/config"
	"github.com/clinic/ledger/internal/infrastructure/logger"
	"github.com/clinic/ledger/internal/infrastructure/storage"
	"go.uber.org/zap"
)

var version = "dev"

func main() {
	if err := newRootCmd(openLedger).Execute(); err != nil {
		os.Exit(1)
	}
}

// openLedger connects with the server configuration. Logs go to stderr so
// CSV written to stdout stays clean.
func openLedger(ctx context.Context, logLevel string) (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	if logLevel == "" {
		logLevel = cfg.Log.Level
	}
	log, err := logger.New(logger.Config{Level: logLevel, Format: "console", Output: "stderr"})
	if err != nil {
		return nil, err
	}

	ledger, err := bootstrap.Open(ctx, cfg, log)
	if err != nil {
		logger.Sync(log)
		return nil, err
	}
	log.Debug("ledger opened", zap.String("driver", cfg.Database.Driver))

	s := &session{
		exports: ledger.Exports,
		log:     log,
		close: func() error {
			defer logger.Sync(log)
			return ledger.Close()
		},
	}
	if cfg.Archive.Enabled() {
		archive, err := storage.NewS3Archive(ctx, &cfg.Archive, storage.WithLogger(log))
		if err != nil {
			_ = s.close()
			return nil, err
		}
		s.archive = archive
	}
	return s, nil
}
