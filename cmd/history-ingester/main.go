package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stellar/go/support/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/withObsrvr/stellar-history-ingester/internal/config"
	"github.com/withObsrvr/stellar-history-ingester/internal/health"
	"github.com/withObsrvr/stellar-history-ingester/internal/historydb"
	"github.com/withObsrvr/stellar-history-ingester/internal/ingest"
	"github.com/withObsrvr/stellar-history-ingester/internal/ledgersource"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	rebuild := flag.Uint("rebuild", 0, "re-import a single ledger sequence and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := newLogger(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log, uint32(*rebuild)); err != nil {
		log.Fatal("ingester failed", zap.Error(err))
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid log level %q", level)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

func run(cfg *config.Config, log *zap.Logger, rebuildSeq uint32) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sourcePool, err := pgxpool.New(ctx, cfg.Source.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "connecting to source database")
	}
	defer sourcePool.Close()

	historyPool, err := pgxpool.New(ctx, cfg.History.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "connecting to history database")
	}
	defer historyPool.Close()

	source := ledgersource.New(sourcePool)
	history := historydb.New(historyPool)
	if err := history.InitSchema(ctx); err != nil {
		return err
	}

	importer := ingest.NewImporter(source, history, cfg.Source.NetworkPassphrase, log)

	if rebuildSeq > 0 {
		ledger, err := importer.Import(ctx, rebuildSeq, true)
		if err != nil {
			return errors.Wrapf(err, "rebuilding ledger %d", rebuildSeq)
		}
		log.Info("ledger rebuilt",
			zap.Uint32("sequence", ledger.Sequence),
			zap.Int32("transactions", ledger.TransactionCount),
			zap.Int32("operations", ledger.OperationCount))
		return nil
	}

	hs := health.NewServer(cfg.Service.HealthPort)
	hs.Start()
	defer hs.Stop()

	log.Info("starting ingestion",
		zap.String("service", cfg.Service.Name),
		zap.Int("health_port", cfg.Service.HealthPort))

	pollInterval := time.Duration(cfg.Source.PollIntervalSeconds) * time.Second

	next, err := history.LatestSequence(ctx)
	if err != nil {
		return err
	}
	next++

	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down")
			return nil
		default:
		}

		ledger, err := importer.Import(ctx, next, false)
		switch {
		case err == nil:
			hs.RecordImport(ledger.Sequence, ledger.TransactionCount, ledger.OperationCount)
			next++
		case errors.Cause(err) == ingest.ErrLedgerNotFound:
			// Caught up; wait for the source to close another ledger.
			select {
			case <-ctx.Done():
				log.Info("shutting down")
				return nil
			case <-time.After(pollInterval):
			}
		case errors.Cause(err) == ingest.ErrConflict:
			// Another importer won the race for this sequence.
			log.Info("sequence already imported elsewhere", zap.Uint32("sequence", next))
			next++
		case ctx.Err() != nil:
			log.Info("shutting down")
			return nil
		default:
			hs.RecordError(err)
			return errors.Wrapf(err, "importing ledger %d", next)
		}
	}
}
