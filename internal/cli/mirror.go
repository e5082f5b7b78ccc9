package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"fintrack/internal/config"
	"fintrack/internal/events"
	applog "fintrack/internal/log"
	"fintrack/internal/storage"
	"fintrack/internal/worker"
)

const mirrorStatsInterval = 5 * time.Minute

func newMirrorCommand(a *app) *cobra.Command {
	var (
		dbPath   string
		backfill bool
	)

	cmd := &cobra.Command{
		Use:   "mirror",
		Short: "Copy recorded transactions from the event stream into a local SQLite replica",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadStoreConfig()
			if err != nil {
				return err
			}
			if cfg.AMQPURL == "" {
				return errors.New("AMQP_URL is required to mirror transactions")
			}
			if dbPath == "" {
				dbPath = cfg.SQLiteDBPath
			}
			// Mirroring into the primary ledger would record every event twice.
			if cfg.LedgerBackend == "sqlite" && samePath(cfg.SQLiteDBPath, dbPath) {
				return errors.New("mirror target is the primary ledger database, pass --db with a separate replica path")
			}
			return runMirror(commandContext(cmd), cfg, a.logger, dbPath, backfill)
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "replica database path (default SQLITE_DB_PATH)")
	cmd.Flags().BoolVar(&backfill, "backfill", false, "copy rows missing from the replica out of the configured ledger before consuming")
	return cmd
}

func runMirror(ctx context.Context, cfg *config.Config, logger *applog.Logger, dbPath string, backfill bool) error {
	log := logger.WithComponent(applog.ComponentEvents)

	replica, err := storage.NewSQLiteRepository(dbPath, logger.WithComponent(applog.ComponentStorage).Logger)
	if err != nil {
		return fmt.Errorf("open replica: %w", err)
	}
	defer replica.Close()

	mirror := worker.NewMirror(replica, log.Logger)

	if backfill {
		if err := backfillReplica(ctx, cfg, logger, mirror); err != nil {
			return err
		}
	}

	consumer, err := events.NewConsumer(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPRoutingKey, log.Logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := GracefulShutdown(ctx, logger, shutdownTimeout, func(context.Context) error {
		cancel()
		return consumer.Close()
	})

	go func() {
		ticker := time.NewTicker(mirrorStatsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logMirrorStats(ctx, log, mirror, consumer)
			}
		}
	}()

	log.InfoContext(ctx, "Mirroring transactions",
		applog.FieldOperation, applog.OpStartup,
		"replica", dbPath,
		"exchange", cfg.AMQPExchange)

	err = consumer.Consume(ctx, mirror.HandleTransactionRecorded)
	cancel()
	<-done
	logMirrorStats(context.Background(), log, mirror, consumer)

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func backfillReplica(ctx context.Context, cfg *config.Config, logger *applog.Logger, mirror *worker.Mirror) error {
	ctx, cancel := context.WithTimeout(ctx, cfg.StoreTimeout)
	defer cancel()

	source, cleanup, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = runCleanup(cleanup) }()

	if _, err := mirror.Backfill(ctx, source); err != nil {
		return fmt.Errorf("backfill: %w", err)
	}
	return nil
}

func logMirrorStats(ctx context.Context, log *applog.Logger, m *worker.Mirror, c *events.Consumer) {
	ms, cs := m.Stats(), c.Stats()
	log.InfoContext(ctx, "Mirror stats",
		"mirrored", ms.Mirrored,
		"skipped", ms.Skipped,
		"acked", cs.Acked,
		"requeued", cs.Requeued,
		"dropped", cs.Dropped)
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}
