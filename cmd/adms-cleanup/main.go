// Command adms-cleanup purges dead-lettered delivery attempts from the MySQL
// retry queue.
//
// It wraps mysql.CleanupMaintainer for use in cron jobs when the relay itself
// should not run DELETE statements.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/velmie/admsrelay"
	"github.com/velmie/admsrelay/mysql"
)

const exitUsage = 2

type options struct {
	dsn            string
	table          string
	retention      time.Duration
	checkEvery     time.Duration
	limit          int
	lockName       string
	includePending bool
	once           bool
	verbose        bool
}

func main() {
	var opts options
	flag.StringVar(&opts.dsn, "dsn", "", "MySQL DSN, e.g. user:pass@tcp(host:3306)/db")
	flag.StringVar(&opts.table, "table", "logs", "Queue table name")
	flag.DurationVar(&opts.retention, "retention", 0, "Delete dead attempts last updated before now-retention")
	flag.DurationVar(&opts.checkEvery, "check-every", time.Hour, "How often to run cleanup")
	flag.IntVar(&opts.limit, "limit", 0, "Max rows deleted per run (0 uses default)")
	flag.StringVar(&opts.lockName, "lock-name", "", "Advisory lock name (optional)")
	flag.BoolVar(&opts.includePending, "include-pending", false, "Delete pending attempts created before the cutoff as well")
	flag.BoolVar(&opts.once, "once", false, "Run once and exit")
	flag.BoolVar(&opts.verbose, "verbose", false, "Enable debug logging")
	flag.Parse()

	if opts.dsn == "" {
		fmt.Fprintln(os.Stderr, "dsn is required")
		flag.Usage()
		os.Exit(exitUsage)
	}

	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, logger); err != nil {
		logger.Error("adms-cleanup failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, logger *slog.Logger) error {
	dsn, err := mysql.NormalizeDSN(opts.dsn)
	if err != nil {
		return err
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	maintainer, err := mysql.NewCleanupMaintainer(db, mysql.CleanupMaintainerConfig{
		Table:          opts.table,
		Retention:      opts.retention,
		CheckEvery:     opts.checkEvery,
		Limit:          opts.limit,
		IncludePending: opts.includePending,
		LockName:       opts.lockName,
		Clock:          admsrelay.SystemClock{},
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("init maintainer: %w", err)
	}

	if opts.once {
		result, err := maintainer.Ensure(ctx)
		if err != nil {
			return fmt.Errorf("cleanup: %w", err)
		}
		logger.Info("cleanup done", "dead", result.Dead, "pending", result.Pending)

		return nil
	}

	if err := maintainer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run maintainer: %w", err)
	}

	return nil
}
