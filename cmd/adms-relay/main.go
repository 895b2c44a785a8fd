// Command adms-relay forwards accepted fingerprint events from the ADMS access
// log to the configured webhooks, retrying failed deliveries from MySQL.
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
	"os/user"
	"runtime"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/sourcegraph/conc"

	"github.com/velmie/admsrelay"
	"github.com/velmie/admsrelay/checkpoint"
	"github.com/velmie/admsrelay/internal/config"
	"github.com/velmie/admsrelay/kafka"
	"github.com/velmie/admsrelay/mysql"
	"github.com/velmie/admsrelay/otelmetrics"
	"github.com/velmie/admsrelay/sqlsource"
	"github.com/velmie/admsrelay/telegram"
	"github.com/velmie/admsrelay/webhook"
)

const (
	exitUsage       = 2
	shutdownTimeout = 10 * time.Second
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "Path to YAML config (optional, env overrides apply)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitUsage)
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("adms-relay failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) (err error) {
	provider, err := otelmetrics.NewProvider(ctx, otelmetrics.Config{
		Endpoint:       cfg.Telemetry.OTLPEndpoint,
		Insecure:       cfg.Telemetry.Insecure,
		Interval:       cfg.Telemetry.Interval,
		ServiceName:    "adms-relay",
		ServiceVersion: version,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		err = errors.Join(err, provider.Shutdown(shutdownCtx))
	}()

	var metrics admsrelay.Metrics = admsrelay.NopMetrics{}
	if provider.Enabled() {
		recorder, err := otelmetrics.NewRecorder(provider.Meter())
		if err != nil {
			return err
		}
		defer recorder.Close()
		metrics = recorder
	}

	backend, closeBackend, err := openCheckpoint(cfg.Checkpoint)
	if err != nil {
		return err
	}
	defer closeBackend()

	source, closeSource, err := openSource(cfg.Source)
	if err != nil {
		return err
	}
	defer closeSource()

	queueDB, err := openMySQL(cfg.Queue.DSN)
	if err != nil {
		return fmt.Errorf("open queue: %w", err)
	}
	defer queueDB.Close()
	if cfg.Queue.EnsureSchema {
		if err := mysql.EnsureSchema(ctx, queueDB, cfg.Queue.Table); err != nil {
			return err
		}
	}
	store, err := mysql.NewStore(queueDB, mysql.WithTable(cfg.Queue.Table))
	if err != nil {
		return err
	}

	kafkaSender := kafka.NewSender()
	defer kafkaSender.Close()
	httpSender := webhook.NewSender(webhook.WithTimeout(cfg.HTTP.Timeout))
	router := admsrelay.NewRouter(map[string]admsrelay.Sender{
		"http":       httpSender,
		"https":      httpSender,
		kafka.Scheme: kafkaSender,
	})

	var notifier admsrelay.Notifier = admsrelay.NopNotifier{}
	if cfg.Telegram.Enabled() {
		notifier, err = telegram.New(cfg.Telegram.Token, cfg.Telegram.ChatID)
		if err != nil {
			return err
		}
	}

	signer, err := admsrelay.NewSigner(cfg.SecretKey)
	if err != nil {
		return err
	}

	opts := []admsrelay.Option{
		admsrelay.WithLogger(logger),
		admsrelay.WithMetrics(metrics),
		admsrelay.WithNotifier(notifier),
		admsrelay.WithDeliveryNotices(cfg.Debug),
		admsrelay.WithServiceName(cfg.ServiceName),
		admsrelay.WithMaxRetry(cfg.MaxRetry),
		admsrelay.WithBatchSize(cfg.Poll.BatchSize),
		admsrelay.WithRetryBatchSize(cfg.Retry.BatchSize),
		admsrelay.WithSendTimeout(cfg.HTTP.Timeout),
		admsrelay.WithFanoutWorkers(cfg.HTTP.FanoutWorkers),
		admsrelay.WithPollInterval(cfg.Poll.Interval),
		admsrelay.WithPollFaultDelay(cfg.Poll.FaultDelay),
		admsrelay.WithRetryInterval(cfg.Retry.Interval),
		admsrelay.WithRetryFaultDelay(cfg.Retry.FaultDelay),
		admsrelay.WithBacklogInterval(cfg.Retry.BacklogInterval),
	}
	if len(cfg.Retry.DeadOnStatus) > 0 {
		opts = append(opts, admsrelay.WithFailureClassifier(admsrelay.DeadOnStatus(cfg.Retry.DeadOnStatus...)))
	}

	dispatcher, err := admsrelay.NewDispatcher(cfg.WebhookURLs, signer, router, store, opts...)
	if err != nil {
		return err
	}
	cursor := admsrelay.NewCheckpoint(backend, opts...)
	poller := admsrelay.NewPoller(source, cursor, dispatcher, opts...)
	worker := admsrelay.NewRetryWorker(store, router, opts...)
	scheduler := admsrelay.NewScheduler(poller, worker, opts...)

	var maintainer *mysql.CleanupMaintainer
	if cfg.Queue.Cleanup.Retention > 0 {
		maintainer, err = mysql.NewCleanupMaintainer(queueDB, mysql.CleanupMaintainerConfig{
			Table:          cfg.Queue.Table,
			Retention:      cfg.Queue.Cleanup.Retention,
			CheckEvery:     cfg.Queue.Cleanup.Every,
			Limit:          cfg.Queue.Cleanup.Limit,
			IncludePending: cfg.Queue.Cleanup.IncludePending,
			Logger:         logger,
		})
		if err != nil {
			return err
		}
	}

	announce(ctx, cfg.ServiceName, notifier, logger)

	var wg conc.WaitGroup
	wg.Go(func() {
		_ = scheduler.Run(ctx)
	})
	if maintainer != nil {
		wg.Go(func() {
			if err := maintainer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("cleanup maintainer stopped", "err", err)
			}
		})
	}
	wg.Wait()
	logger.Info("adms-relay stopped")

	return nil
}

func openCheckpoint(cfg config.CheckpointConfig) (admsrelay.CheckpointBackend, func(), error) {
	switch cfg.Backend {
	case "pebble":
		store, err := checkpoint.OpenPebble(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	default:
		store, err := checkpoint.NewFileStore(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	}
}

func openSource(cfg config.SourceConfig) (*sqlsource.Source, func(), error) {
	dialect, err := sqlsource.ParseDialect(cfg.Dialect)
	if err != nil {
		return nil, nil, err
	}

	var db *sql.DB
	if cfg.Driver == "mysql" {
		db, err = openMySQL(cfg.DSN)
	} else {
		db, err = sql.Open(cfg.Driver, cfg.DSN)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open source: %w", err)
	}

	var opts []sqlsource.Option
	if cfg.Table != "" {
		opts = append(opts, sqlsource.WithTable(cfg.Table))
	}
	source, err := sqlsource.New(db, dialect, opts...)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	return source, func() { _ = db.Close() }, nil
}

func openMySQL(dsn string) (*sql.DB, error) {
	normalized, err := mysql.NormalizeDSN(dsn)
	if err != nil {
		return nil, err
	}

	return sql.Open("mysql", normalized)
}

// serviceInfo fields are in key order.
type serviceInfo struct {
	OS        string `json:"os"`
	Service   string `json:"service"`
	Timestamp string `json:"timestamp"`
	User      string `json:"user"`
}

// announce logs and notifies that the relay is up. A failed notice is logged only.
func announce(ctx context.Context, service string, notifier admsrelay.Notifier, logger *slog.Logger) {
	info := serviceInfo{
		Service:   service,
		OS:        runtime.GOOS,
		User:      "unknown",
		Timestamp: time.Now().Format(admsrelay.TimeLayout),
	}
	if current, err := user.Current(); err == nil {
		info.User = current.Username
	}

	body, err := json.MarshalWithOption(info, json.DisableHTMLEscape())
	if err != nil {
		logger.Warn("encode service info", "err", err)
		return
	}
	logger.Info("adms-relay started", "service", info.Service, "os", info.OS, "user", info.User)

	text := admsrelay.FormatNotice("SERVICE STARTED "+service, string(body))
	if err := notifier.Notify(ctx, text); err != nil {
		logger.Warn("startup notice failed", "err", err)
	}
}
