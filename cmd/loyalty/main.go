package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/LeventeLantos/loyalty-outreach/internal/cache"
	"github.com/LeventeLantos/loyalty-outreach/internal/client"
	"github.com/LeventeLantos/loyalty-outreach/internal/config"
	"github.com/LeventeLantos/loyalty-outreach/internal/repo"
	"github.com/LeventeLantos/loyalty-outreach/internal/service"
	"github.com/LeventeLantos/loyalty-outreach/internal/sheet"
	"github.com/LeventeLantos/loyalty-outreach/internal/templates"
)

func main() {
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		slog.Error("loyalty flow failed", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var dryRun bool

	root := &cobra.Command{
		Use:           "loyalty",
		Short:         "Advance the loyalty outreach pipeline by one stage",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := setup(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			summary, err := a.processor.Run(ctx, dryRun)
			a.log.Info("loyalty flow finished",
				"run_id", summary.RunID,
				"branch", summary.Branch,
				"processed", summary.Processed,
				"failed", summary.Failed,
				"skipped", summary.Skipped,
				"waiting", summary.Waiting,
				"write_errors", summary.WriteErrors,
			)
			return runOutcome(a.log, err)
		},
	}
	root.Flags().BoolVar(&dryRun, "dry-run", false, "Log what would be sent without sending or writing to the sheet")

	root.AddCommand(newServeCmd())
	return root
}

// runOutcome maps a run error to the process result. A run skipped because
// another one holds the lock is not a failure.
func runOutcome(log *slog.Logger, err error) error {
	if errors.Is(err, service.ErrRunInProgress) {
		log.Warn("another run is in progress, nothing to do")
		return nil
	}
	return err
}

type app struct {
	cfg       *config.Config
	log       *slog.Logger
	processor *service.Processor
	runs      repo.RunRepository

	closers []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Error("shutdown", "error", err)
		}
	}
}

func setup(ctx context.Context) (*app, error) {
	cfg, err := config.LoadAll()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	log := newLogger(cfg.Log.Format)
	slog.SetDefault(log)

	log.Info("loyalty outreach starting",
		"spreadsheet", cfg.Sheet.SpreadsheetID,
		"tab", cfg.Sheet.Tab,
		"batch", cfg.Job.BatchSize,
		"delay", cfg.Job.Delay,
		"location_id", cfg.Messaging.LocationID,
		"redis", cfg.Redis.Enabled,
		"postgres", cfg.Database.Enabled,
	)

	a := &app{cfg: cfg, log: log}

	sh, err := sheet.NewWithCredentials(ctx, cfg.Sheet.SpreadsheetID, cfg.Sheet.Tab, cfg.Sheet.Credentials)
	if err != nil {
		return nil, err
	}

	tmpl, err := templates.Load(cfg.Job.TemplatesFile)
	if err != nil {
		return nil, err
	}

	var notifier service.Notifier = client.NopNotifier{}
	if cfg.Notify.WebhookURL != "" {
		notifier = client.NewWebhookNotifier(cfg.Notify.WebhookURL, cfg.Messaging.Timeout)
	} else {
		log.Warn("NOTIFY_WEBHOOK_URL not set, run summaries will not be posted")
	}

	p := service.NewProcessor(
		sh,
		client.NewMessagingClient(cfg.Messaging.BaseURL, cfg.Messaging.AccessToken, cfg.Messaging.Timeout),
		notifier,
		tmpl,
		service.Options{
			BatchSize: cfg.Job.BatchSize,
			Delay:     cfg.Job.Delay,
			Location:  time.Local,
		},
	).
		WithLogger(log).
		WithLimiter(rate.NewLimiter(rate.Limit(cfg.Messaging.RatePerSec), 1))

	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			a.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		a.closers = append(a.closers, rdb.Close)

		scope := cfg.Sheet.SpreadsheetID + "/" + cfg.Sheet.Tab
		p.WithLedger(cache.NewRedisCache(rdb, cfg.Redis.TTL)).
			WithRunLock(cache.NewRedisLock(rdb, scope, cfg.Redis.LockTTL))
	}

	if cfg.Database.Enabled {
		db, err := openRunRepo(ctx, cfg.Database.PostgresURL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, db.Close)

		runs := repo.NewPostgresRunRepo(db)
		if err := runs.EnsureSchema(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("postgres schema: %w", err)
		}
		p.WithRecorder(runs)
		a.runs = runs
	}

	a.processor = p
	return a, nil
}

func openRunRepo(ctx context.Context, url string) (*sql.DB, error) {
	db, err := repo.OpenPostgres(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	return db, nil
}

func newLogger(format string) *slog.Logger {
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}
