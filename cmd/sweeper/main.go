// Package main is the entry point for the DuePoint catch-up sweeper.
//
// The sweeper is the backstop against lost wakeups: on a cron schedule it
// enumerates tenants with outstanding reminder-enabled invoices and runs each
// tenant's processing pass directly. Processing is idempotent, so overlapping
// an API instance's own timer wakeups is harmless.
//
// With -once the sweeper runs a single pass and exits, which suits external
// schedulers (Kubernetes CronJob, systemd timers). Without it, the process
// stays resident and runs on the configured cron schedule.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"duepoint/internal/actor"
	"duepoint/internal/config"
	"duepoint/internal/db"
	"duepoint/internal/email"
	"duepoint/internal/external"
	"duepoint/internal/scheduler"
	"duepoint/internal/types"
)

func main() {
	once := flag.Bool("once", false, "run a single sweep pass and exit")
	flag.Parse()

	if err := run(*once); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(once bool) error {
	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("duepoint sweeper starting",
		"environment", cfg.Environment,
		"schedule", cfg.Sweep.Schedule,
		"concurrency", cfg.Sweep.Concurrency,
		"once", once,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting database: %w", err)
	}
	defer pool.Close()

	stateRepo := db.NewStateRepository(pool)
	invoiceRepo := db.NewInvoiceRepository(pool)
	eventRepo := db.NewEventRepository(pool)
	tokenRepo := db.NewShareTokenRepository(pool)

	renderer, err := email.NewRenderer(email.RendererConfig{
		FromAddr: cfg.Email.FromAddress,
		FromName: cfg.Email.FromName,
	})
	if err != nil {
		return fmt.Errorf("initializing email renderer: %w", err)
	}

	var provider types.EmailProvider
	if cfg.Email.Enabled {
		provider = external.NewSendGridClient(external.SendGridClientConfig{
			APIKey:  cfg.Email.SendGridAPIKey,
			Timeout: cfg.Email.Timeout,
			Logger:  logger,
		})
	} else {
		logger.Warn("email delivery disabled; reminders will be logged, not sent")
		provider = logOnlyEmailProvider{logger: logger}
	}

	runtime := actor.NewRuntime(actor.Config{
		IdleEviction: cfg.Reminder.ActorIdleEviction,
	}, nil, logger)

	sched := scheduler.New(
		scheduler.Config{
			BeforeDueDays: cfg.Reminder.BeforeDueDays,
			AfterDueDays:  cfg.Reminder.AfterDueDays,
			ShareBaseURL:  cfg.Server.ShareBaseURL,
		},
		scheduler.Deps{
			States:   stateRepo,
			Invoices: invoiceRepo,
			Events:   eventRepo,
			Tokens:   tokenRepo,
			Renderer: renderer,
			Emails:   provider,
			Wakeups:  runtime,
			Logger:   logger,
		},
	)
	runtime.BindProcessor(sched)

	sweeper := scheduler.NewSweeper(invoiceRepo, runtime, cfg.Sweep.Concurrency, logger)

	if once {
		_, err := sweeper.RunOnce(context.Background())
		return err
	}

	return runCron(sweeper, cfg.Sweep.Schedule, logger)
}

// runCron runs the sweeper on its cron schedule until a termination signal.
func runCron(sweeper *scheduler.Sweeper, schedule string, logger *slog.Logger) error {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		if _, err := sweeper.RunOnce(context.Background()); err != nil {
			logger.Error("sweep pass failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}

	c.Start()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	sig := <-shutdown
	logger.Info("shutdown signal received", "signal", sig.String())

	// Let an in-flight pass finish before exiting.
	<-c.Stop().Done()
	logger.Info("shutdown complete")
	return nil
}

// logOnlyEmailProvider satisfies the provider contract without sending
// anything. Used in environments where delivery is feature-flagged off.
type logOnlyEmailProvider struct {
	logger *slog.Logger
}

func (p logOnlyEmailProvider) Send(_ context.Context, input types.SendInput) (string, error) {
	p.logger.Info("email suppressed by feature flag",
		"to", input.To.Address,
		"subject", input.Subject,
		"reference_id", input.ReferenceID,
	)
	return "suppressed", nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: false,
	})
	return slog.New(handler)
}
