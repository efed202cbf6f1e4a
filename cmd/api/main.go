// Package main is the entry point for the DuePoint API server.
//
// It loads configuration, connects the database pool, wires the per-tenant
// actor runtime and reminder scheduler, builds the HTTP server with the core
// chassis (middleware, routing, health checks), and starts listening.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"

	"duepoint/internal/actor"
	"duepoint/internal/api/handlers"
	"duepoint/internal/config"
	"duepoint/internal/core"
	"duepoint/internal/db"
	"duepoint/internal/email"
	"duepoint/internal/external"
	"duepoint/internal/scheduler"
	"duepoint/internal/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("duepoint API starting",
		"environment", cfg.Environment,
		"port", cfg.Server.Port,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting database: %w", err)
	}
	defer pool.Close()

	// Repositories.
	stateRepo := db.NewStateRepository(pool)
	invoiceRepo := db.NewInvoiceRepository(pool)
	eventRepo := db.NewEventRepository(pool)
	tokenRepo := db.NewShareTokenRepository(pool)

	// Email rendering and delivery.
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

	metrics, err := newMetrics(ctx, cfg.Metrics, logger)
	if err != nil {
		return fmt.Errorf("initializing metrics: %w", err)
	}

	// Actor runtime and scheduler. The runtime is the scheduler's wakeup
	// programmer and the scheduler is the runtime's processor, so the
	// processor is bound after construction.
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
			Metrics:  metrics,
			Logger:   logger,
		},
	)
	runtime.BindProcessor(sched)
	runtime.Start()
	defer runtime.Stop()

	// HTTP server.
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.HealthProbes = append(srv.HealthProbes, db.Probe{Pool: pool})

	reminderHandler := handlers.NewReminderHandler(sched, runtime, srv.Validator, logger)
	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars, reminderHandler.RegisterRoutes)

	srv.MountRoutes()

	return runHTTPServer(srv, cfg, logger)
}

// newMetrics builds the scheduler metrics emitter, or a no-op when disabled.
func newMetrics(ctx context.Context, cfg config.MetricsConfig, logger *slog.Logger) (scheduler.Metrics, error) {
	if !cfg.Enabled {
		return scheduler.NoopMetrics{}, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return scheduler.NewCloudWatchMetrics(cloudwatch.NewFromConfig(awsCfg), cfg.Namespace, logger), nil
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

// runHTTPServer starts the server in standard HTTP mode with graceful shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server cleanup failed: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
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
