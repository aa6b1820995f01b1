// Package main is the entry point for The Puppy Day notification API.
//
// It loads configuration, opens the PostgreSQL pool, constructs the delivery
// pipeline (channels, dispatcher, recorder) and the scheduled jobs, registers
// the HTTP handlers on the core chassis, and serves until SIGINT/SIGTERM.
//
// In mock mode (MOCK_MODE=true) all deliveries run through in-process stub
// providers and no AWS credentials are needed.
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
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"puppyday/internal/api/handlers"
	"puppyday/internal/config"
	"puppyday/internal/core"
	"puppyday/internal/db"
	"puppyday/internal/external"
	notifcore "puppyday/internal/notifications/core"
	"puppyday/internal/notifications/email"
	"puppyday/internal/notifications/sms"
	"puppyday/internal/scheduler"
	"puppyday/internal/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("notification service starting",
		"environment", cfg.Environment,
		"port", cfg.Server.Port,
		"mock_mode", cfg.MockMode,
	)

	ctx := context.Background()

	pool, err := newPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database pool: %w", err)
	}

	// Repositories. The pool satisfies db.DBTX directly.
	logRepo := db.NewNotificationLogRepository(pool)
	settingsRepo := db.NewSettingsRepository(pool)
	bookingRepo := db.NewBookingRepository(pool)
	lockRepo := db.NewJobLockRepository(pool)

	plLogger := &slogAdapter{logger: logger}

	// Transport providers and metrics. Mock mode swaps AWS for in-process
	// stubs so the whole pipeline runs without credentials.
	var (
		emailProvider external.EmailProvider
		smsProvider   external.SMSProvider
		pipelineMet   notifcore.Metrics
		requestMet    core.MetricsCollector
	)
	if cfg.MockMode {
		stubOpts := external.StubOptions{Latency: 50 * time.Millisecond}
		emailProvider = external.NewStubEmailProvider(stubOpts, logger)
		smsProvider = external.NewStubSMSProvider(stubOpts, logger)
		pipelineMet = notifcore.NopMetrics{}
	} else {
		awsOpts := []func(*awsconfig.LoadOptions) error{
			awsconfig.WithRegion(cfg.AWS.Region),
		}
		if cfg.AWS.EndpointURL != "" {
			awsOpts = append(awsOpts, awsconfig.WithBaseEndpoint(cfg.AWS.EndpointURL))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsOpts...)
		if err != nil {
			return fmt.Errorf("loading AWS config: %w", err)
		}

		emailProvider = external.NewBreakerEmailProvider(external.NewSESClient(awsCfg, logger))
		smsProvider = external.NewBreakerSMSProvider(external.NewSNSClient(awsCfg, cfg.SMS.SenderID, logger))

		cw := notifcore.NewCloudWatchMetrics(cloudwatch.NewFromConfig(awsCfg), plLogger)
		pipelineMet = cw
		requestMet = cw
	}

	// Delivery channels, honoring the per-channel kill switches.
	renderer, err := email.NewRenderer()
	if err != nil {
		return fmt.Errorf("parsing email templates: %w", err)
	}
	var channels []notifcore.Channel
	if cfg.Feature.EnableEmail {
		channels = append(channels, email.NewChannel(email.ChannelConfig{
			Provider:        emailProvider,
			Renderer:        renderer,
			FromAddress:     cfg.Email.FromAddress,
			FromName:        cfg.Email.FromName,
			TrackingBaseURL: cfg.Server.APIExternalURL,
		}))
	}
	if cfg.Feature.EnableSMS {
		channels = append(channels, sms.NewChannel(smsProvider))
	}
	if len(channels) == 0 {
		logger.Warn("all delivery channels disabled; every dispatch will fail")
	}

	recorder := notifcore.NewRecorder(logRepo, settingsRepo, pipelineMet, plLogger)
	dispatcher := notifcore.NewDispatcher(logRepo, recorder, channels, pipelineMet, nil, plLogger)

	// Scheduled jobs.
	reminders := scheduler.NewReminderService(bookingRepo, logRepo, settingsRepo, dispatcher,
		scheduler.ReminderWindow{
			Min: cfg.Jobs.ReminderLookaheadMin,
			Max: cfg.Jobs.ReminderLookaheadMax,
		}, logger)
	retention := scheduler.NewRetentionService(bookingRepo, logRepo, settingsRepo, dispatcher,
		scheduler.RetentionPolicy{
			DefaultFrequencyWeeks: cfg.Jobs.RetentionDefaultWeeks,
			Cooldown:              cfg.Jobs.RetentionCooldown,
		}, logger)
	retry := scheduler.NewRetryService(logRepo, lockRepo, settingsRepo, dispatcher,
		cfg.Jobs.RetryBatchSize, cfg.Jobs.LockTTL, logger)
	confirmations := scheduler.NewConfirmationService(bookingRepo, settingsRepo, dispatcher, logger)

	// HTTP server.
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.Metrics = requestMet
	srv.HealthProbes = append(srv.HealthProbes, core.ProbeFunc{
		ProbeName: "database",
		Fn:        pool.Ping,
	})
	srv.RegisterCloser(func(context.Context) error {
		pool.Close()
		return nil
	})

	settingsHandler := handlers.NewSettingsHandler(settingsRepo, logger)
	logsHandler := handlers.NewLogsHandler(logRepo, settingsRepo, dispatcher, logger)
	notifHandler := handlers.NewNotificationsHandler(dispatcher, confirmations, settingsRepo, nil, logger)
	cronHandler := handlers.NewCronHandler(reminders, retention, retry, nil, logger)

	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		func(r chi.Router) { settingsHandler.RegisterRoutes(r) },
		func(r chi.Router) { logsHandler.RegisterRoutes(r) },
		func(r chi.Router) { notifHandler.RegisterRoutes(r) },
	)
	srv.CronRouteRegistrars = append(srv.CronRouteRegistrars,
		func(r chi.Router) { cronHandler.RegisterRoutes(r) },
	)

	srv.MountRoutes()

	return serveHTTP(srv, cfg, logger)
}

// newPool opens a pgx pool with the configured tuning parameters.
func newPool(ctx context.Context, dbCfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(dbCfg.URL.Unmask())
	if err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}
	poolCfg.MaxConns = int32(dbCfg.MaxConns)
	poolCfg.MinConns = int32(dbCfg.MinConns)
	poolCfg.MaxConnLifetime = dbCfg.MaxConnLifetime
	poolCfg.HealthCheckPeriod = dbCfg.HealthCheckPeriod
	poolCfg.ConnConfig.ConnectTimeout = dbCfg.AcquireTimeout

	return pgxpool.NewWithConfig(ctx, poolCfg)
}

// serveHTTP runs the HTTP server with graceful shutdown on SIGINT/SIGTERM.
func serveHTTP(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.Server.RequestTimeout + 5*time.Second,
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

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server resource shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
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

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler)
}

// slogAdapter wraps *slog.Logger to implement the types.Logger interface.
// slog.Logger satisfies Info, Error, and Warn directly, but With returns
// *slog.Logger rather than types.Logger, so an adapter is necessary.
type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *slogAdapter) With(args ...any) types.Logger {
	return &slogAdapter{logger: a.logger.With(args...)}
}
