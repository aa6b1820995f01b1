// Package main is the entry point for the waitlist worker.
//
// The worker long-polls the slot-freed SQS queue. Each message names a
// service and a freed slot time; the worker offers the slot to the
// highest-priority waitlist entry for that service through the regular
// dispatch pipeline. Messages whose handler fails stay on the queue and are
// redelivered after the visibility timeout.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"

	"puppyday/internal/config"
	"puppyday/internal/db"
	"puppyday/internal/external"
	notifcore "puppyday/internal/notifications/core"
	"puppyday/internal/notifications/email"
	"puppyday/internal/notifications/sms"
	"puppyday/internal/queue"
	"puppyday/internal/scheduler"
	"puppyday/internal/types"
)

// pollErrorBackoff is the wait after a failed receive before polling again.
const pollErrorBackoff = 5 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if cfg.AWS.WaitlistQueueURL == "" {
		return fmt.Errorf("SQS_WAITLIST_QUEUE must be set for the waitlist worker")
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("waitlist worker starting",
		"environment", cfg.Environment,
		"queue_url", cfg.AWS.WaitlistQueueURL,
		"mock_mode", cfg.MockMode,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.Database.URL.Unmask())
	if err != nil {
		return fmt.Errorf("opening database pool: %w", err)
	}
	defer pool.Close()

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

	plLogger := &slogAdapter{logger: logger}

	var (
		emailProvider external.EmailProvider
		smsProvider   external.SMSProvider
		metrics       notifcore.Metrics
	)
	if cfg.MockMode {
		stubOpts := external.StubOptions{Latency: 50 * time.Millisecond}
		emailProvider = external.NewStubEmailProvider(stubOpts, logger)
		smsProvider = external.NewStubSMSProvider(stubOpts, logger)
		metrics = notifcore.NopMetrics{}
	} else {
		emailProvider = external.NewBreakerEmailProvider(external.NewSESClient(awsCfg, logger))
		smsProvider = external.NewBreakerSMSProvider(external.NewSNSClient(awsCfg, cfg.SMS.SenderID, logger))
		metrics = notifcore.NewCloudWatchMetrics(cloudwatch.NewFromConfig(awsCfg), plLogger)
	}

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

	logRepo := db.NewNotificationLogRepository(pool)
	settingsRepo := db.NewSettingsRepository(pool)
	bookingRepo := db.NewBookingRepository(pool)

	recorder := notifcore.NewRecorder(logRepo, settingsRepo, metrics, plLogger)
	dispatcher := notifcore.NewDispatcher(logRepo, recorder, channels, metrics, nil, plLogger)
	waitlist := scheduler.NewWaitlistService(bookingRepo, settingsRepo, dispatcher,
		cfg.Jobs.WaitlistOfferTTL, logger)

	consumer := queue.NewWaitlistConsumer(sqs.NewFromConfig(awsCfg), cfg.AWS, logger)

	handle := func(ctx context.Context, msg types.SlotFreedMessage) error {
		res, err := waitlist.OfferSlot(ctx, msg.ServiceName, msg.SlotAt, time.Now().UTC())
		if err != nil {
			return err
		}
		if res == nil {
			return nil
		}
		logger.InfoContext(ctx, "waitlist offer dispatched",
			"trace_id", msg.TraceID,
			"entry_id", res.EntryID,
			"customer_id", res.CustomerID,
			"attempted", res.Attempted,
			"delivered", res.Delivered,
		)
		return nil
	}

	for {
		if _, err := consumer.Poll(ctx, handle); err != nil {
			if ctx.Err() != nil {
				break
			}
			logger.Error("poll failed, backing off", "error", err)
			select {
			case <-time.After(pollErrorBackoff):
			case <-ctx.Done():
			}
		}
		if ctx.Err() != nil {
			break
		}
	}

	logger.Info("waitlist worker stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// slogAdapter wraps *slog.Logger to implement the types.Logger interface.
type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *slogAdapter) With(args ...any) types.Logger {
	return &slogAdapter{logger: a.logger.With(args...)}
}
