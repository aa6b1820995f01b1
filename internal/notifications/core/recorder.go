package core

import (
	"context"
	"time"

	"puppyday/internal/types"
)

// LogStore is the subset of the notification log repository the recorder
// needs.
type LogStore interface {
	InsertPending(ctx context.Context, l *types.NotificationLog) error
	MarkSent(ctx context.Context, logID string, providerMsgID string) error
	MarkFailed(ctx context.Context, logID string, reason string, nextRetryAt time.Time) error
}

// CounterStore is the subset of the settings repository the recorder needs.
type CounterStore interface {
	IncrementSent(ctx context.Context, t types.NotificationType) error
	IncrementFailed(ctx context.Context, t types.NotificationType) error
}

// Recorder finalizes log rows and maintains the per-type rolling counters.
//
// The log row is the hard requirement: a MarkSent/MarkFailed error is
// returned to the caller. Counter updates are informational; their failures
// are logged and swallowed so a counter hiccup never fails a dispatch that
// already reached the customer.
type Recorder struct {
	logs     LogStore
	counters CounterStore
	metrics  Metrics
	logger   types.Logger
}

// NewRecorder creates a Recorder.
func NewRecorder(logs LogStore, counters CounterStore, metrics Metrics, logger types.Logger) *Recorder {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &Recorder{
		logs:     logs,
		counters: counters,
		metrics:  metrics,
		logger:   logger,
	}
}

// RecordSent finalizes a successful transport call.
func (r *Recorder) RecordSent(ctx context.Context, l *types.NotificationLog, providerMsgID string) error {
	if err := r.logs.MarkSent(ctx, l.ID, providerMsgID); err != nil {
		return err
	}
	l.Status = types.LogStatusSent
	l.ProviderMsgID = providerMsgID
	l.AttemptCount++

	r.metrics.RecordDelivery(ctx, l.Channel, MetricSuccess)

	// Admin test sends do not move the production counters.
	if l.IsTest {
		return nil
	}
	if err := r.counters.IncrementSent(ctx, l.Type); err != nil {
		r.logger.Error("failed to increment sent counter",
			"error", err.Error(),
			"log_id", l.ID,
			"type", string(l.Type),
		)
	}
	return nil
}

// RecordFailed finalizes a failed transport call. The next retry time is
// computed from the schedule; when retries are exhausted the failure is
// terminal and the failed counter fires (exactly once per row, since
// subsequent retries of a terminal row never happen).
func (r *Recorder) RecordFailed(ctx context.Context, l *types.NotificationLog, schedule RetrySchedule, reason string, now time.Time) error {
	attemptsDone := l.AttemptCount + 1
	nextRetryAt, retryable := schedule.NextRetryAt(now, attemptsDone)

	if err := r.logs.MarkFailed(ctx, l.ID, reason, nextRetryAt); err != nil {
		return err
	}
	l.Status = types.LogStatusFailed
	l.ErrorMessage = reason
	l.AttemptCount = attemptsDone
	l.NextRetryAt = nextRetryAt

	r.metrics.RecordDelivery(ctx, l.Channel, MetricFailed)

	if !retryable {
		r.metrics.RecordExhausted(ctx, l.Type)
		if l.IsTest {
			return nil
		}
		if err := r.counters.IncrementFailed(ctx, l.Type); err != nil {
			r.logger.Error("failed to increment failed counter",
				"error", err.Error(),
				"log_id", l.ID,
				"type", string(l.Type),
			)
		}
	}
	return nil
}
