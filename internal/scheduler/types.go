// Package scheduler implements the notification jobs behind the cron
// endpoints (the reminder scan, the retention scan, and the retry processor)
// together with the event-driven flows that share their machinery (waitlist
// offers and booking confirmations).
//
// Jobs take their reference time as an explicit parameter so behavior around
// windows and cooldowns stays deterministic under test. All services
// continue past per-candidate failures: a bad row is counted and logged,
// never allowed to abort the batch.
package scheduler

import (
	"context"
	"errors"

	"puppyday/internal/notifications/core"
	"puppyday/internal/types"
)

// ErrJobAlreadyRunning is returned when a job's advisory lock is held by
// another runner. Callers report this as a skip, not a failure.
var ErrJobAlreadyRunning = errors.New("job already running")

// maxReportedErrors caps the error detail carried in a RetryResult. The
// total count is always exact; only the per-row messages are truncated.
const maxReportedErrors = 10

// JobResult summarizes one scan run. Counters are per candidate, not per
// channel: a candidate counts as sent when at least one channel delivered
// and none failed, as failed when any channel failed, and as skipped when no
// channel was attempted at all.
type JobResult struct {
	Processed int `json:"processed"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// tally folds one candidate's channel outcomes into the counters.
func (r *JobResult) tally(attempted, failed int) {
	r.Processed++
	switch {
	case failed > 0:
		r.Failed++
	case attempted > 0:
		r.Sent++
	default:
		r.Skipped++
	}
}

// RetryError is one failed redelivery, reported back to the cron caller.
type RetryError struct {
	LogID string `json:"log_id"`
	Error string `json:"error"`
}

// RetryResult summarizes one retry processor run.
type RetryResult struct {
	Processed  int          `json:"processed"`
	Succeeded  int          `json:"succeeded"`
	Failed     int          `json:"failed"`
	ErrorCount int          `json:"error_count"`
	Errors     []RetryError `json:"errors,omitempty"`
	DurationMS int64        `json:"duration_ms"`
}

func (r *RetryResult) recordError(logID string, err error) {
	r.ErrorCount++
	if len(r.Errors) < maxReportedErrors {
		msg := "unknown error"
		if err != nil {
			msg = err.Error()
		}
		r.Errors = append(r.Errors, RetryError{LogID: logID, Error: msg})
	}
}

// DispatchReport summarizes an event-driven send (waitlist offer, booking
// confirmation) across its channels.
type DispatchReport struct {
	CustomerID string         `json:"customer_id"`
	Attempted  int            `json:"attempted"`
	Delivered  int            `json:"delivered"`
	Outcomes   []core.Outcome `json:"-"`
}

// settingsSource resolves the per-type settings row, creating it with
// defaults on first reference.
type settingsSource interface {
	// SQL: INSERT INTO notification_settings ... ON CONFLICT (type) DO NOTHING; SELECT ...
	GetOrCreate(ctx context.Context, t types.NotificationType) (*types.NotificationSettings, error)
}

// candidateDispatcher runs one candidate through one channel, writing the
// log row and recording the outcome.
type candidateDispatcher interface {
	Dispatch(ctx context.Context, cand core.Candidate, channel types.Channel, schedule core.RetrySchedule) (core.Outcome, error)
}
