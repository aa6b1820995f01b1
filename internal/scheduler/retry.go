package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"puppyday/internal/notifications/core"
	"puppyday/internal/types"
)

type retryLogStore interface {
	// SQL: SELECT ... WHERE status = 'failed' AND next_retry_at IS NOT NULL AND next_retry_at <= $1 ORDER BY created_at LIMIT $2
	ListRetryable(ctx context.Context, now time.Time, limit int) ([]*types.NotificationLog, error)
	// SQL: UPDATE notification_logs SET status = 'pending' WHERE id = $1 AND status = 'failed'
	ClaimForRetry(ctx context.Context, logID string) (bool, error)
	// SQL: UPDATE notification_logs SET status = 'failed' WHERE id = $1 AND status = 'pending'
	ReleaseClaim(ctx context.Context, logID string) error
}

type retryLockStore interface {
	// SQL: INSERT INTO job_locks ... ON CONFLICT (job_name) DO UPDATE ... WHERE job_locks.expires_at < NOW()
	TryAcquire(ctx context.Context, job types.JobName, owner string, ttl time.Duration) (bool, error)
	// SQL: DELETE FROM job_locks WHERE job_name = $1 AND locked_by = $2
	Release(ctx context.Context, job types.JobName, owner string) error
}

type logRedeliverer interface {
	Redeliver(ctx context.Context, l *types.NotificationLog, schedule core.RetrySchedule) (core.Outcome, error)
}

// retryService re-drives failed deliveries whose backoff has elapsed. Runs
// are serialized through a database lock so overlapping cron triggers cannot
// double-send; within a run, each row is additionally claimed with a
// conditional status flip before redelivery.
type retryService struct {
	logs       retryLogStore
	locks      retryLockStore
	settings   settingsSource
	dispatcher logRedeliverer
	batchSize  int
	lockTTL    time.Duration
	logger     *slog.Logger
}

// NewRetryService creates the retry processor. batchSize bounds how many
// rows one run picks up; lockTTL bounds how long a crashed run can block the
// next one.
func NewRetryService(
	logs retryLogStore,
	locks retryLockStore,
	settings settingsSource,
	dispatcher logRedeliverer,
	batchSize int,
	lockTTL time.Duration,
	logger *slog.Logger,
) *retryService {
	if logger == nil {
		logger = slog.Default()
	}
	return &retryService{
		logs:       logs,
		locks:      locks,
		settings:   settings,
		dispatcher: dispatcher,
		batchSize:  batchSize,
		lockTTL:    lockTTL,
		logger:     logger,
	}
}

// Run executes one retry batch anchored at now. Returns
// ErrJobAlreadyRunning when another runner holds the lock.
func (s *retryService) Run(ctx context.Context, now time.Time) (RetryResult, error) {
	var res RetryResult

	owner := uuid.New().String()
	acquired, err := s.locks.TryAcquire(ctx, types.JobRetry, owner, s.lockTTL)
	if err != nil {
		return res, err
	}
	if !acquired {
		return res, ErrJobAlreadyRunning
	}
	defer func() {
		// Release runs even when the request context is gone; a stuck lock
		// would otherwise block retries until the TTL expires.
		if err := s.locks.Release(context.WithoutCancel(ctx), types.JobRetry, owner); err != nil {
			s.logger.ErrorContext(ctx, "failed to release retry lock", "owner", owner, "error", err)
		}
	}()

	start := time.Now()
	rows, err := s.logs.ListRetryable(ctx, now, s.batchSize)
	if err != nil {
		return res, err
	}

	schedules := make(map[types.NotificationType]core.RetrySchedule)
	for _, row := range rows {
		// Resolve the schedule before claiming so a settings failure cannot
		// strand an already claimed row.
		schedule, ok := schedules[row.Type]
		if !ok {
			settings, err := s.settings.GetOrCreate(ctx, row.Type)
			if err != nil {
				return res, err
			}
			schedule = core.ScheduleFromSettings(settings)
			schedules[row.Type] = schedule
		}

		claimed, err := s.logs.ClaimForRetry(ctx, row.ID)
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to claim log for retry", "log_id", row.ID, "error", err)
			res.recordError(row.ID, err)
			continue
		}
		if !claimed {
			// Lost the row to a concurrent writer; nothing to do.
			continue
		}

		res.Processed++
		outcome, err := s.dispatcher.Redeliver(ctx, row, schedule)
		if err != nil {
			s.logger.ErrorContext(ctx, "retry redelivery failed", "log_id", row.ID, "error", err)
			if relErr := s.logs.ReleaseClaim(ctx, row.ID); relErr != nil {
				s.logger.ErrorContext(ctx, "failed to release retry claim", "log_id", row.ID, "error", relErr)
			}
			res.Failed++
			res.recordError(row.ID, err)
			continue
		}
		if outcome.Status == types.LogStatusSent {
			res.Succeeded++
		} else {
			res.Failed++
			res.recordError(row.ID, outcome.Err)
		}
	}

	res.DurationMS = time.Since(start).Milliseconds()
	s.logger.InfoContext(ctx, "retry run complete",
		"processed", res.Processed,
		"succeeded", res.Succeeded,
		"failed", res.Failed,
		"duration_ms", res.DurationMS,
	)
	return res, nil
}
