package scheduler

import (
	"context"
	"log/slog"
	"time"

	"puppyday/internal/notifications/core"
	"puppyday/internal/types"
)

// RetentionPolicy tunes the retention scan. DefaultFrequencyWeeks applies to
// pets whose breed carries no cadence; Cooldown suppresses repeat nudges to
// the same customer.
type RetentionPolicy struct {
	DefaultFrequencyWeeks int
	Cooldown              time.Duration
}

type retentionBookingStore interface {
	// SQL: SELECT pets JOIN customers JOIN breeds JOIN LATERAL last completed appointment
	ListRetentionCandidates(ctx context.Context, defaultFrequencyWeeks int) ([]*types.RetentionCandidateRow, error)
}

type retentionLogStore interface {
	// SQL: SELECT EXISTS(... WHERE pet_id = $1 AND type = $2 AND created_at >= $3 AND is_test = FALSE)
	WasPetNotifiedSince(ctx context.Context, petID string, t types.NotificationType, since time.Time) (bool, error)
}

// retentionService finds pets overdue for grooming and nudges their owners,
// at most once per pet per cooldown period.
type retentionService struct {
	bookings   retentionBookingStore
	logs       retentionLogStore
	settings   settingsSource
	dispatcher candidateDispatcher
	policy     RetentionPolicy
	logger     *slog.Logger
}

// NewRetentionService creates the retention reminder job.
func NewRetentionService(
	bookings retentionBookingStore,
	logs retentionLogStore,
	settings settingsSource,
	dispatcher candidateDispatcher,
	policy RetentionPolicy,
	logger *slog.Logger,
) *retentionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &retentionService{
		bookings:   bookings,
		logs:       logs,
		settings:   settings,
		dispatcher: dispatcher,
		policy:     policy,
		logger:     logger,
	}
}

// Run executes one retention scan anchored at now. Pets that are simply not
// yet due are passed over silently; they are not processed, skipped, or
// failed.
func (s *retentionService) Run(ctx context.Context, now time.Time) (JobResult, error) {
	var res JobResult

	settings, err := s.settings.GetOrCreate(ctx, types.NotificationRetentionReminder)
	if err != nil {
		return res, err
	}
	if !settings.ScheduleEnabled {
		s.logger.InfoContext(ctx, "retention schedule disabled, skipping run")
		return res, nil
	}

	rows, err := s.bookings.ListRetentionCandidates(ctx, s.policy.DefaultFrequencyWeeks)
	if err != nil {
		return res, err
	}

	schedule := core.ScheduleFromSettings(settings)
	for _, row := range rows {
		s.evaluate(ctx, row, now, settings, schedule, &res)
	}

	s.logger.InfoContext(ctx, "retention scan complete",
		"candidates", len(rows),
		"processed", res.Processed,
		"sent", res.Sent,
		"failed", res.Failed,
		"skipped", res.Skipped,
	)
	return res, nil
}

func (s *retentionService) evaluate(
	ctx context.Context,
	row *types.RetentionCandidateRow,
	now time.Time,
	settings *types.NotificationSettings,
	schedule core.RetrySchedule,
	res *JobResult,
) {
	if row.LastCompletedAt.IsZero() {
		s.skip(ctx, row, core.SkipNeverGroomed)
		res.tally(0, 0)
		return
	}

	dueAt := row.LastCompletedAt.Add(time.Duration(row.GroomingFrequencyWeeks) * 7 * 24 * time.Hour)
	if dueAt.After(now) {
		return
	}

	if row.Owner == nil {
		s.skip(ctx, row, core.SkipNoOwner)
		res.tally(0, 0)
		return
	}
	if row.Owner.MarketingOptOut {
		s.skip(ctx, row, core.SkipOptedOut)
		res.tally(0, 0)
		return
	}

	notified, err := s.logs.WasPetNotifiedSince(ctx, row.Pet.ID, types.NotificationRetentionReminder, now.Add(-s.policy.Cooldown))
	if err != nil {
		s.logger.ErrorContext(ctx, "retention cooldown check failed",
			"pet_id", row.Pet.ID, "customer_id", row.Owner.ID, "error", err)
		res.tally(1, 1)
		return
	}
	if notified {
		s.skip(ctx, row, core.SkipRecentlyNotified)
		res.tally(0, 0)
		return
	}

	weeksSince := int(now.Sub(row.LastCompletedAt) / (7 * 24 * time.Hour))
	cand := core.Candidate{
		Type:       types.NotificationRetentionReminder,
		CustomerID: row.Owner.ID,
		PetID:      row.Pet.ID,
		Email:      row.Owner.Email,
		Phone:      row.Owner.Phone,
		Data: types.RetentionData{
			CustomerName:     row.Owner.FullName(),
			PetName:          row.Pet.Name,
			LastGroomedAt:    row.LastCompletedAt,
			WeeksSinceGroom:  weeksSince,
			RecommendedWeeks: row.GroomingFrequencyWeeks,
		},
	}

	attempted, failed := 0, 0
	for _, cd := range core.EvaluateChannels(settings, row.Owner) {
		if !cd.Decision.Eligible {
			s.logger.DebugContext(ctx, "retention channel skipped",
				"pet_id", row.Pet.ID, "channel", cd.Channel, "reason", cd.Decision.Skip)
			continue
		}

		attempted++
		outcome, err := s.dispatcher.Dispatch(ctx, cand, cd.Channel, schedule)
		if err != nil {
			s.logger.ErrorContext(ctx, "retention dispatch failed",
				"pet_id", row.Pet.ID, "channel", cd.Channel, "error", err)
			failed++
			continue
		}
		if outcome.Status == types.LogStatusFailed {
			failed++
		}
	}

	res.tally(attempted, failed)
}

func (s *retentionService) skip(ctx context.Context, row *types.RetentionCandidateRow, reason core.SkipReason) {
	s.logger.DebugContext(ctx, "retention candidate skipped",
		"pet_id", row.Pet.ID, "reason", reason)
}
