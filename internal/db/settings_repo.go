package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"puppyday/internal/types"
)

// SettingsRepository provides data access for the notification_settings
// table. One row per notification type, created lazily with defaults on first
// reference and never deleted.
type SettingsRepository struct {
	db DBTX
}

// NewSettingsRepository creates a new SettingsRepository backed by the given
// database connection (pool or transaction).
func NewSettingsRepository(db DBTX) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// GetOrCreate returns the settings row for a notification type, inserting the
// defaults first when the row does not exist yet. The insert uses ON CONFLICT
// DO NOTHING so concurrent first references race safely.
func (r *SettingsRepository) GetOrCreate(ctx context.Context, t types.NotificationType) (*types.NotificationSettings, error) {
	defaults := types.DefaultSettings(t)

	_, err := r.db.Exec(ctx,
		`INSERT INTO notification_settings
		 (type, email_enabled, sms_enabled, schedule_enabled, schedule_cron,
		  max_retries, retry_delays_seconds, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		 ON CONFLICT (type) DO NOTHING`,
		string(t),
		defaults.EmailEnabled,
		defaults.SMSEnabled,
		defaults.ScheduleEnabled,
		nilIfEmpty(defaults.ScheduleCron),
		defaults.MaxRetries,
		defaults.RetryDelaysSeconds,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to create default notification settings", err)
	}

	return r.get(ctx, t)
}

// get reads a settings row. Callers go through GetOrCreate so the row exists.
func (r *SettingsRepository) get(ctx context.Context, t types.NotificationType) (*types.NotificationSettings, error) {
	var (
		s            types.NotificationSettings
		typ          string
		scheduleCron *string
		lastSentAt   *time.Time
	)

	row := r.db.QueryRow(ctx,
		`SELECT type, email_enabled, sms_enabled, schedule_enabled, schedule_cron,
		        max_retries, retry_delays_seconds, last_sent_at,
		        total_sent_count, total_failed_count, updated_at
		 FROM notification_settings
		 WHERE type = $1`,
		string(t),
	)
	err := row.Scan(
		&typ,
		&s.EmailEnabled,
		&s.SMSEnabled,
		&s.ScheduleEnabled,
		&scheduleCron,
		&s.MaxRetries,
		&s.RetryDelaysSeconds,
		&lastSentAt,
		&s.TotalSentCount,
		&s.TotalFailedCount,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get notification settings", err)
	}

	s.Type = types.NotificationType(typ)
	s.ScheduleCron = derefString(scheduleCron)
	s.LastSentAt = derefTime(lastSentAt)
	return &s, nil
}

// SettingsUpdate carries a partial update for a settings row. Nil fields are
// left unchanged. Validation (cron syntax, retry bounds) happens at the API
// boundary; the repository only persists.
type SettingsUpdate struct {
	EmailEnabled       *bool
	SMSEnabled         *bool
	ScheduleEnabled    *bool
	ScheduleCron       *string // empty string clears the cron (NULL)
	MaxRetries         *int
	RetryDelaysSeconds *[]int
}

// IsEmpty reports whether the update carries no fields at all.
func (u *SettingsUpdate) IsEmpty() bool {
	return u.EmailEnabled == nil &&
		u.SMSEnabled == nil &&
		u.ScheduleEnabled == nil &&
		u.ScheduleCron == nil &&
		u.MaxRetries == nil &&
		u.RetryDelaysSeconds == nil
}

// Update applies a partial update to a settings row and returns the updated
// row. The row must already exist (callers use GetOrCreate first).
func (r *SettingsRepository) Update(ctx context.Context, t types.NotificationType, update *SettingsUpdate) (*types.NotificationSettings, error) {
	var sets []string
	var args []any
	argIdx := 1

	appendSet := func(column string, val any) {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, argIdx))
		args = append(args, val)
		argIdx++
	}

	if update.EmailEnabled != nil {
		appendSet("email_enabled", *update.EmailEnabled)
	}
	if update.SMSEnabled != nil {
		appendSet("sms_enabled", *update.SMSEnabled)
	}
	if update.ScheduleEnabled != nil {
		appendSet("schedule_enabled", *update.ScheduleEnabled)
	}
	if update.ScheduleCron != nil {
		appendSet("schedule_cron", nilIfEmpty(*update.ScheduleCron))
	}
	if update.MaxRetries != nil {
		appendSet("max_retries", *update.MaxRetries)
	}
	if update.RetryDelaysSeconds != nil {
		appendSet("retry_delays_seconds", *update.RetryDelaysSeconds)
	}

	if len(sets) == 0 {
		return nil, types.NewAppError(types.ErrCodeValidationNoFields, "no valid fields provided for update", nil)
	}

	sets = append(sets, "updated_at = NOW()")

	query := fmt.Sprintf(
		`UPDATE notification_settings SET %s WHERE type = $%d`,
		strings.Join(sets, ", "),
		argIdx,
	)
	args = append(args, string(t))

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to update notification settings", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, types.NewAppError(types.ErrCodeNotFoundSettings, "notification settings not found", nil)
	}

	return r.get(ctx, t)
}

// IncrementSent bumps the sent counter and stamps last_sent_at. Counter
// updates are informational; callers log failures but never fail a dispatch
// over them.
func (r *SettingsRepository) IncrementSent(ctx context.Context, t types.NotificationType) error {
	_, err := r.db.Exec(ctx,
		`UPDATE notification_settings SET
			total_sent_count = total_sent_count + 1,
			last_sent_at = NOW()
		 WHERE type = $1`,
		string(t),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to increment sent counter", err)
	}
	return nil
}

// IncrementFailed bumps the failed counter. Called only when a failure is
// terminal (retries exhausted or none scheduled), so one log row contributes
// at most one count.
func (r *SettingsRepository) IncrementFailed(ctx context.Context, t types.NotificationType) error {
	_, err := r.db.Exec(ctx,
		`UPDATE notification_settings SET
			total_failed_count = total_failed_count + 1
		 WHERE type = $1`,
		string(t),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to increment failed counter", err)
	}
	return nil
}
