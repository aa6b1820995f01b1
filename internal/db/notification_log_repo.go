package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"puppyday/internal/types"
)

// logColumns is the canonical column list for notification_logs selects.
// Keep in sync with scanLogRow.
const logColumns = `id, type, channel, recipient, customer_id, appointment_id, pet_id,
	 status, subject, content, template_data, error_message, provider_message_id,
	 tracking_id, attempt_count, next_retry_at, is_test,
	 created_at, sent_at, delivered_at, clicked_at`

// NotificationLogRepository provides data access for the notification_logs
// table. The table is the write-ahead journal of the pipeline: a 'pending' row
// is reserved before every transport call and finalized to 'sent' or 'failed'
// afterwards, so a crash mid-send leaves an inspectable pending row rather
// than a silent gap.
type NotificationLogRepository struct {
	db DBTX
}

// NewNotificationLogRepository creates a new NotificationLogRepository backed
// by the given database connection (pool or transaction).
func NewNotificationLogRepository(db DBTX) *NotificationLogRepository {
	return &NotificationLogRepository{db: db}
}

// InsertPending writes the write-ahead row for a dispatch. The caller must set
// the ID (prefixed UUID, e.g. "nlog_...") and the identity fields; status is
// forced to 'pending' and attempt_count to 0 regardless of the struct values.
func (r *NotificationLogRepository) InsertPending(ctx context.Context, l *types.NotificationLog) error {
	templateJSON, err := types.MarshalTemplateData(l.TemplateData)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode template data", err)
	}

	row := r.db.QueryRow(ctx,
		`INSERT INTO notification_logs
		 (id, type, channel, recipient, customer_id, appointment_id, pet_id,
		  status, subject, content, template_data, tracking_id, is_test,
		  attempt_count, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending', $8, $9, $10, $11, $12, 0, NOW())
		 RETURNING created_at`,
		l.ID,
		string(l.Type),
		string(l.Channel),
		l.Recipient,
		l.CustomerID,
		nilIfEmpty(l.AppointmentID),
		nilIfEmpty(l.PetID),
		nilIfEmpty(l.Subject),
		l.Content,
		templateJSON,
		nilIfEmpty(l.TrackingID),
		l.IsTest,
	)
	if err := row.Scan(&l.CreatedAt); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to insert pending notification log", err)
	}
	l.Status = types.LogStatusPending
	l.AttemptCount = 0
	return nil
}

// MarkSent finalizes a row after a successful transport call. The attempt is
// counted here, sent_at is stamped, and any retry schedule is cleared.
func (r *NotificationLogRepository) MarkSent(ctx context.Context, logID string, providerMsgID string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE notification_logs SET
			status = 'sent',
			provider_message_id = $1,
			error_message = NULL,
			next_retry_at = NULL,
			attempt_count = attempt_count + 1,
			sent_at = NOW()
		 WHERE id = $2`,
		nilIfEmpty(providerMsgID),
		logID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark notification log sent", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundLog, "notification log not found", nil)
	}
	return nil
}

// MarkFailed finalizes a row after a failed transport call. The attempt is
// counted and the error recorded. A non-zero nextRetryAt schedules the row for
// the retry processor; a zero value leaves next_retry_at NULL, which marks the
// failure terminal.
func (r *NotificationLogRepository) MarkFailed(ctx context.Context, logID string, reason string, nextRetryAt time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE notification_logs SET
			status = 'failed',
			error_message = $1,
			next_retry_at = $2,
			attempt_count = attempt_count + 1
		 WHERE id = $3`,
		nilIfEmpty(reason),
		nilIfZeroTime(nextRetryAt),
		logID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark notification log failed", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundLog, "notification log not found", nil)
	}
	return nil
}

// ClaimForRetry atomically moves a failed row back to 'pending' so exactly one
// worker re-drives it. Returns false when the row was not claimable (not
// failed, or already claimed by a concurrent worker).
func (r *NotificationLogRepository) ClaimForRetry(ctx context.Context, logID string) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE notification_logs SET
			status = 'pending',
			next_retry_at = NULL
		 WHERE id = $1 AND status = 'failed'`,
		logID,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to claim notification log for retry", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ReleaseClaim undoes ClaimForRetry when the redelivery pipeline errored
// before producing an outcome. The row returns to 'failed' so it stays
// visible to the log viewer and manual resend; next_retry_at is left NULL
// because the attempt may have reached the provider, so only an operator
// should re-drive it.
func (r *NotificationLogRepository) ReleaseClaim(ctx context.Context, logID string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE notification_logs SET status = 'failed'
		 WHERE id = $1 AND status = 'pending'`,
		logID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to release notification log claim", err)
	}
	return nil
}

// ListRetryable retrieves failed rows whose next_retry_at has passed, oldest
// first. Rows with NULL next_retry_at are terminal and never returned.
func (r *NotificationLogRepository) ListRetryable(ctx context.Context, now time.Time, limit int) ([]*types.NotificationLog, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+logColumns+`
		 FROM notification_logs
		 WHERE status = 'failed'
		   AND next_retry_at IS NOT NULL
		   AND next_retry_at <= $1
		 ORDER BY created_at
		 LIMIT $2`,
		now,
		limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list retryable notification logs", err)
	}
	defer rows.Close()

	return collectLogs(rows)
}

// GetByID retrieves a single notification log row.
func (r *NotificationLogRepository) GetByID(ctx context.Context, logID string) (*types.NotificationLog, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+logColumns+`
		 FROM notification_logs
		 WHERE id = $1`,
		logID,
	)

	l, err := scanLogRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, types.NewAppError(types.ErrCodeNotFoundLog, "notification log not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get notification log", err)
	}
	return l, nil
}

// List retrieves notification logs for the admin viewer with filtering and
// cursor-based pagination (created_at descending, limit+1 strategy).
func (r *NotificationLogRepository) List(ctx context.Context, filter types.LogFilter) ([]*types.NotificationLog, types.PageInfo, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	var conditions []string
	var args []any
	argIdx := 1

	appendCond := func(expr string, val any) {
		conditions = append(conditions, fmt.Sprintf(expr, argIdx))
		args = append(args, val)
		argIdx++
	}

	if filter.Type != "" {
		appendCond("type = $%d", string(filter.Type))
	}
	if filter.Channel != "" {
		appendCond("channel = $%d", string(filter.Channel))
	}
	if filter.Status != "" {
		appendCond("status = $%d", string(filter.Status))
	}
	if !filter.From.IsZero() {
		appendCond("created_at >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		appendCond("created_at <= $%d", filter.To)
	}
	if filter.Search != "" {
		pattern := "%" + escapeLike(filter.Search) + "%"
		conditions = append(conditions, fmt.Sprintf("(recipient ILIKE $%d OR subject ILIKE $%d)", argIdx, argIdx))
		args = append(args, pattern)
		argIdx++
	}
	if filter.Cursor != "" {
		cursorTime, err := time.Parse(time.RFC3339Nano, filter.Cursor)
		if err != nil {
			return nil, types.PageInfo{}, types.NewAppError(
				types.ErrCodeValidationInvalidFilter,
				"invalid cursor format; expected RFC3339 timestamp",
				err,
			)
		}
		appendCond("created_at < $%d", cursorTime)
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf(
		`SELECT `+logColumns+`
		 FROM notification_logs
		 %s
		 ORDER BY created_at DESC
		 LIMIT $%d`,
		whereClause,
		argIdx,
	)
	args = append(args, limit+1)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, types.PageInfo{}, types.NewAppError(types.ErrCodeInternalDB, "failed to list notification logs", err)
	}
	defer rows.Close()

	results, err := collectLogs(rows)
	if err != nil {
		return nil, types.PageInfo{}, err
	}

	pageInfo := types.PageInfo{}
	if len(results) > limit {
		pageInfo.HasMore = true
		pageInfo.NextCursor = results[limit-1].CreatedAt.Format(time.RFC3339Nano)
		results = results[:limit]
	}

	return results, pageInfo, nil
}

// WasPetNotifiedSince reports whether the pet received (or is about to
// receive) a real notification of the given type after the cutoff. Test sends
// are excluded so admin experiments do not suppress production sends.
func (r *NotificationLogRepository) WasPetNotifiedSince(ctx context.Context, petID string, t types.NotificationType, since time.Time) (bool, error) {
	var exists bool
	row := r.db.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM notification_logs
			WHERE pet_id = $1
			  AND type = $2
			  AND status IN ('pending', 'sent')
			  AND is_test = FALSE
			  AND created_at >= $3
		 )`,
		petID,
		string(t),
		since,
	)
	if err := row.Scan(&exists); err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to check notification history", err)
	}
	return exists, nil
}

// HasReminderForAppointment reports whether a reminder row already exists for
// the appointment on the given channel. Used by the eligibility scan to make
// the daily job idempotent.
func (r *NotificationLogRepository) HasReminderForAppointment(ctx context.Context, appointmentID string, channel types.Channel) (bool, error) {
	var exists bool
	row := r.db.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM notification_logs
			WHERE appointment_id = $1
			  AND type = 'appointment_reminder'
			  AND channel = $2
			  AND is_test = FALSE
		 )`,
		appointmentID,
		string(channel),
	)
	if err := row.Scan(&exists); err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to check reminder history", err)
	}
	return exists, nil
}

// MarkDelivered stamps delivered_at from a provider delivery event. Set-once:
// a second event for the same row is a no-op.
func (r *NotificationLogRepository) MarkDelivered(ctx context.Context, trackingID string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE notification_logs SET delivered_at = NOW()
		 WHERE tracking_id = $1 AND delivered_at IS NULL`,
		trackingID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark notification delivered", err)
	}
	return nil
}

// MarkClicked stamps clicked_at from a tracking link hit. Set-once, and also
// backfills delivered_at since a click implies delivery.
func (r *NotificationLogRepository) MarkClicked(ctx context.Context, trackingID string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE notification_logs SET
			clicked_at = COALESCE(clicked_at, NOW()),
			delivered_at = COALESCE(delivered_at, NOW())
		 WHERE tracking_id = $1`,
		trackingID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark notification clicked", err)
	}
	return nil
}

// collectLogs drains a pgx.Rows result set into NotificationLog structs.
func collectLogs(rows pgx.Rows) ([]*types.NotificationLog, error) {
	var results []*types.NotificationLog
	for rows.Next() {
		l, err := scanLogRow(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan notification log row", err)
		}
		results = append(results, l)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating notification log rows", err)
	}
	return results, nil
}

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanLogRow scans a single notification_logs row. Nullable columns are read
// through pointers and folded back into the struct's zero values.
func scanLogRow(row rowScanner) (*types.NotificationLog, error) {
	var (
		l             types.NotificationLog
		typ           string
		channel       string
		status        string
		appointmentID *string
		petID         *string
		subject       *string
		templateJSON  []byte
		errorMessage  *string
		providerMsgID *string
		trackingID    *string
		nextRetryAt   *time.Time
		sentAt        *time.Time
		deliveredAt   *time.Time
		clickedAt     *time.Time
	)

	err := row.Scan(
		&l.ID,
		&typ,
		&channel,
		&l.Recipient,
		&l.CustomerID,
		&appointmentID,
		&petID,
		&status,
		&subject,
		&l.Content,
		&templateJSON,
		&errorMessage,
		&providerMsgID,
		&trackingID,
		&l.AttemptCount,
		&nextRetryAt,
		&l.IsTest,
		&l.CreatedAt,
		&sentAt,
		&deliveredAt,
		&clickedAt,
	)
	if err != nil {
		return nil, err
	}

	l.Type = types.NotificationType(typ)
	l.Channel = types.Channel(channel)
	l.Status = types.LogStatus(status)
	l.AppointmentID = derefString(appointmentID)
	l.PetID = derefString(petID)
	l.Subject = derefString(subject)
	l.ErrorMessage = derefString(errorMessage)
	l.ProviderMsgID = derefString(providerMsgID)
	l.TrackingID = derefString(trackingID)
	l.NextRetryAt = derefTime(nextRetryAt)
	l.SentAt = derefTime(sentAt)
	l.DeliveredAt = derefTime(deliveredAt)
	l.ClickedAt = derefTime(clickedAt)

	if len(templateJSON) > 0 {
		// Malformed template data degrades to a nil field rather than
		// failing the whole listing.
		if td, tdErr := types.UnmarshalTemplateData(templateJSON); tdErr == nil {
			l.TemplateData = td
		}
	}

	return &l, nil
}

// escapeLike escapes LIKE metacharacters in user-supplied search terms.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
