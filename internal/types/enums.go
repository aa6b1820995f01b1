package types

// NotificationType identifies the kind of notification being sent.
type NotificationType string

const (
	NotificationAppointmentReminder NotificationType = "appointment_reminder"
	NotificationRetentionReminder   NotificationType = "retention_reminder"
	NotificationWaitlistOffer       NotificationType = "waitlist_offer"
	NotificationBookingConfirmation NotificationType = "booking_confirmation"
)

// AllNotificationTypes lists every notification type the pipeline knows about.
// Used by the settings API to enumerate settings rows and by validators to
// reject unknown types in URL parameters.
var AllNotificationTypes = []NotificationType{
	NotificationAppointmentReminder,
	NotificationRetentionReminder,
	NotificationWaitlistOffer,
	NotificationBookingConfirmation,
}

// IsValidNotificationType reports whether t is a known notification type.
func IsValidNotificationType(t NotificationType) bool {
	for _, known := range AllNotificationTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Channel identifies a notification delivery channel.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// IsValidChannel reports whether c is a known delivery channel.
func IsValidChannel(c Channel) bool {
	return c == ChannelEmail || c == ChannelSMS
}

// LogStatus enumerates all valid states for a notification log row.
// These values MUST match the CHECK constraint on notification_logs.status.
//
// A row is created as 'pending' before the transport call (write-ahead) and
// finalized to 'sent' or 'failed' afterwards. "Exhausted" is not a stored
// status; it is derived from attempt_count against the type's max_retries.
type LogStatus string

const (
	LogStatusPending LogStatus = "pending"
	LogStatusSent    LogStatus = "sent"
	LogStatusFailed  LogStatus = "failed"
)

// AppointmentStatus represents the lifecycle state of a grooming appointment.
// Appointments are owned by the booking system; this service only reads them.
type AppointmentStatus string

const (
	AppointmentPending   AppointmentStatus = "pending"
	AppointmentConfirmed AppointmentStatus = "confirmed"
	AppointmentCompleted AppointmentStatus = "completed"
	AppointmentCancelled AppointmentStatus = "cancelled"
	AppointmentNoShow    AppointmentStatus = "no_show"
)

// ActiveAppointmentStatuses is the set of appointment states that still
// qualify for a reminder. Cancelled, completed, and no-show are excluded.
var ActiveAppointmentStatuses = []AppointmentStatus{
	AppointmentPending,
	AppointmentConfirmed,
}

// JobName identifies a scheduled job for lock scoping and log correlation.
type JobName string

const (
	JobReminders JobName = "notifications_reminders"
	JobRetention JobName = "notifications_retention"
	JobRetry     JobName = "notifications_retry"
)
