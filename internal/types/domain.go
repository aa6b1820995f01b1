package types

import "time"

// NotificationLog is the persisted record of one send attempt and its result.
// It is the central entity of the pipeline: every dispatch writes exactly one
// row (reserved as 'pending' before the transport call, finalized afterwards),
// and the retry processor re-drives failed rows through the same machinery.
//
// After a terminal outcome the row only mutates through retry bookkeeping
// (AttemptCount, NextRetryAt, ErrorMessage) and the one-shot lifecycle
// timestamps (DeliveredAt, ClickedAt), which are set once and never regress.
type NotificationLog struct {
	ID        string           `json:"id"`
	Type      NotificationType `json:"type"`
	Channel   Channel          `json:"channel"`
	Recipient string           `json:"recipient"`

	// Eligibility source. CustomerID is always set; AppointmentID and PetID
	// are set according to the notification type.
	CustomerID    string `json:"customer_id"`
	AppointmentID string `json:"appointment_id,omitempty"`
	PetID         string `json:"pet_id,omitempty"`

	Status  LogStatus `json:"status"`
	Subject string    `json:"subject,omitempty"` // empty for SMS
	Content string    `json:"content"`

	// TemplateData preserves the substitution context used to render the
	// message, for audit and for replay on retry/resend.
	TemplateData TemplateData `json:"template_data,omitempty"`

	ErrorMessage  string `json:"error_message,omitempty"`
	ProviderMsgID string `json:"message_id,omitempty"`
	TrackingID    string `json:"tracking_id,omitempty"`

	// AttemptCount is the number of transport calls performed for this row
	// (1 for the original dispatch, +1 per retry). NextRetryAt is zero when
	// the row is not scheduled for retry (sent, pending, or exhausted).
	AttemptCount int       `json:"attempt_count"`
	NextRetryAt  time.Time `json:"next_retry_at,omitempty"`

	IsTest bool `json:"is_test"`

	CreatedAt   time.Time `json:"created_at"`
	SentAt      time.Time `json:"sent_at,omitempty"`
	DeliveredAt time.Time `json:"delivered_at,omitempty"`
	ClickedAt   time.Time `json:"clicked_at,omitempty"`
}

// RetriesPerformed returns the number of retries already performed for this
// row (attempts beyond the original dispatch).
func (l *NotificationLog) RetriesPerformed() int {
	if l.AttemptCount <= 1 {
		return 0
	}
	return l.AttemptCount - 1
}

// Exhausted reports whether the row has consumed all retries allowed by
// maxRetries. Exhausted rows are terminal and excluded from retry scans.
func (l *NotificationLog) Exhausted(maxRetries int) bool {
	return l.Status == LogStatusFailed && l.RetriesPerformed() >= maxRetries
}

// NotificationSettings is the per-type configuration row. Rows are created
// with defaults on first reference and never deleted.
type NotificationSettings struct {
	Type NotificationType `json:"type"`

	EmailEnabled    bool   `json:"email_enabled"`
	SMSEnabled      bool   `json:"sms_enabled"`
	ScheduleEnabled bool   `json:"schedule_enabled"`
	ScheduleCron    string `json:"schedule_cron,omitempty"` // empty means scheduling disabled (NULL)

	MaxRetries         int   `json:"max_retries"`
	RetryDelaysSeconds []int `json:"retry_delays_seconds"`

	// Rolling counters maintained by the outcome recorder. Informational:
	// they are updated best-effort and may lag the log table, but are never
	// double-counted for a single log row.
	LastSentAt       time.Time `json:"last_sent_at,omitempty"`
	TotalSentCount   int64     `json:"total_sent_count"`
	TotalFailedCount int64     `json:"total_failed_count"`

	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultSettings returns the settings row created on first reference for a
// notification type. Reminder-style types get a daily schedule; event-driven
// types (waitlist offers, booking confirmations) have no cron of their own.
func DefaultSettings(t NotificationType) *NotificationSettings {
	s := &NotificationSettings{
		Type:               t,
		EmailEnabled:       true,
		SMSEnabled:         true,
		MaxRetries:         3,
		RetryDelaysSeconds: []int{300, 1800, 7200},
	}
	switch t {
	case NotificationAppointmentReminder:
		s.ScheduleEnabled = true
		s.ScheduleCron = "0 9 * * *"
	case NotificationRetentionReminder:
		s.ScheduleEnabled = true
		s.ScheduleCron = "0 10 * * 1"
	}
	return s
}

// ---------------------------------------------------------------------------
// Booking-system entities (read-only to this service)
// ---------------------------------------------------------------------------

// Appointment is a grooming appointment as stored by the booking system.
type Appointment struct {
	ID          string            `json:"id"`
	CustomerID  string            `json:"customer_id"`
	PetID       string            `json:"pet_id"`
	ServiceName string            `json:"service_name"`
	ScheduledAt time.Time         `json:"scheduled_at"`
	Status      AppointmentStatus `json:"status"`
}

// Customer holds the contact fields and opt-out flags the pipeline needs.
// Opt-outs are enforced at the eligibility boundary, never left to the
// transport.
type Customer struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"` // E.164-like form

	EmailOptOut     bool `json:"email_opt_out"`
	SMSOptOut       bool `json:"sms_opt_out"`
	MarketingOptOut bool `json:"marketing_opt_out"`
}

// FullName returns the customer's display name for message rendering.
func (c *Customer) FullName() string {
	if c.LastName == "" {
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

// Pet is a customer's dog as stored by the booking system.
type Pet struct {
	ID         string `json:"id"`
	CustomerID string `json:"customer_id"`
	Name       string `json:"name"`
	BreedID    string `json:"breed_id,omitempty"`
}

// WaitlistEntry is a customer queued for a slot matching their criteria.
// Entries are ordered by Priority ascending, then CreatedAt.
type WaitlistEntry struct {
	ID          string    `json:"id"`
	CustomerID  string    `json:"customer_id"`
	PetID       string    `json:"pet_id,omitempty"`
	ServiceName string    `json:"service_name"`
	PreferredAt time.Time `json:"preferred_at,omitempty"`
	Priority    int       `json:"priority"`
	CreatedAt   time.Time `json:"created_at"`
}

// RetentionCandidateRow is the joined row the retention scan operates on:
// a pet, its owner (nil when the owner record is missing), the breed's
// grooming cadence, and the pet's most recent completed appointment time
// (zero when the pet has never been groomed here).
type RetentionCandidateRow struct {
	Pet                    Pet
	Owner                  *Customer
	GroomingFrequencyWeeks int
	LastCompletedAt        time.Time
}
