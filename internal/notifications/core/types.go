// Package core provides the shared notification pipeline used by every
// delivery channel (email, sms). It centralizes the write-ahead log protocol,
// outcome recording, retry scheduling, and observability, ensuring the
// channels behave identically around the transport call.
package core

import (
	"context"
	"time"

	"puppyday/internal/types"
)

// Candidate is one source entity the eligibility scan selected for
// notification: the customer to contact, the entity that triggered it, and
// the rendering context.
type Candidate struct {
	Type types.NotificationType

	CustomerID    string
	AppointmentID string
	PetID         string

	// Contact fields resolved by the scan. Empty means the customer has no
	// usable address for that channel.
	Email string
	Phone string

	Data types.TemplateData

	// IsTest marks admin test sends. Test rows are excluded from cooldown
	// and dedup queries.
	IsTest bool
}

// SkipReason explains why an eligibility scan passed over a candidate.
type SkipReason string

const (
	SkipChannelDisabled  SkipReason = "channel_disabled"
	SkipOptedOut         SkipReason = "opted_out"
	SkipNoContact        SkipReason = "no_contact_info"
	SkipAlreadyNotified  SkipReason = "already_notified"
	SkipRecentlyNotified SkipReason = "recently_notified"
	SkipNoOwner          SkipReason = "owner_missing"
	SkipNeverGroomed     SkipReason = "never_groomed"
)

// EligibilityDecision is the outcome of evaluating one candidate against one
// channel's rules. Exactly one of the three states holds: eligible, skipped
// (with a reason), or not yet due.
type EligibilityDecision struct {
	Eligible bool
	Skip     SkipReason // set only when not eligible and not simply early
	NotDue   bool
}

// Eligible returns the decision for a candidate that should be dispatched.
func Eligible() EligibilityDecision {
	return EligibilityDecision{Eligible: true}
}

// Skipped returns the decision for a candidate excluded by rule.
func Skipped(reason SkipReason) EligibilityDecision {
	return EligibilityDecision{Skip: reason}
}

// NotYetDue returns the decision for a candidate that is simply early; it is
// neither dispatched nor counted as a skip.
func NotYetDue() EligibilityDecision {
	return EligibilityDecision{NotDue: true}
}

// Message is the rendered content for one send.
type Message struct {
	Subject string // empty for SMS
	Body    string
}

// Channel abstracts one delivery channel. Render and Deliver are split so
// rendering failures are caught before a log row is reserved, and so retries
// can re-render from stored template data.
type Channel interface {
	// Kind returns the channel identifier.
	Kind() types.Channel

	// Render produces the message for the given template data.
	Render(data types.TemplateData) (Message, error)

	// Deliver transmits a rendered message. trackingID correlates provider
	// callbacks with the log row. Returns the provider's message ID.
	Deliver(ctx context.Context, recipient string, msg Message, trackingID string) (string, error)
}

// Outcome is the result of one dispatch through the pipeline.
type Outcome struct {
	LogID  string
	Status types.LogStatus // sent or failed
	// Err carries the transport error for failed outcomes. It is
	// informational: dispatch failures never propagate as errors.
	Err error
}

// RetrySchedule is the per-type retry policy resolved from settings.
type RetrySchedule struct {
	// MaxRetries bounds the retries after the original attempt. Zero means
	// failures are terminal immediately.
	MaxRetries int
	// Delays holds the wait before each retry. Retries beyond the last
	// element reuse it. Empty with MaxRetries > 0 means retries are
	// eligible immediately.
	Delays []time.Duration
}

// ScheduleFromSettings builds a RetrySchedule from a settings row.
func ScheduleFromSettings(s *types.NotificationSettings) RetrySchedule {
	delays := make([]time.Duration, 0, len(s.RetryDelaysSeconds))
	for _, secs := range s.RetryDelaysSeconds {
		delays = append(delays, time.Duration(secs)*time.Second)
	}
	return RetrySchedule{
		MaxRetries: s.MaxRetries,
		Delays:     delays,
	}
}

// DelayFor returns the wait before retry number retriesPerformed (0-based).
// Indexes past the end of Delays clamp to the last element.
func (s RetrySchedule) DelayFor(retriesPerformed int) time.Duration {
	if len(s.Delays) == 0 {
		return 0
	}
	if retriesPerformed >= len(s.Delays) {
		return s.Delays[len(s.Delays)-1]
	}
	if retriesPerformed < 0 {
		retriesPerformed = 0
	}
	return s.Delays[retriesPerformed]
}

// NextRetryAt computes when the row becomes eligible again after a failure.
// attemptsDone counts every transport call performed so far including the one
// that just failed. Returns (zero, false) when retries are exhausted and the
// failure is terminal.
func (s RetrySchedule) NextRetryAt(now time.Time, attemptsDone int) (time.Time, bool) {
	retriesPerformed := attemptsDone - 1
	if retriesPerformed < 0 {
		retriesPerformed = 0
	}
	if retriesPerformed >= s.MaxRetries {
		return time.Time{}, false
	}
	return now.Add(s.DelayFor(retriesPerformed)), true
}

// MetricResult categorizes a delivery outcome for metrics reporting.
type MetricResult string

const (
	MetricSuccess MetricResult = "success"
	MetricFailed  MetricResult = "failed"
)

// Metrics abstracts CloudWatch/telemetry operations for the pipeline.
// Implementations must never fail the caller.
type Metrics interface {
	RecordDelivery(ctx context.Context, channel types.Channel, result MetricResult)
	RecordLatency(ctx context.Context, channel types.Channel, duration time.Duration)
	RecordExhausted(ctx context.Context, notifType types.NotificationType)
}

// NopMetrics discards all metrics. Used in local mode and tests.
type NopMetrics struct{}

func (NopMetrics) RecordDelivery(context.Context, types.Channel, MetricResult) {}
func (NopMetrics) RecordLatency(context.Context, types.Channel, time.Duration) {}
func (NopMetrics) RecordExhausted(context.Context, types.NotificationType)     {}

var _ Metrics = NopMetrics{}
