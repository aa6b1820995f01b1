package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// TemplateData is the substitution context for rendering one notification.
// It is a discriminated union keyed by notification type: each variant carries
// exactly the fields its templates require, so a missing field is a compile
// error rather than a blank in a customer-facing message.
//
// Variants serialize to JSONB with a "kind" tag so stored rows can be decoded
// back into the right variant for retry and manual resend.
type TemplateData interface {
	// Kind returns the notification type this data renders for.
	Kind() NotificationType
}

// ReminderData renders appointment_reminder messages.
type ReminderData struct {
	CustomerName string    `json:"customer_name"`
	PetName      string    `json:"pet_name"`
	ServiceName  string    `json:"service_name"`
	ScheduledAt  time.Time `json:"scheduled_at"`
}

func (ReminderData) Kind() NotificationType { return NotificationAppointmentReminder }

// RetentionData renders retention_reminder messages.
type RetentionData struct {
	CustomerName     string    `json:"customer_name"`
	PetName          string    `json:"pet_name"`
	LastGroomedAt    time.Time `json:"last_groomed_at"`
	WeeksSinceGroom  int       `json:"weeks_since_groom"`
	RecommendedWeeks int       `json:"recommended_weeks"`
}

func (RetentionData) Kind() NotificationType { return NotificationRetentionReminder }

// WaitlistData renders waitlist_offer messages.
type WaitlistData struct {
	CustomerName string    `json:"customer_name"`
	ServiceName  string    `json:"service_name"`
	SlotAt       time.Time `json:"slot_at"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
}

func (WaitlistData) Kind() NotificationType { return NotificationWaitlistOffer }

// ConfirmationData renders booking_confirmation messages.
type ConfirmationData struct {
	CustomerName string    `json:"customer_name"`
	PetName      string    `json:"pet_name"`
	ServiceName  string    `json:"service_name"`
	ScheduledAt  time.Time `json:"scheduled_at"`
}

func (ConfirmationData) Kind() NotificationType { return NotificationBookingConfirmation }

// templateEnvelope is the stored JSONB shape: the kind tag plus the variant's
// own fields flattened alongside it would complicate decoding, so the payload
// nests under "data".
type templateEnvelope struct {
	Kind NotificationType `json:"kind"`
	Data json.RawMessage  `json:"data"`
}

// MarshalTemplateData serializes a TemplateData variant to its JSONB form.
// Returns nil for nil input (stored as SQL NULL).
func MarshalTemplateData(d TemplateData) ([]byte, error) {
	if d == nil {
		return nil, nil
	}
	payload, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshaling template data: %w", err)
	}
	return json.Marshal(templateEnvelope{Kind: d.Kind(), Data: payload})
}

// UnmarshalTemplateData decodes a stored JSONB value back into the variant
// named by its kind tag. Returns nil for empty input.
func UnmarshalTemplateData(b []byte) (TemplateData, error) {
	if len(b) == 0 {
		return nil, nil
	}

	var env templateEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("decoding template data envelope: %w", err)
	}

	var d TemplateData
	switch env.Kind {
	case NotificationAppointmentReminder:
		d = &ReminderData{}
	case NotificationRetentionReminder:
		d = &RetentionData{}
	case NotificationWaitlistOffer:
		d = &WaitlistData{}
	case NotificationBookingConfirmation:
		d = &ConfirmationData{}
	default:
		return nil, fmt.Errorf("unknown template data kind %q", env.Kind)
	}

	if err := json.Unmarshal(env.Data, d); err != nil {
		return nil, fmt.Errorf("decoding %s template data: %w", env.Kind, err)
	}

	// Return the value, not the pointer, so callers can type-switch on the
	// concrete variant.
	switch v := d.(type) {
	case *ReminderData:
		return *v, nil
	case *RetentionData:
		return *v, nil
	case *WaitlistData:
		return *v, nil
	case *ConfirmationData:
		return *v, nil
	}
	return d, nil
}
