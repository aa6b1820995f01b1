// Package external contains clients for third-party delivery providers.
// Implementations translate between domain types and vendor-specific APIs,
// and map vendor errors to AppErrors so callers never see SDK types.
package external

import "context"

// EmailInput carries pre-rendered email content for a single send.
// No server-side templates: rendering happens before the transport.
type EmailInput struct {
	To          string
	Subject     string
	BodyText    string
	FromAddress string
	FromName    string
	// ReferenceID tags the message for correlation with the notification
	// log row (tracking_id). Optional.
	ReferenceID string
}

// EmailProvider abstracts the email delivery service (AWS SES).
type EmailProvider interface {
	// Send transmits an email with pre-rendered content.
	// Returns the provider's message ID for tracking and correlation.
	Send(ctx context.Context, input EmailInput) (providerMsgID string, err error)
}

// SMSProvider abstracts the SMS delivery service (AWS SNS).
type SMSProvider interface {
	// Send transmits an SMS to an E.164 phone number.
	// Returns the provider's message ID for tracking and correlation.
	Send(ctx context.Context, to string, body string) (providerMsgID string, err error)
}
