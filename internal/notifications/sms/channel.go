// Package sms implements the SMS delivery channel. Messages are assembled in
// code rather than template files: SMS bodies are single sentences with hard
// length pressure, and carrier segmentation at 160 characters makes every
// word a cost decision.
package sms

import (
	"context"
	"fmt"
	"time"

	"puppyday/internal/external"
	"puppyday/internal/notifications/core"
	"puppyday/internal/types"
)

// Channel implements core.Channel for SMS delivery.
type Channel struct {
	provider external.SMSProvider
}

// NewChannel creates an SMS Channel.
func NewChannel(provider external.SMSProvider) *Channel {
	return &Channel{provider: provider}
}

// Kind returns the channel identifier for SMS.
func (c *Channel) Kind() types.Channel {
	return types.ChannelSMS
}

// Render builds the message body for the given template data. SMS has no
// subject.
func (c *Channel) Render(data types.TemplateData) (core.Message, error) {
	if data == nil {
		return core.Message{}, fmt.Errorf("nil template data")
	}

	var body string
	switch d := data.(type) {
	case types.ReminderData:
		body = fmt.Sprintf("The Puppy Day: reminder that %s is booked for %s on %s. Reply or call us to reschedule.",
			d.PetName, d.ServiceName, formatSlot(d.ScheduledAt))
	case types.RetentionData:
		body = fmt.Sprintf("The Puppy Day: it's been %d weeks since %s's last groom. Time for a visit? Book anytime!",
			d.WeeksSinceGroom, d.PetName)
	case types.WaitlistData:
		body = fmt.Sprintf("The Puppy Day: a %s slot opened on %s and you're next on the waitlist. Call us to claim it!",
			d.ServiceName, formatSlot(d.SlotAt))
	case types.ConfirmationData:
		body = fmt.Sprintf("The Puppy Day: booking confirmed! %s is scheduled for %s on %s.",
			d.PetName, d.ServiceName, formatSlot(d.ScheduledAt))
	default:
		return core.Message{}, fmt.Errorf("no sms body for notification type %q", data.Kind())
	}

	return core.Message{Body: body}, nil
}

// Deliver transmits a rendered SMS through the provider. The tracking ID is
// unused: SMS carriers offer no per-message callback hooks here.
func (c *Channel) Deliver(ctx context.Context, recipient string, msg core.Message, _ string) (string, error) {
	return c.provider.Send(ctx, recipient, msg.Body)
}

func formatSlot(t time.Time) string {
	return t.Format("Jan 2 at 3:04 PM")
}

var _ core.Channel = (*Channel)(nil)
