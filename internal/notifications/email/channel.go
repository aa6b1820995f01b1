package email

import (
	"context"
	"fmt"

	"puppyday/internal/external"
	"puppyday/internal/notifications/core"
	"puppyday/internal/types"
)

// Channel implements core.Channel for email delivery.
type Channel struct {
	provider        external.EmailProvider
	renderer        *Renderer
	fromAddress     string
	fromName        string
	trackingBaseURL string
}

// ChannelConfig holds the dependencies needed to create an email Channel.
type ChannelConfig struct {
	Provider    external.EmailProvider
	Renderer    *Renderer
	FromAddress string
	FromName    string
	// TrackingBaseURL is the public API base URL used to build the
	// click-through link appended to email bodies. Empty disables the link.
	TrackingBaseURL string
}

// NewChannel creates an email Channel.
func NewChannel(cfg ChannelConfig) *Channel {
	return &Channel{
		provider:        cfg.Provider,
		renderer:        cfg.Renderer,
		fromAddress:     cfg.FromAddress,
		fromName:        cfg.FromName,
		trackingBaseURL: cfg.TrackingBaseURL,
	}
}

// Kind returns the channel identifier for email.
func (c *Channel) Kind() types.Channel {
	return types.ChannelEmail
}

// Render produces the subject and body for the given template data.
func (c *Channel) Render(data types.TemplateData) (core.Message, error) {
	return c.renderer.Render(data)
}

// Deliver transmits a rendered email through the provider. When a tracking
// base URL is configured, a click-through link tied to the log row's tracking
// ID is appended so opens of the manage link mark clicked_at.
func (c *Channel) Deliver(ctx context.Context, recipient string, msg core.Message, trackingID string) (string, error) {
	body := msg.Body
	if c.trackingBaseURL != "" && trackingID != "" {
		body += fmt.Sprintf("\n\nManage this appointment: %s/v1/notifications/track/%s/clicked",
			c.trackingBaseURL, trackingID)
	}

	return c.provider.Send(ctx, external.EmailInput{
		To:          recipient,
		Subject:     msg.Subject,
		BodyText:    body,
		FromAddress: c.fromAddress,
		FromName:    c.fromName,
		ReferenceID: trackingID,
	})
}

var _ core.Channel = (*Channel)(nil)
