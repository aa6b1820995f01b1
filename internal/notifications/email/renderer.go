// Package email implements the email delivery channel: client-side template
// rendering plus transmission through an external EmailProvider (AWS SES).
package email

import (
	"bytes"
	"embed"
	"fmt"
	"text/template"
	"time"

	"puppyday/internal/notifications/core"
	"puppyday/internal/types"
)

//go:embed templates/*.txt
var templateFS embed.FS

// subjects maps notification types to their subject line template. Subjects
// are short enough that inline templates beat separate files.
var subjects = map[types.NotificationType]string{
	types.NotificationAppointmentReminder: "Reminder: {{.PetName}}'s grooming appointment",
	types.NotificationRetentionReminder:   "{{.PetName}} is due for a groom",
	types.NotificationWaitlistOffer:       "A slot opened up for {{.ServiceName}}",
	types.NotificationBookingConfirmation: "Booking confirmed for {{.PetName}}",
}

// viewModel is the struct passed into body templates. It flattens every
// TemplateData variant plus pre-formatted date fields, so templates never
// need time formatting logic.
type viewModel struct {
	CustomerName string
	PetName      string
	ServiceName  string

	FormattedDate   string
	FormattedTime   string
	HasExpiry       bool
	FormattedExpiry string

	WeeksSinceGroom  int
	RecommendedWeeks int
}

// Renderer performs email template rendering using Go's text/template with
// embedded template files.
type Renderer struct {
	bodies       map[types.NotificationType]*template.Template
	subjectTmpls map[types.NotificationType]*template.Template
}

// NewRenderer parses the embedded templates and returns a Renderer.
// Returns an error if any template is missing or fails to parse.
func NewRenderer() (*Renderer, error) {
	r := &Renderer{
		bodies:       make(map[types.NotificationType]*template.Template),
		subjectTmpls: make(map[types.NotificationType]*template.Template),
	}

	for _, nt := range types.AllNotificationTypes {
		body, err := template.ParseFS(templateFS, fmt.Sprintf("templates/%s.txt", nt))
		if err != nil {
			return nil, fmt.Errorf("parsing body template for %s: %w", nt, err)
		}
		r.bodies[nt] = body

		subj, err := template.New(string(nt)).Parse(subjects[nt])
		if err != nil {
			return nil, fmt.Errorf("parsing subject template for %s: %w", nt, err)
		}
		r.subjectTmpls[nt] = subj
	}

	return r, nil
}

// Render produces the subject and body for the given template data.
func (r *Renderer) Render(data types.TemplateData) (core.Message, error) {
	if data == nil {
		return core.Message{}, fmt.Errorf("nil template data")
	}

	vm := buildViewModel(data)
	nt := data.Kind()

	body, ok := r.bodies[nt]
	if !ok {
		return core.Message{}, fmt.Errorf("no template for notification type %q", nt)
	}

	var subjBuf, bodyBuf bytes.Buffer
	if err := r.subjectTmpls[nt].Execute(&subjBuf, vm); err != nil {
		return core.Message{}, fmt.Errorf("rendering subject for %s: %w", nt, err)
	}
	if err := body.Execute(&bodyBuf, vm); err != nil {
		return core.Message{}, fmt.Errorf("rendering body for %s: %w", nt, err)
	}

	return core.Message{
		Subject: subjBuf.String(),
		Body:    bodyBuf.String(),
	}, nil
}

// buildViewModel flattens a TemplateData variant into the template view.
func buildViewModel(data types.TemplateData) viewModel {
	switch d := data.(type) {
	case types.ReminderData:
		return viewModel{
			CustomerName:  d.CustomerName,
			PetName:       d.PetName,
			ServiceName:   d.ServiceName,
			FormattedDate: formatDate(d.ScheduledAt),
			FormattedTime: formatTime(d.ScheduledAt),
		}
	case types.RetentionData:
		return viewModel{
			CustomerName:     d.CustomerName,
			PetName:          d.PetName,
			WeeksSinceGroom:  d.WeeksSinceGroom,
			RecommendedWeeks: d.RecommendedWeeks,
		}
	case types.WaitlistData:
		vm := viewModel{
			CustomerName:  d.CustomerName,
			ServiceName:   d.ServiceName,
			FormattedDate: formatDate(d.SlotAt),
			FormattedTime: formatTime(d.SlotAt),
		}
		if !d.ExpiresAt.IsZero() {
			vm.HasExpiry = true
			vm.FormattedExpiry = formatTime(d.ExpiresAt)
		}
		return vm
	case types.ConfirmationData:
		return viewModel{
			CustomerName:  d.CustomerName,
			PetName:       d.PetName,
			ServiceName:   d.ServiceName,
			FormattedDate: formatDate(d.ScheduledAt),
			FormattedTime: formatTime(d.ScheduledAt),
		}
	}
	return viewModel{}
}

func formatDate(t time.Time) string {
	return t.Format("Monday, January 2")
}

func formatTime(t time.Time) string {
	return t.Format("3:04 PM")
}
