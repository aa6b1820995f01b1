package scheduler

import (
	"context"
	"log/slog"
	"time"

	"puppyday/internal/notifications/core"
	"puppyday/internal/types"
)

// ReminderWindow bounds the appointment lookahead: appointments starting in
// [now+Min, now+Max) are due for a reminder.
type ReminderWindow struct {
	Min time.Duration
	Max time.Duration
}

type reminderBookingStore interface {
	// SQL: SELECT ... FROM appointments WHERE status IN ('pending','confirmed') AND scheduled_at >= $1 AND scheduled_at < $2
	ListUpcomingAppointments(ctx context.Context, from, to time.Time) ([]*types.Appointment, error)
	// SQL: SELECT ... FROM customers WHERE id = $1
	GetCustomer(ctx context.Context, customerID string) (*types.Customer, error)
	// SQL: SELECT ... FROM pets WHERE id = $1
	GetPet(ctx context.Context, petID string) (*types.Pet, error)
}

type reminderLogStore interface {
	// SQL: SELECT EXISTS(... WHERE appointment_id = $1 AND channel = $2 AND type = 'appointment_reminder' AND status IN ('pending','sent'))
	HasReminderForAppointment(ctx context.Context, appointmentID string, channel types.Channel) (bool, error)
}

// reminderService scans upcoming appointments and dispatches appointment
// reminders on every eligible channel, at most once per appointment and
// channel.
type reminderService struct {
	bookings   reminderBookingStore
	logs       reminderLogStore
	settings   settingsSource
	dispatcher candidateDispatcher
	window     ReminderWindow
	logger     *slog.Logger
}

// NewReminderService creates the appointment reminder job.
func NewReminderService(
	bookings reminderBookingStore,
	logs reminderLogStore,
	settings settingsSource,
	dispatcher candidateDispatcher,
	window ReminderWindow,
	logger *slog.Logger,
) *reminderService {
	if logger == nil {
		logger = slog.Default()
	}
	return &reminderService{
		bookings:   bookings,
		logs:       logs,
		settings:   settings,
		dispatcher: dispatcher,
		window:     window,
		logger:     logger,
	}
}

// Run executes one reminder scan anchored at now.
func (s *reminderService) Run(ctx context.Context, now time.Time) (JobResult, error) {
	var res JobResult

	settings, err := s.settings.GetOrCreate(ctx, types.NotificationAppointmentReminder)
	if err != nil {
		return res, err
	}
	if !settings.ScheduleEnabled {
		s.logger.InfoContext(ctx, "reminder schedule disabled, skipping run")
		return res, nil
	}

	from := now.Add(s.window.Min)
	to := now.Add(s.window.Max)
	appts, err := s.bookings.ListUpcomingAppointments(ctx, from, to)
	if err != nil {
		return res, err
	}

	schedule := core.ScheduleFromSettings(settings)
	for _, appt := range appts {
		s.remind(ctx, appt, settings, schedule, &res)
	}

	s.logger.InfoContext(ctx, "reminder scan complete",
		"window_from", from,
		"window_to", to,
		"processed", res.Processed,
		"sent", res.Sent,
		"failed", res.Failed,
		"skipped", res.Skipped,
	)
	return res, nil
}

func (s *reminderService) remind(
	ctx context.Context,
	appt *types.Appointment,
	settings *types.NotificationSettings,
	schedule core.RetrySchedule,
	res *JobResult,
) {
	cust, err := s.bookings.GetCustomer(ctx, appt.CustomerID)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to load customer for reminder",
			"appointment_id", appt.ID, "customer_id", appt.CustomerID, "error", err)
		res.tally(1, 1)
		return
	}
	pet, err := s.bookings.GetPet(ctx, appt.PetID)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to load pet for reminder",
			"appointment_id", appt.ID, "pet_id", appt.PetID, "error", err)
		res.tally(1, 1)
		return
	}

	cand := core.Candidate{
		Type:          types.NotificationAppointmentReminder,
		CustomerID:    cust.ID,
		AppointmentID: appt.ID,
		PetID:         pet.ID,
		Email:         cust.Email,
		Phone:         cust.Phone,
		Data: types.ReminderData{
			CustomerName: cust.FullName(),
			PetName:      pet.Name,
			ServiceName:  appt.ServiceName,
			ScheduledAt:  appt.ScheduledAt,
		},
	}

	attempted, failed := 0, 0
	for _, cd := range core.EvaluateChannels(settings, cust) {
		if !cd.Decision.Eligible {
			s.logger.DebugContext(ctx, "reminder channel skipped",
				"appointment_id", appt.ID, "channel", cd.Channel, "reason", cd.Decision.Skip)
			continue
		}

		already, err := s.logs.HasReminderForAppointment(ctx, appt.ID, cd.Channel)
		if err != nil {
			// Without a dedup answer we do not send: a duplicate reminder is
			// worse than a missed one, and the next run will pick it up.
			s.logger.ErrorContext(ctx, "reminder dedup check failed",
				"appointment_id", appt.ID, "channel", cd.Channel, "error", err)
			continue
		}
		if already {
			s.logger.DebugContext(ctx, "reminder channel skipped",
				"appointment_id", appt.ID, "channel", cd.Channel, "reason", core.SkipAlreadyNotified)
			continue
		}

		attempted++
		outcome, err := s.dispatcher.Dispatch(ctx, cand, cd.Channel, schedule)
		if err != nil {
			s.logger.ErrorContext(ctx, "reminder dispatch failed",
				"appointment_id", appt.ID, "channel", cd.Channel, "error", err)
			failed++
			continue
		}
		if outcome.Status == types.LogStatusFailed {
			failed++
		}
	}

	res.tally(attempted, failed)
}
