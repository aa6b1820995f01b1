package scheduler

import (
	"context"
	"log/slog"

	"puppyday/internal/notifications/core"
	"puppyday/internal/types"
)

type confirmationBookingStore interface {
	// SQL: SELECT ... FROM appointments WHERE id = $1
	GetAppointment(ctx context.Context, appointmentID string) (*types.Appointment, error)
	// SQL: SELECT ... FROM customers WHERE id = $1
	GetCustomer(ctx context.Context, customerID string) (*types.Customer, error)
	// SQL: SELECT ... FROM pets WHERE id = $1
	GetPet(ctx context.Context, petID string) (*types.Pet, error)
}

// confirmationService sends booking confirmations when the booking system
// reports a new appointment.
type confirmationService struct {
	bookings   confirmationBookingStore
	settings   settingsSource
	dispatcher candidateDispatcher
	logger     *slog.Logger
}

// NewConfirmationService creates the booking confirmation flow.
func NewConfirmationService(
	bookings confirmationBookingStore,
	settings settingsSource,
	dispatcher candidateDispatcher,
	logger *slog.Logger,
) *confirmationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &confirmationService{
		bookings:   bookings,
		settings:   settings,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Confirm dispatches a booking confirmation for the appointment on every
// eligible channel.
func (s *confirmationService) Confirm(ctx context.Context, appointmentID string) (*DispatchReport, error) {
	appt, err := s.bookings.GetAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	cust, err := s.bookings.GetCustomer(ctx, appt.CustomerID)
	if err != nil {
		return nil, err
	}
	pet, err := s.bookings.GetPet(ctx, appt.PetID)
	if err != nil {
		return nil, err
	}
	settings, err := s.settings.GetOrCreate(ctx, types.NotificationBookingConfirmation)
	if err != nil {
		return nil, err
	}

	cand := core.Candidate{
		Type:          types.NotificationBookingConfirmation,
		CustomerID:    cust.ID,
		AppointmentID: appt.ID,
		PetID:         pet.ID,
		Email:         cust.Email,
		Phone:         cust.Phone,
		Data: types.ConfirmationData{
			CustomerName: cust.FullName(),
			PetName:      pet.Name,
			ServiceName:  appt.ServiceName,
			ScheduledAt:  appt.ScheduledAt,
		},
	}

	report := &DispatchReport{CustomerID: cust.ID}
	schedule := core.ScheduleFromSettings(settings)
	for _, cd := range core.EvaluateChannels(settings, cust) {
		if !cd.Decision.Eligible {
			s.logger.DebugContext(ctx, "confirmation channel skipped",
				"appointment_id", appt.ID, "channel", cd.Channel, "reason", cd.Decision.Skip)
			continue
		}

		report.Attempted++
		outcome, err := s.dispatcher.Dispatch(ctx, cand, cd.Channel, schedule)
		if err != nil {
			s.logger.ErrorContext(ctx, "confirmation dispatch failed",
				"appointment_id", appt.ID, "channel", cd.Channel, "error", err)
			continue
		}
		report.Outcomes = append(report.Outcomes, outcome)
		if outcome.Status == types.LogStatusSent {
			report.Delivered++
		}
	}

	s.logger.InfoContext(ctx, "booking confirmation dispatched",
		"appointment_id", appt.ID,
		"customer_id", cust.ID,
		"attempted", report.Attempted,
		"delivered", report.Delivered,
	)
	return report, nil
}
