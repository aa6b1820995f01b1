package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"puppyday/internal/core"
	notifcore "puppyday/internal/notifications/core"
	"puppyday/internal/scheduler"
	"puppyday/internal/types"
)

// Dispatcher runs one candidate through one channel.
type Dispatcher interface {
	Dispatch(ctx context.Context, cand notifcore.Candidate, channel types.Channel, schedule notifcore.RetrySchedule) (notifcore.Outcome, error)
}

// ConfirmationSender dispatches a booking confirmation for an appointment.
type ConfirmationSender interface {
	Confirm(ctx context.Context, appointmentID string) (*scheduler.DispatchReport, error)
}

// TestSendRequest is the request body for POST /v1/notifications/test.
// Recipient must match the channel: an email address or an E.164 phone
// number.
type TestSendRequest struct {
	Type      types.NotificationType `json:"type"`
	Channel   types.Channel          `json:"channel"`
	Recipient string                 `json:"recipient"`
}

// ConfirmationRequest is the request body for POST /v1/notifications/confirmations.
type ConfirmationRequest struct {
	AppointmentID string `json:"appointment_id"`
}

// NotificationsHandler serves the event-driven and admin send operations:
// booking confirmations and test sends.
type NotificationsHandler struct {
	dispatcher    Dispatcher
	confirmations ConfirmationSender
	settings      SettingsStore
	clock         types.Clock
	logger        *slog.Logger
}

// NewNotificationsHandler creates a NotificationsHandler.
func NewNotificationsHandler(
	dispatcher Dispatcher,
	confirmations ConfirmationSender,
	settings SettingsStore,
	clock types.Clock,
	logger *slog.Logger,
) *NotificationsHandler {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationsHandler{
		dispatcher:    dispatcher,
		confirmations: confirmations,
		settings:      settings,
		clock:         clock,
		logger:        logger,
	}
}

// RegisterRoutes mounts the send routes under the given router.
func (h *NotificationsHandler) RegisterRoutes(r chi.Router) {
	r.Post("/notifications/test", h.TestSend)
	r.Post("/notifications/confirmations", h.Confirm)
}

// Confirm handles POST /v1/notifications/confirmations, invoked by the
// booking system when a new appointment is created.
func (h *NotificationsHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req ConfirmationRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if req.AppointmentID == "" {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"appointment_id is required",
			nil,
		))
		return
	}

	report, err := h.confirmations.Confirm(r.Context(), req.AppointmentID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: report})
}

// TestSend handles POST /v1/notifications/test. It dispatches a real message
// through the configured provider with sample template data, flagged is_test
// so it never affects cooldowns or counters.
func (h *NotificationsHandler) TestSend(w http.ResponseWriter, r *http.Request) {
	var req TestSendRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := validateTestSend(&req); err != nil {
		core.Error(w, r, err)
		return
	}

	settings, err := h.settings.GetOrCreate(r.Context(), req.Type)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	cand := notifcore.Candidate{
		Type:       req.Type,
		CustomerID: "test",
		Data:       sampleTemplateData(req.Type, h.clock.Now()),
		IsTest:     true,
	}
	switch req.Channel {
	case types.ChannelEmail:
		cand.Email = req.Recipient
	case types.ChannelSMS:
		cand.Phone = req.Recipient
	}

	outcome, err := h.dispatcher.Dispatch(r.Context(), cand, req.Channel, notifcore.ScheduleFromSettings(settings))
	if err != nil {
		core.Error(w, r, err)
		return
	}

	resp := ResendResponse{LogID: outcome.LogID, Status: outcome.Status}
	if outcome.Err != nil {
		resp.Error = outcome.Err.Error()
	}
	h.logger.InfoContext(r.Context(), "test notification dispatched",
		"type", req.Type, "channel", req.Channel, "status", outcome.Status)
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: resp})
}

func validateTestSend(req *TestSendRequest) error {
	if !types.IsValidNotificationType(req.Type) {
		return types.NewAppError(types.ErrCodeValidationInvalidType, "unknown notification type: "+string(req.Type), nil)
	}
	if !types.IsValidChannel(req.Channel) {
		return types.NewAppError(types.ErrCodeValidationInvalidChannel, "unknown channel: "+string(req.Channel), nil)
	}
	switch req.Channel {
	case types.ChannelEmail:
		if !types.IsDeliverableEmail(req.Recipient) {
			return types.NewAppError(types.ErrCodeValidationInvalidEmail, "recipient is not a valid email address", nil)
		}
	case types.ChannelSMS:
		if !types.IsDeliverablePhone(req.Recipient) {
			return types.NewAppError(types.ErrCodeValidationInvalidPhone, "recipient is not a valid phone number", nil)
		}
	}
	return nil
}

// sampleTemplateData produces placeholder substitutions so a test send
// renders through the same templates as production traffic.
func sampleTemplateData(t types.NotificationType, now time.Time) types.TemplateData {
	slot := now.Add(24 * time.Hour).Truncate(time.Hour)
	switch t {
	case types.NotificationRetentionReminder:
		return types.RetentionData{
			CustomerName:     "Test Customer",
			PetName:          "Rex",
			LastGroomedAt:    now.Add(-8 * 7 * 24 * time.Hour),
			WeeksSinceGroom:  8,
			RecommendedWeeks: 6,
		}
	case types.NotificationWaitlistOffer:
		return types.WaitlistData{
			CustomerName: "Test Customer",
			ServiceName:  "Full Groom",
			SlotAt:       slot,
			ExpiresAt:    now.Add(2 * time.Hour),
		}
	case types.NotificationBookingConfirmation:
		return types.ConfirmationData{
			CustomerName: "Test Customer",
			PetName:      "Rex",
			ServiceName:  "Full Groom",
			ScheduledAt:  slot,
		}
	default:
		return types.ReminderData{
			CustomerName: "Test Customer",
			PetName:      "Rex",
			ServiceName:  "Full Groom",
			ScheduledAt:  slot,
		}
	}
}
