package scheduler

import (
	"context"
	"log/slog"
	"time"

	"puppyday/internal/notifications/core"
	"puppyday/internal/types"
)

type waitlistBookingStore interface {
	// SQL: SELECT ... FROM waitlist_entries WHERE service_name = $1 ORDER BY priority, created_at LIMIT 1
	NextWaitlistEntry(ctx context.Context, serviceName string) (*types.WaitlistEntry, error)
	// SQL: SELECT ... FROM customers WHERE id = $1
	GetCustomer(ctx context.Context, customerID string) (*types.Customer, error)
}

// OfferResult reports one waitlist offer: who was at the head of the queue
// and what was sent to them. Nil when the waitlist was empty.
type OfferResult struct {
	DispatchReport
	EntryID     string    `json:"entry_id"`
	ServiceName string    `json:"service_name"`
	ExpiresAt   time.Time `json:"expires_at,omitempty"`
}

// waitlistService offers freed appointment slots to the head of the
// waitlist. It is driven by slot-freed events, not by cron.
type waitlistService struct {
	bookings   waitlistBookingStore
	settings   settingsSource
	dispatcher candidateDispatcher
	offerTTL   time.Duration
	logger     *slog.Logger
}

// NewWaitlistService creates the waitlist offer flow. offerTTL bounds how
// long an offer stays open; zero means offers carry no expiry.
func NewWaitlistService(
	bookings waitlistBookingStore,
	settings settingsSource,
	dispatcher candidateDispatcher,
	offerTTL time.Duration,
	logger *slog.Logger,
) *waitlistService {
	if logger == nil {
		logger = slog.Default()
	}
	return &waitlistService{
		bookings:   bookings,
		settings:   settings,
		dispatcher: dispatcher,
		offerTTL:   offerTTL,
		logger:     logger,
	}
}

// OfferSlot notifies the highest-priority waitlist entry for the service
// that a slot at slotAt has opened up. Returns (nil, nil) when the waitlist
// for that service is empty.
func (s *waitlistService) OfferSlot(ctx context.Context, serviceName string, slotAt, now time.Time) (*OfferResult, error) {
	entry, err := s.bookings.NextWaitlistEntry(ctx, serviceName)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		s.logger.InfoContext(ctx, "no waitlist entries for freed slot",
			"service_name", serviceName, "slot_at", slotAt)
		return nil, nil
	}

	cust, err := s.bookings.GetCustomer(ctx, entry.CustomerID)
	if err != nil {
		return nil, err
	}
	settings, err := s.settings.GetOrCreate(ctx, types.NotificationWaitlistOffer)
	if err != nil {
		return nil, err
	}

	var expiresAt time.Time
	if s.offerTTL > 0 {
		expiresAt = now.Add(s.offerTTL)
	}

	cand := core.Candidate{
		Type:       types.NotificationWaitlistOffer,
		CustomerID: cust.ID,
		PetID:      entry.PetID,
		Email:      cust.Email,
		Phone:      cust.Phone,
		Data: types.WaitlistData{
			CustomerName: cust.FullName(),
			ServiceName:  entry.ServiceName,
			SlotAt:       slotAt,
			ExpiresAt:    expiresAt,
		},
	}

	res := &OfferResult{
		DispatchReport: DispatchReport{CustomerID: cust.ID},
		EntryID:        entry.ID,
		ServiceName:    entry.ServiceName,
		ExpiresAt:      expiresAt,
	}

	schedule := core.ScheduleFromSettings(settings)
	for _, cd := range core.EvaluateChannels(settings, cust) {
		if !cd.Decision.Eligible {
			s.logger.DebugContext(ctx, "waitlist offer channel skipped",
				"entry_id", entry.ID, "channel", cd.Channel, "reason", cd.Decision.Skip)
			continue
		}

		res.Attempted++
		outcome, err := s.dispatcher.Dispatch(ctx, cand, cd.Channel, schedule)
		if err != nil {
			s.logger.ErrorContext(ctx, "waitlist offer dispatch failed",
				"entry_id", entry.ID, "channel", cd.Channel, "error", err)
			continue
		}
		res.Outcomes = append(res.Outcomes, outcome)
		if outcome.Status == types.LogStatusSent {
			res.Delivered++
		}
	}

	s.logger.InfoContext(ctx, "waitlist offer dispatched",
		"entry_id", entry.ID,
		"customer_id", cust.ID,
		"service_name", entry.ServiceName,
		"attempted", res.Attempted,
		"delivered", res.Delivered,
	)
	return res, nil
}
