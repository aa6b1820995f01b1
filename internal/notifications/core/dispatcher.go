package core

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"puppyday/internal/types"
)

// Dispatcher drives one notification through the write-ahead protocol:
// render, reserve a pending log row, call the transport, finalize the row.
//
// Transport errors never propagate out of Dispatch: they are absorbed into a
// failed Outcome so one dead provider cannot abort a batch job. Database
// errors on the log row DO propagate, because without the row the pipeline
// has no record that a send may have happened.
type Dispatcher struct {
	logs     LogStore
	recorder *Recorder
	channels map[types.Channel]Channel
	metrics  Metrics
	clock    types.Clock
	logger   types.Logger
}

// NewDispatcher creates a Dispatcher routing to the given channels.
func NewDispatcher(logs LogStore, recorder *Recorder, channels []Channel, metrics Metrics, clock types.Clock, logger types.Logger) *Dispatcher {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	if clock == nil {
		clock = types.RealClock{}
	}
	byKind := make(map[types.Channel]Channel, len(channels))
	for _, ch := range channels {
		byKind[ch.Kind()] = ch
	}
	return &Dispatcher{
		logs:     logs,
		recorder: recorder,
		channels: byKind,
		metrics:  metrics,
		clock:    clock,
		logger:   logger,
	}
}

// Dispatch sends one candidate through one channel. The returned Outcome is
// always meaningful when err is nil; err is non-nil only for pipeline
// failures (unknown channel, render failure, log row write failure), never
// for transport failures.
func (d *Dispatcher) Dispatch(ctx context.Context, cand Candidate, channel types.Channel, schedule RetrySchedule) (Outcome, error) {
	ch, ok := d.channels[channel]
	if !ok {
		return Outcome{}, types.NewAppError(types.ErrCodeInternalUnexpected,
			fmt.Sprintf("no channel registered for %q", channel), nil)
	}

	recipient := cand.Email
	if channel == types.ChannelSMS {
		recipient = cand.Phone
	}
	if recipient == "" {
		return Outcome{}, types.NewAppError(types.ErrCodeInternalUnexpected,
			fmt.Sprintf("candidate has no recipient for channel %q", channel), nil)
	}

	msg, err := ch.Render(cand.Data)
	if err != nil {
		return Outcome{}, types.NewAppError(types.ErrCodeInternalUnexpected,
			"failed to render notification", err)
	}

	l := &types.NotificationLog{
		ID:            "nlog_" + uuid.New().String(),
		Type:          cand.Type,
		Channel:       channel,
		Recipient:     recipient,
		CustomerID:    cand.CustomerID,
		AppointmentID: cand.AppointmentID,
		PetID:         cand.PetID,
		Subject:       msg.Subject,
		Content:       msg.Body,
		TemplateData:  cand.Data,
		TrackingID:    "trk_" + uuid.New().String(),
		IsTest:        cand.IsTest,
	}
	if err := d.logs.InsertPending(ctx, l); err != nil {
		return Outcome{}, err
	}

	return d.attempt(ctx, ch, l, msg, schedule)
}

// Redeliver re-drives a previously failed row that has been claimed back to
// 'pending'. The message is re-rendered from the stored template data so
// template fixes apply to retries; when the stored data is missing or no
// longer renders, the originally rendered content is reused.
func (d *Dispatcher) Redeliver(ctx context.Context, l *types.NotificationLog, schedule RetrySchedule) (Outcome, error) {
	ch, ok := d.channels[l.Channel]
	if !ok {
		return Outcome{}, types.NewAppError(types.ErrCodeInternalUnexpected,
			fmt.Sprintf("no channel registered for %q", l.Channel), nil)
	}

	msg := Message{Subject: l.Subject, Body: l.Content}
	if l.TemplateData != nil {
		if rendered, err := ch.Render(l.TemplateData); err == nil {
			msg = rendered
		} else {
			d.logger.Warn("re-render failed; reusing stored content",
				"log_id", l.ID,
				"error", err.Error(),
			)
		}
	}

	return d.attempt(ctx, ch, l, msg, schedule)
}

// attempt performs the transport call and finalizes the row. A panicking
// channel implementation is converted into a failed outcome.
func (d *Dispatcher) attempt(ctx context.Context, ch Channel, l *types.NotificationLog, msg Message, schedule RetrySchedule) (Outcome, error) {
	start := d.clock.Now()
	providerMsgID, sendErr := d.deliverSafely(ctx, ch, l.Recipient, msg, l.TrackingID)
	d.metrics.RecordLatency(ctx, l.Channel, d.clock.Now().Sub(start))

	if sendErr != nil {
		d.logger.Warn("notification delivery failed",
			"log_id", l.ID,
			"type", string(l.Type),
			"channel", string(l.Channel),
			"error", sendErr.Error(),
		)
		if err := d.recorder.RecordFailed(ctx, l, schedule, sendErr.Error(), d.clock.Now()); err != nil {
			return Outcome{}, err
		}
		return Outcome{LogID: l.ID, Status: types.LogStatusFailed, Err: sendErr}, nil
	}

	if err := d.recorder.RecordSent(ctx, l, providerMsgID); err != nil {
		// The message reached the customer but the row is stuck pending.
		// Surface the DB error; the row stays visible for reconciliation.
		return Outcome{}, err
	}

	d.logger.Info("notification sent",
		"log_id", l.ID,
		"type", string(l.Type),
		"channel", string(l.Channel),
		"provider_msg_id", providerMsgID,
	)
	return Outcome{LogID: l.ID, Status: types.LogStatusSent}, nil
}

// deliverSafely guards against panicking transport implementations.
func (d *Dispatcher) deliverSafely(ctx context.Context, ch Channel, recipient string, msg Message, trackingID string) (msgID string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = types.NewAppError(types.ErrCodeInternalUnexpected,
				fmt.Sprintf("channel panicked: %v", r), nil)
		}
	}()
	return ch.Deliver(ctx, recipient, msg, trackingID)
}
