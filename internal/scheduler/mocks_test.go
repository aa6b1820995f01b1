package scheduler

import (
	"context"
	"errors"
	"time"

	"puppyday/internal/notifications/core"
	"puppyday/internal/types"
)

var errTransport = errors.New("provider unavailable")

// Hand-written fakes. Each records the calls it receives and returns
// whatever its fields are primed with.

type fakeSettings struct {
	rows  map[types.NotificationType]*types.NotificationSettings
	err   error
	calls []types.NotificationType
}

func (f *fakeSettings) GetOrCreate(_ context.Context, t types.NotificationType) (*types.NotificationSettings, error) {
	f.calls = append(f.calls, t)
	if f.err != nil {
		return nil, f.err
	}
	if s, ok := f.rows[t]; ok {
		return s, nil
	}
	return types.DefaultSettings(t), nil
}

type dispatchCall struct {
	cand     core.Candidate
	channel  types.Channel
	schedule core.RetrySchedule
}

type fakeDispatcher struct {
	calls []dispatchCall
	// failChannels lists channels whose dispatch yields a failed outcome.
	failChannels map[types.Channel]bool
	err          error
}

func (f *fakeDispatcher) Dispatch(_ context.Context, cand core.Candidate, channel types.Channel, schedule core.RetrySchedule) (core.Outcome, error) {
	f.calls = append(f.calls, dispatchCall{cand: cand, channel: channel, schedule: schedule})
	if f.err != nil {
		return core.Outcome{}, f.err
	}
	if f.failChannels[channel] {
		return core.Outcome{LogID: "nlog_fail", Status: types.LogStatusFailed}, nil
	}
	return core.Outcome{LogID: "nlog_ok", Status: types.LogStatusSent}, nil
}

type fakeBookings struct {
	appts     []*types.Appointment
	customers map[string]*types.Customer
	pets      map[string]*types.Pet
	rows      []*types.RetentionCandidateRow
	next      *types.WaitlistEntry

	listFrom, listTo time.Time
	custErr          error
	apptErr          error

	retentionFreq int
}

func (f *fakeBookings) ListUpcomingAppointments(_ context.Context, from, to time.Time) ([]*types.Appointment, error) {
	f.listFrom, f.listTo = from, to
	return f.appts, nil
}

func (f *fakeBookings) GetAppointment(_ context.Context, id string) (*types.Appointment, error) {
	if f.apptErr != nil {
		return nil, f.apptErr
	}
	for _, a := range f.appts {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, types.NewAppError(types.ErrCodeNotFoundAppt, "appointment not found", nil)
}

func (f *fakeBookings) GetCustomer(_ context.Context, id string) (*types.Customer, error) {
	if f.custErr != nil {
		return nil, f.custErr
	}
	c, ok := f.customers[id]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundCustomer, "customer not found", nil)
	}
	return c, nil
}

func (f *fakeBookings) GetPet(_ context.Context, id string) (*types.Pet, error) {
	p, ok := f.pets[id]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundCustomer, "pet not found", nil)
	}
	return p, nil
}

func (f *fakeBookings) ListRetentionCandidates(_ context.Context, defaultFrequencyWeeks int) ([]*types.RetentionCandidateRow, error) {
	f.retentionFreq = defaultFrequencyWeeks
	return f.rows, nil
}

func (f *fakeBookings) NextWaitlistEntry(_ context.Context, _ string) (*types.WaitlistEntry, error) {
	return f.next, nil
}

type fakeReminderLogs struct {
	// keyed by appointmentID + "/" + channel
	has    map[string]bool
	hasErr error
	checks []string
}

func (f *fakeReminderLogs) HasReminderForAppointment(_ context.Context, appointmentID string, channel types.Channel) (bool, error) {
	key := appointmentID + "/" + string(channel)
	f.checks = append(f.checks, key)
	if f.hasErr != nil {
		return false, f.hasErr
	}
	return f.has[key], nil
}

type fakeRetentionLogs struct {
	notified    bool
	notifiedPet string
	err         error
	since       time.Time
	pet         string
}

func (f *fakeRetentionLogs) WasPetNotifiedSince(_ context.Context, petID string, _ types.NotificationType, since time.Time) (bool, error) {
	f.pet = petID
	f.since = since
	if f.err != nil {
		return false, f.err
	}
	if f.notifiedPet != "" {
		return petID == f.notifiedPet, nil
	}
	return f.notified, nil
}

type fakeRetryLogs struct {
	rows      []*types.NotificationLog
	listErr   error
	listNow   time.Time
	listLimit int

	claimDenied map[string]bool
	claimErr    error
	claims      []string
	releases    []string
	releaseErr  error
}

func (f *fakeRetryLogs) ListRetryable(_ context.Context, now time.Time, limit int) ([]*types.NotificationLog, error) {
	f.listNow = now
	f.listLimit = limit
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.rows, nil
}

func (f *fakeRetryLogs) ClaimForRetry(_ context.Context, logID string) (bool, error) {
	f.claims = append(f.claims, logID)
	if f.claimErr != nil {
		return false, f.claimErr
	}
	return !f.claimDenied[logID], nil
}

func (f *fakeRetryLogs) ReleaseClaim(_ context.Context, logID string) error {
	f.releases = append(f.releases, logID)
	return f.releaseErr
}

type fakeLocks struct {
	denied     bool
	acquireErr error

	acquiredJob types.JobName
	ttl         time.Duration
	owner       string
	released    bool
}

func (f *fakeLocks) TryAcquire(_ context.Context, job types.JobName, owner string, ttl time.Duration) (bool, error) {
	f.acquiredJob = job
	f.owner = owner
	f.ttl = ttl
	if f.acquireErr != nil {
		return false, f.acquireErr
	}
	return !f.denied, nil
}

func (f *fakeLocks) Release(_ context.Context, _ types.JobName, owner string) error {
	if owner == f.owner {
		f.released = true
	}
	return nil
}

type redeliverCall struct {
	logID    string
	schedule core.RetrySchedule
}

type fakeRedeliverer struct {
	calls []redeliverCall
	// failIDs lists log IDs whose redelivery yields a failed outcome.
	failIDs map[string]bool
	err     error
}

func (f *fakeRedeliverer) Redeliver(_ context.Context, l *types.NotificationLog, schedule core.RetrySchedule) (core.Outcome, error) {
	f.calls = append(f.calls, redeliverCall{logID: l.ID, schedule: schedule})
	if f.err != nil {
		return core.Outcome{}, f.err
	}
	if f.failIDs[l.ID] {
		return core.Outcome{LogID: l.ID, Status: types.LogStatusFailed, Err: errTransport}, nil
	}
	return core.Outcome{LogID: l.ID, Status: types.LogStatusSent}, nil
}
