package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"puppyday/internal/db"
	notifcore "puppyday/internal/notifications/core"
	"puppyday/internal/scheduler"
	"puppyday/internal/types"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

var clockNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

var errTransportTest = errors.New("provider unavailable")

type mockScanJob struct {
	result  scheduler.JobResult
	err     error
	calls   int
	lastNow time.Time
}

func (m *mockScanJob) Run(_ context.Context, now time.Time) (scheduler.JobResult, error) {
	m.calls++
	m.lastNow = now
	return m.result, m.err
}

type mockRetryJob struct {
	result scheduler.RetryResult
	err    error
	calls  int
}

func (m *mockRetryJob) Run(context.Context, time.Time) (scheduler.RetryResult, error) {
	m.calls++
	return m.result, m.err
}

type mockSettingsStore struct {
	rows    map[types.NotificationType]*types.NotificationSettings
	getErr  error
	updated map[types.NotificationType]*db.SettingsUpdate
	gets    []types.NotificationType
}

func (m *mockSettingsStore) GetOrCreate(_ context.Context, t types.NotificationType) (*types.NotificationSettings, error) {
	m.gets = append(m.gets, t)
	if m.getErr != nil {
		return nil, m.getErr
	}
	if s, ok := m.rows[t]; ok {
		return s, nil
	}
	return types.DefaultSettings(t), nil
}

func (m *mockSettingsStore) Update(_ context.Context, t types.NotificationType, update *db.SettingsUpdate) (*types.NotificationSettings, error) {
	if m.updated == nil {
		m.updated = make(map[types.NotificationType]*db.SettingsUpdate)
	}
	m.updated[t] = update
	s := types.DefaultSettings(t)
	return s, nil
}

type mockLogStore struct {
	logs        map[string]*types.NotificationLog
	listLogs    []*types.NotificationLog
	listErr     error
	lastFilter  types.LogFilter
	claimDenied bool
	claims      []string
	releases    []string
	delivered   []string
	clicked     []string
}

func (m *mockLogStore) List(_ context.Context, filter types.LogFilter) ([]*types.NotificationLog, types.PageInfo, error) {
	m.lastFilter = filter
	if m.listErr != nil {
		return nil, types.PageInfo{}, m.listErr
	}
	return m.listLogs, types.PageInfo{}, nil
}

func (m *mockLogStore) GetByID(_ context.Context, logID string) (*types.NotificationLog, error) {
	l, ok := m.logs[logID]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundLog, "notification log not found", nil)
	}
	return l, nil
}

func (m *mockLogStore) ClaimForRetry(_ context.Context, logID string) (bool, error) {
	m.claims = append(m.claims, logID)
	return !m.claimDenied, nil
}

func (m *mockLogStore) ReleaseClaim(_ context.Context, logID string) error {
	m.releases = append(m.releases, logID)
	return nil
}

func (m *mockLogStore) MarkDelivered(_ context.Context, trackingID string) error {
	m.delivered = append(m.delivered, trackingID)
	return nil
}

func (m *mockLogStore) MarkClicked(_ context.Context, trackingID string) error {
	m.clicked = append(m.clicked, trackingID)
	return nil
}

type mockRedeliverer struct {
	outcome notifcore.Outcome
	err     error
	gotLog  *types.NotificationLog
}

func (m *mockRedeliverer) Redeliver(_ context.Context, l *types.NotificationLog, _ notifcore.RetrySchedule) (notifcore.Outcome, error) {
	m.gotLog = l
	return m.outcome, m.err
}

type mockDispatcher struct {
	outcome notifcore.Outcome
	err     error
	gotCand notifcore.Candidate
	gotCh   types.Channel
	calls   int
}

func (m *mockDispatcher) Dispatch(_ context.Context, cand notifcore.Candidate, ch types.Channel, _ notifcore.RetrySchedule) (notifcore.Outcome, error) {
	m.calls++
	m.gotCand = cand
	m.gotCh = ch
	return m.outcome, m.err
}

type mockConfirmations struct {
	report *scheduler.DispatchReport
	err    error
	gotID  string
}

func (m *mockConfirmations) Confirm(_ context.Context, appointmentID string) (*scheduler.DispatchReport, error) {
	m.gotID = appointmentID
	return m.report, m.err
}
