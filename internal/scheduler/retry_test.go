package scheduler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"puppyday/internal/types"
)

func retryRow(id string, t types.NotificationType) *types.NotificationLog {
	return &types.NotificationLog{
		ID:           id,
		Type:         t,
		Channel:      types.ChannelEmail,
		Recipient:    "maria@example.com",
		Status:       types.LogStatusFailed,
		AttemptCount: 1,
		NextRetryAt:  testNow.Add(-time.Minute),
	}
}

func retryFixture(rows ...*types.NotificationLog) (*fakeRetryLogs, *fakeLocks, *fakeSettings, *fakeRedeliverer) {
	return &fakeRetryLogs{rows: rows}, &fakeLocks{}, &fakeSettings{}, &fakeRedeliverer{}
}

func TestRetryRunRedeliversBatch(t *testing.T) {
	logs, locks, settings, redeliverer := retryFixture(
		retryRow("nlog_1", types.NotificationAppointmentReminder),
		retryRow("nlog_2", types.NotificationAppointmentReminder),
	)
	svc := NewRetryService(logs, locks, settings, redeliverer, 50, 5*time.Minute, nil)

	res, err := svc.Run(context.Background(), testNow)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Processed != 2 || res.Succeeded != 2 || res.Failed != 0 {
		t.Errorf("result = %+v", res)
	}
	if res.DurationMS < 0 {
		t.Errorf("duration = %d", res.DurationMS)
	}
	if logs.listLimit != 50 || !logs.listNow.Equal(testNow) {
		t.Errorf("list args = %v, %d", logs.listNow, logs.listLimit)
	}
	if locks.acquiredJob != types.JobRetry || locks.ttl != 5*time.Minute {
		t.Errorf("lock args = %v, %v", locks.acquiredJob, locks.ttl)
	}
	if !locks.released {
		t.Error("lock was not released")
	}
}

func TestRetryRunLockBusy(t *testing.T) {
	logs, locks, settings, redeliverer := retryFixture(retryRow("nlog_1", types.NotificationAppointmentReminder))
	locks.denied = true
	svc := NewRetryService(logs, locks, settings, redeliverer, 50, 5*time.Minute, nil)

	_, err := svc.Run(context.Background(), testNow)
	if !errors.Is(err, ErrJobAlreadyRunning) {
		t.Fatalf("err = %v, want ErrJobAlreadyRunning", err)
	}
	if len(logs.claims) != 0 || len(redeliverer.calls) != 0 {
		t.Error("work performed despite busy lock")
	}
}

func TestRetryRunLockReleasedOnListError(t *testing.T) {
	logs, locks, settings, redeliverer := retryFixture()
	logs.listErr = errors.New("connection reset")
	svc := NewRetryService(logs, locks, settings, redeliverer, 50, 5*time.Minute, nil)

	if _, err := svc.Run(context.Background(), testNow); err == nil {
		t.Fatal("expected error")
	}
	if !locks.released {
		t.Error("lock was not released")
	}
}

func TestRetryRunSkipsUnclaimedRows(t *testing.T) {
	logs, locks, settings, redeliverer := retryFixture(
		retryRow("nlog_1", types.NotificationAppointmentReminder),
		retryRow("nlog_2", types.NotificationAppointmentReminder),
	)
	logs.claimDenied = map[string]bool{"nlog_1": true}
	svc := NewRetryService(logs, locks, settings, redeliverer, 50, 5*time.Minute, nil)

	res, err := svc.Run(context.Background(), testNow)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Processed != 1 || res.Succeeded != 1 {
		t.Errorf("result = %+v", res)
	}
	if len(redeliverer.calls) != 1 || redeliverer.calls[0].logID != "nlog_2" {
		t.Fatalf("redeliver calls = %+v", redeliverer.calls)
	}
}

func TestRetryRunFailuresCounted(t *testing.T) {
	logs, locks, settings, redeliverer := retryFixture(
		retryRow("nlog_1", types.NotificationAppointmentReminder),
		retryRow("nlog_2", types.NotificationAppointmentReminder),
	)
	redeliverer.failIDs = map[string]bool{"nlog_2": true}
	svc := NewRetryService(logs, locks, settings, redeliverer, 50, 5*time.Minute, nil)

	res, err := svc.Run(context.Background(), testNow)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Processed != 2 || res.Succeeded != 1 || res.Failed != 1 || res.ErrorCount != 1 {
		t.Errorf("result = %+v", res)
	}
	if len(res.Errors) != 1 || res.Errors[0].LogID != "nlog_2" || res.Errors[0].Error != errTransport.Error() {
		t.Errorf("errors = %+v", res.Errors)
	}
}

func TestRetryRunErrorListCapped(t *testing.T) {
	var rows []*types.NotificationLog
	failIDs := make(map[string]bool)
	for i := 0; i < 15; i++ {
		id := fmt.Sprintf("nlog_%d", i)
		rows = append(rows, retryRow(id, types.NotificationAppointmentReminder))
		failIDs[id] = true
	}
	logs, locks, settings, redeliverer := retryFixture(rows...)
	redeliverer.failIDs = failIDs
	svc := NewRetryService(logs, locks, settings, redeliverer, 50, 5*time.Minute, nil)

	res, err := svc.Run(context.Background(), testNow)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ErrorCount != 15 {
		t.Errorf("error count = %d, want 15", res.ErrorCount)
	}
	if len(res.Errors) != maxReportedErrors {
		t.Errorf("errors len = %d, want %d", len(res.Errors), maxReportedErrors)
	}
}

func TestRetryRunSettingsResolvedOncePerType(t *testing.T) {
	logs, locks, settings, redeliverer := retryFixture(
		retryRow("nlog_1", types.NotificationAppointmentReminder),
		retryRow("nlog_2", types.NotificationAppointmentReminder),
		retryRow("nlog_3", types.NotificationWaitlistOffer),
	)
	svc := NewRetryService(logs, locks, settings, redeliverer, 50, 5*time.Minute, nil)

	if _, err := svc.Run(context.Background(), testNow); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(settings.calls) != 2 {
		t.Errorf("settings lookups = %v, want one per type", settings.calls)
	}
}

func TestRetryRunSettingsErrorLeavesRowsUnclaimed(t *testing.T) {
	logs, locks, settings, redeliverer := retryFixture(retryRow("nlog_1", types.NotificationAppointmentReminder))
	settings.err = errors.New("connection reset")
	svc := NewRetryService(logs, locks, settings, redeliverer, 50, 5*time.Minute, nil)

	if _, err := svc.Run(context.Background(), testNow); err == nil {
		t.Fatal("expected error")
	}
	if len(logs.claims) != 0 {
		t.Errorf("claims = %v, want none", logs.claims)
	}
	if len(redeliverer.calls) != 0 {
		t.Errorf("redeliver calls = %d, want 0", len(redeliverer.calls))
	}
	if !locks.released {
		t.Error("lock was not released")
	}
}

func TestRetryRunRedeliverErrorReleasesClaim(t *testing.T) {
	logs, locks, settings, redeliverer := retryFixture(
		retryRow("nlog_1", types.NotificationAppointmentReminder),
		retryRow("nlog_2", types.NotificationAppointmentReminder),
	)
	redeliverer.err = errors.New("no channel registered for \"email\"")
	svc := NewRetryService(logs, locks, settings, redeliverer, 50, 5*time.Minute, nil)

	res, err := svc.Run(context.Background(), testNow)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Processed != 2 || res.Failed != 2 || res.ErrorCount != 2 {
		t.Errorf("result = %+v", res)
	}
	want := []string{"nlog_1", "nlog_2"}
	if len(logs.releases) != 2 || logs.releases[0] != want[0] || logs.releases[1] != want[1] {
		t.Errorf("released claims = %v, want %v", logs.releases, want)
	}
}

func TestRetryRunClaimErrorRecorded(t *testing.T) {
	logs, locks, settings, redeliverer := retryFixture(retryRow("nlog_1", types.NotificationAppointmentReminder))
	logs.claimErr = errors.New("connection reset")
	svc := NewRetryService(logs, locks, settings, redeliverer, 50, 5*time.Minute, nil)

	res, err := svc.Run(context.Background(), testNow)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Processed != 0 || res.ErrorCount != 1 {
		t.Errorf("result = %+v", res)
	}
	if len(redeliverer.calls) != 0 {
		t.Errorf("redeliver calls = %d, want 0", len(redeliverer.calls))
	}
}
