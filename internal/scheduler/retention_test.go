package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"puppyday/internal/types"
)

func testPolicy() RetentionPolicy {
	return RetentionPolicy{DefaultFrequencyWeeks: 8, Cooldown: 30 * 24 * time.Hour}
}

func retentionRow(lastCompleted time.Time) *types.RetentionCandidateRow {
	return &types.RetentionCandidateRow{
		Pet: types.Pet{ID: "pet_1", CustomerID: "cust_1", Name: "Biscuit"},
		Owner: &types.Customer{
			ID: "cust_1", FirstName: "Maria", LastName: "Lopez",
			Email: "maria@example.com", Phone: "+15551234567",
		},
		GroomingFrequencyWeeks: 6,
		LastCompletedAt:        lastCompleted,
	}
}

func retentionFixture(rows ...*types.RetentionCandidateRow) (*fakeBookings, *fakeRetentionLogs, *fakeSettings, *fakeDispatcher) {
	return &fakeBookings{rows: rows}, &fakeRetentionLogs{}, &fakeSettings{}, &fakeDispatcher{}
}

func TestRetentionRunDispatchesOverduePet(t *testing.T) {
	last := testNow.Add(-10 * 7 * 24 * time.Hour)
	bookings, logs, settings, dispatcher := retentionFixture(retentionRow(last))
	svc := NewRetentionService(bookings, logs, settings, dispatcher, testPolicy(), nil)

	res, err := svc.Run(context.Background(), testNow)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := JobResult{Processed: 1, Sent: 1}
	if res != want {
		t.Fatalf("result = %+v, want %+v", res, want)
	}
	if bookings.retentionFreq != 8 {
		t.Errorf("default frequency = %d, want 8", bookings.retentionFreq)
	}
	if len(dispatcher.calls) != 2 {
		t.Fatalf("dispatch calls = %d, want 2", len(dispatcher.calls))
	}

	data, ok := dispatcher.calls[0].cand.Data.(types.RetentionData)
	if !ok {
		t.Fatalf("candidate data type = %T", dispatcher.calls[0].cand.Data)
	}
	if data.WeeksSinceGroom != 10 || data.RecommendedWeeks != 6 {
		t.Errorf("template data = %+v", data)
	}
	if !data.LastGroomedAt.Equal(last) {
		t.Errorf("last groomed = %v, want %v", data.LastGroomedAt, last)
	}
}

func TestRetentionRunNotDueIgnored(t *testing.T) {
	// Groomed 2 weeks ago on a 6-week cadence: nothing to do yet.
	bookings, logs, settings, dispatcher := retentionFixture(retentionRow(testNow.Add(-2 * 7 * 24 * time.Hour)))
	svc := NewRetentionService(bookings, logs, settings, dispatcher, testPolicy(), nil)

	res, err := svc.Run(context.Background(), testNow)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res != (JobResult{}) {
		t.Errorf("result = %+v, want zero", res)
	}
}

func TestRetentionRunSkips(t *testing.T) {
	overdue := testNow.Add(-10 * 7 * 24 * time.Hour)

	tests := []struct {
		name string
		row  *types.RetentionCandidateRow
	}{
		{"never groomed", retentionRow(time.Time{})},
		{"owner missing", func() *types.RetentionCandidateRow {
			r := retentionRow(overdue)
			r.Owner = nil
			return r
		}()},
		{"marketing opt-out", func() *types.RetentionCandidateRow {
			r := retentionRow(overdue)
			r.Owner.MarketingOptOut = true
			return r
		}()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bookings, logs, settings, dispatcher := retentionFixture(tt.row)
			svc := NewRetentionService(bookings, logs, settings, dispatcher, testPolicy(), nil)

			res, err := svc.Run(context.Background(), testNow)
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			want := JobResult{Processed: 1, Skipped: 1}
			if res != want {
				t.Errorf("result = %+v, want %+v", res, want)
			}
			if len(dispatcher.calls) != 0 {
				t.Errorf("dispatch calls = %d, want 0", len(dispatcher.calls))
			}
		})
	}
}

func TestRetentionRunCooldownSuppresses(t *testing.T) {
	bookings, logs, settings, dispatcher := retentionFixture(retentionRow(testNow.Add(-10 * 7 * 24 * time.Hour)))
	logs.notified = true
	svc := NewRetentionService(bookings, logs, settings, dispatcher, testPolicy(), nil)

	res, err := svc.Run(context.Background(), testNow)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := JobResult{Processed: 1, Skipped: 1}
	if res != want {
		t.Errorf("result = %+v, want %+v", res, want)
	}
	if logs.pet != "pet_1" {
		t.Errorf("cooldown checked pet %q", logs.pet)
	}
	if !logs.since.Equal(testNow.Add(-30 * 24 * time.Hour)) {
		t.Errorf("cooldown since = %v", logs.since)
	}
}

func TestRetentionRunCooldownIsPerPet(t *testing.T) {
	// Two overdue pets share an owner. A recent reminder for the first must
	// not suppress the second.
	overdue := testNow.Add(-10 * 7 * 24 * time.Hour)
	sibling := retentionRow(overdue)
	sibling.Pet = types.Pet{ID: "pet_2", CustomerID: "cust_1", Name: "Waffle"}

	bookings, logs, settings, dispatcher := retentionFixture(retentionRow(overdue), sibling)
	logs.notifiedPet = "pet_1"
	svc := NewRetentionService(bookings, logs, settings, dispatcher, testPolicy(), nil)

	res, err := svc.Run(context.Background(), testNow)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := JobResult{Processed: 2, Sent: 1, Skipped: 1}
	if res != want {
		t.Fatalf("result = %+v, want %+v", res, want)
	}
	if len(dispatcher.calls) != 2 {
		t.Fatalf("dispatch calls = %d, want 2", len(dispatcher.calls))
	}
	for _, call := range dispatcher.calls {
		if call.cand.PetID != "pet_2" {
			t.Errorf("dispatched pet %q, want pet_2", call.cand.PetID)
		}
	}
}

func TestRetentionRunCooldownCheckError(t *testing.T) {
	bookings, logs, settings, dispatcher := retentionFixture(retentionRow(testNow.Add(-10 * 7 * 24 * time.Hour)))
	logs.err = errors.New("connection reset")
	svc := NewRetentionService(bookings, logs, settings, dispatcher, testPolicy(), nil)

	res, err := svc.Run(context.Background(), testNow)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := JobResult{Processed: 1, Failed: 1}
	if res != want {
		t.Errorf("result = %+v, want %+v", res, want)
	}
}

func TestRetentionRunScheduleDisabled(t *testing.T) {
	bookings, logs, settings, dispatcher := retentionFixture(retentionRow(testNow.Add(-10 * 7 * 24 * time.Hour)))
	disabled := types.DefaultSettings(types.NotificationRetentionReminder)
	disabled.ScheduleEnabled = false
	settings.rows = map[types.NotificationType]*types.NotificationSettings{
		types.NotificationRetentionReminder: disabled,
	}
	svc := NewRetentionService(bookings, logs, settings, dispatcher, testPolicy(), nil)

	res, err := svc.Run(context.Background(), testNow)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res != (JobResult{}) {
		t.Errorf("result = %+v, want zero", res)
	}
}
