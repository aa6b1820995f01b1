package core

import (
	"testing"

	"puppyday/internal/types"
)

func eligibilitySettings() *types.NotificationSettings {
	return &types.NotificationSettings{
		Type:         types.NotificationAppointmentReminder,
		EmailEnabled: true,
		SMSEnabled:   true,
	}
}

func eligibilityCustomer() *types.Customer {
	return &types.Customer{
		ID:        "cust_1",
		FirstName: "Maria",
		LastName:  "Lopez",
		Email:     "maria@example.com",
		Phone:     "+15551234567",
	}
}

func decisionFor(t *testing.T, decisions []ChannelDecision, ch types.Channel) EligibilityDecision {
	t.Helper()
	for _, cd := range decisions {
		if cd.Channel == ch {
			return cd.Decision
		}
	}
	t.Fatalf("no decision for channel %q", ch)
	return EligibilityDecision{}
}

func TestEvaluateChannels_BothEligible(t *testing.T) {
	decisions := EvaluateChannels(eligibilitySettings(), eligibilityCustomer())

	if len(decisions) != 2 {
		t.Fatalf("expected 2 decisions, got %d", len(decisions))
	}
	if d := decisionFor(t, decisions, types.ChannelEmail); !d.Eligible {
		t.Errorf("expected email eligible, got skip %q", d.Skip)
	}
	if d := decisionFor(t, decisions, types.ChannelSMS); !d.Eligible {
		t.Errorf("expected sms eligible, got skip %q", d.Skip)
	}
}

func TestEvaluateChannels_Skips(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*types.NotificationSettings, *types.Customer)
		channel  types.Channel
		wantSkip SkipReason
	}{
		{
			name:     "email disabled for type",
			mutate:   func(s *types.NotificationSettings, _ *types.Customer) { s.EmailEnabled = false },
			channel:  types.ChannelEmail,
			wantSkip: SkipChannelDisabled,
		},
		{
			name:     "sms disabled for type",
			mutate:   func(s *types.NotificationSettings, _ *types.Customer) { s.SMSEnabled = false },
			channel:  types.ChannelSMS,
			wantSkip: SkipChannelDisabled,
		},
		{
			name:     "email opt out",
			mutate:   func(_ *types.NotificationSettings, c *types.Customer) { c.EmailOptOut = true },
			channel:  types.ChannelEmail,
			wantSkip: SkipOptedOut,
		},
		{
			name:     "sms opt out",
			mutate:   func(_ *types.NotificationSettings, c *types.Customer) { c.SMSOptOut = true },
			channel:  types.ChannelSMS,
			wantSkip: SkipOptedOut,
		},
		{
			name:     "missing email address",
			mutate:   func(_ *types.NotificationSettings, c *types.Customer) { c.Email = "" },
			channel:  types.ChannelEmail,
			wantSkip: SkipNoContact,
		},
		{
			name:     "malformed phone",
			mutate:   func(_ *types.NotificationSettings, c *types.Customer) { c.Phone = "555" },
			channel:  types.ChannelSMS,
			wantSkip: SkipNoContact,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			settings := eligibilitySettings()
			cust := eligibilityCustomer()
			tc.mutate(settings, cust)

			decisions := EvaluateChannels(settings, cust)

			d := decisionFor(t, decisions, tc.channel)
			if d.Eligible {
				t.Fatal("expected a skip, got eligible")
			}
			if d.Skip != tc.wantSkip {
				t.Errorf("expected skip %q, got %q", tc.wantSkip, d.Skip)
			}

			// The other channel is unaffected.
			other := types.ChannelEmail
			if tc.channel == types.ChannelEmail {
				other = types.ChannelSMS
			}
			if d := decisionFor(t, decisions, other); !d.Eligible {
				t.Errorf("expected %q unaffected, got skip %q", other, d.Skip)
			}
		})
	}
}

func TestEvaluateChannels_OptOutBeatsMissingContact(t *testing.T) {
	cust := eligibilityCustomer()
	cust.EmailOptOut = true
	cust.Email = ""

	d := decisionFor(t, EvaluateChannels(eligibilitySettings(), cust), types.ChannelEmail)
	if d.Skip != SkipOptedOut {
		t.Errorf("expected opt-out to take precedence, got %q", d.Skip)
	}
}
