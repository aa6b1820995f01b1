package core

import "puppyday/internal/types"

// ChannelDecision pairs a channel with its eligibility outcome for one
// customer.
type ChannelDecision struct {
	Channel  types.Channel
	Decision EligibilityDecision
}

// EvaluateChannels applies the per-channel eligibility rules shared by every
// notification type: the channel must be enabled in settings, the customer
// must not have opted out of it, and a usable address must be on file.
//
// Type-specific rules (marketing opt-out, cooldowns, dedup) are the caller's
// responsibility; they depend on context this function does not have.
func EvaluateChannels(settings *types.NotificationSettings, cust *types.Customer) []ChannelDecision {
	return []ChannelDecision{
		{Channel: types.ChannelEmail, Decision: emailDecision(settings, cust)},
		{Channel: types.ChannelSMS, Decision: smsDecision(settings, cust)},
	}
}

func emailDecision(settings *types.NotificationSettings, cust *types.Customer) EligibilityDecision {
	if !settings.EmailEnabled {
		return Skipped(SkipChannelDisabled)
	}
	if cust.EmailOptOut {
		return Skipped(SkipOptedOut)
	}
	if !types.IsDeliverableEmail(cust.Email) {
		return Skipped(SkipNoContact)
	}
	return Eligible()
}

func smsDecision(settings *types.NotificationSettings, cust *types.Customer) EligibilityDecision {
	if !settings.SMSEnabled {
		return Skipped(SkipChannelDisabled)
	}
	if cust.SMSOptOut {
		return Skipped(SkipOptedOut)
	}
	if !types.IsDeliverablePhone(cust.Phone) {
		return Skipped(SkipNoContact)
	}
	return Eligible()
}
