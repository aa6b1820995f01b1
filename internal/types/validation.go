package types

import (
	"regexp"
	"strings"
)

// Validation constraint constants.
const (
	MaxRetriesCeiling   = 10
	MaxRetryDelaySecond = 7 * 24 * 3600 // one week
	MaxSearchLength     = 200
)

// e164Pattern is a pragmatic E.164 check: optional '+', leading non-zero
// digit, 7 to 15 digits total. The booking system stores numbers in this
// form; anything else is treated as "no usable phone".
var e164Pattern = regexp.MustCompile(`^\+?[1-9]\d{6,14}$`)

// IsDeliverablePhone reports whether the string looks like a phone number the
// SMS transport can accept.
func IsDeliverablePhone(phone string) bool {
	return e164Pattern.MatchString(strings.TrimSpace(phone))
}

// IsDeliverableEmail performs a minimal structural check on an email address.
// Full RFC validation is the transport's concern; this only guards against
// obviously unusable values so they are classified as skips, not failures.
func IsDeliverableEmail(email string) bool {
	email = strings.TrimSpace(email)
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 {
		return false
	}
	domain := email[at+1:]
	return strings.Contains(domain, ".") && !strings.ContainsAny(email, " \t\n")
}

// NormalizePhone strips spaces and dashes and prefixes '+' when missing.
// Returns the input unchanged when it does not look like a number at all.
func NormalizePhone(phone string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.':
			return -1
		}
		return r
	}, strings.TrimSpace(phone))

	if cleaned == "" || !e164Pattern.MatchString(cleaned) {
		return cleaned
	}
	if !strings.HasPrefix(cleaned, "+") {
		return "+" + cleaned
	}
	return cleaned
}
