package external

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"

	"puppyday/internal/types"
)

// newProviderBreaker builds the circuit breaker shared by the provider
// wrappers. Five consecutive failures open the circuit; after 30 seconds one
// probe request is allowed through.
func newProviderBreaker(name string) *gobreaker.CircuitBreaker[string] {
	return gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
	})
}

// mapBreakerError converts circuit breaker states into an upstream
// unavailable AppError so callers classify shed requests as retryable.
func mapBreakerError(err error, code types.ErrorCode) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return types.NewAppError(code, "provider circuit open; request shed", err)
	}
	return err
}

// BreakerEmailProvider wraps an EmailProvider with a circuit breaker. When
// the provider fails repeatedly the breaker sheds requests immediately, so a
// dead provider fails dispatches fast instead of tying up the job on
// timeouts.
type BreakerEmailProvider struct {
	inner   EmailProvider
	breaker *gobreaker.CircuitBreaker[string]
}

// NewBreakerEmailProvider wraps inner with a dedicated circuit breaker.
func NewBreakerEmailProvider(inner EmailProvider) *BreakerEmailProvider {
	return &BreakerEmailProvider{
		inner:   inner,
		breaker: newProviderBreaker("email-provider"),
	}
}

func (p *BreakerEmailProvider) Send(ctx context.Context, input EmailInput) (string, error) {
	msgID, err := p.breaker.Execute(func() (string, error) {
		return p.inner.Send(ctx, input)
	})
	if err != nil {
		return "", mapBreakerError(err, types.ErrCodeUpstreamEmail)
	}
	return msgID, nil
}

// BreakerSMSProvider wraps an SMSProvider with a circuit breaker.
type BreakerSMSProvider struct {
	inner   SMSProvider
	breaker *gobreaker.CircuitBreaker[string]
}

// NewBreakerSMSProvider wraps inner with a dedicated circuit breaker.
func NewBreakerSMSProvider(inner SMSProvider) *BreakerSMSProvider {
	return &BreakerSMSProvider{
		inner:   inner,
		breaker: newProviderBreaker("sms-provider"),
	}
}

func (p *BreakerSMSProvider) Send(ctx context.Context, to string, body string) (string, error) {
	msgID, err := p.breaker.Execute(func() (string, error) {
		return p.inner.Send(ctx, to, body)
	})
	if err != nil {
		return "", mapBreakerError(err, types.ErrCodeUpstreamSMS)
	}
	return msgID, nil
}

var (
	_ EmailProvider = (*BreakerEmailProvider)(nil)
	_ SMSProvider   = (*BreakerSMSProvider)(nil)
)
