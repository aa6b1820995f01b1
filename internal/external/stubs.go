package external

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"puppyday/internal/types"
)

// ---------------------------------------------------------------------------
// Stub Implementations
//
// Stub providers allow the application to boot in local/mock mode without
// real AWS credentials. They simulate transport latency and a configurable
// failure rate so the retry pipeline can be exercised end to end, and they
// log every send so local runs are inspectable.
// ---------------------------------------------------------------------------

// StubOptions tunes the simulated transport behavior.
type StubOptions struct {
	// Latency is the simulated per-send transport delay.
	// Zero means no delay.
	Latency time.Duration
	// FailureRate is the probability in [0,1) that a send fails with an
	// upstream error. Zero means every send succeeds.
	FailureRate float64
	// Seed makes the failure sequence reproducible in tests. Zero seeds
	// from the current time.
	Seed int64
}

// stubCore holds the shared simulation state for both stub providers.
type stubCore struct {
	opts   StubOptions
	logger *slog.Logger

	mu  sync.Mutex
	rng *rand.Rand
	seq int
}

func newStubCore(opts StubOptions, logger *slog.Logger) *stubCore {
	if logger == nil {
		logger = slog.Default()
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &stubCore{
		opts:   opts,
		logger: logger,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// attempt simulates one transport call. Returns a fake message ID or an
// upstream error according to the configured failure rate.
func (c *stubCore) attempt(ctx context.Context, kind string, code types.ErrorCode) (string, error) {
	if c.opts.Latency > 0 {
		select {
		case <-time.After(c.opts.Latency):
		case <-ctx.Done():
			return "", types.NewAppError(code, "stub send cancelled", ctx.Err())
		}
	}

	c.mu.Lock()
	c.seq++
	seq := c.seq
	fail := c.opts.FailureRate > 0 && c.rng.Float64() < c.opts.FailureRate
	c.mu.Unlock()

	if fail {
		return "", types.NewAppError(code, fmt.Sprintf("stub: simulated %s provider failure", kind), nil)
	}
	return fmt.Sprintf("stub-%s-%d", kind, seq), nil
}

// StubEmailProvider implements EmailProvider against no real transport.
type StubEmailProvider struct {
	core *stubCore
}

// NewStubEmailProvider creates a StubEmailProvider with the given simulation
// options.
func NewStubEmailProvider(opts StubOptions, logger *slog.Logger) *StubEmailProvider {
	return &StubEmailProvider{core: newStubCore(opts, logger)}
}

func (s *StubEmailProvider) Send(ctx context.Context, input EmailInput) (string, error) {
	msgID, err := s.core.attempt(ctx, "email", types.ErrCodeUpstreamEmail)
	if err != nil {
		s.core.logger.WarnContext(ctx, "stub: email send failed", "to", input.To, "error", err)
		return "", err
	}
	s.core.logger.InfoContext(ctx, "stub: email sent",
		"to", input.To,
		"subject", input.Subject,
		"message_id", msgID,
	)
	return msgID, nil
}

// StubSMSProvider implements SMSProvider against no real transport.
type StubSMSProvider struct {
	core *stubCore
}

// NewStubSMSProvider creates a StubSMSProvider with the given simulation
// options.
func NewStubSMSProvider(opts StubOptions, logger *slog.Logger) *StubSMSProvider {
	return &StubSMSProvider{core: newStubCore(opts, logger)}
}

func (s *StubSMSProvider) Send(ctx context.Context, to string, body string) (string, error) {
	msgID, err := s.core.attempt(ctx, "sms", types.ErrCodeUpstreamSMS)
	if err != nil {
		s.core.logger.WarnContext(ctx, "stub: sms send failed", "to", to, "error", err)
		return "", err
	}
	s.core.logger.InfoContext(ctx, "stub: sms sent",
		"to", to,
		"length", len(body),
		"message_id", msgID,
	)
	return msgID, nil
}

var (
	_ EmailProvider = (*StubEmailProvider)(nil)
	_ SMSProvider   = (*StubSMSProvider)(nil)
)
