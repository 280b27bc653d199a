package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/sales-coach/internal/core/domain"
)

// Settings configures one Breaker. Zero values fall back to defaults.
type Settings struct {
	// FailureThreshold is the number of consecutive failures that trips
	// the breaker open.
	FailureThreshold uint32
	// ResetTimeout is how long an open breaker rejects calls before the
	// next attempt is admitted half-open. Checked lazily on the call
	// path; there is no background timer.
	ResetTimeout time.Duration
	// SuccessThreshold is the number of consecutive half-open successes
	// required to close the breaker again.
	SuccessThreshold uint32
}

func DefaultSettings() Settings {
	return Settings{
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
		SuccessThreshold: 2,
	}
}

func (s Settings) normalize() Settings {
	out := s
	def := DefaultSettings()
	if out.FailureThreshold == 0 {
		out.FailureThreshold = def.FailureThreshold
	}
	if out.ResetTimeout <= 0 {
		out.ResetTimeout = def.ResetTimeout
	}
	if out.SuccessThreshold == 0 {
		out.SuccessThreshold = def.SuccessThreshold
	}
	return out
}

// Stats is a read-only snapshot for operational dashboards.
type Stats struct {
	Name          string    `json:"name"`
	State         string    `json:"state"`
	Failures      uint32    `json:"failures"`
	Successes     uint32    `json:"successes"`
	LastFailure   time.Time `json:"last_failure,omitzero"`
	LastSuccess   time.Time `json:"last_success,omitzero"`
	TotalRequests uint64    `json:"total_requests"`
	TotalFailures uint64    `json:"total_failures"`
}

// Breaker guards one external dependency. State lives for the process
// lifetime and is not durable across restarts. Safe for concurrent use
// by any number of in-flight jobs.
type Breaker struct {
	name string
	cb   *gobreaker.CircuitBreaker[any]

	mu            sync.Mutex
	totalRequests uint64
	totalFailures uint64
	lastFailure   time.Time
	lastSuccess   time.Time
}

func NewBreaker(name string, settings Settings) *Breaker {
	settings = settings.normalize()
	breaker := &Breaker{name: name}

	breaker.cb = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: settings.SuccessThreshold,
		Timeout:     settings.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			slog.Warn("circuit_breaker_state_change",
				"dependency", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
	return breaker
}

func (b *Breaker) Name() string { return b.name }

// Execute runs fn under breaker admission control. It returns fn's
// result or fn's own error; when the breaker is open and the reset
// timeout has not elapsed it returns domain.ErrCircuitOpen without
// invoking fn. Every call counts toward TotalRequests, including
// rejected ones; fn's failure tally grows only when fn actually ran
// and failed.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	b.mu.Lock()
	b.totalRequests++
	b.mu.Unlock()

	_, err := b.cb.Execute(func() (any, error) {
		return nil, fn(ctx)
	})
	if err == nil {
		b.mu.Lock()
		b.lastSuccess = time.Now().UTC()
		b.mu.Unlock()
		return nil
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return domain.WrapError(domain.ErrCircuitOpen, b.name, err)
	}

	b.mu.Lock()
	b.totalFailures++
	b.lastFailure = time.Now().UTC()
	b.mu.Unlock()

	slog.Warn("circuit_breaker_call_failed",
		"dependency", b.name,
		"state", b.cb.State().String(),
		"error", err,
	)
	return err
}

// Stats returns the current snapshot. Successes is meaningful only in
// the half-open state.
func (b *Breaker) Stats() Stats {
	counts := b.cb.Counts()

	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Name:          b.name,
		State:         b.cb.State().String(),
		Failures:      counts.ConsecutiveFailures,
		Successes:     counts.ConsecutiveSuccesses,
		LastFailure:   b.lastFailure,
		LastSuccess:   b.lastSuccess,
		TotalRequests: b.totalRequests,
		TotalFailures: b.totalFailures,
	}
}

// IsCircuitOpen reports whether err is a breaker rejection rather than
// a failure of the protected call itself.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, domain.ErrCircuitOpen) ||
		errors.Is(err, gobreaker.ErrOpenState) ||
		errors.Is(err, gobreaker.ErrTooManyRequests)
}
