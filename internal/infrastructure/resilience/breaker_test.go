package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kirillkom/sales-coach/internal/core/domain"
)

var errDep = errors.New("dependency boom")

func newTestBreaker(resetTimeout time.Duration) *Breaker {
	return NewBreaker("transcription", Settings{
		FailureThreshold: 3,
		ResetTimeout:     resetTimeout,
		SuccessThreshold: 2,
	})
}

func failNTimes(t *testing.T, breaker *Breaker, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		err := breaker.Execute(context.Background(), func(context.Context) error {
			return errDep
		})
		if !errors.Is(err, errDep) {
			t.Fatalf("failure %d: expected dependency error, got %v", i, err)
		}
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	breaker := newTestBreaker(time.Hour)
	failNTimes(t, breaker, 3)

	if state := breaker.Stats().State; state != "open" {
		t.Fatalf("expected open state, got %s", state)
	}

	err := breaker.Execute(context.Background(), func(context.Context) error {
		t.Fatalf("open breaker must not invoke fn")
		return nil
	})
	if !domain.IsKind(err, domain.ErrCircuitOpen) {
		t.Fatalf("expected circuit open error, got %v", err)
	}
}

func TestBreakerCountsRejectedRequests(t *testing.T) {
	breaker := newTestBreaker(time.Hour)
	failNTimes(t, breaker, 3)

	_ = breaker.Execute(context.Background(), func(context.Context) error { return nil })

	stats := breaker.Stats()
	if stats.TotalRequests != 4 {
		t.Fatalf("expected 4 total requests including the rejected one, got %d", stats.TotalRequests)
	}
	if stats.TotalFailures != 3 {
		t.Fatalf("rejections must not count as fn failures: got %d", stats.TotalFailures)
	}
}

func TestBreakerAdmitsAfterResetTimeout(t *testing.T) {
	breaker := newTestBreaker(20 * time.Millisecond)
	failNTimes(t, breaker, 3)

	time.Sleep(30 * time.Millisecond)

	invoked := false
	err := breaker.Execute(context.Background(), func(context.Context) error {
		invoked = true
		return nil
	})
	if err != nil {
		t.Fatalf("half-open probe should succeed, got %v", err)
	}
	if !invoked {
		t.Fatalf("expected fn to be invoked after reset timeout")
	}
	if state := breaker.Stats().State; state != "half-open" {
		t.Fatalf("expected half-open after one probe success, got %s", state)
	}
}

func TestBreakerClosesAfterSuccessThreshold(t *testing.T) {
	breaker := newTestBreaker(20 * time.Millisecond)
	failNTimes(t, breaker, 3)
	time.Sleep(30 * time.Millisecond)

	for i := 0; i < 2; i++ {
		if err := breaker.Execute(context.Background(), func(context.Context) error { return nil }); err != nil {
			t.Fatalf("half-open success %d: %v", i, err)
		}
	}

	stats := breaker.Stats()
	if stats.State != "closed" {
		t.Fatalf("expected closed after success threshold, got %s", stats.State)
	}
	if stats.Failures != 0 {
		t.Fatalf("expected consecutive failures reset to 0, got %d", stats.Failures)
	}
}

func TestBreakerReopensOnHalfOpenFailure(t *testing.T) {
	breaker := newTestBreaker(20 * time.Millisecond)
	failNTimes(t, breaker, 3)
	time.Sleep(30 * time.Millisecond)

	err := breaker.Execute(context.Background(), func(context.Context) error { return errDep })
	if !errors.Is(err, errDep) {
		t.Fatalf("expected dependency error from half-open probe, got %v", err)
	}
	if state := breaker.Stats().State; state != "open" {
		t.Fatalf("expected immediate reopen on half-open failure, got %s", state)
	}
}

func TestRegistryKeepsIndependentBreakers(t *testing.T) {
	registry := NewRegistry(Settings{FailureThreshold: 1, ResetTimeout: time.Hour, SuccessThreshold: 1},
		"transcription", "queue")

	err := registry.Get("transcription").Execute(context.Background(), func(context.Context) error {
		return errDep
	})
	if !errors.Is(err, errDep) {
		t.Fatalf("expected dependency error, got %v", err)
	}

	if state := registry.Get("transcription").Stats().State; state != "open" {
		t.Fatalf("expected transcription breaker open, got %s", state)
	}
	if state := registry.Get("queue").Stats().State; state != "closed" {
		t.Fatalf("queue breaker must be unaffected, got %s", state)
	}

	stats := registry.Stats()
	if len(stats) != 2 || stats[0].Name != "queue" || stats[1].Name != "transcription" {
		t.Fatalf("unexpected stats order: %+v", stats)
	}
}
