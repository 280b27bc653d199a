// Package watch follows a call's processing status on behalf of a
// client. It prefers a live push subscription and degrades to
// exponential-backoff polling when the stream stalls or errors.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/sales-coach/internal/core/domain"
)

// ErrClientTimeout means the watcher exhausted both push and polling
// without seeing a terminal status. The server keeps processing the
// call; only this client gave up waiting.
var ErrClientTimeout = errors.New("watch: gave up waiting for a terminal status")

// Source is a live status stream keyed by call id.
type Source interface {
	SubscribeStatus(ctx context.Context, callID string) (<-chan domain.StatusEvent, func(), error)
}

// Fetcher is the point-in-time lookup used by the polling fallback.
// Both transports report the same canonical status values.
type Fetcher interface {
	FetchStatus(ctx context.Context, callID string) (domain.StatusEvent, error)
}

type Config struct {
	// PushWait bounds the silence tolerated on the push stream before
	// switching to polling. Each received event resets the clock.
	PushWait time.Duration
	// PollBaseDelay is the first polling delay; it doubles per attempt.
	PollBaseDelay time.Duration
	PollAttempts  int
}

func DefaultConfig() Config {
	return Config{
		PushWait:      45 * time.Second,
		PollBaseDelay: 2 * time.Second,
		PollAttempts:  3,
	}
}

func (c Config) normalize() Config {
	d := DefaultConfig()
	if c.PushWait <= 0 {
		c.PushWait = d.PushWait
	}
	if c.PollBaseDelay <= 0 {
		c.PollBaseDelay = d.PollBaseDelay
	}
	if c.PollAttempts <= 0 {
		c.PollAttempts = d.PollAttempts
	}
	return c
}

type Watcher struct {
	source  Source
	fetcher Fetcher
	config  Config
	logger  *slog.Logger
}

func NewWatcher(source Source, fetcher Fetcher, config Config, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		source:  source,
		fetcher: fetcher,
		config:  config.normalize(),
		logger:  logger,
	}
}

// Watch follows callID until a terminal status arrives, the context is
// cancelled, or this client runs out of patience. Every observed
// forward progression is reported through onUpdate (which may be nil).
// Duplicate or stale events are dropped: status only moves forward, so
// anything at or behind the last observed stage carries no news.
// Cancelling ctx tears down the subscription and any pending poll
// timer; repeated cancellation is harmless.
func (w *Watcher) Watch(ctx context.Context, callID string, onUpdate func(domain.StatusEvent)) (domain.StatusEvent, error) {
	var last domain.StatusEvent

	observe := func(event domain.StatusEvent) bool {
		if last.Status != "" && event.Status.Rank() <= last.Status.Rank() {
			return false
		}
		last = event
		if onUpdate != nil {
			onUpdate(event)
		}
		return event.Status.IsTerminal()
	}

	terminal, err := w.followPush(ctx, callID, observe)
	if err == nil && terminal {
		return last, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return last, ctxErr
	}
	if err != nil {
		w.logger.Warn("status_push_failed", "call_id", callID, "error", err)
	} else {
		w.logger.Info("status_push_stalled", "call_id", callID, "wait", w.config.PushWait)
	}

	if terminal, err := w.pollUntilTerminal(ctx, callID, observe); err != nil {
		return last, err
	} else if terminal {
		return last, nil
	}
	return last, fmt.Errorf("%w: call %s after %d poll attempts", ErrClientTimeout, callID, w.config.PollAttempts)
}

// followPush drains the push stream until a terminal event, an error,
// or PushWait of silence. Returns (terminal, transport error); a stale
// timer is the (false, nil) case that triggers the polling fallback.
func (w *Watcher) followPush(ctx context.Context, callID string, observe func(domain.StatusEvent) bool) (bool, error) {
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	events, unsubscribe, err := w.source.SubscribeStatus(subCtx, callID)
	if err != nil {
		return false, err
	}
	defer unsubscribe()

	timer := time.NewTimer(w.config.PushWait)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return false, nil
		case <-timer.C:
			return false, nil
		case event, ok := <-events:
			if !ok {
				return false, errors.New("push stream closed")
			}
			if observe(event) {
				return true, nil
			}
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(w.config.PushWait)
		}
	}
}

func (w *Watcher) pollUntilTerminal(ctx context.Context, callID string, observe func(domain.StatusEvent) bool) (bool, error) {
	delay := w.config.PollBaseDelay
	for attempt := 1; attempt <= w.config.PollAttempts; attempt++ {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false, ctx.Err()
		case <-timer.C:
		}
		delay *= 2

		event, err := w.fetcher.FetchStatus(ctx, callID)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return false, ctxErr
			}
			w.logger.Warn("status_poll_failed", "call_id", callID, "attempt", attempt, "error", err)
			continue
		}
		if observe(event) {
			return true, nil
		}
	}
	return false, nil
}
