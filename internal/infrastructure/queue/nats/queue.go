package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/sales-coach/internal/core/domain"
	"github.com/kirillkom/sales-coach/internal/infrastructure/resilience"
)

// Queue carries two kinds of traffic: uploaded-call work items consumed
// by the worker pool, and per-call status events fanned out to API
// instances.
type Queue struct {
	conn          *nats.Conn
	uploadSubject string
	statusSubject string
	breaker       *resilience.Breaker
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	// Breaker guards upload publishes; status publishes stay
	// best-effort and unguarded.
	Breaker *resilience.Breaker
}

func New(url, uploadSubject, statusSubject string) (*Queue, error) {
	return NewWithOptions(url, uploadSubject, statusSubject, Options{})
}

func NewWithOptions(url, uploadSubject, statusSubject string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}

	conn, err := nats.Connect(
		url,
		nats.Name("sales-coach"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:          conn,
		uploadSubject: uploadSubject,
		statusSubject: statusSubject,
		breaker:       options.Breaker,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishCallUploaded(ctx context.Context, callID string) error {
	call := func(_ context.Context) error {
		if err := q.conn.Publish(q.uploadSubject, []byte(callID)); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	var err error
	if q.breaker != nil {
		err = q.breaker.Execute(ctx, call)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	return nil
}

func (q *Queue) SubscribeCallUploaded(ctx context.Context, handler func(context.Context, string) error) error {
	sub, err := q.conn.QueueSubscribe(q.uploadSubject, "workers", func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handler(handlerCtx, string(msg.Data)); err != nil {
			slog.Error("worker_handler_error", "call_id", string(msg.Data), "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

// PublishStatus emits a transition event on the per-call status
// subject. Best-effort by contract: no subscriber means the event is
// dropped on the floor, and that is fine.
func (q *Queue) PublishStatus(_ context.Context, event domain.StatusEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal status event: %w", err)
	}
	subject := q.statusSubject + "." + event.CallID
	if err := q.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("nats publish status: %w", err)
	}
	return nil
}

// SubscribeStatusUpdates feeds every call's status events into handler
// until ctx is done. The API runs one of these and fans events out to
// its SSE subscribers.
func (q *Queue) SubscribeStatusUpdates(ctx context.Context, handler func(domain.StatusEvent)) error {
	sub, err := q.conn.Subscribe(q.statusSubject+".>", func(msg *nats.Msg) {
		var event domain.StatusEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			slog.Warn("malformed_status_event", "subject", msg.Subject, "error", err)
			return
		}
		handler(event)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe status: %w", err)
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			slog.Warn("status_subscription_drain_failed", "error", err)
		}
	}()
	return nil
}
