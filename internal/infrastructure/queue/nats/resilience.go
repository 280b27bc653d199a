package nats

import (
	"context"
	"errors"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/sales-coach/internal/core/domain"
	"github.com/kirillkom/sales-coach/internal/infrastructure/resilience"
)

// wrapTemporaryIfNeeded marks transport-level publish failures as
// temporary so the HTTP layer can answer 503 instead of 500.
func wrapTemporaryIfNeeded(err error) error {
	if err == nil {
		return nil
	}
	if domain.IsKind(err, domain.ErrTemporary) || domain.IsKind(err, domain.ErrCircuitOpen) {
		return err
	}
	if isTransportError(err) {
		return domain.WrapError(domain.ErrTemporary, "nats publish", err)
	}
	return err
}

func isTransportError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if resilience.IsCircuitOpen(err) {
		return true
	}
	return errors.Is(err, nats.ErrNoServers) ||
		errors.Is(err, nats.ErrTimeout) ||
		errors.Is(err, nats.ErrConnectionClosed) ||
		errors.Is(err, nats.ErrDisconnected)
}
