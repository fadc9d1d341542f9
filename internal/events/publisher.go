package events

import (
	"context"

	"mpesa-stk-gateway/internal/model"
)

// Publisher delivers payment result events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, event model.PaymentResultEvent) error
	Close() error
}

// NoopPublisher discards events; used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(ctx context.Context, event model.PaymentResultEvent) error {
	return nil
}

func (NoopPublisher) Close() error {
	return nil
}
