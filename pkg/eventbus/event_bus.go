// Package eventbus provides the pluggable transport for execution lifecycle
// events. The engine only depends on EventPublisher; observers subscribe
// through whichever backing channel the deployment wires in.
package eventbus

import (
	"context"

	"github.com/loomworks/loom/pkg/events"
)

type Event interface {
	GetType() events.EventType
}

type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

type EventHandler func(ctx context.Context, event interface{}) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}
