// Package events defines the event contract shared by the report workflow
// modules and the in-memory bus that carries it. Publishers in the wizard and
// publish pipeline never see their subscribers; the notification module and
// the scheduler attach through Bus.Subscribe.
package events

import (
	"context"
	"time"
)

// Event is implemented by every domain event crossing module boundaries.
type Event interface {
	// EventName returns the stable name handlers subscribe to, in the form
	// "context.entity.action".
	EventName() string
	// OccurredAt returns when the event happened.
	OccurredAt() time.Time
}

// BaseEvent carries the timestamp every event embeds.
type BaseEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

// OccurredAt returns when the event happened.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// NewBaseEvent stamps a new event with the current time.
func NewBaseEvent() BaseEvent {
	return BaseEvent{Timestamp: time.Now()}
}

// Handler consumes events it subscribed to.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, event Event) error

// Handle calls the underlying function.
func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Bus publishes domain events to subscribed handlers.
type Bus interface {
	// Publish dispatches asynchronously; the caller does not wait and
	// handler errors are logged, not returned.
	Publish(ctx context.Context, event Event)

	// PublishSync dispatches inline and returns the first handler error.
	// The scheduler uses it so a failed delivery re-queues the task.
	PublishSync(ctx context.Context, event Event) error

	// Subscribe registers a handler under the name returned by
	// Event.EventName.
	Subscribe(eventName string, handler Handler)
}
