package admission

import (
	"context"
	"time"
)

// EventType admission event type.
type EventType string

const (
	// EventAllowed request admitted
	EventAllowed EventType = "allowed"

	// EventDenied request rejected
	EventDenied EventType = "denied"

	// EventHotspot request rejected by the hotspot override
	EventHotspot EventType = "hotspot"

	// EventStoreError shared store failed during an evaluation
	EventStoreError EventType = "store_error"
)

// Event interface
type Event interface {
	Type() EventType
	Policy() string
	Context() context.Context
	Timestamp() time.Time
}

// BaseEvent common event fields.
type BaseEvent struct {
	eventType EventType
	policy    string
	ctx       context.Context
	timestamp time.Time
}

// NewBaseEvent creates a base event.
func NewBaseEvent(eventType EventType, policy string, ctx context.Context) BaseEvent {
	return BaseEvent{
		eventType: eventType,
		policy:    policy,
		ctx:       ctx,
		timestamp: time.Now(),
	}
}

// Type returns the event type.
func (e *BaseEvent) Type() EventType {
	return e.eventType
}

// Policy returns the policy name.
func (e *BaseEvent) Policy() string {
	return e.policy
}

// Context returns the context.
func (e *BaseEvent) Context() context.Context {
	return e.ctx
}

// Timestamp returns the event instant.
func (e *BaseEvent) Timestamp() time.Time {
	return e.timestamp
}

// AllowedEvent request admitted.
type AllowedEvent struct {
	BaseEvent
	Remaining int64
	Limit     int64
}

// DeniedEvent request rejected.
type DeniedEvent struct {
	BaseEvent
	Remaining int64
	ResetAt   time.Time
	Hotspot   bool
	Reason    string
}

// StoreErrorEvent shared store failure.
type StoreErrorEvent struct {
	BaseEvent
	Key string
	Err error
}

// EventListener event listener interface.
type EventListener interface {
	OnEvent(event Event)
}

// EventListenerFunc event listener function type.
type EventListenerFunc func(event Event)

// OnEvent implements EventListener.
func (f EventListenerFunc) OnEvent(event Event) {
	f(event)
}

// EventBus event bus interface.
type EventBus interface {
	// Subscribe to events
	Subscribe(listener EventListener)

	// Publish an event
	Publish(event Event)

	// Close the bus
	Close()
}
