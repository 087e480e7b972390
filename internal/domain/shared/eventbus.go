package shared

import "context"

// EventHandler handles envelopes delivered by the bus
type EventHandler interface {
	// Handle processes one delivery. A nil return acknowledges it; the error
	// kind decides between dead-lettering and redelivery.
	Handle(ctx context.Context, envelope *Envelope) error
	// EventTypes returns the event types this handler is interested in
	// An empty slice means the handler receives all events
	EventTypes() []string
}

// EventPublisher publishes envelopes to the broker
type EventPublisher interface {
	// Publish publishes one or more envelopes. It returns only after the
	// broker has accepted every envelope.
	Publish(ctx context.Context, envelopes ...*Envelope) error
}

// EventSubscriber subscribes handlers to event types
type EventSubscriber interface {
	// Subscribe registers a handler for specific event types
	// If no event types are provided, the handler's own EventTypes are used
	Subscribe(handler EventHandler, eventTypes ...string)
	// Unsubscribe removes a handler from the subscription list
	Unsubscribe(handler EventHandler)
}

// EventBus is a publisher with a lifecycle. Consumers subscribe on their own
// dispatcher; each consumer sees every envelope published on the bus.
type EventBus interface {
	EventPublisher
	// Start connects the bus to its broker
	Start(ctx context.Context) error
	// Stop flushes and disconnects
	Stop(ctx context.Context) error
}

// OutboxEventSaver saves domain events to the outbox table within a transaction
// This is the only way aggregates hand events to the bus
type OutboxEventSaver interface {
	// SaveEvents saves domain events to the outbox table within the current transaction
	// The txProvider should be a *gorm.DB transaction
	SaveEvents(ctx context.Context, txProvider interface{}, events ...DomainEvent) error
}

// EventWriter hands domain events to the outbox of the current unit of work
type EventWriter interface {
	// Write stores the events so they are published once the unit of work commits
	Write(ctx context.Context, events ...DomainEvent) error
}
