package events

import (
	"github.com/kelindar/event"
)

// Bus wraps a kelindar/event dispatcher. Handlers run on the dispatcher's
// goroutines, never on the publisher's.
type Bus struct {
	dispatcher *event.Dispatcher
}

func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish broadcasts ev to the subscribers of its concrete type
func (b *Bus) Publish(ev Event) {
	switch e := ev.(type) {
	case StateChangedEvent:
		event.Publish(b.dispatcher, e)
	case EffectToggledEvent:
		event.Publish(b.dispatcher, e)
	case StreamDegradedEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe registers handler for the event type in its signature and
// returns the unsubscribe function. Unknown handler types are ignored.
// Usage: unsub := bus.Subscribe(func(e StateChangedEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(StateChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(EffectToggledEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(StreamDegradedEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}
