package events

import (
	"github.com/kelindar/event"
)

// Bus wraps a kelindar/event dispatcher. Handlers run on the dispatcher's
// own goroutines, so publishing never blocks the caller.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{dispatcher: event.NewDispatcher()}
}

// Publish delivers an event to all subscribers of its concrete type.
func (b *Bus) Publish(ev Event) {
	switch e := ev.(type) {
	case ProcessExitEvent:
		event.Publish(b.dispatcher, e)
	case StreamAddedEvent:
		event.Publish(b.dispatcher, e)
	case StreamRemovedEvent:
		event.Publish(b.dispatcher, e)
	case StreamStatusEvent:
		event.Publish(b.dispatcher, e)
	case TokenRefreshedEvent:
		event.Publish(b.dispatcher, e)
	case LogEntryEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe registers a typed handler and returns an unsubscribe function.
// The handler's parameter type selects which events it receives.
func Subscribe[T Event](b *Bus, handler func(T)) func() {
	return event.Subscribe(b.dispatcher, handler)
}

// SubscribeToChannel bridges subscriptions to a channel for select loops
// (SSE connections). Events are dropped when the channel is full.
func SubscribeToChannel[T Event](b *Bus, ch chan<- any) func() {
	return event.Subscribe(b.dispatcher, func(e T) {
		select {
		case ch <- e:
		default:
		}
	})
}
