package events

import "voucherchain/core/types"

// Event represents a structured state change emitted by the chain.
type Event interface {
	EventType() string
}

// Convertible is implemented by events that render into the wire-level
// representation consumed by indexers and streams.
type Convertible interface {
	Event
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(Event)

// Emit implements the Emitter interface.
func (f EmitterFunc) Emit(evt Event) {
	if f != nil {
		f(evt)
	}
}

// Multi fans every event out to each emitter in order.
type Multi []Emitter

// Emit implements the Emitter interface.
func (m Multi) Emit(evt Event) {
	for _, emitter := range m {
		if emitter != nil {
			emitter.Emit(evt)
		}
	}
}

// Buffer records events in emission order until they are drained. The
// runtime uses it to hold events back until the enclosing execution commits.
type Buffer struct {
	events []Event
}

// Emit implements the Emitter interface.
func (b *Buffer) Emit(evt Event) {
	if evt == nil {
		return
	}
	b.events = append(b.events, evt)
}

// Events returns the buffered events.
func (b *Buffer) Events() []Event {
	out := make([]Event, len(b.events))
	copy(out, b.events)
	return out
}

// Len reports how many events are buffered.
func (b *Buffer) Len() int { return len(b.events) }

// Drain returns the buffered events and clears the buffer.
func (b *Buffer) Drain() []Event {
	out := b.events
	b.events = nil
	return out
}

// Reset drops every buffered event.
func (b *Buffer) Reset() { b.events = nil }

// Types lists the event types currently buffered, mostly useful in tests.
func (b *Buffer) Types() []string {
	out := make([]string, 0, len(b.events))
	for _, evt := range b.events {
		out = append(out, evt.EventType())
	}
	return out
}

// Committed annotates an event with the execution that published it. The
// runtime wraps every event it hands to downstream emitters.
type Committed struct {
	Height    uint64
	Timestamp int64
	Op        string
	// Index is the position of the event within its execution.
	Index int
	Event Event
}

// EventType reports the type of the wrapped event.
func (c Committed) EventType() string {
	if c.Event == nil {
		return ""
	}
	return c.Event.EventType()
}

// Render converts the wrapped event into its wire representation. Events
// without a converter render with an empty attribute set.
func (c Committed) Render() *types.Event {
	if conv, ok := c.Event.(Convertible); ok {
		if evt := conv.Event(); evt != nil {
			return evt
		}
	}
	return &types.Event{Type: c.EventType(), Attributes: map[string]string{}}
}
