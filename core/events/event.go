package events

import "workescrow/core/types"

// Event represents a structured state change emitted after commit.
type Event interface {
	EventType() string
}

// Payload is implemented by events that carry a serialisable body.
type Payload interface {
	Event
	Event() *types.Event
}

// Body extracts the serialisable body of evt, or nil when it has none.
func Body(evt Event) *types.Event {
	if p, ok := evt.(Payload); ok {
		return p.Event()
	}
	return nil
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, journals).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Wrap adapts a bare types.Event into a Payload.
func Wrap(evt *types.Event) Payload { return wrapped{evt: evt} }

type wrapped struct {
	evt *types.Event
}

func (w wrapped) EventType() string {
	if w.evt == nil {
		return ""
	}
	return w.evt.Type
}

func (w wrapped) Event() *types.Event { return w.evt }
