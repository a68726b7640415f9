package events

import (
	"sync"
	"sync/atomic"

	"workescrow/core/types"
)

// Bus fans events out to durable sinks and to live subscribers. Sinks are
// called synchronously in registration order. Subscribers receive copies on a
// buffered channel and miss events when they fall behind.
type Bus struct {
	mu      sync.RWMutex
	sinks   []Emitter
	subs    map[uint64]chan *types.Event
	nextID  uint64
	dropped atomic.Uint64
}

func NewBus(sinks ...Emitter) *Bus {
	b := &Bus{subs: make(map[uint64]chan *types.Event)}
	for _, sink := range sinks {
		b.Attach(sink)
	}
	return b
}

// Attach registers an additional synchronous sink.
func (b *Bus) Attach(sink Emitter) {
	if sink == nil {
		return
	}
	b.mu.Lock()
	b.sinks = append(b.sinks, sink)
	b.mu.Unlock()
}

// Emit implements Emitter.
func (b *Bus) Emit(evt Event) {
	if b == nil || evt == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sink := range b.sinks {
		sink.Emit(evt)
	}
	body := Body(evt)
	if body == nil {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- body.Clone():
		default:
			b.dropped.Add(1)
		}
	}
}

// Subscribe registers a live listener. The returned cancel function closes the
// channel and must be called exactly once.
func (b *Bus) Subscribe(buffer int) (<-chan *types.Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan *types.Event, buffer)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers reports how many live listeners are registered.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped returns how many subscriber deliveries were skipped.
func (b *Bus) Dropped() uint64 { return b.dropped.Load() }
