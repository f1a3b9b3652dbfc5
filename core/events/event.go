package events

import (
	"sync"

	"ndxgov/core/types"
	"ndxgov/crypto"
)

// Event represents a structured state change emitted by the chain.
type Event interface {
	EventType() string
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

// Log is an event attributed to the contract that raised it, stamped with the
// block it was committed in.
type Log struct {
	Contract  crypto.Address
	Height    uint64
	Timestamp uint64
	Event     *types.Event
}

func (l Log) EventType() string {
	if l.Event == nil {
		return ""
	}
	return l.Event.Type
}

// Fanout forwards every event to each wrapped emitter in order.
type Fanout []Emitter

func (f Fanout) Emit(evt Event) {
	for _, e := range f {
		if e != nil {
			e.Emit(evt)
		}
	}
}

// Recorder keeps every emitted event in memory. Tests use it to assert on
// emitted logs.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(evt Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Logs returns recorded logs with the given event type.
func (r *Recorder) Logs(eventType string) []Log {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Log
	for _, evt := range r.events {
		if log, ok := evt.(Log); ok && log.EventType() == eventType {
			out = append(out, log)
		}
	}
	return out
}
