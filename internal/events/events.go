// Package events models the desktop shell's event bus as a narrow Go
// interface, so internal/command has no compiled dependency on any
// particular UI binding.
package events

// Emitter pushes a named event with an arbitrary JSON-serializable
// payload toward the UI. Topics used by this system: "serial_packet"
// ({id, packet} per decoded frame) and "simulation_stream_update"
// (per emitted simulation step).
type Emitter interface {
	Emit(topic string, payload any)
}

// NopEmitter discards every event; used in tests and in any tool mode
// that has no UI to push to.
type NopEmitter struct{}

func (NopEmitter) Emit(string, any) {}

// Event pairs a topic with its payload for ChannelEmitter's output
// channel.
type Event struct {
	Topic   string
	Payload any
}

// ChannelEmitter is the concrete default: it feeds a buffered channel
// that a consumer (the CLI tool's print loop, a test) drains. Events
// are dropped rather than blocking the producer when the channel is
// full, since an event bus is a best-effort notification path, not a
// durable log (that is internal/logger's job).
type ChannelEmitter struct {
	ch chan Event
}

// NewChannelEmitter returns a ChannelEmitter backed by a channel of
// the given capacity.
func NewChannelEmitter(capacity int) *ChannelEmitter {
	if capacity <= 0 {
		capacity = 256
	}
	return &ChannelEmitter{ch: make(chan Event, capacity)}
}

// Emit implements Emitter.
func (e *ChannelEmitter) Emit(topic string, payload any) {
	select {
	case e.ch <- Event{Topic: topic, Payload: payload}:
	default:
	}
}

// Events returns the channel consumers drain.
func (e *ChannelEmitter) Events() <-chan Event { return e.ch }

// Close closes the underlying channel. Callers must stop calling Emit
// before closing.
func (e *ChannelEmitter) Close() { close(e.ch) }
