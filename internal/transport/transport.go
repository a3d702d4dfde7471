// Package transport implements the two byte-level connections the
// rest of the system routes packets over: a serial port and a UDP
// socket. Both share the delimiter-terminated framing in
// internal/frame and expose the same small capability set (spec §3),
// represented here as a closed two-variant set (*Serial, *UDP)
// reachable through the common Transport interface, with
// variant-specific behavior reached by type-switching on the concrete
// pointer rather than a runtime downcast (spec §9 "Dynamic dispatch
// and downcasts").
package transport

import (
	"context"

	"telerelay/internal/packet"
)

// Kind identifies which of the closed set of transport variants a
// Transport is.
type Kind int

const (
	KindSerial Kind = iota
	KindUDP
)

func (k Kind) String() string {
	switch k {
	case KindSerial:
		return "serial"
	case KindUDP:
		return "udp"
	default:
		return "unknown"
	}
}

// OnPacket is invoked once per decoded frame, in arrival order, from
// the transport's single reader goroutine. Implementations typically
// emit a UI event and hand a copy to the packet logger.
type OnPacket func(id string, p *packet.Packet)

// Transport is the capability every connection exposes to the
// Connection Manager, independent of its concrete variant (spec §3).
type Transport interface {
	// Send writes data as a single frame's worth of bytes to the
	// transport's current destination.
	Send(ctx context.Context, data []byte) error
	// Stop tears the transport down. Idempotent.
	Stop() error
	// Name returns a human-readable identifier for logs (e.g. a port
	// name or local address).
	Name() string
	// Kind identifies which closed variant this is.
	Kind() Kind
	// ReceivedCount and SentCount are lock-free counters.
	ReceivedCount() uint64
	SentCount() uint64
	// ResetCounters zeroes both counters.
	ResetCounters()
}

// LastFramer is implemented by transport variants that expose a
// single "most recent frame" for the generic Share Engine to copy
// (spec §4.6). UDP exposes per-target data instead (§4.4) and is
// sourced through the specialized UDP target share, not this
// interface.
type LastFramer interface {
	LastFrame() []byte
	WaitForFrame(ctx context.Context) error
}

// ConnectionInfo is the external, serializable view of a registered
// transport (spec §4.8 list_connections).
type ConnectionInfo struct {
	ID       string `json:"id"`
	Kind     string `json:"kind"`
	Name     string `json:"name"`
	Received uint64 `json:"received_count"`
	Sent     uint64 `json:"sent_count"`
}
