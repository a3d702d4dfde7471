// Package frame implements the delimiter-terminated framing shared by
// every transport: a protobuf-encoded packet.Packet followed by a
// fixed 4-byte delimiter, plus the resynchronization policy that lets
// a reader recover after a corrupted or misaligned frame.
package frame

import (
	"telerelay/internal/packet"
)

const (
	// DelimiterLen is the width in bytes of the trailing frame
	// delimiter.
	DelimiterLen = 4

	// MaxResyncOffset bounds how many candidate start offsets the
	// resynchronization sweep tries before giving up and dropping a
	// single byte from the front of the buffer.
	MaxResyncOffset = 100

	// MaxBufferBytes is the accumulation ceiling above which a buffer
	// making no progress is dropped outright.
	MaxBufferBytes = 1 << 20 // 1 MiB
)

// Delimiter is the 4-byte constant terminating every frame, in wire
// (little-endian) byte order. It encodes DelimiterMagic = 0x001E4B00
// (see DESIGN.md). Boundaries are detected only at the tail of the
// buffer, and a body that itself ends in these four bytes (Payload
// data, for example, is carried verbatim) is not told apart from a
// frame end; the resulting decode failure is left to the
// resynchronization policy.
var Delimiter = [DelimiterLen]byte{0x00, 0x4B, 0x1E, 0x00}

func isDelimiter(b []byte) bool {
	return len(b) == DelimiterLen &&
		b[0] == Delimiter[0] && b[1] == Delimiter[1] && b[2] == Delimiter[2] && b[3] == Delimiter[3]
}

// Encode produces one complete frame: p's canonical protobuf encoding
// followed by the delimiter.
func Encode(p *packet.Packet) ([]byte, error) {
	b, err := p.Marshal()
	if err != nil {
		return nil, err
	}
	return append(b, Delimiter[:]...), nil
}

// OverflowFunc is invoked when the accumulation buffer is dropped
// after exceeding MaxBufferBytes without yielding a frame.
type OverflowFunc func(droppedBytes int)

// Assembler reassembles delimiter-terminated frames out of a byte
// stream that may deliver partial frames, whole frames, or garbage
// per read. It is not safe for concurrent use; callers serialize
// reads through a single reader goroutine per connection, matching
// every transport in this package.
type Assembler struct {
	buf []byte

	// OnOverflow, if set, is called whenever the buffer is dropped for
	// exceeding MaxBufferBytes.
	OnOverflow OverflowFunc
}

// NewAssembler returns an empty Assembler.
func NewAssembler() *Assembler {
	return &Assembler{}
}

// Buffered reports how many bytes are currently held, awaiting a
// frame boundary.
func (a *Assembler) Buffered() int { return len(a.buf) }

// Reset discards any partially accumulated data.
func (a *Assembler) Reset() { a.buf = nil }

// Feed appends newly read bytes and extracts every frame it can find
// by repeated application of the resynchronization policy. Each
// return packet corresponds to one frame whose delimiter has been
// fully consumed from the internal buffer.
func (a *Assembler) Feed(data []byte) []*packet.Packet {
	a.buf = append(a.buf, data...)

	var out []*packet.Packet
	for {
		p, ok := a.drainOne()
		if !ok {
			break
		}
		out = append(out, p)
	}

	if len(a.buf) > MaxBufferBytes {
		dropped := len(a.buf)
		a.buf = nil
		if a.OnOverflow != nil {
			a.OnOverflow(dropped)
		}
	}
	return out
}

// drainOne attempts to pull a single frame from the front of the
// buffer. It returns ok=false when no complete frame is available yet
// (either the buffer is too short, or it does not end in a
// delimiter): in both cases the caller should wait for more data.
//
// When the buffer does end in a delimiter, it tries decoding the body
// at successive start offsets (spec's resynchronization policy): a
// decode success that consumes the entire candidate body and yields a
// known Packet variant is accepted, any bytes before that offset are
// silently dropped as garbage. A decode that only finds unknown fields
// (Kind unset) counts as a failure. If no
// offset within the window decodes cleanly, one byte is dropped from
// the front of the buffer and the search repeats against the
// (still-present) trailing delimiter.
func (a *Assembler) drainOne() (*packet.Packet, bool) {
	for len(a.buf) >= DelimiterLen {
		if !isDelimiter(a.buf[len(a.buf)-DelimiterLen:]) {
			return nil, false
		}

		body := a.buf[:len(a.buf)-DelimiterLen]
		maxOffset := len(body)
		if maxOffset > MaxResyncOffset {
			maxOffset = MaxResyncOffset
		}

		for off := 0; off <= maxOffset; off++ {
			var p packet.Packet
			if err := p.Unmarshal(body[off:]); err == nil && p.Kind != packet.KindUnset {
				a.buf = a.buf[len(a.buf):]
				return &p, true
			}
		}

		// No offset in the window produced a clean decode; drop one
		// byte and retry against the same trailing delimiter.
		a.buf = a.buf[1:]
	}
	return nil, false
}
