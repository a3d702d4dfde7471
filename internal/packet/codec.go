package packet

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Marshal encodes p using the canonical protobuf wire format for the
// Packet schema (SPEC_FULL.md §13). Encoding is hand-rolled against
// protowire's low-level primitives rather than generated code, but
// the output is bit-identical to what a generated implementation of
// that schema would produce.
func (p *Packet) Marshal() ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("packet: marshal nil packet")
	}
	var sub []byte
	var num protowire.Number
	switch p.Kind {
	case KindHeader:
		num, sub = 1, marshalHeader(p.Header)
	case KindPayload:
		num, sub = 2, marshalPayload(p.Payload)
	case KindChecksum:
		num, sub = 3, marshalUint32Value(p.Checksum.Value)
	case KindTimestamp:
		num, sub = 4, marshalFloat64Value(p.Timestamp.Value)
	case KindSource:
		num, sub = 5, marshalEndpoint(p.Source)
	case KindDestination:
		num, sub = 6, marshalEndpoint(p.Destination)
	case KindProtocol:
		num, sub = 7, marshalUint32Value(p.Protocol.Value)
	case KindFlags:
		num, sub = 8, marshalUint32Value(p.Flags.Value)
	case KindVersion:
		num, sub = 9, marshalUint32Value(p.Version.Value)
	case KindTargetPacket:
		num, sub = 10, marshalTargetPacket(p.TargetPacket)
	case KindTargetPacketList:
		num, sub = 11, marshalTargetPacketList(p.TargetPacketList)
	default:
		return nil, fmt.Errorf("packet: unknown kind %v", p.Kind)
	}
	var b []byte
	b = protowire.AppendTag(b, num, protowire.BytesType)
	b = protowire.AppendBytes(b, sub)
	return b, nil
}

// Unmarshal decodes b into p. If the same oneof field number repeats
// in the stream (legal but unusual for a well-formed encoder), the
// last occurrence wins, matching standard protobuf oneof semantics.
func (p *Packet) Unmarshal(b []byte) error {
	*p = Packet{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("packet: bad tag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		if typ != protowire.BytesType {
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("packet: bad field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
			continue
		}
		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return fmt.Errorf("packet: bad bytes field %d: %w", num, protowire.ParseError(n))
		}
		b = b[n:]

		var err error
		switch num {
		case 1:
			p.Kind, p.Header, err = KindHeader, new(Header), nil
			err = unmarshalHeader(v, p.Header)
		case 2:
			p.Kind, p.Payload = KindPayload, new(Payload)
			err = unmarshalPayload(v, p.Payload)
		case 3:
			p.Kind, p.Checksum = KindChecksum, new(Checksum)
			p.Checksum.Value, err = unmarshalUint32Value(v)
		case 4:
			p.Kind, p.Timestamp = KindTimestamp, new(Timestamp)
			p.Timestamp.Value, err = unmarshalFloat64Value(v)
		case 5:
			p.Kind, p.Source = KindSource, new(Endpoint)
			err = unmarshalEndpoint(v, p.Source)
		case 6:
			p.Kind, p.Destination = KindDestination, new(Endpoint)
			err = unmarshalEndpoint(v, p.Destination)
		case 7:
			p.Kind, p.Protocol = KindProtocol, new(Protocol)
			p.Protocol.Value, err = unmarshalUint32Value(v)
		case 8:
			p.Kind, p.Flags = KindFlags, new(Flags)
			p.Flags.Value, err = unmarshalUint32Value(v)
		case 9:
			p.Kind, p.Version = KindVersion, new(Version)
			p.Version.Value, err = unmarshalUint32Value(v)
		case 10:
			p.Kind, p.TargetPacket = KindTargetPacket, new(TargetPacket)
			err = unmarshalTargetPacket(v, p.TargetPacket)
		case 11:
			p.Kind, p.TargetPacketList = KindTargetPacketList, new(TargetPacketList)
			err = unmarshalTargetPacketList(v, p.TargetPacketList)
		default:
			// Unknown field in the oneof: ignore, preserve forward
			// compatibility the way protobuf generally does.
			continue
		}
		if err != nil {
			return fmt.Errorf("packet: field %d: %w", num, err)
		}
	}
	return nil
}

// --- scalar helpers -------------------------------------------------

func marshalUint32Value(v uint32) []byte {
	if v == 0 {
		return nil
	}
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(v))
	return b
}

func unmarshalUint32Value(b []byte) (uint32, error) {
	var out uint32
	err := forEachField(b, func(num protowire.Number, typ protowire.Type, raw []byte) (int, error) {
		if num == 1 && typ == protowire.VarintType {
			v, n := protowire.ConsumeVarint(raw)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			out = uint32(v)
			return n, nil
		}
		return skipField(num, typ, raw)
	})
	return out, err
}

func marshalFloat64Value(v float64) []byte {
	if v == 0 {
		return nil
	}
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, math.Float64bits(v))
	return b
}

func unmarshalFloat64Value(b []byte) (float64, error) {
	var out float64
	err := forEachField(b, func(num protowire.Number, typ protowire.Type, raw []byte) (int, error) {
		if num == 1 && typ == protowire.Fixed64Type {
			v, n := protowire.ConsumeFixed64(raw)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			out = math.Float64frombits(v)
			return n, nil
		}
		return skipField(num, typ, raw)
	})
	return out, err
}

// forEachField walks the length-delimited submessage b, invoking fn
// for every field. fn consumes raw and returns the number of bytes it
// consumed (which must match protowire's own accounting) or an error.
func forEachField(b []byte, fn func(num protowire.Number, typ protowire.Type, raw []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		rest := b[n:]
		consumed, err := fn(num, typ, rest)
		if err != nil {
			return err
		}
		b = rest[consumed:]
	}
	return nil
}

func skipField(num protowire.Number, typ protowire.Type, raw []byte) (int, error) {
	n := protowire.ConsumeFieldValue(num, typ, raw)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	return n, nil
}

// --- Header -----------------------------------------------------------

func marshalHeader(h *Header) []byte {
	if h == nil {
		return nil
	}
	var b []byte
	b = appendVarintField(b, 1, uint64(h.ID))
	b = appendVarintField(b, 2, uint64(h.Length))
	b = appendVarintField(b, 3, uint64(h.Checksum))
	b = appendVarintField(b, 4, uint64(h.Version))
	b = appendVarintField(b, 5, uint64(h.Flags))
	return b
}

func unmarshalHeader(b []byte, h *Header) error {
	return forEachField(b, func(num protowire.Number, typ protowire.Type, raw []byte) (int, error) {
		if typ != protowire.VarintType {
			return skipField(num, typ, raw)
		}
		v, n := protowire.ConsumeVarint(raw)
		if n < 0 {
			return 0, protowire.ParseError(n)
		}
		switch num {
		case 1:
			h.ID = uint32(v)
		case 2:
			h.Length = uint32(v)
		case 3:
			h.Checksum = uint32(v)
		case 4:
			h.Version = uint32(v)
		case 5:
			h.Flags = uint32(v)
		}
		return n, nil
	})
}

// --- Payload ------------------------------------------------------------

func marshalPayload(p *Payload) []byte {
	if p == nil {
		return nil
	}
	var b []byte
	if len(p.Data) > 0 {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, p.Data)
	}
	return b
}

func unmarshalPayload(b []byte, p *Payload) error {
	return forEachField(b, func(num protowire.Number, typ protowire.Type, raw []byte) (int, error) {
		if num == 1 && typ == protowire.BytesType {
			v, n := protowire.ConsumeBytes(raw)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			p.Data = append([]byte(nil), v...)
			return n, nil
		}
		return skipField(num, typ, raw)
	})
}

// --- Endpoint (Source / Destination) -------------------------------------

func marshalEndpoint(e *Endpoint) []byte {
	if e == nil {
		return nil
	}
	var b []byte
	if e.Host != "" {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, e.Host)
	}
	b = appendVarintField(b, 2, uint64(e.Port))
	return b
}

func unmarshalEndpoint(b []byte, e *Endpoint) error {
	return forEachField(b, func(num protowire.Number, typ protowire.Type, raw []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(raw)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			e.Host = v
			return n, nil
		case num == 2 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(raw)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			e.Port = uint32(v)
			return n, nil
		default:
			return skipField(num, typ, raw)
		}
	})
}

// --- Lla / Ned ------------------------------------------------------------

func marshalLla(l *Lla) []byte {
	if l == nil {
		return nil
	}
	var b []byte
	b = appendFixed64Field(b, 1, l.Lat)
	b = appendFixed64Field(b, 2, l.Lon)
	b = appendFixed64Field(b, 3, l.Alt)
	return b
}

func unmarshalLla(b []byte, l *Lla) error {
	return forEachField(b, func(num protowire.Number, typ protowire.Type, raw []byte) (int, error) {
		if typ != protowire.Fixed64Type {
			return skipField(num, typ, raw)
		}
		v, n := protowire.ConsumeFixed64(raw)
		if n < 0 {
			return 0, protowire.ParseError(n)
		}
		f := math.Float64frombits(v)
		switch num {
		case 1:
			l.Lat = f
		case 2:
			l.Lon = f
		case 3:
			l.Alt = f
		}
		return n, nil
	})
}

func marshalNed(v *Ned) []byte {
	if v == nil {
		return nil
	}
	var b []byte
	b = appendFixed64Field(b, 1, v.North)
	b = appendFixed64Field(b, 2, v.East)
	b = appendFixed64Field(b, 3, v.Down)
	return b
}

func unmarshalNed(b []byte, v *Ned) error {
	return forEachField(b, func(num protowire.Number, typ protowire.Type, raw []byte) (int, error) {
		if typ != protowire.Fixed64Type {
			return skipField(num, typ, raw)
		}
		f, n := protowire.ConsumeFixed64(raw)
		if n < 0 {
			return 0, protowire.ParseError(n)
		}
		val := math.Float64frombits(f)
		switch num {
		case 1:
			v.North = val
		case 2:
			v.East = val
		case 3:
			v.Down = val
		}
		return n, nil
	})
}

// --- TargetPacket / TargetPacketList --------------------------------------

func marshalTargetPacket(t *TargetPacket) []byte {
	if t == nil {
		return nil
	}
	var b []byte
	b = appendVarintField(b, 1, uint64(t.TargetID))
	if t.Lla != nil {
		b = appendMessageField(b, 2, marshalLla(t.Lla))
	}
	if t.Ned != nil {
		b = appendMessageField(b, 3, marshalNed(t.Ned))
	}
	if t.NedVelocity != nil {
		b = appendMessageField(b, 4, marshalNed(t.NedVelocity))
	}
	b = appendFixed64Field(b, 5, t.Time)
	if t.Origin != nil {
		b = appendMessageField(b, 6, marshalLla(t.Origin))
	}
	return b
}

func unmarshalTargetPacket(b []byte, t *TargetPacket) error {
	return forEachField(b, func(num protowire.Number, typ protowire.Type, raw []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(raw)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			t.TargetID = uint32(v)
			return n, nil
		case num == 2 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(raw)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			t.Lla = new(Lla)
			if err := unmarshalLla(v, t.Lla); err != nil {
				return 0, err
			}
			return n, nil
		case num == 3 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(raw)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			t.Ned = new(Ned)
			if err := unmarshalNed(v, t.Ned); err != nil {
				return 0, err
			}
			return n, nil
		case num == 4 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(raw)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			t.NedVelocity = new(Ned)
			if err := unmarshalNed(v, t.NedVelocity); err != nil {
				return 0, err
			}
			return n, nil
		case num == 5 && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(raw)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			t.Time = math.Float64frombits(v)
			return n, nil
		case num == 6 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(raw)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			t.Origin = new(Lla)
			if err := unmarshalLla(v, t.Origin); err != nil {
				return 0, err
			}
			return n, nil
		default:
			return skipField(num, typ, raw)
		}
	})
}

func marshalTargetPacketList(l *TargetPacketList) []byte {
	if l == nil {
		return nil
	}
	var b []byte
	for _, tp := range l.Packets {
		b = appendMessageField(b, 1, marshalTargetPacket(tp))
	}
	return b
}

func unmarshalTargetPacketList(b []byte, l *TargetPacketList) error {
	return forEachField(b, func(num protowire.Number, typ protowire.Type, raw []byte) (int, error) {
		if num != 1 || typ != protowire.BytesType {
			return skipField(num, typ, raw)
		}
		v, n := protowire.ConsumeBytes(raw)
		if n < 0 {
			return 0, protowire.ParseError(n)
		}
		tp := new(TargetPacket)
		if err := unmarshalTargetPacket(v, tp); err != nil {
			return 0, err
		}
		l.Packets = append(l.Packets, tp)
		return n, nil
	})
}

// --- tag-append helpers ----------------------------------------------------

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendFixed64Field(b []byte, num protowire.Number, v float64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(v))
}

func appendMessageField(b []byte, num protowire.Number, sub []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, sub)
}
