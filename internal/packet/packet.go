// Package packet defines the wire schema shared by every transport:
// a tagged-union Packet message (one of Header, Payload, Checksum,
// Timestamp, Source, Destination, Protocol, Flags, Version,
// TargetPacket, TargetPacketList) plus its JSON shape for the packet
// logger. Field numbers are part of the external contract — see
// SPEC_FULL.md §13.
package packet

// Kind discriminates the Packet oneof.
type Kind int

const (
	KindUnset Kind = iota
	KindHeader
	KindPayload
	KindChecksum
	KindTimestamp
	KindSource
	KindDestination
	KindProtocol
	KindFlags
	KindVersion
	KindTargetPacket
	KindTargetPacketList
)

func (k Kind) String() string {
	switch k {
	case KindHeader:
		return "Header"
	case KindPayload:
		return "Payload"
	case KindChecksum:
		return "Checksum"
	case KindTimestamp:
		return "Timestamp"
	case KindSource:
		return "Source"
	case KindDestination:
		return "Destination"
	case KindProtocol:
		return "Protocol"
	case KindFlags:
		return "Flags"
	case KindVersion:
		return "Version"
	case KindTargetPacket:
		return "TargetPacket"
	case KindTargetPacketList:
		return "TargetPacketList"
	default:
		return "Unset"
	}
}

// Header carries a simple framed-message header: an id, declared
// payload length, checksum, protocol version, and a flags bitfield.
type Header struct {
	ID       uint32 `json:"id"`
	Length   uint32 `json:"length"`
	Checksum uint32 `json:"checksum"`
	Version  uint32 `json:"version"`
	Flags    uint32 `json:"flags"`
}

// Payload carries an opaque byte blob.
type Payload struct {
	Data []byte `json:"data"`
}

// Checksum carries a standalone checksum value.
type Checksum struct {
	Value uint32 `json:"value"`
}

// Timestamp carries a standalone floating-point timestamp.
type Timestamp struct {
	Value float64 `json:"value"`
}

// Endpoint carries a host/port pair, used for both Source and
// Destination variants.
type Endpoint struct {
	Host string `json:"host"`
	Port uint32 `json:"port"`
}

// Protocol carries a protocol identifier.
type Protocol struct {
	Value uint32 `json:"value"`
}

// Flags carries a standalone flags bitfield.
type Flags struct {
	Value uint32 `json:"value"`
}

// Version carries a standalone protocol version.
type Version struct {
	Value uint32 `json:"value"`
}

// Lla is a geodetic position: latitude/longitude in degrees, altitude
// in meters.
type Lla struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
	Alt float64 `json:"alt"`
}

// Ned is a local tangent-plane position or velocity: north/east/down
// in meters (or meters/second for velocity).
type Ned struct {
	North float64 `json:"north"`
	East  float64 `json:"east"`
	Down  float64 `json:"down"`
}

// TargetPacket is one simulated target's state at a single instant.
type TargetPacket struct {
	TargetID    uint32  `json:"target_id"`
	Lla         *Lla    `json:"lla,omitempty"`
	Ned         *Ned    `json:"ned,omitempty"`
	NedVelocity *Ned    `json:"ned_velocity,omitempty"`
	Time        float64 `json:"time"`
	Origin      *Lla    `json:"origin,omitempty"`
}

// TargetPacketList batches several targets' states into a single
// time-step, so that one UDP datagram carries an aligned step for
// every target (spec §4.7).
type TargetPacketList struct {
	Packets []*TargetPacket `json:"packets"`
}

// Packet is the tagged union transmitted over every transport. Exactly
// one of the typed fields is non-nil, selected by Kind.
type Packet struct {
	Kind Kind `json:"kind"`

	Header           *Header           `json:"header,omitempty"`
	Payload          *Payload          `json:"payload,omitempty"`
	Checksum         *Checksum         `json:"checksum,omitempty"`
	Timestamp        *Timestamp        `json:"timestamp,omitempty"`
	Source           *Endpoint         `json:"source,omitempty"`
	Destination      *Endpoint         `json:"destination,omitempty"`
	Protocol         *Protocol         `json:"protocol,omitempty"`
	Flags            *Flags            `json:"flags,omitempty"`
	Version          *Version          `json:"version,omitempty"`
	TargetPacket     *TargetPacket     `json:"target_packet,omitempty"`
	TargetPacketList *TargetPacketList `json:"target_packet_list,omitempty"`
}

// SerialPacketEvent is the payload of the "serial_packet" UI event
// (spec §4.8): the connection id plus the decoded packet.
type SerialPacketEvent struct {
	ID     string  `json:"id"`
	Packet *Packet `json:"packet"`
}

// NewTargetPacket wraps a TargetPacket as a Packet.
func NewTargetPacket(tp *TargetPacket) *Packet {
	return &Packet{Kind: KindTargetPacket, TargetPacket: tp}
}

// NewTargetPacketList wraps a TargetPacketList as a Packet.
func NewTargetPacketList(list []*TargetPacket) *Packet {
	return &Packet{Kind: KindTargetPacketList, TargetPacketList: &TargetPacketList{Packets: list}}
}
