package packet

import "testing"

func roundTrip(t *testing.T, p *Packet) *Packet {
	t.Helper()
	b, err := p.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var got Packet
	if err := got.Unmarshal(b); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	return &got
}

func TestPacketRoundTripHeader(t *testing.T) {
	p := &Packet{Kind: KindHeader, Header: &Header{ID: 7, Length: 128, Checksum: 0xdead, Version: 1, Flags: 3}}
	got := roundTrip(t, p)
	if got.Kind != KindHeader || *got.Header != *p.Header {
		t.Fatalf("got %+v, want %+v", got, p)
	}
}

func TestPacketRoundTripPayload(t *testing.T) {
	p := &Packet{Kind: KindPayload, Payload: &Payload{Data: []byte{1, 2, 3, 0, 255}}}
	got := roundTrip(t, p)
	if got.Kind != KindPayload || string(got.Payload.Data) != string(p.Payload.Data) {
		t.Fatalf("got %+v, want %+v", got, p)
	}
}

func TestPacketRoundTripEmptyPayload(t *testing.T) {
	p := &Packet{Kind: KindPayload, Payload: &Payload{Data: nil}}
	got := roundTrip(t, p)
	if got.Kind != KindPayload || len(got.Payload.Data) != 0 {
		t.Fatalf("got %+v, want empty payload", got)
	}
}

func TestPacketRoundTripChecksum(t *testing.T) {
	p := &Packet{Kind: KindChecksum, Checksum: &Checksum{Value: 0xabcdef}}
	got := roundTrip(t, p)
	if got.Kind != KindChecksum || got.Checksum.Value != p.Checksum.Value {
		t.Fatalf("got %+v, want %+v", got, p)
	}
}

func TestPacketRoundTripTimestamp(t *testing.T) {
	p := &Packet{Kind: KindTimestamp, Timestamp: &Timestamp{Value: 1712345678.123}}
	got := roundTrip(t, p)
	if got.Kind != KindTimestamp || got.Timestamp.Value != p.Timestamp.Value {
		t.Fatalf("got %+v, want %+v", got, p)
	}
}

func TestPacketRoundTripEndpoints(t *testing.T) {
	src := &Packet{Kind: KindSource, Source: &Endpoint{Host: "10.0.0.1", Port: 5005}}
	got := roundTrip(t, src)
	if got.Kind != KindSource || *got.Source != *src.Source {
		t.Fatalf("got %+v, want %+v", got, src)
	}

	dst := &Packet{Kind: KindDestination, Destination: &Endpoint{Host: "", Port: 5006}}
	got2 := roundTrip(t, dst)
	if got2.Kind != KindDestination || got2.Destination.Port != 5006 || got2.Destination.Host != "" {
		t.Fatalf("got %+v, want %+v", got2, dst)
	}
}

func TestPacketRoundTripScalars(t *testing.T) {
	cases := []*Packet{
		{Kind: KindProtocol, Protocol: &Protocol{Value: 17}},
		{Kind: KindFlags, Flags: &Flags{Value: 0xff}},
		{Kind: KindVersion, Version: &Version{Value: 2}},
	}
	for _, p := range cases {
		got := roundTrip(t, p)
		if got.Kind != p.Kind {
			t.Fatalf("kind mismatch: got %v want %v", got.Kind, p.Kind)
		}
	}
}

func TestPacketRoundTripTargetPacket(t *testing.T) {
	tp := &TargetPacket{
		TargetID:    42,
		Lla:         &Lla{Lat: 33.6, Lon: -84.4, Alt: 310.5},
		Ned:         &Ned{North: 100, East: -50, Down: 12.5},
		NedVelocity: &Ned{North: 1.1, East: -2.2, Down: 0},
		Time:        12.345,
		Origin:      &Lla{Lat: 33.5, Lon: -84.5, Alt: 300},
	}
	p := NewTargetPacket(tp)
	got := roundTrip(t, p)
	if got.Kind != KindTargetPacket {
		t.Fatalf("wrong kind: %v", got.Kind)
	}
	g := got.TargetPacket
	if g.TargetID != tp.TargetID || g.Time != tp.Time {
		t.Fatalf("scalar mismatch: got %+v want %+v", g, tp)
	}
	if *g.Lla != *tp.Lla || *g.Ned != *tp.Ned || *g.NedVelocity != *tp.NedVelocity || *g.Origin != *tp.Origin {
		t.Fatalf("nested mismatch: got %+v want %+v", g, tp)
	}
}

func TestPacketRoundTripTargetPacketList(t *testing.T) {
	list := []*TargetPacket{
		{TargetID: 1, Lla: &Lla{Lat: 1, Lon: 2, Alt: 3}, Time: 0.1},
		{TargetID: 2, Lla: &Lla{Lat: 4, Lon: 5, Alt: 6}, Time: 0.2},
	}
	p := NewTargetPacketList(list)
	got := roundTrip(t, p)
	if got.Kind != KindTargetPacketList {
		t.Fatalf("wrong kind: %v", got.Kind)
	}
	if len(got.TargetPacketList.Packets) != len(list) {
		t.Fatalf("got %d packets, want %d", len(got.TargetPacketList.Packets), len(list))
	}
	for i, tp := range list {
		g := got.TargetPacketList.Packets[i]
		if g.TargetID != tp.TargetID || *g.Lla != *tp.Lla || g.Time != tp.Time {
			t.Fatalf("packet %d mismatch: got %+v want %+v", i, g, tp)
		}
	}
}

func TestPacketMarshalNilKind(t *testing.T) {
	p := &Packet{}
	if _, err := p.Marshal(); err == nil {
		t.Fatalf("expected error for unset kind")
	}
}

func TestPacketUnmarshalIgnoresUnknownFields(t *testing.T) {
	// Field 99 is not part of the oneof; a forward-compatible decoder
	// skips it rather than erroring.
	p := &Packet{Kind: KindChecksum, Checksum: &Checksum{Value: 9}}
	b, err := p.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	extra := appendMessageField(nil, 99, []byte("ignored"))
	b = append(b, extra...)

	var got Packet
	if err := got.Unmarshal(b); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.Kind != KindChecksum || got.Checksum.Value != 9 {
		t.Fatalf("got %+v", got)
	}
}
