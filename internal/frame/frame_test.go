package frame

import (
	"testing"

	"telerelay/internal/packet"
)

func mustEncode(t *testing.T, p *packet.Packet) []byte {
	t.Helper()
	b, err := Encode(p)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return b
}

func TestAssemblerSingleFrame(t *testing.T) {
	p := &packet.Packet{Kind: packet.KindChecksum, Checksum: &packet.Checksum{Value: 99}}
	a := NewAssembler()
	got := a.Feed(mustEncode(t, p))
	if len(got) != 1 {
		t.Fatalf("got %d frames, want 1", len(got))
	}
	if got[0].Kind != packet.KindChecksum || got[0].Checksum.Value != 99 {
		t.Fatalf("got %+v", got[0])
	}
	if a.Buffered() != 0 {
		t.Fatalf("buffer not drained: %d bytes left", a.Buffered())
	}
}

func TestAssemblerWaitsForShortBuffer(t *testing.T) {
	a := NewAssembler()
	got := a.Feed([]byte{0x01, 0x02})
	if len(got) != 0 {
		t.Fatalf("expected no frames from a short buffer, got %d", len(got))
	}
	if a.Buffered() != 2 {
		t.Fatalf("expected buffered bytes to be retained, got %d", a.Buffered())
	}
}

func TestAssemblerWaitsWithoutTrailingDelimiter(t *testing.T) {
	a := NewAssembler()
	got := a.Feed([]byte{1, 2, 3, 4, 5, 6, 7, 8})
	if len(got) != 0 {
		t.Fatalf("expected no frames without a trailing delimiter, got %d", len(got))
	}
	if a.Buffered() != 8 {
		t.Fatalf("expected all bytes retained, got %d", a.Buffered())
	}
}

func TestAssemblerFrameSplitAcrossFeeds(t *testing.T) {
	p := &packet.Packet{Kind: packet.KindVersion, Version: &packet.Version{Value: 3}}
	frame := mustEncode(t, p)
	if len(frame) < 2 {
		t.Fatalf("frame too short to split: %d bytes", len(frame))
	}
	split := len(frame) / 2

	a := NewAssembler()
	got := a.Feed(frame[:split])
	if len(got) != 0 {
		t.Fatalf("expected no frame from a partial feed, got %d", len(got))
	}
	got = a.Feed(frame[split:])
	if len(got) != 1 {
		t.Fatalf("expected exactly one frame once completed, got %d", len(got))
	}
	if got[0].Version.Value != 3 {
		t.Fatalf("got %+v", got[0])
	}
}

func TestAssemblerResyncsPastGarbagePrefix(t *testing.T) {
	p := &packet.Packet{Kind: packet.KindProtocol, Protocol: &packet.Protocol{Value: 17}}
	frame := mustEncode(t, p)

	garbage := []byte{0xAA, 0xBB, 0xCC}
	a := NewAssembler()
	got := a.Feed(append(append([]byte{}, garbage...), frame...))
	if len(got) != 1 {
		t.Fatalf("expected the garbage-prefixed frame to resync, got %d frames", len(got))
	}
	if got[0].Protocol.Value != 17 {
		t.Fatalf("got %+v", got[0])
	}
}

func TestAssemblerDropsAndLogsOnOverflow(t *testing.T) {
	a := NewAssembler()
	var droppedBytes int
	a.OnOverflow = func(n int) { droppedBytes = n }

	// Garbage with no delimiter anywhere: the buffer only grows until
	// the feed that takes it past MaxBufferBytes (the 257th) drops it.
	chunk := make([]byte, 4096)
	for i := range chunk {
		chunk[i] = 0x7F
	}
	for i := 0; i < 300 && droppedBytes == 0; i++ {
		a.Feed(chunk)
	}

	if droppedBytes == 0 {
		t.Fatalf("expected overflow to fire")
	}
	if a.Buffered() != 0 {
		t.Fatalf("expected buffer cleared after overflow, got %d bytes", a.Buffered())
	}
}

func TestAssemblerMultipleFramesAcrossSeparateFeeds(t *testing.T) {
	a := NewAssembler()
	p1 := &packet.Packet{Kind: packet.KindFlags, Flags: &packet.Flags{Value: 1}}
	p2 := &packet.Packet{Kind: packet.KindFlags, Flags: &packet.Flags{Value: 2}}

	got1 := a.Feed(mustEncode(t, p1))
	got2 := a.Feed(mustEncode(t, p2))

	if len(got1) != 1 || got1[0].Flags.Value != 1 {
		t.Fatalf("first feed: got %+v", got1)
	}
	if len(got2) != 1 || got2[0].Flags.Value != 2 {
		t.Fatalf("second feed: got %+v", got2)
	}
}
