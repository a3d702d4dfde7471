package logger

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"telerelay/internal/packet"
)

func TestFileLoggerWritesReceivedAndSent(t *testing.T) {
	dir := t.TempDir()
	l := New(dir)

	l.SavePacketFast("s1", &packet.Packet{Kind: packet.KindChecksum, Checksum: &packet.Checksum{Value: 42}})
	l.LogSentData("s1", []byte{0xde, 0xad, 0xbe, 0xef})
	l.Close()

	data, err := os.ReadFile(filepath.Join(dir, "connection_s1.log"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %q", len(lines), data)
	}
	if !strings.Contains(lines[0], `"value":42`) {
		t.Fatalf("first line missing JSON payload: %q", lines[0])
	}
	if !strings.Contains(lines[1], "SENT: de ad be ef") {
		t.Fatalf("second line missing hex payload: %q", lines[1])
	}
}

func TestFileLoggerPreservesOrderPerConnection(t *testing.T) {
	dir := t.TempDir()
	l := New(dir)

	for i := 0; i < 50; i++ {
		l.SavePacketFast("ordered", &packet.Packet{Kind: packet.KindChecksum, Checksum: &packet.Checksum{Value: uint32(i)}})
	}
	l.Close()

	data, err := os.ReadFile(filepath.Join(dir, "connection_ordered.log"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 50 {
		t.Fatalf("got %d lines, want 50", len(lines))
	}
	for i, line := range lines {
		want := strings.Contains(line, `"value":`+strconv.Itoa(i))
		if !want {
			t.Fatalf("line %d out of order: %q", i, line)
		}
	}
}

func TestFileLoggerRejectsEmptyConnID(t *testing.T) {
	dir := t.TempDir()
	l := New(dir)
	l.SavePacketFast("", &packet.Packet{Kind: packet.KindChecksum, Checksum: &packet.Checksum{Value: 1}})
	l.LogSentData("", []byte{1})
	l.Close()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no files written for empty connection id, got %v", entries)
	}
}

func TestFileLoggerListAndReadLogFiles(t *testing.T) {
	dir := t.TempDir()
	l := New(dir)
	l.SavePacketFast("a", &packet.Packet{Kind: packet.KindChecksum, Checksum: &packet.Checksum{Value: 1}})
	l.SavePacketFast("b", &packet.Packet{Kind: packet.KindChecksum, Checksum: &packet.Checksum{Value: 2}})
	l.Close()

	names, err := l.ListLogFiles()
	if err != nil {
		t.Fatalf("ListLogFiles: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("got %v, want 2 files", names)
	}

	text, err := l.ReadLogFile("a")
	if err != nil {
		t.Fatalf("ReadLogFile: %v", err)
	}
	if !strings.Contains(text, `"value":1`) {
		t.Fatalf("unexpected content: %q", text)
	}
}
