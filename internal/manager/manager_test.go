package manager

import (
	"context"
	"testing"
	"time"

	"telerelay/internal/events"
	"telerelay/internal/frame"
	"telerelay/internal/logger"
	"telerelay/internal/packet"
	"telerelay/internal/simulation"
	"telerelay/internal/transport"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	dir := t.TempDir()
	fl := logger.New(dir)
	t.Cleanup(fl.Close)
	return New(fl, events.NopEmitter{})
}

func mustStartUDP(t *testing.T, m *Manager, ctx context.Context, id, addr string) string {
	t.Helper()
	got, err := m.StartUDPConnection(ctx, id, addr)
	if err != nil {
		t.Fatalf("StartUDPConnection(%s): %v", addr, err)
	}
	return got
}

func TestManagerAddRejectsDuplicateID(t *testing.T) {
	m := newTestManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	id := mustStartUDP(t, m, ctx, "a", "127.0.0.1:0")
	u, _ := m.Get(id)

	if err := m.Add(id, u); err == nil {
		t.Fatal("expected error adding duplicate id")
	}
}

func TestManagerIsSocketAddressInUse(t *testing.T) {
	m := newTestManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	u, err := transport.NewUDP("127.0.0.1:0")
	if err != nil {
		t.Fatalf("NewUDP: %v", err)
	}
	if err := m.Add("probe", u); err != nil {
		t.Fatalf("Add: %v", err)
	}
	u.Start(ctx, "probe", nil)

	if !m.IsSocketAddressInUse(u.LocalAddr()) {
		t.Fatal("expected local address to be reported in use")
	}
	if m.IsSocketAddressInUse("127.0.0.1:1") {
		t.Fatal("expected unrelated address to be reported free")
	}
}

func TestManagerStopRemovesConnection(t *testing.T) {
	m := newTestManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	id := mustStartUDP(t, m, ctx, "a", "127.0.0.1:0")
	if err := m.Stop(id); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if _, ok := m.Get(id); ok {
		t.Fatal("expected connection to be removed after Stop")
	}
	if m.ConnectionCount() != 0 {
		t.Fatalf("expected 0 connections, got %d", m.ConnectionCount())
	}
}

func TestManagerSendToRoundTrip(t *testing.T) {
	m := newTestManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	aID := mustStartUDP(t, m, ctx, "a", "127.0.0.1:0")
	bID := mustStartUDP(t, m, ctx, "b", "127.0.0.1:0")

	b, _ := m.Get(bID)
	bu := b.(*transport.UDP)

	if err := m.SetUDPRemoteAddr(aID, bu.LocalAddr()); err != nil {
		t.Fatalf("SetUDPRemoteAddr: %v", err)
	}

	p := packet.NewTargetPacket(&packet.TargetPacket{TargetID: 7, Time: 1.0})
	data, err := frame.Encode(p)
	if err != nil {
		t.Fatal(err)
	}

	if err := m.SendTo(ctx, aID, data); err != nil {
		t.Fatalf("SendTo: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := bu.Target(7); ok {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("destination never observed the sent target packet")
}

// frameSource is an in-memory Transport that also implements
// transport.LastFramer, standing in for a serial source: only
// *transport.Serial exposes a last frame among the real transports.
type frameSource struct{ frame []byte }

func (f *frameSource) Send(context.Context, []byte) error { return nil }
func (f *frameSource) Stop() error                        { return nil }
func (f *frameSource) Name() string                       { return "frame_source" }
func (f *frameSource) Kind() transport.Kind               { return transport.KindSerial }
func (f *frameSource) ReceivedCount() uint64              { return 0 }
func (f *frameSource) SentCount() uint64                  { return 0 }
func (f *frameSource) ResetCounters()                     {}
func (f *frameSource) LastFrame() []byte                  { return f.frame }
func (f *frameSource) WaitForFrame(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestManagerShareDataBetweenIDs(t *testing.T) {
	m := newTestManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dstID := mustStartUDP(t, m, ctx, "dst", "127.0.0.1:0")
	dstT, _ := m.Get(dstID)
	dst := dstT.(*transport.UDP)

	// The source already holds a frame to share.
	p := packet.NewTargetPacket(&packet.TargetPacket{TargetID: 3, Time: 2.0})
	data, err := frame.Encode(p)
	if err != nil {
		t.Fatal(err)
	}
	srcID := "src"
	src := &frameSource{frame: data}
	if err := m.Add(srcID, src); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if src.LastFrame() == nil {
		t.Fatal("source has no frame to share")
	}

	// dst only needs a remote address so the shipper's Send succeeds;
	// point it at itself so the shared frame's arrival can be observed
	// through dst's own Targets().
	if err := m.SetUDPRemoteAddr(dstID, dst.LocalAddr()); err != nil {
		t.Fatalf("SetUDPRemoteAddr: %v", err)
	}

	if _, err := m.ShareDataBetweenIDs(ctx, srcID, dstID, 20); err != nil {
		t.Fatalf("ShareDataBetweenIDs: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := dst.Target(3); ok {
			if err := m.StopShare(srcID, dstID); err != nil {
				t.Fatalf("StopShare: %v", err)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("share never delivered the source's last frame to the destination")
}

func TestManagerStopShareUnknownFails(t *testing.T) {
	m := newTestManager(t)
	if err := m.StopShare("nope", "also-nope"); err == nil {
		t.Fatal("expected error stopping a share that was never started")
	}
}

func TestManagerSimulationInitAndStreamListsAndStops(t *testing.T) {
	m := newTestManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sink, err := transport.NewUDP("127.0.0.1:0")
	if err != nil {
		t.Fatalf("NewUDP: %v", err)
	}
	t.Cleanup(func() { sink.Stop() })
	sink.Start(ctx, "sink", nil)

	trajectories := []simulation.Trajectory{
		{TargetID: 1, FinalState: []simulation.Sample{
			{Lat: 1, Lon: 1, Alt: 10, Time: 0},
			{Lat: 1.001, Lon: 1, Alt: 10, Time: 0.01},
		}},
	}

	id, err := m.SimulationInitAndStream(ctx, "sim_test", "127.0.0.1:0", sink.LocalAddr(), 5, nil, trajectories)
	if err != nil {
		t.Fatalf("SimulationInitAndStream: %v", err)
	}

	streams := m.ListActiveSimulationStreams()
	if len(streams) != 1 || streams[0] != id {
		t.Fatalf("expected active stream %q, got %v", id, streams)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := sink.Target(1); ok {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if _, ok := sink.Target(1); !ok {
		t.Fatal("sink never received a simulation target packet")
	}

	if err := m.StopSimulationUDPStreaming(id); err != nil {
		t.Fatalf("StopSimulationUDPStreaming: %v", err)
	}
	if streams := m.ListActiveSimulationStreams(); len(streams) != 0 {
		t.Fatalf("expected no active streams after stop, got %v", streams)
	}
}

func TestManagerShareTargetWithoutSimulationFails(t *testing.T) {
	m := newTestManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	destID := mustStartUDP(t, m, ctx, "dst", "127.0.0.1:0")

	if _, err := m.ShareTargetToConnection(ctx, 99, destID, 5); err == nil {
		t.Fatal("expected error sharing a target before any simulation ran")
	}
	if _, err := m.ShareTargetToUDPServer(ctx, "sim_x", "127.0.0.1:0", "127.0.0.1:1", 5, 99); err == nil {
		t.Fatal("expected error replaying a target before any simulation ran")
	}
}

func TestManagerShareTargetToUDPServer(t *testing.T) {
	m := newTestManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	streamSink, err := transport.NewUDP("127.0.0.1:0")
	if err != nil {
		t.Fatalf("NewUDP: %v", err)
	}
	t.Cleanup(func() { streamSink.Stop() })
	streamSink.Start(ctx, "stream_sink", nil)

	trajectories := []simulation.Trajectory{
		{TargetID: 5, FinalState: []simulation.Sample{
			{Lat: 1, Lon: 1, Alt: 10, Time: 0},
			{Lat: 1.001, Lon: 1, Alt: 10, Time: 0.01},
		}},
	}
	simID, err := m.SimulationInitAndStream(ctx, "sim_source", "127.0.0.1:0", streamSink.LocalAddr(), 5, nil, trajectories)
	if err != nil {
		t.Fatalf("SimulationInitAndStream: %v", err)
	}
	t.Cleanup(func() { m.StopSimulationUDPStreaming(simID) })

	shareSink, err := transport.NewUDP("127.0.0.1:0")
	if err != nil {
		t.Fatalf("NewUDP: %v", err)
	}
	t.Cleanup(func() { shareSink.Stop() })
	shareSink.Start(ctx, "share_sink", nil)

	shareID, err := m.ShareTargetToUDPServer(ctx, "sim_share", "127.0.0.1:0", shareSink.LocalAddr(), 5, 5)
	if err != nil {
		t.Fatalf("ShareTargetToUDPServer: %v", err)
	}
	t.Cleanup(func() { m.StopSimulationUDPStreaming(shareID) })

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := shareSink.Target(5); ok {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("share sink never received the replayed target packet")
}

func TestManagerShareTargetToConnection(t *testing.T) {
	m := newTestManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	streamSink, err := transport.NewUDP("127.0.0.1:0")
	if err != nil {
		t.Fatalf("NewUDP: %v", err)
	}
	t.Cleanup(func() { streamSink.Stop() })
	streamSink.Start(ctx, "stream_sink2", nil)

	trajectories := []simulation.Trajectory{
		{TargetID: 9, FinalState: []simulation.Sample{
			{Lat: 1, Lon: 1, Alt: 10, Time: 0},
			{Lat: 1.001, Lon: 1, Alt: 10, Time: 0.01},
		}},
	}
	simID, err := m.SimulationInitAndStream(ctx, "sim_source2", "127.0.0.1:0", streamSink.LocalAddr(), 5, nil, trajectories)
	if err != nil {
		t.Fatalf("SimulationInitAndStream: %v", err)
	}
	t.Cleanup(func() { m.StopSimulationUDPStreaming(simID) })

	destID := mustStartUDP(t, m, ctx, "dst", "127.0.0.1:0")
	destT, _ := m.Get(destID)
	dest := destT.(*transport.UDP)
	if err := m.SetUDPRemoteAddr(destID, dest.LocalAddr()); err != nil {
		t.Fatalf("SetUDPRemoteAddr: %v", err)
	}

	shareID, err := m.ShareTargetToConnection(ctx, 9, destID, 5)
	if err != nil {
		t.Fatalf("ShareTargetToConnection: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := dest.Target(9); ok {
			if err := m.StopShareToConnection(shareID, destID); err != nil {
				t.Fatalf("StopShareToConnection: %v", err)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("destination never received the replayed target packet")
}
