package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"telerelay/internal/flog"
	"telerelay/internal/frame"
	"telerelay/internal/notify"
	"telerelay/internal/packet"
)

// udpSocketReadBufferBytes and udpSocketWriteBufferBytes are applied
// to every socket on bind, matching the teacher's own UDP path tuning
// (internal/server/udp.go) for high-rate telemetry traffic. Overridden
// at process startup via ConfigureUDPBuffers (conf.UDP.*).
var (
	udpBufMu                  sync.RWMutex
	udpSocketReadBufferBytes  = 8 * 1024 * 1024
	udpSocketWriteBufferBytes = 8 * 1024 * 1024
)

// ConfigureUDPBuffers overrides the read/write socket buffer sizes
// requested by every UDP transport bound after this call. Call before
// the first NewUDP, or accept that already-bound sockets keep their
// old sizing. Non-positive values leave the corresponding buffer
// unchanged.
func ConfigureUDPBuffers(readBytes, writeBytes int) {
	udpBufMu.Lock()
	defer udpBufMu.Unlock()
	if readBytes > 0 {
		udpSocketReadBufferBytes = readBytes
	}
	if writeBytes > 0 {
		udpSocketWriteBufferBytes = writeBytes
	}
}

// udpRecvBufferBytes is sized to the maximum possible datagram
// payload (spec §4.4).
const udpRecvBufferBytes = 65535

// udpReadDeadline bounds each ReadFromUDP call so the reader loop can
// observe cancellation without a dedicated platform wakeup mechanism.
const udpReadDeadline = 200 * time.Millisecond

// UDP is the datagram transport variant. remote_addr is unset until
// SetRemote is called; sends before that return an error (spec §4.4).
// remote is guarded by its own mutex rather than requiring exclusive
// ownership of the transport to reconfigure (spec §9 "Mutability of a
// shared resource").
type UDP struct {
	localAddr string
	conn      *net.UDPConn

	remoteMu sync.RWMutex
	remote   *net.UDPAddr

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped bool

	targetMu   sync.Mutex
	targetData map[uint32]*packet.TargetPacket

	notify *notify.Notify

	received atomic.Uint64
	sent     atomic.Uint64

	readerDone chan struct{}
}

// NewUDP binds a UDP socket at localAddr and returns an unstarted UDP
// transport. Call Start to launch its reader loop.
func NewUDP(localAddr string) (*UDP, error) {
	addr, err := net.ResolveUDPAddr("udp", localAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve udp local address %q: %w", localAddr, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("bind udp %q: %w", localAddr, err)
	}
	udpBufMu.RLock()
	readBytes, writeBytes := udpSocketReadBufferBytes, udpSocketWriteBufferBytes
	udpBufMu.RUnlock()
	if err := conn.SetReadBuffer(readBytes); err != nil {
		flog.Warnf("udp %q: set read buffer: %v", localAddr, err)
	}
	if err := conn.SetWriteBuffer(writeBytes); err != nil {
		flog.Warnf("udp %q: set write buffer: %v", localAddr, err)
	}

	// Use the actual bound address rather than the requested one: a
	// requested port of 0 only becomes concrete once the OS assigns
	// one, and callers (including IsSocketAddressInUse and shares)
	// need the real address to find this socket again.
	boundAddr := conn.LocalAddr().String()

	return &UDP{
		localAddr:  boundAddr,
		conn:       conn,
		targetData: make(map[uint32]*packet.TargetPacket),
		notify:     notify.New(),
	}, nil
}

// LocalAddr returns the bound local address string.
func (u *UDP) LocalAddr() string { return u.localAddr }

// SetRemote sets or replaces the destination address for Send.
func (u *UDP) SetRemote(addr string) error {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return fmt.Errorf("resolve udp remote address %q: %w", addr, err)
	}
	u.remoteMu.Lock()
	u.remote = raddr
	u.remoteMu.Unlock()
	return nil
}

// Start launches the reader loop. Start must be called at most once.
func (u *UDP) Start(ctx context.Context, id string, onPacket OnPacket) {
	ctx, cancel := context.WithCancel(ctx)
	u.mu.Lock()
	u.cancel = cancel
	u.readerDone = make(chan struct{})
	u.mu.Unlock()

	go u.readLoop(ctx, id, onPacket)
}

func (u *UDP) readLoop(ctx context.Context, id string, onPacket OnPacket) {
	defer close(u.readerDone)

	asm := frame.NewAssembler()
	asm.OnOverflow = func(n int) {
		flog.Warnf("udp[%s]: dropped %d buffered bytes after overflow with no valid frame", id, n)
	}

	buf := make([]byte, udpRecvBufferBytes)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		u.mu.Lock()
		conn := u.conn
		u.mu.Unlock()
		if conn == nil {
			return
		}

		conn.SetReadDeadline(time.Now().Add(udpReadDeadline))
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if flog.WErr(err) != nil {
				flog.Warnf("udp[%s]: recv error: %v", id, err)
			}
			continue
		}

		for _, p := range asm.Feed(buf[:n]) {
			u.received.Add(1)
			u.upsertTarget(p)
			u.notify.Signal()
			if onPacket != nil {
				onPacket(id, p)
			}
		}
	}
}

func (u *UDP) upsertTarget(p *packet.Packet) {
	switch p.Kind {
	case packet.KindTargetPacket:
		if p.TargetPacket == nil {
			return
		}
		u.targetMu.Lock()
		u.targetData[p.TargetPacket.TargetID] = p.TargetPacket
		u.targetMu.Unlock()
	case packet.KindTargetPacketList:
		if p.TargetPacketList == nil {
			return
		}
		u.targetMu.Lock()
		for _, tp := range p.TargetPacketList.Packets {
			if tp != nil {
				u.targetData[tp.TargetID] = tp
			}
		}
		u.targetMu.Unlock()
	}
}

// Target returns the latest TargetPacket observed for targetID, if
// any.
func (u *UDP) Target(targetID uint32) (*packet.TargetPacket, bool) {
	u.targetMu.Lock()
	defer u.targetMu.Unlock()
	tp, ok := u.targetData[targetID]
	return tp, ok
}

// Targets returns the latest cached TargetPacket of every target this
// connection has seen, in no particular order (spec §4.8
// list_udp_targets).
func (u *UDP) Targets() []*packet.TargetPacket {
	u.targetMu.Lock()
	defer u.targetMu.Unlock()
	out := make([]*packet.TargetPacket, 0, len(u.targetData))
	for _, tp := range u.targetData {
		out = append(out, tp)
	}
	return out
}

// WaitForFrame blocks until a new frame is decoded or ctx is done.
func (u *UDP) WaitForFrame(ctx context.Context) error {
	return u.notify.Wait(ctx)
}

// Send implements Transport: sends one datagram to the current remote
// address. Framing (one frame per datagram) is the caller's
// responsibility (spec §4.4).
func (u *UDP) Send(_ context.Context, data []byte) error {
	u.remoteMu.RLock()
	remote := u.remote
	u.remoteMu.RUnlock()
	if remote == nil {
		return errors.New("Remote address not set")
	}

	u.mu.Lock()
	conn := u.conn
	u.mu.Unlock()
	if conn == nil {
		return errors.New("udp: send after stop")
	}

	if _, err := conn.WriteToUDP(data, remote); err != nil {
		return fmt.Errorf("udp send to %s: %w", remote, err)
	}
	u.sent.Add(1)
	return nil
}

// Stop marks the transport stopped, signals the reader to exit, closes
// and drops the socket, and waits for the reader to return. Idempotent.
func (u *UDP) Stop() error {
	u.mu.Lock()
	if u.stopped {
		u.mu.Unlock()
		return nil
	}
	u.stopped = true
	conn := u.conn
	u.conn = nil
	cancel := u.cancel
	u.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	var err error
	if conn != nil {
		err = conn.Close()
	}
	if u.readerDone != nil {
		<-u.readerDone
	}
	return err
}

func (u *UDP) Name() string { return u.localAddr }
func (u *UDP) Kind() Kind   { return KindUDP }

func (u *UDP) ReceivedCount() uint64 { return u.received.Load() }
func (u *UDP) SentCount() uint64     { return u.sent.Load() }

func (u *UDP) ResetCounters() {
	u.received.Store(0)
	u.sent.Store(0)
}

var _ Transport = (*UDP)(nil)
