package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.bug.st/serial"

	"telerelay/internal/flog"
	"telerelay/internal/frame"
	"telerelay/internal/notify"
	"telerelay/internal/packet"
)

// readChunkBytes is the scratch buffer size for each serial Read
// call (spec §4.3: "Reads into a 1 KiB scratch").
const readChunkBytes = 1024

// readTimeout bounds each blocking Read so the reader loop can notice
// cancellation; a timeout is not an error (spec §4.3).
const readTimeout = 200 * time.Millisecond

// Serial is the byte-stream transport variant: a named serial port,
// opened once, read and written to until Stop.
type Serial struct {
	portName string
	baudRate int

	mu      sync.Mutex
	port    serial.Port // nil once stopped
	cancel  context.CancelFunc
	stopped bool

	lastMu    sync.Mutex
	lastFrame []byte

	notify *notify.Notify

	received atomic.Uint64
	sent     atomic.Uint64

	readerDone chan struct{}
}

// NewSerial opens portName at baudRate and returns an unstarted
// Serial transport. Call Start to launch its reader loop.
func NewSerial(portName string, baudRate int) (*Serial, error) {
	port, err := serial.Open(portName, &serial.Mode{BaudRate: baudRate})
	if err != nil {
		return nil, fmt.Errorf("open serial port %q: %w", portName, err)
	}
	if err := port.SetReadTimeout(readTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout on %q: %w", portName, err)
	}
	return &Serial{
		portName: portName,
		baudRate: baudRate,
		port:     port,
		notify:   notify.New(),
	}, nil
}

// Start launches the reader loop, invoking onPacket for every decoded
// frame under the given connection id. Start must be called at most
// once.
func (s *Serial) Start(ctx context.Context, id string, onPacket OnPacket) {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.readerDone = make(chan struct{})
	s.mu.Unlock()

	go s.readLoop(ctx, id, onPacket)
}

func (s *Serial) readLoop(ctx context.Context, id string, onPacket OnPacket) {
	defer close(s.readerDone)

	asm := frame.NewAssembler()
	asm.OnOverflow = func(n int) {
		flog.Warnf("serial[%s]: dropped %d buffered bytes after overflow with no valid frame", id, n)
	}

	buf := make([]byte, readChunkBytes)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		s.mu.Lock()
		port := s.port
		s.mu.Unlock()
		if port == nil {
			return
		}

		n, err := port.Read(buf)
		if err != nil {
			if ctx.Err() == nil && flog.WErr(err) != nil {
				flog.Errorf("serial[%s]: fatal read error: %v", id, err)
			}
			return
		}
		if n == 0 {
			continue // read timeout, not an error
		}

		for _, p := range asm.Feed(buf[:n]) {
			s.received.Add(1)

			framed, encErr := frame.Encode(p)
			if encErr == nil {
				s.lastMu.Lock()
				s.lastFrame = framed
				s.lastMu.Unlock()
			}
			s.notify.Signal()

			if onPacket != nil {
				onPacket(id, p)
			}
		}
	}
}

// LastFrame returns the most recently decoded frame's raw bytes
// (body + delimiter), or nil if none has arrived yet.
func (s *Serial) LastFrame() []byte {
	s.lastMu.Lock()
	defer s.lastMu.Unlock()
	return s.lastFrame
}

// WaitForFrame blocks until a new frame is decoded or ctx is done.
func (s *Serial) WaitForFrame(ctx context.Context) error {
	return s.notify.Wait(ctx)
}

// Send implements Transport: it writes data then flushes, matching
// spec §4.3's writer contract.
func (s *Serial) Send(_ context.Context, data []byte) error {
	s.mu.Lock()
	port := s.port
	s.mu.Unlock()
	if port == nil {
		return errors.New("serial: write after stop")
	}
	if _, err := port.Write(data); err != nil {
		return fmt.Errorf("serial write to %s: %w", s.portName, err)
	}
	if err := port.Drain(); err != nil {
		return fmt.Errorf("serial flush to %s: %w", s.portName, err)
	}
	s.sent.Add(1)
	return nil
}

// Stop drops the port (closing it, which unblocks Read) and aborts
// the reader. Idempotent.
func (s *Serial) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	port := s.port
	s.port = nil
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	var err error
	if port != nil {
		err = port.Close()
	}
	if s.readerDone != nil {
		<-s.readerDone
	}
	return err
}

func (s *Serial) Name() string { return s.portName }
func (s *Serial) Kind() Kind   { return KindSerial }

func (s *Serial) ReceivedCount() uint64 { return s.received.Load() }
func (s *Serial) SentCount() uint64     { return s.sent.Load() }

func (s *Serial) ResetCounters() {
	s.received.Store(0)
	s.sent.Store(0)
}

var _ Transport = (*Serial)(nil)

// ListPorts returns the names of every serial port the OS currently
// exposes (spec §4.8 list_serial_ports).
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	return ports, nil
}
