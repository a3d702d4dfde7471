// Package manager implements the Connection Manager (spec §4.5): the
// keyed registry of live transports plus the bookkeeping needed to
// start, stop, and fan data between them through shares and
// simulation streams, grounded on the connection-pool patterns in
// Dragon-Born-paqet's internal/server (sharedUDPConn-style registry
// with reader-biased locking) adapted from a tunnel-endpoint registry
// to a transport registry.
package manager

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"telerelay/internal/events"
	"telerelay/internal/flog"
	"telerelay/internal/frame"
	"telerelay/internal/logger"
	"telerelay/internal/packet"
	"telerelay/internal/share"
	"telerelay/internal/simulation"
	"telerelay/internal/transport"
)

// stopTimeout bounds how long Stop waits on transport.Stop before
// giving up and returning anyway (spec §4.5: "a hung stop() must not
// block the manager").
const stopTimeout = 3 * time.Second

// shipperChannelCapacity is the bounded mpsc channel size for a
// destination's per-transport shipping task (spec §4.6 "Backpressure").
const shipperChannelCapacity = 100

// shareKey indexes a running generic share task by its endpoints, so
// stop_share(from, to) can abort exactly one (spec §4.5 "Sharing").
type shareKey struct {
	fromID string
	toID   string
}

type shareEntry struct {
	task    *share.Task
	shipper *shipper
}

// shipper is the destination transport's per-transport shipping task:
// a bounded channel drained by a single goroutine that writes to the
// destination, shared (by refcount) across every share currently
// targeting that destination (spec §4.6: "a bounded channel to the
// destination transport's per-transport shipping task").
type shipper struct {
	destID string
	ch     chan []byte
	cancel context.CancelFunc
	done   chan struct{}

	refMu    sync.Mutex
	refCount int
}

func newShipper(ctx context.Context, destID string, send func(ctx context.Context, data []byte) error) *shipper {
	ctx, cancel := context.WithCancel(ctx)
	s := &shipper{
		destID: destID,
		ch:     make(chan []byte, shipperChannelCapacity),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.run(ctx, send)
	return s
}

func (s *shipper) run(ctx context.Context, send func(ctx context.Context, data []byte) error) {
	defer close(s.done)
	for {
		select {
		case data := <-s.ch:
			if err := send(ctx, data); err != nil {
				flog.Warnf("manager: shipper to %s: %v", s.destID, err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// trySend implements last-value-wins, drop-on-full backpressure
// (spec §4.6).
func (s *shipper) trySend(data []byte) {
	select {
	case s.ch <- data:
	default:
	}
}

func (s *shipper) stop() {
	s.cancel()
	<-s.done
}

type simEntry struct {
	task      *simulation.Task
	transport *transport.UDP
	localAddr string
}

// Manager is the registry and lifecycle owner for every live
// transport, share, and simulation stream.
type Manager struct {
	logger *logger.FileLogger
	emit   events.Emitter

	mu          sync.RWMutex
	connections map[string]transport.Transport

	shareMu  sync.Mutex
	shares   map[shareKey]*shareEntry
	shippers map[string]*shipper // destID -> shared shipping task

	simMu sync.Mutex
	sims  map[string]*simEntry

	// simResultsMu and simResults hold the current playback source
	// (spec §3): the most recently prepared per-target trajectory set,
	// queryable by target_id independent of whether its originating
	// stream is still running. Populated as a side effect of
	// SimulationInitAndStream, the only producer of trajectory data in
	// this system (see DESIGN.md for the sidecar-command deviation).
	simResultsMu sync.RWMutex
	simResults   map[uint32][]*packet.TargetPacket
}

// New returns an empty Manager. fileLogger and emit must not be nil;
// pass logger.New("") and events.NopEmitter{} for a no-op default.
func New(fileLogger *logger.FileLogger, emit events.Emitter) *Manager {
	return &Manager{
		logger:      fileLogger,
		emit:        emit,
		connections: make(map[string]transport.Transport),
		shares:      make(map[shareKey]*shareEntry),
		shippers:    make(map[string]*shipper),
		sims:        make(map[string]*simEntry),
		simResults:  make(map[uint32][]*packet.TargetPacket),
	}
}

// Add inserts t under id if id is not already registered.
func (m *Manager) Add(id string, t transport.Transport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.connections[id]; exists {
		return fmt.Errorf("connection %q already exists", id)
	}
	m.connections[id] = t
	return nil
}

// Get returns the transport registered under id, if any.
func (m *Manager) Get(id string) (transport.Transport, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.connections[id]
	return t, ok
}

// IsSocketAddressInUse reports whether any registered UDP transport's
// local address equals addr (spec §4.5).
func (m *Manager) IsSocketAddressInUse(addr string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.connections {
		if u, ok := t.(*transport.UDP); ok && u.LocalAddr() == addr {
			return true
		}
	}
	return false
}

// onPacket is installed as every transport's OnPacket callback: it
// emits a UI event and hands the packet to the file logger, in that
// order, matching the original's event-then-log sequencing.
func (m *Manager) onPacket(id string, p *packet.Packet) {
	if m.emit != nil {
		m.emit.Emit("serial_packet", packet.SerialPacketEvent{ID: id, Packet: p})
	}
	if m.logger != nil {
		m.logger.SavePacketFast(id, p)
	}
}

// StartSerialConnection opens a serial port, registers it under id,
// starts its reader, and returns id unchanged for call-site symmetry
// with StartUDPConnection. The caller picks id (conventionally
// "<prefix>_<uuid>", spec §3 "ConnectionId").
func (m *Manager) StartSerialConnection(ctx context.Context, id, port string, baud int) (string, error) {
	s, err := transport.NewSerial(port, baud)
	if err != nil {
		return "", err
	}
	if err := m.Add(id, s); err != nil {
		s.Stop()
		return "", err
	}
	s.Start(ctx, id, m.onPacket)
	return id, nil
}

// StartUDPConnection binds a UDP socket at localAddr, registers it
// under id, starts its reader, and returns id unchanged. Fails early
// if localAddr is already bound by a registered transport (spec §4.5
// "is_socket_address_in_use").
func (m *Manager) StartUDPConnection(ctx context.Context, id, localAddr string) (string, error) {
	if m.IsSocketAddressInUse(localAddr) {
		return "", fmt.Errorf("socket address %q already in use", localAddr)
	}
	u, err := transport.NewUDP(localAddr)
	if err != nil {
		return "", err
	}
	if err := m.Add(id, u); err != nil {
		u.Stop()
		return "", err
	}
	u.Start(ctx, id, m.onPacket)
	return id, nil
}

// SendTo writes data to the registered transport id.
func (m *Manager) SendTo(ctx context.Context, id string, data []byte) error {
	t, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("connection %q not found", id)
	}
	if err := t.Send(ctx, data); err != nil {
		return err
	}
	if m.logger != nil {
		m.logger.LogSentData(id, data)
	}
	return nil
}

// SetUDPRemoteAddr sets id's remote address. Unlike the original's
// "uniquely owned" constraint on a shared Arc<Transport>, remote_addr
// here lives behind its own mutex inside *transport.UDP (see
// transport.UDP doc comment and DESIGN.md), so no exclusive-ownership
// check is needed: concurrent shares may keep sending while this call
// is in flight.
func (m *Manager) SetUDPRemoteAddr(id, addr string) error {
	t, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("connection %q not found", id)
	}
	u, ok := t.(*transport.UDP)
	if !ok {
		return fmt.Errorf("connection %q is not a udp transport", id)
	}
	return u.SetRemote(addr)
}

// Stop removes id from the registry, aborts every share and
// simulation stream entangled with it, then stops the transport under
// a bounded timeout. If id is itself a running simulation stream's own
// connection, this delegates to StopSimulationUDPStreaming so the
// stream's playback task is aborted along with its transport.
func (m *Manager) Stop(id string) error {
	m.simMu.Lock()
	_, isSim := m.sims[id]
	m.simMu.Unlock()
	if isSim {
		return m.StopSimulationUDPStreaming(id)
	}

	m.mu.Lock()
	t, ok := m.connections[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("connection %q not found", id)
	}
	delete(m.connections, id)
	m.mu.Unlock()

	m.abortSharesInvolving(id)

	if u, isUDP := t.(*transport.UDP); isUDP {
		m.abortSimStreamsForLocalAddr(u.LocalAddr())
	}

	return stopWithTimeout(t)
}

func stopWithTimeout(t transport.Transport) error {
	done := make(chan error, 1)
	go func() { done <- t.Stop() }()
	select {
	case err := <-done:
		return err
	case <-time.After(stopTimeout):
		flog.Errorf("manager: transport %s stop() exceeded %v, abandoning wait", t.Name(), stopTimeout)
		return errors.New("transport stop timed out")
	}
}

// StopAll stops every registered connection (spec §4.5 "stop_all").
func (m *Manager) StopAll() {
	m.mu.RLock()
	ids := make([]string, 0, len(m.connections))
	for id := range m.connections {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		if err := m.Stop(id); err != nil {
			flog.Warnf("manager: stop %s: %v", id, err)
		}
	}
}

// ListConnections returns the external view of every registered
// transport (spec §4.8 list_connections).
func (m *Manager) ListConnections() []transport.ConnectionInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]transport.ConnectionInfo, 0, len(m.connections))
	for id, t := range m.connections {
		out = append(out, transport.ConnectionInfo{
			ID:       id,
			Kind:     t.Kind().String(),
			Name:     t.Name(),
			Received: t.ReceivedCount(),
			Sent:     t.SentCount(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ConnectionCount returns the number of registered connections.
func (m *Manager) ConnectionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// TotalPacketsReceived sums ReceivedCount across every connection.
func (m *Manager) TotalPacketsReceived() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var total uint64
	for _, t := range m.connections {
		total += t.ReceivedCount()
	}
	return total
}

// TotalPacketsSent sums SentCount across every connection.
func (m *Manager) TotalPacketsSent() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var total uint64
	for _, t := range m.connections {
		total += t.SentCount()
	}
	return total
}

// PerConnectionCounts returns each connection's id, received, and
// sent count.
func (m *Manager) PerConnectionCounts() []transport.ConnectionInfo {
	return m.ListConnections()
}

// ResetPacketCounters zeroes every connection's counters.
func (m *Manager) ResetPacketCounters() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.connections {
		t.ResetCounters()
	}
}

// ShareDataBetweenIDs starts a generic share from fromID's most recent
// frame to toID, at the given cadence (spec §4.5/§4.6).
func (m *Manager) ShareDataBetweenIDs(ctx context.Context, fromID, toID string, intervalMs uint64) (string, error) {
	from, ok := m.Get(fromID)
	if !ok {
		return "", fmt.Errorf("connection %q not found", fromID)
	}
	framer, ok := from.(transport.LastFramer)
	if !ok {
		return "", fmt.Errorf("connection %q does not expose a last frame to share", fromID)
	}
	if _, ok := m.Get(toID); !ok {
		return "", fmt.Errorf("connection %q not found", toID)
	}

	key := shareKey{fromID: fromID, toID: toID}

	m.shareMu.Lock()
	if _, exists := m.shares[key]; exists {
		m.shareMu.Unlock()
		return "", fmt.Errorf("share %s -> %s already active", fromID, toID)
	}
	sh := m.acquireShipperLocked(ctx, toID)
	m.shareMu.Unlock()

	fetch := func() ([]byte, bool) {
		// Block briefly on Notify when available so the share reacts
		// promptly to new data instead of polling at the cadence
		// interval alone; a short timeout keeps the cycle bounded.
		waitCtx, cancel := context.WithTimeout(ctx, time.Millisecond)
		_ = framer.WaitForFrame(waitCtx)
		cancel()
		frame := framer.LastFrame()
		return frame, frame != nil
	}
	send := func(data []byte) error {
		sh.trySend(data)
		return nil
	}

	task := share.Start(ctx, intervalMs, fetch, send)

	m.shareMu.Lock()
	m.shares[key] = &shareEntry{task: task, shipper: sh}
	m.shareMu.Unlock()

	return fromID, nil
}

// acquireShipperLocked returns the shared shipping task for destID,
// creating it if absent. Callers must hold shareMu.
func (m *Manager) acquireShipperLocked(ctx context.Context, destID string) *shipper {
	if sh, ok := m.shippers[destID]; ok {
		sh.refMu.Lock()
		sh.refCount++
		sh.refMu.Unlock()
		return sh
	}
	sh := newShipper(ctx, destID, func(ctx context.Context, data []byte) error {
		return m.SendTo(ctx, destID, data)
	})
	sh.refCount = 1
	m.shippers[destID] = sh
	return sh
}

// releaseShipper drops one reference to sh, stopping and removing it
// once no share uses it anymore. The actual stop (which blocks until
// the goroutine exits) happens without holding shareMu, so other
// share operations are not blocked on it.
func (m *Manager) releaseShipper(sh *shipper) {
	sh.refMu.Lock()
	sh.refCount--
	drained := sh.refCount <= 0
	sh.refMu.Unlock()

	if !drained {
		return
	}
	m.shareMu.Lock()
	if m.shippers[sh.destID] == sh {
		delete(m.shippers, sh.destID)
	}
	m.shareMu.Unlock()
	sh.stop()
}

// StopShare aborts the generic share from fromID to toID.
func (m *Manager) StopShare(fromID, toID string) error {
	return m.stopShareKey(shareKey{fromID: fromID, toID: toID})
}

func (m *Manager) stopShareKey(key shareKey) error {
	m.shareMu.Lock()
	entry, ok := m.shares[key]
	if !ok {
		m.shareMu.Unlock()
		return fmt.Errorf("share %s -> %s not active", key.fromID, key.toID)
	}
	delete(m.shares, key)
	m.shareMu.Unlock()

	entry.task.Stop()
	m.releaseShipper(entry.shipper)
	return nil
}

// abortSharesInvolving stops every share with id as either endpoint,
// matching spec §4.6: "Aborting a transport also removes any share
// whose destination is that transport" (extended here to the source
// side too, since a dead source can never fetch a fresh frame again).
func (m *Manager) abortSharesInvolving(id string) {
	m.shareMu.Lock()
	var keys []shareKey
	for k := range m.shares {
		if k.fromID == id || k.toID == id {
			keys = append(keys, k)
		}
	}
	m.shareMu.Unlock()

	for _, k := range keys {
		if err := m.stopShareKey(k); err != nil {
			flog.Warnf("manager: abort share %s -> %s: %v", k.fromID, k.toID, err)
		}
	}
}

// ShareUDPTargetToConnection copies udpID's cached target_id state to
// destID at the given cadence (spec §4.6 "UDP target share"). The
// synthetic from-id lets it share the same shareKey/shipper machinery
// as a generic share while remaining distinguishable in listings.
func (m *Manager) ShareUDPTargetToConnection(ctx context.Context, udpID string, targetID uint32, destID string, intervalMs uint64) (string, error) {
	t, ok := m.Get(udpID)
	if !ok {
		return "", fmt.Errorf("connection %q not found", udpID)
	}
	u, ok := t.(*transport.UDP)
	if !ok {
		return "", fmt.Errorf("connection %q is not a udp transport", udpID)
	}
	if _, ok := m.Get(destID); !ok {
		return "", fmt.Errorf("connection %q not found", destID)
	}

	shareID := fmt.Sprintf("udp_target_%s_%d", udpID, targetID)
	key := shareKey{fromID: shareID, toID: destID}

	m.shareMu.Lock()
	if _, exists := m.shares[key]; exists {
		m.shareMu.Unlock()
		return "", fmt.Errorf("share %s -> %s already active", shareID, destID)
	}
	sh := m.acquireShipperLocked(ctx, destID)
	m.shareMu.Unlock()

	fetch := func() ([]byte, bool) {
		tp, ok := u.Target(targetID)
		if !ok {
			return nil, false
		}
		framed, err := frame.Encode(packet.NewTargetPacket(tp))
		if err != nil {
			flog.Errorf("manager: encode shared target %d: %v", targetID, err)
			return nil, false
		}
		return framed, true
	}
	send := func(data []byte) error {
		sh.trySend(data)
		return nil
	}

	task := share.Start(ctx, intervalMs, fetch, send)

	m.shareMu.Lock()
	m.shares[key] = &shareEntry{task: task, shipper: sh}
	m.shareMu.Unlock()

	return shareID, nil
}

// StopShareToConnection stops the share identified by shareID whose
// destination is connID.
func (m *Manager) StopShareToConnection(shareID, connID string) error {
	return m.stopShareKey(shareKey{fromID: shareID, toID: connID})
}

// ActiveShare is one entry of ListActiveShares.
type ActiveShare struct {
	ShareID string `json:"share_id"`
	ConnID  string `json:"conn_id"`
}

// ListActiveShares returns every currently running share's endpoints.
func (m *Manager) ListActiveShares() []ActiveShare {
	m.shareMu.Lock()
	defer m.shareMu.Unlock()
	out := make([]ActiveShare, 0, len(m.shares))
	for k := range m.shares {
		out = append(out, ActiveShare{ShareID: k.fromID, ConnID: k.toID})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ShareID != out[j].ShareID {
			return out[i].ShareID < out[j].ShareID
		}
		return out[i].ConnID < out[j].ConnID
	})
	return out
}

// SimulationInitAndStream prepares the given trajectories against
// origin, binds a fresh UDP transport at localAddr targeting
// remoteAddr, registers it under id, and starts the step-cadenced
// playback (spec §4.5 "Simulation streaming init", §4.7). On success,
// the prepared trajectories become the current playback source (spec
// §3), superseding whatever share_target_to_udp_server and
// share_target_to_connection previously saw for any target id the new
// set also covers.
func (m *Manager) SimulationInitAndStream(ctx context.Context, id, localAddr, remoteAddr string, intervalMs uint64, origin *packet.Lla, trajectories []simulation.Trajectory) (string, error) {
	grouped := simulation.Prepare(trajectories, origin)

	if _, err := m.startSimulationStream(ctx, id, localAddr, remoteAddr, intervalMs, grouped); err != nil {
		return "", err
	}

	m.simResultsMu.Lock()
	for targetID, packets := range grouped {
		m.simResults[targetID] = packets
	}
	m.simResultsMu.Unlock()

	return id, nil
}

// startSimulationStream binds a fresh UDP transport at localAddr
// targeting remoteAddr, registers it under id, and starts playback of
// grouped at the given cadence. Shared by SimulationInitAndStream (all
// targets, caller-supplied origin) and ShareTargetToUDPServer (one
// target, sourced from the current playback source).
func (m *Manager) startSimulationStream(ctx context.Context, id, localAddr, remoteAddr string, intervalMs uint64, grouped map[uint32][]*packet.TargetPacket) (string, error) {
	if m.IsSocketAddressInUse(localAddr) {
		return "", fmt.Errorf("socket address %q already in use", localAddr)
	}

	u, err := transport.NewUDP(localAddr)
	if err != nil {
		return "", err
	}
	if err := u.SetRemote(remoteAddr); err != nil {
		u.Stop()
		return "", err
	}

	if err := m.Add(id, u); err != nil {
		u.Stop()
		return "", err
	}
	u.Start(ctx, id, m.onPacket)

	onStep := func(step int) {
		if m.emit != nil {
			m.emit.Emit("simulation_stream_update", map[string]any{"id": id, "step": step})
		}
	}
	send := func(data []byte) error {
		return m.SendTo(ctx, id, data)
	}
	task := simulation.Start(ctx, grouped, intervalMs, send, onStep)

	m.simMu.Lock()
	m.sims[id] = &simEntry{task: task, transport: u, localAddr: localAddr}
	m.simMu.Unlock()

	return id, nil
}

// currentSimTargetPackets returns targetID's trajectory from the
// current playback source (spec §3), the set most recently prepared
// by SimulationInitAndStream.
func (m *Manager) currentSimTargetPackets(targetID uint32) ([]*packet.TargetPacket, error) {
	m.simResultsMu.RLock()
	defer m.simResultsMu.RUnlock()
	packets, ok := m.simResults[targetID]
	if !ok || len(packets) == 0 {
		return nil, fmt.Errorf("no data found for target_id %d", targetID)
	}
	return packets, nil
}

// ShareTargetToUDPServer binds a fresh UDP transport at localAddr
// targeting remoteAddr, registers it under id, and replays targetID's
// trajectory from the current playback source at the given cadence
// (spec §4.8 "share_target_to_udp_server"). It reuses the same
// playback machinery as SimulationInitAndStream, matching the
// original's shared simulation_init_and_stream path, rather than
// reading a live UDP connection's per-target cache.
func (m *Manager) ShareTargetToUDPServer(ctx context.Context, id, localAddr, remoteAddr string, intervalMs uint64, targetID uint32) (string, error) {
	packets, err := m.currentSimTargetPackets(targetID)
	if err != nil {
		return "", err
	}
	grouped := map[uint32][]*packet.TargetPacket{targetID: packets}
	return m.startSimulationStream(ctx, id, localAddr, remoteAddr, intervalMs, grouped)
}

// ShareTargetToConnection replays targetID's trajectory from the
// current playback source to the existing connection destID, sending
// one packet per intervalMs tick until every sample has been sent
// (spec §4.8 "share_target_to_connection"). Unlike
// ShareUDPTargetToConnection's live per-target cache, this walks a
// fixed, already-prepared sample list: each tick advances to the next
// sample instead of re-fetching the latest live state.
func (m *Manager) ShareTargetToConnection(ctx context.Context, targetID uint32, destID string, intervalMs uint64) (string, error) {
	packets, err := m.currentSimTargetPackets(targetID)
	if err != nil {
		return "", err
	}
	if _, ok := m.Get(destID); !ok {
		return "", fmt.Errorf("connection %q not found", destID)
	}

	shareID := fmt.Sprintf("share_%d_%s", targetID, uuid.NewString())
	key := shareKey{fromID: shareID, toID: destID}

	m.shareMu.Lock()
	sh := m.acquireShipperLocked(ctx, destID)
	m.shareMu.Unlock()

	var idx int
	fetch := func() ([]byte, bool) {
		if idx >= len(packets) {
			return nil, false
		}
		p := packets[idx]
		idx++
		framed, err := frame.Encode(packet.NewTargetPacket(p))
		if err != nil {
			flog.Errorf("manager: encode shared target %d sample %d: %v", targetID, idx-1, err)
			return nil, false
		}
		return framed, true
	}
	send := func(data []byte) error {
		sh.trySend(data)
		return nil
	}

	task := share.Start(ctx, intervalMs, fetch, send)

	m.shareMu.Lock()
	m.shares[key] = &shareEntry{task: task, shipper: sh}
	m.shareMu.Unlock()

	return shareID, nil
}

// StopSimulationUDPStreaming aborts id's playback task and drops its
// UDP transport without awaiting Stop(), per spec §4.5/§4.7: the
// abort must complete even if the transport's send path is stuck.
// This is a deliberate compromise with the "never close" extreme
// (which would leak the socket file descriptor): the playback task is
// joined synchronously since it has no blocking I/O of its own, while
// the socket teardown runs in the background (see DESIGN.md).
func (m *Manager) StopSimulationUDPStreaming(id string) error {
	m.simMu.Lock()
	entry, ok := m.sims[id]
	if !ok {
		m.simMu.Unlock()
		return fmt.Errorf("simulation stream %q not found", id)
	}
	delete(m.sims, id)
	m.simMu.Unlock()

	entry.task.Stop()

	m.mu.Lock()
	delete(m.connections, id)
	m.mu.Unlock()

	m.abortSharesInvolving(id)

	go func() {
		if err := entry.transport.Stop(); err != nil {
			flog.Warnf("manager: background stop of simulation transport %s: %v", id, err)
		}
	}()
	return nil
}

// abortSimStreamsForLocalAddr stops every simulation stream whose
// registered UDP transport shares localAddr, other than the one
// already being removed by the caller (spec §4.5: stopping a UDP
// connection aborts simulation streams sharing its local_addr).
func (m *Manager) abortSimStreamsForLocalAddr(localAddr string) {
	m.simMu.Lock()
	var ids []string
	for id, entry := range m.sims {
		if entry.localAddr == localAddr {
			ids = append(ids, id)
		}
	}
	m.simMu.Unlock()

	for _, id := range ids {
		if err := m.StopSimulationUDPStreaming(id); err != nil {
			flog.Warnf("manager: abort simulation stream %s: %v", id, err)
		}
	}
}

// ListActiveSimulationStreams returns the ids of every running
// simulation stream.
func (m *Manager) ListActiveSimulationStreams() []string {
	m.simMu.Lock()
	defer m.simMu.Unlock()
	out := make([]string, 0, len(m.sims))
	for id := range m.sims {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// ListUDPTargets returns every TargetPacket currently cached by the
// UDP connection id.
func (m *Manager) ListUDPTargets(id string) ([]*packet.TargetPacket, error) {
	t, ok := m.Get(id)
	if !ok {
		return nil, fmt.Errorf("connection %q not found", id)
	}
	u, ok := t.(*transport.UDP)
	if !ok {
		return nil, fmt.Errorf("connection %q is not a udp transport", id)
	}
	return u.Targets(), nil
}

// GetTotalUDPTargets sums the number of cached targets across every
// registered UDP connection.
func (m *Manager) GetTotalUDPTargets() uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var total uint32
	for _, t := range m.connections {
		if u, ok := t.(*transport.UDP); ok {
			total += uint32(len(u.Targets()))
		}
	}
	return total
}
