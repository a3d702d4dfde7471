// Package command implements the external command surface (spec
// §4.8/§14): the thin request-handler layer a desktop shell (or, in
// this repo, the telerelayd CLI) invokes by name, each returning
// (payload, error) so the boundary can flatten errors to strings.
// Grounded on the teacher's internal/server request-handling style
// (thin methods delegating to a registry, wrapped errors), adapted
// from a tunnel-endpoint registry to *manager.Manager.
package command

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"telerelay/internal/frame"
	"telerelay/internal/logger"
	"telerelay/internal/manager"
	"telerelay/internal/packet"
	"telerelay/internal/simulation"
	"telerelay/internal/transport"
)

// Surface is the collaborator contract the UI (or any local tool)
// invokes. It depends only on *manager.Manager and *logger.FileLogger
// for its own operations (read_log_file, list_log_files, and
// friends); event emission toward the UI happens inside the Manager's
// onPacket callback, which is wired to the same events.Emitter at
// construction time, so Surface itself has no compiled dependency on
// any particular desktop-shell binding.
type Surface struct {
	mgr    *manager.Manager
	logger *logger.FileLogger

	defaultBaud int
}

// New returns a Surface backed by mgr and fileLogger.
func New(mgr *manager.Manager, fileLogger *logger.FileLogger) *Surface {
	return &Surface{mgr: mgr, logger: fileLogger}
}

// SetDefaultSerialBaud sets the baud rate StartConnection falls back
// to when called with baud <= 0 (conf.Serial.DefaultBaud).
func (s *Surface) SetDefaultSerialBaud(baud int) {
	s.defaultBaud = baud
}

func newID(prefix string) string {
	return prefix + "_" + uuid.NewString()
}

// StartConnection opens a serial connection at port/baud and returns
// its new connection id. baud <= 0 falls back to the configured
// default (conf.Serial.DefaultBaud).
func (s *Surface) StartConnection(ctx context.Context, prefix, port string, baud int) (string, error) {
	if baud <= 0 {
		baud = s.defaultBaud
	}
	id := newID(prefix)
	return s.mgr.StartSerialConnection(ctx, id, port, baud)
}

// StartUDPConnection binds a UDP socket at localAddr and returns its
// new connection id.
func (s *Surface) StartUDPConnection(ctx context.Context, prefix, localAddr string) (string, error) {
	id := newID(prefix)
	return s.mgr.StartUDPConnection(ctx, id, localAddr)
}

// StopConnection stops and deregisters id.
func (s *Surface) StopConnection(id string) error {
	return s.mgr.Stop(id)
}

// DisconnectAllConnections stops every registered connection.
func (s *Surface) DisconnectAllConnections() {
	s.mgr.StopAll()
}

// ListConnections returns the external view of every registered
// transport.
func (s *Surface) ListConnections() []transport.ConnectionInfo {
	return s.mgr.ListConnections()
}

// ListSerialPorts lists the serial ports the OS currently exposes.
func (s *Surface) ListSerialPorts() ([]string, error) {
	return transport.ListPorts()
}

// SendPacket encodes p as one frame and sends it over id.
func (s *Surface) SendPacket(ctx context.Context, id string, p *packet.Packet) error {
	data, err := frame.Encode(p)
	if err != nil {
		return fmt.Errorf("encode packet: %w", err)
	}
	return s.mgr.SendTo(ctx, id, data)
}

// SetUDPRemoteAddr sets id's remote address.
func (s *Surface) SetUDPRemoteAddr(id, addr string) error {
	return s.mgr.SetUDPRemoteAddr(id, addr)
}

// StartSerialShare starts a generic share from from's last frame to
// to at the given cadence, returning the share id (from, by
// convention, for a generic share).
func (s *Surface) StartSerialShare(ctx context.Context, from, to string, intervalMs uint64) (string, error) {
	return s.mgr.ShareDataBetweenIDs(ctx, from, to, intervalMs)
}

// StopShare aborts the generic share from "from" to "to".
func (s *Surface) StopShare(from, to string) error {
	return s.mgr.StopShare(from, to)
}

// ShareUDPTargetToConnection copies udpID's cached targetID state to
// destID at the given cadence, returning the synthetic share id.
func (s *Surface) ShareUDPTargetToConnection(ctx context.Context, udpID string, targetID uint32, destID string, intervalMs uint64) (string, error) {
	return s.mgr.ShareUDPTargetToConnection(ctx, udpID, targetID, destID, intervalMs)
}

// StopShareToConnection stops the share identified by shareID whose
// destination is connID.
func (s *Surface) StopShareToConnection(shareID, connID string) error {
	return s.mgr.StopShareToConnection(shareID, connID)
}

// ListActiveShares returns every currently running share's endpoints.
func (s *Surface) ListActiveShares() []manager.ActiveShare {
	return s.mgr.ListActiveShares()
}

// SimulationRequest is the input to StartSimulationUDPStreaming: a
// trajectory set, an origin (nil defaults to zero LLA per spec
// §4.7), and the streaming parameters.
type SimulationRequest struct {
	LocalAddr    string
	RemoteAddr   string
	IntervalMs   uint64
	OriginLat    *float64
	OriginLon    *float64
	OriginAlt    *float64
	Trajectories []simulation.Trajectory
}

// StartSimulationUDPStreaming prepares req's trajectories and begins
// playback to RemoteAddr, returning the new connection id.
func (s *Surface) StartSimulationUDPStreaming(ctx context.Context, req SimulationRequest) (string, error) {
	var origin *packet.Lla
	if req.OriginLat != nil || req.OriginLon != nil || req.OriginAlt != nil {
		origin = &packet.Lla{}
		if req.OriginLat != nil {
			origin.Lat = *req.OriginLat
		}
		if req.OriginLon != nil {
			origin.Lon = *req.OriginLon
		}
		if req.OriginAlt != nil {
			origin.Alt = *req.OriginAlt
		}
	}
	id := newID("sim")
	return s.mgr.SimulationInitAndStream(ctx, id, req.LocalAddr, req.RemoteAddr, req.IntervalMs, origin, req.Trajectories)
}

// StopSimulationUDPStreaming aborts the simulation stream connID.
func (s *Surface) StopSimulationUDPStreaming(connID string) error {
	return s.mgr.StopSimulationUDPStreaming(connID)
}

// ShareTargetToUDPServer binds a fresh UDP connection at localAddr
// toward remoteAddr and replays targetID's trajectory from the
// current playback source into it at the given cadence, returning the
// new connection id (spec §4.8 "share_target_to_udp_server").
func (s *Surface) ShareTargetToUDPServer(ctx context.Context, localAddr, remoteAddr string, intervalMs uint64, targetID uint32) (string, error) {
	id := newID("sim")
	return s.mgr.ShareTargetToUDPServer(ctx, id, localAddr, remoteAddr, intervalMs, targetID)
}

// ShareTargetToConnection replays targetID's trajectory from the
// current playback source to the existing connection connID at the
// given cadence, returning the new share id (spec §4.8
// "share_target_to_connection").
func (s *Surface) ShareTargetToConnection(ctx context.Context, targetID uint32, connID string, intervalMs uint64) (string, error) {
	return s.mgr.ShareTargetToConnection(ctx, targetID, connID, intervalMs)
}

// ListActiveSimulationStreams returns the ids of every running
// simulation stream.
func (s *Surface) ListActiveSimulationStreams() []string {
	return s.mgr.ListActiveSimulationStreams()
}

// ListUDPTargets returns every TargetPacket currently cached by the
// UDP connection connID.
func (s *Surface) ListUDPTargets(connID string) ([]*packet.TargetPacket, error) {
	return s.mgr.ListUDPTargets(connID)
}

// GetTotalUDPTargets sums the number of cached targets across every
// registered UDP connection.
func (s *Surface) GetTotalUDPTargets() uint32 {
	return s.mgr.GetTotalUDPTargets()
}

// GetTotalPacketsReceived sums ReceivedCount across every connection.
func (s *Surface) GetTotalPacketsReceived() uint64 {
	return s.mgr.TotalPacketsReceived()
}

// GetTotalPacketsSent sums SentCount across every connection.
func (s *Surface) GetTotalPacketsSent() uint64 {
	return s.mgr.TotalPacketsSent()
}

// GetConnectionPacketCounts returns each connection's id, received,
// and sent count.
func (s *Surface) GetConnectionPacketCounts() []transport.ConnectionInfo {
	return s.mgr.PerConnectionCounts()
}

// GetConnectionCount returns the number of registered connections.
func (s *Surface) GetConnectionCount() int {
	return s.mgr.ConnectionCount()
}

// ResetPacketCounters zeroes every connection's counters.
func (s *Surface) ResetPacketCounters() {
	s.mgr.ResetPacketCounters()
}

// PacketStatistics is the aggregate view returned by
// GetPacketStatistics (spec supplement: avoids four separate round
// trips for the common case of a single status refresh).
type PacketStatistics struct {
	TotalReceived   uint64                        `json:"total_received"`
	TotalSent       uint64                        `json:"total_sent"`
	ConnectionCount int                           `json:"connection_count"`
	PerConnection   map[string]ConnectionCounters `json:"per_connection"`
}

// ConnectionCounters is one connection's received/sent counts within
// PacketStatistics.
type ConnectionCounters struct {
	Received uint64 `json:"received"`
	Sent     uint64 `json:"sent"`
}

// GetPacketStatistics returns every aggregate counter in one call.
func (s *Surface) GetPacketStatistics() PacketStatistics {
	conns := s.mgr.ListConnections()
	per := make(map[string]ConnectionCounters, len(conns))
	var total, sent uint64
	for _, c := range conns {
		per[c.ID] = ConnectionCounters{Received: c.Received, Sent: c.Sent}
		total += c.Received
		sent += c.Sent
	}
	return PacketStatistics{
		TotalReceived:   total,
		TotalSent:       sent,
		ConnectionCount: len(conns),
		PerConnection:   per,
	}
}

// ReadLogFile returns the full text of connID's packet log.
func (s *Surface) ReadLogFile(connID string) (string, error) {
	return s.logger.ReadLogFile(connID)
}

// ListLogFiles lists the basenames of every connection_*.log file.
func (s *Surface) ListLogFiles() ([]string, error) {
	return s.logger.ListLogFiles()
}

// GetLogsDirectory returns the packet logger's current directory.
func (s *Surface) GetLogsDirectory() string {
	return s.logger.Directory()
}

// SetLogDirectory overrides the packet logger's directory.
func (s *Surface) SetLogDirectory(path string) {
	s.logger.SetDirectory(path)
}
