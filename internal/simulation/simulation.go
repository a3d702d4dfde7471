// Package simulation implements the time-step-aligned playback of
// pre-computed per-target trajectories over a UDP transport (spec
// §4.7), grounded on the connection manager's
// simulation_init_and_stream/simulation task in
// transport/connection_manager.rs.
package simulation

import (
	"context"
	"time"

	"telerelay/internal/convert"
	"telerelay/internal/flog"
	"telerelay/internal/frame"
	"telerelay/internal/packet"
)

// Sample is one point of a single target's trajectory, as produced by
// the external trajectory process (spec §3 "Simulation trajectory").
type Sample struct {
	Lat  float64
	Lon  float64
	Alt  float64
	Time float64
}

// Trajectory is one target's full set of samples, in time order.
type Trajectory struct {
	TargetID   uint32
	FinalState []Sample
}

// Prepare converts each trajectory's samples into absolute
// TargetPackets against origin, computing NED position and a
// finite-difference NED velocity (spec §4.7 "Preparation"). The
// result is grouped by target id, preserving input sample order
// within each group.
func Prepare(trajectories []Trajectory, origin *packet.Lla) map[uint32][]*packet.TargetPacket {
	if origin == nil {
		origin = &packet.Lla{}
	}
	grouped := make(map[uint32][]*packet.TargetPacket, len(trajectories))
	for _, traj := range trajectories {
		packets := make([]*packet.TargetPacket, 0, len(traj.FinalState))
		var prevNed *packet.Ned
		var prevTime float64
		for i, s := range traj.FinalState {
			lla := &packet.Lla{Lat: s.Lat, Lon: s.Lon, Alt: s.Alt}
			ned := convert.LlaToNed(origin, lla)

			var velocity *packet.Ned
			if i == 0 {
				velocity = &packet.Ned{}
			} else {
				velocity = convert.FiniteDifferenceVelocity(prevNed, ned, s.Time-prevTime)
			}
			prevNed, prevTime = ned, s.Time

			packets = append(packets, &packet.TargetPacket{
				TargetID:    traj.TargetID,
				Lla:         lla,
				Ned:         ned,
				NedVelocity: velocity,
				Time:        s.Time,
				Origin:      origin,
			})
		}
		grouped[traj.TargetID] = packets
	}
	return grouped
}

// Task owns one running playback loop.
type Task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// StepFunc is invoked after each step's datagram is sent, with the
// step index; used to drive the optional simulation_stream_update
// event (spec §4.8).
type StepFunc func(step int)

// Send delivers one encoded TargetPacketList datagram.
type Send func(data []byte) error

// Start launches the playback loop over grouped, sending one datagram
// per step at the given cadence (spec §4.7 "Playback"). It returns
// immediately; the loop runs until Stop is called, ctx is canceled,
// or every step has been emitted.
func Start(ctx context.Context, grouped map[uint32][]*packet.TargetPacket, intervalMs uint64, send Send, onStep StepFunc) *Task {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go run(ctx, grouped, intervalMs, send, onStep, done)
	return &Task{cancel: cancel, done: done}
}

// Stop aborts the playback loop and waits for it to exit.
func (t *Task) Stop() {
	t.cancel()
	<-t.done
}

func run(ctx context.Context, grouped map[uint32][]*packet.TargetPacket, intervalMs uint64, send Send, onStep StepFunc, done chan struct{}) {
	defer close(done)

	if intervalMs == 0 {
		intervalMs = 1
	}
	interval := time.Duration(intervalMs) * time.Millisecond

	maxSteps := 0
	// Deterministic target iteration order (spec §5 "Ordering
	// guarantees": within a step, target order is the deterministic
	// iteration order of the grouping map) is achieved by sorting
	// target ids once up front rather than ranging the map per step.
	targetIDs := make([]uint32, 0, len(grouped))
	for id, samples := range grouped {
		targetIDs = append(targetIDs, id)
		if len(samples) > maxSteps {
			maxSteps = len(samples)
		}
	}
	sortUint32s(targetIDs)

	start := time.Now()
	for k := 0; k < maxSteps; k++ {
		step := make([]*packet.TargetPacket, 0, len(targetIDs))
		for _, id := range targetIDs {
			samples := grouped[id]
			if k < len(samples) {
				step = append(step, samples[k])
			}
		}

		if len(step) > 0 {
			framed, err := frame.Encode(packet.NewTargetPacketList(step))
			if err != nil {
				flog.Errorf("simulation: encode step %d: %v", k, err)
			} else if err := send(framed); err != nil {
				flog.Warnf("simulation: send step %d: %v", k, err)
			} else if onStep != nil {
				onStep(k)
			}
		}

		wake := start.Add(time.Duration(k+1) * interval)
		if d := time.Until(wake); d > 0 {
			select {
			case <-time.After(d):
			case <-ctx.Done():
				return
			}
		} else {
			select {
			case <-ctx.Done():
				return
			default:
			}
		}
	}
}

func sortUint32s(s []uint32) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
