// Package share implements the periodic fan-out cadence loop used by
// every share variant (spec §4.6): a generic connection-to-connection
// share and the UDP-target-to-connection share both reduce to the
// same Start call with different fetch/send closures.
package share

import (
	"context"
	"sync"
	"time"

	"telerelay/internal/flog"
	"telerelay/internal/share/timerres"
)

// precisionThresholdMs is the interval at or below which the
// sleep+spin precision path activates. Overridden at process startup
// via ConfigurePrecisionThreshold (conf.Share.PrecisionPathThresholdMs).
var (
	precisionMu          sync.RWMutex
	precisionThresholdMs uint64 = 10
)

// ConfigurePrecisionThreshold overrides the interval, in milliseconds,
// at or below which a cadence loop's sleep+spin precision path
// activates.
func ConfigurePrecisionThreshold(ms uint64) {
	precisionMu.Lock()
	defer precisionMu.Unlock()
	precisionThresholdMs = ms
}

// spinGuardBand is how far ahead of the wake time the precision path
// switches from sleeping to spinning.
const spinGuardBand = 1500 * time.Microsecond

// Fetch returns the most recent frame to send, or ok=false to skip
// this cycle (spec: "If absent, the cycle is skipped").
type Fetch func() (frame []byte, ok bool)

// Send delivers one frame to the destination.
type Send func(frame []byte) error

// Task owns one running cadence loop.
type Task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Start launches a cadence loop that calls fetch and, if it returns a
// frame, send, once per interval. The loop runs until Stop is called
// or ctx is canceled.
func Start(ctx context.Context, intervalMs uint64, fetch Fetch, send Send) *Task {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go run(ctx, intervalMs, fetch, send, done)
	return &Task{cancel: cancel, done: done}
}

// Stop aborts the loop and waits for it to exit, restoring timer
// resolution if the precision path was active.
func (t *Task) Stop() {
	t.cancel()
	<-t.done
}

func run(ctx context.Context, intervalMs uint64, fetch Fetch, send Send, done chan struct{}) {
	defer close(done)

	if intervalMs == 0 {
		intervalMs = 1
	}
	interval := time.Duration(intervalMs) * time.Millisecond
	precisionMu.RLock()
	threshold := precisionThresholdMs
	precisionMu.RUnlock()
	precision := intervalMs <= threshold

	var timer *timerres.Handle
	if precision {
		timer = timerres.Acquire()
		defer timer.Release()
	}

	nextWake := time.Now().Add(interval)
	for {
		if !sleepUntil(ctx, nextWake, precision) {
			return
		}

		if data, ok := fetch(); ok {
			if err := send(data); err != nil {
				flog.Warnf("share: send failed: %v", err)
			}
		}

		nextWake = nextWake.Add(interval)
		// Drift correction: if we have fallen far enough behind that
		// the old schedule no longer means anything, resync to now
		// instead of firing a burst of immediate catch-up cycles.
		if now := time.Now(); now.Sub(nextWake) > 2*interval {
			nextWake = now.Add(interval)
		}
	}
}

// sleepUntil blocks until wake or ctx cancellation, returning false in
// the latter case. On the precision path it sleeps to wake-spinGuardBand
// then spin-waits the remainder, per spec §4.6 and §5 ("only the
// destination socket write and the next_wake-1.5ms sleep suspend; the
// trailing spin-wait does not").
func sleepUntil(ctx context.Context, wake time.Time, precision bool) bool {
	if !precision {
		d := time.Until(wake)
		if d <= 0 {
			return ctx.Err() == nil
		}
		select {
		case <-time.After(d):
			return true
		case <-ctx.Done():
			return false
		}
	}

	sleepUntilPoint := wake.Add(-spinGuardBand)
	if d := time.Until(sleepUntilPoint); d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return false
		}
	}
	for time.Now().Before(wake) {
		select {
		case <-ctx.Done():
			return false
		default:
		}
	}
	return true
}
