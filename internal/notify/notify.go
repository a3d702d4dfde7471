// Package notify provides a minimal edge-triggered wakeup signal,
// used by the transports to wake share-engine waiters on every
// decoded frame without those waiters registering in advance. It is
// the Go analogue of tokio::sync::Notify; no pack dependency offers
// this primitive directly; see DESIGN.md.
package notify

import (
	"context"
	"sync"
)

// Notify lets any number of goroutines wait for the next Signal call.
// A Signal wakes every goroutine currently blocked in Wait; it is not
// buffered, so a Signal with no waiters is simply missed (matching
// tokio::sync::Notify's notify_waiters, which this type mirrors,
// rather than notify_one's single-permit semantics).
type Notify struct {
	mu sync.Mutex
	ch chan struct{}
}

// New returns a ready-to-use Notify.
func New() *Notify {
	return &Notify{ch: make(chan struct{})}
}

// Signal wakes every goroutine currently blocked in Wait.
func (n *Notify) Signal() {
	n.mu.Lock()
	defer n.mu.Unlock()
	close(n.ch)
	n.ch = make(chan struct{})
}

// Wait blocks until the next Signal call or until ctx is done.
func (n *Notify) Wait(ctx context.Context) error {
	n.mu.Lock()
	ch := n.ch
	n.mu.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
