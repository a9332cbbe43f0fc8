package download

import (
	"context"
	"sync"
)

// PauseGate is the cooperative suspend signal between the controller and a
// session goroutine. Disarming it parks the session at its next check; it
// does not touch the transfer process, which keeps running meanwhile.
type PauseGate struct {
	mu       sync.Mutex
	open     chan struct{} // closed while armed
	released bool
}

// NewPauseGate returns an armed gate.
func NewPauseGate() *PauseGate {
	open := make(chan struct{})
	close(open)
	return &PauseGate{open: open}
}

// Disarm pauses. It reports whether the gate changed state.
func (g *PauseGate) Disarm() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.released || !isClosed(g.open) {
		return false
	}
	g.open = make(chan struct{})
	return true
}

// Arm resumes. It reports whether the gate changed state.
func (g *PauseGate) Arm() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if isClosed(g.open) {
		return false
	}
	close(g.open)
	return true
}

// Release arms the gate for good; later Disarm calls are ignored. Stop uses
// it so a paused session wakes up to observe the cancellation.
func (g *PauseGate) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.released = true
	if !isClosed(g.open) {
		close(g.open)
	}
}

// Armed reports whether Await would return immediately.
func (g *PauseGate) Armed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return isClosed(g.open)
}

// Await blocks until the gate is armed or ctx is done.
func (g *PauseGate) Await(ctx context.Context) error {
	g.mu.Lock()
	open := g.open
	g.mu.Unlock()

	select {
	case <-open:
		return nil
	default:
	}
	select {
	case <-open:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func isClosed(ch chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
