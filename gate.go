package legacycam

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// A gate is a reusable binary condition. Waiters block while the gate is
// closed and pass through while it is open; the gate keeps its state until
// explicitly flipped, so an Open before a Wait is never lost.
type gate struct {
	mu     sync.Mutex
	open   bool
	openCh chan struct{}
}

func newGate(open bool) *gate {
	g := &gate{open: open, openCh: make(chan struct{})}
	if open {
		close(g.openCh)
	}
	return g
}

// Open releases all current and future waiters until the next Close.
func (g *gate) Open() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.open {
		return
	}
	g.open = true
	close(g.openCh)
}

// Close arms the gate so subsequent waiters block.
func (g *gate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.open {
		return
	}
	g.open = false
	g.openCh = make(chan struct{})
}

func (g *gate) channel() <-chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.openCh
}

// Wait blocks until the gate is open.
func (g *gate) Wait() {
	<-g.channel()
}

// WaitContext blocks until the gate is open or the context is done.
func (g *gate) WaitContext(ctx context.Context) error {
	select {
	case <-g.channel():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitWithTimeout blocks until the gate is open, reporting false if the
// timeout elapses first.
func (g *gate) WaitWithTimeout(clk clock.Clock, timeout time.Duration) bool {
	ch := g.channel()
	select {
	case <-ch:
		return true
	default:
	}
	timer := clk.Timer(timeout)
	defer timer.Stop()
	select {
	case <-ch:
		return true
	case <-timer.C:
		// the gate may have opened while the timer fired
		select {
		case <-ch:
			return true
		default:
			return false
		}
	}
}
