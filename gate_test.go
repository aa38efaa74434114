package legacycam

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.viam.com/test"
)

func TestGateInitiallyOpen(t *testing.T) {
	g := newGate(true)
	done := make(chan struct{})
	go func() {
		g.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waiter blocked on an open gate")
	}
}

func TestGateReusable(t *testing.T) {
	g := newGate(false)

	released := make(chan struct{})
	go func() {
		g.Wait()
		close(released)
	}()
	g.Open()
	<-released

	// closing re-arms the gate for the next cycle
	g.Close()
	test.That(t, g.WaitWithTimeout(clock.New(), 10*time.Millisecond), test.ShouldBeFalse)
	g.Open()
	test.That(t, g.WaitWithTimeout(clock.New(), 10*time.Millisecond), test.ShouldBeTrue)
}

func TestGateWaitContext(t *testing.T) {
	g := newGate(false)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := g.WaitContext(ctx)
	test.That(t, err, test.ShouldBeError, context.DeadlineExceeded)

	g.Open()
	test.That(t, g.WaitContext(context.Background()), test.ShouldBeNil)
}

func TestGateWaitWithTimeoutRaces(t *testing.T) {
	g := newGate(false)
	go func() {
		time.Sleep(10 * time.Millisecond)
		g.Open()
	}()
	test.That(t, g.WaitWithTimeout(clock.New(), time.Second), test.ShouldBeTrue)
}

func TestGateIdempotentFlips(t *testing.T) {
	g := newGate(false)
	g.Close()
	g.Open()
	g.Open()
	test.That(t, g.WaitWithTimeout(clock.New(), 10*time.Millisecond), test.ShouldBeTrue)
}
