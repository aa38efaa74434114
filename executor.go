package legacycam

import (
	"sync"

	"github.com/edaniels/golog"
	goutils "go.viam.com/utils"
)

// callbackExecutor runs posted tasks on one dedicated goroutine in posting
// order. It is the "result thread" of the device: every client-visible
// callback goes through it, so no internal lock is ever held while client
// code runs and callbacks for one device are totally ordered.
type callbackExecutor struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []func()
	stopped bool

	activeBackgroundWorkers sync.WaitGroup
	logger                  golog.Logger
}

func newCallbackExecutor(logger golog.Logger) *callbackExecutor {
	e := &callbackExecutor{logger: logger}
	e.cond = sync.NewCond(&e.mu)
	e.activeBackgroundWorkers.Add(1)
	goutils.ManagedGo(e.drain, e.activeBackgroundWorkers.Done)
	return e
}

// Post enqueues a task. The queue is unbounded so posting never blocks the
// poster. Tasks posted after Stop are dropped.
func (e *callbackExecutor) Post(task func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		e.logger.Debug("dropping callback posted after executor stop")
		return
	}
	e.queue = append(e.queue, task)
	e.cond.Signal()
}

func (e *callbackExecutor) drain() {
	e.mu.Lock()
	for {
		for len(e.queue) == 0 {
			if e.stopped {
				e.mu.Unlock()
				return
			}
			e.cond.Wait()
		}
		task := e.queue[0]
		e.queue = e.queue[1:]
		e.mu.Unlock()
		task()
		e.mu.Lock()
	}
}

// Stop runs all pending tasks, then terminates the executor goroutine.
func (e *callbackExecutor) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		e.activeBackgroundWorkers.Wait()
		return
	}
	e.stopped = true
	e.cond.Broadcast()
	e.mu.Unlock()
	e.activeBackgroundWorkers.Wait()
}
