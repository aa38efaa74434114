package legacycam

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
)

const (
	fpsMeasurePeriod = time.Second
	fpsReportPeriod  = 5 * time.Second
)

// fpsCounter measures the frame rate of one stream and periodically logs
// it at debug level. Safe for concurrent use.
type fpsCounter struct {
	mu             sync.Mutex
	clk            clock.Clock
	logger         golog.Logger
	streamType     string
	frameCount     int
	lastTime       time.Time
	lastReportTime time.Time
	lastFps        float64
}

func newFpsCounter(logger golog.Logger, clk clock.Clock, streamType string) *fpsCounter {
	return &fpsCounter{clk: clk, logger: logger, streamType: streamType}
}

// countFrame records one frame arrival, folding it into the rate estimate.
func (f *fpsCounter) countFrame() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.countFrameLocked()
}

func (f *fpsCounter) countFrameLocked() {
	now := f.clk.Now()
	f.frameCount++
	if f.lastTime.IsZero() {
		f.lastTime = now
	}
	if elapsed := now.Sub(f.lastTime); elapsed >= fpsMeasurePeriod {
		f.lastFps = float64(f.frameCount) / elapsed.Seconds()
		f.frameCount = 0
		f.lastTime = now
	}
}

// checkFps returns the most recent frame rate estimate.
func (f *fpsCounter) checkFps() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastFps
}

// staggeredLog logs the current estimate at most once per report period.
func (f *fpsCounter) staggeredLog() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.staggeredLogLocked()
}

func (f *fpsCounter) staggeredLogLocked() {
	now := f.clk.Now()
	if !f.lastReportTime.IsZero() && now.Sub(f.lastReportTime) < fpsReportPeriod {
		return
	}
	f.lastReportTime = now
	f.logger.Debugw("stream fps", "stream", f.streamType, "fps", f.lastFps)
}

// countAndLog is countFrame plus staggeredLog in one locked step.
func (f *fpsCounter) countAndLog() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.countFrameLocked()
	f.staggeredLogLocked()
}
