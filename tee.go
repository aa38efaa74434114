package legacycam

import (
	"context"
	"sync"

	"github.com/edaniels/golog"
	goutils "go.viam.com/utils"

	"go.viam.com/legacycam/driver"
)

// jobQueueDepth bounds the compositor's frame backlog; frames past it are
// dropped rather than stalling the frame-available path.
const jobQueueDepth = 8

// SoftwareCompositor is a pure-Go Compositor that tees the intermediate
// buffer into every target surface with a plain pixel copy. It stands in
// for a GL-backed compositor wherever hardware compositing is unavailable,
// which also makes the full pipeline testable in-process.
type SoftwareCompositor struct {
	logger golog.Logger

	mu       sync.Mutex
	started  bool
	texture  *MemoryTexture
	ignoring bool
	pending  int

	startedGate *gate
	idleGate    *gate

	jobs                    chan []Surface
	cancelCtx               context.Context
	cancel                  func()
	activeBackgroundWorkers sync.WaitGroup
}

// NewSoftwareCompositor returns a compositor ready to be started.
func NewSoftwareCompositor(logger golog.Logger) *SoftwareCompositor {
	cancelCtx, cancel := context.WithCancel(context.Background())
	return &SoftwareCompositor{
		logger:      logger,
		startedGate: newGate(false),
		idleGate:    newGate(true),
		jobs:        make(chan []Surface, jobQueueDepth),
		cancelCtx:   cancelCtx,
		cancel:      cancel,
	}
}

// Start brings up the draw goroutine. Idempotent.
func (c *SoftwareCompositor) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return
	}
	c.started = true
	c.activeBackgroundWorkers.Add(1)
	goutils.ManagedGo(c.drawLoop, c.activeBackgroundWorkers.Done)
	c.startedGate.Open()
}

// WaitUntilStarted blocks until Start has taken effect.
func (c *SoftwareCompositor) WaitUntilStarted(ctx context.Context) error {
	return c.startedGate.WaitContext(ctx)
}

// SetConfigurationAndWait replaces the preview output configuration. A
// fresh intermediate texture is created whenever at least one preview
// output exists; with none, the texture is torn down.
func (c *SoftwareCompositor) SetConfigurationAndWait(previewOutputs []Surface) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(previewOutputs) == 0 {
		c.texture = nil
		return nil
	}
	c.texture = NewMemoryTexture(0, 0)
	return nil
}

// CurrentSurfaceTexture returns the intermediate texture, or nil when no
// preview outputs are configured.
func (c *SoftwareCompositor) CurrentSurfaceTexture() driver.PreviewTexture {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.texture == nil {
		return nil
	}
	return c.texture
}

// QueueNewFrame asks the draw goroutine to tee the current intermediate
// buffer into the given targets. A nil target set drops the frame.
func (c *SoftwareCompositor) QueueNewFrame(targets []Surface) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ignoring || targets == nil {
		c.logger.Debug("dropping compositor frame")
		return
	}
	select {
	case c.jobs <- targets:
		c.pending++
		c.idleGate.Close()
	default:
		c.logger.Warnw("compositor backlogged, dropping frame", "depth", jobQueueDepth)
	}
}

// WaitUntilIdle blocks until all queued frames have been drawn.
func (c *SoftwareCompositor) WaitUntilIdle(ctx context.Context) error {
	return c.idleGate.WaitContext(ctx)
}

// IgnoreNewFrames makes subsequent QueueNewFrame calls no-ops.
func (c *SoftwareCompositor) IgnoreNewFrames() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ignoring = true
}

// AllowNewFrames re-enables frame queueing.
func (c *SoftwareCompositor) AllowNewFrames() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ignoring = false
}

// Quit tears the compositor down.
func (c *SoftwareCompositor) Quit() error {
	c.cancel()
	c.activeBackgroundWorkers.Wait()
	return nil
}

func (c *SoftwareCompositor) drawLoop() {
	for {
		select {
		case <-c.cancelCtx.Done():
			return
		case targets := <-c.jobs:
			c.draw(targets)
			c.finishJob()
		}
	}
}

func (c *SoftwareCompositor) draw(targets []Surface) {
	c.mu.Lock()
	texture := c.texture
	c.mu.Unlock()
	if texture == nil {
		return
	}
	frame, size := texture.LatestFrame()
	if frame == nil {
		return
	}
	for _, target := range targets {
		if isJpegSurface(target) {
			continue
		}
		format, err := target.PixelFormat()
		if err != nil {
			c.logger.Errorw("failed to detect target surface format", "error", err)
			continue
		}
		if err := target.ProduceFrame(frame, size, format); err != nil {
			c.logger.Errorw("failed to produce frame into target surface", "error", err)
		}
	}
}

func (c *SoftwareCompositor) finishJob() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending--
	if c.pending == 0 {
		c.idleGate.Open()
	}
}
