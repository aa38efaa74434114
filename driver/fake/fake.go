// Package fake provides an in-process legacy camera driver that renders
// synthetic frames. It backs tests and demos for the emulation layer.
package fake

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"go.viam.com/legacycam/driver"
)

// framePeriod is the synthetic preview frame rate (~30fps).
const framePeriod = 33 * time.Millisecond

// jpegPayload is a minimal well-formed jpeg byte stream: SOI, a comment
// segment, EOI.
var jpegPayload = []byte{
	0xff, 0xd8,
	0xff, 0xfe, 0x00, 0x0c, 'f', 'a', 'k', 'e', ' ', 'f', 'r', 'a', 'm', 'e',
	0xff, 0xd9,
}

type options struct {
	logger golog.Logger
	clk    clock.Clock
}

// Option modifies how a fake Camera is constructed.
type Option func(*options)

// WithLogger sets the logger the fake camera logs through.
func WithLogger(logger golog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithClock sets the clock driving the synthetic preview stream. Tests
// inject a mock clock to step frames deterministically.
func WithClock(clk clock.Clock) Option {
	return func(o *options) { o.clk = clk }
}

// Camera is a fake legacy camera. It honors the one-in-flight, single
// goroutine access contract of driver.Camera but additionally locks
// internally so its background frame producer stays coherent.
type Camera struct {
	logger golog.Logger
	clk    clock.Clock

	mu             sync.Mutex
	params         *driver.Parameters
	texture        driver.PreviewTexture
	previewRunning bool
	released       bool
	frameIndex     byte

	cancelPreview           func()
	activeBackgroundWorkers sync.WaitGroup
}

// New returns an open fake camera with a plausible default parameter set.
func New(opts ...Option) *Camera {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = golog.NewLogger("fakecam")
	}
	if o.clk == nil {
		o.clk = clock.New()
	}
	return &Camera{
		logger: o.logger,
		clk:    o.clk,
		params: defaultParameters(),
	}
}

func defaultParameters() *driver.Parameters {
	params := driver.NewParameters()
	params.SetSupportedPreviewSizes([]driver.Size{
		{Width: 320, Height: 240},
		{Width: 640, Height: 480},
		{Width: 1280, Height: 720},
		{Width: 1440, Height: 1080},
		{Width: 1920, Height: 1080},
	})
	params.SetSupportedPictureSizes([]driver.Size{
		{Width: 640, Height: 480},
		{Width: 1440, Height: 1080},
		{Width: 2048, Height: 1536},
		{Width: 3264, Height: 2448},
	})
	params.SetSupportedPreviewFpsRanges([]driver.FpsRange{
		{Min: 15000, Max: 30000},
		{Min: 30000, Max: 30000},
	})
	params.SetPreviewSize(driver.Size{Width: 640, Height: 480})
	params.SetPreviewFpsRange(15000, 30000)
	params.SetFlashMode(driver.FlashModeOff)
	params.SetFocusMode(driver.FocusModeAuto)
	params.SetSceneMode(driver.SceneModeAuto)
	params.SetColorEffect(driver.EffectNone)
	params.SetAntibanding(driver.AntibandingAuto)
	params.SetExposureCompensation(0)
	params.Set(driver.KeyAutoExposureLockSupp, "true")
	params.Set(driver.KeyAutoWhiteBalanceLockSupp, "true")
	params.Set(driver.KeyFocalLength, "3.30")
	return params
}

// Parameters returns a snapshot of the current parameters.
func (c *Camera) Parameters() (*driver.Parameters, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return nil, errors.New("camera is released")
	}
	return c.params.Copy(), nil
}

// SetParameters applies the given parameters.
func (c *Camera) SetParameters(params *driver.Parameters) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return errors.New("camera is released")
	}
	c.params = params.Copy()
	return nil
}

// SetPreviewTexture binds the texture synthetic frames are pushed into.
func (c *Camera) SetPreviewTexture(texture driver.PreviewTexture) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return errors.New("camera is released")
	}
	c.texture = texture
	return nil
}

// StartPreview begins producing synthetic frames at the preview rate.
func (c *Camera) StartPreview() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return errors.New("camera is released")
	}
	if c.texture == nil {
		return errors.New("no preview texture bound")
	}
	if c.previewRunning {
		return nil
	}

	cancelCtx, cancel := context.WithCancel(context.Background())
	c.cancelPreview = cancel
	c.previewRunning = true
	c.activeBackgroundWorkers.Add(1)
	goutils.ManagedGo(func() { c.produceFrames(cancelCtx) }, c.activeBackgroundWorkers.Done)
	c.logger.Debug("preview started")
	return nil
}

// StopPreview halts the synthetic frame producer.
func (c *Camera) StopPreview() error {
	c.mu.Lock()
	if c.released {
		c.mu.Unlock()
		return errors.New("camera is released")
	}
	c.stopPreviewLocked()
	c.mu.Unlock()
	c.activeBackgroundWorkers.Wait()
	return nil
}

func (c *Camera) stopPreviewLocked() {
	if !c.previewRunning {
		return
	}
	c.cancelPreview()
	c.cancelPreview = nil
	c.previewRunning = false
	c.logger.Debug("preview stopped")
}

// TakePicture fires the shutter callback, delivers a fixed jpeg payload,
// and stops the preview stream as real drivers do.
func (c *Camera) TakePicture(shutter func(), jpeg func(data []byte)) error {
	c.mu.Lock()
	if c.released {
		c.mu.Unlock()
		return errors.New("camera is released")
	}
	if !c.previewRunning {
		c.mu.Unlock()
		return errors.New("cannot take picture without a running preview")
	}
	c.stopPreviewLocked()
	c.mu.Unlock()
	c.activeBackgroundWorkers.Wait()

	if shutter != nil {
		shutter()
	}
	if jpeg != nil {
		jpeg(append([]byte(nil), jpegPayload...))
	}
	return nil
}

// Release closes the camera. All further calls fail.
func (c *Camera) Release() error {
	c.mu.Lock()
	if c.released {
		c.mu.Unlock()
		return nil
	}
	c.stopPreviewLocked()
	c.released = true
	c.mu.Unlock()
	c.activeBackgroundWorkers.Wait()
	c.logger.Debug("camera released")
	return nil
}

// produceFrames pushes one synthetic frame into the bound texture every
// frame period until cancelled. Textures without a software producer side
// are left untouched.
func (c *Camera) produceFrames(ctx context.Context) {
	ticker := c.clk.Ticker(framePeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.pushFrame()
		}
	}
}

func (c *Camera) pushFrame() {
	c.mu.Lock()
	target, ok := c.texture.(driver.PreviewFrameTarget)
	size := c.params.PreviewSize()
	c.frameIndex++
	index := c.frameIndex
	c.mu.Unlock()
	if !ok {
		return
	}
	if size.Width <= 0 || size.Height <= 0 {
		size = driver.Size{Width: 640, Height: 480}
	}

	// NV21 layout: full-res luma plane plus half-res interleaved chroma
	frame := make([]byte, size.Area()+size.Area()/2)
	for i := range frame {
		frame[i] = index
	}
	target.PushFrame(frame, size, c.clk.Now().UnixNano())
}
