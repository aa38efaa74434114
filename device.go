package legacycam

import (
	"context"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"go.viam.com/legacycam/driver"
)

// options configures a LegacyCameraDevice.
type options struct {
	logger          golog.Logger
	clk             clock.Clock
	compositor      Compositor
	characteristics *Characteristics
}

// Option modifies how a LegacyCameraDevice is constructed.
type Option func(*options)

// WithLogger sets the logger all device internals log through.
func WithLogger(logger golog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithClock sets the clock used for timestamps and timeouts. Tests inject
// a mock clock here.
func WithClock(clk clock.Clock) Option {
	return func(o *options) { o.clk = clk }
}

// WithCompositor replaces the default software compositor.
func WithCompositor(compositor Compositor) Option {
	return func(o *options) { o.compositor = compositor }
}

// WithCharacteristics overrides the static characteristics otherwise
// derived from the driver's parameters at configuration time.
func WithCharacteristics(chars Characteristics) Option {
	return func(o *options) { o.characteristics = &chars }
}

// LegacyCameraDevice presents a modern, asynchronous, multi-request
// capture device on top of a synchronous one-shot legacy camera driver.
// Clients configure output surfaces, submit one-shot or repeating bursts
// of capture requests, and receive totally ordered callbacks carrying
// capture starts, synthesized results, idle transitions and errors.
//
// All exported methods are safe for concurrent use. Ownership of the
// driver handle transfers to the device; it is released on Close.
type LegacyCameraDevice struct {
	cameraID  int
	logger    golog.Logger
	callbacks CameraDeviceCallbacks

	executor *callbackExecutor
	state    *cameraDeviceState
	rtm      *requestThreadManager

	// idle is open whenever the device has no queued or in-flight work.
	idle *gate

	mu                 sync.Mutex
	closed             bool
	configuredSurfaces []Surface

	callbackErrOnce sync.Once
}

// NewLegacyCameraDevice wraps an open legacy camera in the emulated device
// interface and starts its worker goroutines. The callbacks sink receives
// every client-visible event until Close.
func NewLegacyCameraDevice(
	cameraID int,
	camera driver.Camera,
	callbacks CameraDeviceCallbacks,
	opts ...Option,
) (*LegacyCameraDevice, error) {
	if camera == nil {
		return nil, errors.Wrap(ErrBadValue, "nil camera driver")
	}
	if callbacks == nil {
		return nil, errors.Wrap(ErrBadValue, "nil device callbacks")
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = golog.NewLogger("legacycam")
	}
	if o.clk == nil {
		o.clk = clock.New()
	}
	logger := o.logger.With("camera_id", cameraID, "instance", uuid.NewString())
	if o.compositor == nil {
		o.compositor = NewSoftwareCompositor(logger)
	}

	device := &LegacyCameraDevice{
		cameraID:  cameraID,
		logger:    logger,
		callbacks: callbacks,
		executor:  newCallbackExecutor(logger),
		state:     newCameraDeviceState(logger, o.clk),
		idle:      newGate(true),
	}
	device.rtm = newRequestThreadManager(
		cameraID, camera, device.state, o.compositor, o.characteristics, logger, o.clk)
	device.state.setListener(device.executor, device)
	device.rtm.start()

	logger.Info("legacy camera device opened")
	return device, nil
}

// ConfigureOutputs replaces the set of output surfaces capture requests
// may target. Only legal while the device is idle; in-flight work must be
// allowed to drain first. A nil or empty set unconfigures the device.
func (d *LegacyCameraDevice) ConfigureOutputs(outputs []Surface) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errors.Wrap(ErrInvalidOperation, "device is closed")
	}
	for i, s := range outputs {
		if s == nil {
			return errors.Wrapf(ErrBadValue, "output surface %d is nil", i)
		}
	}

	if err := d.state.setConfiguring(); err != nil {
		return err
	}
	if err := d.rtm.configure(outputs); err != nil {
		d.state.setError(CameraErrorDevice, nil)
		return errors.Wrap(err, "failed to configure outputs")
	}
	if err := d.state.setIdle(); err != nil {
		return err
	}

	d.configuredSurfaces = append([]Surface(nil), outputs...)
	return nil
}

// SubmitRequestList submits a burst of capture requests. With repeating
// set, the burst replays indefinitely once all one-shot work ahead of it
// has drained, until cancelled; the returned frame number then reports the
// last frame the replaced repeating burst (if any) will still emit. For a
// one-shot burst it reports the frame number the burst's own last frame
// will receive.
func (d *LegacyCameraDevice) SubmitRequestList(
	requests []*CaptureRequest,
	repeating bool,
) (int32, int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, InvalidFrame, errors.Wrap(ErrInvalidOperation, "device is closed")
	}
	if len(requests) == 0 {
		return 0, InvalidFrame, errors.Wrap(ErrBadValue, "empty request list")
	}
	if len(d.configuredSurfaces) == 0 {
		return 0, InvalidFrame, errors.Wrap(ErrInvalidOperation, "no outputs configured")
	}
	for i, req := range requests {
		if req == nil {
			return 0, InvalidFrame, errors.Wrapf(ErrBadValue, "request %d is nil", i)
		}
		if len(req.Targets) == 0 {
			return 0, InvalidFrame, errors.Wrapf(ErrBadValue, "request %d has no targets", i)
		}
		for j, target := range req.Targets {
			if target == nil {
				return 0, InvalidFrame,
					errors.Wrapf(ErrBadValue, "request %d target %d is nil", i, j)
			}
			if !d.isConfiguredLocked(target) {
				return 0, InvalidFrame,
					errors.Wrapf(ErrBadValue, "request %d target %d is not configured", i, j)
			}
		}
	}

	d.idle.Close()
	return d.rtm.submitCaptureRequests(requests, repeating)
}

// SubmitRequest submits a single capture request.
func (d *LegacyCameraDevice) SubmitRequest(request *CaptureRequest, repeating bool) (int32, int64, error) {
	return d.SubmitRequestList([]*CaptureRequest{request}, repeating)
}

// CancelRequest cancels a repeating burst by id and returns the frame
// number of the last frame it will still emit. Frames already dequeued are
// not retracted. Returns InvalidFrame when no repeating burst has that id.
func (d *LegacyCameraDevice) CancelRequest(requestID int32) int64 {
	return d.rtm.cancelRepeating(requestID)
}

// WaitUntilIdle blocks until the device has no queued or in-flight work,
// or the context is done.
func (d *LegacyCameraDevice) WaitUntilIdle(ctx context.Context) error {
	return d.idle.WaitContext(ctx)
}

// Close shuts the device down, releases the driver handle, and stops
// callback delivery after draining already-emitted events. Idempotent.
func (d *LegacyCameraDevice) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	err := d.rtm.stop()
	d.executor.Stop()
	d.idle.Open()
	d.logger.Info("legacy camera device closed")
	return err
}

// isConfiguredLocked reports target membership in the configured output
// set. Surfaces compare by identity.
func (d *LegacyCameraDevice) isConfiguredLocked(target Surface) bool {
	for _, s := range d.configuredSurfaces {
		if s == target {
			return true
		}
	}
	return false
}

// stateListener implementation. Each method runs on the callback executor
// goroutine; a callback sink error permanently fails the device.

func (d *LegacyCameraDevice) onError(code CameraErrorCode, holder *RequestHolder) {
	d.idle.Open()
	if err := d.callbacks.OnCameraError(code, extrasFromRequest(holder)); err != nil {
		d.handleCallbackError(err)
	}
}

func (d *LegacyCameraDevice) onConfiguring() {
	d.logger.Debug("output configuration in progress")
}

func (d *LegacyCameraDevice) onIdle() {
	d.idle.Open()
	if err := d.callbacks.OnCameraIdle(); err != nil {
		d.handleCallbackError(err)
	}
}

func (d *LegacyCameraDevice) onCaptureStarted(holder *RequestHolder, timestamp int64) {
	if err := d.callbacks.OnCaptureStarted(extrasFromRequest(holder), timestamp); err != nil {
		d.handleCallbackError(err)
	}
}

func (d *LegacyCameraDevice) onCaptureResult(result *ResultMetadata, holder *RequestHolder) {
	if err := d.callbacks.OnResultReceived(result, extrasFromRequest(holder)); err != nil {
		d.handleCallbackError(err)
	}
}

// handleCallbackError reacts to a broken callback channel: the device
// moves to its error state once and further sink errors are ignored.
func (d *LegacyCameraDevice) handleCallbackError(err error) {
	d.callbackErrOnce.Do(func() {
		d.logger.Errorw("device callback delivery failed", "error", err)
		d.state.setError(CameraErrorService, nil)
	})
}
