package legacycam

import (
	"context"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"go.viam.com/legacycam/driver"
)

const (
	// previewFrameTimeout bounds the wait for one preview frame from the
	// legacy driver. A miss is logged, not fatal; the synthesized result
	// reuses the previous frame's timestamp.
	previewFrameTimeout = 300 * time.Millisecond

	// jpegFrameTimeout bounds the wait for a still capture to deliver its
	// compressed image.
	jpegFrameTimeout = time.Second

	// emulatedPipelineDepth is the depth reported in synthesized results;
	// the emulation never holds more frames in flight than this.
	emulatedPipelineDepth = 3

	dummyPreviewWidth  = 640
	dummyPreviewHeight = 480
)

// configureMessage carries one output configuration to the worker; the
// outcome is reported back on done.
type configureMessage struct {
	outputs []Surface
	done    chan error
}

// requestThreadManager is the worker that owns the legacy device handle.
// Every driver call is made from its single goroutine, which drains the
// request queue, runs preview and still-capture cycles, synthesizes
// results, and drives the device state machine.
//
// Fields below the worker-state marker are owned by the worker goroutine
// and never touched from outside it.
type requestThreadManager struct {
	cameraID     int
	logger       golog.Logger
	camera       driver.Camera
	deviceState  *cameraDeviceState
	requestQueue *RequestQueue
	compositor   Compositor
	clk          clock.Clock
	mapper       *resultMapper

	configCh chan *configureMessage
	kickCh   chan struct{}

	cancelCtx               context.Context
	cancel                  func()
	activeBackgroundWorkers sync.WaitGroup
	stopOnce                sync.Once

	lastPreviewTimestamp atomic.Int64
	lastJpegTimestamp    atomic.Int64
	inFlightPreview      atomic.Pointer[RequestHolder]
	inFlightJpeg         atomic.Pointer[RequestHolder]

	receivedPreview *gate
	receivedJpeg    *gate

	previewCounter *fpsCounter
	requestCounter *fpsCounter

	// worker state
	compositorStarted bool
	previewRunning    bool
	params            *driver.Parameters
	previewOutputs    []Surface
	jpegOutputs       []Surface
	previewTexture    driver.PreviewTexture
	dummyTexture      *MemoryTexture
	intermediateSize  *Size
	chars             *Characteristics
	cleanupErr        error
}

func newRequestThreadManager(
	cameraID int,
	camera driver.Camera,
	deviceState *cameraDeviceState,
	compositor Compositor,
	chars *Characteristics,
	logger golog.Logger,
	clk clock.Clock,
) *requestThreadManager {
	cancelCtx, cancel := context.WithCancel(context.Background())
	return &requestThreadManager{
		cameraID:        cameraID,
		logger:          logger,
		camera:          camera,
		deviceState:     deviceState,
		requestQueue:    NewRequestQueue(logger),
		compositor:      compositor,
		clk:             clk,
		mapper:          newResultMapper(logger),
		configCh:        make(chan *configureMessage),
		kickCh:          make(chan struct{}, 1),
		cancelCtx:       cancelCtx,
		cancel:          cancel,
		receivedPreview: newGate(false),
		receivedJpeg:    newGate(false),
		previewCounter:  newFpsCounter(logger, clk, "preview"),
		requestCounter:  newFpsCounter(logger, clk, "request"),
		chars:           chars,
	}
}

// start launches the worker goroutine.
func (rtm *requestThreadManager) start() {
	rtm.activeBackgroundWorkers.Add(1)
	goutils.ManagedGo(rtm.requestLoop, rtm.activeBackgroundWorkers.Done)
}

// stop tears the worker down, releasing the legacy device. Idempotent.
func (rtm *requestThreadManager) stop() error {
	rtm.stopOnce.Do(func() {
		rtm.cancel()
	})
	rtm.activeBackgroundWorkers.Wait()
	return rtm.cleanupErr
}

// configure hands an output configuration to the worker and blocks until
// it has been applied.
func (rtm *requestThreadManager) configure(outputs []Surface) error {
	msg := &configureMessage{outputs: outputs, done: make(chan error, 1)}
	select {
	case rtm.configCh <- msg:
	case <-rtm.cancelCtx.Done():
		return errors.Wrap(ErrInvalidOperation, "device is shut down")
	}
	select {
	case err := <-msg.done:
		return err
	case <-rtm.cancelCtx.Done():
		return errors.Wrap(ErrInvalidOperation, "device is shut down")
	}
}

// submitCaptureRequests enqueues a burst and wakes the worker.
func (rtm *requestThreadManager) submitCaptureRequests(
	requests []*CaptureRequest,
	repeating bool,
) (int32, int64, error) {
	requestID, lastFrame, err := rtm.requestQueue.Submit(requests, repeating)
	if err != nil {
		return 0, InvalidFrame, err
	}
	rtm.kick()
	return requestID, lastFrame, nil
}

// cancelRepeating clears a repeating burst by id, returning the last frame
// number it will still emit, or InvalidFrame when the id does not match.
func (rtm *requestThreadManager) cancelRepeating(requestID int32) int64 {
	lastFrame := rtm.requestQueue.StopRepeating(requestID)
	// wake the worker so an otherwise-empty queue reports idle promptly
	rtm.kick()
	return lastFrame
}

func (rtm *requestThreadManager) kick() {
	select {
	case rtm.kickCh <- struct{}{}:
	default:
	}
}

func (rtm *requestThreadManager) requestLoop() {
	defer rtm.cleanup()
	for {
		select {
		case <-rtm.cancelCtx.Done():
			return
		case msg := <-rtm.configCh:
			msg.done <- rtm.configureOutputs(msg.outputs)
		case <-rtm.kickCh:
			rtm.drainRequestQueue()
		}
	}
}

// drainRequestQueue executes bursts until the queue reports empty, giving
// configuration requests priority between bursts. An empty queue is the
// sole signal that the device may go idle and the preview may stop.
func (rtm *requestThreadManager) drainRequestQueue() {
	for {
		select {
		case <-rtm.cancelCtx.Done():
			return
		case msg := <-rtm.configCh:
			msg.done <- rtm.configureOutputs(msg.outputs)
			continue
		default:
		}

		burst, startFrame, ok := rtm.requestQueue.GetNext()
		if !ok {
			if err := rtm.deviceState.setIdle(); err != nil {
				rtm.logger.Debugw("could not report idle", "error", err)
			}
			if err := rtm.stopPreview(); err != nil {
				rtm.logger.Errorw("failed to stop preview on idle", "error", err)
				rtm.deviceState.setError(CameraErrorDevice, nil)
			}
			return
		}
		if !rtm.processBurst(burst, startFrame) {
			return
		}
	}
}

// processBurst runs every frame of one burst execution. It reports false
// when draining must stop because the device entered its error state.
func (rtm *requestThreadManager) processBurst(burst *BurstHolder, startFrame int64) bool {
	holders := burst.produceRequestHolders(startFrame)
	for _, holder := range holders {
		select {
		case <-rtm.cancelCtx.Done():
			return false
		default:
		}

		rtm.requestCounter.countAndLog()
		if err := rtm.deviceState.setCaptureStart(holder); err != nil {
			rtm.logger.Errorw("could not report capture start",
				"frame", holder.FrameNumber(), "error", err)
			return false
		}

		var timestamp int64
		if holder.HasPreviewTargets() {
			rtm.receivedPreview.Close()
			if err := rtm.doPreviewCapture(holder); err != nil {
				rtm.logger.Errorw("preview capture failed",
					"frame", holder.FrameNumber(), "error", err)
				rtm.deviceState.setError(CameraErrorDevice, holder)
				return false
			}
			if !rtm.receivedPreview.WaitWithTimeout(rtm.clk, previewFrameTimeout) {
				rtm.logger.Errorw("timed out waiting for preview frame",
					"frame", holder.FrameNumber(), "timeout", previewFrameTimeout)
			}
			timestamp = rtm.lastPreviewTimestamp.Load()
		}
		if holder.HasJpegTargets() {
			rtm.receivedJpeg.Close()
			if err := rtm.doJpegCapture(holder); err != nil {
				rtm.logger.Errorw("still capture failed",
					"frame", holder.FrameNumber(), "error", err)
				rtm.deviceState.setError(CameraErrorDevice, holder)
				return false
			}
			if !rtm.receivedJpeg.WaitWithTimeout(rtm.clk, jpegFrameTimeout) {
				rtm.logger.Errorw("timed out waiting for still capture",
					"frame", holder.FrameNumber(), "timeout", jpegFrameTimeout)
				rtm.inFlightJpeg.Store(nil)
			}
			timestamp = rtm.lastJpegTimestamp.Load()
		}

		result := rtm.mapper.cachedConvert(legacyRequest{
			characteristics: rtm.chars,
			request:         holder.Request(),
			previewSize:     rtm.activePreviewSize(),
			parameters:      rtm.params,
		}, timestamp)
		if err := rtm.deviceState.setCaptureResult(holder, result); err != nil {
			rtm.logger.Errorw("could not report capture result",
				"frame", holder.FrameNumber(), "error", err)
			return false
		}
	}
	return true
}

// configureOutputs tears down the previous output configuration and
// applies a new one: stop the preview, quiesce the compositor, partition
// the surfaces, pick the intermediate buffer size, and rewire the preview
// texture.
func (rtm *requestThreadManager) configureOutputs(outputs []Surface) error {
	rtm.logger.Infow("configuring outputs", "camera_id", rtm.cameraID, "outputs", len(outputs))

	if err := rtm.stopPreview(); err != nil {
		return err
	}
	if rtm.previewTexture != nil {
		rtm.previewTexture.OnFrameAvailable(nil)
		rtm.previewTexture = nil
	}
	if rtm.compositorStarted {
		if err := rtm.compositor.WaitUntilStarted(rtm.cancelCtx); err != nil {
			return errors.Wrap(err, "waiting for compositor startup")
		}
		rtm.compositor.IgnoreNewFrames()
		if err := rtm.compositor.WaitUntilIdle(rtm.cancelCtx); err != nil {
			return errors.Wrap(err, "waiting for compositor to quiesce")
		}
	}
	rtm.inFlightPreview.Store(nil)
	rtm.inFlightJpeg.Store(nil)
	rtm.previewOutputs = nil
	rtm.jpegOutputs = nil
	rtm.intermediateSize = nil

	for _, s := range outputs {
		if isJpegSurface(s) {
			rtm.jpegOutputs = append(rtm.jpegOutputs, s)
		} else {
			rtm.previewOutputs = append(rtm.previewOutputs, s)
		}
	}

	params, err := rtm.camera.Parameters()
	if err != nil {
		return errors.Wrap(err, "reading device parameters")
	}
	rtm.params = params
	if rtm.chars == nil {
		rtm.chars = deriveCharacteristics(params)
		rtm.logger.Debugw("derived device characteristics",
			"active_array", rtm.chars.ActiveArraySize.String(),
			"flash_available", rtm.chars.FlashAvailable)
	}

	if len(rtm.previewOutputs) > 0 {
		size := rtm.pickIntermediateSize()
		rtm.intermediateSize = &size
		rtm.logger.Debugw("selected intermediate buffer size", "size", size.String())
	}
	if len(rtm.jpegOutputs) > 0 {
		if largest, ok := largestSurfaceDimensions(rtm.jpegOutputs, rtm.logger); ok {
			rtm.params.SetPictureSize(largest)
		}
	}

	if len(rtm.previewOutputs) > 0 && !rtm.compositorStarted {
		rtm.compositor.Start()
		rtm.compositorStarted = true
	}
	if rtm.compositorStarted {
		if err := rtm.compositor.WaitUntilStarted(rtm.cancelCtx); err != nil {
			return errors.Wrap(err, "waiting for compositor startup")
		}
		if err := rtm.compositor.SetConfigurationAndWait(rtm.previewOutputs); err != nil {
			return errors.Wrap(err, "configuring compositor outputs")
		}
		rtm.compositor.AllowNewFrames()
		if texture := rtm.compositor.CurrentSurfaceTexture(); texture != nil {
			rtm.previewTexture = texture
			texture.OnFrameAvailable(func() { rtm.onPreviewFrameAvailable(texture) })
		}
	}
	return nil
}

// pickIntermediateSize chooses the legacy preview size every preview
// output is teed from: the smallest supported size at least as large as
// the largest preview output, preferring sizes whose aspect ratio matches
// the largest supported still size (the sensor aspect proxy) so previews
// frame the same scene as captures. With no suitable candidate it falls
// back to the largest supported size.
func (rtm *requestThreadManager) pickIntermediateSize() Size {
	outputSizes := make([]Size, 0, len(rtm.previewOutputs))
	for _, s := range rtm.previewOutputs {
		dims, err := s.Dimensions()
		if err != nil {
			rtm.logger.Errorw("could not read preview output dimensions", "error", err)
			continue
		}
		outputSizes = append(outputSizes, dims)
	}

	supported := rtm.params.SupportedPreviewSizes()
	if len(supported) == 0 {
		rtm.logger.Warn("device reports no supported preview sizes")
		if len(outputSizes) == 0 {
			return Size{Width: dummyPreviewWidth, Height: dummyPreviewHeight}
		}
		return findLargestByArea(outputSizes)
	}
	if len(outputSizes) == 0 {
		return findLargestByArea(supported)
	}
	largestOutput := findLargestByArea(outputSizes)

	var largestJpeg *Size
	if pictures := rtm.params.SupportedPictureSizes(); len(pictures) > 0 {
		largest := findLargestByArea(pictures)
		largestJpeg = &largest
	}

	var best *Size
	for i := range supported {
		candidate := supported[i]
		if candidate.Area() < largestOutput.Area() {
			continue
		}
		if largestJpeg != nil && !aspectRatiosMatch(candidate, *largestJpeg) {
			continue
		}
		if best == nil || candidate.Area() < best.Area() {
			best = &supported[i]
		}
	}
	if best == nil {
		return findLargestByArea(supported)
	}
	return *best
}

// largestSurfaceDimensions returns the largest dimensions among the given
// surfaces; false when none could be read.
func largestSurfaceDimensions(surfaces []Surface, logger golog.Logger) (Size, bool) {
	sizes := make([]Size, 0, len(surfaces))
	for _, s := range surfaces {
		dims, err := s.Dimensions()
		if err != nil {
			logger.Errorw("could not read surface dimensions", "error", err)
			continue
		}
		sizes = append(sizes, dims)
	}
	if len(sizes) == 0 {
		return Size{}, false
	}
	return findLargestByArea(sizes), true
}

// deriveCharacteristics synthesizes static device characteristics from the
// legacy parameters: the active array spans the largest still size, and a
// flash unit exists exactly when the flash mode parameter does.
func deriveCharacteristics(params *driver.Parameters) *Characteristics {
	active := image.Rect(0, 0, dummyPreviewWidth, dummyPreviewHeight)
	if pictures := params.SupportedPictureSizes(); len(pictures) > 0 {
		largest := findLargestByArea(pictures)
		active = image.Rect(0, 0, largest.Width, largest.Height)
	}
	return &Characteristics{
		ActiveArraySize:  active,
		FlashAvailable:   params.Get(driver.KeyFlashMode) != "",
		PipelineMaxDepth: emulatedPipelineDepth,
	}
}

func (rtm *requestThreadManager) activePreviewSize() Size {
	if rtm.intermediateSize == nil {
		return Size{}
	}
	return *rtm.intermediateSize
}

// doPreviewCapture marks the frame as the in-flight preview request and
// starts the preview stream if it is not already running.
func (rtm *requestThreadManager) doPreviewCapture(holder *RequestHolder) error {
	rtm.inFlightPreview.Store(holder)
	if rtm.previewRunning {
		return nil
	}
	return rtm.startPreview()
}

// startPreview pushes the preview configuration to the driver and starts
// the stream into the intermediate texture.
func (rtm *requestThreadManager) startPreview() error {
	if rtm.previewTexture == nil || rtm.intermediateSize == nil {
		return errors.New("no preview outputs configured")
	}
	size := *rtm.intermediateSize
	rtm.previewTexture.SetDefaultBufferSize(size.Width, size.Height)
	if err := rtm.camera.SetPreviewTexture(rtm.previewTexture); err != nil {
		return errors.Wrap(err, "binding preview texture")
	}

	if ranges := rtm.params.SupportedPreviewFpsRanges(); len(ranges) > 0 {
		best := photoPreviewFpsRange(ranges)
		rtm.logger.Debugw("selected preview fps range", "min", best.Min, "max", best.Max)
		rtm.params.SetPreviewFpsRange(best.Min, best.Max)
	}
	rtm.params.SetRecordingHint(true)
	rtm.params.SetPreviewSize(size)
	if err := rtm.camera.SetParameters(rtm.params); err != nil {
		return errors.Wrap(err, "applying preview parameters")
	}

	if err := rtm.camera.StartPreview(); err != nil {
		return errors.Wrap(err, "starting preview")
	}
	rtm.previewRunning = true
	return nil
}

func (rtm *requestThreadManager) stopPreview() error {
	if !rtm.previewRunning {
		return nil
	}
	if err := rtm.camera.StopPreview(); err != nil {
		return errors.Wrap(err, "stopping preview")
	}
	rtm.previewRunning = false
	return nil
}

// photoPreviewFpsRange picks the range with the highest maximum rate,
// tiebreaking on the highest minimum. The slice must be non-empty.
func photoPreviewFpsRange(ranges []driver.FpsRange) driver.FpsRange {
	best := ranges[0]
	for _, r := range ranges[1:] {
		if r.Max > best.Max || (r.Max == best.Max && r.Min > best.Min) {
			best = r
		}
	}
	return best
}

// doJpegCapture triggers a still capture, transparently starting a dummy
// preview first when none is running, since the legacy driver refuses to
// take a picture without an active preview.
func (rtm *requestThreadManager) doJpegCapture(holder *RequestHolder) error {
	if !rtm.previewRunning {
		if err := rtm.startDummyPreview(); err != nil {
			return err
		}
	}
	rtm.inFlightJpeg.Store(holder)
	if err := rtm.camera.TakePicture(rtm.onJpegShutter, rtm.onJpegTaken); err != nil {
		return errors.Wrap(err, "triggering still capture")
	}
	// the driver stops the preview stream as a side effect of the capture
	rtm.previewRunning = false
	return nil
}

// startDummyPreview brings up a throwaway preview into a texture nobody
// consumes, purely to make a still capture legal.
func (rtm *requestThreadManager) startDummyPreview() error {
	rtm.logger.Debug("starting dummy preview to enable still capture")
	if rtm.dummyTexture == nil {
		rtm.dummyTexture = NewMemoryTexture(dummyPreviewWidth, dummyPreviewHeight)
	}
	if err := rtm.camera.SetPreviewTexture(rtm.dummyTexture); err != nil {
		return errors.Wrap(err, "binding dummy preview texture")
	}
	// the parameter snapshot carries the requested picture size and must
	// reach the driver before the capture is triggered
	if err := rtm.camera.SetParameters(rtm.params); err != nil {
		return errors.Wrap(err, "applying capture parameters")
	}
	if err := rtm.camera.StartPreview(); err != nil {
		return errors.Wrap(err, "starting dummy preview")
	}
	rtm.previewRunning = true
	return nil
}

// onPreviewFrameAvailable runs on the texture's frame-available path. It
// pairs the frame with the in-flight preview request and hands it to the
// compositor for teeing.
func (rtm *requestThreadManager) onPreviewFrameAvailable(texture driver.PreviewTexture) {
	holder := rtm.inFlightPreview.Swap(nil)
	if holder == nil {
		rtm.logger.Debug("dropping preview frame with no request outstanding")
		rtm.compositor.QueueNewFrame(nil)
		return
	}

	rtm.previewCounter.countAndLog()
	if holder.HasPreviewTargets() {
		rtm.compositor.QueueNewFrame(holder.Targets())
	} else {
		rtm.compositor.QueueNewFrame(nil)
	}
	rtm.lastPreviewTimestamp.Store(texture.Timestamp())
	rtm.receivedPreview.Open()
}

// onJpegShutter runs when the driver begins exposing the still capture.
func (rtm *requestThreadManager) onJpegShutter() {
	rtm.lastJpegTimestamp.Store(rtm.clk.Now().UnixNano())
}

// onJpegTaken delivers the compressed image into every jpeg target of the
// in-flight still request, using the blob convention: the surface is sized
// to the byte length by one row.
func (rtm *requestThreadManager) onJpegTaken(data []byte) {
	holder := rtm.inFlightJpeg.Swap(nil)
	if holder == nil {
		rtm.logger.Warn("dropping still capture with no request outstanding")
		return
	}
	if len(data) == 0 {
		rtm.logger.Errorw("driver delivered an empty still capture",
			"frame", holder.FrameNumber())
		rtm.deviceState.setError(CameraErrorDevice, holder)
		return
	}

	blobSize := Size{Width: len(data), Height: 1}
	for _, target := range holder.Targets() {
		if !isJpegSurface(target) {
			continue
		}
		if err := target.SetDimensions(blobSize); err != nil {
			rtm.logger.Errorw("could not size jpeg target", "error", err)
			continue
		}
		if err := target.ProduceFrame(data, blobSize, PixelFormatBlob); err != nil {
			rtm.logger.Errorw("could not produce jpeg frame", "error", err)
		}
	}
	rtm.receivedJpeg.Open()
}

// cleanup runs on the worker goroutine as it exits, releasing everything
// the worker owns, the legacy device included.
func (rtm *requestThreadManager) cleanup() {
	var err error
	if rtm.previewRunning {
		err = multierr.Append(err, rtm.camera.StopPreview())
		rtm.previewRunning = false
	}
	if rtm.compositorStarted {
		err = multierr.Append(err, rtm.compositor.Quit())
	}
	err = multierr.Append(err, rtm.camera.Release())
	rtm.cleanupErr = err
}
