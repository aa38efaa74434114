package legacycam

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.viam.com/test"
	"go.viam.com/utils/testutils"

	"go.viam.com/legacycam/driver"
	"go.viam.com/legacycam/driver/fake"
)

// captureSink records every device callback for assertions.
type captureSink struct {
	mu        sync.Mutex
	started   []CaptureResultExtras
	results   []CaptureResultExtras
	meta      []*ResultMetadata
	idleCount int
	errCodes  []CameraErrorCode

	failOnIdle bool
}

func (s *captureSink) OnCameraError(code CameraErrorCode, extras CaptureResultExtras) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errCodes = append(s.errCodes, code)
	return nil
}

func (s *captureSink) OnCameraIdle() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.idleCount++
	if s.failOnIdle {
		return errors.New("sink went away")
	}
	return nil
}

func (s *captureSink) OnCaptureStarted(extras CaptureResultExtras, timestamp int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = append(s.started, extras)
	return nil
}

func (s *captureSink) OnResultReceived(result *ResultMetadata, extras CaptureResultExtras) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, extras)
	s.meta = append(s.meta, result)
	return nil
}

func (s *captureSink) snapshot() (started, results []CaptureResultExtras, idle int, codes []CameraErrorCode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]CaptureResultExtras(nil), s.started...),
		append([]CaptureResultExtras(nil), s.results...),
		s.idleCount,
		append([]CameraErrorCode(nil), s.errCodes...)
}

func newTestDevice(t *testing.T, sink *captureSink) *LegacyCameraDevice {
	t.Helper()
	logger := golog.NewTestLogger(t)
	camera := fake.New(fake.WithLogger(logger))
	device, err := NewLegacyCameraDevice(0, camera, sink, WithLogger(logger))
	test.That(t, err, test.ShouldBeNil)
	return device
}

// waitForIdleCount blocks until the sink has seen at least n idle events.
// Tests use it to consume the idle notification a configure emits before
// submitting work, so gate state is deterministic.
func waitForIdleCount(t *testing.T, sink *captureSink, n int) {
	t.Helper()
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		_, _, idleCount, _ := sink.snapshot()
		test.That(tb, idleCount, test.ShouldBeGreaterThanOrEqualTo, n)
	})
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestNewDeviceValidation(t *testing.T) {
	logger := golog.NewTestLogger(t)

	_, err := NewLegacyCameraDevice(0, nil, &captureSink{}, WithLogger(logger))
	test.That(t, errors.Is(err, ErrBadValue), test.ShouldBeTrue)

	_, err = NewLegacyCameraDevice(0, fake.New(fake.WithLogger(logger)), nil, WithLogger(logger))
	test.That(t, errors.Is(err, ErrBadValue), test.ShouldBeTrue)
}

func TestSubmitValidation(t *testing.T) {
	sink := &captureSink{}
	device := newTestDevice(t, sink)
	defer func() {
		test.That(t, device.Close(), test.ShouldBeNil)
	}()

	preview := NewMemorySurface(Size{Width: 640, Height: 480}, PixelFormatNV21)
	stranger := NewMemorySurface(Size{Width: 640, Height: 480}, PixelFormatNV21)

	// no outputs configured yet
	_, _, err := device.SubmitRequest(&CaptureRequest{Targets: []Surface{preview}}, false)
	test.That(t, errors.Is(err, ErrInvalidOperation), test.ShouldBeTrue)

	err = device.ConfigureOutputs([]Surface{preview, nil})
	test.That(t, errors.Is(err, ErrBadValue), test.ShouldBeTrue)

	test.That(t, device.ConfigureOutputs([]Surface{preview}), test.ShouldBeNil)

	_, _, err = device.SubmitRequestList(nil, false)
	test.That(t, errors.Is(err, ErrBadValue), test.ShouldBeTrue)
	_, _, err = device.SubmitRequestList([]*CaptureRequest{nil}, false)
	test.That(t, errors.Is(err, ErrBadValue), test.ShouldBeTrue)
	_, _, err = device.SubmitRequest(&CaptureRequest{}, false)
	test.That(t, errors.Is(err, ErrBadValue), test.ShouldBeTrue)
	_, _, err = device.SubmitRequest(&CaptureRequest{Targets: []Surface{nil}}, false)
	test.That(t, errors.Is(err, ErrBadValue), test.ShouldBeTrue)

	// targets must come from the configured set, compared by identity
	_, _, err = device.SubmitRequest(&CaptureRequest{Targets: []Surface{stranger}}, false)
	test.That(t, errors.Is(err, ErrBadValue), test.ShouldBeTrue)
}

func TestRepeatingPreviewLifecycle(t *testing.T) {
	sink := &captureSink{}
	device := newTestDevice(t, sink)
	defer func() {
		test.That(t, device.Close(), test.ShouldBeNil)
	}()
	ctx := testCtx(t)

	preview := NewMemorySurface(Size{Width: 640, Height: 480}, PixelFormatNV21)
	test.That(t, device.ConfigureOutputs([]Surface{preview}), test.ShouldBeNil)
	waitForIdleCount(t, sink, 1)

	requestID, lastFrame, err := device.SubmitRequest(
		&CaptureRequest{Targets: []Surface{preview}}, true)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, lastFrame, test.ShouldEqual, InvalidFrame)

	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		started, results, _, _ := sink.snapshot()
		test.That(tb, len(started), test.ShouldBeGreaterThanOrEqualTo, 3)
		test.That(tb, len(results), test.ShouldBeGreaterThanOrEqualTo, 3)
	})

	started, results, idleCount, _ := sink.snapshot()
	// no idle while the repeating burst is active
	test.That(t, idleCount, test.ShouldEqual, 1)
	for i, extras := range started {
		test.That(t, extras.RequestID, test.ShouldEqual, requestID)
		test.That(t, extras.FrameNumber, test.ShouldEqual, int64(i))
	}
	for i, extras := range results {
		test.That(t, extras.FrameNumber, test.ShouldEqual, int64(i))
	}

	last := device.CancelRequest(requestID)
	test.That(t, last, test.ShouldBeGreaterThanOrEqualTo, 0)
	test.That(t, device.WaitUntilIdle(ctx), test.ShouldBeNil)

	_, _, idleAfterCancel, _ := sink.snapshot()
	test.That(t, idleAfterCancel, test.ShouldEqual, 2)
	test.That(t, preview.FrameCount(), test.ShouldBeGreaterThan, 0)

	// cancelling again is a harmless no-op
	test.That(t, device.CancelRequest(requestID), test.ShouldEqual, InvalidFrame)
}

func TestStillCaptureWithoutPreview(t *testing.T) {
	sink := &captureSink{}
	device := newTestDevice(t, sink)
	defer func() {
		test.That(t, device.Close(), test.ShouldBeNil)
	}()
	ctx := testCtx(t)

	still := NewMemorySurface(Size{Width: 2048, Height: 1536}, PixelFormatBlob)
	test.That(t, device.ConfigureOutputs([]Surface{still}), test.ShouldBeNil)
	waitForIdleCount(t, sink, 1)

	// each capture transparently runs a dummy preview around the picture
	for i := 0; i < 3; i++ {
		_, lastFrame, err := device.SubmitRequest(
			&CaptureRequest{Targets: []Surface{still}}, false)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, lastFrame, test.ShouldEqual, int64(i))
		test.That(t, device.WaitUntilIdle(ctx), test.ShouldBeNil)
	}

	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		started, results, idleCount, _ := sink.snapshot()
		test.That(tb, started, test.ShouldHaveLength, 3)
		test.That(tb, results, test.ShouldHaveLength, 3)
		test.That(tb, idleCount, test.ShouldBeGreaterThanOrEqualTo, 4)
	})

	started, _, _, _ := sink.snapshot()
	for i, extras := range started {
		test.That(t, extras.FrameNumber, test.ShouldEqual, int64(i))
	}

	test.That(t, still.FrameCount(), test.ShouldEqual, 3)
	data := still.LastFrame()
	test.That(t, len(data), test.ShouldBeGreaterThan, 4)
	test.That(t, data[:2], test.ShouldResemble, []byte{0xff, 0xd8})
	test.That(t, data[len(data)-2:], test.ShouldResemble, []byte{0xff, 0xd9})

	// jpeg targets are resized to the blob convention
	dims, err := still.Dimensions()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dims, test.ShouldResemble, Size{Width: len(data), Height: 1})
}

func TestMixedPreviewAndStillRequest(t *testing.T) {
	sink := &captureSink{}
	device := newTestDevice(t, sink)
	defer func() {
		test.That(t, device.Close(), test.ShouldBeNil)
	}()
	ctx := testCtx(t)

	preview := NewMemorySurface(Size{Width: 640, Height: 480}, PixelFormatNV21)
	still := NewMemorySurface(Size{Width: 1440, Height: 1080}, PixelFormatBlob)
	test.That(t, device.ConfigureOutputs([]Surface{preview, still}), test.ShouldBeNil)
	waitForIdleCount(t, sink, 1)

	_, lastFrame, err := device.SubmitRequest(
		&CaptureRequest{Targets: []Surface{preview, still}}, false)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, lastFrame, test.ShouldEqual, 0)
	test.That(t, device.WaitUntilIdle(ctx), test.ShouldBeNil)

	test.That(t, still.FrameCount(), test.ShouldEqual, 1)
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, preview.FrameCount(), test.ShouldBeGreaterThanOrEqualTo, 1)
	})

	_, results, _, _ := sink.snapshot()
	test.That(t, results, test.ShouldHaveLength, 1)
	test.That(t, results[0].FrameNumber, test.ShouldEqual, 0)
	test.That(t, sink.meta[0].Timestamp, test.ShouldBeGreaterThan, 0)
}

func TestConfigureRejectedWhileCapturing(t *testing.T) {
	sink := &captureSink{}
	device := newTestDevice(t, sink)
	defer func() {
		test.That(t, device.Close(), test.ShouldBeNil)
	}()
	ctx := testCtx(t)

	preview := NewMemorySurface(Size{Width: 640, Height: 480}, PixelFormatNV21)
	test.That(t, device.ConfigureOutputs([]Surface{preview}), test.ShouldBeNil)
	waitForIdleCount(t, sink, 1)

	requestID, _, err := device.SubmitRequest(
		&CaptureRequest{Targets: []Surface{preview}}, true)
	test.That(t, err, test.ShouldBeNil)

	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		started, _, _, _ := sink.snapshot()
		test.That(tb, len(started), test.ShouldBeGreaterThanOrEqualTo, 1)
	})

	err = device.ConfigureOutputs([]Surface{preview})
	test.That(t, errors.Is(err, ErrInvalidOperation), test.ShouldBeTrue)

	device.CancelRequest(requestID)
	test.That(t, device.WaitUntilIdle(ctx), test.ShouldBeNil)
	test.That(t, device.ConfigureOutputs([]Surface{preview}), test.ShouldBeNil)
}

// brokenCamera fails every preview start.
type brokenCamera struct{}

func (c *brokenCamera) Parameters() (*driver.Parameters, error) {
	params := driver.NewParameters()
	params.SetSupportedPreviewSizes([]driver.Size{{Width: 640, Height: 480}})
	params.SetSupportedPreviewFpsRanges([]driver.FpsRange{{Min: 15000, Max: 30000}})
	return params, nil
}

func (c *brokenCamera) SetParameters(params *driver.Parameters) error { return nil }

func (c *brokenCamera) SetPreviewTexture(texture driver.PreviewTexture) error { return nil }

func (c *brokenCamera) StartPreview() error { return errors.New("hardware fault") }

func (c *brokenCamera) StopPreview() error { return nil }

func (c *brokenCamera) TakePicture(shutter func(), jpeg func(data []byte)) error {
	return errors.New("hardware fault")
}

func (c *brokenCamera) Release() error { return nil }

func TestDriverFailureFailsDevice(t *testing.T) {
	logger := golog.NewTestLogger(t)
	sink := &captureSink{}
	device, err := NewLegacyCameraDevice(0, &brokenCamera{}, sink, WithLogger(logger))
	test.That(t, err, test.ShouldBeNil)
	defer func() {
		test.That(t, device.Close(), test.ShouldBeNil)
	}()

	preview := NewMemorySurface(Size{Width: 640, Height: 480}, PixelFormatNV21)
	test.That(t, device.ConfigureOutputs([]Surface{preview}), test.ShouldBeNil)

	_, _, err = device.SubmitRequest(&CaptureRequest{Targets: []Surface{preview}}, false)
	test.That(t, err, test.ShouldBeNil)

	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		_, _, _, codes := sink.snapshot()
		test.That(tb, codes, test.ShouldContain, CameraErrorDevice)
	})

	// the error state is terminal
	err = device.ConfigureOutputs([]Surface{preview})
	test.That(t, errors.Is(err, ErrInvalidOperation), test.ShouldBeTrue)
}

func TestCallbackFailureFailsDevice(t *testing.T) {
	sink := &captureSink{failOnIdle: true}
	device := newTestDevice(t, sink)
	defer func() {
		test.That(t, device.Close(), test.ShouldBeNil)
	}()

	preview := NewMemorySurface(Size{Width: 640, Height: 480}, PixelFormatNV21)
	test.That(t, device.ConfigureOutputs([]Surface{preview}), test.ShouldBeNil)

	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		_, _, _, codes := sink.snapshot()
		test.That(tb, codes, test.ShouldContain, CameraErrorService)
	})
}

func TestCloseIdempotent(t *testing.T) {
	sink := &captureSink{}
	device := newTestDevice(t, sink)

	test.That(t, device.Close(), test.ShouldBeNil)
	test.That(t, device.Close(), test.ShouldBeNil)

	preview := NewMemorySurface(Size{Width: 640, Height: 480}, PixelFormatNV21)
	err := device.ConfigureOutputs([]Surface{preview})
	test.That(t, errors.Is(err, ErrInvalidOperation), test.ShouldBeTrue)
	_, _, err = device.SubmitRequest(&CaptureRequest{Targets: []Surface{preview}}, false)
	test.That(t, errors.Is(err, ErrInvalidOperation), test.ShouldBeTrue)
}
