// Command legacycamdemo drives the emulated capture device end to end
// against the fake driver: configure outputs, run a repeating preview
// burst, cancel it, then grab a still capture.
package main

import (
	"context"
	"time"

	"github.com/edaniels/golog"
	goutils "go.viam.com/utils"

	"go.viam.com/legacycam"
	"go.viam.com/legacycam/driver/fake"
)

var logger = golog.NewDevelopmentLogger("legacycamdemo")

func main() {
	goutils.ContextualMain(mainWithArgs, logger)
}

func mainWithArgs(ctx context.Context, args []string, logger golog.Logger) error {
	camera := fake.New(fake.WithLogger(logger))
	device, err := legacycam.NewLegacyCameraDevice(
		0, camera, &loggingCallbacks{logger: logger}, legacycam.WithLogger(logger))
	if err != nil {
		return err
	}
	defer func() {
		goutils.UncheckedError(device.Close())
	}()

	preview := legacycam.NewMemorySurface(
		legacycam.Size{Width: 640, Height: 480}, legacycam.PixelFormatNV21)
	still := legacycam.NewMemorySurface(
		legacycam.Size{Width: 2048, Height: 1536}, legacycam.PixelFormatBlob)
	if err := device.ConfigureOutputs([]legacycam.Surface{preview, still}); err != nil {
		return err
	}

	requestID, _, err := device.SubmitRequest(
		&legacycam.CaptureRequest{Targets: []legacycam.Surface{preview}}, true)
	if err != nil {
		return err
	}
	logger.Infow("repeating preview running", "request_id", requestID)
	if !goutils.SelectContextOrWait(ctx, time.Second) {
		return ctx.Err()
	}

	lastFrame := device.CancelRequest(requestID)
	logger.Infow("repeating preview cancelled", "last_frame", lastFrame)
	if err := device.WaitUntilIdle(ctx); err != nil {
		return err
	}
	logger.Infow("preview finished", "frames_delivered", preview.FrameCount())

	if _, _, err := device.SubmitRequest(
		&legacycam.CaptureRequest{Targets: []legacycam.Surface{still}}, false); err != nil {
		return err
	}
	if err := device.WaitUntilIdle(ctx); err != nil {
		return err
	}
	logger.Infow("still capture finished", "jpeg_bytes", len(still.LastFrame()))
	return nil
}

// loggingCallbacks prints every device event.
type loggingCallbacks struct {
	logger golog.Logger
}

func (c *loggingCallbacks) OnCameraError(
	code legacycam.CameraErrorCode,
	extras legacycam.CaptureResultExtras,
) error {
	c.logger.Errorw("camera error", "code", code.String(), "frame", extras.FrameNumber)
	return nil
}

func (c *loggingCallbacks) OnCameraIdle() error {
	c.logger.Info("camera idle")
	return nil
}

func (c *loggingCallbacks) OnCaptureStarted(
	extras legacycam.CaptureResultExtras,
	timestamp int64,
) error {
	c.logger.Debugw("capture started",
		"request_id", extras.RequestID, "frame", extras.FrameNumber, "timestamp", timestamp)
	return nil
}

func (c *loggingCallbacks) OnResultReceived(
	result *legacycam.ResultMetadata,
	extras legacycam.CaptureResultExtras,
) error {
	c.logger.Debugw("result received",
		"request_id", extras.RequestID, "frame", extras.FrameNumber,
		"timestamp", result.Timestamp)
	return nil
}
