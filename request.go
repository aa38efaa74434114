package legacycam

import "image"

// A CaptureRequest describes one frame a client wants captured: the target
// surfaces the frame is written into plus the modern-style controls the
// result mapper echoes back. Requests are treated as immutable once
// submitted.
type CaptureRequest struct {
	// Targets is the set of output surfaces for the frame. Every target
	// must be non-nil and part of the currently configured output set.
	Targets []Surface

	// CropRegion requests a scaler crop in active-array coordinates. Nil
	// means the full active array.
	CropRegion *image.Rectangle

	// ControlMode selects between plain auto control and scene-mode
	// control. Nil defaults to auto.
	ControlMode *ControlMode

	// AWBMode is the requested auto-white-balance mode, echoed into the
	// result since the legacy driver cannot report its own. Nil defaults
	// to auto.
	AWBMode *AWBMode

	// AELock is the requested auto-exposure lock, used to flag requests
	// the legacy driver could not honor. Nil means unspecified.
	AELock *bool
}

// Characteristics is the static, modern-style description of the sensor
// behind the legacy driver, used when synthesizing result metadata.
type Characteristics struct {
	// ActiveArraySize is the sensor's active pixel array rectangle.
	ActiveArraySize image.Rectangle

	// FlashAvailable reports whether the device has a flash unit.
	FlashAvailable bool

	// PipelineMaxDepth is the deepest the emulated pipeline can get.
	PipelineMaxDepth uint8
}
