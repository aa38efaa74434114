// Package driver defines the contract for a legacy camera driver: a
// synchronous device that supports at most one in-flight operation and
// exposes its state as string-valued parameters.
package driver

import "fmt"

// A PreviewTexture is the buffer a legacy camera renders preview frames
// into. Implementations signal each rendered frame through the callback
// registered with OnFrameAvailable.
type PreviewTexture interface {
	// SetDefaultBufferSize hints the producer-side buffer dimensions.
	SetDefaultBufferSize(width, height int)

	// OnFrameAvailable registers the frame-available signal. Passing nil
	// clears it. The callback may be invoked from any goroutine.
	OnFrameAvailable(fn func())

	// Timestamp returns the timestamp of the most recent frame in
	// nanoseconds.
	Timestamp() int64
}

// A PreviewFrameTarget is a PreviewTexture whose producer side is software:
// drivers without a hardware rendering path push preview frames into it
// directly.
type PreviewFrameTarget interface {
	PreviewTexture

	// PushFrame hands one rendered preview frame to the texture. The
	// texture takes no ownership of the pixel slice.
	PushFrame(pixels []byte, size Size, timestamp int64)
}

// A Camera is an open legacy camera device. None of its methods are safe
// for concurrent use; callers must serialize all access on a single
// goroutine. Ownership of the device is passed to whoever holds the
// interface, and Release must be called exactly once when done.
type Camera interface {
	// Parameters returns a snapshot of the device's current parameters.
	Parameters() (*Parameters, error)

	// SetParameters applies the given parameters to the device.
	SetParameters(params *Parameters) error

	// SetPreviewTexture binds the texture preview frames are rendered into.
	SetPreviewTexture(texture PreviewTexture) error

	// StartPreview begins the preview stream.
	StartPreview() error

	// StopPreview halts the preview stream.
	StopPreview() error

	// TakePicture triggers a single still capture. The shutter callback
	// fires when exposure begins and the jpeg callback delivers the
	// compressed image; both may be invoked from any goroutine, at most
	// once each. Preview is stopped by the device as a side effect.
	TakePicture(shutter func(), jpeg func(data []byte)) error

	// Release closes the device and frees its resources.
	Release() error
}

// Size is a width/height pair in pixels.
type Size struct {
	Width  int
	Height int
}

// Area returns the pixel area of the size.
func (s Size) Area() int64 {
	return int64(s.Width) * int64(s.Height)
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// FpsRange is a supported preview frame rate range. Units are frames per
// second scaled by 1000, matching the legacy parameter encoding.
type FpsRange struct {
	Min int
	Max int
}

// Area is a legacy metering region. Coordinates span [-1000, 1000] in both
// dimensions over the field of view, with (-1000, -1000) at the top left.
type Area struct {
	Left   int
	Top    int
	Right  int
	Bottom int
	Weight int
}
