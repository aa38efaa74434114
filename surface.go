package legacycam

import (
	"sync"

	"github.com/pkg/errors"

	"go.viam.com/legacycam/driver"
)

// Size is a width/height pair in pixels.
type Size = driver.Size

// PixelFormat identifies the native pixel format of a surface's buffers.
type PixelFormat int

// Native pixel formats. The values match the legacy HAL's graphics formats;
// Blob is the format jpeg-capable surfaces report.
const (
	PixelFormatUnknown PixelFormat = 0
	PixelFormatRGBA    PixelFormat = 0x1
	PixelFormatNV21    PixelFormat = 0x11
	PixelFormatBlob    PixelFormat = 0x21
	PixelFormatYV12    PixelFormat = 0x32315659
)

func (f PixelFormat) String() string {
	switch f {
	case PixelFormatRGBA:
		return "rgba"
	case PixelFormatNV21:
		return "nv21"
	case PixelFormatBlob:
		return "blob"
	case PixelFormatYV12:
		return "yv12"
	case PixelFormatUnknown:
		return "unknown"
	default:
		return "unrecognized"
	}
}

// A Surface is an output buffer queue a client hands to the device. The
// device only consumes this interface; buffer ownership and the consumer
// side live with the client.
//
// Surface values are compared by identity when validating requests against
// the configured output set, so implementations must be pointer-shaped.
type Surface interface {
	// PixelFormat returns the surface's native pixel format.
	PixelFormat() (PixelFormat, error)

	// Dimensions returns the surface's current buffer dimensions.
	Dimensions() (Size, error)

	// Configure sets both the buffer dimensions and format.
	Configure(size Size, format PixelFormat) error

	// SetFormat overrides the surface's pixel format.
	SetFormat(format PixelFormat) error

	// SetDimensions overrides the surface's buffer dimensions.
	SetDimensions(size Size) error

	// ProduceFrame queues one frame of pixel data into the surface.
	ProduceFrame(pixels []byte, size Size, format PixelFormat) error
}

// MemorySurface is an in-memory Surface that records every produced frame.
// It backs tests and demos; production clients supply surfaces bound to
// real consumers.
type MemorySurface struct {
	mu         sync.Mutex
	size       Size
	format     PixelFormat
	lastFrame  []byte
	frameCount int
}

// NewMemorySurface returns a surface with the given dimensions and format.
func NewMemorySurface(size Size, format PixelFormat) *MemorySurface {
	return &MemorySurface{size: size, format: format}
}

// PixelFormat returns the surface's pixel format.
func (s *MemorySurface) PixelFormat() (PixelFormat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.format, nil
}

// Dimensions returns the surface's current dimensions.
func (s *MemorySurface) Dimensions() (Size, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size, nil
}

// Configure sets the dimensions and format together.
func (s *MemorySurface) Configure(size Size, format PixelFormat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.size = size
	s.format = format
	return nil
}

// SetFormat overrides the pixel format.
func (s *MemorySurface) SetFormat(format PixelFormat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.format = format
	return nil
}

// SetDimensions overrides the dimensions.
func (s *MemorySurface) SetDimensions(size Size) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.size = size
	return nil
}

// ProduceFrame stores a copy of the frame as the most recent one.
func (s *MemorySurface) ProduceFrame(pixels []byte, size Size, format PixelFormat) error {
	if pixels == nil {
		return errors.New("nil pixel buffer")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastFrame = append([]byte(nil), pixels...)
	s.frameCount++
	return nil
}

// FrameCount returns how many frames have been produced into the surface.
func (s *MemorySurface) FrameCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frameCount
}

// LastFrame returns a copy of the most recently produced frame, or nil.
func (s *MemorySurface) LastFrame() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastFrame == nil {
		return nil
	}
	return append([]byte(nil), s.lastFrame...)
}

// isJpegSurface reports whether a surface is jpeg-capable. Detection
// failures classify the surface as preview-capable.
func isJpegSurface(s Surface) bool {
	format, err := s.PixelFormat()
	if err != nil {
		return false
	}
	return format == PixelFormatBlob
}

// findLargestByArea returns the largest size by area, tiebreaking on width.
// The slice must be non-empty.
func findLargestByArea(sizes []Size) Size {
	largest := sizes[0]
	for _, s := range sizes[1:] {
		if s.Area() > largest.Area() || (s.Area() == largest.Area() && s.Width > largest.Width) {
			largest = s
		}
	}
	return largest
}

const aspectRatioTolerance = 0.01

func aspectRatiosMatch(a, b Size) bool {
	aAspect := float64(a.Width) / float64(a.Height)
	bAspect := float64(b.Width) / float64(b.Height)
	diff := aAspect - bAspect
	if diff < 0 {
		diff = -diff
	}
	return diff < aspectRatioTolerance
}
