package legacycam

import (
	"context"
	"sync"
	"sync/atomic"

	"go.viam.com/legacycam/driver"
)

// A Compositor tees the single intermediate preview buffer out to every
// configured preview surface. The request worker configures it, receives
// the intermediate texture from it, and forwards each frame-available
// signal back into it with the frame's target surfaces.
//
// Implementations own their rendering resources and threading; all methods
// are called from the request worker goroutine except QueueNewFrame, which
// arrives on the texture's frame-available path.
type Compositor interface {
	// Start brings up the compositor's resources. Idempotent.
	Start()

	// WaitUntilStarted blocks until Start has taken effect.
	WaitUntilStarted(ctx context.Context) error

	// SetConfigurationAndWait replaces the set of preview output surfaces,
	// blocking until the new configuration is live. An empty set tears the
	// current configuration down.
	SetConfigurationAndWait(previewOutputs []Surface) error

	// CurrentSurfaceTexture returns the intermediate texture preview
	// frames are rendered into, or nil when no preview outputs are
	// configured.
	CurrentSurfaceTexture() driver.PreviewTexture

	// QueueNewFrame requests that the current intermediate buffer be drawn
	// into the given targets. A nil target set drops the frame.
	QueueNewFrame(targets []Surface)

	// WaitUntilIdle blocks until all queued frames have been drawn.
	WaitUntilIdle(ctx context.Context) error

	// IgnoreNewFrames makes subsequent QueueNewFrame calls no-ops.
	IgnoreNewFrames()

	// AllowNewFrames re-enables frame queueing after IgnoreNewFrames.
	AllowNewFrames()

	// Quit tears the compositor down. No methods may be called after.
	Quit() error
}

// MemoryTexture is an in-memory preview texture. It retains the most recent
// frame pushed into it and fires the registered frame-available callback
// for each push. It implements driver.PreviewFrameTarget, so software
// drivers can render into it directly.
type MemoryTexture struct {
	mu            sync.Mutex
	defaultWidth  int
	defaultHeight int
	frame         []byte
	frameSize     Size
	timestamp     int64

	onFrame atomic.Pointer[func()]
}

// NewMemoryTexture returns a texture with the given default buffer size.
func NewMemoryTexture(width, height int) *MemoryTexture {
	return &MemoryTexture{defaultWidth: width, defaultHeight: height}
}

// SetDefaultBufferSize hints the producer-side buffer dimensions.
func (t *MemoryTexture) SetDefaultBufferSize(width, height int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.defaultWidth = width
	t.defaultHeight = height
}

// DefaultBufferSize returns the current buffer size hint.
func (t *MemoryTexture) DefaultBufferSize() Size {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Size{Width: t.defaultWidth, Height: t.defaultHeight}
}

// OnFrameAvailable registers the frame-available signal.
func (t *MemoryTexture) OnFrameAvailable(fn func()) {
	if fn == nil {
		t.onFrame.Store(nil)
		return
	}
	t.onFrame.Store(&fn)
}

// Timestamp returns the timestamp of the most recent frame in nanoseconds.
func (t *MemoryTexture) Timestamp() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.timestamp
}

// PushFrame stores a copy of the frame and fires the frame-available
// signal.
func (t *MemoryTexture) PushFrame(pixels []byte, size Size, timestamp int64) {
	t.mu.Lock()
	t.frame = append(t.frame[:0], pixels...)
	t.frameSize = size
	t.timestamp = timestamp
	t.mu.Unlock()

	if fn := t.onFrame.Load(); fn != nil {
		(*fn)()
	}
}

// LatestFrame returns a copy of the most recent frame and its size; the
// frame is nil if nothing has been pushed yet.
func (t *MemoryTexture) LatestFrame() ([]byte, Size) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.frame == nil {
		return nil, Size{}
	}
	return append([]byte(nil), t.frame...), t.frameSize
}
