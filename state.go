package legacycam

import (
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
)

// deviceState is one of the emulated device's lifecycle states.
type deviceState int

const (
	stateError deviceState = iota
	stateIdle
	stateConfiguring
	stateCapturing
)

func (s deviceState) String() string {
	switch s {
	case stateError:
		return "error"
	case stateIdle:
		return "idle"
	case stateConfiguring:
		return "configuring"
	case stateCapturing:
		return "capturing"
	default:
		return "unknown"
	}
}

// stateListener receives state machine events. Every method is invoked on
// the callback executor goroutine, never with the state lock held.
type stateListener interface {
	onError(code CameraErrorCode, holder *RequestHolder)
	onConfiguring()
	onIdle()
	onCaptureStarted(holder *RequestHolder, timestamp int64)
	onCaptureResult(result *ResultMetadata, holder *RequestHolder)
}

// cameraDeviceState is the finite-state machine gating legal call sequences
// and the single point client-visible callbacks are emitted through. Each
// transition method returns ErrInvalidOperation, without mutating state,
// when the transition is illegal from the current state. The error state is
// terminal: once entered, every further transition is rejected.
//
// Listener dispatch is posted to the callback executor while the state lock
// is held, which pins the callback order to the transition order without
// ever running client code under the lock.
type cameraDeviceState struct {
	mu       sync.Mutex
	current  deviceState
	executor *callbackExecutor
	listener stateListener
	clk      clock.Clock
	logger   golog.Logger
}

func newCameraDeviceState(logger golog.Logger, clk clock.Clock) *cameraDeviceState {
	return &cameraDeviceState{
		current: stateIdle,
		clk:     clk,
		logger:  logger,
	}
}

// setListener wires the callback executor and event listener. Must be
// called before any transition.
func (s *cameraDeviceState) setListener(executor *callbackExecutor, listener stateListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executor = executor
	s.listener = listener
}

// setError moves the device into its terminal error state. Always legal,
// always wins. The holder carries request context when the error is
// request-scoped; nil reports a device-level failure.
func (s *cameraDeviceState) setError(code CameraErrorCode, holder *RequestHolder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger.Errorw("device entering error state",
		"code", code.String(), "previous_state", s.current.String())
	s.current = stateError
	s.executor.Post(func() {
		s.listener.onError(code, holder)
	})
}

// setConfiguring begins output configuration. Only legal from idle.
func (s *cameraDeviceState) setConfiguring() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != stateIdle {
		return errors.Wrapf(ErrInvalidOperation,
			"cannot configure while in state %q", s.current)
	}
	s.current = stateConfiguring
	s.executor.Post(s.listener.onConfiguring)
	return nil
}

// setIdle reports that configuration completed or the request queue
// drained. Legal from configuring and capturing; a no-op from idle so the
// worker may report an already-idle device without emitting a duplicate
// onIdle.
func (s *cameraDeviceState) setIdle() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.current {
	case stateIdle:
		return nil
	case stateConfiguring, stateCapturing:
	default:
		return errors.Wrapf(ErrInvalidOperation,
			"cannot become idle while in state %q", s.current)
	}
	s.current = stateIdle
	s.executor.Post(s.listener.onIdle)
	return nil
}

// setCaptureStart reports that one frame's capture is being dispatched to
// the legacy driver. Legal from idle and capturing; repeating streams stay
// in capturing between frames. The emitted timestamp is snapshotted here,
// not at actual exposure time.
func (s *cameraDeviceState) setCaptureStart(holder *RequestHolder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.current {
	case stateIdle, stateCapturing:
	default:
		return errors.Wrapf(ErrInvalidOperation,
			"cannot start capture while in state %q", s.current)
	}
	s.current = stateCapturing
	timestamp := s.clk.Now().UnixNano()
	s.executor.Post(func() {
		s.listener.onCaptureStarted(holder, timestamp)
	})
	return nil
}

// setCaptureResult delivers the synthesized result for one frame. Only
// legal while capturing; the state is unchanged, since going idle is the
// queue-drained signal reported separately via setIdle.
func (s *cameraDeviceState) setCaptureResult(holder *RequestHolder, result *ResultMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != stateCapturing {
		return errors.Wrapf(ErrInvalidOperation,
			"cannot accept a capture result while in state %q", s.current)
	}
	s.executor.Post(func() {
		s.listener.onCaptureResult(result, holder)
	})
	return nil
}

// state returns the current state. Test hook.
func (s *cameraDeviceState) state() deviceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}
