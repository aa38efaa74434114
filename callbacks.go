package legacycam

import "github.com/pkg/errors"

// Client-facing error enumeration. Operations either succeed, reject the
// input (ErrBadValue), or reject the call sequence (ErrInvalidOperation).
var (
	// ErrBadValue indicates malformed client input.
	ErrBadValue = errors.New("bad value")

	// ErrInvalidOperation indicates a call that is illegal in the device's
	// current state.
	ErrInvalidOperation = errors.New("invalid operation")
)

// InvalidFrame is the sentinel frame number reported when no frame applies,
// e.g. cancelling a repeating request that does not exist.
const InvalidFrame int64 = -1

// CameraErrorCode classifies a device-fatal error reported through
// CameraDeviceCallbacks.OnCameraError.
type CameraErrorCode int

// Camera error codes.
const (
	// CameraErrorDisconnected means the underlying device went away.
	CameraErrorDisconnected CameraErrorCode = iota

	// CameraErrorDevice means the underlying device failed an operation.
	CameraErrorDevice

	// CameraErrorService means the emulation layer itself failed, e.g. the
	// client callback channel broke.
	CameraErrorService
)

func (c CameraErrorCode) String() string {
	switch c {
	case CameraErrorDisconnected:
		return "disconnected"
	case CameraErrorDevice:
		return "device"
	case CameraErrorService:
		return "service"
	default:
		return "unknown"
	}
}

// CaptureResultExtras is the correlation record attached to every client
// callback. When a callback has no associated request, every field is -1.
type CaptureResultExtras struct {
	RequestID           int32
	SubsequenceID       int32
	AFTriggerID         int32
	PrecaptureTriggerID int32
	FrameNumber         int64
}

const illegalValue = -1

func noRequestExtras() CaptureResultExtras {
	return CaptureResultExtras{
		RequestID:           illegalValue,
		SubsequenceID:       illegalValue,
		AFTriggerID:         illegalValue,
		PrecaptureTriggerID: illegalValue,
		FrameNumber:         illegalValue,
	}
}

func extrasFromRequest(holder *RequestHolder) CaptureResultExtras {
	if holder == nil {
		return noRequestExtras()
	}
	return CaptureResultExtras{
		RequestID:     holder.RequestID(),
		SubsequenceID: holder.SubsequenceID(),
		FrameNumber:   holder.FrameNumber(),
	}
}

// CameraDeviceCallbacks is the sink all client-visible device events are
// delivered to. Every method is invoked from one dedicated goroutine per
// device, so callbacks for a single device are totally ordered. A returned
// error is treated as an unrecoverable failure of the callback channel and
// moves the device into its error state.
type CameraDeviceCallbacks interface {
	// OnCameraError reports a device-fatal error.
	OnCameraError(code CameraErrorCode, extras CaptureResultExtras) error

	// OnCameraIdle reports that the device finished all queued work.
	OnCameraIdle() error

	// OnCaptureStarted reports the start of a single frame's capture. The
	// timestamp is in nanoseconds and is snapshotted when the capture is
	// dispatched, not at actual exposure time.
	OnCaptureStarted(extras CaptureResultExtras, timestamp int64) error

	// OnResultReceived delivers the synthesized result metadata for one
	// frame. Ownership of the result transfers to the receiver.
	OnResultReceived(result *ResultMetadata, extras CaptureResultExtras) error
}
