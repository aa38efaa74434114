package legacycam

import (
	"sync"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
)

// A BurstHolder is an immutable description of one submitted burst: the
// ordered per-frame requests, the repeating flag, and the request id.
type BurstHolder struct {
	requestID int32
	repeating bool
	requests  []*CaptureRequest
}

// RequestID returns the id assigned to the burst at submission.
func (b *BurstHolder) RequestID() int32 { return b.requestID }

// Repeating reports whether the burst re-executes until cancelled.
func (b *BurstHolder) Repeating() bool { return b.repeating }

// NumRequests returns how many frames one execution of the burst emits.
func (b *BurstHolder) NumRequests() int { return len(b.requests) }

// produceRequestHolders materializes one execution of the burst, assigning
// consecutive frame numbers starting at startFrame.
func (b *BurstHolder) produceRequestHolders(startFrame int64) []*RequestHolder {
	holders := make([]*RequestHolder, len(b.requests))
	for i, req := range b.requests {
		holders[i] = newRequestHolder(b, req, startFrame+int64(i), int32(i))
	}
	return holders
}

// A RequestHolder is a single materialized frame of a burst: the request to
// execute, its assigned frame number, and its position within the burst.
type RequestHolder struct {
	requestID     int32
	subsequenceID int32
	frameNumber   int64
	repeating     bool
	request       *CaptureRequest

	numPreviewTargets int
	numJpegTargets    int
}

func newRequestHolder(burst *BurstHolder, request *CaptureRequest, frameNumber int64, subsequenceID int32) *RequestHolder {
	h := &RequestHolder{
		requestID:     burst.requestID,
		subsequenceID: subsequenceID,
		frameNumber:   frameNumber,
		repeating:     burst.repeating,
		request:       request,
	}
	for _, s := range request.Targets {
		if isJpegSurface(s) {
			h.numJpegTargets++
		} else {
			h.numPreviewTargets++
		}
	}
	return h
}

// RequestID returns the id of the owning burst.
func (h *RequestHolder) RequestID() int32 { return h.requestID }

// SubsequenceID returns the frame's position within its burst.
func (h *RequestHolder) SubsequenceID() int32 { return h.subsequenceID }

// FrameNumber returns the frame number assigned at dequeue time.
func (h *RequestHolder) FrameNumber() int64 { return h.frameNumber }

// Repeating reports whether the frame belongs to a repeating burst.
func (h *RequestHolder) Repeating() bool { return h.repeating }

// Request returns the capture request this frame executes.
func (h *RequestHolder) Request() *CaptureRequest { return h.request }

// Targets returns the surfaces the frame writes into.
func (h *RequestHolder) Targets() []Surface { return h.request.Targets }

// HasPreviewTargets reports whether any target is preview-capable.
func (h *RequestHolder) HasPreviewTargets() bool { return h.numPreviewTargets > 0 }

// HasJpegTargets reports whether any target is jpeg-capable.
func (h *RequestHolder) HasJpegTargets() bool { return h.numJpegTargets > 0 }

// A RequestQueue is the ordered store of pending capture bursts. One-shot
// bursts drain FIFO ahead of the single repeating slot, which replays
// indefinitely once the one-shot queue is empty. Frame numbers are assigned
// monotonically, with no gaps, across the combined stream.
//
// Submit, GetNext and StopRepeating are each one critical section; the queue
// is safe for the worker goroutine and client goroutines to share.
type RequestQueue struct {
	mu sync.Mutex

	repeating *BurstHolder
	queue     []*BurstHolder

	currentFrameNumber          int64
	currentRepeatingFrameNumber int64
	currentRequestID            int32

	logger golog.Logger
}

// NewRequestQueue returns an empty request queue.
func NewRequestQueue(logger golog.Logger) *RequestQueue {
	return &RequestQueue{
		currentRepeatingFrameNumber: InvalidFrame,
		logger:                      logger,
	}
}

// Submit adds a burst of requests to the queue. If repeating, the burst
// atomically replaces the current repeating burst and lastFrameNumber
// reports the last frame number the old repeating burst will still emit (or
// InvalidFrame if it never materialized a frame). For a one-shot burst,
// lastFrameNumber reports the frame number its own last frame will receive
// given everything queued ahead of it.
//
// An empty burst is rejected with ErrBadValue and mutates nothing.
func (q *RequestQueue) Submit(requests []*CaptureRequest, repeating bool) (requestID int32, lastFrameNumber int64, err error) {
	if len(requests) == 0 {
		return 0, InvalidFrame, errors.Wrap(ErrBadValue, "submit with empty burst")
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	requestID = q.currentRequestID
	q.currentRequestID++
	burst := &BurstHolder{requestID: requestID, repeating: repeating, requests: requests}

	lastFrameNumber = InvalidFrame
	if repeating {
		if q.repeating != nil {
			lastFrameNumber = q.currentRepeatingFrameNumber
		}
		q.repeating = burst
		q.currentRepeatingFrameNumber = InvalidFrame
	} else {
		q.queue = append(q.queue, burst)
		lastFrameNumber = q.calculateLastFrameLocked(requestID)
	}

	q.logger.Debugw("submitted burst",
		"request_id", requestID, "repeating", repeating, "requests", len(requests))
	return requestID, lastFrameNumber, nil
}

// GetNext returns the next burst to execute and the frame number its first
// frame must use. One-shot bursts take priority; with none pending, the
// repeating burst (if any) is returned every time. The third return is
// false only when there is neither, which is the worker's sole signal that
// the device may go idle.
func (q *RequestQueue) GetNext() (*BurstHolder, int64, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var next *BurstHolder
	if len(q.queue) > 0 {
		next = q.queue[0]
		q.queue = q.queue[1:]
	} else if q.repeating != nil {
		next = q.repeating
		q.currentRepeatingFrameNumber = q.currentFrameNumber + int64(next.NumRequests()) - 1
	}
	if next == nil {
		return nil, 0, false
	}

	startFrame := q.currentFrameNumber
	q.currentFrameNumber += int64(next.NumRequests())
	return next, startFrame, true
}

// StopRepeating clears the repeating slot if its id matches and returns the
// frame number of the last frame it will still emit; already materialized
// frames are not retracted. A non-matching or absent id returns
// InvalidFrame and leaves the queue untouched.
func (q *RequestQueue) StopRepeating(requestID int32) int64 {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.repeating == nil || q.repeating.RequestID() != requestID {
		q.logger.Debugw("stop repeating ignored, no matching burst", "request_id", requestID)
		return InvalidFrame
	}
	q.repeating = nil
	last := q.currentRepeatingFrameNumber
	q.currentRepeatingFrameNumber = InvalidFrame
	q.logger.Debugw("stopped repeating burst", "request_id", requestID, "last_frame", last)
	return last
}

// calculateLastFrameLocked computes the frame number the last frame of the
// given queued burst will receive, accounting for everything ahead of it.
func (q *RequestQueue) calculateLastFrameLocked(requestID int32) int64 {
	frame := q.currentFrameNumber
	for _, b := range q.queue {
		frame += int64(b.NumRequests())
		if b.RequestID() == requestID {
			return frame - 1
		}
	}
	// Submit appends the burst before calling this
	panic(errors.Errorf("request %d is not in the queue", requestID))
}
