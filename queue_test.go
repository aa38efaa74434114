package legacycam

import (
	"testing"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.viam.com/test"
)

func makeRequests(t *testing.T, count int) []*CaptureRequest {
	t.Helper()
	surface := NewMemorySurface(Size{Width: 640, Height: 480}, PixelFormatNV21)
	requests := make([]*CaptureRequest, count)
	for i := range requests {
		requests[i] = &CaptureRequest{Targets: []Surface{surface}}
	}
	return requests
}

func TestRequestQueueRejectsEmptyBurst(t *testing.T) {
	q := NewRequestQueue(golog.NewTestLogger(t))

	_, lastFrame, err := q.Submit(nil, false)
	test.That(t, errors.Is(err, ErrBadValue), test.ShouldBeTrue)
	test.That(t, lastFrame, test.ShouldEqual, InvalidFrame)

	_, _, ok := q.GetNext()
	test.That(t, ok, test.ShouldBeFalse)
}

func TestRequestQueueOneShotFrameNumbers(t *testing.T) {
	q := NewRequestQueue(golog.NewTestLogger(t))

	firstID, firstLast, err := q.Submit(makeRequests(t, 2), false)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, firstID, test.ShouldEqual, 0)
	test.That(t, firstLast, test.ShouldEqual, 1)

	secondID, secondLast, err := q.Submit(makeRequests(t, 3), false)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, secondID, test.ShouldEqual, 1)
	test.That(t, secondLast, test.ShouldEqual, 4)

	burst, startFrame, ok := q.GetNext()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, burst.RequestID(), test.ShouldEqual, firstID)
	test.That(t, startFrame, test.ShouldEqual, 0)

	holders := burst.produceRequestHolders(startFrame)
	test.That(t, holders, test.ShouldHaveLength, 2)
	test.That(t, holders[0].FrameNumber(), test.ShouldEqual, 0)
	test.That(t, holders[0].SubsequenceID(), test.ShouldEqual, 0)
	test.That(t, holders[1].FrameNumber(), test.ShouldEqual, 1)
	test.That(t, holders[1].SubsequenceID(), test.ShouldEqual, 1)

	burst, startFrame, ok = q.GetNext()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, burst.RequestID(), test.ShouldEqual, secondID)
	test.That(t, startFrame, test.ShouldEqual, 2)

	_, _, ok = q.GetNext()
	test.That(t, ok, test.ShouldBeFalse)
}

func TestRequestQueueRepeatingReplays(t *testing.T) {
	q := NewRequestQueue(golog.NewTestLogger(t))

	repeatingID, lastFrame, err := q.Submit(makeRequests(t, 2), true)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, lastFrame, test.ShouldEqual, InvalidFrame)

	for i := 0; i < 3; i++ {
		burst, startFrame, ok := q.GetNext()
		test.That(t, ok, test.ShouldBeTrue)
		test.That(t, burst.RequestID(), test.ShouldEqual, repeatingID)
		test.That(t, burst.Repeating(), test.ShouldBeTrue)
		test.That(t, startFrame, test.ShouldEqual, int64(i*2))
	}

	last := q.StopRepeating(repeatingID)
	test.That(t, last, test.ShouldEqual, 5)

	_, _, ok := q.GetNext()
	test.That(t, ok, test.ShouldBeFalse)
}

func TestRequestQueueOneShotPriority(t *testing.T) {
	q := NewRequestQueue(golog.NewTestLogger(t))

	repeatingID, _, err := q.Submit(makeRequests(t, 1), true)
	test.That(t, err, test.ShouldBeNil)

	burst, _, ok := q.GetNext()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, burst.RequestID(), test.ShouldEqual, repeatingID)

	oneShotID, _, err := q.Submit(makeRequests(t, 1), false)
	test.That(t, err, test.ShouldBeNil)

	burst, startFrame, ok := q.GetNext()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, burst.RequestID(), test.ShouldEqual, oneShotID)
	test.That(t, startFrame, test.ShouldEqual, 1)

	burst, startFrame, ok = q.GetNext()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, burst.RequestID(), test.ShouldEqual, repeatingID)
	test.That(t, startFrame, test.ShouldEqual, 2)
}

func TestRequestQueueRepeatingReplacement(t *testing.T) {
	q := NewRequestQueue(golog.NewTestLogger(t))

	firstID, _, err := q.Submit(makeRequests(t, 2), true)
	test.That(t, err, test.ShouldBeNil)

	// replacing before the first burst materializes reports no frames
	secondID, lastFrame, err := q.Submit(makeRequests(t, 1), true)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, lastFrame, test.ShouldEqual, InvalidFrame)
	test.That(t, secondID, test.ShouldNotEqual, firstID)

	burst, _, ok := q.GetNext()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, burst.RequestID(), test.ShouldEqual, secondID)

	thirdID, lastFrame, err := q.Submit(makeRequests(t, 1), true)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, lastFrame, test.ShouldEqual, 0)

	// the replaced burst can no longer be cancelled, and the replacement
	// has not materialized a frame yet
	test.That(t, q.StopRepeating(secondID), test.ShouldEqual, InvalidFrame)
	test.That(t, q.StopRepeating(thirdID), test.ShouldEqual, InvalidFrame)
}

func TestRequestQueueStopRepeatingNoMatch(t *testing.T) {
	q := NewRequestQueue(golog.NewTestLogger(t))
	test.That(t, q.StopRepeating(42), test.ShouldEqual, InvalidFrame)
}

func TestRequestHolderTargetPartition(t *testing.T) {
	preview := NewMemorySurface(Size{Width: 640, Height: 480}, PixelFormatNV21)
	jpeg := NewMemorySurface(Size{Width: 2048, Height: 1536}, PixelFormatBlob)

	q := NewRequestQueue(golog.NewTestLogger(t))
	_, _, err := q.Submit([]*CaptureRequest{
		{Targets: []Surface{preview, jpeg}},
		{Targets: []Surface{jpeg}},
	}, false)
	test.That(t, err, test.ShouldBeNil)

	burst, startFrame, ok := q.GetNext()
	test.That(t, ok, test.ShouldBeTrue)
	holders := burst.produceRequestHolders(startFrame)

	test.That(t, holders[0].HasPreviewTargets(), test.ShouldBeTrue)
	test.That(t, holders[0].HasJpegTargets(), test.ShouldBeTrue)
	test.That(t, holders[1].HasPreviewTargets(), test.ShouldBeFalse)
	test.That(t, holders[1].HasJpegTargets(), test.ShouldBeTrue)
}
