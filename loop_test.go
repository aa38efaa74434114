package legacycam

import (
	"sync"
	"testing"

	"github.com/edaniels/golog"
	"go.viam.com/test"

	"go.viam.com/legacycam/driver"
)

func newSizeTestManager(t *testing.T, previews, pictures, outputs []Size) *requestThreadManager {
	t.Helper()
	params := driver.NewParameters()
	params.SetSupportedPreviewSizes(previews)
	params.SetSupportedPictureSizes(pictures)
	surfaces := make([]Surface, 0, len(outputs))
	for _, size := range outputs {
		surfaces = append(surfaces, NewMemorySurface(size, PixelFormatNV21))
	}
	return &requestThreadManager{
		logger:         golog.NewTestLogger(t),
		params:         params,
		previewOutputs: surfaces,
	}
}

func TestPickIntermediateSize(t *testing.T) {
	for _, tc := range []struct {
		name     string
		previews []Size
		pictures []Size
		outputs  []Size
		want     Size
	}{
		{
			// the aspect constraint comes from the largest supported still
			// size, not from any requested output: 736x414 covers the
			// output's area but is 16:9 against a 4:3 sensor
			name:     "aspect matches largest supported still",
			previews: []Size{{Width: 736, Height: 414}, {Width: 640, Height: 480}},
			pictures: []Size{{Width: 2048, Height: 1536}},
			outputs:  []Size{{Width: 600, Height: 400}},
			want:     Size{Width: 640, Height: 480},
		},
		{
			name: "smallest size covering the largest output",
			previews: []Size{
				{Width: 320, Height: 240},
				{Width: 640, Height: 480},
				{Width: 1280, Height: 960},
				{Width: 1440, Height: 1080},
			},
			pictures: []Size{{Width: 1440, Height: 1080}},
			outputs:  []Size{{Width: 800, Height: 600}},
			want:     Size{Width: 1280, Height: 960},
		},
		{
			name:     "falls back to largest supported when nothing covers",
			previews: []Size{{Width: 320, Height: 240}, {Width: 640, Height: 480}},
			pictures: []Size{{Width: 2048, Height: 1536}},
			outputs:  []Size{{Width: 1920, Height: 1080}},
			want:     Size{Width: 640, Height: 480},
		},
		{
			name:     "no supported stills leaves aspect unconstrained",
			previews: []Size{{Width: 736, Height: 414}, {Width: 640, Height: 480}},
			pictures: nil,
			outputs:  []Size{{Width: 600, Height: 400}},
			want:     Size{Width: 736, Height: 414},
		},
		{
			name:     "no supported previews falls back to the output",
			previews: nil,
			pictures: []Size{{Width: 2048, Height: 1536}},
			outputs:  []Size{{Width: 600, Height: 400}},
			want:     Size{Width: 600, Height: 400},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			rtm := newSizeTestManager(t, tc.previews, tc.pictures, tc.outputs)
			test.That(t, rtm.pickIntermediateSize(), test.ShouldResemble, tc.want)
		})
	}
}

func TestPhotoPreviewFpsRange(t *testing.T) {
	for _, tc := range []struct {
		name   string
		ranges []driver.FpsRange
		want   driver.FpsRange
	}{
		{
			name:   "single range",
			ranges: []driver.FpsRange{{Min: 15000, Max: 30000}},
			want:   driver.FpsRange{Min: 15000, Max: 30000},
		},
		{
			name: "highest max wins",
			ranges: []driver.FpsRange{
				{Min: 15000, Max: 30000},
				{Min: 7000, Max: 60000},
				{Min: 30000, Max: 30000},
			},
			want: driver.FpsRange{Min: 7000, Max: 60000},
		},
		{
			name: "max tie broken by highest min",
			ranges: []driver.FpsRange{
				{Min: 15000, Max: 30000},
				{Min: 24000, Max: 30000},
				{Min: 8000, Max: 30000},
			},
			want: driver.FpsRange{Min: 24000, Max: 30000},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			test.That(t, photoPreviewFpsRange(tc.ranges), test.ShouldResemble, tc.want)
		})
	}
}

// paramsRecordingCamera captures the parameter snapshot in effect when a
// picture is taken.
type paramsRecordingCamera struct {
	mu        sync.Mutex
	latest    *driver.Parameters
	atCapture *driver.Parameters
}

func (c *paramsRecordingCamera) Parameters() (*driver.Parameters, error) {
	params := driver.NewParameters()
	params.SetSupportedPreviewSizes([]Size{{Width: 640, Height: 480}})
	params.SetSupportedPictureSizes([]Size{{Width: 640, Height: 480}, {Width: 2048, Height: 1536}})
	params.SetSupportedPreviewFpsRanges([]driver.FpsRange{{Min: 15000, Max: 30000}})
	return params, nil
}

func (c *paramsRecordingCamera) SetParameters(params *driver.Parameters) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.latest = params.Copy()
	return nil
}

func (c *paramsRecordingCamera) SetPreviewTexture(texture driver.PreviewTexture) error { return nil }

func (c *paramsRecordingCamera) StartPreview() error { return nil }

func (c *paramsRecordingCamera) StopPreview() error { return nil }

func (c *paramsRecordingCamera) TakePicture(shutter func(), jpeg func(data []byte)) error {
	c.mu.Lock()
	if c.latest != nil {
		c.atCapture = c.latest.Copy()
	}
	c.mu.Unlock()
	if shutter != nil {
		shutter()
	}
	if jpeg != nil {
		jpeg([]byte{0xff, 0xd8, 0xff, 0xd9})
	}
	return nil
}

func (c *paramsRecordingCamera) Release() error { return nil }

func (c *paramsRecordingCamera) captureParams() *driver.Parameters {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.atCapture == nil {
		return nil
	}
	return c.atCapture.Copy()
}

func TestDummyPreviewAppliesCaptureParameters(t *testing.T) {
	logger := golog.NewTestLogger(t)
	sink := &captureSink{}
	camera := &paramsRecordingCamera{}
	device, err := NewLegacyCameraDevice(0, camera, sink, WithLogger(logger))
	test.That(t, err, test.ShouldBeNil)
	defer func() {
		test.That(t, device.Close(), test.ShouldBeNil)
	}()
	ctx := testCtx(t)

	still := NewMemorySurface(Size{Width: 2048, Height: 1536}, PixelFormatBlob)
	test.That(t, device.ConfigureOutputs([]Surface{still}), test.ShouldBeNil)
	waitForIdleCount(t, sink, 1)

	_, _, err = device.SubmitRequest(&CaptureRequest{Targets: []Surface{still}}, false)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, device.WaitUntilIdle(ctx), test.ShouldBeNil)

	// the previewless-still path must push the requested picture size to
	// the driver before triggering the capture
	applied := camera.captureParams()
	test.That(t, applied, test.ShouldNotBeNil)
	test.That(t, applied.PictureSize(), test.ShouldResemble, Size{Width: 2048, Height: 1536})
}
