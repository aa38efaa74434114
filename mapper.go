package legacycam

import (
	"image"

	"github.com/edaniels/golog"

	"go.viam.com/legacycam/driver"
)

// legacyRequest bundles everything the result mapper needs to synthesize
// one frame's result metadata: the static characteristics, the originating
// modern request, the active preview size, and the legacy parameter
// snapshot the frame was captured under.
type legacyRequest struct {
	characteristics *Characteristics
	request         *CaptureRequest
	previewSize     Size
	parameters      *driver.Parameters
}

// resultMapper translates legacy parameter state into modern result
// metadata. A single-slot cache skips the recomputation when parameters
// have not changed since the previous frame, which is the common case for
// preview streams.
type resultMapper struct {
	cachedParams  *driver.Parameters
	cachedRequest *CaptureRequest
	cachedResult  *ResultMetadata
	logger        golog.Logger
}

func newResultMapper(logger golog.Logger) *resultMapper {
	return &resultMapper{logger: logger}
}

// cachedConvert returns result metadata for the frame, reusing the cached
// conversion when the parameters are semantically unchanged. The returned
// result is always a fresh copy, since ownership transfers to the receiver,
// and the timestamp is always set to the given value even on a cache hit.
func (m *resultMapper) cachedConvert(req legacyRequest, timestamp int64) *ResultMetadata {
	// requests are immutable once submitted, so identity suffices; a
	// repeating burst replays the same request values every cycle
	var result *ResultMetadata
	cached := m.cachedParams != nil &&
		req.request == m.cachedRequest &&
		req.parameters.Same(m.cachedParams)
	if cached {
		result = m.cachedResult.Copy()
	} else {
		result = m.convert(req)
		// cache copies of both sides; the loop mutates its parameter
		// snapshot and the client owns the delivered result
		m.cachedParams = req.parameters.Copy()
		m.cachedRequest = req.request
		m.cachedResult = result.Copy()
	}

	result.Timestamp = timestamp

	m.logger.Debugw("converted result metadata", "cached", cached, "timestamp", timestamp)
	return result
}

// convert performs the full legacy-to-modern result translation. Unknown
// legacy values are logged and mapped to their explicit off/auto/disabled
// defaults; conversion never fails.
func (m *resultMapper) convert(req legacyRequest) *ResultMetadata {
	chars := req.characteristics
	request := req.request
	params := req.parameters

	result := &ResultMetadata{}

	activeArray := chars.ActiveArraySize
	result.CropRegion = reportedCropRegion(request.CropRegion, activeArray)

	// control.ae*
	m.mapAe(result, chars, request, activeArray, params)

	// control.afMode
	result.AFMode = m.convertAFMode(params.FocusMode())

	// control.awb*
	result.AWBLock = params.AutoWhiteBalanceLockSupported() && params.AutoWhiteBalanceLock()
	// the legacy driver has no AWB state signal; report converged and echo
	// the requested mode
	result.AWBState = AWBStateConverged
	result.AWBMode = AWBModeAuto
	if request.AWBMode != nil {
		result.AWBMode = *request.AWBMode
	}

	// control.mode
	if request.ControlMode != nil && *request.ControlMode == ControlModeUseSceneMode {
		result.ControlMode = ControlModeUseSceneMode
	} else {
		result.ControlMode = ControlModeAuto
	}

	// control.sceneMode
	if mode, ok := convertSceneMode(params.SceneMode()); ok {
		result.SceneMode = mode
	} else {
		m.logger.Warnw("unknown scene mode reported by legacy driver, setting to disabled",
			"scene_mode", params.SceneMode())
		result.SceneMode = SceneModeDisabled
	}

	// control.effectMode
	if mode, ok := convertEffectMode(params.ColorEffect()); ok {
		result.EffectMode = mode
	} else {
		m.logger.Warnw("unknown effect mode reported by legacy driver, setting to off",
			"effect", params.ColorEffect())
		result.EffectMode = EffectModeOff
	}

	// lens.focusDistance
	if params.FocusMode() == driver.FocusModeInfinity {
		dist := 0.0
		result.FocusDistance = &dist
	}

	// lens.focalLength
	result.FocalLength = params.FocalLength()

	// request.pipelineDepth
	result.PipelineDepth = chars.PipelineMaxDepth

	return result
}

// mapAe fills the AE, flash and metering region fields.
func (m *resultMapper) mapAe(
	result *ResultMetadata,
	chars *Characteristics,
	request *CaptureRequest,
	activeArray image.Rectangle,
	params *driver.Parameters,
) {
	result.AEAntibandingMode = convertAntibandingMode(params.Antibanding())
	result.AEExposureCompensation = params.ExposureCompensation()

	lock := params.AutoExposureLockSupported() && params.AutoExposureLock()
	result.AELock = lock
	if request.AELock != nil && *request.AELock != lock {
		m.logger.Warnw("ae lock request could not be honored",
			"requested", *request.AELock, "actual", lock)
	}

	m.mapAeAndFlashMode(result, chars, params)

	// the legacy driver has no AE state signal either
	result.AEState = AEStateConverged

	result.AERegions = convertMeteringAreas(activeArray, params.MeteringAreas())
	result.AFRegions = convertMeteringAreas(activeArray, params.FocusAreas())
}

// mapAeAndFlashMode derives control.aeMode, flash.mode and flash.state from
// the legacy flash mode setting.
func (m *resultMapper) mapAeAndFlashMode(result *ResultMetadata, chars *Characteristics, params *driver.Parameters) {
	// default: AE on, flash never fires
	flashMode := FlashModeOff
	aeMode := AEModeOn
	// without a flash unit the state is always unavailable; with one it is
	// only known for the single/torch firing modes
	var flashState *FlashState
	if !chars.FlashAvailable {
		state := FlashStateUnavailable
		flashState = &state
	}

	switch setting := params.FlashMode(); setting {
	case "", driver.FlashModeOff:
	case driver.FlashModeAuto:
		aeMode = AEModeOnAutoFlash
	case driver.FlashModeOn:
		flashMode = FlashModeSingle
		aeMode = AEModeOnAlwaysFlash
		state := FlashStateFired
		flashState = &state
	case driver.FlashModeRedEye:
		aeMode = AEModeOnAutoFlashRedeye
	case driver.FlashModeTorch:
		flashMode = FlashModeTorch
		state := FlashStateFired
		flashState = &state
	default:
		m.logger.Warnw("ignoring unknown flash mode", "flash_mode", setting)
	}

	result.FlashState = flashState
	result.FlashMode = flashMode
	result.AEMode = aeMode
}

func (m *resultMapper) convertAFMode(mode string) AFMode {
	switch mode {
	case driver.FocusModeAuto:
		return AFModeAuto
	case driver.FocusModeContinuousPicture:
		return AFModeContinuousPicture
	case driver.FocusModeContinuousVideo:
		return AFModeContinuousVideo
	case driver.FocusModeEDOF:
		return AFModeEDOF
	case driver.FocusModeMacro:
		return AFModeMacro
	case driver.FocusModeFixed, driver.FocusModeInfinity:
		return AFModeOff
	case "":
		m.logger.Warn("no legacy AF mode, defaulting to off")
		return AFModeOff
	default:
		m.logger.Warnw("unknown legacy AF mode, defaulting to off", "focus_mode", mode)
		return AFModeOff
	}
}

func convertAntibandingMode(mode string) AntibandingMode {
	switch mode {
	case driver.Antibanding50Hz:
		return AntibandingMode50Hz
	case driver.Antibanding60Hz:
		return AntibandingMode60Hz
	case driver.AntibandingOff:
		return AntibandingModeOff
	default:
		return AntibandingModeAuto
	}
}

func convertSceneMode(mode string) (SceneMode, bool) {
	switch mode {
	case "", driver.SceneModeAuto:
		return SceneModeDisabled, true
	case driver.SceneModeAction:
		return SceneModeAction, true
	case driver.SceneModePortrait:
		return SceneModePortrait, true
	case driver.SceneModeLandscape:
		return SceneModeLandscape, true
	case driver.SceneModeNight:
		return SceneModeNight, true
	case driver.SceneModeTheatre:
		return SceneModeTheatre, true
	case driver.SceneModeBeach:
		return SceneModeBeach, true
	case driver.SceneModeSnow:
		return SceneModeSnow, true
	case driver.SceneModeSunset:
		return SceneModeSunset, true
	case driver.SceneModeFireworks:
		return SceneModeFireworks, true
	case driver.SceneModeSports:
		return SceneModeSports, true
	case driver.SceneModeParty:
		return SceneModeParty, true
	case driver.SceneModeBarcode:
		return SceneModeBarcode, true
	case driver.SceneModeHDR:
		return SceneModeHDR, true
	default:
		return SceneModeDisabled, false
	}
}

func convertEffectMode(effect string) (EffectMode, bool) {
	switch effect {
	case "", driver.EffectNone:
		return EffectModeOff, true
	case driver.EffectMono:
		return EffectModeMono, true
	case driver.EffectNegative:
		return EffectModeNegative, true
	case driver.EffectSolarize:
		return EffectModeSolarize, true
	case driver.EffectSepia:
		return EffectModeSepia, true
	case driver.EffectPosterize:
		return EffectModePosterize, true
	case driver.EffectWhiteboard:
		return EffectModeWhiteboard, true
	case driver.EffectBlackboard:
		return EffectModeBlackboard, true
	case driver.EffectAqua:
		return EffectModeAqua, true
	default:
		return EffectModeOff, false
	}
}

// reportedCropRegion clamps the requested crop to the active array,
// defaulting to the full array when no crop was requested.
func reportedCropRegion(requested *image.Rectangle, activeArray image.Rectangle) image.Rectangle {
	if requested == nil {
		return activeArray
	}
	crop := requested.Intersect(activeArray)
	if crop.Empty() {
		return activeArray
	}
	return crop
}

// convertMeteringAreas maps legacy [-1000, 1000] metering areas into
// active-array pixel coordinates.
func convertMeteringAreas(activeArray image.Rectangle, areas []driver.Area) []MeteringRectangle {
	rects := make([]MeteringRectangle, 0, len(areas))
	for _, area := range areas {
		rects = append(rects, MeteringRectangle{
			Rect: image.Rect(
				legacyAreaCoord(area.Left, activeArray.Min.X, activeArray.Dx()),
				legacyAreaCoord(area.Top, activeArray.Min.Y, activeArray.Dy()),
				legacyAreaCoord(area.Right, activeArray.Min.X, activeArray.Dx()),
				legacyAreaCoord(area.Bottom, activeArray.Min.Y, activeArray.Dy()),
			),
			Weight: area.Weight,
		})
	}
	return rects
}

// legacyAreaCoord maps one coordinate from the legacy [-1000, 1000] space
// onto [min, min+extent].
func legacyAreaCoord(coord, min, extent int) int {
	if coord < -1000 {
		coord = -1000
	} else if coord > 1000 {
		coord = 1000
	}
	return min + (coord+1000)*extent/2000
}
