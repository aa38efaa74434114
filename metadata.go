package legacycam

import "image"

// Modern-style result enumerations. Values follow the camera2 metadata
// numbering so results can be forwarded without re-mapping.

// ControlMode is the top-level auto-control mode.
type ControlMode int

// Control modes.
const (
	ControlModeOff ControlMode = iota
	ControlModeAuto
	ControlModeUseSceneMode
)

// AFMode is the auto-focus mode reported in a result.
type AFMode int

// AF modes.
const (
	AFModeOff AFMode = iota
	AFModeAuto
	AFModeMacro
	AFModeContinuousVideo
	AFModeContinuousPicture
	AFModeEDOF
)

// AEMode is the auto-exposure mode reported in a result.
type AEMode int

// AE modes.
const (
	AEModeOff AEMode = iota
	AEModeOn
	AEModeOnAutoFlash
	AEModeOnAlwaysFlash
	AEModeOnAutoFlashRedeye
)

// AEState is the auto-exposure algorithm state.
type AEState int

// AE states.
const (
	AEStateInactive AEState = iota
	AEStateSearching
	AEStateConverged
	AEStateLocked
	AEStateFlashRequired
	AEStatePrecapture
)

// AntibandingMode is the AE antibanding mode.
type AntibandingMode int

// Antibanding modes.
const (
	AntibandingModeOff AntibandingMode = iota
	AntibandingMode50Hz
	AntibandingMode60Hz
	AntibandingModeAuto
)

// AWBMode is the auto-white-balance mode.
type AWBMode int

// AWB modes.
const (
	AWBModeOff AWBMode = iota
	AWBModeAuto
	AWBModeIncandescent
	AWBModeFluorescent
	AWBModeWarmFluorescent
	AWBModeDaylight
	AWBModeCloudyDaylight
	AWBModeTwilight
	AWBModeShade
)

// AWBState is the auto-white-balance algorithm state.
type AWBState int

// AWB states.
const (
	AWBStateInactive AWBState = iota
	AWBStateSearching
	AWBStateConverged
	AWBStateLocked
)

// FlashMode is the flash firing mode reported in a result.
type FlashMode int

// Flash modes.
const (
	FlashModeOff FlashMode = iota
	FlashModeSingle
	FlashModeTorch
)

// FlashState is the flash unit state.
type FlashState int

// Flash states.
const (
	FlashStateUnavailable FlashState = iota
	FlashStateCharging
	FlashStateReady
	FlashStateFired
	FlashStatePartial
)

// SceneMode is the scene mode reported in a result.
type SceneMode int

// Scene modes.
const (
	SceneModeDisabled SceneMode = iota
	SceneModeFacePriority
	SceneModeAction
	SceneModePortrait
	SceneModeLandscape
	SceneModeNight
	SceneModeNightPortrait
	SceneModeTheatre
	SceneModeBeach
	SceneModeSnow
	SceneModeSunset
	SceneModeSteadyphoto
	SceneModeFireworks
	SceneModeSports
	SceneModeParty
	SceneModeCandlelight
	SceneModeBarcode
	SceneModeHDR
)

// EffectMode is the color effect reported in a result.
type EffectMode int

// Effect modes.
const (
	EffectModeOff EffectMode = iota
	EffectModeMono
	EffectModeNegative
	EffectModeSolarize
	EffectModeSepia
	EffectModePosterize
	EffectModeWhiteboard
	EffectModeBlackboard
	EffectModeAqua
)

// MeteringRectangle is a weighted metering region in active-array pixel
// coordinates.
type MeteringRectangle struct {
	Rect   image.Rectangle
	Weight int
}

// ResultMetadata is the synthesized modern-style result for one captured
// frame. Ownership transfers with delivery, so producers always hand out
// copies.
type ResultMetadata struct {
	AEAntibandingMode      AntibandingMode
	AEExposureCompensation int
	AELock                 bool
	AEMode                 AEMode
	AEState                AEState
	AERegions              []MeteringRectangle

	AFMode    AFMode
	AFRegions []MeteringRectangle

	AWBLock  bool
	AWBMode  AWBMode
	AWBState AWBState

	ControlMode ControlMode
	SceneMode   SceneMode
	EffectMode  EffectMode

	FlashMode FlashMode
	// FlashState is nil when the state cannot be determined for the
	// current flash mode.
	FlashState *FlashState

	// FocusDistance is set only when the legacy focus mode pins it, e.g.
	// infinity focus reports 0.
	FocusDistance *float64
	FocalLength   float64

	PipelineDepth uint8
	CropRegion    image.Rectangle

	// Timestamp is the frame's sensor timestamp in nanoseconds. It is the
	// one field that changes every frame even on a result-cache hit.
	Timestamp int64
}

// Copy returns a deep copy of the result.
func (m *ResultMetadata) Copy() *ResultMetadata {
	cp := *m
	if m.AERegions != nil {
		cp.AERegions = append([]MeteringRectangle(nil), m.AERegions...)
	}
	if m.AFRegions != nil {
		cp.AFRegions = append([]MeteringRectangle(nil), m.AFRegions...)
	}
	if m.FlashState != nil {
		state := *m.FlashState
		cp.FlashState = &state
	}
	if m.FocusDistance != nil {
		dist := *m.FocusDistance
		cp.FocusDistance = &dist
	}
	return &cp
}
