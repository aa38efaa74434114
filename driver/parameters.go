package driver

import (
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Legacy parameter keys. These mirror the wire names a legacy HAL reports.
const (
	KeyAntibanding              = "antibanding"
	KeyColorEffect              = "effect"
	KeyExposureCompensation     = "exposure-compensation"
	KeyAutoExposureLock         = "auto-exposure-lock"
	KeyAutoExposureLockSupp     = "auto-exposure-lock-supported"
	KeyAutoWhiteBalanceLock     = "auto-whitebalance-lock"
	KeyAutoWhiteBalanceLockSupp = "auto-whitebalance-lock-supported"
	KeyFlashMode                = "flash-mode"
	KeyFocalLength              = "focal-length"
	KeyFocusAreas               = "focus-areas"
	KeyFocusMode                = "focus-mode"
	KeyMeteringAreas            = "metering-areas"
	KeyPictureSize              = "picture-size"
	KeyPictureSizeValues        = "picture-size-values"
	KeyPreviewFpsRange          = "preview-fps-range"
	KeyPreviewFpsRangeValues    = "preview-fps-range-values"
	KeyPreviewSize              = "preview-size"
	KeyPreviewSizeValues        = "preview-size-values"
	KeyRecordingHint            = "recording-hint"
	KeySceneMode                = "scene-mode"
	KeyWhiteBalance             = "whitebalance"
)

// Legacy flash modes.
const (
	FlashModeOff    = "off"
	FlashModeAuto   = "auto"
	FlashModeOn     = "on"
	FlashModeRedEye = "red-eye"
	FlashModeTorch  = "torch"
)

// Legacy focus modes.
const (
	FocusModeAuto              = "auto"
	FocusModeInfinity          = "infinity"
	FocusModeMacro             = "macro"
	FocusModeFixed             = "fixed"
	FocusModeEDOF              = "edof"
	FocusModeContinuousVideo   = "continuous-video"
	FocusModeContinuousPicture = "continuous-picture"
)

// Legacy antibanding modes.
const (
	AntibandingAuto = "auto"
	Antibanding50Hz = "50hz"
	Antibanding60Hz = "60hz"
	AntibandingOff  = "off"
)

// Legacy scene modes.
const (
	SceneModeAuto      = "auto"
	SceneModeAction    = "action"
	SceneModePortrait  = "portrait"
	SceneModeLandscape = "landscape"
	SceneModeNight     = "night"
	SceneModeTheatre   = "theatre"
	SceneModeBeach     = "beach"
	SceneModeSnow      = "snow"
	SceneModeSunset    = "sunset"
	SceneModeFireworks = "fireworks"
	SceneModeSports    = "sports"
	SceneModeParty     = "party"
	SceneModeBarcode   = "barcode"
	SceneModeHDR       = "hdr"
)

// Legacy color effects.
const (
	EffectNone       = "none"
	EffectMono       = "mono"
	EffectNegative   = "negative"
	EffectSolarize   = "solarize"
	EffectSepia      = "sepia"
	EffectPosterize  = "posterize"
	EffectWhiteboard = "whiteboard"
	EffectBlackboard = "blackboard"
	EffectAqua       = "aqua"
)

// Parameters is the string-keyed parameter map of a legacy camera. It is
// the unit of state the result mapper translates into modern result
// metadata. A Parameters value is not safe for concurrent mutation.
type Parameters struct {
	m map[string]string
}

// NewParameters returns an empty parameter map.
func NewParameters() *Parameters {
	return &Parameters{m: map[string]string{}}
}

// Unflatten parses the legacy "key=value;key=value" wire form.
func Unflatten(flattened string) (*Parameters, error) {
	p := NewParameters()
	for _, kv := range strings.Split(flattened, ";") {
		if kv == "" {
			continue
		}
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, errors.Errorf("malformed parameter entry %q", kv)
		}
		p.m[k] = v
	}
	return p, nil
}

// Flatten encodes the parameters in the legacy "key=value;key=value" wire
// form with keys sorted for determinism.
func (p *Parameters) Flatten() string {
	keys := make([]string, 0, len(p.m))
	for k := range p.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(';')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(p.m[k])
	}
	return sb.String()
}

// Get returns the raw value for a key, or "" when absent.
func (p *Parameters) Get(key string) string {
	return p.m[key]
}

// Set stores a raw value for a key.
func (p *Parameters) Set(key, value string) {
	p.m[key] = value
}

// Copy returns a deep copy of the parameters.
func (p *Parameters) Copy() *Parameters {
	cp := NewParameters()
	for k, v := range p.m {
		cp.m[k] = v
	}
	return cp
}

// Same reports whether the two parameter maps are semantically equal. A nil
// receiver or argument is only the same as another nil.
func (p *Parameters) Same(other *Parameters) bool {
	if p == nil || other == nil {
		return p == other
	}
	if len(p.m) != len(other.m) {
		return false
	}
	for k, v := range p.m {
		if ov, ok := other.m[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// FlashMode returns the current flash mode, or "" when the device has none.
func (p *Parameters) FlashMode() string { return p.m[KeyFlashMode] }

// SetFlashMode sets the flash mode.
func (p *Parameters) SetFlashMode(mode string) { p.m[KeyFlashMode] = mode }

// FocusMode returns the current focus mode.
func (p *Parameters) FocusMode() string { return p.m[KeyFocusMode] }

// SetFocusMode sets the focus mode.
func (p *Parameters) SetFocusMode(mode string) { p.m[KeyFocusMode] = mode }

// SceneMode returns the current scene mode.
func (p *Parameters) SceneMode() string { return p.m[KeySceneMode] }

// SetSceneMode sets the scene mode.
func (p *Parameters) SetSceneMode(mode string) { p.m[KeySceneMode] = mode }

// ColorEffect returns the current color effect.
func (p *Parameters) ColorEffect() string { return p.m[KeyColorEffect] }

// SetColorEffect sets the color effect.
func (p *Parameters) SetColorEffect(effect string) { p.m[KeyColorEffect] = effect }

// Antibanding returns the current antibanding mode.
func (p *Parameters) Antibanding() string { return p.m[KeyAntibanding] }

// SetAntibanding sets the antibanding mode.
func (p *Parameters) SetAntibanding(mode string) { p.m[KeyAntibanding] = mode }

// WhiteBalance returns the current white balance mode.
func (p *Parameters) WhiteBalance() string { return p.m[KeyWhiteBalance] }

// SetWhiteBalance sets the white balance mode.
func (p *Parameters) SetWhiteBalance(mode string) { p.m[KeyWhiteBalance] = mode }

// ExposureCompensation returns the exposure compensation index.
func (p *Parameters) ExposureCompensation() int {
	n, _ := strconv.Atoi(p.m[KeyExposureCompensation])
	return n
}

// SetExposureCompensation sets the exposure compensation index.
func (p *Parameters) SetExposureCompensation(index int) {
	p.m[KeyExposureCompensation] = strconv.Itoa(index)
}

// AutoExposureLock reports whether auto-exposure is locked.
func (p *Parameters) AutoExposureLock() bool { return p.m[KeyAutoExposureLock] == "true" }

// SetAutoExposureLock sets the auto-exposure lock.
func (p *Parameters) SetAutoExposureLock(locked bool) {
	p.m[KeyAutoExposureLock] = strconv.FormatBool(locked)
}

// AutoExposureLockSupported reports whether the device supports locking
// auto-exposure.
func (p *Parameters) AutoExposureLockSupported() bool {
	return p.m[KeyAutoExposureLockSupp] == "true"
}

// AutoWhiteBalanceLock reports whether auto-white-balance is locked.
func (p *Parameters) AutoWhiteBalanceLock() bool { return p.m[KeyAutoWhiteBalanceLock] == "true" }

// AutoWhiteBalanceLockSupported reports whether the device supports locking
// auto-white-balance.
func (p *Parameters) AutoWhiteBalanceLockSupported() bool {
	return p.m[KeyAutoWhiteBalanceLockSupp] == "true"
}

// FocalLength returns the lens focal length in millimeters.
func (p *Parameters) FocalLength() float64 {
	f, _ := strconv.ParseFloat(p.m[KeyFocalLength], 64)
	return f
}

// SupportedPreviewSizes returns the preview sizes the device supports.
func (p *Parameters) SupportedPreviewSizes() []Size {
	return parseSizeList(p.m[KeyPreviewSizeValues])
}

// SupportedPictureSizes returns the still capture sizes the device supports.
func (p *Parameters) SupportedPictureSizes() []Size {
	return parseSizeList(p.m[KeyPictureSizeValues])
}

// SetSupportedPreviewSizes overwrites the supported preview size list.
func (p *Parameters) SetSupportedPreviewSizes(sizes []Size) {
	p.m[KeyPreviewSizeValues] = formatSizeList(sizes)
}

// SetSupportedPictureSizes overwrites the supported picture size list.
func (p *Parameters) SetSupportedPictureSizes(sizes []Size) {
	p.m[KeyPictureSizeValues] = formatSizeList(sizes)
}

// SupportedPreviewFpsRanges returns the preview FPS ranges the device
// supports.
func (p *Parameters) SupportedPreviewFpsRanges() []FpsRange {
	return parseRangeList(p.m[KeyPreviewFpsRangeValues])
}

// SetSupportedPreviewFpsRanges overwrites the supported FPS range list.
func (p *Parameters) SetSupportedPreviewFpsRanges(ranges []FpsRange) {
	parts := make([]string, len(ranges))
	for i, r := range ranges {
		parts[i] = "(" + strconv.Itoa(r.Min) + "," + strconv.Itoa(r.Max) + ")"
	}
	p.m[KeyPreviewFpsRangeValues] = strings.Join(parts, ",")
}

// PreviewFpsRange returns the active preview FPS range.
func (p *Parameters) PreviewFpsRange() FpsRange {
	ranges := parseRangeList(p.m[KeyPreviewFpsRange])
	if len(ranges) == 0 {
		return FpsRange{}
	}
	return ranges[0]
}

// SetPreviewFpsRange sets the active preview FPS range.
func (p *Parameters) SetPreviewFpsRange(minFps, maxFps int) {
	p.m[KeyPreviewFpsRange] = "(" + strconv.Itoa(minFps) + "," + strconv.Itoa(maxFps) + ")"
}

// PreviewSize returns the active preview size.
func (p *Parameters) PreviewSize() Size {
	sizes := parseSizeList(p.m[KeyPreviewSize])
	if len(sizes) == 0 {
		return Size{}
	}
	return sizes[0]
}

// SetPreviewSize sets the active preview size.
func (p *Parameters) SetPreviewSize(size Size) {
	p.m[KeyPreviewSize] = size.String()
}

// PictureSize returns the active still capture size.
func (p *Parameters) PictureSize() Size {
	sizes := parseSizeList(p.m[KeyPictureSize])
	if len(sizes) == 0 {
		return Size{}
	}
	return sizes[0]
}

// SetPictureSize sets the active still capture size.
func (p *Parameters) SetPictureSize(size Size) {
	p.m[KeyPictureSize] = size.String()
}

// RecordingHint reports whether the recording hint is set.
func (p *Parameters) RecordingHint() bool { return p.m[KeyRecordingHint] == "true" }

// SetRecordingHint tells the device the preview feeds a recording pipeline.
func (p *Parameters) SetRecordingHint(hint bool) {
	p.m[KeyRecordingHint] = strconv.FormatBool(hint)
}

// MeteringAreas returns the exposure metering regions.
func (p *Parameters) MeteringAreas() []Area {
	return parseAreaList(p.m[KeyMeteringAreas])
}

// SetMeteringAreas sets the exposure metering regions.
func (p *Parameters) SetMeteringAreas(areas []Area) {
	p.m[KeyMeteringAreas] = formatAreaList(areas)
}

// FocusAreas returns the focus regions.
func (p *Parameters) FocusAreas() []Area {
	return parseAreaList(p.m[KeyFocusAreas])
}

// SetFocusAreas sets the focus regions.
func (p *Parameters) SetFocusAreas(areas []Area) {
	p.m[KeyFocusAreas] = formatAreaList(areas)
}

func parseSizeList(value string) []Size {
	if value == "" {
		return nil
	}
	var sizes []Size
	for _, entry := range strings.Split(value, ",") {
		w, h, ok := strings.Cut(entry, "x")
		if !ok {
			continue
		}
		width, err1 := strconv.Atoi(w)
		height, err2 := strconv.Atoi(h)
		if err1 != nil || err2 != nil {
			continue
		}
		sizes = append(sizes, Size{Width: width, Height: height})
	}
	return sizes
}

func formatSizeList(sizes []Size) string {
	parts := make([]string, len(sizes))
	for i, s := range sizes {
		parts[i] = s.String()
	}
	return strings.Join(parts, ",")
}

// parseRangeList parses "(min,max),(min,max)" pairs.
func parseRangeList(value string) []FpsRange {
	var ranges []FpsRange
	for _, fields := range parseGroups(value) {
		if len(fields) != 2 {
			continue
		}
		ranges = append(ranges, FpsRange{Min: fields[0], Max: fields[1]})
	}
	return ranges
}

// parseAreaList parses "(l,t,r,b,weight)" groups.
func parseAreaList(value string) []Area {
	var areas []Area
	for _, fields := range parseGroups(value) {
		if len(fields) != 5 {
			continue
		}
		areas = append(areas, Area{
			Left:   fields[0],
			Top:    fields[1],
			Right:  fields[2],
			Bottom: fields[3],
			Weight: fields[4],
		})
	}
	return areas
}

func formatAreaList(areas []Area) string {
	parts := make([]string, len(areas))
	for i, a := range areas {
		parts[i] = "(" + strconv.Itoa(a.Left) + "," + strconv.Itoa(a.Top) + "," +
			strconv.Itoa(a.Right) + "," + strconv.Itoa(a.Bottom) + "," + strconv.Itoa(a.Weight) + ")"
	}
	return strings.Join(parts, ",")
}

// parseGroups splits "(a,b,...),(c,d,...)" into integer field groups,
// skipping malformed groups.
func parseGroups(value string) [][]int {
	if value == "" {
		return nil
	}
	var groups [][]int
	rest := value
	for rest != "" {
		open := strings.IndexByte(rest, '(')
		if open < 0 {
			break
		}
		closing := strings.IndexByte(rest[open:], ')')
		if closing < 0 {
			break
		}
		body := rest[open+1 : open+closing]
		rest = rest[open+closing+1:]
		fields := strings.Split(body, ",")
		group := make([]int, 0, len(fields))
		ok := true
		for _, f := range fields {
			n, err := strconv.Atoi(strings.TrimSpace(f))
			if err != nil {
				ok = false
				break
			}
			group = append(group, n)
		}
		if ok {
			groups = append(groups, group)
		}
	}
	return groups
}
