package k4a

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// FPS is the camera frame rate.
type FPS int

// Frame rates.
const (
	FramesPerSecond5 FPS = iota
	FramesPerSecond15
	FramesPerSecond30
)

// Hz returns the frame rate as a number of frames per second.
func (f FPS) Hz() int {
	switch f {
	case FramesPerSecond5:
		return 5
	case FramesPerSecond15:
		return 15
	case FramesPerSecond30:
		return 30
	default:
		return 0
	}
}

func (f FPS) String() string {
	if hz := f.Hz(); hz != 0 {
		return fmt.Sprintf("%dfps", hz)
	}
	return fmt.Sprintf("FPS(%d)", int(f))
}

// FPSFromHz returns the frame rate for 5, 15 or 30 frames per second.
func FPSFromHz(hz int) (FPS, error) {
	switch hz {
	case 5:
		return FramesPerSecond5, nil
	case 15:
		return FramesPerSecond15, nil
	case 30:
		return FramesPerSecond30, nil
	default:
		return 0, errors.Errorf("unsupported frame rate %d, must be 5, 15 or 30", hz)
	}
}

// ImageFormat is the pixel format of an image.
type ImageFormat int

// Image formats.
const (
	ImageFormatColorMJPG ImageFormat = iota
	ImageFormatColorNV12
	ImageFormatColorYUY2
	ImageFormatColorBGRA32
	ImageFormatDepth16
	ImageFormatIR16
	ImageFormatCustom8
	ImageFormatCustom16
	ImageFormatCustom
)

var imageFormatNames = []string{"mjpg", "nv12", "yuy2", "bgra32", "depth16", "ir16", "custom8", "custom16", "custom"}

func (f ImageFormat) String() string {
	if f >= 0 && int(f) < len(imageFormatNames) {
		return imageFormatNames[f]
	}
	return fmt.Sprintf("ImageFormat(%d)", int(f))
}

// ParseImageFormat parses a color format name such as "mjpg" or "bgra32".
func ParseImageFormat(name string) (ImageFormat, error) {
	for i, n := range imageFormatNames {
		if strings.EqualFold(n, name) {
			return ImageFormat(i), nil
		}
	}
	return 0, errors.Errorf("unknown image format %q", name)
}

// ColorResolution is the resolution of the color camera. ColorResolutionOff disables it.
type ColorResolution int

// Color resolutions.
const (
	ColorResolutionOff ColorResolution = iota
	ColorResolution720P
	ColorResolution1080P
	ColorResolution1440P
	ColorResolution1536P
	ColorResolution2160P
	ColorResolution3072P
)

var colorResolutionNames = []string{"off", "720p", "1080p", "1440p", "1536p", "2160p", "3072p"}

func (r ColorResolution) String() string {
	if r >= 0 && int(r) < len(colorResolutionNames) {
		return colorResolutionNames[r]
	}
	return fmt.Sprintf("ColorResolution(%d)", int(r))
}

// ParseColorResolution parses a resolution name such as "off" or "1080p".
func ParseColorResolution(name string) (ColorResolution, error) {
	for i, n := range colorResolutionNames {
		if strings.EqualFold(n, name) {
			return ColorResolution(i), nil
		}
	}
	return 0, errors.Errorf("unknown color resolution %q", name)
}

// DepthMode is the depth sensor operating mode.
type DepthMode int

// Depth modes.
const (
	DepthModeOff DepthMode = iota
	DepthModeNFOV2x2Binned
	DepthModeNFOVUnbinned
	DepthModeWFOV2x2Binned
	DepthModeWFOVUnbinned
	DepthModePassiveIR
)

var depthModeNames = []string{"off", "nfov_2x2binned", "nfov_unbinned", "wfov_2x2binned", "wfov_unbinned", "passive_ir"}

func (m DepthMode) String() string {
	if m >= 0 && int(m) < len(depthModeNames) {
		return depthModeNames[m]
	}
	return fmt.Sprintf("DepthMode(%d)", int(m))
}

// ParseDepthMode parses a depth mode name such as "nfov_unbinned".
func ParseDepthMode(name string) (DepthMode, error) {
	for i, n := range depthModeNames {
		if strings.EqualFold(n, name) {
			return DepthMode(i), nil
		}
	}
	return 0, errors.Errorf("unknown depth mode %q", name)
}

// Resolution returns the depth image width and height produced in this mode. Passive IR
// produces no depth image but an IR image of the returned size.
func (m DepthMode) Resolution() (width, height int) {
	switch m {
	case DepthModeNFOV2x2Binned:
		return 320, 288
	case DepthModeNFOVUnbinned:
		return 640, 576
	case DepthModeWFOV2x2Binned:
		return 512, 512
	case DepthModeWFOVUnbinned, DepthModePassiveIR:
		return 1024, 1024
	case DepthModeOff:
		return 0, 0
	default:
		return 0, 0
	}
}

// ProducesDepth reports whether captures taken in this mode contain a depth image.
func (m DepthMode) ProducesDepth() bool {
	return m != DepthModeOff && m != DepthModePassiveIR
}

// WiredSyncMode is the role of a device in a wired multi-device setup.
type WiredSyncMode int

// Wired sync modes.
const (
	WiredSyncModeStandalone WiredSyncMode = iota
	WiredSyncModeMaster
	WiredSyncModeSubordinate
)

var wiredSyncModeNames = []string{"standalone", "master", "subordinate"}

func (m WiredSyncMode) String() string {
	if m >= 0 && int(m) < len(wiredSyncModeNames) {
		return wiredSyncModeNames[m]
	}
	return fmt.Sprintf("WiredSyncMode(%d)", int(m))
}

// ParseWiredSyncMode parses "standalone", "master" or "subordinate".
func ParseWiredSyncMode(name string) (WiredSyncMode, error) {
	for i, n := range wiredSyncModeNames {
		if strings.EqualFold(n, name) {
			return WiredSyncMode(i), nil
		}
	}
	return 0, errors.Errorf("unknown wired sync mode %q", name)
}

// SensorOrientation is the mounting orientation given to the body tracker.
type SensorOrientation int

// Sensor orientations.
const (
	SensorOrientationDefault SensorOrientation = iota
	SensorOrientationClockwise90
	SensorOrientationCounterClockwise90
	SensorOrientationFlip180
)

var sensorOrientationNames = []string{"default", "clockwise90", "counterclockwise90", "flip180"}

func (o SensorOrientation) String() string {
	if o >= 0 && int(o) < len(sensorOrientationNames) {
		return sensorOrientationNames[o]
	}
	return fmt.Sprintf("SensorOrientation(%d)", int(o))
}

// ParseSensorOrientation parses an orientation name such as "flip180".
func ParseSensorOrientation(name string) (SensorOrientation, error) {
	for i, n := range sensorOrientationNames {
		if strings.EqualFold(n, name) {
			return SensorOrientation(i), nil
		}
	}
	return 0, errors.Errorf("unknown sensor orientation %q", name)
}

// ProcessingMode selects the body tracker inference backend.
type ProcessingMode int

// Processing modes.
const (
	ProcessingModeGPU ProcessingMode = iota
	ProcessingModeCPU
	ProcessingModeGPUCUDA
	ProcessingModeGPUTensorRT
	ProcessingModeGPUDirectML
)

var processingModeNames = []string{"gpu", "cpu", "gpu_cuda", "gpu_tensorrt", "gpu_directml"}

func (m ProcessingMode) String() string {
	if m >= 0 && int(m) < len(processingModeNames) {
		return processingModeNames[m]
	}
	return fmt.Sprintf("ProcessingMode(%d)", int(m))
}

// ParseProcessingMode parses a processing mode name such as "cpu" or "gpu_cuda".
func ParseProcessingMode(name string) (ProcessingMode, error) {
	for i, n := range processingModeNames {
		if strings.EqualFold(n, name) {
			return ProcessingMode(i), nil
		}
	}
	return 0, errors.Errorf("unknown processing mode %q", name)
}
