package k4a

import (
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// DeviceConfiguration is the record handed to DeviceStartCameras.
type DeviceConfiguration struct {
	ColorFormat                   ImageFormat
	ColorResolution               ColorResolution
	DepthMode                     DepthMode
	CameraFPS                     FPS
	SynchronizedImagesOnly        bool
	DepthDelayOffColorUsec        int32
	WiredSyncMode                 WiredSyncMode
	SubordinateDelayOffMasterUsec uint32
	DisableStreamingIndicator     bool
}

// DefaultDeviceConfiguration returns a depth-only configuration at 30 FPS. The color format is
// MJPG so that enabling color only needs a resolution.
func DefaultDeviceConfiguration() DeviceConfiguration {
	return DeviceConfiguration{
		ColorFormat:     ImageFormatColorMJPG,
		ColorResolution: ColorResolutionOff,
		// 30 FPS rules out the unbinned wide field of view.
		DepthMode:     DepthModeWFOV2x2Binned,
		CameraFPS:     FramesPerSecond30,
		WiredSyncMode: WiredSyncModeStandalone,
	}
}

// Validate checks the combinations the native layer refuses to start with.
func (c DeviceConfiguration) Validate() error {
	var err error
	if c.CameraFPS.Hz() == 0 {
		err = multierr.Append(err, errors.Errorf("invalid camera fps %d", int(c.CameraFPS)))
	}
	if c.DepthMode < DepthModeOff || c.DepthMode > DepthModePassiveIR {
		err = multierr.Append(err, errors.Errorf("invalid depth mode %d", int(c.DepthMode)))
	}
	if c.ColorResolution < ColorResolutionOff || c.ColorResolution > ColorResolution3072P {
		err = multierr.Append(err, errors.Errorf("invalid color resolution %d", int(c.ColorResolution)))
	}
	if c.ColorFormat < ImageFormatColorMJPG || c.ColorFormat > ImageFormatColorBGRA32 {
		err = multierr.Append(err, errors.Errorf("%s is not a color format", c.ColorFormat))
	}
	if c.WiredSyncMode < WiredSyncModeStandalone || c.WiredSyncMode > WiredSyncModeSubordinate {
		err = multierr.Append(err, errors.Errorf("invalid wired sync mode %d", int(c.WiredSyncMode)))
	}
	if c.DepthMode == DepthModeOff && c.ColorResolution == ColorResolutionOff {
		err = multierr.Append(err, errors.New("at least one of depth and color must be enabled"))
	}
	if c.CameraFPS == FramesPerSecond30 {
		if c.DepthMode == DepthModeWFOVUnbinned {
			err = multierr.Append(err, errors.New("wfov_unbinned depth does not support 30fps"))
		}
		if c.ColorResolution == ColorResolution3072P {
			err = multierr.Append(err, errors.New("3072p color does not support 30fps"))
		}
	}
	if c.SynchronizedImagesOnly && (c.DepthMode == DepthModeOff || c.ColorResolution == ColorResolutionOff) {
		err = multierr.Append(err, errors.New("synchronized images only requires both color and depth"))
	}
	if c.SubordinateDelayOffMasterUsec != 0 && c.WiredSyncMode != WiredSyncModeSubordinate {
		err = multierr.Append(err, errors.New("subordinate delay off master is only valid in subordinate mode"))
	}
	return err
}

// TrackerConfiguration is the record handed to TrackerCreate.
type TrackerConfiguration struct {
	SensorOrientation SensorOrientation
	ProcessingMode    ProcessingMode
	GPUDeviceID       int32
	// ModelPath is empty for the default model.
	ModelPath string
}

// DefaultTrackerConfiguration returns the native default tracker configuration.
func DefaultTrackerConfiguration() TrackerConfiguration {
	return TrackerConfiguration{
		SensorOrientation: SensorOrientationDefault,
		ProcessingMode:    ProcessingModeGPU,
	}
}
