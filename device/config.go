package device

import (
	"encoding/json"
	"os"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"go.viam.com/kinect/k4a"
)

// Config is the JSON form of a device and tracker configuration. Empty fields take the
// defaults of k4a.DefaultDeviceConfiguration and k4a.DefaultTrackerConfiguration.
type Config struct {
	FPS                           int            `json:"fps,omitempty"`
	ColorFormat                   string         `json:"color_format,omitempty"`
	ColorResolution               string         `json:"color_resolution,omitempty"`
	DepthMode                     string         `json:"depth_mode,omitempty"`
	WiredSyncMode                 string         `json:"wired_sync_mode,omitempty"`
	DepthDelayOffColorUsec        int32          `json:"depth_delay_off_color_usec,omitempty"`
	SubordinateDelayOffMasterUsec uint32         `json:"subordinate_delay_off_master_usec,omitempty"`
	SynchronizedImagesOnly        bool           `json:"synchronized_images_only,omitempty"`
	DisableStreamingIndicator     bool           `json:"disable_streaming_indicator,omitempty"`
	Tracker                       *TrackerConfig `json:"tracker,omitempty"`
}

// TrackerConfig is the JSON form of a tracker configuration.
type TrackerConfig struct {
	SensorOrientation string `json:"sensor_orientation,omitempty"`
	ProcessingMode    string `json:"processing_mode,omitempty"`
	GPUDeviceID       int32  `json:"gpu_device_id,omitempty"`
	ModelPath         string `json:"model_path,omitempty"`
}

// Validate checks the config. path names the config in error messages.
func (cfg *Config) Validate(path string) error {
	devCfg, err := cfg.DeviceConfiguration()
	if err == nil {
		err = devCfg.Validate()
	}
	if _, trkErr := cfg.TrackerConfiguration(); trkErr != nil {
		err = multierr.Append(err, trkErr)
	}
	if err != nil {
		return goutils.NewConfigValidationError(path, err)
	}
	return nil
}

// DeviceConfiguration converts the config to a k4a.DeviceConfiguration. It reports unknown
// names but does not check that the combination is valid.
func (cfg *Config) DeviceConfiguration() (k4a.DeviceConfiguration, error) {
	out := k4a.DefaultDeviceConfiguration()
	var err error

	if cfg.FPS != 0 {
		fps, fpsErr := k4a.FPSFromHz(cfg.FPS)
		err = multierr.Append(err, fpsErr)
		out.CameraFPS = fps
	}
	if cfg.ColorFormat != "" {
		f, parseErr := k4a.ParseImageFormat(cfg.ColorFormat)
		err = multierr.Append(err, parseErr)
		out.ColorFormat = f
	}
	if cfg.ColorResolution != "" {
		r, parseErr := k4a.ParseColorResolution(cfg.ColorResolution)
		err = multierr.Append(err, parseErr)
		out.ColorResolution = r
	}
	if cfg.DepthMode != "" {
		m, parseErr := k4a.ParseDepthMode(cfg.DepthMode)
		err = multierr.Append(err, parseErr)
		out.DepthMode = m
	}
	if cfg.WiredSyncMode != "" {
		m, parseErr := k4a.ParseWiredSyncMode(cfg.WiredSyncMode)
		err = multierr.Append(err, parseErr)
		out.WiredSyncMode = m
	}
	out.DepthDelayOffColorUsec = cfg.DepthDelayOffColorUsec
	out.SubordinateDelayOffMasterUsec = cfg.SubordinateDelayOffMasterUsec
	out.SynchronizedImagesOnly = cfg.SynchronizedImagesOnly
	out.DisableStreamingIndicator = cfg.DisableStreamingIndicator

	if err != nil {
		return k4a.DeviceConfiguration{}, err
	}
	return out, nil
}

// TrackerConfiguration converts the tracker block to a k4a.TrackerConfiguration.
func (cfg *Config) TrackerConfiguration() (k4a.TrackerConfiguration, error) {
	out := k4a.DefaultTrackerConfiguration()
	if cfg.Tracker == nil {
		return out, nil
	}
	var err error
	if cfg.Tracker.SensorOrientation != "" {
		o, parseErr := k4a.ParseSensorOrientation(cfg.Tracker.SensorOrientation)
		err = multierr.Append(err, parseErr)
		out.SensorOrientation = o
	}
	if cfg.Tracker.ProcessingMode != "" {
		m, parseErr := k4a.ParseProcessingMode(cfg.Tracker.ProcessingMode)
		err = multierr.Append(err, parseErr)
		out.ProcessingMode = m
	}
	if cfg.Tracker.GPUDeviceID < 0 {
		err = multierr.Append(err, errors.Errorf("gpu_device_id must not be negative, got %d", cfg.Tracker.GPUDeviceID))
	}
	out.GPUDeviceID = cfg.Tracker.GPUDeviceID
	out.ModelPath = cfg.Tracker.ModelPath

	if err != nil {
		return k4a.TrackerConfiguration{}, err
	}
	return out, nil
}

// ConfigFromAttributes decodes a generic attribute map, as found in a larger JSON document,
// into a Config. Keys follow the json tags; unknown keys are rejected.
func ConfigFromAttributes(attributes map[string]interface{}) (*Config, error) {
	var cfg Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           &cfg,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(attributes); err != nil {
		return nil, errors.Wrap(err, "decode device attributes")
	}
	return &cfg, nil
}

// ReadConfigFile reads and validates a JSON config file.
func ReadConfigFile(path string) (*Config, error) {
	//nolint:gosec
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read device config")
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrapf(err, "parse device config %q", path)
	}
	if err := cfg.Validate(path); err != nil {
		return nil, err
	}
	return &cfg, nil
}
