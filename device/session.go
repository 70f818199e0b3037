// Package device manages one depth sensor: opening it, streaming captures, decoding depth
// images and feeding captures to the body tracker, with every native handle released exactly
// once and in dependency order.
package device

import (
	"bytes"
	"context"
	"math"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"
	"go.opencensus.io/trace"
	"go.uber.org/multierr"

	"go.viam.com/kinect/k4a"
	"go.viam.com/kinect/logging"
)

// WaitForever makes a blocking call wait until the native layer completes.
const WaitForever time.Duration = -1

// UnknownSerialNumber is reported when the device returns a serial number that cannot be read.
const UnknownSerialNumber = "<unknown serial number>"

// A Session owns one open device and, once tracking is started, its body tracker.
//
// A Session is not safe for concurrent use. Blocking calls (AcquireCapture,
// EnqueueForTracking, PopTrackingResult) only block for their timeout; there is no other way
// to interrupt them.
type Session struct {
	provider k4a.Provider
	logger   logging.Logger
	index    uint32

	device        k4a.DeviceHandle
	config        k4a.DeviceConfiguration
	trackerConfig k4a.TrackerConfiguration
	streaming     bool

	serial      *string
	tracker     k4a.TrackerHandle
	calibration k4a.Calibration

	seq      uint64
	captures *CaptureQueue
	closed   bool
}

// Open opens device index. The session starts with k4a.DefaultDeviceConfiguration and does not
// stream until StartStreaming.
func Open(ctx context.Context, provider k4a.Provider, index uint32, logger logging.Logger) (*Session, error) {
	ctx, span := trace.StartSpan(ctx, "k4a::device::Open")
	defer span.End()

	logger = logger.Sublogger("k4a")
	count := provider.InstalledCount()
	if count == 0 {
		logger.CDebug(ctx, "no devices available")
		return nil, ErrNoDevicesInstalled
	}
	logger.CDebugw(ctx, "opening device", "index", index, "installed", count)

	handle, res := provider.DeviceOpen(index)
	if res != k4a.ResultSucceeded || handle == 0 {
		return nil, errors.Wrapf(ErrOpenFailed, "device %d of %d", index, count)
	}
	logger.Infow("opened device", "index", index)

	return &Session{
		provider:      provider,
		logger:        logger,
		index:         index,
		device:        handle,
		config:        k4a.DefaultDeviceConfiguration(),
		trackerConfig: k4a.DefaultTrackerConfiguration(),
		captures:      NewCaptureQueue(),
	}, nil
}

// Index is the device index the session was opened with.
func (s *Session) Index() uint32 {
	return s.index
}

// Config returns the active device configuration.
func (s *Session) Config() k4a.DeviceConfiguration {
	return s.config
}

// Configure replaces the device configuration. It takes effect at the next StartStreaming; a
// running stream keeps its configuration until it is restarted.
func (s *Session) Configure(cfg k4a.DeviceConfiguration) error {
	if s.closed {
		return ErrSessionClosed
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "invalid device configuration")
	}
	s.config = cfg
	if s.streaming {
		s.logger.Infow("configuration changed while streaming; restart streaming to apply it",
			"depth_mode", cfg.DepthMode, "fps", cfg.CameraFPS)
	}
	return nil
}

// TrackerConfig returns the configuration used when the tracker is created.
func (s *Session) TrackerConfig() k4a.TrackerConfiguration {
	return s.trackerConfig
}

// ConfigureTracker replaces the tracker configuration. It has no effect on a running tracker.
func (s *Session) ConfigureTracker(cfg k4a.TrackerConfiguration) {
	s.trackerConfig = cfg
}

// Streaming reports whether the cameras are running.
func (s *Session) Streaming() bool {
	return s.streaming
}

// StartStreaming starts the cameras with the current configuration. Failures are reported, not
// retried.
func (s *Session) StartStreaming(ctx context.Context) error {
	if s.closed {
		return ErrSessionClosed
	}
	if s.streaming {
		return ErrAlreadyStreaming
	}
	if res := s.provider.DeviceStartCameras(s.device, s.config); res != k4a.ResultSucceeded {
		return errors.Wrapf(ErrStartStreamingFailed, "depth mode %s, color %s at %s",
			s.config.DepthMode, s.config.ColorResolution, s.config.CameraFPS)
	}
	s.streaming = true
	s.logger.CDebugw(ctx, "started cameras",
		"depth_mode", s.config.DepthMode, "color_resolution", s.config.ColorResolution, "fps", s.config.CameraFPS)
	return nil
}

// StopStreaming stops the cameras. Stopping a session that is not streaming does nothing.
func (s *Session) StopStreaming(ctx context.Context) error {
	if s.closed {
		return ErrSessionClosed
	}
	if !s.streaming {
		return nil
	}
	s.streaming = false
	if err := s.provider.DeviceStopCameras(s.device); err != nil {
		s.logger.Warnw("failed to stop cameras", "error", err)
		return errors.Wrap(err, "stop cameras")
	}
	s.logger.CDebug(ctx, "stopped cameras")
	return nil
}

// Tracking reports whether a tracker has been created.
func (s *Session) Tracking() bool {
	return s.tracker != 0
}

// Calibration returns the calibration the tracker is bound to, if tracking has started.
func (s *Session) Calibration() (k4a.Calibration, bool) {
	return s.calibration, s.tracker != 0
}

// StartTracking creates the body tracker from the calibration of the current depth mode with
// color off. A session has at most one tracker; if it already exists this does nothing. On
// failure no tracker is recorded and raw capture keeps working.
func (s *Session) StartTracking(ctx context.Context) error {
	ctx, span := trace.StartSpan(ctx, "k4a::device::StartTracking")
	defer span.End()

	if s.closed {
		return ErrSessionClosed
	}
	if s.tracker != 0 {
		s.logger.CDebug(ctx, "tracker already started")
		return nil
	}

	calibration, res := s.provider.DeviceGetCalibration(s.device, s.config.DepthMode, k4a.ColorResolutionOff)
	if res != k4a.ResultSucceeded {
		return errors.Wrapf(ErrTrackerUninitializable, "no calibration for depth mode %s", s.config.DepthMode)
	}
	tracker, res := s.provider.TrackerCreate(calibration, s.trackerConfig)
	if res != k4a.ResultSucceeded || tracker == 0 {
		return errors.Wrapf(ErrTrackerUninitializable, "tracker create (%s processing)", s.trackerConfig.ProcessingMode)
	}

	s.tracker = tracker
	s.calibration = calibration
	s.logger.Infow("started body tracker",
		"depth_mode", calibration.DepthMode, "processing_mode", s.trackerConfig.ProcessingMode)
	return nil
}

// timeoutMS converts a timeout to native milliseconds. Negative means forever; a positive
// duration under a millisecond still waits one millisecond.
func timeoutMS(timeout time.Duration) int32 {
	if timeout < 0 {
		return k4a.WaitInfinite
	}
	ms := timeout.Milliseconds()
	if ms == 0 && timeout > 0 {
		ms = 1
	}
	if ms > math.MaxInt32 {
		ms = math.MaxInt32
	}
	return int32(ms)
}

// AcquireCapture waits up to timeout for the next sensor sample. A zero timeout polls. The
// returned Capture belongs to the caller, who must Close it or hand it to a CaptureQueue.
func (s *Session) AcquireCapture(ctx context.Context, timeout time.Duration) (*Capture, error) {
	ctx, span := trace.StartSpan(ctx, "k4a::device::AcquireCapture")
	defer span.End()

	if s.closed {
		return nil, ErrSessionClosed
	}
	handle, res := s.provider.DeviceGetCapture(s.device, timeoutMS(timeout))
	if err := waitError(res, "acquire capture"); err != nil {
		s.logger.CDebugw(ctx, "no capture", "timeout", timeout, "result", res)
		return nil, err
	}
	s.seq++
	return newCapture(s.provider, s.logger, s.seq, handle), nil
}

// EnqueueForTracking submits c to the tracker. The tracker reads the capture by reference; c
// still owns its handle and may be closed independently.
func (s *Session) EnqueueForTracking(ctx context.Context, c *Capture, timeout time.Duration) error {
	ctx, span := trace.StartSpan(ctx, "k4a::device::EnqueueForTracking")
	defer span.End()

	if s.closed {
		return ErrSessionClosed
	}
	if s.tracker == 0 {
		return ErrTrackerNotInitialized
	}
	if c.Closed() {
		return ErrCaptureClosed
	}
	res := s.provider.TrackerEnqueueCapture(s.tracker, c.handle, timeoutMS(timeout))
	if err := waitError(res, "enqueue capture for tracking"); err != nil {
		s.logger.CDebugw(ctx, "capture not enqueued", "seq", c.seq, "result", res)
		return err
	}
	return nil
}

// PopTrackingResult waits up to timeout for the next tracking result. Results come out in
// enqueue order, which need not line up with the front of a CaptureQueue.
func (s *Session) PopTrackingResult(ctx context.Context, timeout time.Duration) (*Frame, error) {
	ctx, span := trace.StartSpan(ctx, "k4a::device::PopTrackingResult")
	defer span.End()

	if s.closed {
		return nil, ErrSessionClosed
	}
	if s.tracker == 0 {
		return nil, ErrTrackerNotInitialized
	}
	handle, res := s.provider.TrackerPopResult(s.tracker, timeoutMS(timeout))
	if err := waitError(res, "pop tracking result"); err != nil {
		s.logger.CDebugw(ctx, "no tracking result", "timeout", timeout, "result", res)
		return nil, err
	}
	return &Frame{provider: s.provider, logger: s.logger, handle: handle}, nil
}

// AcquireTrackedCapture acquires a capture and submits it to the tracker, starting the tracker
// first if needed. If the submission fails the capture is released.
func (s *Session) AcquireTrackedCapture(ctx context.Context, timeout time.Duration) (*Capture, error) {
	if s.tracker == 0 && !s.closed {
		s.logger.Info("tracker was not initialized; initializing")
		if err := s.StartTracking(ctx); err != nil {
			return nil, err
		}
	}
	c, err := s.AcquireCapture(ctx, timeout)
	if err != nil {
		return nil, err
	}
	if err := s.EnqueueForTracking(ctx, c, timeout); err != nil {
		return nil, multierr.Combine(err, c.Close())
	}
	return c, nil
}

// SerialNumber returns the device serial number. The first call queries the device; the result
// is cached for the lifetime of the session. A malformed serial yields UnknownSerialNumber.
func (s *Session) SerialNumber(ctx context.Context) string {
	if s.serial != nil {
		return *s.serial
	}
	if s.closed {
		return UnknownSerialNumber
	}

	size, res := s.provider.DeviceGetSerialnum(s.device, nil)
	if (res != k4a.BufferTooSmall && res != k4a.BufferSucceeded) || size <= 0 {
		s.logger.Warnw("unable to query serial number size", "result", res)
		return UnknownSerialNumber
	}
	buf := make([]byte, size)
	n, res := s.provider.DeviceGetSerialnum(s.device, buf)
	if res != k4a.BufferSucceeded {
		s.logger.Warnw("unable to read serial number", "result", res, "size", size)
		return UnknownSerialNumber
	}
	if n > 0 && n < len(buf) {
		buf = buf[:n]
	}

	serial, err := decodeSerial(buf)
	if err != nil {
		s.logger.Warnw("unable to decode serial number", "error", err)
		serial = UnknownSerialNumber
	}
	s.serial = &serial
	s.logger.CDebugw(ctx, "resolved serial number", "serial", serial)
	return serial
}

// decodeSerial reads a NUL terminated serial number.
func decodeSerial(buf []byte) (string, error) {
	b := bytes.TrimRight(buf, "\x00")
	switch {
	case len(b) == 0:
		return "", errors.Wrap(ErrSerialDecode, "empty")
	case bytes.IndexByte(b, 0) >= 0:
		return "", errors.Wrap(ErrSerialDecode, "interior NUL byte")
	case !utf8.Valid(b):
		return "", errors.Wrap(ErrSerialDecode, "invalid UTF-8")
	}
	return string(b), nil
}

// Captures returns the session's own capture queue, used by NextFrame and DropOldestCapture.
// It is drained when the session closes.
func (s *Session) Captures() *CaptureQueue {
	return s.captures
}

// NextFrame acquires a capture and appends it to the session's queue.
func (s *Session) NextFrame(ctx context.Context, timeout time.Duration) error {
	c, err := s.AcquireCapture(ctx, timeout)
	if err != nil {
		return err
	}
	s.captures.Push(c)
	return nil
}

// DropOldestCapture releases the oldest capture in the session's queue.
func (s *Session) DropOldestCapture() error {
	return s.captures.PopFront()
}

// Close releases everything the session owns: queued captures, then the tracker (shutdown,
// destroy), then the cameras and the device. Every step runs even if an earlier one failed;
// failures are logged and combined. Captures held outside the session's queue should be closed
// before calling Close.
func (s *Session) Close(ctx context.Context) error {
	if s.closed {
		return nil
	}
	s.closed = true

	err := s.captures.Close()
	if s.tracker != 0 {
		err = multierr.Combine(
			err,
			errors.Wrap(s.provider.TrackerShutdown(s.tracker), "shutdown tracker"),
			errors.Wrap(s.provider.TrackerDestroy(s.tracker), "destroy tracker"),
		)
		s.tracker = 0
	}
	err = multierr.Combine(
		err,
		errors.Wrap(s.provider.DeviceStopCameras(s.device), "stop cameras"),
		errors.Wrap(s.provider.DeviceClose(s.device), "close device"),
	)
	s.streaming = false
	s.device = 0

	if err != nil {
		s.logger.Errorw("failed to release device session cleanly", "index", s.index, "error", err)
		return err
	}
	s.logger.CDebugw(ctx, "closed device", "index", s.index)
	return nil
}
