package device

import (
	"github.com/pkg/errors"

	"go.viam.com/kinect/k4a"
)

var (
	// ErrNoDevicesInstalled is returned by Open when no device is attached.
	ErrNoDevicesInstalled = errors.New("no devices installed")
	// ErrOpenFailed is returned by Open when the device could not be opened.
	ErrOpenFailed = errors.New("unable to open device")

	// ErrWaitTimeout is returned when a blocking call did not complete within its timeout. The
	// caller may retry or skip the frame.
	ErrWaitTimeout = errors.New("wait timed out")
	// ErrWaitFailed is returned when a blocking call failed.
	ErrWaitFailed = errors.New("wait failed")

	// ErrTrackerNotInitialized is returned by calls that need a tracker before StartTracking.
	ErrTrackerNotInitialized = errors.New("tracker not initialized; call StartTracking first")
	// ErrTrackerUninitializable is returned when the calibration or the tracker could not be
	// created. Raw capture is still available.
	ErrTrackerUninitializable = errors.New("unable to initialize tracker")

	// ErrSerialDecode is logged when the device reports a malformed serial number.
	ErrSerialDecode = errors.New("malformed serial number")

	// ErrNoImageAvailable is returned when a capture has no depth image. With depth enabled
	// this does not happen, so callers treat it as a fatal misconfiguration.
	ErrNoImageAvailable = errors.New("capture has no depth image")
	// ErrMalformedDepthBuffer is returned when image metadata and buffer disagree.
	ErrMalformedDepthBuffer = errors.New("malformed depth buffer")

	// ErrAlreadyStreaming is returned by StartStreaming while the cameras are running.
	ErrAlreadyStreaming = errors.New("cameras already streaming")
	// ErrStartStreamingFailed is returned when the cameras could not be started.
	ErrStartStreamingFailed = errors.New("unable to start cameras")

	// ErrSessionClosed is returned by any call on a closed Session.
	ErrSessionClosed = errors.New("session is closed")
	// ErrCaptureClosed is returned by any call on a released Capture.
	ErrCaptureClosed = errors.New("capture is closed")
	// ErrFrameClosed is returned by any call on a released Frame.
	ErrFrameClosed = errors.New("frame is closed")
)

// waitError maps the outcome of a blocking native call onto the error taxonomy.
func waitError(res k4a.WaitResult, op string) error {
	switch res {
	case k4a.WaitSucceeded:
		return nil
	case k4a.WaitTimeout:
		return errors.Wrap(ErrWaitTimeout, op)
	case k4a.WaitFailed:
		return errors.Wrap(ErrWaitFailed, op)
	default:
		return errors.Wrapf(ErrWaitFailed, "%s: unexpected wait result %s", op, res)
	}
}
