// Package k4a describes the handle-based native sensor and body tracking interface that device
// sessions are built on. Handles are opaque, explicitly released, and must never be released
// twice; ownership rules live with the callers in package device.
package k4a

import "fmt"

// WaitInfinite is the timeout that blocks until the native call completes.
const WaitInfinite int32 = -1

// Opaque native handles. The zero value means "no handle".
type (
	// DeviceHandle identifies an open device.
	DeviceHandle uintptr
	// CaptureHandle identifies a sensor sample.
	CaptureHandle uintptr
	// ImageHandle identifies an image derived from a capture.
	ImageHandle uintptr
	// TrackerHandle identifies a body tracking session.
	TrackerHandle uintptr
	// FrameHandle identifies a body tracking result.
	FrameHandle uintptr
)

// Result is the outcome of a non-blocking native call.
type Result int

// Result values, matching the native ordinals.
const (
	ResultSucceeded Result = iota
	ResultFailed
)

func (r Result) String() string {
	switch r {
	case ResultSucceeded:
		return "succeeded"
	case ResultFailed:
		return "failed"
	default:
		return fmt.Sprintf("Result(%d)", int(r))
	}
}

// WaitResult is the outcome of a native call that blocks with a timeout.
type WaitResult int

// WaitResult values, matching the native ordinals.
const (
	WaitSucceeded WaitResult = iota
	WaitFailed
	WaitTimeout
)

func (r WaitResult) String() string {
	switch r {
	case WaitSucceeded:
		return "succeeded"
	case WaitFailed:
		return "failed"
	case WaitTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("WaitResult(%d)", int(r))
	}
}

// BufferResult is the outcome of a native call that fills a caller supplied buffer.
type BufferResult int

// BufferResult values, matching the native ordinals.
const (
	BufferSucceeded BufferResult = iota
	BufferFailed
	BufferTooSmall
)

func (r BufferResult) String() string {
	switch r {
	case BufferSucceeded:
		return "succeeded"
	case BufferFailed:
		return "failed"
	case BufferTooSmall:
		return "too small"
	default:
		return fmt.Sprintf("BufferResult(%d)", int(r))
	}
}

// Provider is the native capability set. Implementations are thin; they do not track
// ownership, validate call order, or guard against double release beyond reporting it.
//
// Release methods return an error only so that an implementation can surface a failed or
// invalid release; callers log these and carry on.
type Provider interface {
	// InstalledCount returns the number of attached devices.
	InstalledCount() uint32
	DeviceOpen(index uint32) (DeviceHandle, Result)
	DeviceClose(device DeviceHandle) error
	DeviceStartCameras(device DeviceHandle, config DeviceConfiguration) Result
	DeviceStopCameras(device DeviceHandle) error
	// DeviceGetCapture blocks up to timeoutMS (WaitInfinite for no limit). A handle is only
	// returned with WaitSucceeded.
	DeviceGetCapture(device DeviceHandle, timeoutMS int32) (CaptureHandle, WaitResult)
	// DeviceGetSerialnum follows the two-phase protocol: with a nil or short buffer it reports
	// BufferTooSmall and the required size, otherwise it fills buf and reports the used size.
	DeviceGetSerialnum(device DeviceHandle, buf []byte) (int, BufferResult)
	DeviceGetCalibration(device DeviceHandle, depthMode DepthMode, colorResolution ColorResolution) (Calibration, Result)

	TrackerCreate(calibration Calibration, config TrackerConfiguration) (TrackerHandle, Result)
	// TrackerEnqueueCapture submits a capture by reference; the caller keeps ownership.
	TrackerEnqueueCapture(tracker TrackerHandle, capture CaptureHandle, timeoutMS int32) WaitResult
	TrackerPopResult(tracker TrackerHandle, timeoutMS int32) (FrameHandle, WaitResult)
	TrackerShutdown(tracker TrackerHandle) error
	TrackerDestroy(tracker TrackerHandle) error

	// CaptureGetDepthImage returns a new image reference, or zero if the capture has no depth
	// image.
	CaptureGetDepthImage(capture CaptureHandle) ImageHandle
	CaptureRelease(capture CaptureHandle) error

	ImageGetHeightPixels(image ImageHandle) int
	ImageGetWidthPixels(image ImageHandle) int
	ImageGetStrideBytes(image ImageHandle) int
	ImageGetSize(image ImageHandle) int
	// ImageGetBuffer returns a view of the image memory. The view is only valid until the image
	// is released and must be copied out before then.
	ImageGetBuffer(image ImageHandle) []byte
	ImageRelease(image ImageHandle) error

	FrameGetNumBodies(frame FrameHandle) uint32
	FrameGetBodyID(frame FrameHandle, index uint32) uint32
	FrameGetBodySkeleton(frame FrameHandle, index uint32) (Skeleton, Result)
	// FrameGetDeviceTimestampUsec returns the device timestamp of the source capture.
	FrameGetDeviceTimestampUsec(frame FrameHandle) uint64
	FrameRelease(frame FrameHandle) error
}
