//go:build k4a && cgo

package native

/*
#cgo LDFLAGS: -lk4a -lk4abt
#include <stdlib.h>
#include <string.h>
#include <k4a/k4a.h>
#include <k4abt.h>

static void k4a_go_joint(const k4abt_skeleton_t *skel, int j, float *pos, float *orient, int *confidence) {
	const k4abt_joint_t *joint = &skel->joints[j];
	pos[0] = joint->position.xyz.x;
	pos[1] = joint->position.xyz.y;
	pos[2] = joint->position.xyz.z;
	orient[0] = joint->orientation.wxyz.w;
	orient[1] = joint->orientation.wxyz.x;
	orient[2] = joint->orientation.wxyz.y;
	orient[3] = joint->orientation.wxyz.z;
	*confidence = (int)joint->confidence_level;
}

static k4abt_tracker_configuration_t k4a_go_tracker_config(int orientation, int mode, int gpu, const char *model) {
	k4abt_tracker_configuration_t cfg = K4ABT_TRACKER_CONFIG_DEFAULT;
	cfg.sensor_orientation = (k4abt_sensor_orientation_t)orientation;
	cfg.processing_mode = (k4abt_tracker_processing_mode_t)mode;
	cfg.gpu_device_id = gpu;
	if (model != NULL) {
		cfg.model_path = model;
	}
	return cfg;
}
*/
import "C"

import (
	"unsafe"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/kinect/k4a"
)

// New returns the provider backed by the installed Azure Kinect SDKs.
func New() (k4a.Provider, error) {
	return provider{}, nil
}

type provider struct{}

// Handles are pointers into SDK-owned memory, so they survive as plain integers.

func devicePtr(h k4a.DeviceHandle) C.k4a_device_t {
	return C.k4a_device_t(unsafe.Pointer(uintptr(h))) //nolint:govet
}

func capturePtr(h k4a.CaptureHandle) C.k4a_capture_t {
	return C.k4a_capture_t(unsafe.Pointer(uintptr(h))) //nolint:govet
}

func imagePtr(h k4a.ImageHandle) C.k4a_image_t {
	return C.k4a_image_t(unsafe.Pointer(uintptr(h))) //nolint:govet
}

func trackerPtr(h k4a.TrackerHandle) C.k4abt_tracker_t {
	return C.k4abt_tracker_t(unsafe.Pointer(uintptr(h))) //nolint:govet
}

func framePtr(h k4a.FrameHandle) C.k4abt_frame_t {
	return C.k4abt_frame_t(unsafe.Pointer(uintptr(h))) //nolint:govet
}

func result(res C.k4a_result_t) k4a.Result {
	if res == C.K4A_RESULT_SUCCEEDED {
		return k4a.ResultSucceeded
	}
	return k4a.ResultFailed
}

func waitResult(res C.k4a_wait_result_t) k4a.WaitResult {
	switch res {
	case C.K4A_WAIT_RESULT_SUCCEEDED:
		return k4a.WaitSucceeded
	case C.K4A_WAIT_RESULT_TIMEOUT:
		return k4a.WaitTimeout
	default:
		return k4a.WaitFailed
	}
}

func (provider) InstalledCount() uint32 {
	return uint32(C.k4a_device_get_installed_count())
}

func (provider) DeviceOpen(index uint32) (k4a.DeviceHandle, k4a.Result) {
	var dev C.k4a_device_t
	res := C.k4a_device_open(C.uint32_t(index), &dev)
	return k4a.DeviceHandle(uintptr(unsafe.Pointer(dev))), result(res)
}

func (provider) DeviceClose(dev k4a.DeviceHandle) error {
	C.k4a_device_close(devicePtr(dev))
	return nil
}

func (provider) DeviceStartCameras(dev k4a.DeviceHandle, config k4a.DeviceConfiguration) k4a.Result {
	cfg := C.k4a_device_configuration_t{
		color_format:                      C.k4a_image_format_t(config.ColorFormat),
		color_resolution:                  C.k4a_color_resolution_t(config.ColorResolution),
		depth_mode:                        C.k4a_depth_mode_t(config.DepthMode),
		camera_fps:                        C.k4a_fps_t(config.CameraFPS),
		synchronized_images_only:          C.bool(config.SynchronizedImagesOnly),
		depth_delay_off_color_usec:        C.int32_t(config.DepthDelayOffColorUsec),
		wired_sync_mode:                   C.k4a_wired_sync_mode_t(config.WiredSyncMode),
		subordinate_delay_off_master_usec: C.uint32_t(config.SubordinateDelayOffMasterUsec),
		disable_streaming_indicator:       C.bool(config.DisableStreamingIndicator),
	}
	return result(C.k4a_device_start_cameras(devicePtr(dev), &cfg))
}

func (provider) DeviceStopCameras(dev k4a.DeviceHandle) error {
	C.k4a_device_stop_cameras(devicePtr(dev))
	return nil
}

func (provider) DeviceGetCapture(dev k4a.DeviceHandle, timeoutMS int32) (k4a.CaptureHandle, k4a.WaitResult) {
	var capt C.k4a_capture_t
	res := C.k4a_device_get_capture(devicePtr(dev), &capt, C.int32_t(timeoutMS))
	if res != C.K4A_WAIT_RESULT_SUCCEEDED {
		return 0, waitResult(res)
	}
	return k4a.CaptureHandle(uintptr(unsafe.Pointer(capt))), k4a.WaitSucceeded
}

func (provider) DeviceGetSerialnum(dev k4a.DeviceHandle, buf []byte) (int, k4a.BufferResult) {
	size := C.size_t(len(buf))
	var ptr *C.char
	if len(buf) > 0 {
		ptr = (*C.char)(unsafe.Pointer(&buf[0]))
	}
	switch C.k4a_device_get_serialnum(devicePtr(dev), ptr, &size) {
	case C.K4A_BUFFER_RESULT_SUCCEEDED:
		return int(size), k4a.BufferSucceeded
	case C.K4A_BUFFER_RESULT_TOO_SMALL:
		return int(size), k4a.BufferTooSmall
	default:
		return 0, k4a.BufferFailed
	}
}

func (provider) DeviceGetCalibration(
	dev k4a.DeviceHandle,
	depthMode k4a.DepthMode,
	colorResolution k4a.ColorResolution,
) (k4a.Calibration, k4a.Result) {
	var cal C.k4a_calibration_t
	res := C.k4a_device_get_calibration(devicePtr(dev),
		C.k4a_depth_mode_t(depthMode), C.k4a_color_resolution_t(colorResolution), &cal)
	if res != C.K4A_RESULT_SUCCEEDED {
		return k4a.Calibration{}, k4a.ResultFailed
	}
	return k4a.Calibration{
		DepthMode:       depthMode,
		ColorResolution: colorResolution,
		DepthWidth:      int(cal.depth_camera_calibration.resolution_width),
		DepthHeight:     int(cal.depth_camera_calibration.resolution_height),
		Raw:             C.GoBytes(unsafe.Pointer(&cal), C.int(C.sizeof_k4a_calibration_t)),
	}, k4a.ResultSucceeded
}

func (provider) TrackerCreate(calibration k4a.Calibration, config k4a.TrackerConfiguration) (k4a.TrackerHandle, k4a.Result) {
	var cal C.k4a_calibration_t
	if len(calibration.Raw) != C.sizeof_k4a_calibration_t {
		return 0, k4a.ResultFailed
	}
	copy(unsafe.Slice((*byte)(unsafe.Pointer(&cal)), C.sizeof_k4a_calibration_t), calibration.Raw)

	var model *C.char
	if config.ModelPath != "" {
		model = C.CString(config.ModelPath)
		defer C.free(unsafe.Pointer(model))
	}
	cfg := C.k4a_go_tracker_config(C.int(config.SensorOrientation), C.int(config.ProcessingMode),
		C.int(config.GPUDeviceID), model)

	var trk C.k4abt_tracker_t
	if res := C.k4abt_tracker_create(&cal, cfg, &trk); res != C.K4A_RESULT_SUCCEEDED {
		return 0, k4a.ResultFailed
	}
	return k4a.TrackerHandle(uintptr(unsafe.Pointer(trk))), k4a.ResultSucceeded
}

func (provider) TrackerEnqueueCapture(trk k4a.TrackerHandle, capt k4a.CaptureHandle, timeoutMS int32) k4a.WaitResult {
	return waitResult(C.k4abt_tracker_enqueue_capture(trackerPtr(trk), capturePtr(capt), C.int32_t(timeoutMS)))
}

func (provider) TrackerPopResult(trk k4a.TrackerHandle, timeoutMS int32) (k4a.FrameHandle, k4a.WaitResult) {
	var f C.k4abt_frame_t
	res := C.k4abt_tracker_pop_result(trackerPtr(trk), &f, C.int32_t(timeoutMS))
	if res != C.K4A_WAIT_RESULT_SUCCEEDED {
		return 0, waitResult(res)
	}
	return k4a.FrameHandle(uintptr(unsafe.Pointer(f))), k4a.WaitSucceeded
}

func (provider) TrackerShutdown(trk k4a.TrackerHandle) error {
	C.k4abt_tracker_shutdown(trackerPtr(trk))
	return nil
}

func (provider) TrackerDestroy(trk k4a.TrackerHandle) error {
	C.k4abt_tracker_destroy(trackerPtr(trk))
	return nil
}

func (provider) CaptureGetDepthImage(capt k4a.CaptureHandle) k4a.ImageHandle {
	return k4a.ImageHandle(uintptr(unsafe.Pointer(C.k4a_capture_get_depth_image(capturePtr(capt)))))
}

func (provider) CaptureRelease(capt k4a.CaptureHandle) error {
	C.k4a_capture_release(capturePtr(capt))
	return nil
}

func (provider) ImageGetHeightPixels(img k4a.ImageHandle) int {
	return int(C.k4a_image_get_height_pixels(imagePtr(img)))
}

func (provider) ImageGetWidthPixels(img k4a.ImageHandle) int {
	return int(C.k4a_image_get_width_pixels(imagePtr(img)))
}

func (provider) ImageGetStrideBytes(img k4a.ImageHandle) int {
	return int(C.k4a_image_get_stride_bytes(imagePtr(img)))
}

func (provider) ImageGetSize(img k4a.ImageHandle) int {
	return int(C.k4a_image_get_size(imagePtr(img)))
}

// ImageGetBuffer aliases SDK memory; it is only valid until the image is released.
func (p provider) ImageGetBuffer(img k4a.ImageHandle) []byte {
	buf := C.k4a_image_get_buffer(imagePtr(img))
	if buf == nil {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(buf)), p.ImageGetSize(img))
}

func (provider) ImageRelease(img k4a.ImageHandle) error {
	C.k4a_image_release(imagePtr(img))
	return nil
}

func (provider) FrameGetNumBodies(f k4a.FrameHandle) uint32 {
	return uint32(C.k4abt_frame_get_num_bodies(framePtr(f)))
}

func (provider) FrameGetBodyID(f k4a.FrameHandle, index uint32) uint32 {
	return uint32(C.k4abt_frame_get_body_id(framePtr(f), C.uint32_t(index)))
}

func (provider) FrameGetBodySkeleton(f k4a.FrameHandle, index uint32) (k4a.Skeleton, k4a.Result) {
	var skel C.k4abt_skeleton_t
	if res := C.k4abt_frame_get_body_skeleton(framePtr(f), C.uint32_t(index), &skel); res != C.K4A_RESULT_SUCCEEDED {
		return k4a.Skeleton{}, k4a.ResultFailed
	}
	var out k4a.Skeleton
	var pos [3]C.float
	var orient [4]C.float
	var confidence C.int
	for j := range out.Joints {
		C.k4a_go_joint(&skel, C.int(j), &pos[0], &orient[0], &confidence)
		out.Joints[j] = k4a.JointPose{
			Position: r3.Vector{X: float64(pos[0]), Y: float64(pos[1]), Z: float64(pos[2])},
			Orientation: quat.Number{
				Real: float64(orient[0]),
				Imag: float64(orient[1]),
				Jmag: float64(orient[2]),
				Kmag: float64(orient[3]),
			},
			Confidence: k4a.JointConfidence(confidence),
		}
	}
	return out, k4a.ResultSucceeded
}

func (provider) FrameGetDeviceTimestampUsec(f k4a.FrameHandle) uint64 {
	return uint64(C.k4abt_frame_get_device_timestamp_usec(framePtr(f)))
}

func (provider) FrameRelease(f k4a.FrameHandle) error {
	C.k4abt_frame_release(framePtr(f))
	return nil
}

var _ k4a.Provider = provider{}
