package device

import (
	"time"

	"github.com/pkg/errors"

	"go.viam.com/kinect/k4a"
	"go.viam.com/kinect/logging"
)

// Body is one tracked person in a Frame.
type Body struct {
	ID       uint32
	Skeleton k4a.Skeleton
}

// A Frame is a body tracking result. It is released either by Close or, once attached with
// Capture.AttachFrame, together with its Capture.
type Frame struct {
	provider k4a.Provider
	logger   logging.Logger
	handle   k4a.FrameHandle
}

// NumBodies returns the number of bodies found.
func (f *Frame) NumBodies() int {
	if f.handle == 0 {
		return 0
	}
	return int(f.provider.FrameGetNumBodies(f.handle))
}

// Bodies reads the id and skeleton of every body in the frame.
func (f *Frame) Bodies() ([]Body, error) {
	if f.handle == 0 {
		return nil, ErrFrameClosed
	}
	n := f.provider.FrameGetNumBodies(f.handle)
	bodies := make([]Body, 0, n)
	for i := uint32(0); i < n; i++ {
		skel, res := f.provider.FrameGetBodySkeleton(f.handle, i)
		if res != k4a.ResultSucceeded {
			return nil, errors.Errorf("unable to read skeleton of body %d", i)
		}
		bodies = append(bodies, Body{ID: f.provider.FrameGetBodyID(f.handle, i), Skeleton: skel})
	}
	return bodies, nil
}

// Timestamp is the device timestamp of the capture the frame was computed from.
func (f *Frame) Timestamp() time.Duration {
	if f.handle == 0 {
		return 0
	}
	return time.Duration(f.provider.FrameGetDeviceTimestampUsec(f.handle)) * time.Microsecond
}

// Close releases the frame. Calling Close again, or closing the Capture it is attached to,
// does nothing more.
func (f *Frame) Close() error {
	err := f.release()
	if err != nil {
		f.logger.Warnw("failed to release tracking frame", "error", err)
	}
	return err
}

func (f *Frame) release() error {
	if f.handle == 0 {
		return nil
	}
	err := f.provider.FrameRelease(f.handle)
	f.handle = 0
	return errors.Wrap(err, "release tracking frame")
}
