package device

import (
	"context"

	"github.com/pkg/errors"
	"go.opencensus.io/trace"
	"go.uber.org/multierr"

	"go.viam.com/kinect/k4a"
	"go.viam.com/kinect/logging"
)

// A Capture is one sensor sample. It owns its native capture handle, the depth image handle
// once decoded, and an attached tracking Frame if any. All of them are released by Close,
// sub-handles first.
//
// A Capture is not safe for concurrent use.
type Capture struct {
	provider k4a.Provider
	logger   logging.Logger
	seq      uint64

	handle k4a.CaptureHandle
	image  k4a.ImageHandle
	frame  *Frame
}

func newCapture(provider k4a.Provider, logger logging.Logger, seq uint64, handle k4a.CaptureHandle) *Capture {
	return &Capture{provider: provider, logger: logger, seq: seq, handle: handle}
}

// Seq is the acquisition sequence number within the owning Session, starting at 1.
func (c *Capture) Seq() uint64 {
	return c.seq
}

// Closed reports whether the capture has been released.
func (c *Capture) Closed() bool {
	return c.handle == 0
}

// DepthImage decodes the depth image of the capture. The native image is looked up once and
// kept until Close, but every call returns a fresh copy of the samples.
func (c *Capture) DepthImage(ctx context.Context) (*DepthImage, error) {
	_, span := trace.StartSpan(ctx, "k4a::device::DepthImage")
	defer span.End()

	if c.handle == 0 {
		return nil, ErrCaptureClosed
	}
	if c.image == 0 {
		img := c.provider.CaptureGetDepthImage(c.handle)
		if img == 0 {
			return nil, errors.Wrapf(ErrNoImageAvailable, "capture %d", c.seq)
		}
		c.image = img
	}
	return copyDepthImage(c.provider, c.image)
}

// AttachFrame gives the capture ownership of a tracking result, releasing any frame attached
// before. On error the caller keeps ownership of f.
func (c *Capture) AttachFrame(f *Frame) error {
	if c.handle == 0 {
		return ErrCaptureClosed
	}
	if f == nil || f.handle == 0 {
		return ErrFrameClosed
	}
	if c.frame == f {
		return nil
	}
	var err error
	if c.frame != nil {
		err = c.frame.release()
		if err != nil {
			c.logger.Warnw("failed to release replaced tracking frame", "seq", c.seq, "error", err)
		}
	}
	c.frame = f
	return err
}

// TrackingFrame returns the attached tracking result, if any.
func (c *Capture) TrackingFrame() (*Frame, bool) {
	if c.frame == nil || c.frame.handle == 0 {
		return nil, false
	}
	return c.frame, true
}

// Close releases the depth image and tracking frame, then the capture itself. Calling Close
// again does nothing. Release failures are logged and returned, never fatal.
func (c *Capture) Close() error {
	if c.handle == 0 {
		return nil
	}

	var err error
	if c.image != 0 {
		err = multierr.Append(err, errors.Wrap(c.provider.ImageRelease(c.image), "release depth image"))
		c.image = 0
	}
	if c.frame != nil {
		err = multierr.Append(err, c.frame.release())
		c.frame = nil
	}
	err = multierr.Append(err, errors.Wrap(c.provider.CaptureRelease(c.handle), "release capture"))
	c.handle = 0

	if err != nil {
		c.logger.Warnw("failed to release capture", "seq", c.seq, "error", err)
	}
	return err
}
