package device

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.viam.com/test"

	"go.viam.com/kinect/k4a"
	"go.viam.com/kinect/k4a/fake"
	"go.viam.com/kinect/logging"
)

func TestOpen(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewTestLogger(t)

	t.Run("no devices installed", func(t *testing.T) {
		p := fake.NewProvider(nil)
		p.Devices = 0
		_, err := Open(ctx, p, 0, logger)
		test.That(t, err, test.ShouldBeError, ErrNoDevicesInstalled)
		test.That(t, p.Events(), test.ShouldBeEmpty)
	})

	t.Run("open failure", func(t *testing.T) {
		p := fake.NewProvider(nil)
		_, err := Open(ctx, p, 1, logger)
		test.That(t, errors.Is(err, ErrOpenFailed), test.ShouldBeTrue)

		p.OpenResult = k4a.ResultFailed
		_, err = Open(ctx, p, 0, logger)
		test.That(t, errors.Is(err, ErrOpenFailed), test.ShouldBeTrue)
		test.That(t, p.Outstanding().Devices, test.ShouldEqual, 0)
	})

	t.Run("device is opened exclusively", func(t *testing.T) {
		p := fake.NewProvider(nil)
		s, err := Open(ctx, p, 0, logger)
		test.That(t, err, test.ShouldBeNil)
		_, err = Open(ctx, p, 0, logger)
		test.That(t, errors.Is(err, ErrOpenFailed), test.ShouldBeTrue)

		test.That(t, s.Close(ctx), test.ShouldBeNil)
		s, err = Open(ctx, p, 0, logger)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, s.Close(ctx), test.ShouldBeNil)
	})

	t.Run("defaults", func(t *testing.T) {
		p := fake.NewProvider(nil)
		s, err := Open(ctx, p, 0, logger)
		test.That(t, err, test.ShouldBeNil)
		defer s.Close(ctx)
		test.That(t, s.Index(), test.ShouldEqual, uint32(0))
		test.That(t, s.Config(), test.ShouldResemble, k4a.DefaultDeviceConfiguration())
		test.That(t, s.TrackerConfig(), test.ShouldResemble, k4a.DefaultTrackerConfiguration())
		test.That(t, s.Streaming(), test.ShouldBeFalse)
		test.That(t, s.Tracking(), test.ShouldBeFalse)
	})
}

func TestStreaming(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewTestLogger(t)

	t.Run("no captures before streaming", func(t *testing.T) {
		p := fake.NewProvider(nil)
		s, err := Open(ctx, p, 0, logger)
		test.That(t, err, test.ShouldBeNil)
		defer s.Close(ctx)

		_, err = s.AcquireCapture(ctx, 0)
		test.That(t, errors.Is(err, ErrWaitFailed), test.ShouldBeTrue)
	})

	t.Run("start twice", func(t *testing.T) {
		p := fake.NewProvider(nil)
		s := newStreamingSession(t, p)
		test.That(t, s.StartStreaming(ctx), test.ShouldBeError, ErrAlreadyStreaming)
		test.That(t, s.Streaming(), test.ShouldBeTrue)
	})

	t.Run("start failure", func(t *testing.T) {
		p := fake.NewProvider(nil)
		p.StartResult = k4a.ResultFailed
		s, err := Open(ctx, p, 0, logger)
		test.That(t, err, test.ShouldBeNil)
		defer s.Close(ctx)
		err = s.StartStreaming(ctx)
		test.That(t, errors.Is(err, ErrStartStreamingFailed), test.ShouldBeTrue)
		test.That(t, s.Streaming(), test.ShouldBeFalse)
	})

	t.Run("stop", func(t *testing.T) {
		p := fake.NewProvider(nil)
		s := newStreamingSession(t, p)
		test.That(t, s.StopStreaming(ctx), test.ShouldBeNil)
		test.That(t, s.StopStreaming(ctx), test.ShouldBeNil)
		test.That(t, len(p.Ops(fake.OpStopCameras)), test.ShouldEqual, 1)
		_, err := s.AcquireCapture(ctx, 0)
		test.That(t, errors.Is(err, ErrWaitFailed), test.ShouldBeTrue)
	})

	t.Run("invalid configuration is rejected", func(t *testing.T) {
		p := fake.NewProvider(nil)
		s, err := Open(ctx, p, 0, logger)
		test.That(t, err, test.ShouldBeNil)
		defer s.Close(ctx)

		cfg := k4a.DefaultDeviceConfiguration()
		cfg.DepthMode = k4a.DepthModeWFOVUnbinned
		test.That(t, s.Configure(cfg), test.ShouldNotBeNil)
		test.That(t, s.Config(), test.ShouldResemble, k4a.DefaultDeviceConfiguration())
	})

	t.Run("configuration applies at the next start", func(t *testing.T) {
		p := fake.NewProvider(nil)
		s := newStreamingSession(t, p)
		test.That(t, s.Configure(nfovConfig()), test.ShouldBeNil)

		c, err := s.AcquireCapture(ctx, time.Second)
		test.That(t, err, test.ShouldBeNil)
		img, err := c.DepthImage(ctx)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, img.Width, test.ShouldEqual, 512)
		test.That(t, c.Close(), test.ShouldBeNil)

		test.That(t, s.StopStreaming(ctx), test.ShouldBeNil)
		test.That(t, s.StartStreaming(ctx), test.ShouldBeNil)
		c, err = s.AcquireCapture(ctx, time.Second)
		test.That(t, err, test.ShouldBeNil)
		defer c.Close()
		img, err = c.DepthImage(ctx)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, img.Width, test.ShouldEqual, 640)
		test.That(t, img.Height, test.ShouldEqual, 576)
	})
}

func TestAcquireCapture(t *testing.T) {
	ctx := context.Background()

	t.Run("sequence numbers increase", func(t *testing.T) {
		p := fake.NewProvider(nil)
		s := newStreamingSession(t, p)
		for i := uint64(1); i <= 3; i++ {
			c, err := s.AcquireCapture(ctx, time.Second)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, c.Seq(), test.ShouldEqual, i)
			test.That(t, c.Close(), test.ShouldBeNil)
		}
	})

	t.Run("zero timeout polls", func(t *testing.T) {
		p := fake.NewProvider(nil)
		p.SetFramesAvailable(0)
		s := newStreamingSession(t, p)

		start := time.Now()
		_, err := s.AcquireCapture(ctx, 0)
		test.That(t, errors.Is(err, ErrWaitTimeout), test.ShouldBeTrue)
		test.That(t, time.Since(start), test.ShouldBeLessThan, time.Second)
		test.That(t, p.Outstanding().Captures, test.ShouldEqual, 0)

		p.AddFrames(1)
		c, err := s.AcquireCapture(ctx, 0)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, c.Close(), test.ShouldBeNil)
	})

	t.Run("times out after the timeout", func(t *testing.T) {
		mock := clock.NewMock()
		p := fake.NewProvider(mock)
		p.SetFramesAvailable(0)
		s := newStreamingSession(t, p)

		done := make(chan error, 1)
		go func() {
			_, err := s.AcquireCapture(ctx, 50*time.Millisecond)
			done <- err
		}()

		var err error
		for waiting := true; waiting; {
			select {
			case err = <-done:
				waiting = false
			default:
				mock.Add(10 * time.Millisecond)
			}
		}
		test.That(t, errors.Is(err, ErrWaitTimeout), test.ShouldBeTrue)
		test.That(t, p.Outstanding().Captures, test.ShouldEqual, 0)
	})

	t.Run("waits for a frame", func(t *testing.T) {
		p := fake.NewProvider(nil)
		p.SetFramesAvailable(0)
		s := newStreamingSession(t, p)

		done := make(chan *Capture, 1)
		go func() {
			c, err := s.AcquireCapture(ctx, WaitForever)
			if err != nil {
				done <- nil
				return
			}
			done <- c
		}()
		p.AddFrames(1)
		c := <-done
		test.That(t, c, test.ShouldNotBeNil)
		test.That(t, c.Close(), test.ShouldBeNil)
	})
}

func TestTimeoutMS(t *testing.T) {
	test.That(t, timeoutMS(WaitForever), test.ShouldEqual, k4a.WaitInfinite)
	test.That(t, timeoutMS(0), test.ShouldEqual, int32(0))
	test.That(t, timeoutMS(time.Microsecond), test.ShouldEqual, int32(1))
	test.That(t, timeoutMS(1500*time.Millisecond), test.ShouldEqual, int32(1500))
	test.That(t, timeoutMS(1000*time.Hour), test.ShouldEqual, int32(2147483647))
}

func TestTracking(t *testing.T) {
	ctx := context.Background()

	t.Run("enqueue before tracking", func(t *testing.T) {
		p := fake.NewProvider(nil)
		s := newStreamingSession(t, p)

		c, err := s.AcquireCapture(ctx, time.Second)
		test.That(t, err, test.ShouldBeNil)
		defer c.Close()

		test.That(t, s.EnqueueForTracking(ctx, c, time.Second), test.ShouldBeError, ErrTrackerNotInitialized)
		_, err = s.PopTrackingResult(ctx, 0)
		test.That(t, err, test.ShouldBeError, ErrTrackerNotInitialized)
		test.That(t, p.Ops(fake.OpTrackerEnqueue), test.ShouldBeEmpty)
	})

	t.Run("tracker creation failure leaves no tracker", func(t *testing.T) {
		p := fake.NewProvider(nil)
		p.TrackerCreateResult = k4a.ResultFailed
		s := newStreamingSession(t, p)

		err := s.StartTracking(ctx)
		test.That(t, errors.Is(err, ErrTrackerUninitializable), test.ShouldBeTrue)
		test.That(t, s.Tracking(), test.ShouldBeFalse)
		_, ok := s.Calibration()
		test.That(t, ok, test.ShouldBeFalse)

		c, err := s.AcquireCapture(ctx, time.Second)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, c.Close(), test.ShouldBeNil)

		test.That(t, s.Close(ctx), test.ShouldBeNil)
		test.That(t, p.Ops(fake.OpTrackerShutdown, fake.OpTrackerDestroy), test.ShouldBeEmpty)
	})

	t.Run("calibration failure leaves no tracker", func(t *testing.T) {
		p := fake.NewProvider(nil)
		p.CalibrationResult = k4a.ResultFailed
		s := newStreamingSession(t, p)

		err := s.StartTracking(ctx)
		test.That(t, errors.Is(err, ErrTrackerUninitializable), test.ShouldBeTrue)
		test.That(t, s.Tracking(), test.ShouldBeFalse)
		test.That(t, p.Ops(fake.OpTrackerCreate), test.ShouldBeEmpty)

		_, err = s.AcquireTrackedCapture(ctx, time.Second)
		test.That(t, errors.Is(err, ErrTrackerUninitializable), test.ShouldBeTrue)
		test.That(t, p.Outstanding().Captures, test.ShouldEqual, 0)
	})

	t.Run("start tracking twice keeps one tracker", func(t *testing.T) {
		p := fake.NewProvider(nil)
		s := newStreamingSession(t, p)

		test.That(t, s.StartTracking(ctx), test.ShouldBeNil)
		test.That(t, s.StartTracking(ctx), test.ShouldBeNil)
		test.That(t, len(p.Ops(fake.OpTrackerCreate)), test.ShouldEqual, 1)

		cal, ok := s.Calibration()
		test.That(t, ok, test.ShouldBeTrue)
		test.That(t, cal.DepthMode, test.ShouldEqual, k4a.DepthModeWFOV2x2Binned)
		test.That(t, cal.ColorResolution, test.ShouldEqual, k4a.ColorResolutionOff)
	})

	t.Run("results come out in enqueue order", func(t *testing.T) {
		p := fake.NewProvider(nil)
		s := newStreamingSession(t, p)

		var captures []*Capture
		for i := 0; i < 3; i++ {
			c, err := s.AcquireTrackedCapture(ctx, time.Second)
			test.That(t, err, test.ShouldBeNil)
			captures = append(captures, c)
		}
		for _, c := range captures {
			f, err := s.PopTrackingResult(ctx, time.Second)
			test.That(t, err, test.ShouldBeNil)
			bodies, err := f.Bodies()
			test.That(t, err, test.ShouldBeNil)
			test.That(t, bodies[0].Skeleton.Joint(k4a.JointPelvis).Position.Z, test.ShouldEqual, float64(1000+c.Seq()))
			test.That(t, c.AttachFrame(f), test.ShouldBeNil)
			test.That(t, c.Close(), test.ShouldBeNil)
		}
		test.That(t, p.Outstanding().Frames, test.ShouldEqual, 0)

		_, err := s.PopTrackingResult(ctx, 0)
		test.That(t, errors.Is(err, ErrWaitTimeout), test.ShouldBeTrue)
	})

	t.Run("failed enqueue releases the capture", func(t *testing.T) {
		p := fake.NewProvider(nil)
		p.TrackerQueueSize = 1
		s := newStreamingSession(t, p)

		first, err := s.AcquireTrackedCapture(ctx, time.Second)
		test.That(t, err, test.ShouldBeNil)
		defer first.Close()

		_, err = s.AcquireTrackedCapture(ctx, time.Second)
		test.That(t, errors.Is(err, ErrWaitTimeout), test.ShouldBeTrue)
		test.That(t, p.Outstanding().Captures, test.ShouldEqual, 1)
	})

	t.Run("closed capture is not enqueued", func(t *testing.T) {
		p := fake.NewProvider(nil)
		s := newStreamingSession(t, p)
		test.That(t, s.StartTracking(ctx), test.ShouldBeNil)

		c, err := s.AcquireCapture(ctx, time.Second)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, c.Close(), test.ShouldBeNil)
		test.That(t, s.EnqueueForTracking(ctx, c, 0), test.ShouldBeError, ErrCaptureClosed)
	})

	t.Run("frame outlives an unattached capture", func(t *testing.T) {
		p := fake.NewProvider(nil)
		s := newStreamingSession(t, p)

		c, err := s.AcquireTrackedCapture(ctx, time.Second)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, c.Close(), test.ShouldBeNil)

		f, err := s.PopTrackingResult(ctx, time.Second)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, f.NumBodies(), test.ShouldEqual, 1)
		test.That(t, f.Close(), test.ShouldBeNil)
		test.That(t, f.Close(), test.ShouldBeNil)
		test.That(t, len(p.Ops(fake.OpFrameRelease)), test.ShouldEqual, 1)
		_, err = f.Bodies()
		test.That(t, err, test.ShouldBeError, ErrFrameClosed)
	})
}

func TestSerialNumber(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewTestLogger(t)

	t.Run("resolved once", func(t *testing.T) {
		p := fake.NewProvider(nil)
		p.Serial = []byte("000123412345")
		s, err := Open(ctx, p, 0, logger)
		test.That(t, err, test.ShouldBeNil)
		defer s.Close(ctx)

		test.That(t, s.SerialNumber(ctx), test.ShouldEqual, "000123412345")
		p.Serial = []byte("999999999999")
		test.That(t, s.SerialNumber(ctx), test.ShouldEqual, "000123412345")
	})

	t.Run("malformed serial", func(t *testing.T) {
		p := fake.NewProvider(nil)
		p.Serial = []byte{0xff, 0xfe, 0x41}
		obsLogger, logs := logging.NewObservedTestLogger(t)
		s, err := Open(ctx, p, 0, obsLogger)
		test.That(t, err, test.ShouldBeNil)
		defer s.Close(ctx)

		test.That(t, s.SerialNumber(ctx), test.ShouldEqual, UnknownSerialNumber)
		test.That(t, logs.FilterMessage("unable to decode serial number").Len(), test.ShouldEqual, 1)

		p.Serial = []byte("000123412345")
		test.That(t, s.SerialNumber(ctx), test.ShouldEqual, UnknownSerialNumber)
	})

	t.Run("decode", func(t *testing.T) {
		for _, tc := range []struct {
			in  []byte
			out string
			ok  bool
		}{
			{[]byte("000123412345\x00"), "000123412345", true},
			{[]byte("000123412345"), "000123412345", true},
			{[]byte("0001\x00\x00\x00"), "0001", true},
			{[]byte("00\x0001\x00"), "", false},
			{[]byte{0xc3, 0x28, 0x00}, "", false},
			{[]byte{0x00}, "", false},
		} {
			serial, err := decodeSerial(tc.in)
			if !tc.ok {
				test.That(t, errors.Is(err, ErrSerialDecode), test.ShouldBeTrue)
				continue
			}
			test.That(t, err, test.ShouldBeNil)
			test.That(t, serial, test.ShouldEqual, tc.out)
		}
	})
}

func TestSessionClose(t *testing.T) {
	ctx := context.Background()

	t.Run("teardown order", func(t *testing.T) {
		p := fake.NewProvider(nil)
		s, err := Open(ctx, p, 0, logging.NewTestLogger(t))
		test.That(t, err, test.ShouldBeNil)
		test.That(t, s.StartStreaming(ctx), test.ShouldBeNil)
		test.That(t, s.StartTracking(ctx), test.ShouldBeNil)
		test.That(t, s.NextFrame(ctx, time.Second), test.ShouldBeNil)
		test.That(t, s.NextFrame(ctx, time.Second), test.ShouldBeNil)
		test.That(t, s.Captures().Len(), test.ShouldEqual, 2)

		before := len(p.Events())
		test.That(t, s.Close(ctx), test.ShouldBeNil)

		var ops []string
		for _, e := range p.Events()[before:] {
			ops = append(ops, e.Op)
		}
		test.That(t, ops, test.ShouldResemble, []string{
			fake.OpCaptureRelease,
			fake.OpCaptureRelease,
			fake.OpTrackerShutdown,
			fake.OpTrackerDestroy,
			fake.OpStopCameras,
			fake.OpDeviceClose,
		})
		test.That(t, p.Outstanding(), test.ShouldResemble, fake.Outstanding{})
	})

	t.Run("close is idempotent", func(t *testing.T) {
		p := fake.NewProvider(nil)
		s, err := Open(ctx, p, 0, logging.NewTestLogger(t))
		test.That(t, err, test.ShouldBeNil)
		test.That(t, s.Close(ctx), test.ShouldBeNil)
		test.That(t, s.Close(ctx), test.ShouldBeNil)
		test.That(t, len(p.Ops(fake.OpDeviceClose)), test.ShouldEqual, 1)
	})

	t.Run("every step runs despite failures", func(t *testing.T) {
		p := fake.NewProvider(nil)
		logger, logs := logging.NewObservedTestLogger(t)
		s, err := Open(ctx, p, 0, logger)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, s.StartStreaming(ctx), test.ShouldBeNil)
		test.That(t, s.StartTracking(ctx), test.ShouldBeNil)
		test.That(t, s.NextFrame(ctx, time.Second), test.ShouldBeNil)

		p.ReleaseErr = errBoom
		err = s.Close(ctx)
		test.That(t, errors.Is(err, errBoom), test.ShouldBeTrue)
		test.That(t, p.Outstanding(), test.ShouldResemble, fake.Outstanding{})
		test.That(t, len(p.Ops(fake.OpDeviceClose)), test.ShouldEqual, 1)
		test.That(t, logs.FilterMessage("failed to release device session cleanly").Len(), test.ShouldEqual, 1)
	})

	t.Run("closed session refuses work", func(t *testing.T) {
		p := fake.NewProvider(nil)
		s, err := Open(ctx, p, 0, logging.NewTestLogger(t))
		test.That(t, err, test.ShouldBeNil)
		test.That(t, s.Close(ctx), test.ShouldBeNil)

		test.That(t, s.StartStreaming(ctx), test.ShouldBeError, ErrSessionClosed)
		test.That(t, s.StopStreaming(ctx), test.ShouldBeError, ErrSessionClosed)
		test.That(t, s.StartTracking(ctx), test.ShouldBeError, ErrSessionClosed)
		test.That(t, s.Configure(k4a.DefaultDeviceConfiguration()), test.ShouldBeError, ErrSessionClosed)
		_, err = s.AcquireCapture(ctx, 0)
		test.That(t, err, test.ShouldBeError, ErrSessionClosed)
		_, err = s.AcquireTrackedCapture(ctx, 0)
		test.That(t, err, test.ShouldBeError, ErrSessionClosed)
		_, err = s.PopTrackingResult(ctx, 0)
		test.That(t, err, test.ShouldBeError, ErrSessionClosed)
		test.That(t, s.NextFrame(ctx, 0), test.ShouldBeError, ErrSessionClosed)
		test.That(t, s.SerialNumber(ctx), test.ShouldEqual, UnknownSerialNumber)
	})
}
