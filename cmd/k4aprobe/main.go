// Package main opens a depth sensor, streams captures through a bounded queue and reports depth
// statistics and tracked bodies for each one.
package main

import (
	"context"
	"fmt"
	"image/png"
	"log"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.viam.com/utils"

	"go.viam.com/kinect/device"
	"go.viam.com/kinect/k4a"
	"go.viam.com/kinect/k4a/fake"
	"go.viam.com/kinect/k4a/native"
	"go.viam.com/kinect/logging"
)

const (
	flagDevice   = "device"
	flagFake     = "fake"
	flagFrames   = "frames"
	flagQueue    = "queue"
	flagTimeout  = "timeout"
	flagTracking = "tracking"
	flagConfig   = "config"
	flagDepthPNG = "depth-png"
	flagDebug    = "debug"
	flagLogFile  = "log-file"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "k4aprobe",
		Usage: "stream captures from a depth sensor and report what they contain",
		Flags: []cli.Flag{
			&cli.UintFlag{
				Name:  flagDevice,
				Usage: "index of the device to open",
			},
			&cli.BoolFlag{
				Name:  flagFake,
				Usage: "use a synthetic sensor instead of the SDK",
			},
			&cli.IntFlag{
				Name:  flagFrames,
				Value: 10,
				Usage: "number of captures to acquire",
			},
			&cli.IntFlag{
				Name:  flagQueue,
				Value: 2,
				Usage: "captures to keep before the oldest is dropped",
			},
			&cli.DurationFlag{
				Name:  flagTimeout,
				Value: time.Second,
				Usage: "how long to wait for each capture, negative waits forever",
			},
			&cli.BoolFlag{
				Name:  flagTracking,
				Usage: "run body tracking on every capture",
			},
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "load device configuration from JSON `FILE`",
			},
			&cli.StringFlag{
				Name:  flagDepthPNG,
				Usage: "write the last depth image to `FILE` as a 16 bit PNG",
			},
			&cli.BoolFlag{
				Name:  flagDebug,
				Usage: "enable debug logging",
			},
			&cli.StringFlag{
				Name:  flagLogFile,
				Usage: "also write logs to `FILE`, rotated at 10MB",
			},
		},
		Action: probe,
	}
}

func probe(c *cli.Context) error {
	logger := logging.NewLogger("k4aprobe")
	ctx := c.Context
	if c.Bool(flagDebug) {
		logger.SetLevel(logging.DEBUG)
		ctx = logging.EnableDebugMode(ctx, "")
	}
	if path := c.String(flagLogFile); path != "" {
		appender := logging.NewFileAppender(path, 10, 3)
		logger.AddAppender(appender)
		defer func() {
			utils.UncheckedError(appender.Close())
		}()
	}

	provider, err := newProvider(c.Bool(flagFake))
	if err != nil {
		return err
	}

	session, err := device.Open(ctx, provider, uint32(c.Uint(flagDevice)), logger)
	if err != nil {
		return err
	}
	defer func() {
		utils.UncheckedError(session.Close(context.Background()))
	}()

	if path := c.String(flagConfig); path != "" {
		if err := configure(session, path); err != nil {
			return err
		}
	}
	fmt.Fprintf(c.App.Writer, "serial: %s\n", session.SerialNumber(ctx))

	if err := session.StartStreaming(ctx); err != nil {
		return err
	}
	if c.Bool(flagTracking) {
		if err := session.StartTracking(ctx); err != nil {
			return err
		}
	}

	var last *device.DepthImage
	for i := 0; i < c.Int(flagFrames); i++ {
		img, err := step(ctx, c, session)
		if errors.Is(err, device.ErrWaitTimeout) {
			logger.Warnw("skipping frame", "frame", i, "error", err)
			continue
		}
		if err != nil {
			return err
		}
		last = img
	}

	if path := c.String(flagDepthPNG); path != "" && last != nil {
		return writeDepthPNG(path, last)
	}
	return nil
}

func newProvider(useFake bool) (k4a.Provider, error) {
	if useFake {
		return fake.NewProvider(nil), nil
	}
	return native.New()
}

func configure(session *device.Session, path string) error {
	cfg, err := device.ReadConfigFile(path)
	if err != nil {
		return err
	}
	devCfg, err := cfg.DeviceConfiguration()
	if err != nil {
		return err
	}
	trkCfg, err := cfg.TrackerConfiguration()
	if err != nil {
		return err
	}
	session.ConfigureTracker(trkCfg)
	return session.Configure(devCfg)
}

// step acquires one capture into the session queue, trims the queue to its depth and reports on
// the newest capture.
func step(ctx context.Context, c *cli.Context, session *device.Session) (*device.DepthImage, error) {
	timeout := c.Duration(flagTimeout)
	queue := session.Captures()

	acquire := session.AcquireCapture
	if c.Bool(flagTracking) {
		acquire = session.AcquireTrackedCapture
	}
	capture, err := acquire(ctx, timeout)
	if err != nil {
		return nil, err
	}
	queue.Push(capture)
	for queue.Len() > c.Int(flagQueue) && queue.Len() > 1 {
		if err := session.DropOldestCapture(); err != nil {
			return nil, err
		}
	}

	img, err := capture.DepthImage(ctx)
	if err != nil {
		return nil, err
	}
	out := c.App.Writer
	if st, err := img.Stats(); err == nil {
		fmt.Fprintf(out, "capture %d: %dx%d depth, %d valid, min %dmm max %dmm median %.0fmm\n",
			capture.Seq(), img.Width, img.Height, st.Valid, st.Min, st.Max, st.Median)
	} else {
		fmt.Fprintf(out, "capture %d: %dx%d depth, no valid samples\n", capture.Seq(), img.Width, img.Height)
	}

	if c.Bool(flagTracking) {
		frame, err := session.PopTrackingResult(ctx, timeout)
		if err != nil {
			return img, err
		}
		if err := capture.AttachFrame(frame); err != nil {
			utils.UncheckedError(frame.Close())
			return img, err
		}
		bodies, err := frame.Bodies()
		if err != nil {
			return img, err
		}
		for _, body := range bodies {
			pelvis := body.Skeleton.Joint(k4a.JointPelvis)
			fmt.Fprintf(out, "  body %d at %.0f,%.0f,%.0f (%s) t=%s\n",
				body.ID, pelvis.Position.X, pelvis.Position.Y, pelvis.Position.Z, pelvis.Confidence, frame.Timestamp())
		}
	}
	return img, nil
}

func writeDepthPNG(path string, img *device.DepthImage) error {
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create depth image file")
	}
	if err := png.Encode(f, img.ToGray16()); err != nil {
		utils.UncheckedError(f.Close())
		return errors.Wrap(err, "encode depth image")
	}
	return f.Close()
}
