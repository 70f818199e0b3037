// Package fake implements an in-memory k4a.Provider that produces synthetic depth captures and
// body frames. Every native call that creates, releases or stops something is recorded so that
// tests can assert on ordering and leaks.
package fake

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/kinect/k4a"
)

// Recorded operations.
const (
	OpDeviceOpen      = "device_open"
	OpDeviceClose     = "device_close"
	OpStartCameras    = "device_start_cameras"
	OpStopCameras     = "device_stop_cameras"
	OpGetCapture      = "device_get_capture"
	OpTrackerCreate   = "tracker_create"
	OpTrackerEnqueue  = "tracker_enqueue_capture"
	OpTrackerPop      = "tracker_pop_result"
	OpTrackerShutdown = "tracker_shutdown"
	OpTrackerDestroy  = "tracker_destroy"
	OpGetDepthImage   = "capture_get_depth_image"
	OpCaptureRelease  = "capture_release"
	OpImageRelease    = "image_release"
	OpFrameRelease    = "frame_release"
)

// Event is one recorded native call.
type Event struct {
	Op     string
	Handle uintptr
}

func (e Event) String() string {
	return fmt.Sprintf("%s(%d)", e.Op, e.Handle)
}

// poison overwrites released image memory so that views kept past release are detectable.
const poison = 0xEE

type device struct {
	index     uint32
	streaming bool
	config    k4a.DeviceConfiguration
}

type capture struct {
	seq       uint64
	timestamp time.Duration
	width     int
	height    int
	hasDepth  bool
}

type image struct {
	width, height, stride int
	buf                   []byte
}

type tracker struct {
	calibration k4a.Calibration
	shutdown    bool
	pending     []*capture
}

type frame struct {
	source *capture
	bodies int
}

// Provider is a fake sensor. Exported fields configure behavior and must be set before the
// provider is shared between goroutines.
type Provider struct {
	// Devices is the number of installed devices.
	Devices uint32
	// Serial is returned by DeviceGetSerialnum without the trailing NUL.
	Serial []byte
	// OpenResult, StartResult, CalibrationResult and TrackerCreateResult force failures.
	OpenResult          k4a.Result
	StartResult         k4a.Result
	CalibrationResult   k4a.Result
	TrackerCreateResult k4a.Result
	// DepthWidth and DepthHeight override the resolution of the configured depth mode.
	DepthWidth, DepthHeight int
	// DepthStride overrides the row pitch in bytes; rows are padded with 0xFF.
	DepthStride int
	// NoDepthImage makes captures come without a depth image.
	NoDepthImage bool
	// TrackerQueueSize bounds the captures a tracker holds before enqueue times out.
	TrackerQueueSize int
	// BodiesPerFrame is the number of bodies in every tracking result.
	BodiesPerFrame int
	// ReleaseErr, if set, is returned by every release call after the release happened.
	ReleaseErr error

	clock clock.Clock

	mu              sync.Mutex
	notify          chan struct{}
	framesAvailable int
	nextHandle      uintptr
	seq             uint64
	start           time.Time
	events          []Event

	devices  map[k4a.DeviceHandle]*device
	captures map[k4a.CaptureHandle]*capture
	images   map[k4a.ImageHandle]*image
	trackers map[k4a.TrackerHandle]*tracker
	frames   map[k4a.FrameHandle]*frame
}

// NewProvider returns a provider with one installed device that streams frames without limit.
// A nil clock uses the wall clock.
func NewProvider(clk clock.Clock) *Provider {
	if clk == nil {
		clk = clock.New()
	}
	return &Provider{
		Devices:          1,
		Serial:           []byte(serialFromUUID(uuid.New())),
		TrackerQueueSize: 3,
		BodiesPerFrame:   1,
		clock:            clk,
		notify:           make(chan struct{}),
		framesAvailable:  -1,
		start:            clk.Now(),
		devices:          map[k4a.DeviceHandle]*device{},
		captures:         map[k4a.CaptureHandle]*capture{},
		images:           map[k4a.ImageHandle]*image{},
		trackers:         map[k4a.TrackerHandle]*tracker{},
		frames:           map[k4a.FrameHandle]*frame{},
	}
}

// serialFromUUID derives a 12 digit serial like the ones printed on devices.
func serialFromUUID(id uuid.UUID) string {
	return fmt.Sprintf("%012d", binary.BigEndian.Uint64(id[:8])%1_000_000_000_000)
}

// SetFramesAvailable limits the number of captures that can be acquired. Negative means
// unlimited, zero makes every acquisition wait.
func (p *Provider) SetFramesAvailable(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.framesAvailable = n
	p.wakeLocked()
}

// AddFrames makes n more captures available and wakes blocked waiters.
func (p *Provider) AddFrames(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.framesAvailable >= 0 {
		p.framesAvailable += n
	}
	p.wakeLocked()
}

// Events returns a copy of the recorded native calls in call order.
func (p *Provider) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Event(nil), p.events...)
}

// Ops returns the recorded operations, optionally filtered to the given set.
func (p *Provider) Ops(filter ...string) []string {
	keep := map[string]bool{}
	for _, op := range filter {
		keep[op] = true
	}
	var ops []string
	for _, e := range p.Events() {
		if len(keep) == 0 || keep[e.Op] {
			ops = append(ops, e.Op)
		}
	}
	return ops
}

// Outstanding reports the number of live handles of each kind.
type Outstanding struct {
	Devices, Captures, Images, Trackers, Frames int
}

// Outstanding returns the handles that have been created and not released.
func (p *Provider) Outstanding() Outstanding {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Outstanding{
		Devices:  len(p.devices),
		Captures: len(p.captures),
		Images:   len(p.images),
		Trackers: len(p.trackers),
		Frames:   len(p.frames),
	}
}

func (p *Provider) wakeLocked() {
	close(p.notify)
	p.notify = make(chan struct{})
}

func (p *Provider) recordLocked(op string, handle uintptr) {
	p.events = append(p.events, Event{Op: op, Handle: handle})
}

func (p *Provider) newHandleLocked() uintptr {
	p.nextHandle++
	return p.nextHandle
}

func (p *Provider) releaseErr(kind string, handle uintptr, found bool) error {
	if !found {
		return errors.Errorf("release of unknown or already released %s %d", kind, handle)
	}
	return p.ReleaseErr
}

// wait blocks until the provider is woken or the timeout elapses. It returns false on timeout.
// The timer must have been created before the caller last checked its condition.
func (p *Provider) wait(notify <-chan struct{}, deadline <-chan time.Time) bool {
	select {
	case <-notify:
		return true
	case <-deadline:
		return false
	}
}

func (p *Provider) deadline(timeoutMS int32) (<-chan time.Time, func()) {
	if timeoutMS <= 0 {
		return nil, func() {}
	}
	timer := p.clock.Timer(time.Duration(timeoutMS) * time.Millisecond)
	return timer.C, func() { timer.Stop() }
}

// InstalledCount returns Devices.
func (p *Provider) InstalledCount() uint32 {
	return p.Devices
}

// DeviceOpen opens device index exclusively.
func (p *Provider) DeviceOpen(index uint32) (k4a.DeviceHandle, k4a.Result) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.OpenResult != k4a.ResultSucceeded || index >= p.Devices {
		return 0, k4a.ResultFailed
	}
	for _, d := range p.devices {
		if d.index == index {
			return 0, k4a.ResultFailed
		}
	}
	h := k4a.DeviceHandle(p.newHandleLocked())
	p.devices[h] = &device{index: index}
	p.recordLocked(OpDeviceOpen, uintptr(h))
	return h, k4a.ResultSucceeded
}

// DeviceClose closes the device.
func (p *Provider) DeviceClose(dev k4a.DeviceHandle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.devices[dev]
	delete(p.devices, dev)
	p.recordLocked(OpDeviceClose, uintptr(dev))
	p.wakeLocked()
	return p.releaseErr("device", uintptr(dev), ok)
}

// DeviceStartCameras starts streaming with config.
func (p *Provider) DeviceStartCameras(dev k4a.DeviceHandle, config k4a.DeviceConfiguration) k4a.Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	d, ok := p.devices[dev]
	if !ok || d.streaming || p.StartResult != k4a.ResultSucceeded || config.Validate() != nil {
		return k4a.ResultFailed
	}
	d.streaming = true
	d.config = config
	p.recordLocked(OpStartCameras, uintptr(dev))
	return k4a.ResultSucceeded
}

// DeviceStopCameras stops streaming.
func (p *Provider) DeviceStopCameras(dev k4a.DeviceHandle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	d, ok := p.devices[dev]
	if ok {
		d.streaming = false
	}
	p.recordLocked(OpStopCameras, uintptr(dev))
	p.wakeLocked()
	if !ok {
		return errors.Errorf("stop cameras on unknown device %d", dev)
	}
	return nil
}

// DeviceGetCapture returns the next synthetic capture.
func (p *Provider) DeviceGetCapture(dev k4a.DeviceHandle, timeoutMS int32) (k4a.CaptureHandle, k4a.WaitResult) {
	deadline, stop := p.deadline(timeoutMS)
	defer stop()
	for {
		p.mu.Lock()
		d, ok := p.devices[dev]
		if !ok || !d.streaming {
			p.mu.Unlock()
			return 0, k4a.WaitFailed
		}
		if p.framesAvailable != 0 {
			if p.framesAvailable > 0 {
				p.framesAvailable--
			}
			h := p.newCaptureLocked(d)
			p.mu.Unlock()
			return h, k4a.WaitSucceeded
		}
		notify := p.notify
		p.mu.Unlock()

		if timeoutMS == 0 || !p.wait(notify, deadline) {
			return 0, k4a.WaitTimeout
		}
	}
}

func (p *Provider) newCaptureLocked(d *device) k4a.CaptureHandle {
	p.seq++
	width, height := d.config.DepthMode.Resolution()
	if p.DepthWidth > 0 && p.DepthHeight > 0 {
		width, height = p.DepthWidth, p.DepthHeight
	}
	c := &capture{
		seq:       p.seq,
		timestamp: p.clock.Since(p.start),
		width:     width,
		height:    height,
		hasDepth:  !p.NoDepthImage && d.config.DepthMode.ProducesDepth(),
	}
	h := k4a.CaptureHandle(p.newHandleLocked())
	p.captures[h] = c
	p.recordLocked(OpGetCapture, uintptr(h))
	return h
}

// DepthSample is the value the fake writes at (x, y) of the depth image of capture seq.
func DepthSample(seq uint64, width, x, y int) uint16 {
	return uint16(seq*31 + uint64(y*width+x))
}

// DeviceGetSerialnum implements the two-phase serial query. The reported size includes the
// trailing NUL.
func (p *Provider) DeviceGetSerialnum(dev k4a.DeviceHandle, buf []byte) (int, k4a.BufferResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.devices[dev]; !ok {
		return 0, k4a.BufferFailed
	}
	size := len(p.Serial) + 1
	if len(buf) < size {
		return size, k4a.BufferTooSmall
	}
	copy(buf, p.Serial)
	buf[len(p.Serial)] = 0
	return size, k4a.BufferSucceeded
}

// DeviceGetCalibration returns a calibration tagged with the requested modes.
func (p *Provider) DeviceGetCalibration(
	dev k4a.DeviceHandle,
	depthMode k4a.DepthMode,
	colorResolution k4a.ColorResolution,
) (k4a.Calibration, k4a.Result) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.devices[dev]; !ok || p.CalibrationResult != k4a.ResultSucceeded {
		return k4a.Calibration{}, k4a.ResultFailed
	}
	if depthMode == k4a.DepthModeOff && colorResolution == k4a.ColorResolutionOff {
		return k4a.Calibration{}, k4a.ResultFailed
	}
	width, height := depthMode.Resolution()
	return k4a.Calibration{
		DepthMode:       depthMode,
		ColorResolution: colorResolution,
		DepthWidth:      width,
		DepthHeight:     height,
		Raw:             []byte(fmt.Sprintf("fake-calibration:%s:%s", depthMode, colorResolution)),
	}, k4a.ResultSucceeded
}

// TrackerCreate creates a tracker bound to calibration.
func (p *Provider) TrackerCreate(calibration k4a.Calibration, _ k4a.TrackerConfiguration) (k4a.TrackerHandle, k4a.Result) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.TrackerCreateResult != k4a.ResultSucceeded || len(calibration.Raw) == 0 {
		return 0, k4a.ResultFailed
	}
	h := k4a.TrackerHandle(p.newHandleLocked())
	p.trackers[h] = &tracker{calibration: calibration}
	p.recordLocked(OpTrackerCreate, uintptr(h))
	return h, k4a.ResultSucceeded
}

// TrackerEnqueueCapture queues a capture for inference. A full queue never drains by itself
// in the fake, so it reports a timeout without waiting.
func (p *Provider) TrackerEnqueueCapture(trk k4a.TrackerHandle, capt k4a.CaptureHandle, _ int32) k4a.WaitResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.trackers[trk]
	c, cok := p.captures[capt]
	if !ok || !cok || t.shutdown {
		return k4a.WaitFailed
	}
	if len(t.pending) >= p.TrackerQueueSize {
		return k4a.WaitTimeout
	}
	t.pending = append(t.pending, c)
	p.recordLocked(OpTrackerEnqueue, uintptr(capt))
	p.wakeLocked()
	return k4a.WaitSucceeded
}

// TrackerPopResult returns the result for the oldest enqueued capture.
func (p *Provider) TrackerPopResult(trk k4a.TrackerHandle, timeoutMS int32) (k4a.FrameHandle, k4a.WaitResult) {
	deadline, stop := p.deadline(timeoutMS)
	defer stop()
	for {
		p.mu.Lock()
		t, ok := p.trackers[trk]
		if !ok || (t.shutdown && len(t.pending) == 0) {
			p.mu.Unlock()
			return 0, k4a.WaitFailed
		}
		if len(t.pending) > 0 {
			source := t.pending[0]
			t.pending = t.pending[1:]
			h := k4a.FrameHandle(p.newHandleLocked())
			p.frames[h] = &frame{source: source, bodies: p.BodiesPerFrame}
			p.recordLocked(OpTrackerPop, uintptr(h))
			p.mu.Unlock()
			return h, k4a.WaitSucceeded
		}
		notify := p.notify
		p.mu.Unlock()

		if timeoutMS == 0 || !p.wait(notify, deadline) {
			return 0, k4a.WaitTimeout
		}
	}
}

// TrackerShutdown stops accepting captures and wakes pending pops.
func (p *Provider) TrackerShutdown(trk k4a.TrackerHandle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.trackers[trk]
	if ok {
		t.shutdown = true
	}
	p.recordLocked(OpTrackerShutdown, uintptr(trk))
	p.wakeLocked()
	if !ok {
		return errors.Errorf("shutdown of unknown tracker %d", trk)
	}
	return nil
}

// TrackerDestroy releases the tracker.
func (p *Provider) TrackerDestroy(trk k4a.TrackerHandle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.trackers[trk]
	delete(p.trackers, trk)
	p.recordLocked(OpTrackerDestroy, uintptr(trk))
	return p.releaseErr("tracker", uintptr(trk), ok)
}

// CaptureGetDepthImage returns a new image reference holding the synthetic depth samples.
func (p *Provider) CaptureGetDepthImage(capt k4a.CaptureHandle) k4a.ImageHandle {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.captures[capt]
	if !ok || !c.hasDepth {
		return 0
	}
	stride := c.width * 2
	if p.DepthStride > stride {
		stride = p.DepthStride
	}
	buf := make([]byte, stride*c.height)
	for y := 0; y < c.height; y++ {
		row := buf[y*stride : (y+1)*stride]
		for x := 0; x < c.width; x++ {
			binary.LittleEndian.PutUint16(row[2*x:], DepthSample(c.seq, c.width, x, y))
		}
		for i := c.width * 2; i < stride; i++ {
			row[i] = 0xFF
		}
	}
	h := k4a.ImageHandle(p.newHandleLocked())
	p.images[h] = &image{width: c.width, height: c.height, stride: stride, buf: buf}
	p.recordLocked(OpGetDepthImage, uintptr(h))
	return h
}

// CaptureRelease releases the capture.
func (p *Provider) CaptureRelease(capt k4a.CaptureHandle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.captures[capt]
	delete(p.captures, capt)
	p.recordLocked(OpCaptureRelease, uintptr(capt))
	return p.releaseErr("capture", uintptr(capt), ok)
}

func (p *Provider) lookupImage(img k4a.ImageHandle) *image {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i, ok := p.images[img]; ok {
		return i
	}
	return &image{}
}

// ImageGetHeightPixels returns the image height.
func (p *Provider) ImageGetHeightPixels(img k4a.ImageHandle) int {
	return p.lookupImage(img).height
}

// ImageGetWidthPixels returns the image width.
func (p *Provider) ImageGetWidthPixels(img k4a.ImageHandle) int {
	return p.lookupImage(img).width
}

// ImageGetStrideBytes returns the row pitch.
func (p *Provider) ImageGetStrideBytes(img k4a.ImageHandle) int {
	return p.lookupImage(img).stride
}

// ImageGetSize returns the buffer size in bytes.
func (p *Provider) ImageGetSize(img k4a.ImageHandle) int {
	return len(p.lookupImage(img).buf)
}

// ImageGetBuffer returns the image memory itself, not a copy.
func (p *Provider) ImageGetBuffer(img k4a.ImageHandle) []byte {
	return p.lookupImage(img).buf
}

// ImageRelease releases the image and poisons its memory.
func (p *Provider) ImageRelease(img k4a.ImageHandle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	i, ok := p.images[img]
	if ok {
		for idx := range i.buf {
			i.buf[idx] = poison
		}
	}
	delete(p.images, img)
	p.recordLocked(OpImageRelease, uintptr(img))
	return p.releaseErr("image", uintptr(img), ok)
}

func (p *Provider) lookupFrame(f k4a.FrameHandle) (*frame, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fr, ok := p.frames[f]
	return fr, ok
}

// FrameGetNumBodies returns BodiesPerFrame at the time of the pop.
func (p *Provider) FrameGetNumBodies(f k4a.FrameHandle) uint32 {
	fr, ok := p.lookupFrame(f)
	if !ok {
		return 0
	}
	return uint32(fr.bodies)
}

// FrameGetBodyID returns index+1.
func (p *Provider) FrameGetBodyID(f k4a.FrameHandle, index uint32) uint32 {
	fr, ok := p.lookupFrame(f)
	if !ok || int(index) >= fr.bodies {
		return 0
	}
	return index + 1
}

// FrameGetBodySkeleton returns a synthetic skeleton: joint j of body b of capture seq sits at
// (10j, 100b, 1000+seq) mm with identity orientation.
func (p *Provider) FrameGetBodySkeleton(f k4a.FrameHandle, index uint32) (k4a.Skeleton, k4a.Result) {
	fr, ok := p.lookupFrame(f)
	if !ok || int(index) >= fr.bodies {
		return k4a.Skeleton{}, k4a.ResultFailed
	}
	var skel k4a.Skeleton
	for j := range skel.Joints {
		skel.Joints[j] = k4a.JointPose{
			Position:    r3.Vector{X: float64(10 * j), Y: float64(100 * index), Z: float64(1000 + fr.source.seq)},
			Orientation: quat.Number{Real: 1},
			Confidence:  k4a.ConfidenceMedium,
		}
	}
	return skel, k4a.ResultSucceeded
}

// FrameGetDeviceTimestampUsec returns the source capture's time since the provider was made.
func (p *Provider) FrameGetDeviceTimestampUsec(f k4a.FrameHandle) uint64 {
	fr, ok := p.lookupFrame(f)
	if !ok {
		return 0
	}
	return uint64(fr.source.timestamp.Microseconds())
}

// FrameRelease releases the frame.
func (p *Provider) FrameRelease(f k4a.FrameHandle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.frames[f]
	delete(p.frames, f)
	p.recordLocked(OpFrameRelease, uintptr(f))
	return p.releaseErr("frame", uintptr(f), ok)
}

var _ k4a.Provider = (*Provider)(nil)
