package device

import (
	"encoding/binary"
	"image"
	"image/color"

	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"

	"go.viam.com/kinect/k4a"
)

// DepthImage is a decoded depth image. Samples are millimetres, zero means no reading.
// Pixel (x, y) is Data[y*Width+x].
type DepthImage struct {
	Width  int
	Height int
	Data   []uint16
}

// At returns the depth at (x, y).
func (d *DepthImage) At(x, y int) uint16 {
	return d.Data[y*d.Width+x]
}

// ToGray16 returns the depth image as an image.Gray16 with one gray level per millimetre.
func (d *DepthImage) ToGray16() *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, d.Width, d.Height))
	for y := 0; y < d.Height; y++ {
		for x := 0; x < d.Width; x++ {
			img.SetGray16(x, y, color.Gray16{Y: d.At(x, y)})
		}
	}
	return img
}

// DepthStats summarizes the valid (non-zero) samples of a depth image.
type DepthStats struct {
	Valid  int
	Min    uint16
	Max    uint16
	Mean   float64
	Median float64
}

// Stats computes DepthStats. It fails if the image has no valid samples.
func (d *DepthImage) Stats() (DepthStats, error) {
	valid := make(stats.Float64Data, 0, len(d.Data))
	for _, v := range d.Data {
		if v != 0 {
			valid = append(valid, float64(v))
		}
	}
	if len(valid) == 0 {
		return DepthStats{}, errors.New("depth image has no valid samples")
	}

	minV, err := valid.Min()
	if err != nil {
		return DepthStats{}, err
	}
	maxV, err := valid.Max()
	if err != nil {
		return DepthStats{}, err
	}
	mean, err := valid.Mean()
	if err != nil {
		return DepthStats{}, err
	}
	median, err := valid.Median()
	if err != nil {
		return DepthStats{}, err
	}
	return DepthStats{
		Valid:  len(valid),
		Min:    uint16(minV),
		Max:    uint16(maxV),
		Mean:   mean,
		Median: median,
	}, nil
}

// DecodeDepth16 interprets b as little-endian 16 bit samples. N bytes yield N/2 samples; an odd
// length is rejected.
func DecodeDepth16(b []byte) ([]uint16, error) {
	if len(b)%2 != 0 {
		return nil, errors.Wrapf(ErrMalformedDepthBuffer, "odd buffer length %d", len(b))
	}
	out := make([]uint16, len(b)/2)
	decodeDepth16Into(out, b)
	return out, nil
}

func decodeDepth16Into(dst []uint16, src []byte) {
	for i := range dst {
		dst[i] = binary.LittleEndian.Uint16(src[2*i:])
	}
}

// copyDepthImage copies the image out of native memory, dropping row padding. The returned
// image shares nothing with the native buffer, so img may be released right after.
func copyDepthImage(p k4a.Provider, img k4a.ImageHandle) (*DepthImage, error) {
	height := p.ImageGetHeightPixels(img)
	width := p.ImageGetWidthPixels(img)
	stride := p.ImageGetStrideBytes(img)
	size := p.ImageGetSize(img)
	buf := p.ImageGetBuffer(img)

	rowBytes := width * 2
	switch {
	case width <= 0 || height <= 0:
		return nil, errors.Wrapf(ErrMalformedDepthBuffer, "bad dimensions %dx%d", width, height)
	case stride < rowBytes:
		return nil, errors.Wrapf(ErrMalformedDepthBuffer, "stride %d shorter than a %d pixel row", stride, width)
	case size < stride*(height-1)+rowBytes || len(buf) < size:
		return nil, errors.Wrapf(ErrMalformedDepthBuffer,
			"%d byte buffer (reported %d) too small for %dx%d at stride %d", len(buf), size, width, height, stride)
	}

	out := &DepthImage{Width: width, Height: height, Data: make([]uint16, width*height)}
	if stride == rowBytes {
		decodeDepth16Into(out.Data, buf[:rowBytes*height])
		return out, nil
	}
	for y := 0; y < height; y++ {
		decodeDepth16Into(out.Data[y*width:(y+1)*width], buf[y*stride:y*stride+rowBytes])
	}
	return out, nil
}
