package device

import (
	"errors"
	"testing"

	"go.viam.com/test"
)

func TestDecodeDepth16(t *testing.T) {
	t.Run("little endian samples", func(t *testing.T) {
		samples, err := DecodeDepth16([]byte{0x01, 0x00, 0xE8, 0x03, 0xFF, 0xFF})
		test.That(t, err, test.ShouldBeNil)
		test.That(t, samples, test.ShouldResemble, []uint16{1, 1000, 65535})
	})

	t.Run("N bytes give N/2 samples", func(t *testing.T) {
		for _, n := range []int{0, 2, 8, 1280} {
			samples, err := DecodeDepth16(make([]byte, n))
			test.That(t, err, test.ShouldBeNil)
			test.That(t, len(samples), test.ShouldEqual, n/2)
		}
	})

	t.Run("decoding twice gives the same samples", func(t *testing.T) {
		buf := []byte{0x10, 0x20, 0x30, 0x40}
		first, err := DecodeDepth16(buf)
		test.That(t, err, test.ShouldBeNil)
		second, err := DecodeDepth16(buf)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, second, test.ShouldResemble, first)

		first[0] = 0
		test.That(t, second[0], test.ShouldEqual, uint16(0x2010))
	})

	t.Run("odd length", func(t *testing.T) {
		_, err := DecodeDepth16([]byte{1, 2, 3})
		test.That(t, errors.Is(err, ErrMalformedDepthBuffer), test.ShouldBeTrue)
	})
}

func TestDepthImage(t *testing.T) {
	img := &DepthImage{Width: 3, Height: 2, Data: []uint16{0, 500, 1000, 1500, 0, 2000}}

	test.That(t, img.At(1, 0), test.ShouldEqual, uint16(500))
	test.That(t, img.At(2, 1), test.ShouldEqual, uint16(2000))

	gray := img.ToGray16()
	test.That(t, gray.Bounds().Dx(), test.ShouldEqual, 3)
	test.That(t, gray.Bounds().Dy(), test.ShouldEqual, 2)
	test.That(t, gray.Gray16At(0, 1).Y, test.ShouldEqual, uint16(1500))

	st, err := img.Stats()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, st.Valid, test.ShouldEqual, 4)
	test.That(t, st.Min, test.ShouldEqual, uint16(500))
	test.That(t, st.Max, test.ShouldEqual, uint16(2000))
	test.That(t, st.Mean, test.ShouldAlmostEqual, 1250.0)
	test.That(t, st.Median, test.ShouldAlmostEqual, 1250.0)

	_, err = (&DepthImage{Width: 2, Height: 1, Data: []uint16{0, 0}}).Stats()
	test.That(t, err, test.ShouldNotBeNil)
}
