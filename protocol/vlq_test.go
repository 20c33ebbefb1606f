package protocol

import (
	"testing"

	"go.viam.com/test"
)

func TestVLQIntRoundTrip(t *testing.T) {
	for _, v := range []int32{
		0, 1, -1, 31, -32, 95, 96, -33, 127, -127, 128, -128,
		1000, -1000, 65535, -65535, 1000000, -1000000, 1 << 30, -(1 << 30),
	} {
		output := NewScratchOutput()
		EncodeVLQInt(output, v)
		data := output.Result()

		got, err := DecodeVLQInt(&data)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, got, test.ShouldEqual, v)
		test.That(t, data, test.ShouldBeEmpty)
	}
}

func TestVLQUintRoundTrip(t *testing.T) {
	for _, v := range []uint32{0, 1, 127, 128, 255, 1000, 65535, 1000000, 0xFFFFFFFF} {
		output := NewScratchOutput()
		EncodeVLQUint(output, v)
		data := output.Result()

		got, err := DecodeVLQUint(&data)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, got, test.ShouldEqual, v)
	}
}

func TestVLQEncoding(t *testing.T) {
	for _, tc := range []struct {
		v    int32
		want []byte
	}{
		{0, []byte{0x00}},
		{95, []byte{0x5F}},
		{96, []byte{0x80, 0x60}},
		{-1, []byte{0x7F}},
		{-32, []byte{0x60}},
		{-33, []byte{0xFF, 0x5F}},
	} {
		output := NewScratchOutput()
		EncodeVLQInt(output, tc.v)
		test.That(t, output.Result(), test.ShouldResemble, tc.want)
	}
}

func TestVLQTruncated(t *testing.T) {
	var data []byte
	_, err := DecodeVLQInt(&data)
	test.That(t, err, test.ShouldEqual, ErrBufferTooSmall)

	data = []byte{0x80}
	_, err = DecodeVLQInt(&data)
	test.That(t, err, test.ShouldEqual, ErrBufferTooSmall)
	test.That(t, data, test.ShouldResemble, []byte{0x80})
}

func TestVLQBytes(t *testing.T) {
	output := NewScratchOutput()
	EncodeVLQBytes(output, []byte{0xDE, 0xAD})
	EncodeVLQString(output, "spi")
	EncodeVLQUint(output, 7)
	data := output.Result()

	b, err := DecodeVLQBytes(&data)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, b, test.ShouldResemble, []byte{0xDE, 0xAD})

	s, err := DecodeVLQString(&data)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, s, test.ShouldEqual, "spi")

	v, err := DecodeVLQUint(&data)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, v, test.ShouldEqual, uint32(7))

	short := []byte{0x05, 0x01}
	_, err = DecodeVLQBytes(&short)
	test.That(t, err, test.ShouldEqual, ErrBufferTooSmall)
}
