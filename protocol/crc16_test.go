package protocol

import (
	"testing"

	"go.viam.com/test"
)

func TestCRC16(t *testing.T) {
	test.That(t, CRC16(nil), test.ShouldEqual, uint16(0xFFFF))
	test.That(t, CRC16([]byte("123456789")), test.ShouldEqual, uint16(0x6F91))
	test.That(t, CRC16([]byte{5, MessageDest}), test.ShouldEqual, uint16(0x9E81))
	test.That(t, CRC16([]byte{1, 2, 3}), test.ShouldNotEqual, CRC16([]byte{1, 2, 4}))
}
