//go:build rp2040 || rp2350

package main

import (
	"machine"
	"time"
)

// usbStream is the host link on USB CDC. Read blocks until data arrives,
// yielding to other goroutines while the buffer is empty.
type usbStream struct{}

// InitUSB configures the CDC endpoint. Descriptors come from the runtime.
func InitUSB() usbStream {
	_ = machine.Serial.Configure(machine.UARTConfig{})
	return usbStream{}
}

func (usbStream) Read(p []byte) (int, error) {
	for machine.Serial.Buffered() == 0 {
		time.Sleep(100 * time.Microsecond)
	}
	n := 0
	for n < len(p) && machine.Serial.Buffered() > 0 {
		b, err := machine.Serial.ReadByte()
		if err != nil {
			return n, err
		}
		p[n] = b
		n++
	}
	return n, nil
}

func (usbStream) Write(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		n, err := machine.Serial.Write(p[written:])
		if err != nil {
			return written, err
		}
		if n == 0 {
			// Host not reading; drop rather than stall the command loop.
			return written, errUSBStalled
		}
		written += n
	}
	return written, nil
}
