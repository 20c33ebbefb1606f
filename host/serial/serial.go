// Package serial opens the link to a firmware board.
package serial

import (
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/tarm/serial"
)

// Port is a byte stream to the MCU. USB CDC boards ignore the baud rate.
type Port interface {
	io.ReadWriteCloser

	// Flush discards unread input.
	Flush() error
}

// Config describes a serial device.
type Config struct {
	// Device path, for example /dev/ttyACM0 or COM3.
	Device string `json:"device"`

	Baud int `json:"baud,omitempty"`

	// ReadTimeout bounds a single read. Zero blocks.
	ReadTimeout time.Duration `json:"read_timeout,omitempty"`
}

// DefaultBaud is the usual rate for UART-attached boards.
const DefaultBaud = 250000

// DefaultConfig returns a configuration for device with the default baud
// rate and a 100ms read timeout.
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        DefaultBaud,
		ReadTimeout: 100 * time.Millisecond,
	}
}

type nativePort struct {
	*serial.Port
}

// Open opens a serial device.
func Open(cfg *Config) (Port, error) {
	if cfg == nil || cfg.Device == "" {
		return nil, errors.New("serial device not set")
	}
	baud := cfg.Baud
	if baud == 0 {
		baud = DefaultBaud
	}
	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        baud,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "opening serial port %s", cfg.Device)
	}
	return nativePort{port}, nil
}
