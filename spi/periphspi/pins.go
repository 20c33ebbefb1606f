// Package periphspi connects the spi package with periph.io so buses can be
// bit-banged on Linux GPIO lines or driven through spidev, and so periph
// device drivers can run over any bus.
package periphspi

import (
	"github.com/pkg/errors"
	"periph.io/x/conn/v3/gpio"

	"spibus/spi"
)

var (
	_ spi.OutputPin = (*Output)(nil)
	_ spi.InputPin  = (*Input)(nil)
)

// Output drives a periph output pin. Pin writes cannot fail through the
// spi.OutputPin contract, so the first error is kept and returned by Err.
type Output struct {
	pin gpio.PinOut
	err error
}

// NewOutput returns an Output on pin, initially at level.
func NewOutput(pin gpio.PinOut, level bool) (*Output, error) {
	if err := pin.Out(gpio.Level(level)); err != nil {
		return nil, errors.Wrapf(err, "driving %s", pin)
	}
	return &Output{pin: pin}, nil
}

// Set drives the pin high or low.
func (o *Output) Set(high bool) {
	if err := o.pin.Out(gpio.Level(high)); err != nil && o.err == nil {
		o.err = errors.Wrapf(err, "driving %s", o.pin)
	}
}

// Err returns the first failed write.
func (o *Output) Err() error {
	return o.err
}

// Input samples a periph input pin.
type Input struct {
	pin gpio.PinIn
}

// NewInput configures pin as an input with the given pull.
func NewInput(pin gpio.PinIn, pull gpio.Pull) (*Input, error) {
	if err := pin.In(pull, gpio.NoEdge); err != nil {
		return nil, errors.Wrapf(err, "configuring %s as input", pin)
	}
	return &Input{pin: pin}, nil
}

// Get reads the pin level.
func (i *Input) Get() bool {
	return i.pin.Read() == gpio.High
}
