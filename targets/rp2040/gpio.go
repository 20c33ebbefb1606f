//go:build rp2040 || rp2350

package main

import (
	"errors"
	"machine"
	"strconv"

	"spibus/core"
)

var errInvalidPin = errors.New("invalid GPIO pin")

// RPGPIODriver implements core.GPIODriver on machine.Pin.
type RPGPIODriver struct {
	configuredPins map[core.GPIOPin]machine.Pin
}

// NewRPGPIODriver returns a driver with no pins configured.
func NewRPGPIODriver() *RPGPIODriver {
	return &RPGPIODriver{
		configuredPins: make(map[core.GPIOPin]machine.Pin),
	}
}

// ConfigureOutput configures a pin as a digital output.
func (d *RPGPIODriver) ConfigureOutput(pin core.GPIOPin) error {
	machinePin, err := d.machinePin(pin)
	if err != nil {
		return err
	}
	machinePin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	d.configuredPins[pin] = machinePin
	return nil
}

// ConfigureInput configures a pin as an input with the requested bias.
func (d *RPGPIODriver) ConfigureInput(pin core.GPIOPin, pull core.GPIOPull) error {
	machinePin, err := d.machinePin(pin)
	if err != nil {
		return err
	}
	mode := machine.PinInput
	switch pull {
	case core.PullUp:
		mode = machine.PinInputPullup
	case core.PullDown:
		mode = machine.PinInputPulldown
	}
	machinePin.Configure(machine.PinConfig{Mode: mode})
	d.configuredPins[pin] = machinePin
	return nil
}

// SetPin drives a configured output.
func (d *RPGPIODriver) SetPin(pin core.GPIOPin, value bool) error {
	machinePin, ok := d.configuredPins[pin]
	if !ok {
		return errInvalidPin
	}
	machinePin.Set(value)
	return nil
}

// ReadPin reads a configured pin. Unconfigured pins read low.
func (d *RPGPIODriver) ReadPin(pin core.GPIOPin) bool {
	machinePin, ok := d.configuredPins[pin]
	if !ok {
		return false
	}
	return machinePin.Get()
}

// Pins map directly to GPIO numbers.
func (d *RPGPIODriver) machinePin(pin core.GPIOPin) (machine.Pin, error) {
	if pin >= gpioCount {
		return 0, errInvalidPin
	}
	return machine.Pin(pin), nil
}

// registerPins publishes the pin names the host uses in its configuration.
func registerPins() {
	names := make([]string, gpioCount)
	for i := range names {
		names[i] = "gpio" + strconv.Itoa(i)
	}
	core.RegisterEnumeration("pin", names)
}
