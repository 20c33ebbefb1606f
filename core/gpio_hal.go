package core

import "spibus/spi"

// GPIOPin identifies a hardware GPIO pin number.
type GPIOPin uint32

// GPIOPull selects the input bias.
type GPIOPull uint8

const (
	PullNone GPIOPull = iota
	PullUp
	PullDown
)

// GPIODriver is the abstract GPIO interface that core code uses.
// Platform-specific implementations handle actual hardware control.
type GPIODriver interface {
	// ConfigureOutput configures a pin as a digital output.
	ConfigureOutput(pin GPIOPin) error

	// ConfigureInput configures a pin as a digital input with the given bias.
	ConfigureInput(pin GPIOPin, pull GPIOPull) error

	// SetPin drives an output high (true) or low (false).
	SetPin(pin GPIOPin, value bool) error

	// ReadPin returns the level of a pin. Invalid pins read low.
	ReadPin(pin GPIOPin) bool
}

var gpioDriver GPIODriver

// SetGPIODriver is called by target-specific code to register its driver.
func SetGPIODriver(d GPIODriver) {
	gpioDriver = d
}

// MustGPIO returns the configured driver or panics if missing.
func MustGPIO() GPIODriver {
	if gpioDriver == nil {
		panic("GPIO driver not configured")
	}
	return gpioDriver
}

// DriverPin is one pin of a GPIODriver seen as a bus line. The pin must
// have been configured already; write errors are dropped.
type DriverPin struct {
	Driver GPIODriver
	Pin    GPIOPin
}

var (
	_ spi.OutputPin = DriverPin{}
	_ spi.InputPin  = DriverPin{}
)

// Set drives the pin.
func (p DriverPin) Set(high bool) {
	_ = p.Driver.SetPin(p.Pin, high)
}

// Get reads the pin.
func (p DriverPin) Get() bool {
	return p.Driver.ReadPin(p.Pin)
}

// ChipSelect configures pin as an output at its inactive level and returns
// it as a transaction select line. Transactions drive select low to assert,
// so an active-high pin is wrapped in spi.Inverted.
func ChipSelect(driver GPIODriver, pin GPIOPin, activeHigh bool) (spi.OutputPin, error) {
	if err := driver.ConfigureOutput(pin); err != nil {
		return nil, err
	}
	var sel spi.OutputPin = DriverPin{Driver: driver, Pin: pin}
	if activeHigh {
		sel = spi.Inverted{Pin: sel}
	}
	sel.Set(true)
	return sel, nil
}
