package spi

import (
	"time"

	"github.com/benbjohnson/clock"
)

// OutputPin is a digital output line used for chip select, clock and data
// out. machine.Pin satisfies it on TinyGo targets.
type OutputPin interface {
	Set(high bool)
}

// InputPin is a digital input line used for data in.
type InputPin interface {
	Get() bool
}

// NoSelect is an output that ignores writes. It is used for buses whose chip
// select is managed by the peripheral.
var NoSelect OutputPin = noPin{}

type noPin struct{}

func (noPin) Set(bool) {}

// Inverted drives the wrapped pin with the opposite level. Wrapping a chip
// select in Inverted makes it active high.
type Inverted struct {
	Pin OutputPin
}

// Set drives the wrapped pin to !high.
func (i Inverted) Set(high bool) {
	i.Pin.Set(!high)
}

// Delayer blocks the caller for a number of nanoseconds.
type Delayer interface {
	WaitNanos(ns uint32)
}

// DelayFunc adapts a function to the Delayer interface.
type DelayFunc func(ns uint32)

// WaitNanos calls f(ns).
func (f DelayFunc) WaitNanos(ns uint32) {
	f(ns)
}

// SleepDelay waits with time.Sleep.
var SleepDelay Delayer = DelayFunc(func(ns uint32) {
	time.Sleep(time.Duration(ns))
})

// ClockDelay waits on a clock.Clock so tests can drive time with a mock.
type ClockDelay struct {
	Clock clock.Clock
}

// WaitNanos sleeps on the configured clock.
func (d ClockDelay) WaitNanos(ns uint32) {
	d.Clock.Sleep(time.Duration(ns))
}
