// Package tinyspi connects the spi package with the TinyGo driver
// ecosystem. Conn lets drivers written against drivers.SPI run on any bus,
// and Port lets a drivers.SPI peripheral back a spi.Hardware bus.
package tinyspi

import (
	"errors"

	"tinygo.org/x/drivers"

	"spibus/spi"
)

// ErrLengthMismatch is returned by Tx when both buffers are given with
// different lengths.
var ErrLengthMismatch = errors.New("tinyspi: tx and rx buffers differ in length")

var _ drivers.SPI = (*Conn)(nil)

// Conn exposes a bus as a drivers.SPI. Every call runs in its own
// transaction on the configured select line.
type Conn struct {
	bus spi.Bus
	sel spi.OutputPin
}

// NewConn returns a Conn on bus. A nil sel leaves the select line to the
// caller, which is what most TinyGo drivers expect.
func NewConn(bus spi.Bus, sel spi.OutputPin) *Conn {
	if sel == nil {
		sel = spi.NoSelect
	}
	return &Conn{bus: bus, sel: sel}
}

// Bus returns the underlying bus.
func (c *Conn) Bus() spi.Bus {
	return c.bus
}

// Tx writes w while reading into r. Either may be nil.
func (c *Conn) Tx(w, r []byte) error {
	n := len(w)
	switch {
	case w == nil:
		n = len(r)
	case r != nil && len(r) != len(w):
		return ErrLengthMismatch
	}
	if n == 0 {
		return nil
	}
	spi.Do(c.bus, c.sel, func(tx *spi.Transaction) {
		tx.WriteRead(n, w, r)
	})
	return spi.Err(c.bus)
}

// Transfer writes b and returns the byte clocked in with it.
func (c *Conn) Transfer(b byte) (byte, error) {
	var in byte
	spi.Do(c.bus, c.sel, func(tx *spi.Transaction) {
		tx.WriteOne(b, &in)
	})
	return in, spi.Err(c.bus)
}
