package tinyspi

import (
	"tinygo.org/x/drivers"

	"spibus/spi"
)

var _ spi.Port = (*Port)(nil)

// Port drives a drivers.SPI peripheral (machine.SPI, a PIO SPI program) with
// a GPIO chip select. The select line is active low.
type Port struct {
	dev drivers.SPI
	cs  spi.OutputPin
}

// NewPort returns a Port on dev. A nil cs means the peripheral handles chip
// select on its own.
func NewPort(dev drivers.SPI, cs spi.OutputPin) *Port {
	if cs == nil {
		cs = spi.NoSelect
	}
	cs.Set(true)
	return &Port{dev: dev, cs: cs}
}

// Select drives the chip select line.
func (p *Port) Select(active bool) {
	p.cs.Set(!active)
}

// Exchange runs one Tx on the peripheral.
func (p *Port) Exchange(out, in []byte) error {
	return p.dev.Tx(out, in)
}
