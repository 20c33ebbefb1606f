package periphspi

import (
	"github.com/pkg/errors"
	periph "periph.io/x/conn/v3/spi"

	"spibus/spi"
)

var _ spi.Port = (*Port)(nil)

// Port runs a spi.Hardware bus on a periph connection such as a spidev
// device. The kernel driver asserts chip select around every exchange, so
// Select is a no-op.
type Port struct {
	conn periph.Conn
}

// NewPort returns a Port on c.
func NewPort(c periph.Conn) *Port {
	return &Port{conn: c}
}

// Select does nothing; chip select belongs to the connection.
func (p *Port) Select(bool) {}

// Exchange runs one Tx on the connection.
func (p *Port) Exchange(out, in []byte) error {
	return errors.Wrapf(p.conn.Tx(out, in), "exchange on %s", p.conn)
}

// PeriphMode converts a bus mode into the periph mode bits.
func PeriphMode(m spi.Mode) periph.Mode {
	return periph.Mode(m.Number())
}

// ModeFromPeriph converts periph mode bits into a bus mode. Only the four
// clock modes are supported; half duplex, NoCS and LSBFirst are rejected.
func ModeFromPeriph(m periph.Mode, halfPeriodNs uint32) (spi.Mode, error) {
	if m&^periph.Mode3 != 0 {
		return spi.Mode{}, errors.Errorf("unsupported periph mode flags %#x", uint(m&^periph.Mode3))
	}
	return spi.ModeFromNumber(uint8(m), halfPeriodNs)
}
