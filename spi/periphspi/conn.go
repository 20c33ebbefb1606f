package periphspi

import (
	"github.com/pkg/errors"
	"periph.io/x/conn/v3"
	periph "periph.io/x/conn/v3/spi"

	"spibus/spi"
)

var _ periph.Conn = (*Conn)(nil)

// Conn exposes a bus as a periph spi.Conn.
type Conn struct {
	bus spi.Bus
	sel spi.OutputPin
}

// NewConn returns a Conn that brackets every call with sel. A nil sel
// leaves chip select to the caller.
func NewConn(bus spi.Bus, sel spi.OutputPin) *Conn {
	if sel == nil {
		sel = spi.NoSelect
	}
	return &Conn{bus: bus, sel: sel}
}

func (c *Conn) String() string {
	return "spibus(" + c.bus.Mode().String() + ")"
}

// Duplex always reports full duplex.
func (c *Conn) Duplex() conn.Duplex {
	return conn.Full
}

// Tx runs one transaction writing w and reading into r.
func (c *Conn) Tx(w, r []byte) error {
	return c.TxPackets([]periph.Packet{{W: w, R: r}})
}

// TxPackets runs the packets in order. A packet with KeepCS set keeps the
// transaction open for the next packet; the others close it.
func (c *Conn) TxPackets(p []periph.Packet) error {
	for i := range p {
		if err := checkPacket(&p[i]); err != nil {
			return errors.Wrapf(err, "packet %d", i)
		}
	}

	// A new transaction clears the bus error, so it is checked after each
	// one closes.
	var tx *spi.Transaction
	for i := range p {
		if tx == nil {
			tx = spi.Begin(c.bus, c.sel)
		}
		n := len(p[i].W)
		if p[i].W == nil {
			n = len(p[i].R)
		}
		tx.WriteRead(n, p[i].W, p[i].R)
		if !p[i].KeepCS || i == len(p)-1 {
			tx.Close()
			tx = nil
			if err := spi.Err(c.bus); err != nil {
				return errors.Wrapf(err, "packet %d", i)
			}
		}
	}
	return nil
}

func checkPacket(p *periph.Packet) error {
	if p.BitsPerWord != 0 && p.BitsPerWord != 8 {
		return errors.Errorf("unsupported %d bits per word", p.BitsPerWord)
	}
	if p.W != nil && p.R != nil && len(p.W) != len(p.R) {
		return errors.Errorf("write and read lengths differ (%d != %d)", len(p.W), len(p.R))
	}
	return nil
}
