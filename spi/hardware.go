package spi

// fillerSize is the length of the zero buffer streamed when a transfer has
// no output.
const fillerSize = 32

// Port is the peripheral behind a Hardware bus: an SPI controller, a DMA
// channel pair or a PIO state machine. It owns the chip select signal.
type Port interface {
	// Select asserts (true) or releases (false) the hardware chip select.
	Select(active bool)
	// Exchange sends out while receiving into in. out is never nil; a nil
	// in discards the received bytes. When in is set it has len(out) bytes.
	Exchange(out, in []byte) error
}

// Hardware is a bus backed by a peripheral Port. Its hooks drive the port's
// chip select and then the transaction's select line, so a device may use
// either the peripheral select (with NoSelect) or a GPIO.
//
// Transfers cannot report failure through the Bus contract. The first port
// error of a transaction is kept and returned by Err until the next
// transaction starts.
type Hardware struct {
	Base

	port   Port
	filler [fillerSize]byte
	err    error
}

// NewHardware returns a bus on port. The mode is informational: the port is
// expected to be configured for it already.
func NewHardware(port Port, mode Mode) *Hardware {
	h := &Hardware{port: port}
	h.Base = NewBase(mode, Transfers{Forward: h.writeRead})
	return h
}

// Port returns the peripheral the bus runs on.
func (h *Hardware) Port() Port {
	return h.port
}

// Err returns the first port error since the current transaction started.
func (h *Hardware) Err() error {
	return h.err
}

// OnStart clears the error state and asserts both selects.
func (h *Hardware) OnStart(t *Transaction) {
	h.err = nil
	h.port.Select(true)
	h.Base.OnStart(t)
}

// OnEnd releases both selects.
func (h *Hardware) OnEnd(t *Transaction) {
	h.Base.OnEnd(t)
	h.port.Select(false)
}

func (h *Hardware) writeRead(n int, out, in []byte) {
	if out != nil {
		if in != nil {
			in = in[:n]
		}
		h.exchange(out[:n], in)
		return
	}

	// Read-only transfers stream the zero filler in chunks.
	for off := 0; off < n; off += fillerSize {
		k := min(fillerSize, n-off)
		var chunk []byte
		if in != nil {
			chunk = in[off : off+k]
		}
		h.exchange(h.filler[:k], chunk)
	}
}

func (h *Hardware) exchange(out, in []byte) {
	if err := h.port.Exchange(out, in); err != nil && h.err == nil {
		h.err = err
	}
}
