package spi

import "errors"

// ErrClosed is the panic value for operations on a closed Transaction.
var ErrClosed = errors.New("spi: transaction already closed")

// Transaction is one select-bracketed exchange on a bus. It is created by
// Begin, which runs the bus start hook, and ended by Close, which runs the end
// hook exactly once. Transfer methods return the transaction so calls chain.
//
// A Transaction must not be copied or used after Close.
type Transaction struct {
	bus    Bus
	sel    OutputPin
	closed bool
}

// Begin opens a transaction on bus with sel as its select line and runs the
// bus start hook. A nil sel is replaced by NoSelect. Callers must Close the
// transaction, usually with defer.
func Begin(bus Bus, sel OutputPin) *Transaction {
	if sel == nil {
		sel = NoSelect
	}
	t := &Transaction{bus: bus, sel: sel}
	bus.OnStart(t)
	return t
}

// Do runs fn inside a transaction and closes it on every exit path,
// including a panic in fn.
func Do(bus Bus, sel OutputPin, fn func(t *Transaction)) {
	t := Begin(bus, sel)
	defer t.Close()
	fn(t)
}

// Close runs the bus end hook. Calls after the first are no-ops.
func (t *Transaction) Close() {
	if t.closed {
		return
	}
	t.closed = true
	t.bus.OnEnd(t)
}

// Closed reports whether Close has run.
func (t *Transaction) Closed() bool {
	return t.closed
}

// Bus returns the bus the transaction runs on.
func (t *Transaction) Bus() Bus {
	return t.bus
}

// Select returns the transaction's select line.
func (t *Transaction) Select() OutputPin {
	return t.sel
}

// WriteRead sends n bytes from out while receiving n bytes into in.
func (t *Transaction) WriteRead(n int, out, in []byte) *Transaction {
	t.check()
	if n > 0 {
		t.bus.WriteRead(n, out, in)
	}
	return t
}

// WriteReadReverse is WriteRead with the byte order reversed: out[n-1] goes
// first and the first received byte lands in in[n-1].
func (t *Transaction) WriteReadReverse(n int, out, in []byte) *Transaction {
	t.check()
	if n > 0 {
		t.bus.WriteReadReverse(n, out, in)
	}
	return t
}

// Write sends n bytes and discards the input.
func (t *Transaction) Write(n int, out []byte) *Transaction {
	return t.WriteRead(n, out, nil)
}

// WriteReverse sends n bytes last byte first and discards the input.
func (t *Transaction) WriteReverse(n int, out []byte) *Transaction {
	return t.WriteReadReverse(n, out, nil)
}

// Read receives n bytes while sending zeros.
func (t *Transaction) Read(n int, in []byte) *Transaction {
	return t.WriteRead(n, nil, in)
}

// ReadReverse receives n bytes into in from the last slot down.
func (t *Transaction) ReadReverse(n int, in []byte) *Transaction {
	return t.WriteReadReverse(n, nil, in)
}

// ReadOne transfers a single byte and returns what was received. When out is
// nil a zero byte is sent.
func (t *Transaction) ReadOne(out *byte) byte {
	var rx [1]byte
	if out == nil {
		t.WriteRead(1, nil, rx[:])
		return rx[0]
	}
	tx := [1]byte{*out}
	t.WriteRead(1, tx[:], rx[:])
	return rx[0]
}

// WriteOne sends b. When in is not nil the received byte is stored there.
func (t *Transaction) WriteOne(b byte, in *byte) *Transaction {
	tx := [1]byte{b}
	if in == nil {
		return t.WriteRead(1, tx[:], nil)
	}
	var rx [1]byte
	t.WriteRead(1, tx[:], rx[:])
	*in = rx[0]
	return t
}

func (t *Transaction) check() {
	if t.closed {
		panic(ErrClosed)
	}
}
