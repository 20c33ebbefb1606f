package spi

import "errors"

// ErrNoTransfer is the panic value of NewBase when a bus supplies neither
// transfer direction. Deriving each direction from the other would recurse
// forever.
var ErrNoTransfer = errors.New("spi: bus supplies neither forward nor reverse transfer")

// TransferFunc moves n bytes over the bus. A nil out transmits zero bytes and
// a nil in discards what was received. Both, when present, hold at least n
// bytes.
type TransferFunc func(n int, out, in []byte)

// Bus is the transfer surface shared by every bus implementation.
//
// WriteRead sends out[0] first. WriteReadReverse sends out[n-1] first and
// stores the first received byte in in[n-1]. OnStart and OnEnd bracket a
// Transaction: OnStart completes before the first byte moves and OnEnd runs
// after the last one.
type Bus interface {
	Mode() Mode
	WriteRead(n int, out, in []byte)
	WriteReadReverse(n int, out, in []byte)
	OnStart(t *Transaction)
	OnEnd(t *Transaction)
}

// ErrorReporter is implemented by buses whose transport can fail. The bus
// contract has no error returns, so such buses keep the first failure of a
// transaction until the next OnStart.
type ErrorReporter interface {
	Err() error
}

// Err returns the sticky error of bus, or nil when it cannot fail.
func Err(bus Bus) error {
	if r, ok := bus.(ErrorReporter); ok {
		return r.Err()
	}
	return nil
}

// Transfers lists the transfer directions a bus implements. At least one
// must be set; the other is derived.
type Transfers struct {
	Forward TransferFunc
	Reverse TransferFunc
}

// Base is embedded by concrete buses. It stores the mode, dispatches
// transfers to the implemented direction and drives the transaction's
// select line low on start and high on end.
type Base struct {
	mode    Mode
	forward TransferFunc
	reverse TransferFunc
}

// NewBase builds the embedded part of a bus. It panics with ErrNoTransfer if
// t has neither direction.
func NewBase(mode Mode, t Transfers) Base {
	if t.Forward == nil && t.Reverse == nil {
		panic(ErrNoTransfer)
	}
	return Base{
		mode:    mode,
		forward: t.Forward,
		reverse: t.Reverse,
	}
}

// Mode returns the bus timing configuration.
func (b *Base) Mode() Mode {
	return b.mode
}

// WriteRead transfers n bytes first byte first.
func (b *Base) WriteRead(n int, out, in []byte) {
	if n <= 0 {
		return
	}
	if b.forward != nil {
		b.forward(n, out, in)
		return
	}
	ForwardVia(b.reverse, n, out, in)
}

// WriteReadReverse transfers n bytes last byte first.
func (b *Base) WriteReadReverse(n int, out, in []byte) {
	if n <= 0 {
		return
	}
	if b.reverse != nil {
		b.reverse(n, out, in)
		return
	}
	ReverseVia(b.forward, n, out, in)
}

// OnStart asserts the transaction's select line (active low).
func (b *Base) OnStart(t *Transaction) {
	t.Select().Set(false)
}

// OnEnd releases the transaction's select line.
func (b *Base) OnEnd(t *Transaction) {
	t.Select().Set(true)
}

// ForwardVia performs a forward transfer with a reverse-only primitive.
func ForwardVia(reverse TransferFunc, n int, out, in []byte) {
	flipped(reverse, n, out, in)
}

// ReverseVia performs a reverse transfer with a forward-only primitive.
func ReverseVia(forward TransferFunc, n int, out, in []byte) {
	flipped(forward, n, out, in)
}

// flipped runs fn on byte-reversed copies of out and in. The scratch output
// is always passed, so an absent out reaches fn as n zero bytes.
func flipped(fn TransferFunc, n int, out, in []byte) {
	scratchOut := make([]byte, n)
	if out != nil {
		for i := 0; i < n; i++ {
			scratchOut[i] = out[n-1-i]
		}
	}

	var scratchIn []byte
	if in != nil {
		scratchIn = make([]byte, n)
	}

	fn(n, scratchOut, scratchIn)

	if in != nil {
		for i := 0; i < n; i++ {
			in[i] = scratchIn[n-1-i]
		}
	}
}
