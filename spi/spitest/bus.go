// Package spitest provides test doubles for the spi package: a recording
// bus, recording pins and delays, and a simulated peripheral that speaks
// the bit-level protocol on three lines.
package spitest

import "spibus/spi"

// Capacity is the size of the Bus buffers.
const Capacity = 128

// Bus records every transmitted byte in Out and answers reads from In.
//
// Both cursors advance once per transferred byte even when the caller passed
// no buffer, so an absent output leaves whatever Out already held at that
// slot. Transfers past Capacity panic.
//
// Only the forward transfer is implemented; reverse transfers go through the
// derivation in spi.Base.
type Bus struct {
	spi.Base

	Out [Capacity]byte
	In  [Capacity]byte

	// OutSize is the write cursor into Out.
	OutSize int
	// InIndex is the read cursor into In.
	InIndex int
	// InSize is the number of bytes appended to In.
	InSize int

	// Starts and Ends count hook invocations.
	Starts int
	Ends   int
}

// NewBus returns an empty test bus.
func NewBus() *Bus {
	b := &Bus{}
	b.Base = spi.NewBase(spi.NewMode(false, false, 1), spi.Transfers{Forward: b.writeRead})
	return b
}

// OnStart counts the hook and asserts the select line.
func (b *Bus) OnStart(t *spi.Transaction) {
	b.Starts++
	b.Base.OnStart(t)
}

// OnEnd counts the hook and releases the select line.
func (b *Bus) OnEnd(t *spi.Transaction) {
	b.Ends++
	b.Base.OnEnd(t)
}

func (b *Bus) writeRead(n int, out, in []byte) {
	for i := 0; i < n; i++ {
		if out != nil {
			b.Out[b.OutSize] = out[i]
		}
		b.OutSize++
		if in != nil {
			in[i] = b.In[b.InIndex]
		}
		b.InIndex++
	}
}

// AppendIn queues bytes to be returned by later reads.
func (b *Bus) AppendIn(data ...byte) {
	for _, v := range data {
		b.In[b.InSize] = v
		b.InSize++
	}
}

// Match reports whether expected equals the first len(expected) bytes of Out
// (out true) or In (out false).
func (b *Bus) Match(expected []byte, out bool) bool {
	buf := b.In
	if out {
		buf = b.Out
	}
	if len(expected) > len(buf) {
		return false
	}
	for i, v := range expected {
		if buf[i] != v {
			return false
		}
	}
	return true
}

// Written returns the bytes recorded so far.
func (b *Bus) Written() []byte {
	return append([]byte(nil), b.Out[:min(b.OutSize, Capacity)]...)
}

// Clear zeroes both buffers and resets all cursors.
func (b *Bus) Clear() {
	b.Out = [Capacity]byte{}
	b.In = [Capacity]byte{}
	b.OutSize = 0
	b.InIndex = 0
	b.InSize = 0
}
