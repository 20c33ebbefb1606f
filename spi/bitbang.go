package spi

// Bitbang is a software-timed bus driving clock (SCLK), data out (MOSI) and
// data in (MISO) lines. Bytes move MSB first.
//
// A forward transfer waits one half period after its last byte so the lines
// settle before the select line is released. A reverse transfer does not.
type Bitbang struct {
	Base

	sclk  OutputPin
	mosi  OutputPin
	miso  InputPin
	delay Delayer
}

// BitbangOption configures a Bitbang bus.
type BitbangOption func(*Bitbang)

// WithDelay sets the delay used for the half period wait. The default is
// SleepDelay.
func WithDelay(d Delayer) BitbangOption {
	return func(b *Bitbang) {
		b.delay = d
	}
}

// NewBitbang returns a bus on the given lines and parks the clock at its
// idle level with MOSI low. A nil miso reads as low.
func NewBitbang(sclk, mosi OutputPin, miso InputPin, mode Mode, opts ...BitbangOption) *Bitbang {
	b := &Bitbang{
		sclk:  sclk,
		mosi:  mosi,
		miso:  miso,
		delay: SleepDelay,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.Base = NewBase(mode, Transfers{
		Forward: b.writeRead,
		Reverse: b.writeReadReverse,
	})

	b.sclk.Set(mode.ClockPolarity)
	b.mosi.Set(false)
	return b
}

func (b *Bitbang) writeRead(n int, out, in []byte) {
	for i := 0; i < n; i++ {
		var d byte
		if out != nil {
			d = out[i]
		}
		d = b.exchange(d)
		if in != nil {
			in[i] = d
		}
	}
	b.waitHalfPeriod()
}

func (b *Bitbang) writeReadReverse(n int, out, in []byte) {
	for i := n - 1; i >= 0; i-- {
		var d byte
		if out != nil {
			d = out[i]
		}
		d = b.exchange(d)
		if in != nil {
			in[i] = d
		}
	}
}

// exchange clocks one byte out and returns the byte clocked in.
func (b *Bitbang) exchange(d byte) byte {
	idle := b.mode.ClockPolarity
	active := !idle

	if b.mode.ClockPhase {
		// Drive on the idle->active edge, sample on active->idle.
		for bit := 0; bit < 8; bit++ {
			b.sclk.Set(active)
			b.mosi.Set(d&0x80 != 0)
			b.sclk.Set(idle)
			d <<= 1
			if b.sample() {
				d |= 0x01
			}
		}
		return d
	}

	// Drive while idle, sample on the idle->active edge.
	for bit := 0; bit < 8; bit++ {
		b.mosi.Set(d&0x80 != 0)
		b.sclk.Set(active)
		d <<= 1
		if b.sample() {
			d |= 0x01
		}
		b.sclk.Set(idle)
	}
	return d
}

func (b *Bitbang) sample() bool {
	if b.miso == nil {
		return false
	}
	return b.miso.Get()
}

func (b *Bitbang) waitHalfPeriod() {
	b.delay.WaitNanos(b.mode.HalfPeriodNs)
}
