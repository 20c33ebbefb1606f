package spitest

import "spibus/spi"

// Line names used in Device events.
const (
	LineSCLK   = "sclk"
	LineMOSI   = "mosi"
	LineSelect = "cs"
	LineWait   = "wait"
)

// Event is one observed line change.
type Event struct {
	Line  string
	Level bool
}

// Device simulates an SPI peripheral wired to a bit-banged master. It
// samples MOSI and drives MISO on the edges its mode prescribes and logs
// every line change in Events.
type Device struct {
	mode spi.Mode

	// Received holds the complete bytes shifted in from MOSI.
	Received []byte
	// Events is the ordered log of line changes seen by the device.
	Events []Event

	reply []byte

	clk  bool
	mosi bool
	miso bool

	inByte  byte
	inBits  int
	outByte byte
	outBits int
}

// NewDevice returns a device in mode that answers with reply, then zeros.
func NewDevice(mode spi.Mode, reply ...byte) *Device {
	d := &Device{
		mode:  mode,
		clk:   mode.ClockPolarity,
		reply: append([]byte(nil), reply...),
	}
	if !mode.ClockPhase {
		// CPHA=0 peripherals present the first bit before the first edge.
		d.shiftOut()
	}
	return d
}

// SCLK returns the clock line the master drives.
func (d *Device) SCLK() spi.OutputPin { return clockLine{d} }

// MOSI returns the data line the master drives.
func (d *Device) MOSI() spi.OutputPin { return mosiLine{d} }

// MISO returns the data line the master samples.
func (d *Device) MISO() spi.InputPin { return misoLine{d} }

// Select returns a chip select line that is logged but otherwise ignored.
func (d *Device) Select() spi.OutputPin { return selectLine{d} }

// Delay returns a delayer that logs waits as events.
func (d *Device) Delay() spi.Delayer {
	return spi.DelayFunc(func(uint32) {
		d.Events = append(d.Events, Event{Line: LineWait})
	})
}

// ClockLevel returns the current clock level.
func (d *Device) ClockLevel() bool { return d.clk }

func (d *Device) edge(level bool) {
	d.Events = append(d.Events, Event{Line: LineSCLK, Level: level})
	if level == d.clk {
		return
	}
	d.clk = level
	leading := level != d.mode.ClockPolarity

	switch {
	case !d.mode.ClockPhase && leading:
		d.shiftIn()
	case !d.mode.ClockPhase && !leading:
		d.shiftOut()
	case d.mode.ClockPhase && leading:
		d.shiftOut()
	default:
		d.shiftIn()
	}
}

func (d *Device) shiftIn() {
	d.inByte <<= 1
	if d.mosi {
		d.inByte |= 0x01
	}
	d.inBits++
	if d.inBits == 8 {
		d.Received = append(d.Received, d.inByte)
		d.inByte = 0
		d.inBits = 0
	}
}

func (d *Device) shiftOut() {
	if d.outBits == 0 {
		d.outByte = 0
		if len(d.reply) > 0 {
			d.outByte = d.reply[0]
			d.reply = d.reply[1:]
		}
		d.outBits = 8
	}
	d.miso = d.outByte&0x80 != 0
	d.outByte <<= 1
	d.outBits--
}

type clockLine struct{ d *Device }

func (l clockLine) Set(high bool) { l.d.edge(high) }

type mosiLine struct{ d *Device }

func (l mosiLine) Set(high bool) {
	l.d.mosi = high
	l.d.Events = append(l.d.Events, Event{Line: LineMOSI, Level: high})
}

type misoLine struct{ d *Device }

func (l misoLine) Get() bool { return l.d.miso }

type selectLine struct{ d *Device }

func (l selectLine) Set(high bool) {
	l.d.Events = append(l.d.Events, Event{Line: LineSelect, Level: high})
}
