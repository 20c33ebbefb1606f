package spi

import (
	"errors"
	"strconv"
)

// DefaultHalfPeriodNs is the half clock period used by DefaultMode.
const DefaultHalfPeriodNs = 1000

// ErrInvalidMode is returned for SPI mode numbers outside 0-3.
var ErrInvalidMode = errors.New("invalid SPI mode")

// Mode is the timing configuration of a bus. It is fixed when the bus is
// constructed.
//
//	Mode 0: CPOL=0, CPHA=0 (clock idle low, sample on rising edge)
//	Mode 1: CPOL=0, CPHA=1 (clock idle low, sample on falling edge)
//	Mode 2: CPOL=1, CPHA=0 (clock idle high, sample on falling edge)
//	Mode 3: CPOL=1, CPHA=1 (clock idle high, sample on rising edge)
type Mode struct {
	// ClockPolarity is the idle level of the clock line.
	ClockPolarity bool
	// ClockPhase selects the edge data is sampled on: false samples on the
	// idle->active edge, true drives on it and samples on active->idle.
	ClockPhase bool
	// HalfPeriodNs is the time between two clock edges in nanoseconds.
	HalfPeriodNs uint32
}

// DefaultMode returns mode 0 with a 1000ns half period.
func DefaultMode() Mode {
	return Mode{HalfPeriodNs: DefaultHalfPeriodNs}
}

// NewMode returns a fully specified mode.
func NewMode(clockPolarity, clockPhase bool, halfPeriodNs uint32) Mode {
	return Mode{
		ClockPolarity: clockPolarity,
		ClockPhase:    clockPhase,
		HalfPeriodNs:  halfPeriodNs,
	}
}

// ModeFromNumber decodes a conventional SPI mode number (0-3).
func ModeFromNumber(n uint8, halfPeriodNs uint32) (Mode, error) {
	if n > 3 {
		return Mode{}, ErrInvalidMode
	}
	return NewMode(n&0x2 != 0, n&0x1 != 0, halfPeriodNs), nil
}

// HalfPeriodFromRate converts a clock rate in Hz into a half period.
// A zero rate selects 100kHz.
func HalfPeriodFromRate(rate uint32) uint32 {
	if rate == 0 {
		return 5000
	}
	halfPeriod := 500000000 / rate
	if halfPeriod == 0 {
		halfPeriod = 1
	}
	return halfPeriod
}

// Number returns the conventional SPI mode number (0-3).
func (m Mode) Number() uint8 {
	var n uint8
	if m.ClockPolarity {
		n |= 0x2
	}
	if m.ClockPhase {
		n |= 0x1
	}
	return n
}

// Rate returns the clock rate in Hz implied by the half period.
func (m Mode) Rate() uint32 {
	if m.HalfPeriodNs == 0 {
		return 0
	}
	return 500000000 / m.HalfPeriodNs
}

func (m Mode) String() string {
	return "mode " + strconv.Itoa(int(m.Number())) +
		" (cpol=" + bit(m.ClockPolarity) +
		" cpha=" + bit(m.ClockPhase) +
		" half=" + strconv.FormatUint(uint64(m.HalfPeriodNs), 10) + "ns)"
}

func bit(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
